package domain

import (
	"context"
	"time"
)

// Customer is the retail profile a session links to
type Customer struct {
	CustomerID      string            `json:"customer_id"`
	Name            string            `json:"name"`
	PhoneNumber     string            `json:"phone_number"`
	Age             *int              `json:"age,omitempty"`
	Gender          string            `json:"gender,omitempty"`
	City            string            `json:"city,omitempty"`
	PasswordHash    string            `json:"-"`
	ShippingAddress map[string]string `json:"shipping_address,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Profile returns the subset of fields attached to a session as customer_profile
func (c *Customer) Profile() map[string]any {
	p := map[string]any{
		"customer_id":  c.CustomerID,
		"name":         c.Name,
		"phone_number": c.PhoneNumber,
	}
	if c.Age != nil {
		p["age"] = *c.Age
	}
	if c.Gender != "" {
		p["gender"] = c.Gender
	}
	if c.City != "" {
		p["city"] = c.City
	}
	return p
}

// CustomerLogin is the body of a passwordless session login
type CustomerLogin struct {
	Name        string  `json:"name" validate:"required,max=255"`
	PhoneNumber string  `json:"phone_number" validate:"required,max=32"`
	CustomerID  string  `json:"customer_id,omitempty" validate:"omitempty,max=64"`
	Age         *int    `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Gender      string  `json:"gender,omitempty" validate:"omitempty,max=32"`
	City        string  `json:"city,omitempty" validate:"omitempty,max=128"`
	Channel     Channel `json:"channel" validate:"omitempty,oneof=web kiosk whatsapp telegram"`
}

// CustomerSignup is the body of a password signup
type CustomerSignup struct {
	Name        string  `json:"name" validate:"required,max=255"`
	PhoneNumber string  `json:"phone_number" validate:"required,max=32"`
	Password    string  `json:"password" validate:"required,max=72"`
	Age         *int    `json:"age,omitempty" validate:"omitempty,min=0,max=150"`
	Gender      string  `json:"gender,omitempty" validate:"omitempty,max=32"`
	City        string  `json:"city,omitempty" validate:"omitempty,max=128"`
	Channel     Channel `json:"channel" validate:"omitempty,oneof=web kiosk whatsapp telegram"`
}

// CustomerCredentials is the body of a password login
type CustomerCredentials struct {
	PhoneNumber string  `json:"phone_number" validate:"required"`
	Password    string  `json:"password" validate:"required"`
	Channel     Channel `json:"channel" validate:"omitempty,oneof=web kiosk whatsapp telegram"`
}

// CustomerRepository defines the interface for customer storage.
// GetByPhone returns nil, nil when no customer has that phone.
type CustomerRepository interface {
	GetByPhone(ctx context.Context, phone string) (*Customer, error)
	GetByID(ctx context.Context, customerID string) (*Customer, error)
	Create(ctx context.Context, customer *Customer) error
	Upsert(ctx context.Context, customer *Customer) error
	UpdateShippingAddress(ctx context.Context, customerID string, address map[string]string) error
}

// QRInit requests a kiosk hand-off token for the logged-in customer
type QRInit struct {
	PhoneNumber string `json:"phone_number" validate:"required,max=32"`
}

// QRVerify redeems a kiosk hand-off token
type QRVerify struct {
	QRToken string  `json:"qr_token" validate:"required"`
	Channel Channel `json:"channel" validate:"omitempty,oneof=web kiosk whatsapp telegram"`
}
