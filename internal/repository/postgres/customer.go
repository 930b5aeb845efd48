package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const customerColumns = `customer_id, name, phone_number, age, gender, city, password_hash, shipping_address, created_at, updated_at`

// CustomerRepository implements domain.CustomerRepository
type CustomerRepository struct {
	pool *pgxpool.Pool
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *DB) *CustomerRepository {
	return &CustomerRepository{pool: db.Pool}
}

func scanCustomer(row pgx.Row) (*domain.Customer, error) {
	var (
		c                      domain.Customer
		gender, city, password *string
		address                map[string]string
	)
	err := row.Scan(
		&c.CustomerID,
		&c.Name,
		&c.PhoneNumber,
		&c.Age,
		&gender,
		&city,
		&password,
		&address,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if gender != nil {
		c.Gender = *gender
	}
	if city != nil {
		c.City = *city
	}
	if password != nil {
		c.PasswordHash = *password
	}
	c.ShippingAddress = address
	return &c, nil
}

// GetByPhone returns the customer for phone, or nil when none exists
func (r *CustomerRepository) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE phone_number = $1`

	c, err := scanCustomer(r.pool.QueryRow(ctx, query, phone))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer by phone: %w", err)
	}
	return c, nil
}

// GetByID returns the customer with customerID, or nil when none exists
func (r *CustomerRepository) GetByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers WHERE customer_id = $1`

	c, err := scanCustomer(r.pool.QueryRow(ctx, query, customerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// Create inserts a customer. An empty CustomerID is assigned from customer_id_seq.
func (r *CustomerRepository) Create(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customers (customer_id, name, phone_number, age, gender, city, password_hash, shipping_address)
		VALUES (COALESCE(NULLIF($1, ''), nextval('customer_id_seq')::text), $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), $8)
		RETURNING customer_id, created_at, updated_at
	`
	err := r.pool.QueryRow(ctx, query,
		c.CustomerID,
		c.Name,
		c.PhoneNumber,
		c.Age,
		c.Gender,
		c.City,
		c.PasswordHash,
		c.ShippingAddress,
	).Scan(&c.CustomerID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// Upsert inserts the customer or refreshes the profile of the existing row with the same phone.
// Blank profile fields never overwrite stored values.
func (r *CustomerRepository) Upsert(ctx context.Context, c *domain.Customer) error {
	query := `
		INSERT INTO customers (customer_id, name, phone_number, age, gender, city)
		VALUES (COALESCE(NULLIF($1, ''), nextval('customer_id_seq')::text), $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''))
		ON CONFLICT (phone_number) DO UPDATE SET
			name = COALESCE(NULLIF(EXCLUDED.name, ''), customers.name),
			age = COALESCE(EXCLUDED.age, customers.age),
			gender = COALESCE(EXCLUDED.gender, customers.gender),
			city = COALESCE(EXCLUDED.city, customers.city),
			updated_at = NOW()
		RETURNING ` + customerColumns
	updated, err := scanCustomer(r.pool.QueryRow(ctx, query,
		c.CustomerID,
		c.Name,
		c.PhoneNumber,
		c.Age,
		c.Gender,
		c.City,
	))
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	*c = *updated
	return nil
}

// UpdateShippingAddress stores the latest shipping address for a customer
func (r *CustomerRepository) UpdateShippingAddress(ctx context.Context, customerID string, address map[string]string) error {
	query := `UPDATE customers SET shipping_address = $2, updated_at = NOW() WHERE customer_id = $1`
	tag, err := r.pool.Exec(ctx, query, customerID, address)
	if err != nil {
		return fmt.Errorf("failed to update shipping address: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("customer %s not found", customerID)
	}
	return nil
}
