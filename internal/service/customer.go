package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/repository/memory"
	"github.com/rs/zerolog/log"
)

const guestCustomerName = "Guest"

// CustomerService resolves and maintains customer records for sessions
type CustomerService struct {
	repo     domain.CustomerRepository
	identity *memory.IdentityIndex
}

// NewCustomerService creates a new customer service
func NewCustomerService(repo domain.CustomerRepository, identity *memory.IdentityIndex) *CustomerService {
	return &CustomerService{
		repo:     repo,
		identity: identity,
	}
}

// EnsureByPhone returns the customer for phone, creating a guest record when none exists
func (s *CustomerService) EnsureByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	customer, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}

	if customer == nil {
		customer = &domain.Customer{
			Name:        guestCustomerName,
			PhoneNumber: phone,
		}
		if err := s.repo.Create(ctx, customer); err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		log.Info().Str("customer_id", customer.CustomerID).Msg("Created customer for new phone")
	}

	s.identity.Register(ctx, phone, customer.CustomerID)
	if customer.PhoneNumber != "" && customer.PhoneNumber != phone {
		s.identity.Register(ctx, customer.PhoneNumber, customer.CustomerID)
	}
	return customer, nil
}

// Login creates or refreshes the customer described by a passwordless login
func (s *CustomerService) Login(ctx context.Context, input domain.CustomerLogin) (*domain.Customer, error) {
	customer := &domain.Customer{
		CustomerID:  strings.TrimSpace(input.CustomerID),
		Name:        strings.TrimSpace(input.Name),
		PhoneNumber: strings.TrimSpace(input.PhoneNumber),
		Age:         input.Age,
		Gender:      strings.TrimSpace(input.Gender),
		City:        strings.TrimSpace(input.City),
	}
	if customer.PhoneNumber == "" {
		return nil, &domain.FieldError{Action: "login", Field: "phone_number"}
	}
	if customer.Name == "" {
		return nil, &domain.FieldError{Action: "login", Field: "name"}
	}

	if err := s.repo.Upsert(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to save customer: %w", err)
	}

	s.identity.Register(ctx, customer.PhoneNumber, customer.CustomerID)
	return customer, nil
}

// Create inserts a new customer and registers its phone
func (s *CustomerService) Create(ctx context.Context, customer *domain.Customer) error {
	if err := s.repo.Create(ctx, customer); err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	s.identity.Register(ctx, customer.PhoneNumber, customer.CustomerID)
	return nil
}

// GetByPhone returns the customer for phone or nil
func (s *CustomerService) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	customer, err := s.repo.GetByPhone(ctx, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	return customer, nil
}

// UpdateShippingAddress stores the latest address captured in chat
func (s *CustomerService) UpdateShippingAddress(ctx context.Context, customerID string, address map[string]string) error {
	if err := s.repo.UpdateShippingAddress(ctx, customerID, address); err != nil {
		return fmt.Errorf("failed to sync shipping address: %w", err)
	}
	return nil
}
