package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/stretchr/testify/mock"
)

// MockCustomerRepository mocks the CustomerRepository interface
type MockCustomerRepository struct {
	mock.Mock
}

func (m *MockCustomerRepository) GetByPhone(ctx context.Context, phone string) (*domain.Customer, error) {
	args := m.Called(ctx, phone)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *MockCustomerRepository) GetByID(ctx context.Context, customerID string) (*domain.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Customer), args.Error(1)
}

func (m *MockCustomerRepository) Create(ctx context.Context, customer *domain.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

func (m *MockCustomerRepository) Upsert(ctx context.Context, customer *domain.Customer) error {
	args := m.Called(ctx, customer)
	return args.Error(0)
}

func (m *MockCustomerRepository) UpdateShippingAddress(ctx context.Context, customerID string, address map[string]string) error {
	args := m.Called(ctx, customerID, address)
	return args.Error(0)
}

// MockQRTokenStore mocks the QRTokenStore interface
type MockQRTokenStore struct {
	mock.Mock
}

func (m *MockQRTokenStore) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	args := m.Called(ctx, tokenID, ttl)
	return args.Bool(0), args.Error(1)
}

// failingBackend rejects every durable call
type failingBackend struct{}

var errBackendDown = errors.New("backend unavailable")

func (failingBackend) Save(context.Context, *domain.SessionRecord) error { return errBackendDown }

func (failingBackend) RestoreByPhone(context.Context, string) (*domain.SessionRecord, error) {
	return nil, errBackendDown
}

func (failingBackend) RestoreByToken(context.Context, string, string) (*domain.SessionRecord, error) {
	return nil, errBackendDown
}

func (failingBackend) RefreshExpiry(context.Context, string, time.Time, time.Time) error {
	return errBackendDown
}

func (failingBackend) MarkInactive(context.Context, string, time.Time) error { return errBackendDown }

func (failingBackend) SyncData(context.Context, string, json.RawMessage, time.Time) error {
	return errBackendDown
}
