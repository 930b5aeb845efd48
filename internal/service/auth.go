package service

import (
	"context"
	"strings"
	"time"

	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/repository/memory"
	"github.com/Rrens/omnichannel-session/internal/security"
	"github.com/rs/zerolog/log"
)

// QRTokenStore records redeemed QR tokens
type QRTokenStore interface {
	Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// AuthResult is a started session together with its customer
type AuthResult struct {
	SessionToken string           `json:"session_token"`
	Session      *domain.Session  `json:"session"`
	Customer     *domain.Customer `json:"customer"`
}

// QRGrant is a signed kiosk hand-off token
type QRGrant struct {
	QRToken    string    `json:"qr_token"`
	CustomerID string    `json:"customer_id"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// AuthService handles password and QR authentication on top of sessions
type AuthService struct {
	customers   *CustomerService
	identity    *memory.IdentityIndex
	sessions    *SessionService
	hasher      *security.PasswordHasher
	qr          *security.QRManager
	qrStore     QRTokenStore
	minPassword int
}

// NewAuthService creates a new auth service
func NewAuthService(
	customers *CustomerService,
	identity *memory.IdentityIndex,
	sessions *SessionService,
	hasher *security.PasswordHasher,
	qr *security.QRManager,
	qrStore QRTokenStore,
	minPassword int,
) *AuthService {
	return &AuthService{
		customers:   customers,
		identity:    identity,
		sessions:    sessions,
		hasher:      hasher,
		qr:          qr,
		qrStore:     qrStore,
		minPassword: minPassword,
	}
}

// Signup creates a password customer and starts a session for it
func (s *AuthService) Signup(ctx context.Context, input domain.CustomerSignup) (*AuthResult, error) {
	phone := strings.TrimSpace(input.PhoneNumber)
	if len(input.Password) < s.minPassword {
		return nil, domain.ErrWeakPassword
	}

	existing, err := s.customers.GetByPhone(ctx, phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, domain.ErrPhoneTaken
	}

	hashed, err := s.hasher.Hash(input.Password)
	if err != nil {
		return nil, err
	}

	customer := &domain.Customer{
		Name:         strings.TrimSpace(input.Name),
		PhoneNumber:  phone,
		Age:          input.Age,
		Gender:       strings.TrimSpace(input.Gender),
		City:         strings.TrimSpace(input.City),
		PasswordHash: hashed,
	}
	if err := s.customers.Create(ctx, customer); err != nil {
		return nil, err
	}

	log.Info().Str("customer_id", customer.CustomerID).Msg("Customer signed up")
	return s.startFor(ctx, customer, input.Channel, domain.ChannelWeb)
}

// Login verifies a phone and password and starts a session
func (s *AuthService) Login(ctx context.Context, input domain.CustomerCredentials) (*AuthResult, error) {
	customer, err := s.customers.GetByPhone(ctx, strings.TrimSpace(input.PhoneNumber))
	if err != nil {
		return nil, err
	}
	if customer == nil || customer.PasswordHash == "" {
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := s.hasher.Verify(customer.PasswordHash, input.Password)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	return s.startFor(ctx, customer, input.Channel, domain.ChannelWeb)
}

// SessionLogin upserts a passwordless customer profile and starts a session for it
func (s *AuthService) SessionLogin(ctx context.Context, input domain.CustomerLogin) (*AuthResult, error) {
	customer, err := s.customers.Login(ctx, input)
	if err != nil {
		return nil, err
	}
	return s.startFor(ctx, customer, input.Channel, domain.ChannelWeb)
}

// Logout ends the session for token and drops its identity bindings
func (s *AuthService) Logout(ctx context.Context, token string) (*domain.Session, error) {
	return s.sessions.Logout(ctx, token)
}

// QRInit issues a hand-off token for the customer behind an active session
func (s *AuthService) QRInit(ctx context.Context, token string, input domain.QRInit) (*QRGrant, error) {
	if strings.TrimSpace(token) == "" {
		return nil, domain.ErrMissingIdentifier
	}
	session, err := s.sessions.Get(token)
	if err != nil {
		return nil, err
	}
	if !session.IsActive {
		return nil, domain.ErrSessionInactive
	}

	customerID := firstNonEmpty(session.CustomerID, session.UserID)
	if customerID == "" {
		return nil, &domain.FieldError{Action: "qr-init", Field: "customer_id"}
	}

	signed, claims, err := s.qr.Generate(strings.TrimSpace(input.PhoneNumber), customerID)
	if err != nil {
		return nil, err
	}

	log.Info().Str("customer_id", customerID).Msg("QR token issued")
	return &QRGrant{
		QRToken:    signed,
		CustomerID: customerID,
		ExpiresAt:  claims.ExpiresAt.Time,
	}, nil
}

// QRVerify redeems a hand-off token once and starts or merges the session for its phone
func (s *AuthService) QRVerify(ctx context.Context, input domain.QRVerify) (*AuthResult, error) {
	claims, err := s.qr.Validate(strings.TrimSpace(input.QRToken))
	if err != nil {
		log.Debug().Err(err).Msg("QR token rejected")
		return nil, domain.ErrInvalidQRToken
	}

	if s.qrStore != nil {
		fresh, err := s.qrStore.Consume(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
		if err != nil {
			return nil, err
		}
		if !fresh {
			return nil, domain.ErrInvalidQRToken
		}
	}

	customer, err := s.customers.GetByPhone(ctx, claims.Phone)
	if err != nil {
		return nil, err
	}
	if customer == nil {
		customer = &domain.Customer{
			CustomerID:  claims.CustomerID,
			PhoneNumber: claims.Phone,
		}
	}

	return s.startFor(ctx, customer, input.Channel, domain.ChannelKiosk)
}

func (s *AuthService) startFor(ctx context.Context, customer *domain.Customer, channel, fallback domain.Channel) (*AuthResult, error) {
	if channel == "" {
		channel = fallback
	}
	if customer.CustomerID != "" {
		s.identity.Register(ctx, customer.PhoneNumber, customer.CustomerID)
	}

	session, err := s.sessions.Start(ctx, domain.SessionStart{
		Phone:           customer.PhoneNumber,
		Channel:         channel,
		UserID:          customer.CustomerID,
		CustomerID:      customer.CustomerID,
		CustomerProfile: customer.Profile(),
	})
	if err != nil {
		return nil, err
	}

	return &AuthResult{
		SessionToken: session.SessionToken,
		Session:      session,
		Customer:     customer,
	}, nil
}
