package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/conversation"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/metrics"
	"github.com/Rrens/omnichannel-session/internal/repository/memory"
	"github.com/Rrens/omnichannel-session/internal/security"
	"github.com/rs/zerolog/log"
)

// Start outcomes
const (
	OutcomeCacheMerge     = "cache_merge"
	OutcomeDurableRestore = "durable_restore"
	OutcomeCreated        = "created"
)

const defaultChannel = domain.ChannelWhatsApp

// SessionOptions tunes expiry, retention and the conversation heuristics
type SessionOptions struct {
	TTL                    time.Duration
	RecentLimit            int
	RecommendedRecentLimit int
	IntentRules            conversation.RuleSet
	Summary                conversation.SummaryOptions
}

// NewSessionOptions builds options from config, keeping built-in tables where config is empty
func NewSessionOptions(cfg config.SessionConfig) SessionOptions {
	opts := SessionOptions{
		TTL:                    cfg.TTL,
		RecentLimit:            cfg.RecentLimit,
		RecommendedRecentLimit: cfg.RecommendedRecentLimit,
		IntentRules:            conversation.DefaultIntentRules(),
		Summary:                conversation.DefaultSummaryOptions(),
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	if len(cfg.IntentRules) > 0 {
		rules := make(conversation.RuleSet, 0, len(cfg.IntentRules))
		for _, r := range cfg.IntentRules {
			rules = append(rules, conversation.Rule{Result: r.Result, Keywords: r.Keywords})
		}
		opts.IntentRules = rules
	}
	if len(cfg.ProductKeywords) > 0 {
		opts.Summary.ProductKeywords = cfg.ProductKeywords
	}
	if cfg.SummaryEvery > 0 {
		opts.Summary.Every = cfg.SummaryEvery
	}
	if cfg.SummaryWindow > 0 {
		opts.Summary.Window = cfg.SummaryWindow
	}
	if cfg.StageWindow > 0 {
		opts.Summary.StageWindow = cfg.StageWindow
	}
	return opts
}

// CustomerDirectory resolves customers for new sessions
type CustomerDirectory interface {
	EnsureByPhone(ctx context.Context, phone string) (*domain.Customer, error)
	UpdateShippingAddress(ctx context.Context, customerID string, address map[string]string) error
}

// SessionService reconciles, restores and mutates sessions.
// The registry is authoritative; the durable backend is a best-effort mirror.
type SessionService struct {
	registry  *memory.Registry
	identity  *memory.IdentityIndex
	durable   *DurableSync
	customers CustomerDirectory
	mutator   *Mutator
	metrics   *metrics.Metrics
	opts      SessionOptions
	now       func() time.Time
}

// NewSessionService creates a new session service; customers may be nil
func NewSessionService(
	registry *memory.Registry,
	identity *memory.IdentityIndex,
	durable *DurableSync,
	customers CustomerDirectory,
	m *metrics.Metrics,
	opts SessionOptions,
) *SessionService {
	return &SessionService{
		registry:  registry,
		identity:  identity,
		durable:   durable,
		customers: customers,
		mutator:   NewMutator(opts),
		metrics:   m,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start finds, restores or creates the session for the given identifiers
func (s *SessionService) Start(ctx context.Context, input domain.SessionStart) (*domain.Session, error) {
	input.Phone = strings.TrimSpace(input.Phone)
	input.TelegramChatID = domain.FlexString(strings.TrimSpace(string(input.TelegramChatID)))
	if input.Phone == "" && input.TelegramChatID == "" {
		return nil, domain.ErrInvalidIdentifier
	}
	if input.Channel == "" {
		input.Channel = defaultChannel
	}
	if input.CustomerID == "" {
		input.CustomerID = profileCustomerID(input.CustomerProfile)
	}

	now := s.now()

	if session, ok := s.mergeCached(ctx, input, now); ok {
		s.metrics.SessionStarted(OutcomeCacheMerge)
		return session, nil
	}

	if input.Phone != "" {
		if restored := s.durable.RestoreByPhone(ctx, input.Phone); restored != nil && restored.IsActive && !restored.ExpiresAt.Before(now) {
			s.merge(restored, input, now)
			s.registry.Put(restored)
			s.bind(ctx, restored)
			s.durable.Save(restored)

			log.Info().
				Str("session_id", restored.SessionID).
				Str("channel", string(input.Channel)).
				Msg("Session restored from durable backend")
			s.metrics.SessionStarted(OutcomeDurableRestore)
			return restored, nil
		}
	}

	session := s.create(ctx, input, now)
	s.metrics.SessionStarted(OutcomeCreated)
	return session, nil
}

// mergeCached merges into the cached session for the phone, then the chat id
func (s *SessionService) mergeCached(ctx context.Context, input domain.SessionStart, now time.Time) (*domain.Session, bool) {
	chatID := string(input.TelegramChatID)
	for _, lookup := range []func() (string, bool){
		func() (string, bool) { return s.identity.TokenForPhone(input.Phone) },
		func() (string, bool) { return s.identity.TokenForChat(chatID) },
	} {
		token, ok := lookup()
		if !ok {
			continue
		}

		session, err := s.registry.Update(token, func(cached *domain.Session) error {
			if cached.ExpiresAt.Before(now) {
				return domain.ErrSessionInactive
			}
			s.merge(cached, input, now)
			return nil
		})
		if err != nil {
			continue
		}

		s.bind(ctx, session)
		s.durable.Save(session)
		log.Debug().
			Str("session_id", session.SessionID).
			Str("channel", string(input.Channel)).
			Msg("Session merged from cache")
		return session, true
	}
	return nil, false
}

// merge folds a start request into an existing session without dropping data
func (s *SessionService) merge(session *domain.Session, input domain.SessionStart, now time.Time) {
	session.Channel = input.Channel
	session.Data.Normalize(input.Channel)
	if !session.Data.HasChannel(input.Channel) {
		session.Data.Channels = append(session.Data.Channels, input.Channel)
	}
	session.IsActive = true
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.opts.TTL)

	if chatID := string(input.TelegramChatID); chatID != "" && session.TelegramChatID != chatID {
		session.TelegramChatID = chatID
	}
	if session.Phone == "" && input.Phone != "" {
		session.Phone = input.Phone
	}
	if input.CustomerProfile != nil {
		session.CustomerProfile = input.CustomerProfile
	}
	if session.CustomerID == "" && input.CustomerID != "" {
		session.CustomerID = input.CustomerID
	}
	if session.UserID == "" {
		session.UserID = firstNonEmpty(input.UserID, session.CustomerID)
	}
}

func (s *SessionService) create(ctx context.Context, input domain.SessionStart, now time.Time) *domain.Session {
	customerID := input.CustomerID
	if customerID == "" && input.Phone != "" {
		customerID = s.resolveCustomer(ctx, input.Phone)
	}

	sessionID := ""
	if input.Phone != "" {
		sessionID, _ = s.identity.SessionIDForPhone(ctx, input.Phone)
	}
	if sessionID == "" {
		sessionID = security.NewSessionID()
	}

	session := &domain.Session{
		SessionID:       sessionID,
		SessionToken:    security.NewSessionToken(),
		Phone:           input.Phone,
		TelegramChatID:  string(input.TelegramChatID),
		Channel:         input.Channel,
		UserID:          firstNonEmpty(input.UserID, customerID),
		CustomerID:      customerID,
		CustomerProfile: input.CustomerProfile,
		Data:            domain.NewSessionData(input.Channel),
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
		ExpiresAt:       now.Add(s.opts.TTL),
	}

	s.registry.Put(session)
	s.bind(ctx, session)
	s.durable.Save(session)

	log.Info().
		Str("session_id", session.SessionID).
		Str("customer_id", customerID).
		Str("channel", string(input.Channel)).
		Msg("Session created")
	return session
}

func (s *SessionService) resolveCustomer(ctx context.Context, phone string) string {
	if id, ok := s.identity.ResolveCustomer(ctx, phone); ok {
		return id
	}
	if s.customers == nil {
		return ""
	}

	customer, err := s.customers.EnsureByPhone(ctx, phone)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to ensure customer for new session")
		return ""
	}
	return customer.CustomerID
}

// bind records the identifiers of session in the identity index
func (s *SessionService) bind(ctx context.Context, session *domain.Session) {
	s.identity.BindToken(session.Phone, session.TelegramChatID, session.SessionToken)
	if session.Phone == "" {
		return
	}
	s.identity.BindSessionID(ctx, session.Phone, session.SessionID)
	if session.CustomerID != "" {
		s.identity.Register(ctx, session.Phone, session.CustomerID)
	}
}

// Restore returns the session for token, or for phone when no token is given.
// A phone supplied with a token is only used as the durable lookup hint.
func (s *SessionService) Restore(ctx context.Context, token, phone string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	phone = strings.TrimSpace(phone)

	switch {
	case token != "":
		if session, ok := s.touch(token); ok {
			return session, nil
		}
		if session := s.restoreDurable(ctx, s.durable.RestoreByToken(ctx, phone, token)); session != nil {
			return session, nil
		}
		return nil, domain.ErrSessionNotFound

	case phone != "":
		if cached, ok := s.identity.TokenForPhone(phone); ok {
			if session, ok := s.touch(cached); ok {
				return session, nil
			}
		}
		if session := s.restoreDurable(ctx, s.durable.RestoreByPhone(ctx, phone)); session != nil {
			return session, nil
		}
		return nil, domain.ErrSessionNotFound

	default:
		return nil, domain.ErrMissingIdentifier
	}
}

// touch slides the expiry of a cached session
func (s *SessionService) touch(token string) (*domain.Session, bool) {
	now := s.now()
	session, err := s.registry.Update(token, func(cached *domain.Session) error {
		cached.UpdatedAt = now
		cached.ExpiresAt = now.Add(s.opts.TTL)
		return nil
	})
	if err != nil {
		return nil, false
	}
	s.durable.RefreshExpiry(session)
	return session, true
}

func (s *SessionService) restoreDurable(ctx context.Context, session *domain.Session) *domain.Session {
	now := s.now()
	if session == nil || !session.IsActive || session.ExpiresAt.Before(now) {
		return nil
	}

	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.opts.TTL)
	s.registry.Put(session)
	s.bind(ctx, session)
	s.durable.RefreshExpiry(session)

	log.Info().Str("session_id", session.SessionID).Msg("Session reloaded from durable backend")
	return session
}

// Update applies one mutator action to the session for token
func (s *SessionService) Update(ctx context.Context, token, action string, payload map[string]any) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrMissingIdentifier
	}
	if payload == nil {
		payload = map[string]any{}
	}

	var mutation Mutation
	now := s.now()
	session, err := s.registry.Update(token, func(cached *domain.Session) error {
		var err error
		mutation, err = s.mutator.Apply(cached, action, payload, now)
		return err
	})
	if err != nil {
		s.metrics.SessionUpdated(action, false)
		return nil, err
	}
	s.metrics.SessionUpdated(action, true)

	s.durable.SyncData(session)
	if mutation.ShippingAddress != nil {
		s.syncShippingAddress(session.CustomerID, mutation.ShippingAddress)
	}
	return session, nil
}

func (s *SessionService) syncShippingAddress(customerID string, address map[string]string) {
	if s.customers == nil || customerID == "" {
		return
	}
	s.durable.submit(customerID, "shipping_address", func(ctx context.Context) error {
		return s.customers.UpdateShippingAddress(ctx, customerID, address)
	})
}

// End marks the session inactive. It stays restorable through Start.
func (s *SessionService) End(ctx context.Context, token string) (*domain.Session, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, domain.ErrMissingIdentifier
	}

	now := s.now()
	session, err := s.registry.Update(token, func(cached *domain.Session) error {
		cached.IsActive = false
		cached.UpdatedAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.durable.MarkInactive(session)
	log.Info().Str("session_id", session.SessionID).Msg("Session ended")
	return session, nil
}

// Logout ends the session and drops the phone and chat bindings to its token
func (s *SessionService) Logout(ctx context.Context, token string) (*domain.Session, error) {
	session, err := s.End(ctx, token)
	if err != nil {
		return nil, err
	}
	s.identity.Unbind(session.Phone, session.TelegramChatID, session.SessionToken)
	return session, nil
}

// Get returns the cached session for token without touching it
func (s *SessionService) Get(token string) (*domain.Session, error) {
	session, ok := s.registry.Get(token)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// GetBySessionID returns the cached session carrying sessionID
func (s *SessionService) GetBySessionID(sessionID string) (*domain.Session, error) {
	session, ok := s.registry.FindBySessionID(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	return session, nil
}

// SetSummary overwrites the conversation summary and slides the expiry
func (s *SessionService) SetSummary(ctx context.Context, sessionID, summary string) (*domain.Session, error) {
	cached, ok := s.registry.FindBySessionID(sessionID)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}

	now := s.now()
	session, err := s.registry.Update(cached.SessionToken, func(current *domain.Session) error {
		current.Data.ConversationSummary = summary
		current.UpdatedAt = now
		current.ExpiresAt = now.Add(s.opts.TTL)
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.durable.SyncData(session)
	s.durable.RefreshExpiry(session)
	return session, nil
}

// Count returns the number of cached sessions
func (s *SessionService) Count() int {
	return s.registry.Len()
}

func profileCustomerID(profile map[string]any) string {
	if profile == nil {
		return ""
	}
	switch v := profile["customer_id"].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
