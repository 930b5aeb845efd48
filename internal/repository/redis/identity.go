package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	identityCustomerPrefix = "identity:customer:"
	identitySessionPrefix  = "identity:session:"
)

// IdentityMirror keeps phone → customer_id and phone → session_id bindings in Redis
// so the per-phone session id survives a process restart.
type IdentityMirror struct {
	client *Client
	ttl    time.Duration
}

// NewIdentityMirror creates a mirror; ttl 0 keeps keys forever
func NewIdentityMirror(client *Client, ttl time.Duration) *IdentityMirror {
	return &IdentityMirror{client: client, ttl: ttl}
}

// SetCustomer stores the customer id for phone
func (m *IdentityMirror) SetCustomer(ctx context.Context, phone, customerID string) error {
	return m.set(ctx, identityCustomerPrefix+phone, customerID)
}

// GetCustomer returns the customer id for phone, or "" on miss
func (m *IdentityMirror) GetCustomer(ctx context.Context, phone string) (string, error) {
	return m.get(ctx, identityCustomerPrefix+phone)
}

// SetSessionID stores the session id for phone
func (m *IdentityMirror) SetSessionID(ctx context.Context, phone, sessionID string) error {
	return m.set(ctx, identitySessionPrefix+phone, sessionID)
}

// GetSessionID returns the session id for phone, or "" on miss
func (m *IdentityMirror) GetSessionID(ctx context.Context, phone string) (string, error) {
	return m.get(ctx, identitySessionPrefix+phone)
}

func (m *IdentityMirror) set(ctx context.Context, key, value string) error {
	if err := m.client.rdb.Set(ctx, key, value, m.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (m *IdentityMirror) get(ctx context.Context, key string) (string, error) {
	val, err := m.client.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %s: %w", key, err)
	}
	return val, nil
}
