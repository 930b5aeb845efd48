// Package supabase mirrors sessions into a Supabase (PostgREST) table.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"
)

// Backend implements domain.DurableSessionBackend over the Supabase REST API
type Backend struct {
	client *supabase.Client
	table  string
}

// New creates a Supabase backend
func New(cfg config.SupabaseConfig) (*Backend, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.ServiceRoleKey == "" {
		return nil, fmt.Errorf("supabase service role key is required")
	}

	table := cfg.Table
	if table == "" {
		table = "sessions"
	}

	client, err := supabase.NewClient(cfg.URL, cfg.ServiceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &Backend{client: client, table: table}, nil
}

// run executes a blocking PostgREST call, giving up when ctx is done.
// The request itself keeps running in the background until it returns.
func run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Save upserts the row keyed by session_token
func (b *Backend) Save(ctx context.Context, record *domain.SessionRecord) error {
	err := run(ctx, func() error {
		_, _, err := b.client.From(b.table).
			Insert(record, true, "session_token", "minimal", "").
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// RestoreByPhone returns the most recently active row for phone
func (b *Backend) RestoreByPhone(ctx context.Context, phone string) (*domain.SessionRecord, error) {
	return b.selectOne(ctx, map[string]string{"phone": phone})
}

// RestoreByToken returns the active row for phone carrying token
func (b *Backend) RestoreByToken(ctx context.Context, phone, token string) (*domain.SessionRecord, error) {
	return b.selectOne(ctx, map[string]string{"phone": phone, "session_token": token})
}

func (b *Backend) selectOne(ctx context.Context, filters map[string]string) (*domain.SessionRecord, error) {
	var rows []domain.SessionRecord
	err := run(ctx, func() error {
		q := b.client.From(b.table).
			Select("*", "", false).
			Eq("status", domain.StatusActive)
		for col, val := range filters {
			q = q.Eq(col, val)
		}
		_, err := q.
			Order("last_activity", &postgrest.OrderOpts{Ascending: false}).
			Limit(1, "").
			ExecuteTo(&rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// RefreshExpiry slides the expiry window of the row for token
func (b *Backend) RefreshExpiry(ctx context.Context, token string, lastActivity, expiresAt time.Time) error {
	return b.patch(ctx, token, map[string]any{
		"last_activity": lastActivity.UTC(),
		"expires_at":    expiresAt.UTC(),
	})
}

// MarkInactive flags the row for token as logged out
func (b *Backend) MarkInactive(ctx context.Context, token string, at time.Time) error {
	return b.patch(ctx, token, map[string]any{
		"status":        domain.StatusLoggedOut,
		"last_activity": at.UTC(),
	})
}

// SyncData replaces the data payload of the row for token
func (b *Backend) SyncData(ctx context.Context, token string, data json.RawMessage, lastActivity time.Time) error {
	return b.patch(ctx, token, map[string]any{
		"data":          data,
		"last_activity": lastActivity.UTC(),
	})
}

func (b *Backend) patch(ctx context.Context, token string, values map[string]any) error {
	err := run(ctx, func() error {
		_, _, err := b.client.From(b.table).
			Update(values, "minimal", "").
			Eq("session_token", token).
			Execute()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	return nil
}
