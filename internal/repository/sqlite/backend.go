// Package sqlite mirrors sessions into an embedded SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/Rrens/omnichannel-session/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
	session_id       TEXT NOT NULL,
	session_token    TEXT PRIMARY KEY,
	phone            TEXT,
	telegram_chat_id TEXT,
	customer_id      TEXT,
	user_id          TEXT,
	channel          TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'active',
	data             TEXT NOT NULL DEFAULT '{}',
	created_at       INTEGER NOT NULL,
	last_activity    INTEGER NOT NULL,
	expires_at       INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_phone_status ON sessions (phone, status, last_activity);
`

const columns = `session_id, session_token, phone, telegram_chat_id, customer_id, user_id,
	channel, status, data, created_at, last_activity, expires_at`

// Backend implements domain.DurableSessionBackend over SQLite
type Backend struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite file at path and ensures the schema
func Open(ctx context.Context, path string) (*Backend, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sessions table: %w", err)
	}

	return &Backend{db: db}, nil
}

// Close closes the database
func (b *Backend) Close() error {
	return b.db.Close()
}

// Save upserts the row keyed by session_token
func (b *Backend) Save(ctx context.Context, r *domain.SessionRecord) error {
	data := r.Data
	if len(data) == 0 {
		data = json.RawMessage(`{}`)
	}

	query := `
		INSERT INTO sessions (` + columns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_token) DO UPDATE SET
			session_id = excluded.session_id,
			phone = excluded.phone,
			telegram_chat_id = excluded.telegram_chat_id,
			customer_id = excluded.customer_id,
			user_id = excluded.user_id,
			channel = excluded.channel,
			status = excluded.status,
			data = excluded.data,
			last_activity = excluded.last_activity,
			expires_at = excluded.expires_at
	`
	_, err := b.db.ExecContext(ctx, query,
		r.SessionID,
		r.SessionToken,
		nullable(r.Phone),
		nullable(r.TelegramChatID),
		nullable(r.CustomerID),
		nullable(r.UserID),
		string(r.Channel),
		r.Status,
		string(data),
		r.CreatedAt.UnixMilli(),
		r.LastActivity.UnixMilli(),
		r.ExpiresAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// RestoreByPhone returns the most recently active row for phone
func (b *Backend) RestoreByPhone(ctx context.Context, phone string) (*domain.SessionRecord, error) {
	query := `SELECT ` + columns + ` FROM sessions
		WHERE phone = ? AND status = ?
		ORDER BY last_activity DESC
		LIMIT 1`
	return b.scanOne(b.db.QueryRowContext(ctx, query, phone, domain.StatusActive))
}

// RestoreByToken returns the active row for phone carrying token
func (b *Backend) RestoreByToken(ctx context.Context, phone, token string) (*domain.SessionRecord, error) {
	query := `SELECT ` + columns + ` FROM sessions
		WHERE phone = ? AND session_token = ? AND status = ?
		LIMIT 1`
	return b.scanOne(b.db.QueryRowContext(ctx, query, phone, token, domain.StatusActive))
}

func (b *Backend) scanOne(row *sql.Row) (*domain.SessionRecord, error) {
	var (
		r                               domain.SessionRecord
		phone, chatID, customer, userID sql.NullString
		channel, data                   string
		created, lastActivity, expires  int64
	)
	err := row.Scan(
		&r.SessionID,
		&r.SessionToken,
		&phone,
		&chatID,
		&customer,
		&userID,
		&channel,
		&r.Status,
		&data,
		&created,
		&lastActivity,
		&expires,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}

	r.Phone = phone.String
	r.TelegramChatID = chatID.String
	r.CustomerID = customer.String
	r.UserID = userID.String
	r.Channel = domain.Channel(channel)
	r.Data = json.RawMessage(data)
	r.CreatedAt = time.UnixMilli(created).UTC()
	r.LastActivity = time.UnixMilli(lastActivity).UTC()
	r.ExpiresAt = time.UnixMilli(expires).UTC()
	return &r, nil
}

// RefreshExpiry slides the expiry window of the row for token
func (b *Backend) RefreshExpiry(ctx context.Context, token string, lastActivity, expiresAt time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE sessions SET last_activity = ?, expires_at = ? WHERE session_token = ?`,
		lastActivity.UnixMilli(), expiresAt.UnixMilli(), token,
	)
	if err != nil {
		return fmt.Errorf("failed to refresh session expiry: %w", err)
	}
	return nil
}

// MarkInactive flags the row for token as logged out
func (b *Backend) MarkInactive(ctx context.Context, token string, at time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE sessions SET status = ?, last_activity = ? WHERE session_token = ?`,
		domain.StatusLoggedOut, at.UnixMilli(), token,
	)
	if err != nil {
		return fmt.Errorf("failed to mark session inactive: %w", err)
	}
	return nil
}

// SyncData replaces the data payload of the row for token
func (b *Backend) SyncData(ctx context.Context, token string, data json.RawMessage, lastActivity time.Time) error {
	_, err := b.db.ExecContext(ctx,
		`UPDATE sessions SET data = ?, last_activity = ? WHERE session_token = ?`,
		string(data), lastActivity.UnixMilli(), token,
	)
	if err != nil {
		return fmt.Errorf("failed to sync session data: %w", err)
	}
	return nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
