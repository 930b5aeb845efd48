package redis

import (
	"context"
	"fmt"
	"time"
)

const qrUsedPrefix = "qr:used:"

// QRTokenStore marks QR hand-off tokens as consumed so each can be redeemed once
type QRTokenStore struct {
	client *Client
}

// NewQRTokenStore creates a new QR token store
func NewQRTokenStore(client *Client) *QRTokenStore {
	return &QRTokenStore{client: client}
}

// Consume records tokenID as used until ttl elapses. It returns false when the id was already consumed.
func (s *QRTokenStore) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	ok, err := s.client.rdb.SetNX(ctx, qrUsedPrefix+tokenID, 1, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to consume qr token: %w", err)
	}
	return ok, nil
}
