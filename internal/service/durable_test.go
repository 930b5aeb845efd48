package service

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/metrics"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blockingBackend holds every write until release is closed
type blockingBackend struct {
	failingBackend
	release chan struct{}
}

func (b blockingBackend) Save(ctx context.Context, _ *domain.SessionRecord) error {
	select {
	case <-b.release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (b blockingBackend) SyncData(context.Context, string, json.RawMessage, time.Time) error {
	return nil
}

func TestDurableSync_CloseDrainsQueuedWrites(t *testing.T) {
	backend := openBackend(t)
	d := NewDurableSync(backend, config.DurableConfig{Timeout: time.Second, Workers: 2, QueueSize: 16}, nil)

	now := time.Now()
	s := &domain.Session{
		SessionID:    "sid",
		SessionToken: "tok",
		Phone:        "9990001111",
		Channel:      domain.ChannelWeb,
		Data:         domain.NewSessionData(domain.ChannelWeb),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
		ExpiresAt:    now.Add(time.Hour),
	}
	d.Save(s)
	s.Data.Cart = append(s.Data.Cart, "SKU1")
	d.SyncData(s)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	record, err := backend.RestoreByPhone(context.Background(), "9990001111")
	require.NoError(t, err)
	require.NotNil(t, record)
	restored, err := record.ToSession()
	require.NoError(t, err)
	assert.Equal(t, []any{"SKU1"}, restored.Data.Cart)

	d.Save(s)
	assert.Nil(t, d.RestoreByPhone(context.Background(), ""))
}

func TestDurableSync_QueueFullIsCounted(t *testing.T) {
	m := metrics.New()
	release := make(chan struct{})
	d := NewDurableSync(blockingBackend{release: release}, config.DurableConfig{Timeout: 5 * time.Second, Workers: 1, QueueSize: 1}, m)

	s := &domain.Session{SessionToken: "tok", Data: domain.NewSessionData(domain.ChannelWeb)}
	for i := 0; i < 5; i++ {
		d.Save(s)
	}
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))

	count, err := testutil.GatherAndCount(m.Registry(), "omnichannel_durable_failures_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDurableSync_RestoreSwallowsErrors(t *testing.T) {
	d := NewDurableSync(failingBackend{}, config.DurableConfig{Timeout: time.Second}, nil)
	t.Cleanup(func() { d.Close(context.Background()) })

	assert.True(t, d.Enabled())
	assert.Nil(t, d.RestoreByPhone(context.Background(), "9990001111"))
	assert.Nil(t, d.RestoreByToken(context.Background(), "9990001111", "tok"))
}

func TestDurableSync_Disabled(t *testing.T) {
	d := NewDurableSync(nil, config.DurableConfig{}, nil)
	t.Cleanup(func() { d.Close(context.Background()) })

	assert.False(t, d.Enabled())
	d.Save(&domain.Session{SessionToken: "tok"})
	assert.Nil(t, d.RestoreByPhone(context.Background(), "9990001111"))
	require.NoError(t, d.Flush(context.Background()))
}
