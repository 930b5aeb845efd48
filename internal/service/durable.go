package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/metrics"
	"github.com/rs/zerolog/log"
)

var errQueueFull = errors.New("durable sync queue full")

type syncJob struct {
	op  string
	fn  func(ctx context.Context) error
	ack chan struct{}
}

// DurableSync makes every durable backend call best-effort.
// Writes run on background workers sharded by session token, so writes for one
// session apply in order and never block the caller. Failures are logged and counted.
type DurableSync struct {
	backend domain.DurableSessionBackend
	timeout time.Duration
	metrics *metrics.Metrics

	mu     sync.RWMutex
	closed bool
	queues []chan syncJob
	wg     sync.WaitGroup
}

// NewDurableSync starts the sync workers. A nil backend disables durable mirroring.
func NewDurableSync(backend domain.DurableSessionBackend, cfg config.DurableConfig, m *metrics.Metrics) *DurableSync {
	workers := cfg.Workers
	if workers <= 0 {
		workers = 1
	}
	queueSize := cfg.QueueSize
	if queueSize <= 0 {
		queueSize = 64
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	d := &DurableSync{
		backend: backend,
		timeout: timeout,
		metrics: m,
		queues:  make([]chan syncJob, workers),
	}
	for i := range d.queues {
		d.queues[i] = make(chan syncJob, queueSize)
		d.wg.Add(1)
		go d.work(d.queues[i])
	}
	return d
}

// Enabled reports whether a durable backend is configured
func (d *DurableSync) Enabled() bool {
	return d.backend != nil
}

func (d *DurableSync) work(queue chan syncJob) {
	defer d.wg.Done()
	for job := range queue {
		if job.ack != nil {
			close(job.ack)
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		if err := job.fn(ctx); err != nil {
			d.fail(job.op, err)
		}
		cancel()
	}
}

func (d *DurableSync) fail(op string, err error) {
	err = fmt.Errorf("%w: %s: %v", domain.ErrDurableSync, op, err)
	log.Warn().Err(err).Str("op", op).Msg("Durable session sync failed")
	d.metrics.DurableFailure(op)
}

func (d *DurableSync) shard(token string) chan syncJob {
	h := fnv.New32a()
	h.Write([]byte(token))
	return d.queues[h.Sum32()%uint32(len(d.queues))]
}

func (d *DurableSync) enqueue(token, op string, fn func(ctx context.Context) error) {
	if d.backend == nil {
		return
	}
	d.submit(token, op, fn)
}

// submit queues fn on the worker owning key, whether or not a backend is configured
func (d *DurableSync) submit(key, op string, fn func(ctx context.Context) error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.fail(op, errors.New("durable sync stopped"))
		return
	}

	select {
	case d.shard(key) <- syncJob{op: op, fn: fn}:
	default:
		d.fail(op, errQueueFull)
	}
}

// Save mirrors the full session row
func (d *DurableSync) Save(s *domain.Session) {
	record, err := s.ToRecord()
	if err != nil {
		d.fail("save", err)
		return
	}
	d.enqueue(s.SessionToken, "save", func(ctx context.Context) error {
		return d.backend.Save(ctx, record)
	})
}

// SyncData mirrors the data payload and last activity of a session
func (d *DurableSync) SyncData(s *domain.Session) {
	data, err := json.Marshal(s.Data)
	if err != nil {
		d.fail("sync_data", err)
		return
	}
	token, at := s.SessionToken, s.UpdatedAt
	d.enqueue(token, "sync_data", func(ctx context.Context) error {
		return d.backend.SyncData(ctx, token, data, at)
	})
}

// RefreshExpiry pushes the sliding expiry of a session
func (d *DurableSync) RefreshExpiry(s *domain.Session) {
	token, at, expires := s.SessionToken, s.UpdatedAt, s.ExpiresAt
	d.enqueue(token, "refresh_expiry", func(ctx context.Context) error {
		return d.backend.RefreshExpiry(ctx, token, at, expires)
	})
}

// MarkInactive flags a session row as logged out
func (d *DurableSync) MarkInactive(s *domain.Session) {
	token, at := s.SessionToken, s.UpdatedAt
	d.enqueue(token, "mark_inactive", func(ctx context.Context) error {
		return d.backend.MarkInactive(ctx, token, at)
	})
}

// RestoreByPhone returns the newest active row for phone, or nil on miss or failure
func (d *DurableSync) RestoreByPhone(ctx context.Context, phone string) *domain.Session {
	if d.backend == nil || phone == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	record, err := d.backend.RestoreByPhone(ctx, phone)
	return d.restored("restore_by_phone", record, err)
}

// RestoreByToken returns the active row matching phone and token, or nil on miss or failure
func (d *DurableSync) RestoreByToken(ctx context.Context, phone, token string) *domain.Session {
	if d.backend == nil || phone == "" || token == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	record, err := d.backend.RestoreByToken(ctx, phone, token)
	return d.restored("restore_by_token", record, err)
}

func (d *DurableSync) restored(op string, record *domain.SessionRecord, err error) *domain.Session {
	if err != nil {
		d.fail(op, err)
		return nil
	}
	if record == nil {
		return nil
	}
	s, err := record.ToSession()
	if err != nil {
		d.fail(op, err)
		return nil
	}
	return s
}

// Flush blocks until every write queued before the call has been applied
func (d *DurableSync) Flush(ctx context.Context) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return nil
	}
	acks := make([]chan struct{}, 0, len(d.queues))
	for _, q := range d.queues {
		ack := make(chan struct{})
		select {
		case q <- syncJob{op: "flush", ack: ack}:
			acks = append(acks, ack)
		case <-ctx.Done():
			d.mu.RUnlock()
			return ctx.Err()
		}
	}
	d.mu.RUnlock()

	for _, ack := range acks {
		select {
		case <-ack:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Close stops accepting writes and waits for queued ones to drain or ctx to expire
func (d *DurableSync) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		for _, q := range d.queues {
			close(q)
		}
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("pending durable syncs not drained: %w", ctx.Err())
	}
}
