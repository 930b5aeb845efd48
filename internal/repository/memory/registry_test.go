package memory

import (
	"errors"
	"sync"
	"testing"

	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSession(token, id string) *domain.Session {
	return &domain.Session{
		SessionID:    id,
		SessionToken: token,
		Phone:        "9990001111",
		Channel:      domain.ChannelWeb,
		Data:         domain.NewSessionData(domain.ChannelWeb),
		IsActive:     true,
	}
}

func TestRegistry_PutGetReturnsCopies(t *testing.T) {
	reg := NewRegistry()
	s := newSession("tok", "sid")
	reg.Put(s)

	s.Data.Cart = append(s.Data.Cart, "mutated after put")

	got, ok := reg.Get("tok")
	require.True(t, ok)
	assert.Empty(t, got.Data.Cart)

	got.Data.Cart = append(got.Data.Cart, "mutated after get")
	again, _ := reg.Get("tok")
	assert.Empty(t, again.Data.Cart)

	_, ok = reg.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_Update(t *testing.T) {
	reg := NewRegistry()
	reg.Put(newSession("tok", "sid"))

	updated, err := reg.Update("tok", func(s *domain.Session) error {
		s.Data.Cart = append(s.Data.Cart, "SKU123")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []any{"SKU123"}, updated.Data.Cart)

	boom := errors.New("boom")
	_, err = reg.Update("tok", func(s *domain.Session) error {
		s.Data.Cart = append(s.Data.Cart, "discarded")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _ := reg.Get("tok")
	assert.Equal(t, []any{"SKU123"}, got.Data.Cart)

	_, err = reg.Update("missing", func(*domain.Session) error { return nil })
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestRegistry_UpdateIsAtomic(t *testing.T) {
	reg := NewRegistry()
	reg.Put(newSession("tok", "sid"))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = reg.Update("tok", func(s *domain.Session) error {
				s.Data.Cart = append(s.Data.Cart, "item")
				return nil
			})
		}()
	}
	wg.Wait()

	got, _ := reg.Get("tok")
	assert.Len(t, got.Data.Cart, 50)
}

func TestRegistry_FindBySessionID(t *testing.T) {
	reg := NewRegistry()
	reg.Put(newSession("old", "sid"))
	reg.Put(newSession("new", "sid"))

	got, ok := reg.FindBySessionID("sid")
	require.True(t, ok)
	assert.Equal(t, "new", got.SessionToken)

	_, ok = reg.FindBySessionID("other")
	assert.False(t, ok)
}
