package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Rrens/omnichannel-session/internal/api"
	"github.com/Rrens/omnichannel-session/internal/api/handler"
	"github.com/Rrens/omnichannel-session/internal/config"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/metrics"
	"github.com/Rrens/omnichannel-session/internal/repository/memory"
	"github.com/Rrens/omnichannel-session/internal/repository/redis"
	"github.com/Rrens/omnichannel-session/internal/security"
	"github.com/Rrens/omnichannel-session/internal/service"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// customerStore is an in-memory CustomerRepository
type customerStore struct {
	mu     sync.Mutex
	nextID int
	byID   map[string]*domain.Customer
}

func newCustomerStore() *customerStore {
	return &customerStore{nextID: 10001, byID: map[string]*domain.Customer{}}
}

func (s *customerStore) GetByPhone(_ context.Context, phone string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.byID {
		if c.PhoneNumber == phone {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *customerStore) GetByID(_ context.Context, id string) (*domain.Customer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.byID[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, nil
}

func (s *customerStore) Create(_ context.Context, c *domain.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.CustomerID == "" {
		c.CustomerID = fmt.Sprint(s.nextID)
		s.nextID++
	}
	cp := *c
	s.byID[c.CustomerID] = &cp
	return nil
}

func (s *customerStore) Upsert(ctx context.Context, c *domain.Customer) error {
	existing, _ := s.GetByPhone(ctx, c.PhoneNumber)
	if existing != nil {
		c.CustomerID = existing.CustomerID
	}
	return s.Create(ctx, c)
}

func (s *customerStore) UpdateShippingAddress(_ context.Context, id string, address map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byID[id]
	if !ok {
		return errors.New("customer not found")
	}
	c.ShippingAddress = address
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

type testServer struct {
	handler  http.Handler
	sessions *service.SessionService
}

func newTestServer(t *testing.T, ready map[string]handler.Pinger) *testServer {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	rdb := redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { rdb.Close() })

	cfg := &config.Config{
		Server:  config.ServerConfig{MiddlewareTimeout: 10 * time.Second},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}

	m := metrics.New()
	identity := memory.NewIdentityIndex(nil)
	durable := service.NewDurableSync(nil, config.DurableConfig{}, m)
	customers := service.NewCustomerService(newCustomerStore(), identity)
	sessions := service.NewSessionService(
		memory.NewRegistry(),
		identity,
		durable,
		customers,
		m,
		service.NewSessionOptions(config.SessionConfig{RecentLimit: 50, RecommendedRecentLimit: 10}),
	)
	auth := service.NewAuthService(
		customers,
		identity,
		sessions,
		security.NewPasswordHasher(bcrypt.MinCost),
		security.NewQRManager("test-secret", time.Minute),
		redis.NewQRTokenStore(rdb),
		6,
	)

	return &testServer{
		handler: api.NewRouter(cfg, api.Dependencies{
			Sessions: sessions,
			Auth:     auth,
			Metrics:  m,
			Ready:    ready,
		}),
		sessions: sessions,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func sessionOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	session, ok := body["session"].(map[string]any)
	require.True(t, ok, "expected session object in %v", body)
	return session
}

func dataOf(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := sessionOf(t, body)["data"].(map[string]any)
	require.True(t, ok)
	return data
}

func tokenHeader(token any) map[string]string {
	return map[string]string{handler.HeaderSessionToken: token.(string)}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, float64(0), body["sessions"])
}

func TestReadyCheck(t *testing.T) {
	srv := newTestServer(t, map[string]handler.Pinger{"database": pinger{}})
	rec, _ := srv.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	srv = newTestServer(t, map[string]handler.Pinger{"redis": pinger{err: errors.New("down")}})
	rec, body := srv.do(t, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, false, body["success"])
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil)
	srv.do(t, http.MethodGet, "/health", nil, nil)

	rec, _ := srv.do(t, http.MethodGet, "/metrics", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "omnichannel_http_request_duration_seconds")
}

func TestSessionFlow_CartSurvivesChannelSwitch(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, started := srv.do(t, http.MethodPost, "/session/start", map[string]any{
		"phone": "9990001111", "channel": "whatsapp",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sessionID := sessionOf(t, started)["session_id"]
	assert.NotEmpty(t, sessionID)
	assert.Equal(t, []any{}, dataOf(t, started)["cart"])

	rec, updated := srv.do(t, http.MethodPost, "/session/update", map[string]any{
		"action": "add_to_cart", "payload": map[string]any{"item": "SKU123"},
	}, tokenHeader(started["session_token"]))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"SKU123"}, dataOf(t, updated)["cart"])

	rec, again := srv.do(t, http.MethodPost, "/session/start", map[string]any{
		"phone": "9990001111", "channel": "kiosk",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sessionID, sessionOf(t, again)["session_id"])
	assert.Equal(t, "kiosk", sessionOf(t, again)["channel"])
	assert.Equal(t, []any{"SKU123"}, dataOf(t, again)["cart"])
	assert.Equal(t, []any{"whatsapp", "kiosk"}, dataOf(t, again)["channels"])
}

func TestSessionStart_Validation(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodPost, "/session/start", map[string]any{"channel": "web"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "InvalidIdentifierError", body["kind"])

	rec, _ = srv.do(t, http.MethodPost, "/session/start", map[string]any{"phone": "1", "channel": "fax"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionStart_NumericTelegramChatID(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodPost, "/session/start", map[string]any{
		"telegram_chat_id": 424242, "channel": "telegram",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "424242", sessionOf(t, body)["telegram_chat_id"])
}

func TestSessionUpdate_Errors(t *testing.T) {
	srv := newTestServer(t, nil)
	_, started := srv.do(t, http.MethodPost, "/session/start", map[string]any{"phone": "9990002222"}, nil)
	headers := tokenHeader(started["session_token"])

	rec, body := srv.do(t, http.MethodPost, "/session/update", map[string]any{"action": "foo"}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "UnsupportedActionError", body["kind"])

	rec, body = srv.do(t, http.MethodPost, "/session/update", map[string]any{
		"action": "add_to_cart", "payload": map[string]any{},
	}, headers)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MissingFieldError", body["kind"])

	rec, _ = srv.do(t, http.MethodPost, "/session/update", map[string]any{"action": "add_to_cart"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = srv.do(t, http.MethodPost, "/session/update", map[string]any{
		"action": "add_to_cart", "payload": map[string]any{"item": "X"},
	}, map[string]string{handler.HeaderSessionToken: "unknown"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "SessionNotFoundError", body["kind"])

	// Rejected updates leave the cart untouched
	sessionID := sessionOf(t, started)["session_id"].(string)
	rec, cart := srv.do(t, http.MethodGet, "/session/"+sessionID+"/cart", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{}, cart["cart"])
	assert.Equal(t, float64(0), cart["cart_size"])
}

func TestSessionRestore(t *testing.T) {
	srv := newTestServer(t, nil)
	_, started := srv.do(t, http.MethodPost, "/session/start", map[string]any{"phone": "9990003333"}, nil)

	rec, body := srv.do(t, http.MethodGet, "/session/restore", nil, tokenHeader(started["session_token"]))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, started["session_token"], body["session_token"])

	rec, body = srv.do(t, http.MethodGet, "/session/restore", nil, map[string]string{handler.HeaderPhone: "9990003333"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, started["session_token"], body["session_token"])

	rec, _ = srv.do(t, http.MethodGet, "/session/restore", nil, map[string]string{handler.HeaderSessionToken: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = srv.do(t, http.MethodGet, "/session/restore", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MissingIdentifierError", body["kind"])
}

func TestSessionEnd(t *testing.T) {
	srv := newTestServer(t, nil)
	_, started := srv.do(t, http.MethodPost, "/session/start", map[string]any{"phone": "9990004444"}, nil)

	rec, body := srv.do(t, http.MethodPost, "/session/end", nil, tokenHeader(started["session_token"]))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sessionOf(t, started)["session_id"], body["session_id"])
	assert.Equal(t, "9990004444", body["phone"])
	assert.NotEmpty(t, body["message"])

	rec, _ = srv.do(t, http.MethodPost, "/session/end", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSessionAgentMemory(t *testing.T) {
	srv := newTestServer(t, nil)
	_, started := srv.do(t, http.MethodPost, "/session/start", map[string]any{"phone": "9990005555"}, nil)
	headers := tokenHeader(started["session_token"])
	sessionID := sessionOf(t, started)["session_id"].(string)

	srv.do(t, http.MethodPost, "/session/update", map[string]any{
		"action":  "chat_message",
		"payload": map[string]any{"sender": "user", "message": "show me running shoes"},
	}, headers)
	srv.do(t, http.MethodPost, "/session/update", map[string]any{
		"action": "chat_message",
		"payload": map[string]any{
			"sender":   "agent",
			"message":  "here are two options",
			"metadata": map[string]any{"cards": []any{map[string]any{"sku": "A1"}, map[string]any{"product_id": "B2"}}},
		},
	}, headers)

	rec, ctx := srv.do(t, http.MethodGet, "/session/"+sessionID+"/context", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, ctx["chat_context"], 2)
	assert.Equal(t, "9990005555", ctx["phone"])

	rec, recs := srv.do(t, http.MethodGet, "/session/"+sessionID+"/recommendations", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"A1", "B2"}, recs["last_recommended_skus"])
	assert.Equal(t, float64(2), recs["total_recommendations"])

	rec, _ = srv.do(t, http.MethodPost, "/session/"+sessionID+"/summary", map[string]any{"summary": "wants trail runners"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, summary := srv.do(t, http.MethodGet, "/session/"+sessionID+"/summary", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "wants trail runners", summary["summary"])
	assert.Equal(t, float64(2), summary["total_messages"])

	rec, _ = srv.do(t, http.MethodGet, "/session/missing/cart", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAuthFlow_SignupLoginLogout(t *testing.T) {
	srv := newTestServer(t, nil)
	signup := map[string]any{"name": "Dina", "phone_number": "9990006666", "password": "secret1"}

	rec, body := srv.do(t, http.MethodPost, "/auth/signup", signup, nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotEmpty(t, body["session_token"])
	assert.Equal(t, "web", sessionOf(t, body)["channel"])

	rec, body = srv.do(t, http.MethodPost, "/auth/signup", signup, nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "PhoneTakenError", body["kind"])

	rec, _ = srv.do(t, http.MethodPost, "/auth/signup", map[string]any{
		"name": "Eko", "phone_number": "9990007777", "password": "123",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = srv.do(t, http.MethodPost, "/auth/login", map[string]any{
		"phone_number": "9990006666", "password": "wrong-password",
	}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, login := srv.do(t, http.MethodPost, "/auth/login", map[string]any{
		"phone_number": "9990006666", "password": "secret1",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, body = srv.do(t, http.MethodPost, "/auth/logout", nil, tokenHeader(login["session_token"]))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sessionOf(t, login)["session_id"], body["session_id"])

	rec, _ = srv.do(t, http.MethodPost, "/auth/logout", nil, map[string]string{handler.HeaderSessionToken: "nope"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSessionLogin(t *testing.T) {
	srv := newTestServer(t, nil)

	rec, body := srv.do(t, http.MethodPost, "/session/login", map[string]any{
		"name": "Fitri", "phone_number": "9990008888", "city": "Bandung",
	}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	customer, ok := body["customer"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Fitri", customer["name"])
	profile, ok := sessionOf(t, body)["customer_profile"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Bandung", profile["city"])

	rec, _ = srv.do(t, http.MethodPost, "/session/login", map[string]any{"phone_number": "9990008888"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAuthFlow_QRHandOff(t *testing.T) {
	srv := newTestServer(t, nil)

	_, web := srv.do(t, http.MethodPost, "/auth/signup", map[string]any{
		"name": "Gita", "phone_number": "9990009999", "password": "secret1",
	}, nil)

	rec, grant := srv.do(t, http.MethodPost, "/auth/qr-init", map[string]any{"phone_number": "9990009999"},
		tokenHeader(web["session_token"]))
	require.Equal(t, http.StatusOK, rec.Code)
	qrToken := grant["qr_token"]
	require.NotEmpty(t, qrToken)

	rec, kiosk := srv.do(t, http.MethodPost, "/auth/qr-verify", map[string]any{"qr_token": qrToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, sessionOf(t, web)["session_id"], sessionOf(t, kiosk)["session_id"])
	assert.Equal(t, "kiosk", sessionOf(t, kiosk)["channel"])

	rec, body := srv.do(t, http.MethodPost, "/auth/qr-verify", map[string]any{"qr_token": qrToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "InvalidQRTokenError", body["kind"])
}
