package memory

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"unicode"

	"github.com/rs/zerolog/log"
)

// Mirror persists the phone bindings that must survive a restart.
// Lookups return "" when nothing is stored.
type Mirror interface {
	SetCustomer(ctx context.Context, phone, customerID string) error
	GetCustomer(ctx context.Context, phone string) (string, error)
	SetSessionID(ctx context.Context, phone, sessionID string) error
	GetSessionID(ctx context.Context, phone string) (string, error)
}

// IdentityIndex maps phones and telegram chat ids to customer ids, session ids and tokens.
// Phone keys are stored both verbatim and as digits only.
type IdentityIndex struct {
	mu          sync.RWMutex
	customers   map[string]string
	sessionIDs  map[string]string
	phoneTokens map[string]string
	chatTokens  map[string]string
	chatPhones  map[string]string
	mirror      Mirror
}

// NewIdentityIndex creates an index; mirror may be nil
func NewIdentityIndex(mirror Mirror) *IdentityIndex {
	return &IdentityIndex{
		customers:   make(map[string]string),
		sessionIDs:  make(map[string]string),
		phoneTokens: make(map[string]string),
		chatTokens:  make(map[string]string),
		chatPhones:  make(map[string]string),
		mirror:      mirror,
	}
}

// NormalizePhone strips everything but digits
func NormalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

func phoneKeys(phone string) []string {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil
	}
	keys := []string{phone}
	if digits := NormalizePhone(phone); digits != "" && digits != phone {
		keys = append(keys, digits)
	}
	return keys
}

func lookup(m map[string]string, phone string) (string, bool) {
	for _, k := range phoneKeys(phone) {
		if v, ok := m[k]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Register links phone to customerID. It is idempotent.
func (x *IdentityIndex) Register(ctx context.Context, phone, customerID string) {
	keys := phoneKeys(phone)
	if len(keys) == 0 || customerID == "" {
		return
	}

	x.mu.Lock()
	for _, k := range keys {
		x.customers[k] = customerID
	}
	x.mu.Unlock()

	if x.mirror != nil {
		if err := x.mirror.SetCustomer(ctx, NormalizePhone(phone), customerID); err != nil {
			log.Warn().Err(err).Str("phone", phone).Msg("identity mirror: failed to store customer")
		}
	}
}

// ResolveCustomer returns the customer id registered for phone
func (x *IdentityIndex) ResolveCustomer(ctx context.Context, phone string) (string, bool) {
	x.mu.RLock()
	id, ok := lookup(x.customers, phone)
	x.mu.RUnlock()
	if ok || x.mirror == nil || len(phoneKeys(phone)) == 0 {
		return id, ok
	}

	id, err := x.mirror.GetCustomer(ctx, NormalizePhone(phone))
	if err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("identity mirror: failed to read customer")
		return "", false
	}
	if id == "" {
		return "", false
	}

	x.mu.Lock()
	for _, k := range phoneKeys(phone) {
		x.customers[k] = id
	}
	x.mu.Unlock()
	return id, true
}

// BindSessionID records the stable session id for phone
func (x *IdentityIndex) BindSessionID(ctx context.Context, phone, sessionID string) {
	keys := phoneKeys(phone)
	if len(keys) == 0 || sessionID == "" {
		return
	}

	x.mu.Lock()
	for _, k := range keys {
		x.sessionIDs[k] = sessionID
	}
	x.mu.Unlock()

	if x.mirror != nil {
		if err := x.mirror.SetSessionID(ctx, NormalizePhone(phone), sessionID); err != nil {
			log.Warn().Err(err).Str("phone", phone).Msg("identity mirror: failed to store session id")
		}
	}
}

// SessionIDForPhone returns the session id previously bound to phone
func (x *IdentityIndex) SessionIDForPhone(ctx context.Context, phone string) (string, bool) {
	x.mu.RLock()
	id, ok := lookup(x.sessionIDs, phone)
	x.mu.RUnlock()
	if ok || x.mirror == nil || len(phoneKeys(phone)) == 0 {
		return id, ok
	}

	id, err := x.mirror.GetSessionID(ctx, NormalizePhone(phone))
	if err != nil {
		log.Warn().Err(err).Str("phone", phone).Msg("identity mirror: failed to read session id")
		return "", false
	}
	if id == "" {
		return "", false
	}

	x.mu.Lock()
	for _, k := range phoneKeys(phone) {
		x.sessionIDs[k] = id
	}
	x.mu.Unlock()
	return id, true
}

// BindToken points phone and chatID (either may be empty) at token and links
// the chat to the phone when both are present.
func (x *IdentityIndex) BindToken(phone, chatID, token string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, k := range phoneKeys(phone) {
		x.phoneTokens[k] = token
	}
	if chatID != "" {
		x.chatTokens[chatID] = token
		if phone != "" {
			x.chatPhones[chatID] = phone
		}
	}
}

// TokenForPhone returns the active token bound to phone
func (x *IdentityIndex) TokenForPhone(phone string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return lookup(x.phoneTokens, phone)
}

// TokenForChat returns the active token bound to a telegram chat id
func (x *IdentityIndex) TokenForChat(chatID string) (string, bool) {
	if chatID == "" {
		return "", false
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	token, ok := x.chatTokens[chatID]
	return token, ok
}

// PhoneForChat returns the phone a telegram chat id was linked to
func (x *IdentityIndex) PhoneForChat(chatID string) (string, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	phone, ok := x.chatPhones[chatID]
	return phone, ok
}

// ResolveToken returns the active token for a phone or a telegram chat id
func (x *IdentityIndex) ResolveToken(identifier string) (string, bool) {
	if token, ok := x.TokenForPhone(identifier); ok {
		return token, true
	}
	return x.TokenForChat(identifier)
}

// Unbind drops the phone and chat bindings that still point at token.
// Customer and session id bindings are kept.
func (x *IdentityIndex) Unbind(phone, chatID, token string) {
	x.mu.Lock()
	defer x.mu.Unlock()

	for _, k := range phoneKeys(phone) {
		if x.phoneTokens[k] == token {
			delete(x.phoneTokens, k)
		}
	}
	if chatID != "" && x.chatTokens[chatID] == token {
		delete(x.chatTokens, chatID)
	}
}

// LoadCSV registers every customer_id / phone_number row from a customers CSV
// and returns the number of rows registered.
func (x *IdentityIndex) LoadCSV(ctx context.Context, r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read customers header: %w", err)
	}

	idCol, phoneCol := -1, -1
	for i, name := range header {
		switch strings.TrimSpace(strings.ToLower(name)) {
		case "customer_id":
			idCol = i
		case "phone_number", "phone":
			phoneCol = i
		}
	}
	if idCol < 0 || phoneCol < 0 {
		return 0, errors.New("customers csv must have customer_id and phone_number columns")
	}

	count := 0
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return count, fmt.Errorf("failed to read customers row: %w", err)
		}
		if idCol >= len(row) || phoneCol >= len(row) {
			continue
		}
		id := strings.TrimSpace(row[idCol])
		phone := strings.TrimSpace(row[phoneCol])
		if id == "" || phone == "" {
			continue
		}
		x.Register(ctx, phone, id)
		count++
	}
	return count, nil
}
