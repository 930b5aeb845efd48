package domain

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// Channel identifies the surface a request originated from
type Channel string

const (
	ChannelWeb      Channel = "web"
	ChannelKiosk    Channel = "kiosk"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelTelegram Channel = "telegram"
)

// Chat senders
const (
	SenderUser  = "user"
	SenderAgent = "agent"
)

// Mutator actions
const (
	ActionAddToCart   = "add_to_cart"
	ActionViewProduct = "view_product"
	ActionChatMessage = "chat_message"
	ActionSetUser     = "set_user"
)

// Session is the cacheable unit of conversational state
type Session struct {
	SessionID       string         `json:"session_id"`
	SessionToken    string         `json:"session_token"`
	Phone           string         `json:"phone,omitempty"`
	TelegramChatID  string         `json:"telegram_chat_id,omitempty"`
	Channel         Channel        `json:"channel"`
	UserID          string         `json:"user_id,omitempty"`
	CustomerID      string         `json:"customer_id,omitempty"`
	CustomerProfile map[string]any `json:"customer_profile,omitempty"`
	Data            SessionData    `json:"data"`
	IsActive        bool           `json:"is_active"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	ExpiresAt       time.Time      `json:"expires_at"`
}

// SessionData is the mutable payload carried by a session
type SessionData struct {
	Cart                []any             `json:"cart"`
	Recent              []RecentItem      `json:"recent"`
	ChatContext         []ChatEntry       `json:"chat_context"`
	LastAction          *LastAction       `json:"last_action"`
	Channels            []Channel         `json:"channels"`
	ConversationSummary string            `json:"conversation_summary"`
	LastRecommendedSKUs []string          `json:"last_recommended_skus"`
	ShippingAddress     map[string]string `json:"shipping_address,omitempty"`
}

// RecentItem is a viewed product or a recommended SKU
type RecentItem struct {
	Product  any       `json:"product,omitempty"`
	SKU      string    `json:"sku,omitempty"`
	ViewedAt time.Time `json:"viewed_at"`
}

// ChatEntry is one turn in the chat history
type ChatEntry struct {
	Sender    string         `json:"sender"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// LastAction records the most recent detected user action
type LastAction struct {
	Type      string    `json:"type"`
	Item      any       `json:"item,omitempty"`
	Product   any       `json:"product,omitempty"`
	Sender    string    `json:"sender,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewSessionData builds the default payload for a fresh session
func NewSessionData(channel Channel) SessionData {
	d := SessionData{}
	d.Normalize(channel)
	return d
}

// Normalize fills missing collections so the payload never serializes nulls.
// fallback seeds the channel history when it is empty.
func (d *SessionData) Normalize(fallback Channel) {
	if d.Cart == nil {
		d.Cart = []any{}
	}
	if d.Recent == nil {
		d.Recent = []RecentItem{}
	}
	if d.ChatContext == nil {
		d.ChatContext = []ChatEntry{}
	}
	if d.LastRecommendedSKUs == nil {
		d.LastRecommendedSKUs = []string{}
	}
	if len(d.Channels) == 0 {
		d.Channels = []Channel{}
		if fallback != "" {
			d.Channels = append(d.Channels, fallback)
		}
	}
}

// HasChannel reports whether c is already in the channel history
func (d *SessionData) HasChannel(c Channel) bool {
	for _, existing := range d.Channels {
		if existing == c {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers never share state with the registry
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.CustomerProfile = maps.Clone(s.CustomerProfile)
	out.Data = s.Data.Clone()
	return &out
}

// Clone returns a deep copy of the payload. Nested cart and product values are
// treated as immutable once stored.
func (d SessionData) Clone() SessionData {
	out := d
	out.Cart = slices.Clone(d.Cart)
	out.Recent = slices.Clone(d.Recent)
	out.Channels = slices.Clone(d.Channels)
	out.LastRecommendedSKUs = slices.Clone(d.LastRecommendedSKUs)
	out.ShippingAddress = maps.Clone(d.ShippingAddress)
	out.ChatContext = slices.Clone(d.ChatContext)
	for i := range out.ChatContext {
		out.ChatContext[i].Metadata = maps.Clone(out.ChatContext[i].Metadata)
	}
	if d.LastAction != nil {
		la := *d.LastAction
		out.LastAction = &la
	}
	return out
}

// Session status values stored in the durable row
const (
	StatusActive    = "active"
	StatusLoggedOut = "logged_out"
)

// SessionRecord is the durable row mirrored from the local cache
type SessionRecord struct {
	SessionID      string          `json:"session_id"`
	SessionToken   string          `json:"session_token"`
	Phone          string          `json:"phone,omitempty"`
	TelegramChatID string          `json:"telegram_chat_id,omitempty"`
	CustomerID     string          `json:"customer_id,omitempty"`
	UserID         string          `json:"user_id,omitempty"`
	Channel        Channel         `json:"channel"`
	Status         string          `json:"status"`
	Data           json.RawMessage `json:"data"`
	CreatedAt      time.Time       `json:"created_at"`
	LastActivity   time.Time       `json:"last_activity"`
	ExpiresAt      time.Time       `json:"expires_at"`
}

// ToRecord converts a session into its durable representation
func (s *Session) ToRecord() (*SessionRecord, error) {
	data, err := json.Marshal(s.Data)
	if err != nil {
		return nil, err
	}

	status := StatusActive
	if !s.IsActive {
		status = StatusLoggedOut
	}

	return &SessionRecord{
		SessionID:      s.SessionID,
		SessionToken:   s.SessionToken,
		Phone:          s.Phone,
		TelegramChatID: s.TelegramChatID,
		CustomerID:     s.CustomerID,
		UserID:         s.UserID,
		Channel:        s.Channel,
		Status:         status,
		Data:           data,
		CreatedAt:      s.CreatedAt,
		LastActivity:   s.UpdatedAt,
		ExpiresAt:      s.ExpiresAt,
	}, nil
}

// ToSession rebuilds a cacheable session from a durable row.
// Missing collections are filled and consecutive duplicate chat entries collapsed.
func (r *SessionRecord) ToSession() (*Session, error) {
	var data SessionData
	if len(r.Data) > 0 && string(r.Data) != "null" {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return nil, err
		}
	}
	data.Normalize(r.Channel)
	data.ChatContext = collapseChat(data.ChatContext)

	return &Session{
		SessionID:      r.SessionID,
		SessionToken:   r.SessionToken,
		Phone:          r.Phone,
		TelegramChatID: r.TelegramChatID,
		Channel:        r.Channel,
		UserID:         r.UserID,
		CustomerID:     r.CustomerID,
		Data:           data,
		IsActive:       r.Status == StatusActive,
		CreatedAt:      r.CreatedAt,
		UpdatedAt:      r.LastActivity,
		ExpiresAt:      r.ExpiresAt,
	}, nil
}

func collapseChat(entries []ChatEntry) []ChatEntry {
	out := make([]ChatEntry, 0, len(entries))
	for _, e := range entries {
		if n := len(out); n > 0 && out[n-1].Sender == e.Sender && out[n-1].Message == e.Message {
			out[n-1] = e
			continue
		}
		out = append(out, e)
	}
	return out
}

// DurableSessionBackend is the remote store that mirrors the local cache.
// RestoreByPhone returns nil, nil when no active row exists.
type DurableSessionBackend interface {
	Save(ctx context.Context, record *SessionRecord) error
	RestoreByPhone(ctx context.Context, phone string) (*SessionRecord, error)
	RestoreByToken(ctx context.Context, phone, token string) (*SessionRecord, error)
	RefreshExpiry(ctx context.Context, token string, lastActivity, expiresAt time.Time) error
	MarkInactive(ctx context.Context, token string, at time.Time) error
	SyncData(ctx context.Context, token string, data json.RawMessage, lastActivity time.Time) error
}

// SessionStart is the body of a session start request.
// At least one of Phone and TelegramChatID is required.
type SessionStart struct {
	Phone           string         `json:"phone,omitempty" validate:"omitempty,max=32"`
	TelegramChatID  FlexString     `json:"telegram_chat_id,omitempty" validate:"omitempty,max=64"`
	Channel         Channel        `json:"channel" validate:"omitempty,oneof=web kiosk whatsapp telegram"`
	UserID          string         `json:"user_id,omitempty" validate:"omitempty,max=64"`
	CustomerID      string         `json:"customer_id,omitempty" validate:"omitempty,max=64"`
	CustomerProfile map[string]any `json:"-"`
}

// SessionUpdate is the body of a session update request
type SessionUpdate struct {
	Action  string         `json:"action" validate:"required"`
	Payload map[string]any `json:"payload"`
}

// SummaryUpdate overwrites the conversation summary of a session
type SummaryUpdate struct {
	Summary string `json:"summary" validate:"required"`
}

// FlexString accepts a JSON string or number, for chat ids sent as integers
type FlexString string

func (f *FlexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = FlexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexString(n.String())
	return nil
}
