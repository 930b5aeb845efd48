package handler

import (
	"net/http"
	"time"

	"github.com/Rrens/omnichannel-session/internal/api/response"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/service"
	"github.com/go-chi/chi/v5"
)

// SessionHandler handles session endpoints
type SessionHandler struct {
	sessions *service.SessionService
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(sessions *service.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

type sessionResponse struct {
	SessionToken string          `json:"session_token"`
	Session      *domain.Session `json:"session"`
}

// Start finds, restores or creates a session
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var input domain.SessionStart
	if !decode(w, r, &input) {
		return
	}

	session, err := h.sessions.Start(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, sessionResponse{SessionToken: session.SessionToken, Session: session})
}

// Restore returns the session named by the token or phone header
func (h *SessionHandler) Restore(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.Restore(r.Context(), r.Header.Get(HeaderSessionToken), r.Header.Get(HeaderPhone))
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, sessionResponse{SessionToken: session.SessionToken, Session: session})
}

// Update applies one action to the session
func (h *SessionHandler) Update(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(HeaderSessionToken)
	if token == "" {
		writeError(w, domain.ErrMissingIdentifier)
		return
	}

	var input domain.SessionUpdate
	if !decode(w, r, &input) {
		return
	}

	session, err := h.sessions.Update(r.Context(), token, input.Action, input.Payload)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, map[string]any{"session": session})
}

// End marks the session inactive
func (h *SessionHandler) End(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessions.End(r.Context(), r.Header.Get(HeaderSessionToken))
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"message":    "session ended",
		"session_id": session.SessionID,
		"phone":      session.Phone,
	})
}

// Context returns the chat history the sales agent builds on
func (h *SessionHandler) Context(w http.ResponseWriter, r *http.Request) {
	session, ok := h.bySessionID(w, r)
	if !ok {
		return
	}

	response.OK(w, map[string]any{
		"session_id":            session.SessionID,
		"customer_id":           session.CustomerID,
		"phone":                 session.Phone,
		"channel":               session.Channel,
		"chat_context":          session.Data.ChatContext,
		"conversation_summary":  session.Data.ConversationSummary,
		"last_recommended_skus": session.Data.LastRecommendedSKUs,
		"created_at":            session.CreatedAt.Format(time.RFC3339),
		"updated_at":            session.UpdatedAt.Format(time.RFC3339),
	})
}

// Summary returns the conversation summary
func (h *SessionHandler) Summary(w http.ResponseWriter, r *http.Request) {
	session, ok := h.bySessionID(w, r)
	if !ok {
		return
	}

	response.OK(w, map[string]any{
		"session_id":     session.SessionID,
		"customer_id":    session.CustomerID,
		"summary":        session.Data.ConversationSummary,
		"total_messages": len(session.Data.ChatContext),
		"last_updated":   session.UpdatedAt.Format(time.RFC3339),
	})
}

// Recommendations returns the SKUs last recommended by the agent
func (h *SessionHandler) Recommendations(w http.ResponseWriter, r *http.Request) {
	session, ok := h.bySessionID(w, r)
	if !ok {
		return
	}

	response.OK(w, map[string]any{
		"session_id":            session.SessionID,
		"customer_id":           session.CustomerID,
		"last_recommended_skus": session.Data.LastRecommendedSKUs,
		"total_recommendations": len(session.Data.LastRecommendedSKUs),
	})
}

// Cart returns the cart
func (h *SessionHandler) Cart(w http.ResponseWriter, r *http.Request) {
	session, ok := h.bySessionID(w, r)
	if !ok {
		return
	}

	response.OK(w, map[string]any{
		"session_id":  session.SessionID,
		"customer_id": session.CustomerID,
		"cart":        session.Data.Cart,
		"cart_size":   len(session.Data.Cart),
	})
}

// SetSummary overwrites the conversation summary
func (h *SessionHandler) SetSummary(w http.ResponseWriter, r *http.Request) {
	var input domain.SummaryUpdate
	if !decode(w, r, &input) {
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	if _, err := h.sessions.SetSummary(r.Context(), sessionID, input.Summary); err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"success":    true,
		"session_id": sessionID,
		"summary":    input.Summary,
	})
}

func (h *SessionHandler) bySessionID(w http.ResponseWriter, r *http.Request) (*domain.Session, bool) {
	session, err := h.sessions.GetBySessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	return session, true
}
