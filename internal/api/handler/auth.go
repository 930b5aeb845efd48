package handler

import (
	"net/http"

	"github.com/Rrens/omnichannel-session/internal/api/response"
	"github.com/Rrens/omnichannel-session/internal/domain"
	"github.com/Rrens/omnichannel-session/internal/service"
)

// AuthHandler handles customer authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Signup registers a password customer and starts a session
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var input domain.CustomerSignup
	if !decode(w, r, &input) {
		return
	}

	result, err := h.authService.Signup(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	response.Created(w, result)
}

// Login verifies a phone and password and starts a session
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var input domain.CustomerCredentials
	if !decode(w, r, &input) {
		return
	}

	result, err := h.authService.Login(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, result)
}

// SessionLogin upserts a customer profile without a password and starts a session
func (h *AuthHandler) SessionLogin(w http.ResponseWriter, r *http.Request) {
	var input domain.CustomerLogin
	if !decode(w, r, &input) {
		return
	}

	result, err := h.authService.SessionLogin(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, result)
}

// Logout ends the session and drops its identity bindings
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	session, err := h.authService.Logout(r.Context(), r.Header.Get(HeaderSessionToken))
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, map[string]any{
		"message":    "logged out",
		"session_id": session.SessionID,
	})
}

// QRInit issues a kiosk hand-off token
func (h *AuthHandler) QRInit(w http.ResponseWriter, r *http.Request) {
	var input domain.QRInit
	if !decode(w, r, &input) {
		return
	}

	grant, err := h.authService.QRInit(r.Context(), r.Header.Get(HeaderSessionToken), input)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, grant)
}

// QRVerify redeems a kiosk hand-off token
func (h *AuthHandler) QRVerify(w http.ResponseWriter, r *http.Request) {
	var input domain.QRVerify
	if !decode(w, r, &input) {
		return
	}

	result, err := h.authService.QRVerify(r.Context(), input)
	if err != nil {
		writeError(w, err)
		return
	}

	response.OK(w, result)
}
