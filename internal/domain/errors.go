package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidIdentifier  = errors.New("phone or telegram_chat_id is required")
	ErrMissingIdentifier  = errors.New("session token or phone is required")
	ErrSessionNotFound    = errors.New("session not found")
	ErrMissingField       = errors.New("missing required field")
	ErrUnsupportedAction  = errors.New("unsupported action")
	ErrDurableSync        = errors.New("durable session sync failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPhoneTaken         = errors.New("phone number already registered")
	ErrSessionInactive    = errors.New("session is not active")
	ErrInvalidQRToken     = errors.New("invalid or expired qr token")
	ErrWeakPassword       = errors.New("password too short")
)

// FieldError reports a mutator action whose payload lacks a required field
type FieldError struct {
	Action string
	Field  string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %s requires %q", ErrMissingField, e.Action, e.Field)
}

func (e *FieldError) Unwrap() error { return ErrMissingField }

// ActionError reports an unknown mutator action
type ActionError struct {
	Action string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnsupportedAction, e.Action)
}

func (e *ActionError) Unwrap() error { return ErrUnsupportedAction }

// Kind returns the tag reported to clients alongside an error message
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidIdentifier):
		return "InvalidIdentifierError"
	case errors.Is(err, ErrMissingIdentifier):
		return "MissingIdentifierError"
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFoundError"
	case errors.Is(err, ErrMissingField):
		return "MissingFieldError"
	case errors.Is(err, ErrUnsupportedAction):
		return "UnsupportedActionError"
	case errors.Is(err, ErrDurableSync):
		return "DurableSyncFailure"
	case errors.Is(err, ErrInvalidCredentials):
		return "InvalidCredentialsError"
	case errors.Is(err, ErrPhoneTaken):
		return "PhoneTakenError"
	case errors.Is(err, ErrSessionInactive):
		return "SessionInactiveError"
	case errors.Is(err, ErrInvalidQRToken):
		return "InvalidQRTokenError"
	case errors.Is(err, ErrWeakPassword):
		return "WeakPasswordError"
	default:
		return "InternalError"
	}
}
