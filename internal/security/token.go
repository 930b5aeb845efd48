package security

import (
	"strings"

	"github.com/google/uuid"
)

// NewSessionToken returns an opaque bearer token (32 hex characters)
func NewSessionToken() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// NewSessionID returns a stable session identifier
func NewSessionID() string {
	return uuid.NewString()
}
