package security_test

import (
	"strings"
	"testing"
	"time"

	"github.com/Rrens/omnichannel-session/internal/security"
)

func TestNewSessionToken(t *testing.T) {
	a := security.NewSessionToken()
	b := security.NewSessionToken()

	if len(a) != 32 {
		t.Errorf("token length mismatch: got %d, want 32", len(a))
	}
	if strings.Contains(a, "-") {
		t.Errorf("token should be plain hex: %s", a)
	}
	if a == b {
		t.Error("tokens should be unique")
	}
}

func TestPasswordHasher(t *testing.T) {
	hasher := security.NewPasswordHasher(4)

	hashed, err := hasher.Hash("secret123")
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	ok, err := hasher.Verify(hashed, "secret123")
	if err != nil || !ok {
		t.Errorf("expected password to verify, got ok=%v err=%v", ok, err)
	}

	ok, err = hasher.Verify(hashed, "wrong")
	if err != nil || ok {
		t.Errorf("expected mismatch without error, got ok=%v err=%v", ok, err)
	}

	if _, err := hasher.Verify("not-a-hash", "secret123"); err == nil {
		t.Error("expected error for malformed hash, got nil")
	}
}

func TestQRManager_GenerateAndValidate(t *testing.T) {
	manager := security.NewQRManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	token, issued, err := manager.Generate("9990001111", "10001")
	if err != nil {
		t.Fatalf("failed to generate qr token: %v", err)
	}
	if token == "" {
		t.Fatal("qr token is empty")
	}

	claims, err := manager.Validate(token)
	if err != nil {
		t.Fatalf("failed to validate qr token: %v", err)
	}
	if claims.Phone != "9990001111" {
		t.Errorf("phone mismatch: got %v, want 9990001111", claims.Phone)
	}
	if claims.CustomerID != "10001" {
		t.Errorf("customer id mismatch: got %v, want 10001", claims.CustomerID)
	}
	if claims.ID != issued.ID {
		t.Errorf("jti mismatch: got %v, want %v", claims.ID, issued.ID)
	}
	if manager.TTL() != 15*time.Minute {
		t.Errorf("ttl mismatch: got %v", manager.TTL())
	}
}

func TestQRManager_InvalidToken(t *testing.T) {
	manager := security.NewQRManager("test-secret-key-with-32-chars!!", 15*time.Minute)

	if _, err := manager.Validate("invalid-token"); err == nil {
		t.Error("expected error for invalid token, got nil")
	}

	other := security.NewQRManager("different-secret-key-32-chars!!", 15*time.Minute)
	token, _, _ := other.Generate("9990001111", "10001")
	if _, err := manager.Validate(token); err == nil {
		t.Error("expected error for token signed with different secret, got nil")
	}

	expired := security.NewQRManager("test-secret-key-with-32-chars!!", -time.Minute)
	token, _, _ = expired.Generate("9990001111", "10001")
	if _, err := manager.Validate(token); err == nil {
		t.Error("expected error for expired token, got nil")
	}
}
