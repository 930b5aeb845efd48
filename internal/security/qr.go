package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const qrIssuer = "omnichannel-session"

// QRClaims identifies the customer handing a web session over to a kiosk
type QRClaims struct {
	Phone      string `json:"phone"`
	CustomerID string `json:"customer_id"`
	jwt.RegisteredClaims
}

// QRManager signs and validates short-lived QR hand-off tokens
type QRManager struct {
	secret []byte
	ttl    time.Duration
}

// NewQRManager creates a new QR token manager
func NewQRManager(secret string, ttl time.Duration) *QRManager {
	return &QRManager{
		secret: []byte(secret),
		ttl:    ttl,
	}
}

// Generate signs a token for phone and customerID. The jti makes every token single-use trackable.
func (m *QRManager) Generate(phone, customerID string) (string, *QRClaims, error) {
	now := time.Now()
	claims := &QRClaims{
		Phone:      phone,
		CustomerID: customerID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   customerID,
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    qrIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(m.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign qr token: %w", err)
	}
	return signed, claims, nil
}

// Validate parses a QR token and returns its claims
func (m *QRManager) Validate(tokenString string) (*QRClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &QRClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return m.secret, nil
	}, jwt.WithIssuer(qrIssuer))

	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}

	claims, ok := token.Claims.(*QRClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}
	if claims.Phone == "" || claims.ID == "" {
		return nil, errors.New("token is missing phone or id")
	}

	return claims, nil
}

// TTL returns the QR token lifetime
func (m *QRManager) TTL() time.Duration {
	return m.ttl
}
