// Package token issues and verifies the HS256 access tokens used by the BFA.
// Supabase GoTrue signs its tokens the same way, so one Manager configured
// with the project's JWT secret verifies both.
package token

import (
	"fmt"
	"time"

	"github.com/boddenberg/utility-bills-bfa/internal/domain"

	"github.com/golang-jwt/jwt/v5"
)

// RoleAuthenticated is the role GoTrue puts in user tokens.
const RoleAuthenticated = "authenticated"

// Claims are the claims carried by an access token. Subject is the user id.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Manager signs and verifies access tokens with a shared secret.
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
}

// NewManager creates a Manager. ttl applies to tokens it signs.
func NewManager(secret string, ttl time.Duration) *Manager {
	return &Manager{secret: []byte(secret), ttl: ttl, issuer: "utility-bills-bfa"}
}

// TTL is the lifetime of signed tokens.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Sign issues an access token for the user.
func (m *Manager) Sign(userID, email string) (string, error) {
	now := time.Now()
	claims := Claims{
		Email: email,
		Role:  RoleAuthenticated,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			Audience:  jwt.ClaimStrings{RoleAuthenticated},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(m.ttl)),
			Issuer:    m.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
}

// Verify parses a token and checks signature, expiry and subject.
// Failures are returned as *domain.ErrUnauthorized.
func (m *Manager) Verify(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return nil, &domain.ErrUnauthorized{Message: "invalid or expired token"}
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, &domain.ErrUnauthorized{Message: "invalid token"}
	}
	if claims.Subject == "" {
		return nil, &domain.ErrUnauthorized{Message: "token has no subject"}
	}
	return claims, nil
}
