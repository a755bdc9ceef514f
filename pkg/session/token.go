// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v4"
)

// DefaultTTL is how long an admin session stays valid
const DefaultTTL = 7 * 24 * time.Hour

var (
	// ErrTokenExpired is returned for a well-formed token past its expiry
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenMalformed covers bad signatures, wrong algorithms, tampering and missing claims
	ErrTokenMalformed = errors.New("session token malformed")
)

// Identity is the authenticated admin carried by a session
type Identity struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
}

// Claims is the JWT payload of a session token
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Manager mints and verifies session tokens with a shared HMAC secret
type Manager struct {
	secret []byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// ManagerOption customises a Manager
type ManagerOption func(*Manager)

// WithTTL overrides DefaultTTL
func WithTTL(ttl time.Duration) ManagerOption {
	return func(m *Manager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithIssuer sets the iss claim
func WithIssuer(iss string) ManagerOption {
	return func(m *Manager) {
		m.issuer = iss
	}
}

// WithNow replaces the clock used when issuing tokens
func WithNow(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// NewManager creates a Manager. The secret must not be empty.
func NewManager(secret string, opts ...ManagerOption) (*Manager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	m := &Manager{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		issuer: "leaddesk",
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// TTL returns the validity of newly issued tokens
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs a token for id and returns it with its expiry
func (m *Manager) Issue(id Identity) (string, time.Time, error) {
	now := m.now()
	expiresAt := now.Add(m.ttl)
	claims := Claims{
		Username: id.Username,
		Role:     id.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(id.ID, 10),
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign session token: %w", err)
	}
	return signed, expiresAt, nil
}

// Verify checks the signature and expiry of raw and returns its identity.
// Errors are always ErrTokenExpired or ErrTokenMalformed.
func (m *Manager) Verify(raw string) (Identity, error) {
	if raw == "" {
		return Identity{}, ErrTokenMalformed
	}

	claims := &Claims{}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return m.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) && !errors.Is(err, jwt.ErrTokenSignatureInvalid) {
			return Identity{}, ErrTokenExpired
		}
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	}
	if !token.Valid {
		return Identity{}, ErrTokenMalformed
	}
	// jwt/v4 accepts tokens without exp; sessions must always expire
	if claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: missing exp", ErrTokenMalformed)
	}
	if claims.Username == "" {
		return Identity{}, fmt.Errorf("%w: missing username", ErrTokenMalformed)
	}

	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: bad subject", ErrTokenMalformed)
	}
	return Identity{ID: id, Username: claims.Username, Role: claims.Role}, nil
}
