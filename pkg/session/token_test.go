package session

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func newTestManager(t *testing.T, opts ...ManagerOption) *Manager {
	t.Helper()
	m, err := NewManager(testSecret, opts...)
	require.NoError(t, err)
	return m
}

func TestNewManager_RequiresSecret(t *testing.T) {
	_, err := NewManager("")
	assert.Error(t, err)
}

func TestManager_IssueAndVerify(t *testing.T) {
	m := newTestManager(t)
	assert.Equal(t, DefaultTTL, m.TTL())

	token, expiresAt, err := m.Issue(Identity{ID: 7, Username: "alice", Role: "admin"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, 5*time.Second)

	id, err := m.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, Identity{ID: 7, Username: "alice", Role: "admin"}, id)
}

func TestManager_VerifyExpired(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	m := newTestManager(t, WithNow(past))

	token, _, err := m.Issue(Identity{ID: 1, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	_, err = m.Verify(token)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

func TestManager_VerifyMalformed(t *testing.T) {
	m := newTestManager(t)
	valid, _, err := m.Issue(Identity{ID: 1, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	other, err := NewManager("a-completely-different-signing-secret")
	require.NoError(t, err)
	foreign, _, err := other.Issue(Identity{ID: 1, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	hs512, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExp, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Username:         "alice",
		RegisteredClaims: jwt.RegisteredClaims{Subject: "1"},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	parts := strings.Split(valid, ".")
	require.Len(t, parts, 3)
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not-a-jwt",
		"wrong secret":   foreign,
		"wrong alg":      hs512,
		"alg none":       none,
		"missing exp":    noExp,
		"tampered claim": tampered,
	}
	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := m.Verify(token)
			assert.ErrorIs(t, err, ErrTokenMalformed)
		})
	}
}

func TestManager_ExpiredWithForeignSignatureIsMalformed(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-30 * 24 * time.Hour) }
	other, err := NewManager("a-completely-different-signing-secret", WithNow(past))
	require.NoError(t, err)
	token, _, err := other.Issue(Identity{ID: 1, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	_, err = newTestManager(t).Verify(token)
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestManager_Options(t *testing.T) {
	m := newTestManager(t, WithTTL(time.Hour), WithIssuer("test"), WithTTL(0))
	assert.Equal(t, time.Hour, m.TTL())

	token, expiresAt, err := m.Issue(Identity{ID: 2, Username: "bob", Role: "viewer"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims := &Claims{}
	_, _, err = jwt.NewParser().ParseUnverified(token, claims)
	require.NoError(t, err)
	assert.Equal(t, "test", claims.Issuer)
	assert.Equal(t, "2", claims.Subject)
	assert.Equal(t, "viewer", claims.Role)
}
