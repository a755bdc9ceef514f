package session

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookie(w, "tok", CookieOptions{Secure: true})

	c := findCookie(w)
	require.NotNil(t, c)
	assert.Equal(t, "tok", c.Value)
	assert.Equal(t, "/", c.Path)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, int(DefaultTTL/time.Second), c.MaxAge)
}

func TestSetCookie_NotSecureOutsideProduction(t *testing.T) {
	w := httptest.NewRecorder()
	SetCookie(w, "tok", CookieOptions{MaxAge: time.Hour})

	c := findCookie(w)
	require.NotNil(t, c)
	assert.False(t, c.Secure)
	assert.Equal(t, 3600, c.MaxAge)
}

func TestClearCookie(t *testing.T) {
	w := httptest.NewRecorder()
	ClearCookie(w, false)

	header := w.Header().Get("Set-Cookie")
	assert.Contains(t, header, "admin_session=;")
	assert.Contains(t, header, "Max-Age=0")
	assert.Contains(t, header, "Expires=Thu, 01 Jan 1970 00:00:00 GMT")
}

func TestTokenFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Empty(t, TokenFromRequest(req))

	req.AddCookie(&http.Cookie{Name: CookieName, Value: "abc"})
	assert.Equal(t, "abc", TokenFromRequest(req))
}
