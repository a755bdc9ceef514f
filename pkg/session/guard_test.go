package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newGuardRouter(t *testing.T, m *Manager) *gin.Engine {
	t.Helper()
	g := NewGuard(m, GuardOptions{SecureCookie: true, Log: zaptest.NewLogger(t).Sugar()})

	r := gin.New()
	r.Use(g.Middleware())
	ok := func(c *gin.Context) {
		id, _ := IdentityFrom(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"ok": true, "username": id.Username})
	}
	r.GET("/admin", ok)
	r.GET("/admin/leads", ok)
	r.GET("/admin/assets/app.js", ok)
	r.POST("/api/admin/auth/login", ok)
	r.POST("/api/admin/auth/logout", ok)
	r.GET("/api/admin/leads", ok)
	r.GET("/api/leads", ok)
	r.GET("/administrator", ok)
	return r
}

func serve(r http.Handler, method, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func sessionCookie(value string) *http.Cookie {
	return &http.Cookie{Name: CookieName, Value: value}
}

func findCookie(w *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range w.Result().Cookies() {
		if c.Name == CookieName {
			return c
		}
	}
	return nil
}

func TestGuard_PublicPathsAdmittedWithoutToken(t *testing.T) {
	r := newGuardRouter(t, newTestManager(t))

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/admin"},
		{http.MethodGet, "/admin/assets/app.js"},
		{http.MethodPost, "/api/admin/auth/login"},
		{http.MethodPost, "/api/admin/auth/logout"},
		{http.MethodGet, "/api/leads"},
		{http.MethodGet, "/administrator"},
	} {
		t.Run(tc.path, func(t *testing.T) {
			w := serve(r, tc.method, tc.path, nil)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Nil(t, findCookie(w))
		})
	}
}

func TestGuard_APIWithoutToken(t *testing.T) {
	r := newGuardRouter(t, newTestManager(t))

	w := serve(r, http.MethodGet, "/api/admin/leads", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.JSONEq(t, `{"ok":false,"code":"UNAUTHORIZED","error":"Admin authentication required"}`, w.Body.String())
}

func TestGuard_PageWithoutTokenRedirects(t *testing.T) {
	r := newGuardRouter(t, newTestManager(t))

	w := serve(r, http.MethodGet, "/admin/leads", nil)

	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin", w.Header().Get("Location"))
	c := findCookie(w)
	require.NotNil(t, c, "cookie must be cleared")
	assert.Empty(t, c.Value)
	assert.True(t, c.MaxAge < 0)
}

func TestGuard_ValidTokenAdmitted(t *testing.T) {
	m := newTestManager(t)
	r := newGuardRouter(t, m)
	token, _, err := m.Issue(Identity{ID: 3, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	for _, path := range []string{"/api/admin/leads", "/admin/leads"} {
		t.Run(path, func(t *testing.T) {
			w := serve(r, http.MethodGet, path, sessionCookie(token))
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Contains(t, w.Body.String(), `"username":"alice"`)
			assert.Equal(t, "alice", w.Header().Get(HeaderAdminUsername))
			assert.Equal(t, "admin", w.Header().Get(HeaderAdminRole))
		})
	}
}

func TestGuard_WrongSecretRejected(t *testing.T) {
	r := newGuardRouter(t, newTestManager(t))
	other, err := NewManager("another-secret-nobody-configured-here")
	require.NoError(t, err)
	token, _, err := other.Issue(Identity{ID: 3, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	w := serve(r, http.MethodGet, "/api/admin/leads", sessionCookie(token))

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INVALID_TOKEN"`)
	c := findCookie(w)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
}

func TestGuard_ExpiredToken(t *testing.T) {
	past := func() time.Time { return time.Now().Add(-8 * 24 * time.Hour) }
	m := newTestManager(t, WithNow(past))
	r := newGuardRouter(t, m)
	token, _, err := m.Issue(Identity{ID: 3, Username: "alice", Role: "admin"})
	require.NoError(t, err)

	w := serve(r, http.MethodGet, "/api/admin/leads", sessionCookie(token))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"INVALID_TOKEN"`)
	assert.NotNil(t, findCookie(w))

	w = serve(r, http.MethodGet, "/admin/leads", sessionCookie(token))
	assert.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/admin", w.Header().Get("Location"))
	assert.NotNil(t, findCookie(w))
}

func TestGuard_Resolve(t *testing.T) {
	g := NewGuard(newTestManager(t), GuardOptions{})

	tests := []struct {
		path   string
		rule   string
		policy Policy
	}{
		{"/admin", "login-page", Public},
		{"/admin/", "login-page", Public},
		{"/admin/leads/4", "admin-pages", ProtectedPage},
		{"/api/admin/auth/login", "auth-login", Public},
		{"/api/admin/auth/me", "admin-api", ProtectedAPI},
		{"/api/admin", "admin-api", ProtectedAPI},
		{"/api/leads", "none", Passthrough},
		{"/", "none", Passthrough},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rule, _ := g.Resolve(tt.path)
			assert.Equal(t, tt.rule, rule.Name)
			assert.Equal(t, tt.policy, rule.Policy)
		})
	}
}

func TestGuard_FirstMatchWins(t *testing.T) {
	g := NewGuard(newTestManager(t), GuardOptions{Rules: []Rule{
		{Name: "first", Match: Prefix("/api"), Policy: Public},
		{Name: "second", Match: Prefix("/api/admin"), Policy: ProtectedAPI},
	}})

	rule, ok := g.Resolve("/api/admin/leads")
	assert.True(t, ok)
	assert.Equal(t, "first", rule.Name)
}

func TestIdentityContextHelpers(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{ID: 1, Username: "alice"})
	id, ok := IdentityFrom(ctx)
	assert.True(t, ok)
	assert.Equal(t, "alice", id.Username)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	_, ok = IdentityFromGin(c)
	assert.False(t, ok)
	c.Set(ContextKeyIdentity, Identity{Username: "bob"})
	id, ok = IdentityFromGin(c)
	assert.True(t, ok)
	assert.Equal(t, "bob", id.Username)
}

func TestPolicyAndStateStrings(t *testing.T) {
	assert.Equal(t, "protected_api", ProtectedAPI.String())
	assert.Equal(t, "passthrough", Passthrough.String())
	assert.Equal(t, "expired", Expired.String())
	assert.Equal(t, "no_token", NoToken.String())
}
