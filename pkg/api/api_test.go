package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/clientlog"
	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
	"github.com/nslnv/leaddesk/pkg/session"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html>admin</html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "assets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "assets", "app-1a2b.js"), []byte("console.log(1)"), 0o644))

	cfg := config.Config{}
	cfg.Defaults()
	cfg.Server.ListenAddress = "127.0.0.1:0"
	cfg.Server.ShutdownTimeout = 2 * time.Second
	cfg.Frontend.Dir = dir
	return cfg
}

func newTestServer(t *testing.T, guard gin.HandlerFunc) *Server {
	t.Helper()
	s := NewServer(zaptest.NewLogger(t), testConfig(t), true, guard)
	t.Cleanup(s.Close)
	return s
}

func serve(s *Server, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

type stubController struct {
	path string
	err  error
}

func (s stubController) BasePath() string { return s.path }

func (s stubController) Handlers() []gin.HandlerFunc { return nil }

func (s stubController) Register(rg *gin.RouterGroup) error {
	if s.err != nil {
		return s.err
	}
	rg.GET("/ping", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"ok": true}) })
	return nil
}

func TestServer_RegisterAll(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.RegisterAll([]APIController{stubController{path: "leads"}}))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/leads/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_RegisterAll_Error(t *testing.T) {
	s := newTestServer(t, nil)
	err := s.RegisterAll([]APIController{stubController{path: "broken", err: errors.New("boom")}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "registering broken")
}

func TestServer_Healthz(t *testing.T) {
	s := newTestServer(t, nil)
	s.WithHealthCheck("database", func(context.Context) error { return nil })

	w := serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"database":"ok"}}`, w.Body.String())

	s.WithHealthCheck("redis", func(context.Context) error { return errors.New("dial tcp: refused") })
	w = serve(s, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.JSONEq(t, `{"status":"degraded","checks":{"database":"ok","redis":"unavailable"}}`, w.Body.String())
	assert.NotContains(t, w.Body.String(), "refused")
}

func TestServer_Version(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Contains(t, body, "version")
	assert.Contains(t, body, "goVersion")
}

func TestServer_Metrics(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestServer_NoRoute_API_Json404(t *testing.T) {
	s := newTestServer(t, nil)
	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/unknown/thing", nil))
	require.Equal(t, http.StatusNotFound, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
	assert.Equal(t, "/api/unknown/thing", body["path"])
}

func TestServer_AdminUI(t *testing.T) {
	s := newTestServer(t, nil)

	t.Run("index", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "<html>admin</html>")
		assert.Equal(t, "no-cache, must-revalidate", w.Header().Get("Cache-Control"))
	})

	t.Run("client route falls back to index", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/leads/42", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "<html>admin</html>")
	})

	t.Run("hashed asset", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/admin/assets/app-1a2b.js", nil))
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "console.log(1)", w.Body.String())
		assert.Equal(t, "public, max-age=31536000, immutable", w.Header().Get("Cache-Control"))
	})

	t.Run("outside the UI prefix", func(t *testing.T) {
		w := serve(s, httptest.NewRequest(http.MethodGet, "/administrator", nil))
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestServer_RequestID(t *testing.T) {
	s := newTestServer(t, nil)
	require.NoError(t, s.RegisterAll([]APIController{stubController{path: "stub"}}))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/stub/ping", nil))
	generated := w.Header().Get(HeaderRequestID)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodGet, "/api/stub/ping", nil)
	req.Header.Set(HeaderRequestID, "client-req-0001")
	w = serve(s, req)
	assert.Equal(t, "client-req-0001", w.Header().Get(HeaderRequestID))

	req = httptest.NewRequest(http.MethodGet, "/api/stub/ping", nil)
	req.Header.Set(HeaderRequestID, "bad id\nwith newline")
	w = serve(s, req)
	assert.NotEqual(t, "bad id\nwith newline", w.Header().Get(HeaderRequestID))
	assert.Len(t, w.Header().Get(HeaderRequestID), 36)
}

func TestServer_BodyLimit(t *testing.T) {
	s := newTestServer(t, nil)
	cfg := ratelimit.Config{MaxRequests: 100, Window: time.Minute}
	logLimiter, errLimiter := ratelimit.NewFixedWindow(cfg), ratelimit.NewFixedWindow(cfg)
	t.Cleanup(logLimiter.Stop)
	t.Cleanup(errLimiter.Stop)
	lc := clientlog.NewController(zaptest.NewLogger(t).Sugar(), logLimiter, errLimiter)
	require.NoError(t, s.RegisterAll([]APIController{lc}))

	post := func(path string, body []byte) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		return serve(s, req)
	}

	w := post("/api/log", []byte(`{"level":"info","message":"hello"}`))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	padding := strings.Repeat("a", MaxBodyBytes)
	large := []byte(`{"level":"info","message":"` + padding + `"}`)
	for _, path := range []string{"/api/log", "/api/log/error"} {
		w = post(path, large)
		require.Equal(t, http.StatusRequestEntityTooLarge, w.Code, path)

		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, false, body["ok"])
		assert.Equal(t, apiresponses.CodePayloadTooLarge, body["code"])
	}
}

func TestServer_CORSInDebug(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/version", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := serve(s, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:5173", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestServer_GuardProtectsAdminAPI(t *testing.T) {
	tokens, err := session.NewManager("test-secret-that-is-long-enough-123456")
	require.NoError(t, err)
	guard := session.NewGuard(tokens, session.GuardOptions{}).Middleware()

	s := newTestServer(t, guard)
	require.NoError(t, s.RegisterAll([]APIController{stubController{path: "admin"}}))

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	raw, _, err := tokens.Issue(session.Identity{ID: 1, Username: "admin", Role: "admin"})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/api/admin/ping", nil)
	req.AddCookie(&http.Cookie{Name: session.CookieName, Value: raw})
	w = serve(s, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_CloseRunsHooksOnceInReverse(t *testing.T) {
	s := NewServer(zaptest.NewLogger(t), testConfig(t), true, nil)
	var order []string
	s.OnClose(func() { order = append(order, "limiter") })
	s.OnClose(func() { order = append(order, "database") })

	s.Close()
	s.Close()
	assert.Equal(t, []string{"database", "limiter"}, order)
}

func TestServer_ServeShutsDownOnCancel(t *testing.T) {
	s := NewServer(zaptest.NewLogger(t), testConfig(t), true, nil)
	closed := make(chan struct{})
	s.OnClose(func() { close(closed) })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/healthz"
	require.Eventually(t, func() bool {
		resp, err := http.Get(url) //nolint:noctx
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	<-closed
}
