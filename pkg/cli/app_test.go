package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func appConfig(t *testing.T) config.Config {
	t.Helper()
	var cfg config.Config
	cfg.Session.Secret = "test-secret"
	cfg.Database.Driver = "sqlite"
	cfg.Database.DSN = "file:" + filepath.Join(t.TempDir(), "app.db")
	cfg.Frontend.Dir = t.TempDir()
	cfg.Audit.Database = true
	cfg.Defaults()
	return cfg
}

type health struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func getHealth(t *testing.T, h http.Handler) (int, health) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body health
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return w.Code, body
}

func TestBuildServer(t *testing.T) {
	cfg := appConfig(t)
	server, err := buildServer(context.Background(), cfg, zaptest.NewLogger(t), false)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	code, body := getHealth(t, server.Handler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.NotContains(t, body.Checks, "redis")

	t.Run("admin API requires a session", func(t *testing.T) {
		w := httptest.NewRecorder()
		server.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/audit", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("client log endpoint is mounted", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/log", strings.NewReader(`{"level":"info","message":"hi"}`))
		req.Header.Set("Content-Type", "application/json")
		server.Handler().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.NotEmpty(t, w.Header().Get(ratelimit.HeaderLimit))
	})
}

func TestBuildServer_RedisLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := appConfig(t)
	cfg.RateLimits.Store = "redis"
	cfg.Redis.Addr = mr.Addr()

	server, err := buildServer(context.Background(), cfg, zaptest.NewLogger(t), false)
	require.NoError(t, err)
	t.Cleanup(server.Close)

	code, body := getHealth(t, server.Handler())
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Checks["redis"])

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/log", strings.NewReader(`{"message":"hi"}`))
	req.Header.Set("Content-Type", "application/json")
	server.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	keys := mr.Keys()
	require.NotEmpty(t, keys)
	assert.True(t, strings.HasPrefix(keys[0], "leaddesk:ratelimit:client_log:"), keys[0])

	mr.Close()
	code, body = getHealth(t, server.Handler())
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unavailable", body.Checks["redis"])
}

func TestBuildServer_RedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	cfg := appConfig(t)
	cfg.RateLimits.Store = "redis"
	cfg.Redis.Addr = addr

	_, err := buildServer(context.Background(), cfg, zaptest.NewLogger(t), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connecting to redis")
}

func TestBuildServer_MissingSecret(t *testing.T) {
	cfg := appConfig(t)
	cfg.Session.Secret = ""
	_, err := buildServer(context.Background(), cfg, zaptest.NewLogger(t), false)
	require.Error(t, err)
}
