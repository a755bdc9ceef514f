package clientlog

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []*audit.Event
}

func (r *recordingEmitter) Emit(_ context.Context, e *audit.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingEmitter) all() []*audit.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*audit.Event(nil), r.events...)
}

type fixture struct {
	router *gin.Engine
	logs   *observer.ObservedLogs
	audit  *recordingEmitter
}

func newFixture(t *testing.T, maxRequests int) fixture {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	logLimiter := ratelimit.NewFixedWindow(ratelimit.Config{MaxRequests: maxRequests, Window: time.Minute})
	errLimiter := ratelimit.NewFixedWindow(ratelimit.Config{MaxRequests: maxRequests, Window: time.Minute})
	t.Cleanup(logLimiter.Stop)
	t.Cleanup(errLimiter.Stop)

	em := &recordingEmitter{}
	lc := NewController(zap.New(core).Sugar(), logLimiter, errLimiter).WithAuditService(em)
	lc.now = func() time.Time { return time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC) }

	r := gin.New()
	require.NoError(t, lc.Register(r.Group("/api").Group(lc.BasePath(), lc.Handlers()...)))
	return fixture{router: r, logs: logs, audit: em}
}

func post(t *testing.T, r http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	req.RemoteAddr = "192.0.2.44:4000"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestLog_RecordsSanitizedEntry(t *testing.T) {
	f := newFixture(t, 10)

	w := post(t, f.router, "/api/log", `{"type":"form","level":"warn","message":"<b>submit</b> failed","attempt":2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, map[string]interface{}{"success": true, "message": "Log recorded"}, decode(t, w))
	assert.Equal(t, "10", w.Header().Get(ratelimit.HeaderLimit))

	entries := f.logs.FilterMessage("Client log").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.WarnLevel, entries[0].Level)
	fields := entries[0].ContextMap()
	assert.Equal(t, "form", fields["clientType"])
	assert.Equal(t, "bsubmit/b failed", fields["client.message"])
	assert.Equal(t, float64(2), fields["client.attempt"])
	assert.Equal(t, "192.0.2.x", fields["ip"])

	events := f.audit.all()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventClientLog, events[0].Type)
}

func TestLog_DefaultsTypeAndLevel(t *testing.T) {
	f := newFixture(t, 10)

	w := post(t, f.router, "/api/log", `{"message":"hello"}`)
	require.Equal(t, http.StatusOK, w.Code)

	entries := f.logs.FilterMessage("Client log").All()
	require.Len(t, entries, 1)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, "unknown", entries[0].ContextMap()["clientType"])
}

func TestLog_RejectsBadBodies(t *testing.T) {
	f := newFixture(t, 10)

	w := post(t, f.router, "/api/log", `{broken`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, CodeInvalidJSON, decode(t, w)["code"])

	w = post(t, f.router, "/api/log", `[1,2,3]`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	resp := decode(t, w)
	assert.Equal(t, CodeInvalidPayload, resp["code"])
	assert.Equal(t, "Request body must be an object", resp["error"])
}

func TestLog_RateLimited(t *testing.T) {
	f := newFixture(t, 2)

	for i := 0; i < 2; i++ {
		require.Equal(t, http.StatusOK, post(t, f.router, "/api/log", `{"message":"x"}`).Code)
	}
	w := post(t, f.router, "/api/log", `{"message":"x"}`)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get(ratelimit.HeaderRetryAfter))
}

func TestLog_MethodNotAllowed(t *testing.T) {
	f := newFixture(t, 10)
	for _, path := range []string{"/api/log", "/api/log/error"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		f.router.ServeHTTP(w, req)
		assert.Equal(t, http.StatusMethodNotAllowed, w.Code, path)
	}
}

func TestError_RecordsSanitizedReport(t *testing.T) {
	f := newFixture(t, 10)

	body := `{
		"message": "Failed for anna@example.com",
		"source": "https://site.example/app.js?v=3",
		"line": 12,
		"column": 0,
		"stack": "at x (/home/anna/app.js:12:1)",
		"userAgent": "Mozilla/5.0 (X11; Linux x86_64) Firefox/126.0",
		"url": "https://site.example/form?ref=ad"
	}`
	w := post(t, f.router, "/api/log/error", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Error logged successfully", decode(t, w)["message"])

	entries := f.logs.FilterMessage("Client error").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "Failed for [EMAIL_REMOVED]", fields["message"])
	assert.Equal(t, "https://site.example/app.js", fields["source"])
	assert.Equal(t, "https://site.example/form", fields["url"])
	assert.Equal(t, "Mozilla Firefox", fields["userAgent"])
	assert.Equal(t, "at x (/home/[USERNAME]/app.js:12:1)", fields["stack"])
	assert.Equal(t, int64(12), fields["line"])
	assert.Equal(t, int64(0), fields["column"])

	events := f.audit.all()
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventClientError, events[0].Type)
	assert.Equal(t, audit.LevelError, events[0].Level)
}

func TestError_Validation(t *testing.T) {
	f := newFixture(t, 20)

	tests := []struct {
		name string
		body string
		code string
	}{
		{"invalid json", `nope`, CodeInvalidJSON},
		{"missing message", `{"source":"https://a.example"}`, CodeInvalidPayload},
		{"message not a string", `{"message":42}`, CodeInvalidPayload},
		{"negative line", `{"message":"x","line":-1}`, CodeInvalidPayload},
		{"line not a number", `{"message":"x","line":"12"}`, CodeInvalidPayload},
		{"stack not a string", `{"message":"x","stack":{"a":1}}`, CodeInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := post(t, f.router, "/api/log/error", tt.body)
			require.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.code, decode(t, w)["code"])
		})
	}
	assert.Empty(t, f.audit.all())
}

func TestNewErrorReport_Timestamp(t *testing.T) {
	now := time.Date(2025, 5, 10, 9, 0, 0, 0, time.UTC)

	r := NewErrorReport(map[string]interface{}{"message": "x"}, now)
	assert.Equal(t, now, r.Timestamp)

	r = NewErrorReport(map[string]interface{}{"message": "x", "timestamp": "2025-05-09T08:00:00+03:00"}, now)
	assert.Equal(t, time.Date(2025, 5, 9, 5, 0, 0, 0, time.UTC), r.Timestamp)

	r = NewErrorReport(map[string]interface{}{"message": "x", "timestamp": "yesterday"}, now)
	assert.Equal(t, now, r.Timestamp)
}
