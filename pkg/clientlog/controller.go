// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package clientlog

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
	"github.com/nslnv/leaddesk/pkg/system"
)

// Error codes returned by the client log endpoints
const (
	CodeInvalidJSON    = "INVALID_JSON"
	CodeInvalidPayload = "INVALID_PAYLOAD"
)

// Controller receives browser log lines under /api/log and error reports
// under /api/log/error. Each endpoint has its own limiter.
type Controller struct {
	log          *zap.SugaredLogger
	logLimiter   ratelimit.Limiter
	errorLimiter ratelimit.Limiter
	audit        audit.Emitter
	now          func() time.Time
}

func NewController(log *zap.SugaredLogger, logLimiter, errorLimiter ratelimit.Limiter) *Controller {
	return &Controller{
		log:          log,
		logLimiter:   logLimiter,
		errorLimiter: errorLimiter,
		audit:        audit.Nop{},
		now:          time.Now,
	}
}

// WithAuditService sets where client reports are mirrored
func (lc *Controller) WithAuditService(e audit.Emitter) *Controller {
	if e != nil {
		lc.audit = e
	}
	return lc
}

func (*Controller) BasePath() string {
	return "log"
}

func (*Controller) Handlers() []gin.HandlerFunc {
	return nil
}

func (lc *Controller) Register(rg *gin.RouterGroup) error {
	logLimit := ratelimit.Middleware(lc.logLimiter, ratelimit.MiddlewareOptions{Policy: "client_log", Log: lc.log})
	errLimit := ratelimit.Middleware(lc.errorLimiter, ratelimit.MiddlewareOptions{Policy: "client_error", Log: lc.log})

	rg.POST("", logLimit, metrics.Instrumented("client_log", lc.handleLog))
	rg.POST("/error", errLimit, metrics.Instrumented("client_error", lc.handleError))
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		rg.Handle(m, "", apiresponses.RespondMethodNotAllowed)
		rg.Handle(m, "/error", apiresponses.RespondMethodNotAllowed)
	}
	return nil
}

// readObject decodes the body. A nil map with a nil error means valid JSON
// that is not an object.
func readObject(c *gin.Context) (map[string]interface{}, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, err
	}
	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	obj, _ := v.(map[string]interface{})
	return obj, nil
}

func normalizeLevel(v interface{}) string {
	s, _ := v.(string)
	switch strings.ToLower(s) {
	case "error":
		return "error"
	case "warn", "warning":
		return "warn"
	default:
		return "info"
	}
}

func (lc *Controller) handleLog(c *gin.Context) {
	reqLog := system.GetReqLogger(c, lc.log)

	payload, err := readObject(c)
	if err != nil {
		if apiresponses.IsBodyTooLarge(err) {
			apiresponses.RespondPayloadTooLarge(c)
			return
		}
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidJSON, "Invalid JSON payload")
		return
	}
	if payload == nil {
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidPayload, "Request body must be an object")
		return
	}

	clean := SanitizePayload(payload)
	kind, _ := clean["type"].(string)
	if kind == "" {
		kind = "unknown"
	}
	level := normalizeLevel(clean["level"])
	metrics.ClientLogsReceived.WithLabelValues("log", level).Inc()

	kv := make([]interface{}, 0, 2*len(clean)+4)
	kv = append(kv, "ip", system.MaskIP(c.ClientIP()), "clientType", kind)
	for k, v := range clean {
		if k == "type" || k == "level" {
			continue
		}
		kv = append(kv, "client."+k, v)
	}
	switch level {
	case "error":
		reqLog.Errorw("Client log", kv...)
	case "warn":
		reqLog.Warnw("Client log", kv...)
	default:
		reqLog.Infow("Client log", kv...)
	}

	ev := audit.NewEvent(audit.EventClientLog, "Client log received", clean)
	ev.Context["ip"] = system.MaskIP(c.ClientIP())
	lc.audit.Emit(c.Request.Context(), ev)

	apiresponses.RespondOK(c, gin.H{"success": true, "message": "Log recorded"})
}

// ErrorReport is a sanitized browser error
type ErrorReport struct {
	Message   string    `json:"message"`
	Source    string    `json:"source,omitempty"`
	Line      int       `json:"line,omitempty"`
	Column    int       `json:"column,omitempty"`
	Stack     string    `json:"stack,omitempty"`
	UserAgent string    `json:"userAgent,omitempty"`
	URL       string    `json:"url,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

var stringFields = []string{"source", "userAgent", "url", "timestamp", "stack"}

// validReport reports whether raw carries a string message and correctly
// typed optional fields
func validReport(raw map[string]interface{}) bool {
	if msg, ok := raw["message"].(string); !ok || msg == "" {
		return false
	}
	for _, f := range stringFields {
		if v, present := raw[f]; present && v != nil {
			if _, ok := v.(string); !ok {
				return false
			}
		}
	}
	for _, f := range []string{"line", "column"} {
		if v, present := raw[f]; present && v != nil {
			n, ok := v.(float64)
			if !ok || n < 0 {
				return false
			}
		}
	}
	return true
}

// NewErrorReport sanitizes a validated raw report. A missing or unparsable
// timestamp is replaced with now.
func NewErrorReport(raw map[string]interface{}, now time.Time) ErrorReport {
	str := func(k string) string {
		s, _ := raw[k].(string)
		return s
	}
	num := func(k string) int {
		n, _ := raw[k].(float64)
		if n > 0 {
			return int(n)
		}
		return 0
	}

	r := ErrorReport{
		Message:   ScrubMessage(str("message")),
		Line:      num("line"),
		Column:    num("column"),
		Timestamp: now.UTC(),
	}
	if s := str("source"); s != "" {
		r.Source = SanitizeURL(s)
	}
	if s := str("url"); s != "" {
		r.URL = SanitizeURL(s)
	}
	if s := str("userAgent"); s != "" {
		r.UserAgent = SanitizeUserAgent(s)
	}
	if s := str("stack"); s != "" {
		r.Stack = SanitizeStack(s)
	}
	if ts, err := time.Parse(time.RFC3339Nano, str("timestamp")); err == nil {
		r.Timestamp = ts.UTC()
	}
	return r
}

func (lc *Controller) handleError(c *gin.Context) {
	reqLog := system.GetReqLogger(c, lc.log)

	raw, err := readObject(c)
	if err != nil {
		if apiresponses.IsBodyTooLarge(err) {
			apiresponses.RespondPayloadTooLarge(c)
			return
		}
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidJSON, "Request body must be valid JSON")
		return
	}
	if raw == nil || !validReport(raw) {
		apiresponses.RespondError(c, http.StatusBadRequest, CodeInvalidPayload,
			"Error data validation failed. Required: message (string)")
		return
	}

	report := NewErrorReport(raw, lc.now())
	ip := system.MaskIP(c.ClientIP())
	metrics.ClientLogsReceived.WithLabelValues("error", "error").Inc()

	reqLog.Errorw("Client error",
		"message", report.Message,
		"source", report.Source,
		"line", report.Line,
		"column", report.Column,
		"url", report.URL,
		"userAgent", report.UserAgent,
		"stack", report.Stack,
		"reportedAt", report.Timestamp,
		"ip", ip,
	)
	lc.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventClientError, "Client error reported", map[string]interface{}{
		"message":   report.Message,
		"source":    report.Source,
		"line":      report.Line,
		"column":    report.Column,
		"url":       report.URL,
		"userAgent": report.UserAgent,
		"ip":        ip,
	}))

	apiresponses.RespondOK(c, gin.H{"success": true, "message": "Error logged successfully"})
}
