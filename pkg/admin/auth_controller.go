// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package admin

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
	"github.com/nslnv/leaddesk/pkg/session"
	"github.com/nslnv/leaddesk/pkg/system"
)

// Error codes returned by the login endpoint
const (
	CodeMissingUsername = "MISSING_USERNAME"
	CodeMissingPassword = "MISSING_PASSWORD"
)

var tracer = otel.Tracer("github.com/nslnv/leaddesk/pkg/admin")

// AuthController serves login, logout and the current identity
type AuthController struct {
	auth    *Authenticator
	tokens  *session.Manager
	limiter ratelimit.Limiter
	secure  bool
	log     *zap.SugaredLogger
	audit   audit.Emitter
}

// NewAuthController creates the controller. limiter throttles login attempts
// per client IP; secureCookie marks the session cookie Secure.
func NewAuthController(log *zap.SugaredLogger, auth *Authenticator, tokens *session.Manager,
	limiter ratelimit.Limiter, secureCookie bool,
) *AuthController {
	return &AuthController{
		auth:    auth,
		tokens:  tokens,
		limiter: limiter,
		secure:  secureCookie,
		log:     log,
		audit:   audit.Nop{},
	}
}

// WithAuditService sets where authentication events are reported
func (ac *AuthController) WithAuditService(e audit.Emitter) *AuthController {
	if e != nil {
		ac.audit = e
	}
	return ac
}

func (*AuthController) BasePath() string {
	return "admin/auth"
}

func (*AuthController) Handlers() []gin.HandlerFunc {
	return nil
}

func (ac *AuthController) Register(rg *gin.RouterGroup) error {
	limit := ratelimit.Middleware(ac.limiter, ratelimit.MiddlewareOptions{
		Policy:  "login",
		Message: "Too many login attempts. Please try again later.",
		Log:     ac.log,
		OnDeny: func(c *gin.Context, key string, _ ratelimit.Result) {
			metrics.AdminLogins.WithLabelValues("rate_limited").Inc()
			ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLoginThrottled, "Login rate limit exceeded",
				map[string]interface{}{"ip": system.MaskIP(key), "userAgent": c.Request.UserAgent()}))
		},
	})
	rg.POST("/login", limit, metrics.Instrumented("login", ac.handleLogin))
	rg.POST("/logout", metrics.Instrumented("logout", ac.handleLogout))
	for _, m := range []string{http.MethodGet, http.MethodPut, http.MethodPatch, http.MethodDelete} {
		rg.Handle(m, "/logout", apiresponses.RespondMethodNotAllowed)
	}
	rg.GET("/me", metrics.Instrumented("me", ac.handleMe))
	return nil
}

type loginRequest struct {
	// interface{} so that a non-string value reads as missing rather than malformed
	Username interface{} `json:"username"`
	Password interface{} `json:"password"`
}

func nonEmptyString(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// presentString accepts whitespace; only an absent or empty value is missing.
func presentString(v interface{}) (string, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

func (ac *AuthController) handleLogin(c *gin.Context) {
	ctx, span := tracer.Start(c.Request.Context(), "admin.Login")
	defer span.End()

	reqLog := system.GetReqLogger(c, ac.log)
	meta := map[string]interface{}{
		"ip":        system.MaskIP(c.ClientIP()),
		"userAgent": c.Request.UserAgent(),
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apiresponses.RespondBindError(c, err, "Invalid JSON body")
		return
	}
	username, ok := nonEmptyString(req.Username)
	if !ok {
		metrics.AdminLogins.WithLabelValues("invalid_request").Inc()
		ac.audit.Emit(ctx, audit.NewEvent(audit.EventLoginFailed, "Login attempt with missing username", withReason(meta, "missing_username")))
		apiresponses.RespondError(c, http.StatusBadRequest, CodeMissingUsername, "Username is required")
		return
	}
	username = NormalizeUsername(username)
	meta["username"] = username
	password, ok := presentString(req.Password)
	if !ok {
		metrics.AdminLogins.WithLabelValues("invalid_request").Inc()
		ac.audit.Emit(ctx, audit.NewEvent(audit.EventLoginFailed, "Login attempt with missing password", withReason(meta, "missing_password")))
		apiresponses.RespondError(c, http.StatusBadRequest, CodeMissingPassword, "Password is required")
		return
	}

	res, err := ac.auth.Authenticate(ctx, username, password)
	if errors.Is(err, ErrInvalidCredentials) {
		metrics.AdminLogins.WithLabelValues("invalid_credentials").Inc()
		span.SetAttributes(attribute.String("login.result", "invalid_credentials"))
		reason, msg := "invalid_password", "Login attempt with invalid password"
		if res.UnknownUser {
			reason, msg = "invalid_username", "Login attempt with invalid username"
		} else {
			meta["userId"] = res.User.ID
		}
		ac.audit.Emit(ctx, audit.NewEvent(audit.EventLoginFailed, msg, withReason(meta, reason)))
		apiresponses.RespondError(c, http.StatusUnauthorized, apiresponses.CodeInvalidCredentials, "Invalid username or password")
		return
	}
	if err != nil {
		metrics.AdminLogins.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "authentication failed")
		apiresponses.RespondInternalError(c, "authenticate admin", err, reqLog)
		return
	}

	user := res.User
	token, _, err := ac.tokens.Issue(session.Identity{ID: user.ID, Username: user.Username, Role: user.Role})
	if err != nil {
		metrics.AdminLogins.WithLabelValues("error").Inc()
		span.RecordError(err)
		apiresponses.RespondInternalError(c, "issue session token", err, reqLog)
		return
	}
	session.SetCookie(c.Writer, token, session.CookieOptions{Secure: ac.secure, MaxAge: ac.tokens.TTL()})

	metrics.AdminLogins.WithLabelValues("success").Inc()
	span.SetAttributes(attribute.String("login.result", "success"), attribute.Int64("admin.id", user.ID))
	meta["userId"] = user.ID
	meta["role"] = user.Role
	ac.audit.Emit(ctx, audit.NewEvent(audit.EventLoginSucceeded, "Successful admin login", meta))
	reqLog.Infow("Admin logged in", "admin", user.Username)

	apiresponses.RespondOK(c, gin.H{
		"ok":      true,
		"message": "Login successful",
		"user":    gin.H{"id": user.ID, "username": user.Username, "role": user.Role},
	})
}

func withReason(meta map[string]interface{}, reason string) map[string]interface{} {
	out := make(map[string]interface{}, len(meta)+1)
	for k, v := range meta {
		out[k] = v
	}
	out["reason"] = reason
	return out
}

func (ac *AuthController) handleLogout(c *gin.Context) {
	meta := map[string]interface{}{
		"ip":        system.MaskIP(c.ClientIP()),
		"userAgent": c.Request.UserAgent(),
	}
	hadSession := false
	if raw := session.TokenFromRequest(c.Request); raw != "" {
		if id, err := ac.tokens.Verify(raw); err == nil {
			meta["username"] = id.Username
			meta["userId"] = id.ID
			hadSession = true
		}
	}
	meta["hadActiveSession"] = hadSession

	session.ClearCookie(c.Writer, ac.secure)
	metrics.AdminLogouts.Inc()
	ac.audit.Emit(c.Request.Context(), audit.NewEvent(audit.EventLogout, "Admin logout", meta))

	apiresponses.RespondOK(c, gin.H{"ok": true, "message": "Logged out successfully"})
}

func (ac *AuthController) handleMe(c *gin.Context) {
	id, ok := session.IdentityFromGin(c)
	if !ok {
		apiresponses.RespondUnauthorized(c)
		return
	}
	apiresponses.RespondOK(c, gin.H{
		"ok":   true,
		"user": gin.H{"id": id.ID, "username": id.Username, "role": id.Role},
	})
}
