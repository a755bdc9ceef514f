// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/system"
)

// Gin context keys set for admitted requests
const (
	ContextKeyIdentity = "identity"
	ContextKeyAdminID  = "admin_id"
	ContextKeyUsername = "username"
	ContextKeyRole     = "role"
)

// Headers forwarded to admitted requests' responses
const (
	HeaderAdminUsername = "X-Admin-Username"
	HeaderAdminRole     = "X-Admin-Role"
)

// DefaultLoginPath is where unauthenticated page requests are redirected
const DefaultLoginPath = "/admin"

// Policy is the action a Rule applies to a matching request
type Policy int

const (
	Passthrough Policy = iota
	Public
	ProtectedAPI
	ProtectedPage
)

func (p Policy) String() string {
	switch p {
	case Public:
		return "public"
	case ProtectedAPI:
		return "protected_api"
	case ProtectedPage:
		return "protected_page"
	default:
		return "passthrough"
	}
}

// State is the outcome of reading the session cookie
type State int

const (
	NoToken State = iota
	Valid
	Expired
	Malformed
)

func (s State) String() string {
	switch s {
	case Valid:
		return "valid"
	case Expired:
		return "expired"
	case Malformed:
		return "malformed"
	default:
		return "no_token"
	}
}

// Matcher reports whether a request path belongs to a rule
type Matcher func(path string) bool

// Exact matches any of the given paths literally
func Exact(paths ...string) Matcher {
	return func(path string) bool {
		for _, p := range paths {
			if path == p {
				return true
			}
		}
		return false
	}
}

// Prefix matches prefix itself and everything below it as a path segment,
// so Prefix("/admin") matches "/admin/leads" but not "/administrator".
func Prefix(prefix string) Matcher {
	prefix = strings.TrimRight(prefix, "/")
	return func(path string) bool {
		return path == prefix || strings.HasPrefix(path, prefix+"/")
	}
}

// Rule binds a path matcher to a policy
type Rule struct {
	Name   string
	Match  Matcher
	Policy Policy
}

// DefaultRules returns the admin surface rules. Order matters: first match wins.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "login-page", Match: Exact("/admin", "/admin/"), Policy: Public},
		{Name: "admin-assets", Match: Prefix("/admin/assets"), Policy: Public},
		{Name: "auth-login", Match: Exact("/api/admin/auth/login"), Policy: Public},
		{Name: "auth-logout", Match: Exact("/api/admin/auth/logout"), Policy: Public},
		{Name: "admin-api", Match: Prefix("/api/admin"), Policy: ProtectedAPI},
		{Name: "admin-pages", Match: Prefix("/admin"), Policy: ProtectedPage},
	}
}

// GuardOptions configures a Guard
type GuardOptions struct {
	// Rules defaults to DefaultRules()
	Rules []Rule
	// SecureCookie is set on cleared cookies
	SecureCookie bool
	// LoginPath defaults to DefaultLoginPath
	LoginPath string
	Log       *zap.SugaredLogger
}

// Guard admits or rejects requests to the admin surface based on the session cookie
type Guard struct {
	tokens    *Manager
	rules     []Rule
	secure    bool
	loginPath string
	log       *zap.SugaredLogger
}

// NewGuard creates a Guard verifying tokens with m
func NewGuard(m *Manager, opts GuardOptions) *Guard {
	g := &Guard{
		tokens:    m,
		rules:     opts.Rules,
		secure:    opts.SecureCookie,
		loginPath: opts.LoginPath,
		log:       opts.Log,
	}
	if g.rules == nil {
		g.rules = DefaultRules()
	}
	if g.loginPath == "" {
		g.loginPath = DefaultLoginPath
	}
	if g.log == nil {
		g.log = zap.NewNop().Sugar()
	}
	return g
}

// Resolve returns the first rule matching path. A miss means passthrough.
func (g *Guard) Resolve(path string) (Rule, bool) {
	for _, r := range g.rules {
		if r.Match(path) {
			return r, true
		}
	}
	return Rule{Name: "none", Policy: Passthrough}, false
}

// Evaluate reads and verifies the session cookie of r
func (g *Guard) Evaluate(r *http.Request) (State, Identity) {
	raw := TokenFromRequest(r)
	if raw == "" {
		return NoToken, Identity{}
	}
	id, err := g.tokens.Verify(raw)
	switch {
	case err == nil:
		return Valid, id
	case errors.Is(err, ErrTokenExpired):
		return Expired, Identity{}
	default:
		return Malformed, Identity{}
	}
}

// Middleware applies the rule list to every request
func (g *Guard) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		rule, _ := g.Resolve(c.Request.URL.Path)
		if rule.Policy == Passthrough || rule.Policy == Public {
			metrics.GuardDecisions.WithLabelValues(rule.Name, rule.Policy.String()).Inc()
			c.Next()
			return
		}

		state, id := g.Evaluate(c.Request)
		metrics.GuardDecisions.WithLabelValues(rule.Name, state.String()).Inc()

		if state == Valid {
			g.admit(c, id)
			c.Next()
			return
		}

		reqLog := system.GetReqLogger(c, g.log)
		if state != NoToken {
			reqLog.Infow("Rejected admin session", "rule", rule.Name, "state", state.String(), "path", c.Request.URL.Path)
		}

		if rule.Policy == ProtectedPage {
			ClearCookie(c.Writer, g.secure)
			c.Redirect(http.StatusFound, g.loginPath)
			c.Abort()
			return
		}

		if state == NoToken {
			apiresponses.RespondUnauthorized(c)
		} else {
			ClearCookie(c.Writer, g.secure)
			apiresponses.RespondUnauthorizedWithCode(c, apiresponses.CodeInvalidToken, "Invalid or expired session")
		}
		c.Abort()
	}
}

func (g *Guard) admit(c *gin.Context, id Identity) {
	c.Set(ContextKeyIdentity, id)
	c.Set(ContextKeyAdminID, id.ID)
	c.Set(ContextKeyUsername, id.Username)
	c.Set(ContextKeyRole, id.Role)
	c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
	c.Header(HeaderAdminUsername, id.Username)
	c.Header(HeaderAdminRole, id.Role)

	reqLog := system.GetReqLogger(c, g.log)
	c.Set(system.ReqLoggerKey, system.EnrichReqLoggerWithAuth(c, reqLog))
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFrom returns the admin identity stored in ctx by the guard
func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	return id, ok
}

// IdentityFromGin returns the admin identity stored in the gin context
func IdentityFromGin(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(ContextKeyIdentity)
	if !ok {
		return Identity{}, false
	}
	id, ok := v.(Identity)
	return id, ok
}
