package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nslnv/leaddesk/pkg/apiresponses"
	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/metrics"
	"github.com/nslnv/leaddesk/pkg/telemetry"
	"github.com/nslnv/leaddesk/pkg/version"
)

// MaxBodyBytes bounds every request body
const MaxBodyBytes = 1 << 20

type APIController interface {
	BasePath() string
	Register(rg *gin.RouterGroup) error
	Handlers() []gin.HandlerFunc
}

// HealthCheck reports whether a dependency is usable
type HealthCheck func(ctx context.Context) error

type Server struct {
	gin    *gin.Engine
	config config.Config
	log    *zap.Logger

	mu      sync.Mutex
	checks  map[string]HealthCheck
	closers []func()
	closed  bool
}

// NewServer builds the engine. guard is the session guard middleware; it runs
// for every request, including the admin UI fallback.
func NewServer(log *zap.Logger, cfg config.Config, debug bool, guard gin.HandlerFunc) *Server {
	if !debug {
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()
	if err := engine.SetTrustedProxies(cfg.Server.TrustedProxies); err != nil {
		log.Warn("Invalid trusted proxies, trusting none", zap.Error(err))
		_ = engine.SetTrustedProxies(nil)
	}

	engine.Use(
		requestID(log.Sugar()),
		ginzap.GinzapWithConfig(log, &ginzap.Config{
			TimeFormat: time.RFC3339,
			UTC:        true,
			SkipPaths:  []string{"/healthz", "/metrics"},
			Context: func(c *gin.Context) []zapcore.Field {
				return []zapcore.Field{zap.String("requestId", c.GetString(ContextKeyRequestID))}
			},
		}),
		ginzap.RecoveryWithZap(log, true),
		limitBody(MaxBodyBytes),
		telemetry.Middleware(),
	)

	if origins := corsOrigins(cfg, debug); len(origins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     origins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Accept", HeaderRequestID},
			ExposeHeaders:    []string{HeaderRequestID, "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	if guard != nil {
		engine.Use(guard)
	}

	s := &Server{
		gin:    engine,
		config: cfg,
		log:    log,
		checks: map[string]HealthCheck{},
	}

	engine.GET("/healthz", s.healthz)
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))
	engine.GET("/api/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, version.GetBuildInfo())
	})

	spa := ServeSPA(cfg.Frontend.BasePath, cfg.Frontend.Dir)
	engine.NoRoute(func(c *gin.Context) {
		path := c.Request.URL.Path
		if cfg.Frontend.BasePath != "" && isUnder(path, cfg.Frontend.BasePath) {
			spa(c)
			return
		}
		c.JSON(http.StatusNotFound, gin.H{
			"ok":    false,
			"code":  apiresponses.CodeNotFound,
			"error": "Not found",
			"path":  path,
		})
	})

	return s
}

func corsOrigins(cfg config.Config, debug bool) []string {
	if len(cfg.Server.CORSOrigins) > 0 {
		return cfg.Server.CORSOrigins
	}
	if debug {
		// vite dev server
		return []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	}
	return nil
}

func isUnder(path, prefix string) bool {
	prefix = strings.TrimRight(prefix, "/")
	return path == prefix || strings.HasPrefix(path, prefix+"/")
}

// WithHealthCheck adds a named dependency check to /healthz
func (s *Server) WithHealthCheck(name string, check HealthCheck) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checks[name] = check
	return s
}

// OnClose registers fn to run once in Close, in reverse registration order
func (s *Server) OnClose(fn func()) *Server {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closers = append(s.closers, fn)
	return s
}

func (s *Server) RegisterAll(controllers []APIController) error {
	r := s.gin.Group("api")
	for _, c := range controllers {
		if err := c.Register(r.Group(c.BasePath(), c.Handlers()...)); err != nil {
			return fmt.Errorf("registering %s: %w", c.BasePath(), err)
		}
	}
	return nil
}

// Handler returns the engine for use with httptest or a custom http.Server
func (s *Server) Handler() http.Handler {
	return s.gin
}

func (s *Server) healthz(c *gin.Context) {
	s.mu.Lock()
	checks := make(map[string]HealthCheck, len(s.checks))
	for k, v := range s.checks {
		checks[k] = v
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(checks))
	for name, check := range checks {
		if err := check(ctx); err != nil {
			s.log.Warn("Health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "unavailable"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	c.JSON(status, gin.H{"status": overall, "checks": results})
}

func (s *Server) newHTTPServer() *http.Server {
	sc := s.config.Server
	return &http.Server{
		Addr:              sc.ListenAddress,
		Handler:           s.gin,
		ReadTimeout:       sc.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      sc.WriteTimeout,
		IdleTimeout:       sc.IdleTimeout,
	}
}

// Run listens on the configured address until ctx is cancelled, then shuts
// down gracefully and runs the close hooks.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.config.Server.ListenAddress, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := s.newHTTPServer()
	sc := s.config.Server
	tls := sc.TLSCertFile != "" && sc.TLSKeyFile != ""

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", zap.String("address", ln.Addr().String()), zap.Bool("tls", tls))
		var err error
		if tls {
			err = srv.ServeTLS(ln, sc.TLSCertFile, sc.TLSKeyFile)
		} else {
			err = srv.Serve(ln)
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	timeout := sc.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	s.log.Info("Shutting down HTTP server", zap.Duration("timeout", timeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.Close()
	if err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

// Close runs the close hooks. Safe to call twice.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	closers := s.closers
	s.mu.Unlock()

	for i := len(closers) - 1; i >= 0; i-- {
		closers[i]()
	}
}
