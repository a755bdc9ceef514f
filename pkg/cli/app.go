// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/nslnv/leaddesk/pkg/admin"
	"github.com/nslnv/leaddesk/pkg/api"
	"github.com/nslnv/leaddesk/pkg/audit"
	"github.com/nslnv/leaddesk/pkg/clientlog"
	"github.com/nslnv/leaddesk/pkg/config"
	"github.com/nslnv/leaddesk/pkg/database"
	"github.com/nslnv/leaddesk/pkg/leads"
	"github.com/nslnv/leaddesk/pkg/mail"
	"github.com/nslnv/leaddesk/pkg/ratelimit"
	"github.com/nslnv/leaddesk/pkg/session"
	"github.com/nslnv/leaddesk/pkg/telemetry"
	"github.com/nslnv/leaddesk/pkg/version"
)

// limiterFactory builds the fixed-window limiter for one named policy
type limiterFactory func(policy string, cfg ratelimit.Config) (ratelimit.Limiter, error)

func memoryLimiters(_ string, cfg ratelimit.Config) (ratelimit.Limiter, error) {
	return ratelimit.NewFixedWindow(cfg), nil
}

func redisLimiters(rdb redis.UniversalClient, prefix string) limiterFactory {
	return func(policy string, cfg ratelimit.Config) (ratelimit.Limiter, error) {
		return ratelimit.NewRedisFixedWindow(rdb, ratelimit.RedisConfig{
			Config: cfg,
			Prefix: fmt.Sprintf("%s:ratelimit:%s", prefix, policy),
		})
	}
}

// buildServer wires every component described by cfg into an api.Server.
// On error everything built so far is released.
func buildServer(ctx context.Context, cfg config.Config, log *zap.Logger, debug bool) (_ *api.Server, err error) {
	sugar := log.Sugar()

	tokens, err := session.NewManager(cfg.Session.Secret,
		session.WithTTL(cfg.Session.TTL),
		session.WithIssuer(cfg.Session.Issuer),
	)
	if err != nil {
		return nil, fmt.Errorf("creating session manager: %w", err)
	}
	guard := session.NewGuard(tokens, session.GuardOptions{
		SecureCookie: cfg.Session.SecureCookie,
		LoginPath:    cfg.Frontend.BasePath,
		Log:          sugar.Named("guard"),
	})

	server := api.NewServer(log, cfg, debug, guard.Middleware())
	defer func() {
		if err != nil {
			server.Close()
		}
	}()

	_, shutdownTracing, err := telemetry.Init(ctx, telemetry.OptionsFromConfig(cfg.Telemetry, cfg.Environment, version.Version, sugar))
	if err != nil {
		return nil, err
	}
	server.OnClose(func() {
		if err := shutdownTracing(context.Background()); err != nil {
			sugar.Warnw("Failed to flush traces", "error", err)
		}
	})

	db, err := database.Open(ctx, cfg.Database, sugar.Named("database"))
	if err != nil {
		return nil, err
	}
	server.OnClose(func() { _ = db.Close() })
	if err := db.Migrate(ctx); err != nil {
		return nil, err
	}
	server.WithHealthCheck("database", db.PingContext)

	newLimiter := limiterFactory(memoryLimiters)
	if cfg.RateLimits.Store == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		server.OnClose(func() { _ = rdb.Close() })
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Redis.Addr, err)
		}
		server.WithHealthCheck("redis", func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		})
		newLimiter = redisLimiters(rdb, cfg.Redis.Prefix)
		sugar.Infow("Rate limit counters stored in redis", "addr", cfg.Redis.Addr)
	}

	limiters := map[string]ratelimit.Limiter{}
	for policy, lc := range map[string]ratelimit.Config{
		"login":        cfg.RateLimits.Login,
		"leads":        cfg.RateLimits.Leads,
		"client_log":   cfg.RateLimits.Log,
		"client_error": cfg.RateLimits.ErrorLog,
	} {
		l, err := newLimiter(policy, lc)
		if err != nil {
			return nil, fmt.Errorf("creating %s rate limiter: %w", policy, err)
		}
		server.OnClose(l.Stop)
		limiters[policy] = l
	}
	adminThrottle := ratelimit.NewTokenBucket(cfg.RateLimits.AdminAPI)
	server.OnClose(adminThrottle.Stop)

	auditor, stored, err := buildAuditService(cfg.Audit, db, log)
	if err != nil {
		return nil, err
	}
	server.OnClose(func() {
		if err := auditor.Close(); err != nil {
			sugar.Warnw("Failed to close audit service", "error", err)
		}
	})

	mailer := mail.NewService(cfg.Mail, sugar.Named("mail")).WithAuditService(auditor)
	mailer.Start()
	server.OnClose(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := mailer.Stop(stopCtx); err != nil {
			sugar.Warnw("Mail queue did not drain", "error", err)
		}
	})
	if !mailer.IsEnabled() {
		sugar.Warn("SMTP is not configured, new lead notifications are disabled")
	}

	authenticator, err := admin.NewAuthenticator(admin.NewUserStore(db), 0)
	if err != nil {
		return nil, err
	}
	throttle := adminThrottle.Middleware("admin_api", func(c *gin.Context) string {
		return c.GetString(session.ContextKeyUsername)
	})
	store := leads.NewStore(db)

	controllers := []api.APIController{
		leads.NewPublicController(sugar.Named("leads"), store, limiters["leads"]).
			WithAuditService(auditor).
			WithNotifier(mailer),
		leads.NewAdminController(sugar.Named("admin-leads"), store, throttle).
			WithAuditService(auditor),
		admin.NewAuthController(sugar.Named("admin-auth"), authenticator, tokens,
			limiters["login"], cfg.Session.SecureCookie).
			WithAuditService(auditor),
		clientlog.NewController(sugar.Named("client"), limiters["client_log"], limiters["client_error"]).
			WithAuditService(auditor),
	}
	if stored != nil {
		controllers = append(controllers, admin.NewAuditController(sugar.Named("admin-audit"), stored, throttle))
	}
	if err := server.RegisterAll(controllers); err != nil {
		return nil, err
	}
	return server, nil
}

// buildAuditService always logs events; the database and Kafka sinks are
// optional. The returned SQLSink is nil unless events are stored.
func buildAuditService(cfg config.Audit, db *database.DB, log *zap.Logger) (*audit.Service, *audit.SQLSink, error) {
	sinks := []audit.Sink{audit.NewLogSink(log)}
	var stored *audit.SQLSink
	if cfg.Database {
		stored = audit.NewSQLSink(db)
		sinks = append(sinks, stored)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		ks, err := audit.NewKafkaSink(audit.KafkaSinkConfig{
			Brokers:      cfg.Kafka.Brokers,
			Topic:        cfg.Kafka.Topic,
			TLS:          cfg.Kafka.TLS,
			Source:       cfg.Kafka.Source,
			BatchSize:    cfg.Kafka.BatchSize,
			BatchTimeout: cfg.Kafka.BatchTimeout,
		}, log)
		if err != nil {
			return nil, nil, fmt.Errorf("creating kafka audit sink: %w", err)
		}
		sinks = append(sinks, audit.NewCircuitBreakerSink(ks, audit.CircuitBreakerConfig{}, log))
	}
	return audit.NewService(sinks, audit.ServiceConfig{
		QueueSize:   cfg.QueueSize,
		WorkerCount: cfg.Workers,
	}, log), stored, nil
}
