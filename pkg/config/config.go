// SPDX-FileCopyrightText: 2025 NSLNV
//
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"

	"github.com/nslnv/leaddesk/pkg/ratelimit"
)

// Environment variables that override the file configuration
const (
	EnvConfigPath  = "LEADDESK_CONFIG_PATH"
	EnvEnvironment = "LEADDESK_ENV"
	EnvJWTSecret   = "ADMIN_JWT_SECRET"
	EnvDatabaseDSN = "DATABASE_DSN"
	EnvRedisAddr   = "REDIS_ADDR"
	EnvSMTPPass    = "SMTP_PASSWORD"
)

// DefaultPath is used when neither a flag nor LEADDESK_CONFIG_PATH names a file
const DefaultPath = "./config.yaml"

// MinProductionSecretLength is the shortest session secret accepted in production
const MinProductionSecretLength = 32

type Server struct {
	ListenAddress   string        `yaml:"listenAddress"`
	TLSCertFile     string        `yaml:"tlsCertFile"`
	TLSKeyFile      string        `yaml:"tlsKeyFile"`
	TrustedProxies  []string      `yaml:"trustedProxies"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	IdleTimeout     time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

type Session struct {
	// Secret signs session tokens (HS256). Prefer ADMIN_JWT_SECRET over the file.
	Secret string        `yaml:"secret"`
	TTL    time.Duration `yaml:"ttl"`
	Issuer string        `yaml:"issuer"`
	// SecureCookie is forced on in production
	SecureCookie bool `yaml:"secureCookie"`
}

type RateLimits struct {
	// Store selects the fixed-window backend: "memory" or "redis"
	Store    string                 `yaml:"store"`
	Login    ratelimit.Config       `yaml:"login"`
	Leads    ratelimit.Config       `yaml:"leads"`
	Log      ratelimit.Config       `yaml:"log"`
	ErrorLog ratelimit.Config       `yaml:"errorLog"`
	AdminAPI ratelimit.BucketConfig `yaml:"adminAPI"`
}

type Database struct {
	// Driver is one of sqlite, postgres, mysql
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
	PingTimeout     time.Duration `yaml:"pingTimeout"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type Mail struct {
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	User               string        `yaml:"user"`
	Password           string        `yaml:"password"`
	SenderAddress      string        `yaml:"senderAddress"`
	SenderName         string        `yaml:"senderName"`
	Recipients         []string      `yaml:"recipients"`
	InsecureSkipVerify bool          `yaml:"insecureSkipVerify"`
	RetryCount         int           `yaml:"retryCount"`
	RetryBackoff       time.Duration `yaml:"retryBackoff"`
	QueueSize          int           `yaml:"queueSize"`
	// AdminURL is linked from notification mails
	AdminURL string `yaml:"adminURL"`
}

// Enabled reports whether enough is configured to send mail
func (m Mail) Enabled() bool {
	return m.Host != "" && len(m.Recipients) > 0
}

type Kafka struct {
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batchSize"`
	BatchTimeout time.Duration `yaml:"batchTimeout"`
	TLS          bool          `yaml:"tls"`
	// Source is sent with every message, defaults to "leaddesk"
	Source string `yaml:"source"`
}

type Audit struct {
	QueueSize int `yaml:"queueSize"`
	Workers   int `yaml:"workers"`
	// Database persists events into audit_logs (readable from the admin API)
	Database bool  `yaml:"database"`
	Kafka    Kafka `yaml:"kafka"`
}

type Telemetry struct {
	Enabled bool `yaml:"enabled"`
	// Exporter is "otlp" or "stdout"
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	Insecure     bool    `yaml:"insecure"`
	ServiceName  string  `yaml:"serviceName"`
	SamplingRate float64 `yaml:"samplingRate"`
}

type Frontend struct {
	// Dir holds the built admin UI
	Dir string `yaml:"dir"`
	// BasePath is where the admin UI is mounted
	BasePath string `yaml:"basePath"`
}

type Config struct {
	// Environment is "production" or anything else (development)
	Environment string     `yaml:"environment"`
	LogLevel    string     `yaml:"logLevel"`
	Server      Server     `yaml:"server"`
	Session     Session    `yaml:"session"`
	RateLimits  RateLimits `yaml:"rateLimits"`
	Database    Database   `yaml:"database"`
	Redis       Redis      `yaml:"redis"`
	Mail        Mail       `yaml:"mail"`
	Audit       Audit      `yaml:"audit"`
	Telemetry   Telemetry  `yaml:"telemetry"`
	Frontend    Frontend   `yaml:"frontend"`
}

// IsProduction reports whether the service runs in production mode
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

// Load reads the configuration file, applies a .env overlay and environment
// overrides, and fills defaults. The file is optional when no path was given
// explicitly. Validate is left to the caller.
func Load(configPath ...string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("loading .env: %w", err)
	}

	path := ""
	explicit := false
	if len(configPath) > 0 && configPath[0] != "" {
		path, explicit = configPath[0], true
	} else if p := os.Getenv(EnvConfigPath); p != "" {
		path, explicit = p, true
	} else {
		path = DefaultPath
	}

	var config Config
	content, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(content, &config); err != nil {
			return config, fmt.Errorf("error unmarshaling YAML %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
		// env-only configuration
	default:
		return config, fmt.Errorf("trying to open config file %s: %w", path, err)
	}

	config.applyEnv()
	config.Defaults()
	return config, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvEnvironment); v != "" {
		c.Environment = v
	}
	if v := os.Getenv(EnvJWTSecret); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv(EnvDatabaseDSN); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv(EnvRedisAddr); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv(EnvSMTPPass); v != "" {
		c.Mail.Password = v
	}
}

// Defaults fills every unset field with its default value
func (c *Config) Defaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}

	s := &c.Server
	if s.ListenAddress == "" {
		s.ListenAddress = ":8080"
	}
	if s.ReadTimeout <= 0 {
		s.ReadTimeout = 15 * time.Second
	}
	if s.WriteTimeout <= 0 {
		s.WriteTimeout = 30 * time.Second
	}
	if s.IdleTimeout <= 0 {
		s.IdleTimeout = 60 * time.Second
	}
	if s.ShutdownTimeout <= 0 {
		s.ShutdownTimeout = 15 * time.Second
	}

	if c.Session.TTL <= 0 {
		c.Session.TTL = 7 * 24 * time.Hour
	}
	if c.Session.Issuer == "" {
		c.Session.Issuer = "leaddesk"
	}
	if c.IsProduction() {
		c.Session.SecureCookie = true
	}

	rl := &c.RateLimits
	if rl.Store == "" {
		rl.Store = "memory"
	}
	fillLimit(&rl.Login, ratelimit.DefaultLoginConfig())
	fillLimit(&rl.Leads, ratelimit.DefaultLeadConfig())
	fillLimit(&rl.Log, ratelimit.DefaultLogConfig())
	fillLimit(&rl.ErrorLog, ratelimit.DefaultLogConfig())
	def := ratelimit.DefaultAdminAPIConfig()
	if rl.AdminAPI.Rate <= 0 {
		rl.AdminAPI.Rate = def.Rate
	}
	if rl.AdminAPI.Burst <= 0 {
		rl.AdminAPI.Burst = def.Burst
	}
	if rl.AdminAPI.CleanupInterval <= 0 {
		rl.AdminAPI.CleanupInterval = def.CleanupInterval
	}
	if rl.AdminAPI.MaxAge <= 0 {
		rl.AdminAPI.MaxAge = def.MaxAge
	}

	db := &c.Database
	if db.Driver == "" {
		db.Driver = "sqlite"
	}
	if db.DSN == "" && db.Driver == "sqlite" {
		db.DSN = "file:leaddesk.db"
	}
	if db.MaxOpenConns <= 0 {
		db.MaxOpenConns = 10
	}
	if db.MaxIdleConns <= 0 {
		db.MaxIdleConns = 5
	}
	if db.ConnMaxLifetime <= 0 {
		db.ConnMaxLifetime = 30 * time.Minute
	}
	if db.PingTimeout <= 0 {
		db.PingTimeout = 5 * time.Second
	}

	if c.Redis.Prefix == "" {
		c.Redis.Prefix = "leaddesk"
	}

	m := &c.Mail
	if m.Port == 0 {
		m.Port = 587
	}
	if m.SenderName == "" {
		m.SenderName = "Leaddesk"
	}
	if m.RetryCount <= 0 {
		m.RetryCount = 3
	}
	if m.RetryBackoff <= 0 {
		m.RetryBackoff = 2 * time.Second
	}
	if m.QueueSize <= 0 {
		m.QueueSize = 100
	}

	a := &c.Audit
	if a.QueueSize <= 0 {
		a.QueueSize = 1000
	}
	if a.Workers <= 0 {
		a.Workers = 2
	}
	if a.Kafka.Topic == "" {
		a.Kafka.Topic = "leaddesk-audit"
	}
	if a.Kafka.BatchSize <= 0 {
		a.Kafka.BatchSize = 100
	}
	if a.Kafka.BatchTimeout <= 0 {
		a.Kafka.BatchTimeout = time.Second
	}

	t := &c.Telemetry
	if t.Exporter == "" {
		t.Exporter = "otlp"
	}
	if t.ServiceName == "" {
		t.ServiceName = "leaddesk"
	}
	if t.SamplingRate <= 0 {
		t.SamplingRate = 1.0
	}

	if c.Frontend.Dir == "" {
		c.Frontend.Dir = "./frontend/dist"
	}
	if c.Frontend.BasePath == "" {
		c.Frontend.BasePath = "/admin"
	}
}

func fillLimit(dst *ratelimit.Config, def ratelimit.Config) {
	if dst.MaxRequests <= 0 {
		dst.MaxRequests = def.MaxRequests
	}
	if dst.Window <= 0 {
		dst.Window = def.Window
	}
	if dst.SweepInterval <= 0 {
		dst.SweepInterval = def.SweepInterval
	}
}

// Validate rejects configurations the server must not start with
func (c Config) Validate() error {
	var errs []error

	if c.Session.Secret == "" {
		errs = append(errs, fmt.Errorf("session secret is required (set %s)", EnvJWTSecret))
	} else if c.IsProduction() && len(c.Session.Secret) < MinProductionSecretLength {
		errs = append(errs, fmt.Errorf("session secret must be at least %d characters in production", MinProductionSecretLength))
	}

	switch c.Database.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Database.DSN == "" {
		errs = append(errs, fmt.Errorf("database dsn is required for driver %s", c.Database.Driver))
	}

	switch c.RateLimits.Store {
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, fmt.Errorf("rateLimits.store=redis requires redis.addr"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported rate limit store %q", c.RateLimits.Store))
	}

	if c.Server.TLSCertFile != "" && c.Server.TLSKeyFile == "" || c.Server.TLSCertFile == "" && c.Server.TLSKeyFile != "" {
		errs = append(errs, fmt.Errorf("server.tlsCertFile and server.tlsKeyFile must be set together"))
	}

	if c.Telemetry.Enabled && c.Telemetry.Exporter != "otlp" && c.Telemetry.Exporter != "stdout" {
		errs = append(errs, fmt.Errorf("unsupported telemetry exporter %q", c.Telemetry.Exporter))
	}

	return errors.Join(errs...)
}
