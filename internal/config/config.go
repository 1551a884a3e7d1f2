// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package config loads EdgeGuard configuration.
//
// Sources are layered, later ones winning:
//
//  1. Built-in defaults (defaultConfig)
//  2. Optional YAML file (CONFIG_PATH, config.yaml, /etc/edgeguard/config.yaml)
//  3. Environment variables listed in envMappings
//
// Config is immutable after Load and safe for concurrent reads.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Logging   LoggingConfig   `koanf:"logging"`
	Security  SecurityConfig  `koanf:"security"`
	CSRF      CSRFConfig      `koanf:"csrf"`
	RateLimit RateLimitConfig `koanf:"ratelimit"`
	Redis     RedisConfig     `koanf:"redis"`
	Audit     AuditConfig     `koanf:"audit"`
	Scanner   ScannerConfig   `koanf:"scanner"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host            string        `koanf:"host"`
	Port            int           `koanf:"port"`
	ReadTimeout     time.Duration `koanf:"read_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	Environment     string        `koanf:"environment"` // development, staging, production
}

// LoggingConfig holds zerolog settings.
//
// Environment Variables:
//   - LOG_LEVEL: trace, debug, info, warn, error (default: info)
//   - LOG_FORMAT: json, console (default: json)
//   - LOG_CALLER: include caller file:line (default: false)
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SecurityConfig holds request-surface security settings shared by several components.
type SecurityConfig struct {
	// TrustedProxies lists CIDRs or IPs whose X-Forwarded-For / X-Real-IP headers are honoured.
	TrustedProxies []string `koanf:"trusted_proxies"`

	// AllowedOrigins feeds both CORS and the advisory Origin/Referer check.
	// ALLOWED_ORIGINS accepts a comma-separated list.
	AllowedOrigins []string `koanf:"allowed_origins"`

	CORSEnabled bool `koanf:"cors_enabled"`

	// GlobalRateLimit is a coarse per-IP backstop in front of the per-route limiter.
	GlobalRateLimit GlobalRateLimitConfig `koanf:"global_rate_limit"`

	Identity IdentityConfig `koanf:"identity"`
	Authz    AuthzConfig    `koanf:"authz"`
}

// GlobalRateLimitConfig configures the httprate backstop. Requests <= 0 disables it.
type GlobalRateLimitConfig struct {
	Requests int           `koanf:"requests"`
	Window   time.Duration `koanf:"window"`
}

// IdentityConfig configures how an upstream-resolved user identity is consumed.
// When AssertionSecret is empty, no user identity is read and clients are keyed by IP.
type IdentityConfig struct {
	AssertionHeader string `koanf:"assertion_header"`
	AssertionSecret string `koanf:"assertion_secret"`
}

// AuthzConfig configures role-based access to the administrative endpoints.
type AuthzConfig struct {
	Enabled     bool   `koanf:"enabled"`
	ModelPath   string `koanf:"model_path"`
	PolicyPath  string `koanf:"policy_path"`
	DefaultRole string `koanf:"default_role"`
}

// CSRFConfig holds double-submit token settings.
type CSRFConfig struct {
	TTL          time.Duration `koanf:"ttl"`
	CookieSecure bool          `koanf:"cookie_secure"`
	Store        string        `koanf:"store"` // memory or redis
}

// RateLimitConfig holds per-route fixed-window limits.
type RateLimitConfig struct {
	Store              string       `koanf:"store"` // memory or redis
	CleanupProbability float64      `koanf:"cleanup_probability"`
	Routes             RoutesConfig `koanf:"routes"`
}

// RouteRule is the (max requests, window) pair for one route.
type RouteRule struct {
	MaxRequests int           `koanf:"max_requests"`
	Window      time.Duration `koanf:"window"`
}

// RoutesConfig lists the rule for each protected route.
type RoutesConfig struct {
	CSRFToken       RouteRule `koanf:"csrf_token"`
	AuditIngest     RouteRule `koanf:"audit_ingest"`
	AuditQuery      RouteRule `koanf:"audit_query"`
	Scan            RouteRule `koanf:"scan"`
	ScanJobs        RouteRule `koanf:"scan_jobs"`
	Vulnerabilities RouteRule `koanf:"vulnerabilities"`
	Status          RouteRule `koanf:"status"`
	Stream          RouteRule `koanf:"stream"`
}

// Named returns the rules keyed by route name, for validation and logging.
func (r RoutesConfig) Named() map[string]RouteRule {
	return map[string]RouteRule{
		"csrf_token":      r.CSRFToken,
		"audit_ingest":    r.AuditIngest,
		"audit_query":     r.AuditQuery,
		"scan":            r.Scan,
		"scan_jobs":       r.ScanJobs,
		"vulnerabilities": r.Vulnerabilities,
		"status":          r.Status,
		"stream":          r.Stream,
	}
}

// RedisConfig is used when any store is set to redis.
type RedisConfig struct {
	Addr      string `koanf:"addr"`
	Password  string `koanf:"password"`
	DB        int    `koanf:"db"`
	KeyPrefix string `koanf:"key_prefix"`
}

// AuditConfig holds audit log settings.
type AuditConfig struct {
	Store               string        `koanf:"store"` // memory or duckdb
	DuckDBPath          string        `koanf:"duckdb_path"`
	BufferSize          int           `koanf:"buffer_size"`
	HighVolumeThreshold int           `koanf:"high_volume_threshold"`
	StatsWindow         time.Duration `koanf:"stats_window"`
	Anomaly             AnomalyConfig `koanf:"anomaly"`
	Publisher           string        `koanf:"publisher"` // gochannel or nats
	NATSURL             string        `koanf:"nats_url"`
	Topic               string        `koanf:"topic"`
}

// AnomalyConfig tunes the trailing-baseline anomaly detector.
type AnomalyConfig struct {
	Multiplier      float64 `koanf:"multiplier"`
	MinCount        int     `koanf:"min_count"`
	BaselineBuckets int     `koanf:"baseline_buckets"`

	// Ignore lists event types left out of detection (routine telemetry).
	Ignore []string `koanf:"ignore"`
}

// ScannerConfig holds vulnerability scanner settings.
type ScannerConfig struct {
	QuickTimeout      time.Duration `koanf:"quick_timeout"`
	FullTimeout       time.Duration `koanf:"full_timeout"`
	SyncWait          time.Duration `koanf:"sync_wait"`
	Workers           int           `koanf:"workers"`
	QueueSize         int           `koanf:"queue_size"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	MaxDepth          int           `koanf:"max_depth"`
	MaxTargets        int           `koanf:"max_targets"`
	UserAgent         string        `koanf:"user_agent"`
	RegistryMode      string        `koanf:"registry_mode"`  // dedup or append
	RegistryStore     string        `koanf:"registry_store"` // memory or badger
	BadgerPath        string        `koanf:"badger_path"`
	JobRetention      time.Duration `koanf:"job_retention"`
}

// Addr returns host:port for the HTTP listener.
func (s ServerConfig) Addr() string {
	return joinHostPort(s.Host, s.Port)
}

// IsProduction reports whether the server runs in production mode.
func (s ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}
