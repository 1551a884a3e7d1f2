// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths are searched in order when CONFIG_PATH is unset.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/edgeguard/config.yaml",
	"/etc/edgeguard/config.yml",
}

// ConfigPathEnvVar overrides the config file location.
const ConfigPathEnvVar = "CONFIG_PATH"

// Defaults returns the built-in configuration without reading any file or
// environment variable.
func Defaults() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	minute := time.Minute
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    60 * time.Second, // full scans may wait up to scanner.sync_wait
			ShutdownTimeout: 15 * time.Second,
			Environment:     "development",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Security: SecurityConfig{
			CORSEnabled: true,
			GlobalRateLimit: GlobalRateLimitConfig{
				Requests: 1000,
				Window:   minute,
			},
			Identity: IdentityConfig{
				AssertionHeader: "X-Edge-Identity",
			},
			Authz: AuthzConfig{
				Enabled:     false,
				DefaultRole: "viewer",
			},
		},
		CSRF: CSRFConfig{
			TTL:          24 * time.Hour,
			CookieSecure: true,
			Store:        "memory",
		},
		RateLimit: RateLimitConfig{
			Store:              "memory",
			CleanupProbability: 0.01,
			Routes: RoutesConfig{
				CSRFToken:       RouteRule{MaxRequests: 30, Window: minute},
				AuditIngest:     RouteRule{MaxRequests: 60, Window: minute},
				AuditQuery:      RouteRule{MaxRequests: 30, Window: minute},
				Scan:            RouteRule{MaxRequests: 5, Window: minute},
				ScanJobs:        RouteRule{MaxRequests: 60, Window: minute},
				Vulnerabilities: RouteRule{MaxRequests: 30, Window: minute},
				Status:          RouteRule{MaxRequests: 60, Window: minute},
				Stream:          RouteRule{MaxRequests: 10, Window: minute},
			},
		},
		Redis: RedisConfig{
			Addr:      "",
			KeyPrefix: "edgeguard",
		},
		Audit: AuditConfig{
			Store:               "memory",
			DuckDBPath:          "/data/edgeguard-audit.duckdb",
			BufferSize:          1024,
			HighVolumeThreshold: 10000,
			StatsWindow:         24 * time.Hour,
			Anomaly: AnomalyConfig{
				Multiplier:      3.0,
				MinCount:        3,
				BaselineBuckets: 24,
				Ignore:          []string{"API_REQUEST"},
			},
			Publisher: "gochannel",
			NATSURL:   "nats://127.0.0.1:4222",
			Topic:     "edgeguard.audit",
		},
		Scanner: ScannerConfig{
			QuickTimeout:      10 * time.Second,
			FullTimeout:       5 * time.Minute,
			SyncWait:          30 * time.Second,
			Workers:           2,
			QueueSize:         16,
			RequestsPerSecond: 5,
			MaxDepth:          3,
			MaxTargets:        20,
			UserAgent:         "EdgeGuard-Scanner/1.0",
			RegistryMode:      "dedup",
			RegistryStore:     "memory",
			BadgerPath:        "/data/edgeguard-registry",
			JobRetention:      time.Hour,
		},
	}
}

// Load reads configuration from defaults, the optional YAML file and the
// environment, then validates it.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom is Load with an explicit config file path. An empty path skips the file layer.
func LoadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	for _, p := range DefaultConfigPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// sliceConfigPaths are split on commas when they arrive as a single string (env vars).
var sliceConfigPaths = []string{
	"security.trusted_proxies",
	"security.allowed_origins",
	"audit.anomaly.ignore",
}

func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		parts := splitCSV(strVal)
		if err := k.Set(path, parts); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

func splitCSV(s string) []string {
	out := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// envMappings maps environment variable names (lowercased) to koanf paths.
// Variables not listed here are ignored.
var envMappings = map[string]string{
	"http_host":               "server.host",
	"http_port":               "server.port",
	"http_read_timeout":       "server.read_timeout",
	"http_write_timeout":      "server.write_timeout",
	"http_shutdown_timeout":   "server.shutdown_timeout",
	"environment":             "server.environment",
	"log_level":               "logging.level",
	"log_format":              "logging.format",
	"log_caller":              "logging.caller",
	"trusted_proxies":         "security.trusted_proxies",
	"allowed_origins":         "security.allowed_origins",
	"cors_enabled":            "security.cors_enabled",
	"global_rate_limit":       "security.global_rate_limit.requests",
	"global_rate_window":      "security.global_rate_limit.window",
	"identity_header":         "security.identity.assertion_header",
	"identity_secret":         "security.identity.assertion_secret",
	"authz_enabled":           "security.authz.enabled",
	"authz_model_path":        "security.authz.model_path",
	"authz_policy_path":       "security.authz.policy_path",
	"authz_default_role":      "security.authz.default_role",
	"csrf_ttl":                "csrf.ttl",
	"csrf_cookie_secure":      "csrf.cookie_secure",
	"csrf_store":              "csrf.store",
	"ratelimit_store":         "ratelimit.store",
	"ratelimit_cleanup_prob":  "ratelimit.cleanup_probability",
	"ratelimit_scan_max":      "ratelimit.routes.scan.max_requests",
	"ratelimit_scan_window":   "ratelimit.routes.scan.window",
	"ratelimit_ingest_max":    "ratelimit.routes.audit_ingest.max_requests",
	"ratelimit_ingest_window": "ratelimit.routes.audit_ingest.window",
	"ratelimit_query_max":     "ratelimit.routes.audit_query.max_requests",
	"ratelimit_query_window":  "ratelimit.routes.audit_query.window",
	"ratelimit_status_max":    "ratelimit.routes.status.max_requests",
	"ratelimit_status_window": "ratelimit.routes.status.window",
	"redis_addr":              "redis.addr",
	"redis_password":          "redis.password",
	"redis_db":                "redis.db",
	"redis_key_prefix":        "redis.key_prefix",
	"audit_store":             "audit.store",
	"audit_duckdb_path":       "audit.duckdb_path",
	"audit_buffer_size":       "audit.buffer_size",
	"audit_high_volume":       "audit.high_volume_threshold",
	"audit_stats_window":      "audit.stats_window",
	"audit_anomaly_mult":      "audit.anomaly.multiplier",
	"audit_anomaly_min":       "audit.anomaly.min_count",
	"audit_anomaly_baseline":  "audit.anomaly.baseline_buckets",
	"audit_anomaly_ignore":    "audit.anomaly.ignore",
	"audit_publisher":         "audit.publisher",
	"nats_url":                "audit.nats_url",
	"audit_topic":             "audit.topic",
	"scanner_quick_timeout":   "scanner.quick_timeout",
	"scanner_full_timeout":    "scanner.full_timeout",
	"scanner_sync_wait":       "scanner.sync_wait",
	"scanner_workers":         "scanner.workers",
	"scanner_queue_size":      "scanner.queue_size",
	"scanner_rps":             "scanner.requests_per_second",
	"scanner_max_depth":       "scanner.max_depth",
	"scanner_max_targets":     "scanner.max_targets",
	"scanner_user_agent":      "scanner.user_agent",
	"scanner_registry_mode":   "scanner.registry_mode",
	"scanner_registry_store":  "scanner.registry_store",
	"scanner_badger_path":     "scanner.badger_path",
	"scanner_job_retention":   "scanner.job_retention",
}

// envTransformFunc maps an environment variable name to its koanf path.
//
//	HTTP_PORT       -> server.port
//	ALLOWED_ORIGINS -> security.allowed_origins
//	CSRF_TTL        -> csrf.ttl
func envTransformFunc(key string) string {
	return envMappings[strings.ToLower(key)]
}

func joinHostPort(host string, port int) string {
	return net.JoinHostPort(host, strconv.Itoa(port))
}
