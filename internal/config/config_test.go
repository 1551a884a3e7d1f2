// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig_IsValid(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaultConfig().Validate() = %v, want nil", err)
	}

	if cfg.CSRF.TTL != 24*time.Hour {
		t.Errorf("CSRF.TTL = %v, want 24h", cfg.CSRF.TTL)
	}
	if cfg.RateLimit.CleanupProbability != 0.01 {
		t.Errorf("RateLimit.CleanupProbability = %v, want 0.01", cfg.RateLimit.CleanupProbability)
	}
	if cfg.RateLimit.Routes.Scan.MaxRequests != 5 {
		t.Errorf("Routes.Scan.MaxRequests = %d, want 5", cfg.RateLimit.Routes.Scan.MaxRequests)
	}
	if cfg.Scanner.RegistryMode != "dedup" {
		t.Errorf("Scanner.RegistryMode = %q, want dedup", cfg.Scanner.RegistryMode)
	}
	if strings.Join(cfg.Audit.Anomaly.Ignore, ",") != "API_REQUEST" {
		t.Errorf("Audit.Anomaly.Ignore = %v, want [API_REQUEST]", cfg.Audit.Anomaly.Ignore)
	}
}

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.RateLimit.Routes.Status.Window != time.Minute {
		t.Errorf("Routes.Status.Window = %v, want 1m", cfg.RateLimit.Routes.Status.Window)
	}
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("CSRF_TTL", "2h")
	t.Setenv("ALLOWED_ORIGINS", "https://example.com, https://www.example.com")
	t.Setenv("RATELIMIT_SCAN_MAX", "2")
	t.Setenv("RATELIMIT_SCAN_WINDOW", "30s")
	t.Setenv("AUDIT_ANOMALY_IGNORE", "API_REQUEST,DATA_ACCESS")
	t.Setenv("SOME_UNRELATED_VAR", "ignored")

	cfg, err := LoadFrom("")
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.CSRF.TTL != 2*time.Hour {
		t.Errorf("CSRF.TTL = %v, want 2h", cfg.CSRF.TTL)
	}
	want := []string{"https://example.com", "https://www.example.com"}
	if strings.Join(cfg.Security.AllowedOrigins, ",") != strings.Join(want, ",") {
		t.Errorf("AllowedOrigins = %v, want %v", cfg.Security.AllowedOrigins, want)
	}
	if cfg.RateLimit.Routes.Scan.MaxRequests != 2 || cfg.RateLimit.Routes.Scan.Window != 30*time.Second {
		t.Errorf("Routes.Scan = %+v, want {2 30s}", cfg.RateLimit.Routes.Scan)
	}
	if strings.Join(cfg.Audit.Anomaly.Ignore, ",") != "API_REQUEST,DATA_ACCESS" {
		t.Errorf("Audit.Anomaly.Ignore = %v", cfg.Audit.Anomaly.Ignore)
	}
}

func TestLoadFrom_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 7070
security:
  allowed_origins:
    - https://a.example
ratelimit:
  routes:
    audit_ingest:
      max_requests: 5
      window: 1m
scanner:
  registry_mode: append
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := LoadFrom(path)
	if err != nil {
		t.Fatalf("LoadFrom() error = %v", err)
	}
	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
	}
	if len(cfg.Security.AllowedOrigins) != 1 || cfg.Security.AllowedOrigins[0] != "https://a.example" {
		t.Errorf("AllowedOrigins = %v, want [https://a.example]", cfg.Security.AllowedOrigins)
	}
	if cfg.RateLimit.Routes.AuditIngest.MaxRequests != 5 {
		t.Errorf("Routes.AuditIngest.MaxRequests = %d, want 5", cfg.RateLimit.Routes.AuditIngest.MaxRequests)
	}
	// Routes not in the file keep their defaults.
	if cfg.RateLimit.Routes.Scan.MaxRequests != 5 {
		t.Errorf("Routes.Scan.MaxRequests = %d, want default 5", cfg.RateLimit.Routes.Scan.MaxRequests)
	}
	if cfg.Scanner.RegistryMode != "append" {
		t.Errorf("Scanner.RegistryMode = %q, want append", cfg.Scanner.RegistryMode)
	}
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"zero max requests", func(c *Config) { c.RateLimit.Routes.Scan.MaxRequests = 0 }, "scan.max_requests"},
		{"negative window", func(c *Config) { c.RateLimit.Routes.Status.Window = -time.Second }, "status.window"},
		{"zero csrf ttl", func(c *Config) { c.CSRF.TTL = 0 }, "CSRF_TTL"},
		{"bad port", func(c *Config) { c.Server.Port = 70000 }, "HTTP_PORT"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "LOG_LEVEL"},
		{"redis without addr", func(c *Config) { c.RateLimit.Store = "redis" }, "REDIS_ADDR"},
		{"unknown audit store", func(c *Config) { c.Audit.Store = "postgres" }, "AUDIT_STORE"},
		{"bad origin", func(c *Config) { c.Security.AllowedOrigins = []string{"example.com"} }, "ALLOWED_ORIGINS"},
		{"wildcard origin in production", func(c *Config) {
			c.Server.Environment = "production"
			c.Security.AllowedOrigins = []string{"*"}
		}, "production"},
		{"bad proxy", func(c *Config) { c.Security.TrustedProxies = []string{"not-an-ip"} }, "TRUSTED_PROXIES"},
		{"short identity secret", func(c *Config) { c.Security.Identity.AssertionSecret = "short" }, "IDENTITY_SECRET"},
		{"authz without secret", func(c *Config) { c.Security.Authz.Enabled = true }, "AUTHZ_ENABLED"},
		{"badger without path", func(c *Config) {
			c.Scanner.RegistryStore = "badger"
			c.Scanner.BadgerPath = ""
		}, "SCANNER_BADGER_PATH"},
		{"zero workers", func(c *Config) { c.Scanner.Workers = 0 }, "SCANNER_WORKERS"},
		{"anomaly multiplier", func(c *Config) { c.Audit.Anomaly.Multiplier = 1 }, "multiplier"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatalf("Validate() = nil, want error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := map[string]string{
		"HTTP_PORT":       "server.port",
		"ALLOWED_ORIGINS": "security.allowed_origins",
		"csrf_ttl":        "csrf.ttl",
		"PATH":            "",
	}
	for in, want := range tests {
		if got := envTransformFunc(in); got != want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestServerConfig_Addr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080}
	if got := s.Addr(); got != "127.0.0.1:8080" {
		t.Errorf("Addr() = %q, want 127.0.0.1:8080", got)
	}
}

func TestValidate_AcceptsLoggerLevels(t *testing.T) {
	for _, level := range []string{"trace", "DEBUG", "warning", "disabled"} {
		cfg := defaultConfig()
		cfg.Logging.Level = level
		if err := cfg.Validate(); err != nil {
			t.Errorf("Validate() with level %q = %v, want nil", level, err)
		}
	}
}
