// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package config

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/tomtom215/edgeguard/internal/logging"
)

// Validate checks the configuration for values that would make a component
// misbehave at runtime. Invalid rate-limit rules are rejected here so they
// never reach request handling.
func (c *Config) Validate() error {
	validators := []func() error{
		c.validateServer,
		c.validateLogging,
		c.validateSecurity,
		c.validateCSRF,
		c.validateRateLimit,
		c.validateRedis,
		c.validateAudit,
		c.validateScanner,
	}
	for _, v := range validators {
		if err := v(); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	switch c.Server.Environment {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENVIRONMENT must be development, staging or production, got %q", c.Server.Environment)
	}
	if c.Server.ReadTimeout <= 0 || c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server read and write timeouts must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL must be one of trace, debug, info, warn, error, fatal, panic, disabled, got %q", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be json or console, got %q", c.Logging.Format)
	}
	return nil
}

func (c *Config) validateSecurity() error {
	for _, p := range c.Security.TrustedProxies {
		if _, _, err := net.ParseCIDR(p); err == nil {
			continue
		}
		if net.ParseIP(p) == nil {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is neither an IP nor a CIDR", p)
		}
	}
	for _, o := range c.Security.AllowedOrigins {
		if o == "*" {
			if c.Server.IsProduction() {
				return fmt.Errorf("ALLOWED_ORIGINS must not contain * in production")
			}
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("ALLOWED_ORIGINS entry %q must be scheme://host[:port]", o)
		}
	}
	if c.Security.GlobalRateLimit.Requests > 0 && c.Security.GlobalRateLimit.Window <= 0 {
		return fmt.Errorf("GLOBAL_RATE_WINDOW must be positive when GLOBAL_RATE_LIMIT is set")
	}
	if s := c.Security.Identity.AssertionSecret; s != "" && len(s) < 32 {
		return fmt.Errorf("IDENTITY_SECRET must be at least 32 characters")
	}
	if c.Security.Authz.Enabled && c.Security.Identity.AssertionSecret == "" {
		return fmt.Errorf("AUTHZ_ENABLED requires IDENTITY_SECRET so roles come from a verified assertion")
	}
	return nil
}

func (c *Config) validateCSRF() error {
	if c.CSRF.TTL <= 0 {
		return fmt.Errorf("CSRF_TTL must be positive, got %v", c.CSRF.TTL)
	}
	return validateStoreName("CSRF_STORE", c.CSRF.Store, "memory", "redis")
}

func (c *Config) validateRateLimit() error {
	if err := validateStoreName("RATELIMIT_STORE", c.RateLimit.Store, "memory", "redis"); err != nil {
		return err
	}
	if p := c.RateLimit.CleanupProbability; p < 0 || p > 1 {
		return fmt.Errorf("ratelimit.cleanup_probability must be within [0,1], got %v", p)
	}

	named := c.RateLimit.Routes.Named()
	names := make([]string, 0, len(named))
	for name := range named {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		rule := named[name]
		if rule.MaxRequests <= 0 {
			return fmt.Errorf("ratelimit.routes.%s.max_requests must be > 0, got %d", name, rule.MaxRequests)
		}
		if rule.Window <= 0 {
			return fmt.Errorf("ratelimit.routes.%s.window must be > 0, got %v", name, rule.Window)
		}
	}
	return nil
}

func (c *Config) validateRedis() error {
	if c.UsesRedis() && c.Redis.Addr == "" {
		return fmt.Errorf("REDIS_ADDR is required when a store is set to redis")
	}
	return nil
}

func (c *Config) validateAudit() error {
	if err := validateStoreName("AUDIT_STORE", c.Audit.Store, "memory", "duckdb"); err != nil {
		return err
	}
	if c.Audit.Store == "duckdb" && c.Audit.DuckDBPath == "" {
		return fmt.Errorf("AUDIT_DUCKDB_PATH is required when AUDIT_STORE=duckdb")
	}
	if c.Audit.BufferSize <= 0 {
		return fmt.Errorf("AUDIT_BUFFER_SIZE must be positive, got %d", c.Audit.BufferSize)
	}
	if c.Audit.StatsWindow <= 0 {
		return fmt.Errorf("AUDIT_STATS_WINDOW must be positive")
	}
	a := c.Audit.Anomaly
	if a.Multiplier <= 1 || a.MinCount < 1 || a.BaselineBuckets < 1 {
		return fmt.Errorf("audit.anomaly requires multiplier > 1, min_count >= 1, baseline_buckets >= 1")
	}
	if err := validateStoreName("AUDIT_PUBLISHER", c.Audit.Publisher, "gochannel", "nats"); err != nil {
		return err
	}
	if c.Audit.Publisher == "nats" && c.Audit.NATSURL == "" {
		return fmt.Errorf("NATS_URL is required when AUDIT_PUBLISHER=nats")
	}
	return nil
}

func (c *Config) validateScanner() error {
	s := c.Scanner
	if s.QuickTimeout <= 0 || s.FullTimeout <= 0 {
		return fmt.Errorf("scanner timeouts must be positive")
	}
	if s.SyncWait < 0 {
		return fmt.Errorf("SCANNER_SYNC_WAIT must not be negative")
	}
	if s.Workers <= 0 || s.QueueSize <= 0 {
		return fmt.Errorf("SCANNER_WORKERS and SCANNER_QUEUE_SIZE must be positive")
	}
	if s.RequestsPerSecond <= 0 {
		return fmt.Errorf("SCANNER_RPS must be positive")
	}
	if s.MaxDepth < 0 || s.MaxTargets <= 0 {
		return fmt.Errorf("SCANNER_MAX_DEPTH must be >= 0 and SCANNER_MAX_TARGETS > 0")
	}
	if err := validateStoreName("SCANNER_REGISTRY_MODE", s.RegistryMode, "dedup", "append"); err != nil {
		return err
	}
	if err := validateStoreName("SCANNER_REGISTRY_STORE", s.RegistryStore, "memory", "badger"); err != nil {
		return err
	}
	if s.RegistryStore == "badger" && s.BadgerPath == "" {
		return fmt.Errorf("SCANNER_BADGER_PATH is required when SCANNER_REGISTRY_STORE=badger")
	}
	return nil
}

// UsesRedis reports whether any component is configured with the redis backend.
func (c *Config) UsesRedis() bool {
	return c.CSRF.Store == "redis" || c.RateLimit.Store == "redis"
}

func validateStoreName(name, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %s, got %q", name, strings.Join(allowed, ", "), value)
}
