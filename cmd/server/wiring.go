// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/edgeguard/internal/api"
	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/authz"
	"github.com/tomtom215/edgeguard/internal/config"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/ratelimit"
	"github.com/tomtom215/edgeguard/internal/scanner"
)

// closeStack releases resources in reverse order of acquisition.
type closeStack []namedCloser

type namedCloser struct {
	name  string
	close func() error
}

func (s *closeStack) push(name string, fn func() error) {
	*s = append(*s, namedCloser{name: name, close: fn})
}

func (s *closeStack) closeAll() {
	for i := len(*s) - 1; i >= 0; i-- {
		c := (*s)[i]
		if err := c.close(); err != nil {
			logging.Error().Err(err).Str("resource", c.name).Msg("Error during shutdown")
		}
	}
	*s = nil
}

// backends holds the rate limit and CSRF stores.
type backends struct {
	rateStore ratelimit.Store
	csrfStore csrf.Store
	readiness map[string]api.ReadinessCheck
}

func openBackends(ctx context.Context, cfg *config.Config, closers *closeStack) (*backends, error) {
	be := &backends{
		rateStore: ratelimit.NewMemoryStore(),
		csrfStore: csrf.NewMemoryStore(),
		readiness: make(map[string]api.ReadinessCheck),
	}
	if !cfg.UsesRedis() {
		return be, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	closers.push("redis", client.Close)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	logging.Info().Str("addr", cfg.Redis.Addr).Msg("Connected to Redis")

	if cfg.RateLimit.Store == "redis" {
		be.rateStore = ratelimit.NewRedisStore(client, cfg.Redis.KeyPrefix)
	}
	if cfg.CSRF.Store == "redis" {
		be.csrfStore = csrf.NewRedisStore(client, cfg.Redis.KeyPrefix)
	}
	be.readiness["redis"] = func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}
	return be, nil
}

// auditPipeline is the audit logger plus the in-process stream the
// websocket subscriber consumes.
type auditPipeline struct {
	logger *audit.Logger
	store  audit.Store
	stream message.Subscriber
}

func newAuditPipeline(ctx context.Context, cfg *config.Config, closers *closeStack) (*auditPipeline, error) {
	ignore := make([]audit.EventType, 0, len(cfg.Audit.Anomaly.Ignore))
	for _, name := range cfg.Audit.Anomaly.Ignore {
		t := audit.EventType(strings.ToUpper(name))
		if !t.Valid() {
			return nil, fmt.Errorf("audit.anomaly.ignore: unknown event type %q", name)
		}
		ignore = append(ignore, t)
	}

	var store audit.Store = audit.NewMemoryStore()
	if cfg.Audit.Store == "duckdb" {
		duck, err := audit.OpenDuckDBStore(ctx, cfg.Audit.DuckDBPath)
		if err != nil {
			return nil, err
		}
		store = duck
		logging.Info().Str("path", cfg.Audit.DuckDBPath).Msg("Audit log persisted to DuckDB")
	}
	closers.push("audit-store", store.Close)

	local := audit.NewGoChannel(cfg.Audit.BufferSize)
	closers.push("audit-gochannel", local.Close)

	var publisher message.Publisher = local
	if cfg.Audit.Publisher == "nats" {
		natsPub, err := audit.NewNATSPublisher(cfg.Audit.NATSURL)
		if err != nil {
			return nil, err
		}
		closers.push("audit-nats", natsPub.Close)
		publisher = audit.FanOut{local, natsPub}
		logging.Info().Str("url", cfg.Audit.NATSURL).Msg("Audit events forwarded to NATS")
	}

	topic := cfg.Audit.Topic
	if topic == "" {
		topic = audit.DefaultTopic
	}
	logger := audit.NewLogger(store, audit.Config{
		BufferSize:  cfg.Audit.BufferSize,
		StatsWindow: cfg.Audit.StatsWindow,
	},
		audit.WithDetector(audit.BaselineDetector{
			Multiplier:      cfg.Audit.Anomaly.Multiplier,
			MinCount:        cfg.Audit.Anomaly.MinCount,
			BaselineBuckets: cfg.Audit.Anomaly.BaselineBuckets,
			Ignore:          ignore,
		}),
		audit.WithPublisher(publisher, topic),
	)
	// Pushed last so it drains before the store and publishers close.
	closers.push("audit-logger", logger.Close)

	return &auditPipeline{logger: logger, store: store, stream: local}, nil
}

// scanStack is the scanner with its registry and job runner.
type scanStack struct {
	scanner *scanner.Scanner
	jobs    *scanner.JobRunner
}

func newScanStack(cfg *config.Config, auditor scanner.Auditor, closers *closeStack) (*scanStack, error) {
	opts := []scanner.RegistryOption{scanner.WithRegistryAuditor(auditor)}
	if cfg.Scanner.RegistryStore == "badger" {
		persister, err := scanner.OpenBadgerStore(cfg.Scanner.BadgerPath)
		if err != nil {
			return nil, err
		}
		closers.push("vulnerability-registry", persister.Close)
		opts = append(opts, scanner.WithPersister(persister))
	}
	registry, err := scanner.NewRegistry(scanner.Mode(cfg.Scanner.RegistryMode), opts...)
	if err != nil {
		return nil, err
	}

	s := scanner.New(registry, scanner.Config{
		QuickTimeout:      cfg.Scanner.QuickTimeout,
		FullTimeout:       cfg.Scanner.FullTimeout,
		RequestsPerSecond: cfg.Scanner.RequestsPerSecond,
		MaxDepth:          cfg.Scanner.MaxDepth,
		MaxTargets:        cfg.Scanner.MaxTargets,
		UserAgent:         cfg.Scanner.UserAgent,
	}, scanner.WithAuditor(auditor))

	jobs := scanner.NewJobRunner(s, cfg.Scanner.Workers, cfg.Scanner.QueueSize, cfg.Scanner.JobRetention)
	return &scanStack{scanner: s, jobs: jobs}, nil
}

// newAuthz returns nil when authorization is disabled.
func newAuthz(cfg *config.Config, auditor authz.Auditor, closers *closeStack) (*authz.Middleware, error) {
	if !cfg.Security.Authz.Enabled {
		return nil, nil
	}
	acfg := authz.DefaultConfig()
	acfg.ModelPath = cfg.Security.Authz.ModelPath
	acfg.PolicyPath = cfg.Security.Authz.PolicyPath
	if cfg.Security.Authz.DefaultRole != "" {
		acfg.DefaultRole = cfg.Security.Authz.DefaultRole
	}
	enforcer, err := authz.NewEnforcer(acfg)
	if err != nil {
		return nil, err
	}
	closers.push("authz", func() error {
		enforcer.Close()
		return nil
	})
	logging.Info().Str("default_role", acfg.DefaultRole).Msg("Role-based authorization enabled")
	return authz.NewMiddleware(enforcer, auditor), nil
}
