// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package main is the entry point for the EdgeGuard server.
//
// Start-up order:
//
//  1. Configuration (koanf: defaults, config.yaml, environment)
//  2. Backends: Redis when any store uses it, DuckDB audit store, Badger registry
//  3. Audit logger with its watermill publisher (gochannel, plus NATS with -tags nats)
//  4. Identity resolver, CSRF guard, rate limiter and the gateway composing them
//  5. Scanner, vulnerability registry and the scan job runner
//  6. Websocket hub and audit stream subscriber
//  7. HTTP router, then the supervisor tree
//
// SIGINT and SIGTERM cancel the tree. After it stops, the audit logger is
// drained and the stores are closed.
//
// Example:
//
//	export ALLOWED_ORIGINS=https://app.example.com
//	export RATELIMIT_STORE=redis REDIS_ADDR=redis:6379
//	export AUDIT_STORE=duckdb AUDIT_DUCKDB_PATH=/data/audit.duckdb
//	./edgeguard
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/tomtom215/edgeguard/docs" // swagger document
	"github.com/tomtom215/edgeguard/internal/api"
	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/config"
	"github.com/tomtom215/edgeguard/internal/csrf"
	"github.com/tomtom215/edgeguard/internal/gateway"
	"github.com/tomtom215/edgeguard/internal/identity"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/ratelimit"
	"github.com/tomtom215/edgeguard/internal/status"
	"github.com/tomtom215/edgeguard/internal/supervisor"
	"github.com/tomtom215/edgeguard/internal/supervisor/services"
	"github.com/tomtom215/edgeguard/internal/sweep"
	ws "github.com/tomtom215/edgeguard/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})
	logging.Info().
		Str("environment", cfg.Server.Environment).
		Str("ratelimit_store", cfg.RateLimit.Store).
		Str("csrf_store", cfg.CSRF.Store).
		Str("audit_store", cfg.Audit.Store).
		Str("audit_publisher", cfg.Audit.Publisher).
		Msg("Starting EdgeGuard")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("EdgeGuard stopped with error")
	}
	logging.Info().Msg("EdgeGuard stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var closers closeStack
	defer closers.closeAll()

	be, err := openBackends(ctx, cfg, &closers)
	if err != nil {
		return err
	}

	pipeline, err := newAuditPipeline(ctx, cfg, &closers)
	if err != nil {
		return err
	}
	auditLogger := pipeline.logger
	be.readiness["audit"] = func(ctx context.Context) error {
		_, err := pipeline.store.Count(ctx, audit.Filter{})
		return err
	}

	resolver, err := identity.NewResolver(identity.Config{
		TrustedProxies:  cfg.Security.TrustedProxies,
		AssertionHeader: cfg.Security.Identity.AssertionHeader,
		AssertionSecret: cfg.Security.Identity.AssertionSecret,
	})
	if err != nil {
		return err
	}

	trigger := sweep.NewTrigger(cfg.RateLimit.CleanupProbability)
	guard, err := csrf.New(be.csrfStore, csrf.Config{
		TTL:            cfg.CSRF.TTL,
		CookieSecure:   cfg.CSRF.CookieSecure,
		AllowedOrigins: cfg.Security.AllowedOrigins,
	}, csrf.WithSweepTrigger(trigger))
	if err != nil {
		return err
	}
	limiter := ratelimit.New(be.rateStore, ratelimit.WithSweepTrigger(trigger))
	gw := gateway.New(limiter, guard, resolver, gateway.WithAuditor(auditLogger))

	scan, err := newScanStack(cfg, auditLogger, &closers)
	if err != nil {
		return err
	}

	authzMW, err := newAuthz(cfg, auditLogger, &closers)
	if err != nil {
		return err
	}

	hub := ws.NewHub()
	stream := ws.NewHandler(hub, func(r *http.Request) bool {
		return !guard.CheckOrigin(r).Mismatch()
	})
	subscriber := ws.NewSubscriber(hub, pipeline.stream, cfg.Audit.Topic)

	router, err := api.NewRouter(api.Dependencies{
		Config:     cfg,
		Gateway:    gw,
		Resolver:   resolver,
		Guard:      guard,
		Audit:      auditLogger,
		Scanner:    scan.scanner,
		Jobs:       scan.jobs,
		Aggregator: status.Aggregator{HighVolumeThreshold: cfg.Audit.HighVolumeThreshold},
		Authz:      authzMW,
		Stream:     stream,
		Readiness:  be.readiness,
	})
	if err != nil {
		return err
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.Handler(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	if err != nil {
		return err
	}
	tree.AddWorkerService(scan.jobs)
	tree.AddMessagingService(hub)
	tree.AddMessagingService(subscriber)
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	err = tree.Serve(ctx)

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
