// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package csrf

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/edgeguard/internal/sweep"
)

func TestRedisStore_RoundTrip(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	g, err := New(NewRedisStore(client, "test"), Config{TTL: time.Minute}, WithSweepTrigger(sweep.Never()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()

	tok, err := g.Issue(ctx)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if !mr.Exists("test:csrf:" + digest(tok.Value)) {
		t.Fatal("digest key missing in redis")
	}
	if ttl := mr.TTL("test:csrf:" + digest(tok.Value)); ttl <= 0 || ttl > time.Minute {
		t.Errorf("key TTL = %v, want (0, 1m]", ttl)
	}
	if !g.Verify(ctx, tok.Value, tok.Value) {
		t.Error("Verify() = false for freshly issued token")
	}

	if err := g.Invalidate(ctx, tok.Value); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}
	if g.Verify(ctx, tok.Value, tok.Value) {
		t.Error("Verify() = true after Invalidate")
	}

	tok2, _ := g.Issue(ctx)
	mr.FastForward(2 * time.Minute)
	if g.Verify(ctx, tok2.Value, tok2.Value) {
		t.Error("Verify() = true after redis TTL elapsed")
	}
}

func TestRedisStore_LookupError(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	g, _ := New(NewRedisStore(client, ""), Config{TTL: time.Minute}, WithSweepTrigger(sweep.Never()))
	tok, _ := g.Issue(context.Background())
	mr.Close()

	if got := g.Check(context.Background(), tok.Value, tok.Value); got != ReasonStoreError {
		t.Errorf("Check() = %q, want store_error", got)
	}
}
