// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

//go:build integration

package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tomtom215/edgeguard/internal/testinfra"
)

// Two limiters on the same Redis share one budget.
func TestRedisStore_SharedAcrossLimiters(t *testing.T) {
	testinfra.SkipIfNoDocker(t)

	ctx := context.Background()
	rc, err := testinfra.NewRedisContainer(ctx)
	if err != nil {
		t.Fatalf("NewRedisContainer() error = %v", err)
	}
	defer testinfra.CleanupContainer(t, ctx, rc)

	clientA := redis.NewClient(&redis.Options{Addr: rc.Addr})
	defer clientA.Close()
	clientB := redis.NewClient(&redis.Options{Addr: rc.Addr})
	defer clientB.Close()

	a := New(NewRedisStore(clientA, "it"))
	b := New(NewRedisStore(clientB, "it"))
	rule := Rule{MaxRequests: 20, Window: time.Minute}

	var allowed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		l := a
		if i%2 == 1 {
			l = b
		}
		go func() {
			defer wg.Done()
			d, err := l.Check(ctx, "/scan", "ip:203.0.113.9", rule)
			if err != nil {
				t.Errorf("Check() error = %v", err)
				return
			}
			if d.Allowed {
				allowed.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := allowed.Load(); got != 20 {
		t.Errorf("allowed across nodes = %d, want 20", got)
	}
}
