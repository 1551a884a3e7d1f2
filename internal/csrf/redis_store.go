// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package csrf

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore shares token digests between gateways. The value is the expiry
// in unix milliseconds and the key carries a matching TTL.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore returns a RedisStore namespacing keys under prefix.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "edgeguard"
	}
	return &RedisStore{client: client, prefix: prefix + ":csrf:"}
}

// Save implements Store.
func (s *RedisStore) Save(ctx context.Context, digest string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	if err := s.client.Set(ctx, s.prefix+digest, expiresAt.UnixMilli(), ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Lookup implements Store.
func (s *RedisStore) Lookup(ctx context.Context, digest string) (time.Time, bool, error) {
	v, err := s.client.Get(ctx, s.prefix+digest).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("redis get: %w", err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("corrupt csrf entry: %w", err)
	}
	return time.UnixMilli(ms), true, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(ctx context.Context, digest string) error {
	if err := s.client.Del(ctx, s.prefix+digest).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Sweep implements Store. Redis expires keys itself.
func (s *RedisStore) Sweep(context.Context, time.Time) (int, error) { return 0, nil }

// Name implements Store.
func (s *RedisStore) Name() string { return "redis" }
