// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package authz

import (
	"sync"
	"time"

	"github.com/tomtom215/edgeguard/internal/sweep"
)

type cacheEntry struct {
	allowed   bool
	expiresAt time.Time
}

// decisionCache memoizes Enforce results. Expired entries are ignored on
// read and dropped by the shared opportunistic sweep.
type decisionCache struct {
	ttl     time.Duration
	trigger *sweep.Trigger
	now     func() time.Time

	mu    sync.RWMutex
	items map[string]cacheEntry
}

func newDecisionCache(ttl time.Duration) *decisionCache {
	return &decisionCache{
		ttl:     ttl,
		trigger: sweep.NewTrigger(sweep.DefaultProbability),
		now:     time.Now,
		items:   make(map[string]cacheEntry),
	}
}

func cacheKey(subject, object, action string) string {
	return subject + "\x00" + object + "\x00" + action
}

func (c *decisionCache) get(subject, object, action string) (allowed, ok bool) {
	c.mu.RLock()
	entry, found := c.items[cacheKey(subject, object, action)]
	c.mu.RUnlock()
	if !found || !c.now().Before(entry.expiresAt) {
		return false, false
	}
	return entry.allowed, true
}

func (c *decisionCache) set(subject, object, action string, allowed bool) {
	now := c.now()
	c.trigger.Maybe(func() { c.sweep(now) })

	c.mu.Lock()
	c.items[cacheKey(subject, object, action)] = cacheEntry{allowed: allowed, expiresAt: now.Add(c.ttl)}
	c.mu.Unlock()
}

func (c *decisionCache) sweep(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.items {
		if !now.Before(e.expiresAt) {
			delete(c.items, k)
		}
	}
}

func (c *decisionCache) clear() {
	c.mu.Lock()
	c.items = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *decisionCache) size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
