// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package authz

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

// Config configures an Enforcer.
type Config struct {
	// ModelPath overrides the embedded model when set.
	ModelPath string

	// PolicyPath overrides the embedded policy when set. A file policy is
	// reloaded every ReloadInterval.
	PolicyPath     string
	ReloadInterval time.Duration

	// DefaultRole applies to identities that carry no roles.
	DefaultRole string

	// CacheTTL bounds how long a decision is reused. Zero disables caching.
	CacheTTL time.Duration
}

// DefaultConfig returns the embedded model and policy with a viewer default.
func DefaultConfig() Config {
	return Config{
		ReloadInterval: 30 * time.Second,
		DefaultRole:    "viewer",
		CacheTTL:       time.Minute,
	}
}

// Enforcer wraps a Casbin SyncedEnforcer with a decision cache.
type Enforcer struct {
	cfg      Config
	enforcer *casbin.SyncedEnforcer
	cache    *decisionCache
}

// NewEnforcer loads the model and policy.
func NewEnforcer(cfg Config) (*Enforcer, error) {
	var (
		m   model.Model
		err error
	)
	if cfg.ModelPath != "" {
		m, err = model.NewModelFromFile(cfg.ModelPath)
	} else {
		m, err = model.NewModelFromString(embeddedModel)
	}
	if err != nil {
		return nil, fmt.Errorf("load casbin model: %w", err)
	}

	var se *casbin.SyncedEnforcer
	if cfg.PolicyPath != "" {
		if _, statErr := os.Stat(cfg.PolicyPath); statErr != nil {
			return nil, fmt.Errorf("casbin policy %s: %w", cfg.PolicyPath, statErr)
		}
		se, err = casbin.NewSyncedEnforcer(m, fileadapter.NewAdapter(cfg.PolicyPath))
	} else {
		se, err = casbin.NewSyncedEnforcer(m)
		if err == nil {
			err = loadPolicy(se, embeddedPolicy)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("create casbin enforcer: %w", err)
	}

	if cfg.PolicyPath != "" && cfg.ReloadInterval > 0 {
		se.StartAutoLoadPolicy(cfg.ReloadInterval)
	}

	e := &Enforcer{cfg: cfg, enforcer: se}
	if cfg.CacheTTL > 0 {
		e.cache = newDecisionCache(cfg.CacheTTL)
	}
	return e, nil
}

// loadPolicy adds the p and g lines of a policy CSV.
func loadPolicy(se *casbin.SyncedEnforcer, policy string) error {
	for n, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}

		var err error
		switch {
		case parts[0] == "p" && len(parts) == 4:
			_, err = se.AddPolicy(parts[1], parts[2], parts[3])
		case parts[0] == "g" && len(parts) == 3:
			_, err = se.AddGroupingPolicy(parts[1], parts[2])
		default:
			return fmt.Errorf("policy line %d: malformed rule %q", n+1, line)
		}
		if err != nil {
			return fmt.Errorf("policy line %d: %w", n+1, err)
		}
	}
	return nil
}

// Enforce reports whether subject may perform action on object.
func (e *Enforcer) Enforce(subject, object, action string) (bool, error) {
	if e.cache != nil {
		if allowed, ok := e.cache.get(subject, object, action); ok {
			return allowed, nil
		}
	}
	allowed, err := e.enforcer.Enforce(subject, object, action)
	if err != nil {
		return false, fmt.Errorf("enforce %s %s %s: %w", subject, action, object, err)
	}
	if e.cache != nil {
		e.cache.set(subject, object, action, allowed)
	}
	return allowed, nil
}

// EnforceWithRoles allows the request when the subject itself or any of its
// roles is allowed. An identity with no roles is checked as DefaultRole.
func (e *Enforcer) EnforceWithRoles(subject string, roles []string, object, action string) (bool, error) {
	if subject != "" {
		if ok, err := e.Enforce(subject, object, action); err != nil || ok {
			return ok, err
		}
	}
	if len(roles) == 0 && e.cfg.DefaultRole != "" {
		roles = []string{e.cfg.DefaultRole}
	}
	for _, role := range roles {
		if ok, err := e.Enforce(role, object, action); err != nil || ok {
			return ok, err
		}
	}
	return false, nil
}

// AddRoleForUser grants role to user.
func (e *Enforcer) AddRoleForUser(user, role string) (bool, error) {
	added, err := e.enforcer.AddGroupingPolicy(user, role)
	if err != nil {
		return false, fmt.Errorf("add role %s to %s: %w", role, user, err)
	}
	if e.cache != nil {
		e.cache.clear()
	}
	return added, nil
}

// Close stops policy reloading.
func (e *Enforcer) Close() {
	e.enforcer.StopAutoLoadPolicy()
}

// ActionFor maps an HTTP method to a policy action.
func ActionFor(method string) string {
	switch method {
	case "GET", "HEAD", "OPTIONS":
		return "read"
	case "DELETE":
		return "delete"
	default:
		return "write"
	}
}
