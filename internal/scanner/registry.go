// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package scanner

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tomtom215/edgeguard/internal/audit"
	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
)

// Auditor receives security events. *audit.Logger implements it.
type Auditor interface {
	LogEvent(ctx context.Context, eventType audit.EventType, in audit.EventInput) string
}

type nopAuditor struct{}

func (nopAuditor) LogEvent(context.Context, audit.EventType, audit.EventInput) string { return "" }

// Mode controls how repeated findings are stored.
type Mode string

const (
	// ModeDedup merges findings with the same type and location into one
	// record that keeps its id, status and discoveredAt.
	ModeDedup Mode = "dedup"

	// ModeAppend stores every finding as a new record.
	ModeAppend Mode = "append"
)

// Persister stores registry records across restarts.
type Persister interface {
	Save(v Vulnerability) error
	LoadAll() ([]Vulnerability, error)
}

// Filter selects vulnerabilities. Zero fields match everything.
type Filter struct {
	Status   Status
	Severity Severity
	Type     string
}

func (f Filter) matches(v *Vulnerability) bool {
	return (f.Status == "" || v.Status == f.Status) &&
		(f.Severity == "" || v.Severity == f.Severity) &&
		(f.Type == "" || v.Type == f.Type)
}

// transitions lists the allowed status changes.
var transitions = map[Status][]Status{
	StatusOpen:         {StatusAcknowledged, StatusResolved},
	StatusAcknowledged: {StatusResolved, StatusOpen},
	StatusResolved:     {StatusOpen},
}

func allowed(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Registry is the set of known vulnerabilities. Records are never deleted.
type Registry struct {
	mu    sync.RWMutex
	mode  Mode
	byID  map[string]*Vulnerability
	byKey map[string]string

	persister Persister
	auditor   Auditor
	now       func() time.Time
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithPersister makes every change durable and loads existing records.
func WithPersister(p Persister) RegistryOption {
	return func(r *Registry) { r.persister = p }
}

// WithRegistryAuditor emits discovery and status change events.
func WithRegistryAuditor(a Auditor) RegistryOption {
	return func(r *Registry) { r.auditor = a }
}

// WithRegistryClock overrides time.Now.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) { r.now = now }
}

// NewRegistry creates a registry, loading persisted records if a Persister
// is configured. An empty mode means ModeDedup.
func NewRegistry(mode Mode, opts ...RegistryOption) (*Registry, error) {
	if mode == "" {
		mode = ModeDedup
	}
	if mode != ModeDedup && mode != ModeAppend {
		return nil, fmt.Errorf("unknown registry mode %q", mode)
	}
	r := &Registry{
		mode:    mode,
		byID:    make(map[string]*Vulnerability),
		byKey:   make(map[string]string),
		auditor: nopAuditor{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.persister != nil {
		stored, err := r.persister.LoadAll()
		if err != nil {
			return nil, fmt.Errorf("load vulnerability registry: %w", err)
		}
		sort.Slice(stored, func(i, j int) bool { return stored[i].DiscoveredAt.Before(stored[j].DiscoveredAt) })
		for i := range stored {
			v := stored[i]
			r.byID[v.ID] = &v
			r.byKey[v.dedupKey()] = v.ID
		}
		logging.Info().Int("count", len(stored)).Msg("Loaded vulnerability registry")
	}
	r.updateGauge()
	return r, nil
}

// Mode returns the registry's storage mode.
func (r *Registry) Mode() Mode { return r.mode }

type pendingEvent struct {
	eventType audit.EventType
	input     audit.EventInput
}

// Record merges scan findings into the registry and returns the stored
// version of each, ids assigned. A resolved finding seen again is reopened.
func (r *Registry) Record(ctx context.Context, found []Vulnerability) []Vulnerability {
	now := r.now().UTC()
	out := make([]Vulnerability, 0, len(found))
	var events []pendingEvent

	r.mu.Lock()
	for i := range found {
		f := found[i]
		key := f.dedupKey()

		if id, ok := r.byKey[key]; ok && r.mode == ModeDedup {
			ex := r.byID[id]
			ex.Severity = f.Severity
			ex.Title = f.Title
			ex.Description = f.Description
			ex.Impact = f.Impact
			ex.Recommendation = f.Recommendation
			ex.LastSeenAt = now
			if ex.Status == StatusResolved {
				ex.Status = StatusOpen
				events = append(events, statusEvent(ex, StatusResolved, StatusOpen, "scanner"))
			}
			r.persist(ex)
			out = append(out, *ex)
			continue
		}

		v := f
		v.ID = uuid.New().String()
		v.Status = StatusOpen
		v.DiscoveredAt = now
		v.LastSeenAt = now
		r.byID[v.ID] = &v
		r.byKey[key] = v.ID
		r.persist(&v)
		out = append(out, v)
		events = append(events, detectedEvent(&v))
	}
	r.mu.Unlock()

	for _, e := range events {
		r.auditor.LogEvent(ctx, e.eventType, e.input)
	}
	r.updateGauge()
	return out
}

// persist must be called with mu held so saves are ordered.
func (r *Registry) persist(v *Vulnerability) {
	if r.persister == nil {
		return
	}
	if err := r.persister.Save(*v); err != nil {
		logging.Error().Err(err).Str("vulnerability_id", v.ID).Msg("Failed to persist vulnerability")
	}
}

// Get returns one vulnerability.
func (r *Registry) Get(id string) (Vulnerability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.byID[id]
	if !ok {
		return Vulnerability{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *v, nil
}

// GetVulnerabilities returns matching records, most severe first and newest
// first within a severity.
func (r *Registry) GetVulnerabilities(f Filter) []Vulnerability {
	r.mu.RLock()
	out := make([]Vulnerability, 0, len(r.byID))
	for _, v := range r.byID {
		if f.matches(v) {
			out = append(out, *v)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		a, b := &out[i], &out[j]
		if ra, rb := a.Severity.rank(), b.Severity.rank(); ra != rb {
			return ra > rb
		}
		if !a.DiscoveredAt.Equal(b.DiscoveredAt) {
			return a.DiscoveredAt.After(b.DiscoveredAt)
		}
		return a.ID < b.ID
	})
	return out
}

// UpdateStatus moves a vulnerability to status on behalf of actor. Setting
// the current status again is a no-op.
func (r *Registry) UpdateStatus(ctx context.Context, id string, status Status, actor string) (Vulnerability, error) {
	if !status.Valid() {
		return Vulnerability{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	r.mu.Lock()
	v, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return Vulnerability{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	from := v.Status
	if from == status {
		cur := *v
		r.mu.Unlock()
		return cur, nil
	}
	if !allowed(from, status) {
		r.mu.Unlock()
		return Vulnerability{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, status)
	}
	v.Status = status
	r.persist(v)
	cur := *v
	r.mu.Unlock()

	e := statusEvent(&cur, from, status, actor)
	r.auditor.LogEvent(ctx, e.eventType, e.input)
	r.updateGauge()
	return cur, nil
}

// ActiveBySeverity counts open and acknowledged records per severity.
func (r *Registry) ActiveBySeverity() map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, s := range Severities() {
		counts[s] = 0
	}
	r.mu.RLock()
	for _, v := range r.byID {
		if v.Status.Active() {
			counts[v.Severity]++
		}
	}
	r.mu.RUnlock()
	return counts
}

func (r *Registry) updateGauge() {
	counts := r.ActiveBySeverity()
	gauge := make(map[string]int, len(counts))
	for s, n := range counts {
		gauge[string(s)] = n
	}
	metrics.SetOpenVulnerabilities(gauge)
}

func detectedEvent(v *Vulnerability) pendingEvent {
	return pendingEvent{
		eventType: audit.EventVulnerabilityDetected,
		input: audit.EventInput{
			RiskLevel: audit.RiskLevel(v.Severity),
			Source:    "scanner",
			Outcome:   audit.OutcomeWarning,
			Details: audit.Details{
				"vulnerabilityId": audit.StringValue(v.ID),
				"type":            audit.StringValue(v.Type),
				"severity":        audit.StringValue(string(v.Severity)),
				"location":        audit.StringValue(v.Location),
			},
			Tags: []string{"scanner", "vulnerability"},
		},
	}
}

func statusEvent(v *Vulnerability, from, to Status, actor string) pendingEvent {
	return pendingEvent{
		eventType: audit.EventVulnerabilityStatusChanged,
		input: audit.EventInput{
			Source: "scanner",
			UserID: actor,
			Details: audit.Details{
				"vulnerabilityId": audit.StringValue(v.ID),
				"type":            audit.StringValue(v.Type),
				"location":        audit.StringValue(v.Location),
				"from":            audit.StringValue(string(from)),
				"to":              audit.StringValue(string(to)),
			},
			Tags: []string{"scanner", "vulnerability"},
		},
	}
}
