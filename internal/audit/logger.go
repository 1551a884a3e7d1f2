// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/edgeguard/internal/logging"
	"github.com/tomtom215/edgeguard/internal/metrics"
)

// Config holds audit logger settings.
type Config struct {
	// BufferSize is the capacity of the async write queue.
	BufferSize int

	// StatsWindow is the default GetStatistics range when start is zero.
	StatsWindow time.Duration

	// WriteTimeout bounds a single store append.
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:   1024,
		StatsWindow:  24 * time.Hour,
		WriteTimeout: 5 * time.Second,
	}
}

// item is one queue entry: an event to write, or a flush barrier.
type item struct {
	event *Event
	flush chan struct{}
}

// Logger records, queries, summarizes and exports audit events.
//
// LogEvent never blocks and never fails the caller: events are queued to a
// single writer goroutine; a full queue or a store error is reported via
// the error log and edgeguard_audit_dropped_total.
type Logger struct {
	cfg      Config
	store    Store
	queue    chan item
	stop     chan struct{}
	done     chan struct{}
	closed   atomic.Bool
	stopOnce sync.Once

	detector  AnomalyDetector
	now       func() time.Time
	publisher message.Publisher
	topic     string
	breaker   *gobreaker.CircuitBreaker[struct{}]
}

// Option configures a Logger.
type Option func(*Logger)

// WithDetector overrides the default BaselineDetector.
func WithDetector(d AnomalyDetector) Option {
	return func(l *Logger) { l.detector = d }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// WithPublisher forwards every stored event to topic on pub. Publishing is
// guarded by a circuit breaker so a dead broker does not slow the writer.
func WithPublisher(pub message.Publisher, topic string) Option {
	return func(l *Logger) {
		l.publisher = pub
		l.topic = topic
	}
}

// NewLogger creates a Logger and starts its writer.
func NewLogger(store Store, cfg Config, opts ...Option) *Logger {
	def := DefaultConfig()
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.StatsWindow <= 0 {
		cfg.StatsWindow = def.StatsWindow
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}

	l := &Logger{
		cfg:      cfg,
		store:    store,
		queue:    make(chan item, cfg.BufferSize),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		detector: DefaultBaselineDetector(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.publisher != nil {
		l.breaker = gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
			Name:        "audit-publisher",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logging.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
					Msg("Audit publisher circuit breaker state changed")
			},
		})
	}

	go l.writer()
	return l
}

func (l *Logger) writer() {
	defer close(l.done)
	for {
		select {
		case <-l.stop:
			for {
				select {
				case it := <-l.queue:
					l.handle(it)
				default:
					return
				}
			}
		case it := <-l.queue:
			l.handle(it)
		}
	}
}

func (l *Logger) handle(it item) {
	if it.flush != nil {
		close(it.flush)
		return
	}
	l.write(it.event)
}

func (l *Logger) write(e *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), l.cfg.WriteTimeout)
	defer cancel()

	if err := l.store.Append(ctx, e); err != nil {
		metrics.AuditDropped.WithLabelValues("store_error").Inc()
		logging.Error().Err(err).Str("event_id", e.ID).Str("event_type", string(e.EventType)).
			Msg("Failed to save audit event")
		return
	}
	metrics.AuditEvents.WithLabelValues(string(e.EventType)).Inc()

	if l.publisher != nil {
		l.publish(e)
	}
}

func (l *Logger) publish(e *Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		metrics.AuditPublishErrors.Inc()
		logging.Error().Err(err).Str("event_id", e.ID).Msg("Failed to marshal audit event for publishing")
		return
	}
	msg := message.NewMessage(e.ID, payload)
	msg.Metadata.Set("event_type", string(e.EventType))
	msg.Metadata.Set("risk_level", string(e.RiskLevel))

	_, err = l.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, l.publisher.Publish(l.topic, msg)
	})
	if err != nil {
		metrics.AuditPublishErrors.Inc()
		logging.Debug().Err(err).Str("event_id", e.ID).Msg("Audit event not published")
	}
}

// LogEvent records an event asynchronously and returns its id. Unknown event
// types are dropped and return "".
func (l *Logger) LogEvent(ctx context.Context, eventType EventType, in EventInput) string {
	if !eventType.Valid() {
		metrics.AuditDropped.WithLabelValues("invalid").Inc()
		logging.Ctx(ctx).Error().Str("event_type", logging.SanitizeValue(string(eventType))).
			Msg("Dropping audit event with unknown type")
		return ""
	}
	if l.closed.Load() {
		metrics.AuditDropped.WithLabelValues("closed").Inc()
		return ""
	}

	e := &Event{
		ID:        uuid.New().String(),
		Timestamp: l.now().UTC().Truncate(time.Microsecond),
		EventType: eventType,
		RiskLevel: in.RiskLevel,
		Source:    in.Source,
		IPAddress: in.IPAddress,
		UserID:    in.UserID,
		Outcome:   in.Outcome,
		Details:   in.Details.Clone(),
		Tags:      append([]string(nil), in.Tags...),
	}
	if !e.RiskLevel.Valid() {
		e.RiskLevel = eventType.DefaultRisk()
	}
	if !e.Outcome.Valid() {
		e.Outcome = OutcomeSuccess
	}
	if e.Source == "" {
		e.Source = "edgeguard"
	}
	if e.Details == nil {
		e.Details = Details{}
	}
	if e.Tags == nil {
		e.Tags = []string{}
	}

	select {
	case l.queue <- item{event: e}:
	default:
		metrics.AuditDropped.WithLabelValues("buffer_full").Inc()
		logging.Ctx(ctx).Error().Str("event_id", e.ID).Str("event_type", string(eventType)).
			Msg("Audit event buffer full, dropping event")
	}
	return e.ID
}

// Flush waits until every event queued before the call has been written.
func (l *Logger) Flush(ctx context.Context) error {
	if l.closed.Load() {
		<-l.done
		return nil
	}
	done := make(chan struct{})
	select {
	case l.queue <- item{flush: done}:
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close drains the queue and stops the writer. The store is not closed.
func (l *Logger) Close() error {
	l.stopOnce.Do(func() {
		l.closed.Store(true)
		close(l.stop)
	})
	<-l.done
	return nil
}

// QueryEvents returns events matching f, newest first. Limit defaults to
// 100 and is capped at 1000. An invalid filter yields a
// *validation.RequestValidationError.
func (l *Logger) QueryEvents(ctx context.Context, f Filter) ([]Event, error) {
	nf, err := f.normalize(DefaultQueryLimit, MaxQueryLimit)
	if err != nil {
		return nil, err
	}
	events, err := l.store.Query(ctx, nf)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}

// CountEvents returns how many events match f, ignoring paging.
func (l *Logger) CountEvents(ctx context.Context, f Filter) (int, error) {
	nf, err := f.normalize(DefaultQueryLimit, MaxQueryLimit)
	if err != nil {
		return 0, err
	}
	n, err := l.store.Count(ctx, nf)
	if err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// ExportLogs encodes the events matching f. Limit defaults to and is capped
// at 10000.
func (l *Logger) ExportLogs(ctx context.Context, f Filter, format Format) ([]byte, error) {
	parsed, err := ParseFormat(string(format))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, format)
	}
	nf, err := f.normalize(MaxExportLimit, MaxExportLimit)
	if err != nil {
		return nil, err
	}
	events, err := l.store.Query(ctx, nf)
	if err != nil {
		return nil, fmt.Errorf("query audit events for export: %w", err)
	}
	return encodeEvents(events, parsed)
}
