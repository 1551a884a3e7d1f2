// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/tomtom215/edgeguard/internal/metrics"
	"github.com/tomtom215/edgeguard/internal/validation"
)

// stepClock returns base, base+step, base+2*step, ... on successive calls.
type stepClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

func (c *stepClock) Set(t time.Time) {
	c.mu.Lock()
	c.next = t
	c.mu.Unlock()
}

var testBase = time.Date(2026, 3, 1, 10, 5, 0, 0, time.UTC)

func newTestLogger(t *testing.T, opts ...Option) (*Logger, *stepClock) {
	t.Helper()
	clock := &stepClock{next: testBase, step: time.Second}
	l := NewLogger(NewMemoryStore(), DefaultConfig(), append([]Option{WithClock(clock.Now)}, opts...)...)
	t.Cleanup(func() { _ = l.Close() })
	return l, clock
}

func flush(t *testing.T, l *Logger) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := l.Flush(ctx); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}
}

func TestLogEvent_Defaults(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()

	id := l.LogEvent(ctx, EventCSRFViolation, EventInput{IPAddress: "203.0.113.7"})
	if id == "" {
		t.Fatal("LogEvent() returned empty id")
	}
	flush(t, l)

	events, err := l.QueryEvents(ctx, Filter{})
	if err != nil {
		t.Fatalf("QueryEvents() error = %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("len(events) = %d, want 1", len(events))
	}
	e := events[0]
	if e.ID != id {
		t.Errorf("ID = %q, want %q", e.ID, id)
	}
	if e.RiskLevel != RiskHigh {
		t.Errorf("RiskLevel = %q, want high (type default)", e.RiskLevel)
	}
	if e.Outcome != OutcomeSuccess {
		t.Errorf("Outcome = %q, want success", e.Outcome)
	}
	if e.Source != "edgeguard" {
		t.Errorf("Source = %q, want edgeguard", e.Source)
	}
	if !e.Timestamp.Equal(testBase) {
		t.Errorf("Timestamp = %v, want %v", e.Timestamp, testBase)
	}
	if e.Details == nil || e.Tags == nil {
		t.Error("Details and Tags should be non-nil")
	}
}

func TestLogEvent_UnknownTypeDropped(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	if id := l.LogEvent(context.Background(), EventType("NOT_A_TYPE"), EventInput{}); id != "" {
		t.Errorf("LogEvent(unknown) = %q, want empty", id)
	}
	flush(t, l)
	if n, _ := l.CountEvents(context.Background(), Filter{}); n != 0 {
		t.Errorf("CountEvents() = %d, want 0", n)
	}
}

func TestLogEvent_InputIsCopied(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	details := Details{"path": StringValue("/a")}
	tags := []string{"x"}
	l.LogEvent(context.Background(), EventAPIRequest, EventInput{Details: details, Tags: tags})
	details["path"] = StringValue("/mutated")
	tags[0] = "mutated"
	flush(t, l)

	events, _ := l.QueryEvents(context.Background(), Filter{})
	if got, _ := events[0].Details["path"].Str(); got != "/a" {
		t.Errorf("details[path] = %q, want /a", got)
	}
	if events[0].Tags[0] != "x" {
		t.Errorf("tags[0] = %q, want x", events[0].Tags[0])
	}
}

func TestQueryEvents_SingleTypeSortedDescending(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	types := []EventType{EventLoginFailure, EventAPIRequest, EventLoginFailure, EventCSRFViolation, EventLoginFailure}
	for _, et := range types {
		l.LogEvent(ctx, et, EventInput{})
	}
	flush(t, l)

	events, err := l.QueryEvents(ctx, Filter{Types: []EventType{EventLoginFailure}})
	if err != nil {
		t.Fatalf("QueryEvents() error = %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	for i, e := range events {
		if e.EventType != EventLoginFailure {
			t.Errorf("events[%d].EventType = %s, want LOGIN_FAILURE", i, e.EventType)
		}
		if i > 0 && e.Timestamp.After(events[i-1].Timestamp) {
			t.Errorf("events not sorted descending at %d", i)
		}
	}
}

func TestQueryEvents_Filters(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	l.LogEvent(ctx, EventLoginFailure, EventInput{UserID: "u1", IPAddress: "10.0.0.1", Outcome: OutcomeFailure})
	l.LogEvent(ctx, EventLoginSuccess, EventInput{UserID: "u1", IPAddress: "10.0.0.1"})
	l.LogEvent(ctx, EventLoginFailure, EventInput{UserID: "u2", IPAddress: "10.0.0.2", Outcome: OutcomeFailure, RiskLevel: RiskCritical})
	flush(t, l)

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 3},
		{"user", Filter{UserID: "u1"}, 2},
		{"ip", Filter{IPAddress: "10.0.0.2"}, 1},
		{"outcome", Filter{Outcome: OutcomeFailure}, 2},
		{"risk", Filter{RiskLevels: []RiskLevel{RiskCritical}}, 1},
		{"risk set", Filter{RiskLevels: []RiskLevel{RiskMedium, RiskCritical}}, 2},
		{"start", Filter{Start: testBase.Add(time.Second)}, 2},
		{"end", Filter{End: testBase}, 1},
		{"combined", Filter{Types: []EventType{EventLoginFailure}, UserID: "u1"}, 1},
	}
	for _, tt := range tests {
		events, err := l.QueryEvents(ctx, tt.filter)
		if err != nil {
			t.Errorf("%s: QueryEvents() error = %v", tt.name, err)
			continue
		}
		if len(events) != tt.want {
			t.Errorf("%s: len(events) = %d, want %d", tt.name, len(events), tt.want)
		}
		n, _ := l.CountEvents(ctx, tt.filter)
		if n != tt.want {
			t.Errorf("%s: CountEvents() = %d, want %d", tt.name, n, tt.want)
		}
	}
}

func TestQueryEvents_Pagination(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		l.LogEvent(ctx, EventAPIRequest, EventInput{})
	}
	flush(t, l)

	all, _ := l.QueryEvents(ctx, Filter{})
	page1, _ := l.QueryEvents(ctx, Filter{Limit: 4})
	page2, _ := l.QueryEvents(ctx, Filter{Limit: 4, Offset: 4})
	if len(page1) != 4 || len(page2) != 4 {
		t.Fatalf("page sizes = %d, %d, want 4, 4", len(page1), len(page2))
	}

	seen := map[string]bool{}
	for _, e := range page1 {
		seen[e.ID] = true
	}
	for _, e := range page2 {
		if seen[e.ID] {
			t.Errorf("event %s appears on both pages", e.ID)
		}
	}
	for i := 0; i < 8; i++ {
		got := page1
		j := i
		if i >= 4 {
			got, j = page2, i-4
		}
		if got[j].ID != all[i].ID {
			t.Errorf("page position %d = %s, want %s (contiguous)", i, got[j].ID, all[i].ID)
		}
	}
}

func TestQueryEvents_LimitDefaultsAndCap(t *testing.T) {
	t.Parallel()

	f, err := Filter{}.normalize(DefaultQueryLimit, MaxQueryLimit)
	if err != nil || f.Limit != 100 {
		t.Errorf("default limit = %d (%v), want 100", f.Limit, err)
	}
	f, err = Filter{Limit: 5000}.normalize(DefaultQueryLimit, MaxQueryLimit)
	if err != nil || f.Limit != 1000 {
		t.Errorf("capped limit = %d (%v), want 1000", f.Limit, err)
	}
	f, _ = Filter{Limit: 50000}.normalize(MaxExportLimit, MaxExportLimit)
	if f.Limit != 10000 {
		t.Errorf("export limit = %d, want 10000", f.Limit)
	}
}

func TestQueryEvents_InvalidFilter(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	tests := []struct {
		name   string
		filter Filter
		field  string
	}{
		{"type", Filter{Types: []EventType{"NOPE"}}, "types"},
		{"risk", Filter{RiskLevels: []RiskLevel{"extreme"}}, "risk"},
		{"outcome", Filter{Outcome: "maybe"}, "outcome"},
		{"offset", Filter{Offset: -1}, "offset"},
		{"limit", Filter{Limit: -5}, "limit"},
		{"range", Filter{Start: testBase, End: testBase.Add(-time.Hour)}, "end"},
	}
	for _, tt := range tests {
		_, err := l.QueryEvents(context.Background(), tt.filter)
		var verr *validation.RequestValidationError
		if !errors.As(err, &verr) {
			t.Errorf("%s: error = %v, want *RequestValidationError", tt.name, err)
			continue
		}
		if verr.Fields[0].Field != tt.field {
			t.Errorf("%s: field = %q, want %q", tt.name, verr.Fields[0].Field, tt.field)
		}
	}
}

// Three LOGIN_FAILURE events in one hour against an empty history yield
// exactly one anomaly.
func TestGetStatistics_LoginFailureBurst(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		l.LogEvent(ctx, EventLoginFailure, EventInput{Outcome: OutcomeFailure, IPAddress: "198.51.100.4"})
	}
	l.LogEvent(ctx, EventAPIRequest, EventInput{})
	flush(t, l)

	stats, err := l.GetStatistics(ctx, testBase.Add(-3*time.Hour), testBase.Add(time.Hour))
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if stats.TotalEvents != 4 {
		t.Errorf("TotalEvents = %d, want 4", stats.TotalEvents)
	}
	if stats.EventsByType[EventLoginFailure] != 3 {
		t.Errorf("EventsByType[LOGIN_FAILURE] = %d, want 3", stats.EventsByType[EventLoginFailure])
	}
	if stats.EventsByOutcome[OutcomeFailure] != 3 {
		t.Errorf("EventsByOutcome[failure] = %d, want 3", stats.EventsByOutcome[OutcomeFailure])
	}
	if stats.EventsByRisk[RiskMedium] != 3 || stats.EventsByRisk[RiskLow] != 1 {
		t.Errorf("EventsByRisk = %v", stats.EventsByRisk)
	}

	if len(stats.Anomalies) != 1 {
		t.Fatalf("len(Anomalies) = %d, want 1: %+v", len(stats.Anomalies), stats.Anomalies)
	}
	a := stats.Anomalies[0]
	if a.Type != EventLoginFailure {
		t.Errorf("anomaly type = %s, want LOGIN_FAILURE", a.Type)
	}
	if a.Severity != RiskHigh {
		t.Errorf("anomaly severity = %s, want high", a.Severity)
	}
	if !a.Timestamp.Equal(testBase.Truncate(time.Hour)) {
		t.Errorf("anomaly timestamp = %v, want bucket start", a.Timestamp)
	}

	// 07:00 .. 11:00 inclusive.
	if len(stats.TimelineData) != 5 {
		t.Fatalf("len(TimelineData) = %d, want 5", len(stats.TimelineData))
	}
	b := stats.TimelineData[3]
	if b.Total != 4 || b.Failures != 3 || b.ByType[EventLoginFailure] != 3 {
		t.Errorf("bucket 10:00 = %+v", b)
	}
}

func TestGetStatistics_DefaultWindow(t *testing.T) {
	t.Parallel()

	l, clock := newTestLogger(t)
	ctx := context.Background()
	l.LogEvent(ctx, EventAPIRequest, EventInput{})
	flush(t, l)

	clock.Set(testBase.Add(time.Hour))
	stats, err := l.GetStatistics(ctx, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("GetStatistics() error = %v", err)
	}
	if stats.TotalEvents != 1 {
		t.Errorf("TotalEvents = %d, want 1", stats.TotalEvents)
	}
	if got := stats.End.Sub(stats.Start); got != 24*time.Hour {
		t.Errorf("window = %v, want 24h", got)
	}
}

func TestGetStatistics_InvalidRange(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	_, err := l.GetStatistics(context.Background(), testBase, testBase.Add(-time.Minute))
	var verr *validation.RequestValidationError
	if !errors.As(err, &verr) {
		t.Errorf("error = %v, want *RequestValidationError", err)
	}
}

func TestExportLogs_CSV(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	l.LogEvent(ctx, EventRateLimitExceeded, EventInput{
		IPAddress: "192.0.2.1",
		Source:    "gateway",
		Details:   Details{"route": StringValue("/scan"), "limit": IntValue(5), "burst": BoolValue(true)},
		Tags:      []string{"ratelimit", "policy"},
	})
	flush(t, l)

	data, err := l.ExportLogs(ctx, Filter{}, FormatCSV)
	if err != nil {
		t.Fatalf("ExportLogs() error = %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want header + 1", len(rows))
	}
	if strings.Join(rows[0], ",") != strings.Join(csvHeader, ",") {
		t.Errorf("header = %v", rows[0])
	}
	row := rows[1]
	if row[2] != "RATE_LIMIT_EXCEEDED" || row[3] != "medium" || row[5] != "192.0.2.1" {
		t.Errorf("row = %v", row)
	}
	if row[8] != "burst=true;limit=5;route=/scan;" {
		t.Errorf("details column = %q", row[8])
	}
	if row[9] != "ratelimit|policy" {
		t.Errorf("tags column = %q", row[9])
	}
}

func TestExportLogs_CSVNeutralisesFormulas(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	l.LogEvent(ctx, EventLoginFailure, EventInput{
		IPAddress: "192.0.2.1",
		Source:    "=HYPERLINK(\"http://evil.example\",\"x\")",
		UserID:    "@SUM(A1:A9)",
		Tags:      []string{"-2+3"},
	})
	flush(t, l)

	data, err := l.ExportLogs(ctx, Filter{}, FormatCSV)
	if err != nil {
		t.Fatalf("ExportLogs() error = %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("invalid CSV: %v", err)
	}
	row := rows[1]
	tests := []struct {
		column int
		want   string
	}{
		{4, `'=HYPERLINK("http://evil.example","x")`},
		{5, "192.0.2.1"},
		{6, "'@SUM(A1:A9)"},
		{9, "'-2+3"},
	}
	for _, tt := range tests {
		if row[tt.column] != tt.want {
			t.Errorf("column %s = %q, want %q", csvHeader[tt.column], row[tt.column], tt.want)
		}
	}
}

func TestExportLogs_JSONAndCEF(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	ctx := context.Background()
	l.LogEvent(ctx, EventCSRFViolation, EventInput{
		IPAddress: "192.0.2.9",
		UserID:    "alice",
		Details:   Details{"reason": StringValue("a=b|c")},
	})
	flush(t, l)

	data, err := l.ExportLogs(ctx, Filter{}, FormatJSON)
	if err != nil {
		t.Fatalf("ExportLogs(json) error = %v", err)
	}
	var events []Event
	if err := json.Unmarshal(data, &events); err != nil {
		t.Fatalf("invalid JSON export: %v", err)
	}
	if len(events) != 1 || events[0].UserID != "alice" {
		t.Errorf("json export = %+v", events)
	}

	data, err = l.ExportLogs(ctx, Filter{}, FormatCEF)
	if err != nil {
		t.Fatalf("ExportLogs(cef) error = %v", err)
	}
	line := strings.TrimSpace(string(data))
	if !strings.HasPrefix(line, "CEF:0|EdgeGuard|edgeguard|1.0|CSRF_VIOLATION|Csrf violation|8|") {
		t.Errorf("cef header = %q", line)
	}
	if !strings.Contains(line, `cs2=reason\=a\=b|c;`) {
		t.Errorf("cef extension not escaped: %q", line)
	}
	if !strings.Contains(line, "suser=alice") || !strings.Contains(line, "src=192.0.2.9") {
		t.Errorf("cef extension missing fields: %q", line)
	}
}

func TestExportLogs_UnsupportedFormat(t *testing.T) {
	t.Parallel()

	l, _ := newTestLogger(t)
	if _, err := l.ExportLogs(context.Background(), Filter{}, Format("xml")); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := ParseFormat(""); err != nil {
		t.Errorf("ParseFormat(\"\") error = %v, want json default", err)
	}
}

// blockingStore parks Append until release is closed.
type blockingStore struct {
	*MemoryStore
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (s *blockingStore) Append(ctx context.Context, e *Event) error {
	s.once.Do(func() { close(s.entered) })
	<-s.release
	return s.MemoryStore.Append(ctx, e)
}

func TestLogEvent_BufferFullDropsWithoutBlocking(t *testing.T) {
	store := &blockingStore{MemoryStore: NewMemoryStore(), entered: make(chan struct{}), release: make(chan struct{})}
	l := NewLogger(store, Config{BufferSize: 1})
	ctx := context.Background()
	dropped := metrics.AuditDropped.WithLabelValues("buffer_full")
	before := testutil.ToFloat64(dropped)

	l.LogEvent(ctx, EventAPIRequest, EventInput{})
	<-store.entered
	l.LogEvent(ctx, EventAPIRequest, EventInput{}) // queued

	done := make(chan struct{})
	go func() {
		l.LogEvent(ctx, EventAPIRequest, EventInput{}) // dropped
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("LogEvent blocked on a full buffer")
	}

	if got := testutil.ToFloat64(dropped) - before; got != 1 {
		t.Errorf("dropped delta = %v, want 1", got)
	}

	close(store.release)
	_ = l.Close()
	if store.Len() != 2 {
		t.Errorf("stored = %d, want 2", store.Len())
	}
}

type failingStore struct{ *MemoryStore }

func (failingStore) Append(context.Context, *Event) error { return errors.New("disk full") }

func TestLogEvent_StoreErrorIsSwallowed(t *testing.T) {
	l := NewLogger(failingStore{NewMemoryStore()}, DefaultConfig())
	dropped := metrics.AuditDropped.WithLabelValues("store_error")
	before := testutil.ToFloat64(dropped)

	if id := l.LogEvent(context.Background(), EventAPIRequest, EventInput{}); id == "" {
		t.Error("LogEvent() returned empty id on store failure")
	}
	_ = l.Close()

	if got := testutil.ToFloat64(dropped) - before; got != 1 {
		t.Errorf("store_error delta = %v, want 1", got)
	}
}

func TestClose_DrainsAndRejects(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	l := NewLogger(store, DefaultConfig())
	for i := 0; i < 50; i++ {
		l.LogEvent(context.Background(), EventAPIRequest, EventInput{})
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if store.Len() != 50 {
		t.Errorf("stored after Close = %d, want 50", store.Len())
	}
	if id := l.LogEvent(context.Background(), EventAPIRequest, EventInput{}); id != "" {
		t.Errorf("LogEvent after Close = %q, want empty", id)
	}
	if err := l.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if err := l.Flush(context.Background()); err != nil {
		t.Errorf("Flush after Close error = %v", err)
	}
}

func TestLogger_PublishesToGoChannel(t *testing.T) {
	t.Parallel()

	pubsub := NewGoChannel(8)
	defer pubsub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	msgs, err := pubsub.Subscribe(ctx, DefaultTopic)
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	l, _ := newTestLogger(t, WithPublisher(pubsub, DefaultTopic))
	id := l.LogEvent(ctx, EventSuspiciousActivity, EventInput{IPAddress: "203.0.113.50"})

	select {
	case msg := <-msgs:
		e, err := DecodeMessage(msg)
		msg.Ack()
		if err != nil {
			t.Fatalf("DecodeMessage() error = %v", err)
		}
		if e.ID != id || e.EventType != EventSuspiciousActivity {
			t.Errorf("published event = %+v, want id %s", e, id)
		}
		if msg.Metadata.Get("event_type") != string(EventSuspiciousActivity) {
			t.Errorf("metadata event_type = %q", msg.Metadata.Get("event_type"))
		}
	case <-ctx.Done():
		t.Fatal("no message published")
	}
}
