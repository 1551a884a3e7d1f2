// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // registers the "duckdb" driver
	"github.com/goccy/go-json"

	"github.com/tomtom215/edgeguard/internal/logging"
)

// DuckDBStore persists the log in a DuckDB file. seq preserves append order
// among equal timestamps.
type DuckDBStore struct {
	db *sql.DB
}

// OpenDuckDBStore opens (or creates) the database at path and ensures the
// schema exists. ":memory:" gives a throwaway database.
func OpenDuckDBStore(ctx context.Context, path string) (*DuckDBStore, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("open duckdb %s: %w", path, err)
	}
	// A single connection keeps :memory: databases shared and serializes writes.
	db.SetMaxOpenConns(1)

	s := &DuckDBStore{db: db}
	if err := s.createSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *DuckDBStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS audit_events_seq`,
		`CREATE TABLE IF NOT EXISTS audit_events (
			seq BIGINT NOT NULL DEFAULT nextval('audit_events_seq'),
			id TEXT PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			risk_level TEXT NOT NULL,
			source TEXT NOT NULL,
			ip_address TEXT NOT NULL,
			user_id TEXT,
			outcome TEXT NOT NULL,
			details TEXT,
			tags TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_events(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_event_type ON audit_events(event_type)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_ip_address ON audit_events(ip_address)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create audit schema: %w", err)
		}
	}
	logging.Debug().Msg("Audit events table created/verified")
	return nil
}

// Append implements Store.
func (s *DuckDBStore) Append(ctx context.Context, e *Event) error {
	details, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("marshal details: %w", err)
	}
	tags, err := json.Marshal(e.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (id, timestamp, event_type, risk_level, source, ip_address, user_id, outcome, details, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp.UTC(), string(e.EventType), string(e.RiskLevel), e.Source, e.IPAddress,
		nullString(e.UserID), string(e.Outcome), string(details), string(tags),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, timestamp, event_type, risk_level, source, ip_address, user_id, outcome, details, tags FROM audit_events`

// Query implements Store.
func (s *DuckDBStore) Query(ctx context.Context, f Filter) ([]Event, error) {
	where, args := buildConditions(f)
	query := selectColumns + where + " ORDER BY timestamp DESC, seq DESC"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}
	if f.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", f.Offset)
	}
	return s.queryEvents(ctx, query, args...)
}

// Count implements Store.
func (s *DuckDBStore) Count(ctx context.Context, f Filter) (int, error) {
	where, args := buildConditions(f)
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM audit_events"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count audit events: %w", err)
	}
	return n, nil
}

// All implements Store.
func (s *DuckDBStore) All(ctx context.Context, start, end time.Time) ([]Event, error) {
	return s.queryEvents(ctx,
		selectColumns+" WHERE timestamp >= ? AND timestamp <= ? ORDER BY timestamp ASC, seq ASC",
		start.UTC(), end.UTC())
}

// Close implements Store.
func (s *DuckDBStore) Close() error {
	return s.db.Close()
}

func (s *DuckDBStore) queryEvents(ctx context.Context, query string, args ...interface{}) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("read audit event row: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}
	return events, nil
}

func scanEvent(rows *sql.Rows) (Event, error) {
	var (
		e                             Event
		eventType, risk, outcome      string
		userID, detailsJSON, tagsJSON sql.NullString
	)
	if err := rows.Scan(&e.ID, &e.Timestamp, &eventType, &risk, &e.Source, &e.IPAddress,
		&userID, &outcome, &detailsJSON, &tagsJSON); err != nil {
		return Event{}, err
	}
	e.Timestamp = e.Timestamp.UTC()
	e.EventType = EventType(eventType)
	e.RiskLevel = RiskLevel(risk)
	e.Outcome = Outcome(outcome)
	e.UserID = userID.String
	if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
			return Event{}, fmt.Errorf("decode details of %s: %w", e.ID, err)
		}
	}
	if tagsJSON.Valid && tagsJSON.String != "" && tagsJSON.String != "null" {
		if err := json.Unmarshal([]byte(tagsJSON.String), &e.Tags); err != nil {
			return Event{}, fmt.Errorf("decode tags of %s: %w", e.ID, err)
		}
	}
	return e, nil
}

// buildConditions renders the WHERE clause for f, paging excluded.
func buildConditions(f Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if cond := inCondition("event_type", f.Types, &args); cond != "" {
		conds = append(conds, cond)
	}
	if cond := inCondition("risk_level", f.RiskLevels, &args); cond != "" {
		conds = append(conds, cond)
	}
	if !f.Start.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, f.Start.UTC())
	}
	if !f.End.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, f.End.UTC())
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.IPAddress != "" {
		conds = append(conds, "ip_address = ?")
		args = append(args, f.IPAddress)
	}
	if f.Outcome != "" {
		conds = append(conds, "outcome = ?")
		args = append(args, string(f.Outcome))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func inCondition[T ~string](column string, values []T, args *[]interface{}) string {
	if len(values) == 0 {
		return ""
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = "?"
		*args = append(*args, string(v))
	}
	return fmt.Sprintf("%s IN (%s)", column, strings.Join(placeholders, ","))
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
