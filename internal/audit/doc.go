// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

// Package audit records security events in an append-only log and derives
// statistics, anomalies and exports from it.
//
// # Writing
//
// Logger.LogEvent stamps an id and timestamp and hands the event to a single
// writer goroutine through a buffered queue. The caller never blocks and
// never sees an error; drops are logged and counted in
// edgeguard_audit_dropped_total{reason}. After a successful append the
// event is optionally published (watermill) for live subscribers and
// remote brokers.
//
// # Reading
//
//   - QueryEvents: filtered, newest first, limit 100 by default, 1000 max
//   - GetStatistics: totals, hourly timeline, anomalies
//   - ExportLogs: JSON, CSV or CEF, up to 10000 events
//
// # Anomalies
//
// The default BaselineDetector flags a (bucket, type) pair when its count
// is at least MinCount and at least Multiplier times the mean of the
// previous BaselineBuckets buckets (floored at 1). Any AnomalyDetector can
// be plugged in with WithDetector.
//
// # Stores
//
// MemoryStore keeps events in process. DuckDBStore persists them in a
// DuckDB file and pushes filtering into SQL.
//
// # Details
//
// Event details are a map of Value, a closed union of string, number,
// boolean and null. Decoding any other JSON kind fails with
// ErrUnsupportedValue.
package audit
