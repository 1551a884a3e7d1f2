// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"strconv"
	"time"

	"github.com/tomtom215/edgeguard/internal/validation"
)

const (
	// DefaultQueryLimit applies when a query has no limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit caps QueryEvents page size.
	MaxQueryLimit = 1000
	// MaxExportLimit caps ExportLogs.
	MaxExportLimit = 10000
)

// Filter selects events. Zero fields do not filter.
type Filter struct {
	Types      []EventType
	RiskLevels []RiskLevel
	Start      time.Time
	End        time.Time
	UserID     string
	IPAddress  string
	Outcome    Outcome
	Limit      int
	Offset     int
}

// normalize validates f and applies the default and cap to Limit.
func (f Filter) normalize(defaultLimit, maxLimit int) (Filter, error) {
	var fields []validation.FieldError

	for _, t := range f.Types {
		if !t.Valid() {
			fields = append(fields, validation.FieldError{
				Field: "types", Tag: "oneof", Param: string(t),
				Message: "unknown event type " + strconv.Quote(string(t)),
			})
		}
	}
	for _, r := range f.RiskLevels {
		if !r.Valid() {
			fields = append(fields, validation.FieldError{
				Field: "risk", Tag: "oneof", Param: string(r),
				Message: "must be one of: low medium high critical",
			})
		}
	}
	if f.Outcome != "" && !f.Outcome.Valid() {
		fields = append(fields, validation.FieldError{
			Field: "outcome", Tag: "oneof", Param: string(f.Outcome),
			Message: "must be one of: success failure warning",
		})
	}
	if !f.Start.IsZero() && !f.End.IsZero() && f.End.Before(f.Start) {
		fields = append(fields, validation.FieldError{
			Field: "end", Tag: "gtefield", Param: "start",
			Message: "must be greater than or equal to start",
		})
	}
	if f.Limit < 0 {
		fields = append(fields, validation.FieldError{
			Field: "limit", Tag: "gte", Param: "0",
			Message: "must be greater than or equal to 0",
		})
	}
	if f.Offset < 0 {
		fields = append(fields, validation.FieldError{
			Field: "offset", Tag: "gte", Param: "0",
			Message: "must be greater than or equal to 0",
		})
	}
	if len(fields) > 0 {
		return f, &validation.RequestValidationError{Fields: fields}
	}

	if f.Limit == 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	return f, nil
}

// Matches reports whether e passes every criterion of f except paging.
func (f *Filter) Matches(e *Event) bool {
	if len(f.Types) > 0 && !containsType(f.Types, e.EventType) {
		return false
	}
	if len(f.RiskLevels) > 0 && !containsRisk(f.RiskLevels, e.RiskLevel) {
		return false
	}
	if !f.Start.IsZero() && e.Timestamp.Before(f.Start) {
		return false
	}
	if !f.End.IsZero() && e.Timestamp.After(f.End) {
		return false
	}
	if f.UserID != "" && e.UserID != f.UserID {
		return false
	}
	if f.IPAddress != "" && e.IPAddress != f.IPAddress {
		return false
	}
	if f.Outcome != "" && e.Outcome != f.Outcome {
		return false
	}
	return true
}

func containsType(types []EventType, t EventType) bool {
	for _, x := range types {
		if x == t {
			return true
		}
	}
	return false
}

func containsRisk(levels []RiskLevel, r RiskLevel) bool {
	for _, x := range levels {
		if x == r {
			return true
		}
	}
	return false
}
