// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package audit

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// csvHeader is the fixed column order of CSV exports.
var csvHeader = []string{
	"id", "timestamp", "eventType", "riskLevel", "source",
	"ipAddress", "userId", "outcome", "details", "tags",
}

func encodeEvents(events []Event, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		if events == nil {
			events = []Event{}
		}
		return json.Marshal(events)
	case FormatCSV:
		return encodeCSV(events)
	case FormatCEF:
		return encodeCEF(events), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

func encodeCSV(events []Event) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(csvHeader); err != nil {
		return nil, err
	}
	for i := range events {
		e := &events[i]
		if err := w.Write([]string{
			e.ID,
			e.Timestamp.UTC().Format(time.RFC3339Nano),
			string(e.EventType),
			string(e.RiskLevel),
			csvCell(e.Source),
			csvCell(e.IPAddress),
			csvCell(e.UserID),
			string(e.Outcome),
			csvCell(e.Details.Flatten()),
			csvCell(strings.Join(e.Tags, "|")),
		}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("write csv: %w", err)
	}
	return buf.Bytes(), nil
}

// csvCell stops spreadsheets from evaluating ingested text as a formula.
func csvCell(s string) string {
	if s == "" {
		return s
	}
	switch s[0] {
	case '=', '+', '-', '@', '\t', '\r':
		return "'" + s
	}
	return s
}

// cefSeverity maps risk levels onto the 0-10 CEF scale.
var cefSeverity = map[RiskLevel]int{
	RiskLow:      3,
	RiskMedium:   5,
	RiskHigh:     8,
	RiskCritical: 10,
}

var (
	cefHeaderEscaper    = strings.NewReplacer(`\`, `\\`, `|`, `\|`, "\n", " ", "\r", " ")
	cefExtensionEscaper = strings.NewReplacer(`\`, `\\`, `=`, `\=`, "\n", `\n`, "\r", `\r`)
)

// encodeCEF writes one ArcSight Common Event Format line per event.
func encodeCEF(events []Event) []byte {
	var b strings.Builder
	for i := range events {
		e := &events[i]
		fmt.Fprintf(&b, "CEF:0|EdgeGuard|edgeguard|1.0|%s|%s|%d|",
			cefHeaderEscaper.Replace(string(e.EventType)),
			cefHeaderEscaper.Replace(cefName(e.EventType)),
			cefSeverity[e.RiskLevel],
		)

		ext := []string{
			"rt=" + strconv.FormatInt(e.Timestamp.UnixMilli(), 10),
			"externalId=" + cefExtensionEscaper.Replace(e.ID),
			"src=" + cefExtensionEscaper.Replace(e.IPAddress),
			"outcome=" + cefExtensionEscaper.Replace(string(e.Outcome)),
			"cs1Label=source",
			"cs1=" + cefExtensionEscaper.Replace(e.Source),
		}
		if e.UserID != "" {
			ext = append(ext, "suser="+cefExtensionEscaper.Replace(e.UserID))
		}
		if len(e.Details) > 0 {
			ext = append(ext, "cs2Label=details", "cs2="+cefExtensionEscaper.Replace(e.Details.Flatten()))
		}
		if len(e.Tags) > 0 {
			ext = append(ext, "cs3Label=tags", "cs3="+cefExtensionEscaper.Replace(strings.Join(e.Tags, "|")))
		}
		b.WriteString(strings.Join(ext, " "))
		b.WriteByte('\n')
	}
	return []byte(b.String())
}

// cefName turns RATE_LIMIT_EXCEEDED into "Rate limit exceeded".
func cefName(t EventType) string {
	s := strings.ToLower(strings.ReplaceAll(string(t), "_", " "))
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
