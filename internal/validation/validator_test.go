// EdgeGuard - Edge Security Gateway
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/edgeguard

package validation

import (
	"strings"
	"testing"
)

type scanInput struct {
	ScanType string   `json:"scanType" validate:"required,oneof=quick full"`
	Targets  []string `json:"targets" validate:"required,min=1,max=3,dive,httpurl"`
	Depth    int      `json:"depth" validate:"gte=0,lte=5"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() returned different instances")
	}
}

func TestValidateStruct_Valid(t *testing.T) {
	in := scanInput{ScanType: "quick", Targets: []string{"https://example.com"}, Depth: 2}
	if err := ValidateStruct(&in); err != nil {
		t.Errorf("ValidateStruct() = %v, want nil", err)
	}
}

func TestValidateStruct_Invalid(t *testing.T) {
	tests := []struct {
		name      string
		input     scanInput
		wantField string
		wantMsg   string
	}{
		{
			name:      "missing scan type",
			input:     scanInput{Targets: []string{"https://example.com"}},
			wantField: "scanType",
			wantMsg:   "scanType is required",
		},
		{
			name:      "bad scan type",
			input:     scanInput{ScanType: "deep", Targets: []string{"https://example.com"}},
			wantField: "scanType",
			wantMsg:   "scanType must be one of: quick full",
		},
		{
			name:      "non http target",
			input:     scanInput{ScanType: "quick", Targets: []string{"ftp://example.com"}},
			wantField: "targets[0]",
			wantMsg:   "must be an absolute http or https URL",
		},
		{
			name:      "too many targets",
			input:     scanInput{ScanType: "full", Targets: []string{"http://a", "http://b", "http://c", "http://d"}},
			wantField: "targets",
			wantMsg:   "targets must be at most 3 items",
		},
		{
			name:      "depth too large",
			input:     scanInput{ScanType: "full", Targets: []string{"http://a"}, Depth: 9},
			wantField: "depth",
			wantMsg:   "depth must be less than or equal to 5",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if err == nil {
				t.Fatal("ValidateStruct() = nil, want error")
			}
			if len(err.Fields) != 1 {
				t.Fatalf("len(Fields) = %d, want 1 (%v)", len(err.Fields), err)
			}
			if err.Fields[0].Field != tt.wantField {
				t.Errorf("Field = %q, want %q", err.Fields[0].Field, tt.wantField)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("Error() = %q, want it to contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestIsHTTPURL(t *testing.T) {
	tests := map[string]bool{
		"https://example.com/path": true,
		"http://10.0.0.1:8080":     true,
		"example.com":              false,
		"javascript:alert(1)":      false,
		"https://":                 false,
	}
	for in, want := range tests {
		if got := IsHTTPURL(in); got != want {
			t.Errorf("IsHTTPURL(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNewError(t *testing.T) {
	err := NewError("start", "datetime", "start must be RFC3339")
	if err.Error() != "start must be RFC3339" {
		t.Errorf("Error() = %q", err.Error())
	}
}
