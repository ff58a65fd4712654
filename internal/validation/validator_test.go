// Huddle - Social Activity Client Cache
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/huddle

package validation

import (
	"errors"
	"strings"
	"testing"
)

type inner struct {
	BaseURL string `koanf:"base_url" validate:"required,url"`
	Retries int    `koanf:"retries" validate:"gte=0,lte=5"`
}

type outer struct {
	API   inner  `koanf:"api"`
	Mode  string `koanf:"mode" validate:"oneof=json console"`
	Color string `koanf:"color" validate:"omitempty,hexcolor"`
}

func TestGetValidator_Singleton(t *testing.T) {
	if GetValidator() != GetValidator() {
		t.Error("GetValidator() should return the same instance")
	}
}

func TestValidateStruct(t *testing.T) {
	tests := []struct {
		name      string
		input     outer
		wantField []string
		wantMsg   string
	}{
		{
			name:  "valid",
			input: outer{API: inner{BaseURL: "https://api.example.com"}, Mode: "json", Color: "#7C3AED"},
		},
		{
			name:      "missing url",
			input:     outer{Mode: "json"},
			wantField: []string{"api.base_url"},
			wantMsg:   "api.base_url is required",
		},
		{
			name:      "out of range and bad enum",
			input:     outer{API: inner{BaseURL: "https://x.example", Retries: 9}, Mode: "xml"},
			wantField: []string{"api.retries", "mode"},
			wantMsg:   "mode must be one of: json console",
		},
		{
			name:      "bad color",
			input:     outer{API: inner{BaseURL: "https://x.example"}, Mode: "console", Color: "purple"},
			wantField: []string{"color"},
			wantMsg:   "color must be a hex color",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStruct(&tt.input)
			if len(tt.wantField) == 0 {
				if err != nil {
					t.Fatalf("expected no error, got %v", err)
				}
				return
			}

			var se *StructError
			if !errors.As(err, &se) {
				t.Fatalf("expected *StructError, got %T (%v)", err, err)
			}
			if len(se.Errors()) != len(tt.wantField) {
				t.Fatalf("got %d errors (%v), want %d", len(se.Errors()), err, len(tt.wantField))
			}
			for i, want := range tt.wantField {
				if got := se.Errors()[i].Field(); got != want {
					t.Errorf("error %d field = %q, want %q", i, got, want)
				}
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}
