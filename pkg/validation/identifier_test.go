// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{
		"exp-001",
		"user_42",
		"a",
		"Experiment.2025-08",
		strings.Repeat("x", 128),
	}
	for _, id := range valid {
		if err := ValidateIdentifier(id); err != nil {
			t.Errorf("ValidateIdentifier(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{
		"",
		"-leading-hyphen",
		".leading.dot",
		"has space",
		"semi;colon",
		"path/traversal",
		strings.Repeat("x", 129),
	}
	for _, id := range invalid {
		if err := ValidateIdentifier(id); err == nil {
			t.Errorf("ValidateIdentifier(%q) = nil, want error", id)
		}
	}
}

func TestValidateModelName(t *testing.T) {
	valid := []string{
		"gpt-4",
		"openai/gpt-4o-mini",
		"llama3:8b",
		"claude-3-5-sonnet-20241022",
	}
	for _, name := range valid {
		if err := ValidateModelName(name); err != nil {
			t.Errorf("ValidateModelName(%q) = %v, want nil", name, err)
		}
	}

	if err := ValidateModelName(""); err == nil {
		t.Error("ValidateModelName(\"\") = nil, want error")
	}
	if err := ValidateModelName("bad name"); err == nil {
		t.Error("ValidateModelName with space = nil, want error")
	}
}

func TestValidateIdentifiers(t *testing.T) {
	if err := ValidateIdentifiers([]string{"a", "b", "c"}); err != nil {
		t.Errorf("all valid ids returned error: %v", err)
	}
	err := ValidateIdentifiers([]string{"ok", "not ok", ""})
	if err == nil {
		t.Fatal("expected error for invalid ids")
	}
	if !strings.Contains(err.Error(), "not ok") {
		t.Errorf("error should name the invalid id: %v", err)
	}
}

func TestSanitizeIdentifier(t *testing.T) {
	got, err := SanitizeIdentifier("  exp-7  ")
	if err != nil {
		t.Fatalf("SanitizeIdentifier error: %v", err)
	}
	if got != "exp-7" {
		t.Errorf("SanitizeIdentifier = %q, want %q", got, "exp-7")
	}

	if _, err := SanitizeIdentifier("   "); err == nil {
		t.Error("whitespace-only id should fail")
	}
}
