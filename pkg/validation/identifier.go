// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation provides input validation for user-supplied
// identifiers.
//
// Experiment ids, variant ids, and user ids arrive over the HTTP API
// and end up embedded in storage keys. Validating them here keeps
// malformed or hostile input out of key construction and log output.
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// identifierPattern matches valid experiment, variant, and user ids.
// Allows letters, digits, underscores, dots, and hyphens. Must start
// alphanumeric. Max length 128.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,127}$`)

// modelNamePattern additionally allows colons and slashes for
// provider-qualified names like "ollama/llama3:8b".
var modelNamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:/\-]{0,127}$`)

// ValidateIdentifier validates an experiment, variant, or user id.
//
// Valid identifiers:
//   - 1-128 characters
//   - letters, digits, underscores, dots, hyphens
//   - first character alphanumeric
//
// Returns an error describing the problem, or nil.
//
// Example:
//
//	if err := validation.ValidateIdentifier(experimentID); err != nil {
//	    return fmt.Errorf("invalid experiment id: %w", err)
//	}
func ValidateIdentifier(id string) error {
	if id == "" {
		return fmt.Errorf("identifier cannot be empty")
	}

	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("invalid identifier format: %q (must be 1-128 alphanumeric chars, underscores, dots, or hyphens)", id)
	}

	return nil
}

// ValidateIdentifiers validates multiple ids.
// Returns an error listing every invalid id if any fail.
func ValidateIdentifiers(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateIdentifier(id); err != nil {
			invalid = append(invalid, id)
		}
	}

	if len(invalid) > 0 {
		return fmt.Errorf("invalid identifiers: %v", invalid)
	}
	return nil
}

// ValidateModelName validates a backend model name, which may carry a
// provider prefix ("openai/gpt-4") or a tag suffix ("llama3:8b").
func ValidateModelName(name string) error {
	if name == "" {
		return fmt.Errorf("model name cannot be empty")
	}

	if !modelNamePattern.MatchString(name) {
		return fmt.Errorf("invalid model name: %q", name)
	}

	return nil
}

// SanitizeIdentifier trims whitespace and validates the result.
// Returns the trimmed id, or an error.
func SanitizeIdentifier(id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if err := ValidateIdentifier(trimmed); err != nil {
		return "", err
	}
	return trimmed, nil
}
