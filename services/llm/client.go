// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm holds the provider clients the routing engine selects
// between. Every provider implements LLMClient; the selector treats
// them as interchangeable arms and learns which one to prefer per
// request shape.
package llm

import "context"

// Message is one turn of a conversation in provider-neutral form.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationParams are the sampling knobs common to every provider.
// Nil fields mean provider defaults.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// LLMClient is the standard interface for any LLM backend.
type LLMClient interface {
	// Generate produces a completion for a single prompt.
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)

	// Chat produces a completion for a multi-turn conversation.
	Chat(ctx context.Context, messages []Message, params GenerationParams) (string, error)

	// Name identifies the backend for logging and reward attribution,
	// e.g. "openai/gpt-4o-mini".
	Name() string
}
