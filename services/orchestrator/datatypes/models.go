// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import (
	"github.com/switchyard-ai/switchyard/services/llm"
	"github.com/switchyard-ai/switchyard/services/selector"
)

// =============================================================================
// Model Selection API
// =============================================================================

// ModelSelectRequest asks the selector for a backend recommendation.
type ModelSelectRequest struct {
	Models       []string      `json:"models" binding:"required,min=1"`
	Messages     []llm.Message `json:"messages" binding:"required,min=1"`
	UserID       string        `json:"user_id"`
	ExperimentID string        `json:"experiment_id"`
	SessionID    string        `json:"session_id"`
}

// ModelSelectResponse returns the recommendation. The selector's
// response shape is the wire shape.
type ModelSelectResponse = selector.SelectResponse

// ModelOutcomeRequest reports how a recommended model performed.
type ModelOutcomeRequest struct {
	SessionID      string  `json:"session_id" binding:"required"`
	Success        bool    `json:"success"`
	ResponseTimeMs uint32  `json:"response_time_ms"`
	UserRating     *uint8  `json:"user_rating,omitempty" binding:"omitempty,min=1,max=5"`
	Cost           float64 `json:"cost" binding:"gte=0"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}

// ModelOutcomeResponse acknowledges an outcome report.
type ModelOutcomeResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// =============================================================================
// Completion API
// =============================================================================

// CompletionRequest runs a full routed completion: select a backend,
// invoke it, and feed the outcome back into the bandit in one call.
type CompletionRequest struct {
	Messages     []llm.Message `json:"messages" binding:"required,min=1"`
	UserID       string        `json:"user_id"`
	ExperimentID string        `json:"experiment_id"`
	SessionID    string        `json:"session_id"`

	Temperature *float32 `json:"temperature,omitempty"`
	TopK        *int     `json:"top_k,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// CompletionResponse is the backend's reply plus routing context.
type CompletionResponse struct {
	Content        string  `json:"content"`
	Backend        string  `json:"backend"`
	SessionID      string  `json:"session_id"`
	ExperimentID   string  `json:"experiment_id,omitempty"`
	VariantID      string  `json:"variant_id,omitempty"`
	ResponseTimeMs uint32  `json:"response_time_ms"`
	Confidence     float64 `json:"confidence"`
}

// HealthResponse is the health probe body.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
