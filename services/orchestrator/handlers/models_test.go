// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/llm"
	"github.com/switchyard-ai/switchyard/services/orchestrator/datatypes"
	"github.com/switchyard-ai/switchyard/services/orchestrator/routes"
	"github.com/switchyard-ai/switchyard/services/selector"
)

// stubBackend is a canned LLM client for handler tests.
type stubBackend struct {
	name  string
	reply string
	err   error
}

func (s *stubBackend) Generate(ctx context.Context, prompt string, params llm.GenerationParams) (string, error) {
	return s.reply, s.err
}

func (s *stubBackend) Chat(ctx context.Context, messages []llm.Message, params llm.GenerationParams) (string, error) {
	return s.reply, s.err
}

func (s *stubBackend) Name() string { return s.name }

// newModelServer wires a server whose registry holds the given
// backends. Backend names match the selector's default capability
// profiles so selection never fails on an unknown model.
func newModelServer(t *testing.T, backends ...llm.LLMClient) *gin.Engine {
	t.Helper()

	registry := llm.NewRegistry()
	for _, b := range backends {
		_, err := registry.Register(b)
		require.NoError(t, err)
	}

	runner := experiments.NewRunner(experiments.NewMemoryStorage(), nil)
	engine := gin.New()
	routes.SetupRoutes(engine, routes.Dependencies{
		Runner:   runner,
		Selector: selector.NewModelSelector(runner),
		Registry: registry,
	})
	return engine
}

func userMessages(content string) []llm.Message {
	return []llm.Message{{Role: "user", Content: content}}
}

// =============================================================================
// Select and Outcome
// =============================================================================

func TestModelSelectEndpoint(t *testing.T) {
	engine := newModelServer(t)

	w := performJSON(engine, http.MethodPost, "/v1/models/select",
		datatypes.ModelSelectRequest{
			Models:   []string{"gpt-4", "claude-3", "llama-3.1"},
			Messages: userMessages("summarize this quarterly report"),
			UserID:   "user-1",
		})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.ModelSelectResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, []string{"gpt-4", "claude-3", "llama-3.1"}, resp.RecommendedModel)
	assert.NotEmpty(t, resp.SessionID)
	assert.NotEmpty(t, resp.Reasoning)
	assert.Len(t, resp.Alternatives, 2)

	// Close the loop with an outcome.
	w = performJSON(engine, http.MethodPost, "/v1/models/outcome",
		datatypes.ModelOutcomeRequest{
			SessionID:      resp.SessionID,
			Success:        true,
			ResponseTimeMs: 900,
			Cost:           0.015,
		})
	require.Equal(t, http.StatusOK, w.Code)

	// The session is consumed; a replay is a 404.
	w = performJSON(engine, http.MethodPost, "/v1/models/outcome",
		datatypes.ModelOutcomeRequest{SessionID: resp.SessionID, Success: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestModelSelectRejectsEmptyModels(t *testing.T) {
	engine := newModelServer(t)

	w := performJSON(engine, http.MethodPost, "/v1/models/select",
		datatypes.ModelSelectRequest{
			Messages: userMessages("hello"),
		})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestModelOutcomeUnknownSession(t *testing.T) {
	engine := newModelServer(t)

	w := performJSON(engine, http.MethodPost, "/v1/models/outcome",
		datatypes.ModelOutcomeRequest{SessionID: "ghost", Success: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Completions
// =============================================================================

func TestCompletionEndpoint(t *testing.T) {
	engine := newModelServer(t,
		&stubBackend{name: "gpt-4", reply: "The answer is 42."},
		&stubBackend{name: "claude-3", reply: "The answer is 42."},
	)

	w := performJSON(engine, http.MethodPost, "/v1/completions",
		datatypes.CompletionRequest{
			Messages: userMessages("what is the answer?"),
			UserID:   "user-1",
		})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "The answer is 42.", resp.Content)
	assert.Contains(t, []string{"gpt-4", "claude-3"}, resp.Backend)
	assert.NotEmpty(t, resp.SessionID)
}

func TestCompletionBackendFailure(t *testing.T) {
	engine := newModelServer(t,
		&stubBackend{name: "gpt-4", err: errors.New("upstream unavailable")},
	)

	w := performJSON(engine, http.MethodPost, "/v1/completions",
		datatypes.CompletionRequest{
			Messages: userMessages("hello"),
		})
	assert.Equal(t, http.StatusBadGateway, w.Code)
}

func TestCompletionNoBackends(t *testing.T) {
	engine := newModelServer(t)

	w := performJSON(engine, http.MethodPost, "/v1/completions",
		datatypes.CompletionRequest{
			Messages: userMessages("hello"),
		})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// =============================================================================
// Health
// =============================================================================

func TestHealthEndpoint(t *testing.T) {
	engine := newModelServer(t)

	w := performJSON(engine, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
}
