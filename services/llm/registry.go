// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package llm

import (
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// =============================================================================
// Backend Registry
// =============================================================================

// Registry is the ordered pool of LLM backends the routing policies
// select between.
//
// # Description
//
// Bandit policies address backends by index, so registration order is
// load-bearing: arm i always means the i-th registered backend.
// Backends are registered once at startup and the set never shrinks,
// which keeps learned arm statistics aligned with live backends.
//
// # Thread Safety
//
// Safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	backends []LLMClient
	byName   map[string]int
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName: make(map[string]int),
	}
}

// Register appends a backend to the pool and returns its arm index.
// Registering a name twice is an error.
func (r *Registry) Register(client LLMClient) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	if _, exists := r.byName[name]; exists {
		return 0, fmt.Errorf("backend %q already registered", name)
	}

	idx := len(r.backends)
	r.backends = append(r.backends, client)
	r.byName[name] = idx
	return idx, nil
}

// ByIndex returns the backend at an arm index, or nil when out of
// range.
func (r *Registry) ByIndex(idx int) LLMClient {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if idx < 0 || idx >= len(r.backends) {
		return nil
	}
	return r.backends[idx]
}

// ByName returns the backend with the given name and its arm index.
func (r *Registry) ByName(name string) (LLMClient, int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byName[name]
	if !ok {
		return nil, 0, false
	}
	return r.backends[idx], idx, true
}

// Names returns the backend names in arm order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, len(r.backends))
	for i, c := range r.backends {
		names[i] = c.Name()
	}
	return names
}

// Len returns the number of registered backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// NewRegistryFromEnv registers every provider whose environment is
// configured, in a fixed order (Ollama, OpenAI, Anthropic) so arm
// indices are stable across restarts with the same configuration.
// Providers with missing credentials are skipped with a log line; at
// least one must come up.
func NewRegistryFromEnv() (*Registry, error) {
	registry := NewRegistry()

	if os.Getenv("OLLAMA_BASE_URL") != "" {
		if client, err := NewOllamaClient(); err == nil {
			registry.Register(client)
		} else {
			slog.Warn("Ollama backend unavailable", "error", err)
		}
	}
	if os.Getenv("OPENAI_API_KEY") != "" {
		if client, err := NewOpenAIClient(); err == nil {
			registry.Register(client)
		} else {
			slog.Warn("OpenAI backend unavailable", "error", err)
		}
	}
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		if client, err := NewAnthropicClient(); err == nil {
			registry.Register(client)
		} else {
			slog.Warn("Anthropic backend unavailable", "error", err)
		}
	}

	if registry.Len() == 0 {
		return nil, fmt.Errorf("no LLM backends configured; set OLLAMA_BASE_URL, OPENAI_API_KEY, or ANTHROPIC_API_KEY")
	}

	slog.Info("LLM backends registered", "backends", registry.Names())
	return registry, nil
}
