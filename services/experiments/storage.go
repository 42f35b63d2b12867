// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"sync"
)

// =============================================================================
// Storage Contract
// =============================================================================

// Storage persists experiment configs and results.
//
// # Implementation Requirements
//
//  1. SaveConfig is an upsert; UpdateConfig is an alias for it.
//  2. DeleteConfig removes the config and any stored results and
//     reports whether anything was removed.
//  3. LoadConfigs returns every stored config regardless of status;
//     filtering runnable experiments is the runner's job.
//  4. All methods must be safe for concurrent use.
type Storage interface {
	SaveConfig(ctx context.Context, config *ExperimentConfig) error
	LoadConfigs(ctx context.Context) ([]ExperimentConfig, error)
	UpdateConfig(ctx context.Context, config *ExperimentConfig) error
	DeleteConfig(ctx context.Context, experimentID string) (bool, error)

	SaveResults(ctx context.Context, results *ExperimentResults) error
	LoadResults(ctx context.Context, experimentID string) (*ExperimentResults, error)
	AllResults(ctx context.Context) ([]ExperimentResults, error)
}

// =============================================================================
// In-Memory Storage
// =============================================================================

// MemoryStorage is a map-backed Storage for tests and single-process
// deployments without durability requirements.
type MemoryStorage struct {
	mu      sync.RWMutex
	configs map[string]ExperimentConfig
	results map[string]ExperimentResults
}

// NewMemoryStorage creates an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		configs: make(map[string]ExperimentConfig),
		results: make(map[string]ExperimentResults),
	}
}

// SaveConfig upserts a config keyed by its id.
func (s *MemoryStorage) SaveConfig(ctx context.Context, config *ExperimentConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[config.ID] = *config
	return nil
}

// LoadConfigs returns every stored config.
func (s *MemoryStorage) LoadConfigs(ctx context.Context) ([]ExperimentConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExperimentConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, c)
	}
	return out, nil
}

// UpdateConfig is an alias for SaveConfig.
func (s *MemoryStorage) UpdateConfig(ctx context.Context, config *ExperimentConfig) error {
	return s.SaveConfig(ctx, config)
}

// DeleteConfig removes the config and results for an experiment.
func (s *MemoryStorage) DeleteConfig(ctx context.Context, experimentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, hadConfig := s.configs[experimentID]
	_, hadResults := s.results[experimentID]
	delete(s.configs, experimentID)
	delete(s.results, experimentID)
	return hadConfig || hadResults, nil
}

// SaveResults upserts results keyed by experiment id.
func (s *MemoryStorage) SaveResults(ctx context.Context, results *ExperimentResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[results.ExperimentID] = *results
	return nil
}

// LoadResults returns the stored results for an experiment, or nil.
func (s *MemoryStorage) LoadResults(ctx context.Context, experimentID string) (*ExperimentResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.results[experimentID]; ok {
		return &r, nil
	}
	return nil, nil
}

// AllResults returns every stored result.
func (s *MemoryStorage) AllResults(ctx context.Context) ([]ExperimentResults, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ExperimentResults, 0, len(s.results))
	for _, r := range s.results {
		out = append(out, r)
	}
	return out, nil
}

var _ Storage = (*MemoryStorage)(nil)
