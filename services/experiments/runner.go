// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/switchyard-ai/switchyard/pkg/logging"
)

// =============================================================================
// Experiment Runner
// =============================================================================

// Runner is the live registry of experiments.
//
// # Description
//
// Runner owns every Experiment instance and persists configs and
// results through its Storage. All in-memory state sits behind one
// coarse mutex; experiment operations are short and map-bound, so a
// single lock keeps the invariants simple. Policy access goes through
// runner methods so variant policies are never touched outside the
// lock.
//
// Callers that need to check participation and then act should do so
// in two phases: ask under one lock acquisition, drop the lock, then
// act and report back under another. Runner methods never call out to
// storage or backends while holding the lock except where documented.
//
// # Thread Safety
//
// Safe for concurrent use.
type Runner struct {
	mu          sync.Mutex
	experiments map[string]*Experiment
	storage     Storage
	logger      *logging.Logger
}

// NewRunner creates a Runner over the given storage. A nil logger
// falls back to the default stderr logger.
func NewRunner(storage Storage, logger *logging.Logger) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		experiments: make(map[string]*Experiment),
		storage:     storage,
		logger:      logger,
	}
}

// LoadExperiments reads every stored config and registers the runnable
// ones. Configs that fail to instantiate are logged and skipped so one
// corrupt experiment cannot block startup.
func (r *Runner) LoadExperiments(ctx context.Context) error {
	configs, err := r.storage.LoadConfigs(ctx)
	if err != nil {
		return fmt.Errorf("load experiment configs: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	loaded := 0
	for _, config := range configs {
		if !config.CanRun() {
			continue
		}
		exp, err := NewExperiment(config)
		if err != nil {
			r.logger.Error("skipping unloadable experiment",
				"experiment_id", config.ID, "error", err.Error())
			continue
		}
		r.experiments[config.ID] = exp
		loaded++
	}

	r.logger.Info("experiments loaded", "count", loaded, "stored", len(configs))
	return nil
}

// CreateExperiment validates, persists, and (when runnable) registers
// a new experiment. An id collision with a live experiment is an
// error.
func (r *Runner) CreateExperiment(ctx context.Context, config ExperimentConfig) error {
	exp, err := NewExperiment(config)
	if err != nil {
		return err
	}

	if err := r.storage.SaveConfig(ctx, &config); err != nil {
		return fmt.Errorf("persist experiment %q: %w", config.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.experiments[config.ID]; exists {
		return fmt.Errorf("experiment %q already running", config.ID)
	}
	if config.CanRun() {
		r.experiments[config.ID] = exp
	}

	r.logger.Info("experiment created",
		"experiment_id", config.ID, "status", string(config.Status))
	return nil
}

// GetConfig returns the config for an experiment, preferring the live
// instance over storage.
func (r *Runner) GetConfig(ctx context.Context, experimentID string) (*ExperimentConfig, error) {
	r.mu.Lock()
	if exp, ok := r.experiments[experimentID]; ok {
		config := exp.Config
		r.mu.Unlock()
		return &config, nil
	}
	r.mu.Unlock()

	configs, err := r.storage.LoadConfigs(ctx)
	if err != nil {
		return nil, err
	}
	for i := range configs {
		if configs[i].ID == experimentID {
			return &configs[i], nil
		}
	}
	return nil, nil
}

// ListConfigs returns every stored config, overlaying live status for
// registered experiments.
func (r *Runner) ListConfigs(ctx context.Context) ([]ExperimentConfig, error) {
	configs, err := r.storage.LoadConfigs(ctx)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range configs {
		if exp, ok := r.experiments[configs[i].ID]; ok {
			configs[i] = exp.Config
		}
	}
	return configs, nil
}

// UpdateExperiment persists a modified config and rebuilds the live
// experiment when one is registered. Rebuilding resets policy learning
// state and user assignments; callers update running experiments
// knowingly.
func (r *Runner) UpdateExperiment(ctx context.Context, config ExperimentConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid experiment config %q: %w", config.ID, err)
	}
	config.UpdatedAt = time.Now().UTC()

	if err := r.storage.UpdateConfig(ctx, &config); err != nil {
		return fmt.Errorf("persist experiment %q: %w", config.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, live := r.experiments[config.ID]; live || config.CanRun() {
		exp, err := NewExperiment(config)
		if err != nil {
			return err
		}
		if config.CanRun() {
			r.experiments[config.ID] = exp
		} else {
			delete(r.experiments, config.ID)
		}
	}
	return nil
}

// DeleteExperiment unregisters and removes an experiment. Returns
// whether anything was deleted.
func (r *Runner) DeleteExperiment(ctx context.Context, experimentID string) (bool, error) {
	r.mu.Lock()
	delete(r.experiments, experimentID)
	r.mu.Unlock()

	found, err := r.storage.DeleteConfig(ctx, experimentID)
	if err != nil {
		return false, fmt.Errorf("delete experiment %q: %w", experimentID, err)
	}
	return found, nil
}

// SetStatus transitions an experiment's lifecycle state and persists
// it. Becoming runnable registers a live instance; a live instance
// that stops being runnable keeps its state registered (sticky
// assignments stay served) but accepts no new users, except archived
// experiments, which are unregistered.
func (r *Runner) SetStatus(ctx context.Context, experimentID string, status ExperimentStatus) error {
	if !ValidStatus(status) {
		return fmt.Errorf("unknown experiment status %q", status)
	}

	config, err := r.GetConfig(ctx, experimentID)
	if err != nil {
		return err
	}
	if config == nil {
		return fmt.Errorf("experiment %q not found", experimentID)
	}

	config.Status = status
	config.UpdatedAt = time.Now().UTC()
	if err := r.storage.UpdateConfig(ctx, config); err != nil {
		return fmt.Errorf("persist experiment %q: %w", experimentID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if exp, ok := r.experiments[experimentID]; ok {
		exp.Config.Status = status
		exp.Config.UpdatedAt = config.UpdatedAt
		if status == StatusArchived {
			delete(r.experiments, experimentID)
		}
	} else if config.CanRun() {
		exp, err := NewExperiment(*config)
		if err != nil {
			return err
		}
		r.experiments[experimentID] = exp
	}

	r.logger.Info("experiment status changed",
		"experiment_id", experimentID, "status", string(status))
	return nil
}

// =============================================================================
// Assignment and Interaction
// =============================================================================

// GetVariantForUser returns the user's assignment context, assigning
// on first sight. Returns false when the experiment is unknown or the
// user is not (and cannot be) assigned.
func (r *Runner) GetVariantForUser(experimentID, userID string) (AssignmentContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.experiments[experimentID]
	if !ok {
		return AssignmentContext{}, false
	}
	v := exp.AssignUser(userID)
	if v == nil {
		return AssignmentContext{}, false
	}
	return AssignmentContext{
		ExperimentID:   experimentID,
		VariantID:      v.Config.ID,
		RoutingPolicy:  v.Config.RoutingPolicy,
		AssignmentTime: time.Now().UTC(),
	}, true
}

// RecordInteraction attributes one observation to the variant the user
// is already assigned to. Users without an assignment are never
// assigned here; the observation is dropped.
func (r *Runner) RecordInteraction(experimentID, userID string, im *InteractionMetrics) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.experiments[experimentID]
	if !ok {
		return
	}
	variantID, assigned := exp.UserAssignments[userID]
	if !assigned {
		return
	}
	exp.RecordInteraction(userID, variantID, im)
}

// SelectBackend runs the variant's routing policy to pick a backend
// index, entirely under the runner lock. Returns false when the
// experiment or variant is unknown.
func (r *Runner) SelectBackend(experimentID, variantID string, numOptions int, features []float64) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.experiments[experimentID]
	if !ok {
		return 0, false
	}
	v, ok := exp.Variants[variantID]
	if !ok {
		return 0, false
	}

	var idx int
	if features != nil {
		idx = v.Policy.SelectIndexWithContext(numOptions, features)
	} else {
		idx = v.Policy.SelectIndex(numOptions)
	}
	return idx, true
}

// UpdatePolicyReward feeds a reward back to the variant's routing
// policy under the runner lock. Returns false when the experiment or
// variant is unknown.
func (r *Runner) UpdatePolicyReward(experimentID, variantID string, armIndex int, features []float64, reward float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	exp, ok := r.experiments[experimentID]
	if !ok {
		return false
	}
	v, ok := exp.Variants[variantID]
	if !ok {
		return false
	}

	if features != nil {
		v.Policy.UpdateRewardWithContext(armIndex, features, reward)
	} else {
		v.Policy.UpdateReward(armIndex, reward)
	}
	return true
}

// ActiveExperimentIDs returns the ids of every registered experiment.
func (r *Runner) ActiveExperimentIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.experiments))
	for id := range r.experiments {
		ids = append(ids, id)
	}
	return ids
}

// =============================================================================
// Results
// =============================================================================

// Results returns the current results for an experiment, computed
// live when registered, otherwise the last persisted snapshot.
func (r *Runner) Results(ctx context.Context, experimentID string) (*ExperimentResults, error) {
	r.mu.Lock()
	if exp, ok := r.experiments[experimentID]; ok {
		results := exp.Results()
		r.mu.Unlock()
		return &results, nil
	}
	r.mu.Unlock()

	return r.storage.LoadResults(ctx, experimentID)
}

// SaveResults persists a results snapshot for every live experiment.
// Storage failures are logged per experiment and never abort the
// sweep; losing one snapshot must not take down the engine.
func (r *Runner) SaveResults(ctx context.Context) {
	r.mu.Lock()
	snapshots := make([]ExperimentResults, 0, len(r.experiments))
	for _, exp := range r.experiments {
		snapshots = append(snapshots, exp.Results())
	}
	r.mu.Unlock()

	for i := range snapshots {
		if err := r.storage.SaveResults(ctx, &snapshots[i]); err != nil {
			r.logger.Error("failed to save experiment results",
				"experiment_id", snapshots[i].ExperimentID, "error", err.Error())
		}
	}
}
