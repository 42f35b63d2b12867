// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func newTestRunner(t *testing.T) (*Runner, *MemoryStorage) {
	t.Helper()
	storage := NewMemoryStorage()
	return NewRunner(storage, nil), storage
}

func runningConfig(id string) ExperimentConfig {
	c := NewExperimentConfig(id, "Test "+id, "desc", testVariants(), 1.0, testCriteria())
	c.Status = StatusRunning
	return c
}

func TestLoadExperimentsRegistersOnlyRunnable(t *testing.T) {
	runner, storage := newTestRunner(t)
	ctx := context.Background()

	running := runningConfig("exp-running")
	draft := NewExperimentConfig("exp-draft", "Draft", "desc", testVariants(), 1.0, testCriteria())

	if err := storage.SaveConfig(ctx, &running); err != nil {
		t.Fatal(err)
	}
	if err := storage.SaveConfig(ctx, &draft); err != nil {
		t.Fatal(err)
	}

	if err := runner.LoadExperiments(ctx); err != nil {
		t.Fatalf("LoadExperiments: %v", err)
	}

	ids := runner.ActiveExperimentIDs()
	if len(ids) != 1 || ids[0] != "exp-running" {
		t.Errorf("active = %v, want [exp-running]", ids)
	}
}

func TestCreateExperimentPersistsAndRegisters(t *testing.T) {
	runner, storage := newTestRunner(t)
	ctx := context.Background()

	if err := runner.CreateExperiment(ctx, runningConfig("exp-1")); err != nil {
		t.Fatalf("CreateExperiment: %v", err)
	}

	configs, _ := storage.LoadConfigs(ctx)
	if len(configs) != 1 {
		t.Fatalf("stored %d configs, want 1", len(configs))
	}
	if ids := runner.ActiveExperimentIDs(); len(ids) != 1 {
		t.Errorf("active = %v, want one experiment", ids)
	}

	if err := runner.CreateExperiment(ctx, runningConfig("exp-1")); err == nil {
		t.Error("duplicate id should be rejected")
	}
}

func TestCreateExperimentRejectsInvalid(t *testing.T) {
	runner, _ := newTestRunner(t)

	bad := runningConfig("exp-bad")
	bad.TrafficAllocation = 0.0
	if err := runner.CreateExperiment(context.Background(), bad); err == nil {
		t.Error("invalid config should be rejected before persistence")
	}
}

func TestAssignmentAndInteractionFlow(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	if err := runner.CreateExperiment(ctx, runningConfig("exp-1")); err != nil {
		t.Fatal(err)
	}

	// Recording before assignment drops the observation.
	runner.RecordInteraction("exp-1", "user-1", interaction(true, 100, 0))

	ac, ok := runner.GetVariantForUser("exp-1", "user-1")
	if !ok {
		t.Fatal("user should be assigned")
	}
	if ac.ExperimentID != "exp-1" || ac.VariantID == "" {
		t.Fatalf("bad assignment context: %+v", ac)
	}

	ac2, ok := runner.GetVariantForUser("exp-1", "user-1")
	if !ok || ac2.VariantID != ac.VariantID {
		t.Error("repeat lookup should return the same variant")
	}

	runner.RecordInteraction("exp-1", "user-1", interaction(true, 100, 0))

	results, err := runner.Results(ctx, "exp-1")
	if err != nil {
		t.Fatal(err)
	}
	vr := results.VariantResults[ac.VariantID]
	if vr.SampleSize != 1 {
		t.Errorf("sample size = %d, want 1 (pre-assignment record must be dropped)", vr.SampleSize)
	}
}

func TestGetVariantForUserUnknownExperiment(t *testing.T) {
	runner, _ := newTestRunner(t)
	if _, ok := runner.GetVariantForUser("missing", "user-1"); ok {
		t.Error("unknown experiment should not assign")
	}
}

func TestSelectBackendAndReward(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	if err := runner.CreateExperiment(ctx, runningConfig("exp-1")); err != nil {
		t.Fatal(err)
	}
	ac, ok := runner.GetVariantForUser("exp-1", "user-1")
	if !ok {
		t.Fatal("assignment failed")
	}

	idx, ok := runner.SelectBackend("exp-1", ac.VariantID, 3, nil)
	if !ok {
		t.Fatal("SelectBackend should succeed for a live variant")
	}
	if idx < 0 || idx >= 3 {
		t.Errorf("backend index %d out of range", idx)
	}

	if !runner.UpdatePolicyReward("exp-1", ac.VariantID, idx, nil, 1.0) {
		t.Error("reward update should succeed for a live variant")
	}
	if runner.UpdatePolicyReward("exp-1", "no-such-variant", 0, nil, 1.0) {
		t.Error("reward update should fail for an unknown variant")
	}
	if _, ok := runner.SelectBackend("missing", ac.VariantID, 3, nil); ok {
		t.Error("selection should fail for an unknown experiment")
	}
}

func TestSetStatusLifecycle(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	draft := NewExperimentConfig("exp-1", "Test", "desc", testVariants(), 1.0, testCriteria())
	if err := runner.CreateExperiment(ctx, draft); err != nil {
		t.Fatal(err)
	}
	if len(runner.ActiveExperimentIDs()) != 0 {
		t.Fatal("draft experiment should not be registered")
	}

	if err := runner.SetStatus(ctx, "exp-1", StatusRunning); err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(runner.ActiveExperimentIDs()) != 1 {
		t.Error("running experiment should be registered")
	}

	// Pausing keeps the instance live for sticky assignments but blocks
	// new users.
	if _, ok := runner.GetVariantForUser("exp-1", "user-1"); !ok {
		t.Fatal("assignment while running failed")
	}
	if err := runner.SetStatus(ctx, "exp-1", StatusPaused); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if _, ok := runner.GetVariantForUser("exp-1", "user-1"); !ok {
		t.Error("existing assignment should survive a pause")
	}
	if _, ok := runner.GetVariantForUser("exp-1", "user-2"); ok {
		t.Error("paused experiment should not take new users")
	}

	if err := runner.SetStatus(ctx, "exp-1", StatusArchived); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if len(runner.ActiveExperimentIDs()) != 0 {
		t.Error("archived experiment should be unregistered")
	}

	if err := runner.SetStatus(ctx, "exp-1", "bogus"); err == nil {
		t.Error("unknown status should be rejected")
	}
	if err := runner.SetStatus(ctx, "missing", StatusRunning); err == nil {
		t.Error("unknown experiment should be rejected")
	}
}

func TestDeleteExperiment(t *testing.T) {
	runner, _ := newTestRunner(t)
	ctx := context.Background()

	if err := runner.CreateExperiment(ctx, runningConfig("exp-1")); err != nil {
		t.Fatal(err)
	}

	found, err := runner.DeleteExperiment(ctx, "exp-1")
	if err != nil || !found {
		t.Fatalf("delete = (%v, %v), want (true, nil)", found, err)
	}
	if len(runner.ActiveExperimentIDs()) != 0 {
		t.Error("deleted experiment should be unregistered")
	}

	found, err = runner.DeleteExperiment(ctx, "exp-1")
	if err != nil || found {
		t.Errorf("second delete = (%v, %v), want (false, nil)", found, err)
	}
}

// failingStorage errors on every persistence call. Reads delegate to an
// inner MemoryStorage so runners can still be constructed around it.
type failingStorage struct {
	*MemoryStorage
}

func (s *failingStorage) SaveResults(ctx context.Context, results *ExperimentResults) error {
	return errors.New("disk full")
}

func TestSaveResultsSurvivesStorageFailure(t *testing.T) {
	storage := &failingStorage{MemoryStorage: NewMemoryStorage()}
	runner := NewRunner(storage, nil)
	ctx := context.Background()

	if err := runner.CreateExperiment(ctx, runningConfig("exp-1")); err != nil {
		t.Fatal(err)
	}

	// Must not panic or drop the experiment.
	runner.SaveResults(ctx)

	if len(runner.ActiveExperimentIDs()) != 1 {
		t.Error("experiment should remain registered after a save failure")
	}
}

func TestResultsFallsBackToStorage(t *testing.T) {
	runner, storage := newTestRunner(t)
	ctx := context.Background()

	stored := ExperimentResults{
		ExperimentID:   "exp-old",
		ExperimentName: "Old",
		Status:         StatusCompleted,
		Recommendation: Recommendation{Action: RecommendDeploy, VariantID: "treatment"},
	}
	if err := storage.SaveResults(ctx, &stored); err != nil {
		t.Fatal(err)
	}

	results, err := runner.Results(ctx, "exp-old")
	if err != nil {
		t.Fatal(err)
	}
	if results == nil || results.Recommendation.VariantID != "treatment" {
		t.Errorf("results = %+v, want stored snapshot", results)
	}
}

func TestSaveResultsPersistsSnapshots(t *testing.T) {
	runner, storage := newTestRunner(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := runner.CreateExperiment(ctx, runningConfig(fmt.Sprintf("exp-%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	runner.SaveResults(ctx)

	all, err := storage.AllResults(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("persisted %d snapshots, want 3", len(all))
	}
}
