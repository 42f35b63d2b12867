// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"strings"
	"testing"
	"time"

	"github.com/switchyard-ai/switchyard/services/router"
)

func testCriteria() SuccessCriteria {
	return SuccessCriteria{
		PrimaryMetric:     MetricSuccessRate,
		SignificanceLevel: 0.05,
		MinSampleSize:     100,
	}
}

func testVariants() []VariantConfig {
	return []VariantConfig{
		{
			ID:            "control",
			Name:          "Control",
			RoutingPolicy: router.NewEpsilonGreedyConfig(0.1),
			Weight:        0.5,
			IsControl:     true,
		},
		{
			ID:            "treatment",
			Name:          "Treatment",
			RoutingPolicy: router.NewThompsonSamplingConfig(3),
			Weight:        0.5,
		},
	}
}

func validConfig() ExperimentConfig {
	return NewExperimentConfig("exp-1", "Test", "desc", testVariants(), 1.0, testCriteria())
}

func TestValidateAcceptsGoodConfig(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*ExperimentConfig)
		wantErr string
	}{
		{
			"zero traffic",
			func(c *ExperimentConfig) { c.TrafficAllocation = 0.0 },
			"traffic allocation",
		},
		{
			"traffic above one",
			func(c *ExperimentConfig) { c.TrafficAllocation = 1.5 },
			"traffic allocation",
		},
		{
			"single variant",
			func(c *ExperimentConfig) { c.Variants = c.Variants[:1] },
			"at least 2 variants",
		},
		{
			"no control",
			func(c *ExperimentConfig) { c.Variants[0].IsControl = false },
			"exactly one variant",
		},
		{
			"two controls",
			func(c *ExperimentConfig) { c.Variants[1].IsControl = true },
			"exactly one variant",
		},
		{
			"weights do not sum",
			func(c *ExperimentConfig) { c.Variants[0].Weight = 0.7 },
			"weights must sum",
		},
		{
			"significance zero",
			func(c *ExperimentConfig) { c.SuccessCriteria.SignificanceLevel = 0.0 },
			"significance level",
		},
		{
			"significance one",
			func(c *ExperimentConfig) { c.SuccessCriteria.SignificanceLevel = 1.0 },
			"significance level",
		},
		{
			"sample size too small",
			func(c *ExperimentConfig) { c.SuccessCriteria.MinSampleSize = 99 },
			"sample size",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)
			err := c.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not mention %q", err, tc.wantErr)
			}
		})
	}
}

func TestValidateWeightTolerance(t *testing.T) {
	c := validConfig()
	// Within the 0.001 tolerance.
	c.Variants[0].Weight = 0.5004
	c.Variants[1].Weight = 0.5001
	if err := c.Validate(); err != nil {
		t.Errorf("weights within tolerance rejected: %v", err)
	}
}

func TestCanRun(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	c := validConfig()

	c.Status = StatusDraft
	if c.CanRun() {
		t.Error("draft experiment should not run")
	}

	c.Status = StatusRunning
	c.StartTime = past
	if !c.CanRun() {
		t.Error("running experiment past start should run")
	}

	c.StartTime = future
	if c.CanRun() {
		t.Error("experiment before start should not run")
	}

	c.StartTime = past
	c.EndTime = &past
	if c.CanRun() {
		t.Error("experiment past end should not run")
	}

	c.EndTime = &future
	if !c.CanRun() {
		t.Error("experiment inside window should run")
	}

	for _, status := range []ExperimentStatus{StatusPaused, StatusCompleted, StatusArchived} {
		c.Status = status
		if c.CanRun() {
			t.Errorf("%s experiment should not run", status)
		}
	}
}

func TestControlVariant(t *testing.T) {
	c := validConfig()
	control := c.ControlVariant()
	if control == nil || control.ID != "control" {
		t.Errorf("ControlVariant = %v, want control", control)
	}
}
