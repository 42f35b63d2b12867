// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package experiments implements A/B experiment orchestration for
// routing policies: validated experiment configs, sticky user-variant
// assignment, per-variant metrics aggregation, significance scoring,
// and deploy/continue recommendations.
package experiments

import (
	"fmt"
	"math"
	"time"

	"github.com/switchyard-ai/switchyard/services/router"
)

// =============================================================================
// Metric and Status Enums
// =============================================================================

// MetricType names a derived metric tracked per variant.
type MetricType string

const (
	MetricResponseTime     MetricType = "response_time"
	MetricSuccessRate      MetricType = "success_rate"
	MetricUserSatisfaction MetricType = "user_satisfaction"
	MetricCostEfficiency   MetricType = "cost_efficiency"
	MetricErrorRate        MetricType = "error_rate"
	MetricThroughput       MetricType = "throughput"
)

// ExperimentStatus is the lifecycle state of an experiment.
type ExperimentStatus string

const (
	StatusDraft     ExperimentStatus = "draft"
	StatusRunning   ExperimentStatus = "running"
	StatusPaused    ExperimentStatus = "paused"
	StatusCompleted ExperimentStatus = "completed"
	StatusArchived  ExperimentStatus = "archived"
)

// ValidStatus reports whether s is a known lifecycle state.
func ValidStatus(s ExperimentStatus) bool {
	switch s {
	case StatusDraft, StatusRunning, StatusPaused, StatusCompleted, StatusArchived:
		return true
	}
	return false
}

// =============================================================================
// Configuration
// =============================================================================

// SuccessCriteria defines how an experiment is judged.
//
// ExpectedImprovement, when set, is the minimum relative improvement
// of the winning variant's success rate over control (0.05 means 5%)
// required before a Deploy recommendation is issued.
type SuccessCriteria struct {
	PrimaryMetric       MetricType   `json:"primary_metric"`
	SecondaryMetrics    []MetricType `json:"secondary_metrics"`
	SignificanceLevel   float64      `json:"significance_level"`
	MinSampleSize       uint32       `json:"min_sample_size"`
	ExpectedImprovement *float64     `json:"expected_improvement,omitempty"`
}

// TargetingRules narrows which users an experiment applies to.
// Currently informational; assignment gates only on traffic
// allocation.
type TargetingRules struct {
	UserSegments     []string       `json:"user_segments"`
	MinRequests      *uint32        `json:"min_requests,omitempty"`
	MaxRequests      *uint32        `json:"max_requests,omitempty"`
	Domains          []string       `json:"domains"`
	CustomAttributes map[string]any `json:"custom_attributes,omitempty"`
}

// VariantConfig describes one arm of an experiment.
type VariantConfig struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Description   string              `json:"description"`
	RoutingPolicy router.PolicyConfig `json:"routing_policy"`
	Weight        float64             `json:"weight"`
	IsControl     bool                `json:"is_control"`
}

// ExperimentConfig is the full persisted description of an experiment.
type ExperimentConfig struct {
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	Description       string           `json:"description"`
	Variants          []VariantConfig  `json:"variants"`
	TrafficAllocation float64          `json:"traffic_allocation"`
	TargetingRules    *TargetingRules  `json:"targeting_rules,omitempty"`
	SuccessCriteria   SuccessCriteria  `json:"success_criteria"`
	StartTime         time.Time        `json:"start_time"`
	EndTime           *time.Time       `json:"end_time,omitempty"`
	Status            ExperimentStatus `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// NewExperimentConfig creates a draft config starting now.
func NewExperimentConfig(id, name, description string, variants []VariantConfig,
	trafficAllocation float64, criteria SuccessCriteria) ExperimentConfig {
	now := time.Now().UTC()
	return ExperimentConfig{
		ID:                id,
		Name:              name,
		Description:       description,
		Variants:          variants,
		TrafficAllocation: trafficAllocation,
		SuccessCriteria:   criteria,
		StartTime:         now,
		Status:            StatusDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Validate checks the structural invariants of the config.
//
// Rules:
//   - traffic allocation in (0, 1]
//   - at least 2 variants
//   - exactly one control variant
//   - variant weights sum to 1.0 within 0.001
//   - significance level strictly in (0, 1)
//   - minimum sample size at least 100
//
// The first violated rule is returned.
func (c *ExperimentConfig) Validate() error {
	if c.TrafficAllocation <= 0.0 || c.TrafficAllocation > 1.0 {
		return fmt.Errorf("traffic allocation must be between 0.0 and 1.0")
	}

	if len(c.Variants) < 2 {
		return fmt.Errorf("at least 2 variants are required")
	}

	controlCount := 0
	for _, v := range c.Variants {
		if v.IsControl {
			controlCount++
		}
	}
	if controlCount != 1 {
		return fmt.Errorf("exactly one variant must be marked as control")
	}

	totalWeight := 0.0
	for _, v := range c.Variants {
		totalWeight += v.Weight
	}
	if math.Abs(totalWeight-1.0) > 0.001 {
		return fmt.Errorf("variant weights must sum to 1.0")
	}

	if c.SuccessCriteria.SignificanceLevel <= 0.0 || c.SuccessCriteria.SignificanceLevel >= 1.0 {
		return fmt.Errorf("significance level must be between 0.0 and 1.0")
	}

	if c.SuccessCriteria.MinSampleSize < 100 {
		return fmt.Errorf("minimum sample size must be at least 100")
	}

	return nil
}

// CanRun reports whether the experiment accepts new assignments:
// status Running, the start time has passed, and the end time (when
// set) has not.
func (c *ExperimentConfig) CanRun() bool {
	now := time.Now().UTC()
	if c.Status != StatusRunning {
		return false
	}
	if c.StartTime.After(now) {
		return false
	}
	if c.EndTime != nil && !c.EndTime.After(now) {
		return false
	}
	return true
}

// ControlVariant returns the control variant config, or nil when the
// config is invalid and has none.
func (c *ExperimentConfig) ControlVariant() *VariantConfig {
	for i := range c.Variants {
		if c.Variants[i].IsControl {
			return &c.Variants[i]
		}
	}
	return nil
}
