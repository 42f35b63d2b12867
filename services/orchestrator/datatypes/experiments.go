// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the wire types of the orchestrator's HTTP
// API. Binding tags drive gin's request validation.
package datatypes

import (
	"encoding/json"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/router"
)

// init registers the "metric" binding rule so unknown metric names are
// rejected at the edge instead of silently tracking nothing.
func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("metric", func(fl validator.FieldLevel) bool {
			switch experiments.MetricType(fl.Field().String()) {
			case experiments.MetricResponseTime, experiments.MetricSuccessRate,
				experiments.MetricUserSatisfaction, experiments.MetricCostEfficiency,
				experiments.MetricErrorRate, experiments.MetricThroughput:
				return true
			}
			return false
		})
	}
}

// =============================================================================
// Experiment API
// =============================================================================

// CreateVariantRequest is one variant in an experiment creation call.
type CreateVariantRequest struct {
	Name          string              `json:"name" binding:"required"`
	Description   string              `json:"description"`
	RoutingPolicy router.PolicyConfig `json:"routing_policy" binding:"required"`
	Weight        float64             `json:"weight" binding:"required,gt=0,lte=1"`
	IsControl     bool                `json:"is_control"`
}

// TargetingRulesRequest narrows which users an experiment admits.
type TargetingRulesRequest struct {
	UserSegments     []string        `json:"user_segments"`
	MinRequests      *uint32         `json:"min_requests,omitempty"`
	MaxRequests      *uint32         `json:"max_requests,omitempty"`
	Domains          []string        `json:"domains"`
	CustomAttributes json.RawMessage `json:"custom_attributes,omitempty"`
}

// SuccessCriteriaRequest mirrors experiments.SuccessCriteria on the
// wire.
type SuccessCriteriaRequest struct {
	PrimaryMetric       string   `json:"primary_metric" binding:"required,metric"`
	SecondaryMetrics    []string `json:"secondary_metrics" binding:"omitempty,dive,metric"`
	SignificanceLevel   float64  `json:"significance_level" binding:"required,gt=0,lt=1"`
	MinSampleSize       uint32   `json:"min_sample_size" binding:"required,gte=100"`
	ExpectedImprovement *float64 `json:"expected_improvement,omitempty"`
}

// CreateExperimentRequest creates a new experiment in Draft status.
type CreateExperimentRequest struct {
	Name              string                 `json:"name" binding:"required"`
	Description       string                 `json:"description"`
	Variants          []CreateVariantRequest `json:"variants" binding:"required,min=2"`
	TrafficAllocation float64                `json:"traffic_allocation" binding:"required,gt=0,lte=1"`
	TargetingRules    *TargetingRulesRequest `json:"targeting_rules,omitempty"`
	SuccessCriteria   SuccessCriteriaRequest `json:"success_criteria" binding:"required"`
}

// UpdateExperimentRequest patches an existing experiment. Nil fields
// are left unchanged.
type UpdateExperimentRequest struct {
	Name              *string                 `json:"name,omitempty"`
	Description       *string                 `json:"description,omitempty"`
	TrafficAllocation *float64                `json:"traffic_allocation,omitempty"`
	TargetingRules    *TargetingRulesRequest  `json:"targeting_rules,omitempty"`
	SuccessCriteria   *SuccessCriteriaRequest `json:"success_criteria,omitempty"`
	Status            *string                 `json:"status,omitempty"`
}

// ExperimentResponse wraps one experiment config.
type ExperimentResponse struct {
	Success    bool                           `json:"success"`
	Experiment *experiments.ExperimentConfig  `json:"experiment,omitempty"`
	Message    string                         `json:"message"`
}

// ExperimentsListResponse wraps the experiment listing.
type ExperimentsListResponse struct {
	Success     bool                            `json:"success"`
	Experiments []experiments.ExperimentConfig  `json:"experiments"`
	Message     string                          `json:"message"`
}

// UserAssignmentRequest places a user into an experiment.
type UserAssignmentRequest struct {
	UserID       string          `json:"user_id" binding:"required"`
	ExperimentID string          `json:"experiment_id" binding:"required"`
	Context      json.RawMessage `json:"context,omitempty"`
}

// UserAssignmentResponse reports the user's variant.
type UserAssignmentResponse struct {
	Success      bool    `json:"success"`
	VariantID    *string `json:"variant_id,omitempty"`
	VariantName  *string `json:"variant_name,omitempty"`
	ExperimentID string  `json:"experiment_id"`
	Message      string  `json:"message"`
}

// RecordMetricsRequest attributes one interaction outcome to a user's
// assigned variant.
type RecordMetricsRequest struct {
	UserID         string          `json:"user_id" binding:"required"`
	ExperimentID   string          `json:"experiment_id" binding:"required"`
	VariantID      string          `json:"variant_id" binding:"required"`
	ResponseTimeMs uint32          `json:"response_time_ms"`
	Success        bool            `json:"success"`
	UserRating     *uint8          `json:"user_rating,omitempty" binding:"omitempty,min=1,max=5"`
	Cost           float64         `json:"cost" binding:"gte=0"`
	ErrorMessage   *string         `json:"error_message,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
}

// RecordMetricsResponse acknowledges a metrics recording.
type RecordMetricsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ResultsResponse wraps an experiment's aggregated results.
type ResultsResponse struct {
	Success bool                            `json:"success"`
	Results *experiments.ExperimentResults  `json:"results,omitempty"`
	Message string                          `json:"message"`
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
}
