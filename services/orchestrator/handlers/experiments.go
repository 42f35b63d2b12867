// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers holds the gin handler constructors for the
// orchestrator's HTTP API. Each constructor closes over its
// dependencies and returns a gin.HandlerFunc.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/pkg/logging"
	"github.com/switchyard-ai/switchyard/pkg/validation"
	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/orchestrator/datatypes"
)

// =============================================================================
// Experiment CRUD
// =============================================================================

// HandleCreateExperiment creates an experiment in Draft status. Variant
// ids are generated server-side; clients address variants by the ids
// echoed back in the response.
func HandleCreateExperiment(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CreateExperimentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		variants := make([]experiments.VariantConfig, 0, len(req.Variants))
		for _, v := range req.Variants {
			variants = append(variants, experiments.VariantConfig{
				ID:            uuid.NewString(),
				Name:          v.Name,
				Description:   v.Description,
				RoutingPolicy: v.RoutingPolicy,
				Weight:        v.Weight,
				IsControl:     v.IsControl,
			})
		}

		config := experiments.NewExperimentConfig(
			uuid.NewString(), req.Name, req.Description, variants,
			req.TrafficAllocation, successCriteriaFromRequest(req.SuccessCriteria))
		if req.TargetingRules != nil {
			config.TargetingRules = targetingRulesFromRequest(req.TargetingRules)
		}

		if err := runner.CreateExperiment(c.Request.Context(), config); err != nil {
			logger.Error("experiment creation failed", "error", err.Error())
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusCreated, datatypes.ExperimentResponse{
			Success:    true,
			Experiment: &config,
			Message:    "Experiment created successfully",
		})
	}
}

// HandleListExperiments returns every stored experiment config.
func HandleListExperiments(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		configs, err := runner.ListConfigs(c.Request.Context())
		if err != nil {
			logger.Error("experiment listing failed", "error", err.Error())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, datatypes.ExperimentsListResponse{
			Success:     true,
			Experiments: configs,
			Message:     "Experiments retrieved successfully",
		})
	}
}

// HandleGetExperiment returns one experiment config by id.
func HandleGetExperiment(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		config, err := runner.GetConfig(c.Request.Context(), experimentID)
		if err != nil {
			logger.Error("experiment lookup failed",
				"experiment_id", experimentID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if config == nil {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "Experiment not found"})
			return
		}

		c.JSON(http.StatusOK, datatypes.ExperimentResponse{
			Success:    true,
			Experiment: config,
			Message:    "Experiment retrieved successfully",
		})
	}
}

// HandleUpdateExperiment patches an existing experiment. Only the
// fields present in the request change; variants are immutable after
// creation.
func HandleUpdateExperiment(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		var req datatypes.UpdateExperimentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		config, err := runner.GetConfig(c.Request.Context(), experimentID)
		if err != nil {
			logger.Error("experiment lookup failed",
				"experiment_id", experimentID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if config == nil {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "Experiment not found"})
			return
		}

		if req.Name != nil {
			config.Name = *req.Name
		}
		if req.Description != nil {
			config.Description = *req.Description
		}
		if req.TrafficAllocation != nil {
			config.TrafficAllocation = *req.TrafficAllocation
		}
		if req.TargetingRules != nil {
			config.TargetingRules = targetingRulesFromRequest(req.TargetingRules)
		}
		if req.SuccessCriteria != nil {
			config.SuccessCriteria = successCriteriaFromRequest(*req.SuccessCriteria)
		}
		if req.Status != nil {
			status := experiments.ExperimentStatus(*req.Status)
			if !experiments.ValidStatus(status) {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
					Error: "Invalid status: " + *req.Status,
				})
				return
			}
			config.Status = status
		}

		if err := runner.UpdateExperiment(c.Request.Context(), *config); err != nil {
			logger.Error("experiment update failed",
				"experiment_id", experimentID, "error", err.Error())
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, datatypes.ExperimentResponse{
			Success:    true,
			Experiment: config,
			Message:    "Experiment updated successfully",
		})
	}
}

// HandleDeleteExperiment removes an experiment and its stored state.
func HandleDeleteExperiment(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		found, err := runner.DeleteExperiment(c.Request.Context(), experimentID)
		if err != nil {
			logger.Error("experiment deletion failed",
				"experiment_id", experimentID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if !found {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "Experiment not found"})
			return
		}

		c.JSON(http.StatusOK, datatypes.RecordMetricsResponse{
			Success: true,
			Message: "Experiment deleted successfully",
		})
	}
}

// =============================================================================
// Lifecycle
// =============================================================================

// HandleSetStatus transitions an experiment to the given lifecycle
// state. Wired as the start, pause, and complete endpoints.
func HandleSetStatus(runner *experiments.Runner, logger *logging.Logger,
	status experiments.ExperimentStatus, message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		if err := runner.SetStatus(c.Request.Context(), experimentID, status); err != nil {
			logger.Error("experiment status change failed",
				"experiment_id", experimentID, "status", string(status), "error", err.Error())
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, datatypes.RecordMetricsResponse{
			Success: true,
			Message: message,
		})
	}
}

// =============================================================================
// Assignment, Metrics, Results
// =============================================================================

// HandleAssignUser assigns (or looks up) the caller's variant. The
// experiment id in the path must match the one in the body.
func HandleAssignUser(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		var req datatypes.UserAssignmentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if req.ExperimentID != experimentID {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "Experiment ID in path and body must match",
			})
			return
		}
		if err := validation.ValidateIdentifier(req.UserID); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		assignment, ok := runner.GetVariantForUser(experimentID, req.UserID)
		if !ok {
			c.JSON(http.StatusNotFound, datatypes.UserAssignmentResponse{
				Success:      false,
				ExperimentID: experimentID,
				Message:      "Experiment not found or user not eligible",
			})
			return
		}

		variantName := variantNameFor(c, runner, experimentID, assignment.VariantID)
		c.JSON(http.StatusOK, datatypes.UserAssignmentResponse{
			Success:      true,
			VariantID:    &assignment.VariantID,
			VariantName:  variantName,
			ExperimentID: experimentID,
			Message:      "User assigned successfully",
		})
	}
}

// HandleRecordMetrics attributes one interaction outcome to the user's
// assigned variant. Observations for unassigned users are dropped
// silently; recording must never assign.
func HandleRecordMetrics(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		var req datatypes.RecordMetricsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if req.ExperimentID != experimentID {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{
				Error: "Experiment ID in path and body must match",
			})
			return
		}
		if err := validation.ValidateIdentifier(req.UserID); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		runner.RecordInteraction(experimentID, req.UserID, &experiments.InteractionMetrics{
			ResponseTimeMs: req.ResponseTimeMs,
			Success:        req.Success,
			UserRating:     req.UserRating,
			Cost:           req.Cost,
			ErrorMessage:   req.ErrorMessage,
		})

		c.JSON(http.StatusOK, datatypes.RecordMetricsResponse{
			Success: true,
			Message: "Metrics recorded successfully",
		})
	}
}

// HandleGetResults returns the current aggregated results, computed
// live for registered experiments and from the last snapshot otherwise.
func HandleGetResults(runner *experiments.Runner, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		experimentID := c.Param("id")

		results, err := runner.Results(c.Request.Context(), experimentID)
		if err != nil {
			logger.Error("results lookup failed",
				"experiment_id", experimentID, "error", err.Error())
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{Error: err.Error()})
			return
		}
		if results == nil {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{Error: "Experiment not found"})
			return
		}

		c.JSON(http.StatusOK, datatypes.ResultsResponse{
			Success: true,
			Results: results,
			Message: "Results retrieved successfully",
		})
	}
}

// =============================================================================
// Helpers
// =============================================================================

func successCriteriaFromRequest(req datatypes.SuccessCriteriaRequest) experiments.SuccessCriteria {
	secondary := make([]experiments.MetricType, 0, len(req.SecondaryMetrics))
	for _, m := range req.SecondaryMetrics {
		secondary = append(secondary, experiments.MetricType(m))
	}
	return experiments.SuccessCriteria{
		PrimaryMetric:       experiments.MetricType(req.PrimaryMetric),
		SecondaryMetrics:    secondary,
		SignificanceLevel:   req.SignificanceLevel,
		MinSampleSize:       req.MinSampleSize,
		ExpectedImprovement: req.ExpectedImprovement,
	}
}

func targetingRulesFromRequest(req *datatypes.TargetingRulesRequest) *experiments.TargetingRules {
	return &experiments.TargetingRules{
		UserSegments: req.UserSegments,
		MinRequests:  req.MinRequests,
		MaxRequests:  req.MaxRequests,
		Domains:      req.Domains,
	}
}

// variantNameFor resolves the display name for an assignment. Best
// effort; a lookup failure returns nil rather than failing the
// assignment response.
func variantNameFor(c *gin.Context, runner *experiments.Runner, experimentID, variantID string) *string {
	config, err := runner.GetConfig(c.Request.Context(), experimentID)
	if err != nil || config == nil {
		return nil
	}
	for i := range config.Variants {
		if config.Variants[i].ID == variantID {
			return &config.Variants[i].Name
		}
	}
	return nil
}
