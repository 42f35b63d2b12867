// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/switchyard-ai/switchyard/pkg/logging"
	"github.com/switchyard-ai/switchyard/pkg/validation"
	"github.com/switchyard-ai/switchyard/services/llm"
	"github.com/switchyard-ai/switchyard/services/orchestrator/datatypes"
	"github.com/switchyard-ai/switchyard/services/selector"
)

// =============================================================================
// Model Selection
// =============================================================================

// HandleModelSelect recommends a model for the request without
// invoking it. Callers report back through the outcome endpoint using
// the returned session id.
func HandleModelSelect(sel *selector.ModelSelector, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ModelSelectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		for _, model := range req.Models {
			if err := validation.ValidateModelName(model); err != nil {
				c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
				return
			}
		}

		resp, err := sel.SelectModel(selector.SelectRequest{
			Models:       req.Models,
			Prompts:      promptsFromMessages(req.Messages),
			UserID:       req.UserID,
			ExperimentID: req.ExperimentID,
			SessionID:    req.SessionID,
		})
		if err != nil {
			logger.Error("model selection failed", "error", err.Error())
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		c.JSON(http.StatusOK, resp)
	}
}

// HandleModelOutcome records how a recommended model performed. An
// unknown or expired session id is a 404; the learning state is
// untouched in that case.
func HandleModelOutcome(sel *selector.ModelSelector, logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.ModelOutcomeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		recorded := sel.RecordOutcome(req.SessionID, selector.Outcome{
			Success:        req.Success,
			ResponseTimeMs: req.ResponseTimeMs,
			UserRating:     req.UserRating,
			Cost:           req.Cost,
			ErrorMessage:   req.ErrorMessage,
		})
		if !recorded {
			c.JSON(http.StatusNotFound, datatypes.ErrorResponse{
				Error: "Session not found or already recorded",
			})
			return
		}

		c.JSON(http.StatusOK, datatypes.ModelOutcomeResponse{
			Success: true,
			Message: "Outcome recorded successfully",
		})
	}
}

// =============================================================================
// Completions
// =============================================================================

// HandleCompletion runs the full routed loop in one call: pick a
// backend, invoke it, and feed the measured outcome straight back into
// the bandit. Callers that want delayed feedback (user ratings) use
// the select and outcome endpoints instead.
func HandleCompletion(sel *selector.ModelSelector, registry *llm.Registry,
	logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.CompletionRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		resp, err := sel.SelectModel(selector.SelectRequest{
			Models:       registry.Names(),
			Prompts:      promptsFromMessages(req.Messages),
			UserID:       req.UserID,
			ExperimentID: req.ExperimentID,
			SessionID:    req.SessionID,
		})
		if err != nil {
			logger.Error("backend selection failed", "error", err.Error())
			c.JSON(http.StatusServiceUnavailable, datatypes.ErrorResponse{Error: err.Error()})
			return
		}

		client, _, ok := registry.ByName(resp.RecommendedModel)
		if !ok {
			c.JSON(http.StatusInternalServerError, datatypes.ErrorResponse{
				Error: "Selected backend is not registered: " + resp.RecommendedModel,
			})
			return
		}

		start := time.Now()
		content, genErr := client.Chat(c.Request.Context(), req.Messages, llm.GenerationParams{
			Temperature: req.Temperature,
			TopK:        req.TopK,
			TopP:        req.TopP,
			MaxTokens:   req.MaxTokens,
			Stop:        req.Stop,
		})
		elapsedMs := uint32(time.Since(start).Milliseconds())

		if genErr != nil {
			msg := genErr.Error()
			sel.RecordOutcome(resp.SessionID, selector.Outcome{
				Success:        false,
				ResponseTimeMs: elapsedMs,
				ErrorMessage:   &msg,
			})
			logger.Error("backend generation failed",
				"backend", client.Name(), "error", msg)
			c.JSON(http.StatusBadGateway, datatypes.ErrorResponse{Error: msg})
			return
		}

		sel.RecordOutcome(resp.SessionID, selector.Outcome{
			Success:        true,
			ResponseTimeMs: elapsedMs,
		})

		c.JSON(http.StatusOK, datatypes.CompletionResponse{
			Content:        content,
			Backend:        client.Name(),
			SessionID:      resp.SessionID,
			ExperimentID:   resp.ExperimentID,
			VariantID:      resp.VariantID,
			ResponseTimeMs: elapsedMs,
			Confidence:     resp.Confidence,
		})
	}
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth is the liveness probe.
func HandleHealth() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, datatypes.HealthResponse{
			Status:  "healthy",
			Service: "switchyard-orchestrator",
		})
	}
}

// promptsFromMessages flattens user-authored content into the prompt
// list the feature extractor analyzes. System and assistant turns are
// skipped; they describe the conversation, not the request.
func promptsFromMessages(messages []llm.Message) []string {
	prompts := make([]string, 0, len(messages))
	for _, m := range messages {
		if strings.EqualFold(m.Role, "user") && m.Content != "" {
			prompts = append(prompts, m.Content)
		}
	}
	if len(prompts) == 0 {
		for _, m := range messages {
			if m.Content != "" {
				prompts = append(prompts, m.Content)
			}
		}
	}
	return prompts
}
