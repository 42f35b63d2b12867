// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the orchestrator's HTTP API onto a gin engine.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/switchyard-ai/switchyard/pkg/logging"
	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/llm"
	"github.com/switchyard-ai/switchyard/services/orchestrator/handlers"
	"github.com/switchyard-ai/switchyard/services/selector"
)

// Dependencies carries everything the route handlers need.
type Dependencies struct {
	Runner   *experiments.Runner
	Selector *selector.ModelSelector
	Registry *llm.Registry
	Logger   *logging.Logger
}

// SetupRoutes registers every endpoint on the engine.
//
// Layout:
//
//	GET  /health
//	GET  /metrics
//	POST /v1/experiments                      create
//	GET  /v1/experiments                      list
//	GET  /v1/experiments/:id                  get
//	PUT  /v1/experiments/:id                  update
//	DEL  /v1/experiments/:id                  delete
//	POST /v1/experiments/:id/start
//	POST /v1/experiments/:id/pause
//	POST /v1/experiments/:id/complete
//	POST /v1/experiments/:id/assign
//	POST /v1/experiments/:id/metrics
//	GET  /v1/experiments/:id/results
//	POST /v1/models/select
//	POST /v1/models/outcome
//	POST /v1/completions
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	logger := deps.Logger

	router.GET("/health", handlers.HandleHealth())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		exps := v1.Group("/experiments")
		{
			exps.POST("", handlers.HandleCreateExperiment(deps.Runner, logger))
			exps.GET("", handlers.HandleListExperiments(deps.Runner, logger))
			exps.GET("/:id", handlers.HandleGetExperiment(deps.Runner, logger))
			exps.PUT("/:id", handlers.HandleUpdateExperiment(deps.Runner, logger))
			exps.DELETE("/:id", handlers.HandleDeleteExperiment(deps.Runner, logger))

			exps.POST("/:id/start", handlers.HandleSetStatus(deps.Runner, logger,
				experiments.StatusRunning, "Experiment started successfully"))
			exps.POST("/:id/pause", handlers.HandleSetStatus(deps.Runner, logger,
				experiments.StatusPaused, "Experiment paused successfully"))
			exps.POST("/:id/complete", handlers.HandleSetStatus(deps.Runner, logger,
				experiments.StatusCompleted, "Experiment completed successfully"))

			exps.POST("/:id/assign", handlers.HandleAssignUser(deps.Runner, logger))
			exps.POST("/:id/metrics", handlers.HandleRecordMetrics(deps.Runner, logger))
			exps.GET("/:id/results", handlers.HandleGetResults(deps.Runner, logger))
		}

		models := v1.Group("/models")
		{
			models.POST("/select", handlers.HandleModelSelect(deps.Selector, logger))
			models.POST("/outcome", handlers.HandleModelOutcome(deps.Selector, logger))
		}

		v1.POST("/completions", handlers.HandleCompletion(deps.Selector, deps.Registry, logger))
	}
}
