// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/llm"
	"github.com/switchyard-ai/switchyard/services/orchestrator/datatypes"
	"github.com/switchyard-ai/switchyard/services/orchestrator/routes"
	"github.com/switchyard-ai/switchyard/services/router"
	"github.com/switchyard-ai/switchyard/services/selector"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*gin.Engine, *experiments.Runner) {
	t.Helper()

	runner := experiments.NewRunner(experiments.NewMemoryStorage(), nil)
	engine := gin.New()
	routes.SetupRoutes(engine, routes.Dependencies{
		Runner:   runner,
		Selector: selector.NewModelSelector(runner),
		Registry: llm.NewRegistry(),
	})
	return engine, runner
}

func performJSON(engine *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func createRequestBody() datatypes.CreateExperimentRequest {
	return datatypes.CreateExperimentRequest{
		Name:        "Routing policy comparison",
		Description: "Epsilon-greedy control against Thompson sampling",
		Variants: []datatypes.CreateVariantRequest{
			{
				Name:          "Control",
				RoutingPolicy: router.NewEpsilonGreedyConfig(0.1),
				Weight:        0.5,
				IsControl:     true,
			},
			{
				Name:          "Treatment",
				RoutingPolicy: router.NewThompsonSamplingConfig(3),
				Weight:        0.5,
			},
		},
		TrafficAllocation: 1.0,
		SuccessCriteria: datatypes.SuccessCriteriaRequest{
			PrimaryMetric:     "success_rate",
			SignificanceLevel: 0.05,
			MinSampleSize:     100,
		},
	}
}

// createExperiment creates an experiment over HTTP and returns its id.
func createExperiment(t *testing.T, engine *gin.Engine) string {
	t.Helper()

	w := performJSON(engine, http.MethodPost, "/v1/experiments", createRequestBody())
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp datatypes.ExperimentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	require.NotNil(t, resp.Experiment)
	require.NotEmpty(t, resp.Experiment.ID)
	return resp.Experiment.ID
}

// =============================================================================
// CRUD
// =============================================================================

func TestCreateAndGetExperiment(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	w := performJSON(engine, http.MethodGet, "/v1/experiments/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ExperimentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, id, resp.Experiment.ID)
	assert.Equal(t, experiments.StatusDraft, resp.Experiment.Status)
	assert.Len(t, resp.Experiment.Variants, 2)
	for _, v := range resp.Experiment.Variants {
		assert.NotEmpty(t, v.ID, "variant ids are generated server-side")
	}
}

func TestCreateExperimentRejectsSingleVariant(t *testing.T) {
	engine, _ := newTestServer(t)

	body := createRequestBody()
	body.Variants = body.Variants[:1]

	w := performJSON(engine, http.MethodPost, "/v1/experiments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateExperimentRejectsBadWeights(t *testing.T) {
	engine, _ := newTestServer(t)

	// Passes binding but violates the weight-sum invariant.
	body := createRequestBody()
	body.Variants[1].Weight = 0.3

	w := performJSON(engine, http.MethodPost, "/v1/experiments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCreateExperimentRejectsUnknownMetric(t *testing.T) {
	engine, _ := newTestServer(t)

	body := createRequestBody()
	body.SuccessCriteria.PrimaryMetric = "vibes"

	w := performJSON(engine, http.MethodPost, "/v1/experiments", body)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetExperimentNotFound(t *testing.T) {
	engine, _ := newTestServer(t)

	w := performJSON(engine, http.MethodGet, "/v1/experiments/no-such-id", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestListExperiments(t *testing.T) {
	engine, _ := newTestServer(t)
	createExperiment(t, engine)
	createExperiment(t, engine)

	w := performJSON(engine, http.MethodGet, "/v1/experiments", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp datatypes.ExperimentsListResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Len(t, resp.Experiments, 2)
}

func TestUpdateExperimentPatchesFields(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	name := "Renamed"
	traffic := 0.5
	w := performJSON(engine, http.MethodPut, "/v1/experiments/"+id,
		datatypes.UpdateExperimentRequest{Name: &name, TrafficAllocation: &traffic})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp datatypes.ExperimentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Renamed", resp.Experiment.Name)
	assert.Equal(t, 0.5, resp.Experiment.TrafficAllocation)
	// Untouched fields survive the patch.
	assert.Len(t, resp.Experiment.Variants, 2)
}

func TestUpdateExperimentRejectsUnknownStatus(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	status := "exploded"
	w := performJSON(engine, http.MethodPut, "/v1/experiments/"+id,
		datatypes.UpdateExperimentRequest{Status: &status})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteExperiment(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	w := performJSON(engine, http.MethodDelete, "/v1/experiments/"+id, nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(engine, http.MethodGet, "/v1/experiments/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = performJSON(engine, http.MethodDelete, "/v1/experiments/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

// =============================================================================
// Lifecycle, Assignment, Metrics, Results
// =============================================================================

func TestExperimentFullFlow(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	w := performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Assign a user.
	w = performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/assign",
		datatypes.UserAssignmentRequest{UserID: "user-1", ExperimentID: id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var assign datatypes.UserAssignmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &assign))
	require.True(t, assign.Success)
	require.NotNil(t, assign.VariantID)
	require.NotNil(t, assign.VariantName)

	// Assignment is sticky across calls.
	w = performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/assign",
		datatypes.UserAssignmentRequest{UserID: "user-1", ExperimentID: id})
	var again datatypes.UserAssignmentResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &again))
	assert.Equal(t, *assign.VariantID, *again.VariantID)

	// Record an interaction against the assignment.
	w = performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/metrics",
		datatypes.RecordMetricsRequest{
			UserID:         "user-1",
			ExperimentID:   id,
			VariantID:      *assign.VariantID,
			ResponseTimeMs: 350,
			Success:        true,
			Cost:           0.01,
		})
	require.Equal(t, http.StatusOK, w.Code)

	w = performJSON(engine, http.MethodGet, "/v1/experiments/"+id+"/results", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var results datatypes.ResultsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &results))
	require.NotNil(t, results.Results)
	assert.Equal(t, id, results.Results.ExperimentID)
	assert.Equal(t, uint32(1), results.Results.TotalUsers)
	assert.Equal(t, uint32(1), results.Results.VariantResults[*assign.VariantID].SampleSize)

	// Pause blocks nothing retroactively but responds OK.
	w = performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/pause", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/complete", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAssignRequiresMatchingIDs(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	w := performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/assign",
		datatypes.UserAssignmentRequest{UserID: "user-1", ExperimentID: "other"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAssignUnknownExperiment(t *testing.T) {
	engine, _ := newTestServer(t)

	w := performJSON(engine, http.MethodPost, "/v1/experiments/ghost/assign",
		datatypes.UserAssignmentRequest{UserID: "user-1", ExperimentID: "ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAssignDraftExperiment(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	// Never started; no live instance exists to assign against.
	w := performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/assign",
		datatypes.UserAssignmentRequest{UserID: "user-1", ExperimentID: id})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestResultsUnknownExperiment(t *testing.T) {
	engine, _ := newTestServer(t)

	w := performJSON(engine, http.MethodGet, "/v1/experiments/ghost/results", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestMetricsValidation(t *testing.T) {
	engine, _ := newTestServer(t)
	id := createExperiment(t, engine)

	for i, body := range []any{
		// Missing user_id.
		map[string]any{"experiment_id": id, "variant_id": "v"},
		// Rating out of range.
		datatypes.RecordMetricsRequest{
			UserID: "u", ExperimentID: id, VariantID: "v",
			UserRating: ptrUint8(9),
		},
	} {
		w := performJSON(engine, http.MethodPost, "/v1/experiments/"+id+"/metrics", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, fmt.Sprintf("case %d", i))
	}
}

func ptrUint8(v uint8) *uint8 { return &v }
