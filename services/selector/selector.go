// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package selector ties the routing engine together: prompt features
// in, backend model out, observed outcomes back into the bandit that
// made the call.
package selector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/switchyard-ai/switchyard/services/experiments"
	"github.com/switchyard-ai/switchyard/services/features"
	"github.com/switchyard-ai/switchyard/services/router"
)

const (
	// embeddingDim is the hashing-embedder dimension appended to the
	// extracted feature vector.
	embeddingDim = 64

	// contextDim is the full context vector length fed to contextual
	// policies. The standalone policy is built with this dimension so
	// its linear model actually trains on the whole context.
	contextDim = features.FeatureDim + embeddingDim

	fallbackLearningRate    = 0.1
	fallbackExplorationRate = 0.2

	// pendingTTL bounds how long an unacknowledged selection is kept
	// for reward attribution.
	pendingTTL = time.Hour
)

// =============================================================================
// Request / Response
// =============================================================================

// SelectRequest asks for a backend model recommendation.
type SelectRequest struct {
	// Models is the candidate list, in arm order. Required, non-empty.
	Models []string

	// Prompts are the message contents to extract features from.
	Prompts []string

	// UserID enables the experiment path when ExperimentID is also
	// set.
	UserID string

	// ExperimentID routes through the named experiment's variant
	// policy when the user is assigned. Empty means standalone.
	ExperimentID string

	// SessionID correlates the selection with its later outcome. A
	// fresh id is generated when empty.
	SessionID string
}

// ModelAlternative is a non-selected candidate with its estimated
// profile.
type ModelAlternative struct {
	Model              string   `json:"model"`
	Confidence         float64  `json:"confidence"`
	EstimatedCost      *float64 `json:"estimated_cost,omitempty"`
	EstimatedLatencyMs *uint32  `json:"estimated_latency_ms,omitempty"`
}

// SelectResponse is the recommendation plus enough context for the
// caller to report the outcome back.
type SelectResponse struct {
	RecommendedModel   string             `json:"recommended_model"`
	Confidence         float64            `json:"confidence"`
	Reasoning          string             `json:"reasoning"`
	Alternatives       []ModelAlternative `json:"alternatives"`
	EstimatedCost      *float64           `json:"estimated_cost,omitempty"`
	EstimatedLatencyMs *uint32            `json:"estimated_latency_ms,omitempty"`
	SessionID          string             `json:"session_id"`

	// ExperimentID and VariantID are set when the experiment path made
	// the call.
	ExperimentID string `json:"experiment_id,omitempty"`
	VariantID    string `json:"variant_id,omitempty"`
}

// Outcome reports how a routed request went.
type Outcome struct {
	Success        bool    `json:"success"`
	ResponseTimeMs uint32  `json:"response_time_ms"`
	UserRating     *uint8  `json:"user_rating,omitempty"`
	Cost           float64 `json:"cost"`
	ErrorMessage   *string `json:"error_message,omitempty"`
}

// pendingSelection holds what RecordOutcome needs to attribute a
// reward to the arm that was pulled.
type pendingSelection struct {
	model        string
	armIndex     int
	context      []float64
	experimentID string
	variantID    string
	userID       string
	createdAt    time.Time
}

// =============================================================================
// Model Selector
// =============================================================================

// ModelSelector picks a backend model per request.
//
// # Description
//
// Selection prefers the experiment path: when the request names an
// experiment and the user is assigned to a variant, that variant's
// routing policy chooses the arm and later receives the reward. In
// every other case a standalone contextual policy selects and learns.
// The fall back is transparent; callers cannot tell which path served
// them except through the response's experiment fields.
//
// Selections are remembered by session id until the outcome arrives,
// so the reward reaches the exact arm and context that produced the
// decision.
//
// # Thread Safety
//
// Safe for concurrent use. The selector's own mutex covers the
// capability registry, history, pending map, and standalone policy;
// experiment policies are only touched through Runner methods, which
// take the runner's lock.
type ModelSelector struct {
	mu           sync.Mutex
	capabilities map[string]ModelCapabilities
	history      map[string]*ModelPerformanceHistory
	pending      map[string]pendingSelection
	standalone   *router.RoutingPolicy
	embeddings   *features.EmbeddingManager
	runner       *experiments.Runner
}

// NewModelSelector creates a selector over the default capability
// registry. The runner may be nil; selection then always uses the
// standalone policy.
func NewModelSelector(runner *experiments.Runner) *ModelSelector {
	caps := DefaultCapabilities()
	return &ModelSelector{
		capabilities: caps,
		history:      make(map[string]*ModelPerformanceHistory),
		pending:      make(map[string]pendingSelection),
		standalone:   router.NewContextual(len(caps), contextDim, fallbackLearningRate, fallbackExplorationRate),
		embeddings:   features.NewEmbeddingManager(embeddingDim),
		runner:       runner,
	}
}

// RegisterModel adds or replaces a capability profile.
func (s *ModelSelector) RegisterModel(caps ModelCapabilities) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.capabilities[caps.Name] = caps
}

// KnownModels returns the names in the capability registry.
func (s *ModelSelector) KnownModels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.capabilities))
	for name := range s.capabilities {
		names = append(names, name)
	}
	return names
}

// SelectModel recommends one of the requested candidate models.
func (s *ModelSelector) SelectModel(req SelectRequest) (*SelectResponse, error) {
	if len(req.Models) == 0 {
		return nil, fmt.Errorf("no candidate models in request")
	}

	sessionID := req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	promptFeatures := features.Analyze(req.Prompts)
	context := promptFeatures.Vector()
	context = append(context, s.embeddings.Embed(strings.Join(req.Prompts, " "))...)

	// Experiment path first: check assignment, drop the runner lock,
	// then select under a second acquisition.
	var experimentID, variantID string
	selectedIdx := -1
	if req.ExperimentID != "" && req.UserID != "" && s.runner != nil {
		if ac, ok := s.runner.GetVariantForUser(req.ExperimentID, req.UserID); ok {
			if idx, ok := s.runner.SelectBackend(req.ExperimentID, ac.VariantID, len(req.Models), context); ok {
				selectedIdx = idx
				experimentID = req.ExperimentID
				variantID = ac.VariantID
			}
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if selectedIdx < 0 {
		selectedIdx = s.standalone.SelectIndexWithContext(len(req.Models), context)
	}

	recommended := req.Models[selectedIdx]
	caps, ok := s.capabilities[recommended]
	if !ok {
		return nil, fmt.Errorf("model not found: %s", recommended)
	}

	confidence := s.contextualConfidence(context, recommended)

	resp := &SelectResponse{
		RecommendedModel:   recommended,
		Confidence:         confidence,
		Reasoning:          s.reasoning(caps, promptFeatures, context),
		EstimatedCost:      estimateCost(caps, promptFeatures),
		EstimatedLatencyMs: ptr(caps.AvgLatencyMs),
		SessionID:          sessionID,
		ExperimentID:       experimentID,
		VariantID:          variantID,
	}

	for i, name := range req.Models {
		if i == selectedIdx {
			continue
		}
		altCaps, ok := s.capabilities[name]
		if !ok {
			continue
		}
		resp.Alternatives = append(resp.Alternatives, ModelAlternative{
			Model:              name,
			Confidence:         s.contextualConfidence(context, name),
			EstimatedCost:      estimateCost(altCaps, promptFeatures),
			EstimatedLatencyMs: ptr(altCaps.AvgLatencyMs),
		})
	}

	s.prunePendingLocked()
	s.pending[sessionID] = pendingSelection{
		model:        recommended,
		armIndex:     selectedIdx,
		context:      context,
		experimentID: experimentID,
		variantID:    variantID,
		userID:       req.UserID,
		createdAt:    time.Now().UTC(),
	}

	router.RecordSelection("selector", recommended)
	return resp, nil
}

// RecordOutcome feeds a request outcome back to whichever policy made
// the selection for this session. Unknown session ids are a no-op and
// return false.
func (s *ModelSelector) RecordOutcome(sessionID string, outcome Outcome) bool {
	s.mu.Lock()
	sel, ok := s.pending[sessionID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, sessionID)

	h, ok := s.history[sel.model]
	if !ok {
		h = &ModelPerformanceHistory{}
		s.history[sel.model] = h
	}
	h.record(outcome)

	reward := rewardFromOutcome(outcome)

	if sel.experimentID == "" {
		s.standalone.UpdateRewardWithContext(sel.armIndex, sel.context, reward)
		s.mu.Unlock()
	} else {
		// Experiment rewards go through the runner; drop our own lock
		// first so lock order stays selector-then-runner in one
		// direction only.
		s.mu.Unlock()
		s.runner.UpdatePolicyReward(sel.experimentID, sel.variantID, sel.armIndex, sel.context, reward)
		s.runner.RecordInteraction(sel.experimentID, sel.userID, &experiments.InteractionMetrics{
			ResponseTimeMs: outcome.ResponseTimeMs,
			Success:        outcome.Success,
			UserRating:     outcome.UserRating,
			Cost:           outcome.Cost,
			ErrorMessage:   outcome.ErrorMessage,
			Timestamp:      time.Now().UTC(),
		})
	}

	router.RecordReward("selector", reward)
	return true
}

// History returns a copy of the performance history for a model, or
// nil when nothing was recorded yet.
func (s *ModelSelector) History(model string) *ModelPerformanceHistory {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.history[model]
	if !ok {
		return nil
	}
	copied := *h
	return &copied
}

// rewardFromOutcome converts an outcome to a scalar reward in [0, 1].
// Failures are worth 0 so the bandit moves off dead backends; a user
// rating refines a success, otherwise a plain success is worth 1.
func rewardFromOutcome(o Outcome) float64 {
	if !o.Success {
		return 0.0
	}
	if o.UserRating != nil {
		return float64(*o.UserRating) / 5.0
	}
	return 1.0
}

// contextualConfidence is a coarse heuristic: feature richness plus
// how much history we have with the model.
func (s *ModelSelector) contextualConfidence(context []float64, model string) float64 {
	featureConfidence := 0.6
	if len(context) > 10 {
		featureConfidence = 0.8
	}

	familiarity := 0.5
	if h, ok := s.history[model]; ok && h.TotalRequests > 0 {
		familiarity = 0.5 + 0.4*min(float64(h.TotalRequests)/100.0, 1.0)
	}

	return (featureConfidence + familiarity) / 2.0
}

// reasoning builds the human-readable explanation attached to a
// recommendation.
func (s *ModelSelector) reasoning(caps ModelCapabilities, pf features.PromptFeatures, context []float64) string {
	var parts []string

	if caps.HasStrength(pf.Domain) {
		parts = append(parts, fmt.Sprintf("Strong match for %s domain", pf.Domain))
	}
	if pf.ComplexityScore > 0.7 {
		parts = append(parts, "High complexity task requires advanced reasoning")
	}

	contextStrength := 0.0
	limit := min(len(context), 10)
	for _, v := range context[:limit] {
		if v < 0 {
			v = -v
		}
		contextStrength += v
	}
	if limit > 0 && contextStrength/float64(limit) > 0.5 {
		parts = append(parts, "Strong contextual features influence selection")
	}

	parts = append(parts, "Selection informed by contextual bandit learning")
	return strings.Join(parts, "; ")
}

// estimateCost projects the per-request cost from the capability
// profile and the prompt's estimated token count.
func estimateCost(caps ModelCapabilities, pf features.PromptFeatures) *float64 {
	cost := caps.CostPer1KTokens * float64(pf.EstimatedTokens) / 1000.0
	return &cost
}

// prunePendingLocked drops selections whose outcome never arrived.
// Caller holds s.mu.
func (s *ModelSelector) prunePendingLocked() {
	cutoff := time.Now().UTC().Add(-pendingTTL)
	for id, sel := range s.pending {
		if sel.createdAt.Before(cutoff) {
			delete(s.pending, id)
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
