// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"time"

	"github.com/switchyard-ai/switchyard/services/router"
)

// =============================================================================
// Experiment
// =============================================================================

// Variant is one live arm of an experiment: its config, its bandit
// policy instance, and its metrics accumulator.
type Variant struct {
	Config  VariantConfig
	Policy  *router.RoutingPolicy
	Metrics *ExperimentMetrics
}

// Experiment is the runtime state of one A/B experiment.
//
// # Thread Safety
//
// Not safe for concurrent use. The ExperimentRunner's lock covers all
// access; an Experiment never escapes the runner.
type Experiment struct {
	Config          ExperimentConfig
	Variants        map[string]*Variant
	UserAssignments map[string]string // user id -> variant id
	rng             *rand.Rand
}

// NewExperiment validates the config and instantiates every variant's
// routing policy and metrics accumulator.
func NewExperiment(config ExperimentConfig) (*Experiment, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid experiment config %q: %w", config.ID, err)
	}

	variants := make(map[string]*Variant, len(config.Variants))
	for _, vc := range config.Variants {
		policy, err := vc.RoutingPolicy.Build()
		if err != nil {
			router.RecordBuildError(string(vc.RoutingPolicy.Type))
			return nil, fmt.Errorf("variant %q: %w", vc.ID, err)
		}
		variants[vc.ID] = &Variant{
			Config:  vc,
			Policy:  policy,
			Metrics: NewExperimentMetrics(vc.ID),
		}
	}

	return &Experiment{
		Config:          config,
		Variants:        variants,
		UserAssignments: make(map[string]string),
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// AssignUser returns the user's variant, assigning one on first sight.
//
// # Description
//
// An existing assignment is always honored, even after the experiment
// stops running. New assignments require CanRun and the user passing
// the traffic allocation gate; excluded users get nil and no
// assignment is recorded, so they are re-evaluated if the allocation
// is later raised. Variant choice is a weighted random draw, then
// sticky forever.
func (e *Experiment) AssignUser(userID string) *Variant {
	if variantID, ok := e.UserAssignments[userID]; ok {
		return e.Variants[variantID]
	}

	if !e.Config.CanRun() {
		return nil
	}

	if !e.userInExperiment(userID) {
		return nil
	}

	variantID := e.selectVariantForUser(userID)
	e.UserAssignments[userID] = variantID
	return e.Variants[variantID]
}

// RecordInteraction attributes one observation to a variant. Unknown
// variant ids are ignored.
func (e *Experiment) RecordInteraction(userID, variantID string, im *InteractionMetrics) {
	if v, ok := e.Variants[variantID]; ok {
		v.Metrics.RecordInteraction(im)
	}
}

// userInExperiment gates on traffic allocation using a stable hash of
// the user id, so the same user is consistently in or out.
func (e *Experiment) userInExperiment(userID string) bool {
	return e.hashUserID(userID) < e.Config.TrafficAllocation
}

// hashUserID maps a user id to [0, 1) deterministically.
func (e *Experiment) hashUserID(userID string) float64 {
	h := fnv.New64a()
	h.Write([]byte(userID))
	return float64(h.Sum64()) / float64(math.MaxUint64)
}

// selectVariantForUser draws a variant by cumulative weight. The last
// variant absorbs any floating point shortfall.
func (e *Experiment) selectVariantForUser(userID string) string {
	randVal := e.rng.Float64()

	cumulative := 0.0
	for _, vc := range e.Config.Variants {
		cumulative += vc.Weight
		if randVal <= cumulative {
			return vc.ID
		}
	}
	return e.Config.Variants[len(e.Config.Variants)-1].ID
}

// =============================================================================
// Results
// =============================================================================

// RecommendationAction is the verdict on an experiment.
type RecommendationAction string

const (
	RecommendContinue     RecommendationAction = "continue"
	RecommendDeploy       RecommendationAction = "deploy"
	RecommendRollback     RecommendationAction = "rollback"
	RecommendInconclusive RecommendationAction = "inconclusive"
)

// Recommendation is the decision produced from experiment results.
// VariantID is set only for deploy.
type Recommendation struct {
	Action    RecommendationAction `json:"action"`
	VariantID string               `json:"variant_id,omitempty"`
}

// VariantResult is the reporting view of one variant.
type VariantResult struct {
	Config             VariantConfig     `json:"config"`
	Metrics            ExperimentMetrics `json:"metrics"`
	Summary            MetricsSummary    `json:"summary"`
	SampleSize         uint32            `json:"sample_size"`
	ConfidenceInterval [2]float64        `json:"confidence_interval"`
	IsWinner           bool              `json:"is_winner"`
}

// ExperimentResults is the full reporting view of an experiment.
//
// StatisticalSignificance is a simplified heuristic, min(|t|/df, 1),
// computed from a pooled-deviation t-statistic over success rates. It
// is not a calibrated p-value; it gates recommendations consistently
// but should not be quoted as one.
type ExperimentResults struct {
	ExperimentID            string                   `json:"experiment_id"`
	ExperimentName          string                   `json:"experiment_name"`
	Status                  ExperimentStatus         `json:"status"`
	VariantResults          map[string]VariantResult `json:"variant_results"`
	TotalUsers              uint32                   `json:"total_users"`
	StatisticalSignificance *float64                 `json:"statistical_significance,omitempty"`
	Recommendation          Recommendation           `json:"recommendation"`
}

// Results assembles the current reporting view.
func (e *Experiment) Results() ExperimentResults {
	variantResults := make(map[string]VariantResult, len(e.Variants))
	for id, v := range e.Variants {
		variantResults[id] = VariantResult{
			Config:             v.Config,
			Metrics:            *v.Metrics,
			Summary:            v.Metrics.Summary(),
			SampleSize:         v.Metrics.TotalInteractions,
			ConfidenceInterval: e.confidenceInterval(v),
			IsWinner:           e.isVariantWinner(v),
		}
	}

	results := ExperimentResults{
		ExperimentID:            e.Config.ID,
		ExperimentName:          e.Config.Name,
		Status:                  e.Config.Status,
		VariantResults:          variantResults,
		TotalUsers:              uint32(len(e.UserAssignments)),
		StatisticalSignificance: e.statisticalSignificance(),
	}
	results.Recommendation = e.recommend(&results)
	return results
}

// confidenceInterval computes a 95% normal-approximation interval
// around the variant's success rate.
func (e *Experiment) confidenceInterval(v *Variant) [2]float64 {
	mean := v.Metrics.AverageSuccessRate()
	stdDev := v.Metrics.SuccessRateStdDev()
	n := float64(v.Metrics.TotalInteractions)
	if n < 1 {
		n = 1
	}

	margin := 1.96 * stdDev / math.Sqrt(n)
	return [2]float64{mean - margin, mean + margin}
}

// isVariantWinner reports whether a non-control variant beats the
// control's success rate. The control itself is never a winner.
func (e *Experiment) isVariantWinner(v *Variant) bool {
	if v.Config.IsControl {
		return false
	}
	control := e.controlVariant()
	if control == nil {
		return false
	}
	return v.Metrics.AverageSuccessRate() > control.Metrics.AverageSuccessRate()
}

func (e *Experiment) controlVariant() *Variant {
	for _, v := range e.Variants {
		if v.Config.IsControl {
			return v
		}
	}
	return nil
}

// statisticalSignificance computes the pseudo p-value comparing the
// control with the first treatment variant, in config order. Returns
// nil with fewer than two variants or no control.
func (e *Experiment) statisticalSignificance() *float64 {
	if len(e.Variants) < 2 {
		return nil
	}

	control := e.controlVariant()
	if control == nil {
		return nil
	}
	var treatment *Variant
	for _, vc := range e.Config.Variants {
		if !vc.IsControl {
			treatment = e.Variants[vc.ID]
			break
		}
	}
	if treatment == nil {
		return nil
	}

	controlMean := control.Metrics.AverageSuccessRate()
	treatmentMean := treatment.Metrics.AverageSuccessRate()
	controlStd := control.Metrics.SuccessRateStdDev()
	treatmentStd := treatment.Metrics.SuccessRateStdDev()
	controlN := math.Max(float64(control.Metrics.TotalInteractions), 1)
	treatmentN := math.Max(float64(treatment.Metrics.TotalInteractions), 1)

	pooledVar := ((controlN-1)*controlStd*controlStd + (treatmentN-1)*treatmentStd*treatmentStd) /
		(controlN + treatmentN - 2)
	pooledStd := math.Sqrt(pooledVar)

	tStat := (treatmentMean - controlMean) /
		(pooledStd * math.Sqrt(1.0/controlN+1.0/treatmentN))

	df := controlN + treatmentN - 2

	p := math.Min(math.Abs(tStat)/df, 1.0)
	if math.IsNaN(p) {
		p = 1.0
	}
	return &p
}

// recommend decides deploy versus continue from the assembled results.
//
// Deploy requires: the sample threshold met, the significance score
// below the configured level, a winning variant, and (when configured)
// the relative success-rate improvement over control meeting the
// expected improvement. Anything else continues.
func (e *Experiment) recommend(results *ExperimentResults) Recommendation {
	if results.TotalUsers < e.Config.SuccessCriteria.MinSampleSize {
		return Recommendation{Action: RecommendContinue}
	}

	if results.StatisticalSignificance == nil ||
		*results.StatisticalSignificance >= e.Config.SuccessCriteria.SignificanceLevel {
		return Recommendation{Action: RecommendContinue}
	}

	winnerID := ""
	for _, vc := range e.Config.Variants {
		if r, ok := results.VariantResults[vc.ID]; ok && r.IsWinner {
			winnerID = vc.ID
			break
		}
	}
	if winnerID == "" {
		return Recommendation{Action: RecommendContinue}
	}

	if improvement := e.Config.SuccessCriteria.ExpectedImprovement; improvement != nil {
		control := e.controlVariant()
		winner := e.Variants[winnerID]
		if control == nil || winner == nil {
			return Recommendation{Action: RecommendContinue}
		}
		controlRate := control.Metrics.AverageSuccessRate()
		if controlRate <= 0 {
			return Recommendation{Action: RecommendContinue}
		}
		actual := (winner.Metrics.AverageSuccessRate() - controlRate) / controlRate
		if actual < *improvement {
			return Recommendation{Action: RecommendContinue}
		}
	}

	return Recommendation{Action: RecommendDeploy, VariantID: winnerID}
}

// =============================================================================
// Assignment Context
// =============================================================================

// AssignmentContext is the record handed to callers when a user is
// placed in an experiment, enough to route and to report back.
type AssignmentContext struct {
	ExperimentID   string              `json:"experiment_id"`
	VariantID      string              `json:"variant_id"`
	RoutingPolicy  router.PolicyConfig `json:"routing_policy"`
	AssignmentTime time.Time           `json:"user_assignment_time"`
}
