// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package selector

import (
	"github.com/switchyard-ai/switchyard/services/features"
)

// =============================================================================
// Capability Registry
// =============================================================================

// ModelCapabilities describes one backend model's static profile:
// what it is good at and what it costs. Scores are in [0, 1].
type ModelCapabilities struct {
	Name            string                    `json:"name"`
	Strengths       []features.DomainCategory `json:"strengths"`
	CostPer1KTokens float64                   `json:"cost_per_1k_tokens"`
	AvgLatencyMs    uint32                    `json:"avg_latency_ms"`
	MaxTokens       uint32                    `json:"max_tokens"`
	QualityScore    float64                   `json:"quality_score"`
	CreativityScore float64                   `json:"creativity_score"`
	ReasoningScore  float64                   `json:"reasoning_score"`
	CodeScore       float64                   `json:"code_score"`
}

// HasStrength reports whether the model lists the domain as a
// strength.
func (c ModelCapabilities) HasStrength(domain features.DomainCategory) bool {
	for _, s := range c.Strengths {
		if s == domain {
			return true
		}
	}
	return false
}

// DefaultCapabilities seeds the registry with profiles for the models
// the engine routes between out of the box. Deployments with other
// models register their own profiles.
func DefaultCapabilities() map[string]ModelCapabilities {
	return map[string]ModelCapabilities{
		"gpt-4": {
			Name: "gpt-4",
			Strengths: []features.DomainCategory{
				features.DomainAnalytical,
				features.DomainTechnical,
			},
			CostPer1KTokens: 0.03,
			AvgLatencyMs:    2500,
			MaxTokens:       4096,
			QualityScore:    0.95,
			CreativityScore: 0.85,
			ReasoningScore:  0.95,
			CodeScore:       0.90,
		},
		"claude-3": {
			Name: "claude-3",
			Strengths: []features.DomainCategory{
				features.DomainCreative,
				features.DomainAnalytical,
				features.DomainGeneral,
			},
			CostPer1KTokens: 0.025,
			AvgLatencyMs:    2000,
			MaxTokens:       8192,
			QualityScore:    0.92,
			CreativityScore: 0.95,
			ReasoningScore:  0.88,
			CodeScore:       0.85,
		},
		"llama-3.1": {
			Name: "llama-3.1",
			Strengths: []features.DomainCategory{
				features.DomainGeneral,
				features.DomainTechnical,
			},
			CostPer1KTokens: 0.01,
			AvgLatencyMs:    1500,
			MaxTokens:       2048,
			QualityScore:    0.80,
			CreativityScore: 0.75,
			ReasoningScore:  0.78,
			CodeScore:       0.88,
		},
	}
}

// ModelPerformanceHistory tracks observed outcomes per model, used to
// fold live experience into capability scoring.
type ModelPerformanceHistory struct {
	TotalRequests      uint32  `json:"total_requests"`
	SuccessfulRequests uint32  `json:"successful_requests"`
	AvgRating          float64 `json:"avg_rating"`
	ratingCount        uint32
	AvgLatencyMs       float64 `json:"avg_latency_ms"`
	TotalCost          float64 `json:"total_cost"`
}

// record folds one outcome into the running averages.
func (h *ModelPerformanceHistory) record(o Outcome) {
	h.TotalRequests++
	if o.Success {
		h.SuccessfulRequests++
	}
	if o.UserRating != nil {
		h.ratingCount++
		h.AvgRating += (float64(*o.UserRating) - h.AvgRating) / float64(h.ratingCount)
	}
	h.AvgLatencyMs += (float64(o.ResponseTimeMs) - h.AvgLatencyMs) / float64(h.TotalRequests)
	h.TotalCost += o.Cost
}

// SuccessRate returns the observed success fraction, 0 before any
// request.
func (h *ModelPerformanceHistory) SuccessRate() float64 {
	if h.TotalRequests == 0 {
		return 0
	}
	return float64(h.SuccessfulRequests) / float64(h.TotalRequests)
}
