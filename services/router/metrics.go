// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics for Bandit Routing
// =============================================================================

var (
	// policySelections counts arm selections per policy family.
	// Labels: policy (family name), arm (selected index as string)
	policySelections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "switchyard",
		Subsystem: "routing",
		Name:      "selections_total",
		Help:      "Total arm selections by policy family",
	}, []string{"policy", "arm"})

	// policyRewards tracks the distribution of observed rewards.
	// Labels: policy
	policyRewards = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "switchyard",
		Subsystem: "routing",
		Name:      "reward",
		Help:      "Distribution of rewards fed back to policies",
		Buckets:   []float64{-1.0, -0.5, -0.1, 0.0, 0.1, 0.25, 0.5, 0.75, 0.9, 1.0},
	}, []string{"policy"})

	// selectionLatency measures the time taken for a selection.
	// Labels: policy
	selectionLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "switchyard",
		Subsystem: "routing",
		Name:      "selection_latency_seconds",
		Help:      "Arm selection latency in seconds",
		Buckets:   []float64{0.00001, 0.0001, 0.001, 0.01, 0.05, 0.1},
	}, []string{"policy"})

	// policyBuildErrors counts failures to build a policy from wire
	// config. Labels: type (wire discriminator)
	policyBuildErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "switchyard",
		Subsystem: "routing",
		Name:      "build_errors_total",
		Help:      "Total routing policy config build failures",
	}, []string{"type"})
)

// =============================================================================
// Metrics Recording Functions
// =============================================================================

// RecordSelection records one arm selection.
//
// Inputs:
//
//	policy - The policy family name.
//	arm - The selected arm index rendered as a string.
func RecordSelection(policy, arm string) {
	policySelections.WithLabelValues(policy, arm).Inc()
}

// RecordReward records one reward observation.
//
// Inputs:
//
//	policy - The policy family name.
//	reward - The reward value fed to the policy.
func RecordReward(policy string, reward float64) {
	policyRewards.WithLabelValues(policy).Observe(reward)
}

// RecordSelectionLatency records the wall time of a selection.
//
// Inputs:
//
//	policy - The policy family name.
//	durationSec - Duration in seconds.
func RecordSelectionLatency(policy string, durationSec float64) {
	selectionLatency.WithLabelValues(policy).Observe(durationSec)
}

// RecordBuildError records a policy config build failure.
//
// Inputs:
//
//	policyType - The wire discriminator of the failed config.
func RecordBuildError(policyType string) {
	policyBuildErrors.WithLabelValues(policyType).Inc()
}
