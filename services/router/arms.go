// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"math"
	"math/rand"
)

// =============================================================================
// Per-Arm Learning State
// =============================================================================

// minFeatureNorm is the floor applied to a contextual arm's weight norm
// to avoid division by zero in Predict.
const minFeatureNorm = 1e-10

// predictionClamp bounds contextual predictions to guard against
// divergence of the online gradient updates.
const predictionClamp = 1000.0

// ThompsonArm holds the Beta posterior over one backend's success
// probability.
//
// # Description
//
// Alpha and Beta start at 1 (uniform prior). Each observed success
// increments Alpha by exactly 1; each failure increments Beta by exactly
// 1. Neither counter ever decreases, so after k successes and m failures
// Alpha == 1+k and Beta == 1+m regardless of call order.
//
// # Thread Safety
//
// Not safe for concurrent use. The owning RoutingPolicy's caller
// synchronizes access.
type ThompsonArm struct {
	Alpha float64 `json:"alpha"`
	Beta  float64 `json:"beta"`
}

// NewThompsonArm creates an arm with the uniform Beta(1,1) prior.
func NewThompsonArm() *ThompsonArm {
	return &ThompsonArm{Alpha: 1.0, Beta: 1.0}
}

// Update records one observed outcome for this arm.
func (a *ThompsonArm) Update(success bool) {
	if success {
		a.Alpha += 1.0
	} else {
		a.Beta += 1.0
	}
}

// Sample draws one value from the arm's Beta(Alpha, Beta) posterior.
func (a *ThompsonArm) Sample(rng *rand.Rand) float64 {
	return sampleBeta(rng, a.Alpha, a.Beta)
}

// UCBArm holds the running reward statistics for one backend under the
// Upper Confidence Bound policy.
//
// # Description
//
// AverageReward is kept equal to TotalReward / NumPulls whenever
// NumPulls > 0. NumPulls increases by exactly 1 per Update call.
//
// # Thread Safety
//
// Not safe for concurrent use. The owning RoutingPolicy's caller
// synchronizes access.
type UCBArm struct {
	TotalReward   float64 `json:"total_reward"`
	NumPulls      uint32  `json:"num_pulls"`
	AverageReward float64 `json:"average_reward"`
}

// NewUCBArm creates an arm with no pulls recorded.
func NewUCBArm() *UCBArm {
	return &UCBArm{}
}

// Update records one observed reward and refreshes the running mean.
func (a *UCBArm) Update(reward float64) {
	a.TotalReward += reward
	a.NumPulls++
	a.AverageReward = a.TotalReward / float64(a.NumPulls)
}

// ContextualArm is a linear reward predictor for one backend.
//
// # Description
//
// Weights has length equal to the policy's feature dimension.
// FeatureNorm caches the L2 norm of Weights and is recomputed after
// every update; it is floored at 1.0 when the weights underflow to
// exactly zero so Predict never divides by zero.
//
// A feature vector whose length does not match the weight vector is
// handled fail-soft: Predict returns 0 and Update is a silent no-op.
// A malfunctioning predictor must never halt request routing.
//
// # Thread Safety
//
// Not safe for concurrent use. The owning RoutingPolicy's caller
// synchronizes access.
type ContextualArm struct {
	Weights     []float64 `json:"weights"`
	TotalReward float64   `json:"total_reward"`
	NumPulls    uint32    `json:"num_pulls"`
	FeatureNorm float64   `json:"feature_norm"`
}

// NewContextualArm creates an arm with zeroed weights for the given
// feature dimension. The norm starts at 1.0 (the zero-weight floor).
func NewContextualArm(featureDim int) *ContextualArm {
	if featureDim < 0 {
		featureDim = 0
	}
	return &ContextualArm{
		Weights:     make([]float64, featureDim),
		FeatureNorm: 1.0,
	}
}

// Predict returns the normalized linear score for the given features.
//
// Returns 0 when the feature length does not match the weight length.
// The result is clamped to [-1000, 1000].
func (a *ContextualArm) Predict(features []float64) float64 {
	if len(features) != len(a.Weights) {
		return 0.0
	}

	dot := 0.0
	for i, w := range a.Weights {
		dot += w * features[i]
	}

	norm := a.FeatureNorm
	if norm < minFeatureNorm {
		norm = minFeatureNorm
	}

	prediction := dot / norm
	if prediction > predictionClamp {
		return predictionClamp
	}
	if prediction < -predictionClamp {
		return -predictionClamp
	}
	return prediction
}

// Update applies one online gradient descent step toward the observed
// reward and recomputes the cached weight norm.
//
// A mismatched feature length is a silent no-op.
func (a *ContextualArm) Update(features []float64, reward, learningRate float64) {
	if len(features) != len(a.Weights) {
		return
	}

	err := reward - a.Predict(features)
	for j := range a.Weights {
		a.Weights[j] += learningRate * err * features[j]
	}

	a.TotalReward += reward
	a.NumPulls++

	sumSq := 0.0
	for _, w := range a.Weights {
		sumSq += w * w
	}
	a.FeatureNorm = math.Sqrt(sumSq)
	if a.FeatureNorm == 0.0 {
		a.FeatureNorm = 1.0
	}
}

// =============================================================================
// Beta Sampling
// =============================================================================

// sampleBeta draws from Beta(alpha, beta) via two Gamma draws.
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	x := sampleGamma(rng, alpha)
	y := sampleGamma(rng, beta)
	if x+y == 0 {
		return 0.5
	}
	return x / (x + y)
}

// sampleGamma draws from Gamma(shape, 1) using the Marsaglia-Tsang
// squeeze method. Shapes below 1 are boosted and corrected with a
// uniform power, the standard transformation.
func sampleGamma(rng *rand.Rand, shape float64) float64 {
	if shape <= 0 {
		return 0
	}
	if shape < 1 {
		u := rng.Float64()
		for u == 0 {
			u = rng.Float64()
		}
		return sampleGamma(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1.0 / math.Sqrt(9.0*d)
	for {
		x := rng.NormFloat64()
		v := 1.0 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1.0-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1.0-v+math.Log(v)) {
			return d * v
		}
	}
}
