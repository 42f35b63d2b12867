// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package router implements multi-armed bandit policies for choosing
// among LLM backends.
//
// Four policy families are supported:
//
//   - EpsilonGreedy: explore uniformly with probability epsilon,
//     otherwise pick index 0. Carries no learning state.
//   - ThompsonSampling: Beta posterior per arm, pick the largest
//     posterior sample.
//   - UpperConfidenceBound: UCB1 over running reward means with a
//     shared round counter.
//   - Contextual: per-arm linear reward model over prompt features,
//     wrapped in epsilon-greedy exploration.
//
// A policy scores abstract arm indices. Mapping indices to concrete
// backends is the caller's concern.
package router

import (
	"math"
	"math/rand"
	"time"
)

// PolicyKind identifies a bandit policy family.
type PolicyKind string

const (
	KindEpsilonGreedy        PolicyKind = "epsilon_greedy"
	KindThompsonSampling     PolicyKind = "thompson_sampling"
	KindUpperConfidenceBound PolicyKind = "upper_confidence_bound"
	KindContextual           PolicyKind = "contextual"
)

// defaultArmsCount is used when a wire config does not say how many
// arms a UCB or contextual policy should carry.
const defaultArmsCount = 3

// defaultExplorationRate is the epsilon used by contextual policies
// when the wire config does not set one.
const defaultExplorationRate = 0.1

// RoutingPolicy is one bandit instance. Exactly one family's state is
// populated, selected by kind.
//
// # Thread Safety
//
// Not safe for concurrent use. Each policy is owned by a single
// experiment variant or selector, and the owner's lock covers every
// call. Sharing a policy across owners without synchronization is a
// bug.
type RoutingPolicy struct {
	kind PolicyKind
	rng  *rand.Rand

	// epsilon-greedy
	epsilon float64

	// thompson sampling
	thompsonArms []*ThompsonArm

	// upper confidence bound
	ucbArms         []*UCBArm
	confidenceLevel float64
	totalRounds     uint64

	// contextual
	ctxArms         []*ContextualArm
	featureDim      int
	learningRate    float64
	explorationRate float64
}

// NewEpsilonGreedy creates an epsilon-greedy policy.
//
// This family is intentionally degenerate: exploitation always picks
// index 0 and reward updates are no-ops. It exists as the cheap
// baseline control in experiments, and as the realization of static
// routing configs.
func NewEpsilonGreedy(epsilon float64) *RoutingPolicy {
	return &RoutingPolicy{
		kind:    KindEpsilonGreedy,
		epsilon: epsilon,
		rng:     newRNG(),
	}
}

// NewThompsonSampling creates a Thompson sampling policy with
// armsCount arms, each starting from the uniform Beta(1,1) prior.
func NewThompsonSampling(armsCount int) *RoutingPolicy {
	if armsCount < 1 {
		armsCount = 1
	}
	arms := make([]*ThompsonArm, armsCount)
	for i := range arms {
		arms[i] = NewThompsonArm()
	}
	return &RoutingPolicy{
		kind:         KindThompsonSampling,
		thompsonArms: arms,
		rng:          newRNG(),
	}
}

// NewUpperConfidenceBound creates a UCB1 policy with armsCount arms
// and the given confidence level (the exploration coefficient c in the
// UCB term).
func NewUpperConfidenceBound(armsCount int, confidenceLevel float64) *RoutingPolicy {
	if armsCount < 1 {
		armsCount = 1
	}
	arms := make([]*UCBArm, armsCount)
	for i := range arms {
		arms[i] = NewUCBArm()
	}
	return &RoutingPolicy{
		kind:            KindUpperConfidenceBound,
		ucbArms:         arms,
		confidenceLevel: confidenceLevel,
		rng:             newRNG(),
	}
}

// NewContextual creates a contextual policy with armsCount linear arms
// over featureDim-dimensional feature vectors.
func NewContextual(armsCount, featureDim int, learningRate, explorationRate float64) *RoutingPolicy {
	if armsCount < 1 {
		armsCount = 1
	}
	arms := make([]*ContextualArm, armsCount)
	for i := range arms {
		arms[i] = NewContextualArm(featureDim)
	}
	return &RoutingPolicy{
		kind:            KindContextual,
		ctxArms:         arms,
		featureDim:      featureDim,
		learningRate:    learningRate,
		explorationRate: explorationRate,
		rng:             newRNG(),
	}
}

func newRNG() *rand.Rand {
	return rand.New(rand.NewSource(time.Now().UnixNano()))
}

// seedRNG replaces the policy's random source. Tests use it for
// deterministic selection.
func (p *RoutingPolicy) seedRNG(seed int64) {
	p.rng = rand.New(rand.NewSource(seed))
}

// Kind returns the policy family.
func (p *RoutingPolicy) Kind() PolicyKind {
	return p.kind
}

// ArmCount returns the number of arms the policy carries learning
// state for. Epsilon-greedy carries none and returns 0.
func (p *RoutingPolicy) ArmCount() int {
	switch p.kind {
	case KindThompsonSampling:
		return len(p.thompsonArms)
	case KindUpperConfidenceBound:
		return len(p.ucbArms)
	case KindContextual:
		return len(p.ctxArms)
	default:
		return 0
	}
}

// =============================================================================
// Selection
// =============================================================================

// SelectIndex picks an arm index in [0, numOptions).
//
// # Description
//
// EpsilonGreedy explores uniformly with probability epsilon and
// otherwise returns 0. ThompsonSampling returns the arm with the
// largest posterior sample. UpperConfidenceBound returns the arm with
// the largest UCB score, treating unpulled arms as +Inf so each arm is
// tried at least once; ties break toward the lowest index. Contextual
// policies need features and fall back to pure exploration here; use
// SelectIndexWithContext instead.
//
// When numOptions exceeds the policy's arm count only the armed
// indices compete. numOptions < 1 returns 0.
func (p *RoutingPolicy) SelectIndex(numOptions int) int {
	if numOptions < 1 {
		return 0
	}

	switch p.kind {
	case KindEpsilonGreedy:
		if p.rng.Float64() < p.epsilon {
			return p.rng.Intn(numOptions)
		}
		return 0

	case KindThompsonSampling:
		n := min(numOptions, len(p.thompsonArms))
		if n == 0 {
			return 0
		}
		best, bestSample := 0, math.Inf(-1)
		for i := 0; i < n; i++ {
			sample := p.thompsonArms[i].Sample(p.rng)
			if sample > bestSample {
				best, bestSample = i, sample
			}
		}
		return best

	case KindUpperConfidenceBound:
		n := min(numOptions, len(p.ucbArms))
		if n == 0 {
			return 0
		}
		best, bestScore := 0, math.Inf(-1)
		for i := 0; i < n; i++ {
			score := p.ucbScore(p.ucbArms[i])
			if score > bestScore {
				best, bestScore = i, score
			}
		}
		return best

	case KindContextual:
		return p.rng.Intn(min(max(numOptions, 1), max(len(p.ctxArms), 1)))

	default:
		return 0
	}
}

// SelectIndexWithContext picks an arm index using prompt features.
//
// Only contextual policies use the features; every other family
// delegates to SelectIndex. With probability explorationRate a random
// arm is returned, otherwise the arm with the highest predicted
// reward. Ties break toward the lowest index.
func (p *RoutingPolicy) SelectIndexWithContext(numOptions int, features []float64) int {
	if p.kind != KindContextual {
		return p.SelectIndex(numOptions)
	}
	if numOptions < 1 {
		return 0
	}

	n := min(numOptions, len(p.ctxArms))
	if n == 0 {
		return 0
	}

	if p.rng.Float64() < p.explorationRate {
		return p.rng.Intn(n)
	}

	best, bestScore := 0, math.Inf(-1)
	for i := 0; i < n; i++ {
		score := p.ctxArms[i].Predict(features)
		if score > bestScore {
			best, bestScore = i, score
		}
	}
	return best
}

// ucbScore computes the UCB1 score for one arm. Unpulled arms score
// +Inf so they are always selected before any pulled arm.
func (p *RoutingPolicy) ucbScore(arm *UCBArm) float64 {
	if arm.NumPulls == 0 {
		return math.Inf(1)
	}
	if p.totalRounds == 0 {
		return arm.AverageReward
	}
	exploration := p.confidenceLevel *
		math.Sqrt(math.Log(float64(p.totalRounds))/float64(arm.NumPulls))
	return arm.AverageReward + exploration
}

// =============================================================================
// Reward Updates
// =============================================================================

// UpdateReward feeds one observed reward back to the given arm.
//
// EpsilonGreedy ignores updates. ThompsonSampling treats reward > 0.5
// as success. UpperConfidenceBound adds the raw reward and advances
// the shared round counter exactly once per call. Contextual policies
// need features and ignore plain updates; use UpdateRewardWithContext.
// Out-of-range arm indices are ignored.
func (p *RoutingPolicy) UpdateReward(armIndex int, reward float64) {
	switch p.kind {
	case KindThompsonSampling:
		if armIndex >= 0 && armIndex < len(p.thompsonArms) {
			p.thompsonArms[armIndex].Update(reward > 0.5)
		}

	case KindUpperConfidenceBound:
		if armIndex >= 0 && armIndex < len(p.ucbArms) {
			p.ucbArms[armIndex].Update(reward)
			p.totalRounds++
		}
	}
}

// UpdateRewardWithContext feeds one observed reward with its feature
// vector back to a contextual arm. Non-contextual policies delegate to
// UpdateReward. Mismatched feature dimensions are a silent no-op in
// the arm.
func (p *RoutingPolicy) UpdateRewardWithContext(armIndex int, features []float64, reward float64) {
	if p.kind != KindContextual {
		p.UpdateReward(armIndex, reward)
		return
	}
	if armIndex >= 0 && armIndex < len(p.ctxArms) {
		p.ctxArms[armIndex].Update(features, reward, p.learningRate)
	}
}

// =============================================================================
// Introspection
// =============================================================================

// ArmSnapshot is a read-only view of one arm's learning state, used by
// results reporting and debugging endpoints.
type ArmSnapshot struct {
	Index         int     `json:"index"`
	NumPulls      uint32  `json:"num_pulls"`
	AverageReward float64 `json:"average_reward"`
	Alpha         float64 `json:"alpha,omitempty"`
	Beta          float64 `json:"beta,omitempty"`
}

// Snapshot returns per-arm state for reporting. Epsilon-greedy
// policies return nil.
func (p *RoutingPolicy) Snapshot() []ArmSnapshot {
	switch p.kind {
	case KindThompsonSampling:
		out := make([]ArmSnapshot, len(p.thompsonArms))
		for i, arm := range p.thompsonArms {
			pulls := uint32(arm.Alpha + arm.Beta - 2.0)
			out[i] = ArmSnapshot{
				Index:         i,
				NumPulls:      pulls,
				AverageReward: arm.Alpha / (arm.Alpha + arm.Beta),
				Alpha:         arm.Alpha,
				Beta:          arm.Beta,
			}
		}
		return out
	case KindUpperConfidenceBound:
		out := make([]ArmSnapshot, len(p.ucbArms))
		for i, arm := range p.ucbArms {
			out[i] = ArmSnapshot{
				Index:         i,
				NumPulls:      arm.NumPulls,
				AverageReward: arm.AverageReward,
			}
		}
		return out
	case KindContextual:
		out := make([]ArmSnapshot, len(p.ctxArms))
		for i, arm := range p.ctxArms {
			avg := 0.0
			if arm.NumPulls > 0 {
				avg = arm.TotalReward / float64(arm.NumPulls)
			}
			out[i] = ArmSnapshot{
				Index:         i,
				NumPulls:      arm.NumPulls,
				AverageReward: avg,
			}
		}
		return out
	default:
		return nil
	}
}
