// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"encoding/json"
	"fmt"
)

// =============================================================================
// Wire Configuration
// =============================================================================

// PolicyType is the wire-level discriminator for PolicyConfig.
type PolicyType string

const (
	TypeEpsilonGreedy        PolicyType = "EpsilonGreedy"
	TypeThompsonSampling     PolicyType = "ThompsonSampling"
	TypeUpperConfidenceBound PolicyType = "UpperConfidenceBound"
	TypeContextual           PolicyType = "Contextual"
	TypeStatic               PolicyType = "Static"
)

// PolicyConfig is the serialized form of a routing policy, an
// adjacently tagged union:
//
//	{"type": "ThompsonSampling", "config": {"arms_count": 3}}
//
// Use the NewXxxConfig constructors to build one programmatically and
// Build to instantiate the runtime policy.
type PolicyConfig struct {
	Type   PolicyType      `json:"type"`
	Config json.RawMessage `json:"config"`
}

// EpsilonGreedyConfig is the payload for TypeEpsilonGreedy.
type EpsilonGreedyConfig struct {
	Epsilon float64 `json:"epsilon"`
}

// ThompsonSamplingConfig is the payload for TypeThompsonSampling.
type ThompsonSamplingConfig struct {
	ArmsCount int `json:"arms_count"`
}

// UpperConfidenceBoundConfig is the payload for
// TypeUpperConfidenceBound. ArmsCount 0 means the default of 3.
type UpperConfidenceBoundConfig struct {
	ConfidenceLevel float64 `json:"confidence_level"`
	ArmsCount       int     `json:"arms_count,omitempty"`
}

// ContextualConfig is the payload for TypeContextual. ArmsCount 0
// means the default of 3; ExplorationRate 0 means the default of 0.1.
type ContextualConfig struct {
	FeatureDim      int     `json:"feature_dim"`
	LearningRate    float64 `json:"learning_rate"`
	ArmsCount       int     `json:"arms_count,omitempty"`
	ExplorationRate float64 `json:"exploration_rate,omitempty"`
}

// StaticConfig is the payload for TypeStatic. The provider index is
// accepted on the wire but static routing is realized as an
// EpsilonGreedy policy with epsilon 0.01, so the index is not
// preserved through Build.
type StaticConfig struct {
	ProviderIndex int `json:"provider_index"`
}

// =============================================================================
// Constructors
// =============================================================================

func mustRaw(v any) json.RawMessage {
	raw, err := json.Marshal(v)
	if err != nil {
		// All payload types are plain structs; this cannot fail.
		panic(err)
	}
	return raw
}

// NewEpsilonGreedyConfig builds an epsilon-greedy wire config.
func NewEpsilonGreedyConfig(epsilon float64) PolicyConfig {
	return PolicyConfig{Type: TypeEpsilonGreedy, Config: mustRaw(EpsilonGreedyConfig{Epsilon: epsilon})}
}

// NewThompsonSamplingConfig builds a Thompson sampling wire config.
func NewThompsonSamplingConfig(armsCount int) PolicyConfig {
	return PolicyConfig{Type: TypeThompsonSampling, Config: mustRaw(ThompsonSamplingConfig{ArmsCount: armsCount})}
}

// NewUpperConfidenceBoundConfig builds a UCB wire config.
func NewUpperConfidenceBoundConfig(confidenceLevel float64, armsCount int) PolicyConfig {
	return PolicyConfig{Type: TypeUpperConfidenceBound, Config: mustRaw(UpperConfidenceBoundConfig{
		ConfidenceLevel: confidenceLevel,
		ArmsCount:       armsCount,
	})}
}

// NewContextualConfig builds a contextual wire config.
func NewContextualConfig(featureDim int, learningRate float64, armsCount int) PolicyConfig {
	return PolicyConfig{Type: TypeContextual, Config: mustRaw(ContextualConfig{
		FeatureDim:   featureDim,
		LearningRate: learningRate,
		ArmsCount:    armsCount,
	})}
}

// NewStaticConfig builds a static wire config.
func NewStaticConfig(providerIndex int) PolicyConfig {
	return PolicyConfig{Type: TypeStatic, Config: mustRaw(StaticConfig{ProviderIndex: providerIndex})}
}

// =============================================================================
// Instantiation
// =============================================================================

// Build instantiates the runtime policy described by the config.
//
// Static configs build an EpsilonGreedy policy with epsilon 0.01; the
// provider index is dropped. Unknown types and malformed payloads
// return an error.
func (c PolicyConfig) Build() (*RoutingPolicy, error) {
	switch c.Type {
	case TypeEpsilonGreedy:
		var payload EpsilonGreedyConfig
		if err := c.decode(&payload); err != nil {
			return nil, err
		}
		return NewEpsilonGreedy(payload.Epsilon), nil

	case TypeThompsonSampling:
		var payload ThompsonSamplingConfig
		if err := c.decode(&payload); err != nil {
			return nil, err
		}
		count := payload.ArmsCount
		if count <= 0 {
			count = defaultArmsCount
		}
		return NewThompsonSampling(count), nil

	case TypeUpperConfidenceBound:
		var payload UpperConfidenceBoundConfig
		if err := c.decode(&payload); err != nil {
			return nil, err
		}
		count := payload.ArmsCount
		if count <= 0 {
			count = defaultArmsCount
		}
		return NewUpperConfidenceBound(count, payload.ConfidenceLevel), nil

	case TypeContextual:
		var payload ContextualConfig
		if err := c.decode(&payload); err != nil {
			return nil, err
		}
		count := payload.ArmsCount
		if count <= 0 {
			count = defaultArmsCount
		}
		exploration := payload.ExplorationRate
		if exploration <= 0 {
			exploration = defaultExplorationRate
		}
		return NewContextual(count, payload.FeatureDim, payload.LearningRate, exploration), nil

	case TypeStatic:
		var payload StaticConfig
		if err := c.decode(&payload); err != nil {
			return nil, err
		}
		return NewEpsilonGreedy(0.01), nil

	default:
		return nil, fmt.Errorf("unknown routing policy type: %q", c.Type)
	}
}

// Validate checks the config without instantiating a policy.
func (c PolicyConfig) Validate() error {
	_, err := c.Build()
	return err
}

func (c PolicyConfig) decode(payload any) error {
	if len(c.Config) == 0 {
		return fmt.Errorf("routing policy %q has no config payload", c.Type)
	}
	if err := json.Unmarshal(c.Config, payload); err != nil {
		return fmt.Errorf("decode routing policy %q config: %w", c.Type, err)
	}
	return nil
}
