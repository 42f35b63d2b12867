// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package router

import (
	"encoding/json"
	"testing"
)

func TestPolicyConfigWireFormat(t *testing.T) {
	cfg := NewThompsonSamplingConfig(4)
	raw, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal error: %v", err)
	}

	var decoded map[string]json.RawMessage
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal error: %v", err)
	}
	if string(decoded["type"]) != `"ThompsonSampling"` {
		t.Errorf("type field = %s", decoded["type"])
	}
	if _, ok := decoded["config"]; !ok {
		t.Error("missing config field")
	}
}

func TestPolicyConfigRoundTrip(t *testing.T) {
	configs := []PolicyConfig{
		NewEpsilonGreedyConfig(0.1),
		NewThompsonSamplingConfig(3),
		NewUpperConfidenceBoundConfig(2.0, 4),
		NewContextualConfig(36, 0.05, 4),
		NewStaticConfig(1),
	}
	for _, cfg := range configs {
		raw, err := json.Marshal(cfg)
		if err != nil {
			t.Fatalf("%s: marshal error: %v", cfg.Type, err)
		}
		var back PolicyConfig
		if err := json.Unmarshal(raw, &back); err != nil {
			t.Fatalf("%s: unmarshal error: %v", cfg.Type, err)
		}
		if back.Type != cfg.Type {
			t.Errorf("round trip changed type %s to %s", cfg.Type, back.Type)
		}
		if _, err := back.Build(); err != nil {
			t.Errorf("%s: Build after round trip: %v", cfg.Type, err)
		}
	}
}

func TestBuildKinds(t *testing.T) {
	cases := []struct {
		cfg  PolicyConfig
		want PolicyKind
	}{
		{NewEpsilonGreedyConfig(0.1), KindEpsilonGreedy},
		{NewThompsonSamplingConfig(3), KindThompsonSampling},
		{NewUpperConfidenceBoundConfig(2.0, 0), KindUpperConfidenceBound},
		{NewContextualConfig(10, 0.05, 0), KindContextual},
		{NewStaticConfig(2), KindEpsilonGreedy},
	}
	for _, c := range cases {
		p, err := c.cfg.Build()
		if err != nil {
			t.Fatalf("%s: Build error: %v", c.cfg.Type, err)
		}
		if p.Kind() != c.want {
			t.Errorf("%s built %s, want %s", c.cfg.Type, p.Kind(), c.want)
		}
	}
}

func TestStaticBuildsLowEpsilonGreedy(t *testing.T) {
	p, err := NewStaticConfig(1).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if p.epsilon != 0.01 {
		t.Errorf("static epsilon = %f, want 0.01", p.epsilon)
	}
	// The provider index is not preserved; selection behaves like any
	// low-epsilon greedy policy.
	p.seedRNG(1)
	zeros := 0
	for i := 0; i < 1000; i++ {
		if p.SelectIndex(3) == 0 {
			zeros++
		}
	}
	if zeros < 950 {
		t.Errorf("static policy exploited index 0 only %d/1000 times", zeros)
	}
}

func TestArmsCountDefaults(t *testing.T) {
	p, err := NewUpperConfidenceBoundConfig(2.0, 0).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if p.ArmCount() != 3 {
		t.Errorf("default UCB arm count = %d, want 3", p.ArmCount())
	}

	p, err = NewContextualConfig(8, 0.05, 5).Build()
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if p.ArmCount() != 5 {
		t.Errorf("explicit contextual arm count = %d, want 5", p.ArmCount())
	}
	if p.explorationRate != defaultExplorationRate {
		t.Errorf("exploration rate = %f, want default %f", p.explorationRate, defaultExplorationRate)
	}
}

func TestBuildErrors(t *testing.T) {
	bad := []PolicyConfig{
		{Type: "Bogus", Config: json.RawMessage(`{}`)},
		{Type: TypeEpsilonGreedy}, // missing payload
		{Type: TypeContextual, Config: json.RawMessage(`"not an object"`)},
	}
	for _, cfg := range bad {
		if _, err := cfg.Build(); err == nil {
			t.Errorf("%s: expected Build error", cfg.Type)
		}
		if err := cfg.Validate(); err == nil {
			t.Errorf("%s: expected Validate error", cfg.Type)
		}
	}
}
