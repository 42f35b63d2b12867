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
	"testing"
)

func TestThompsonArmCounts(t *testing.T) {
	a := NewThompsonArm()
	if a.Alpha != 1.0 || a.Beta != 1.0 {
		t.Fatalf("new arm = Beta(%f, %f), want Beta(1, 1)", a.Alpha, a.Beta)
	}

	for i := 0; i < 5; i++ {
		a.Update(true)
	}
	for i := 0; i < 3; i++ {
		a.Update(false)
	}
	if a.Alpha != 6.0 || a.Beta != 4.0 {
		t.Errorf("after 5 successes, 3 failures: Beta(%f, %f), want Beta(6, 4)", a.Alpha, a.Beta)
	}
}

func TestThompsonArmOrderIndependent(t *testing.T) {
	a := NewThompsonArm()
	b := NewThompsonArm()

	a.Update(true)
	a.Update(false)
	a.Update(true)

	b.Update(false)
	b.Update(true)
	b.Update(true)

	if a.Alpha != b.Alpha || a.Beta != b.Beta {
		t.Errorf("order changed posterior: Beta(%f,%f) vs Beta(%f,%f)",
			a.Alpha, a.Beta, b.Alpha, b.Beta)
	}
}

func TestThompsonArmSampleRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	a := NewThompsonArm()
	a.Update(true)
	a.Update(false)

	for i := 0; i < 1000; i++ {
		s := a.Sample(rng)
		if s < 0.0 || s > 1.0 || math.IsNaN(s) {
			t.Fatalf("sample %d = %f, outside [0,1]", i, s)
		}
	}
}

func TestThompsonArmSampleBias(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	good := NewThompsonArm()
	bad := NewThompsonArm()
	for i := 0; i < 50; i++ {
		good.Update(true)
		bad.Update(false)
	}

	goodSum, badSum := 0.0, 0.0
	for i := 0; i < 500; i++ {
		goodSum += good.Sample(rng)
		badSum += bad.Sample(rng)
	}
	if goodSum <= badSum {
		t.Errorf("heavily rewarded arm sampled lower on average: %f vs %f", goodSum, badSum)
	}
}

func TestUCBArmAverage(t *testing.T) {
	a := NewUCBArm()
	if a.NumPulls != 0 || a.AverageReward != 0 {
		t.Fatal("new UCB arm should have no pulls")
	}

	a.Update(1.0)
	a.Update(0.0)
	a.Update(0.5)

	if a.NumPulls != 3 {
		t.Errorf("NumPulls = %d, want 3", a.NumPulls)
	}
	if math.Abs(a.AverageReward-0.5) > 1e-12 {
		t.Errorf("AverageReward = %f, want 0.5", a.AverageReward)
	}
	if math.Abs(a.TotalReward-1.5) > 1e-12 {
		t.Errorf("TotalReward = %f, want 1.5", a.TotalReward)
	}
}

func TestContextualArmNew(t *testing.T) {
	a := NewContextualArm(4)
	if len(a.Weights) != 4 {
		t.Fatalf("weights length %d, want 4", len(a.Weights))
	}
	for i, w := range a.Weights {
		if w != 0.0 {
			t.Errorf("weights[%d] = %f, want 0", i, w)
		}
	}
	if a.TotalReward != 0 || a.NumPulls != 0 {
		t.Error("new arm should carry no reward state")
	}
	if a.FeatureNorm != 1.0 {
		t.Errorf("FeatureNorm = %f, want 1.0", a.FeatureNorm)
	}
}

func TestContextualArmDimensionMismatch(t *testing.T) {
	a := NewContextualArm(3)
	a.Update([]float64{1, 0, 0}, 1.0, 0.1)

	before := make([]float64, len(a.Weights))
	copy(before, a.Weights)
	pullsBefore := a.NumPulls

	if got := a.Predict([]float64{1, 2}); got != 0.0 {
		t.Errorf("mismatched Predict = %f, want 0", got)
	}
	a.Update([]float64{1, 2, 3, 4}, 1.0, 0.1)

	if a.NumPulls != pullsBefore {
		t.Error("mismatched Update changed pull count")
	}
	for i := range before {
		if a.Weights[i] != before[i] {
			t.Error("mismatched Update changed weights")
			break
		}
	}
}

func TestContextualArmConvergence(t *testing.T) {
	a := NewContextualArm(2)
	features := []float64{1.0, 0.5}
	target := 0.8

	for i := 0; i < 200; i++ {
		a.Update(features, target, 0.05)
	}

	got := a.Predict(features)
	if math.Abs(got-target) > 0.5 {
		t.Errorf("after 200 updates Predict = %f, want within 0.5 of %f", got, target)
	}
}

func TestContextualArmPredictionClamp(t *testing.T) {
	a := NewContextualArm(1)
	a.Weights[0] = 1.0
	a.FeatureNorm = 1e-12 // force a huge normalized dot product

	got := a.Predict([]float64{1e6})
	if got != predictionClamp {
		t.Errorf("Predict = %f, want clamp at %f", got, predictionClamp)
	}
	got = a.Predict([]float64{-1e6})
	if got != -predictionClamp {
		t.Errorf("Predict = %f, want clamp at %f", got, -predictionClamp)
	}
}

func TestContextualArmNormFloor(t *testing.T) {
	a := NewContextualArm(2)
	// Zero features leave weights at zero; norm must floor at 1.0.
	a.Update([]float64{0, 0}, 1.0, 0.1)
	if a.FeatureNorm != 1.0 {
		t.Errorf("FeatureNorm = %f, want floor of 1.0", a.FeatureNorm)
	}
}

func TestSampleBetaUniformPrior(t *testing.T) {
	rng := rand.New(rand.NewSource(99))
	sum := 0.0
	n := 5000
	for i := 0; i < n; i++ {
		s := sampleBeta(rng, 1.0, 1.0)
		if s < 0 || s > 1 {
			t.Fatalf("Beta(1,1) sample %f outside [0,1]", s)
		}
		sum += s
	}
	mean := sum / float64(n)
	if math.Abs(mean-0.5) > 0.05 {
		t.Errorf("Beta(1,1) sample mean = %f, want about 0.5", mean)
	}
}
