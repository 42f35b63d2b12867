// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package features

import (
	"math"
	"testing"
)

func TestEmbedDeterministic(t *testing.T) {
	m := NewEmbeddingManager(64)

	a := m.Embed("Test text")
	b := m.Embed("Test text")

	if len(a) != 64 {
		t.Fatalf("embedding length %d, want 64", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("repeated Embed differs at %d: %f vs %f", i, a[i], b[i])
		}
	}

	size, dim := m.CacheStats()
	if size != 1 || dim != 64 {
		t.Errorf("CacheStats = (%d, %d), want (1, 64)", size, dim)
	}
}

func TestEmbedNormalized(t *testing.T) {
	m := NewEmbeddingManager(32)
	v := m.Embed("hello world")

	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if math.Abs(math.Sqrt(norm)-1.0) > 1e-9 {
		t.Errorf("embedding norm %f, want 1.0", math.Sqrt(norm))
	}
}

func TestSimilarity(t *testing.T) {
	m := NewEmbeddingManager(32)
	a := m.Embed("Hello world")
	b := m.Embed("Hello there")
	c := m.Embed("Completely different text about unrelated matters")

	simAB := m.Similarity(a, b)
	simAC := m.Similarity(a, c)
	if simAB <= simAC {
		t.Errorf("similar texts scored %f, dissimilar %f", simAB, simAC)
	}

	if got := m.Similarity(a, []float64{1, 2}); got != 0.0 {
		t.Errorf("mismatched lengths similarity = %f, want 0", got)
	}
	zero := make([]float64, 32)
	if got := m.Similarity(a, zero); got != 0.0 {
		t.Errorf("zero vector similarity = %f, want 0", got)
	}
}

func TestEmbedReturnsCopy(t *testing.T) {
	m := NewEmbeddingManager(16)
	v := m.Embed("mutate me")
	v[0] = 999.0

	again := m.Embed("mutate me")
	if again[0] == 999.0 {
		t.Error("cached embedding was mutated through the returned slice")
	}
}

func TestClearCache(t *testing.T) {
	m := NewEmbeddingManager(8)
	m.Embed("a")
	m.Embed("b")
	m.ClearCache()
	if size, _ := m.CacheStats(); size != 0 {
		t.Errorf("cache size after clear = %d, want 0", size)
	}
}
