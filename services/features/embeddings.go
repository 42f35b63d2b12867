// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package features

import (
	"math"
	"sync"
)

// EmbeddingManager produces cached hash-based text embeddings.
//
// # Description
//
// The embedder is a placeholder: each byte of the text is folded into
// a bucket of the output vector and the result is L2-normalized. Two
// identical strings always map to identical vectors, which is all the
// contextual router needs for cache keys and rough similarity. Swap in
// a real embedding model behind the same interface when one exists.
//
// # Thread Safety
//
// Safe for concurrent use; the cache is mutex-protected.
type EmbeddingManager struct {
	mu    sync.Mutex
	cache map[string][]float64
	dim   int
}

// NewEmbeddingManager creates a manager producing vectors of the given
// dimension. Dimensions below 1 are raised to 1.
func NewEmbeddingManager(dim int) *EmbeddingManager {
	if dim < 1 {
		dim = 1
	}
	return &EmbeddingManager{
		cache: make(map[string][]float64),
		dim:   dim,
	}
}

// Embed returns the embedding for text, computing and caching it on
// first use. The returned slice is a copy; callers may modify it.
func (m *EmbeddingManager) Embed(text string) []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cached, ok := m.cache[text]; ok {
		out := make([]float64, len(cached))
		copy(out, cached)
		return out
	}

	embedding := m.hashEmbed(text)
	m.cache[text] = embedding

	out := make([]float64, len(embedding))
	copy(out, embedding)
	return out
}

// EmbedBatch embeds each text in order.
func (m *EmbeddingManager) EmbedBatch(texts []string) [][]float64 {
	out := make([][]float64, 0, len(texts))
	for _, t := range texts {
		out = append(out, m.Embed(t))
	}
	return out
}

// hashEmbed folds each byte into a bucket and L2-normalizes.
func (m *EmbeddingManager) hashEmbed(text string) []float64 {
	embedding := make([]float64, m.dim)

	for i := 0; i < len(text); i++ {
		b := text[i]
		idx := (i + int(b)) % m.dim
		embedding[idx] += float64(b) / 255.0
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range embedding {
			embedding[i] /= norm
		}
	}

	return embedding
}

// Similarity returns the cosine similarity of two vectors, or 0 when
// the lengths differ or either vector is zero.
func (m *EmbeddingManager) Similarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	dot, normA, normB := 0.0, 0.0, 0.0
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// CacheStats returns the number of cached embeddings and the vector
// dimension.
func (m *EmbeddingManager) CacheStats() (size, dim int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.cache), m.dim
}

// ClearCache drops all cached embeddings.
func (m *EmbeddingManager) ClearCache() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cache = make(map[string][]float64)
}
