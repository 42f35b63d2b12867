// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package features derives routing features from prompt text.
//
// The extractor is keyword and surface-statistics based. It exists to
// give contextual routing policies a stable, cheap feature vector, not
// to understand the prompt. Real NLP embeddings are out of scope; the
// hashing embedder in this package is an explicit placeholder.
package features

import (
	"strings"
	"unicode"
)

// =============================================================================
// Categories
// =============================================================================

// DomainCategory is a coarse classification of what a prompt is about.
type DomainCategory string

const (
	DomainTechnical  DomainCategory = "technical"
	DomainCreative   DomainCategory = "creative"
	DomainAnalytical DomainCategory = "analytical"
	DomainGeneral    DomainCategory = "general"
)

// TaskType is a coarse classification of what a prompt asks for.
type TaskType string

const (
	TaskQuestion    TaskType = "question"
	TaskGeneration  TaskType = "generation"
	TaskAnalysis    TaskType = "analysis"
	TaskInstruction TaskType = "instruction"
)

// scoredKeywords are the keywords carried through into the feature
// vector, in fixed order. The vector layout depends on this order
// staying stable.
var scoredKeywords = [24]string{
	"code", "data", "algorithm", "function", "api", "database",
	"network", "security", "creative", "write", "story", "poem",
	"design", "art", "music", "analyze", "research", "explain",
	"teach", "learn", "question", "answer", "help", "solve",
}

// FeatureDim is the length of the vector produced by Vector:
// 4 domain one-hot + 4 task one-hot + 4 continuous + 24 keywords.
const FeatureDim = 4 + 4 + 4 + len(scoredKeywords)

var technicalKeywords = []string{
	"code", "function", "algorithm", "api", "database", "network",
	"security", "bug", "debug",
}

var creativeKeywords = []string{
	"creative", "write", "story", "poem", "design", "art", "music",
	"fiction", "narrative",
}

var analyticalKeywords = []string{
	"analyze", "research", "data", "statistics", "compare", "evaluate",
	"study", "investigate",
}

var questionIndicators = []string{
	"?", "what", "how", "why", "when", "where", "who", "explain",
}

var generationIndicators = []string{
	"create", "write", "generate", "make", "build", "design", "compose",
}

var analysisIndicators = []string{
	"analyze", "compare", "evaluate", "research", "study", "investigate",
}

var instructionIndicators = []string{
	"do", "run", "execute", "implement", "code", "program", "call",
}

var technicalTerms = []string{
	"algorithm", "function", "variable", "class", "method", "api",
	"database", "network",
}

// =============================================================================
// Prompt Features
// =============================================================================

// PromptFeatures is the extracted feature set for one prompt.
//
// KeywordFrequencies holds lowercase word frequencies normalized so
// they sum to 1. ComplexityScore, LengthScore, and StructureScore are
// all in [0, 1].
type PromptFeatures struct {
	Domain             DomainCategory     `json:"domain"`
	Task               TaskType           `json:"task"`
	ComplexityScore    float64            `json:"complexity_score"`
	EstimatedTokens    uint32             `json:"estimated_tokens"`
	KeywordFrequencies map[string]float64 `json:"keyword_frequencies"`
	LengthScore        float64            `json:"length_score"`
	StructureScore     float64            `json:"structure_score"`
}

// Analyze extracts features from the concatenated message contents of
// a request.
func Analyze(contents []string) PromptFeatures {
	var sb strings.Builder
	for _, c := range contents {
		sb.WriteString(c)
		sb.WriteByte(' ')
	}
	text := strings.ToLower(strings.TrimSpace(sb.String()))

	return PromptFeatures{
		Domain:             classifyDomain(text),
		Task:               classifyTask(text),
		ComplexityScore:    complexity(text),
		EstimatedTokens:    estimateTokens(text),
		KeywordFrequencies: keywordFrequencies(text),
		LengthScore:        lengthScore(text),
		StructureScore:     structureScore(text),
	}
}

// Vector flattens the features into a fixed-length numeric vector for
// contextual routing policies. The layout is one-hot domain, one-hot
// task, four continuous scores, then the scored keyword frequencies.
// Length is always FeatureDim.
func (f PromptFeatures) Vector() []float64 {
	v := make([]float64, 0, FeatureDim)

	for _, d := range []DomainCategory{DomainTechnical, DomainCreative, DomainAnalytical, DomainGeneral} {
		if f.Domain == d {
			v = append(v, 1.0)
		} else {
			v = append(v, 0.0)
		}
	}

	for _, tt := range []TaskType{TaskQuestion, TaskGeneration, TaskAnalysis, TaskInstruction} {
		if f.Task == tt {
			v = append(v, 1.0)
		} else {
			v = append(v, 0.0)
		}
	}

	v = append(v, f.ComplexityScore)
	v = append(v, float64(f.EstimatedTokens)/1000.0)
	v = append(v, f.LengthScore)
	v = append(v, f.StructureScore)

	for _, kw := range scoredKeywords {
		v = append(v, f.KeywordFrequencies[kw])
	}

	return v
}

// =============================================================================
// Classification
// =============================================================================

func classifyDomain(text string) DomainCategory {
	// General starts at 1 so an empty prompt still classifies.
	scores := map[DomainCategory]int{
		DomainTechnical:  0,
		DomainCreative:   0,
		DomainAnalytical: 0,
		DomainGeneral:    1,
	}

	for _, word := range strings.Fields(text) {
		if containsWord(technicalKeywords, word) {
			scores[DomainTechnical]++
		}
		if containsWord(creativeKeywords, word) {
			scores[DomainCreative]++
		}
		if containsWord(analyticalKeywords, word) {
			scores[DomainAnalytical]++
		}
	}

	return maxScore(scores, []DomainCategory{
		DomainTechnical, DomainCreative, DomainAnalytical, DomainGeneral,
	})
}

func classifyTask(text string) TaskType {
	scores := map[TaskType]int{
		TaskQuestion:    0,
		TaskGeneration:  0,
		TaskAnalysis:    0,
		TaskInstruction: 0,
	}

	for _, word := range strings.Fields(text) {
		if containsWord(questionIndicators, word) {
			scores[TaskQuestion]++
		}
		if containsWord(generationIndicators, word) {
			scores[TaskGeneration]++
		}
		if containsWord(analysisIndicators, word) {
			scores[TaskAnalysis]++
		}
		if containsWord(instructionIndicators, word) {
			scores[TaskInstruction]++
		}
	}
	if strings.Contains(text, "?") {
		scores[TaskQuestion]++
	}

	return maxScore(scores, []TaskType{
		TaskQuestion, TaskGeneration, TaskAnalysis, TaskInstruction,
	})
}

// maxScore returns the key with the highest score, breaking ties by
// the order given so classification is deterministic.
func maxScore[K comparable](scores map[K]int, order []K) K {
	best := order[0]
	bestScore := scores[best]
	for _, k := range order[1:] {
		if scores[k] > bestScore {
			best = k
			bestScore = scores[k]
		}
	}
	return best
}

func containsWord(set []string, word string) bool {
	for _, s := range set {
		if s == word {
			return true
		}
	}
	return false
}

// =============================================================================
// Surface Statistics
// =============================================================================

func complexity(text string) float64 {
	words := strings.Fields(text)
	wordCount := len(words)
	if wordCount == 0 {
		wordCount = 1
	}

	alphaCount := 0
	for _, r := range text {
		if unicode.IsLetter(r) {
			alphaCount++
		}
	}
	avgWordLength := float64(alphaCount) / float64(wordCount)

	sentenceCount := 0
	for _, s := range strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?'
	}) {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}
	if sentenceCount == 0 {
		sentenceCount = 1
	}
	avgSentenceLength := float64(len(words)) / float64(sentenceCount)

	unique := make(map[string]struct{}, len(words))
	for _, w := range words {
		unique[w] = struct{}{}
	}
	uniqueRatio := float64(len(unique)) / float64(wordCount)

	techTermCount := 0.0
	for _, term := range technicalTerms {
		if strings.Contains(text, term) {
			techTermCount++
		}
	}

	score := clamp01(avgWordLength/10.0)*0.2 +
		clamp01(avgSentenceLength/20.0)*0.3 +
		uniqueRatio*0.3 +
		clamp01(techTermCount/5.0)*0.2

	return clamp01(score)
}

// estimateTokens is a rough English heuristic, roughly one token per
// four characters blended with the word count.
func estimateTokens(text string) uint32 {
	charCount := float64(len([]rune(text)))
	wordCount := float64(len(strings.Fields(text)))
	return uint32(charCount*0.25 + wordCount*0.75)
}

func keywordFrequencies(text string) map[string]float64 {
	freqs := make(map[string]float64)
	for _, word := range strings.Fields(text) {
		clean := strings.ToLower(strings.TrimFunc(word, func(r rune) bool {
			return !unicode.IsLetter(r)
		}))
		if len(clean) > 2 {
			freqs[clean] += 1.0
		}
	}

	total := 0.0
	for _, f := range freqs {
		total += f
	}
	if total > 0 {
		for k := range freqs {
			freqs[k] /= total
		}
	}

	return freqs
}

// lengthScore normalizes character count against a 5000-char ceiling.
func lengthScore(text string) float64 {
	return clamp01(float64(len([]rune(text))) / 5000.0)
}

// structureScore awards a quarter point each for questions, code
// fences, lists, and quoting.
func structureScore(text string) float64 {
	score := 0.0
	if strings.Contains(text, "?") {
		score += 0.25
	}
	if strings.Contains(text, "```") || strings.Contains(text, "func ") || strings.Contains(text, "function ") {
		score += 0.25
	}
	if strings.Contains(text, "- ") || strings.Contains(text, "1.") || strings.Contains(text, "* ") {
		score += 0.25
	}
	if strings.Contains(text, `"`) || strings.Contains(text, "'") {
		score += 0.25
	}
	return score
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
