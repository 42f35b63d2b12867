// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package experiments

import (
	"math"
	"sort"
	"time"
)

// =============================================================================
// Interaction Observations
// =============================================================================

// InteractionMetrics is one observed request outcome attributed to a
// variant.
type InteractionMetrics struct {
	ResponseTimeMs uint32     `json:"response_time_ms"`
	Success        bool       `json:"success"`
	UserRating     *uint8     `json:"user_rating,omitempty"`
	Cost           float64    `json:"cost"`
	ErrorMessage   *string    `json:"error_message,omitempty"`
	Timestamp      time.Time  `json:"timestamp"`
}

// =============================================================================
// Per-Variant Accumulator
// =============================================================================

// ExperimentMetrics accumulates interaction outcomes for one variant.
//
// # Description
//
// Counters only grow. MetricsByType holds the six derived metrics and
// is recomputed after every recorded interaction, so readers always
// see values consistent with the counters. ResponseTimes retains every
// observation for percentile queries.
//
// # Thread Safety
//
// Not safe for concurrent use; the owning experiment's lock covers all
// access.
type ExperimentMetrics struct {
	VariantID              string                 `json:"variant_id"`
	TotalInteractions      uint32                 `json:"total_interactions"`
	SuccessfulInteractions uint32                 `json:"successful_interactions"`
	TotalResponseTimeMs    uint64                 `json:"total_response_time_ms"`
	TotalCost              float64                `json:"total_cost"`
	UserRatings            []uint8                `json:"user_ratings"`
	Errors                 []string               `json:"errors"`
	ResponseTimes          []uint32               `json:"response_times"`
	MetricsByType          map[MetricType]float64 `json:"metrics_by_type"`
	StartTime              time.Time              `json:"start_time"`
	EndTime                *time.Time             `json:"end_time,omitempty"`
}

// NewExperimentMetrics creates an empty accumulator for a variant.
func NewExperimentMetrics(variantID string) *ExperimentMetrics {
	return &ExperimentMetrics{
		VariantID:     variantID,
		MetricsByType: make(map[MetricType]float64),
		StartTime:     time.Now().UTC(),
	}
}

// RecordInteraction folds one observation into the counters and
// refreshes the derived metrics.
func (m *ExperimentMetrics) RecordInteraction(im *InteractionMetrics) {
	m.TotalInteractions++

	if im.Success {
		m.SuccessfulInteractions++
	}

	m.TotalResponseTimeMs += uint64(im.ResponseTimeMs)
	m.TotalCost += im.Cost

	if im.UserRating != nil {
		m.UserRatings = append(m.UserRatings, *im.UserRating)
	}
	if im.ErrorMessage != nil {
		m.Errors = append(m.Errors, *im.ErrorMessage)
	}

	m.ResponseTimes = append(m.ResponseTimes, im.ResponseTimeMs)

	m.updateDerivedMetrics()
}

// updateDerivedMetrics recomputes all six derived metrics from the
// counters. Denominator-zero cases produce 0.
func (m *ExperimentMetrics) updateDerivedMetrics() {
	successRate := 0.0
	if m.TotalInteractions > 0 {
		successRate = float64(m.SuccessfulInteractions) / float64(m.TotalInteractions)
	}
	m.MetricsByType[MetricSuccessRate] = successRate

	avgResponseTime := 0.0
	if m.TotalInteractions > 0 {
		avgResponseTime = float64(m.TotalResponseTimeMs) / float64(m.TotalInteractions) / 1000.0
	}
	m.MetricsByType[MetricResponseTime] = avgResponseTime

	avgRating := 0.0
	if len(m.UserRatings) > 0 {
		sum := 0
		for _, r := range m.UserRatings {
			sum += int(r)
		}
		avgRating = float64(sum) / float64(len(m.UserRatings))
	}
	m.MetricsByType[MetricUserSatisfaction] = avgRating

	costEfficiency := 0.0
	if m.TotalCost > 0 {
		costEfficiency = successRate / m.TotalCost
	}
	m.MetricsByType[MetricCostEfficiency] = costEfficiency

	errorRate := 0.0
	if m.TotalInteractions > 0 {
		errorRate = float64(len(m.Errors)) / float64(m.TotalInteractions)
	}
	m.MetricsByType[MetricErrorRate] = errorRate

	end := time.Now().UTC()
	if m.EndTime != nil {
		end = *m.EndTime
	}
	throughput := 0.0
	if secs := end.Sub(m.StartTime).Seconds(); secs >= 1.0 {
		throughput = float64(m.TotalInteractions) / math.Floor(secs)
	}
	m.MetricsByType[MetricThroughput] = throughput
}

// AverageSuccessRate returns the derived success rate, 0 before any
// interaction.
func (m *ExperimentMetrics) AverageSuccessRate() float64 {
	return m.MetricsByType[MetricSuccessRate]
}

// SuccessRateStdDev returns sqrt(p*(1-p)), the Bernoulli standard
// deviation of the success rate.
func (m *ExperimentMetrics) SuccessRateStdDev() float64 {
	p := m.AverageSuccessRate()
	return math.Sqrt(p * (1.0 - p))
}

// PercentileResponseTime returns the given percentile of recorded
// response times, or false when none were recorded. The percentile is
// in [0, 100].
func (m *ExperimentMetrics) PercentileResponseTime(percentile float64) (uint32, bool) {
	if len(m.ResponseTimes) == 0 {
		return 0, false
	}

	times := make([]uint32, len(m.ResponseTimes))
	copy(times, m.ResponseTimes)
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	idx := int(percentile / 100.0 * float64(len(times)-1))
	if idx >= len(times) {
		idx = len(times) - 1
	}
	if idx < 0 {
		idx = 0
	}
	return times[idx], true
}

// =============================================================================
// Summaries
// =============================================================================

// MetricsSummary is the flattened reporting view of one variant's
// metrics.
type MetricsSummary struct {
	VariantID             string   `json:"variant_id"`
	TotalInteractions     uint32   `json:"total_interactions"`
	SuccessRate           float64  `json:"success_rate"`
	AvgResponseTimeSec    float64  `json:"avg_response_time_sec"`
	P50ResponseTime       *uint32  `json:"p50_response_time,omitempty"`
	P95ResponseTime       *uint32  `json:"p95_response_time,omitempty"`
	P99ResponseTime       *uint32  `json:"p99_response_time,omitempty"`
	AvgUserRating         *float64 `json:"avg_user_rating,omitempty"`
	TotalCost             float64  `json:"total_cost"`
	AvgCostPerInteraction *float64 `json:"avg_cost_per_interaction,omitempty"`
	ErrorRate             *float64 `json:"error_rate,omitempty"`
}

// Summary flattens the accumulator into a reporting view.
func (m *ExperimentMetrics) Summary() MetricsSummary {
	s := MetricsSummary{
		VariantID:         m.VariantID,
		TotalInteractions: m.TotalInteractions,
		SuccessRate:       m.AverageSuccessRate(),
		TotalCost:         m.TotalCost,
	}

	denom := m.TotalInteractions
	if denom == 0 {
		denom = 1
	}
	s.AvgResponseTimeSec = float64(m.TotalResponseTimeMs) / float64(denom) / 1000.0

	if p, ok := m.PercentileResponseTime(50.0); ok {
		s.P50ResponseTime = &p
	}
	if p, ok := m.PercentileResponseTime(95.0); ok {
		s.P95ResponseTime = &p
	}
	if p, ok := m.PercentileResponseTime(99.0); ok {
		s.P99ResponseTime = &p
	}

	if len(m.UserRatings) > 0 {
		sum := 0
		for _, r := range m.UserRatings {
			sum += int(r)
		}
		avg := float64(sum) / float64(len(m.UserRatings))
		s.AvgUserRating = &avg
	}

	if m.TotalInteractions > 0 {
		avgCost := m.TotalCost / float64(m.TotalInteractions)
		s.AvgCostPerInteraction = &avgCost
		errRate := float64(len(m.Errors)) / float64(m.TotalInteractions)
		s.ErrorRate = &errRate
	}

	return s
}

// =============================================================================
// Cross-Experiment Collector
// =============================================================================

// GlobalMetrics tracks engine-wide counters across all experiments.
type GlobalMetrics struct {
	TotalExperiments  uint32    `json:"total_experiments"`
	ActiveExperiments uint32    `json:"active_experiments"`
	TotalUsers        uint32    `json:"total_users"`
	TotalInteractions uint64    `json:"total_interactions"`
	StartTime         time.Time `json:"start_time"`
}

// GlobalMetricsSummary is the reporting view of GlobalMetrics plus
// aggregates computed over every tracked variant.
type GlobalMetricsSummary struct {
	TotalExperiments   uint32  `json:"total_experiments"`
	ActiveExperiments  uint32  `json:"active_experiments"`
	TotalUsers         uint32  `json:"total_users"`
	TotalInteractions  uint64  `json:"total_interactions"`
	AvgSuccessRate     float64 `json:"avg_success_rate"`
	AvgResponseTimeSec float64 `json:"avg_response_time_sec"`
	TotalCost          float64 `json:"total_cost"`
}

// MetricsCollector aggregates variant metrics across experiments for
// engine-level reporting. Not safe for concurrent use.
type MetricsCollector struct {
	VariantMetrics map[string]*ExperimentMetrics
	Global         GlobalMetrics
}

// NewMetricsCollector creates an empty collector.
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		VariantMetrics: make(map[string]*ExperimentMetrics),
		Global: GlobalMetrics{
			StartTime: time.Now().UTC(),
		},
	}
}

// RecordInteraction attributes one observation to a variant, creating
// the accumulator on first sight.
func (c *MetricsCollector) RecordInteraction(variantID string, im *InteractionMetrics) {
	m, ok := c.VariantMetrics[variantID]
	if !ok {
		m = NewExperimentMetrics(variantID)
		c.VariantMetrics[variantID] = m
	}
	m.RecordInteraction(im)
	c.Global.TotalInteractions++
}

// VariantMetricsFor returns the accumulator for a variant, or nil.
func (c *MetricsCollector) VariantMetricsFor(variantID string) *ExperimentMetrics {
	return c.VariantMetrics[variantID]
}

// GlobalSummary computes the engine-wide reporting view.
func (c *MetricsCollector) GlobalSummary() GlobalMetricsSummary {
	s := GlobalMetricsSummary{
		TotalExperiments:  c.Global.TotalExperiments,
		ActiveExperiments: c.Global.ActiveExperiments,
		TotalUsers:        c.Global.TotalUsers,
		TotalInteractions: c.Global.TotalInteractions,
	}

	var interactions, successes uint64
	var totalTimeMs uint64
	for _, m := range c.VariantMetrics {
		interactions += uint64(m.TotalInteractions)
		successes += uint64(m.SuccessfulInteractions)
		totalTimeMs += m.TotalResponseTimeMs
		s.TotalCost += m.TotalCost
	}

	if interactions > 0 {
		s.AvgSuccessRate = float64(successes) / float64(interactions)
		s.AvgResponseTimeSec = float64(totalTimeMs) / float64(interactions) / 1000.0
	}

	return s
}
