// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the
// orchestrator's HTTP surface.
//
// # Description
//
// Request counters, latency histograms, and an in-flight gauge, all
// labeled by route template and status. The routing engine's own
// policy metrics live in services/router; this package only covers
// the HTTP layer.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "switchyard"

const httpSubsystem = "http"

// HTTPMetrics holds the Prometheus metrics for the HTTP layer.
// Initialize once at startup via InitMetrics.
type HTTPMetrics struct {
	// RequestsTotal counts requests by route template, method, and
	// status code.
	RequestsTotal *prometheus.CounterVec

	// RequestDurationSeconds measures request handling latency.
	// Labels: route, method
	RequestDurationSeconds *prometheus.HistogramVec

	// ActiveRequests tracks requests currently being handled.
	ActiveRequests prometheus.Gauge

	// ErrorsTotal counts 4xx and 5xx responses by route and status
	// code.
	ErrorsTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance. Initialized by
// InitMetrics.
var DefaultMetrics *HTTPMetrics

// InitMetrics creates and registers the HTTP metrics on the default
// Prometheus registry. Call once at startup; a second call panics on
// duplicate registration.
func InitMetrics() *HTTPMetrics {
	DefaultMetrics = &HTTPMetrics{
		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "requests_total",
				Help:      "Total HTTP requests by route, method, and status",
			},
			[]string{"route", "method", "status"},
		),

		RequestDurationSeconds: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "request_duration_seconds",
				Help:      "HTTP request handling latency in seconds",
				Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0, 30.0},
			},
			[]string{"route", "method"},
		),

		ActiveRequests: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "active_requests",
				Help:      "Number of HTTP requests currently being handled",
			},
		),

		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: httpSubsystem,
				Name:      "errors_total",
				Help:      "Total HTTP error responses by route and status",
			},
			[]string{"route", "status"},
		),
	}

	return DefaultMetrics
}

// =============================================================================
// Gin Middleware
// =============================================================================

// Middleware instruments every request with the metrics above. Routes
// are labeled by gin's route template so path parameters do not
// explode cardinality.
func (m *HTTPMetrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		m.ActiveRequests.Inc()

		c.Next()

		m.ActiveRequests.Dec()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())

		m.RequestsTotal.WithLabelValues(route, c.Request.Method, status).Inc()
		m.RequestDurationSeconds.WithLabelValues(route, c.Request.Method).
			Observe(time.Since(start).Seconds())
		if c.Writer.Status() >= 400 {
			m.ErrorsTotal.WithLabelValues(route, status).Inc()
		}
	}
}
