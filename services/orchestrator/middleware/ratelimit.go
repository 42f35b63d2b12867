// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the orchestrator
// service.
//
// # Rate Limiting
//
// The rate limiter keeps one token bucket per client IP. Buckets are
// created on first sight and swept once they have been idle for
// longer than the configured TTL, so the map cannot grow without
// bound under churning clients.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// =============================================================================
// Per-Client Rate Limiter
// =============================================================================

// RateLimiterConfig tunes the per-client limiter.
type RateLimiterConfig struct {
	// RequestsPerSecond is the sustained rate each client may hold.
	RequestsPerSecond float64

	// Burst is the bucket depth, the number of requests a client may
	// issue instantly from a full bucket.
	Burst int

	// ClientTTL is how long an idle client's bucket survives before
	// the sweeper drops it. Default: 10 minutes.
	ClientTTL time.Duration
}

// DefaultRateLimiterConfig allows 20 req/s with a burst of 40.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 20,
		Burst:             40,
		ClientTTL:         10 * time.Minute,
	}
}

type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter is a per-client-IP token bucket limiter.
//
// # Thread Safety
//
// Safe for concurrent use.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*clientBucket
	config    RateLimiterConfig
	lastSweep time.Time
}

// NewRateLimiter creates a limiter with the given config. Zero-value
// fields fall back to the defaults.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	defaults := DefaultRateLimiterConfig()
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = defaults.Burst
	}
	if config.ClientTTL <= 0 {
		config.ClientTTL = defaults.ClientTTL
	}
	return &RateLimiter{
		clients:   make(map[string]*clientBucket),
		config:    config,
		lastSweep: time.Now(),
	}
}

// Allow reports whether the client may proceed, consuming one token
// when it may.
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.sweepLocked(now)

	bucket, ok := rl.clients[clientID]
	if !ok {
		bucket = &clientBucket{
			limiter: rate.NewLimiter(rate.Limit(rl.config.RequestsPerSecond), rl.config.Burst),
		}
		rl.clients[clientID] = bucket
	}
	bucket.lastSeen = now
	return bucket.limiter.Allow()
}

// sweepLocked drops buckets idle past the TTL. Runs at most once per
// TTL interval so steady traffic does not pay a scan per request.
func (rl *RateLimiter) sweepLocked(now time.Time) {
	if now.Sub(rl.lastSweep) < rl.config.ClientTTL {
		return
	}
	rl.lastSweep = now
	for id, bucket := range rl.clients {
		if now.Sub(bucket.lastSeen) > rl.config.ClientTTL {
			delete(rl.clients, id)
		}
	}
}

// Middleware rejects over-limit requests with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "Rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
