// Copyright (C) 2025 Switchyard AI (eng@switchyard.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestAllowRespectsBurst(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 3})

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d within burst", i)
	}
	assert.False(t, rl.Allow("client-a"), "burst exhausted")

	// Other clients have their own buckets.
	assert.True(t, rl.Allow("client-b"))
}

func TestSweepDropsIdleClients(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{
		RequestsPerSecond: 1,
		Burst:             1,
		ClientTTL:         10 * time.Millisecond,
	})

	rl.Allow("client-a")

	rl.mu.Lock()
	rl.clients["client-a"].lastSeen = time.Now().Add(-time.Minute)
	rl.lastSweep = time.Now().Add(-time.Minute)
	rl.mu.Unlock()

	rl.Allow("client-b")

	rl.mu.Lock()
	_, exists := rl.clients["client-a"]
	rl.mu.Unlock()
	assert.False(t, exists, "idle bucket should be swept")
}

func TestMiddlewareRejectsOverLimit(t *testing.T) {
	rl := NewRateLimiter(RateLimiterConfig{RequestsPerSecond: 1, Burst: 1})

	engine := gin.New()
	engine.Use(rl.Middleware())
	engine.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func() int {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w.Code
	}

	assert.Equal(t, http.StatusOK, do())
	assert.Equal(t, http.StatusTooManyRequests, do())
}
