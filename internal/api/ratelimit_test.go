package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestRateLimiterAllowsWithinBudget(t *testing.T) {
	rl := NewRateLimiter(60, nil)
	defer rl.Stop()

	b := rl.bucketFor("10.0.0.1")
	for i := 0; i < 60; i++ {
		allowed, _ := b.tryConsume()
		assert.True(t, allowed, "request %d should pass", i)
	}

	allowed, remaining := b.tryConsume()
	assert.False(t, allowed)
	assert.Equal(t, 0, remaining)
}

func TestRateLimiterIsolatesClients(t *testing.T) {
	rl := NewRateLimiter(1, nil)
	defer rl.Stop()

	allowed, _ := rl.bucketFor("10.0.0.1").tryConsume()
	assert.True(t, allowed)
	allowed, _ = rl.bucketFor("10.0.0.1").tryConsume()
	assert.False(t, allowed)

	allowed, _ = rl.bucketFor("10.0.0.2").tryConsume()
	assert.True(t, allowed)
}

func TestRateLimiterMiddlewareReturns429(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, nil)
	defer rl.Stop()

	g := gin.New()
	g.Use(rl.Middleware())
	g.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}
