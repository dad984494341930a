package server

import (
	"net/http"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
	"github.com/seanankenbruck/analytics-sql-ai/internal/pipeline"
	"github.com/seanankenbruck/analytics-sql-ai/internal/schema"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	rl := NewRateLimiter(2)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "clients have separate windows")

	now = now.Add(61 * time.Second)
	assert.True(t, rl.Allow("a"), "old requests leave the window")
}

func TestRateLimiter_SweepForgetsIdleClients(t *testing.T) {
	rl := NewRateLimiter(10)
	defer rl.Stop()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	rl.Allow("idle")
	now = now.Add(3 * time.Minute)
	rl.Allow("active")
	now = now.Add(3 * time.Minute)

	rl.sweep(5 * time.Minute)
	assert.Equal(t, 1, rl.Clients())
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1)
	defer rl.Stop()

	s := NewServer(&fakePipeline{response: pipeline.NeedsClarification("Which metric?")},
		schema.NewRegistry(testCatalog(t), nil))
	s.SetRateLimiter(rl)
	r := s.SetupRoutes()

	session := map[string]string{observability.SessionIDHeader: "s1"}
	body := map[string]string{"query": "top stores"}

	w := doRequest(r, http.MethodPost, "/api/v1/query", body, session)
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodPost, "/api/v1/query", body, session)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	errBody := decode(t, w)["error"].(map[string]interface{})
	assert.Equal(t, "RATE_LIMITED", errBody["code"])

	w = doRequest(r, http.MethodPost, "/api/v1/query", body, map[string]string{observability.SessionIDHeader: "s2"})
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(r, http.MethodGet, "/health", nil, session)
	assert.Equal(t, http.StatusOK, w.Code, "health is not limited")
}
