package server

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/seanankenbruck/analytics-sql-ai/internal/errors"
	"github.com/seanankenbruck/analytics-sql-ai/internal/observability"
)

// clientWindow holds the request times of one client within the last minute
type clientWindow struct {
	mu       sync.Mutex
	requests []time.Time
	last     time.Time
}

// RateLimiter is an in-memory sliding window limiter keyed by client
type RateLimiter struct {
	limit   int
	window  time.Duration
	mu      sync.Mutex
	clients map[string]*clientWindow
	now     func() time.Time
	stop    chan struct{}
	once    sync.Once
}

// NewRateLimiter allows limitPerMinute requests per client. Inactive clients
// are forgotten by a background sweep until Stop is called.
func NewRateLimiter(limitPerMinute int) *RateLimiter {
	rl := &RateLimiter{
		limit:   limitPerMinute,
		window:  time.Minute,
		clients: make(map[string]*clientWindow),
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	go rl.sweepLoop(5 * time.Minute)
	return rl
}

// Allow records a request for clientID and reports whether it is within the limit
func (rl *RateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	cw, ok := rl.clients[clientID]
	if !ok {
		cw = &clientWindow{}
		rl.clients[clientID] = cw
	}
	rl.mu.Unlock()

	now := rl.now()
	cutoff := now.Add(-rl.window)

	cw.mu.Lock()
	defer cw.mu.Unlock()

	kept := cw.requests[:0]
	for _, t := range cw.requests {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cw.requests = kept
	cw.last = now

	if len(cw.requests) >= rl.limit {
		return false
	}
	cw.requests = append(cw.requests, now)
	return true
}

// Clients returns the number of tracked clients
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}

// Stop ends the background sweep
func (rl *RateLimiter) Stop() {
	rl.once.Do(func() { close(rl.stop) })
}

func (rl *RateLimiter) sweep(idle time.Duration) {
	cutoff := rl.now().Add(-idle)

	rl.mu.Lock()
	defer rl.mu.Unlock()
	for id, cw := range rl.clients {
		cw.mu.Lock()
		if cw.last.Before(cutoff) {
			delete(rl.clients, id)
		}
		cw.mu.Unlock()
	}
}

func (rl *RateLimiter) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.sweep(interval)
		case <-rl.stop:
			return
		}
	}
}

// RateLimitMiddleware rejects clients over the limit with 429
func RateLimitMiddleware(rl *RateLimiter, logger *observability.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		clientID := clientIDFor(c)
		if !rl.Allow(clientID) {
			logger.Warn(c.Request.Context(), "Rate limit exceeded", map[string]interface{}{
				"client": clientID,
				"path":   c.Request.URL.Path,
			})
			c.AbortWithStatusJSON(http.StatusTooManyRequests, formatErrorResponse(errors.NewRateLimitError(rl.limit)))
			return
		}
		c.Next()
	}
}

// clientIDFor keys limits by conversation when the caller names one
func clientIDFor(c *gin.Context) string {
	if id := c.GetHeader(observability.SessionIDHeader); id != "" {
		return "session:" + id
	}
	return "ip:" + c.ClientIP()
}
