package server

import (
	"context"
	"sync"
	"time"

	"github.com/raaihank/pii-shield/internal/config"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per client IP
type RateLimiter struct {
	mu       sync.RWMutex
	enabled  bool
	limit    rate.Limit
	burst    int
	limiters map[string]*clientLimiter
	now      func() time.Time
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(cfg config.RateLimitConfig) *RateLimiter {
	r := &RateLimiter{
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
	r.Update(cfg)
	return r
}

// Update applies new limits to every client, e.g. after a config reload
func (r *RateLimiter) Update(cfg config.RateLimitConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.enabled = cfg.Enabled && cfg.RequestsPerMin > 0
	r.limit = rate.Limit(float64(cfg.RequestsPerMin) / 60.0) // per second
	r.burst = cfg.Burst
	if r.burst <= 0 {
		r.burst = 1
	}
	for _, c := range r.limiters {
		c.limiter.SetLimit(r.limit)
		c.limiter.SetBurst(r.burst)
	}
}

// Allow checks if a request from the given client IP is allowed
func (r *RateLimiter) Allow(clientIP string) bool {
	r.mu.RLock()
	enabled := r.enabled
	r.mu.RUnlock()
	if !enabled {
		return true
	}
	return r.getLimiter(clientIP).Allow()
}

// getLimiter gets or creates the limiter for a client IP
func (r *RateLimiter) getLimiter(clientIP string) *rate.Limiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, exists := r.limiters[clientIP]
	if !exists {
		c = &clientLimiter{limiter: rate.NewLimiter(r.limit, r.burst)}
		r.limiters[clientIP] = c
	}
	c.lastSeen = r.now()
	return c.limiter
}

// Cleanup removes limiters of clients not seen for maxIdle
func (r *RateLimiter) Cleanup(maxIdle time.Duration) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxIdle)
	removed := 0
	for ip, c := range r.limiters {
		if c.lastSeen.Before(cutoff) {
			delete(r.limiters, ip)
			removed++
		}
	}
	return removed
}

// Run cleans up idle limiters until ctx is done
func (r *RateLimiter) Run(ctx context.Context) error {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.Cleanup(time.Hour)
		}
	}
}
