package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/trustplane/platform/internal/domain"
)

// RateLimiter bounds per-client verification traffic with a sliding window.
// Scoring and auditing run on every request, so a scripted client hammering
// the API burns store capacity even when every decision is a deny; the
// limiter cuts that off before the risk engine is reached.
type RateLimiter struct {
	mu        sync.Mutex
	sightings map[string][]time.Time
	limit     int
	window    time.Duration
	now       func() time.Time
}

// NewRateLimiter allows limit requests per client within each window.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		sightings: make(map[string][]time.Time),
		limit:     limit,
		window:    window,
		now:       time.Now,
	}
}

// Check records one sighting of the client and reports whether it stayed
// inside the window. Clients the window has gone quiet on are forgotten.
func (rl *RateLimiter) Check(_ context.Context, client string) domain.GuardResult {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	recent := rl.prune(client, now.Add(-rl.window))

	if len(recent) >= rl.limit {
		rl.sightings[client] = recent
		return domain.GuardResult{
			Allowed: false,
			Reason:  fmt.Sprintf("request rate exceeded: %d per %s from one client", rl.limit, rl.window),
			Guard:   "rate_limiter",
		}
	}

	rl.sightings[client] = append(recent, now)
	return domain.GuardResult{Allowed: true}
}

// prune drops sightings older than the cutoff and frees clients with none
// left, so one-off callers never accumulate.
func (rl *RateLimiter) prune(client string, cutoff time.Time) []time.Time {
	recent := rl.sightings[client][:0]
	for _, t := range rl.sightings[client] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}
	if len(recent) == 0 {
		delete(rl.sightings, client)
	}
	return recent
}
