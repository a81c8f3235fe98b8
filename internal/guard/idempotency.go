package guard

import (
	"context"
	"sync"
	"time"

	"github.com/trustplane/platform/internal/domain"
)

// Keys are kept long enough to absorb any plausible client retry storm,
// then forgotten so the set stays bounded.
const idempotencyKeyRetention = 24 * time.Hour

// IdempotencyGuard deduplicates mutating requests by their Idempotency-Key.
// A replayed terminate, block or resolve would otherwise double its audit
// trail; the guard turns the replay into a visible conflict instead.
type IdempotencyGuard struct {
	mu        sync.Mutex
	firstSeen map[string]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewIdempotencyGuard creates an in-memory guard with default retention.
func NewIdempotencyGuard() *IdempotencyGuard {
	return &IdempotencyGuard{
		firstSeen: make(map[string]time.Time),
		retention: idempotencyKeyRetention,
		now:       time.Now,
	}
}

// Check claims the key for this request. An empty key means the client opted
// out of replay protection; that is allowed, never rejected.
func (ig *IdempotencyGuard) Check(_ context.Context, key string) domain.GuardResult {
	if key == "" {
		return domain.GuardResult{Allowed: true}
	}

	ig.mu.Lock()
	defer ig.mu.Unlock()

	now := ig.now()
	if seen, ok := ig.firstSeen[key]; ok && now.Sub(seen) < ig.retention {
		return domain.GuardResult{
			Allowed: false,
			Reason:  "duplicate mutation: this Idempotency-Key was already processed",
			Guard:   "idempotency",
		}
	}

	ig.firstSeen[key] = now
	ig.expire(now)
	return domain.GuardResult{Allowed: true}
}

// Remove releases a key so the client can retry after a failed mutation.
func (ig *IdempotencyGuard) Remove(key string) {
	ig.mu.Lock()
	defer ig.mu.Unlock()
	delete(ig.firstSeen, key)
}

func (ig *IdempotencyGuard) expire(now time.Time) {
	for key, seen := range ig.firstSeen {
		if now.Sub(seen) >= ig.retention {
			delete(ig.firstSeen, key)
		}
	}
}
