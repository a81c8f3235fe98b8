package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionCache is the Redis-backed revocation index. It is advisory: a hit on
// the terminated tombstone short-circuits a denial, a miss always falls
// through to the zero-trust store.
type SessionCache struct {
	client *redis.Client
}

// NewSessionCache wraps a connected Redis client.
func NewSessionCache(client *redis.Client) *SessionCache {
	return &SessionCache{client: client}
}

func activeKey(sessionID string) string     { return "session:active:" + sessionID }
func terminatedKey(sessionID string) string { return "session:terminated:" + sessionID }

// MarkActive records a live session for the session's max age.
func (c *SessionCache) MarkActive(ctx context.Context, sessionID, userID string, ttl time.Duration) error {
	if err := c.client.Set(ctx, activeKey(sessionID), userID, ttl).Err(); err != nil {
		return fmt.Errorf("cache session: %w", err)
	}
	return nil
}

// MarkTerminated drops the active entry and leaves a tombstone so concurrent
// verifications see the termination before the store does.
func (c *SessionCache) MarkTerminated(ctx context.Context, sessionID string, ttl time.Duration) error {
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, activeKey(sessionID))
	pipe.Set(ctx, terminatedKey(sessionID), "1", ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("tombstone session: %w", err)
	}
	return nil
}

// IsTerminated reports whether a termination tombstone exists.
func (c *SessionCache) IsTerminated(ctx context.Context, sessionID string) (bool, error) {
	n, err := c.client.Exists(ctx, terminatedKey(sessionID)).Result()
	if err != nil {
		return false, fmt.Errorf("check tombstone: %w", err)
	}
	return n > 0, nil
}
