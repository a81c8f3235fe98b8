package guard

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/platform/internal/domain"
)

type fakeFailedLogins struct {
	rows []domain.FailedLogin
	err  error
}

func (f *fakeFailedLogins) FailedLogins(_ context.Context, username, _ string, _ time.Time) ([]domain.FailedLogin, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.FailedLogin
	for _, r := range f.rows {
		if r.Username == username {
			out = append(out, r)
		}
	}
	return out, nil
}

func failedRows(username string, n int) []domain.FailedLogin {
	rows := make([]domain.FailedLogin, n)
	for i := range rows {
		rows[i] = domain.FailedLogin{Username: username, IPAddress: "203.0.113.9", Reason: "bad password"}
	}
	return rows
}

func TestLockout_UnderThresholdAllows(t *testing.T) {
	lk := NewLockout(&fakeFailedLogins{rows: failedRows("alice", 4)}, 5, 15*time.Minute)
	assert.NoError(t, lk.Check(context.Background(), "alice"))
}

func TestLockout_AtThresholdLocks(t *testing.T) {
	lk := NewLockout(&fakeFailedLogins{rows: failedRows("alice", 5)}, 5, 15*time.Minute)

	err := lk.Check(context.Background(), "alice")
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "ACCOUNT_LOCKED", appErr.Code)
}

func TestLockout_OtherUserUnaffected(t *testing.T) {
	lk := NewLockout(&fakeFailedLogins{rows: failedRows("alice", 10)}, 5, 15*time.Minute)
	assert.NoError(t, lk.Check(context.Background(), "bob"))
}

func TestLockout_SourceErrorFailsOpen(t *testing.T) {
	lk := NewLockout(&fakeFailedLogins{err: errors.New("store down")}, 5, 15*time.Minute)
	assert.NoError(t, lk.Check(context.Background(), "alice"))
}

func TestRateLimiter_AllowsUnderLimit(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		result := rl.Check(ctx, "203.0.113.9")
		assert.True(t, result.Allowed, "request %d should be allowed", i+1)
	}
}

func TestRateLimiter_BlocksOverLimit(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	ctx := context.Background()

	rl.Check(ctx, "203.0.113.9")
	rl.Check(ctx, "203.0.113.9")
	result := rl.Check(ctx, "203.0.113.9")

	assert.False(t, result.Allowed)
	assert.Equal(t, "rate_limiter", result.Guard)
}

func TestRateLimiter_SeparateKeys(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	ctx := context.Background()

	r1 := rl.Check(ctx, "10.0.0.1")
	r2 := rl.Check(ctx, "10.0.0.2")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestRateLimiter_WindowSlides(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	clock := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return clock }
	ctx := context.Background()

	require.True(t, rl.Check(ctx, "203.0.113.9").Allowed)
	assert.False(t, rl.Check(ctx, "203.0.113.9").Allowed)

	// Once the window passes, the client is forgotten entirely.
	clock = clock.Add(61 * time.Second)
	assert.True(t, rl.Check(ctx, "203.0.113.9").Allowed)
}

func TestCircuitBreaker_ClosedByDefault(t *testing.T) {
	cb := NewCircuitBreaker(3, 5*time.Second)
	ctx := context.Background()

	result := cb.Check(ctx, "audit-mirror")
	assert.True(t, result.Allowed)
}

func TestCircuitBreaker_OpensOnThreshold(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "audit-mirror")
	cb.RecordFailure("audit-mirror")
	cb.RecordFailure("audit-mirror")

	result := cb.Check(ctx, "audit-mirror")
	assert.False(t, result.Allowed)
	assert.Equal(t, "circuit_breaker", result.Guard)
}

func TestCircuitBreaker_SuccessResets(t *testing.T) {
	cb := NewCircuitBreaker(2, 5*time.Second)
	ctx := context.Background()

	cb.Check(ctx, "audit-mirror")
	cb.RecordFailure("audit-mirror")
	cb.RecordSuccess("audit-mirror")

	result := cb.Check(ctx, "audit-mirror")
	assert.True(t, result.Allowed)
}

func TestIdempotencyGuard_AllowsFirst(t *testing.T) {
	ig := NewIdempotencyGuard()
	ctx := context.Background()

	result := ig.Check(ctx, "req-123")
	assert.True(t, result.Allowed)
}

func TestIdempotencyGuard_BlocksDuplicate(t *testing.T) {
	ig := NewIdempotencyGuard()
	ctx := context.Background()

	ig.Check(ctx, "req-123")
	result := ig.Check(ctx, "req-123")

	assert.False(t, result.Allowed)
	assert.Equal(t, "idempotency", result.Guard)
}

func TestIdempotencyGuard_EmptyKeyAllowed(t *testing.T) {
	ig := NewIdempotencyGuard()
	ctx := context.Background()

	r1 := ig.Check(ctx, "")
	r2 := ig.Check(ctx, "")

	assert.True(t, r1.Allowed)
	assert.True(t, r2.Allowed)
}

func TestIdempotencyGuard_RemoveAllowsRetry(t *testing.T) {
	ig := NewIdempotencyGuard()
	ctx := context.Background()

	ig.Check(ctx, "req-456")
	ig.Remove("req-456")

	result := ig.Check(ctx, "req-456")
	require.True(t, result.Allowed)
}

func TestIdempotencyGuard_KeysExpire(t *testing.T) {
	ig := NewIdempotencyGuard()
	clock := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	ig.now = func() time.Time { return clock }
	ctx := context.Background()

	require.True(t, ig.Check(ctx, "req-123").Allowed)
	assert.False(t, ig.Check(ctx, "req-123").Allowed)

	clock = clock.Add(25 * time.Hour)
	assert.True(t, ig.Check(ctx, "req-123").Allowed)
}
