package guard

import (
	"context"
	"time"

	"github.com/trustplane/platform/internal/domain"
)

const (
	MaxAttempts   = 5
	LockoutWindow = 15 * time.Minute
)

// FailedLoginSource reads recent failed-login rows. The audit subsystem is
// the single source of truth for login failures; the lockout guard only
// queries it.
type FailedLoginSource interface {
	FailedLogins(ctx context.Context, username, ip string, since time.Time) ([]domain.FailedLogin, error)
}

// Lockout blocks logins for accounts with too many recent failures.
type Lockout struct {
	source      FailedLoginSource
	maxAttempts int
	window      time.Duration
}

// NewLockout builds a lockout guard. Zero maxAttempts or window fall back to
// the package defaults.
func NewLockout(source FailedLoginSource, maxAttempts int, window time.Duration) *Lockout {
	if maxAttempts <= 0 {
		maxAttempts = MaxAttempts
	}
	if window <= 0 {
		window = LockoutWindow
	}
	return &Lockout{source: source, maxAttempts: maxAttempts, window: window}
}

// Check returns ErrAccountLocked when the username has maxAttempts or more
// failed logins inside the window. A source read error fails open so an audit
// store outage cannot block every login.
func (l *Lockout) Check(ctx context.Context, username string) error {
	attempts, err := l.source.FailedLogins(ctx, username, "", time.Now().UTC().Add(-l.window))
	if err != nil {
		return nil
	}
	if len(attempts) >= l.maxAttempts {
		return domain.ErrAccountLocked("too many failed login attempts, try again later")
	}
	return nil
}
