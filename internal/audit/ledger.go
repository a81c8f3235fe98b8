// Package audit implements the tamper-evident ledger: an append-only,
// hash-chained, HMAC-signed record of every security-relevant action.
package audit

import (
	"context"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/trustplane/platform/internal/domain"
)

// genesisSeed anchors the first entry of every chain.
const genesisSeed = "TRUSTPLANE_GENESIS_BLOCK"

// GenesisHash returns the previous_hash value of the first chain entry.
func GenesisHash() string {
	sum := sha256.Sum256([]byte(genesisSeed))
	return hex.EncodeToString(sum[:])
}

// Store is the durable append-only storage behind the ledger. Appends must be
// crash-consistent single-row writes; ListAsc must return entries in
// insertion order.
type Store interface {
	Append(ctx context.Context, entry *domain.AuditEntry) error
	LastHash(ctx context.Context) (string, error) // "" when the log is empty
	ListAsc(ctx context.Context) ([]domain.AuditEntry, error)
	Search(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error)
	InsertFailedLogin(ctx context.Context, fl *domain.FailedLogin) error
	FailedLogins(ctx context.Context, username, ip string, since time.Time) ([]domain.FailedLogin, error)
}

// Mirror is the secondary append-only transport entries are copied to for
// defense in depth. Mirror failures are logged, never fatal.
type Mirror interface {
	Publish(ctx context.Context, entry *domain.AuditEntry) error
}

// Event is the caller-facing input to LogEvent.
type Event struct {
	Type         domain.EventType
	Actor        string
	Action       string
	Status       string
	ActorIP      string
	ResourceType string
	ResourceID   string
	Details      string
	Metadata     map[string]any
}

// Ledger appends hash-chained entries to a Store. The mutex around the
// last-hash pointer is the single serialization point of the whole subsystem:
// two concurrent appends must never observe the same last hash, which would
// fork the chain.
type Ledger struct {
	store  Store
	mirror Mirror
	key    []byte
	logger *slog.Logger

	mu       sync.Mutex
	lastHash string
}

// NewLedger opens the ledger over a store, loading the chain head. The
// signing key must already be validated by configuration.
func NewLedger(ctx context.Context, store Store, signingKey []byte, mirror Mirror, logger *slog.Logger) (*Ledger, error) {
	last, err := store.LastHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("load chain head: %w", err)
	}
	if last == "" {
		last = GenesisHash()
	}
	return &Ledger{
		store:  store,
		mirror: mirror,
		key:    signingKey,
		logger: logger,
		lastHash: last,
	}, nil
}

// canonicalEntry is the hash input. Fields are declared in alphabetical key
// order and are all strings, so json.Marshal is byte-deterministic.
type canonicalEntry struct {
	Action       string `json:"action"`
	Actor        string `json:"actor"`
	ActorIP      string `json:"actor_ip"`
	Details      string `json:"details"`
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	Metadata     string `json:"metadata"`
	ResourceID   string `json:"resource_id"`
	ResourceType string `json:"resource_type"`
	Status       string `json:"status"`
	Timestamp    string `json:"timestamp"`
}

func canonicalOf(e *domain.AuditEntry) canonicalEntry {
	return canonicalEntry{
		Action:       e.Action,
		Actor:        e.Actor,
		ActorIP:      e.ActorIP,
		Details:      e.Details,
		EventID:      e.EventID,
		EventType:    string(e.EventType),
		Metadata:     e.Metadata,
		ResourceID:   e.ResourceID,
		ResourceType: e.ResourceType,
		Status:       e.Status,
		Timestamp:    e.Timestamp,
	}
}

// entryHash computes SHA-256 over the canonical serialization, excluding
// hash and signature fields.
func entryHash(e *domain.AuditEntry) string {
	body, _ := json.Marshal(canonicalOf(e))
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

func (l *Ledger) sign(currentHash, previousHash string) string {
	mac := hmac.New(sha256.New, l.key)
	mac.Write([]byte(currentHash + "|" + previousHash))
	return hex.EncodeToString(mac.Sum(nil))
}

// newEventID builds "AUD-<timestamp>-<random>". Uniqueness is probabilistic;
// the store's unique index turns a collision into an append failure instead
// of a silent duplicate.
func newEventID(now time.Time) string {
	suffix := make([]byte, 4)
	_, _ = rand.Read(suffix)
	return fmt.Sprintf("AUD-%s%06d-%X", now.UTC().Format("20060102150405"), now.Nanosecond()/1000, suffix)
}

// LogEvent appends one entry and returns its event id. A failed durable
// append propagates as ErrAuditWriteFailure — the ledger never fails silently
// and never retries. The in-memory chain head moves only after the durable
// write succeeds.
func (l *Ledger) LogEvent(ctx context.Context, ev Event) (string, error) {
	if ev.Status == "" {
		ev.Status = domain.StatusSuccess
	}

	now := time.Now().UTC()
	metadata := ""
	if ev.Metadata != nil {
		// Map keys are sorted by json.Marshal, keeping metadata canonical.
		raw, err := json.Marshal(ev.Metadata)
		if err != nil {
			return "", domain.ErrValidation(fmt.Sprintf("metadata not serializable: %v", err))
		}
		metadata = string(raw)
	}

	entry := &domain.AuditEntry{
		EventID:      newEventID(now),
		Timestamp:    now.Format(domain.AuditTimestampLayout),
		EventType:    ev.Type,
		Actor:        ev.Actor,
		ActorIP:      ev.ActorIP,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		Action:       ev.Action,
		Status:       ev.Status,
		Details:      ev.Details,
		Metadata:     metadata,
	}
	entry.CurrentHash = entryHash(entry)

	if err := l.append(ctx, entry); err != nil {
		return "", err
	}

	if l.mirror != nil {
		if err := l.mirror.Publish(ctx, entry); err != nil {
			l.logger.Error("audit mirror publish failed", "event_id", entry.EventID, "error", err)
		}
	}

	return entry.EventID, nil
}

// append links the entry to the chain head and writes it, all under the
// writer lock.
func (l *Ledger) append(ctx context.Context, entry *domain.AuditEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.PreviousHash = l.lastHash
	entry.Signature = l.sign(entry.CurrentHash, entry.PreviousHash)

	if err := l.store.Append(ctx, entry); err != nil {
		return domain.ErrAuditWriteFailure(err)
	}
	l.lastHash = entry.CurrentHash
	return nil
}

// LogFailedLogin stores a structured failed-login row for lockout policy and
// chains a LOGIN_FAILED entry.
func (l *Ledger) LogFailedLogin(ctx context.Context, username, ip, reason, userAgent string) error {
	fl := &domain.FailedLogin{
		Username:  username,
		IPAddress: ip,
		Reason:    reason,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
	if err := l.store.InsertFailedLogin(ctx, fl); err != nil {
		return domain.ErrAuditWriteFailure(err)
	}

	_, err := l.LogEvent(ctx, Event{
		Type:     domain.EventLoginFailed,
		Actor:    username,
		ActorIP:  ip,
		Action:   fmt.Sprintf("Failed login attempt: %s", reason),
		Status:   domain.StatusFailure,
		Metadata: map[string]any{"user_agent": userAgent},
	})
	return err
}

// FailedLogins returns structured failed-login rows for the given window.
// Empty username or ip matches any.
func (l *Ledger) FailedLogins(ctx context.Context, username, ip string, since time.Time) ([]domain.FailedLogin, error) {
	return l.store.FailedLogins(ctx, username, ip, since)
}

// Search queries the ledger, newest first.
func (l *Ledger) Search(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return l.store.Search(ctx, filter)
}
