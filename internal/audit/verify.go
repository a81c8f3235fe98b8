package audit

import (
	"context"
	"fmt"

	"github.com/trustplane/platform/internal/domain"
)

// Violation issues.
const (
	IssueHashMismatch = "hash mismatch"
	IssueChainBroken  = "chain broken"
	IssueBadSignature = "bad signature"
)

// Violation localizes tampering to a single entry.
type Violation struct {
	EventID string `json:"event_id"`
	Issue   string `json:"issue"`
	Detail  string `json:"detail,omitempty"`
}

// Report is the outcome of a chain verification.
type Report struct {
	Valid          bool        `json:"valid"`
	EntriesChecked int         `json:"entries_checked"`
	Violations     []Violation `json:"violations"`
}

// VerifyChain replays entries in insertion order, recomputing each hash and
// checking chain linkage and signature. It returns every violation found so
// an operator can localize tampering, not just a boolean. When eventID is
// non-empty, the report covers that entry only (its hash, signature, and
// linkage to its predecessor).
//
// A failed verification does not block live traffic: the detection is logged
// as a new forward-dated entry — history is never rewritten — and surfaced as
// a critical operator alert.
func (l *Ledger) VerifyChain(ctx context.Context, eventID string) (*Report, error) {
	entries, err := l.store.ListAsc(ctx)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	var all []Violation
	expectedPrev := GenesisHash()
	found := eventID == ""

	for i := range entries {
		entry := &entries[i]
		if eventID != "" && entry.EventID == eventID {
			found = true
		}

		if computed := entryHash(entry); computed != entry.CurrentHash {
			all = append(all, Violation{
				EventID: entry.EventID,
				Issue:   IssueHashMismatch,
				Detail:  fmt.Sprintf("calculated %s, stored %s", computed, entry.CurrentHash),
			})
		}
		if entry.PreviousHash != expectedPrev {
			all = append(all, Violation{
				EventID: entry.EventID,
				Issue:   IssueChainBroken,
				Detail:  fmt.Sprintf("expected previous %s, stored %s", expectedPrev, entry.PreviousHash),
			})
		}
		if l.sign(entry.CurrentHash, entry.PreviousHash) != entry.Signature {
			all = append(all, Violation{
				EventID: entry.EventID,
				Issue:   IssueBadSignature,
			})
		}

		// The chain continues from the stored hash: one corrupted entry
		// produces one localized violation, not a cascade.
		expectedPrev = entry.CurrentHash
	}

	if eventID != "" && !found {
		return nil, domain.ErrNotFound("audit entry", eventID)
	}

	report := &Report{EntriesChecked: len(entries), Violations: all}
	if eventID != "" {
		report.EntriesChecked = 1
		report.Violations = nil
		for _, v := range all {
			if v.EventID == eventID {
				report.Violations = append(report.Violations, v)
			}
		}
	}
	report.Valid = len(report.Violations) == 0

	if !report.Valid {
		l.logger.Error("audit chain integrity violation detected",
			"violations", len(report.Violations),
			"entries_checked", report.EntriesChecked,
		)
		if _, err := l.LogEvent(ctx, Event{
			Type:   domain.EventIntegrityViolation,
			Actor:  "system",
			Action: "Audit chain verification failed",
			Status: domain.StatusFailure,
			Metadata: map[string]any{
				"violations":      report.Violations,
				"entries_checked": report.EntriesChecked,
			},
		}); err != nil {
			return report, err
		}
	}

	return report, nil
}
