package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/platform/internal/domain"
)

func TestVerifyChain_UntouchedLogHasNoViolations(t *testing.T) {
	ledger, _ := newTestLedger(t)
	logN(t, ledger, 10)

	report, err := ledger.VerifyChain(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 10, report.EntriesChecked)
	assert.Empty(t, report.Violations)
}

func TestVerifyChain_EmptyLogIsValid(t *testing.T) {
	ledger, _ := newTestLedger(t)

	report, err := ledger.VerifyChain(context.Background(), "")
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 0, report.EntriesChecked)
}

func TestVerifyChain_CorruptedFieldIsLocalized(t *testing.T) {
	ledger, store := newTestLedger(t)
	logN(t, ledger, 8)

	// Corrupt entry #5's action field directly in storage.
	var tampered string
	store.corrupt(4, func(e *domain.AuditEntry) {
		e.Action = "something else entirely"
		tampered = e.EventID
	})

	report, err := ledger.VerifyChain(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Violations)
	for _, v := range report.Violations {
		assert.Equal(t, tampered, v.EventID)
	}
	assert.Equal(t, IssueHashMismatch, report.Violations[0].Issue)
}

func TestVerifyChain_RewrittenHashBreaksLinkAndSignature(t *testing.T) {
	ledger, store := newTestLedger(t)
	logN(t, ledger, 4)

	// An attacker who recomputes current_hash after editing a field still
	// breaks the next entry's linkage and their own signature.
	var tampered string
	store.corrupt(1, func(e *domain.AuditEntry) {
		e.Details = "rewritten"
		e.CurrentHash = entryHash(e)
		tampered = e.EventID
	})

	report, err := ledger.VerifyChain(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.Valid)

	issues := map[string][]string{}
	for _, v := range report.Violations {
		issues[v.Issue] = append(issues[v.Issue], v.EventID)
	}
	assert.Contains(t, issues[IssueBadSignature], tampered)
	assert.NotEmpty(t, issues[IssueChainBroken])
}

func TestVerifyChain_SingleEntryMode(t *testing.T) {
	ledger, store := newTestLedger(t)
	logN(t, ledger, 6)

	entries, _ := store.ListAsc(context.Background())
	clean := entries[2].EventID

	var tampered string
	store.corrupt(4, func(e *domain.AuditEntry) {
		e.Status = domain.StatusFailure
		tampered = e.EventID
	})

	// The clean entry verifies even though another entry is corrupt.
	report, err := ledger.VerifyChain(context.Background(), clean)
	require.NoError(t, err)
	assert.True(t, report.Valid)
	assert.Equal(t, 1, report.EntriesChecked)

	report, err = ledger.VerifyChain(context.Background(), tampered)
	require.NoError(t, err)
	assert.False(t, report.Valid)
	require.NotEmpty(t, report.Violations)
	assert.Equal(t, tampered, report.Violations[0].EventID)
}

func TestVerifyChain_UnknownEventID(t *testing.T) {
	ledger, _ := newTestLedger(t)
	logN(t, ledger, 2)

	_, err := ledger.VerifyChain(context.Background(), "AUD-doesnotexist")
	require.Error(t, err)
	var appErr *domain.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "NOT_FOUND", appErr.Code)
}

func TestVerifyChain_DetectionIsLoggedForward(t *testing.T) {
	ledger, store := newTestLedger(t)
	logN(t, ledger, 3)

	store.corrupt(0, func(e *domain.AuditEntry) { e.Actor = "rewritten" })

	report, err := ledger.VerifyChain(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, report.Valid)

	// History is never rewritten: the detection appends a new entry.
	entries, _ := store.ListAsc(context.Background())
	require.Len(t, entries, 4)
	last := entries[len(entries)-1]
	assert.Equal(t, domain.EventIntegrityViolation, last.EventType)
	assert.Equal(t, entries[2].CurrentHash, last.PreviousHash)
}
