package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trustplane/platform/internal/audit"
	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/guard"
	"github.com/trustplane/platform/internal/policy"
)

type fakeVerifier struct {
	assessment *policy.Assessment
	err        error

	gotSessionID string
	gotUserID    string
	gotAction    string
	gotResource  string
	gotContext   domain.AccessContext
}

func (f *fakeVerifier) VerifyAccess(_ context.Context, sessionID, userID, action, resource string, acc domain.AccessContext) (*policy.Assessment, error) {
	f.gotSessionID = sessionID
	f.gotUserID = userID
	f.gotAction = action
	f.gotResource = resource
	f.gotContext = acc
	if f.err != nil {
		return nil, f.err
	}
	return f.assessment, nil
}

func verifiedRequest(t *testing.T, verifier *fakeVerifier, mutate func(*http.Request)) (*httptest.ResponseRecorder, *policy.Assessment) {
	t.Helper()
	jwtMgr := auth.NewJWTManager("test-secret", time.Hour)
	token, err := jwtMgr.GenerateToken("u-42", "alice", auth.RoleAnalyst)
	require.NoError(t, err)

	var captured *policy.Assessment
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = AssessmentFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	h := auth.Authenticate(jwtMgr)(ContinuousVerification(verifier)(inner))

	r := httptest.NewRequest(http.MethodGet, "/api/incidents", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	r.Header.Set("X-Session-ID", "sess-1")
	r.RemoteAddr = "10.0.0.5:51234"
	if mutate != nil {
		mutate(r)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w, captured
}

func TestContinuousVerification_AllowsAndAnnotates(t *testing.T) {
	verifier := &fakeVerifier{assessment: &policy.Assessment{
		RiskScore:   15,
		RiskLevel:   policy.LevelTrusted,
		AllowAccess: true,
	}}

	w, captured := verifiedRequest(t, verifier, func(r *http.Request) {
		r.Header.Set("X-Client-City", "New York")
		r.Header.Set("X-Client-Country", "United States")
		r.Header.Set("X-Device-OS", "macOS")
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "15", w.Header().Get("X-Risk-Score"))
	assert.Equal(t, "TRUSTED", w.Header().Get("X-Risk-Level"))
	require.NotNil(t, captured)
	assert.Equal(t, 15, captured.RiskScore)

	assert.Equal(t, "sess-1", verifier.gotSessionID)
	assert.Equal(t, "u-42", verifier.gotUserID)
	assert.Equal(t, "view", verifier.gotAction)
	assert.Equal(t, "/api/incidents", verifier.gotResource)
	assert.Equal(t, "New York", verifier.gotContext.Location.City)
	assert.Equal(t, "macOS", verifier.gotContext.Device.OS)
	assert.Equal(t, "10.0.0.5", verifier.gotContext.IPAddress)
}

func TestContinuousVerification_DeniesWithRiskPayload(t *testing.T) {
	verifier := &fakeVerifier{assessment: &policy.Assessment{
		RiskScore:        85,
		RiskLevel:        policy.LevelCritical,
		AllowAccess:      false,
		RequiresMFA:      true,
		RequiresApproval: true,
		Recommendation:   "DENY ACCESS - Critical risk detected. Require admin approval and MFA.",
	}}

	w, captured := verifiedRequest(t, verifier, nil)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Nil(t, captured)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "access denied", body["error"])
	assert.Equal(t, float64(85), body["risk_score"])
	assert.Equal(t, "CRITICAL", body["risk_level"])
	assert.Equal(t, true, body["requires_mfa"])
	assert.Equal(t, true, body["requires_approval"])
}

func TestContinuousVerification_MissingSessionHeader(t *testing.T) {
	verifier := &fakeVerifier{assessment: &policy.Assessment{AllowAccess: true}}

	w, _ := verifiedRequest(t, verifier, func(r *http.Request) {
		r.Header.Del("X-Session-ID")
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, verifier.gotSessionID)
}

func TestContinuousVerification_InvalidSessionIs401(t *testing.T) {
	verifier := &fakeVerifier{err: domain.ErrSessionInvalid("sess-1")}

	w, _ := verifiedRequest(t, verifier, nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "SESSION_INVALID", body["code"])
}

func TestContinuousVerification_AuditOutageFailsClosed(t *testing.T) {
	verifier := &fakeVerifier{err: domain.ErrAuditWriteFailure(assert.AnError)}

	w, _ := verifiedRequest(t, verifier, nil)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "AUDIT_WRITE_FAILURE", body["code"])
}

func TestContinuousVerification_NoTokenRejected(t *testing.T) {
	verifier := &fakeVerifier{assessment: &policy.Assessment{AllowAccess: true}}

	w, _ := verifiedRequest(t, verifier, func(r *http.Request) {
		r.Header.Del("Authorization")
	})

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRespondError_MapsAppErrorStatus(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, domain.ErrNotFound("device", "abc"))

	assert.Equal(t, http.StatusNotFound, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "NOT_FOUND", body["code"])
}

func TestRespondError_UnknownErrorIs500(t *testing.T) {
	w := httptest.NewRecorder()
	RespondError(w, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRateLimit_Blocks(t *testing.T) {
	limiter := guard.NewRateLimiter(1, time.Minute)
	h := RateLimit(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.9:1000"

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r)
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	assert.Equal(t, http.StatusTooManyRequests, w2.Code)
}

func TestIdempotency_BlocksReplay(t *testing.T) {
	ig := guard.NewIdempotencyGuard()
	h := Idempotency(ig)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.Header.Set("Idempotency-Key", "k-1")

	w1 := httptest.NewRecorder()
	h.ServeHTTP(w1, r)
	assert.Equal(t, http.StatusOK, w1.Code)

	w2 := httptest.NewRecorder()
	h.ServeHTTP(w2, r)
	assert.Equal(t, http.StatusConflict, w2.Code)
}

func TestClientIP_PrefersForwardedFor(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "127.0.0.1:9999"
	r.Header.Set("X-Forwarded-For", "198.51.100.7, 10.0.0.1")

	assert.Equal(t, "198.51.100.7", ClientIP(r))
}

type fakeAuditLedger struct {
	entries []domain.AuditEntry
	report  *audit.Report

	ingested *domain.FailedLogin
}

func (f *fakeAuditLedger) Search(_ context.Context, _ domain.AuditFilter) ([]domain.AuditEntry, error) {
	return f.entries, nil
}
func (f *fakeAuditLedger) FailedLogins(_ context.Context, _, _ string, _ time.Time) ([]domain.FailedLogin, error) {
	return nil, nil
}
func (f *fakeAuditLedger) LogFailedLogin(_ context.Context, username, ip, reason, userAgent string) error {
	f.ingested = &domain.FailedLogin{Username: username, IPAddress: ip, Reason: reason, UserAgent: userAgent}
	return nil
}
func (f *fakeAuditLedger) VerifyChain(_ context.Context, _ string) (*audit.Report, error) {
	return f.report, nil
}

func TestAuditHandler_Search(t *testing.T) {
	h := NewAuditHandler(&fakeAuditLedger{entries: []domain.AuditEntry{
		{EventID: "AUD-1", EventType: domain.EventLoginSuccess},
	}})

	r := httptest.NewRequest(http.MethodGet, "/audit/events?event_type=LOGIN_SUCCESS", nil)
	w := httptest.NewRecorder()
	h.Search(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, float64(1), body["count"])
}

func TestAuditHandler_SearchRejectsBadTimestamp(t *testing.T) {
	h := NewAuditHandler(&fakeAuditLedger{})

	r := httptest.NewRequest(http.MethodGet, "/audit/events?start=yesterday", nil)
	w := httptest.NewRecorder()
	h.Search(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuditHandler_VerifyChain(t *testing.T) {
	h := NewAuditHandler(&fakeAuditLedger{report: &audit.Report{Valid: true, EntriesChecked: 12}})

	r := httptest.NewRequest(http.MethodPost, "/audit/verify", nil)
	w := httptest.NewRecorder()
	h.VerifyChain(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	var report audit.Report
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.True(t, report.Valid)
	assert.Equal(t, 12, report.EntriesChecked)
}

func TestAuditHandler_IngestFailedLogin(t *testing.T) {
	ledger := &fakeAuditLedger{}
	h := NewAuditHandler(ledger)

	body := strings.NewReader(`{"username":"mallory","ip_address":"203.0.113.9","reason":"Invalid credentials","user_agent":"curl/8.0"}`)
	r := httptest.NewRequest(http.MethodPost, "/audit/failed-logins", body)
	w := httptest.NewRecorder()
	h.IngestFailedLogin(w, r)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, ledger.ingested)
	assert.Equal(t, "mallory", ledger.ingested.Username)
	assert.Equal(t, "Invalid credentials", ledger.ingested.Reason)
}

func TestAuditHandler_IngestFailedLoginRequiresUsername(t *testing.T) {
	h := NewAuditHandler(&fakeAuditLedger{})

	r := httptest.NewRequest(http.MethodPost, "/audit/failed-logins", strings.NewReader(`{"reason":"x"}`))
	w := httptest.NewRecorder()
	h.IngestFailedLogin(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
