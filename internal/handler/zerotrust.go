package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/trustplane/platform/internal/auth"
	"github.com/trustplane/platform/internal/domain"
	"github.com/trustplane/platform/internal/policy"
)

// AccessVerifier re-verifies one request against an existing session.
type AccessVerifier interface {
	VerifyAccess(ctx context.Context, sessionID, userID, action, resource string, acc domain.AccessContext) (*policy.Assessment, error)
}

const assessmentKey contextKeyType = "risk_assessment"

// AssessmentFromContext returns the decision envelope the verification
// middleware attached, or nil outside verified routes.
func AssessmentFromContext(ctx context.Context) *policy.Assessment {
	a, _ := ctx.Value(assessmentKey).(*policy.Assessment)
	return a
}

// ContinuousVerification scores every request against the caller's session.
// It must run after auth.Authenticate. A valid token is necessary but never
// sufficient: the session must exist, be active, and the live context must
// score under the deny threshold.
func ContinuousVerification(verifier AccessVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := auth.ClaimsFromContext(r.Context())
			if claims == nil {
				RespondError(w, domain.ErrUnauthorized("no auth context"))
				return
			}
			sessionID := r.Header.Get("X-Session-ID")
			if sessionID == "" {
				RespondError(w, domain.ErrUnauthorized("missing X-Session-ID header"))
				return
			}

			action := domain.ActionFromMethod(r.Method)
			resource := r.URL.Path
			acc := domain.AccessContext{
				Action:    action,
				Resource:  resource,
				Location:  locationFrom(r),
				Device:    deviceInfoFrom(r),
				UserAgent: r.UserAgent(),
				IPAddress: ClientIP(r),
			}

			assessment, err := verifier.VerifyAccess(r.Context(), sessionID, claims.Subject, action, resource, acc)
			if err != nil {
				RespondError(w, err)
				return
			}

			w.Header().Set("X-Risk-Score", strconv.Itoa(assessment.RiskScore))
			w.Header().Set("X-Risk-Level", string(assessment.RiskLevel))

			if !assessment.AllowAccess {
				RespondJSON(w, http.StatusForbidden, map[string]any{
					"error":             "access denied",
					"message":           "request risk exceeds the allowed threshold",
					"risk_score":        assessment.RiskScore,
					"risk_level":        assessment.RiskLevel,
					"recommendation":    assessment.Recommendation,
					"requires_mfa":      assessment.RequiresMFA,
					"requires_approval": assessment.RequiresApproval,
				})
				return
			}

			ctx := context.WithValue(r.Context(), assessmentKey, assessment)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// deviceInfoFrom reads the client-reported device headers. Missing headers
// are fine; the registry substitutes "Unknown".
func deviceInfoFrom(r *http.Request) domain.DeviceInfo {
	return domain.DeviceInfo{
		OS:               r.Header.Get("X-Device-OS"),
		Browser:          r.Header.Get("X-Device-Browser"),
		ScreenResolution: r.Header.Get("X-Device-Screen"),
		Timezone:         r.Header.Get("X-Device-Timezone"),
		Language:         r.Header.Get("Accept-Language"),
	}
}

// locationFrom reads the edge-supplied geolocation headers. Absent headers
// degrade to "Unknown" inside the scoring engine, never to an error.
func locationFrom(r *http.Request) domain.Location {
	return domain.Location{
		City:    r.Header.Get("X-Client-City"),
		Country: r.Header.Get("X-Client-Country"),
	}
}
