package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/trustplane/platform/internal/infra"
)

// HealthHandler reports liveness of both stores. The audit store being down
// means every decision will fail closed, so it degrades health too.
func HealthHandler(zeroTrust, auditStore *pgxpool.Pool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := map[string]string{"status": "healthy"}
		code := http.StatusOK

		if err := infra.HealthCheck(r.Context(), zeroTrust); err != nil {
			status["status"] = "unhealthy"
			status["zerotrust_store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
		if err := infra.HealthCheck(r.Context(), auditStore); err != nil {
			status["status"] = "unhealthy"
			status["audit_store"] = err.Error()
			code = http.StatusServiceUnavailable
		}

		w.WriteHeader(code)
		json.NewEncoder(w).Encode(status)
	}
}
