// health_handler.go -- Health check handler for GET /health.
package auth

import (
	"errors"
	"net/http"

	"github.com/MGallo-Code/tether/internal/store"
)

// CheckHealth handles GET /health -- pings the pending store and the audit database.
// Returns 200 if every configured dependency is healthy, 503 otherwise.
func (h *AuthHandler) CheckHealth(w http.ResponseWriter, r *http.Request) {
	storeStatus := "ok"
	postgresStatus := "ok"

	if err := h.PS.CheckHealth(r.Context()); err != nil {
		logError(r, "session store health check failed", "error", err)
		storeStatus = "error"
	}
	if err := h.AL.CheckHealth(r.Context()); err != nil {
		if errors.Is(err, store.ErrAuditDisabled) {
			postgresStatus = "disabled"
		} else {
			logError(r, "postgres health check failed", "error", err)
			postgresStatus = "error"
		}
	}

	status := http.StatusOK
	if storeStatus == "error" || postgresStatus == "error" {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, struct {
		Store    string `json:"store"`
		Postgres string `json:"postgres"`
	}{storeStatus, postgresStatus})
}
