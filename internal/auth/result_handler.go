// result_handler.go -- GET /auth/result: one-shot pickup of a redirect-transport result.
package auth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/MGallo-Code/tether/internal/store"
)

// Result handles GET /auth/result. Reads the ticket cookie, returns the parked message
// and deletes it. 404 when no ticket or the result is gone; 503 when the store fails.
func (h *AuthHandler) Result(w http.ResponseWriter, r *http.Request) {
	c, err := r.Cookie(resultCookie)
	if err != nil || c.Value == "" || tooLong(c.Value) {
		NotFound(w)
		return
	}
	// The ticket is single use whatever happens next.
	clearResultCookie(w)

	payload, err := h.RS.TakeResult(r.Context(), c.Value)
	if err != nil {
		if errors.Is(err, store.ErrResultNotFound) {
			logDebug(r, "auth result not found")
			NotFound(w)
			return
		}
		writeError(w, r, fmt.Errorf("%w: reading result: %w", ErrSessionStoreUnavailable, err))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	w.Write(payload)
}
