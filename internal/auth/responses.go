// responses.go -- Package-wide HTTP response helpers.
//
// Every error body is {"error": "<generic message>"}; details go to the log only.
package auth

import (
	"encoding/json"
	"net/http"
)

// writeJSON writes v with status. Auth responses are never cacheable.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError classifies err, logs it with request context and writes the generic JSON body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	f := classify(err)
	logAt(r, f.level, "auth request failed", "reason", f.reason, "status", f.status, "error", err)
	setRetryAfter(w, err)
	writeJSON(w, f.status, errorBody{Error: f.message})
}

type errorBody struct {
	Error string `json:"error"`
}

// NotFound returns a 404 JSON response.
func NotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
}

// InternalServerError logs the error and returns a generic 500 JSON response.
func InternalServerError(w http.ResponseWriter, r *http.Request, err error) {
	logError(r, "internal server error", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal server error"})
}
