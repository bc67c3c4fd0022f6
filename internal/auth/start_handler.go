// start_handler.go -- POST/GET /auth/start: create a pending session and hand out the provider URL.
package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// maxBodyBytes caps JSON request bodies on /auth/*.
const maxBodyBytes = 4 << 10

// StartAuth handles POST /auth/start.
// Returns 200 {authUrl, transport} and sets the browser binding cookie;
// 400/404 on bad input; 502/503 when the provider or store fails.
func (h *AuthHandler) StartAuth(w http.ResponseWriter, r *http.Request) {
	var req StartRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logWarn(r, "failed to decode start input", "error", err)
		writeError(w, r, invalidRequest("error decoding request body"))
		return
	}

	res, err := h.Begin(r, req)
	if err != nil {
		h.recordFailure(r, nil, err)
		writeError(w, r, err)
		return
	}
	setBindingCookie(w, res.Binding, int(h.SessionTTL.Seconds()))
	writeJSON(w, http.StatusOK, res)
}

// StartRedirect handles GET /auth/start for full-page flows: same inputs as query params, 302 to the provider.
// scope may repeat or be space separated.
func (h *AuthHandler) StartRedirect(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := StartRequest{
		Provider:    q.Get("provider"),
		SubjectHint: q.Get("subjectHint"),
		Transport:   q.Get("transport"),
		ReturnPath:  q.Get("returnPath"),
	}
	for _, s := range q["scope"] {
		req.Scopes = append(req.Scopes, strings.Fields(s)...)
	}

	res, err := h.Begin(r, req)
	if err != nil {
		h.recordFailure(r, nil, err)
		writeError(w, r, err)
		return
	}
	setBindingCookie(w, res.Binding, int(h.SessionTTL.Seconds()))
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, res.AuthURL, http.StatusFound)
}
