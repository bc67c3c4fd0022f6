// complete_handler.go -- POST /auth/complete: direct completion by the frontend.
package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
)

// completeInput accepts all three completion shapes:
// {code, state}, {code, verifier, redirectUri} and {oauth_token, oauth_verifier}.
type completeInput struct {
	Provider      string `json:"provider"`
	Code          string `json:"code"`
	State         string `json:"state"`
	Verifier      string `json:"verifier"`
	RedirectURI   string `json:"redirectUri"`
	OAuthToken    string `json:"oauth_token"`
	OAuthVerifier string `json:"oauth_verifier"`
	Error         string `json:"error"`
}

// Complete handles POST /auth/complete. Always answers JSON, whatever transport the session chose.
// Returns 200 {type, profile, subjectHint}; error statuses carry {type, error}.
func (h *AuthHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var in completeInput
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		if errors.Is(err, io.EOF) {
			err = invalidRequest("missing request body")
		} else {
			logWarn(r, "failed to decode complete input", "error", err)
			err = invalidRequest("error decoding request body")
		}
		h.recordFailure(r, nil, err)
		setRetryAfter(w, err)
		writeJSON(w, classify(err).status, newMessage(nil, nil, err))
		return
	}

	sess, profile, err := h.Resolve(r, Callback{
		Code:          in.Code,
		State:         in.State,
		Provider:      in.Provider,
		Verifier:      in.Verifier,
		RedirectURI:   in.RedirectURI,
		OAuthToken:    in.OAuthToken,
		OAuthVerifier: in.OAuthVerifier,
		Error:         in.Error,
	})
	releaseBinding(w, r, sess)
	if err != nil {
		f := classify(err)
		logAt(r, f.level, "auth completion failed", "reason", f.reason, "error", err)
		h.recordFailure(r, sess, err)
		setRetryAfter(w, err)
		writeJSON(w, f.status, newMessage(sess, nil, err))
		return
	}

	h.recordSuccess(r, sess, profile)
	writeJSON(w, http.StatusOK, newMessage(sess, profile, nil))
}
