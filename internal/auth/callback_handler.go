// callback_handler.go -- GET /auth/callback: the provider sends the browser back here.
package auth

import "net/http"

// Callback handles GET /auth/callback for both OAuth 2.0 (?code&state, ?error&state)
// and OAuth 1.0a (?oauth_token&oauth_verifier, ?denied). The outcome is delivered over
// the transport chosen at start.
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cb := Callback{
		Code:          q.Get("code"),
		State:         q.Get("state"),
		OAuthToken:    q.Get("oauth_token"),
		OAuthVerifier: q.Get("oauth_verifier"),
		Error:         q.Get("error"),
		Denied:        q.Get("denied"),
	}

	sess, profile, err := h.Resolve(r, cb)
	h.finish(w, r, sess, profile, err)
}
