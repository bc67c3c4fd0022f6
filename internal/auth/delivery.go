// delivery.go -- Hands the flow outcome to the waiting frontend.
//
// popup:    HTML page that postMessages the result to window.opener, pinned to FrontendOrigin.
//           The result is also parked under a ticket; without an opener the page navigates
//           back to the frontend, which reads it from /auth/result.
// redirect: result parked under a random ticket, ticket in a cookie, 302 back to the frontend.
// direct:   JSON body.
package auth

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"

	"github.com/MGallo-Code/tether/internal/oauth"
	"github.com/MGallo-Code/tether/internal/store"
)

// Message types posted to the frontend.
const (
	MessageProfileResult = "PROFILE_RESULT"
	MessageProfileError  = "PROFILE_ERROR"
)

// resultCookie carries the redirect-transport ticket.
const resultCookie = "__Host-auth-result"

// Message is the cross-window / JSON result schema.
type Message struct {
	Type        string         `json:"type"`
	Profile     *oauth.Profile `json:"profile,omitempty"`
	SubjectHint string         `json:"subjectHint,omitempty"`
	Error       string         `json:"error,omitempty"`
}

// popupPage posts Message to the opener and closes. Without an opener it navigates to Fallback,
// or only shows Text when nothing was parked. html/template JS-escapes Message, Origin and Fallback.
var popupPage = template.Must(template.New("popup").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>Sign-in</title>
</head>
<body>
<p>{{.Text}}</p>
<script nonce="{{.Nonce}}">
(function () {
  var message = {{.Message}};
  var origin = {{.Origin}};
  var fallback = {{.Fallback}};
  if (window.opener && !window.opener.closed) {
    window.opener.postMessage(message, origin);
    window.close();
  } else if (fallback) {
    window.location.replace(fallback);
  }
})();
</script>
</body>
</html>
`))

type popupData struct {
	Nonce    string
	Message  Message
	Origin   string
	Fallback string
	Text     string
}

// newMessage builds the success or error message for a finished flow.
func newMessage(sess *store.AuthSession, profile *oauth.Profile, err error) Message {
	if err != nil {
		return Message{Type: MessageProfileError, Error: classify(err).message}
	}
	msg := Message{Type: MessageProfileResult, Profile: profile}
	if sess != nil {
		msg.SubjectHint = sess.SubjectHint
	}
	return msg
}

// finish records the outcome and delivers it over the session's transport.
// Without a session (unknown state) the default transport is used.
func (h *AuthHandler) finish(w http.ResponseWriter, r *http.Request, sess *store.AuthSession, profile *oauth.Profile, err error) {
	status := http.StatusOK
	if err != nil {
		f := classify(err)
		status = f.status
		logAt(r, f.level, "auth callback failed", "reason", f.reason, "error", err)
		h.recordFailure(r, sess, err)
		setRetryAfter(w, err)
	} else {
		h.recordSuccess(r, sess, profile)
	}
	releaseBinding(w, r, sess)

	transport, returnPath := h.DefaultTransport, "/"
	if sess != nil {
		transport = sess.Transport
		if sess.ReturnPath != "" {
			returnPath = sess.ReturnPath
		}
	}
	msg := newMessage(sess, profile, err)

	switch transport {
	case "popup":
		fallback := ""
		if err := h.parkResult(w, r, msg); err != nil {
			logWarn(r, "popup result not parked, no fallback without an opener", "error", err)
		} else {
			fallback = h.FrontendOrigin + returnPath
		}
		h.renderPopup(w, r, status, msg, fallback)
	case "redirect":
		h.redirectWithResult(w, r, returnPath, msg)
	default:
		writeJSON(w, status, msg)
	}
}

// renderPopup writes the postMessage page under a nonce-based CSP.
func (h *AuthHandler) renderPopup(w http.ResponseWriter, r *http.Request, status int, msg Message, fallback string) {
	nonce, err := newNonce()
	if err != nil {
		InternalServerError(w, r, err)
		return
	}

	text := "Signed in. You can close this window."
	if msg.Type == MessageProfileError {
		text = "Sign-in failed: " + msg.Error + ". You can close this window."
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Referrer-Policy", "no-referrer")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.Header().Set("Content-Security-Policy",
		"default-src 'none'; script-src 'nonce-"+nonce+"'; base-uri 'none'; form-action 'none'; frame-ancestors 'none'")
	w.WriteHeader(status)

	if err := popupPage.Execute(w, popupData{Nonce: nonce, Message: msg, Origin: h.FrontendOrigin, Fallback: fallback, Text: text}); err != nil {
		logError(r, "failed to render popup page", "error", err)
	}
}

// redirectWithResult parks msg under a fresh ticket and sends the browser back to the frontend.
func (h *AuthHandler) redirectWithResult(w http.ResponseWriter, r *http.Request, returnPath string, msg Message) {
	if err := h.parkResult(w, r, msg); err != nil {
		writeError(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, h.FrontendOrigin+returnPath, http.StatusFound)
}

// parkResult stores msg under a fresh ticket (retrying once) and sets the ticket cookie.
func (h *AuthHandler) parkResult(w http.ResponseWriter, r *http.Request, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	ticket, err := oauth.GenerateState(oauth.StateLength)
	if err != nil {
		return err
	}

	err = h.RS.PutResult(r.Context(), ticket, payload, h.ResultTTL)
	if err != nil {
		err = h.RS.PutResult(r.Context(), ticket, payload, h.ResultTTL)
	}
	if err != nil {
		return fmt.Errorf("%w: storing result: %w", ErrSessionStoreUnavailable, err)
	}

	setResultCookie(w, ticket, int(h.ResultTTL.Seconds()))
	return nil
}

// setRetryAfter copies a provider rate-limit hint onto the response.
func setRetryAfter(w http.ResponseWriter, err error) {
	var rl *oauth.RateLimitError
	if errors.As(err, &rl) && rl.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(int(rl.RetryAfter.Seconds())))
	}
}

// newNonce returns a URL-safe base64 CSP nonce from 16 random bytes.
func newNonce() (string, error) {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", fmt.Errorf("%w: %w", oauth.ErrEntropyUnavailable, err)
	}
	return base64.RawURLEncoding.EncodeToString(b[:]), nil
}

// setResultCookie writes the ticket cookie with HttpOnly, Secure, SameSite=Lax.
func setResultCookie(w http.ResponseWriter, ticket string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     resultCookie,
		Value:    ticket,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clearResultCookie expires the ticket cookie immediately.
func clearResultCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     resultCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}
