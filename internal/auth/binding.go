// binding.go -- Ties a pending session to the browser that started it.
//
// Begin hands out a random nonce in the __Host-auth-binding cookie and stores only its hash
// on the session. A callback or completion must present the same cookie, so a callback URL
// started by someone else and replayed in another browser is rejected.
package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/MGallo-Code/tether/internal/oauth"
	"github.com/MGallo-Code/tether/internal/store"
)

// bindingCookie carries the browser nonce between /auth/start and the callback.
const bindingCookie = "__Host-auth-binding"

// newBinding returns a fresh browser nonce and the hash to store on the session.
func newBinding() (nonce, hash string, err error) {
	nonce, err = oauth.GenerateState(oauth.StateLength)
	if err != nil {
		return "", "", err
	}
	return nonce, hashBinding(nonce), nil
}

func hashBinding(nonce string) string {
	sum := sha256.Sum256([]byte(nonce))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// checkBinding compares the request's binding cookie against sess in constant time.
// A missing cookie, or a session stored without a hash, never matches.
func checkBinding(r *http.Request, sess *store.AuthSession) error {
	c, err := r.Cookie(bindingCookie)
	if err != nil || c.Value == "" {
		return fmt.Errorf("%w: missing browser binding", ErrInvalidOrExpiredSession)
	}
	if sess.BindingHash == "" ||
		subtle.ConstantTimeCompare([]byte(hashBinding(c.Value)), []byte(sess.BindingHash)) != 1 {
		return fmt.Errorf("%w: browser binding mismatch", ErrInvalidOrExpiredSession)
	}
	return nil
}

// setBindingCookie stores the nonce in a short-lived HttpOnly cookie.
func setBindingCookie(w http.ResponseWriter, nonce string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     bindingCookie,
		Value:    nonce,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   maxAge,
	})
}

// clearBindingCookie expires the binding cookie immediately.
func clearBindingCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     bindingCookie,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
}

// releaseBinding clears the cookie once it has been spent on sess.
// A browser whose cookie did not match keeps it, so its own pending flow survives.
func releaseBinding(w http.ResponseWriter, r *http.Request, sess *store.AuthSession) {
	if sess != nil && checkBinding(r, sess) == nil {
		clearBindingCookie(w)
	}
}
