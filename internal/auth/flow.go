// flow.go -- Authorization initiator (Begin) and callback receiver (Resolve).
//
// Begin creates the pending session and the provider URL; Resolve validates the callback
// against the pending session, exchanges the grant and returns the normalized profile.
// Correlation is always checked before any outbound call.
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MGallo-Code/tether/internal/oauth"
	"github.com/MGallo-Code/tether/internal/store"
	"github.com/gofrs/uuid/v5"
)

// auditTimeout bounds a single audit insert; it runs detached from the request context.
const auditTimeout = 2 * time.Second

// StartRequest is the input to Begin. Empty fields take the handler defaults.
type StartRequest struct {
	Provider    string   `json:"provider"`
	SubjectHint string   `json:"subjectHint"`
	Scopes      []string `json:"scopes"`
	Transport   string   `json:"transport"`
	ReturnPath  string   `json:"returnPath"`
}

// StartResult is what the caller needs to send the user to the provider.
// Binding goes to the browser as a cookie, never in the body.
type StartResult struct {
	AuthURL   string `json:"authUrl"`
	Transport string `json:"transport"`
	Binding   string `json:"-"`
}

// Callback carries every parameter shape a provider (or the frontend, for direct completion) can send.
type Callback struct {
	Code  string
	State string

	// Client-held PKCE verifier (direct completion without a server session).
	Provider    string
	Verifier    string
	RedirectURI string

	OAuthToken    string
	OAuthVerifier string

	Error  string // OAuth 2.0 error=access_denied etc.
	Denied string // OAuth 1.0a denied=<request token>
}

// Begin validates req, stores a fresh pending session and returns the provider URL.
// The URL is only returned once the session is stored.
func (h *AuthHandler) Begin(r *http.Request, req StartRequest) (*StartResult, error) {
	ctx := r.Context()

	if req.Provider == "" {
		req.Provider = h.DefaultProvider
	}
	if req.Transport == "" {
		req.Transport = h.DefaultTransport
	}
	if req.ReturnPath == "" {
		req.ReturnPath = "/"
	}
	for _, msg := range []string{
		ValidateTransport(req.Transport),
		ValidateSubjectHint(req.SubjectHint),
		ValidateReturnPath(req.ReturnPath),
		ValidateScopes(req.Scopes),
	} {
		if msg != "" {
			return nil, invalidRequest(msg)
		}
	}

	provider, ok := h.Providers[req.Provider]
	if !ok {
		return nil, fmt.Errorf("%w: %.64q", ErrUnknownProvider, req.Provider)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("%w: session id: %w", oauth.ErrEntropyUnavailable, err)
	}
	binding, bindingHash, err := newBinding()
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	sess := &store.AuthSession{
		ID:          id,
		BindingHash: bindingHash,
		SubjectHint: req.SubjectHint,
		Provider:    provider.Name(),
		Transport:   req.Transport,
		ReturnPath:  req.ReturnPath,
		CreatedAt:   now,
		ExpiresAt:   now.Add(h.SessionTTL),
	}

	var key, authURL string
	switch p := provider.(type) {
	case oauth.CodeProvider:
		// State and verifier have different lengths, so they can never be equal.
		state, err := oauth.GenerateState(oauth.StateLength)
		if err != nil {
			return nil, err
		}
		verifier, err := oauth.GenerateVerifier(oauth.VerifierLength)
		if err != nil {
			return nil, err
		}
		scopes := req.Scopes
		if len(scopes) == 0 {
			scopes = p.DefaultScopes()
		}

		key = state
		sess.Flow = store.FlowPKCE
		sess.SecretMaterial = verifier
		sess.RedirectURI = p.RedirectURL()
		authURL = p.AuthCodeURL(state, oauth.DeriveChallenge(verifier), scopes)

	case oauth.TokenProvider:
		var token, secret string
		err := h.timed(p.Name(), "request_token", func() (err error) {
			token, secret, err = p.RequestToken(ctx)
			return err
		})
		if err != nil {
			return nil, &oauth.TokenExchangeError{ProviderError: "request token failed", Err: err}
		}
		if authURL, err = p.AuthorizeURL(token); err != nil {
			return nil, err
		}

		key = token
		sess.Flow = store.FlowOAuth1
		sess.SecretMaterial = secret

	default:
		return nil, fmt.Errorf("provider %q supports no known grant", provider.Name())
	}

	if err := h.putSession(ctx, key, sess); err != nil {
		return nil, err
	}

	h.MR.AuthStarted(sess.Provider, sess.Transport)
	h.audit(r, sessionEvent(sess, store.EventStarted))
	logInfo(r, "auth flow started", "session_id", sess.ID, "provider", sess.Provider, "flow", sess.Flow, "transport", sess.Transport)

	return &StartResult{AuthURL: authURL, Transport: sess.Transport, Binding: binding}, nil
}

// Resolve consumes the pending session matching cb and returns the normalized profile.
// The session is returned whenever one was found, even on error, so delivery can honour its transport.
// A session is only honoured for the browser holding its binding cookie; the check runs
// before any provider call and the session stays consumed either way.
func (h *AuthHandler) Resolve(r *http.Request, cb Callback) (*store.AuthSession, *oauth.Profile, error) {
	ctx := r.Context()

	if tooLong(cb.Code, cb.State, cb.Provider, cb.Verifier, cb.RedirectURI, cb.OAuthToken, cb.OAuthVerifier, cb.Error, cb.Denied) {
		return nil, nil, invalidRequest("parameter too long")
	}

	switch {
	case cb.Error != "" || cb.Denied != "":
		key, reason := cb.State, cb.Error
		if cb.Denied != "" {
			key, reason = cb.Denied, "denied"
		}
		var sess *store.AuthSession
		if key != "" {
			// Purge so the abandoned session can't be replayed; a miss changes nothing.
			sess, _ = h.takeSession(ctx, key)
		}
		return sess, nil, fmt.Errorf("%w: %s", ErrProviderDenied, reason)

	case cb.Code != "" && cb.Verifier != "":
		return h.resolveClientVerifier(r, cb)

	case cb.Code != "":
		if cb.State == "" {
			return nil, nil, invalidRequest("missing state")
		}
		sess, err := h.takeSession(ctx, cb.State)
		if err != nil {
			return nil, nil, err
		}
		if err := checkBinding(r, sess); err != nil {
			return sess, nil, err
		}
		p, ok := h.Providers[sess.Provider].(oauth.CodeProvider)
		if !ok || sess.Flow != store.FlowPKCE {
			return sess, nil, fmt.Errorf("%w: %s session answered by code callback", ErrInvalidOrExpiredSession, sess.Flow)
		}
		profile, err := h.exchangeCode(ctx, p, cb.Code, sess.SecretMaterial, sess.RedirectURI)
		return sess, profile, err

	case cb.OAuthToken != "":
		if cb.OAuthVerifier == "" {
			return nil, nil, invalidRequest("missing oauth_verifier")
		}
		sess, err := h.takeSession(ctx, cb.OAuthToken)
		if err != nil {
			return nil, nil, err
		}
		if err := checkBinding(r, sess); err != nil {
			return sess, nil, err
		}
		p, ok := h.Providers[sess.Provider].(oauth.TokenProvider)
		if !ok || sess.Flow != store.FlowOAuth1 {
			return sess, nil, fmt.Errorf("%w: %s session answered by oauth1 callback", ErrInvalidOrExpiredSession, sess.Flow)
		}

		var tok *oauth.Token
		err = h.timed(p.Name(), "exchange", func() (err error) {
			tok, err = p.AccessToken(ctx, cb.OAuthToken, sess.SecretMaterial, cb.OAuthVerifier)
			return err
		})
		if err != nil {
			return sess, nil, err
		}
		profile, err := h.fetchProfile(ctx, p, tok)
		return sess, profile, err

	default:
		return nil, nil, invalidRequest("missing code or oauth_token")
	}
}

// resolveClientVerifier completes a flow whose verifier the frontend kept.
// There is no server session to consume; redirectUri must be the provider's registered one.
func (h *AuthHandler) resolveClientVerifier(r *http.Request, cb Callback) (*store.AuthSession, *oauth.Profile, error) {
	name := cb.Provider
	if name == "" {
		name = h.DefaultProvider
	}
	p, ok := h.Providers[name].(oauth.CodeProvider)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %.64q has no code flow", ErrUnknownProvider, name)
	}
	if cb.RedirectURI != "" && cb.RedirectURI != p.RedirectURL() {
		return nil, nil, invalidRequest("redirectUri is not registered")
	}
	if !oauth.ValidVerifier(cb.Verifier) {
		return nil, nil, invalidRequest("verifier must be 43 to 128 unreserved characters")
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: session id: %w", oauth.ErrEntropyUnavailable, err)
	}
	now := time.Now().UTC()
	sess := &store.AuthSession{
		ID:          id,
		Provider:    p.Name(),
		Flow:        store.FlowPKCE,
		Transport:   "direct",
		RedirectURI: p.RedirectURL(),
		CreatedAt:   now,
		ExpiresAt:   now,
	}

	profile, err := h.exchangeCode(r.Context(), p, cb.Code, cb.Verifier, sess.RedirectURI)
	return sess, profile, err
}

// exchangeCode trades code + verifier for a token and reads the profile.
func (h *AuthHandler) exchangeCode(ctx context.Context, p oauth.CodeProvider, code, verifier, redirectURI string) (*oauth.Profile, error) {
	var tok *oauth.Token
	err := h.timed(p.Name(), "exchange", func() (err error) {
		tok, err = p.Exchange(ctx, code, verifier, redirectURI)
		return err
	})
	if err != nil {
		return nil, err
	}
	return h.fetchProfile(ctx, p, tok)
}

// fetchProfile reads and normalizes the provider profile.
func (h *AuthHandler) fetchProfile(ctx context.Context, p oauth.Provider, tok *oauth.Token) (*oauth.Profile, error) {
	var raw *oauth.RawProfile
	err := h.timed(p.Name(), "profile", func() (err error) {
		raw, err = p.FetchProfile(ctx, tok)
		return err
	})
	if err != nil {
		return nil, err
	}
	profile := oauth.Normalize(raw, p.ProfileDomain())
	return &profile, nil
}

// putSession stores sess, retrying once on infrastructure errors.
// The retry is safe: re-putting an identical session is a no-op.
func (h *AuthHandler) putSession(ctx context.Context, key string, sess *store.AuthSession) error {
	err := h.PS.Put(ctx, key, sess, h.SessionTTL)
	if err != nil && !errors.Is(err, store.ErrSessionCollision) {
		err = h.PS.Put(ctx, key, sess, h.SessionTTL)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSessionStoreUnavailable, err)
	}
	return nil
}

// takeSession consumes the session under key, retrying once on infrastructure errors only.
func (h *AuthHandler) takeSession(ctx context.Context, key string) (*store.AuthSession, error) {
	sess, err := h.PS.TakeIfValid(ctx, key)
	if err != nil && !errors.Is(err, store.ErrSessionNotFound) {
		sess, err = h.PS.TakeIfValid(ctx, key)
	}
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, store.ErrSessionNotFound):
		return nil, fmt.Errorf("%w: %w", ErrInvalidOrExpiredSession, err)
	default:
		return nil, fmt.Errorf("%w: %w", ErrSessionStoreUnavailable, err)
	}
}

// timed runs fn and observes its latency under provider/stage.
func (h *AuthHandler) timed(provider, stage string, fn func() error) error {
	start := time.Now()
	err := fn()
	h.MR.ProviderRequest(provider, stage, time.Since(start))
	return err
}

// recordSuccess counts and audits a delivered profile.
func (h *AuthHandler) recordSuccess(r *http.Request, sess *store.AuthSession, profile *oauth.Profile) {
	h.MR.AuthCompleted(sess.Provider)
	e := sessionEvent(sess, store.EventCompleted)
	e.Handle = profile.Handle
	h.audit(r, e)
	logInfo(r, "auth flow completed", "session_id", sess.ID, "provider", sess.Provider, "handle", profile.Handle)
}

// recordFailure counts and audits a failed flow. sess may be nil.
func (h *AuthHandler) recordFailure(r *http.Request, sess *store.AuthSession, err error) {
	reason := classify(err).reason
	h.MR.AuthFailed(reason)

	e := store.AuditEvent{Event: store.EventFailed}
	if sess != nil {
		e = sessionEvent(sess, store.EventFailed)
	}
	e.Reason = reason
	h.audit(r, e)
}

// audit writes e with request metadata. Failures are logged, never returned.
func (h *AuthHandler) audit(r *http.Request, e store.AuditEvent) {
	e.IPAddress = clientIP(r)
	e.UserAgent = truncate(r.UserAgent(), maxParamLength)

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), auditTimeout)
	defer cancel()
	if err := h.AL.InsertAuditEvent(ctx, e); err != nil {
		logWarn(r, "failed to record audit event", "event", e.Event, "error", err)
	}
}

func sessionEvent(sess *store.AuthSession, event string) store.AuditEvent {
	return store.AuditEvent{
		SessionID:   sess.ID,
		Event:       event,
		Provider:    sess.Provider,
		Transport:   sess.Transport,
		SubjectHint: sess.SubjectHint,
	}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
// Invalid input is repaired so the result is always valid UTF-8.
func truncate(s string, n int) string {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "\uFFFD")
	}
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
