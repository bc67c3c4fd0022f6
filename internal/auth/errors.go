// errors.go -- Flow error taxonomy and its HTTP mapping.
package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/MGallo-Code/tether/internal/oauth"
)

// ErrSessionStoreUnavailable means the pending store could not be read or written.
// Retryable by the user.
var ErrSessionStoreUnavailable = errors.New("session store unavailable")

// ErrInvalidOrExpiredSession covers unknown, expired, already consumed and mismatched sessions.
// These are indistinguishable to the caller on purpose: no oracle on which one it was.
var ErrInvalidOrExpiredSession = errors.New("invalid or expired session")

// ErrProviderDenied means the user cancelled on the consent page.
var ErrProviderDenied = errors.New("provider denied authorization")

// ErrInvalidRequest matches every *RequestError.
var ErrInvalidRequest = errors.New("invalid request")

// ErrUnknownProvider means the requested provider is not configured.
var ErrUnknownProvider = errors.New("unknown provider")

// ErrTooManyRequests is returned by the per-IP limiter in front of the flow endpoints.
var ErrTooManyRequests = errors.New("too many requests")

// RequestError is a client input validation failure. Message is safe to show.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string        { return "invalid request: " + e.Message }
func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

func invalidRequest(msg string) error { return &RequestError{Message: msg} }

// failure is the client-facing view of an error.
type failure struct {
	status  int
	message string
	reason  string // metrics/audit label
	level   slog.Level
}

// classify maps err onto the status, generic message and reason label.
// Provider detail never reaches message.
func classify(err error) failure {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return failure{http.StatusBadRequest, reqErr.Message, "invalid_request", slog.LevelInfo}
	case errors.Is(err, ErrUnknownProvider):
		return failure{http.StatusNotFound, "unknown provider", "unknown_provider", slog.LevelInfo}
	case errors.Is(err, ErrInvalidOrExpiredSession):
		return failure{http.StatusBadRequest, "sign-in session is invalid or expired, please start again", "invalid_session", slog.LevelWarn}
	case errors.Is(err, ErrProviderDenied):
		return failure{http.StatusForbidden, "authorization was cancelled", "denied", slog.LevelInfo}
	case errors.Is(err, ErrSessionStoreUnavailable):
		return failure{http.StatusServiceUnavailable, "sign-in is temporarily unavailable, please try again", "store_unavailable", slog.LevelError}
	case errors.Is(err, oauth.ErrRateLimited):
		return failure{http.StatusTooManyRequests, "the provider is rate limiting requests, please wait a few minutes and try again", "rate_limited", slog.LevelWarn}
	case errors.Is(err, oauth.ErrTokenExchangeFailed):
		return failure{http.StatusBadGateway, "could not complete sign-in with the provider", "token_exchange", slog.LevelWarn}
	case errors.Is(err, oauth.ErrProfileFetchFailed):
		return failure{http.StatusBadGateway, "could not complete sign-in with the provider", "profile_fetch", slog.LevelWarn}
	case errors.Is(err, ErrTooManyRequests):
		return failure{http.StatusTooManyRequests, "too many requests, please slow down", "throttled", slog.LevelWarn}
	case errors.Is(err, oauth.ErrEntropyUnavailable):
		return failure{http.StatusInternalServerError, "internal server error", "entropy", slog.LevelError}
	default:
		return failure{http.StatusInternalServerError, "internal server error", "internal", slog.LevelError}
	}
}
