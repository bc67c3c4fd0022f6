// errors.go -- Provider-side error taxonomy.
package oauth

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// ErrEntropyUnavailable is returned when the secure random source fails.
// Fatal to the attempt; should not happen on a conforming runtime.
var ErrEntropyUnavailable = errors.New("secure random source unavailable")

// ErrTokenExchangeFailed matches every *TokenExchangeError via errors.Is.
var ErrTokenExchangeFailed = errors.New("token exchange failed")

// ErrProfileFetchFailed matches every *ProfileFetchError via errors.Is.
var ErrProfileFetchFailed = errors.New("profile fetch failed")

// ErrRateLimited matches every *RateLimitError via errors.Is.
// Retryable later, never retried automatically.
var ErrRateLimited = errors.New("provider rate limited")

// TokenExchangeError is returned when the provider rejects the code or credentials,
// or the token endpoint cannot be reached in time.
// ProviderError carries the provider's error code for logs only -- never show it to users.
type TokenExchangeError struct {
	StatusCode    int
	ProviderError string
	Err           error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed: status %d: %s", e.StatusCode, e.ProviderError)
	}
	return "token exchange failed: " + e.ProviderError
}

func (e *TokenExchangeError) Is(target error) bool { return target == ErrTokenExchangeFailed }
func (e *TokenExchangeError) Unwrap() error        { return e.Err }

// ProfileFetchError is returned when the token was accepted but the profile read failed.
type ProfileFetchError struct {
	StatusCode int
	Err        error
}

func (e *ProfileFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("profile fetch failed: status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("profile fetch failed: %v", e.Err)
}

func (e *ProfileFetchError) Is(target error) bool { return target == ErrProfileFetchFailed }
func (e *ProfileFetchError) Unwrap() error        { return e.Err }

// RateLimitError is returned on HTTP 429 from a profile endpoint.
// RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider rate limited, retry after %s", e.RetryAfter)
	}
	return "provider rate limited"
}

func (e *RateLimitError) Is(target error) bool { return target == ErrRateLimited }

// retryAfter reads Retry-After (seconds) or Twitter's x-rate-limit-reset (unix seconds).
func retryAfter(h http.Header, now time.Time) time.Duration {
	if v := h.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	if v := h.Get("X-Rate-Limit-Reset"); v != "" {
		if reset, err := strconv.ParseInt(v, 10, 64); err == nil {
			if d := time.Unix(reset, 0).Sub(now); d > 0 {
				return d.Round(time.Second)
			}
		}
	}
	return 0
}
