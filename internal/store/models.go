// models.go -- Shared domain types for the store package.
// Used by Redis and memory (pending sessions, results) and Postgres (audit trail).
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
)

// ErrSessionNotFound is returned by TakeIfValid when the key is missing, expired, already taken,
// or holds an undecodable value. Callers use errors.Is to tell it apart from infrastructure failures.
var ErrSessionNotFound = errors.New("auth session not found")

// ErrSessionCollision is returned by Put when a different session already lives under the key.
var ErrSessionCollision = errors.New("auth session key already in use")

// ErrResultNotFound is returned by TakeResult when the ticket is missing, expired or already read.
var ErrResultNotFound = errors.New("auth result not found")

// ErrAuditDisabled is returned by NopAuditLog.CheckHealth when Postgres is not configured.
// Callers use errors.Is to distinguish "not configured" from a real infrastructure failure.
var ErrAuditDisabled = errors.New("audit log disabled")

// Flow names stored on AuthSession.Flow.
const (
	FlowPKCE   = "pkce"
	FlowOAuth1 = "oauth1"
)

// AuthSession is the server-held state of one in-flight authorization.
// The correlation key (state or request token) is the store key and is not repeated here.
// SecretMaterial is the PKCE verifier or the OAuth 1.0a request-token secret; it never
// leaves the server.
type AuthSession struct {
	ID             uuid.UUID `json:"id"`
	SecretMaterial string    `json:"secretMaterial"`
	SubjectHint    string    `json:"subjectHint,omitempty"`
	Provider       string    `json:"provider"`
	Flow           string    `json:"flow"`
	Transport      string    `json:"transport"`
	ReturnPath     string    `json:"returnPath,omitempty"`
	RedirectURI    string    `json:"redirectUri,omitempty"`
	BindingHash    string    `json:"bindingHash,omitempty"` // SHA-256 of the browser binding cookie
	CreatedAt      time.Time `json:"createdAt"`
	ExpiresAt      time.Time `json:"expiresAt"`
}

// Expired reports whether the session is past its expiry at now.
func (s *AuthSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// encodeSession serializes s. Identical sessions always encode to identical bytes,
// which is what makes a repeated Put of the same session a no-op.
func encodeSession(s *AuthSession) ([]byte, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("marshaling auth session: %w", err)
	}
	return b, nil
}

// decodeSession parses a stored value. Any decode failure is ErrSessionNotFound.
func decodeSession(b []byte) (*AuthSession, error) {
	var s AuthSession
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("%w: undecodable value: %v", ErrSessionNotFound, err)
	}
	return &s, nil
}

// AuditEvent represents a row in the auth_events table.
// Empty strings are written as SQL NULL.
type AuditEvent struct {
	ID          uuid.UUID
	SessionID   uuid.UUID
	Event       string // auth.started, auth.completed, auth.failed
	Provider    string
	Transport   string
	SubjectHint string
	Handle      string
	Reason      string
	IPAddress   string
	UserAgent   string
	CreatedAt   time.Time
}

// Audit event names.
const (
	EventStarted   = "auth.started"
	EventCompleted = "auth.completed"
	EventFailed    = "auth.failed"
)
