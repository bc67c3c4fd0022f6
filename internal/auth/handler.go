// handler.go -- Dependencies shared by all /auth/* HTTP handlers.
package auth

import (
	"context"
	"time"

	"github.com/MGallo-Code/tether/internal/metrics"
	"github.com/MGallo-Code/tether/internal/oauth"
	"github.com/MGallo-Code/tether/internal/store"
)

// PendingStore holds in-flight authorizations keyed by correlation key (state or request token).
// Satisfied by *store.RedisStore and *store.MemoryStore -- defined here (at consumer) per Go convention.
type PendingStore interface {
	// Put stores session under key for ttl. Returns store.ErrSessionCollision if a different
	// session already holds key; re-putting an identical session succeeds.
	Put(ctx context.Context, key string, session *store.AuthSession, ttl time.Duration) error

	// TakeIfValid atomically removes and returns the session under key.
	// Returns store.ErrSessionNotFound if missing, expired or already taken.
	TakeIfValid(ctx context.Context, key string) (*store.AuthSession, error)

	// CheckHealth reports whether the backend is reachable.
	CheckHealth(ctx context.Context) error
}

// ResultStore parks delivery messages for the redirect transport until the frontend reads them.
type ResultStore interface {
	PutResult(ctx context.Context, ticket string, payload []byte, ttl time.Duration) error

	// TakeResult reads and deletes. Returns store.ErrResultNotFound when absent.
	TakeResult(ctx context.Context, ticket string) ([]byte, error)
}

// AuditLog records flow lifecycle events. Satisfied by *store.PostgresStore and store.NopAuditLog.
type AuditLog interface {
	InsertAuditEvent(ctx context.Context, e store.AuditEvent) error

	// CheckHealth returns store.ErrAuditDisabled when no database is configured.
	CheckHealth(ctx context.Context) error
}

// AuthHandler holds dependencies for all /auth/* HTTP handlers.
type AuthHandler struct {
	PS PendingStore
	RS ResultStore
	AL AuditLog
	MR metrics.Recorder

	// Providers maps provider name to an oauth.CodeProvider or oauth.TokenProvider.
	Providers        map[string]oauth.Provider
	DefaultProvider  string
	DefaultTransport string

	// FrontendOrigin is the only origin popup results are posted to and redirects go to.
	FrontendOrigin string

	SessionTTL time.Duration
	ResultTTL  time.Duration
}
