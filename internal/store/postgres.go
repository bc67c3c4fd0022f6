// Package store handles all database and cache interactions.
//
// postgres.go -- pgxpool connection setup and audit trail queries.
// Creates a connection pool at startup, shared across all handlers.
// All queries use parameterized statements (no string concatenation).
package store

import (
	"context"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is the durable audit log.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates and returns a verified connection pool wrapped in a store.
// Call once at startup from main.go; the returned store is safe for concurrent use.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	return &PostgresStore{pool}, nil
}

// Close shuts down the connection pool and releases all resources.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// CheckHealth pings Postgres.
func (s *PostgresStore) CheckHealth(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// InsertAuditEvent appends one row to auth_events.
// A zero ID gets a fresh UUIDv7; a zero CreatedAt defaults to now() in the database.
func (s *PostgresStore) InsertAuditEvent(ctx context.Context, e AuditEvent) error {
	if e.ID.IsNil() {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generating audit id: %w", err)
		}
		e.ID = id
	}

	var createdAt any
	if !e.CreatedAt.IsZero() {
		createdAt = e.CreatedAt
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO auth_events
			(id, session_id, event, provider, transport, subject_hint, handle, reason, ip_address, user_agent, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()))`,
		e.ID, nullUUID(e.SessionID), e.Event, e.Provider, e.Transport,
		nullString(e.SubjectHint), nullString(e.Handle), nullString(e.Reason),
		nullString(e.IPAddress), nullString(e.UserAgent), createdAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullUUID(id uuid.UUID) any {
	if id.IsNil() {
		return nil
	}
	return id
}

// NopAuditLog discards audit events. Used when DATABASE_URL is unset.
type NopAuditLog struct{}

func (NopAuditLog) InsertAuditEvent(context.Context, AuditEvent) error { return nil }

// CheckHealth always returns ErrAuditDisabled.
func (NopAuditLog) CheckHealth(context.Context) error { return ErrAuditDisabled }
