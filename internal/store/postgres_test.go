package store

import (
	"context"
	"os"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// newTestPostgres connects to TEST_DATABASE_URL and runs the real migrations.
// Skips when the variable is unset so the suite runs without a database.
func newTestPostgres(t *testing.T) *PostgresStore {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	ps, err := NewPostgresStore(ctx, url)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}
	t.Cleanup(ps.Close)

	if err := ps.Migrate(ctx, os.DirFS("../../migrations")); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return ps
}

// auditEventsBySession reads back every event recorded for sessionID, oldest first.
func auditEventsBySession(t *testing.T, ps *PostgresStore, sessionID uuid.UUID) []AuditEvent {
	t.Helper()
	rows, err := ps.pool.Query(context.Background(), `
		SELECT id, session_id, event, provider, transport,
			COALESCE(subject_hint, ''), COALESCE(handle, ''), COALESCE(reason, ''),
			COALESCE(ip_address, ''), COALESCE(user_agent, ''), created_at
		FROM auth_events
		WHERE session_id = $1
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		t.Fatalf("querying audit events: %v", err)
	}
	events, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (AuditEvent, error) {
		var e AuditEvent
		err := row.Scan(&e.ID, &e.SessionID, &e.Event, &e.Provider, &e.Transport,
			&e.SubjectHint, &e.Handle, &e.Reason, &e.IPAddress, &e.UserAgent, &e.CreatedAt)
		return e, err
	})
	if err != nil {
		t.Fatalf("scanning audit events: %v", err)
	}
	return events
}

// --- InsertAuditEvent ---

func TestAuditEvents(t *testing.T) {
	ps := newTestPostgres(t)
	ctx := context.Background()

	t.Run("records lifecycle in order", func(t *testing.T) {
		sessionID, _ := uuid.NewV7()
		t.Cleanup(func() {
			ps.pool.Exec(ctx, "DELETE FROM auth_events WHERE session_id = $1", sessionID)
		})

		base := time.Now().UTC().Truncate(time.Microsecond)
		if err := ps.InsertAuditEvent(ctx, AuditEvent{
			SessionID: sessionID, Event: EventStarted, Provider: "twitter", Transport: "popup",
			SubjectHint: "0xabc", IPAddress: "203.0.113.7", CreatedAt: base,
		}); err != nil {
			t.Fatalf("insert started: %v", err)
		}
		if err := ps.InsertAuditEvent(ctx, AuditEvent{
			SessionID: sessionID, Event: EventCompleted, Provider: "twitter", Transport: "popup",
			Handle: "spacefan", CreatedAt: base.Add(time.Second),
		}); err != nil {
			t.Fatalf("insert completed: %v", err)
		}

		events := auditEventsBySession(t, ps, sessionID)
		if len(events) != 2 {
			t.Fatalf("expected 2 events, got %d", len(events))
		}
		if events[0].Event != EventStarted || events[1].Event != EventCompleted {
			t.Errorf("order: got %s, %s", events[0].Event, events[1].Event)
		}
		if events[0].SubjectHint != "0xabc" || events[0].Handle != "" {
			t.Errorf("started row: unexpected %+v", events[0])
		}
		if events[1].Handle != "spacefan" {
			t.Errorf("completed row: expected handle spacefan, got %q", events[1].Handle)
		}
		if events[0].ID.IsNil() {
			t.Error("expected generated id")
		}
	})

	t.Run("rejects unknown event names", func(t *testing.T) {
		if err := ps.InsertAuditEvent(ctx, AuditEvent{Event: "auth.bogus"}); err == nil {
			t.Error("expected check constraint violation")
		}
	})

	t.Run("health check passes", func(t *testing.T) {
		if err := ps.CheckHealth(ctx); err != nil {
			t.Errorf("CheckHealth: %v", err)
		}
	})
}

// --- Migrate ---

func TestMigrate(t *testing.T) {
	ps := newTestPostgres(t)
	ctx := context.Background()

	testFS := fstest.MapFS{
		"900_test_migrate.sql": &fstest.MapFile{Data: []byte("CREATE TABLE test_migrate_tbl (id INT);")},
	}
	t.Cleanup(func() {
		ps.pool.Exec(ctx, "DROP TABLE IF EXISTS test_migrate_tbl")
		ps.pool.Exec(ctx, "DELETE FROM schema_migrations WHERE version = $1", "900_test_migrate.sql")
	})

	t.Run("applies migration and records version", func(t *testing.T) {
		if err := ps.Migrate(ctx, testFS); err != nil {
			t.Fatalf("Migrate failed: %v", err)
		}
		var recorded bool
		if err := ps.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", "900_test_migrate.sql",
		).Scan(&recorded); err != nil {
			t.Fatalf("checking schema_migrations: %v", err)
		}
		if !recorded {
			t.Error("expected migration version to be recorded")
		}
	})

	t.Run("second run is a no-op", func(t *testing.T) {
		if err := ps.Migrate(ctx, testFS); err != nil {
			t.Errorf("re-running Migrate failed: %v", err)
		}
	})

	t.Run("failing migration is rolled back", func(t *testing.T) {
		badFS := fstest.MapFS{
			"901_test_bad.sql": &fstest.MapFile{Data: []byte("CREATE TABLE test_bad_tbl (id INT); SELECT nope FROM;")},
		}
		if err := ps.Migrate(ctx, badFS); err == nil {
			t.Fatal("expected error for invalid SQL")
		}
		var exists bool
		ps.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = 'test_bad_tbl')",
		).Scan(&exists)
		if exists {
			t.Error("expected test_bad_tbl to be rolled back")
		}
	})
}

// --- NopAuditLog ---

func TestNopAuditLog(t *testing.T) {
	var nop NopAuditLog
	if err := nop.InsertAuditEvent(context.Background(), AuditEvent{Event: EventStarted}); err != nil {
		t.Errorf("InsertAuditEvent: expected nil, got %v", err)
	}
	if err := nop.CheckHealth(context.Background()); err != ErrAuditDisabled {
		t.Errorf("CheckHealth: expected ErrAuditDisabled, got %v", err)
	}
}
