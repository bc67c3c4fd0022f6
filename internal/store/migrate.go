// migrate.go -- Embedded SQL migrations for the audit schema.
package store

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
)

// migrateLockID is the advisory lock key held while migrations run,
// so two instances starting together don't race on the same file.
const migrateLockID = 0x7e7e7e01

// Migrate applies every *.sql file in migrationsFS not yet recorded in schema_migrations,
// in lexical order. Each file runs in its own transaction together with its bookkeeping row.
func (s *PostgresStore) Migrate(ctx context.Context, migrationsFS fs.FS) error {
	if _, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return fmt.Errorf("creating schema_migrations table: %w", err)
	}

	files, err := fs.Glob(migrationsFS, "*.sql")
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}
	slices.Sort(files)

	for _, name := range files {
		applied, err := s.applyMigration(ctx, migrationsFS, name)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("migration applied", "version", name)
		} else {
			slog.Debug("migration already applied, skipping", "version", name)
		}
	}
	return nil
}

// applyMigration runs one file. Returns false if it was already recorded.
func (s *PostgresStore) applyMigration(ctx context.Context, migrationsFS fs.FS, name string) (bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("beginning transaction for %s: %w", name, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrateLockID); err != nil {
		return false, fmt.Errorf("locking for %s: %w", name, err)
	}

	var exists bool
	if err := tx.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)", name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking migration %s: %w", name, err)
	}
	if exists {
		return false, nil
	}

	sql, err := fs.ReadFile(migrationsFS, name)
	if err != nil {
		return false, fmt.Errorf("reading migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, string(sql)); err != nil {
		return false, fmt.Errorf("executing migration %s: %w", name, err)
	}
	if _, err := tx.Exec(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
		return false, fmt.Errorf("recording migration %s: %w", name, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("committing migration %s: %w", name, err)
	}
	return true, nil
}
