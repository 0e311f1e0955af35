// Package shelfstore provides the durable local store for the GameShelf
// client: domain entities (games, tags, saved views), the outbox of
// pending mutations, sync metadata, and the settings mirror. The store is
// the single source of truth for the UI; the sync engine in package
// shelfsync reads and writes it through the transactional helpers here.
package shelfstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the embedded SQLite database holding all local state.
type Store struct {
	DB     *sql.DB
	logger *slog.Logger
}

// Open opens (or creates) the database file at path and applies all
// pending schema migrations. A migration failure aborts Open entirely;
// the caller must treat that as fatal.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := OpenDB(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenDB initializes an already-opened database handle. Used by tests
// with in-memory databases.
func OpenDB(db *sql.DB) (*Store, error) {
	s := &Store{DB: db, logger: slog.Default()}

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := s.migrate(context.Background()); err != nil {
		return nil, err
	}

	if err := s.loadSettingsMirror(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load settings mirror: %w", err)
	}

	return s, nil
}

// SetLogger replaces the store's logger (defaults to slog.Default).
func (s *Store) SetLogger(logger *slog.Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// WithTx runs fn inside a single transaction. This is the unit-of-work
// boundary for every multi-table mutation: entity write plus outbox
// enqueue, and the pull pipeline's apply-all-changes step.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	committed = true
	return nil
}
