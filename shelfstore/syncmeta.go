package shelfstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Keys in the sync_meta table.
const (
	MetaCursor       = "cursor"
	MetaLastSyncAt   = "lastSyncAt"
	MetaConnectivity = "connectivity"
)

// Connectivity states. "degraded" means the last sync cycle failed,
// distinct from "offline" (no network at all).
const (
	ConnectivityOnline   = "online"
	ConnectivityOffline  = "offline"
	ConnectivityDegraded = "degraded"
)

func getMeta(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM sync_meta WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync meta %q: %w", key, err)
	}
	return value, nil
}

// SetMetaTx writes a sync_meta entry inside the caller's transaction.
func SetMetaTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO sync_meta (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write sync meta %q: %w", key, err)
	}
	return nil
}

// SetMeta writes a sync_meta entry in its own transaction.
func (s *Store) SetMeta(ctx context.Context, key, value string) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return SetMetaTx(ctx, tx, key, value)
	})
}

// Cursor returns the stored server change-stream cursor, empty when the
// client has never pulled.
func (s *Store) Cursor(ctx context.Context) (string, error) {
	return getMeta(ctx, s.DB, MetaCursor)
}

// SetCursorTx advances the cursor inside the caller's transaction. The
// cursor is opaque and only ever replaced by a value the server just
// supplied; an empty value is ignored so the cursor never regresses to
// "unset".
func SetCursorTx(ctx context.Context, tx *sql.Tx, cursor string) error {
	if cursor == "" {
		return nil
	}
	return SetMetaTx(ctx, tx, MetaCursor, cursor)
}

// SetCursor advances the cursor in its own transaction. Empty values are
// ignored.
func (s *Store) SetCursor(ctx context.Context, cursor string) error {
	if cursor == "" {
		return nil
	}
	return s.SetMeta(ctx, MetaCursor, cursor)
}

// SetLastSyncAt records the completion time of the last successful cycle.
func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return s.SetMeta(ctx, MetaLastSyncAt, t.UTC().Format(time.RFC3339Nano))
}

// LastSyncAt returns the completion time of the last successful cycle, or
// the zero time when none has completed.
func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	v, err := getMeta(ctx, s.DB, MetaLastSyncAt)
	if err != nil || v == "" {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return time.Time{}, nil
	}
	return t, nil
}

// Connectivity returns the recorded connectivity state, defaulting to
// offline before the first cycle.
func (s *Store) Connectivity(ctx context.Context) (string, error) {
	v, err := getMeta(ctx, s.DB, MetaConnectivity)
	if err != nil {
		return "", err
	}
	if v == "" {
		return ConnectivityOffline, nil
	}
	return v, nil
}

// SetConnectivity records the connectivity state for the UI indicator.
func (s *Store) SetConnectivity(ctx context.Context, state string) error {
	return s.SetMeta(ctx, MetaConnectivity, state)
}
