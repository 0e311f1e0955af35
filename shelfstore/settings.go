package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
)

// Settings are arbitrary string key/value pairs mirrored into a
// process-wide map consumed by unrelated services (platform ordering,
// display names). Services register refresh hooks on the keys they care
// about; hooks fire after a setting change has committed.
//
// The mirror is deliberately process-wide, with an explicit reset hook
// for test isolation.
var settingsMirror = struct {
	mu     sync.RWMutex
	values map[string]string
	hooks  map[string][]func(value string)
}{
	values: make(map[string]string),
	hooks:  make(map[string][]func(value string)),
}

// Setting returns the mirrored value for key and whether it is present.
func Setting(key string) (string, bool) {
	settingsMirror.mu.RLock()
	defer settingsMirror.mu.RUnlock()
	v, ok := settingsMirror.values[key]
	return v, ok
}

// RegisterRefreshHook subscribes fn to committed changes of key.
func RegisterRefreshHook(key string, fn func(value string)) {
	settingsMirror.mu.Lock()
	defer settingsMirror.mu.Unlock()
	settingsMirror.hooks[key] = append(settingsMirror.hooks[key], fn)
}

// ResetSettingsMirror clears the mirror and all hooks. Tests call this to
// isolate process-wide state.
func ResetSettingsMirror() {
	settingsMirror.mu.Lock()
	defer settingsMirror.mu.Unlock()
	settingsMirror.values = make(map[string]string)
	settingsMirror.hooks = make(map[string][]func(value string))
}

// PublishSetting updates the mirror and fires the refresh hooks for key.
// Call only after the corresponding row change has committed.
func PublishSetting(key, value string) {
	settingsMirror.mu.Lock()
	settingsMirror.values[key] = value
	hooks := append([]func(string){}, settingsMirror.hooks[key]...)
	settingsMirror.mu.Unlock()

	for _, fn := range hooks {
		fn(value)
	}
}

// DropSetting removes key from the mirror and fires its hooks with an
// empty value.
func DropSetting(key string) {
	settingsMirror.mu.Lock()
	delete(settingsMirror.values, key)
	hooks := append([]func(string){}, settingsMirror.hooks[key]...)
	settingsMirror.mu.Unlock()

	for _, fn := range hooks {
		fn("")
	}
}

// SetSettingTx writes a settings row inside the caller's transaction.
// The mirror is not touched here; publish after commit.
func SetSettingTx(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at)
		VALUES (?, ?, strftime('%Y-%m-%dT%H:%M:%fZ','now'))
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, value)
	if err != nil {
		return fmt.Errorf("failed to write setting %q: %w", key, err)
	}
	return nil
}

// DeleteSettingTx removes a settings row inside the caller's transaction.
func DeleteSettingTx(ctx context.Context, tx *sql.Tx, key string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM settings WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete setting %q: %w", key, err)
	}
	return nil
}

// GetSetting reads a settings row directly from the database.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %q: %w", key, err)
	}
	return value, true, nil
}

// SaveSetting writes the setting and enqueues the outbox upsert as one
// unit, then publishes the committed value to the mirror.
func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	payload, err := json.Marshal(map[string]string{"key": key, "value": value})
	if err != nil {
		return fmt.Errorf("failed to marshal setting payload: %w", err)
	}
	err = s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := SetSettingTx(ctx, tx, key, value); err != nil {
			return err
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntitySetting,
			Operation:  OpUpsert,
			Payload:    payload,
		})
	})
	if err != nil {
		return err
	}
	PublishSetting(key, value)
	return nil
}

// loadSettingsMirror seeds the process-wide mirror from the settings
// table at startup, without firing hooks.
func (s *Store) loadSettingsMirror(ctx context.Context) error {
	rows, err := s.DB.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return err
	}
	defer rows.Close()

	settingsMirror.mu.Lock()
	defer settingsMirror.mu.Unlock()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		settingsMirror.values[key] = value
	}
	return rows.Err()
}
