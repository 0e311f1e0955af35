package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// View is a saved filter/sort configuration identified by a surrogate
// integer id. Filters is an opaque JSON object owned by the UI layer.
type View struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Filters json.RawMessage `json:"filters,omitempty"`
	SortBy  string          `json:"sortBy,omitempty"`
}

// UpsertViewTx inserts or replaces a view. A zero ID inserts a fresh row
// and fills in the generated id.
func UpsertViewTx(ctx context.Context, tx *sql.Tx, v *View) error {
	filters := string(v.Filters)
	if filters == "" {
		filters = "{}"
	}
	if v.ID == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO views (name, filters, sort_by) VALUES (?, ?, ?)`, v.Name, filters, v.SortBy)
		if err != nil {
			return fmt.Errorf("failed to insert view: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read view id: %w", err)
		}
		v.ID = id
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO views (id, name, filters, sort_by) VALUES (?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			filters = excluded.filters,
			sort_by = excluded.sort_by
	`, v.ID, v.Name, filters, v.SortBy)
	if err != nil {
		return fmt.Errorf("failed to upsert view %d: %w", v.ID, err)
	}
	return nil
}

// DeleteViewTx removes a view by id; missing rows are not an error.
func DeleteViewTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM views WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete view %d: %w", id, err)
	}
	return nil
}

// GetView loads a single view by id.
func (s *Store) GetView(ctx context.Context, id int64) (*View, error) {
	var v View
	var filters string
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, filters, sort_by FROM views WHERE id = ?`, id).
		Scan(&v.ID, &v.Name, &filters, &v.SortBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan view: %w", err)
	}
	v.Filters = json.RawMessage(filters)
	return &v, nil
}

// ListViews returns every saved view ordered by name.
func (s *Store) ListViews(ctx context.Context) ([]View, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, filters, sort_by FROM views ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query views: %w", err)
	}
	defer rows.Close()

	var views []View
	for rows.Next() {
		var v View
		var filters string
		if err := rows.Scan(&v.ID, &v.Name, &filters, &v.SortBy); err != nil {
			return nil, fmt.Errorf("failed to scan view: %w", err)
		}
		v.Filters = json.RawMessage(filters)
		views = append(views, v)
	}
	return views, rows.Err()
}

// SaveView writes the view and enqueues the matching outbox upsert as one
// unit.
func (s *Store) SaveView(ctx context.Context, v *View) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := UpsertViewTx(ctx, tx, v); err != nil {
			return err
		}
		payload, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal view payload: %w", err)
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntityView,
			Operation:  OpUpsert,
			Payload:    payload,
		})
	})
}

// DeleteView removes the view locally and enqueues the delete.
func (s *Store) DeleteView(ctx context.Context, id int64) error {
	payload, err := json.Marshal(map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("failed to marshal view key: %w", err)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := DeleteViewTx(ctx, tx, id); err != nil {
			return err
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntityView,
			Operation:  OpDelete,
			Payload:    payload,
		})
	})
}
