package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
)

// Tag is a user-defined label identified by a surrogate integer id.
type Tag struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Color string `json:"color,omitempty"`
}

// UpsertTagTx inserts or replaces a tag. A zero ID inserts a fresh row
// and fills in the generated id.
func UpsertTagTx(ctx context.Context, tx *sql.Tx, t *Tag) error {
	if t.ID == 0 {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tags (name, color) VALUES (?, ?)`, t.Name, t.Color)
		if err != nil {
			return fmt.Errorf("failed to insert tag: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read tag id: %w", err)
		}
		t.ID = id
		return nil
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO tags (id, name, color) VALUES (?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, color = excluded.color
	`, t.ID, t.Name, t.Color)
	if err != nil {
		return fmt.Errorf("failed to upsert tag %d: %w", t.ID, err)
	}
	return nil
}

// DeleteTagTx removes a tag by id; missing rows are not an error.
func DeleteTagTx(ctx context.Context, tx *sql.Tx, id int64) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM tags WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete tag %d: %w", id, err)
	}
	return nil
}

// GetTag loads a single tag by id.
func (s *Store) GetTag(ctx context.Context, id int64) (*Tag, error) {
	var t Tag
	err := s.DB.QueryRowContext(ctx,
		`SELECT id, name, color FROM tags WHERE id = ?`, id).Scan(&t.ID, &t.Name, &t.Color)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan tag: %w", err)
	}
	return &t, nil
}

// ListTags returns every tag ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT id, name, color FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tags: %w", err)
	}
	defer rows.Close()

	var tags []Tag
	for rows.Next() {
		var t Tag
		if err := rows.Scan(&t.ID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

// SaveTag writes the tag and enqueues the matching outbox upsert as one
// unit.
func (s *Store) SaveTag(ctx context.Context, t *Tag) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := UpsertTagTx(ctx, tx, t); err != nil {
			return err
		}
		payload, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to marshal tag payload: %w", err)
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntityTag,
			Operation:  OpUpsert,
			Payload:    payload,
		})
	})
}

// DeleteTag removes the tag locally and enqueues the delete.
func (s *Store) DeleteTag(ctx context.Context, id int64) error {
	payload, err := json.Marshal(map[string]any{"id": id})
	if err != nil {
		return fmt.Errorf("failed to marshal tag key: %w", err)
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		if err := DeleteTagTx(ctx, tx, id); err != nil {
			return err
		}
		return EnqueueTx(ctx, tx, &OutboxRecord{
			EntityType: EntityTag,
			Operation:  OpDelete,
			Payload:    payload,
		})
	})
}
