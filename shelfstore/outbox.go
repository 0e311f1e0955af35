package shelfstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Entity types and operations carried by outbox records and incoming
// sync changes.
const (
	EntityGame    = "game"
	EntityTag     = "tag"
	EntityView    = "view"
	EntitySetting = "setting"

	OpUpsert = "upsert"
	OpDelete = "delete"
)

// OutboxRecord is one pending local mutation awaiting server
// acknowledgment. OpID is the idempotency key: the server must treat a
// replayed OpID as already seen, and the client removes the record on
// either an applied or a duplicate ack.
type OutboxRecord struct {
	OpID            string
	EntityType      string
	Operation       string
	Payload         json.RawMessage
	ClientTimestamp string
	CreatedAt       string
	AttemptCount    int
	LastError       string
}

// NewOpID returns a globally unique client-generated operation id. It
// falls back to a timestamp plus random suffix if the UUID source is
// unavailable.
func NewOpID() string {
	id, err := uuid.NewRandom()
	if err != nil {
		return fmt.Sprintf("%d-%06x", time.Now().UnixNano(), rand.Intn(1<<24))
	}
	return id.String()
}

// EnqueueTx appends a record to the outbox inside the caller's
// transaction, so the entity write and the enqueue commit as one unit.
// Missing OpID and ClientTimestamp are filled in.
func EnqueueTx(ctx context.Context, tx *sql.Tx, rec *OutboxRecord) error {
	if rec.OpID == "" {
		rec.OpID = NewOpID()
	}
	if rec.ClientTimestamp == "" {
		rec.ClientTimestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	payload := string(rec.Payload)
	if payload == "" {
		payload = "{}"
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO outbox (op_id, entity_type, operation, payload, client_ts)
		VALUES (?, ?, ?, ?, ?)
	`, rec.OpID, rec.EntityType, rec.Operation, payload, rec.ClientTimestamp)
	if err != nil {
		return fmt.Errorf("failed to enqueue outbox record %s: %w", rec.OpID, err)
	}
	return nil
}

// Enqueue records a mutation in its own transaction. Most callers should
// prefer the Save*/Delete* helpers, which pair the enqueue with the
// entity write.
func (s *Store) Enqueue(ctx context.Context, rec *OutboxRecord) error {
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		return EnqueueTx(ctx, tx, rec)
	})
}

// Pending returns every outbox record in creation order. The push
// pipeline relies on this ordering being stable within and across
// batches.
func (s *Store) Pending(ctx context.Context) ([]OutboxRecord, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT op_id, entity_type, operation, payload, client_ts, created_at, attempt_count, last_error
		FROM outbox
		ORDER BY created_at, rowid
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var records []OutboxRecord
	for rows.Next() {
		var rec OutboxRecord
		var payload string
		var lastError sql.NullString
		if err := rows.Scan(&rec.OpID, &rec.EntityType, &rec.Operation, &payload,
			&rec.ClientTimestamp, &rec.CreatedAt, &rec.AttemptCount, &lastError); err != nil {
			return nil, fmt.Errorf("failed to scan outbox record: %w", err)
		}
		rec.Payload = json.RawMessage(payload)
		rec.LastError = lastError.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

// PendingCount returns the number of not-yet-acknowledged records.
func (s *Store) PendingCount(ctx context.Context) (int, error) {
	var n int
	if err := s.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}

// Ack removes acknowledged records. Both "applied" and "duplicate" server
// statuses land here; a duplicate means the server already saw the opId.
func (s *Store) Ack(ctx context.Context, opIDs ...string) error {
	if len(opIDs) == 0 {
		return nil
	}
	return s.WithTx(ctx, func(tx *sql.Tx) error {
		for _, id := range opIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM outbox WHERE op_id = ?`, id); err != nil {
				return fmt.Errorf("failed to ack outbox record %s: %w", id, err)
			}
		}
		return nil
	})
}

// Fail records a per-operation push failure. The record stays queued for
// the next cycle; nothing is ever dropped automatically.
func (s *Store) Fail(ctx context.Context, opID, message string) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE outbox SET attempt_count = attempt_count + 1, last_error = ? WHERE op_id = ?
	`, message, opID)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure for %s: %w", opID, err)
	}
	return nil
}
