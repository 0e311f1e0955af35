package shelfsync

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

// DefaultBatchByteBudget caps the JSON-serialized push body at 8 MiB.
const DefaultBatchByteBudget = 8 << 20

// Fixed serialization overhead of the request body around the operations
// array: {"operations":[...]}.
const batchWrapperOverhead = len(`{"operations":[]}`)

// BuildBatches packs operations into batches whose serialized request
// body stays within budget. Operations keep their input (outbox
// creation) order within and across batches. A single operation larger
// than the whole budget still forms its own batch rather than being
// dropped.
func BuildBatches(ops []ClientSyncOperation, budget int) ([][]ClientSyncOperation, error) {
	if budget <= 0 {
		budget = DefaultBatchByteBudget
	}

	var batches [][]ClientSyncOperation
	var current []ClientSyncOperation
	size := batchWrapperOverhead

	for _, op := range ops {
		data, err := json.Marshal(op)
		if err != nil {
			return nil, fmt.Errorf("failed to serialize operation %s: %w", op.OpID, err)
		}
		opSize := len(data)
		if len(current) > 0 {
			opSize++ // joining comma
		}

		if len(current) > 0 && size+opSize > budget {
			batches = append(batches, current)
			current = nil
			size = batchWrapperOverhead
			opSize = len(data)
		}
		current = append(current, op)
		size += opSize
	}
	if len(current) > 0 {
		batches = append(batches, current)
	}
	return batches, nil
}

func operationFromRecord(rec shelfstore.OutboxRecord) ClientSyncOperation {
	return ClientSyncOperation{
		OpID:            rec.OpID,
		EntityType:      rec.EntityType,
		Operation:       rec.Operation,
		Payload:         rec.Payload,
		ClientTimestamp: rec.ClientTimestamp,
	}
}

// PushOnce drains the outbox: batches in creation order, posted
// sequentially, each batch reconciled against the server's per-operation
// results. Per-operation failures keep their records queued; only a
// transport error aborts the push (the coordinator turns that into
// degraded connectivity). The last non-empty cursor across all batches
// is persisted.
func (s *Syncer) PushOnce(ctx context.Context) error {
	records, err := s.store.Pending(ctx)
	if err != nil {
		return fmt.Errorf("failed to read outbox: %w", err)
	}
	if len(records) == 0 {
		return nil
	}

	ops := make([]ClientSyncOperation, len(records))
	for i, rec := range records {
		ops[i] = operationFromRecord(rec)
	}

	batches, err := BuildBatches(ops, s.budget)
	if err != nil {
		return err
	}

	lastCursor := ""
	for _, batch := range batches {
		resp, err := s.client.Push(ctx, batch)
		if err != nil {
			return fmt.Errorf("push batch failed: %w", err)
		}
		if err := s.reconcilePush(ctx, resp.Results); err != nil {
			return err
		}
		if resp.Cursor != "" {
			lastCursor = resp.Cursor
		}
	}

	if err := s.store.SetCursor(ctx, lastCursor); err != nil {
		return err
	}
	return nil
}

// reconcilePush applies the server's verdicts to the outbox: applied and
// duplicate both acknowledge the record (duplicate means the server
// already saw this opId); failed increments the attempt count and keeps
// the record for the next cycle.
func (s *Syncer) reconcilePush(ctx context.Context, results []PushResult) error {
	var acked []string
	for _, res := range results {
		switch res.Status {
		case StatusApplied, StatusDuplicate:
			acked = append(acked, res.OpID)
		case StatusFailed:
			if err := s.store.Fail(ctx, res.OpID, res.Message); err != nil {
				return err
			}
			s.logger.Warn("push operation failed", "opId", res.OpID, "message", res.Message)
		default:
			s.logger.Warn("unknown push status", "opId", res.OpID, "status", res.Status)
		}
	}
	return s.store.Ack(ctx, acked...)
}
