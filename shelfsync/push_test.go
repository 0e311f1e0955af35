package shelfsync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

func opWithPayload(id string, payloadSize int) ClientSyncOperation {
	return ClientSyncOperation{
		OpID:            id,
		EntityType:      shelfstore.EntityGame,
		Operation:       shelfstore.OpUpsert,
		Payload:         mustRaw(fmt.Sprintf(`{"gameId":%q,"blob":%q}`, id, strings.Repeat("x", payloadSize))),
		ClientTimestamp: "2026-01-02T03:04:05Z",
	}
}

func mustRaw(s string) json.RawMessage { return json.RawMessage(s) }

func TestBuildBatchesRespectsBudget(t *testing.T) {
	budget := 2048
	var ops []ClientSyncOperation
	for i := 0; i < 10; i++ {
		ops = append(ops, opWithPayload(fmt.Sprintf("op-%02d", i), 400))
	}

	batches, err := BuildBatches(ops, budget)
	require.NoError(t, err)
	require.Greater(t, len(batches), 1)

	// Order is preserved within and across batches.
	var flat []string
	for _, batch := range batches {
		body, err := json.Marshal(PushRequest{Operations: batch})
		require.NoError(t, err)
		require.LessOrEqual(t, len(body), budget)
		for _, op := range batch {
			flat = append(flat, op.OpID)
		}
	}
	require.Len(t, flat, len(ops))
	for i, id := range flat {
		require.Equal(t, ops[i].OpID, id)
	}
}

func TestBuildBatchesOversizedOperationFormsOwnBatch(t *testing.T) {
	budget := 1024
	ops := []ClientSyncOperation{
		opWithPayload("small-1", 100),
		opWithPayload("huge", 5000), // alone exceeds the budget
		opWithPayload("small-2", 100),
	}

	batches, err := BuildBatches(ops, budget)
	require.NoError(t, err)
	require.Len(t, batches, 3)
	require.Equal(t, "small-1", batches[0][0].OpID)
	require.Equal(t, "huge", batches[1][0].OpID)
	require.Len(t, batches[1], 1)
	require.Equal(t, "small-2", batches[2][0].OpID)
}

func TestBuildBatchesEmpty(t *testing.T) {
	batches, err := BuildBatches(nil, 0)
	require.NoError(t, err)
	require.Empty(t, batches)
}

func TestPushOnceReconcilesResults(t *testing.T) {
	var pushed [][]string
	syncer := newTestSyncer(t, func(r *http.Request) (*http.Response, error) {
		require.Equal(t, "/v1/sync/push", r.URL.Path)
		req := decodePushRequest(t, r)
		var ids []string
		results := make([]PushResult, len(req.Operations))
		for i, op := range req.Operations {
			ids = append(ids, op.OpID)
			switch op.OpID {
			case "B":
				results[i] = PushResult{OpID: op.OpID, Status: StatusFailed, Message: "validation failed"}
			case "C":
				results[i] = PushResult{OpID: op.OpID, Status: StatusDuplicate}
			default:
				results[i] = PushResult{OpID: op.OpID, Status: StatusApplied}
			}
		}
		pushed = append(pushed, ids)
		return jsonResponse(t, http.StatusOK, PushResponse{Results: results, Cursor: "cur-9"}), nil
	})

	ctx := context.Background()
	store := syncer.Store()
	for _, id := range []string{"A", "B", "C"} {
		require.NoError(t, store.Enqueue(ctx, &shelfstore.OutboxRecord{
			OpID: id, EntityType: shelfstore.EntityGame, Operation: shelfstore.OpUpsert,
			Payload: mustRaw(`{"gameId":"1","platformId":1}`),
		}))
	}

	require.NoError(t, syncer.PushOnce(ctx))
	require.Equal(t, [][]string{{"A", "B", "C"}}, pushed)

	// applied and duplicate are both acks; failed stays with bookkeeping.
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, "B", pending[0].OpID)
	require.Equal(t, 1, pending[0].AttemptCount)
	require.Equal(t, "validation failed", pending[0].LastError)

	cur, err := store.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, "cur-9", cur)
}

func TestPushOnceEmptyOutboxSkipsNetwork(t *testing.T) {
	calls := 0
	syncer := newTestSyncer(t, func(r *http.Request) (*http.Response, error) {
		calls++
		return jsonResponse(t, http.StatusOK, PushResponse{}), nil
	})
	require.NoError(t, syncer.PushOnce(context.Background()))
	require.Zero(t, calls)
}

func TestPushOnceTransportErrorAborts(t *testing.T) {
	syncer := newTestSyncer(t, func(r *http.Request) (*http.Response, error) {
		return nil, errors.New("connection refused")
	})
	ctx := context.Background()
	require.NoError(t, syncer.Store().Enqueue(ctx, &shelfstore.OutboxRecord{
		OpID: "A", EntityType: shelfstore.EntityGame, Operation: shelfstore.OpUpsert,
	}))

	err := syncer.PushOnce(ctx)
	require.Error(t, err)

	// The record survives untouched for the next cycle.
	pending, err := syncer.Store().Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Zero(t, pending[0].AttemptCount)
}

func TestPushOnceNon2xxIsError(t *testing.T) {
	syncer := newTestSyncer(t, func(r *http.Request) (*http.Response, error) {
		return jsonResponse(t, http.StatusBadGateway, map[string]string{"error": "upstream"}), nil
	})
	ctx := context.Background()
	require.NoError(t, syncer.Store().Enqueue(ctx, &shelfstore.OutboxRecord{
		OpID: "A", EntityType: shelfstore.EntityGame, Operation: shelfstore.OpUpsert,
	}))
	require.Error(t, syncer.PushOnce(ctx))
}

func TestPushOnceKeepsLastNonEmptyCursor(t *testing.T) {
	// Force one op per batch so multiple batches are sent.
	call := 0
	syncer := newTestSyncer(t, func(r *http.Request) (*http.Response, error) {
		call++
		cursor := ""
		if call == 1 {
			cursor = "cur-1"
		}
		req := decodePushRequest(t, r)
		results := make([]PushResult, len(req.Operations))
		for i, op := range req.Operations {
			results[i] = PushResult{OpID: op.OpID, Status: StatusApplied}
		}
		return jsonResponse(t, http.StatusOK, PushResponse{Results: results, Cursor: cursor}), nil
	})
	syncer.budget = 600

	ctx := context.Background()
	store := syncer.Store()
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Enqueue(ctx, &shelfstore.OutboxRecord{
			OpID:       fmt.Sprintf("op-%d", i),
			EntityType: shelfstore.EntityGame,
			Operation:  shelfstore.OpUpsert,
			Payload:    mustRaw(fmt.Sprintf(`{"gameId":"g","blob":%q}`, strings.Repeat("y", 400))),
		}))
	}

	require.NoError(t, syncer.PushOnce(ctx))
	require.Greater(t, call, 1)

	// Later batches returned no cursor; the last non-empty one sticks.
	cur, err := store.Cursor(ctx)
	require.NoError(t, err)
	require.Equal(t, "cur-1", cur)
}
