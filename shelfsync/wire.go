// Package shelfsync implements the offline-first synchronization engine:
// the push pipeline draining the outbox, the pull pipeline applying
// server changes, the defensive payload normalizer, and the coordinator
// scheduling push-then-pull cycles.
package shelfsync

import "encoding/json"

// Push statuses returned by the server per operation. "duplicate" means
// the server already saw this opId and is an acknowledgment, not an
// error.
const (
	StatusApplied   = "applied"
	StatusDuplicate = "duplicate"
	StatusFailed    = "failed"
)

// ClientSyncOperation is one mutation on the wire. OpID is the
// client-generated idempotency key.
type ClientSyncOperation struct {
	OpID            string          `json:"opId"`
	EntityType      string          `json:"entityType"`
	Operation       string          `json:"operation"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ClientTimestamp string          `json:"clientTimestamp"`
}

// PushRequest is the body of POST {baseUrl}/v1/sync/push.
type PushRequest struct {
	Operations []ClientSyncOperation `json:"operations"`
}

// PushResult is the server's verdict on a single operation.
type PushResult struct {
	OpID    string `json:"opId"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// PushResponse is the server's reply to a push batch.
type PushResponse struct {
	Results []PushResult `json:"results"`
	Cursor  string       `json:"cursor,omitempty"`
}

// PullRequest is the body of POST {baseUrl}/v1/sync/pull. A nil cursor
// asks for the full change stream.
type PullRequest struct {
	Cursor *string `json:"cursor"`
}

// SyncChangeEvent is one server-side change. EventID doubles as the
// fallback cursor when the server omits an explicit one.
type SyncChangeEvent struct {
	EventID         string          `json:"eventId"`
	EntityType      string          `json:"entityType"`
	Operation       string          `json:"operation"`
	Payload         json.RawMessage `json:"payload,omitempty"`
	ServerTimestamp string          `json:"serverTimestamp"`
}

// PullResponse is the server's reply to a pull request.
type PullResponse struct {
	Cursor  string            `json:"cursor"`
	Changes []SyncChangeEvent `json:"changes"`
}
