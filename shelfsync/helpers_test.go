package shelfsync

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/thetigeregg/game-shelf-sub002/shelfstore"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResponse(t *testing.T, status int, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewReader(data)),
	}
}

func newTestStoreDB(t *testing.T) *shelfstore.Store {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s, err := shelfstore.OpenDB(db)
	require.NoError(t, err)
	return s
}

// newTestSyncer wires a syncer to a fake transport.
func newTestSyncer(t *testing.T, rt roundTripFunc) *Syncer {
	t.Helper()
	store := newTestStoreDB(t)
	syncer := NewSyncer(store, DefaultConfig("http://shelf.test/"), nil, nil)
	if rt != nil {
		syncer.Client().SetHTTPClient(&http.Client{Transport: rt})
	}
	return syncer
}

func mustJSON(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func decodePushRequest(t *testing.T, r *http.Request) PushRequest {
	t.Helper()
	var req PushRequest
	require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
	return req
}
