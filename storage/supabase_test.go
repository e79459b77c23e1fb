package storage

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"casalista/config"
)

// fakePostgREST keeps rows keyed by collection/id and answers the handful
// of query shapes the store issues.
type fakePostgREST struct {
	mu       sync.Mutex
	rows     map[string]json.RawMessage
	requests []string
	failNext bool
}

func newFakePostgREST() *fakePostgREST {
	return &fakePostgREST{rows: make(map[string]json.RawMessage)}
}

func (f *fakePostgREST) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		assert.Equal(t, "test-anon-key", r.Header.Get("apikey"))
		assert.Equal(t, "Bearer test-anon-key", r.Header.Get("Authorization"))

		f.requests = append(f.requests, r.Method+" "+r.URL.RawQuery)
		if f.failNext {
			f.failNext = false
			http.Error(w, `{"message":"boom"}`, http.StatusInternalServerError)
			return
		}

		q := r.URL.Query()
		collection := trimEq(q.Get("collection"))
		id := trimEq(q.Get("id"))

		switch r.Method {
		case http.MethodGet:
			var out []map[string]any
			for key, data := range f.rows {
				if key == collection+"/"+id || (id == "" && len(key) > len(collection) && key[:len(collection)] == collection) {
					row := map[string]any{"data": json.RawMessage(data)}
					row["id"] = key[len(collection)+1:]
					out = append(out, row)
				}
			}
			json.NewEncoder(w).Encode(out)
		case http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var row struct {
				Collection string          `json:"collection"`
				ID         string          `json:"id"`
				Data       json.RawMessage `json:"data"`
			}
			require.NoError(t, json.Unmarshal(body, &row))
			assert.Equal(t, "resolution=merge-duplicates", r.Header.Get("Prefer"))
			f.rows[row.Collection+"/"+row.ID] = row.Data
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			delete(f.rows, collection+"/"+id)
			w.WriteHeader(http.StatusNoContent)
		default:
			http.Error(w, "unexpected method", http.StatusMethodNotAllowed)
		}
	}
}

func trimEq(s string) string {
	if len(s) > 3 && s[:3] == "eq." {
		return s[3:]
	}
	return s
}

func newTestSupabaseStore(t *testing.T) (*SupabaseStore, *fakePostgREST) {
	t.Helper()
	fake := newFakePostgREST()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := &config.SupabaseConfig{URL: srv.URL, AnonKey: "test-anon-key"}
	return NewSupabaseStore(cfg, srv.Client()), fake
}

func TestSupabaseStore_GetDocumentAbsent(t *testing.T) {
	store, _ := newTestSupabaseStore(t)

	data, err := store.GetDocument(context.Background(), "users", "nobody")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSupabaseStore_SetAndGet(t *testing.T) {
	store, _ := newTestSupabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana"}, false))

	data, err := store.GetDocument(ctx, "users", "u1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, Decode(data, &doc))
	assert.Equal(t, "Ana", doc["displayName"])
}

func TestSupabaseStore_MergeFoldsExistingFields(t *testing.T) {
	store, _ := newTestSupabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana", "phone": "555"}, false))
	require.NoError(t, store.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana Maria"}, true))

	data, err := store.GetDocument(ctx, "users", "u1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, Decode(data, &doc))
	assert.Equal(t, "Ana Maria", doc["displayName"])
	assert.Equal(t, "555", doc["phone"])
}

func TestSupabaseStore_DeleteDocument(t *testing.T) {
	store, _ := newTestSupabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetDocument(ctx, "houses", "h1", map[string]any{"title": "Casa"}, false))
	require.NoError(t, store.DeleteDocument(ctx, "houses", "h1"))

	data, err := store.GetDocument(ctx, "houses", "h1")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestSupabaseStore_ErrorStatusSurfacesBody(t *testing.T) {
	store, fake := newTestSupabaseStore(t)
	fake.failNext = true

	_, err := store.GetDocument(context.Background(), "users", "u1")
	require.Error(t, err)
	assert.ErrorContains(t, err, "supabase error 500")
	assert.ErrorContains(t, err, "boom")
}

func TestSupabaseStore_BatchWriteStopsAtFirstFailure(t *testing.T) {
	store, _ := newTestSupabaseStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetDocument(ctx, "houses", "h1", map[string]any{"title": "Casa"}, false))

	// First op succeeds, second is rejected; the first stays committed.
	// Callers needing atomicity use the Postgres store.
	ops := []Op{
		{Kind: OpSet, Collection: "imagesToDelete", ID: "p1", Value: map[string]any{"publicId": "p1"}},
		{Kind: OpKind("truncate"), Collection: "houses", ID: "h1"},
	}
	err := store.BatchWrite(ctx, ops)
	require.Error(t, err)
	assert.ErrorContains(t, err, "batch op 1")

	logged, err := store.GetDocument(ctx, "imagesToDelete", "p1")
	require.NoError(t, err)
	assert.NotNil(t, logged)
}
