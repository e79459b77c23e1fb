package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_AbsentIsNilNil(t *testing.T) {
	s := NewMemoryStore()

	data, err := s.GetDocument(context.Background(), "users", "nobody")
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestMemoryStore_SetAndGet(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana", "role": "agent"}, false))

	data, err := s.GetDocument(ctx, "users", "u1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, Decode(data, &doc))
	assert.Equal(t, "Ana", doc["displayName"])
	assert.Equal(t, "agent", doc["role"])
}

func TestMemoryStore_MergePreservesUntouchedFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana", "phone": "555"}, false))
	require.NoError(t, s.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana Maria"}, true))

	data, err := s.GetDocument(ctx, "users", "u1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, Decode(data, &doc))
	assert.Equal(t, "Ana Maria", doc["displayName"])
	assert.Equal(t, "555", doc["phone"])
}

func TestMemoryStore_SetWithoutMergeReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana", "phone": "555"}, false))
	require.NoError(t, s.SetDocument(ctx, "users", "u1", map[string]any{"displayName": "Ana"}, false))

	data, err := s.GetDocument(ctx, "users", "u1")
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, Decode(data, &doc))
	assert.NotContains(t, doc, "phone")
}

func TestMemoryStore_QueryFilterAndOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "houses", "h1", map[string]any{"agentUid": "a1", "createdAt": "2026-01-02T00:00:00Z"}, false))
	require.NoError(t, s.SetDocument(ctx, "houses", "h2", map[string]any{"agentUid": "a2", "createdAt": "2026-01-01T00:00:00Z"}, false))
	require.NoError(t, s.SetDocument(ctx, "houses", "h3", map[string]any{"agentUid": "a1", "createdAt": "2026-01-03T00:00:00Z"}, false))

	docs, err := s.QueryDocuments(ctx, "houses", Filter{Field: "agentUid", Equals: "a1"}, &OrderBy{Field: "createdAt", Descending: true})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "h3", docs[0].ID)
	assert.Equal(t, "h1", docs[1].ID)
}

func TestMemoryStore_QueryZeroFilterMatchesAll(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "imagesToDelete", "p1", map[string]any{"publicId": "p1"}, false))
	require.NoError(t, s.SetDocument(ctx, "imagesToDelete", "p2", map[string]any{"publicId": "p2"}, false))

	docs, err := s.QueryDocuments(ctx, "imagesToDelete", Filter{}, nil)
	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

func TestMemoryStore_BatchWriteIsAtomic(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "houses", "h1", map[string]any{"title": "Casa"}, false))

	// A channel cannot encode to JSON, so the batch must fail without
	// applying the delete that precedes it.
	err := s.BatchWrite(ctx, []Op{
		{Kind: OpDelete, Collection: "houses", ID: "h1"},
		{Kind: OpSet, Collection: "imagesToDelete", ID: "p1", Value: map[string]any{"bad": make(chan int)}},
	})
	require.Error(t, err)

	data, err := s.GetDocument(ctx, "houses", "h1")
	require.NoError(t, err)
	assert.NotNil(t, data, "failed batch must leave the store untouched")
}

func TestMemoryStore_BatchWriteMixedOps(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.SetDocument(ctx, "houses", "h1", map[string]any{"title": "Casa"}, false))

	require.NoError(t, s.BatchWrite(ctx, []Op{
		{Kind: OpSet, Collection: "imagesToDelete", ID: "p1", Value: map[string]any{"publicId": "p1"}},
		{Kind: OpDelete, Collection: "houses", ID: "h1"},
	}))

	gone, err := s.GetDocument(ctx, "houses", "h1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	logged, err := s.GetDocument(ctx, "imagesToDelete", "p1")
	require.NoError(t, err)
	assert.NotNil(t, logged)
}
