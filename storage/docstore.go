package storage

import (
	"context"
	"encoding/json"
	"fmt"
)

// DocStore is the collection-oriented document store the application sits
// on. GetDocument returns (nil, nil) when the document is absent: absence is
// a valid state and must never be conflated with a fetch error.
type DocStore interface {
	GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error)
	// SetDocument writes value under collection/id. With merge set, only the
	// top-level fields present in value are touched; unrelated fields are
	// preserved.
	SetDocument(ctx context.Context, collection, id string, value any, merge bool) error
	QueryDocuments(ctx context.Context, collection string, where Filter, order *OrderBy) ([]Document, error)
	DeleteDocument(ctx context.Context, collection, id string) error
	// BatchWrite commits a list of set/delete ops. Atomicity depends on the
	// backend: Postgres commits in one transaction, the PostgREST client
	// applies ops sequentially and stops at the first failure.
	BatchWrite(ctx context.Context, ops []Op) error
}

type Document struct {
	ID   string
	Data json.RawMessage
}

// Filter is a single top-level field equality. The zero Filter matches all
// documents in the collection.
type Filter struct {
	Field  string
	Equals any
}

type OrderBy struct {
	Field      string
	Descending bool
}

type OpKind string

const (
	OpSet    OpKind = "set"
	OpDelete OpKind = "delete"
)

type Op struct {
	Kind       OpKind
	Collection string
	ID         string
	Value      any
	Merge      bool
}

// Decode unmarshals a document payload into v.
func Decode(raw json.RawMessage, v any) error {
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}

func encodeValue(value any) (map[string]any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	fields := make(map[string]any)
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return fields, nil
}
