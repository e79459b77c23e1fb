package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-process DocStore. BatchWrite is atomic. Used by
// tests and as a stand-in while wiring a new environment.
type MemoryStore struct {
	mu          sync.Mutex
	collections map[string]map[string]map[string]any
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]map[string]any)}
}

func (s *MemoryStore) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.collections[collection][id]
	if !ok {
		return nil, nil
	}
	return json.Marshal(doc)
}

func (s *MemoryStore) SetDocument(ctx context.Context, collection, id string, value any, merge bool) error {
	fields, err := encodeValue(value)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.setLocked(collection, id, fields, merge)
	return nil
}

func (s *MemoryStore) setLocked(collection, id string, fields map[string]any, merge bool) {
	col := s.collections[collection]
	if col == nil {
		col = make(map[string]map[string]any)
		s.collections[collection] = col
	}

	if merge {
		if existing, ok := col[id]; ok {
			for k, v := range fields {
				existing[k] = v
			}
			return
		}
	}
	col[id] = fields
}

func (s *MemoryStore) QueryDocuments(ctx context.Context, collection string, where Filter, order *OrderBy) ([]Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Document
	for id, doc := range s.collections[collection] {
		if where.Field != "" && !fieldEquals(doc[where.Field], where.Equals) {
			continue
		}
		data, err := json.Marshal(doc)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{ID: id, Data: data})
	}

	if order != nil {
		keys := make(map[string]string, len(docs))
		for _, d := range docs {
			keys[d.ID] = fieldKey(s.collections[collection][d.ID][order.Field])
		}
		sort.Slice(docs, func(i, j int) bool {
			less := keys[docs[i].ID] < keys[docs[j].ID]
			if order.Descending {
				return !less
			}
			return less
		})
	} else {
		sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	}

	return docs, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) BatchWrite(ctx context.Context, ops []Op) error {
	// Encode everything before touching state so a bad op leaves the store
	// untouched.
	encoded := make([]map[string]any, len(ops))
	for i, op := range ops {
		if op.Kind == OpSet {
			fields, err := encodeValue(op.Value)
			if err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			encoded[i] = fields
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, op := range ops {
		switch op.Kind {
		case OpSet:
			s.setLocked(op.Collection, op.ID, encoded[i], op.Merge)
		case OpDelete:
			delete(s.collections[op.Collection], op.ID)
		default:
			return fmt.Errorf("batch op %d: unknown kind %q", i, op.Kind)
		}
	}
	return nil
}

func fieldEquals(have, want any) bool {
	return fieldKey(have) == fieldKey(want)
}

// fieldKey normalizes JSON scalar values for comparison and ordering.
// RFC3339 timestamps compare correctly as strings.
func fieldKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return fmt.Sprintf("%020.4f", t)
	case int:
		return fmt.Sprintf("%020.4f", float64(t))
	case bool:
		if t {
			return "true"
		}
		return "false"
	default:
		data, _ := json.Marshal(t)
		return string(data)
	}
}
