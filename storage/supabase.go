package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"casalista/config"
	"casalista/logging"
)

// SupabaseStore is a DocStore over the Supabase PostgREST API, for clients
// that hold only the anon key. Writes go through the same documents table
// the PostgresStore uses.
//
// BatchWrite here is best-effort: PostgREST has no cross-request
// transaction, so ops apply sequentially and the batch stops at the first
// failure with the earlier ops already committed.
type SupabaseStore struct {
	url     string
	anonKey string
	client  *http.Client
}

func NewSupabaseStore(cfg *config.SupabaseConfig, client *http.Client) *SupabaseStore {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &SupabaseStore{
		url:     cfg.URL,
		anonKey: cfg.AnonKey,
		client:  client,
	}
}

type documentRow struct {
	Collection string          `json:"collection"`
	ID         string          `json:"id"`
	Data       json.RawMessage `json:"data"`
}

func (s *SupabaseStore) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	endpoint := s.url + "/rest/v1/documents?select=data" +
		"&collection=eq." + url.QueryEscape(collection) +
		"&id=eq." + url.QueryEscape(id)

	body, err := s.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return rows[0].Data, nil
}

func (s *SupabaseStore) SetDocument(ctx context.Context, collection, id string, value any, merge bool) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	if merge {
		// PostgREST upsert replaces the whole row, so a merge needs the
		// current fields folded in client-side first.
		existing, err := s.GetDocument(ctx, collection, id)
		if err != nil {
			return err
		}
		if existing != nil {
			merged := make(map[string]any)
			if err := json.Unmarshal(existing, &merged); err != nil {
				return fmt.Errorf("decode existing document: %w", err)
			}
			var fields map[string]any
			if err := json.Unmarshal(data, &fields); err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
			for k, v := range fields {
				merged[k] = v
			}
			if data, err = json.Marshal(merged); err != nil {
				return fmt.Errorf("encode document: %w", err)
			}
		}
	}

	row, err := json.Marshal(documentRow{Collection: collection, ID: id, Data: data})
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}

	_, err = s.do(ctx, http.MethodPost, s.url+"/rest/v1/documents", bytes.NewReader(row), "resolution=merge-duplicates")
	return err
}

func (s *SupabaseStore) QueryDocuments(ctx context.Context, collection string, where Filter, order *OrderBy) ([]Document, error) {
	endpoint := s.url + "/rest/v1/documents?select=id,data" +
		"&collection=eq." + url.QueryEscape(collection)

	if where.Field != "" {
		endpoint += "&data->>" + url.QueryEscape(where.Field) + "=eq." + url.QueryEscape(fmt.Sprintf("%v", where.Equals))
	}
	if order != nil {
		direction := "asc"
		if order.Descending {
			direction = "desc"
		}
		endpoint += "&order=data->>" + url.QueryEscape(order.Field) + "." + direction
	}

	body, err := s.do(ctx, http.MethodGet, endpoint, nil, "")
	if err != nil {
		return nil, err
	}

	var rows []documentRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, Document{ID: row.ID, Data: row.Data})
	}
	return docs, nil
}

func (s *SupabaseStore) DeleteDocument(ctx context.Context, collection, id string) error {
	endpoint := s.url + "/rest/v1/documents" +
		"?collection=eq." + url.QueryEscape(collection) +
		"&id=eq." + url.QueryEscape(id)

	_, err := s.do(ctx, http.MethodDelete, endpoint, nil, "")
	return err
}

func (s *SupabaseStore) BatchWrite(ctx context.Context, ops []Op) error {
	for i, op := range ops {
		var err error
		switch op.Kind {
		case OpSet:
			err = s.SetDocument(ctx, op.Collection, op.ID, op.Value, op.Merge)
		case OpDelete:
			err = s.DeleteDocument(ctx, op.Collection, op.ID)
		default:
			err = fmt.Errorf("unknown kind %q", op.Kind)
		}
		if err != nil {
			if i > 0 {
				log.Printf("Warning: batch stopped at op %d of %d, earlier ops are committed", i, len(ops))
			}
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}
	return nil
}

func (s *SupabaseStore) do(ctx context.Context, method, endpoint string, body io.Reader, prefer string) ([]byte, error) {
	logging.Debugf("%s %s", method, endpoint)

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("apikey", s.anonKey)
	req.Header.Set("Authorization", "Bearer "+s.anonKey)
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("supabase error %d: %s", resp.StatusCode, string(data))
	}
	return data, nil
}
