package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a DocStore over a single jsonb documents table, for
// deployments that talk to the Supabase Postgres directly instead of going
// through PostgREST. BatchWrite runs in one transaction.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, connString string) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	config.MaxConns = 10
	config.MinConns = 2
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	store := &PostgresStore{pool: pool}
	if err := store.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		data JSONB NOT NULL DEFAULT '{}'::jsonb,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_agent_uid
		ON documents ((data->>'agentUid')) WHERE collection = 'houses';`

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var data json.RawMessage
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&data)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return data, nil
}

func (s *PostgresStore) SetDocument(ctx context.Context, collection, id string, value any, merge bool) error {
	query, args, err := setDocumentSQL(collection, id, value, merge)
	if err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("set document: %w", err)
	}
	return nil
}

func setDocumentSQL(collection, id string, value any, merge bool) (string, []any, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return "", nil, fmt.Errorf("encode document: %w", err)
	}

	query := `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data`
	if merge {
		// Shallow merge: keys present in the payload win, the rest survive.
		query = `
		INSERT INTO documents (collection, id, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (collection, id) DO UPDATE SET data = documents.data || EXCLUDED.data`
	}
	return query, []any{collection, id, data}, nil
}

func (s *PostgresStore) QueryDocuments(ctx context.Context, collection string, where Filter, order *OrderBy) ([]Document, error) {
	query := `SELECT id, data FROM documents WHERE collection = $1`
	args := []any{collection}

	if where.Field != "" {
		value, err := json.Marshal(where.Equals)
		if err != nil {
			return nil, fmt.Errorf("encode filter: %w", err)
		}
		query += ` AND data->$2 = $3::jsonb`
		args = append(args, where.Field, string(value))
	}

	if order != nil {
		query += fmt.Sprintf(` ORDER BY data->>$%d`, len(args)+1)
		if order.Descending {
			query += ` DESC`
		}
		args = append(args, order.Field)
	} else {
		query += ` ORDER BY id`
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.Data); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, collection, id string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

func (s *PostgresStore) BatchWrite(ctx context.Context, ops []Op) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback(ctx)

	for i, op := range ops {
		switch op.Kind {
		case OpSet:
			query, args, err := setDocumentSQL(op.Collection, op.ID, op.Value, op.Merge)
			if err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
			if _, err := tx.Exec(ctx, query, args...); err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
		case OpDelete:
			if _, err := tx.Exec(ctx,
				`DELETE FROM documents WHERE collection = $1 AND id = $2`,
				op.Collection, op.ID,
			); err != nil {
				return fmt.Errorf("batch op %d: %w", i, err)
			}
		default:
			return fmt.Errorf("batch op %d: unknown kind %q", i, op.Kind)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}
