package documents

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Adithya-Monish-Kumar-K/Sentence-Analysis-Platform/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
    id           TEXT PRIMARY KEY,
    title        TEXT NOT NULL DEFAULT '',
    body         TEXT NOT NULL,
    content_hash TEXT NOT NULL,
    created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// Store is a PostgreSQL-backed Repository.
type Store struct {
	db         *postgres.Client
	generation string
	logger     *slog.Logger
}

// NewStore creates a Store. generation is folded into every loaded
// document's version stamp.
func NewStore(db *postgres.Client, generation string) *Store {
	return &Store{
		db:         db,
		generation: generation,
		logger:     slog.Default().With("component", "document-store"),
	}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

// Get loads a document by ID.
func (s *Store) Get(ctx context.Context, id string) (*Document, error) {
	doc := &Document{generation: s.generation}
	err := s.db.DB.QueryRowContext(ctx,
		`SELECT id, title, body, content_hash, created_at, updated_at
		 FROM documents
		 WHERE id = $1`,
		id,
	).Scan(&doc.ID, &doc.Title, &doc.Body, &doc.ContentHash, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", id, err)
	}
	return doc, nil
}

// Put inserts or replaces a document. The content hash is only rewritten
// when the body changed, so unchanged saves keep their version stamp.
func (s *Store) Put(ctx context.Context, id, title, body string) (*Document, error) {
	doc := &Document{generation: s.generation}
	hash := HashContent(body)
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			`INSERT INTO documents (id, title, body, content_hash)
			 VALUES ($1, $2, $3, $4)
			 ON CONFLICT (id) DO UPDATE
			 SET title = EXCLUDED.title,
			     body = EXCLUDED.body,
			     content_hash = EXCLUDED.content_hash,
			     updated_at = CASE
			         WHEN documents.content_hash = EXCLUDED.content_hash THEN documents.updated_at
			         ELSE now()
			     END
			 RETURNING id, title, body, content_hash, created_at, updated_at`,
			id, title, body, hash,
		).Scan(&doc.ID, &doc.Title, &doc.Body, &doc.ContentHash, &doc.CreatedAt, &doc.UpdatedAt)
	})
	if err != nil {
		return nil, fmt.Errorf("saving document %s: %w", id, err)
	}
	s.logger.Info("document saved", "id", id, "content_hash", hash[:12], "size", len(body))
	return doc, nil
}

// Delete removes a document.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting document %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
