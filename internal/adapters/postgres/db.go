// Package postgres provides Postgres + pgvector adapters for chat history,
// document records and similarity search. Search goes through the
// match_documents function so the database does the vector scan.
package postgres

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx database/sql driver
	"github.com/pkg/errors"
)

// DB is an open Postgres connection pool.
type DB struct {
	db *sql.DB
}

// Open connects to the database at dsn.
func Open(ctx context.Context, dsn string) (*DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connecting to database")
	}
	return &DB{db: db}, nil
}

// schema creates the tables and the match_documents function. The function
// returns rows with cosine similarity strictly above the threshold, nearest first.
const schema = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	file_name TEXT NOT NULL,
	status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'error')),
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS document_vectors (
	id BIGSERIAL PRIMARY KEY,
	content TEXT NOT NULL,
	embedding vector(%[1]d) NOT NULL,
	metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGSERIAL PRIMARY KEY,
	session_id TEXT NOT NULL,
	role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
	content TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages (session_id, created_at);

CREATE OR REPLACE FUNCTION match_documents (
	query_embedding vector(%[1]d),
	match_threshold float,
	match_count int
) RETURNS TABLE (id bigint, content text, similarity float)
LANGUAGE sql STABLE AS $$
	SELECT v.id, v.content, 1 - (v.embedding <=> query_embedding) AS similarity
	FROM document_vectors v
	WHERE 1 - (v.embedding <=> query_embedding) > match_threshold
	ORDER BY v.embedding <=> query_embedding
	LIMIT match_count;
$$;
`

// Migrate creates the schema for embeddings of the given dimension.
func (s *DB) Migrate(ctx context.Context, dimensions int) error {
	if dimensions <= 0 {
		dimensions = 1536
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(schema, dimensions)); err != nil {
		return errors.Wrap(err, "migrating schema")
	}
	return nil
}

// History returns the chat history store.
func (s *DB) History() *HistoryStore { return &HistoryStore{db: s.db} }

// Documents returns the document repository.
func (s *DB) Documents() *DocumentRepository { return &DocumentRepository{db: s.db} }

// Vectors returns the pgvector-backed vector store.
func (s *DB) Vectors() *VectorStore { return &VectorStore{db: s.db} }

// Ping checks the database connection.
func (s *DB) Ping() error { return s.db.Ping() }

// Close closes the pool.
func (s *DB) Close() error { return s.db.Close() }
