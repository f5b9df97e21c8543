// Package sqlite provides SQLite-backed adapters for chat history, document
// records and vectors. Clean Architecture: Adapters implementing
// ports.HistoryStore, ports.DocumentRepository and ports.VectorStore.
package sqlite

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
	"github.com/pkg/errors"
)

// DB is an open SQLite database with the docchat schema applied.
type DB struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string) (*DB, error) {
	if path == "" {
		path = "./data/docchat.db"
	}

	dsn := path
	if path != ":memory:" {
		// Ensure data directory exists
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.Wrap(err, "creating data directory")
		}
		sep := "?"
		if strings.Contains(path, "?") {
			sep = "&"
		}
		dsn = path + sep + "_busy_timeout=5000&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "opening database")
	}
	// One connection serializes writers and keeps :memory: databases shared.
	db.SetMaxOpenConns(1)

	store := &DB{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing schema")
	}
	return store, nil
}

// initSchema creates the necessary tables.
func (s *DB) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		file_name TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'processing', 'completed', 'error')),
		created_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS document_vectors (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		embedding BLOB NOT NULL,
		metadata TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_document_vectors_document_id ON document_vectors(document_id);
	CREATE TABLE IF NOT EXISTS chat_messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('user', 'ai')),
		content TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_messages_session ON chat_messages(session_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// History returns the chat history store backed by this database.
func (s *DB) History() *HistoryStore { return &HistoryStore{db: s.db} }

// Documents returns the document repository backed by this database.
func (s *DB) Documents() *DocumentRepository { return &DocumentRepository{db: s.db} }

// Vectors returns the vector store backed by this database.
func (s *DB) Vectors() *VectorStore { return &VectorStore{db: s.db} }

// Ping checks the database connection.
func (s *DB) Ping() error { return s.db.Ping() }

// Close closes the database connection.
func (s *DB) Close() error {
	return s.db.Close()
}
