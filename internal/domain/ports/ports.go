// Package ports defines interfaces for external dependencies.
// Usecases depend on these abstractions; adapters implement them.
package ports

import (
	"context"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

// EmbeddingService generates vector embeddings for text.
type EmbeddingService interface {
	// Embed generates a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SimilaritySearch returns stored chunks semantically close to a query vector.
// Results have similarity strictly above threshold, sorted descending, at most limit long.
type SimilaritySearch interface {
	Search(ctx context.Context, query []float32, threshold float64, limit int) ([]entities.RelevantDocument, error)
}

// VectorWriter persists embedded chunks. Only the vectorization worker writes vectors.
// Storing chunks of a document replaces any vectors stored for it before.
type VectorWriter interface {
	Store(ctx context.Context, chunks []entities.Chunk) error
}

// VectorStore is a backend that can both search and store vectors.
type VectorStore interface {
	SimilaritySearch
	VectorWriter
}

// HistoryStore is the append-only per-session message log.
type HistoryStore interface {
	// Recent returns at most maxCount of the newest messages, oldest first.
	Recent(ctx context.Context, sessionID string, maxCount int) ([]entities.DatabaseMessage, error)

	// AppendPair writes the user and ai rows of one turn together, or neither.
	AppendPair(ctx context.Context, sessionID, userContent, aiContent string) error
}

// CompletionStream is an in-flight model response.
// Recv returns io.EOF after the last chunk.
type CompletionStream interface {
	Recv() (string, error)
	Close() error
}

// CompletionStreamer sends a prompt to a language model and streams the answer.
type CompletionStreamer interface {
	Stream(ctx context.Context, systemPrompt, userContent string) (CompletionStream, error)
}

// DocumentRepository owns Document lifecycle records.
type DocumentRepository interface {
	Create(ctx context.Context, fileName string, status entities.DocumentStatus) (*entities.Document, error)
	Get(ctx context.Context, id int64) (*entities.Document, error)
	List(ctx context.Context, limit int) ([]entities.Document, error)

	// MarkErrored and MarkCompleted only move documents that are not terminal.
	// They report whether a row changed.
	MarkErrored(ctx context.Context, id int64) (bool, error)
	MarkCompleted(ctx context.Context, id int64) (bool, error)
}

// WorkflowTrigger asks the external chunk/embed workflow to process a document.
type WorkflowTrigger interface {
	Trigger(ctx context.Context, documentID int64, filePath string) error
}

// SessionLocker serializes turns within one chat session.
type SessionLocker interface {
	// Lock blocks until the session is free or ctx is done.
	// The returned function releases the lock and is safe to call more than once.
	Lock(ctx context.Context, sessionID string) (func(), error)
}

// DocumentLoader reads an uploaded file by name and returns its text.
type DocumentLoader interface {
	Load(ctx context.Context, fileName string) (string, error)
}

// DocumentParser extracts text from binary document formats.
type DocumentParser interface {
	// Parse extracts text content from document bytes.
	Parse(ctx context.Context, data []byte, filename string) (string, error)

	// SupportedFormats returns formats this parser handles (e.g., "pdf").
	SupportedFormats() []string
}

// FileWatcher monitors a directory for changes.
type FileWatcher interface {
	// Watch starts monitoring the directory and emits events.
	Watch(ctx context.Context, dir string) (<-chan FileEvent, error)

	// Stop stops the watcher.
	Stop() error
}

// FileEvent represents a file system change.
type FileEvent struct {
	Path      string
	Operation FileOperation
}

// FileOperation is the type of file change.
type FileOperation int

const (
	FileCreated FileOperation = iota
	FileModified
	FileDeleted
)
