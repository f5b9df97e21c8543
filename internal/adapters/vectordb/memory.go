package vectordb

import (
	"context"
	"sync"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
)

// InMemoryStore is a process-local vector store for development and tests.
// Its contents are lost on restart.
type InMemoryStore struct {
	mu     sync.RWMutex
	chunks []entities.Chunk
}

// NewInMemoryStore creates a new in-memory vector store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Store saves chunks with their embeddings, replacing earlier chunks of the
// same documents.
func (s *InMemoryStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	replaced := make(map[int64]bool)
	for _, c := range chunks {
		replaced[c.DocumentID] = true
	}
	kept := s.chunks[:0]
	for _, c := range s.chunks {
		if !replaced[c.DocumentID] {
			kept = append(kept, c)
		}
	}
	s.chunks = append(kept, chunks...)
	return nil
}

// Search finds chunks similar to a query embedding.
func (s *InMemoryStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]entities.RelevantDocument, error) {
	if err := CheckArgs(threshold, limit); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	scored := make([]entities.RelevantDocument, len(s.chunks))
	for i, c := range s.chunks {
		scored[i] = entities.RelevantDocument{
			Content:    c.Content,
			Similarity: CosineSimilarity(query, c.Embedding),
		}
	}
	return Rank(scored, threshold, limit), nil
}

// Len returns the number of stored chunks.
func (s *InMemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}
