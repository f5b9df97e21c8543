package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/0xcro3dile/docchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// VectorStore implements ports.VectorStore on the document_vectors table.
// Search is brute force: every vector is scored in process.
type VectorStore struct {
	db *sql.DB
}

// Store saves chunks with their embeddings, replacing earlier vectors of the
// same documents.
func (s *VectorStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Upstream(err, "starting transaction")
	}
	defer tx.Rollback()

	cleared := make(map[int64]bool)
	for _, chunk := range chunks {
		if cleared[chunk.DocumentID] {
			continue
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM document_vectors WHERE document_id = ?`, chunk.DocumentID); err != nil {
			return errs.Upstream(err, "clearing old vectors")
		}
		cleared[chunk.DocumentID] = true
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO document_vectors (document_id, content, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return errs.Upstream(err, "preparing statement")
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, chunk := range chunks {
		embeddingJSON, err := json.Marshal(chunk.Embedding)
		if err != nil {
			return errors.Wrap(err, "encoding embedding")
		}
		metadataJSON, err := json.Marshal(chunk.Metadata())
		if err != nil {
			return errors.Wrap(err, "encoding metadata")
		}
		if _, err := stmt.ExecContext(ctx, chunk.DocumentID, chunk.Content, embeddingJSON, metadataJSON, now); err != nil {
			return errs.Upstream(err, "inserting vector")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Upstream(err, "committing vectors")
	}
	return nil
}

// Search scores every stored vector against query and ranks the matches.
func (s *VectorStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]entities.RelevantDocument, error) {
	if err := vectordb.CheckArgs(threshold, limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, content, embedding FROM document_vectors ORDER BY id`)
	if err != nil {
		return nil, errs.Upstream(err, "querying vectors")
	}
	defer rows.Close()

	var scored []entities.RelevantDocument
	for rows.Next() {
		var id int64
		var content string
		var embeddingJSON []byte
		if err := rows.Scan(&id, &content, &embeddingJSON); err != nil {
			return nil, errs.Upstream(err, "scanning vector")
		}

		var embedding []float32
		if err := json.Unmarshal(embeddingJSON, &embedding); err != nil {
			log.Warn().Err(err).Str("component", "sqlite").Int64("vector_id", id).Msg("skipping corrupted embedding")
			continue
		}
		scored = append(scored, entities.RelevantDocument{
			Content:    content,
			Similarity: vectordb.CosineSimilarity(query, embedding),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Upstream(err, "reading vectors")
	}

	return vectordb.Rank(scored, threshold, limit), nil
}

// Count returns the number of stored vectors.
func (s *VectorStore) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM document_vectors").Scan(&count)
	return count, err
}
