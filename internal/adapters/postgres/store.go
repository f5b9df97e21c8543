package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/0xcro3dile/docchat-go/internal/adapters/vectordb"
	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// HistoryStore implements ports.HistoryStore.
type HistoryStore struct {
	db *sql.DB
}

// Recent returns the newest maxCount messages of a session, oldest first.
func (h *HistoryStore) Recent(ctx context.Context, sessionID string, maxCount int) ([]entities.DatabaseMessage, error) {
	if maxCount <= 0 {
		return nil, nil
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, created_at FROM (
			SELECT id, session_id, role, content, created_at
			FROM chat_messages
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent ORDER BY created_at ASC, id ASC
	`, sessionID, maxCount)
	if err != nil {
		return nil, errs.Upstream(err, "querying chat history")
	}
	defer rows.Close()

	var msgs []entities.DatabaseMessage
	for rows.Next() {
		var m entities.DatabaseMessage
		var role string
		if err := rows.Scan(&m.ID, &m.SessionID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, errs.Upstream(err, "scanning chat message")
		}
		m.Role = entities.StoredRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Upstream(err, "reading chat history")
	}
	return msgs, nil
}

// AppendPair writes both rows of a turn in one transaction, the ai row
// stamped one microsecond after the user row.
func (h *HistoryStore) AppendPair(ctx context.Context, sessionID, userContent, aiContent string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Persistence(err, "starting transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO chat_messages (session_id, role, content, created_at)
		VALUES ($1, 'user', $2, $3), ($1, 'ai', $4, $5)
	`, sessionID, userContent, now, aiContent, now.Add(time.Microsecond))
	if err != nil {
		return errs.Persistence(err, "persisting chat turn")
	}
	if err := tx.Commit(); err != nil {
		return errs.Persistence(err, "committing chat turn")
	}
	return nil
}

// DocumentRepository implements ports.DocumentRepository.
type DocumentRepository struct {
	db *sql.DB
}

// Create inserts a new document record.
func (r *DocumentRepository) Create(ctx context.Context, fileName string, status entities.DocumentStatus) (*entities.Document, error) {
	if !status.Valid() {
		return nil, errs.InvalidInput("unknown document status " + string(status))
	}
	doc := entities.Document{FileName: fileName, Status: status}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO documents (file_name, status) VALUES ($1, $2) RETURNING id, created_at`,
		fileName, string(status),
	).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return nil, errs.Upstream(err, "inserting document")
	}
	return &doc, nil
}

// Get loads one document.
func (r *DocumentRepository) Get(ctx context.Context, id int64) (*entities.Document, error) {
	var doc entities.Document
	var status string
	err := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, status, created_at FROM documents WHERE id = $1`, id,
	).Scan(&doc.ID, &doc.FileName, &status, &doc.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("document not found")
	}
	if err != nil {
		return nil, errs.Upstream(err, "loading document")
	}
	doc.Status = entities.DocumentStatus(status)
	return &doc, nil
}

// List returns the newest documents first.
func (r *DocumentRepository) List(ctx context.Context, limit int) ([]entities.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_name, status, created_at FROM documents ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, errs.Upstream(err, "listing documents")
	}
	defer rows.Close()

	var docs []entities.Document
	for rows.Next() {
		var doc entities.Document
		var status string
		if err := rows.Scan(&doc.ID, &doc.FileName, &status, &doc.CreatedAt); err != nil {
			return nil, errs.Upstream(err, "scanning document")
		}
		doc.Status = entities.DocumentStatus(status)
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Upstream(err, "listing documents")
	}
	return docs, nil
}

// MarkErrored moves a pending or processing document to error.
func (r *DocumentRepository) MarkErrored(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, entities.StatusError)
}

// MarkCompleted moves a pending or processing document to completed.
func (r *DocumentRepository) MarkCompleted(ctx context.Context, id int64) (bool, error) {
	return r.transition(ctx, id, entities.StatusCompleted)
}

func (r *DocumentRepository) transition(ctx context.Context, id int64, to entities.DocumentStatus) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE documents SET status = $1 WHERE id = $2 AND status IN ('pending', 'processing')`,
		string(to), id,
	)
	if err != nil {
		return false, errs.Upstream(err, "updating document status")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, errs.Upstream(err, "updating document status")
	}
	return n > 0, nil
}

// VectorStore implements ports.VectorStore with pgvector.
type VectorStore struct {
	db *sql.DB
}

// Search calls match_documents and re-applies the ranking rules so a
// loosely written database function cannot widen the result.
func (s *VectorStore) Search(ctx context.Context, query []float32, threshold float64, limit int) ([]entities.RelevantDocument, error) {
	if err := vectordb.CheckArgs(threshold, limit); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT content, similarity FROM match_documents($1, $2, $3)`,
		pgvector.NewVector(query), threshold, limit,
	)
	if err != nil {
		return nil, errs.Upstream(err, "similarity search failed")
	}
	defer rows.Close()

	var docs []entities.RelevantDocument
	for rows.Next() {
		var d entities.RelevantDocument
		if err := rows.Scan(&d.Content, &d.Similarity); err != nil {
			return nil, errs.Upstream(err, "scanning match")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Upstream(err, "reading matches")
	}
	return vectordb.Rank(docs, threshold, limit), nil
}

// Store inserts chunk vectors, replacing earlier vectors of the same documents.
func (s *VectorStore) Store(ctx context.Context, chunks []entities.Chunk) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Upstream(err, "starting transaction")
	}
	defer tx.Rollback()

	cleared := make(map[int64]bool)
	for _, c := range chunks {
		if cleared[c.DocumentID] {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM document_vectors WHERE metadata->>'document_id' = $1`,
			jsonNumber(c.DocumentID),
		); err != nil {
			return errs.Upstream(err, "clearing old vectors")
		}
		cleared[c.DocumentID] = true
	}

	for _, c := range chunks {
		metadata, err := json.Marshal(c.Metadata())
		if err != nil {
			return errors.Wrap(err, "encoding metadata")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO document_vectors (content, embedding, metadata) VALUES ($1, $2, $3)`,
			c.Content, pgvector.NewVector(c.Embedding), string(metadata),
		); err != nil {
			return errs.Upstream(err, "inserting vector")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Upstream(err, "committing vectors")
	}
	return nil
}

func jsonNumber(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}
