package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// DocumentRepository implements ports.DocumentRepository on the documents table.
type DocumentRepository struct {
	db *sql.DB
}

// Create inserts a new document record.
func (r *DocumentRepository) Create(ctx context.Context, fileName string, status entities.DocumentStatus) (*entities.Document, error) {
	if !status.Valid() {
		return nil, errs.InvalidInput("unknown document status " + string(status))
	}
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (file_name, status, created_at) VALUES (?, ?, ?)`,
		fileName, string(status), now,
	)
	if err != nil {
		return nil, errs.Upstream(err, "inserting document")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, errs.Upstream(err, "reading document id")
	}
	return &entities.Document{ID: id, FileName: fileName, Status: status, CreatedAt: now}, nil
}

// Get loads one document.
func (r *DocumentRepository) Get(ctx context.Context, id int64) (*entities.Document, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, file_name, status, created_at FROM documents WHERE id = ?`, id)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errs.NotFound("document not found")
	}
	if err != nil {
		return nil, errs.Upstream(err, "loading document")
	}
	return doc, nil
}

// List returns the newest documents first.
func (r *DocumentRepository) List(ctx context.Context, limit int) ([]entities.Document, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, file_name, status, created_at FROM documents ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, errs.Upstream(err, "listing documents")
	}
	defer rows.Close()

	var docs []entities.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, errs.Upstream(err, "scanning document")
		}
		docs = append(docs, *doc)
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
		`UPDATE documents SET status = ? WHERE id = ? AND status IN ('pending', 'processing')`,
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

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*entities.Document, error) {
	var doc entities.Document
	var status string
	if err := s.Scan(&doc.ID, &doc.FileName, &status, &doc.CreatedAt); err != nil {
		return nil, err
	}
	doc.Status = entities.DocumentStatus(status)
	return &doc, nil
}
