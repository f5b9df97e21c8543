package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/0xcro3dile/docchat-go/internal/domain/entities"
	"github.com/0xcro3dile/docchat-go/internal/domain/errs"
)

// HistoryStore implements ports.HistoryStore on the chat_messages table.
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
			WHERE session_id = ?
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		) ORDER BY created_at ASC, id ASC
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

// AppendPair writes both rows of a turn in one transaction. The ai row is
// stamped strictly after the user row so ordering survives equal clocks.
func (h *HistoryStore) AppendPair(ctx context.Context, sessionID, userContent, aiContent string) error {
	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return errs.Persistence(err, "starting transaction")
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	rows := []struct {
		role    entities.StoredRole
		content string
		at      time.Time
	}{
		{entities.StoredUser, userContent, now},
		{entities.StoredAI, aiContent, now.Add(time.Microsecond)},
	}
	for _, r := range rows {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`,
			sessionID, string(r.role), r.content, r.at,
		)
		if err != nil {
			return errs.Persistence(errors.Wrapf(err, "inserting %s message", r.role), "persisting chat turn")
		}
	}

	if err := tx.Commit(); err != nil {
		return errs.Persistence(err, "committing chat turn")
	}
	return nil
}
