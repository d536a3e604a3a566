package pgstore

import (
	"context"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (m messageStore) Append(ctx context.Context, row store.MessageRow) error {
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now()
	}
	_, err := m.pool.Exec(ctx,
		"INSERT INTO session_messages (session_id, id, created_at, payload) VALUES ($1,$2,$3,$4)",
		row.SessionID, row.ID, row.CreatedAt, row.Payload)
	return err
}

func (m messageStore) Update(ctx context.Context, sessionID, messageID string, payload []byte) error {
	tag, err := m.pool.Exec(ctx,
		"UPDATE session_messages SET payload = $1 WHERE session_id = $2 AND id = $3",
		payload, sessionID, messageID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("message", messageID)
	}
	return nil
}

func (m messageStore) Remove(ctx context.Context, sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := m.pool.Exec(ctx,
		"DELETE FROM session_messages WHERE session_id = $1 AND id = ANY($2)", sessionID, ids)
	return err
}

func (m messageStore) List(ctx context.Context, sessionID string) ([]store.MessageRow, error) {
	rows, err := m.pool.Query(ctx,
		"SELECT session_id, id, created_at, payload FROM session_messages WHERE session_id = $1 ORDER BY created_at", sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.MessageRow, 0)
	for rows.Next() {
		var r store.MessageRow
		if err := rows.Scan(&r.SessionID, &r.ID, &r.CreatedAt, &r.Payload); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
