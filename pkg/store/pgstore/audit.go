package pgstore

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// auditRingLimit bounds each session's audit log to its most recent entries,
// matching the ring behavior in store/memstore.
const auditRingLimit = 500

func (a auditLogStore) Append(ctx context.Context, entry store.AuditEntry) error {
	_, err := a.pool.Exec(ctx, `
		INSERT INTO session_audit_log (session_id, seq, at, kind, detail)
		VALUES ($1, COALESCE((SELECT max(seq) FROM session_audit_log WHERE session_id = $1), 0) + 1, $2, $3, $4)`,
		entry.SessionID, entry.At, entry.Kind, entry.Detail)
	if err != nil {
		return err
	}
	_, err = a.pool.Exec(ctx, `
		DELETE FROM session_audit_log
		WHERE session_id = $1 AND seq <= (SELECT max(seq) FROM session_audit_log WHERE session_id = $1) - $2`,
		entry.SessionID, auditRingLimit)
	return err
}

func (a auditLogStore) Recent(ctx context.Context, sessionID string, limit int) ([]store.AuditEntry, error) {
	rows, err := a.pool.Query(ctx, `
		SELECT session_id, seq, at, kind, detail FROM (
			SELECT session_id, seq, at, kind, detail FROM session_audit_log
			WHERE session_id = $1 ORDER BY seq DESC LIMIT $2
		) recent ORDER BY seq ASC`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.AuditEntry, 0)
	for rows.Next() {
		var e store.AuditEntry
		if err := rows.Scan(&e.SessionID, &e.Seq, &e.At, &e.Kind, &e.Detail); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
