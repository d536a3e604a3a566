package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (s sessionStore) Create(ctx context.Context, rec store.SessionRecord) (store.SessionRecord, error) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.LastActiveAt.IsZero() {
		rec.LastActiveAt = rec.CreatedAt
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, owner_id, workspace, status, purpose, parent_id, persona_id,
			gateway_url, sandbox_id, runner_token_hash, created_at, last_active_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		rec.ID, rec.OwnerID, rec.Workspace, rec.Status, rec.Purpose, rec.ParentID, rec.PersonaID,
		rec.GatewayURL, rec.SandboxID, rec.RunnerTokenHash, rec.CreatedAt, rec.LastActiveAt)
	if isUniqueViolation(err) {
		return store.SessionRecord{}, relayerr.ErrAlreadyExists
	}
	if err != nil {
		return store.SessionRecord{}, err
	}
	return rec, nil
}

const sessionColumns = `id, owner_id, workspace, status, purpose, parent_id, persona_id,
	gateway_url, sandbox_id, runner_token_hash, created_at, last_active_at`

func scanSession(row pgx.Row) (store.SessionRecord, error) {
	var rec store.SessionRecord
	err := row.Scan(&rec.ID, &rec.OwnerID, &rec.Workspace, &rec.Status, &rec.Purpose, &rec.ParentID,
		&rec.PersonaID, &rec.GatewayURL, &rec.SandboxID, &rec.RunnerTokenHash, &rec.CreatedAt, &rec.LastActiveAt)
	return rec, err
}

func (s sessionStore) Get(ctx context.Context, id string) (store.SessionRecord, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
	rec, err := scanSession(row)
	if isNoRows(err) {
		return store.SessionRecord{}, relayerr.NewNotFoundError("session", id)
	}
	return rec, err
}

func (s sessionStore) GetByOwnerAndPurpose(ctx context.Context, ownerID string, purpose store.SessionPurpose) (store.SessionRecord, error) {
	row := s.pool.QueryRow(ctx,
		"SELECT "+sessionColumns+" FROM sessions WHERE owner_id = $1 AND purpose = $2 ORDER BY created_at LIMIT 1",
		ownerID, purpose)
	rec, err := scanSession(row)
	if isNoRows(err) {
		return store.SessionRecord{}, relayerr.NewNotFoundError("session", "owner="+ownerID+" purpose="+string(purpose))
	}
	return rec, err
}

func (s sessionStore) ListByOwner(ctx context.Context, ownerID string) ([]store.SessionRecord, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE owner_id = $1 ORDER BY created_at", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s sessionStore) UpdateStatus(ctx context.Context, id string, status store.SessionStatus) error {
	tag, err := s.pool.Exec(ctx, "UPDATE sessions SET status = $1 WHERE id = $2", status, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("session", id)
	}
	return nil
}

func (s sessionStore) TouchLastActive(ctx context.Context, id string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, "UPDATE sessions SET last_active_at = $1 WHERE id = $2 AND last_active_at < $1", at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Either the session doesn't exist or the touch is stale; confirm
		// which by checking existence so callers get a real error only when
		// the session is actually missing.
		var exists bool
		if err := s.pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)", id).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return relayerr.NewNotFoundError("session", id)
		}
	}
	return nil
}

func (s sessionStore) SetRunnerTokenHash(ctx context.Context, id, hash string) error {
	tag, err := s.pool.Exec(ctx, "UPDATE sessions SET runner_token_hash = $1 WHERE id = $2", hash, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("session", id)
	}
	return nil
}

func (s sessionStore) ListByStatuses(ctx context.Context, statuses []store.SessionStatus) ([]store.SessionRecord, error) {
	strs := make([]string, len(statuses))
	for i, st := range statuses {
		strs[i] = string(st)
	}
	rows, err := s.pool.Query(ctx, "SELECT "+sessionColumns+" FROM sessions WHERE status = ANY($1)", strs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
