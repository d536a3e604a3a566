package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

const executionColumns = `id, workflow_id, user_id, trigger_id, status, trigger_type, trigger_metadata,
	variables, outputs, error, started_at, completed_at, workflow_version, workflow_hash,
	workflow_snapshot, idempotency_key, session_id, resume_token, runtime_state,
	initiator_type, initiator_user_id, attempt_count`

func scanExecution(row pgx.Row) (store.ExecutionRecord, error) {
	var rec store.ExecutionRecord
	err := row.Scan(&rec.ID, &rec.WorkflowID, &rec.UserID, &rec.TriggerID, &rec.Status, &rec.TriggerType,
		&rec.TriggerMetadata, &rec.Variables, &rec.Outputs, &rec.Error, &rec.StartedAt, &rec.CompletedAt,
		&rec.WorkflowVersion, &rec.WorkflowHash, &rec.WorkflowSnapshot, &rec.IdempotencyKey, &rec.SessionID,
		&rec.ResumeToken, &rec.RuntimeState, &rec.InitiatorType, &rec.InitiatorUserID, &rec.AttemptCount)
	return rec, err
}

func (e executionStore) Create(ctx context.Context, rec store.ExecutionRecord) (store.ExecutionRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}
	_, err := e.pool.Exec(ctx, `
		INSERT INTO workflow_executions (id, workflow_id, user_id, trigger_id, status, trigger_type,
			trigger_metadata, variables, outputs, error, started_at, completed_at, workflow_version,
			workflow_hash, workflow_snapshot, idempotency_key, session_id, resume_token, runtime_state,
			initiator_type, initiator_user_id, attempt_count)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		rec.ID, rec.WorkflowID, rec.UserID, rec.TriggerID, rec.Status, rec.TriggerType, rec.TriggerMetadata,
		rec.Variables, rec.Outputs, rec.Error, rec.StartedAt, rec.CompletedAt, rec.WorkflowVersion,
		rec.WorkflowHash, rec.WorkflowSnapshot, rec.IdempotencyKey, rec.SessionID, rec.ResumeToken,
		rec.RuntimeState, rec.InitiatorType, rec.InitiatorUserID, rec.AttemptCount)
	if isUniqueViolation(err) {
		existing, found, findErr := e.FindByIdempotencyKey(ctx, rec.WorkflowID, rec.IdempotencyKey)
		if findErr != nil {
			return store.ExecutionRecord{}, findErr
		}
		if found {
			return store.ExecutionRecord{}, &relayerr.IdempotencyHit{
				ExecutionID: existing.ID,
				Status:      string(existing.Status),
				SessionID:   existing.SessionID,
			}
		}
	}
	if err != nil {
		return store.ExecutionRecord{}, err
	}
	return rec, nil
}

func (e executionStore) Get(ctx context.Context, id string) (store.ExecutionRecord, error) {
	row := e.pool.QueryRow(ctx, "SELECT "+executionColumns+" FROM workflow_executions WHERE id = $1", id)
	rec, err := scanExecution(row)
	if isNoRows(err) {
		return store.ExecutionRecord{}, relayerr.NewNotFoundError("execution", id)
	}
	return rec, err
}

func (e executionStore) FindByIdempotencyKey(ctx context.Context, workflowID, key string) (store.ExecutionRecord, bool, error) {
	row := e.pool.QueryRow(ctx,
		"SELECT "+executionColumns+" FROM workflow_executions WHERE workflow_id = $1 AND idempotency_key = $2",
		workflowID, key)
	rec, err := scanExecution(row)
	if isNoRows(err) {
		return store.ExecutionRecord{}, false, nil
	}
	if err != nil {
		return store.ExecutionRecord{}, false, err
	}
	return rec, true, nil
}

func (e executionStore) Update(ctx context.Context, rec store.ExecutionRecord) error {
	_, err := e.pool.Exec(ctx, `
		UPDATE workflow_executions SET status=$1, trigger_metadata=$2, variables=$3, outputs=$4, error=$5,
			completed_at=$6, session_id=$7, resume_token=$8, runtime_state=$9, attempt_count=$10
		WHERE id = $11 AND status NOT IN ('completed','failed','cancelled')`,
		rec.Status, rec.TriggerMetadata, rec.Variables, rec.Outputs, rec.Error, rec.CompletedAt,
		rec.SessionID, rec.ResumeToken, rec.RuntimeState, rec.AttemptCount, rec.ID)
	// A terminal row matches zero rows and the update is silently skipped —
	// mirrors the memstore no-op-on-terminal behavior ( invariant).
	return err
}

func (e executionStore) ListNonTerminal(ctx context.Context) ([]store.ExecutionRecord, error) {
	rows, err := e.pool.Query(ctx,
		"SELECT "+executionColumns+" FROM workflow_executions WHERE status NOT IN ('completed','failed','cancelled')")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.ExecutionRecord, 0)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (e executionStore) CountActive(ctx context.Context, userID string) (int, int, error) {
	var perUser, global int
	err := e.pool.QueryRow(ctx, `
		SELECT
			count(*) FILTER (WHERE user_id = $1),
			count(*)
		FROM workflow_executions WHERE status IN ('pending','running','waiting_approval')`,
		userID).Scan(&perUser, &global)
	return perUser, global, err
}

func (e executionStore) ListWaitingApprovalOlderThan(ctx context.Context, cutoff time.Time) ([]store.ExecutionRecord, error) {
	rows, err := e.pool.Query(ctx,
		"SELECT "+executionColumns+" FROM workflow_executions WHERE status = 'waiting_approval' AND started_at < $1",
		cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.ExecutionRecord, 0)
	for rows.Next() {
		rec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
