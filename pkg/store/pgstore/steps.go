package pgstore

import (
	"context"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (s stepStore) Upsert(ctx context.Context, rec store.StepRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workflow_execution_steps
			(execution_id, step_id, attempt, status, input, output, error, started_at, completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (execution_id, step_id, attempt) DO UPDATE SET
			status       = EXCLUDED.status,
			output       = EXCLUDED.output,
			error        = EXCLUDED.error,
			completed_at = EXCLUDED.completed_at,
			started_at   = COALESCE(workflow_execution_steps.started_at, EXCLUDED.started_at),
			input        = COALESCE(workflow_execution_steps.input, EXCLUDED.input)`,
		rec.ExecutionID, rec.StepID, rec.Attempt, rec.Status, rec.Input, rec.Output, rec.Error,
		rec.StartedAt, rec.CompletedAt)
	return err
}

func (s stepStore) ListForExecution(ctx context.Context, executionID string) ([]store.StepRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT execution_id, step_id, attempt, status, input, output, error, started_at, completed_at
		FROM workflow_execution_steps WHERE execution_id = $1 ORDER BY started_at NULLS LAST`, executionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.StepRecord, 0)
	for rows.Next() {
		var r store.StepRecord
		if err := rows.Scan(&r.ExecutionID, &r.StepID, &r.Attempt, &r.Status, &r.Input, &r.Output,
			&r.Error, &r.StartedAt, &r.CompletedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
