package pgstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (p proposalStore) Create(ctx context.Context, rec store.MutationProposalRecord) (store.MutationProposalRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	if rec.Status == "" {
		rec.Status = "pending"
	}
	_, err := p.pool.Exec(ctx, `
		INSERT INTO workflow_mutation_proposals
			(id, workflow_id, execution_id, base_workflow_hash, proposed_data, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		rec.ID, rec.WorkflowID, rec.ExecutionID, rec.BaseWorkflowHash, rec.ProposedData, rec.Status,
		rec.CreatedAt, rec.ExpiresAt)
	if err != nil {
		return store.MutationProposalRecord{}, err
	}
	return rec, nil
}

func (p proposalStore) Get(ctx context.Context, id string) (store.MutationProposalRecord, error) {
	var rec store.MutationProposalRecord
	err := p.pool.QueryRow(ctx, `
		SELECT id, workflow_id, execution_id, base_workflow_hash, proposed_data, status, created_at, expires_at
		FROM workflow_mutation_proposals WHERE id = $1`, id).Scan(
		&rec.ID, &rec.WorkflowID, &rec.ExecutionID, &rec.BaseWorkflowHash, &rec.ProposedData, &rec.Status,
		&rec.CreatedAt, &rec.ExpiresAt)
	if isNoRows(err) {
		return store.MutationProposalRecord{}, relayerr.NewNotFoundError("proposal", id)
	}
	return rec, err
}

func (p proposalStore) Update(ctx context.Context, rec store.MutationProposalRecord) error {
	tag, err := p.pool.Exec(ctx,
		"UPDATE workflow_mutation_proposals SET status = $1 WHERE id = $2", rec.Status, rec.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("proposal", rec.ID)
	}
	return nil
}

func (p proposalStore) ListPendingExpiredBefore(ctx context.Context, cutoff time.Time) ([]store.MutationProposalRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, workflow_id, execution_id, base_workflow_hash, proposed_data, status, created_at, expires_at
		FROM workflow_mutation_proposals WHERE status = 'pending' AND expires_at < $1`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.MutationProposalRecord, 0)
	for rows.Next() {
		var rec store.MutationProposalRecord
		if err := rows.Scan(&rec.ID, &rec.WorkflowID, &rec.ExecutionID, &rec.BaseWorkflowHash,
			&rec.ProposedData, &rec.Status, &rec.CreatedAt, &rec.ExpiresAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
