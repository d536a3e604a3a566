package pgstore

import (
	"context"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

func (w workflowStore) Get(ctx context.Context, id string) (store.WorkflowRecord, error) {
	var rec store.WorkflowRecord
	var approvalTTLSeconds int
	err := w.pool.QueryRow(ctx, `
		SELECT id, owner_id, name, data, version, allow_self_modification, approval_ttl_seconds
		FROM workflows WHERE id = $1`, id).Scan(
		&rec.ID, &rec.OwnerID, &rec.Name, &rec.Data, &rec.Version, &rec.AllowSelfModification, &approvalTTLSeconds)
	if isNoRows(err) {
		return store.WorkflowRecord{}, relayerr.NewNotFoundError("workflow", id)
	}
	if err != nil {
		return store.WorkflowRecord{}, err
	}
	rec.ApprovalTTL = time.Duration(approvalTTLSeconds) * time.Second
	return rec, nil
}

func (w workflowStore) Update(ctx context.Context, rec store.WorkflowRecord) error {
	tag, err := w.pool.Exec(ctx, `
		UPDATE workflows SET owner_id=$1, name=$2, data=$3, version=$4, allow_self_modification=$5, approval_ttl_seconds=$6
		WHERE id = $7`,
		rec.OwnerID, rec.Name, rec.Data, rec.Version, rec.AllowSelfModification,
		int(rec.ApprovalTTL/time.Second), rec.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("workflow", rec.ID)
	}
	return nil
}

func (w workflowStore) ArchiveVersion(ctx context.Context, workflowID, hash string, snapshot []byte, source string) error {
	_, err := w.pool.Exec(ctx, `
		INSERT INTO workflow_version_history (workflow_id, hash, snapshot, source)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (workflow_id, hash) DO NOTHING`,
		workflowID, hash, snapshot, source)
	return err
}

func (w workflowStore) LookupVersion(ctx context.Context, workflowID, hash string) (store.WorkflowVersionRecord, error) {
	var rec store.WorkflowVersionRecord
	err := w.pool.QueryRow(ctx, `
		SELECT workflow_id, hash, snapshot, source, archived_at
		FROM workflow_version_history WHERE workflow_id = $1 AND hash = $2`, workflowID, hash).Scan(
		&rec.WorkflowID, &rec.Hash, &rec.Snapshot, &rec.Source, &rec.ArchivedAt)
	if isNoRows(err) {
		return store.WorkflowVersionRecord{}, relayerr.NewNotFoundError("workflow_version", hash)
	}
	return rec, err
}
