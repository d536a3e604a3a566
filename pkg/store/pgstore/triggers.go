package pgstore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

const triggerColumns = `id, user_id, workflow_id, name, enabled, type, config, variable_mapping, last_run_at`

func scanTrigger(row pgx.Row) (store.TriggerRecord, error) {
	var rec store.TriggerRecord
	var mapping []byte
	err := row.Scan(&rec.ID, &rec.UserID, &rec.WorkflowID, &rec.Name, &rec.Enabled, &rec.Type,
		&rec.ConfigJSON, &mapping, &rec.LastRunAt)
	if err != nil {
		return store.TriggerRecord{}, err
	}
	if len(mapping) > 0 {
		if err := json.Unmarshal(mapping, &rec.VariableMapping); err != nil {
			return store.TriggerRecord{}, err
		}
	}
	return rec, nil
}

func (t triggerStore) Create(ctx context.Context, rec store.TriggerRecord) (store.TriggerRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	mapping, err := json.Marshal(rec.VariableMapping)
	if err != nil {
		return store.TriggerRecord{}, err
	}
	_, err = t.pool.Exec(ctx, `
		INSERT INTO triggers (id, user_id, workflow_id, name, enabled, type, config, variable_mapping, last_run_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		rec.ID, rec.UserID, rec.WorkflowID, rec.Name, rec.Enabled, rec.Type, rec.ConfigJSON, mapping, rec.LastRunAt)
	if err != nil {
		return store.TriggerRecord{}, err
	}
	return rec, nil
}

func (t triggerStore) Get(ctx context.Context, id string) (store.TriggerRecord, error) {
	row := t.pool.QueryRow(ctx, "SELECT "+triggerColumns+" FROM triggers WHERE id = $1", id)
	rec, err := scanTrigger(row)
	if isNoRows(err) {
		return store.TriggerRecord{}, relayerr.NewNotFoundError("trigger", id)
	}
	return rec, err
}

func (t triggerStore) Update(ctx context.Context, rec store.TriggerRecord) error {
	mapping, err := json.Marshal(rec.VariableMapping)
	if err != nil {
		return err
	}
	tag, err := t.pool.Exec(ctx, `
		UPDATE triggers SET workflow_id=$1, name=$2, enabled=$3, type=$4, config=$5, variable_mapping=$6, last_run_at=$7
		WHERE id = $8`,
		rec.WorkflowID, rec.Name, rec.Enabled, rec.Type, rec.ConfigJSON, mapping, rec.LastRunAt, rec.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("trigger", rec.ID)
	}
	return nil
}

func (t triggerStore) Delete(ctx context.Context, id string) error {
	tag, err := t.pool.Exec(ctx, "DELETE FROM triggers WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("trigger", id)
	}
	return nil
}

func (t triggerStore) ListEnabled(ctx context.Context, triggerType store.TriggerType) ([]store.TriggerRecord, error) {
	rows, err := t.pool.Query(ctx, "SELECT "+triggerColumns+" FROM triggers WHERE enabled AND type = $1", triggerType)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]store.TriggerRecord, 0)
	for rows.Next() {
		rec, err := scanTrigger(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (t triggerStore) FindByWebhookPath(ctx context.Context, userID, path string) (store.TriggerRecord, error) {
	row := t.pool.QueryRow(ctx, "SELECT "+triggerColumns+` FROM triggers
		WHERE user_id = $1 AND type = 'webhook' AND enabled AND config ->> 'path' = $2`, userID, path)
	rec, err := scanTrigger(row)
	if isNoRows(err) {
		return store.TriggerRecord{}, relayerr.NewNotFoundError("trigger", "path="+path)
	}
	return rec, err
}

func (t triggerStore) PathInUse(ctx context.Context, userID, path, excludeID string) (bool, error) {
	var exists bool
	err := t.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM triggers
			WHERE user_id = $1 AND type = 'webhook' AND config ->> 'path' = $2 AND id != $3)`,
		userID, path, excludeID).Scan(&exists)
	return exists, err
}

func (t triggerStore) SetLastRunAt(ctx context.Context, id string, at time.Time) error {
	tag, err := t.pool.Exec(ctx, "UPDATE triggers SET last_run_at = $1 WHERE id = $2", at, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return relayerr.NewNotFoundError("trigger", id)
	}
	return nil
}
