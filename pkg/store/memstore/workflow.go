package memstore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// ---- triggerStore ----

type triggerStore struct{ c *core }

func (t triggerStore) Create(_ context.Context, rec store.TriggerRecord) (store.TriggerRecord, error) {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	t.c.triggers[rec.ID] = rec
	return rec, nil
}

func (t triggerStore) Get(_ context.Context, id string) (store.TriggerRecord, error) {
	t.c.mu.RLock()
	defer t.c.mu.RUnlock()
	rec, ok := t.c.triggers[id]
	if !ok {
		return store.TriggerRecord{}, relayerr.NewNotFoundError("trigger", id)
	}
	return rec, nil
}

func (t triggerStore) Update(_ context.Context, rec store.TriggerRecord) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if _, ok := t.c.triggers[rec.ID]; !ok {
		return relayerr.NewNotFoundError("trigger", rec.ID)
	}
	t.c.triggers[rec.ID] = rec
	return nil
}

func (t triggerStore) Delete(_ context.Context, id string) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if _, ok := t.c.triggers[id]; !ok {
		return relayerr.NewNotFoundError("trigger", id)
	}
	delete(t.c.triggers, id)
	return nil
}

func (t triggerStore) ListEnabled(_ context.Context, triggerType store.TriggerType) ([]store.TriggerRecord, error) {
	t.c.mu.RLock()
	defer t.c.mu.RUnlock()
	out := make([]store.TriggerRecord, 0)
	for _, rec := range t.c.triggers {
		if rec.Enabled && rec.Type == triggerType {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (t triggerStore) FindByWebhookPath(_ context.Context, userID, path string) (store.TriggerRecord, error) {
	t.c.mu.RLock()
	defer t.c.mu.RUnlock()
	for _, rec := range t.c.triggers {
		if rec.UserID == userID && rec.Type == store.TriggerWebhook && rec.Enabled && webhookPath(rec.ConfigJSON) == path {
			return rec, nil
		}
	}
	return store.TriggerRecord{}, relayerr.NewNotFoundError("trigger", "path="+path)
}

func (t triggerStore) PathInUse(_ context.Context, userID, path, excludeID string) (bool, error) {
	t.c.mu.RLock()
	defer t.c.mu.RUnlock()
	for _, rec := range t.c.triggers {
		if rec.ID == excludeID {
			continue
		}
		if rec.UserID == userID && rec.Type == store.TriggerWebhook && webhookPath(rec.ConfigJSON) == path {
			return true, nil
		}
	}
	return false, nil
}

func (t triggerStore) SetLastRunAt(_ context.Context, id string, at time.Time) error {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	rec, ok := t.c.triggers[id]
	if !ok {
		return relayerr.NewNotFoundError("trigger", id)
	}
	rec.LastRunAt = &at
	t.c.triggers[id] = rec
	return nil
}

// webhookPath extracts config.path without a full JSON unmarshal dependency
// here — callers (pkg/trigger) own the config shape; memstore only needs the
// path for the uniqueness index, so it does a minimal scan. store/pgstore
// checks the same uniqueness in its PathInUse query, backed by a non-unique
// `config ->> 'path'` expression index.
func webhookPath(cfg []byte) string {
	return extractJSONString(cfg, "path")
}

// ---- workflowStore ----

type workflowStore struct{ c *core }

func (w workflowStore) Get(_ context.Context, id string) (store.WorkflowRecord, error) {
	w.c.mu.RLock()
	defer w.c.mu.RUnlock()
	rec, ok := w.c.workflows[id]
	if !ok {
		return store.WorkflowRecord{}, relayerr.NewNotFoundError("workflow", id)
	}
	return rec, nil
}

func (w workflowStore) Update(_ context.Context, rec store.WorkflowRecord) error {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	if _, ok := w.c.workflows[rec.ID]; !ok {
		return relayerr.NewNotFoundError("workflow", rec.ID)
	}
	w.c.workflows[rec.ID] = rec
	return nil
}

func versionKey(workflowID, hash string) string { return workflowID + "|" + hash }

func (w workflowStore) ArchiveVersion(_ context.Context, workflowID, hash string, snapshot []byte, source string) error {
	w.c.mu.Lock()
	defer w.c.mu.Unlock()
	key := versionKey(workflowID, hash)
	if _, exists := w.c.versions[key]; exists {
		return nil // ON CONFLICT DO NOTHING
	}
	w.c.versions[key] = store.WorkflowVersionRecord{
		WorkflowID: workflowID,
		Hash:       hash,
		Snapshot:   snapshot,
		Source:     source,
		ArchivedAt: time.Now(),
	}
	return nil
}

func (w workflowStore) LookupVersion(_ context.Context, workflowID, hash string) (store.WorkflowVersionRecord, error) {
	w.c.mu.RLock()
	defer w.c.mu.RUnlock()
	rec, ok := w.c.versions[versionKey(workflowID, hash)]
	if !ok {
		return store.WorkflowVersionRecord{}, relayerr.NewNotFoundError("workflow_version", hash)
	}
	return rec, nil
}

// ---- executionStore ----

type executionStore struct{ c *core }

func idemKey(workflowID, key string) string { return workflowID + "|" + key }

func (e executionStore) Create(_ context.Context, rec store.ExecutionRecord) (store.ExecutionRecord, error) {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	key := idemKey(rec.WorkflowID, rec.IdempotencyKey)
	if existingID, exists := e.c.idemIndex[key]; exists {
		existing := e.c.executions[existingID]
		return store.ExecutionRecord{}, &relayerr.IdempotencyHit{
			ExecutionID: existing.ID,
			Status:      string(existing.Status),
			SessionID:   existing.SessionID,
		}
	}
	e.c.executions[rec.ID] = rec
	e.c.idemIndex[key] = rec.ID
	return rec, nil
}

func (e executionStore) Get(_ context.Context, id string) (store.ExecutionRecord, error) {
	e.c.mu.RLock()
	defer e.c.mu.RUnlock()
	rec, ok := e.c.executions[id]
	if !ok {
		return store.ExecutionRecord{}, relayerr.NewNotFoundError("execution", id)
	}
	return rec, nil
}

func (e executionStore) FindByIdempotencyKey(_ context.Context, workflowID, key string) (store.ExecutionRecord, bool, error) {
	e.c.mu.RLock()
	defer e.c.mu.RUnlock()
	id, ok := e.c.idemIndex[idemKey(workflowID, key)]
	if !ok {
		return store.ExecutionRecord{}, false, nil
	}
	return e.c.executions[id], true, nil
}

func (e executionStore) Update(_ context.Context, rec store.ExecutionRecord) error {
	e.c.mu.Lock()
	defer e.c.mu.Unlock()
	current, ok := e.c.executions[rec.ID]
	if !ok {
		return relayerr.NewNotFoundError("execution", rec.ID)
	}
	// Terminal statuses are final for the row ( invariant): once
	// terminal, subsequent updates are ignored rather than erroring, so
	// callers (cancel/approve/resume after completion) degrade to no-ops
	// instead of failing noisily.
	if current.Status.Terminal() {
		return nil
	}
	e.c.executions[rec.ID] = rec
	return nil
}

func (e executionStore) ListNonTerminal(_ context.Context) ([]store.ExecutionRecord, error) {
	e.c.mu.RLock()
	defer e.c.mu.RUnlock()
	out := make([]store.ExecutionRecord, 0)
	for _, rec := range e.c.executions {
		if !rec.Status.Terminal() {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (e executionStore) CountActive(_ context.Context, userID string) (int, int, error) {
	e.c.mu.RLock()
	defer e.c.mu.RUnlock()
	perUser, global := 0, 0
	for _, rec := range e.c.executions {
		switch rec.Status {
		case store.ExecPending, store.ExecRunning, store.ExecWaitingApproval:
			global++
			if rec.UserID == userID {
				perUser++
			}
		}
	}
	return perUser, global, nil
}

func (e executionStore) ListWaitingApprovalOlderThan(_ context.Context, cutoff time.Time) ([]store.ExecutionRecord, error) {
	e.c.mu.RLock()
	defer e.c.mu.RUnlock()
	out := make([]store.ExecutionRecord, 0)
	for _, rec := range e.c.executions {
		if rec.Status == store.ExecWaitingApproval && rec.StartedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ---- stepStore ----

type stepStore struct{ c *core }

func stepKey(executionID, stepID string, attempt int) string {
	return executionID + "|" + stepID + "|" + itoa(attempt)
}

func (s stepStore) Upsert(_ context.Context, rec store.StepRecord) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	key := stepKey(rec.ExecutionID, rec.StepID, rec.Attempt)
	if existing, ok := s.c.steps[key]; ok {
		// COALESCE semantics: startedAt/input never regress.
		if existing.StartedAt != nil {
			rec.StartedAt = existing.StartedAt
		}
		if existing.Input != nil {
			rec.Input = existing.Input
		}
	}
	s.c.steps[key] = rec
	return nil
}

func (s stepStore) ListForExecution(_ context.Context, executionID string) ([]store.StepRecord, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	out := make([]store.StepRecord, 0)
	for _, rec := range s.c.steps {
		if rec.ExecutionID == executionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ---- proposalStore ----

type proposalStore struct{ c *core }

func (p proposalStore) Create(_ context.Context, rec store.MutationProposalRecord) (store.MutationProposalRecord, error) {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	p.c.proposals[rec.ID] = rec
	return rec, nil
}

func (p proposalStore) Get(_ context.Context, id string) (store.MutationProposalRecord, error) {
	p.c.mu.RLock()
	defer p.c.mu.RUnlock()
	rec, ok := p.c.proposals[id]
	if !ok {
		return store.MutationProposalRecord{}, relayerr.NewNotFoundError("proposal", id)
	}
	return rec, nil
}

func (p proposalStore) Update(_ context.Context, rec store.MutationProposalRecord) error {
	p.c.mu.Lock()
	defer p.c.mu.Unlock()
	if _, ok := p.c.proposals[rec.ID]; !ok {
		return relayerr.NewNotFoundError("proposal", rec.ID)
	}
	p.c.proposals[rec.ID] = rec
	return nil
}

func (p proposalStore) ListPendingExpiredBefore(_ context.Context, cutoff time.Time) ([]store.MutationProposalRecord, error) {
	p.c.mu.RLock()
	defer p.c.mu.RUnlock()
	out := make([]store.MutationProposalRecord, 0)
	for _, rec := range p.c.proposals {
		if rec.Status == "pending" && rec.ExpiresAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}
