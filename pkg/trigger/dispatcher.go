package trigger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// OrchestratorSink is the narrow surface Dispatcher needs from the live
// holder registry to post a prompt into a user's orchestrator session.
// Kept as an interface (rather than depending on *holder.Registry
// directly) so dispatch logic can be tested without running a real holder
// actor.
type OrchestratorSink interface {
	GetOrCreate(ctx context.Context, sessionID, ownerID string) (*holder.Holder, error)
}

// DispatchOutcome is the result of one Dispatch call.
type DispatchOutcome struct {
	ExecutionID string
	SessionID   string
	Status      string // "queued" (orchestrator) | execution's store.ExecutionStatus (workflow)
	Deduped     bool
}

// DispatchInput is everything Dispatch needs, already resolved from the
// trigger row plus the caller's payload.
type DispatchInput struct {
	Trigger        store.TriggerRecord
	TriggerType    store.TriggerType
	IdempotencyKey string
	Variables      []byte // JSON-encoded resolved variableMapping output
	TriggerMeta    []byte // JSON-encoded metadata recorded on the execution row
}

// Dispatch routes a trigger firing to either the orchestrator (schedule
// triggers with target=orchestrator) or the workflow executor (everything
// else). The workflow path checks admission control and the idempotency key
// before creating anything; the orchestrator path checks neither.
func (s *Service) Dispatch(ctx context.Context, in DispatchInput) (DispatchOutcome, error) {
	if in.Trigger.Type == store.TriggerSchedule {
		cfg, err := decodeScheduleConfig(in.Trigger.ConfigJSON)
		if err == nil && cfg.Target == store.TargetOrchestrator {
			return s.dispatchOrchestrator(ctx, in, cfg)
		}
	}
	return s.dispatchWorkflow(ctx, in)
}

// dispatchOrchestrator bypasses workflow execution entirely: it posts the
// trigger's configured prompt into the user's orchestrator session,
// creating that session if it doesn't exist yet. lastRunAt is only
// advanced on success.
func (s *Service) dispatchOrchestrator(ctx context.Context, in DispatchInput, cfg ScheduleConfig) (DispatchOutcome, error) {
	session, err := s.store.Sessions.GetByOwnerAndPurpose(ctx, in.Trigger.UserID, store.PurposeOrchestrator)
	if err != nil {
		if _, ok := relayerr.As[*relayerr.NotFoundError](err); !ok {
			return DispatchOutcome{}, err
		}
		now := time.Now()
		session = store.SessionRecord{
			ID:           uuid.New().String(),
			OwnerID:      in.Trigger.UserID,
			Status:       store.StatusInitializing,
			Purpose:      store.PurposeOrchestrator,
			CreatedAt:    now,
			LastActiveAt: now,
		}
		session, err = s.store.Sessions.Create(ctx, session)
		if err != nil {
			return DispatchOutcome{}, fmt.Errorf("trigger: create orchestrator session: %w", err)
		}
	}

	h, err := s.orchestrator.GetOrCreate(ctx, session.ID, in.Trigger.UserID)
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("trigger: attach orchestrator holder: %w", err)
	}

	h.SubmitPrompt(holder.Prompt{
		ID:         uuid.New().String(),
		Content:    cfg.Prompt,
		QueueMode:  holder.QueueFollowup,
		EnqueuedAt: time.Now(),
	})

	if err := s.store.Triggers.SetLastRunAt(ctx, in.Trigger.ID, time.Now()); err != nil {
		return DispatchOutcome{}, fmt.Errorf("trigger: update lastRunAt: %w", err)
	}

	return DispatchOutcome{SessionID: session.ID, Status: "queued"}, nil
}

// dispatchWorkflow implements the idempotency-checked workflow-execution
// path: dedup lookup, workflow-purpose session creation, execution row
// insert, enqueue to the executor, conditional lastRunAt update.
func (s *Service) dispatchWorkflow(ctx context.Context, in DispatchInput) (DispatchOutcome, error) {
	if in.Trigger.WorkflowID == nil {
		return DispatchOutcome{}, relayerr.NewValidationError("workflowId", "required for workflow-target dispatch")
	}
	workflowID := *in.Trigger.WorkflowID

	if err := s.admit(ctx, in.Trigger.UserID); err != nil {
		return DispatchOutcome{}, err
	}

	existing, found, err := s.store.Executions.FindByIdempotencyKey(ctx, workflowID, in.IdempotencyKey)
	if err != nil {
		return DispatchOutcome{}, err
	}
	if found {
		return DispatchOutcome{ExecutionID: existing.ID, SessionID: "", Status: string(existing.Status), Deduped: true}, nil
	}

	wf, err := s.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return DispatchOutcome{}, err
	}
	hash := workflowHash(wf.Data)

	now := time.Now()
	session, err := s.store.Sessions.Create(ctx, store.SessionRecord{
		ID:           uuid.New().String(),
		OwnerID:      wf.OwnerID,
		Status:       store.StatusInitializing,
		Purpose:      store.PurposeWorkflow,
		CreatedAt:    now,
		LastActiveAt: now,
	})
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("trigger: create workflow session: %w", err)
	}

	exec, err := s.store.Executions.Create(ctx, store.ExecutionRecord{
		ID:               uuid.New().String(),
		WorkflowID:       workflowID,
		UserID:           in.Trigger.UserID,
		TriggerID:        &in.Trigger.ID,
		Status:           store.ExecPending,
		TriggerType:      in.TriggerType,
		TriggerMetadata:  in.TriggerMeta,
		Variables:        in.Variables,
		SessionID:        session.ID,
		StartedAt:        now,
		WorkflowVersion:  wf.Version,
		WorkflowHash:     hash,
		WorkflowSnapshot: wf.Data,
		IdempotencyKey:   in.IdempotencyKey,
		InitiatorType:    string(in.TriggerType),
		InitiatorUserID:  in.Trigger.UserID,
		AttemptCount:     1,
	})
	if err != nil {
		// A concurrent dispatch for the same idempotency key may have raced
		// ahead of the pre-insert lookup above; the store's own uniqueness
		// check catches that and reports it the same way the lookup would
		// have, so this degrades to a dedup response rather than an error.
		if hit, ok := relayerr.As[*relayerr.IdempotencyHit](err); ok {
			return DispatchOutcome{ExecutionID: hit.ExecutionID, SessionID: hit.SessionID, Status: hit.Status, Deduped: true}, nil
		}
		return DispatchOutcome{}, fmt.Errorf("trigger: create execution: %w", err)
	}

	if err := s.enqueue(ctx, exec); err != nil {
		return DispatchOutcome{ExecutionID: exec.ID, SessionID: session.ID, Status: string(exec.Status)},
			fmt.Errorf("trigger: enqueue execution, retry required: %w", err)
	}

	if err := s.store.Triggers.SetLastRunAt(ctx, in.Trigger.ID, now); err != nil {
		// Manual runs carry a synthetic trigger with no stored row.
		if _, ok := relayerr.As[*relayerr.NotFoundError](err); !ok {
			return DispatchOutcome{}, fmt.Errorf("trigger: update lastRunAt: %w", err)
		}
	}

	return DispatchOutcome{ExecutionID: exec.ID, SessionID: session.ID, Status: string(exec.Status)}, nil
}

// workflowHash computes the content hash recorded on an execution snapshot.
func workflowHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
