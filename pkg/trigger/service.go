package trigger

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// Executor is the narrow surface Service needs from the workflow execution
// runtime to hand off a freshly created execution row. Kept as an interface
// so trigger dispatch can be tested without pkg/workflow's full runtime.
type Executor interface {
	Enqueue(ctx context.Context, exec store.ExecutionRecord) error
}

// Service implements trigger CRUD, admission control, and dispatch. It is
// the single entrypoint pkg/api's HTTP handlers and the webhook/schedule
// firing paths call into.
type Service struct {
	store        *store.Store
	orchestrator OrchestratorSink
	executor     Executor
	limits       AdmissionLimits
	log          *slog.Logger
}

// NewService builds a Service. limits applies to every dispatch regardless
// of trigger type.
func NewService(st *store.Store, orchestrator OrchestratorSink, executor Executor, limits AdmissionLimits, log *slog.Logger) *Service {
	return &Service{store: st, orchestrator: orchestrator, executor: executor, limits: limits, log: log}
}

func (s *Service) enqueue(ctx context.Context, exec store.ExecutionRecord) error {
	return s.executor.Enqueue(ctx, exec)
}

// Create validates and persists a new trigger.
func (s *Service) Create(ctx context.Context, t store.TriggerRecord) (store.TriggerRecord, error) {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if err := s.validateCreate(ctx, t, ""); err != nil {
		return store.TriggerRecord{}, err
	}
	return s.store.Triggers.Create(ctx, t)
}

// Get returns a trigger by id.
func (s *Service) Get(ctx context.Context, id string) (store.TriggerRecord, error) {
	return s.store.Triggers.Get(ctx, id)
}

// Update validates and persists changes to an existing trigger.
func (s *Service) Update(ctx context.Context, t store.TriggerRecord) error {
	if _, err := s.store.Triggers.Get(ctx, t.ID); err != nil {
		return err
	}
	if err := s.validateCreate(ctx, t, t.ID); err != nil {
		return err
	}
	return s.store.Triggers.Update(ctx, t)
}

// Delete removes a trigger.
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.Triggers.Delete(ctx, id)
}

// ListEnabled returns every enabled trigger of the given type, used by the
// scheduler to rebuild its cron entries.
func (s *Service) ListEnabled(ctx context.Context, triggerType store.TriggerType) ([]store.TriggerRecord, error) {
	return s.store.Triggers.ListEnabled(ctx, triggerType)
}

// RunManual dispatches a direct workflow run not tied to any stored trigger
// (the "run this workflow now" UI action). clientRequestID comes from the
// caller and keys idempotency, so a doubled click never double-dispatches.
func (s *Service) RunManual(ctx context.Context, workflowID, userID, clientRequestID string, variables []byte) (DispatchOutcome, error) {
	synthetic := store.TriggerRecord{
		ID:         "manual:" + workflowID,
		UserID:     userID,
		WorkflowID: &workflowID,
		Name:       "manual run",
		Enabled:    true,
		Type:       store.TriggerManual,
		ConfigJSON: []byte(`{}`),
	}
	return s.Dispatch(ctx, DispatchInput{
		Trigger:        synthetic,
		TriggerType:    store.TriggerManual,
		IdempotencyKey: ManualRunKey(workflowID, userID, clientRequestID),
		Variables:      variables,
	})
}

// RunManualTrigger dispatches a manual firing of a stored trigger (a trigger
// of type "manual", or a webhook/schedule trigger fired ad hoc from the UI).
func (s *Service) RunManualTrigger(ctx context.Context, triggerID, userID, clientRequestID string, variables []byte) (DispatchOutcome, error) {
	t, err := s.store.Triggers.Get(ctx, triggerID)
	if err != nil {
		return DispatchOutcome{}, err
	}
	if !t.Enabled {
		return DispatchOutcome{}, relayerr.NewValidationError("trigger", "disabled")
	}
	return s.Dispatch(ctx, DispatchInput{
		Trigger:        t,
		TriggerType:    store.TriggerManual,
		IdempotencyKey: ManualTriggerRunKey(triggerID, userID, clientRequestID),
		Variables:      variables,
	})
}

// RunWebhook dispatches an inbound webhook delivery already matched to its
// trigger by path (see FindInboundTrigger) and verified by the owning
// channel adapter.
func (s *Service) RunWebhook(ctx context.Context, t store.TriggerRecord, deliveryID string, payload []byte) (DispatchOutcome, error) {
	if !t.Enabled {
		return DispatchOutcome{}, relayerr.NewValidationError("trigger", "disabled")
	}
	return s.Dispatch(ctx, DispatchInput{
		Trigger:        t,
		TriggerType:    store.TriggerWebhook,
		IdempotencyKey: WebhookRunKey(t.ID, deliveryID),
		Variables:      payload,
	})
}

// FindInboundTrigger resolves the enabled webhook trigger matching an
// inbound path for userID, used by the gateway/channel HTTP edge before
// calling RunWebhook.
func (s *Service) FindInboundTrigger(ctx context.Context, userID, path string) (store.TriggerRecord, error) {
	return s.store.Triggers.FindByWebhookPath(ctx, userID, path)
}

// runSchedule dispatches one cron tick for t, keyed by the tick's own
// scheduled time so a scheduler restart replaying the current minute never
// double-dispatches. Called by scheduler.go.
func (s *Service) runSchedule(ctx context.Context, t store.TriggerRecord, tick time.Time) (DispatchOutcome, error) {
	return s.Dispatch(ctx, DispatchInput{
		Trigger:        t,
		TriggerType:    store.TriggerSchedule,
		IdempotencyKey: ScheduleRunKey(t.ID, tick.Unix()),
	})
}
