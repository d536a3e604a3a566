package trigger

import (
	"context"
	"testing"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func TestDispatch_ScheduleOrchestratorTarget_CreatesSessionAndSubmitsPrompt(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	registry := holder.NewRegistry(st, testLogger())
	exec := &fakeExecutor{}
	svc := NewService(&st, registry, exec, AdmissionLimits{PerUser: 5, Global: 50}, testLogger())

	trig, err := st.Triggers.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		Name:       "daily digest",
		Enabled:    true,
		Type:       store.TriggerSchedule,
		ConfigJSON: []byte(`{"cron":"0 0 * * * *","target":"orchestrator","prompt":"daily standup digest"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error seeding trigger: %v", err)
	}

	out, err := svc.runSchedule(context.Background(), trig, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.SessionID == "" {
		t.Fatal("expected a session id for orchestrator dispatch")
	}
	if out.Status != "queued" {
		t.Fatalf("expected status=queued, got %s", out.Status)
	}
	if len(exec.enqueued) != 0 {
		t.Fatal("orchestrator-target dispatch must not create a workflow execution")
	}

	session, err := st.Sessions.Get(context.Background(), out.SessionID)
	if err != nil {
		t.Fatalf("expected session to be persisted: %v", err)
	}
	if session.Purpose != store.PurposeOrchestrator {
		t.Fatalf("expected orchestrator purpose, got %s", session.Purpose)
	}

	// A second tick for the same trigger at the same timestamp must reuse
	// the same orchestrator session rather than creating a new one.
	out2, err := svc.runSchedule(context.Background(), trig, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("unexpected error on second tick: %v", err)
	}
	if out2.SessionID != out.SessionID {
		t.Fatalf("expected reuse of orchestrator session, got %s vs %s", out2.SessionID, out.SessionID)
	}

	updated, err := st.Triggers.Get(context.Background(), trig.ID)
	if err != nil {
		t.Fatalf("unexpected error re-reading trigger: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Fatal("expected lastRunAt to be set after successful orchestrator dispatch")
	}
}

func TestDispatch_ScheduleWorkflowTarget_CreatesExecution(t *testing.T) {
	mem := memstore.New()
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{}`), Version: "1.0.0"})
	st := mem.AsStore()
	trig, err := st.Triggers.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		WorkflowID: strPtr("wf-1"),
		Name:       "hourly sync",
		Enabled:    true,
		Type:       store.TriggerSchedule,
		ConfigJSON: []byte(`{"cron":"0 0 * * * *"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error seeding trigger: %v", err)
	}

	exec := &fakeExecutor{}
	svc := NewService(&st, nil, exec, AdmissionLimits{PerUser: 5, Global: 50}, testLogger())

	out, err := svc.runSchedule(context.Background(), trig, time.Unix(1_700_000_000, 0))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ExecutionID == "" {
		t.Fatal("expected execution id for workflow-target dispatch")
	}
	if len(exec.enqueued) != 1 {
		t.Fatalf("expected one enqueued execution, got %d", len(exec.enqueued))
	}

	updated, err := st.Triggers.Get(context.Background(), trig.ID)
	if err != nil {
		t.Fatalf("unexpected error re-reading trigger: %v", err)
	}
	if updated.LastRunAt == nil {
		t.Fatal("expected lastRunAt to be set after successful dispatch")
	}
}

func strPtr(s string) *string { return &s }
