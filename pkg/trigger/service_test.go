package trigger

import (
	"context"
	"testing"

	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func TestService_CreateWebhookTrigger_Succeeds(t *testing.T) {
	mem := memstore.New()
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})
	wfID := "wf-1"

	created, err := svc.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		WorkflowID: &wfID,
		Name:       "deploy hook",
		Enabled:    true,
		Type:       store.TriggerWebhook,
		ConfigJSON: []byte(`{"path":"/hooks/deploy"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated ID")
	}
}

func TestService_CreateWebhookTrigger_RejectsDuplicatePath(t *testing.T) {
	mem := memstore.New()
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})
	wfID := "wf-1"

	base := store.TriggerRecord{
		UserID:     "user-1",
		WorkflowID: &wfID,
		Name:       "first",
		Enabled:    true,
		Type:       store.TriggerWebhook,
		ConfigJSON: []byte(`{"path":"/hooks/deploy"}`),
	}
	if _, err := svc.Create(context.Background(), base); err != nil {
		t.Fatalf("unexpected error creating first trigger: %v", err)
	}

	dup := base
	dup.Name = "second"
	if _, err := svc.Create(context.Background(), dup); err == nil {
		t.Fatal("expected validation error for duplicate webhook path")
	}
}

func TestService_CreateManualTrigger_RequiresWorkflowID(t *testing.T) {
	mem := memstore.New()
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})

	_, err := svc.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		Name:       "manual",
		Enabled:    true,
		Type:       store.TriggerManual,
		ConfigJSON: []byte(`{}`),
	})
	if err == nil {
		t.Fatal("expected validation error for missing workflowId")
	}
}

func TestService_CreateUnknownType_Rejected(t *testing.T) {
	mem := memstore.New()
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})

	_, err := svc.Create(context.Background(), store.TriggerRecord{
		UserID: "user-1",
		Name:   "bogus",
		Type:   store.TriggerType("bogus"),
	})
	if err == nil {
		t.Fatal("expected validation error for unknown trigger type")
	}
}

func TestService_Update_AllowsSamePathOnSameTrigger(t *testing.T) {
	mem := memstore.New()
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})
	wfID := "wf-1"

	created, err := svc.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		WorkflowID: &wfID,
		Name:       "hook",
		Enabled:    true,
		Type:       store.TriggerWebhook,
		ConfigJSON: []byte(`{"path":"/hooks/deploy"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	created.Name = "renamed"
	if err := svc.Update(context.Background(), created); err != nil {
		t.Fatalf("unexpected error updating with unchanged path: %v", err)
	}
}

func TestService_RunManual_CreatesExecutionAndEnqueues(t *testing.T) {
	mem := memstore.New()
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{"steps":[]}`), Version: "1.0.0"})
	svc, exec := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})

	out, err := svc.RunManual(context.Background(), "wf-1", "user-1", "req-1", []byte(`{}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.ExecutionID == "" {
		t.Fatal("expected execution id")
	}
	if len(exec.enqueued) != 1 {
		t.Fatalf("expected one enqueued execution, got %d", len(exec.enqueued))
	}
	if exec.enqueued[0].WorkflowID != "wf-1" {
		t.Fatalf("expected enqueued execution for wf-1, got %s", exec.enqueued[0].WorkflowID)
	}
}

func TestService_RunManual_DedupesSameClientRequestID(t *testing.T) {
	mem := memstore.New()
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{}`), Version: "1.0.0"})
	svc, exec := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})

	first, err := svc.RunManual(context.Background(), "wf-1", "user-1", "req-1", nil)
	if err != nil {
		t.Fatalf("unexpected error on first run: %v", err)
	}
	second, err := svc.RunManual(context.Background(), "wf-1", "user-1", "req-1", nil)
	if err != nil {
		t.Fatalf("unexpected error on deduped run: %v", err)
	}
	if !second.Deduped {
		t.Fatal("expected second run to be reported as deduped")
	}
	if second.ExecutionID != first.ExecutionID {
		t.Fatalf("expected same execution id, got %s vs %s", first.ExecutionID, second.ExecutionID)
	}
	if len(exec.enqueued) != 1 {
		t.Fatalf("expected only one enqueue across both calls, got %d", len(exec.enqueued))
	}
}

func TestService_RunWebhook_RejectsDisabledTrigger(t *testing.T) {
	mem := memstore.New()
	wfID := "wf-1"
	mem.SeedWorkflow(store.WorkflowRecord{ID: wfID, OwnerID: "user-1", Data: []byte(`{}`), Version: "1.0.0"})
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 5, Global: 50})

	trig := store.TriggerRecord{ID: "t-1", UserID: "user-1", WorkflowID: &wfID, Enabled: false, Type: store.TriggerWebhook, ConfigJSON: []byte(`{"path":"/x"}`)}
	if _, err := svc.RunWebhook(context.Background(), trig, "delivery-1", nil); err == nil {
		t.Fatal("expected error for disabled trigger")
	}
}
