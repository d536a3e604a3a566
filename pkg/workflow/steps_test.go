package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func newRunContext(t *testing.T, st store.Store, row store.ExecutionRecord) *RunContext {
	t.Helper()
	return &RunContext{exec: row, store: &st, log: testLogger()}
}

func TestRunContext_CompleteSetsOutputsAndClearsResumeToken(t *testing.T) {
	st := memstore.New().AsStore()
	row := seedPendingExecution(t, st, store.ExecRunning)
	tok := "tok-1"
	row.ResumeToken = &tok
	if err := st.Executions.Update(context.Background(), row); err != nil {
		t.Fatalf("Update: %v", err)
	}
	rc := newRunContext(t, st, row)

	if err := rc.Complete(context.Background(), []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := st.Executions.Get(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.ExecCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if string(got.Outputs) != `{"ok":true}` {
		t.Fatalf("outputs = %s", got.Outputs)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected CompletedAt to be set")
	}
	if got.ResumeToken != nil {
		t.Fatalf("resumeToken = %q, want cleared", *got.ResumeToken)
	}
}

func TestRunContext_Fail(t *testing.T) {
	st := memstore.New().AsStore()
	row := seedPendingExecution(t, st, store.ExecRunning)
	rc := newRunContext(t, st, row)

	if err := rc.Fail(context.Background(), "boom"); err != nil {
		t.Fatalf("Fail: %v", err)
	}

	got, err := st.Executions.Get(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.ExecFailed || got.Error != "boom" {
		t.Fatalf("got status=%s error=%q", got.Status, got.Error)
	}
}

func TestRunContext_SuspendForApproval(t *testing.T) {
	st := memstore.New().AsStore()
	row := seedPendingExecution(t, st, store.ExecRunning)
	rc := newRunContext(t, st, row)

	if err := rc.SuspendForApproval(context.Background(), "tok-1", []byte(`{"step":2}`)); err != nil {
		t.Fatalf("SuspendForApproval: %v", err)
	}

	got, err := st.Executions.Get(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.ExecWaitingApproval {
		t.Fatalf("status = %s, want waiting_approval", got.Status)
	}
	if got.ResumeToken == nil || *got.ResumeToken != "tok-1" {
		t.Fatalf("resume token = %v", got.ResumeToken)
	}
}

func TestRunContext_CompleteDoesNotClobberConcurrentCancel(t *testing.T) {
	st := memstore.New().AsStore()
	row := seedPendingExecution(t, st, store.ExecRunning)
	rc := newRunContext(t, st, row)

	now := time.Now()
	row.Status = store.ExecCancelled
	row.CompletedAt = &now
	if err := st.Executions.Update(context.Background(), row); err != nil {
		t.Fatalf("Update: %v", err)
	}

	if err := rc.Complete(context.Background(), []byte("late")); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	got, err := st.Executions.Get(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.ExecCancelled {
		t.Fatalf("status = %s, want cancelled to survive the late Complete", got.Status)
	}
}

func TestRecordStep_DefaultsAttemptToOne(t *testing.T) {
	st := memstore.New().AsStore()
	row := seedPendingExecution(t, st, store.ExecRunning)
	rc := newRunContext(t, st, row)

	if err := rc.RecordStep(context.Background(), store.StepRecord{StepID: "fetch", Status: store.StepRunning}); err != nil {
		t.Fatalf("RecordStep: %v", err)
	}

	steps, err := st.Steps.ListForExecution(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("ListForExecution: %v", err)
	}
	if len(steps) != 1 || steps[0].Attempt != 1 {
		t.Fatalf("steps = %+v", steps)
	}
}
