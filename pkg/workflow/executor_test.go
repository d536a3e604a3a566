package workflow

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestExecutor(t *testing.T, runner StepRunner) (*Executor, store.Store) {
	t.Helper()
	st := memstore.New().AsStore()
	return NewExecutor(&st, runner, testLogger()), st
}

func seedPendingExecution(t *testing.T, st store.Store, status store.ExecutionStatus) store.ExecutionRecord {
	t.Helper()
	exec, err := st.Executions.Create(context.Background(), store.ExecutionRecord{
		WorkflowID: "wf-1",
		UserID:     "user-1",
		Status:     status,
		StartedAt:  time.Now(),
		SessionID:  "sess-1",
	})
	if err != nil {
		t.Fatalf("seed execution: %v", err)
	}
	return exec
}

// blockingRunner runs until its context is cancelled, signalling started.
type blockingRunner struct {
	started chan struct{}
}

func (b *blockingRunner) Run(ctx context.Context, rc *RunContext) {
	close(b.started)
	<-ctx.Done()
}

func TestExecutor_Enqueue_TransitionsToRunningAndCompletes(t *testing.T) {
	exec, st := newTestExecutor(t, NoopStepRunner{})
	row := seedPendingExecution(t, st, store.ExecPending)

	if err := exec.Enqueue(context.Background(), row); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		got, err := st.Executions.Get(context.Background(), row.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status == store.ExecCompleted {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("execution never reached completed")
}

func TestExecutor_Cancel_StopsRunningGoroutineAndMarksCancelled(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	exec, st := newTestExecutor(t, runner)
	row := seedPendingExecution(t, st, store.ExecPending)

	if err := exec.Enqueue(context.Background(), row); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-runner.started

	if err := exec.Cancel(context.Background(), row.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	got, err := st.Executions.Get(context.Background(), row.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != store.ExecCancelled {
		t.Fatalf("status = %s, want cancelled", got.Status)
	}
}

func TestExecutor_Cancel_RejectsAlreadyTerminal(t *testing.T) {
	exec, st := newTestExecutor(t, NoopStepRunner{})
	row := seedPendingExecution(t, st, store.ExecCompleted)

	if err := exec.Cancel(context.Background(), row.ID); err == nil {
		t.Fatal("expected error cancelling a terminal execution")
	}
}

func TestExecutor_Stop_WaitsForRunningGoroutines(t *testing.T) {
	runner := &blockingRunner{started: make(chan struct{})}
	exec, st := newTestExecutor(t, runner)
	row := seedPendingExecution(t, st, store.ExecPending)

	if err := exec.Enqueue(context.Background(), row); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	<-runner.started

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	exec.Stop(ctx)

	if _, ok := exec.cancelFunc(row.ID); ok {
		t.Fatal("expected running goroutine to have exited before Stop returned")
	}
	if err := exec.Enqueue(context.Background(), row); err == nil {
		t.Fatal("expected Enqueue to reject after Stop")
	}
}
