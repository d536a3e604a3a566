// Package workflow implements the workflow execution runtime: the state
// machine a WorkflowExecution row moves through (pending, running,
// waiting_approval, completed, failed, cancelled), its step trace, the
// approval gate, resume, two periodic reconcilers, self-modification
// proposals, and rollback. The step-graph DSL itself — what a step
// actually does — is an external collaborator's concern; this package
// owns the envelope around it, not its interpretation.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// StepRunner interprets a workflow's step graph against a running
// execution. It is handed a *RunContext rather than the raw store records
// so it can only reach the execution runtime through the same
// state-machine-enforcing surface pkg/api uses.
type StepRunner interface {
	Run(ctx context.Context, rc *RunContext)
}

// Executor tracks every in-flight execution's cancel function (so Cancel
// and graceful shutdown can reach a running goroutine) the same way the
// teacher's ChatMessageExecutor tracks activeExecs, and owns the store
// writes that move an execution through its state machine.
type Executor struct {
	store  *store.Store
	runner StepRunner
	log    *slog.Logger

	mu          sync.RWMutex
	activeExecs map[string]context.CancelFunc
	wg          sync.WaitGroup
	stopped     bool
}

// NewExecutor builds an Executor. runner may be nil, in which case every
// enqueued execution completes immediately with empty outputs — useful for
// tests and for workflows with no external step interpreter configured.
func NewExecutor(st *store.Store, runner StepRunner, log *slog.Logger) *Executor {
	if runner == nil {
		runner = NoopStepRunner{}
	}
	return &Executor{
		store:       st,
		runner:      runner,
		log:         log,
		activeExecs: make(map[string]context.CancelFunc),
	}
}

// Enqueue implements pkg/trigger.Executor: it transitions a freshly created
// pending execution to running and launches the step runner in its own
// goroutine, detached from the caller's request context.
func (e *Executor) Enqueue(ctx context.Context, exec store.ExecutionRecord) error {
	e.mu.RLock()
	if e.stopped {
		e.mu.RUnlock()
		return fmt.Errorf("workflow: executor is shutting down")
	}
	e.mu.RUnlock()

	exec.Status = store.ExecRunning
	if err := e.store.Executions.Update(ctx, exec); err != nil {
		return fmt.Errorf("workflow: mark execution running: %w", err)
	}

	return e.launch(exec)
}

// launch starts (or restarts, after a resume) the step runner goroutine for
// exec, tracking its cancel function for Cancel/Stop.
func (e *Executor) launch(exec store.ExecutionRecord) error {
	runCtx, cancel := context.WithCancel(context.Background())

	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		cancel()
		return fmt.Errorf("workflow: executor is shutting down")
	}
	e.activeExecs[exec.ID] = cancel
	e.wg.Add(1)
	e.mu.Unlock()

	go e.run(runCtx, cancel, exec)
	return nil
}

func (e *Executor) run(ctx context.Context, cancel context.CancelFunc, exec store.ExecutionRecord) {
	defer e.wg.Done()
	defer cancel()
	defer func() {
		e.mu.Lock()
		delete(e.activeExecs, exec.ID)
		e.mu.Unlock()
	}()

	rc := &RunContext{exec: exec, store: e.store, log: e.log}
	e.runner.Run(ctx, rc)
}

// Cancel requests the execution's running goroutine stop, then marks the
// row cancelled. Terminal executions are left untouched.
func (e *Executor) Cancel(ctx context.Context, executionID string) error {
	exec, err := e.store.Executions.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status.Terminal() {
		return relayerr.ErrTerminal
	}

	e.mu.RLock()
	cancel, running := e.activeExecs[executionID]
	e.mu.RUnlock()
	if running {
		cancel()
	}

	now := time.Now()
	exec.Status = store.ExecCancelled
	exec.CompletedAt = &now
	exec.ResumeToken = nil
	return e.store.Executions.Update(ctx, exec)
}

// cancelFunc returns the cancel function tracked for a running execution, if
// any. Used by the stale-execution reconciler to stop a goroutine whose
// session has died before finalising the row.
func (e *Executor) cancelFunc(executionID string) (context.CancelFunc, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cancel, ok := e.activeExecs[executionID]
	return cancel, ok
}

// Stop cancels every running execution's context and waits for their
// goroutines to exit, then rejects further Enqueue calls. Bounded by ctx.
func (e *Executor) Stop(ctx context.Context) {
	e.mu.Lock()
	e.stopped = true
	for _, cancel := range e.activeExecs {
		cancel()
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		e.log.Warn("workflow executor stop timed out waiting for running executions")
	}
}
