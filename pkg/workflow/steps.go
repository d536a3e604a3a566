package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// RunContext is the only surface a StepRunner gets to mutate execution
// state through. It always re-reads the current row before writing so a
// concurrent Cancel/Approve/Deny observed by the store (which ignores
// writes to terminal rows, see store/memstore's Update) is never clobbered
// by a stale in-goroutine copy.
type RunContext struct {
	exec  store.ExecutionRecord
	store *store.Store
	log   *slog.Logger
}

// ExecutionID returns the id of the execution this context drives.
func (rc *RunContext) ExecutionID() string { return rc.exec.ID }

// Variables returns the JSON-encoded trigger-resolved variables the
// execution was created with.
func (rc *RunContext) Variables() []byte { return rc.exec.Variables }

// WorkflowSnapshot returns the opaque step-graph data the execution was
// dispatched against.
func (rc *RunContext) WorkflowSnapshot() []byte { return rc.exec.WorkflowSnapshot }

// RuntimeState returns the runtime state recorded by SuspendForApproval or
// Resume, naming the step a resumed execution continues from.
func (rc *RunContext) RuntimeState() []byte { return rc.exec.RuntimeState }

// RecordStep upserts one step's trace. COALESCE semantics (startedAt/input
// never regress) are enforced by the store, not here.
func (rc *RunContext) RecordStep(ctx context.Context, step store.StepRecord) error {
	step.ExecutionID = rc.exec.ID
	if step.Attempt < 1 {
		step.Attempt = 1
	}
	return rc.store.Steps.Upsert(ctx, step)
}

// SuspendForApproval moves the execution to waiting_approval, recording the
// resume token the next Approve/Deny call must match and the runtime state
// Resume will hand back to the step runner.
func (rc *RunContext) SuspendForApproval(ctx context.Context, resumeToken string, runtimeState []byte) error {
	exec, err := rc.store.Executions.Get(ctx, rc.exec.ID)
	if err != nil {
		return err
	}
	exec.Status = store.ExecWaitingApproval
	exec.ResumeToken = &resumeToken
	exec.RuntimeState = runtimeState
	return rc.store.Executions.Update(ctx, exec)
}

// Complete finalises the execution as completed with the given outputs.
func (rc *RunContext) Complete(ctx context.Context, outputs []byte) error {
	exec, err := rc.store.Executions.Get(ctx, rc.exec.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	exec.Status = store.ExecCompleted
	exec.Outputs = outputs
	exec.CompletedAt = &now
	exec.ResumeToken = nil
	return rc.store.Executions.Update(ctx, exec)
}

// Fail finalises the execution as failed with the given error message.
func (rc *RunContext) Fail(ctx context.Context, reason string) error {
	exec, err := rc.store.Executions.Get(ctx, rc.exec.ID)
	if err != nil {
		return err
	}
	now := time.Now()
	exec.Status = store.ExecFailed
	exec.Error = reason
	exec.CompletedAt = &now
	exec.ResumeToken = nil
	return rc.store.Executions.Update(ctx, exec)
}

// NoopStepRunner completes every execution immediately with empty outputs.
// It is the default used when no external step interpreter is wired in —
// the declarative step-graph format itself is an external collaborator's
// concern (see package doc comment).
type NoopStepRunner struct{}

func (NoopStepRunner) Run(ctx context.Context, rc *RunContext) {
	if err := rc.Complete(ctx, nil); err != nil {
		rc.log.Error("noop step runner failed to complete execution", "execution_id", rc.ExecutionID(), "error", fmt.Sprintf("%v", err))
	}
}
