package workflow

import (
	"context"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// Approve accepts a pending approval gate: token must match the execution's
// stored resume token exactly. On success the execution re-enters running
// with its existing runtime state and the step runner resumes in a fresh
// goroutine at the step the runtime state names.
func (e *Executor) Approve(ctx context.Context, executionID, token string) error {
	exec, err := e.awaitingApproval(ctx, executionID, token)
	if err != nil {
		return err
	}
	exec.Status = store.ExecRunning
	exec.ResumeToken = nil
	exec.Error = ""
	if err := e.store.Executions.Update(ctx, exec); err != nil {
		return err
	}
	return e.launch(exec)
}

// Deny rejects a pending approval gate, finalising the execution as failed
// without re-entering the step runner.
func (e *Executor) Deny(ctx context.Context, executionID, token string) error {
	exec, err := e.awaitingApproval(ctx, executionID, token)
	if err != nil {
		return err
	}
	now := time.Now()
	exec.Status = store.ExecFailed
	exec.Error = "approval denied"
	exec.CompletedAt = &now
	exec.ResumeToken = nil
	return e.store.Executions.Update(ctx, exec)
}

// Resume restores status=running for an execution in waiting_approval,
// clearing resumeToken and any prior error and writing runtimeState, then
// relaunches the step runner. Unlike Approve, it does not require a token
// match and it replaces the stored runtime state, so an operator/runbook
// path can resume with edited runtime state after manual intervention.
func (e *Executor) Resume(ctx context.Context, executionID string, runtimeState []byte) error {
	exec, err := e.store.Executions.Get(ctx, executionID)
	if err != nil {
		return err
	}
	if exec.Status != store.ExecWaitingApproval {
		return relayerr.NewValidationError("status", "execution is not awaiting approval")
	}
	exec.Status = store.ExecRunning
	exec.ResumeToken = nil
	exec.Error = ""
	exec.RuntimeState = runtimeState
	if err := e.store.Executions.Update(ctx, exec); err != nil {
		return err
	}
	return e.launch(exec)
}

// awaitingApproval loads exec, validating it is in waiting_approval with a
// matching resume token.
func (e *Executor) awaitingApproval(ctx context.Context, executionID, token string) (store.ExecutionRecord, error) {
	exec, err := e.store.Executions.Get(ctx, executionID)
	if err != nil {
		return store.ExecutionRecord{}, err
	}
	if exec.Status != store.ExecWaitingApproval {
		return store.ExecutionRecord{}, relayerr.NewValidationError("status", "execution is not awaiting approval")
	}
	if exec.ResumeToken == nil || *exec.ResumeToken != token {
		return store.ExecutionRecord{}, relayerr.ErrTokenMismatch
	}
	return exec, nil
}
