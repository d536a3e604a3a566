package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// Reconciler runs the two independent periodic sweeps the execution
// runtime needs: approvals that timed out, and executions whose owning
// session died out from under them. Each runs on its own ticker so one
// sweep's duration never delays the other, grounded on the teacher's
// runOrphanDetection ticker-plus-stopCh idiom.
type Reconciler struct {
	store    *store.Store
	log      *slog.Logger
	executor *Executor

	approvalInterval time.Duration
	staleInterval    time.Duration
	staleAfter       time.Duration
	minApprovalTTL   time.Duration

	stopCh chan struct{}
}

// NewReconciler builds a Reconciler. approvalInterval/staleInterval control
// how often each sweep runs; staleAfter is how long a non-terminal
// execution must be running before its session is even worth checking;
// minApprovalTTL bounds how far back the approval-timeout query reaches
// before per-workflow TTLs are applied (see approvalTimeoutSweep).
func NewReconciler(st *store.Store, executor *Executor, approvalInterval, staleInterval, staleAfter, minApprovalTTL time.Duration, log *slog.Logger) *Reconciler {
	return &Reconciler{
		store:            st,
		log:              log,
		executor:         executor,
		approvalInterval: approvalInterval,
		staleInterval:    staleInterval,
		staleAfter:       staleAfter,
		minApprovalTTL:   minApprovalTTL,
		stopCh:           make(chan struct{}),
	}
}

// Start launches both sweep goroutines. They stop when ctx is cancelled or
// Stop is called, whichever comes first.
func (r *Reconciler) Start(ctx context.Context) {
	go r.loop(ctx, r.approvalInterval, r.approvalTimeoutSweep)
	go r.loop(ctx, r.staleInterval, r.staleExecutionSweep)
}

// Stop signals both sweep goroutines to exit without waiting for a context
// cancellation.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) loop(ctx context.Context, interval time.Duration, sweep func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if err := sweep(ctx); err != nil {
				r.log.Error("workflow reconciler sweep failed", "error", err)
			}
		}
	}
}

// approvalTimeoutSweep finalises waiting_approval executions whose
// workflow-configured approval TTL has elapsed. The store query only
// accepts one cutoff, so the sweep casts a wide net with minApprovalTTL
// and then applies each execution's own workflow's ApprovalTTL before
// finalising it.
func (r *Reconciler) approvalTimeoutSweep(ctx context.Context) error {
	candidates, err := r.store.Executions.ListWaitingApprovalOlderThan(ctx, time.Now().Add(-r.minApprovalTTL))
	if err != nil {
		return fmt.Errorf("list waiting-approval executions: %w", err)
	}

	expired := 0
	for _, exec := range candidates {
		wf, err := r.store.Workflows.Get(ctx, exec.WorkflowID)
		if err != nil {
			r.log.Warn("approval sweep: workflow lookup failed", "execution_id", exec.ID, "workflow_id", exec.WorkflowID, "error", err)
			continue
		}
		ttl := wf.ApprovalTTL
		if ttl <= 0 {
			ttl = r.minApprovalTTL
		}
		if time.Since(exec.StartedAt) < ttl {
			continue
		}

		now := time.Now()
		exec.Status = store.ExecFailed
		exec.Error = "approval timeout"
		exec.CompletedAt = &now
		exec.ResumeToken = nil
		if err := r.store.Executions.Update(ctx, exec); err != nil {
			r.log.Error("approval sweep: failed to finalise execution", "execution_id", exec.ID, "error", err)
			continue
		}
		expired++
	}

	if expired > 0 {
		r.log.Info("approval timeout sweep finalised executions", "count", expired)
	}
	return nil
}

// staleExecutionSweep finalises non-terminal executions whose owning
// workflow-purpose session has died (terminated, errored, or hibernated)
// out from under them.
func (r *Reconciler) staleExecutionSweep(ctx context.Context) error {
	execs, err := r.store.Executions.ListNonTerminal(ctx)
	if err != nil {
		return fmt.Errorf("list non-terminal executions: %w", err)
	}

	finalised := 0
	for _, exec := range execs {
		if time.Since(exec.StartedAt) < r.staleAfter {
			continue
		}
		if exec.SessionID == "" {
			continue
		}
		session, err := r.store.Sessions.Get(ctx, exec.SessionID)
		if err != nil {
			continue
		}

		switch session.Status {
		case store.StatusTerminated, store.StatusError, store.StatusHibernated:
		default:
			continue
		}

		if r.executor != nil {
			if cancel, ok := r.executor.cancelFunc(exec.ID); ok {
				cancel()
			}
		}

		now := time.Now()
		exec.Status = store.ExecFailed
		exec.Error = fmt.Sprintf("owning session %s is %s", session.ID, session.Status)
		exec.CompletedAt = &now
		exec.ResumeToken = nil
		if err := r.store.Executions.Update(ctx, exec); err != nil {
			r.log.Error("stale execution sweep: failed to finalise execution", "execution_id", exec.ID, "error", err)
			continue
		}
		finalised++
	}

	if finalised > 0 {
		r.log.Info("stale execution sweep finalised executions", "count", finalised)
	}
	return nil
}
