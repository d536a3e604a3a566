package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func seedWorkflow(t *testing.T, mem *memstore.Store, allowSelfMod bool) store.WorkflowRecord {
	t.Helper()
	wf := store.WorkflowRecord{
		ID:                    "wf-1",
		OwnerID:               "user-1",
		Name:                  "demo",
		Data:                  []byte(`{"steps":[]}`),
		Version:               "1.0.0",
		AllowSelfModification: allowSelfMod,
	}
	mem.SeedWorkflow(wf)
	return wf
}

func TestPropose_RejectsWhenSelfModificationDisabled(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	wf := seedWorkflow(t, mem, false)
	svc := NewProposalService(&st)

	_, err := svc.Propose(context.Background(), wf.ID, "exec-1", workflowHash(wf.Data), []byte(`{"steps":["new"]}`))
	if !errors.Is(err, relayerr.ErrSelfModDisabled) {
		t.Fatalf("err = %v, want ErrSelfModDisabled", err)
	}
}

func TestProposeApproveApply_UpdatesWorkflowAndArchivesPriorVersion(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	wf := seedWorkflow(t, mem, true)
	svc := NewProposalService(&st)
	ctx := context.Background()

	baseHash := workflowHash(wf.Data)
	newData := []byte(`{"steps":["new"]}`)
	proposal, err := svc.Propose(ctx, wf.ID, "exec-1", baseHash, newData)
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}

	if err := svc.ApproveProposal(ctx, proposal.ID); err != nil {
		t.Fatalf("ApproveProposal: %v", err)
	}

	if err := svc.ApplyProposal(ctx, proposal.ID); err != nil {
		t.Fatalf("ApplyProposal: %v", err)
	}

	got, err := st.Workflows.Get(ctx, wf.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != string(newData) {
		t.Fatalf("data = %s, want %s", got.Data, newData)
	}
	if got.Version != "1.0.1" {
		t.Fatalf("version = %s, want 1.0.1", got.Version)
	}

	archived, err := st.Workflows.LookupVersion(ctx, wf.ID, baseHash)
	if err != nil {
		t.Fatalf("LookupVersion: %v", err)
	}
	if string(archived.Snapshot) != `{"steps":[]}` {
		t.Fatalf("archived snapshot = %s", archived.Snapshot)
	}
}

func TestApplyProposal_RejectsStaleBaseHash(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	wf := seedWorkflow(t, mem, true)
	svc := NewProposalService(&st)
	ctx := context.Background()

	proposal, err := svc.Propose(ctx, wf.ID, "exec-1", workflowHash(wf.Data), []byte(`{"steps":["new"]}`))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := svc.ApproveProposal(ctx, proposal.ID); err != nil {
		t.Fatalf("ApproveProposal: %v", err)
	}

	wf.Data = []byte(`{"steps":["concurrent-edit"]}`)
	if err := st.Workflows.Update(ctx, wf); err != nil {
		t.Fatalf("Update: %v", err)
	}

	err = svc.ApplyProposal(ctx, proposal.ID)
	if !errors.Is(err, ErrBaseHashStale) {
		t.Fatalf("err = %v, want ErrBaseHashStale", err)
	}
}

func TestRejectProposal_CannotLaterBeApplied(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	wf := seedWorkflow(t, mem, true)
	svc := NewProposalService(&st)
	ctx := context.Background()

	proposal, err := svc.Propose(ctx, wf.ID, "exec-1", workflowHash(wf.Data), []byte(`{"steps":["new"]}`))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := svc.RejectProposal(ctx, proposal.ID); err != nil {
		t.Fatalf("RejectProposal: %v", err)
	}

	err = svc.ApplyProposal(ctx, proposal.ID)
	if !errors.Is(err, ErrProposalNotPending) {
		t.Fatalf("err = %v, want ErrProposalNotPending", err)
	}
}

func TestRollback_ReinstatesPriorSnapshotAndArchivesCurrent(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	wf := seedWorkflow(t, mem, true)
	svc := NewProposalService(&st)
	ctx := context.Background()
	originalHash := workflowHash(wf.Data)

	proposal, err := svc.Propose(ctx, wf.ID, "exec-1", originalHash, []byte(`{"steps":["new"]}`))
	if err != nil {
		t.Fatalf("Propose: %v", err)
	}
	if err := svc.ApproveProposal(ctx, proposal.ID); err != nil {
		t.Fatalf("ApproveProposal: %v", err)
	}
	if err := svc.ApplyProposal(ctx, proposal.ID); err != nil {
		t.Fatalf("ApplyProposal: %v", err)
	}

	if err := svc.Rollback(ctx, wf.ID, originalHash); err != nil {
		t.Fatalf("Rollback: %v", err)
	}

	got, err := st.Workflows.Get(ctx, wf.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got.Data) != `{"steps":[]}` {
		t.Fatalf("data = %s, want rolled back to original", got.Data)
	}

	archived, err := st.Workflows.LookupVersion(ctx, wf.ID, workflowHash([]byte(`{"steps":["new"]}`)))
	if err != nil {
		t.Fatalf("LookupVersion: %v", err)
	}
	if string(archived.Snapshot) != `{"steps":["new"]}` {
		t.Fatalf("archived snapshot = %s, want the pre-rollback data", archived.Snapshot)
	}
}
