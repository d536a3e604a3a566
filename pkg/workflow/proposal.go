package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// defaultProposalTTL is how long a pending self-modification proposal stays
// approvable before ApplyProposal starts rejecting it as expired.
const defaultProposalTTL = 14 * 24 * time.Hour

// Errors specific to the self-modification/rollback surface. These stay
// local to the package rather than joining relayerr's platform-wide
// taxonomy because they only ever originate from this one state machine.
var (
	ErrProposalExpired    = errors.New("proposal has expired")
	ErrProposalNotPending = errors.New("proposal is not pending")
	ErrBaseHashStale      = errors.New("workflow has changed since the proposal was created")
	ErrVersionNotFound    = errors.New("workflow version not found in history")
)

// ProposalService manages a workflow's self-modification lifecycle: an
// execution proposes a change to its own workflow, an operator
// approves/rejects it, and an approved proposal is applied with an
// optimistic-concurrency check against the workflow's current hash.
type ProposalService struct {
	store *store.Store
}

// NewProposalService builds a ProposalService.
func NewProposalService(st *store.Store) *ProposalService {
	return &ProposalService{store: st}
}

// Propose records a pending self-modification proposal. The workflow must
// have AllowSelfModification set; the proposal's baseWorkflowHash anchors
// the optimistic-concurrency check ApplyProposal performs later.
func (p *ProposalService) Propose(ctx context.Context, workflowID, executionID, baseWorkflowHash string, proposedData []byte) (store.MutationProposalRecord, error) {
	wf, err := p.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return store.MutationProposalRecord{}, err
	}
	if !wf.AllowSelfModification {
		return store.MutationProposalRecord{}, relayerr.ErrSelfModDisabled
	}

	now := time.Now()
	return p.store.Proposals.Create(ctx, store.MutationProposalRecord{
		ID:               uuid.New().String(),
		WorkflowID:       workflowID,
		ExecutionID:      executionID,
		BaseWorkflowHash: baseWorkflowHash,
		ProposedData:     proposedData,
		Status:           "pending",
		CreatedAt:        now,
		ExpiresAt:        now.Add(defaultProposalTTL),
	})
}

// ApproveProposal marks a pending proposal approved, ready for ApplyProposal.
func (p *ProposalService) ApproveProposal(ctx context.Context, proposalID string) error {
	return p.transition(ctx, proposalID, "approved")
}

// RejectProposal marks a pending proposal rejected; it will never be applied.
func (p *ProposalService) RejectProposal(ctx context.Context, proposalID string) error {
	return p.transition(ctx, proposalID, "rejected")
}

func (p *ProposalService) transition(ctx context.Context, proposalID, newStatus string) error {
	proposal, err := p.store.Proposals.Get(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != "pending" {
		return ErrProposalNotPending
	}
	if time.Now().After(proposal.ExpiresAt) {
		return ErrProposalExpired
	}
	proposal.Status = newStatus
	return p.store.Proposals.Update(ctx, proposal)
}

// ApplyProposal applies an approved proposal to its workflow: it checks the
// proposal's BaseWorkflowHash still matches the workflow's current content
// hash (rejecting with ErrBaseHashStale if another change landed first),
// archives the pre-apply snapshot, bumps the patch version, and writes the
// new snapshot as current.
func (p *ProposalService) ApplyProposal(ctx context.Context, proposalID string) error {
	proposal, err := p.store.Proposals.Get(ctx, proposalID)
	if err != nil {
		return err
	}
	if proposal.Status != "approved" {
		return ErrProposalNotPending
	}
	if time.Now().After(proposal.ExpiresAt) {
		return ErrProposalExpired
	}

	wf, err := p.store.Workflows.Get(ctx, proposal.WorkflowID)
	if err != nil {
		return err
	}
	currentHash := workflowHash(wf.Data)
	if currentHash != proposal.BaseWorkflowHash {
		return ErrBaseHashStale
	}

	if err := p.store.Workflows.ArchiveVersion(ctx, wf.ID, currentHash, wf.Data, "proposal_apply"); err != nil {
		return fmt.Errorf("workflow: archive pre-apply snapshot: %w", err)
	}

	wf.Data = proposal.ProposedData
	wf.Version = bumpVersion(wf.Version)
	if err := p.store.Workflows.Update(ctx, wf); err != nil {
		return fmt.Errorf("workflow: apply proposal: %w", err)
	}

	proposal.Status = "applied"
	return p.store.Proposals.Update(ctx, proposal)
}

// Rollback reinstates a prior workflow version by hash, archiving the
// current snapshot first so the rollback itself is reversible.
func (p *ProposalService) Rollback(ctx context.Context, workflowID, hash string) error {
	version, err := p.store.Workflows.LookupVersion(ctx, workflowID, hash)
	if err != nil {
		return err
	}

	wf, err := p.store.Workflows.Get(ctx, workflowID)
	if err != nil {
		return err
	}
	currentHash := workflowHash(wf.Data)
	if currentHash == hash {
		return nil
	}

	if err := p.store.Workflows.ArchiveVersion(ctx, wf.ID, currentHash, wf.Data, "rollback"); err != nil {
		return fmt.Errorf("workflow: archive pre-rollback snapshot: %w", err)
	}

	wf.Data = version.Snapshot
	wf.Version = bumpVersion(wf.Version)
	return p.store.Workflows.Update(ctx, wf)
}
