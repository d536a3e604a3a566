package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// runWorkflowHandler handles POST /api/v1/workflows/:id/run, the direct
// "run this workflow now" UI action not tied to any stored trigger.
func (s *Server) runWorkflowHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	outcome, err := s.triggers.RunManual(c.Request().Context(), c.Param("id"), userID, req.ClientRequestID, []byte(req.Variables))
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(dispatchStatusCode(outcome.Deduped), dispatchResponse{
		ExecutionID: outcome.ExecutionID, SessionID: outcome.SessionID, Status: outcome.Status, Deduped: outcome.Deduped,
	})
}

type proposeRequest struct {
	ExecutionID      string          `json:"executionId"`
	BaseWorkflowHash string          `json:"baseWorkflowHash"`
	ProposedData     json.RawMessage `json:"proposedData"`
}

type proposalResponse struct {
	ID               string `json:"id"`
	WorkflowID       string `json:"workflowId"`
	ExecutionID      string `json:"executionId"`
	BaseWorkflowHash string `json:"baseWorkflowHash"`
	Status           string `json:"status"`
	ExpiresAt        string `json:"expiresAt"`
}

func toProposalResponse(p store.MutationProposalRecord) proposalResponse {
	return proposalResponse{
		ID: p.ID, WorkflowID: p.WorkflowID, ExecutionID: p.ExecutionID,
		BaseWorkflowHash: p.BaseWorkflowHash, Status: p.Status,
		ExpiresAt: p.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}
}

// proposeWorkflowChangeHandler handles POST /api/v1/workflows/:id/proposals,
// the entry point for a self-modifying execution to propose a change to its
// own workflow definition.
func (s *Server) proposeWorkflowChangeHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	var req proposeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	proposal, err := s.proposals.Propose(c.Request().Context(), c.Param("id"), req.ExecutionID, req.BaseWorkflowHash, []byte(req.ProposedData))
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(http.StatusCreated, toProposalResponse(proposal))
}

// approveProposalHandler handles POST
// /api/v1/workflows/:id/proposals/:proposalId/approve.
func (s *Server) approveProposalHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	if err := s.proposals.ApproveProposal(c.Request().Context(), c.Param("proposalId")); err != nil {
		return mapServiceError(c, s.log, err)
	}
	if err := s.proposals.ApplyProposal(c.Request().Context(), c.Param("proposalId")); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// rejectProposalHandler handles POST
// /api/v1/workflows/:id/proposals/:proposalId/reject.
func (s *Server) rejectProposalHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	if err := s.proposals.RejectProposal(c.Request().Context(), c.Param("proposalId")); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// rollbackWorkflowHandler handles POST
// /api/v1/workflows/:id/rollback/:hash, reinstating a prior archived
// snapshot as the current definition.
func (s *Server) rollbackWorkflowHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	if err := s.proposals.Rollback(c.Request().Context(), c.Param("id"), c.Param("hash")); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
