package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

type executionResponse struct {
	ID              string `json:"id"`
	WorkflowID      string `json:"workflowId"`
	Status          string `json:"status"`
	SessionID       string `json:"sessionId"`
	WorkflowVersion string `json:"workflowVersion"`
	Error           string `json:"error,omitempty"`
}

func toExecutionResponse(e store.ExecutionRecord) executionResponse {
	return executionResponse{
		ID: e.ID, WorkflowID: e.WorkflowID, Status: string(e.Status),
		SessionID: e.SessionID, WorkflowVersion: e.WorkflowVersion, Error: e.Error,
	}
}

// getExecutionHandler handles GET /api/v1/executions/:id.
func (s *Server) getExecutionHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	exec, err := s.store.Executions.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(http.StatusOK, toExecutionResponse(exec))
}

// cancelExecutionHandler handles POST /api/v1/executions/:id/cancel.
func (s *Server) cancelExecutionHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	if err := s.executor.Cancel(c.Request().Context(), c.Param("id")); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type approvalGateRequest struct {
	Token string `json:"token"`
}

// approveExecutionHandler handles POST /api/v1/executions/:id/approve,
// resuming an execution suspended at an approval gate.
func (s *Server) approveExecutionHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	var req approvalGateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	if err := s.executor.Approve(c.Request().Context(), c.Param("id"), req.Token); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// denyExecutionHandler handles POST /api/v1/executions/:id/deny, finalising
// an execution suspended at an approval gate as failed.
func (s *Server) denyExecutionHandler(c *echo.Context) error {
	if _, err := requestUserID(c); err != nil {
		return mapServiceError(c, s.log, err)
	}
	var req approvalGateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	if err := s.executor.Deny(c.Request().Context(), c.Param("id"), req.Token); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
