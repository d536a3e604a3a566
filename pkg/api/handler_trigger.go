package api

import (
	"encoding/json"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// createTriggerRequest is the POST /triggers body.
type createTriggerRequest struct {
	WorkflowID      *string           `json:"workflowId"`
	Name            string            `json:"name"`
	Enabled         bool              `json:"enabled"`
	Type            store.TriggerType `json:"type"`
	Config          json.RawMessage   `json:"config"`
	VariableMapping map[string]string `json:"variableMapping,omitempty"`
}

type triggerResponse struct {
	ID              string            `json:"id"`
	WorkflowID      *string           `json:"workflowId,omitempty"`
	Name            string            `json:"name"`
	Enabled         bool              `json:"enabled"`
	Type            store.TriggerType `json:"type"`
	Config          json.RawMessage   `json:"config"`
	VariableMapping map[string]string `json:"variableMapping,omitempty"`
}

func toTriggerResponse(t store.TriggerRecord) triggerResponse {
	return triggerResponse{
		ID: t.ID, WorkflowID: t.WorkflowID, Name: t.Name, Enabled: t.Enabled,
		Type: t.Type, Config: json.RawMessage(t.ConfigJSON), VariableMapping: t.VariableMapping,
	}
}

// createTriggerHandler handles POST /api/v1/triggers.
func (s *Server) createTriggerHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	var req createTriggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	t, err := s.triggers.Create(c.Request().Context(), store.TriggerRecord{
		UserID: userID, WorkflowID: req.WorkflowID, Name: req.Name, Enabled: req.Enabled,
		Type: req.Type, ConfigJSON: []byte(req.Config), VariableMapping: req.VariableMapping,
	})
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(http.StatusCreated, toTriggerResponse(t))
}

// getTriggerHandler handles GET /api/v1/triggers/:id.
func (s *Server) getTriggerHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	t, err := s.triggers.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	if t.UserID != userID {
		return mapServiceError(c, s.log, relayerr.NewNotFoundError("trigger", c.Param("id")))
	}
	return c.JSON(http.StatusOK, toTriggerResponse(t))
}

// updateTriggerHandler handles PUT /api/v1/triggers/:id.
func (s *Server) updateTriggerHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	id := c.Param("id")
	existing, err := s.triggers.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	if existing.UserID != userID {
		return mapServiceError(c, s.log, relayerr.NewNotFoundError("trigger", id))
	}
	var req createTriggerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	existing.WorkflowID = req.WorkflowID
	existing.Name = req.Name
	existing.Enabled = req.Enabled
	existing.Type = req.Type
	existing.ConfigJSON = []byte(req.Config)
	existing.VariableMapping = req.VariableMapping
	if err := s.triggers.Update(c.Request().Context(), existing); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(http.StatusOK, toTriggerResponse(existing))
}

// deleteTriggerHandler handles DELETE /api/v1/triggers/:id.
func (s *Server) deleteTriggerHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	id := c.Param("id")
	existing, err := s.triggers.Get(c.Request().Context(), id)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	if existing.UserID != userID {
		return mapServiceError(c, s.log, relayerr.NewNotFoundError("trigger", id))
	}
	if err := s.triggers.Delete(c.Request().Context(), id); err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

type runRequest struct {
	ClientRequestID string          `json:"clientRequestId"`
	Variables       json.RawMessage `json:"variables,omitempty"`
}

type dispatchResponse struct {
	ExecutionID string `json:"executionId,omitempty"`
	SessionID   string `json:"sessionId,omitempty"`
	Status      string `json:"status"`
	Deduped     bool   `json:"deduped"`
}

// runTriggerHandler handles POST /api/v1/triggers/:id/run, firing a stored
// trigger manually from the UI. Returns 200 on an idempotency-key dedup hit,
// 202 once a new execution (or orchestrator prompt) has been queued.
func (s *Server) runTriggerHandler(c *echo.Context) error {
	userID, err := requestUserID(c)
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "invalid request body"})
	}
	outcome, err := s.triggers.RunManualTrigger(c.Request().Context(), c.Param("id"), userID, req.ClientRequestID, []byte(req.Variables))
	if err != nil {
		return mapServiceError(c, s.log, err)
	}
	return c.JSON(dispatchStatusCode(outcome.Deduped), dispatchResponse{
		ExecutionID: outcome.ExecutionID, SessionID: outcome.SessionID, Status: outcome.Status, Deduped: outcome.Deduped,
	})
}

// dispatchStatusCode implements the documented 200-on-dedup / 202-on-queued
// split for every dispatch-shaped response.
func dispatchStatusCode(deduped bool) int {
	if deduped {
		return http.StatusOK
	}
	return http.StatusAccepted
}
