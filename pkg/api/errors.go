package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/workflow"
)

// concurrencyErrResponse extends errResponse with the back-off counters a
// 429 response carries per the documented Trigger HTTP API contract.
type concurrencyErrResponse struct {
	errResponse
	ActiveUser   int `json:"activeUser"`
	ActiveGlobal int `json:"activeGlobal"`
	Limit        int `json:"limit"`
}

// mapServiceError maps the platform's typed error taxonomy to an HTTP
// response, mirroring the propagation policy: adapters and stores raise
// typed errors, routes map them to codes and a JSON body.
func mapServiceError(c *echo.Context, log *slog.Logger, err error) error {
	var validErr *relayerr.ValidationError
	if errors.As(err, &validErr) {
		return c.JSON(http.StatusBadRequest, errResponse{Error: "validation failed", Reason: validErr.Error()})
	}

	var notFound *relayerr.NotFoundError
	if errors.As(err, &notFound) {
		return c.JSON(http.StatusNotFound, errResponse{Error: "not found", Reason: notFound.Error()})
	}

	var permErr *relayerr.PermissionError
	if errors.As(err, &permErr) {
		return c.JSON(http.StatusForbidden, errResponse{Error: "forbidden", Reason: permErr.Error()})
	}

	var concErr *relayerr.ConcurrencyError
	if errors.As(err, &concErr) {
		return c.JSON(http.StatusTooManyRequests, concurrencyErrResponse{
			errResponse:  errResponse{Error: "concurrency limit exceeded", Reason: concErr.Error()},
			ActiveUser:   concErr.ActiveUser,
			ActiveGlobal: concErr.ActiveGlobal,
			Limit:        concErr.Limit,
		})
	}

	var timeoutErr *relayerr.TimeoutError
	if errors.As(err, &timeoutErr) {
		return c.JSON(http.StatusGatewayTimeout, errResponse{Error: "timed out", Reason: timeoutErr.Error()})
	}

	var upstreamErr *relayerr.UpstreamError
	if errors.As(err, &upstreamErr) {
		return c.JSON(http.StatusBadGateway, errResponse{Error: "upstream error", Reason: upstreamErr.Error()})
	}

	if errors.Is(err, relayerr.ErrTerminal) || errors.Is(err, relayerr.ErrNotCancellable) || errors.Is(err, relayerr.ErrAlreadyExists) ||
		errors.Is(err, workflow.ErrProposalNotPending) || errors.Is(err, workflow.ErrProposalExpired) ||
		errors.Is(err, workflow.ErrBaseHashStale) {
		return c.JSON(http.StatusConflict, errResponse{Error: "conflict", Reason: err.Error()})
	}

	if errors.Is(err, workflow.ErrVersionNotFound) {
		return c.JSON(http.StatusNotFound, errResponse{Error: "not found", Reason: err.Error()})
	}

	if errors.Is(err, relayerr.ErrTokenMismatch) || errors.Is(err, relayerr.ErrSelfModDisabled) {
		return c.JSON(http.StatusForbidden, errResponse{Error: "forbidden", Reason: err.Error()})
	}

	if errors.Is(err, errMissingUser) {
		return c.JSON(http.StatusUnauthorized, errResponse{Error: "authentication required"})
	}

	log.Error("unexpected service error", "error", err)
	return c.JSON(http.StatusInternalServerError, errResponse{Error: "internal server error"})
}
