// Package relayerr defines the typed error taxonomy shared by every layer of
// the platform (holder, gateway, trigger dispatcher, workflow runtime). HTTP
// and WebSocket edges map these to status codes / close codes; nothing below
// the edge should hand-roll its own error strings for conditions covered here.
package relayerr

import (
	"errors"
	"fmt"
)

// ValidationError reports bad input at any boundary. Never retried.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation error on field %q: %s", e.Field, e.Message)
}

// NewValidationError builds a ValidationError.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports that an addressed entity is missing or not visible.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NewNotFoundError builds a NotFoundError.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// PermissionError reports that the caller lacks the required role/visibility.
// Distinguished from NotFoundError only when the caller should already know
// the entity exists (e.g. they created it).
type PermissionError struct {
	Reason string
}

func (e *PermissionError) Error() string {
	return "permission denied: " + e.Reason
}

// NewPermissionError builds a PermissionError.
func NewPermissionError(reason string) error {
	return &PermissionError{Reason: reason}
}

// ConcurrencyError reports that admission control rejected a request. It
// carries both counters so the client can decide how hard to back off.
type ConcurrencyError struct {
	ActiveUser   int
	ActiveGlobal int
	Limit        int
	Scope        string // "user" or "global" — which counter tripped
}

func (e *ConcurrencyError) Error() string {
	return fmt.Sprintf("concurrency limit exceeded (%s): user=%d global=%d limit=%d",
		e.Scope, e.ActiveUser, e.ActiveGlobal, e.Limit)
}

// IdempotencyHit is a non-error outcome: a prior request already created the
// entity. Callers use errors.As to pull out the prior identifiers and return
// them instead of creating anything new.
type IdempotencyHit struct {
	ExecutionID string
	Status      string
	SessionID   string
}

func (e *IdempotencyHit) Error() string {
	return fmt.Sprintf("idempotency hit: execution %s already exists (status=%s)", e.ExecutionID, e.Status)
}

// TimeoutError reports that a request/response correlation exceeded its deadline.
type TimeoutError struct {
	RequestID string
	Op        string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("request %s (%s) timed out", e.RequestID, e.Op)
}

// NewTimeoutError builds a TimeoutError.
func NewTimeoutError(requestID, op string) error {
	return &TimeoutError{RequestID: requestID, Op: op}
}

// UpstreamError reports that the gateway proxy or a third-party channel
// returned a non-OK response. BodyPrefix is truncated defensively before
// being logged or surfaced.
type UpstreamError struct {
	StatusCode int
	BodyPrefix string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status=%d body=%q", e.StatusCode, e.BodyPrefix)
}

// NewUpstreamError builds an UpstreamError, truncating the body to a safe length.
func NewUpstreamError(status int, body string) error {
	const maxBody = 256
	if len(body) > maxBody {
		body = body[:maxBody]
	}
	return &UpstreamError{StatusCode: status, BodyPrefix: body}
}

// Fatal reports a condition that must terminate the owning process: runner
// supersession or credential rotation. Callers that receive a Fatal should
// exit rather than retry.
type Fatal struct {
	Reason   string
	ExitCode int
}

func (e *Fatal) Error() string {
	return "fatal: " + e.Reason
}

// NewFatal builds a Fatal error with the process exit code it implies.
func NewFatal(reason string, exitCode int) error {
	return &Fatal{Reason: reason, ExitCode: exitCode}
}

// Sentinel errors for errors.Is-style comparisons where no extra data is needed.
var (
	ErrNotFound        = errors.New("entity not found")
	ErrAlreadyExists   = errors.New("entity already exists")
	ErrNotCancellable  = errors.New("not in a cancellable state")
	ErrTerminal        = errors.New("entity is in a terminal state")
	ErrTokenMismatch   = errors.New("resume token mismatch")
	ErrSelfModDisabled = errors.New("workflow does not allow self-modification")
)

// As is a thin generic wrapper over errors.As for call sites that want a
// one-liner type switch without declaring the local variable themselves.
func As[T error](err error) (T, bool) {
	var target T
	ok := errors.As(err, &target)
	return target, ok
}
