package api

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxrelay/fluxrelay/pkg/holder"
	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
	"github.com/fluxrelay/fluxrelay/pkg/trigger"
	"github.com/fluxrelay/fluxrelay/pkg/workflow"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer wires a complete in-memory Server the way cmd/server does,
// minus any network listener.
func newTestServer(t *testing.T) (*Server, *memstore.Store) {
	t.Helper()
	mem := memstore.New()
	st := mem.AsStore()
	log := testLogger()

	executor := workflow.NewExecutor(&st, workflow.NoopStepRunner{}, log)
	proposals := workflow.NewProposalService(&st)
	registry := holder.NewRegistry(st, log)
	triggers := trigger.NewService(&st, nil, executor, trigger.AdmissionLimits{PerUser: 10, Global: 100}, log)

	return NewServer(&st, registry, triggers, executor, proposals, nil, nil, nil, log), mem
}

func doRequest(t *testing.T, s *Server, method, target string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	return rec
}

func authHeaders(userID string) map[string]string {
	return map[string]string{"X-Forwarded-User": userID}
}

func TestHealthHandler_DoesNotRequireAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAPIRoutes_RejectMissingAuth(t *testing.T) {
	s, _ := newTestServer(t)
	rec := doRequest(t, s, http.MethodGet, "/api/v1/triggers/nope", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateGetUpdateDeleteTrigger(t *testing.T) {
	s, _ := newTestServer(t)
	wfID := "wf-1"

	createBody := createTriggerRequest{
		WorkflowID: &wfID, Name: "deploy hook", Enabled: true,
		Type: store.TriggerWebhook, Config: json.RawMessage(`{"path":"/hooks/deploy"}`),
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/triggers", createBody, authHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var created triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	require.NotEmpty(t, created.ID)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/triggers/"+created.ID, nil, authHeaders("user-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// A different user cannot see this trigger.
	rec = doRequest(t, s, http.MethodGet, "/api/v1/triggers/"+created.ID, nil, authHeaders("user-2"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	updateBody := createTriggerRequest{
		WorkflowID: &wfID, Name: "renamed hook", Enabled: false,
		Type: store.TriggerWebhook, Config: json.RawMessage(`{"path":"/hooks/deploy"}`),
	}
	rec = doRequest(t, s, http.MethodPut, "/api/v1/triggers/"+created.ID, updateBody, authHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var updated triggerResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &updated))
	assert.Equal(t, "renamed hook", updated.Name)
	assert.False(t, updated.Enabled)

	rec = doRequest(t, s, http.MethodDelete, "/api/v1/triggers/"+created.ID, nil, authHeaders("user-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/api/v1/triggers/"+created.ID, nil, authHeaders("user-1"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunWorkflowHandler_QueuesExecution(t *testing.T) {
	s, mem := newTestServer(t)
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{"steps":[]}`), Version: "1.0.0"})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/workflows/wf-1/run", runRequest{ClientRequestID: "req-1"}, authHeaders("user-1"))
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.ExecutionID)
	assert.False(t, resp.Deduped)

	// Same client request id dedups to the same execution.
	rec = doRequest(t, s, http.MethodPost, "/api/v1/workflows/wf-1/run", runRequest{ClientRequestID: "req-1"}, authHeaders("user-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	var dedup dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dedup))
	assert.True(t, dedup.Deduped)
	assert.Equal(t, resp.ExecutionID, dedup.ExecutionID)
}

func TestGetAndCancelExecution(t *testing.T) {
	s, mem := newTestServer(t)
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{"steps":[]}`), Version: "1.0.0"})

	rec := doRequest(t, s, http.MethodPost, "/api/v1/workflows/wf-1/run", runRequest{ClientRequestID: "req-1"}, authHeaders("user-1"))
	require.Equal(t, http.StatusAccepted, rec.Code)
	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	rec = doRequest(t, s, http.MethodGet, "/api/v1/executions/"+resp.ExecutionID, nil, authHeaders("user-1"))
	assert.Equal(t, http.StatusOK, rec.Code)

	// NoopStepRunner completes the execution asynchronously; the loop below
	// waits for it, and cancelling an already-terminal execution is a
	// conflict.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		var exec executionResponse
		r := doRequest(t, s, http.MethodGet, "/api/v1/executions/"+resp.ExecutionID, nil, authHeaders("user-1"))
		require.NoError(t, json.Unmarshal(r.Body.Bytes(), &exec))
		if exec.Status == string(store.ExecCompleted) {
			break
		}
	}
	rec = doRequest(t, s, http.MethodPost, "/api/v1/executions/"+resp.ExecutionID+"/cancel", nil, authHeaders("user-1"))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestWebhookHandler_DispatchesMatchedTrigger(t *testing.T) {
	s, mem := newTestServer(t)
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{"steps":[]}`), Version: "1.0.0"})

	createBody := createTriggerRequest{
		WorkflowID: ptr("wf-1"), Name: "deploy hook", Enabled: true,
		Type: store.TriggerWebhook, Config: json.RawMessage(`{"path":"/hooks/deploy","method":"POST"}`),
	}
	rec := doRequest(t, s, http.MethodPost, "/api/v1/triggers", createBody, authHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doRequest(t, s, http.MethodPost, "/webhooks/user-1/hooks/deploy", map[string]string{"key": "value"}, nil)
	require.Equal(t, http.StatusAccepted, rec.Code)

	rec = doRequest(t, s, http.MethodGet, "/webhooks/user-1/hooks/unknown", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProposalLifecycle_ProposeApproveApply(t *testing.T) {
	s, mem := newTestServer(t)
	mem.SeedWorkflow(store.WorkflowRecord{
		ID: "wf-1", OwnerID: "user-1", Data: []byte(`{"steps":[]}`), Version: "1.0.0",
		AllowSelfModification: true,
	})
	baseHash := sha256Hex(t, []byte(`{"steps":[]}`))

	rec := doRequest(t, s, http.MethodPost, "/api/v1/workflows/wf-1/proposals", proposeRequest{
		ExecutionID: "exec-1", BaseWorkflowHash: baseHash, ProposedData: json.RawMessage(`{"steps":["new"]}`),
	}, authHeaders("user-1"))
	require.Equal(t, http.StatusCreated, rec.Code)

	var proposal proposalResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &proposal))

	rec = doRequest(t, s, http.MethodPost, "/api/v1/workflows/wf-1/proposals/"+proposal.ID+"/approve", nil, authHeaders("user-1"))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func ptr(s string) *string { return &s }

func sha256Hex(t *testing.T, data []byte) string {
	t.Helper()
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
