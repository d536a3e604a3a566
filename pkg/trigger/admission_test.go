package trigger

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestService(t *testing.T, st store.Store, limits AdmissionLimits) (*Service, *fakeExecutor) {
	t.Helper()
	exec := &fakeExecutor{}
	return NewService(&st, nil, exec, limits, testLogger()), exec
}

type fakeExecutor struct {
	enqueued []store.ExecutionRecord
	err      error
}

func (f *fakeExecutor) Enqueue(_ context.Context, exec store.ExecutionRecord) error {
	f.enqueued = append(f.enqueued, exec)
	return f.err
}

func TestAdmit_AllowsUnderBothCaps(t *testing.T) {
	mem := memstore.New()
	svc, _ := newTestService(t, mem.AsStore(), AdmissionLimits{PerUser: 2, Global: 10})

	if err := svc.admit(context.Background(), "user-1"); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
}

func TestAdmit_RejectsWhenPerUserCapExceeded(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	mem.SeedWorkflow(store.WorkflowRecord{ID: "wf-1", OwnerID: "user-1", Data: []byte(`{}`), Version: "1.0.0"})
	svc, _ := newTestService(t, st, AdmissionLimits{PerUser: 0, Global: 10})

	err := svc.admit(context.Background(), "user-1")
	if err == nil {
		t.Fatal("expected concurrency error")
	}
	cerr, ok := relayerr.As[*relayerr.ConcurrencyError](err)
	if !ok {
		t.Fatalf("expected *relayerr.ConcurrencyError, got %T", err)
	}
	if cerr.Scope != "user" {
		t.Fatalf("expected scope=user, got %s", cerr.Scope)
	}
}
