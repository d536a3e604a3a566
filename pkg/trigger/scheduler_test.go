package trigger

import (
	"context"
	"testing"

	"github.com/fluxrelay/fluxrelay/pkg/store"
	"github.com/fluxrelay/fluxrelay/pkg/store/memstore"
)

func TestScheduler_Refresh_AddsEntryPerEnabledScheduleTrigger(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	svc := NewService(&st, nil, &fakeExecutor{}, AdmissionLimits{PerUser: 5, Global: 50}, testLogger())
	sched := NewScheduler(svc, testLogger())

	if _, err := st.Triggers.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		Name:       "hourly",
		Enabled:    true,
		Type:       store.TriggerSchedule,
		ConfigJSON: []byte(`{"cron":"0 * * * *"}`),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sched.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.EntryCount(); got != 1 {
		t.Fatalf("expected 1 cron entry, got %d", got)
	}
}

func TestScheduler_Refresh_SkipsInvalidCronExpression(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	svc := NewService(&st, nil, &fakeExecutor{}, AdmissionLimits{PerUser: 5, Global: 50}, testLogger())
	sched := NewScheduler(svc, testLogger())

	if _, err := st.Triggers.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		Name:       "broken",
		Enabled:    true,
		Type:       store.TriggerSchedule,
		ConfigJSON: []byte(`{"cron":"not a cron expression"}`),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := sched.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.EntryCount(); got != 0 {
		t.Fatalf("expected invalid cron expression to be skipped, got %d entries", got)
	}
}

func TestScheduler_Refresh_RemovesEntryWhenTriggerDisabled(t *testing.T) {
	mem := memstore.New()
	st := mem.AsStore()
	svc := NewService(&st, nil, &fakeExecutor{}, AdmissionLimits{PerUser: 5, Global: 50}, testLogger())
	sched := NewScheduler(svc, testLogger())

	trig, err := st.Triggers.Create(context.Background(), store.TriggerRecord{
		UserID:     "user-1",
		Name:       "hourly",
		Enabled:    true,
		Type:       store.TriggerSchedule,
		ConfigJSON: []byte(`{"cron":"0 * * * *"}`),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sched.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.EntryCount(); got != 1 {
		t.Fatalf("expected 1 entry before disabling, got %d", got)
	}

	trig.Enabled = false
	if err := st.Triggers.Update(context.Background(), trig); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := sched.Refresh(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := sched.EntryCount(); got != 0 {
		t.Fatalf("expected entry to be removed after disabling, got %d", got)
	}
}
