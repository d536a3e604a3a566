package trigger

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// Scheduler owns one robfig/cron/v3 engine and keeps its entries in sync
// with the enabled schedule triggers in the store. Unlike webhook and
// manual dispatch, which fire in the HTTP request path, schedule triggers
// have no external caller to invoke Dispatch — something has to own the
// clock, so Scheduler is that something.
//
// Grounding note: none of the retrieved example repos call robfig/cron from
// code (it only appears in a couple of their go.mod manifests), so the
// engine setup below follows the library's own documented API rather than
// an observed pack pattern.
type Scheduler struct {
	svc *Service
	log *slog.Logger

	mu      sync.Mutex
	engine  *cron.Cron
	entries map[string]cron.EntryID // triggerID -> cron entry
}

// NewScheduler builds a Scheduler. Call Refresh once before Start, then
// Refresh again whenever a schedule trigger is created, updated, deleted,
// enabled, or disabled.
func NewScheduler(svc *Service, log *slog.Logger) *Scheduler {
	return &Scheduler{
		svc:     svc,
		log:     log,
		engine:  cron.New(),
		entries: make(map[string]cron.EntryID),
	}
}

// Start begins running the cron engine's own goroutine. It does not block.
func (s *Scheduler) Start(ctx context.Context) {
	s.engine.Start()
	go func() {
		<-ctx.Done()
		<-s.engine.Stop().Done()
	}()
}

// Refresh reloads every enabled schedule trigger from the store and
// reconciles the cron engine's entries against them: added, changed, and
// removed triggers are all picked up. Safe to call concurrently with firing
// ticks.
func (s *Scheduler) Refresh(ctx context.Context) error {
	triggers, err := s.svc.ListEnabled(ctx, store.TriggerSchedule)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		seen[t.ID] = true

		cfg, err := decodeScheduleConfig(t.ConfigJSON)
		if err != nil {
			s.log.Warn("schedule trigger has invalid config, skipping", "trigger_id", t.ID, "error", err)
			continue
		}

		if existing, ok := s.entries[t.ID]; ok {
			s.engine.Remove(existing)
			delete(s.entries, t.ID)
		}

		spec := cfg.Cron
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			s.log.Warn("schedule trigger has invalid timezone, defaulting to UTC", "trigger_id", t.ID, "timezone", cfg.Timezone)
			loc = time.UTC
		}
		schedule, err := cron.ParseStandard(spec)
		if err != nil {
			s.log.Warn("schedule trigger has invalid cron expression, skipping", "trigger_id", t.ID, "cron", spec, "error", err)
			continue
		}

		trigger := t
		id := s.engine.Schedule(&locatedSchedule{inner: schedule, loc: loc}, cron.FuncJob(func() {
			s.fire(trigger)
		}))
		s.entries[t.ID] = id
	}

	for triggerID, id := range s.entries {
		if !seen[triggerID] {
			s.engine.Remove(id)
			delete(s.entries, triggerID)
		}
	}

	return nil
}

// EntryCount reports the number of cron entries currently scheduled — used
// by health/metrics endpoints and tests.
func (s *Scheduler) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// fire dispatches one tick for t, logging (never panicking) on failure —
// the cron engine has no supervisor to report errors to.
func (s *Scheduler) fire(t store.TriggerRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Standard cron specs have minute granularity, so the truncated time is
	// the tick's scheduled minute.
	out, err := s.svc.runSchedule(ctx, t, time.Now().Truncate(time.Minute))
	if err != nil {
		s.log.Error("schedule trigger dispatch failed", "trigger_id", t.ID, "error", err)
		return
	}
	s.log.Info("schedule trigger fired", "trigger_id", t.ID, "execution_id", out.ExecutionID, "deduped", out.Deduped)
}

// locatedSchedule adapts a cron.Schedule to evaluate Next in a fixed
// location, since cron.ParseStandard itself is location-agnostic.
type locatedSchedule struct {
	inner cron.Schedule
	loc   *time.Location
}

func (l *locatedSchedule) Next(t time.Time) time.Time {
	return l.inner.Next(t.In(l.loc))
}
