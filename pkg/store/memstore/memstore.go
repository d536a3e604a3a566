// Package memstore is an in-process implementation of every store.* contract,
// the reference instance used by tests and by default when no external row
// store is configured. It follows the same mutex-guarded-map idiom as the
// teacher's pkg/session.Manager: one RWMutex guarding a set of maps, with
// defensive copies returned to callers so no caller can mutate internal
// state by holding onto a pointer.
//
// Each store.* interface shares the same overlapping verb names (Get,
// Create, Update...) with different signatures, so one Go type cannot
// implement all of them directly — the collections below are thin typed
// views (sessionStore, messageStore, ...) over one shared, mutex-protected
// core.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fluxrelay/fluxrelay/pkg/relayerr"
	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// core holds every collection behind one lock. Operations that must be
// atomic with respect to each other (e.g. the idempotency-key dedup lookup
// vs. execution creation) take core.mu directly rather than going through a
// narrower per-collection lock.
type core struct {
	mu sync.RWMutex

	sessions   map[string]store.SessionRecord
	messages   map[string][]store.MessageRow
	audit      map[string][]store.AuditEntry
	auditSeq   map[string]int64
	bindings   map[string]store.ChannelBinding
	identities map[string]store.IdentityLink
	triggers   map[string]store.TriggerRecord
	workflows  map[string]store.WorkflowRecord
	versions   map[string]store.WorkflowVersionRecord
	executions map[string]store.ExecutionRecord
	idemIndex  map[string]string
	steps      map[string]store.StepRecord
	proposals  map[string]store.MutationProposalRecord
}

// Store is the in-memory backing for every store.* interface. Obtain the
// typed views via AsStore().
type Store struct{ c *core }

// New creates an empty in-memory store.
func New() *Store {
	return &Store{c: &core{
		sessions:   make(map[string]store.SessionRecord),
		messages:   make(map[string][]store.MessageRow),
		audit:      make(map[string][]store.AuditEntry),
		auditSeq:   make(map[string]int64),
		bindings:   make(map[string]store.ChannelBinding),
		identities: make(map[string]store.IdentityLink),
		triggers:   make(map[string]store.TriggerRecord),
		workflows:  make(map[string]store.WorkflowRecord),
		versions:   make(map[string]store.WorkflowVersionRecord),
		executions: make(map[string]store.ExecutionRecord),
		idemIndex:  make(map[string]string),
		steps:      make(map[string]store.StepRecord),
		proposals:  make(map[string]store.MutationProposalRecord),
	}}
}

// AsStore wires every collection's narrow interface into a store.Store bundle.
func (s *Store) AsStore() store.Store {
	return store.Store{
		Sessions:        sessionStore{s.c},
		Messages:        messageStore{s.c},
		AuditLog:        auditLogStore{s.c},
		ChannelBindings: channelBindingStore{s.c},
		IdentityLinks:   identityLinkStore{s.c},
		Triggers:        triggerStore{s.c},
		Workflows:       workflowStore{s.c},
		Executions:      executionStore{s.c},
		Steps:           stepStore{s.c},
		Proposals:       proposalStore{s.c},
	}
}

// SeedWorkflow is a test/bootstrap helper to insert a workflow definition
// directly, bypassing the (non-existent, out-of-scope) workflow-authoring API.
func (s *Store) SeedWorkflow(w store.WorkflowRecord) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.workflows[w.ID] = w
}

// ---- sessionStore ----

type sessionStore struct{ c *core }

func (s sessionStore) Create(_ context.Context, rec store.SessionRecord) (store.SessionRecord, error) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if _, exists := s.c.sessions[rec.ID]; exists {
		return store.SessionRecord{}, relayerr.ErrAlreadyExists
	}
	s.c.sessions[rec.ID] = rec
	return rec, nil
}

func (s sessionStore) Get(_ context.Context, id string) (store.SessionRecord, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	rec, ok := s.c.sessions[id]
	if !ok {
		return store.SessionRecord{}, relayerr.NewNotFoundError("session", id)
	}
	return rec, nil
}

func (s sessionStore) GetByOwnerAndPurpose(_ context.Context, ownerID string, purpose store.SessionPurpose) (store.SessionRecord, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	for _, rec := range s.c.sessions {
		if rec.OwnerID == ownerID && rec.Purpose == purpose {
			return rec, nil
		}
	}
	return store.SessionRecord{}, relayerr.NewNotFoundError("session", "owner="+ownerID+" purpose="+string(purpose))
}

func (s sessionStore) ListByOwner(_ context.Context, ownerID string) ([]store.SessionRecord, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	out := make([]store.SessionRecord, 0)
	for _, rec := range s.c.sessions {
		if rec.OwnerID == ownerID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out, nil
}

func (s sessionStore) UpdateStatus(_ context.Context, id string, status store.SessionStatus) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	rec, ok := s.c.sessions[id]
	if !ok {
		return relayerr.NewNotFoundError("session", id)
	}
	rec.Status = status
	s.c.sessions[id] = rec
	return nil
}

func (s sessionStore) TouchLastActive(_ context.Context, id string, at time.Time) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	rec, ok := s.c.sessions[id]
	if !ok {
		return relayerr.NewNotFoundError("session", id)
	}
	if at.After(rec.LastActiveAt) {
		rec.LastActiveAt = at
	}
	s.c.sessions[id] = rec
	return nil
}

func (s sessionStore) SetRunnerTokenHash(_ context.Context, id, hash string) error {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	rec, ok := s.c.sessions[id]
	if !ok {
		return relayerr.NewNotFoundError("session", id)
	}
	rec.RunnerTokenHash = hash
	s.c.sessions[id] = rec
	return nil
}

func (s sessionStore) ListByStatuses(_ context.Context, statuses []store.SessionStatus) ([]store.SessionRecord, error) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	want := make(map[store.SessionStatus]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	out := make([]store.SessionRecord, 0)
	for _, rec := range s.c.sessions {
		if want[rec.Status] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ---- messageStore ----

type messageStore struct{ c *core }

func (m messageStore) Append(_ context.Context, row store.MessageRow) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	m.c.messages[row.SessionID] = append(m.c.messages[row.SessionID], row)
	return nil
}

func (m messageStore) Update(_ context.Context, sessionID, messageID string, payload []byte) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	rows := m.c.messages[sessionID]
	for i, r := range rows {
		if r.ID == messageID {
			rows[i].Payload = payload
			return nil
		}
	}
	return relayerr.NewNotFoundError("message", messageID)
}

func (m messageStore) Remove(_ context.Context, sessionID string, ids []string) error {
	m.c.mu.Lock()
	defer m.c.mu.Unlock()
	remove := make(map[string]bool, len(ids))
	for _, id := range ids {
		remove[id] = true
	}
	rows := m.c.messages[sessionID]
	kept := rows[:0:0]
	for _, r := range rows {
		if !remove[r.ID] {
			kept = append(kept, r)
		}
	}
	m.c.messages[sessionID] = kept
	return nil
}

func (m messageStore) List(_ context.Context, sessionID string) ([]store.MessageRow, error) {
	m.c.mu.RLock()
	defer m.c.mu.RUnlock()
	rows := m.c.messages[sessionID]
	out := make([]store.MessageRow, len(rows))
	copy(out, rows)
	return out, nil
}

// ---- auditLogStore ----

type auditLogStore struct{ c *core }

const auditRingLimit = 500

func (a auditLogStore) Append(_ context.Context, entry store.AuditEntry) error {
	a.c.mu.Lock()
	defer a.c.mu.Unlock()
	a.c.auditSeq[entry.SessionID]++
	entry.Seq = a.c.auditSeq[entry.SessionID]
	log := append(a.c.audit[entry.SessionID], entry)
	if len(log) > auditRingLimit {
		log = log[len(log)-auditRingLimit:]
	}
	a.c.audit[entry.SessionID] = log
	return nil
}

func (a auditLogStore) Recent(_ context.Context, sessionID string, limit int) ([]store.AuditEntry, error) {
	a.c.mu.RLock()
	defer a.c.mu.RUnlock()
	log := a.c.audit[sessionID]
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	out := make([]store.AuditEntry, len(log))
	copy(out, log)
	return out, nil
}

// ---- channelBindingStore ----

type channelBindingStore struct{ c *core }

func (cb channelBindingStore) Get(_ context.Context, scopeKey string) (store.ChannelBinding, error) {
	cb.c.mu.RLock()
	defer cb.c.mu.RUnlock()
	b, ok := cb.c.bindings[scopeKey]
	if !ok {
		return store.ChannelBinding{}, relayerr.NewNotFoundError("channel_binding", scopeKey)
	}
	return b, nil
}

func (cb channelBindingStore) Upsert(_ context.Context, b store.ChannelBinding) error {
	cb.c.mu.Lock()
	defer cb.c.mu.Unlock()
	cb.c.bindings[b.ScopeKey] = b
	return nil
}

// ---- identityLinkStore ----

type identityLinkStore struct{ c *core }

func identityKey(provider, externalID string) string { return provider + "|" + externalID }

func (il identityLinkStore) Resolve(_ context.Context, provider, externalID string) (store.IdentityLink, error) {
	il.c.mu.RLock()
	defer il.c.mu.RUnlock()
	l, ok := il.c.identities[identityKey(provider, externalID)]
	if !ok {
		return store.IdentityLink{}, relayerr.NewNotFoundError("identity_link", externalID)
	}
	return l, nil
}

func (il identityLinkStore) Upsert(_ context.Context, link store.IdentityLink) error {
	il.c.mu.Lock()
	defer il.c.mu.Unlock()
	il.c.identities[identityKey(link.Provider, link.ExternalID)] = link
	return nil
}
