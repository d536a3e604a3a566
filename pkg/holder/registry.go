package holder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fluxrelay/fluxrelay/pkg/store"
)

// Registry owns every live Holder in this process, keyed by session id. A
// single process may host holders for many sessions concurrently — the
// registry's own mutex only ever guards the map itself, never a Holder's
// internal state, so looking a holder up is cheap and never contends with
// the actor goroutines it hands out.
type Registry struct {
	mu        sync.RWMutex
	holders   map[string]*Holder
	store     store.Store
	log       *slog.Logger
	publisher StatusPublisher
}

// NewRegistry constructs an empty registry backed by st.
func NewRegistry(st store.Store, log *slog.Logger) *Registry {
	return &Registry{
		holders: make(map[string]*Holder),
		store:   st,
		log:     log,
	}
}

// SetStatusPublisher wires a cross-process status feed into every holder
// this registry creates from this point on. Call before the first
// GetOrCreate; nil (the default) disables cross-process publishing entirely.
func (r *Registry) SetStatusPublisher(p StatusPublisher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publisher = p
}

// Get returns the already-running holder for sessionID, if any.
func (r *Registry) Get(sessionID string) (*Holder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.holders[sessionID]
	return h, ok
}

// GetOrCreate returns the running holder for an existing session record,
// constructing, replaying, and starting it on first access. The holder's
// actor goroutine keeps running after this call returns until Remove is
// called.
func (r *Registry) GetOrCreate(ctx context.Context, sessionID, ownerID string) (*Holder, error) {
	r.mu.RLock()
	h, ok := r.holders[sessionID]
	r.mu.RUnlock()
	if ok {
		return h, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.holders[sessionID]; ok {
		return h, nil
	}

	h = New(sessionID, ownerID, r.store, r.log)
	if r.publisher != nil {
		h.SetStatusPublisher(r.publisher)
	}
	if err := h.Replay(ctx); err != nil {
		return nil, fmt.Errorf("registry: replay session %s: %w", sessionID, err)
	}
	r.holders[sessionID] = h
	go h.Run(context.Background())
	return h, nil
}

// Remove stops the holder for sessionID, if running, and drops it from the
// registry. Safe to call on a session with no live holder.
func (r *Registry) Remove(sessionID string) {
	r.mu.Lock()
	h, ok := r.holders[sessionID]
	if ok {
		delete(r.holders, sessionID)
	}
	r.mu.Unlock()

	if ok {
		h.Stop()
	}
}

// Len reports the number of live holders — used by health/metrics endpoints.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.holders)
}
