// Package session gives cancellable background operations (range scans,
// emulation runs) a discoverable, reusable identity instead of a bare
// cancellation flag passed around by pointer.
package session

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is a caller-owned cancellation token for one in-flight operation.
// The zero value is not usable; construct with New.
type Handle struct {
	id        uuid.UUID
	cancelled atomic.Bool
}

// New allocates a fresh handle.
func New() *Handle {
	return &Handle{id: uuid.New()}
}

// ID returns the handle's identity.
func (h *Handle) ID() uuid.UUID {
	return h.id
}

// Cancel requests that the associated operation stop at its next
// cancellation check.
func (h *Handle) Cancel() {
	h.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (h *Handle) Cancelled() bool {
	return h != nil && h.cancelled.Load()
}

// Cancelled adapts a possibly-nil *Handle into the predicate
// chunkscan.Cancelled expects, so callers can pass a nil handle to mean
// "not cancellable".
func Cancelled(h *Handle) func() bool {
	if h == nil {
		return nil
	}
	return h.Cancelled
}

// Registry tracks live handles by ID so a caller elsewhere in the process
// (a CLI command, a future RPC layer) can cancel an operation it doesn't
// hold a direct reference to.
type Registry struct {
	mu      sync.Mutex
	handles map[uuid.UUID]*Handle
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{handles: make(map[uuid.UUID]*Handle)}
}

// Start allocates a new handle and tracks it.
func (r *Registry) Start() *Handle {
	h := New()
	r.mu.Lock()
	r.handles[h.id] = h
	r.mu.Unlock()
	return h
}

// Finish stops tracking a handle once its operation has completed.
func (r *Registry) Finish(h *Handle) {
	if h == nil {
		return
	}
	r.mu.Lock()
	delete(r.handles, h.id)
	r.mu.Unlock()
}

// Cancel cancels a tracked handle by ID. It reports false if no such
// handle is currently tracked (already finished, or never existed).
func (r *Registry) Cancel(id uuid.UUID) bool {
	r.mu.Lock()
	h, ok := r.handles[id]
	r.mu.Unlock()
	if !ok {
		return false
	}
	h.Cancel()
	return true
}
