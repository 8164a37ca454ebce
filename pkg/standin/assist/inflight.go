// Package assist – inflight.go tracks in-flight inference runs per sender so
// a newer message can abort a stale one. Each Issue supersedes the previous
// handle; results produced under a superseded handle must be discarded.
package assist

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// RunHandle identifies one inference run. Handles are compared by ID.
type RunHandle struct {
	ID     string
	cancel context.CancelFunc
}

// InflightRegistry maps senders to their current inference run. It is the
// single source of truth for which run is allowed to commit its result.
type InflightRegistry struct {
	mu   sync.Mutex
	runs map[string]*RunHandle
}

// NewInflightRegistry creates an empty registry.
func NewInflightRegistry() *InflightRegistry {
	return &InflightRegistry{runs: make(map[string]*RunHandle)}
}

// Issue cancels any run currently registered for the sender and registers a
// fresh one. The returned context aborts when the run is superseded or
// cancelled; parent cancellation propagates as usual.
func (r *InflightRegistry) Issue(parent context.Context, sender string) (context.Context, *RunHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.runs[sender]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(parent)
	handle := &RunHandle{ID: uuid.NewString(), cancel: cancel}
	r.runs[sender] = handle
	return ctx, handle
}

// Current reports whether handle is still the live run for the sender. The
// responder checks this after inference returns and before committing the
// reply; a stale handle means the reply is thrown away.
func (r *InflightRegistry) Current(sender string, handle *RunHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, ok := r.runs[sender]
	return ok && live.ID == handle.ID
}

// Release removes the run entry if the handle is still current, reporting
// whether it was. A superseded handle is a no-op so it cannot evict its
// successor. Check and removal happen under one lock, so a true return is
// the commit gate for results produced under the handle: any message that
// arrived meanwhile has already cancelled it and Release returns false.
func (r *InflightRegistry) Release(sender string, handle *RunHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if live, ok := r.runs[sender]; ok && live.ID == handle.ID {
		live.cancel()
		delete(r.runs, sender)
		return true
	}
	return false
}

// Cancel aborts and removes whatever run is registered for the sender.
// Returns true if a run was in flight.
func (r *InflightRegistry) Cancel(sender string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	live, ok := r.runs[sender]
	if !ok {
		return false
	}
	live.cancel()
	delete(r.runs, sender)
	return true
}

// CancelAll aborts every registered run.
func (r *InflightRegistry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sender, run := range r.runs {
		run.cancel()
		delete(r.runs, sender)
	}
}
