package stream

import (
	"sync"
	"time"
)

// CancelEntry records one cancellation request.
type CancelEntry struct {
	Reason      string
	RequestedAt time.Time
}

// CancellationRegistry tracks cooperative cancellation requests keyed by
// run id. A request is a flag, not a signal: the streamer polls the
// registry between frames and winds the run down when it finds one. The
// entry is cleared when the run terminates, so a request against an
// already-finished run id is a harmless no-op.
type CancellationRegistry struct {
	mu      sync.RWMutex
	entries map[string]CancelEntry
}

// NewCancellationRegistry creates an empty registry.
func NewCancellationRegistry() *CancellationRegistry {
	return &CancellationRegistry{entries: make(map[string]CancelEntry)}
}

// Request marks runID for cancellation. Later requests for the same run
// keep the first reason.
func (r *CancellationRegistry) Request(runID, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[runID]; ok {
		return
	}
	r.entries[runID] = CancelEntry{Reason: reason, RequestedAt: time.Now()}
}

// Check reports whether cancellation has been requested for runID.
func (r *CancellationRegistry) Check(runID string) (CancelEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[runID]
	return e, ok
}

// Clear removes any pending request for runID.
func (r *CancellationRegistry) Clear(runID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, runID)
}

// Pending returns the number of outstanding requests.
func (r *CancellationRegistry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
