package pipeline

import "sync"

// flightRegistry enforces at most one active run per business. Acquisition is
// non-blocking: a second caller is rejected, not queued.
type flightRegistry struct {
	mu     sync.Mutex
	active map[string]struct{}
}

func newFlightRegistry() *flightRegistry {
	return &flightRegistry{active: make(map[string]struct{})}
}

// acquire claims the lock for businessID, reporting false when already held.
func (r *flightRegistry) acquire(businessID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, held := r.active[businessID]; held {
		return false
	}
	r.active[businessID] = struct{}{}
	return true
}

func (r *flightRegistry) release(businessID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.active, businessID)
}
