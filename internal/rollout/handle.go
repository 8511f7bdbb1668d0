package rollout

import "sync"

// Handle is a write-once, read-many cell holding the name of the rollout this
// process created. The controller sets it right after creation; the cancel
// handler only ever reads it. The zero value means "no rollout created yet",
// and every cancellation path treats that as a no-op.
//
// It is passed by reference to both sides instead of living as package state
// so that tests (and any future embedding) can run isolated instances.
type Handle struct {
	mu   sync.Mutex
	name string
}

// Set records the rollout name. Only the first call takes effect; it returns
// false when a name was already recorded.
func (h *Handle) Set(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.name != "" {
		return false
	}
	h.name = name
	return true
}

// Get returns the recorded rollout name, or "" when no rollout has been
// created by this process.
func (h *Handle) Get() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.name
}
