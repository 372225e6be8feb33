package session

import (
	"sync"
	"time"
)

// watch lets the scheduler's idle-session reaper (SPEC_FULL.md §4.J) force
// a session's socket closed once its deadline has passed and a grace
// period has elapsed on top of it. Run's normal ReadFrame deadlines handle
// the documented timeout paths; this is the belt-and-braces sweep for a
// worker wedged in a blocking store call past the allowance spec.md §5
// grants it.
type watch struct {
	deadline time.Time
	close    func() error
}

// Registry tracks the (account, device) keys with a session currently in
// ACTIVE state, so the scheduler's rate-bucket janitor (component J) knows
// which sqlstore.RateLimiter entries are still live before pruning the
// rest, and separately tracks each live session's deadline/close handle
// for the idle-session reaper. It is optional: a Session with a nil
// Registry simply skips registration.
type Registry struct {
	mu   sync.Mutex
	keys map[string]int

	watchMu sync.Mutex
	watches map[*Session]watch
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{keys: map[string]int{}, watches: map[*Session]watch{}}
}

func deviceKey(accountID, deviceID string) string {
	return accountID + "/" + deviceID
}

func (r *Registry) add(accountID, deviceID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[deviceKey(accountID, deviceID)]++
}

func (r *Registry) remove(accountID, deviceID string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deviceKey(accountID, deviceID)
	r.keys[key]--
	if r.keys[key] <= 0 {
		delete(r.keys, key)
	}
}

// Snapshot returns the set of keys with at least one active session.
func (r *Registry) Snapshot() map[string]bool {
	out := map[string]bool{}
	if r == nil {
		return out
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.keys {
		out[k] = true
	}
	return out
}

func (r *Registry) watch(s *Session, deadline time.Time, close func() error) {
	if r == nil || deadline.IsZero() {
		return
	}
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	r.watches[s] = watch{deadline: deadline, close: close}
}

func (r *Registry) unwatch(s *Session) {
	if r == nil {
		return
	}
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	delete(r.watches, s)
}

// ReapExpired force-closes every watched session whose deadline plus grace
// has passed, returning how many it closed.
func (r *Registry) ReapExpired(grace time.Duration) int {
	if r == nil {
		return 0
	}
	now := time.Now()
	r.watchMu.Lock()
	defer r.watchMu.Unlock()
	n := 0
	for s, w := range r.watches {
		if now.After(w.deadline.Add(grace)) {
			w.close()
			delete(r.watches, s)
			n++
		}
	}
	return n
}
