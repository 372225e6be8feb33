package sqlstore

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/opendmtp/dmtp-backend/internal/store"
)

// RateLimiter enforces the per-device connection/event windows carried on
// the device record (spec.md §4.D: "the store decides thresholds"), using
// one golang.org/x/time/rate.Limiter per device per counter kind. Limiters
// are created lazily; Prune, run by the background scheduler's rate-bucket
// janitor (component J), drops those of devices with no active session.
type RateLimiter struct {
	devices store.DeviceStore

	mu    sync.Mutex
	conns map[string]*rate.Limiter
	evts  map[string]*rate.Limiter
}

func NewRateLimiter(devices store.DeviceStore) *RateLimiter {
	return &RateLimiter{
		devices: devices,
		conns:   map[string]*rate.Limiter{},
		evts:    map[string]*rate.Limiter{},
	}
}

func limiterFor(limit, windowSeconds int) *rate.Limiter {
	if limit <= 0 || windowSeconds <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	r := rate.Limit(float64(limit) / float64(windowSeconds))
	return rate.NewLimiter(r, limit)
}

func (l *RateLimiter) AllowConnection(accountID, deviceID string) bool {
	d, result, err := l.devices.Get(accountID, deviceID)
	if err != nil || result.String() != "OK" {
		return true
	}

	key := accountID + "/" + deviceID
	l.mu.Lock()
	lim, ok := l.conns[key]
	if !ok {
		lim = limiterFor(d.ConnectionRateLimit, d.ConnectionRateWindow)
		l.conns[key] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(time.Now(), 1)
}

func (l *RateLimiter) AllowEvent(accountID, deviceID string) bool {
	d, result, err := l.devices.Get(accountID, deviceID)
	if err != nil || result.String() != "OK" {
		return true
	}

	key := accountID + "/" + deviceID
	l.mu.Lock()
	lim, ok := l.evts[key]
	if !ok {
		lim = limiterFor(d.EventRateLimit, d.EventRateWindow)
		l.evts[key] = lim
	}
	l.mu.Unlock()

	return lim.AllowN(time.Now(), 1)
}

// Prune drops limiter entries for devices no longer active, bounding the
// two maps' growth across a long-lived process (called by the scheduler's
// rate-bucket janitor task).
func (l *RateLimiter) Prune(activeKeys map[string]bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for k := range l.conns {
		if !activeKeys[k] {
			delete(l.conns, k)
		}
	}
	for k := range l.evts {
		if !activeKeys[k] {
			delete(l.evts, k)
		}
	}
}
