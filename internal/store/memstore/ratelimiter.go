package memstore

import (
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is the in-memory counterpart to sqlstore.RateLimiter, reading
// thresholds off the same Store's device records.
type RateLimiter struct {
	S     *Store
	conns map[string]*rate.Limiter
	evts  map[string]*rate.Limiter
}

func NewRateLimiter(s *Store) *RateLimiter {
	return &RateLimiter{S: s, conns: map[string]*rate.Limiter{}, evts: map[string]*rate.Limiter{}}
}

func limiterFor(limit, windowSeconds int) *rate.Limiter {
	if limit <= 0 || windowSeconds <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	r := rate.Limit(float64(limit) / float64(windowSeconds))
	return rate.NewLimiter(r, limit)
}

func (l *RateLimiter) AllowConnection(accountID, deviceID string) bool {
	l.S.mu.Lock()
	d, ok := l.S.devices[deviceKey(accountID, deviceID)]
	l.S.mu.Unlock()
	if !ok {
		return true
	}

	key := deviceKey(accountID, deviceID)
	l.S.mu.Lock()
	lim, ok := l.conns[key]
	if !ok {
		lim = limiterFor(d.ConnectionRateLimit, d.ConnectionRateWindow)
		l.conns[key] = lim
	}
	l.S.mu.Unlock()
	return lim.AllowN(time.Now(), 1)
}

func (l *RateLimiter) AllowEvent(accountID, deviceID string) bool {
	l.S.mu.Lock()
	d, ok := l.S.devices[deviceKey(accountID, deviceID)]
	l.S.mu.Unlock()
	if !ok {
		return true
	}

	key := deviceKey(accountID, deviceID)
	l.S.mu.Lock()
	lim, ok := l.evts[key]
	if !ok {
		lim = limiterFor(d.EventRateLimit, d.EventRateWindow)
		l.evts[key] = lim
	}
	l.S.mu.Unlock()
	return lim.AllowN(time.Now(), 1)
}
