// Package ratelimit covers the inbound side of rate limiting: a
// sliding-window counter per client key, with separate budgets for
// general API calls and scrape initiation.
package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// ClientKey derives the anonymous client identity from the remote IP
// and user agent. Authenticated callers should use their subject
// instead so limits follow the account, not the address.
func ClientKey(ip, userAgent string) string {
	sum := sha256.Sum256([]byte(ip + "\x00" + userAgent))
	return hex.EncodeToString(sum[:])[:16]
}

// Limiter is a sliding-window rate limiter keyed by client.
type Limiter struct {
	mu      sync.Mutex
	window  time.Duration
	limit   int
	clients map[string][]time.Time
	now     func() time.Time
}

// NewLimiter builds a limiter admitting at most limit requests per
// client per window.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		window:  window,
		limit:   limit,
		clients: make(map[string][]time.Time),
		now:     time.Now,
	}
}

// Allow records one request for the client and reports whether it is
// within the window budget. When refused, retryAfter is the time the
// caller should wait before trying again.
func (l *Limiter) Allow(key string) (allowed bool, remaining int, retryAfter time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	recent := l.clients[key][:0]
	for _, t := range l.clients[key] {
		if t.After(cutoff) {
			recent = append(recent, t)
		}
	}

	if len(recent) >= l.limit {
		l.clients[key] = recent
		return false, 0, l.window
	}

	recent = append(recent, now)
	l.clients[key] = recent
	return true, l.limit - len(recent), 0
}

// Remaining reports the unused budget without consuming any of it.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	count := 0
	for _, t := range l.clients[key] {
		if t.After(cutoff) {
			count++
		}
	}
	if count >= l.limit {
		return 0
	}
	return l.limit - count
}

// Sweep drops clients whose entire history has aged out of the window,
// returning how many were forgotten. Called periodically by the
// scheduler to bound memory.
func (l *Limiter) Sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	cutoff := l.now().Add(-l.window)
	for key, times := range l.clients {
		live := times[:0]
		for _, t := range times {
			if t.After(cutoff) {
				live = append(live, t)
			}
		}
		if len(live) == 0 {
			delete(l.clients, key)
			removed++
		} else {
			l.clients[key] = live
		}
	}
	return removed
}
