// Package antidetect covers the outbound side of rate limiting: a
// per-session request budget with randomized pacing, plus the
// user-agent, header, and viewport rotation that keeps fetches looking
// like an ordinary desktop browser.
package antidetect

import (
	"context"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Desktop browser user agents rotated across outbound requests.
var userAgents = []string{
	// Chrome on Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	// Chrome on Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	// Firefox on Windows
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:121.0) Gecko/20100101 Firefox/121.0",
	// Firefox on Mac
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10.15; rv:121.0) Gecko/20100101 Firefox/121.0",
	// Edge
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36 Edg/120.0.0.0",
}

// Viewport is a browser window size used by the tier-3 validator.
type Viewport struct {
	Width  int
	Height int
}

// Common desktop sizes, varied to avoid a constant fingerprint.
var viewports = []Viewport{
	{1920, 1080},
	{1680, 1050},
	{1440, 900},
	{1536, 864},
}

// RandomUserAgent returns a user agent drawn uniformly from the pool.
func RandomUserAgent() string {
	return userAgents[rand.Intn(len(userAgents))]
}

// RandomViewport returns a viewport drawn uniformly from the pool.
func RandomViewport() Viewport {
	return viewports[rand.Intn(len(viewports))]
}

// BrowserHeaders sets request headers that mimic a desktop browser
// navigation. Referer switches Sec-Fetch-Site to same-origin.
func BrowserHeaders(h http.Header, referer string) {
	h.Set("User-Agent", RandomUserAgent())
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.9")
	h.Set("Accept-Encoding", "gzip, deflate, br")
	h.Set("DNT", "1")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")

	if referer != "" {
		h.Set("Referer", referer)
		h.Set("Sec-Fetch-Site", "same-origin")
	}
}

// SessionLimiter enforces the outbound request budget and pacing. The
// counter is a soft signal: it bounds the session without claiming an
// exactly-N guarantee under concurrency.
type SessionLimiter struct {
	mu           sync.Mutex
	maxRequests  int
	requestCount int
	delayMin     time.Duration
	delayMax     time.Duration
	pacer        *rate.Limiter
}

// NewSessionLimiter builds a limiter with the given budget and delay
// range. The minimum spacing is enforced by a token bucket; the jitter
// on top is drawn per request.
func NewSessionLimiter(maxRequests int, delayMin, delayMax time.Duration) *SessionLimiter {
	if maxRequests <= 0 {
		maxRequests = 50
	}
	if delayMin <= 0 {
		delayMin = 2 * time.Second
	}
	if delayMax < delayMin {
		delayMax = delayMin
	}
	return &SessionLimiter{
		maxRequests: maxRequests,
		delayMin:    delayMin,
		delayMax:    delayMax,
		pacer:       rate.NewLimiter(rate.Every(delayMin), 1),
	}
}

// CanRequest reports whether the session budget has room. Non-blocking.
func (l *SessionLimiter) CanRequest() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.requestCount < l.maxRequests
}

// RequestsRemaining returns the unused portion of the session budget.
func (l *SessionLimiter) RequestsRemaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	remaining := l.maxRequests - l.requestCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// MaxRequests returns the configured session budget.
func (l *SessionLimiter) MaxRequests() int {
	return l.maxRequests
}

// WaitAndIncrement blocks until pacing admits another request, then
// consumes one unit of budget. It returns false without waiting when
// the budget is exhausted, and an error only when the context is done.
func (l *SessionLimiter) WaitAndIncrement(ctx context.Context) (bool, error) {
	if !l.CanRequest() {
		return false, nil
	}

	if err := l.pacer.Wait(ctx); err != nil {
		return false, err
	}

	// Jitter beyond the minimum spacing.
	if jitterRange := l.delayMax - l.delayMin; jitterRange > 0 {
		jitter := time.Duration(rand.Int63n(int64(jitterRange)))
		select {
		case <-time.After(jitter):
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.requestCount >= l.maxRequests {
		return false, nil
	}
	l.requestCount++
	return true, nil
}

// Reset clears the session counter. Called by the scheduler's daily
// sweep and by operators via the quota endpoint.
func (l *SessionLimiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.requestCount = 0
}
