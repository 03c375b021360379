// Package ratelimiter throttles signing requests per page.
package ratelimiter

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const defaultIdleTTL = 10 * time.Minute

type Config struct {
	RPS   float64
	Burst int
	// IdleTTL is how long a page may go unsigned before its bucket is dropped.
	IdleTTL time.Duration
}

// PageLimiter gives every page its own token bucket. Pages are keyed the way the
// signing server sees them: no fragment, case-folded scheme and host.
type PageLimiter struct {
	limit   rate.Limit
	burst   int
	idleTTL time.Duration

	mu        sync.Mutex
	pages     map[string]*pageBucket
	lastSweep time.Time
}

type pageBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewPageLimiter returns nil when RPS or Burst is not positive. A nil
// *PageLimiter admits every request.
func NewPageLimiter(cfg Config) *PageLimiter {
	if cfg.RPS <= 0 || cfg.Burst <= 0 {
		return nil
	}
	ttl := cfg.IdleTTL
	if ttl <= 0 {
		ttl = defaultIdleTTL
	}
	return &PageLimiter{
		limit:   rate.Limit(cfg.RPS),
		burst:   cfg.Burst,
		idleTTL: ttl,
		pages:   make(map[string]*pageBucket),
	}
}

// Admit takes one token for pageURL at now. When the bucket is empty nothing is
// consumed and retryAfter says when the next token is due.
func (l *PageLimiter) Admit(pageURL string, now time.Time) (retryAfter time.Duration, ok bool) {
	if l == nil {
		return 0, true
	}
	key := PageKey(pageURL)
	if key == "" {
		return 0, true
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	b, found := l.pages[key]
	if !found {
		b = &pageBucket{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.pages[key] = b
	}
	b.lastSeen = now

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return 0, false
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return delay, false
	}
	return 0, true
}

// Pages reports how many pages currently hold a bucket.
func (l *PageLimiter) Pages() int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pages)
}

func (l *PageLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < l.idleTTL {
		return
	}
	l.lastSweep = now
	cutoff := now.Add(-l.idleTTL)
	for key, b := range l.pages {
		if b.lastSeen.Before(cutoff) {
			delete(l.pages, key)
		}
	}
}

// PageKey folds the parts of a page URL the signing server ignores. Unparseable
// input is used trimmed as is.
func PageKey(pageURL string) string {
	trimmed := strings.TrimSpace(pageURL)
	if i := strings.IndexByte(trimmed, '#'); i >= 0 {
		trimmed = trimmed[:i]
	}
	u, err := url.Parse(trimmed)
	if err != nil || u.Host == "" {
		return trimmed
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	return u.String()
}
