package ratelimit

import (
	"fmt"
	"sync"
	"time"
)

// Result is the outcome of a rate limit check.
type Result struct {
	Exceeded bool
	Current  int
	Limit    int
	Reason   string
}

// Limiter enforces sliding-window request limits per principal and
// action type. Lookup order: limits[principal] then limits["*"], and
// within a principal's limits, the action type then "*".
type Limiter struct {
	cfg Config

	mu   sync.Mutex
	hits map[string][]time.Time

	now func() time.Time
}

// NewLimiter creates a Limiter from the given config. Returns nil if no
// limits are configured (callers should nil-check).
func NewLimiter(cfg Config) *Limiter {
	any := false
	for _, p := range cfg {
		if p.HasLimits() {
			any = true
			break
		}
	}
	if !any {
		return nil
	}
	return &Limiter{
		cfg:  cfg,
		hits: make(map[string][]time.Time),
		now:  time.Now,
	}
}

// Allow checks and counts one request. A request that exceeds the limit
// is not counted: the window refills as old hits age out.
func (l *Limiter) Allow(principalID, actionType string) Result {
	limit := l.limitFor(principalID, actionType)
	if limit == nil || limit.MaxRequests <= 0 || limit.Window <= 0 {
		return Result{}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := principalID + "\x00" + actionType
	now := l.now()
	cutoff := now.Add(-limit.Window)

	kept := l.hits[key][:0]
	for _, t := range l.hits[key] {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	l.hits[key] = kept

	if len(kept) >= limit.MaxRequests {
		return Result{
			Exceeded: true,
			Current:  len(kept),
			Limit:    limit.MaxRequests,
			Reason: fmt.Sprintf("rate limit exceeded: %d/%d requests in %s window",
				len(kept), limit.MaxRequests, limit.Window),
		}
	}

	l.hits[key] = append(kept, now)
	return Result{Current: len(kept) + 1, Limit: limit.MaxRequests}
}

func (l *Limiter) limitFor(principalID, actionType string) *Limit {
	p := l.cfg[principalID]
	if p == nil {
		p = l.cfg["*"]
	}
	if p == nil {
		return nil
	}
	if limit, ok := p[actionType]; ok {
		return limit
	}
	return p["*"]
}
