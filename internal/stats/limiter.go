// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"sync"
	"time"
)

const (
	// defaultRequestLimit is the default number of admissions allowed per
	// client per window.
	defaultRequestLimit = 100

	// defaultRequestWindow is the default admission counting window.
	defaultRequestWindow = time.Minute

	// defaultSweepInterval is the default period between sweeps of expired
	// client entries.
	defaultSweepInterval = time.Minute * 5
)

// LimitStatus describes the outcome of an admission check. Denial is a normal
// outcome, not an error, and carries the same metadata as an admission so
// callers can surface it on every response.
type LimitStatus struct {
	Allowed   bool
	Limit     uint32
	Remaining uint32
	ResetAt   time.Time
}

// clientEntry tracks admissions for a single client within the current
// window. Each entry carries its own mutex so concurrent checks for distinct
// clients never contend on a table-wide lock.
type clientEntry struct {
	mtx     sync.Mutex
	count   uint32
	resetAt time.Time

	// swept marks an entry removed from the table. An admission that
	// acquired the entry before the sweep discards it and fetches a fresh
	// one so no admission is counted against an orphan.
	swept bool
}

// RateLimiter keeps public read clients within their allocated request rates
// using fixed counting windows.
type RateLimiter struct {
	limit  uint32
	window time.Duration
	sweep  time.Duration

	mtx     sync.RWMutex
	clients map[string]*clientEntry
}

// NewRateLimiter initializes a rate limiter. Zero values select the defaults.
func NewRateLimiter(limit uint32, window time.Duration, sweep time.Duration) *RateLimiter {
	if limit == 0 {
		limit = defaultRequestLimit
	}
	if window == 0 {
		window = defaultRequestWindow
	}
	if sweep == 0 {
		sweep = defaultSweepInterval
	}
	return &RateLimiter{
		limit:   limit,
		window:  window,
		sweep:   sweep,
		clients: make(map[string]*clientEntry),
	}
}

// fetchEntry returns the entry for the provided client, creating it if
// needed. The table lock is only held for the lookup or insert, never across
// an admission check.
func (r *RateLimiter) fetchEntry(client string) *clientEntry {
	r.mtx.RLock()
	entry := r.clients[client]
	r.mtx.RUnlock()
	if entry != nil {
		return entry
	}

	r.mtx.Lock()
	defer r.mtx.Unlock()
	entry = r.clients[client]
	if entry == nil {
		entry = &clientEntry{}
		r.clients[client] = entry
	}
	return entry
}

// Admit records an admission attempt for the provided client against the
// limiter's default cap and reports the outcome. It never fails; an exhausted
// window yields Allowed=false with Remaining=0.
func (r *RateLimiter) Admit(client string) LimitStatus {
	return r.AdmitWithLimit(client, r.limit)
}

// AdmitWithLimit is Admit with a caller-supplied cap for the window, used by
// endpoints with a stricter allowance than the default.
func (r *RateLimiter) AdmitWithLimit(client string, limit uint32) LimitStatus {
	if limit == 0 {
		limit = r.limit
	}

	var entry *clientEntry
	for {
		entry = r.fetchEntry(client)
		entry.mtx.Lock()
		if !entry.swept {
			break
		}
		// The sweeper removed this entry between the lookup and the
		// lock; retry against the current table.
		entry.mtx.Unlock()
	}
	defer entry.mtx.Unlock()

	now := time.Now()

	// An elapsed window replaces the entry counters rather than
	// incrementing them.
	if !now.Before(entry.resetAt) {
		entry.count = 0
		entry.resetAt = now.Add(r.window)
	}

	entry.count++
	status := LimitStatus{
		Limit:   limit,
		ResetAt: entry.resetAt,
	}
	if entry.count > limit {
		return status
	}

	status.Allowed = true
	status.Remaining = limit - entry.count
	return status
}

// sweepExpired removes entries whose window elapsed before the provided time.
// Expiry is rechecked under the entry lock so an entry refreshed by a
// concurrent admission is kept.
func (r *RateLimiter) sweepExpired(now time.Time) {
	r.mtx.RLock()
	stale := make([]string, 0, len(r.clients))
	for client, entry := range r.clients {
		entry.mtx.Lock()
		expired := now.After(entry.resetAt)
		entry.mtx.Unlock()
		if expired {
			stale = append(stale, client)
		}
	}
	r.mtx.RUnlock()

	if len(stale) == 0 {
		return
	}

	r.mtx.Lock()
	for _, client := range stale {
		entry := r.clients[client]
		if entry == nil {
			continue
		}
		entry.mtx.Lock()
		if now.After(entry.resetAt) {
			entry.swept = true
			delete(r.clients, client)
		}
		entry.mtx.Unlock()
	}
	r.mtx.Unlock()
}

// Run periodically removes expired client entries to bound memory use.
//
// It must be run as a routine.
func (r *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(r.sweep)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			r.sweepExpired(now)

		case <-ctx.Done():
			return
		}
	}
}
