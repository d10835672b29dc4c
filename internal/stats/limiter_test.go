// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"testing"
	"time"
)

func testRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(3, time.Millisecond*100, 0)
	client := "127.0.0.1"

	// The first three admissions should be allowed with a decreasing
	// remaining count.
	for idx := uint32(0); idx < 3; idx++ {
		status := limiter.Admit(client)
		if !status.Allowed {
			t.Fatalf("expected admission %d to be allowed", idx+1)
		}
		if status.Limit != 3 {
			t.Fatalf("expected a limit of 3, got %d", status.Limit)
		}
		expectedRemaining := 3 - (idx + 1)
		if status.Remaining != expectedRemaining {
			t.Fatalf("expected %d remaining, got %d",
				expectedRemaining, status.Remaining)
		}
	}

	// The next admission should be denied with full metadata and no
	// error.
	status := limiter.Admit(client)
	if status.Allowed {
		t.Fatalf("expected admission over the limit to be denied")
	}
	if status.Remaining != 0 {
		t.Fatalf("expected no remaining admissions, got %d",
			status.Remaining)
	}
	if status.ResetAt.IsZero() {
		t.Fatalf("expected a reset time on a denied admission")
	}

	// A different client should have its own allowance.
	status = limiter.Admit("10.0.0.1")
	if !status.Allowed {
		t.Fatalf("expected a distinct client to be admitted")
	}

	// Once the window elapses the allowance should be replenished.
	time.Sleep(time.Millisecond * 110)
	status = limiter.Admit(client)
	if !status.Allowed {
		t.Fatalf("expected admission after window reset to be allowed")
	}
	if status.Remaining != 2 {
		t.Fatalf("expected 2 remaining after reset, got %d",
			status.Remaining)
	}

	// A caller-supplied cap should override the default.
	status = limiter.AdmitWithLimit("172.16.0.1", 1)
	if !status.Allowed || status.Limit != 1 || status.Remaining != 0 {
		t.Fatalf("unexpected status for a capped admission: %+v", status)
	}
	status = limiter.AdmitWithLimit("172.16.0.1", 1)
	if status.Allowed {
		t.Fatalf("expected a capped admission to be denied")
	}
}

func testRateLimiterSweep(t *testing.T) {
	limiter := NewRateLimiter(3, time.Millisecond*50, time.Millisecond*50)

	limiter.Admit("127.0.0.1")
	limiter.Admit("10.0.0.1")
	if len(limiter.clients) != 2 {
		t.Fatalf("expected 2 tracked clients, got %d",
			len(limiter.clients))
	}

	// Sweeping before the window elapses should keep both entries.
	limiter.sweepExpired(time.Now())
	if len(limiter.clients) != 2 {
		t.Fatalf("expected 2 tracked clients after an early sweep, "+
			"got %d", len(limiter.clients))
	}

	// Sweeping after the window elapses should drop both entries.
	time.Sleep(time.Millisecond * 60)
	limiter.Admit("172.16.0.1")
	stale := limiter.fetchEntry("127.0.0.1")
	limiter.sweepExpired(time.Now())
	if len(limiter.clients) != 1 {
		t.Fatalf("expected 1 tracked client after the sweep, got %d",
			len(limiter.clients))
	}
	if _, ok := limiter.clients["172.16.0.1"]; !ok {
		t.Fatalf("expected the active client to survive the sweep")
	}

	// A removed entry is marked so an admission holding its pointer
	// discards it rather than counting against the orphan.
	stale.mtx.Lock()
	swept := stale.swept
	stale.mtx.Unlock()
	if !swept {
		t.Fatalf("expected the removed entry to be marked as swept")
	}
	status := limiter.Admit("127.0.0.1")
	if !status.Allowed || status.Remaining != 2 {
		t.Fatalf("expected a fresh allowance after the sweep, got %+v",
			status)
	}
}
