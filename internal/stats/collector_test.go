// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/parasitepool/parastats-sub001/errors"
)

// staticSource is an in-memory submission source for testing.
type staticSource struct {
	mtx         sync.Mutex
	submissions map[int64][]*SourceSubmission
	delay       time.Duration
	concurrent  int32
	maxSeen     int32
}

func (s *staticSource) IntervalSubmissions(ctx context.Context, intervalID int64) ([]*SourceSubmission, error) {
	current := atomic.AddInt32(&s.concurrent, 1)
	defer atomic.AddInt32(&s.concurrent, -1)
	for {
		seen := atomic.LoadInt32(&s.maxSeen)
		if current <= seen ||
			atomic.CompareAndSwapInt32(&s.maxSeen, seen, current) {
			break
		}
	}

	s.mtx.Lock()
	delay := s.delay
	s.mtx.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	s.mtx.Lock()
	defer s.mtx.Unlock()
	return s.submissions[intervalID], nil
}

func testCollector(t *testing.T) {
	ctx := context.Background()
	source := &staticSource{
		submissions: map[int64][]*SourceSubmission{
			1: {
				{Address: xAddr, Difficulty: 400},
				{Address: yAddr, Difficulty: 900},
				{Address: zAddr, Difficulty: 900},
				{Address: xAddr, Difficulty: 100},
			},
		},
	}

	var signals int
	collector := NewCollector(&CollectorConfig{
		DB:     db,
		Source: source,
		SignalCache: func(event CacheUpdateEvent) {
			signals++
		},
	})

	// A negative interval id should be rejected.
	err := collector.Collect(ctx, -1)
	if !errors.Is(err, errors.InvalidInput) {
		t.Fatalf("expected InvalidInput error, got %v", err)
	}

	// An interval without submissions reports NoSubmissions.
	err = collector.Collect(ctx, 9)
	if !errors.Is(err, errors.NoSubmissions) {
		t.Fatalf("expected NoSubmissions error, got %v", err)
	}

	// Collecting should store the highest difficulty, crediting the
	// earliest seen submission on a tie.
	err = collector.Collect(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected collect error: %v", err)
	}
	watermark, err := db.fetchWatermark(1)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if watermark.Address != yAddr || watermark.Difficulty != 900 {
		t.Fatalf("expected %s/900 as the watermark, got %s/%f", yAddr,
			watermark.Address, watermark.Difficulty)
	}
	if signals != 1 {
		t.Fatalf("expected 1 cache signal, got %d", signals)
	}

	// One submission record per participant, keeping their best.
	submissions, err := db.fetchIntervalSubmissions(1, 10)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(submissions) != 3 {
		t.Fatalf("expected 3 submission records, got %d", len(submissions))
	}
	for _, submission := range submissions {
		if submission.Address == xAddr && submission.Difficulty != 400 {
			t.Fatalf("expected the best submission of %s to be 400, "+
				"got %f", xAddr, submission.Difficulty)
		}
	}

	// Participants are registered with their interval aggregates.
	participant, err := db.fetchParticipant(xAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if participant.BestDifficulty != 400 || participant.IntervalCount != 1 {
		t.Fatalf("unexpected participant aggregates: %f/%d",
			participant.BestDifficulty, participant.IntervalCount)
	}

	// Re-collecting an unchanged interval is idempotent: no new watermark,
	// no new signal, no inflated interval counts.
	err = collector.Collect(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected collect error: %v", err)
	}
	if signals != 1 {
		t.Fatalf("expected no new cache signal, got %d", signals)
	}
	participant, err = db.fetchParticipant(xAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if participant.IntervalCount != 1 {
		t.Fatalf("expected an interval count of 1 after re-collection, "+
			"got %d", participant.IntervalCount)
	}

	// A source now reporting a lower maximum leaves the watermark
	// untouched.
	source.mtx.Lock()
	source.submissions[1] = []*SourceSubmission{
		{Address: zAddr, Difficulty: 850},
	}
	source.mtx.Unlock()
	err = collector.Collect(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected collect error: %v", err)
	}
	watermark, err = db.fetchWatermark(1)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if watermark.Address != yAddr || watermark.Difficulty != 900 {
		t.Fatalf("expected the watermark to remain %s/900, got %s/%f",
			yAddr, watermark.Address, watermark.Difficulty)
	}
}

func testCollectMany(t *testing.T) {
	ctx := context.Background()
	source := &staticSource{
		submissions: map[int64][]*SourceSubmission{
			1: {{Address: xAddr, Difficulty: 100}},
			2: {{Address: yAddr, Difficulty: 200}},
			3: {{Address: zAddr, Difficulty: 300}},
			4: {{Address: xAddr, Difficulty: 400}},
		},
		delay: time.Millisecond * 10,
	}
	collector := NewCollector(&CollectorConfig{
		DB:     db,
		Source: source,
	})

	// Intervals are deduplicated and collected with per-interval
	// isolation: an empty interval fails its entry without affecting the
	// others.
	results := collector.CollectMany(ctx, []int64{1, 2, 3, 9, 1},
		2, time.Second*5)
	if len(results) != 4 {
		t.Fatalf("expected 4 results, got %d", len(results))
	}
	for _, intervalID := range []int64{1, 2, 3} {
		if !results[intervalID] {
			t.Fatalf("expected interval %d to be collected", intervalID)
		}
	}
	if results[9] {
		t.Fatalf("expected interval 9 to fail")
	}

	// Concurrency stays within the configured bound.
	if source.maxSeen > 2 {
		t.Fatalf("expected at most 2 concurrent collections, saw %d",
			source.maxSeen)
	}

	// A short deadline reports partial results instead of blocking.
	source.mtx.Lock()
	source.delay = time.Millisecond * 250
	source.mtx.Unlock()
	start := time.Now()
	results = collector.CollectMany(ctx, []int64{4}, 1, time.Millisecond*20)
	if elapsed := time.Since(start); elapsed > time.Millisecond*200 {
		t.Fatalf("expected the deadline to bound reporting, took %v",
			elapsed)
	}
	if results[4] {
		t.Fatalf("expected interval 4 to be unreported at the deadline")
	}
}
