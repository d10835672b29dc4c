// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"context"
	"testing"

	"golang.org/x/time/rate"
)

func testReconciler(t *testing.T) {
	source := &staticSource{
		submissions: map[int64][]*SourceSubmission{
			2: {{Address: xAddr, Difficulty: 200}},
			3: {{Address: yAddr, Difficulty: 300}},
		},
	}
	collector := NewCollector(&CollectorConfig{
		DB:     db,
		Source: source,
	})
	reconciler := NewReconciler(&ReconcilerConfig{
		DB:            db,
		Collect:       collector.Collect,
		ReconcileRate: rate.Inf,
	})

	// Gaps only exist between recorded intervals.
	missing, err := reconciler.missingIntervals()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 0 {
		t.Fatalf("expected no gaps in an empty table, got %v", missing)
	}

	// Record intervals 1 and 5, leaving 2 through 4 missing.
	for _, intervalID := range []int64{1, 5} {
		_, err = db.upsertWatermark(NewIntervalWatermark(intervalID,
			xAddr, 100))
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}
	missing, err = reconciler.missingIntervals()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 3 {
		t.Fatalf("expected 3 missing intervals, got %v", missing)
	}

	// A reconcile pass collects the gaps for which the source has
	// submissions; interval 4 stays missing without failing the pass.
	reconciler.reconcile(context.Background())
	for _, intervalID := range []int64{2, 3} {
		_, err := db.fetchWatermark(intervalID)
		if err != nil {
			t.Fatalf("expected interval %d to be reconciled: %v",
				intervalID, err)
		}
	}
	missing, err = reconciler.missingIntervals()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(missing) != 1 || missing[0] != 4 {
		t.Fatalf("expected interval 4 to remain missing, got %v", missing)
	}
}
