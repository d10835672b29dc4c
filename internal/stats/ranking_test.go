// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"reflect"
	"testing"
)

// newTestRankings creates a ranking engine over the shared test database.
func newTestRankings() *Rankings {
	return NewRankings(&RankingConfig{
		DB:      db,
		Privacy: NewPrivacyFilter(db),
	})
}

// optOut registers the provided address as a non-public participant.
func optOut(t *testing.T, address string) {
	t.Helper()
	err := db.upsertParticipantStats(address, 0, 0)
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	err = db.setParticipantVisibility(address, false)
	if err != nil {
		t.Fatalf("unexpected visibility error: %v", err)
	}
}

func testRecentWatermarks(t *testing.T) {
	rankings := newTestRankings()

	// Interval 1 won by x with y as runner-up; interval 2 won by y with
	// no other submitters.
	seed := []struct {
		intervalID int64
		address    string
		difficulty float64
	}{
		{1, xAddr, 900},
		{1, yAddr, 700},
		{2, yAddr, 500},
	}
	for _, s := range seed {
		_, err := db.upsertSubmission(&IntervalSubmission{s.intervalID,
			s.address, s.difficulty})
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}
	for _, intervalID := range []int64{1, 2} {
		submissions, err := db.fetchIntervalSubmissions(intervalID, 10)
		if err != nil {
			t.Fatalf("unexpected fetch error: %v", err)
		}
		best := submissions[0]
		_, err = db.upsertWatermark(NewIntervalWatermark(intervalID,
			best.Address, best.Difficulty))
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}

	// With everyone public the winners are shown truncated.
	views, err := rankings.RecentWatermarks(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}
	if views[0].IntervalID != 2 || views[1].IntervalID != 1 {
		t.Fatalf("expected views ordered by interval descending")
	}
	if views[1].Address != TruncateAddress(xAddr) {
		t.Fatalf("expected interval 1 credited to %s, got %s",
			TruncateAddress(xAddr), views[1].Address)
	}

	// With the winner of interval 1 opted out, the best public submitter
	// is credited instead.
	optOut(t, xAddr)
	views, err = rankings.RecentWatermarks(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if views[1].Address != TruncateAddress(yAddr) {
		t.Fatalf("expected interval 1 re-credited to %s, got %s",
			TruncateAddress(yAddr), views[1].Address)
	}
	if views[1].Difficulty != 700 {
		t.Fatalf("expected the substitute difficulty of 700, got %f",
			views[1].Difficulty)
	}

	// With every submitter of an interval opted out the interval is kept
	// with an empty address.
	optOut(t, yAddr)
	views, err = rankings.RecentWatermarks(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected the interval to be kept, got %d views",
			len(views))
	}
	if views[0].Address != "" || views[1].Address != "" {
		t.Fatalf("expected anonymized views, got %q and %q",
			views[0].Address, views[1].Address)
	}
}

func testLeaderboard(t *testing.T) {
	rankings := newTestRankings()

	watermarks := []*IntervalWatermark{
		NewIntervalWatermark(1, xAddr, 100),
		NewIntervalWatermark(2, xAddr, 300),
		NewIntervalWatermark(3, yAddr, 1000),
	}
	for _, watermark := range watermarks {
		_, err := db.upsertWatermark(watermark)
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}

	entries, err := rankings.WatermarkLeaderboard(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].Address != TruncateAddress(xAddr) || entries[0].Wins != 2 {
		t.Fatalf("unexpected leading entry: %+v", entries[0])
	}
	if entries[0].Rank != 1 || entries[1].Rank != 2 {
		t.Fatalf("expected sequential ranks")
	}

	// An opted out participant vanishes from the leaderboard without a
	// trace.
	optOut(t, xAddr)
	entries, err = rankings.WatermarkLeaderboard(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Address != TruncateAddress(yAddr) || entries[0].Rank != 1 {
		t.Fatalf("unexpected entry after opt out: %+v", entries[0])
	}
}

func testCombinedLeaderboard(t *testing.T) {
	rankings := newTestRankings()

	// x: 2 wins with a best of 300. y: 1 win with a best of 1000. They
	// rank first on one metric each, so the combined scores tie and the
	// win-count order decides.
	watermarks := []*IntervalWatermark{
		NewIntervalWatermark(1, xAddr, 100),
		NewIntervalWatermark(2, xAddr, 300),
		NewIntervalWatermark(3, yAddr, 1000),
	}
	for _, watermark := range watermarks {
		_, err := db.upsertWatermark(watermark)
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}

	entries, err := rankings.CombinedLeaderboard(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].CombinedScore != 1.5 || entries[1].CombinedScore != 1.5 {
		t.Fatalf("expected tied combined scores of 1.5, got %f and %f",
			entries[0].CombinedScore, entries[1].CombinedScore)
	}
	if entries[0].Address != TruncateAddress(xAddr) {
		t.Fatalf("expected the tie broken by win-count order")
	}
	if entries[0].QualityRank != 2 || entries[0].LoyaltyRank != 1 {
		t.Fatalf("unexpected ranks for the leading entry: %+v", entries[0])
	}

	// Repeated calls with no intervening writes return identical
	// rankings.
	again, err := rankings.CombinedLeaderboard(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(entries, again) {
		t.Fatalf("expected deterministic rankings")
	}
}

func testParticipantHistory(t *testing.T) {
	rankings := newTestRankings()

	_, err := db.upsertWatermark(NewIntervalWatermark(1, xAddr, 900))
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	_, err = db.upsertSubmission(&IntervalSubmission{1, xAddr, 900})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}

	// Histories of an unregistered address are served with the address
	// truncated; the full address never leaves the engine.
	watermarks, err := rankings.ParticipantWatermarkHistory(xAddr, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(watermarks) != 1 {
		t.Fatalf("expected 1 watermark, got %d", len(watermarks))
	}
	if watermarks[0].Address != TruncateAddress(xAddr) {
		t.Fatalf("expected the truncated address %s, got %s",
			TruncateAddress(xAddr), watermarks[0].Address)
	}
	submissions, err := rankings.ParticipantSubmissionHistory(xAddr, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(submissions) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(submissions))
	}
	if submissions[0].Address != TruncateAddress(xAddr) {
		t.Fatalf("expected the truncated address %s, got %s",
			TruncateAddress(xAddr), submissions[0].Address)
	}

	// Histories of an opted out participant are silently empty rather
	// than an error, indistinguishable from an address with no activity.
	optOut(t, xAddr)
	watermarks, err = rankings.ParticipantWatermarkHistory(xAddr, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(watermarks) != 0 {
		t.Fatalf("expected an empty watermark history, got %d",
			len(watermarks))
	}
	submissions, err = rankings.ParticipantSubmissionHistory(xAddr, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(submissions) != 0 {
		t.Fatalf("expected an empty submission history, got %d",
			len(submissions))
	}
}
