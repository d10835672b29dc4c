// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"testing"

	"github.com/parasitepool/parastats-sub001/errors"
)

func testParticipant(t *testing.T) {
	// Fetching a non-existent participant should fail.
	_, err := db.fetchParticipant(xAddr)
	if !errors.Is(err, errors.ValueNotFound) {
		t.Fatalf("expected ValueNotFound error, got %v", err)
	}

	// Persist a participant.
	participant := NewParticipant(xAddr)
	err = db.persistParticipant(participant)
	if err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}

	// Persisting the same participant again should fail.
	err = db.persistParticipant(participant)
	if !errors.Is(err, errors.ValueFound) {
		t.Fatalf("expected ValueFound error, got %v", err)
	}

	fetched, err := db.fetchParticipant(xAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if !fetched.Active || !fetched.Public {
		t.Fatalf("expected a new participant to be active and public")
	}

	// Upserting stats for an unknown address should create it.
	err = db.upsertParticipantStats(yAddr, 50, 1)
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	fetched, err = db.fetchParticipant(yAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if fetched.BestDifficulty != 50 {
		t.Fatalf("expected best difficulty of 50, got %f",
			fetched.BestDifficulty)
	}
	if fetched.IntervalCount != 1 {
		t.Fatalf("expected an interval count of 1, got %d",
			fetched.IntervalCount)
	}

	// A lower best difficulty should not regress the stored value, the
	// interval count should still accumulate.
	err = db.upsertParticipantStats(yAddr, 20, 1)
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	fetched, err = db.fetchParticipant(yAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if fetched.BestDifficulty != 50 {
		t.Fatalf("expected best difficulty of 50, got %f",
			fetched.BestDifficulty)
	}
	if fetched.IntervalCount != 2 {
		t.Fatalf("expected an interval count of 2, got %d",
			fetched.IntervalCount)
	}

	// Toggle visibility.
	err = db.setParticipantVisibility(yAddr, false)
	if err != nil {
		t.Fatalf("unexpected visibility error: %v", err)
	}
	fetched, err = db.fetchParticipant(yAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if fetched.Public {
		t.Fatalf("expected participant to be non-public")
	}

	// Updating visibility of an unknown participant should fail.
	err = db.setParticipantVisibility(zAddr, false)
	if !errors.Is(err, errors.ValueNotFound) {
		t.Fatalf("expected ValueNotFound error, got %v", err)
	}

	// Deactivate.
	err = db.deactivateParticipant(yAddr)
	if err != nil {
		t.Fatalf("unexpected deactivate error: %v", err)
	}
	fetched, err = db.fetchParticipant(yAddr)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if fetched.Active {
		t.Fatalf("expected participant to be inactive")
	}
}

func testWatermark(t *testing.T) {
	// Fetching a non-existent watermark should fail.
	_, err := db.fetchWatermark(1)
	if !errors.Is(err, errors.ValueNotFound) {
		t.Fatalf("expected ValueNotFound error, got %v", err)
	}

	// A watermark for an empty interval should always be written.
	written, err := db.upsertWatermark(NewIntervalWatermark(1, xAddr, 900))
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if !written {
		t.Fatalf("expected the first watermark to be written")
	}

	// A lower difficulty should leave the stored watermark untouched.
	written, err = db.upsertWatermark(NewIntervalWatermark(1, yAddr, 850))
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if written {
		t.Fatalf("expected a lower watermark to be skipped")
	}

	// An equal difficulty should also be skipped.
	written, err = db.upsertWatermark(NewIntervalWatermark(1, yAddr, 900))
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if written {
		t.Fatalf("expected an equal watermark to be skipped")
	}

	fetched, err := db.fetchWatermark(1)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if fetched.Address != xAddr || fetched.Difficulty != 900 {
		t.Fatalf("expected the stored watermark to be unchanged, got "+
			"%s/%f", fetched.Address, fetched.Difficulty)
	}

	// A strictly greater difficulty should replace the stored watermark.
	written, err = db.upsertWatermark(NewIntervalWatermark(1, yAddr, 1000))
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if !written {
		t.Fatalf("expected a greater watermark to be written")
	}

	// Recent watermarks should be ordered most recent interval first.
	for _, intervalID := range []int64{3, 2, 5} {
		_, err = db.upsertWatermark(NewIntervalWatermark(intervalID, xAddr, 100))
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}
	watermarks, err := db.fetchRecentWatermarks(10)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(watermarks) != 4 {
		t.Fatalf("expected 4 watermarks, got %d", len(watermarks))
	}
	expectedOrder := []int64{5, 3, 2, 1}
	for idx := range watermarks {
		if watermarks[idx].IntervalID != expectedOrder[idx] {
			t.Fatalf("expected interval %d at index %d, got %d",
				expectedOrder[idx], idx, watermarks[idx].IntervalID)
		}
	}

	// The limit should bound the listing.
	watermarks, err = db.fetchRecentWatermarks(2)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(watermarks) != 2 {
		t.Fatalf("expected 2 watermarks, got %d", len(watermarks))
	}

	// Per-address listings should only contain the requested address.
	watermarks, err = db.fetchWatermarksByAddress(xAddr, 10)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(watermarks) != 3 {
		t.Fatalf("expected 3 watermarks for %s, got %d", xAddr,
			len(watermarks))
	}
	for _, watermark := range watermarks {
		if watermark.Address != xAddr {
			t.Fatalf("unexpected address %s in listing", watermark.Address)
		}
	}
}

func testSubmission(t *testing.T) {
	// A submission for an empty (interval, address) pair should create a
	// record.
	created, err := db.upsertSubmission(&IntervalSubmission{1, xAddr, 500})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if !created {
		t.Fatalf("expected the first submission to create a record")
	}

	// A lower difficulty should not modify the record, and not report a
	// create.
	created, err = db.upsertSubmission(&IntervalSubmission{1, xAddr, 400})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if created {
		t.Fatalf("expected no new record for a repeated submission")
	}

	// A higher difficulty should update the record without reporting a
	// create.
	created, err = db.upsertSubmission(&IntervalSubmission{1, xAddr, 600})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	if created {
		t.Fatalf("expected no new record for an updated submission")
	}

	_, err = db.upsertSubmission(&IntervalSubmission{1, yAddr, 900})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	_, err = db.upsertSubmission(&IntervalSubmission{2, xAddr, 50})
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}

	// Interval listings should be bounded to the interval and ordered by
	// difficulty, highest first.
	submissions, err := db.fetchIntervalSubmissions(1, 10)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(submissions))
	}
	if submissions[0].Address != yAddr || submissions[1].Address != xAddr {
		t.Fatalf("expected submissions ordered by difficulty descending")
	}
	if submissions[1].Difficulty != 600 {
		t.Fatalf("expected an updated difficulty of 600, got %f",
			submissions[1].Difficulty)
	}

	// Per-address listings should be ordered by interval, most recent
	// first.
	submissions, err = db.fetchSubmissionsByAddress(xAddr, 10)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(submissions) != 2 {
		t.Fatalf("expected 2 submissions for %s, got %d", xAddr,
			len(submissions))
	}
	if submissions[0].IntervalID != 2 || submissions[1].IntervalID != 1 {
		t.Fatalf("expected submissions ordered by interval descending")
	}
}

func testWinCounts(t *testing.T) {
	watermarks := []*IntervalWatermark{
		NewIntervalWatermark(1, xAddr, 100),
		NewIntervalWatermark(2, xAddr, 300),
		NewIntervalWatermark(3, yAddr, 1000),
		NewIntervalWatermark(4, zAddr, 500),
	}
	for _, watermark := range watermarks {
		_, err := db.upsertWatermark(watermark)
		if err != nil {
			t.Fatalf("unexpected upsert error: %v", err)
		}
	}

	counts, err := db.fetchPublicWinCounts(10)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(counts) != 3 {
		t.Fatalf("expected 3 win counts, got %d", len(counts))
	}

	// Most wins first.
	if counts[0].Address != xAddr {
		t.Fatalf("expected %s to lead the win counts, got %s", xAddr,
			counts[0].Address)
	}
	if counts[0].Wins != 2 || counts[1].Wins != 1 {
		t.Fatalf("unexpected win totals: %d, %d", counts[0].Wins,
			counts[1].Wins)
	}
	if counts[0].BestDifficulty != 300 {
		t.Fatalf("expected a best difficulty of 300, got %f",
			counts[0].BestDifficulty)
	}
	if counts[0].AvgDifficulty != 200 {
		t.Fatalf("expected an average difficulty of 200, got %f",
			counts[0].AvgDifficulty)
	}

	// A winner that opted out of public listing is excluded before the
	// limit applies, so hidden winners never displace public ones.
	err = db.upsertParticipantStats(xAddr, 300, 0)
	if err != nil {
		t.Fatalf("unexpected upsert error: %v", err)
	}
	err = db.setParticipantVisibility(xAddr, false)
	if err != nil {
		t.Fatalf("unexpected visibility error: %v", err)
	}
	counts, err = db.fetchPublicWinCounts(2)
	if err != nil {
		t.Fatalf("unexpected fetch error: %v", err)
	}
	if len(counts) != 2 {
		t.Fatalf("expected 2 win counts, got %d", len(counts))
	}
	if counts[0].Address != yAddr || counts[1].Address != zAddr {
		t.Fatalf("expected the public winners %s and %s, got %s and %s",
			yAddr, zAddr, counts[0].Address, counts[1].Address)
	}
}
