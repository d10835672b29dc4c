// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"database/sql"

	bolt "go.etcd.io/bbolt"
)

const (
	// maxRecentWatermarks is the hard cap applied to recent watermark
	// listings regardless of the caller-supplied limit.
	maxRecentWatermarks = 500

	// maxIntervalSubmissions bounds the number of submission rows scanned
	// for a single interval regardless of the caller-supplied limit.
	maxIntervalSubmissions = 1000
)

// Database describes all of the functionality needed by a parastats database
// implementation.
type Database interface {
	// Utils
	Close() error
	Backup(fileName string) error

	// Participant registry
	fetchParticipant(address string) (*Participant, error)
	persistParticipant(p *Participant) error
	upsertParticipantStats(address string, bestDifficulty float64, newIntervals int64) error
	setParticipantVisibility(address string, public bool) error
	deactivateParticipant(address string) error

	// Interval watermarks
	fetchWatermark(intervalID int64) (*IntervalWatermark, error)
	upsertWatermark(w *IntervalWatermark) (bool, error)
	fetchRecentWatermarks(limit int) ([]*IntervalWatermark, error)
	fetchWatermarksByAddress(address string, limit int) ([]*IntervalWatermark, error)
	fetchPublicWinCounts(limit int) ([]*WinCount, error)

	// Participant interval submissions
	upsertSubmission(s *IntervalSubmission) (bool, error)
	fetchIntervalSubmissions(intervalID int64, limit int) ([]*IntervalSubmission, error)
	fetchSubmissionsByAddress(address string, limit int) ([]*IntervalSubmission, error)
}

// BoltDB is a wrapper around bolt.DB which implements the Database interface.
type BoltDB struct {
	DB *bolt.DB
}

// PostgresDB is a wrapper around sql.DB which implements the Database
// interface.
type PostgresDB struct {
	DB *sql.DB
}

// Ensure both backends implement the Database interface.
var _ Database = (*BoltDB)(nil)
var _ Database = (*PostgresDB)(nil)

// clampLimit restricts the provided limit to [1, max].
func clampLimit(limit, max int) int {
	if limit < 1 {
		return 1
	}
	if limit > max {
		return max
	}
	return limit
}
