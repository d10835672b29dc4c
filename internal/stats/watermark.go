// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"bytes"
	"encoding/binary"
	"time"
)

// IntervalWatermark represents the single highest-difficulty submission
// observed for one block interval.
//
// At most one watermark exists per interval. Once written, a watermark may
// only be superseded by a strictly greater difficulty for the same interval;
// it is never lowered.
type IntervalWatermark struct {
	IntervalID int64   `json:"intervalid"`
	Address    string  `json:"address"`
	Difficulty float64 `json:"difficulty"`

	// IntervalTime is the timestamp of the interval itself, if known.
	// Zero means unknown.
	IntervalTime int64 `json:"intervaltime"`

	// CreatedOn is the collection timestamp.
	CreatedOn int64 `json:"createdon"`
}

// NewIntervalWatermark creates an interval watermark stamped with the current
// collection time. The interval timestamp itself is left unknown; the source
// does not report one.
func NewIntervalWatermark(intervalID int64, address string, difficulty float64) *IntervalWatermark {
	return &IntervalWatermark{
		IntervalID: intervalID,
		Address:    address,
		Difficulty: difficulty,
		CreatedOn:  time.Now().Unix(),
	}
}

// IntervalSubmission represents one participant's best difficulty within one
// interval. At most one row exists per (interval, address) pair and its value
// never decreases within the interval.
type IntervalSubmission struct {
	IntervalID int64   `json:"intervalid"`
	Address    string  `json:"address"`
	Difficulty float64 `json:"difficulty"`
}

// WinCount is an aggregation row over the watermark table for one winning
// address.
type WinCount struct {
	Address         string  `json:"address"`
	Wins            int64   `json:"wins"`
	TotalDifficulty float64 `json:"totaldifficulty"`
	AvgDifficulty   float64 `json:"avgdifficulty"`
	BestDifficulty  float64 `json:"bestdifficulty"`
}

// intervalIDToBigEndianBytes returns an 8-byte big endian representation of
// the provided interval id. Big endian keys keep bolt cursor scans ordered by
// interval.
func intervalIDToBigEndianBytes(intervalID int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(intervalID))
	return b
}

// bigEndianBytesToIntervalID returns the interval id encoded by the provided
// big endian bytes.
func bigEndianBytesToIntervalID(b []byte) int64 {
	return int64(binary.BigEndian.Uint64(b))
}

// submissionID generates a unique id for a participant's submission record
// within an interval.
func submissionID(intervalID int64, address string) []byte {
	var buf bytes.Buffer
	_, _ = buf.Write(intervalIDToBigEndianBytes(intervalID))
	_, _ = buf.WriteString(address)
	return buf.Bytes()
}
