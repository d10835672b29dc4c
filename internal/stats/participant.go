// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import "time"

// Participant represents an address-identified contributor to the pool that
// is tracked by the stats engine.
//
// A participant row is created the first time a submission is observed for an
// address. The visibility flag is an opt-out model: an address with no
// participant row is treated as public, as is a row with Public set to true.
// Rows are never deleted, only deactivated.
type Participant struct {
	Address        string  `json:"address"`
	Active         bool    `json:"active"`
	Public         bool    `json:"public"`
	BestDifficulty float64 `json:"bestdifficulty"`
	IntervalCount  int64   `json:"intervalcount"`
	CreatedOn      int64   `json:"createdon"`
	UpdatedOn      int64   `json:"updatedon"`
}

// NewParticipant creates a participant for the provided address with default
// visibility (public) and zeroed aggregates.
func NewParticipant(address string) *Participant {
	now := time.Now().Unix()
	return &Participant{
		Address:   address,
		Active:    true,
		Public:    true,
		CreatedOn: now,
		UpdatedOn: now,
	}
}
