// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"github.com/parasitepool/parastats-sub001/errors"
)

// addressEdgeLength is the number of leading and trailing characters of an
// address kept by truncation.
const addressEdgeLength = 4

// PrivacyFilter decides whether a participant's identity may appear in
// aggregate or public views.
type PrivacyFilter struct {
	db Database
}

// NewPrivacyFilter creates a privacy filter backed by the provided database.
func NewPrivacyFilter(db Database) *PrivacyFilter {
	return &PrivacyFilter{db: db}
}

// IsPublic reports whether the provided address may be exposed in aggregate
// views.
//
// Visibility is an opt-out model with an explicit tri-state read: an address
// with no participant row resolves to public, as does a row with the public
// flag set. Only a row explicitly flagged non-public is hidden.
func (f *PrivacyFilter) IsPublic(address string) (bool, error) {
	p, err := f.db.fetchParticipant(address)
	if err != nil {
		if errors.Is(err, errors.ValueNotFound) {
			return true, nil
		}
		return false, err
	}
	return p.Public, nil
}

// TruncateAddress partially masks the provided address for external display,
// keeping the first and last four characters joined by an ellipsis.
//
// It is pure and total: short and empty inputs are returned unchanged rather
// than padded or rejected.
func TruncateAddress(address string) string {
	if len(address) <= addressEdgeLength*2 {
		return address
	}
	return address[:addressEdgeLength] + "…" + address[len(address)-addressEdgeLength:]
}
