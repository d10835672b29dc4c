// Copyright (c) 2025-2026 The parastats developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package stats

import (
	"strings"
	"testing"
)

func testPrivacyFilter(t *testing.T) {
	filter := NewPrivacyFilter(db)

	// An address with no participant row resolves to public.
	public, err := filter.IsPublic(xAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !public {
		t.Fatalf("expected an unknown address to be public")
	}

	// A registered participant defaults to public.
	err = db.persistParticipant(NewParticipant(xAddr))
	if err != nil {
		t.Fatalf("unexpected persist error: %v", err)
	}
	public, err = filter.IsPublic(xAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !public {
		t.Fatalf("expected a registered address to default to public")
	}

	// Only an explicit opt out hides the participant.
	err = db.setParticipantVisibility(xAddr, false)
	if err != nil {
		t.Fatalf("unexpected visibility error: %v", err)
	}
	public, err = filter.IsPublic(xAddr)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if public {
		t.Fatalf("expected an opted out address to be hidden")
	}
}

func testTruncateAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"", ""},
		{"ab", "ab"},
		{"abcdefgh", "abcdefgh"},
		{"abcdefghi", "abcd…fghi"},
		{xAddr, "bc1q…0wlh"},
	}

	for _, test := range tests {
		got := TruncateAddress(test.address)
		if got != test.want {
			t.Fatalf("TruncateAddress(%q): got %q, want %q",
				test.address, got, test.want)
		}
	}

	// Truncation is total over arbitrary lengths.
	for length := 0; length <= 100; length++ {
		address := strings.Repeat("a", length)
		got := TruncateAddress(address)
		if length <= 8 && got != address {
			t.Fatalf("expected input of length %d unchanged", length)
		}
		if length > 8 && len([]rune(got)) != 9 {
			t.Fatalf("expected 9 runes for input of length %d, got %d",
				length, len([]rune(got)))
		}
	}
}
