package domain

import (
	"testing"
	"time"
)

func TestParsePostDate(t *testing.T) {
	t.Parallel()

	cases := map[string]time.Time{
		"2025-03-11T09:30:00-05:00":       time.Date(2025, 3, 11, 14, 30, 0, 0, time.UTC),
		"2025-03-11T09:30:00":             time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC),
		"2025-03-11 09:30:00":             time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC),
		" 2025-03-11 ":                    time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		"Tue, 11 Mar 2025 09:30:00 +0000": time.Date(2025, 3, 11, 9, 30, 0, 0, time.UTC),
	}
	for in, want := range cases {
		if got := ParsePostDate(in); !got.Equal(want) {
			t.Fatalf("ParsePostDate(%q) = %v, want %v", in, got, want)
		}
	}

	for _, in := range []string{"", "yesterday", "11/03/2025"} {
		if got := ParsePostDate(in); !got.IsZero() {
			t.Fatalf("ParsePostDate(%q) = %v, want zero", in, got)
		}
	}
}
