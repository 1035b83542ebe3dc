package tools

import (
	"testing"
	"time"
)

var parseNow = time.Date(2026, 8, 27, 10, 30, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"tomorrow", "tomorrow", "2026-08-28"},
		{"tomorrow in phrase", "book me for tomorrow please", "2026-08-28"},
		{"today", "today", "2026-08-27"},
		{"iso passthrough", "2026-09-15", "2026-09-15"},
		{"month name with year", "20th October 2026", "2026-10-20"},
		{"month name comma", "October 20, 2026", "2026-10-20"},
		{"month abbreviation", "20 oct 2026", "2026-10-20"},
		{"month name no year", "October 20", "2026-10-20"},
		{"month two digit year", "20 october 26", "2026-10-20"},
		{"dd mm yyyy", "20 10 2026", "2026-10-20"},
		{"dd mm two digit year", "20 10 26", "2026-10-20"},
		{"dd mm current year", "20 10", "2026-10-20"},
		{"may is not ambiguous", "3 may 2026", "2026-05-03"},
		{"unparseable falls through", "whenever works", "whenever works"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDate(tt.in, parseNow); got != tt.want {
				t.Errorf("ParseDate(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseHour(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"2 PM", 14, false},
		{"2 pm", 14, false},
		{"10-11 AM", 10, false},
		{"between 2 and 3 PM", 14, false},
		{"12 PM", 12, false},
		{"9", 9, false},
		{"sometime in the afternoon", 0, true},
		{"99 PM", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseHour(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Errorf("ParseHour(%q): expected error, got %d", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseHour(%q) failed: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseHour(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}
