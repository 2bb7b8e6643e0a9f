package normalize

import (
	"testing"
	"time"
)

func TestParseDateAt(t *testing.T) {
	now := time.Date(2024, 3, 9, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{name: "iso", input: "2024-01-15", want: "2024-01-15"},
		{name: "quoted iso", input: `"2024-01-15"`, want: "2024-01-15"},
		{name: "day first slash", input: "15/01/2024", want: "2024-01-15"},
		{name: "day first dash", input: "15-01-2024", want: "2024-01-15"},
		{name: "day first dot", input: "15.01.2024", want: "2024-01-15"},
		{name: "single digits", input: "5/1/2024", want: "2024-01-05"},
		{name: "two digit year", input: "15/01/24", want: "2024-01-15"},
		{name: "year first slash", input: "2024/01/15", want: "2024-01-15"},
		{name: "year first dot", input: "2024.1.5", want: "2024-01-05"},
		{name: "month first when day exceeds 12", input: "01/15/2024", want: "2024-01-15"},
		{name: "textual", input: "15 Jan 2024", want: "2024-01-15"},
		{name: "textual long", input: "January 15, 2024", want: "2024-01-15"},
		{name: "timestamp", input: "2024-01-15T10:30:00Z", want: "2024-01-15"},
		{name: "garbage degrades to today", input: "yesterday-ish", want: "2024-03-09"},
		{name: "empty degrades to today", input: "", want: "2024-03-09"},
		{name: "impossible date degrades to today", input: "31/02/2024", want: "2024-03-09"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDateAt(tt.input, now); got != tt.want {
				t.Errorf("ParseDateAt(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseDateAt_Idempotent(t *testing.T) {
	now := time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC)
	for _, in := range []string{"15/01/2024", "2024.1.5", "15 Jan 2024", "junk"} {
		once := ParseDateAt(in, now)
		if twice := ParseDateAt(once, now); twice != once {
			t.Errorf("ParseDateAt not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}
