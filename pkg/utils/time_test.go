package utils

import (
	"testing"
	"time"
)

func TestDayStart(t *testing.T) {
	istanbul := time.FixedZone("TRT", 3*3600)
	ts := time.Date(2024, 1, 15, 14, 30, 45, 123, istanbul)

	got := DayStart(ts)
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, istanbul)
	if !got.Equal(want) {
		t.Errorf("DayStart = %v, want %v", got, want)
	}
}

func TestDayStartIn(t *testing.T) {
	// 2024-01-15 22:30 UTC = 2024-01-16 01:30 TRT
	ts := time.Date(2024, 1, 15, 22, 30, 0, 0, time.UTC)
	istanbul := time.FixedZone("TRT", 3*3600)

	got := DayStartIn(ts, istanbul)
	want := time.Date(2024, 1, 16, 0, 0, 0, 0, istanbul)
	if !got.Equal(want) {
		t.Errorf("DayStartIn = %v, want %v", got, want)
	}

	if gotUTC := DayStartIn(ts, nil); !gotUTC.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("DayStartIn(nil loc) = %v", gotUTC)
	}
}

func TestSameDay(t *testing.T) {
	a := time.Date(2024, 3, 1, 23, 59, 59, 0, time.UTC)
	b := time.Date(2024, 3, 2, 0, 0, 1, 0, time.UTC)

	tests := []struct {
		name string
		a, b time.Time
		loc  *time.Location
		want bool
	}{
		{"across midnight UTC", a, b, time.UTC, false},
		{"same day", a, a.Add(-time.Hour), time.UTC, true},
		{"same day shifted zone", a, b, time.FixedZone("X", 3*3600), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SameDay(tt.a, tt.b, tt.loc); got != tt.want {
				t.Errorf("SameDay = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDayRange(t *testing.T) {
	ts := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	r := DayRange(ts, time.UTC)

	if !r.Contains(ts) {
		t.Error("range should contain its own instant")
	}
	if r.Contains(r.End) {
		t.Error("range end is exclusive")
	}
	if !r.Contains(r.Start) {
		t.Error("range start is inclusive")
	}
	if r.End.Sub(r.Start) != 24*time.Hour {
		t.Errorf("range length = %v, want 24h", r.End.Sub(r.Start))
	}
}

func TestLastNDays(t *testing.T) {
	now := time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)
	r := LastNDays(now, 7)
	if !r.Start.Equal(now.AddDate(0, 0, -7)) || !r.End.Equal(now) {
		t.Errorf("LastNDays = %+v", r)
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Second, "45s"},
		{5*time.Minute + 30*time.Second, "5m30s"},
		{2*time.Hour + 15*time.Minute + 10*time.Second, "2h15m0s"},
		{-3 * time.Second, "3s"},
	}

	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestFromUnixMillis(t *testing.T) {
	got := FromUnixMillis(1700000000000)
	if got.Location() != time.UTC || got.Unix() != 1700000000 {
		t.Errorf("FromUnixMillis = %v", got)
	}
}
