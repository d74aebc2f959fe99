package utils

import (
	"time"
)

// time.go - границы суток для дневного учёта риска и статистики

// DayStart возвращает начало суток t в часовом поясе t
//
//	DayStart(2024-01-15 14:30 +03) = 2024-01-15 00:00 +03
func DayStart(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// DayStartIn - начало суток t в часовом поясе loc (nil - UTC)
func DayStartIn(t time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return DayStart(t.In(loc))
}

// DayKey - ключ календарного дня "2006-01-02" в часовом поясе t
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDay - true, если a и b приходятся на один календарный день в loc
func SameDay(a, b time.Time, loc *time.Location) bool {
	if loc == nil {
		loc = time.UTC
	}
	return DayKey(a.In(loc)) == DayKey(b.In(loc))
}

// TimeRange - полуинтервал [Start, End)
type TimeRange struct {
	Start time.Time
	End   time.Time
}

func (tr TimeRange) Contains(t time.Time) bool {
	return !t.Before(tr.Start) && t.Before(tr.End)
}

// DayRange - сутки, содержащие t, в поясе loc
func DayRange(t time.Time, loc *time.Location) TimeRange {
	start := DayStartIn(t, loc)
	return TimeRange{Start: start, End: start.AddDate(0, 0, 1)}
}

// LastNDays - последние n суток до now
func LastNDays(now time.Time, n int) TimeRange {
	return TimeRange{Start: now.AddDate(0, 0, -n), End: now}
}

// FromUnixMillis конвертирует миллисекунды Unix в time.Time (UTC)
func FromUnixMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// FormatDuration - компактная запись длительности: 45s, 5m30s, 2h15m
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = -d
	}
	switch {
	case d >= time.Hour:
		return d.Truncate(time.Minute).String()
	case d >= time.Minute:
		return d.Truncate(time.Second).String()
	default:
		return d.Truncate(time.Millisecond).String()
	}
}
