package common

import (
	"time"
)

// IntTime returns the current time in whole seconds.
func IntTime() int64 {
	return time.Now().Unix()
}

// IntTimeMS returns the current time in whole milliseconds. Collection
// timestamps (mod, scm, ls) use this resolution.
func IntTimeMS() int64 {
	return time.Now().UnixMilli()
}

// CreationStamp returns the canonical creation time for a new
// collection: 04:00 local time on the given day. Anchoring to the
// rollover hour keeps day-boundary math stable across midnight study
// sessions.
func CreationStamp(now time.Time) int64 {
	day := time.Date(now.Year(), now.Month(), now.Day(), 4, 0, 0, 0, now.Location())
	return day.Unix()
}

// FormatTimestampMS renders a millisecond timestamp for display.
func FormatTimestampMS(ms int64) string {
	if ms == 0 {
		return "never"
	}
	return time.UnixMilli(ms).Format("2006-01-02 15:04:05")
}

// FormatTimestamp renders a second-resolution timestamp for display.
func FormatTimestamp(secs int64) string {
	if secs == 0 {
		return "never"
	}
	return time.Unix(secs, 0).Format("2006-01-02 15:04:05")
}
