// Package countdown reconciles an attempt's remaining time against the server
// record and drives the per-second countdown of an open attempt.
package countdown

import (
	"math"
	"time"
)

// Remaining returns the seconds left on an attempt.
//
// With a known start time the result is the allotted time minus the wall-clock
// seconds since startedAt and the previously recorded timeTaken. Without one the
// full allotment is returned. The result is always within [0, duration*60].
func Remaining(durationMinutes int, startedAt *time.Time, priorTimeTaken int, now time.Time) int {
	if durationMinutes <= 0 {
		return 0
	}
	total := durationMinutes * 60
	if startedAt == nil || startedAt.IsZero() {
		return total
	}

	elapsed := int(math.Floor(now.Sub(*startedAt).Seconds()))
	if elapsed < 0 {
		// Client clock behind the server.
		elapsed = 0
	}
	if priorTimeTaken < 0 {
		priorTimeTaken = 0
	}
	return clamp(total-(elapsed+priorTimeTaken), 0, total)
}

// Deadline is the instant an attempt started at startedAt runs out of time.
func Deadline(startedAt time.Time, durationMinutes int) time.Time {
	if durationMinutes <= 0 {
		return startedAt
	}
	return startedAt.Add(time.Duration(durationMinutes) * time.Minute)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
