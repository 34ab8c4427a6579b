// Package cycle computes election dates and the limit buckets pledges fall into.
//
// Every function here is pure: inputs are never mutated and each call
// returns fresh time values.
package cycle

import "time"

// GeneralElectionDate returns midnight (in loc) of the first Tuesday after
// the first Monday in November of year.
func GeneralElectionDate(year int, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	nov1 := time.Date(year, time.November, 1, 0, 0, 0, 0, loc)
	offset := (int(time.Tuesday) - int(nov1.Weekday()) + 7) % 7
	day := 1 + offset
	if day == 1 {
		day += 7
	}
	return time.Date(year, time.November, day, 0, 0, 0, 0, loc)
}

// IsElectionYear reports whether federal general elections are held in year.
func IsElectionYear(year int) bool { return year%2 == 0 }

// endOfDay returns midnight starting the day after d.
func endOfDay(d time.Time) time.Time {
	return time.Date(d.Year(), d.Month(), d.Day()+1, 0, 0, 0, 0, d.Location())
}

// GeneralBoundary is the instant the general election of year closes.
// Pledges made on election day belong to that election.
func GeneralBoundary(year int, loc *time.Location) time.Time {
	return endOfDay(GeneralElectionDate(year, loc))
}

// NextBoundary returns the first general-election boundary strictly after t.
func NextBoundary(t time.Time, loc *time.Location) time.Time {
	year := t.In(loc).Year()
	if !IsElectionYear(year) {
		year++
	}
	b := GeneralBoundary(year, loc)
	if !t.Before(b) {
		b = GeneralBoundary(year+2, loc)
	}
	return b
}

// PreviousBoundary returns the latest general-election boundary at or before t.
func PreviousBoundary(t time.Time, loc *time.Location) time.Time {
	next := NextBoundary(t, loc)
	return GeneralBoundary(next.Year()-2, loc)
}
