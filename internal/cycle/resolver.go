package cycle

import (
	"fmt"
	"time"
)

// Kind distinguishes the primary and general limit buckets.
type Kind string

const (
	KindPrimary Kind = "primary"
	KindGeneral Kind = "general"
)

// Cycle is the half-open span [Start, End) ending at a general election.
type Cycle struct {
	Start        time.Time
	End          time.Time
	ElectionYear int
}

// Bucket is the half-open span [Start, End) a pledge counts toward.
type Bucket struct {
	Kind         Kind
	ElectionYear int
	Start        time.Time
	End          time.Time
}

// Key identifies the bucket, e.g. "2026-primary".
func (b Bucket) Key() string { return fmt.Sprintf("%d-%s", b.ElectionYear, b.Kind) }

// Contains reports whether t falls in the bucket.
func (b Bucket) Contains(t time.Time) bool {
	return !t.Before(b.Start) && t.Before(b.End)
}

// Resolver answers cycle questions relative to its clock.
type Resolver struct {
	loc      *time.Location
	calendar *Calendar
	now      func() time.Time
}

type Option func(*Resolver)

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// WithCalendar sets the state primary calendar.
func WithCalendar(c *Calendar) Option {
	return func(r *Resolver) { r.calendar = c }
}

func NewResolver(loc *time.Location, opts ...Option) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	r := &Resolver{loc: loc, calendar: &Calendar{}, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Location is the reference time zone for cycle and calendar-year math.
func (r *Resolver) Location() *time.Location { return r.loc }

// Cutoff reports whether ref is strictly before the next general-election
// boundary as seen from the resolver's clock.
func (r *Resolver) Cutoff(ref time.Time) bool {
	return ref.Before(NextBoundary(r.now(), r.loc))
}

// InCurrentCycle reports whether ref falls in the cycle containing now.
func (r *Resolver) InCurrentCycle(ref time.Time) bool {
	now := r.now()
	return r.Cutoff(ref) && !ref.Before(PreviousBoundary(now, r.loc))
}

// Cycle returns the cycle containing ref.
func (r *Resolver) Cycle(ref time.Time) Cycle {
	end := NextBoundary(ref, r.loc)
	return Cycle{
		Start:        GeneralBoundary(end.Year()-2, r.loc),
		End:          end,
		ElectionYear: end.Year(),
	}
}

// Bucket returns the limit bucket a pledge to a candidate from state made
// at ref belongs to. Without a calendar entry the whole cycle is one general
// bucket.
func (r *Resolver) Bucket(state string, ref time.Time) Bucket {
	c := r.Cycle(ref)
	general := Bucket{Kind: KindGeneral, ElectionYear: c.ElectionYear, Start: c.Start, End: c.End}

	primary, ok := r.calendar.Primary(state, c.ElectionYear)
	if !ok {
		return general
	}
	primaryEnd := endOfDay(primary)
	if ref.Before(primaryEnd) {
		return Bucket{Kind: KindPrimary, ElectionYear: c.ElectionYear, Start: c.Start, End: primaryEnd}
	}
	general.Start = primaryEnd
	return general
}

// CurrentBucket is Bucket at the resolver's clock.
func (r *Resolver) CurrentBucket(state string) Bucket {
	return r.Bucket(state, r.now())
}

// NextYearStart returns Jan 1 of the year after ref, in the resolver's zone.
func (r *Resolver) NextYearStart(ref time.Time) time.Time {
	return time.Date(ref.In(r.loc).Year()+1, time.January, 1, 0, 0, 0, 0, r.loc)
}

// YearStart returns Jan 1 of ref's year, in the resolver's zone.
func (r *Resolver) YearStart(ref time.Time) time.Time {
	return time.Date(ref.In(r.loc).Year(), time.January, 1, 0, 0, 0, 0, r.loc)
}
