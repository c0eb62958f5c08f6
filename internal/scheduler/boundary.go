// Package scheduler computes refresh instants aligned to externally defined
// publication boundaries (quarter-hour ticks, fixed daily cutovers in a
// foreign timezone) instead of a fixed polling interval.
package scheduler

import (
	"fmt"
	"sort"
	"time"
)

// DefaultMargin is added after every boundary so that a timer never fires a
// moment before the boundary it targets.
const DefaultMargin = time.Second

// Boundary yields the smallest boundary strictly after now.
// Implementations must be pure: equal inputs give equal outputs.
type Boundary interface {
	Next(now time.Time) time.Time
}

// BoundaryFunc adapts a function to the Boundary interface
type BoundaryFunc func(now time.Time) time.Time

// Next implements Boundary
func (f BoundaryFunc) Next(now time.Time) time.Time {
	return f(now)
}

// NextRefreshInterval returns the delay from now until the next boundary plus
// margin. The result is always positive.
func NextRefreshInterval(b Boundary, now time.Time, margin time.Duration) time.Duration {
	next := b.Next(now)
	if !next.After(now) {
		// Misbehaving boundary; never schedule in the past
		next = now
	}
	return next.Add(margin).Sub(now)
}

// IntervalFunc turns a boundary into a coordinator interval function
func IntervalFunc(b Boundary, margin time.Duration) func(now time.Time) time.Duration {
	return func(now time.Time) time.Duration {
		d := NextRefreshInterval(b, now, margin)
		if d <= 0 {
			return margin
		}
		return d
	}
}

// Cadence is a set of minute marks repeated every hour in a reference
// location, e.g. {0, 15, 30, 45}.
type Cadence struct {
	minutes  []int
	location *time.Location
}

// NewCadence validates and sorts the minute marks
func NewCadence(loc *time.Location, minutes ...int) (*Cadence, error) {
	if len(minutes) == 0 {
		return nil, fmt.Errorf("cadence needs at least one minute mark")
	}
	if loc == nil {
		loc = time.UTC
	}

	marks := append([]int(nil), minutes...)
	sort.Ints(marks)
	for i, m := range marks {
		if m < 0 || m > 59 {
			return nil, fmt.Errorf("minute mark %d out of range", m)
		}
		if i > 0 && marks[i-1] == m {
			return nil, fmt.Errorf("duplicate minute mark %d", m)
		}
	}

	return &Cadence{minutes: marks, location: loc}, nil
}

// QuarterHourly returns the {:00, :15, :30, :45} cadence
func QuarterHourly(loc *time.Location) *Cadence {
	c, _ := NewCadence(loc, 0, 15, 30, 45)
	return c
}

// Next implements Boundary
func (c *Cadence) Next(now time.Time) time.Time {
	local := now.In(c.location)
	hourStart := time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, c.location)

	// Walk the current hour and the next one; one of them always has a later mark
	for h := 0; h < 2; h++ {
		base := hourStart.Add(time.Duration(h) * time.Hour)
		for _, m := range c.minutes {
			candidate := base.Add(time.Duration(m) * time.Minute)
			if candidate.After(now) {
				return candidate
			}
		}
	}

	// Unreachable for valid cadences
	return hourStart.Add(2 * time.Hour)
}

// DailyAt is a single cutover time per day in a reference location, e.g. the
// 13:30 Europe/Madrid day-ahead publication.
type DailyAt struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// Next implements Boundary
func (d DailyAt) Next(now time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}

	local := now.In(loc)
	candidate := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	if !candidate.After(now) {
		candidate = time.Date(local.Year(), local.Month(), local.Day()+1, d.Hour, d.Minute, 0, 0, loc)
	}
	return candidate
}

// Reached reports whether now is at or after today's cutover in the reference location
func (d DailyAt) Reached(now time.Time) bool {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := now.In(loc)
	cutover := time.Date(local.Year(), local.Month(), local.Day(), d.Hour, d.Minute, 0, 0, loc)
	return !now.Before(cutover)
}

// String renders the cutover as HH:MM Zone
func (d DailyAt) String() string {
	name := "UTC"
	if d.Location != nil {
		name = d.Location.String()
	}
	return fmt.Sprintf("%02d:%02d %s", d.Hour, d.Minute, name)
}

// Earliest combines boundaries, returning the soonest of them
func Earliest(boundaries ...Boundary) Boundary {
	return BoundaryFunc(func(now time.Time) time.Time {
		var best time.Time
		for _, b := range boundaries {
			next := b.Next(now)
			if !next.After(now) {
				continue
			}
			if best.IsZero() || next.Before(best) {
				best = next
			}
		}
		return best
	})
}
