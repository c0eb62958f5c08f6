// Package jewishcalendar computes the Hebrew date, holidays, Omer count and
// zmanim for a location. The Hebrew day starts at sunset, so every value is
// derived from the instant of computation rather than the civil date alone.
package jewishcalendar

import (
	"strings"
	"time"

	"haintegrations/internal/jewishcalendar/hdate"
)

// Domain is the integration domain
const Domain = "jewish_calendar"

// rest blocks are searched this many days back and ahead
const (
	blockLookBack  = 3
	blockLookAhead = 30
)

// Snapshot is the calendar state at one instant
type Snapshot struct {
	At time.Time

	// Date is the Hebrew date, advanced by one day after sunset
	Date        hdate.Date
	AfterSunset bool

	Holidays []Holiday
	Omer     int
	Zmanim   Zmanim

	IssurMelacha           bool
	UpcomingCandleLighting time.Time
	UpcomingHavdalah       time.Time
}

// HolidayNames joins the holiday names, or returns "" when there is none
func (s Snapshot) HolidayNames() string {
	names := make([]string, 0, len(s.Holidays))
	for _, h := range s.Holidays {
		names = append(names, h.Name)
	}
	return strings.Join(names, ", ")
}

// HolidayTypes lists the holiday types in the same order as the names
func (s Snapshot) HolidayTypes() []string {
	types := make([]string, 0, len(s.Holidays))
	for _, h := range s.Holidays {
		types = append(types, string(h.Type))
	}
	return types
}

// Service computes snapshots for one location
type Service struct {
	calc     Calculator
	diaspora bool
}

// NewService creates a service
func NewService(calc Calculator, diaspora bool) *Service {
	if calc.Location == nil {
		calc.Location = time.UTC
	}
	return &Service{calc: calc, diaspora: diaspora}
}

// Location returns the local timezone
func (s *Service) Location() *time.Location {
	return s.calc.Location
}

// civilNoon returns noon of a Hebrew date's civil day, away from DST shifts
func (s *Service) civilNoon(d hdate.Date) time.Time {
	return d.Gregorian(s.calc.Location).Add(12 * time.Hour)
}

func (s *Service) isRestDay(d hdate.Date) bool {
	return IsRestDay(d, s.diaspora)
}

// Compute returns the calendar state at now
func (s *Service) Compute(now time.Time) Snapshot {
	local := now.In(s.calc.Location)
	z := s.calc.Day(local)
	civil := hdate.FromGregorian(local)

	snap := Snapshot{At: now, Zmanim: z, Date: civil}
	if z.Valid() && !now.Before(z.Sunset) {
		snap.AfterSunset = true
		snap.Date = civil.AddDays(1)
	}
	snap.Holidays = Holidays(snap.Date, s.diaspora)
	snap.Omer = OmerDay(snap.Date)
	snap.IssurMelacha = s.issurMelacha(now, civil, z)
	snap.UpcomingCandleLighting, snap.UpcomingHavdalah = s.upcomingRestBlock(now, civil)
	return snap
}

// issurMelacha is true from candle lighting before a rest day until tzeit
// at its end
func (s *Service) issurMelacha(now time.Time, civil hdate.Date, z Zmanim) bool {
	todayRest := s.isRestDay(civil)
	if !z.Valid() {
		return todayRest
	}
	if todayRest && now.Before(z.TzeitHakochavim) {
		return true
	}
	return s.isRestDay(civil.AddDays(1)) && !now.Before(z.CandleLighting)
}

// upcomingRestBlock returns candle lighting and havdalah of the current or
// next run of consecutive rest days
func (s *Service) upcomingRestBlock(now time.Time, civil hdate.Date) (time.Time, time.Time) {
	for offset := -blockLookBack; offset < blockLookAhead; offset++ {
		erev := civil.AddDays(offset)
		if s.isRestDay(erev) || !s.isRestDay(erev.AddDays(1)) {
			continue
		}
		last := erev.AddDays(1)
		for s.isRestDay(last.AddDays(1)) {
			last = last.AddDays(1)
		}

		candles := s.calc.Day(s.civilNoon(erev)).CandleLighting
		havdalah := s.calc.Day(s.civilNoon(last)).TzeitHakochavim
		if havdalah.IsZero() || havdalah.After(now) {
			return candles, havdalah
		}
	}
	return time.Time{}, time.Time{}
}

// Next returns the next instant at which a snapshot value changes: sunset,
// candle lighting or tzeit of today or tomorrow. Midnight is covered by the
// caller's daily boundary.
func (s *Service) Next(now time.Time) time.Time {
	local := now.In(s.calc.Location)
	var best time.Time
	for _, day := range []time.Time{local, local.AddDate(0, 0, 1)} {
		z := s.calc.Day(day)
		if !z.Valid() {
			continue
		}
		for _, t := range []time.Time{z.CandleLighting, z.Sunset, z.TzeitHakochavim} {
			if !t.After(now) {
				continue
			}
			if best.IsZero() || t.Before(best) {
				best = t
			}
		}
	}
	return best
}
