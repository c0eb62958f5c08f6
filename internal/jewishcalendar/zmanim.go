package jewishcalendar

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
)

const (
	// DefaultCandleLightingOffset is the time before sunset candles are lit
	DefaultCandleLightingOffset = 18 * time.Minute

	// DefaultHavdalahOffset is the time after sunset three stars are out
	DefaultHavdalahOffset = 50 * time.Minute

	alotOffset = 72 * time.Minute
)

// Zmanim are the halachic times of one civil day. All times are zero when
// the sun does not rise or set that day.
type Zmanim struct {
	Date            time.Time
	AlotHashachar   time.Time
	Sunrise         time.Time
	SofZmanShma     time.Time
	SofZmanTfilla   time.Time
	Chatzot         time.Time
	MinchaGedola    time.Time
	MinchaKetana    time.Time
	PlagHamincha    time.Time
	Sunset          time.Time
	TzeitHakochavim time.Time
	CandleLighting  time.Time
}

// Valid reports whether the sun rises and sets on the day
func (z Zmanim) Valid() bool {
	return !z.Sunrise.IsZero() && !z.Sunset.IsZero()
}

// ShaahZmanit is one twelfth of the daylight period (GRA)
func (z Zmanim) ShaahZmanit() time.Duration {
	if !z.Valid() {
		return 0
	}
	return z.Sunset.Sub(z.Sunrise) / 12
}

// Calculator computes zmanim for a fixed location
type Calculator struct {
	Latitude       float64
	Longitude      float64
	Location       *time.Location
	CandleLighting time.Duration
	Havdalah       time.Duration
}

// SunriseSunset returns the sun times of the civil day of t
func (c Calculator) SunriseSunset(t time.Time) (time.Time, time.Time) {
	local := t.In(c.loc())
	rise, set := sunrise.SunriseSunset(c.Latitude, c.Longitude, local.Year(), local.Month(), local.Day())
	if rise.IsZero() || set.IsZero() {
		return time.Time{}, time.Time{}
	}
	return rise.In(c.loc()), set.In(c.loc())
}

func (c Calculator) loc() *time.Location {
	if c.Location == nil {
		return time.UTC
	}
	return c.Location
}

// Day returns the zmanim of the civil day of t
func (c Calculator) Day(t time.Time) Zmanim {
	local := t.In(c.loc())
	z := Zmanim{Date: time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, c.loc())}

	rise, set := c.SunriseSunset(local)
	if rise.IsZero() {
		return z
	}
	shaah := set.Sub(rise) / 12
	at := func(hours float64) time.Time {
		return rise.Add(time.Duration(hours * float64(shaah)))
	}

	z.Sunrise = rise
	z.Sunset = set
	z.AlotHashachar = rise.Add(-alotOffset)
	z.SofZmanShma = at(3)
	z.SofZmanTfilla = at(4)
	z.Chatzot = at(6)
	z.MinchaGedola = at(6.5)
	z.MinchaKetana = at(9.5)
	z.PlagHamincha = at(10.75)
	z.TzeitHakochavim = set.Add(c.havdalah())
	z.CandleLighting = set.Add(-c.candleLighting())
	return z
}

func (c Calculator) candleLighting() time.Duration {
	if c.CandleLighting <= 0 {
		return DefaultCandleLightingOffset
	}
	return c.CandleLighting
}

func (c Calculator) havdalah() time.Duration {
	if c.Havdalah <= 0 {
		return DefaultHavdalahOffset
	}
	return c.Havdalah
}
