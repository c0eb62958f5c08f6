// Package hdate converts between Gregorian and Hebrew calendar dates.
//
// Dates are converted through a day count (rata die, where day 1 is
// 1 January of year 1 in the proleptic Gregorian calendar). The Hebrew year
// starts on 1 Tishri, whose weekday is fixed by the molad of Tishri and the
// four postponement rules.
package hdate

import (
	"fmt"
	"time"
)

// Month is a Hebrew month. Months are numbered from Nisan, as in the Torah;
// the year itself starts at Tishri.
type Month int

const (
	Nisan Month = iota + 1
	Iyyar
	Sivan
	Tammuz
	Av
	Elul
	Tishri
	Cheshvan
	Kislev
	Tevet
	Shvat
	Adar // Adar I in a leap year
	AdarII
)

const (
	// epoch is the day number of 1 Tishri AM 1
	epoch = -1373427

	// unixEpochRD is the day number of 1970-01-01
	unixEpochRD = 719163

	partsPerDay  = 25920
	averageYear  = 35975351.0 / 98496.0
	secondsInDay = 24 * 60 * 60
)

// Date is a day in the Hebrew calendar
type Date struct {
	Year  int
	Month Month
	Day   int
}

// IsLeapYear reports whether year has thirteen months
func IsLeapYear(year int) bool {
	return (7*year+1)%19 < 7
}

// MonthsInYear returns 12 or 13
func MonthsInYear(year int) int {
	if IsLeapYear(year) {
		return 13
	}
	return 12
}

// elapsedDays counts the days from the epoch to the molad-based new year,
// applying the rule that Rosh Hashana never falls on Sunday, Wednesday or
// Friday
func elapsedDays(year int) int {
	months := (235*year - 234) / 19
	parts := 12084 + 13753*months
	days := 29*months + parts/partsPerDay
	if (3*(days+1))%7 < 3 {
		days++
	}
	return days
}

// yearLengthCorrection keeps year lengths within 353-355 and 383-385 days
func yearLengthCorrection(year int) int {
	ny0 := elapsedDays(year - 1)
	ny1 := elapsedDays(year)
	ny2 := elapsedDays(year + 1)
	switch {
	case ny2-ny1 == 356:
		return 2
	case ny1-ny0 == 382:
		return 1
	default:
		return 0
	}
}

// newYear returns the day number of 1 Tishri of year
func newYear(year int) int {
	return epoch + elapsedDays(year) + yearLengthCorrection(year)
}

// DaysInYear returns the length of a Hebrew year
func DaysInYear(year int) int {
	return newYear(year+1) - newYear(year)
}

func longCheshvan(year int) bool {
	return DaysInYear(year)%10 == 5
}

func shortKislev(year int) bool {
	return DaysInYear(year)%10 == 3
}

// DaysInMonth returns 29 or 30
func DaysInMonth(m Month, year int) int {
	switch m {
	case Iyyar, Tammuz, Elul, Tevet, AdarII:
		return 29
	case Adar:
		if !IsLeapYear(year) {
			return 29
		}
	case Cheshvan:
		if !longCheshvan(year) {
			return 29
		}
	case Kislev:
		if shortKislev(year) {
			return 29
		}
	}
	return 30
}

// next returns the month after m within the Hebrew year
func (m Month) next(year int) Month {
	if int(m) >= MonthsInYear(year) {
		return Nisan
	}
	return m + 1
}

// dayNumber returns the day number of d
func (d Date) dayNumber() int {
	n := newYear(d.Year) + d.Day - 1
	if d.Month < Tishri {
		for m := Tishri; int(m) <= MonthsInYear(d.Year); m++ {
			n += DaysInMonth(m, d.Year)
		}
		for m := Nisan; m < d.Month; m++ {
			n += DaysInMonth(m, d.Year)
		}
		return n
	}
	for m := Tishri; m < d.Month; m++ {
		n += DaysInMonth(m, d.Year)
	}
	return n
}

func fromDayNumber(n int) Date {
	approx := int(float64(n-epoch)/averageYear) + 1
	year := approx - 1
	for newYear(year+1) <= n {
		year++
	}

	month := Tishri
	if n >= (Date{Year: year, Month: Nisan, Day: 1}).dayNumber() {
		month = Nisan
	}
	for n > (Date{Year: year, Month: month, Day: DaysInMonth(month, year)}).dayNumber() {
		month = month.next(year)
	}
	day := n - (Date{Year: year, Month: month, Day: 1}).dayNumber() + 1
	return Date{Year: year, Month: month, Day: day}
}

func gregorianDayNumber(t time.Time) int {
	utc := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return int(utc.Unix()/secondsInDay) + unixEpochRD
}

// FromGregorian returns the Hebrew date of the civil day of t, in t's location
func FromGregorian(t time.Time) Date {
	return fromDayNumber(gregorianDayNumber(t))
}

// New validates and returns a Hebrew date
func New(year int, month Month, day int) (Date, error) {
	if year < 1 {
		return Date{}, fmt.Errorf("invalid year %d", year)
	}
	if month < Nisan || int(month) > MonthsInYear(year) {
		return Date{}, fmt.Errorf("invalid month %d in year %d", month, year)
	}
	if day < 1 || day > DaysInMonth(month, year) {
		return Date{}, fmt.Errorf("invalid day %d in %s %d", day, month.Name(year), year)
	}
	return Date{Year: year, Month: month, Day: day}, nil
}

// Gregorian returns the civil date of d at midnight in loc
func (d Date) Gregorian(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	utc := time.Unix(int64(d.dayNumber()-unixEpochRD)*secondsInDay, 0).UTC()
	return time.Date(utc.Year(), utc.Month(), utc.Day(), 0, 0, 0, 0, loc)
}

// AddDays returns the date n days after d
func (d Date) AddDays(n int) Date {
	return fromDayNumber(d.dayNumber() + n)
}

// Sub returns the number of days from other to d
func (d Date) Sub(other Date) int {
	return d.dayNumber() - other.dayNumber()
}

// Weekday returns the day of the week
func (d Date) Weekday() time.Weekday {
	n := d.dayNumber() % 7
	if n < 0 {
		n += 7
	}
	return time.Weekday(n)
}

// IsLeapYear reports whether d falls in a leap year
func (d Date) IsLeapYear() bool {
	return IsLeapYear(d.Year)
}

// MonthName returns the month name, distinguishing Adar I and Adar II
func (d Date) MonthName() string {
	return d.Month.Name(d.Year)
}

// String renders the date as "25 Kislev 5784"
func (d Date) String() string {
	return fmt.Sprintf("%d %s %d", d.Day, d.MonthName(), d.Year)
}
