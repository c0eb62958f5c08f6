package jewishcalendar

import (
	"fmt"
	"time"

	"haintegrations/internal/jewishcalendar/hdate"
)

// HolidayType classifies a holiday
type HolidayType string

const (
	TypeYomTov      HolidayType = "yom_tov"
	TypeErevYomTov  HolidayType = "erev_yom_tov"
	TypeHolHamoed   HolidayType = "hol_hamoed"
	TypeMelachaFast HolidayType = "melacha_permitted_fast"
	TypeMinor       HolidayType = "minor_holiday"
	TypeRoshChodesh HolidayType = "rosh_chodesh"
)

// Holiday is one observance falling on a Hebrew date
type Holiday struct {
	Name string
	Type HolidayType
}

// IsYomTov reports whether work is forbidden on the holiday
func (h Holiday) IsYomTov() bool {
	return h.Type == TypeYomTov
}

type fixedHoliday struct {
	month hdate.Month
	day   int
	name  string
	typ   HolidayType
	// diaspora restricts the entry to diaspora (true) or Israel (false)
	diaspora *bool
}

var (
	inDiaspora = boolRef(true)
	inIsrael   = boolRef(false)
)

func boolRef(v bool) *bool { return &v }

var fixedHolidays = []fixedHoliday{
	{month: hdate.Elul, day: 29, name: "Erev Rosh Hashana", typ: TypeErevYomTov},
	{month: hdate.Tishri, day: 1, name: "Rosh Hashana I", typ: TypeYomTov},
	{month: hdate.Tishri, day: 2, name: "Rosh Hashana II", typ: TypeYomTov},
	{month: hdate.Tishri, day: 9, name: "Erev Yom Kippur", typ: TypeErevYomTov},
	{month: hdate.Tishri, day: 10, name: "Yom Kippur", typ: TypeYomTov},
	{month: hdate.Tishri, day: 14, name: "Erev Sukkot", typ: TypeErevYomTov},
	{month: hdate.Tishri, day: 15, name: "Sukkot I", typ: TypeYomTov},
	{month: hdate.Tishri, day: 16, name: "Sukkot II", typ: TypeYomTov, diaspora: inDiaspora},
	{month: hdate.Tishri, day: 16, name: "Hol HaMoed Sukkot", typ: TypeHolHamoed, diaspora: inIsrael},
	{month: hdate.Tishri, day: 17, name: "Hol HaMoed Sukkot", typ: TypeHolHamoed},
	{month: hdate.Tishri, day: 18, name: "Hol HaMoed Sukkot", typ: TypeHolHamoed},
	{month: hdate.Tishri, day: 19, name: "Hol HaMoed Sukkot", typ: TypeHolHamoed},
	{month: hdate.Tishri, day: 20, name: "Hol HaMoed Sukkot", typ: TypeHolHamoed},
	{month: hdate.Tishri, day: 21, name: "Hoshana Raba", typ: TypeErevYomTov},
	{month: hdate.Tishri, day: 22, name: "Shemini Atzeret", typ: TypeYomTov, diaspora: inDiaspora},
	{month: hdate.Tishri, day: 22, name: "Shemini Atzeret & Simchat Torah", typ: TypeYomTov, diaspora: inIsrael},
	{month: hdate.Tishri, day: 23, name: "Simchat Torah", typ: TypeYomTov, diaspora: inDiaspora},
	{month: hdate.Tevet, day: 10, name: "Asara B'Tevet", typ: TypeMelachaFast},
	{month: hdate.Shvat, day: 15, name: "Tu B'Shvat", typ: TypeMinor},
	{month: hdate.Nisan, day: 14, name: "Erev Pesach", typ: TypeErevYomTov},
	{month: hdate.Nisan, day: 15, name: "Pesach I", typ: TypeYomTov},
	{month: hdate.Nisan, day: 16, name: "Pesach II", typ: TypeYomTov, diaspora: inDiaspora},
	{month: hdate.Nisan, day: 16, name: "Hol HaMoed Pesach", typ: TypeHolHamoed, diaspora: inIsrael},
	{month: hdate.Nisan, day: 17, name: "Hol HaMoed Pesach", typ: TypeHolHamoed},
	{month: hdate.Nisan, day: 18, name: "Hol HaMoed Pesach", typ: TypeHolHamoed},
	{month: hdate.Nisan, day: 19, name: "Hol HaMoed Pesach", typ: TypeHolHamoed},
	{month: hdate.Nisan, day: 20, name: "Hol HaMoed Pesach", typ: TypeHolHamoed},
	{month: hdate.Nisan, day: 21, name: "Pesach VII", typ: TypeYomTov},
	{month: hdate.Nisan, day: 22, name: "Pesach VIII", typ: TypeYomTov, diaspora: inDiaspora},
	{month: hdate.Iyyar, day: 18, name: "Lag BaOmer", typ: TypeMinor},
	{month: hdate.Sivan, day: 5, name: "Erev Shavuot", typ: TypeErevYomTov},
	{month: hdate.Sivan, day: 6, name: "Shavuot I", typ: TypeYomTov},
	{month: hdate.Sivan, day: 7, name: "Shavuot II", typ: TypeYomTov, diaspora: inDiaspora},
	{month: hdate.Av, day: 15, name: "Tu B'Av", typ: TypeMinor},
}

// Holidays returns the observances of a Hebrew date
func Holidays(d hdate.Date, diaspora bool) []Holiday {
	var out []Holiday
	for _, h := range fixedHolidays {
		if h.month != d.Month || h.day != d.Day {
			continue
		}
		if h.diaspora != nil && *h.diaspora != diaspora {
			continue
		}
		out = append(out, Holiday{Name: h.name, Type: h.typ})
	}

	out = append(out, postponedFasts(d)...)
	out = append(out, purim(d)...)

	if day := ChanukahDay(d); day > 0 {
		out = append(out, Holiday{Name: fmt.Sprintf("Chanukah, day %d", day), Type: TypeMinor})
	}
	if d.Day == 30 || (d.Day == 1 && d.Month != hdate.Tishri) {
		out = append(out, Holiday{Name: "Rosh Chodesh " + roshChodeshMonth(d), Type: TypeRoshChodesh})
	}
	return out
}

// postponedFasts handles fasts that move off Shabbat. Tzom Gedaliah,
// 17 Tammuz and Tisha B'Av move to Sunday.
func postponedFasts(d hdate.Date) []Holiday {
	type fast struct {
		month hdate.Month
		day   int
		name  string
	}
	fasts := []fast{
		{hdate.Tishri, 3, "Tzom Gedaliah"},
		{hdate.Tammuz, 17, "Tzom Tammuz"},
		{hdate.Av, 9, "Tisha B'Av"},
	}
	var out []Holiday
	for _, f := range fasts {
		nominal := hdate.Date{Year: d.Year, Month: f.month, Day: f.day}
		observed := nominal
		if nominal.Weekday() == time.Saturday {
			observed = nominal.AddDays(1)
		}
		if observed == d {
			out = append(out, Holiday{Name: f.name, Type: TypeMelachaFast})
		}
	}
	return out
}

// purimMonth is Adar, or Adar II in a leap year
func purimMonth(year int) hdate.Month {
	if hdate.IsLeapYear(year) {
		return hdate.AdarII
	}
	return hdate.Adar
}

func purim(d hdate.Date) []Holiday {
	var out []Holiday
	month := purimMonth(d.Year)

	// Ta'anit Esther moves back to Thursday when 13 Adar is Shabbat
	esther := hdate.Date{Year: d.Year, Month: month, Day: 13}
	if esther.Weekday() == time.Saturday {
		esther = esther.AddDays(-2)
	}
	if esther == d {
		out = append(out, Holiday{Name: "Ta'anit Esther", Type: TypeMelachaFast})
	}

	if d.Month == month {
		switch d.Day {
		case 14:
			out = append(out, Holiday{Name: "Purim", Type: TypeMinor})
		case 15:
			out = append(out, Holiday{Name: "Shushan Purim", Type: TypeMinor})
		}
	}
	if hdate.IsLeapYear(d.Year) && d.Month == hdate.Adar && d.Day == 14 {
		out = append(out, Holiday{Name: "Purim Katan", Type: TypeMinor})
	}
	return out
}

// ChanukahDay returns 1-8 during Chanukah and 0 otherwise. Chanukah starts on
// 25 Kislev and spills into Tevet by two or three days depending on the
// length of Kislev.
func ChanukahDay(d hdate.Date) int {
	first := hdate.Date{Year: d.Year, Month: hdate.Kislev, Day: 25}
	n := d.Sub(first) + 1
	if n < 1 || n > 8 {
		return 0
	}
	return n
}

func roshChodeshMonth(d hdate.Date) string {
	if d.Day == 30 {
		return d.AddDays(1).MonthName()
	}
	return d.MonthName()
}

// OmerDay returns 1-49 between Pesach and Shavuot, 0 otherwise
func OmerDay(d hdate.Date) int {
	start := hdate.Date{Year: d.Year, Month: hdate.Nisan, Day: 16}
	n := d.Sub(start) + 1
	if n < 1 || n > 49 {
		return 0
	}
	return n
}

// IsRestDay reports whether work is forbidden on the civil day d: Shabbat or
// a yom tov
func IsRestDay(d hdate.Date, diaspora bool) bool {
	if d.Weekday() == time.Saturday {
		return true
	}
	for _, h := range Holidays(d, diaspora) {
		if h.IsYomTov() {
			return true
		}
	}
	return false
}
