package hdate

import "strings"

var monthNames = map[Month]string{
	Nisan:    "Nisan",
	Iyyar:    "Iyyar",
	Sivan:    "Sivan",
	Tammuz:   "Tammuz",
	Av:       "Av",
	Elul:     "Elul",
	Tishri:   "Tishrei",
	Cheshvan: "Cheshvan",
	Kislev:   "Kislev",
	Tevet:    "Tevet",
	Shvat:    "Sh'vat",
	Adar:     "Adar",
	AdarII:   "Adar II",
}

var hebrewMonthNames = map[Month]string{
	Nisan:    "ניסן",
	Iyyar:    "אייר",
	Sivan:    "סיון",
	Tammuz:   "תמוז",
	Av:       "אב",
	Elul:     "אלול",
	Tishri:   "תשרי",
	Cheshvan: "חשון",
	Kislev:   "כסלו",
	Tevet:    "טבת",
	Shvat:    "שבט",
	Adar:     "אדר",
	AdarII:   "אדר ב׳",
}

// Name returns the English month name. Adar is "Adar I" in a leap year.
func (m Month) Name(year int) string {
	if m == Adar && IsLeapYear(year) {
		return "Adar I"
	}
	if name, ok := monthNames[m]; ok {
		return name
	}
	return "Unknown"
}

// HebrewName returns the month name in Hebrew
func (m Month) HebrewName(year int) string {
	if m == Adar && IsLeapYear(year) {
		return "אדר א׳"
	}
	return hebrewMonthNames[m]
}

// Hebrew renders the date in Hebrew letters, e.g. "כ״ה כסלו תשפ״ד"
func (d Date) Hebrew() string {
	return Gematria(d.Day) + " " + d.Month.HebrewName(d.Year) + " " + Gematria(d.Year%1000)
}

var (
	hundreds = []string{"", "ק", "ר", "ש", "ת"}
	tens     = []string{"", "י", "כ", "ל", "מ", "נ", "ס", "ע", "פ", "צ"}
	units    = []string{"", "א", "ב", "ג", "ד", "ה", "ו", "ז", "ח", "ט"}
)

// Gematria writes n (1-999) in Hebrew numerals with geresh or gershayim
func Gematria(n int) string {
	if n <= 0 || n >= 1000 {
		return ""
	}

	var letters []string
	h := n / 100
	for h > 4 {
		letters = append(letters, hundreds[4])
		h -= 4
	}
	if h > 0 {
		letters = append(letters, hundreds[h])
	}

	rest := n % 100
	// 15 and 16 avoid spelling the divine name
	switch rest {
	case 15:
		letters = append(letters, "ט", "ו")
	case 16:
		letters = append(letters, "ט", "ז")
	default:
		if rest/10 > 0 {
			letters = append(letters, tens[rest/10])
		}
		if rest%10 > 0 {
			letters = append(letters, units[rest%10])
		}
	}

	if len(letters) == 1 {
		return letters[0] + "׳"
	}
	last := len(letters) - 1
	return strings.Join(letters[:last], "") + "״" + letters[last]
}
