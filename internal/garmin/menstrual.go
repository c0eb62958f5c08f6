package garmin

import "time"

// MenstrualPhases maps the numeric cycle phase to its name
var MenstrualPhases = map[int]string{
	1: "Menstruation",
	2: "Follicular",
	3: "Ovulation",
	4: "Luteal",
}

// PhaseUnknown is reported for phase numbers outside MenstrualPhases
const PhaseUnknown = "Unknown"

func (d MenstrualData) summary() MenstrualDaySummary {
	if d.DaySummary == nil {
		return MenstrualDaySummary{}
	}
	return *d.DaySummary
}

// Phase returns the phase name, or nil when no phase is reported
func (d MenstrualData) Phase() any {
	s := d.summary()
	if s.CurrentPhase == nil {
		return nil
	}
	if name, ok := MenstrualPhases[*s.CurrentPhase]; ok {
		return name
	}
	return PhaseUnknown
}

// FertileWindowStart is the cycle start plus the 1-based fertile window offset
func (d MenstrualData) FertileWindowStart() any {
	start, ok := d.fertileStart()
	if !ok {
		return nil
	}
	return start.Format(time.DateOnly)
}

// FertileWindowEnd is the last day of the fertile window
func (d MenstrualData) FertileWindowEnd() any {
	start, ok := d.fertileStart()
	if !ok {
		return nil
	}
	length := d.summary().LengthOfFertileWindow
	if length == nil || *length <= 0 {
		return nil
	}
	return start.AddDate(0, 0, *length-1).Format(time.DateOnly)
}

func (d MenstrualData) fertileStart() (time.Time, bool) {
	s := d.summary()
	if s.StartDate == "" || s.FertileWindowStart == nil {
		return time.Time{}, false
	}
	cycleStart, err := time.Parse(time.DateOnly, s.StartDate)
	if err != nil {
		return time.Time{}, false
	}
	return cycleStart.AddDate(0, 0, *s.FertileWindowStart-1), true
}

// NextPredictedCycleStart is the first predicted cycle starting on or after Day
func (d MenstrualData) NextPredictedCycleStart() any {
	today := time.Date(d.Day.Year(), d.Day.Month(), d.Day.Day(), 0, 0, 0, 0, time.UTC)
	for _, cycle := range d.CycleSummaries {
		if !cycle.PredictedCycle || cycle.StartDate == "" {
			continue
		}
		start, err := time.Parse(time.DateOnly, cycle.StartDate)
		if err != nil {
			continue
		}
		if !start.Before(today) {
			return cycle.StartDate
		}
	}
	return nil
}
