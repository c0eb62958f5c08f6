package omie

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseMarginalPrices parses a marginalpdbc file:
//
//	MARGINALPDBC;
//	2025;03;30;1;92.15;92.15;
//	...
//	*
//
// Columns are year, month, day, period, Portugal price, Spain price. date is
// market midnight of the day the file belongs to.
func ParseMarginalPrices(data []byte, date time.Time) (DayResult, error) {
	type row struct {
		period int
		pt, es decimal.Decimal
	}
	var rows []row

	scanner := bufio.NewScanner(bytes.NewReader(data))
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || line == "*" || strings.HasPrefix(strings.ToUpper(line), "MARGINALPDBC") {
			continue
		}

		fields := strings.Split(strings.TrimSuffix(line, ";"), ";")
		if len(fields) < 6 {
			return DayResult{}, fmt.Errorf("line %d: expected 6 fields, got %d", lineNo, len(fields))
		}

		y, errY := strconv.Atoi(strings.TrimSpace(fields[0]))
		m, errM := strconv.Atoi(strings.TrimSpace(fields[1]))
		d, errD := strconv.Atoi(strings.TrimSpace(fields[2]))
		if errY != nil || errM != nil || errD != nil {
			return DayResult{}, fmt.Errorf("line %d: invalid date %q", lineNo, strings.Join(fields[:3], ";"))
		}
		if y != date.Year() || time.Month(m) != date.Month() || d != date.Day() {
			return DayResult{}, fmt.Errorf("line %d: file is for %04d-%02d-%02d, want %s",
				lineNo, y, m, d, date.Format(time.DateOnly))
		}

		period, err := strconv.Atoi(strings.TrimSpace(fields[3]))
		if err != nil || period < 1 {
			return DayResult{}, fmt.Errorf("line %d: invalid period %q", lineNo, fields[3])
		}
		pt, err := parsePrice(fields[4])
		if err != nil {
			return DayResult{}, fmt.Errorf("line %d: portugal price: %w", lineNo, err)
		}
		es, err := parsePrice(fields[5])
		if err != nil {
			return DayResult{}, fmt.Errorf("line %d: spain price: %w", lineNo, err)
		}
		rows = append(rows, row{period: period, pt: pt, es: es})
	}
	if err := scanner.Err(); err != nil {
		return DayResult{}, fmt.Errorf("failed to read price file: %w", err)
	}
	if len(rows) == 0 {
		return DayResult{}, fmt.Errorf("price file for %s has no periods", date.Format(time.DateOnly))
	}

	res := DayResult{
		Date:       date,
		Resolution: resolutionFor(len(rows)),
		Spain:      make([]decimal.Decimal, len(rows)),
		Portugal:   make([]decimal.Decimal, len(rows)),
	}
	seen := make([]bool, len(rows))
	for _, r := range rows {
		idx := r.period - 1
		if idx >= len(rows) || seen[idx] {
			return DayResult{}, fmt.Errorf("unexpected period %d in a %d period file", r.period, len(rows))
		}
		seen[idx] = true
		res.Spain[idx] = r.es
		res.Portugal[idx] = r.pt
	}
	return res, nil
}

// resolutionFor infers the period length: hourly files carry 23 to 25
// periods, quarter-hourly files 92 to 100
func resolutionFor(periods int) time.Duration {
	if periods > 25 {
		return 15 * time.Minute
	}
	return time.Hour
}

func parsePrice(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	return decimal.NewFromString(s)
}
