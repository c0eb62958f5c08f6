// Package omie publishes the Iberian day-ahead market (OMIE) marginal
// prices. Prices for a market day are published once, the day before, shortly
// after the 13:00 CET auction; the coordinator therefore refreshes on quarter
// hour ticks for the current price and once more at the publication cutoff to
// pick up tomorrow.
package omie

import (
	"time"

	"github.com/shopspring/decimal"
)

// Domain is the integration domain
const Domain = "omie"

// MarketTimezone is the reference timezone of the market day
const MarketTimezone = "Europe/Madrid"

// Publication cutoff in market time. Tomorrow's prices are never requested
// before it.
const (
	CutoffHour   = 13
	CutoffMinute = 30
)

// Area is a bidding zone of the Iberian market
type Area string

const (
	AreaSpain    Area = "ES"
	AreaPortugal Area = "PT"
)

var mwhPerKWh = decimal.NewFromInt(1000)

// DayResult holds the marginal prices of one market day in EUR/MWh. Period i
// (0-based) starts Resolution*i after market midnight, measured in absolute
// time, so DST days carry 23 or 25 hourly periods (92 or 100 quarter hours).
type DayResult struct {
	Date       time.Time
	Resolution time.Duration
	Spain      []decimal.Decimal
	Portugal   []decimal.Decimal
}

// Periods returns the number of price periods in the day
func (d DayResult) Periods() int {
	return len(d.Spain)
}

// Complete reports whether the day carries a full set of prices
func (d DayResult) Complete() bool {
	n := d.Periods()
	if n == 0 || len(d.Portugal) != n || d.Resolution <= 0 {
		return false
	}
	expected := int(d.End().Sub(d.Date) / d.Resolution)
	return n == expected
}

// End is market midnight of the following day
func (d DayResult) End() time.Time {
	return time.Date(d.Date.Year(), d.Date.Month(), d.Date.Day()+1, 0, 0, 0, 0, d.Date.Location())
}

// Prices returns the prices of one area
func (d DayResult) Prices(area Area) []decimal.Decimal {
	if area == AreaPortugal {
		return d.Portugal
	}
	return d.Spain
}

// PriceAt returns the price in force at t
func (d DayResult) PriceAt(area Area, t time.Time) (decimal.Decimal, bool) {
	prices := d.Prices(area)
	if t.Before(d.Date) || d.Resolution <= 0 {
		return decimal.Decimal{}, false
	}
	idx := int(t.Sub(d.Date) / d.Resolution)
	if idx >= len(prices) {
		return decimal.Decimal{}, false
	}
	return prices[idx], true
}

// Average returns the mean price of the day
func (d DayResult) Average(area Area) (decimal.Decimal, bool) {
	prices := d.Prices(area)
	if len(prices) == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.Avg(prices[0], prices[1:]...), true
}

// Min returns the lowest price of the day
func (d DayResult) Min(area Area) (decimal.Decimal, bool) {
	prices := d.Prices(area)
	if len(prices) == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.Min(prices[0], prices[1:]...), true
}

// Max returns the highest price of the day
func (d DayResult) Max(area Area) (decimal.Decimal, bool) {
	prices := d.Prices(area)
	if len(prices) == 0 {
		return decimal.Decimal{}, false
	}
	return decimal.Max(prices[0], prices[1:]...), true
}

// Snapshot is what the coordinator publishes after each refresh. Days that
// are not available are nil.
type Snapshot struct {
	At        time.Time
	Yesterday *DayResult
	Today     *DayResult
	Tomorrow  *DayResult
}

// Current returns the price in force at the snapshot time
func (s Snapshot) Current(area Area) (decimal.Decimal, bool) {
	if s.Today == nil {
		return decimal.Decimal{}, false
	}
	return s.Today.PriceAt(area, s.At)
}

// ToKWh converts a EUR/MWh price to EUR/kWh
func ToKWh(p decimal.Decimal) decimal.Decimal {
	return p.Div(mwhPerKWh)
}
