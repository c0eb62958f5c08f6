package omie

import (
	"time"

	"haintegrations/internal/entity"

	"github.com/shopspring/decimal"
)

const unitEURPerKWh = "€/kWh"

var kwhPrecision = entity.Digits(4)

func kwh(p decimal.Decimal, ok bool) any {
	if !ok {
		return nil
	}
	return ToKWh(p)
}

func dayStat(day *DayResult, stat func(DayResult, Area) (decimal.Decimal, bool), area Area) any {
	if day == nil {
		return nil
	}
	return kwh(stat(*day, area))
}

// priceList renders a day as period start → EUR/kWh, for attributes
func priceList(day *DayResult, area Area) []map[string]any {
	if day == nil {
		return nil
	}
	prices := day.Prices(area)
	out := make([]map[string]any, 0, len(prices))
	for i, p := range prices {
		out = append(out, map[string]any{
			"start": day.Date.Add(time.Duration(i) * day.Resolution).Format(time.RFC3339),
			"price": ToKWh(p).Round(5).InexactFloat64(),
		})
	}
	return out
}

func currentDesc(area Area, key, name string) entity.Description[Snapshot] {
	return entity.Description[Snapshot]{
		Key:         key,
		Name:        name,
		Unit:        unitEURPerKWh,
		DeviceClass: "monetary",
		StateClass:  "measurement",
		Precision:   kwhPrecision,
		Icon:        "mdi:currency-eur",
		ValueFn:     func(s Snapshot) any { return kwh(s.Current(area)) },
		AttributesFn: func(s Snapshot) map[string]any {
			attrs := map[string]any{}
			if today := priceList(s.Today, area); today != nil {
				attrs["today"] = today
			}
			if tomorrow := priceList(s.Tomorrow, area); tomorrow != nil {
				attrs["tomorrow"] = tomorrow
			}
			if s.Today != nil {
				attrs["resolution_minutes"] = int(s.Today.Resolution / time.Minute)
			}
			return attrs
		},
		EnabledByDefault: true,
	}
}

func statDesc(key, name string, enabled bool, value func(Snapshot) any) entity.Description[Snapshot] {
	return entity.Description[Snapshot]{
		Key:              key,
		Name:             name,
		Unit:             unitEURPerKWh,
		DeviceClass:      "monetary",
		Precision:        kwhPrecision,
		Icon:             "mdi:chart-line",
		ValueFn:          value,
		EnabledByDefault: enabled,
	}
}

// Sensors are the price entities. Tomorrow's values stay unknown until
// published and are never carried over from a previous day.
var Sensors = []entity.Description[Snapshot]{
	currentDesc(AreaSpain, "spot_price_es", "Spain spot price"),
	currentDesc(AreaPortugal, "spot_price_pt", "Portugal spot price"),

	statDesc("today_average_es", "Spain average price today", true,
		func(s Snapshot) any { return dayStat(s.Today, DayResult.Average, AreaSpain) }),
	statDesc("today_min_es", "Spain minimum price today", true,
		func(s Snapshot) any { return dayStat(s.Today, DayResult.Min, AreaSpain) }),
	statDesc("today_max_es", "Spain maximum price today", true,
		func(s Snapshot) any { return dayStat(s.Today, DayResult.Max, AreaSpain) }),
	statDesc("today_average_pt", "Portugal average price today", false,
		func(s Snapshot) any { return dayStat(s.Today, DayResult.Average, AreaPortugal) }),
	statDesc("tomorrow_average_es", "Spain average price tomorrow", true,
		func(s Snapshot) any { return dayStat(s.Tomorrow, DayResult.Average, AreaSpain) }),
	statDesc("tomorrow_average_pt", "Portugal average price tomorrow", false,
		func(s Snapshot) any { return dayStat(s.Tomorrow, DayResult.Average, AreaPortugal) }),
	statDesc("yesterday_average_es", "Spain average price yesterday", false,
		func(s Snapshot) any { return dayStat(s.Yesterday, DayResult.Average, AreaSpain) }),
}
