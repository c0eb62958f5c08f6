package jewishcalendar

import (
	"time"

	"haintegrations/internal/entity"
)

func timestampDesc(key, name, icon string, enabled bool, value func(Snapshot) time.Time) entity.Description[Snapshot] {
	return entity.Description[Snapshot]{
		Key:              key,
		Name:             name,
		Kind:             entity.KindTimestamp,
		DeviceClass:      "timestamp",
		Icon:             icon,
		ValueFn:          func(s Snapshot) any { return value(s) },
		EnabledByDefault: enabled,
	}
}

// Sensors are the calendar entities. Zmanim are those of the civil day, so
// they do not move at sunset with the Hebrew date.
var Sensors = []entity.Description[Snapshot]{
	{
		Key:     "date",
		Name:    "Date",
		Kind:    entity.KindText,
		Icon:    "mdi:star-david",
		ValueFn: func(s Snapshot) any { return s.Date.String() },
		AttributesFn: func(s Snapshot) map[string]any {
			return map[string]any{
				"hebrew":       s.Date.Hebrew(),
				"year":         s.Date.Year,
				"month_name":   s.Date.MonthName(),
				"day":          s.Date.Day,
				"after_sunset": s.AfterSunset,
			}
		},
		EnabledByDefault: true,
	},
	{
		Key:  "holiday",
		Name: "Holiday",
		Kind: entity.KindText,
		Icon: "mdi:calendar-star",
		ValueFn: func(s Snapshot) any {
			if names := s.HolidayNames(); names != "" {
				return names
			}
			return nil
		},
		AttributesFn: func(s Snapshot) map[string]any {
			return map[string]any{"types": s.HolidayTypes()}
		},
		EnabledByDefault: true,
	},
	{
		Key:  "omer_count",
		Name: "Day of the Omer",
		Icon: "mdi:counter",
		ValueFn: func(s Snapshot) any {
			return s.Omer
		},
		EnabledByDefault: false,
	},
	{
		Key:              "issur_melacha_in_effect",
		Name:             "Issur melacha in effect",
		Kind:             entity.KindBinary,
		Icon:             "mdi:power-plug-off",
		ValueFn:          func(s Snapshot) any { return s.IssurMelacha },
		EnabledByDefault: true,
	},

	timestampDesc("upcoming_candle_lighting", "Upcoming candle lighting", "mdi:candle", true,
		func(s Snapshot) time.Time { return s.UpcomingCandleLighting }),
	timestampDesc("upcoming_havdalah", "Upcoming havdalah", "mdi:weather-night", true,
		func(s Snapshot) time.Time { return s.UpcomingHavdalah }),

	timestampDesc("alot_hashachar", "Alot hashachar", "mdi:weather-sunset-up", false,
		func(s Snapshot) time.Time { return s.Zmanim.AlotHashachar }),
	timestampDesc("netz_hachama", "Sunrise", "mdi:calendar-clock", true,
		func(s Snapshot) time.Time { return s.Zmanim.Sunrise }),
	timestampDesc("sof_zman_shma_gra", "Latest time for Shma (GRA)", "mdi:calendar-clock", false,
		func(s Snapshot) time.Time { return s.Zmanim.SofZmanShma }),
	timestampDesc("sof_zman_tfilla_gra", "Latest time for Tefilla (GRA)", "mdi:calendar-clock", false,
		func(s Snapshot) time.Time { return s.Zmanim.SofZmanTfilla }),
	timestampDesc("chatzot_hayom", "Midday", "mdi:calendar-clock", false,
		func(s Snapshot) time.Time { return s.Zmanim.Chatzot }),
	timestampDesc("mincha_gedola", "Mincha gedola", "mdi:calendar-clock", false,
		func(s Snapshot) time.Time { return s.Zmanim.MinchaGedola }),
	timestampDesc("mincha_ketana", "Mincha ketana", "mdi:calendar-clock", false,
		func(s Snapshot) time.Time { return s.Zmanim.MinchaKetana }),
	timestampDesc("plag_hamincha", "Plag hamincha", "mdi:weather-sunset-down", false,
		func(s Snapshot) time.Time { return s.Zmanim.PlagHamincha }),
	timestampDesc("shkia", "Sunset", "mdi:weather-sunset", true,
		func(s Snapshot) time.Time { return s.Zmanim.Sunset }),
	timestampDesc("tset_hakohavim", "Nightfall", "mdi:weather-night", false,
		func(s Snapshot) time.Time { return s.Zmanim.TzeitHakochavim }),
}
