package garmin

import (
	"math"

	"haintegrations/internal/entity"
)

func minutesFromSeconds(v *int) any {
	if v == nil {
		return nil
	}
	return int(math.Round(float64(*v) / 60))
}

func kilogramsFromGrams(v *float64) any {
	if v == nil {
		return nil
	}
	return *v / 1000
}

func kilometersFromMeters(v *float64) any {
	if v == nil {
		return nil
	}
	return *v / 1000
}

// dropNil removes nil and empty values so attributes only carry what was reported
func dropNil(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch val := v.(type) {
		case nil:
			continue
		case *int:
			if val == nil {
				continue
			}
			out[k] = *val
		case *float64:
			if val == nil {
				continue
			}
			out[k] = *val
		case string:
			if val == "" {
				continue
			}
			out[k] = val
		default:
			out[k] = v
		}
	}
	return out
}

// CoreSensors are backed by the core coordinator
var CoreSensors = []entity.Description[CoreData]{
	{Key: "total_steps", Name: "Total steps", Unit: "steps", StateClass: "total", Icon: "mdi:walk",
		Field: func(d CoreData) any { return d.TotalSteps }, PreserveValue: true, EnabledByDefault: true},
	{Key: "daily_step_goal", Name: "Daily step goal", Unit: "steps", Icon: "mdi:walk",
		Field: func(d CoreData) any { return d.DailyStepGoal }, EnabledByDefault: true},
	{Key: "yesterday_steps", Name: "Yesterday steps", Unit: "steps", Icon: "mdi:walk",
		Field: func(d CoreData) any { return d.YesterdaySteps }},
	{Key: "weekly_step_avg", Name: "Weekly step average", Unit: "steps", Icon: "mdi:walk",
		Field: func(d CoreData) any { return d.WeeklyStepAvg }},
	{Key: "total_distance", Name: "Total distance", Unit: "km", DeviceClass: "distance", StateClass: "total",
		Precision: entity.Digits(2), Icon: "mdi:map-marker-distance",
		ValueFn: func(d CoreData) any { return kilometersFromMeters(d.TotalDistanceMeters) }, PreserveValue: true, EnabledByDefault: true},
	{Key: "floors_ascended", Name: "Floors ascended", Unit: "floors", StateClass: "total", Icon: "mdi:stairs-up",
		Field: func(d CoreData) any { return d.FloorsAscended }, EnabledByDefault: true},
	{Key: "floors_descended", Name: "Floors descended", Unit: "floors", StateClass: "total", Icon: "mdi:stairs-down",
		Field: func(d CoreData) any { return d.FloorsDescended }},
	{Key: "floors_ascended_goal", Name: "Floors ascended goal", Unit: "floors", Icon: "mdi:stairs",
		Field: func(d CoreData) any { return d.UserFloorsAscendedGoal }},

	{Key: "total_calories", Name: "Total calories", Unit: "kcal", StateClass: "total", Icon: "mdi:food",
		Field: func(d CoreData) any { return d.TotalKilocalories }, EnabledByDefault: true},
	{Key: "active_calories", Name: "Active calories", Unit: "kcal", StateClass: "total", Icon: "mdi:food",
		Field: func(d CoreData) any { return d.ActiveKilocalories }, EnabledByDefault: true},
	{Key: "bmr_calories", Name: "BMR calories", Unit: "kcal", StateClass: "total", Icon: "mdi:food",
		Field: func(d CoreData) any { return d.BMRKilocalories }},

	{Key: "resting_heart_rate", Name: "Resting heart rate", Unit: "bpm", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return d.RestingHeartRate }, EnabledByDefault: true},
	{Key: "max_heart_rate", Name: "Max heart rate", Unit: "bpm", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return d.MaxHeartRate }},
	{Key: "min_heart_rate", Name: "Min heart rate", Unit: "bpm", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return d.MinHeartRate }},
	{Key: "last_7_days_avg_resting_heart_rate", Name: "Last 7 days avg resting heart rate", Unit: "bpm", Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return d.LastSevenDaysAvgRestingHeartRate }},
	{Key: "hrv_status", Name: "HRV status", Kind: entity.KindText, Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return nilIfEmpty(d.HRVStatusText) }, PreserveValue: true},
	{Key: "hrv_weekly_avg", Name: "HRV weekly average", Unit: "ms", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return d.HRVWeeklyAvg }, PreserveValue: true},
	{Key: "hrv_last_night_avg", Name: "HRV last night average", Unit: "ms", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field: func(d CoreData) any { return d.HRVLastNightAvg }, PreserveValue: true},

	{Key: "avg_stress_level", Name: "Average stress level", Unit: "lvl", StateClass: "measurement", Icon: "mdi:flash-alert",
		Field: func(d CoreData) any { return d.AverageStressLevel }, PreserveValue: true, EnabledByDefault: true},
	{Key: "max_stress_level", Name: "Max stress level", Unit: "lvl", StateClass: "measurement", Icon: "mdi:flash-alert",
		Field: func(d CoreData) any { return d.MaxStressLevel }, PreserveValue: true},
	{Key: "stress_qualifier", Name: "Stress qualifier", Kind: entity.KindText, Icon: "mdi:flash-alert",
		Field: func(d CoreData) any { return nilIfEmpty(d.StressQualifierText) }},
	{Key: "total_stress_duration", Name: "Total stress duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash-alert",
		ValueFn: func(d CoreData) any { return minutesFromSeconds(d.StressDuration) }},
	{Key: "rest_stress_duration", Name: "Rest stress duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash-alert",
		ValueFn: func(d CoreData) any { return minutesFromSeconds(d.RestStressDuration) }},
	{Key: "activity_stress_duration", Name: "Activity stress duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash-alert",
		ValueFn: func(d CoreData) any { return minutesFromSeconds(d.ActivityStressDuration) }, PreserveValue: true},
	{Key: "low_stress_duration", Name: "Low stress duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash-alert",
		ValueFn: func(d CoreData) any { return minutesFromSeconds(d.LowStressDuration) }},
	{Key: "medium_stress_duration", Name: "Medium stress duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash-alert",
		ValueFn: func(d CoreData) any { return minutesFromSeconds(d.MediumStressDuration) }},
	{Key: "high_stress_duration", Name: "High stress duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash-alert",
		ValueFn: func(d CoreData) any { return minutesFromSeconds(d.HighStressDuration) }, PreserveValue: true},

	{Key: "total_sleep_duration", Name: "Total sleep duration", Unit: "min", DeviceClass: "duration", Icon: "mdi:sleep",
		Field: func(d CoreData) any { return d.SleepTimeMinutes }, PreserveValue: true, EnabledByDefault: true},
	{Key: "sleep_score", Name: "Sleep score", StateClass: "measurement", Icon: "mdi:sleep",
		Field: func(d CoreData) any { return d.SleepScore }, PreserveValue: true, EnabledByDefault: true},
	{Key: "deep_sleep", Name: "Deep sleep", Unit: "min", DeviceClass: "duration", Icon: "mdi:sleep",
		Field: func(d CoreData) any { return d.DeepSleepMinutes }, PreserveValue: true},
	{Key: "light_sleep", Name: "Light sleep", Unit: "min", DeviceClass: "duration", Icon: "mdi:sleep",
		Field: func(d CoreData) any { return d.LightSleepMinutes }, PreserveValue: true},
	{Key: "rem_sleep", Name: "REM sleep", Unit: "min", DeviceClass: "duration", Icon: "mdi:sleep",
		Field: func(d CoreData) any { return d.RemSleepMinutes }, PreserveValue: true},
	{Key: "awake_sleep", Name: "Awake during sleep", Unit: "min", DeviceClass: "duration", Icon: "mdi:sleep-off",
		Field: func(d CoreData) any { return d.AwakeSleepMinutes }, PreserveValue: true},

	{Key: "body_battery_most_recent", Name: "Body battery", Unit: "%", StateClass: "measurement", Icon: "mdi:battery-heart",
		Field: func(d CoreData) any { return d.BodyBatteryMostRecentValue }, EnabledByDefault: true},
	{Key: "body_battery_highest", Name: "Body battery highest", Unit: "%", StateClass: "measurement", Icon: "mdi:battery-heart-outline",
		Field: func(d CoreData) any { return d.BodyBatteryHighestValue }},
	{Key: "body_battery_lowest", Name: "Body battery lowest", Unit: "%", StateClass: "measurement", Icon: "mdi:battery-heart-outline",
		Field: func(d CoreData) any { return d.BodyBatteryLowestValue }},
	{Key: "body_battery_charged", Name: "Body battery charged", Unit: "%", StateClass: "total", Icon: "mdi:battery-charging",
		Field: func(d CoreData) any { return d.BodyBatteryChargedValue }},
	{Key: "body_battery_drained", Name: "Body battery drained", Unit: "%", StateClass: "total", Icon: "mdi:battery-minus",
		Field: func(d CoreData) any { return d.BodyBatteryDrainedValue }},

	{Key: "moderate_intensity", Name: "Moderate intensity", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash",
		Field: func(d CoreData) any { return d.ModerateIntensityMinutes }},
	{Key: "vigorous_intensity", Name: "Vigorous intensity", Unit: "min", DeviceClass: "duration", Icon: "mdi:flash",
		Field: func(d CoreData) any { return d.VigorousIntensityMinutes }},
	{Key: "intensity_goal", Name: "Intensity goal", Unit: "min", DeviceClass: "duration", Icon: "mdi:flag-checkered",
		Field: func(d CoreData) any { return d.IntensityMinutesGoal }},

	{Key: "avg_spo2", Name: "Average SpO2", Unit: "%", StateClass: "measurement", Icon: "mdi:diabetes",
		Field: func(d CoreData) any { return d.AverageSpo2 }, EnabledByDefault: true},
	{Key: "lowest_spo2", Name: "Lowest SpO2", Unit: "%", StateClass: "measurement", Icon: "mdi:diabetes",
		Field: func(d CoreData) any { return d.LowestSpo2 }},
	{Key: "latest_spo2", Name: "Latest SpO2", Unit: "%", StateClass: "measurement", Icon: "mdi:diabetes",
		Field: func(d CoreData) any { return d.LatestSpo2 }},
	{Key: "highest_respiration", Name: "Highest respiration", Unit: "brpm", StateClass: "measurement", Icon: "mdi:progress-clock",
		Field: func(d CoreData) any { return d.HighestRespirationValue }, PreserveValue: true},
	{Key: "lowest_respiration", Name: "Lowest respiration", Unit: "brpm", StateClass: "measurement", Icon: "mdi:progress-clock",
		Field: func(d CoreData) any { return d.LowestRespirationValue }, PreserveValue: true},
	{Key: "latest_respiration", Name: "Latest respiration", Unit: "brpm", StateClass: "measurement", Icon: "mdi:progress-clock",
		Field: func(d CoreData) any { return d.LatestRespirationValue }, PreserveValue: true},

	{Key: "device_last_synced", Name: "Device last synced", Kind: entity.KindTimestamp, DeviceClass: "timestamp",
		Category: entity.CategoryDiagnostic, Icon: "mdi:sync",
		Field: func(d CoreData) any { return d.LastSyncTimestampGMT }, EnabledByDefault: true},
}

// ActivitySensors are backed by the activity coordinator
var ActivitySensors = []entity.Description[ActivityData]{
	{Key: "last_activity", Name: "Last activity", Kind: entity.KindText, Icon: "mdi:walk",
		ValueFn: func(d ActivityData) any {
			if d.LastActivity == nil {
				return nil
			}
			return nilIfEmpty(d.LastActivity.ActivityName)
		},
		AttributesFn: func(d ActivityData) map[string]any {
			if d.LastActivity == nil {
				return nil
			}
			a := d.LastActivity
			return dropNil(map[string]any{
				"activity_id": a.ActivityID,
				"type":        a.ActivityType.TypeKey,
				"start_time":  a.StartTimeLocal,
				"distance":    a.Distance,
				"duration":    a.Duration,
				"calories":    a.Calories,
			})
		},
		EnabledByDefault: true},
	{Key: "last_activities", Name: "Last activities", StateClass: "total", Icon: "mdi:numeric",
		ValueFn: func(d ActivityData) any { return len(d.LastActivities) },
		AttributesFn: func(d ActivityData) map[string]any {
			names := make([]string, 0, len(d.LastActivities))
			for _, a := range d.LastActivities {
				names = append(names, a.ActivityName)
			}
			return map[string]any{"last_activities": names}
		}},
	{Key: "last_workout", Name: "Last workout", Kind: entity.KindText, Icon: "mdi:dumbbell",
		ValueFn: func(d ActivityData) any {
			if d.LastWorkout == nil {
				return nil
			}
			return nilIfEmpty(d.LastWorkout.WorkoutName)
		}},
	{Key: "last_workouts", Name: "Last workouts", StateClass: "total", Icon: "mdi:dumbbell",
		ValueFn: func(d ActivityData) any { return len(d.Workouts) }},
	{Key: "next_alarm", Name: "Next alarm", Kind: entity.KindTimestamp, DeviceClass: "timestamp", Icon: "mdi:alarm",
		ValueFn: func(d ActivityData) any {
			if len(d.NextAlarm) == 0 {
				return nil
			}
			return d.NextAlarm[0]
		}},
}

// TrainingSensors are backed by the training coordinator
var TrainingSensors = []entity.Description[TrainingData]{
	{Key: "training_readiness", Name: "Training readiness", Unit: "%", Icon: "mdi:run-fast",
		ValueFn: func(d TrainingData) any {
			if d.TrainingReadiness == nil {
				return nil
			}
			return d.TrainingReadiness.Score
		},
		AttributesFn: func(d TrainingData) map[string]any {
			if d.TrainingReadiness == nil {
				return nil
			}
			r := d.TrainingReadiness
			return dropNil(map[string]any{
				"level":         r.Level,
				"sleep_score":   r.SleepScore,
				"recovery_time": r.RecoveryTime,
				"hrv_feedback":  r.HRVFactorText,
			})
		},
		EnabledByDefault: true},
	{Key: "morning_training_readiness", Name: "Morning training readiness", Unit: "%", Icon: "mdi:weather-sunset-up",
		ValueFn: func(d TrainingData) any {
			if d.MorningTrainingReadiness == nil {
				return nil
			}
			return d.MorningTrainingReadiness.Score
		}},
	{Key: "training_status", Name: "Training status", Kind: entity.KindText, Icon: "mdi:chart-line",
		ValueFn: func(d TrainingData) any {
			if d.TrainingStatus == nil {
				return nil
			}
			return nilIfEmpty(d.TrainingStatus.TrainingStatusPhrase)
		},
		AttributesFn: func(d TrainingData) map[string]any {
			if d.TrainingStatus == nil {
				return nil
			}
			return dropNil(map[string]any{"load_balance": d.TrainingStatus.LoadBalancePhrase})
		},
		EnabledByDefault: true},
	{Key: "endurance_score", Name: "Endurance score", StateClass: "measurement", Icon: "mdi:run",
		ValueFn: func(d TrainingData) any {
			if d.EnduranceScore == nil {
				return nil
			}
			return d.EnduranceScore.OverallScore
		}},
	{Key: "hill_score", Name: "Hill score", StateClass: "measurement", Icon: "mdi:terrain",
		ValueFn: func(d TrainingData) any {
			if d.HillScore == nil {
				return nil
			}
			return d.HillScore.OverallScore
		}},
	{Key: "lactate_threshold_hr", Name: "Lactate threshold heart rate", Unit: "bpm", StateClass: "measurement", Icon: "mdi:heart-pulse",
		ValueFn: func(d TrainingData) any {
			if d.LactateThreshold == nil {
				return nil
			}
			return d.LactateThreshold.HeartRate
		}},
	{Key: "lactate_threshold_speed", Name: "Lactate threshold speed", Unit: "m/s", StateClass: "measurement",
		Precision: entity.Digits(2), Icon: "mdi:speedometer",
		ValueFn: func(d TrainingData) any {
			if d.LactateThreshold == nil {
				return nil
			}
			return d.LactateThreshold.Speed
		}},
}

// BodySensors are backed by the body coordinator
var BodySensors = []entity.Description[BodyData]{
	{Key: "weight", Name: "Weight", Unit: "kg", DeviceClass: "weight", StateClass: "measurement",
		Precision: entity.Digits(2), Icon: "mdi:weight-kilogram",
		ValueFn: func(d BodyData) any { return kilogramsFromGrams(d.Weight) }, PreserveValue: true, EnabledByDefault: true},
	{Key: "bmi", Name: "BMI", Unit: "kg/m²", StateClass: "measurement", Precision: entity.Digits(2), Icon: "mdi:human",
		Field: func(d BodyData) any { return d.BMI }, PreserveValue: true, EnabledByDefault: true},
	{Key: "body_fat", Name: "Body fat", Unit: "%", StateClass: "measurement", Precision: entity.Digits(2), Icon: "mdi:percent",
		Field: func(d BodyData) any { return d.BodyFat }, PreserveValue: true},
	{Key: "body_water", Name: "Body water", Unit: "%", StateClass: "measurement", Precision: entity.Digits(2), Icon: "mdi:water-percent",
		Field: func(d BodyData) any { return d.BodyWater }, PreserveValue: true},
	{Key: "bone_mass", Name: "Bone mass", Unit: "kg", DeviceClass: "weight", StateClass: "measurement",
		Precision: entity.Digits(2), Icon: "mdi:bone",
		ValueFn: func(d BodyData) any { return kilogramsFromGrams(d.BoneMass) }, PreserveValue: true},
	{Key: "muscle_mass", Name: "Muscle mass", Unit: "kg", DeviceClass: "weight", StateClass: "measurement",
		Precision: entity.Digits(2), Icon: "mdi:dumbbell",
		ValueFn: func(d BodyData) any { return kilogramsFromGrams(d.MuscleMass) }, PreserveValue: true},

	{Key: "hydration", Name: "Hydration", Unit: "mL", DeviceClass: "volume", StateClass: "total", Icon: "mdi:water",
		Field: func(d BodyData) any { return d.ValueInML }, EnabledByDefault: true},
	{Key: "hydration_goal", Name: "Hydration goal", Unit: "mL", DeviceClass: "volume", Icon: "mdi:water",
		Field: func(d BodyData) any { return d.GoalInML }},
	{Key: "hydration_daily_average", Name: "Hydration daily average", Unit: "mL", DeviceClass: "volume", Icon: "mdi:water",
		Field: func(d BodyData) any { return d.DailyAverageInML }},
	{Key: "hydration_sweat_loss", Name: "Hydration sweat loss", Unit: "mL", DeviceClass: "volume", Icon: "mdi:water-minus",
		Field: func(d BodyData) any { return d.SweatLossInML }},

	{Key: "chronological_age", Name: "Chronological age", Unit: "years", Icon: "mdi:calendar-heart",
		Field: func(d BodyData) any { return d.ChronologicalAge }},
	{Key: "fitness_age", Name: "Fitness age", Unit: "years", Icon: "mdi:calendar-heart",
		Field: func(d BodyData) any { return d.FitnessAge }},
	{Key: "metabolic_age", Name: "Metabolic age", Unit: "years", Icon: "mdi:calendar-heart",
		Field: func(d BodyData) any { return d.MetabolicAge }, PreserveValue: true},
	{Key: "visceral_fat", Name: "Visceral fat", StateClass: "measurement", Icon: "mdi:food",
		Field: func(d BodyData) any { return d.VisceralFat }, PreserveValue: true},
}

// GoalsSensors are backed by the goals coordinator
var GoalsSensors = []entity.Description[GoalsData]{
	{Key: "badges", Name: "Badges", StateClass: "total", Icon: "mdi:medal",
		ValueFn: func(d GoalsData) any { return len(d.Badges) },
		AttributesFn: func(d GoalsData) map[string]any {
			recent := make([]string, 0, 10)
			for i := len(d.Badges) - 1; i >= 0 && len(recent) < 10; i-- {
				recent = append(recent, d.Badges[i].BadgeName)
			}
			return map[string]any{"recent_badges": recent}
		}},
	{Key: "user_points", Name: "User points", StateClass: "total", Icon: "mdi:counter",
		Field: func(d GoalsData) any { return d.UserPoints }},
	{Key: "user_level", Name: "User level", Icon: "mdi:star-four-points-circle",
		Field: func(d GoalsData) any { return d.UserLevel }},
	{Key: "active_goals", Name: "Active goals", Icon: "mdi:flag-checkered",
		ValueFn: func(d GoalsData) any { return len(d.ActiveGoals) },
		AttributesFn: func(d GoalsData) map[string]any {
			types := make([]string, 0, len(d.ActiveGoals))
			for _, g := range d.ActiveGoals {
				types = append(types, g.GoalType)
			}
			return map[string]any{"goals": types}
		},
		EnabledByDefault: true},
	{Key: "future_goals", Name: "Future goals", Icon: "mdi:calendar-start",
		ValueFn: func(d GoalsData) any { return len(d.FutureGoals) }},
	{Key: "goals_history", Name: "Goals history", Icon: "mdi:history",
		ValueFn: func(d GoalsData) any { return len(d.GoalsHistory) }},
}

func bloodPressureAttributes(d BloodPressureData, exclude string) map[string]any {
	attrs := map[string]any{
		"systolic":         d.Systolic,
		"diastolic":        d.Diastolic,
		"pulse":            d.Pulse,
		"measurement_time": d.MeasurementTime,
		"category":         d.Category,
		"category_name":    d.CategoryName,
	}
	delete(attrs, exclude)
	return dropNil(attrs)
}

// BloodPressureSensors are backed by the blood pressure coordinator
var BloodPressureSensors = []entity.Description[BloodPressureData]{
	{Key: "bp_systolic", Name: "Systolic blood pressure", Unit: "mmHg", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field: func(d BloodPressureData) any { return d.Systolic },
		AttributesFn: func(d BloodPressureData) map[string]any {
			attrs := bloodPressureAttributes(d, "systolic")
			for k, v := range dropNil(map[string]any{
				"num_measurements": d.NumMeasurements,
				"low_systolic":     d.LowSystolic,
				"low_diastolic":    d.LowDiastolic,
			}) {
				attrs[k] = v
			}
			return attrs
		},
		PreserveValue: true},
	{Key: "bp_diastolic", Name: "Diastolic blood pressure", Unit: "mmHg", StateClass: "measurement", Icon: "mdi:heart-pulse",
		Field:         func(d BloodPressureData) any { return d.Diastolic },
		AttributesFn:  func(d BloodPressureData) map[string]any { return bloodPressureAttributes(d, "diastolic") },
		PreserveValue: true},
	{Key: "bp_pulse", Name: "Blood pressure pulse", Unit: "bpm", StateClass: "measurement", Icon: "mdi:heart",
		Field:         func(d BloodPressureData) any { return d.Pulse },
		AttributesFn:  func(d BloodPressureData) map[string]any { return bloodPressureAttributes(d, "pulse") },
		PreserveValue: true},
}

var menstrualPhaseOptions = []string{"Menstruation", "Follicular", "Ovulation", "Luteal", PhaseUnknown}

// MenstrualSensors are backed by the menstrual coordinator; all are disabled by default
var MenstrualSensors = []entity.Description[MenstrualData]{
	{Key: "menstrual_cycle_phase", Name: "Menstrual cycle phase", Kind: entity.KindEnum, Options: menstrualPhaseOptions,
		Icon:    "mdi:calendar-heart",
		ValueFn: func(d MenstrualData) any { return d.Phase() },
		AttributesFn: func(d MenstrualData) map[string]any {
			s := d.summary()
			return dropNil(map[string]any{
				"cycle_start_date":         s.StartDate,
				"day_in_cycle":             s.DayInCycle,
				"period_length":            s.PeriodLength,
				"cycle_type":               s.CycleType,
				"days_until_next_phase":    s.DaysUntilNextPhase,
				"fertile_window_start_day": s.FertileWindowStart,
				"fertile_window_length":    s.LengthOfFertileWindow,
			})
		}},
	{Key: "menstrual_cycle_day", Name: "Menstrual cycle day", StateClass: "measurement", Icon: "mdi:counter",
		ValueFn: func(d MenstrualData) any { return d.summary().DayInCycle }},
	{Key: "menstrual_days_until_next_phase", Name: "Days until next phase", StateClass: "measurement", Icon: "mdi:calendar-clock",
		ValueFn: func(d MenstrualData) any { return d.summary().DaysUntilNextPhase }},
	{Key: "menstrual_cycle_start", Name: "Menstrual cycle start", Kind: entity.KindDate, DeviceClass: "date", Icon: "mdi:calendar-start",
		ValueFn: func(d MenstrualData) any { return nilIfEmpty(d.summary().StartDate) }},
	{Key: "menstrual_next_predicted_cycle_start", Name: "Next predicted cycle start", Kind: entity.KindDate, DeviceClass: "date",
		Icon:    "mdi:calendar-arrow-right",
		ValueFn: func(d MenstrualData) any { return d.NextPredictedCycleStart() }},
	{Key: "menstrual_fertile_window_start", Name: "Fertile window start", Kind: entity.KindDate, DeviceClass: "date", Icon: "mdi:leaf",
		ValueFn: func(d MenstrualData) any { return d.FertileWindowStart() }},
	{Key: "menstrual_fertile_window_end", Name: "Fertile window end", Kind: entity.KindDate, DeviceClass: "date", Icon: "mdi:leaf-circle",
		ValueFn: func(d MenstrualData) any { return d.FertileWindowEnd() }},
	{Key: "menstrual_period_length", Name: "Period length", Unit: "d", StateClass: "measurement", Icon: "mdi:calendar-range",
		ValueFn: func(d MenstrualData) any { return d.summary().PeriodLength }},
	{Key: "menstrual_cycle_type", Name: "Cycle type", Kind: entity.KindText, Icon: "mdi:calendar-question",
		ValueFn: func(d MenstrualData) any { return nilIfEmpty(d.summary().CycleType) }},
}

// GearSummarySensors are the static gear sensors; per-item sensors are added by GearSensors
var GearSummarySensors = []entity.Description[GearData]{
	{Key: "gear_count", Name: "Gear count", Icon: "mdi:shoe-print",
		ValueFn: func(d GearData) any { return len(d.Gear) }},
	{Key: "gear_total_distance", Name: "Gear total distance", Unit: "km", DeviceClass: "distance",
		Precision: entity.Digits(2), Icon: "mdi:map-marker-distance",
		ValueFn: func(d GearData) any {
			if len(d.Stats) == 0 {
				return nil
			}
			total := 0.0
			for _, s := range d.Stats {
				if s.TotalDistance != nil {
					total += *s.TotalDistance
				}
			}
			return total / 1000
		}},
}

// GearSensors creates one distance sensor per gear item present in d
func GearSensors(d GearData) []entity.Description[GearData] {
	out := make([]entity.Description[GearData], 0, len(d.Gear))
	for _, g := range d.Gear {
		uuid := g.UUID
		if uuid == "" {
			continue
		}
		out = append(out, entity.Description[GearData]{
			Key:         "gear_" + uuid,
			Name:        g.Name(),
			Unit:        "km",
			DeviceClass: "distance",
			StateClass:  "total_increasing",
			Precision:   entity.Digits(2),
			Icon:        "mdi:shoe-print",
			ValueFn: func(d GearData) any {
				s, ok := d.Stats[uuid]
				if !ok {
					return nil
				}
				return kilometersFromMeters(s.TotalDistance)
			},
			AttributesFn: func(d GearData) map[string]any {
				for _, item := range d.Gear {
					if item.UUID != uuid {
						continue
					}
					attrs := dropNil(map[string]any{
						"gear_uuid":      item.UUID,
						"type":           item.GearTypeName,
						"status":         item.GearStatusName,
						"date_begin":     item.DateBegin,
						"maximum_meters": item.MaximumMeters,
					})
					if s, ok := d.Stats[uuid]; ok && s.TotalActivities != nil {
						attrs["total_activities"] = *s.TotalActivities
					}
					return attrs
				}
				return nil
			},
			EnabledByDefault: true,
		})
	}
	return out
}

func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
