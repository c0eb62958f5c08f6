// Package garmin implements a Garmin Connect style integration: eight
// independent coordinators over one account and one shared credential.
package garmin

import "time"

// Domain is the integration domain used in config and entity IDs
const Domain = "garmin_connect"

// CoordinatorType names one polling domain of the account
type CoordinatorType string

const (
	CoordinatorCore          CoordinatorType = "core"
	CoordinatorActivity      CoordinatorType = "activity"
	CoordinatorTraining      CoordinatorType = "training"
	CoordinatorBody          CoordinatorType = "body"
	CoordinatorGoals         CoordinatorType = "goals"
	CoordinatorGear          CoordinatorType = "gear"
	CoordinatorBloodPressure CoordinatorType = "blood_pressure"
	CoordinatorMenstrual     CoordinatorType = "menstrual"
)

// AllCoordinatorTypes lists the coordinators in setup order
var AllCoordinatorTypes = []CoordinatorType{
	CoordinatorCore,
	CoordinatorActivity,
	CoordinatorTraining,
	CoordinatorBody,
	CoordinatorGoals,
	CoordinatorGear,
	CoordinatorBloodPressure,
	CoordinatorMenstrual,
}

// CoreData is the daily summary: steps, calories, heart rate, stress, sleep,
// body battery, intensity minutes, SpO2 and respiration.
type CoreData struct {
	TotalSteps             *int     `json:"totalSteps"`
	DailyStepGoal          *int     `json:"dailyStepGoal"`
	YesterdaySteps         *int     `json:"yesterdaySteps"`
	WeeklyStepAvg          *float64 `json:"weeklyStepAvg"`
	TotalDistanceMeters    *float64 `json:"totalDistanceMeters"`
	FloorsAscended         *float64 `json:"floorsAscended"`
	FloorsDescended        *float64 `json:"floorsDescended"`
	UserFloorsAscendedGoal *int     `json:"userFloorsAscendedGoal"`

	TotalKilocalories  *float64 `json:"totalKilocalories"`
	ActiveKilocalories *float64 `json:"activeKilocalories"`
	BMRKilocalories    *float64 `json:"bmrKilocalories"`

	RestingHeartRate                 *int `json:"restingHeartRate"`
	MaxHeartRate                     *int `json:"maxHeartRate"`
	MinHeartRate                     *int `json:"minHeartRate"`
	LastSevenDaysAvgRestingHeartRate *int `json:"lastSevenDaysAvgRestingHeartRate"`

	HRVStatusText   string `json:"hrvStatusText"`
	HRVWeeklyAvg    *int   `json:"hrvWeeklyAvg"`
	HRVLastNightAvg *int   `json:"hrvLastNightAvg"`

	AverageStressLevel     *int   `json:"averageStressLevel"`
	MaxStressLevel         *int   `json:"maxStressLevel"`
	StressQualifierText    string `json:"stressQualifierText"`
	StressDuration         *int   `json:"stressDuration"`
	RestStressDuration     *int   `json:"restStressDuration"`
	ActivityStressDuration *int   `json:"activityStressDuration"`
	LowStressDuration      *int   `json:"lowStressDuration"`
	MediumStressDuration   *int   `json:"mediumStressDuration"`
	HighStressDuration     *int   `json:"highStressDuration"`

	SleepTimeMinutes  *int `json:"sleepTimeMinutes"`
	SleepScore        *int `json:"sleepScore"`
	DeepSleepMinutes  *int `json:"deepSleepMinutes"`
	LightSleepMinutes *int `json:"lightSleepMinutes"`
	RemSleepMinutes   *int `json:"remSleepMinutes"`
	AwakeSleepMinutes *int `json:"awakeSleepMinutes"`

	BodyBatteryMostRecentValue *int `json:"bodyBatteryMostRecentValue"`
	BodyBatteryHighestValue    *int `json:"bodyBatteryHighestValue"`
	BodyBatteryLowestValue     *int `json:"bodyBatteryLowestValue"`
	BodyBatteryChargedValue    *int `json:"bodyBatteryChargedValue"`
	BodyBatteryDrainedValue    *int `json:"bodyBatteryDrainedValue"`

	ModerateIntensityMinutes *int `json:"moderateIntensityMinutes"`
	VigorousIntensityMinutes *int `json:"vigorousIntensityMinutes"`
	IntensityMinutesGoal     *int `json:"intensityMinutesGoal"`

	AverageSpo2             *float64 `json:"averageSpo2"`
	LowestSpo2              *float64 `json:"lowestSpo2"`
	LatestSpo2              *float64 `json:"latestSpo2"`
	HighestRespirationValue *float64 `json:"highestRespirationValue"`
	LowestRespirationValue  *float64 `json:"lowestRespirationValue"`
	LatestRespirationValue  *float64 `json:"latestRespirationValue"`

	// LastSyncTimestampGMT is a naive timestamp in GMT
	LastSyncTimestampGMT string `json:"lastSyncTimestampGMT"`
}

// Activity is one recorded activity
type Activity struct {
	ActivityID     int64    `json:"activityId"`
	ActivityName   string   `json:"activityName"`
	StartTimeLocal string   `json:"startTimeLocal"`
	Distance       *float64 `json:"distance"`
	Duration       *float64 `json:"duration"`
	Calories       *float64 `json:"calories"`
	ActivityType   struct {
		TypeKey string `json:"typeKey"`
	} `json:"activityType"`
}

// Workout is one planned workout
type Workout struct {
	WorkoutID   int64  `json:"workoutId"`
	WorkoutName string `json:"workoutName"`
}

// ActivityData holds recent activities and workouts
type ActivityData struct {
	LastActivity   *Activity  `json:"lastActivity"`
	LastActivities []Activity `json:"lastActivities"`
	LastWorkout    *Workout   `json:"lastWorkout"`
	Workouts       []Workout  `json:"workouts"`
	NextAlarm      []string   `json:"nextAlarm"`
}

// Readiness is a training readiness score
type Readiness struct {
	Score         *int   `json:"score"`
	Level         string `json:"level"`
	SleepScore    *int   `json:"sleepScore"`
	RecoveryTime  *int   `json:"recoveryTime"`
	HRVFactorText string `json:"hrvFactorFeedback"`
}

// Score is an overall score with a classification
type Score struct {
	OverallScore   *int `json:"overallScore"`
	Classification *int `json:"classification"`
}

// TrainingStatus is the current training status
type TrainingStatus struct {
	TrainingStatusPhrase string `json:"trainingStatusPhrase"`
	LoadBalancePhrase    string `json:"loadBalancePhrase"`
}

// LactateThreshold is the latest lactate threshold measurement
type LactateThreshold struct {
	HeartRate *int     `json:"heartRate"`
	Speed     *float64 `json:"speed"`
}

// TrainingData holds readiness and performance scores
type TrainingData struct {
	TrainingReadiness        *Readiness        `json:"trainingReadiness"`
	MorningTrainingReadiness *Readiness        `json:"morningTrainingReadiness"`
	TrainingStatus           *TrainingStatus   `json:"trainingStatus"`
	EnduranceScore           *Score            `json:"enduranceScore"`
	HillScore                *Score            `json:"hillScore"`
	LactateThreshold         *LactateThreshold `json:"lactateThreshold"`
}

// BodyData holds body composition, hydration and fitness age. Masses are in grams.
type BodyData struct {
	Weight     *float64 `json:"weight"`
	BMI        *float64 `json:"bmi"`
	BodyFat    *float64 `json:"bodyFat"`
	BodyWater  *float64 `json:"bodyWater"`
	BoneMass   *float64 `json:"boneMass"`
	MuscleMass *float64 `json:"muscleMass"`

	ValueInML        *float64 `json:"valueInML"`
	GoalInML         *float64 `json:"goalInML"`
	SweatLossInML    *float64 `json:"sweatLossInML"`
	DailyAverageInML *float64 `json:"dailyAverageInML"`

	ChronologicalAge *int     `json:"chronologicalAge"`
	FitnessAge       *float64 `json:"fitnessAge"`
	MetabolicAge     *int     `json:"metabolicAge"`
	VisceralFat      *float64 `json:"visceralFat"`
}

// Goal is an active, future or past goal
type Goal struct {
	GoalType  string   `json:"goalType"`
	GoalValue *float64 `json:"goalValue"`
	StartDate string   `json:"startDate"`
	EndDate   string   `json:"endDate"`
}

// Badge is an earned badge
type Badge struct {
	BadgeName       string `json:"badgeName"`
	BadgeEarnedDate string `json:"badgeEarnedDate"`
	BadgePoints     int    `json:"badgePoints"`
}

// GoalsData holds goals, badges and user level
type GoalsData struct {
	ActiveGoals  []Goal  `json:"activeGoals"`
	FutureGoals  []Goal  `json:"futureGoals"`
	GoalsHistory []Goal  `json:"goalsHistory"`
	Badges       []Badge `json:"badges"`
	UserPoints   *int    `json:"userPoints"`
	UserLevel    *int    `json:"userLevel"`
}

// Gear is one piece of equipment
type Gear struct {
	UUID            string   `json:"uuid"`
	DisplayName     string   `json:"displayName"`
	CustomMakeModel string   `json:"customMakeModel"`
	GearTypeName    string   `json:"gearTypeName"`
	GearStatusName  string   `json:"gearStatusName"`
	MaximumMeters   *float64 `json:"maximumMeters"`
	DateBegin       string   `json:"dateBegin"`
}

// GearStats is the usage of one piece of equipment
type GearStats struct {
	UUID            string   `json:"uuid"`
	TotalDistance   *float64 `json:"totalDistance"`
	TotalActivities *int     `json:"totalActivities"`
}

// GearData holds all equipment and its usage keyed by gear UUID
type GearData struct {
	Gear  []Gear               `json:"gear"`
	Stats map[string]GearStats `json:"stats"`
}

// Name returns the display name of a gear item, falling back to make/model
func (g Gear) Name() string {
	if g.DisplayName != "" {
		return g.DisplayName
	}
	if g.CustomMakeModel != "" {
		return g.CustomMakeModel
	}
	return g.UUID
}

// BloodPressureData is the latest blood pressure measurement
type BloodPressureData struct {
	Systolic        *int   `json:"bpSystolic"`
	Diastolic       *int   `json:"bpDiastolic"`
	Pulse           *int   `json:"bpPulse"`
	MeasurementTime string `json:"bpMeasurementTime"`
	Category        string `json:"bpCategory"`
	CategoryName    string `json:"bpCategoryName"`
	NumMeasurements *int   `json:"bpNumMeasurements"`
	LowSystolic     *int   `json:"bpLowSystolic"`
	LowDiastolic    *int   `json:"bpLowDiastolic"`
}

// MenstrualDaySummary describes the current cycle day. Day offsets are
// 1-based days of the cycle.
type MenstrualDaySummary struct {
	StartDate             string `json:"startDate"`
	DayInCycle            *int   `json:"dayInCycle"`
	PeriodLength          *int   `json:"periodLength"`
	CurrentPhase          *int   `json:"currentPhase"`
	DaysUntilNextPhase    *int   `json:"daysUntilNextPhase"`
	CycleType             string `json:"cycleType"`
	FertileWindowStart    *int   `json:"fertileWindowStart"`
	LengthOfFertileWindow *int   `json:"lengthOfFertileWindow"`
}

// CycleSummary is one past or predicted cycle
type CycleSummary struct {
	StartDate      string `json:"startDate"`
	PredictedCycle bool   `json:"predictedCycle"`
}

// MenstrualData holds the cycle summary for Day
type MenstrualData struct {
	Day            time.Time            `json:"-"`
	DaySummary     *MenstrualDaySummary `json:"daySummary"`
	CycleSummaries []CycleSummary       `json:"cycleSummaries"`
}
