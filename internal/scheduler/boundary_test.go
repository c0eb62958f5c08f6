package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func madrid(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	return loc
}

func TestCadence_Next(t *testing.T) {
	c := QuarterHourly(time.UTC)

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{
			name: "between marks",
			now:  time.Date(2025, 3, 10, 10, 7, 30, 0, time.UTC),
			want: time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC),
		},
		{
			name: "exactly on a mark moves to the next one",
			now:  time.Date(2025, 3, 10, 10, 15, 0, 0, time.UTC),
			want: time.Date(2025, 3, 10, 10, 30, 0, 0, time.UTC),
		},
		{
			name: "rolls over the hour",
			now:  time.Date(2025, 3, 10, 10, 50, 0, 0, time.UTC),
			want: time.Date(2025, 3, 10, 11, 0, 0, 0, time.UTC),
		},
		{
			name: "rolls over the day",
			now:  time.Date(2025, 3, 10, 23, 59, 59, 0, time.UTC),
			want: time.Date(2025, 3, 11, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.want.Equal(c.Next(tt.now)), "got %s", c.Next(tt.now))
		})
	}
}

func TestNewCadence_Validation(t *testing.T) {
	_, err := NewCadence(time.UTC)
	assert.Error(t, err)

	_, err = NewCadence(time.UTC, 60)
	assert.Error(t, err)

	_, err = NewCadence(time.UTC, 5, 5)
	assert.Error(t, err)

	c, err := NewCadence(nil, 30, 0)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 30}, c.minutes)
}

func TestDailyAt_Next(t *testing.T) {
	loc := madrid(t)
	d := DailyAt{Hour: 13, Minute: 30, Location: loc}

	// 11:00 UTC in winter is 12:00 in Madrid
	before := time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC)
	assert.True(t, time.Date(2025, 1, 15, 13, 30, 0, 0, loc).Equal(d.Next(before)))
	assert.False(t, d.Reached(before))

	// 12:30 UTC in winter is exactly the cutover
	at := time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC)
	assert.True(t, time.Date(2025, 1, 16, 13, 30, 0, 0, loc).Equal(d.Next(at)))
	assert.True(t, d.Reached(at))

	assert.Equal(t, "13:30 Europe/Madrid", d.String())
}

func TestEarliest(t *testing.T) {
	loc := madrid(t)
	b := Earliest(QuarterHourly(loc), DailyAt{Hour: 13, Minute: 30, Location: loc})

	// 13:29 Madrid: the cutover and the :30 mark coincide
	now := time.Date(2025, 1, 15, 13, 29, 0, 0, loc)
	assert.True(t, time.Date(2025, 1, 15, 13, 30, 0, 0, loc).Equal(b.Next(now)))

	// Cadence with an odd mark wins over a far daily cutover
	odd, err := NewCadence(loc, 7)
	require.NoError(t, err)
	b = Earliest(DailyAt{Hour: 13, Minute: 30, Location: loc}, odd)
	now = time.Date(2025, 1, 15, 14, 0, 0, 0, loc)
	assert.True(t, time.Date(2025, 1, 15, 14, 7, 0, 0, loc).Equal(b.Next(now)))
}

func TestNextRefreshInterval(t *testing.T) {
	c := QuarterHourly(time.UTC)
	now := time.Date(2025, 3, 10, 10, 14, 0, 0, time.UTC)

	got := NextRefreshInterval(c, now, DefaultMargin)
	assert.Equal(t, time.Minute+time.Second, got)

	// Idempotent for the same instant
	assert.Equal(t, got, NextRefreshInterval(c, now, DefaultMargin))
}

func TestNextRefreshInterval_AlwaysPositiveAndPastBoundary(t *testing.T) {
	loc := madrid(t)
	b := Earliest(QuarterHourly(loc), DailyAt{Hour: 13, Minute: 30, Location: loc})

	// Sweep two days in uneven steps, including the spring-forward night
	start := time.Date(2025, 3, 29, 0, 0, 0, 0, time.UTC)
	for now := start; now.Before(start.Add(48 * time.Hour)); now = now.Add(7*time.Minute + 13*time.Second) {
		d := NextRefreshInterval(b, now, DefaultMargin)
		require.Greater(t, d, time.Duration(0), "at %s", now)

		fire := now.Add(d)
		assert.False(t, fire.Before(b.Next(now)), "fires before the boundary at %s", now)
		assert.LessOrEqual(t, d, 15*time.Minute+DefaultMargin, "at %s", now)
	}
}

func TestNextRefreshInterval_MisbehavingBoundary(t *testing.T) {
	now := time.Date(2025, 3, 10, 10, 0, 0, 0, time.UTC)
	past := BoundaryFunc(func(time.Time) time.Time { return now.Add(-time.Hour) })

	assert.Equal(t, DefaultMargin, NextRefreshInterval(past, now, DefaultMargin))
	assert.Equal(t, DefaultMargin, IntervalFunc(past, DefaultMargin)(now))
}
