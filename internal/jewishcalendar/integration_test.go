package jewishcalendar

import (
	"context"
	"testing"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/config"
	"haintegrations/internal/entity"
	"haintegrations/pkg/integration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func entityByID(entities []entity.Entity, id string) entity.Entity {
	for _, e := range entities {
		if e.EntityID() == id {
			return e
		}
	}
	return nil
}

func newTestIntegration(t *testing.T, start time.Time, settings Settings) (*Integration, *clock.MockClock) {
	t.Helper()
	mock := clock.NewMockClock(start)
	ictx := integration.NewContext(
		config.EntryConfig{ID: "cal-1", Domain: Domain},
		config.LocationConfig{Latitude: 40.7128, Longitude: -74.0060},
		zap.NewNop(), mock, start.Location(), nil,
	)
	in, err := New(ictx, settings)
	require.NoError(t, err)
	return in, mock
}

func TestIntegration_ErevRoshHashana(t *testing.T) {
	loc := newYork(t)
	in, mock := newTestIntegration(t, time.Date(2024, 10, 2, 12, 0, 0, 0, loc), Settings{Diaspora: true})
	require.NoError(t, in.Setup(context.Background()))
	for _, e := range in.Entities() {
		e.Attach()
	}
	in.Start(context.Background())
	defer in.Unload()

	date := entityByID(in.Entities(), "sensor.jewish_calendar_date")
	holiday := entityByID(in.Entities(), "sensor.jewish_calendar_holiday")
	issur := entityByID(in.Entities(), "binary_sensor.jewish_calendar_issur_melacha_in_effect")
	require.NotNil(t, date)
	require.NotNil(t, holiday)
	require.NotNil(t, issur)

	assert.Equal(t, "29 Elul 5784", date.State())
	assert.Equal(t, false, date.Attributes()["after_sunset"])
	assert.Equal(t, "Erev Rosh Hashana", holiday.State())
	assert.Equal(t, entity.StateOff, issur.State())

	z := in.Service().calc.Day(mock.Now())
	stats := in.Coordinator().Stats()
	assert.True(t, z.CandleLighting.Add(time.Second).Equal(stats.NextRefresh), "wakes at candle lighting, got %s", stats.NextRefresh)

	mock.Advance(z.CandleLighting.Sub(mock.Now()) + 2*time.Second)
	assert.Equal(t, entity.StateOn, issur.State())
	assert.Equal(t, "29 Elul 5784", date.State())

	mock.Advance(z.Sunset.Sub(mock.Now()) + 2*time.Second)
	assert.Equal(t, "1 Tishrei 5785", date.State())
	assert.Equal(t, "א׳ תשרי תשפ״ה", date.Attributes()["hebrew"])
	assert.Equal(t, "Rosh Hashana I", holiday.State())
	assert.Equal(t, entity.StateOn, issur.State())
}

func TestIntegration_NoHolidayIsUnknown(t *testing.T) {
	loc := newYork(t)
	in, _ := newTestIntegration(t, time.Date(2024, 11, 12, 12, 0, 0, 0, loc), Settings{})
	require.NoError(t, in.Setup(context.Background()))
	holiday := entityByID(in.Entities(), "sensor.jewish_calendar_holiday")
	require.NotNil(t, holiday)
	holiday.Attach()
	assert.Nil(t, holiday.Value())
	assert.Equal(t, entity.StateUnknown, holiday.State())
}

func TestIntegration_EntityOverrides(t *testing.T) {
	loc := newYork(t)
	mock := clock.NewMockClock(time.Date(2025, 4, 20, 12, 0, 0, 0, loc))
	enabled := true
	entry := config.EntryConfig{
		ID:       "cal-1",
		Domain:   Domain,
		Entities: map[string]config.EntityConfig{"omer_count": {Enabled: &enabled}},
	}
	ictx := integration.NewContext(entry, config.LocationConfig{Latitude: 40.7128, Longitude: -74.0060}, zap.NewNop(), mock, loc, nil)
	in, err := New(ictx, Settings{Diaspora: true})
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	omer := entityByID(in.Entities(), "sensor.jewish_calendar_omer_count")
	require.NotNil(t, omer)
	omer.Attach()
	// 22 Nisan 5785 is the seventh day of the count
	assert.Equal(t, 7, omer.Value())
}

func TestNew_Validation(t *testing.T) {
	mock := clock.NewMockClock(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	entry := config.EntryConfig{ID: "cal-1", Domain: Domain}

	ictx := integration.NewContext(entry, config.LocationConfig{Latitude: 91}, zap.NewNop(), mock, nil, nil)
	_, err := New(ictx, Settings{})
	assert.Error(t, err)

	ictx = integration.NewContext(entry, config.LocationConfig{}, zap.NewNop(), mock, nil, nil)
	_, err = New(ictx, Settings{HavdalahMinutes: -5})
	assert.Error(t, err)
}

func TestRegistered(t *testing.T) {
	info := integration.Get(Domain)
	require.NotNil(t, info)
	assert.Equal(t, 70, info.Order)
}
