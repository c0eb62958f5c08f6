package omie

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

func TestIntegration_PublicationDay(t *testing.T) {
	loc := madrid(t)
	client := newFakeDays(loc, 0, "2025-06-10", "2025-06-11")
	mock := clock.NewMockClock(time.Date(2025, 6, 10, 12, 0, 0, 0, loc))
	ictx := integration.NewContext(config.EntryConfig{ID: "omie-1", Domain: Domain}, config.LocationConfig{}, zap.NewNop(), mock, loc, nil)

	in, err := New(ictx, client, false)
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))
	for _, e := range in.Entities() {
		e.Attach()
	}
	in.Start(context.Background())
	defer in.Unload()

	current := entityByID(in.Entities(), "sensor.omie_spot_price_es")
	tomorrow := entityByID(in.Entities(), "sensor.omie_tomorrow_average_es")
	require.NotNil(t, current)
	require.NotNil(t, tomorrow)

	// Hour 12 costs 50+12 EUR/MWh
	assert.Equal(t, 0.062, current.Value())
	assert.Nil(t, tomorrow.Value())
	assert.Equal(t, entity.StateUnknown, tomorrow.State())

	mock.Advance(90*time.Minute + 2*time.Second)
	assert.Equal(t, 1, client.count("2025-06-11"), "fetched at the cutoff")
	// 50..73 averages 61.5
	assert.Equal(t, 0.0615, tomorrow.Value())
	assert.Equal(t, 0.063, current.Value())

	mock.Advance(150 * time.Minute)
	assert.Equal(t, 1, client.count("2025-06-11"))
	assert.Equal(t, 1, client.count("2025-06-10"))
	assert.Equal(t, 0.066, current.Value())
}

func TestIntegration_SetupNotReadyWithoutToday(t *testing.T) {
	loc := madrid(t)
	mock := clock.NewMockClock(time.Date(2025, 6, 10, 12, 0, 0, 0, loc))
	ictx := integration.NewContext(config.EntryConfig{ID: "omie-1", Domain: Domain}, config.LocationConfig{}, zap.NewNop(), mock, loc, nil)

	in, err := New(ictx, newFakeDays(loc, 0), false)
	require.NoError(t, err)
	err = in.Setup(context.Background())
	require.Error(t, err)
	assert.Empty(t, in.Entities())
}

func TestIntegration_CurrentPriceAttributes(t *testing.T) {
	loc := madrid(t)
	mock := clock.NewMockClock(time.Date(2025, 6, 10, 14, 0, 0, 0, loc))
	ictx := integration.NewContext(config.EntryConfig{ID: "omie-1", Domain: Domain}, config.LocationConfig{}, zap.NewNop(), mock, loc, nil)

	in, err := New(ictx, newFakeDays(loc, 96, "2025-06-10", "2025-06-11"), false)
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	current := entityByID(in.Entities(), "sensor.omie_spot_price_pt")
	require.NotNil(t, current)
	current.Attach()

	attrs := current.Attributes()
	assert.Equal(t, 15, attrs["resolution_minutes"])
	today, ok := attrs["today"].([]map[string]any)
	require.True(t, ok)
	require.Len(t, today, 96)
	assert.Equal(t, "2025-06-10T00:15:00+02:00", today[1]["start"])
	assert.Equal(t, 0.0515, today[1]["price"])
	assert.Len(t, attrs["tomorrow"], 96)

	// Quarter 56 (14:00) in Portugal costs 50+56+0.5
	assert.Equal(t, 0.1065, current.Value())
}

func TestIntegration_Registered(t *testing.T) {
	info := integration.Get(Domain)
	require.NotNil(t, info)
	assert.Equal(t, 60, info.Order)
}
