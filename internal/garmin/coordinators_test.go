package garmin

import (
	"context"
	"sync"
	"testing"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/credential"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingPersister struct {
	mu    sync.Mutex
	saves []credential.Credential
}

func (p *countingPersister) SaveCredential(ctx context.Context, entryID string, c credential.Credential) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves = append(p.saves, c)
	return nil
}

func (p *countingPersister) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.saves)
}

var setupTime = time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

func validCredential() credential.Credential {
	return credential.Credential{
		OAuth1Token:   "o1",
		OAuth1Secret:  "s1",
		OAuth2Token:   "access",
		OAuth2Refresh: "refresh",
		ExpiresAt:     setupTime.Add(12 * time.Hour),
	}
}

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func newTestCoordinators(t *testing.T, client *fakeClient, initial credential.Credential) (*Coordinators, *credential.Store, *countingPersister, *clock.MockClock) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	mock := clock.NewMockClock(setupTime)
	p := &countingPersister{}
	store := credential.NewStore("entry-1", initial, p, logger)
	coords := NewCoordinators(Options{
		Client: client,
		Store:  store,
		Clock:  mock,
		Logger: logger,
	})
	return coords, store, p, mock
}

// Repeated successes with an unchanged credential never write it
func TestCoordinators_UnchangedCredentialNeverWritten(t *testing.T) {
	client := newFakeClient()
	client.core = CoreData{TotalSteps: intPtr(500)}
	coords, store, p, _ := newTestCoordinators(t, client, validCredential())

	require.NoError(t, coords.FirstRefreshAll(context.Background()))
	require.NoError(t, coords.Core.Refresh(context.Background()))
	require.NoError(t, coords.Body.Refresh(context.Background()))

	assert.Equal(t, 0, p.count())
	assert.Equal(t, 0, store.Writes())
}

// A credential changed by the client is written exactly once even when two
// coordinators succeed back to back
func TestCoordinators_ChangedCredentialWrittenOnce(t *testing.T) {
	client := newFakeClient()
	coords, store, p, _ := newTestCoordinators(t, client, validCredential())
	require.NoError(t, coords.FirstRefreshAll(context.Background()))

	rotated := validCredential()
	rotated.OAuth2Token = "access-rotated"
	client.pinTokens(rotated)

	require.NoError(t, coords.Core.Refresh(context.Background()))
	require.NoError(t, coords.Body.Refresh(context.Background()))

	assert.Equal(t, 1, p.count())
	assert.Equal(t, "access-rotated", store.Get().OAuth2Token)
}

func TestCoordinators_MissingCredentialIsAuthFailure(t *testing.T) {
	client := newFakeClient()
	coords, _, _, _ := newTestCoordinators(t, client, credential.Credential{})

	err := coords.FirstRefreshAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrAuthFailed)
	assert.Len(t, coordinator.FailedCoordinators(err), len(AllCoordinatorTypes))
	assert.Equal(t, 0, client.callCount(CoordinatorCore), "no fetch without a credential")
}

func TestCoordinators_RejectedCredentialIsAuthFailure(t *testing.T) {
	client := newFakeClient()
	client.setFailure(CoordinatorGoals, &coordinator.AuthError{Op: "goals"})
	coords, _, _, _ := newTestCoordinators(t, client, validCredential())

	err := coords.FirstRefreshAll(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, coordinator.ErrAuthFailed)
	assert.Equal(t, []string{"goals"}, coordinator.FailedCoordinators(err))
}

// Eight coordinators finding the token expired share a single refresh
func TestCoordinators_ExpiredCredentialRefreshedOnce(t *testing.T) {
	client := newFakeClient()
	expired := validCredential()
	expired.ExpiresAt = setupTime.Add(-time.Minute)
	coords, store, p, _ := newTestCoordinators(t, client, expired)

	require.NoError(t, coords.FirstRefreshAll(context.Background()))

	assert.Equal(t, 1, client.refreshCount())
	assert.Equal(t, 1, p.count())
	assert.Equal(t, "refreshed", store.Get().OAuth2Token)
	for _, typ := range AllCoordinatorTypes {
		assert.Equal(t, 1, client.callCount(typ), string(typ))
	}
}

func TestCoordinators_SiblingFailureIsolation(t *testing.T) {
	client := newFakeClient()
	client.core = CoreData{TotalSteps: intPtr(500)}
	coords, _, _, mock := newTestCoordinators(t, client, validCredential())
	require.NoError(t, coords.FirstRefreshAll(context.Background()))
	coords.StartAll(context.Background())
	defer coords.StopAll()

	client.setFailure(CoordinatorTraining, &coordinator.APIError{Op: "training", StatusCode: 503})
	err := coords.Training.Refresh(context.Background())
	assert.ErrorIs(t, err, coordinator.ErrUpdateFailed)

	mock.Advance(DefaultIntervals[CoordinatorCore])

	assert.False(t, coords.Training.LastUpdateSuccess())
	assert.True(t, coords.Core.LastUpdateSuccess())
	data, ok := coords.Core.Data()
	require.True(t, ok)
	assert.Equal(t, 500, *data.TotalSteps)
	assert.Equal(t, 2, client.callCount(CoordinatorCore))
	assert.Equal(t, 1, client.callCount(CoordinatorGoals), "goals keeps its own hourly schedule")
}

func TestCoordinators_IntervalsAndLookup(t *testing.T) {
	client := newFakeClient()
	mock := clock.NewMockClock(setupTime)
	coords := NewCoordinators(Options{
		Client:    client,
		Store:     credential.NewStore("entry-1", validCredential(), nil, nil),
		Clock:     mock,
		Intervals: map[CoordinatorType]time.Duration{CoordinatorCore: 2 * time.Minute},
	})
	require.NoError(t, coords.FirstRefreshAll(context.Background()))
	coords.StartAll(context.Background())
	defer coords.StopAll()

	assert.Equal(t, setupTime.Add(2*time.Minute), coords.Core.Stats().NextRefresh)
	assert.Equal(t, setupTime.Add(time.Hour), coords.Gear.Stats().NextRefresh)
	assert.Equal(t, "menstrual", coords.Member(CoordinatorMenstrual).Name())
	assert.Nil(t, coords.Member("unknown"))
	assert.Len(t, coords.Stats(), len(AllCoordinatorTypes))
}

func TestCoordinators_FetchesForLocalDay(t *testing.T) {
	client := newFakeClient()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	// 02:00 UTC is still the previous day in New York
	mock := clock.NewMockClock(time.Date(2025, 6, 2, 2, 0, 0, 0, time.UTC))
	coords := NewCoordinators(Options{
		Client:   client,
		Store:    credential.NewStore("entry-1", validCredential(), nil, nil),
		Clock:    mock,
		Timezone: loc,
	})
	require.NoError(t, coords.Menstrual.FirstRefresh(context.Background()))

	data, ok := coords.Menstrual.Data()
	require.True(t, ok)
	assert.Equal(t, "2025-06-01", data.Day.Format(time.DateOnly))
}
