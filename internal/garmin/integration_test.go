package garmin

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/config"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/credential"
	"haintegrations/internal/entity"
	"haintegrations/pkg/integration"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type memoryCredentials struct {
	mu     sync.Mutex
	stored map[string]credential.Credential
	saves  int
}

func newMemoryCredentials() *memoryCredentials {
	return &memoryCredentials{stored: make(map[string]credential.Credential)}
}

func (m *memoryCredentials) SaveCredential(ctx context.Context, entryID string, c credential.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stored[entryID] = c
	m.saves++
	return nil
}

func (m *memoryCredentials) LoadCredential(ctx context.Context, entryID string) (credential.Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.stored[entryID]
	return c, ok, nil
}

func boolPtr(v bool) *bool { return &v }

func newTestContext(t *testing.T, entry config.EntryConfig, creds integration.CredentialStore) (*integration.Context, *clock.MockClock) {
	t.Helper()
	logger, _ := zap.NewDevelopment()
	mock := clock.NewMockClock(setupTime)
	return integration.NewContext(entry, config.LocationConfig{}, logger, mock, time.UTC, creds), mock
}

func findEntity(entities []entity.Entity, entityID string) entity.Entity {
	for _, e := range entities {
		if e.EntityID() == entityID {
			return e
		}
	}
	return nil
}

func gearFixture() GearData {
	return GearData{
		Gear: []Gear{
			{UUID: "abc123", DisplayName: "Trail shoes", GearTypeName: "Shoes", GearStatusName: "active"},
		},
		Stats: map[string]GearStats{
			"abc123": {UUID: "abc123", TotalDistance: floatPtr(412345), TotalActivities: intPtr(57)},
		},
	}
}

func TestIntegration_SetupCreatesEntities(t *testing.T) {
	client := newFakeClient()
	client.core = CoreData{TotalSteps: intPtr(1200)}
	client.body = BodyData{Weight: floatPtr(81234)}
	client.gear = gearFixture()

	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	in, err := New(ictx, client, validCredential())
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	entities := in.Entities()
	steps := findEntity(entities, "sensor.garmin_connect_total_steps")
	require.NotNil(t, steps)
	steps.Attach()
	assert.Equal(t, "1200", steps.State())

	weight := findEntity(entities, "sensor.garmin_connect_weight")
	require.NotNil(t, weight)
	weight.Attach()
	assert.Equal(t, 81.23, weight.Value())

	shoes := findEntity(entities, "sensor.garmin_connect_gear_abc123")
	require.NotNil(t, shoes)
	shoes.Attach()
	assert.Equal(t, "Trail shoes", shoes.Name())
	assert.Equal(t, 412.35, shoes.Value())
	assert.Equal(t, 57, shoes.Attributes()["total_activities"])

	// Disabled by default
	assert.Nil(t, findEntity(entities, "sensor.garmin_connect_menstrual_cycle_phase"))
	assert.Len(t, in.Coordinators(), len(AllCoordinatorTypes))
}

func TestIntegration_EntityOverrides(t *testing.T) {
	client := newFakeClient()
	entry := config.EntryConfig{
		ID:     "entry-1",
		Domain: Domain,
		Entities: map[string]config.EntityConfig{
			"total_steps":        {Enabled: boolPtr(false)},
			"bmr_calories":       {Enabled: boolPtr(true)},
			"resting_heart_rate": {PreserveValue: boolPtr(true)},
		},
	}
	ictx, _ := newTestContext(t, entry, nil)
	in, err := New(ictx, client, validCredential())
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	entities := in.Entities()
	assert.Nil(t, findEntity(entities, "sensor.garmin_connect_total_steps"))
	assert.NotNil(t, findEntity(entities, "sensor.garmin_connect_bmr_calories"))

	hr := findEntity(entities, "sensor.garmin_connect_resting_heart_rate")
	require.NotNil(t, hr)
	hr.Seed(52)
	assert.Equal(t, 52, hr.Value(), "seed only applies with preserve_value")
}

// A failed refresh makes the entity unavailable while its preserved value
// survives, and the next success replaces it
func TestIntegration_PreservedValueAcrossOutage(t *testing.T) {
	client := newFakeClient()
	client.core = CoreData{TotalSteps: intPtr(1200)}

	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	in, err := New(ictx, client, validCredential())
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	steps := findEntity(in.Entities(), "sensor.garmin_connect_total_steps")
	require.NotNil(t, steps)
	steps.Attach()

	client.setFailure(CoordinatorCore, &coordinator.APIError{Op: "core", StatusCode: 500})
	require.Error(t, in.CoordinatorSet().Core.Refresh(context.Background()))
	assert.False(t, steps.Available())
	assert.Equal(t, entity.StateUnavailable, steps.State())
	assert.Equal(t, 1200, steps.Value())

	client.setFailure(CoordinatorCore, nil)
	client.core = CoreData{TotalSteps: intPtr(3400)}
	require.NoError(t, in.CoordinatorSet().Core.Refresh(context.Background()))
	assert.True(t, steps.Available())
	assert.Equal(t, "3400", steps.State())
}

func TestIntegration_PersistedCredentialWins(t *testing.T) {
	creds := newMemoryCredentials()
	persisted := validCredential()
	persisted.OAuth2Token = "persisted"
	require.NoError(t, creds.SaveCredential(context.Background(), "entry-1", persisted))

	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, creds)
	in, err := New(ictx, newFakeClient(), validCredential())
	require.NoError(t, err)
	assert.Equal(t, "persisted", in.Store().Get().OAuth2Token)
}

func TestIntegration_RefreshedTokensArePersisted(t *testing.T) {
	creds := newMemoryCredentials()
	expired := validCredential()
	expired.ExpiresAt = setupTime.Add(-time.Hour)

	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, creds)
	in, err := New(ictx, newFakeClient(), expired)
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	stored, ok, err := creds.LoadCredential(context.Background(), "entry-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "refreshed", stored.OAuth2Token)
	assert.Equal(t, 1, creds.saves)
}

func TestIntegration_SetupAuthFailure(t *testing.T) {
	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	in, err := New(ictx, newFakeClient(), credential.Credential{})
	require.NoError(t, err)

	err = in.Setup(context.Background())
	assert.ErrorIs(t, err, coordinator.ErrAuthFailed)
	assert.Empty(t, in.Entities())
}

func TestIntegration_SetupNotReady(t *testing.T) {
	client := newFakeClient()
	client.setFailure(CoordinatorActivity, &coordinator.APIError{Op: "activity", StatusCode: 502})

	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	in, err := New(ictx, client, validCredential())
	require.NoError(t, err)

	err = in.Setup(context.Background())
	assert.ErrorIs(t, err, coordinator.ErrNotReady)
	assert.NotErrorIs(t, err, coordinator.ErrAuthFailed)
}

func TestIntegration_UnloadStopsAndDetaches(t *testing.T) {
	client := newFakeClient()
	ictx, mock := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	in, err := New(ictx, client, validCredential())
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))
	for _, e := range in.Entities() {
		e.Attach()
	}
	in.Start(context.Background())
	require.Positive(t, in.CoordinatorSet().Core.ListenerCount())

	in.Unload()

	assert.Equal(t, 0, in.CoordinatorSet().Core.ListenerCount())
	mock.Advance(2 * time.Hour)
	assert.Equal(t, 1, client.callCount(CoordinatorCore), "no refresh after unload")
	assert.Empty(t, mock.Pending())
}

func TestIntegration_Diagnostics(t *testing.T) {
	ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	in, err := New(ictx, newFakeClient(), validCredential())
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))

	diag := in.Diagnostics()
	assert.Equal(t, true, diag["credential_present"])
	assert.Equal(t, 0, diag["credential_writes"])
	assert.Len(t, diag["coordinators"], len(AllCoordinatorTypes))
}

func TestIntegration_Registered(t *testing.T) {
	info := integration.Get(Domain)
	require.NotNil(t, info)
	assert.Equal(t, Domain, info.Domain)
	assert.NotNil(t, info.Factory)
}

// garminServer exchanges the OAuth1 pair for one access token and serves
// empty snapshots to requests bearing it
func garminServer(t *testing.T, expiresIn int) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var exchanges atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/oauth-service/oauth/exchange/user/2.0" {
			assert.NoError(t, r.ParseForm())
			if r.PostForm.Get("oauth1_token") != "o1" || r.PostForm.Get("oauth1_secret") != "s1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			exchanges.Add(1)
			_, _ = fmt.Fprintf(w, `{"access_token": "exchanged", "refresh_token": "r2", "expires_in": %d}`, expiresIn)
			return
		}
		if r.Header.Get("Authorization") != "Bearer exchanged" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &exchanges
}

func TestIntegration_SetupExchangesLongLivedPair(t *testing.T) {
	tests := []struct {
		name    string
		initial credential.Credential
	}{
		{name: "oauth1 only", initial: credential.Credential{OAuth1Token: "o1", OAuth1Secret: "s1"}},
		{name: "configured access token without expiry", initial: credential.Credential{OAuth1Token: "o1", OAuth1Secret: "s1", OAuth2Token: "configured"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, exchanges := garminServer(t, 3600)
			creds := newMemoryCredentials()
			ictx, _ := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, creds)
			client := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Clock: ictx.Clock}, nil)

			in, err := New(ictx, client, tt.initial)
			require.NoError(t, err)
			require.NoError(t, in.Setup(context.Background()))
			defer in.Unload()

			assert.Equal(t, int32(1), exchanges.Load())
			stored, ok, err := creds.LoadCredential(context.Background(), "entry-1")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "exchanged", stored.OAuth2Token)
			assert.Equal(t, "o1", stored.OAuth1Token)
			// Expiry is stamped by the entry clock
			assert.Equal(t, setupTime.Add(time.Hour), stored.ExpiresAt)
		})
	}
}

func TestIntegration_ShortLivedTokenUsesLifetimeFloor(t *testing.T) {
	srv, exchanges := garminServer(t, 0)
	ictx, mock := newTestContext(t, config.EntryConfig{ID: "entry-1", Domain: Domain}, nil)
	client := NewHTTPClient(HTTPOptions{BaseURL: srv.URL, Clock: ictx.Clock}, nil)

	in, err := New(ictx, client, credential.Credential{OAuth1Token: "o1", OAuth1Secret: "s1"})
	require.NoError(t, err)
	require.NoError(t, in.Setup(context.Background()))
	defer in.Unload()

	assert.Equal(t, setupTime.Add(minTokenLifetime), in.Store().Get().ExpiresAt)
	assert.Equal(t, int32(1), exchanges.Load())

	// Inside the floor the token is reused; near its end it is exchanged again
	require.NoError(t, in.coords.Core.Refresh(context.Background()))
	assert.Equal(t, int32(1), exchanges.Load())

	mock.Set(setupTime.Add(minTokenLifetime - 30*time.Second))
	require.NoError(t, in.coords.Core.Refresh(context.Background()))
	assert.Equal(t, int32(2), exchanges.Load())
}
