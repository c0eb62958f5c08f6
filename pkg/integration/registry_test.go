package integration

import (
	"context"
	"errors"
	"testing"

	"haintegrations/internal/config"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// mockIntegration implements the Integration interface for testing
type mockIntegration struct {
	domain   string
	tag      string
	unloaded bool
}

func (m *mockIntegration) Domain() string                      { return m.domain }
func (m *mockIntegration) Setup(ctx context.Context) error     { return nil }
func (m *mockIntegration) Start(ctx context.Context)           {}
func (m *mockIntegration) Unload()                             { m.unloaded = true }
func (m *mockIntegration) Coordinators() []coordinator.Member  { return nil }
func (m *mockIntegration) Entities() []entity.Entity           { return nil }

func factoryFor(domain, tag string) Factory {
	return func(ctx *Context) (Integration, error) {
		return &mockIntegration{domain: domain, tag: tag}, nil
	}
}

func testContext(domain string) *Context {
	return NewContext(config.EntryConfig{ID: "e1", Domain: domain}, config.LocationConfig{}, zap.NewNop(), nil, nil, nil)
}

func TestRegistry_Register(t *testing.T) {
	tests := []struct {
		name        string
		info        Info
		wantErr     bool
		errContains string
	}{
		{
			name: "valid registration",
			info: Info{
				Domain:      "omie",
				Description: "Day-ahead prices",
				Priority:    PriorityDefault,
				Factory:     factoryFor("omie", "public"),
			},
		},
		{
			name:        "empty domain",
			info:        Info{Factory: factoryFor("", "")},
			wantErr:     true,
			errContains: "domain cannot be empty",
		},
		{
			name:        "nil factory",
			info:        Info{Domain: "omie"},
			wantErr:     true,
			errContains: "factory cannot be nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			registry := NewRegistry()
			err := registry.Register(tt.info)

			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errContains)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRegistry_PriorityOverride(t *testing.T) {
	registry := NewRegistry()

	require.NoError(t, registry.Register(Info{Domain: "garmin_connect", Factory: factoryFor("garmin_connect", "public")}))
	require.NoError(t, registry.Register(Info{Domain: "garmin_connect", Priority: PriorityOverride, Factory: factoryFor("garmin_connect", "private")}))

	// Lower priority arriving later is ignored
	require.NoError(t, registry.Register(Info{Domain: "garmin_connect", Factory: factoryFor("garmin_connect", "late")}))

	in, err := registry.Create(testContext("garmin_connect"))
	require.NoError(t, err)
	assert.Equal(t, "private", in.(*mockIntegration).tag)
	assert.Equal(t, []string{"garmin_connect"}, registry.Domains())
}

func TestRegistry_ListOrder(t *testing.T) {
	registry := NewRegistry()
	require.NoError(t, registry.Register(Info{Domain: "omie", Order: 60, Factory: factoryFor("omie", "")}))
	require.NoError(t, registry.Register(Info{Domain: "jewish_calendar", Order: 10, Factory: factoryFor("jewish_calendar", "")}))
	require.NoError(t, registry.Register(Info{Domain: "garmin_connect", Factory: factoryFor("garmin_connect", "")}))

	var domains []string
	for _, info := range registry.List() {
		domains = append(domains, info.Domain)
	}
	assert.Equal(t, []string{"jewish_calendar", "garmin_connect", "omie"}, domains)
	assert.Equal(t, 50, registry.Get("garmin_connect").Order)
}

func TestRegistry_CreateErrors(t *testing.T) {
	registry := NewRegistry()

	_, err := registry.Create(testContext("missing"))
	assert.ErrorContains(t, err, "unknown integration domain")

	require.NoError(t, registry.Register(Info{Domain: "broken", Factory: func(ctx *Context) (Integration, error) {
		return nil, errors.New("bad settings")
	}}))
	_, err = registry.Create(testContext("broken"))
	assert.ErrorContains(t, err, "bad settings")

	registry.Clear()
	assert.Nil(t, registry.Get("broken"))
	assert.Empty(t, registry.List())
}
