package garmin

import (
	"context"
	"fmt"
	"sync"
	"time"

	"haintegrations/internal/config"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/credential"
	"haintegrations/internal/entity"
	"haintegrations/pkg/integration"

	"go.uber.org/zap"
)

func init() {
	if err := integration.Register(integration.Info{
		Domain:      Domain,
		Description: "Garmin Connect health and fitness data",
		Priority:    integration.PriorityDefault,
		Factory:     Factory,
		Order:       50,
	}); err != nil {
		panic(err)
	}
}

// Settings are the entry settings of a Garmin entry
type Settings struct {
	BaseURL   string `yaml:"base_url"`
	UserAgent string `yaml:"user_agent"`
	Timeout   int    `yaml:"timeout"`

	// Initial tokens, used only when nothing has been persisted yet
	OAuth1Token   string `yaml:"oauth1_token"`
	OAuth1Secret  string `yaml:"oauth1_secret"`
	OAuth2Token   string `yaml:"oauth2_token"`
	OAuth2Refresh string `yaml:"oauth2_refresh"`
}

// Integration wires the coordinator set of one account to its entities
type Integration struct {
	entry  config.EntryConfig
	logger *zap.Logger
	store  *credential.Store
	coords *Coordinators

	mu       sync.RWMutex
	entities []entity.Entity
}

// Factory creates the integration from its config entry
func Factory(ictx *integration.Context) (integration.Integration, error) {
	var settings Settings
	if err := ictx.Entry.DecodeSettings(&settings); err != nil {
		return nil, err
	}

	client := NewHTTPClient(HTTPOptions{
		BaseURL:    settings.BaseURL,
		UserAgent:  settings.UserAgent,
		Timeout:    time.Duration(settings.Timeout) * time.Second,
		HTTPClient: ictx.HTTPClient,
		Clock:      ictx.Clock,
	}, ictx.Logger.Named(Domain))

	initial := credential.Credential{
		OAuth1Token:   settings.OAuth1Token,
		OAuth1Secret:  settings.OAuth1Secret,
		OAuth2Token:   settings.OAuth2Token,
		OAuth2Refresh: settings.OAuth2Refresh,
	}
	return New(ictx, client, initial)
}

// New creates the integration with an explicit client. The persisted
// credential takes precedence over initial.
func New(ictx *integration.Context, client Client, initial credential.Credential) (*Integration, error) {
	logger := ictx.Logger.Named(Domain)

	var persister credential.Persister
	if ictx.Credentials != nil {
		persister = ictx.Credentials

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		stored, ok, err := ictx.Credentials.LoadCredential(ctx, ictx.Entry.ID)
		cancel()
		if err != nil {
			return nil, fmt.Errorf("failed to load credential: %w", err)
		}
		if ok {
			initial = stored
		}
	}

	store := credential.NewStore(ictx.Entry.ID, initial, persister, logger)

	intervals := make(map[CoordinatorType]time.Duration)
	for _, typ := range AllCoordinatorTypes {
		intervals[typ] = ictx.Entry.ScanInterval(string(typ), DefaultIntervals[typ])
	}

	coords := NewCoordinators(Options{
		Client:    client,
		Store:     store,
		Clock:     ictx.Clock,
		Logger:    logger,
		Timezone:  ictx.Timezone,
		Intervals: intervals,
	})

	return &Integration{
		entry:  ictx.Entry,
		logger: logger,
		store:  store,
		coords: coords,
	}, nil
}

// Domain implements integration.Integration
func (in *Integration) Domain() string {
	return Domain
}

// Setup runs every coordinator's first refresh and creates the entities
func (in *Integration) Setup(ctx context.Context) error {
	if err := in.coords.FirstRefreshAll(ctx); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.entities != nil {
		return nil
	}

	prefix := in.entry.Domain
	var out []entity.Entity
	out = appendSensors(out, in.entry, prefix, CoreSensors, in.coords.Core)
	out = appendSensors(out, in.entry, prefix, ActivitySensors, in.coords.Activity)
	out = appendSensors(out, in.entry, prefix, TrainingSensors, in.coords.Training)
	out = appendSensors(out, in.entry, prefix, BodySensors, in.coords.Body)
	out = appendSensors(out, in.entry, prefix, GoalsSensors, in.coords.Goals)
	out = appendSensors(out, in.entry, prefix, BloodPressureSensors, in.coords.BloodPressure)
	out = appendSensors(out, in.entry, prefix, MenstrualSensors, in.coords.Menstrual)
	out = appendSensors(out, in.entry, prefix, GearSummarySensors, in.coords.Gear)

	// Gear sensors are created from the gear present at setup
	if gear, ok := in.coords.Gear.Data(); ok {
		out = appendSensors(out, in.entry, prefix, GearSensors(gear), in.coords.Gear)
	}

	in.entities = out
	in.logger.Info("Garmin entities created",
		zap.String("entry_id", in.entry.ID),
		zap.Int("entities", len(out)))
	return nil
}

// appendSensors applies the entry overrides and skips disabled descriptions
func appendSensors[T any](out []entity.Entity, entry config.EntryConfig, prefix string, descs []entity.Description[T], source entity.Source[T]) []entity.Entity {
	for _, desc := range descs {
		if o, ok := entry.Entities[desc.Key]; ok {
			desc = entity.ApplyOverride(desc, entity.Override{PreserveValue: o.PreserveValue, Enabled: o.Enabled})
		}
		if !desc.EnabledByDefault {
			continue
		}
		out = append(out, entity.NewSensor(prefix, desc, source))
	}
	return out
}

// Start implements integration.Integration
func (in *Integration) Start(ctx context.Context) {
	in.coords.StartAll(ctx)
}

// Unload stops every coordinator and detaches the entities
func (in *Integration) Unload() {
	in.coords.StopAll()

	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, e := range in.entities {
		e.Detach()
	}
}

// Coordinators implements integration.Integration
func (in *Integration) Coordinators() []coordinator.Member {
	return in.coords.Members()
}

// Entities implements integration.Integration
func (in *Integration) Entities() []entity.Entity {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]entity.Entity(nil), in.entities...)
}

// Diagnostics implements integration.DiagnosticsProvider
func (in *Integration) Diagnostics() map[string]interface{} {
	cred := in.store.Get()
	return map[string]interface{}{
		"credential_writes":     in.store.Writes(),
		"credential_present":    !cred.IsZero(),
		"credential_expires_at": cred.ExpiresAt,
		"coordinators":          in.coords.Stats(),
	}
}

// Store returns the shared credential store
func (in *Integration) Store() *credential.Store {
	return in.store
}

// CoordinatorSet returns the typed coordinators
func (in *Integration) CoordinatorSet() *Coordinators {
	return in.coords
}

var (
	_ integration.Integration         = (*Integration)(nil)
	_ integration.DiagnosticsProvider = (*Integration)(nil)
)
