package jewishcalendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/config"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/entity"
	"haintegrations/internal/scheduler"
	"haintegrations/pkg/integration"

	"go.uber.org/zap"
)

func init() {
	if err := integration.Register(integration.Info{
		Domain:      Domain,
		Description: "Hebrew date, holidays and zmanim",
		Priority:    integration.PriorityDefault,
		Factory:     Factory,
		Order:       70,
	}); err != nil {
		panic(err)
	}
}

// Settings are the entry settings of a calendar entry
type Settings struct {
	Diaspora bool `yaml:"diaspora"`
	// Offsets in minutes; zero uses the defaults
	CandleLightingMinutes int `yaml:"candle_lighting_minutes"`
	HavdalahMinutes       int `yaml:"havdalah_minutes"`
}

// Integration runs one calendar coordinator
type Integration struct {
	entry   config.EntryConfig
	logger  *zap.Logger
	service *Service
	coord   *coordinator.Coordinator[Snapshot]

	mu       sync.RWMutex
	entities []entity.Entity
}

// Factory creates the integration from its config entry
func Factory(ictx *integration.Context) (integration.Integration, error) {
	var settings Settings
	if err := ictx.Entry.DecodeSettings(&settings); err != nil {
		return nil, err
	}
	return New(ictx, settings)
}

// New creates the integration
func New(ictx *integration.Context, settings Settings) (*Integration, error) {
	loc := ictx.Location
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return nil, fmt.Errorf("jewish calendar: invalid coordinates %.4f,%.4f", loc.Latitude, loc.Longitude)
	}
	if settings.CandleLightingMinutes < 0 || settings.HavdalahMinutes < 0 {
		return nil, fmt.Errorf("jewish calendar: offsets must not be negative")
	}

	logger := ictx.Logger.Named(Domain)
	tz := ictx.Timezone
	if tz == nil {
		tz = time.UTC
	}
	clk := ictx.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	service := NewService(Calculator{
		Latitude:       loc.Latitude,
		Longitude:      loc.Longitude,
		Location:       tz,
		CandleLighting: time.Duration(settings.CandleLightingMinutes) * time.Minute,
		Havdalah:       time.Duration(settings.HavdalahMinutes) * time.Minute,
	}, settings.Diaspora)

	coord := coordinator.New(coordinator.Options[Snapshot]{
		Name: "calendar",
		Fetch: func(ctx context.Context) (Snapshot, error) {
			return service.Compute(clk.Now()), nil
		},
		Interval: RefreshInterval(service),
		Clock:    clk,
		Logger:   logger,
	})

	return &Integration{
		entry:   ictx.Entry,
		logger:  logger,
		service: service,
		coord:   coord,
	}, nil
}

// RefreshBoundary is local midnight or the next sunset, candle lighting or
// tzeit, whichever comes first
func RefreshBoundary(s *Service) scheduler.Boundary {
	return scheduler.Earliest(
		scheduler.DailyAt{Location: s.Location()},
		scheduler.BoundaryFunc(s.Next),
	)
}

// RefreshInterval feeds RefreshBoundary to the coordinator
func RefreshInterval(s *Service) coordinator.IntervalFunc {
	return scheduler.IntervalFunc(RefreshBoundary(s), scheduler.DefaultMargin)
}

// Domain implements integration.Integration
func (in *Integration) Domain() string {
	return Domain
}

// Setup computes the first snapshot and creates the entities
func (in *Integration) Setup(ctx context.Context) error {
	if err := in.coord.FirstRefresh(ctx); err != nil {
		return err
	}

	in.mu.Lock()
	defer in.mu.Unlock()
	if in.entities != nil {
		return nil
	}
	for _, desc := range Sensors {
		if o, ok := in.entry.Entities[desc.Key]; ok {
			desc = entity.ApplyOverride(desc, entity.Override{PreserveValue: o.PreserveValue, Enabled: o.Enabled})
		}
		if !desc.EnabledByDefault {
			continue
		}
		in.entities = append(in.entities, entity.NewSensor(in.entry.Domain, desc, in.coord))
	}
	in.logger.Debug("Calendar entities created",
		zap.String("entry_id", in.entry.ID),
		zap.Int("entities", len(in.entities)))
	return nil
}

// Start implements integration.Integration
func (in *Integration) Start(ctx context.Context) {
	in.coord.Start(ctx)
}

// Unload implements integration.Integration
func (in *Integration) Unload() {
	in.coord.Stop()

	in.mu.RLock()
	defer in.mu.RUnlock()
	for _, e := range in.entities {
		e.Detach()
	}
}

// Coordinators implements integration.Integration
func (in *Integration) Coordinators() []coordinator.Member {
	return []coordinator.Member{in.coord}
}

// Entities implements integration.Integration
func (in *Integration) Entities() []entity.Entity {
	in.mu.RLock()
	defer in.mu.RUnlock()
	return append([]entity.Entity(nil), in.entities...)
}

// Diagnostics implements integration.DiagnosticsProvider
func (in *Integration) Diagnostics() map[string]interface{} {
	return map[string]interface{}{
		"timezone":    in.service.Location().String(),
		"diaspora":    in.service.diaspora,
		"coordinator": in.coord.Stats(),
	}
}

// Service returns the calendar service
func (in *Integration) Service() *Service {
	return in.service
}

// Coordinator returns the calendar coordinator
func (in *Integration) Coordinator() *coordinator.Coordinator[Snapshot] {
	return in.coord
}

var (
	_ integration.Integration         = (*Integration)(nil)
	_ integration.DiagnosticsProvider = (*Integration)(nil)
)
