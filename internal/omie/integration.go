package omie

import (
	"context"
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
		Description: "OMIE Iberian day-ahead electricity prices",
		Priority:    integration.PriorityDefault,
		Factory:     Factory,
		Order:       60,
	}); err != nil {
		panic(err)
	}
}

// Settings are the entry settings of an OMIE entry
type Settings struct {
	BaseURL          string `yaml:"base_url"`
	Timeout          int    `yaml:"timeout"`
	IncludeYesterday bool   `yaml:"include_yesterday"`
}

// Integration runs one price coordinator
type Integration struct {
	entry   config.EntryConfig
	logger  *zap.Logger
	planner *Planner
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
	client := NewHTTPClient(HTTPOptions{
		BaseURL:    settings.BaseURL,
		Timeout:    time.Duration(settings.Timeout) * time.Second,
		HTTPClient: ictx.HTTPClient,
	}, ictx.Logger.Named(Domain))
	return New(ictx, client, settings.IncludeYesterday)
}

// New creates the integration with an explicit client
func New(ictx *integration.Context, client Client, includeYesterday bool) (*Integration, error) {
	logger := ictx.Logger.Named(Domain)

	planner, err := NewPlanner(PlannerOptions{
		Client:           client,
		IncludeYesterday: includeYesterday,
		Logger:           logger,
	})
	if err != nil {
		return nil, err
	}

	clk := ictx.Clock
	if clk == nil {
		clk = clock.NewRealClock()
	}

	coord := coordinator.New(coordinator.Options[Snapshot]{
		Name: "prices",
		Fetch: func(ctx context.Context) (Snapshot, error) {
			return planner.Refresh(ctx, clk.Now())
		},
		Interval: RefreshInterval(planner),
		Clock:    clk,
		Logger:   logger,
	})

	return &Integration{
		entry:   ictx.Entry,
		logger:  logger,
		planner: planner,
		coord:   coord,
	}, nil
}

// RefreshBoundary is the next quarter hour or publication cutoff, whichever
// comes first
func RefreshBoundary(p *Planner) scheduler.Boundary {
	return scheduler.Earliest(scheduler.QuarterHourly(p.Location()), p.Cutoff())
}

// RefreshInterval feeds RefreshBoundary to the coordinator
func RefreshInterval(p *Planner) coordinator.IntervalFunc {
	return scheduler.IntervalFunc(RefreshBoundary(p), scheduler.DefaultMargin)
}

// Domain implements integration.Integration
func (in *Integration) Domain() string {
	return Domain
}

// Setup runs the first refresh and creates the entities
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
	in.logger.Info("OMIE entities created",
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
		"cutoff":      in.planner.Cutoff().String(),
		"fetches":     in.planner.Fetches(),
		"cached_days": in.planner.CachedDays(),
		"coordinator": in.coord.Stats(),
	}
}

// Coordinator returns the price coordinator
func (in *Integration) Coordinator() *coordinator.Coordinator[Snapshot] {
	return in.coord
}

// Planner returns the fetch planner
func (in *Integration) Planner() *Planner {
	return in.planner
}

var (
	_ integration.Integration         = (*Integration)(nil)
	_ integration.DiagnosticsProvider = (*Integration)(nil)
)
