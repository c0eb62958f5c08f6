package garmin

import (
	"context"
	"errors"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/credential"

	"go.uber.org/zap"
)

// DefaultIntervals are used for coordinators without a configured scan interval
var DefaultIntervals = map[CoordinatorType]time.Duration{
	CoordinatorCore:          5 * time.Minute,
	CoordinatorActivity:      10 * time.Minute,
	CoordinatorTraining:      30 * time.Minute,
	CoordinatorBody:          30 * time.Minute,
	CoordinatorGoals:         time.Hour,
	CoordinatorGear:          time.Hour,
	CoordinatorBloodPressure: 30 * time.Minute,
	CoordinatorMenstrual:     time.Hour,
}

// Options configure the coordinator set of one account
type Options struct {
	Client    Client
	Store     *credential.Store
	Clock     clock.Clock
	Logger    *zap.Logger
	Timezone  *time.Location
	Intervals map[CoordinatorType]time.Duration
	Timeout   time.Duration
}

// Coordinators is the aggregate of all per-domain coordinators of one
// account. Every member shares the client and the credential store but
// refreshes, fails and recovers on its own.
type Coordinators struct {
	Core          *coordinator.Coordinator[CoreData]
	Activity      *coordinator.Coordinator[ActivityData]
	Training      *coordinator.Coordinator[TrainingData]
	Body          *coordinator.Coordinator[BodyData]
	Goals         *coordinator.Coordinator[GoalsData]
	Gear          *coordinator.Coordinator[GearData]
	BloodPressure *coordinator.Coordinator[BloodPressureData]
	Menstrual     *coordinator.Coordinator[MenstrualData]

	client    Client
	store     *credential.Store
	refresher *credential.Refresher
	clock     clock.Clock
	location  *time.Location
	logger    *zap.Logger
	group     *coordinator.Group
}

// NewCoordinators builds one coordinator per domain
func NewCoordinators(opts Options) *Coordinators {
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Timezone == nil {
		opts.Timezone = time.UTC
	}

	c := &Coordinators{
		client:   opts.Client,
		store:    opts.Store,
		clock:    opts.Clock,
		location: opts.Timezone,
		logger:   opts.Logger,
	}
	c.refresher = credential.NewRefresher(opts.Store, opts.Client, opts.Clock, opts.Logger)

	c.Core = newCoordinator(c, opts, CoordinatorCore, withDay(c, opts.Client.FetchCore))
	c.Activity = newCoordinator(c, opts, CoordinatorActivity, withDay(c, opts.Client.FetchActivity))
	c.Training = newCoordinator(c, opts, CoordinatorTraining, withDay(c, opts.Client.FetchTraining))
	c.Body = newCoordinator(c, opts, CoordinatorBody, withDay(c, opts.Client.FetchBody))
	c.Goals = newCoordinator(c, opts, CoordinatorGoals, withAuth(c, opts.Client.FetchGoals))
	c.Gear = newCoordinator(c, opts, CoordinatorGear, withAuth(c, opts.Client.FetchGear))
	c.BloodPressure = newCoordinator(c, opts, CoordinatorBloodPressure, withDay(c, opts.Client.FetchBloodPressure))
	c.Menstrual = newCoordinator(c, opts, CoordinatorMenstrual, withDay(c, opts.Client.FetchMenstrual))

	c.group = coordinator.NewGroup(Domain, opts.Logger, c.Members()...)
	return c
}

func newCoordinator[T any](c *Coordinators, opts Options, typ CoordinatorType, fetch coordinator.FetchFunc[T]) *coordinator.Coordinator[T] {
	interval := DefaultIntervals[typ]
	if d, ok := opts.Intervals[typ]; ok && d > 0 {
		interval = d
	}

	co := coordinator.New(coordinator.Options[T]{
		Name:     string(typ),
		Fetch:    fetch,
		Interval: coordinator.Every(interval),
		Timeout:  opts.Timeout,
		Clock:    opts.Clock,
		Logger:   opts.Logger,
	})
	co.OnSuccess(func(ctx context.Context, _ T) {
		c.persistTokens(ctx, typ)
	})
	return co
}

// withAuth makes sure the client holds a valid credential before fetching
func withAuth[T any](c *Coordinators, fetch func(ctx context.Context) (T, error)) coordinator.FetchFunc[T] {
	return func(ctx context.Context) (T, error) {
		var zero T
		tokens, err := c.refresher.Ensure(ctx)
		if err != nil {
			return zero, credentialError(err)
		}
		c.client.UseTokens(tokens)
		return fetch(ctx)
	}
}

func withDay[T any](c *Coordinators, fetch func(ctx context.Context, day time.Time) (T, error)) coordinator.FetchFunc[T] {
	return withAuth(c, func(ctx context.Context) (T, error) {
		return fetch(ctx, c.today())
	})
}

// credentialError keeps client errors as they are and turns a missing
// credential into an auth failure
func credentialError(err error) error {
	if errors.Is(err, credential.ErrMissing) {
		return &coordinator.AuthError{Op: "credential", Err: err}
	}
	var apiErr *coordinator.APIError
	if coordinator.IsAuthError(err) || errors.As(err, &apiErr) {
		return err
	}
	return &coordinator.APIError{Op: "credential", Err: err}
}

// persistTokens writes the client's credential back only if it changed
func (c *Coordinators) persistTokens(ctx context.Context, typ CoordinatorType) {
	tokens := c.client.Tokens()
	if tokens.IsZero() {
		return
	}
	changed, err := c.store.SetIfChanged(ctx, tokens)
	if err != nil {
		c.logger.Error("Failed to persist credential",
			zap.String("coordinator", string(typ)),
			zap.Error(err))
		return
	}
	if changed {
		c.logger.Info("Credential changed during refresh", zap.String("coordinator", string(typ)))
	}
}

func (c *Coordinators) today() time.Time {
	now := c.clock.Now().In(c.location)
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, c.location)
}

// Members returns the coordinators in setup order
func (c *Coordinators) Members() []coordinator.Member {
	return []coordinator.Member{
		c.Core,
		c.Activity,
		c.Training,
		c.Body,
		c.Goals,
		c.Gear,
		c.BloodPressure,
		c.Menstrual,
	}
}

// Member returns the coordinator of one type
func (c *Coordinators) Member(typ CoordinatorType) coordinator.Member {
	for _, m := range c.Members() {
		if m.Name() == string(typ) {
			return m
		}
	}
	return nil
}

// FirstRefreshAll runs the first refresh of every coordinator concurrently
func (c *Coordinators) FirstRefreshAll(ctx context.Context) error {
	return c.group.FirstRefreshAll(ctx)
}

// StartAll arms every coordinator's independent loop
func (c *Coordinators) StartAll(ctx context.Context) {
	c.group.StartAll(ctx)
}

// StopAll stops every coordinator
func (c *Coordinators) StopAll() {
	c.group.StopAll()
}

// Stats returns diagnostics for every coordinator
func (c *Coordinators) Stats() []coordinator.Stats {
	return c.group.Stats()
}
