// Package host sets up configured integration entries, keeps retrying the
// ones that are not ready, restores and persists entity values and wires
// entities to the Home Assistant publisher.
package host

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"haintegrations/internal/api"
	"haintegrations/internal/clock"
	"haintegrations/internal/config"
	"haintegrations/internal/coordinator"
	"haintegrations/internal/entity"
	"haintegrations/internal/ha"
	"haintegrations/internal/store"
	"haintegrations/pkg/integration"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// EntryState is the lifecycle state of one configured entry
type EntryState string

const (
	StateNotLoaded      EntryState = "not_loaded"
	StateSetupRetry     EntryState = "setup_retry"
	StateLoaded         EntryState = "loaded"
	StateSetupError     EntryState = "setup_error"
	StateReauthRequired EntryState = "reauth_required"
)

// ErrUnknownEntry is returned for entry IDs the host does not manage
var ErrUnknownEntry = api.ErrUnknownEntry

// EntityStore is the entity-restore boundary
type EntityStore interface {
	integration.CredentialStore
	SaveEntityState(ctx context.Context, entryID, uniqueID string, value any) error
	LoadEntityStates(ctx context.Context, entryID string) (map[string]store.EntityState, error)
}

// RetryPolicy configures the setup backoff of entries that are not ready
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsed bounds the retries of one entry; zero retries forever
	MaxElapsed time.Duration
}

// DefaultRetryPolicy retries from 30s up to every 10 minutes, forever
var DefaultRetryPolicy = RetryPolicy{
	InitialInterval: 30 * time.Second,
	MaxInterval:     10 * time.Minute,
}

// Options configure a Host
type Options struct {
	Config    *config.Config
	Registry  *integration.Registry
	Store     EntityStore
	Publisher *ha.Publisher
	Clock     clock.Clock
	Logger    *zap.Logger
	Retry     RetryPolicy
}

// Entry is one configured integration entry and its runtime state
type Entry struct {
	cfg         config.EntryConfig
	integration integration.Integration

	mu      sync.RWMutex
	state   EntryState
	err     error
	helpers []string
	unsubs  []func()
	saved   map[string]any
}

// ID returns the entry ID
func (e *Entry) ID() string {
	return e.cfg.ID
}

// State returns the lifecycle state and the last setup error
func (e *Entry) State() (EntryState, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state, e.err
}

// Integration returns the integration instance, nil when creation failed
func (e *Entry) Integration() integration.Integration {
	return e.integration
}

func (e *Entry) setState(s EntryState, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = s
	e.err = err
}

// Host owns every configured entry
type Host struct {
	cfg       *config.Config
	store     EntityStore
	publisher *ha.Publisher
	clock     clock.Clock
	logger    *zap.Logger
	retry     RetryPolicy

	entries []*Entry
}

// New creates every enabled entry from the registry in setup order. An entry
// whose factory fails is kept in StateSetupError.
func New(opts Options) (*Host, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if opts.Registry == nil {
		opts.Registry = integration.Global()
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry = DefaultRetryPolicy
	}

	h := &Host{
		cfg:       opts.Config,
		store:     opts.Store,
		publisher: opts.Publisher,
		clock:     opts.Clock,
		logger:    opts.Logger.Named("host"),
		retry:     opts.Retry,
	}

	order := make(map[string]int)
	for _, info := range opts.Registry.List() {
		order[info.Domain] = info.Order
	}
	configured := make([]config.EntryConfig, 0, len(opts.Config.Integrations))
	for _, ec := range opts.Config.Integrations {
		if !ec.IsEnabled() {
			h.logger.Info("Entry disabled", zap.String("entry_id", ec.ID), zap.String("domain", ec.Domain))
			continue
		}
		configured = append(configured, ec)
	}
	sort.SliceStable(configured, func(i, j int) bool {
		return order[configured[i].Domain] < order[configured[j].Domain]
	})

	var creds integration.CredentialStore
	if opts.Store != nil {
		creds = opts.Store
	}
	tz := opts.Config.TimeLocation()

	for _, ec := range configured {
		entry := &Entry{cfg: ec, state: StateNotLoaded, saved: make(map[string]any)}
		ictx := integration.NewContext(ec, opts.Config.Location, opts.Logger, opts.Clock, tz, creds)
		in, err := opts.Registry.Create(ictx)
		if err != nil {
			h.logger.Error("Failed to create integration",
				zap.String("entry_id", ec.ID),
				zap.String("domain", ec.Domain),
				zap.Error(err))
			entry.setState(StateSetupError, err)
		}
		entry.integration = in
		h.entries = append(h.entries, entry)
	}
	return h, nil
}

// Entries returns the entries in setup order
func (h *Host) Entries() []*Entry {
	return append([]*Entry(nil), h.entries...)
}

// Entry returns an entry by ID
func (h *Host) Entry(id string) (*Entry, bool) {
	for _, e := range h.entries {
		if e.cfg.ID == id {
			return e, true
		}
	}
	return nil, false
}

// Run sets up every entry, runs the publisher and blocks until ctx is done.
// Entries are then unloaded.
func (h *Host) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, e := range h.entries {
		if e.integration == nil {
			continue
		}
		g.Go(func() error {
			if err := h.SetupEntry(gctx, e); err != nil && gctx.Err() == nil {
				h.logger.Error("Entry not loaded",
					zap.String("entry_id", e.cfg.ID),
					zap.String("domain", e.cfg.Domain),
					zap.Error(err))
			}
			return nil
		})
	}

	if h.publisher != nil {
		g.Go(func() error {
			return h.publisher.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return nil
	})

	err := g.Wait()
	h.UnloadAll()
	return err
}

// SetupEntry runs the entry's setup until it succeeds, retrying with
// exponential backoff while the integration is not ready. An authentication
// failure is never retried.
func (h *Host) SetupEntry(ctx context.Context, e *Entry) error {
	if e.integration == nil {
		_, err := e.State()
		return err
	}
	logger := h.logger.With(zap.String("entry_id", e.cfg.ID), zap.String("domain", e.cfg.Domain))

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = h.retry.InitialInterval
	bo.MaxInterval = h.retry.MaxInterval

	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		err := e.integration.Setup(ctx)
		switch {
		case err == nil:
			return struct{}{}, nil
		case errors.Is(err, coordinator.ErrAuthFailed):
			return struct{}{}, backoff.Permanent(err)
		case errors.Is(err, coordinator.ErrNotReady):
			e.setState(StateSetupRetry, err)
			return struct{}{}, err
		default:
			return struct{}{}, backoff.Permanent(err)
		}
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxElapsedTime(h.retry.MaxElapsed),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Warn("Setup not ready, retrying",
				zap.Error(err),
				zap.Duration("retry_in", next),
				zap.Strings("coordinators", coordinator.FailedCoordinators(err)))
		}))

	switch {
	case err == nil:
	case errors.Is(err, coordinator.ErrAuthFailed):
		e.setState(StateReauthRequired, err)
		return err
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		e.setState(StateSetupError, err)
		return err
	}

	h.activate(ctx, e)
	e.integration.Start(ctx)
	e.setState(StateLoaded, nil)
	logger.Info("Entry loaded", zap.Int("entities", len(e.integration.Entities())))
	return nil
}

// activate restores the entry's entities, binds helpers and attaches them.
// Restored values are seeded before Attach; the store wins over Home
// Assistant because the first seed sticks.
func (h *Host) activate(ctx context.Context, e *Entry) {
	entities := e.integration.Entities()

	if h.store != nil {
		stored, err := h.store.LoadEntityStates(ctx, e.cfg.ID)
		if err != nil {
			h.logger.Warn("Failed to load stored entity states",
				zap.String("entry_id", e.cfg.ID),
				zap.Error(err))
		}
		for _, ent := range entities {
			if st, ok := stored[ent.UniqueID()]; ok {
				ent.Seed(st.Value)
			}
		}
	}

	var helpers []string
	if h.publisher != nil {
		for _, ent := range entities {
			helper := e.cfg.Entities[ent.Key()].Helper
			if helper == "" {
				continue
			}
			if err := h.publisher.Bind(ent, helper); err != nil {
				h.logger.Warn("Invalid helper binding",
					zap.String("entity_id", ent.EntityID()),
					zap.Error(err))
				continue
			}
			helpers = append(helpers, helper)
		}
		if h.cfg.HomeAssistant.Restore && len(helpers) > 0 {
			if _, err := h.publisher.Restore(ctx, helpers...); err != nil {
				h.logger.Warn("Failed to restore from Home Assistant",
					zap.String("entry_id", e.cfg.ID),
					zap.Error(err))
			}
		}
	}

	var unsubs []func()
	if h.store != nil {
		for _, ent := range entities {
			unsubs = append(unsubs, ent.Subscribe(func(ent entity.Entity) { h.persist(e, ent) }))
		}
	}

	e.mu.Lock()
	e.helpers = helpers
	e.unsubs = unsubs
	e.mu.Unlock()

	for _, ent := range entities {
		ent.Attach()
	}
}

// persist saves changed entity values for the next restart
func (h *Host) persist(e *Entry, ent entity.Entity) {
	value := ent.Value()
	if value == nil {
		return
	}
	uid := ent.UniqueID()

	e.mu.Lock()
	last, ok := e.saved[uid]
	if ok && last == value {
		e.mu.Unlock()
		return
	}
	e.saved[uid] = value
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.store.SaveEntityState(ctx, e.cfg.ID, uid, value); err != nil {
		h.logger.Warn("Failed to persist entity state",
			zap.String("entity_id", ent.EntityID()),
			zap.Error(err))
		e.mu.Lock()
		delete(e.saved, uid)
		e.mu.Unlock()
	}
}

// Unload stops an entry and releases its helpers
func (h *Host) Unload(id string) error {
	e, ok := h.Entry(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	h.unload(e)
	return nil
}

func (h *Host) unload(e *Entry) {
	e.mu.Lock()
	helpers := e.helpers
	unsubs := e.unsubs
	e.helpers = nil
	e.unsubs = nil
	state := e.state
	e.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
	if h.publisher != nil {
		for _, helper := range helpers {
			h.publisher.Unbind(helper)
		}
	}
	if e.integration != nil {
		e.integration.Unload()
	}
	if state != StateSetupError && state != StateReauthRequired {
		e.setState(StateNotLoaded, nil)
	}
	h.logger.Info("Entry unloaded", zap.String("entry_id", e.cfg.ID))
}

// UnloadAll unloads every entry in reverse setup order
func (h *Host) UnloadAll() {
	for i := len(h.entries) - 1; i >= 0; i-- {
		h.unload(h.entries[i])
	}
}

// Refresh refreshes every coordinator of a loaded entry, continuing past
// failures
func (h *Host) Refresh(ctx context.Context, id string) error {
	e, ok := h.Entry(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEntry, id)
	}
	if state, _ := e.State(); state != StateLoaded {
		return fmt.Errorf("entry %s is %s", id, state)
	}

	members := e.integration.Coordinators()
	var errs error
	success := 0
	for _, m := range members {
		if err := m.Refresh(ctx); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		success++
	}
	h.logger.Info("Manual refresh complete",
		zap.String("entry_id", id),
		zap.Int("success", success),
		zap.Int("total", len(members)))
	return errs
}

// Integrations implements api.Provider
func (h *Host) Integrations() []api.IntegrationStatus {
	out := make([]api.IntegrationStatus, 0, len(h.entries))
	for _, e := range h.entries {
		state, err := e.State()
		st := api.IntegrationStatus{
			EntryID: e.cfg.ID,
			Domain:  e.cfg.Domain,
			Name:    e.cfg.Name,
			State:   string(state),
		}
		if err != nil {
			st.Error = err.Error()
		}
		if e.integration != nil {
			for _, m := range e.integration.Coordinators() {
				st.Coordinators = append(st.Coordinators, m.Stats())
			}
			if dp, ok := e.integration.(integration.DiagnosticsProvider); ok {
				st.Diagnostics = dp.Diagnostics()
			}
		}
		out = append(out, st)
	}
	return out
}

// EntityStates implements api.Provider
func (h *Host) EntityStates(domain string) ([]entity.State, bool) {
	var out []entity.State
	found := false
	for _, e := range h.entries {
		if e.cfg.Domain != domain {
			continue
		}
		found = true
		if e.integration == nil {
			continue
		}
		for _, ent := range e.integration.Entities() {
			out = append(out, ent.Snapshot())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EntityID < out[j].EntityID })
	return out, found
}

var _ api.Provider = (*Host)(nil)
