// Package coordinator implements independently scheduled polling units.
//
// A Coordinator owns one narrow slice of remote data. It fetches through an
// injected function, classifies failures into the AuthFailed / NotReady /
// UpdateFailed taxonomy, atomically replaces its snapshot on success and
// notifies listeners after every refresh, successful or not. It has no
// knowledge of the remote protocol.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"haintegrations/internal/clock"

	"go.uber.org/zap"
)

const (
	// DefaultTimeout bounds a single fetch
	DefaultTimeout = 10 * time.Second

	// DefaultInterval is used when no interval function is configured
	DefaultInterval = 5 * time.Minute

	// minInterval guards against interval functions that return zero or negative durations
	minInterval = time.Second
)

// FetchFunc retrieves one complete snapshot. It returns either a full snapshot
// or an error; partial results are the client's concern.
type FetchFunc[T any] func(ctx context.Context) (T, error)

// IntervalFunc computes the delay until the next refresh, measured from the
// completion of the previous one.
type IntervalFunc func(now time.Time) time.Duration

// Every returns a fixed polling interval
func Every(d time.Duration) IntervalFunc {
	return func(time.Time) time.Duration { return d }
}

// SuccessHook runs after every successful refresh while the coordinator is active
type SuccessHook[T any] func(ctx context.Context, data T)

// Options configure a Coordinator
type Options[T any] struct {
	Name     string
	Fetch    FetchFunc[T]
	Interval IntervalFunc
	Timeout  time.Duration
	Clock    clock.Clock
	Logger   *zap.Logger
}

// Stats is a point-in-time view of a coordinator for diagnostics
type Stats struct {
	Name              string    `json:"name"`
	HasData           bool      `json:"has_data"`
	LastUpdateSuccess bool      `json:"last_update_success"`
	LastUpdate        time.Time `json:"last_update"`
	LastError         string    `json:"last_error,omitempty"`
	NextRefresh       time.Time `json:"next_refresh"`
	Refreshes         int       `json:"refreshes"`
	Failures          int       `json:"failures"`
	SkippedTicks      int       `json:"skipped_ticks"`
}

// Member is the type-erased view of a coordinator used by Group and the host
type Member interface {
	Name() string
	FirstRefresh(ctx context.Context) error
	Refresh(ctx context.Context) error
	Start(ctx context.Context)
	Stop()
	LastUpdateSuccess() bool
	Stats() Stats
}

type listener struct {
	id int
	fn func()
}

// Coordinator is a single polling domain producing snapshots of type T
type Coordinator[T any] struct {
	name     string
	fetch    FetchFunc[T]
	interval IntervalFunc
	timeout  time.Duration
	clock    clock.Clock
	logger   *zap.Logger

	// refreshMu serializes refreshes; mu guards the state below
	refreshMu  sync.Mutex
	refreshing atomic.Bool

	mu          sync.RWMutex
	data        T
	hasData     bool
	lastErr     error
	lastSuccess bool
	lastUpdate  time.Time
	refreshes   int
	failures    int
	skipped     int
	hooks       []SuccessHook[T]
	listeners   []listener
	nextID      int

	// hookMu is held while hooks run and while Stop deactivates, so no hook
	// is in flight once Stop returns
	hookMu    sync.Mutex
	active    atomic.Bool
	timerMu   sync.Mutex
	timer     clock.Timer
	nextAt    time.Time
	started   bool
	loopCtx   context.Context
	cancelCtx context.CancelFunc
}

// New creates a coordinator. It is active until Stop is called.
func New[T any](opts Options[T]) *Coordinator[T] {
	if opts.Interval == nil {
		opts.Interval = Every(DefaultInterval)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Clock == nil {
		opts.Clock = clock.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	c := &Coordinator[T]{
		name:     opts.Name,
		fetch:    opts.Fetch,
		interval: opts.Interval,
		timeout:  opts.Timeout,
		clock:    opts.Clock,
		logger:   opts.Logger.Named(opts.Name),
	}
	c.active.Store(true)
	return c
}

// Name returns the coordinator name
func (c *Coordinator[T]) Name() string {
	return c.name
}

// OnSuccess registers a hook that runs after each successful refresh
func (c *Coordinator[T]) OnSuccess(hook SuccessHook[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks = append(c.hooks, hook)
}

// Data returns the last successful snapshot, or false if there never was one
func (c *Coordinator[T]) Data() (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data, c.hasData
}

// LastUpdateSuccess reports whether the most recent refresh succeeded
func (c *Coordinator[T]) LastUpdateSuccess() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastSuccess
}

// LastException returns the error of the most recent refresh, or nil
func (c *Coordinator[T]) LastException() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// LastUpdateTime returns when the snapshot was last replaced
func (c *Coordinator[T]) LastUpdateTime() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastUpdate
}

// Active reports whether the coordinator has not been stopped
func (c *Coordinator[T]) Active() bool {
	return c.active.Load()
}

// AddListener subscribes fn to change notifications. The returned function
// detaches it.
func (c *Coordinator[T]) AddListener(fn func()) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners = append(c.listeners, listener{id: id, fn: fn})

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		for i, l := range c.listeners {
			if l.id == id {
				c.listeners = append(c.listeners[:i], c.listeners[i+1:]...)
				return
			}
		}
	}
}

// ListenerCount returns the number of attached listeners
func (c *Coordinator[T]) ListenerCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.listeners)
}

// FirstRefresh performs the mandatory initial fetch. Auth failures return
// ErrAuthFailed; anything else returns ErrNotReady.
func (c *Coordinator[T]) FirstRefresh(ctx context.Context) error {
	return c.refresh(ctx, ErrNotReady)
}

// Refresh performs a steady-state fetch. Auth failures return ErrAuthFailed;
// anything else returns ErrUpdateFailed and keeps the previous snapshot.
func (c *Coordinator[T]) Refresh(ctx context.Context) error {
	return c.refresh(ctx, ErrUpdateFailed)
}

func (c *Coordinator[T]) refresh(ctx context.Context, failKind error) error {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	c.refreshing.Store(true)
	defer c.refreshing.Store(false)

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	data, err := c.fetch(fetchCtx)
	cancel()

	if err != nil {
		coordErr := classify(c.name, err, failKind)

		c.mu.Lock()
		c.lastErr = coordErr
		c.lastSuccess = false
		c.failures++
		c.mu.Unlock()

		c.logger.Warn("Refresh failed",
			zap.String("kind", coordErr.Kind.Error()),
			zap.Error(err))

		c.notify()
		return coordErr
	}

	c.mu.Lock()
	c.data = data
	c.hasData = true
	c.lastErr = nil
	c.lastSuccess = true
	c.lastUpdate = c.clock.Now()
	c.refreshes++
	hooks := append([]SuccessHook[T](nil), c.hooks...)
	c.mu.Unlock()

	c.logger.Debug("Refresh succeeded")

	// Hooks publish shared state, so they never run after unload
	c.hookMu.Lock()
	if c.active.Load() {
		for _, hook := range hooks {
			hook(ctx, data)
		}
	}
	c.hookMu.Unlock()

	c.notify()
	return nil
}

// notify calls every listener synchronously, in subscription order
func (c *Coordinator[T]) notify() {
	c.mu.RLock()
	listeners := append([]listener(nil), c.listeners...)
	c.mu.RUnlock()

	for _, l := range listeners {
		l.fn()
	}
}

// Start arms the refresh loop. The next refresh is scheduled relative to the
// completion of the previous one.
func (c *Coordinator[T]) Start(ctx context.Context) {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()

	if c.started || !c.active.Load() {
		return
	}
	c.started = true
	c.loopCtx, c.cancelCtx = context.WithCancel(ctx)
	c.scheduleLocked()

	c.logger.Info("Coordinator started", zap.Time("next_refresh", c.nextAt))
}

// Stop cancels the pending refresh, detaches all listeners and marks the
// coordinator inactive. An in-flight fetch may still complete, but its
// success hooks are skipped. Stop waits for hooks already running and must
// not be called from a hook.
func (c *Coordinator[T]) Stop() {
	c.hookMu.Lock()
	stopped := c.active.CompareAndSwap(true, false)
	c.hookMu.Unlock()
	if !stopped {
		return
	}

	c.timerMu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelCtx != nil {
		c.cancelCtx()
	}
	c.timerMu.Unlock()

	c.mu.Lock()
	c.listeners = nil
	c.mu.Unlock()

	c.logger.Info("Coordinator stopped")
}

func (c *Coordinator[T]) scheduleLocked() {
	if !c.active.Load() {
		return
	}

	now := c.clock.Now()
	delay := c.interval(now)
	if delay < minInterval {
		delay = minInterval
	}
	c.nextAt = now.Add(delay)
	c.timer = c.clock.AfterFunc(delay, c.onTimer)
}

func (c *Coordinator[T]) onTimer() {
	if !c.active.Load() {
		return
	}

	// A manual refresh is still running: skip this tick and catch up on the next
	if c.refreshing.Load() {
		c.mu.Lock()
		c.skipped++
		c.mu.Unlock()
		c.logger.Debug("Skipping scheduled refresh, previous refresh still running")
	} else {
		c.timerMu.Lock()
		ctx := c.loopCtx
		c.timerMu.Unlock()

		if err := c.Refresh(ctx); err != nil {
			c.logger.Debug("Scheduled refresh failed", zap.Error(err))
		}
	}

	c.timerMu.Lock()
	c.scheduleLocked()
	c.timerMu.Unlock()
}

// Stats returns a diagnostic snapshot of the coordinator
func (c *Coordinator[T]) Stats() Stats {
	c.timerMu.Lock()
	next := c.nextAt
	c.timerMu.Unlock()

	c.mu.RLock()
	defer c.mu.RUnlock()

	s := Stats{
		Name:              c.name,
		HasData:           c.hasData,
		LastUpdateSuccess: c.lastSuccess,
		LastUpdate:        c.lastUpdate,
		NextRefresh:       next,
		Refreshes:         c.refreshes,
		Failures:          c.failures,
		SkippedTicks:      c.skipped,
	}
	if c.lastErr != nil {
		s.LastError = c.lastErr.Error()
	}
	return s
}

// String implements fmt.Stringer for log output
func (c *Coordinator[T]) String() string {
	return fmt.Sprintf("coordinator(%s)", c.name)
}

var _ Member = (*Coordinator[struct{}])(nil)
