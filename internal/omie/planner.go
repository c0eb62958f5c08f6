package omie

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"haintegrations/internal/coordinator"
	"haintegrations/internal/scheduler"

	"go.uber.org/zap"
)

// PlannerOptions configure a Planner
type PlannerOptions struct {
	Client Client
	// Location is the market timezone, Europe/Madrid unless overridden
	Location         *time.Location
	IncludeYesterday bool
	Logger           *zap.Logger
}

// Planner decides which market days to fetch and memoizes complete days, so
// a day is downloaded once no matter how often the coordinator refreshes.
type Planner struct {
	client           Client
	location         *time.Location
	cutoff           scheduler.DailyAt
	includeYesterday bool
	logger           *zap.Logger

	mu      sync.Mutex
	cache   map[string]DayResult
	fetches int
}

// NewPlanner creates a planner
func NewPlanner(opts PlannerOptions) (*Planner, error) {
	loc := opts.Location
	if loc == nil {
		var err error
		loc, err = time.LoadLocation(MarketTimezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load market timezone: %w", err)
		}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Planner{
		client:           opts.Client,
		location:         loc,
		cutoff:           scheduler.DailyAt{Hour: CutoffHour, Minute: CutoffMinute, Location: loc},
		includeYesterday: opts.IncludeYesterday,
		logger:           logger.Named("planner"),
		cache:            make(map[string]DayResult),
	}, nil
}

// Location returns the market timezone
func (p *Planner) Location() *time.Location {
	return p.location
}

// Cutoff returns the daily publication cutoff
func (p *Planner) Cutoff() scheduler.DailyAt {
	return p.cutoff
}

// marketDay returns market midnight offset days from the market day of now
func (p *Planner) marketDay(now time.Time, offset int) time.Time {
	local := now.In(p.location)
	return time.Date(local.Year(), local.Month(), local.Day()+offset, 0, 0, 0, 0, p.location)
}

func dayKey(day time.Time) string {
	return day.Format(time.DateOnly)
}

// wanted lists the days the snapshot should hold at now: yesterday when
// enabled, today, and tomorrow once the publication cutoff has passed
func (p *Planner) wanted(now time.Time) []time.Time {
	var days []time.Time
	if p.includeYesterday {
		days = append(days, p.marketDay(now, -1))
	}
	days = append(days, p.marketDay(now, 0))
	if p.cutoff.Reached(now) {
		days = append(days, p.marketDay(now, 1))
	}
	return days
}

// DatesToFetch returns the wanted days that are not cached as complete
func (p *Planner) DatesToFetch(now time.Time) []time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.datesToFetchLocked(now)
}

func (p *Planner) datesToFetchLocked(now time.Time) []time.Time {
	var out []time.Time
	for _, day := range p.wanted(now) {
		if cached, ok := p.cache[dayKey(day)]; ok && cached.Complete() {
			continue
		}
		out = append(out, day)
	}
	return out
}

// Refresh fetches whatever is missing and returns the snapshot at now.
// Failing to get today is an error; tomorrow not being published yet is not.
func (p *Planner) Refresh(ctx context.Context, now time.Time) (Snapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	today := p.marketDay(now, 0)
	for _, day := range p.datesToFetchLocked(now) {
		res, err := p.client.FetchDay(ctx, day)
		p.fetches++
		if err != nil {
			if day.Equal(today) {
				return Snapshot{}, todayError(day, err)
			}
			if errors.Is(err, ErrNotPublished) {
				p.logger.Debug("Prices not published yet", zap.String("day", dayKey(day)))
			} else {
				p.logger.Warn("Failed to fetch prices",
					zap.String("day", dayKey(day)),
					zap.Error(err))
			}
			continue
		}
		p.cache[dayKey(day)] = res
		if !res.Complete() {
			p.logger.Warn("Incomplete price file, will fetch again",
				zap.String("day", dayKey(day)),
				zap.Int("periods", res.Periods()))
		}
	}

	p.pruneLocked(now)

	snap := Snapshot{At: now}
	get := func(offset int) *DayResult {
		if res, ok := p.cache[dayKey(p.marketDay(now, offset))]; ok {
			return &res
		}
		return nil
	}
	if p.includeYesterday {
		snap.Yesterday = get(-1)
	}
	snap.Today = get(0)
	if p.cutoff.Reached(now) {
		snap.Tomorrow = get(1)
	}
	return snap, nil
}

func todayError(day time.Time, err error) error {
	var apiErr *coordinator.APIError
	if errors.As(err, &apiErr) || coordinator.IsAuthError(err) {
		return err
	}
	return &coordinator.APIError{Op: "fetch " + dayKey(day), Err: err}
}

// pruneLocked drops days that fell out of the window
func (p *Planner) pruneLocked(now time.Time) {
	keep := make(map[string]bool)
	for _, day := range p.wanted(now) {
		keep[dayKey(day)] = true
	}
	// Tomorrow stays cached before the cutoff so it survives a clock that
	// moves back across it
	keep[dayKey(p.marketDay(now, 1))] = true

	for key := range p.cache {
		if !keep[key] {
			delete(p.cache, key)
		}
	}
}

// Fetches returns the number of download attempts so far
func (p *Planner) Fetches() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.fetches
}

// CachedDays returns the cached market days in order
func (p *Planner) CachedDays() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.cache))
	for key := range p.cache {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}
