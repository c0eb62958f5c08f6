package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Group bundles sibling coordinators that share one remote account. It runs
// their first refreshes together; afterwards every member polls on its own.
type Group struct {
	name    string
	logger  *zap.Logger
	mu      sync.RWMutex
	members []Member
}

// NewGroup creates a group with the given members
func NewGroup(name string, logger *zap.Logger, members ...Member) *Group {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Group{
		name:    name,
		logger:  logger.Named("group"),
		members: members,
	}
}

// Add appends a member to the group
func (g *Group) Add(m Member) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members = append(g.members, m)
}

// Members returns the members in registration order
func (g *Group) Members() []Member {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Member(nil), g.members...)
}

// FirstRefreshAll runs every member's first refresh concurrently and waits for
// all of them, even after a failure, so that every failing domain is reported
// and already-fetched data stays in place. Any failure fails the group.
func (g *Group) FirstRefreshAll(ctx context.Context) error {
	members := g.Members()
	errs := make([]error, len(members))

	var wg sync.WaitGroup
	for i, m := range members {
		wg.Add(1)
		go func(i int, m Member) {
			defer wg.Done()
			errs[i] = m.FirstRefresh(ctx)
		}(i, m)
	}
	wg.Wait()

	var combined error
	for i, err := range errs {
		if err == nil {
			continue
		}
		g.logger.Error("First refresh failed",
			zap.String("group", g.name),
			zap.String("coordinator", members[i].Name()),
			zap.Error(err))
		combined = multierr.Append(combined, err)
	}

	if combined != nil {
		return fmt.Errorf("%s: first refresh: %w", g.name, combined)
	}

	g.logger.Info("First refresh complete",
		zap.String("group", g.name),
		zap.Int("coordinators", len(members)))
	return nil
}

// FailedCoordinators lists the coordinator names carried by err
func FailedCoordinators(err error) []string {
	var names []string
	for _, e := range multierr.Errors(unwrapToMulti(err)) {
		var coordErr *Error
		if errors.As(e, &coordErr) {
			names = append(names, coordErr.Coordinator)
		}
	}
	return names
}

// unwrapToMulti strips fmt wrapping until a combined error (or a leaf) is reached
func unwrapToMulti(err error) error {
	for err != nil {
		switch err.(type) {
		case *Error, interface{ Errors() []error }:
			return err
		}
		next := errors.Unwrap(err)
		if next == nil {
			return err
		}
		err = next
	}
	return err
}

// StartAll starts every member's independent refresh loop
func (g *Group) StartAll(ctx context.Context) {
	for _, m := range g.Members() {
		m.Start(ctx)
	}
}

// StopAll stops every member
func (g *Group) StopAll() {
	for _, m := range g.Members() {
		m.Stop()
	}
}

// Stats returns diagnostics for every member
func (g *Group) Stats() []Stats {
	members := g.Members()
	out := make([]Stats, 0, len(members))
	for _, m := range members {
		out = append(out, m.Stats())
	}
	return out
}
