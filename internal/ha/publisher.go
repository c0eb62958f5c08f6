package ha

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"haintegrations/internal/entity"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Publisher mirrors entity values into Home Assistant helper entities
// (input_number, input_text, input_boolean). Entity updates only mark the
// helper dirty; Run or Flush performs the service calls so coordinator
// refreshes never block on the WebSocket.
type Publisher struct {
	client   HAClient
	logger   *zap.Logger
	readOnly bool

	mu        sync.Mutex
	bindings  map[string]entity.Entity // helper → entity
	unsubs    map[string]func()
	dirty     map[string]bool
	published map[string]string
	wake      chan struct{}
}

// NewPublisher creates a publisher. In read-only mode service calls are
// logged instead of sent.
func NewPublisher(client HAClient, readOnly bool, logger *zap.Logger) *Publisher {
	return &Publisher{
		client:    client,
		logger:    logger.Named("publisher"),
		readOnly:  readOnly,
		bindings:  make(map[string]entity.Entity),
		unsubs:    make(map[string]func()),
		dirty:     make(map[string]bool),
		published: make(map[string]string),
		wake:      make(chan struct{}, 1),
	}
}

// HelperDomain returns the domain of a helper entity ID
func HelperDomain(helper string) (string, error) {
	domain, name, ok := strings.Cut(helper, ".")
	if !ok || name == "" {
		return "", fmt.Errorf("invalid helper entity %q", helper)
	}
	switch domain {
	case DomainInputNumber, DomainInputText, DomainInputBoolean:
		return domain, nil
	default:
		return "", fmt.Errorf("helper %q: unsupported domain %s", helper, domain)
	}
}

// Bind publishes every change of e to helper
func (p *Publisher) Bind(e entity.Entity, helper string) error {
	if _, err := HelperDomain(helper); err != nil {
		return err
	}

	p.mu.Lock()
	if unsub, ok := p.unsubs[helper]; ok {
		unsub()
	}
	p.bindings[helper] = e
	p.unsubs[helper] = e.Subscribe(func(entity.Entity) { p.markDirty(helper) })
	p.mu.Unlock()

	p.markDirty(helper)
	return nil
}

// Unbind stops publishing to helper
func (p *Publisher) Unbind(helper string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if unsub, ok := p.unsubs[helper]; ok {
		unsub()
	}
	delete(p.unsubs, helper)
	delete(p.bindings, helper)
	delete(p.dirty, helper)
	delete(p.published, helper)
}

// Helpers returns the bound helper IDs, sorted
func (p *Publisher) Helpers() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.bindings))
	for h := range p.bindings {
		out = append(out, h)
	}
	sort.Strings(out)
	return out
}

func (p *Publisher) markDirty(helper string) {
	p.mu.Lock()
	p.dirty[helper] = true
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Invalidate forgets what was published and marks every helper dirty, e.g.
// after a reconnect
func (p *Publisher) Invalidate() {
	p.mu.Lock()
	p.published = make(map[string]string)
	for h := range p.bindings {
		p.dirty[h] = true
	}
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Run flushes dirty helpers whenever an entity changes, until ctx is done
func (p *Publisher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
			if err := p.Flush(ctx); err != nil {
				p.logger.Warn("Publishing failed", zap.Error(err))
			}
		}
	}
}

// Flush publishes every dirty helper. Helpers that fail stay dirty.
func (p *Publisher) Flush(ctx context.Context) error {
	if !p.readOnly && !p.client.IsConnected() {
		return ErrNotConnected
	}

	p.mu.Lock()
	work := make(map[string]entity.Entity, len(p.dirty))
	for h := range p.dirty {
		if e, ok := p.bindings[h]; ok {
			work[h] = e
		}
		delete(p.dirty, h)
	}
	p.mu.Unlock()

	var errs error
	for helper, e := range work {
		if err := p.publish(ctx, helper, e); err != nil {
			p.mu.Lock()
			p.dirty[helper] = true
			p.mu.Unlock()
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", helper, err))
		}
	}
	return errs
}

// serviceCall renders the call that writes e into helper. ok is false when
// the helper type cannot represent the current value.
func serviceCall(helper string, e entity.Entity) (service string, data map[string]interface{}, rendered string, ok bool) {
	domain, _ := HelperDomain(helper)
	data = map[string]interface{}{"entity_id": helper}

	// Text helpers show unknown and unavailable verbatim
	if domain == DomainInputText {
		text := entity.Truncate(e.State(), entity.MaxTextLength)
		data["value"] = text
		return "set_value", data, text, true
	}

	if !e.Available() {
		return "", nil, "", false
	}
	switch v := e.Value().(type) {
	case bool:
		if domain != DomainInputBoolean {
			return "", nil, "", false
		}
		if v {
			return "turn_on", data, entity.StateOn, true
		}
		return "turn_off", data, entity.StateOff, true
	case int:
		if domain != DomainInputNumber {
			return "", nil, "", false
		}
		data["value"] = float64(v)
		return "set_value", data, strconv.Itoa(v), true
	case float64:
		if domain != DomainInputNumber {
			return "", nil, "", false
		}
		data["value"] = v
		return "set_value", data, strconv.FormatFloat(v, 'f', -1, 64), true
	default:
		return "", nil, "", false
	}
}

func (p *Publisher) publish(ctx context.Context, helper string, e entity.Entity) error {
	service, data, rendered, ok := serviceCall(helper, e)
	if !ok {
		p.logger.Debug("Nothing to publish",
			zap.String("helper", helper),
			zap.String("entity_id", e.EntityID()),
			zap.String("state", e.State()))
		return nil
	}

	p.mu.Lock()
	last, seen := p.published[helper]
	p.mu.Unlock()
	if seen && last == rendered {
		return nil
	}

	domain, _ := HelperDomain(helper)
	if p.readOnly {
		p.logger.Info("READ-ONLY: would call service",
			zap.String("service", domain+"."+service),
			zap.String("helper", helper),
			zap.String("value", rendered))
	} else if err := p.client.CallService(ctx, domain, service, data); err != nil {
		return err
	}

	p.mu.Lock()
	p.published[helper] = rendered
	p.mu.Unlock()
	p.logger.Debug("Published entity",
		zap.String("entity_id", e.EntityID()),
		zap.String("helper", helper),
		zap.String("value", rendered))
	return nil
}

// RestoreValue converts a helper state back into an entity value. ok is
// false for unknown, unavailable and unparsable states.
func RestoreValue(helper, state string) (any, bool) {
	if state == "" || state == entity.StateUnknown || state == entity.StateUnavailable {
		return nil, false
	}
	domain, err := HelperDomain(helper)
	if err != nil {
		return nil, false
	}
	switch domain {
	case DomainInputNumber:
		f, err := strconv.ParseFloat(state, 64)
		if err != nil {
			return nil, false
		}
		return f, true
	case DomainInputBoolean:
		return state == entity.StateOn, true
	default:
		return state, true
	}
}

// Restore seeds bound entities from their helper states in Home Assistant.
// Seeding only affects entities that preserve their value and have not
// derived one yet. With helpers given only those are restored. It returns the
// number of helpers found.
func (p *Publisher) Restore(ctx context.Context, helpers ...string) (int, error) {
	states, err := p.client.GetAllStates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to get states: %w", err)
	}
	byID := make(map[string]*State, len(states))
	for _, s := range states {
		byID[s.EntityID] = s
	}

	p.mu.Lock()
	bindings := make(map[string]entity.Entity, len(p.bindings))
	if len(helpers) == 0 {
		for h, e := range p.bindings {
			bindings[h] = e
		}
	}
	for _, h := range helpers {
		if e, ok := p.bindings[h]; ok {
			bindings[h] = e
		}
	}
	p.mu.Unlock()

	found := 0
	for helper, e := range bindings {
		s, ok := byID[helper]
		if !ok {
			continue
		}
		found++
		if v, ok := RestoreValue(helper, s.State); ok {
			e.Seed(v)
		}
	}
	p.logger.Info("Restored entity values from Home Assistant", zap.Int("helpers", found))
	return found, nil
}

// Close unbinds every helper
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for h, unsub := range p.unsubs {
		unsub()
		delete(p.unsubs, h)
	}
	p.bindings = make(map[string]entity.Entity)
	p.dirty = make(map[string]bool)
}
