package integration

import (
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Priority constants for integration registration.
// Higher priority values override lower priority integrations with the same domain.
const (
	// PriorityDefault is used by the integrations shipped in this module
	PriorityDefault = 0

	// PriorityOverride lets a private build replace a public integration
	PriorityOverride = 100
)

// Info contains metadata about a registered integration
type Info struct {
	// Domain is the unique identifier the config refers to
	Domain string

	// Description is a human-readable description of the integration
	Description string

	// Priority decides which registration wins for the same domain
	Priority int

	// Factory creates a new instance for one configured entry
	Factory Factory

	// Order specifies setup order. Lower values set up first. Default is 50.
	Order int
}

// Registry manages integration registration and instantiation
type Registry struct {
	mu      sync.RWMutex
	entries map[string]Info
	order   []string
}

// NewRegistry creates a new integration registry
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]Info),
		order:   make([]string, 0),
	}
}

// Register adds an integration to the registry.
// If the domain is already registered, the higher priority wins; on equal
// priority the later registration wins.
func (r *Registry) Register(info Info) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if info.Domain == "" {
		return fmt.Errorf("integration domain cannot be empty")
	}

	if info.Factory == nil {
		return fmt.Errorf("integration %s: factory cannot be nil", info.Domain)
	}

	if info.Order == 0 {
		info.Order = 50
	}

	logger := zap.L().Named("registry")

	existing, exists := r.entries[info.Domain]
	if exists {
		if info.Priority < existing.Priority {
			logger.Debug("Integration registration skipped",
				zap.String("domain", info.Domain),
				zap.Int("priority", info.Priority),
				zap.Int("existing_priority", existing.Priority))
			return nil
		}
		logger.Info("Integration being overridden",
			zap.String("domain", info.Domain),
			zap.Int("from_priority", existing.Priority),
			zap.Int("to_priority", info.Priority))
	}

	r.entries[info.Domain] = info
	if !exists {
		r.order = append(r.order, info.Domain)
	}

	logger.Debug("Integration registered",
		zap.String("domain", info.Domain),
		zap.Int("priority", info.Priority),
		zap.Int("order", info.Order))

	return nil
}

// Get returns the info for a domain, or nil if not found
func (r *Registry) Get(domain string) *Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	info, ok := r.entries[domain]
	if !ok {
		return nil
	}
	return &info
}

// List returns all registered integrations sorted by setup order
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Info, 0, len(r.entries))
	for _, domain := range r.order {
		result = append(result, r.entries[domain])
	}

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Order != result[j].Order {
			return result[i].Order < result[j].Order
		}
		return result[i].Domain < result[j].Domain
	})

	return result
}

// Create instantiates the integration registered for the context's entry
func (r *Registry) Create(ctx *Context) (Integration, error) {
	info := r.Get(ctx.Entry.Domain)
	if info == nil {
		return nil, fmt.Errorf("unknown integration domain %q", ctx.Entry.Domain)
	}

	in, err := info.Factory(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create integration %s: %w", info.Domain, err)
	}
	return in, nil
}

// Domains returns all registered domains in registration order
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]string, len(r.order))
	copy(result, r.order)
	return result
}

// Clear removes all registrations. Useful for testing.
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]Info)
	r.order = make([]string, 0)
}

// Global registry instance
var globalRegistry = NewRegistry()

// Register adds an integration to the global registry.
// This is typically called from init() functions in integration packages.
func Register(info Info) error {
	return globalRegistry.Register(info)
}

// Get returns integration info from the global registry
func Get(domain string) *Info {
	return globalRegistry.Get(domain)
}

// List returns all integrations from the global registry
func List() []Info {
	return globalRegistry.List()
}

// Create instantiates an integration from the global registry
func Create(ctx *Context) (Integration, error) {
	return globalRegistry.Create(ctx)
}

// Domains returns all domains from the global registry
func Domains() []string {
	return globalRegistry.Domains()
}

// Global returns the global registry
func Global() *Registry {
	return globalRegistry
}
