// Package integration provides the integration interfaces and registry for
// the integration host. Integrations register themselves with the global
// registry from init() functions, so the set compiled into a binary is chosen
// by imports and private builds can override a public integration.
package integration

import (
	"context"

	"haintegrations/internal/coordinator"
	"haintegrations/internal/entity"
)

// Integration is one configured source of entities, backed by one or more
// coordinators that share a credential.
type Integration interface {
	// Domain returns the integration domain, e.g. "garmin_connect"
	Domain() string

	// Setup performs the first refresh of every coordinator. It returns an
	// error matching coordinator.ErrAuthFailed or coordinator.ErrNotReady.
	Setup(ctx context.Context) error

	// Start arms every coordinator's refresh loop
	Start(ctx context.Context)

	// Unload stops all coordinators and detaches all entities
	Unload()

	// Coordinators returns the coordinators in a stable order
	Coordinators() []coordinator.Member

	// Entities returns the entities created during Setup
	Entities() []entity.Entity
}

// DiagnosticsProvider is an optional interface for integrations that expose
// extra state through the status API.
type DiagnosticsProvider interface {
	Diagnostics() map[string]interface{}
}

// Factory creates a new integration instance for one configured entry
type Factory func(ctx *Context) (Integration, error)
