package integration

import (
	"context"
	"net/http"
	"time"

	"haintegrations/internal/clock"
	"haintegrations/internal/config"
	"haintegrations/internal/credential"

	"go.uber.org/zap"
)

// CredentialStore loads and saves the persisted credential of an entry
type CredentialStore interface {
	credential.Persister
	LoadCredential(ctx context.Context, entryID string) (credential.Credential, bool, error)
}

// Context provides dependencies to integrations during construction
type Context struct {
	// Entry is the configured entry being set up
	Entry config.EntryConfig

	// Location is used by calendar integrations
	Location config.LocationConfig

	// Logger should be namespaced with logger.Named(domain) by the integration
	Logger *zap.Logger

	// Clock drives every coordinator of the entry
	Clock clock.Clock

	// Timezone is the configured local timezone
	Timezone *time.Location

	// Credentials is the persisted-config boundary for tokens
	Credentials CredentialStore

	// HTTPClient is shared by HTTP-based device clients
	HTTPClient *http.Client
}

// NewContext creates a context for one entry
func NewContext(
	entry config.EntryConfig,
	location config.LocationConfig,
	logger *zap.Logger,
	clk clock.Clock,
	timezone *time.Location,
	credentials CredentialStore,
) *Context {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if timezone == nil {
		timezone = time.UTC
	}
	return &Context{
		Entry:       entry,
		Location:    location,
		Logger:      logger,
		Clock:       clk,
		Timezone:    timezone,
		Credentials: credentials,
		HTTPClient:  &http.Client{Timeout: 30 * time.Second},
	}
}
