package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"haintegrations/internal/clock"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// DefaultSkew refreshes a token this long before it actually expires
const DefaultSkew = 60 * time.Second

// ErrMissing is returned when the store holds no credential at all
var ErrMissing = errors.New("no credential stored")

// TokenSource exchanges the current credential for a refreshed one
type TokenSource interface {
	RefreshTokens(ctx context.Context, current Credential) (Credential, error)
}

// Refresher centralizes token refresh for all coordinators sharing a Store.
// Concurrent callers that find the token expired share one refresh call.
type Refresher struct {
	store  *Store
	source TokenSource
	clock  clock.Clock
	skew   time.Duration
	logger *zap.Logger
	group  singleflight.Group
}

// NewRefresher creates a refresher over store
func NewRefresher(store *Store, source TokenSource, clk clock.Clock, logger *zap.Logger) *Refresher {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Refresher{
		store:  store,
		source: source,
		clock:  clk,
		skew:   DefaultSkew,
		logger: logger.Named("refresher"),
	}
}

// Ensure returns a credential that is valid now, refreshing it first if needed
func (r *Refresher) Ensure(ctx context.Context) (Credential, error) {
	current := r.store.Get()
	if current.IsZero() {
		return Credential{}, ErrMissing
	}
	if !current.NeedsRefresh(r.clock.Now(), r.skew) {
		return current, nil
	}

	v, err, shared := r.group.Do("refresh", func() (interface{}, error) {
		// Another caller may have finished a refresh while we waited
		latest := r.store.Get()
		if !latest.NeedsRefresh(r.clock.Now(), r.skew) {
			return latest, nil
		}

		refreshed, err := r.source.RefreshTokens(ctx, latest)
		if err != nil {
			return Credential{}, fmt.Errorf("failed to refresh tokens: %w", err)
		}
		if _, err := r.store.CompareAndSwap(ctx, latest, refreshed); err != nil {
			return Credential{}, err
		}
		r.logger.Debug("Tokens refreshed", zap.Time("expires_at", refreshed.ExpiresAt))
		return r.store.Get(), nil
	})
	if err != nil {
		return Credential{}, err
	}
	if shared {
		r.logger.Debug("Joined in-flight token refresh")
	}
	return v.(Credential), nil
}
