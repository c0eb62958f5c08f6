// Package credential holds the token state shared by every coordinator of one
// integration entry.
package credential

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Credential is the opaque token pair an integration uses to talk to its remote.
// The OAuth1 pair is long-lived; the OAuth2 pair is short-lived and refreshed.
type Credential struct {
	OAuth1Token   string    `json:"oauth1_token"`
	OAuth1Secret  string    `json:"oauth1_secret"`
	OAuth2Token   string    `json:"oauth2_token"`
	OAuth2Refresh string    `json:"oauth2_refresh"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// IsZero reports whether no token is present at all
func (c Credential) IsZero() bool {
	return c.OAuth1Token == "" && c.OAuth2Token == ""
}

// Expired reports whether the short-lived token has expired at now, allowing skew
func (c Credential) Expired(now time.Time, skew time.Duration) bool {
	if c.ExpiresAt.IsZero() {
		return false
	}
	return !now.Add(skew).Before(c.ExpiresAt)
}

// CanRefresh reports whether a long-lived grant is present to exchange
func (c Credential) CanRefresh() bool {
	return (c.OAuth1Token != "" && c.OAuth1Secret != "") || c.OAuth2Refresh != ""
}

// NeedsRefresh reports whether the access token must be exchanged before use.
// A refreshable credential without an access token or without a known expiry
// is exchanged once so the expiry becomes known.
func (c Credential) NeedsRefresh(now time.Time, skew time.Duration) bool {
	if !c.CanRefresh() {
		return c.Expired(now, skew)
	}
	return c.OAuth2Token == "" || c.ExpiresAt.IsZero() || c.Expired(now, skew)
}

// Equal compares every field, so a change of only one token counts as a change
func (c Credential) Equal(o Credential) bool {
	return c.OAuth1Token == o.OAuth1Token &&
		c.OAuth1Secret == o.OAuth1Secret &&
		c.OAuth2Token == o.OAuth2Token &&
		c.OAuth2Refresh == o.OAuth2Refresh &&
		c.ExpiresAt.Equal(o.ExpiresAt)
}

// Persister writes the canonical credential to the entry's persisted config
type Persister interface {
	SaveCredential(ctx context.Context, entryID string, c Credential) error
}

// PersisterFunc adapts a function to Persister
type PersisterFunc func(ctx context.Context, entryID string, c Credential) error

// SaveCredential implements Persister
func (f PersisterFunc) SaveCredential(ctx context.Context, entryID string, c Credential) error {
	return f(ctx, entryID, c)
}

// Store is the single canonical credential for one integration entry. All
// coordinators of the entry share one Store; nothing about it is global.
type Store struct {
	entryID   string
	persister Persister
	logger    *zap.Logger

	mu        sync.Mutex
	current   Credential
	observers []func(Credential)
	writes    int
}

// NewStore creates a store seeded with the persisted credential
func NewStore(entryID string, initial Credential, persister Persister, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		entryID:   entryID,
		persister: persister,
		logger:    logger.Named("credential"),
		current:   initial,
	}
}

// Get returns the current canonical credential
func (s *Store) Get() Credential {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Writes returns how many times the credential has been persisted
func (s *Store) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// OnChange registers an observer called after every persisted change
func (s *Store) OnChange(fn func(Credential)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// SetIfChanged persists c when it differs from the current credential and
// reports whether a write happened. Writes are serialized; among concurrent
// writers of different values the last one wins.
func (s *Store) SetIfChanged(ctx context.Context, c Credential) (bool, error) {
	s.mu.Lock()
	if c.Equal(s.current) {
		s.mu.Unlock()
		return false, nil
	}
	return s.commitLocked(ctx, c)
}

// CompareAndSwap replaces old with c only if old is still current
func (s *Store) CompareAndSwap(ctx context.Context, old, c Credential) (bool, error) {
	s.mu.Lock()
	if !old.Equal(s.current) {
		s.mu.Unlock()
		return false, nil
	}
	if c.Equal(s.current) {
		s.mu.Unlock()
		return false, nil
	}
	return s.commitLocked(ctx, c)
}

// commitLocked persists c and unlocks s.mu before notifying observers
func (s *Store) commitLocked(ctx context.Context, c Credential) (bool, error) {
	if s.persister != nil {
		if err := s.persister.SaveCredential(ctx, s.entryID, c); err != nil {
			s.mu.Unlock()
			return false, fmt.Errorf("failed to persist credential: %w", err)
		}
	}
	s.current = c
	s.writes++
	observers := append([]func(Credential){}, s.observers...)
	s.mu.Unlock()

	s.logger.Info("Credential updated",
		zap.String("entry_id", s.entryID),
		zap.Time("expires_at", c.ExpiresAt))

	for _, fn := range observers {
		fn(c)
	}
	return true, nil
}
