// Package store persists integration credentials and the last known entity
// values in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"haintegrations/internal/credential"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS credentials (
	entry_id   TEXT PRIMARY KEY,
	data       TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS entity_states (
	unique_id  TEXT PRIMARY KEY,
	entry_id   TEXT NOT NULL,
	value      TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entity_states_entry ON entity_states(entry_id);
`

// EntityState is the last known value of one entity
type EntityState struct {
	UniqueID  string
	EntryID   string
	Value     any
	UpdatedAt time.Time
}

// Store is the SQLite persistence boundary
type Store struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// Open opens or creates the database at path
func Open(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One writer; SQLite serializes anyway
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	logger.Debug("Store opened", zap.String("path", path))
	return &Store{db: db, logger: logger, now: time.Now}, nil
}

// Close closes the database
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveCredential implements credential.Persister
func (s *Store) SaveCredential(ctx context.Context, entryID string, c credential.Credential) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal credential: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO credentials (entry_id, data, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(entry_id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		entryID, string(data), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save credential for %s: %w", entryID, err)
	}
	s.logger.Debug("Credential saved", zap.String("entry_id", entryID))
	return nil
}

// LoadCredential returns the persisted credential of an entry. ok is false
// when none was saved.
func (s *Store) LoadCredential(ctx context.Context, entryID string) (credential.Credential, bool, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM credentials WHERE entry_id = ?`, entryID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return credential.Credential{}, false, nil
	}
	if err != nil {
		return credential.Credential{}, false, fmt.Errorf("load credential for %s: %w", entryID, err)
	}

	var c credential.Credential
	if err := json.Unmarshal([]byte(data), &c); err != nil {
		return credential.Credential{}, false, fmt.Errorf("decode credential for %s: %w", entryID, err)
	}
	return c, true, nil
}

// SaveEntityState stores the last known value of an entity. Nil values are
// not stored so an outage never erases a preserved value.
func (s *Store) SaveEntityState(ctx context.Context, entryID, uniqueID string, value any) error {
	if value == nil {
		return nil
	}
	if t, ok := value.(time.Time); ok {
		value = t.Format(time.RFC3339Nano)
	}
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal value of %s: %w", uniqueID, err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO entity_states (unique_id, entry_id, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(unique_id) DO UPDATE SET
			entry_id = excluded.entry_id, value = excluded.value, updated_at = excluded.updated_at`,
		uniqueID, entryID, string(data), s.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("save state of %s: %w", uniqueID, err)
	}
	return nil
}

// LoadEntityStates returns the stored values of an entry keyed by unique ID
func (s *Store) LoadEntityStates(ctx context.Context, entryID string) (map[string]EntityState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT unique_id, value, updated_at FROM entity_states WHERE entry_id = ?`, entryID)
	if err != nil {
		return nil, fmt.Errorf("load states of %s: %w", entryID, err)
	}
	defer rows.Close()

	out := make(map[string]EntityState)
	for rows.Next() {
		var uid, raw, updated string
		if err := rows.Scan(&uid, &raw, &updated); err != nil {
			return nil, fmt.Errorf("scan state: %w", err)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			s.logger.Warn("Skipping undecodable entity state", zap.String("unique_id", uid), zap.Error(err))
			continue
		}
		st := EntityState{UniqueID: uid, EntryID: entryID, Value: v}
		if t, err := time.Parse(time.RFC3339Nano, updated); err == nil {
			st.UpdatedAt = t
		}
		out[uid] = st
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate states: %w", err)
	}
	return out, nil
}

// DeleteEntry removes everything stored for an entry
func (s *Store) DeleteEntry(ctx context.Context, entryID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entity_states WHERE entry_id = ?`, entryID); err != nil {
		return fmt.Errorf("delete states: %w", err)
	}
	return tx.Commit()
}
