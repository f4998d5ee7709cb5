// Package savegame persists player progress in a SQLite database, one row per save slot.
package savegame

import (
	"context"
	"database/sql"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// DefaultSlot is the save slot used when none is configured.
const DefaultSlot = "auto"

// ErrNotInitialized is returned by Load and Save before Initialize.
var ErrNotInitialized = errors.New("save system not initialized")

const schema = `
	CREATE TABLE IF NOT EXISTS saves (
		slot TEXT PRIMARY KEY,
		id TEXT NOT NULL,
		scene INTEGER NOT NULL,
		cut_scene TEXT NOT NULL DEFAULT '',
		saved_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS save_values (
		slot TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (slot, key)
	);
`

// State is the saved progress of one slot.
type State struct {
	ID       string
	Scene    int
	CutScene string
	Values   map[string]string
	SavedAt  time.Time
}

// Fresh reports whether the state was never saved.
func (s State) Fresh() bool {
	return s.ID == ""
}

// System loads and saves State.
type System struct {
	mu     sync.Mutex
	path   string
	slot   string
	db     *sql.DB
	state  State
	logger *zap.Logger
}

// New returns a System that stores saves for slot in the database at path.
func New(path, slot string, logger *zap.Logger) *System {
	if strings.TrimSpace(slot) == "" {
		slot = DefaultSlot
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &System{
		path:   strings.TrimSpace(path),
		slot:   slot,
		state:  State{Scene: -1},
		logger: logger.Named("savegame").With(zap.String("slot", slot)),
	}
}

// buildDSN creates a WAL DSN for the given path.
func buildDSN(path string) string {
	u := url.URL{
		Scheme: "file",
		Path:   filepath.ToSlash(path),
	}
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "busy_timeout(3000)")
	u.RawQuery = q.Encode()
	return u.String()
}

// Initialize opens the database, creating it and its schema if needed, and returns the System.
func (s *System) Initialize(ctx context.Context) (*System, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		return s, nil
	}
	if s.path == "" {
		return nil, errors.WithHint(errors.New("save path is empty"), "set save.path in the configuration")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, errors.Wrapf(err, "create save directory for %s", s.path)
	}

	db, err := sql.Open("sqlite", buildDSN(s.path))
	if err != nil {
		return nil, errors.Wrap(err, "open save database")
	}
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "ping save database")
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create save schema")
	}

	s.db = db
	s.logger.Debug("save system initialized", zap.String("path", s.path))
	return s, nil
}

// Load reads the slot from the database. A slot that was never saved loads as a fresh State.
func (s *System) Load(ctx context.Context) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return State{}, ErrNotInitialized
	}

	state := State{Scene: -1, Values: map[string]string{}}
	var savedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, scene, cut_scene, saved_at FROM saves WHERE slot = ?`, s.slot,
	).Scan(&state.ID, &state.Scene, &state.CutScene, &savedAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		s.logger.Info("no save found, starting fresh")
		s.state = state
		return state, nil
	case err != nil:
		return State{}, errors.Wrap(err, "query save")
	}
	if state.SavedAt, err = time.Parse(time.RFC3339Nano, savedAt); err != nil {
		return State{}, errors.Wrapf(err, "parse saved_at %q", savedAt)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM save_values WHERE slot = ?`, s.slot)
	if err != nil {
		return State{}, errors.Wrap(err, "query save values")
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return State{}, errors.Wrap(err, "scan save value")
		}
		state.Values[k] = v
	}
	if err := rows.Err(); err != nil {
		return State{}, errors.Wrap(err, "read save values")
	}

	s.state = state
	s.logger.Info("save loaded", zap.String("save_id", state.ID), zap.Int("scene", state.Scene))
	return state, nil
}

// Save writes state to the slot, replacing what was there. It returns the state as stored, with a fresh id and
// timestamp.
func (s *System) Save(ctx context.Context, state State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return State{}, ErrNotInitialized
	}

	state.ID = uuid.NewString()
	state.SavedAt = time.Now().UTC()
	values := make(map[string]string, len(state.Values))
	for k, v := range state.Values {
		values[k] = v
	}
	state.Values = values

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return State{}, errors.Wrap(err, "begin save")
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO saves (slot, id, scene, cut_scene, saved_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (slot) DO UPDATE SET id = excluded.id, scene = excluded.scene,
			cut_scene = excluded.cut_scene, saved_at = excluded.saved_at
	`, s.slot, state.ID, state.Scene, state.CutScene, state.SavedAt.Format(time.RFC3339Nano)); err != nil {
		return State{}, errors.Wrap(err, "write save")
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM save_values WHERE slot = ?`, s.slot); err != nil {
		return State{}, errors.Wrap(err, "clear save values")
	}
	for k, v := range values {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO save_values (slot, key, value) VALUES (?, ?, ?)`, s.slot, k, v); err != nil {
			return State{}, errors.Wrapf(err, "write save value %q", k)
		}
	}
	if err := tx.Commit(); err != nil {
		return State{}, errors.Wrap(err, "commit save")
	}

	s.state = state
	s.logger.Info("game saved", zap.String("save_id", state.ID))
	return state, nil
}

// State returns the state most recently loaded or saved.
func (s *System) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Slot returns the save slot.
func (s *System) Slot() string {
	return s.slot
}

// Close closes the database.
func (s *System) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return errors.Wrap(err, "close save database")
}
