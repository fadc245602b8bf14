// Package cache is the local persistence layer: a small key-value store over
// sqlite holding the serialized habit collection, the completion history and
// the hardcore-mode preference flag.
//
// Reads never fail from the caller's perspective: missing or corrupt data
// yields empty collections. Writes are best-effort; failures are logged and
// metered but not returned, since the in-memory state remains authoritative
// for the running session.
package cache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"optimal-protocol-sync/internal/metrics"
	"optimal-protocol-sync/internal/model"
)

// Blob keys. The names carry over from the web client's localStorage keys so
// a migrated install stays recognizable in support dumps.
const (
	keyHabits   = "habits_def"
	keyHistory  = "habit_history"
	keyHardcore = "hardcore_mode"
)

const schema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
`

// Store wraps the sqlite-backed local cache
type Store struct {
	conn   *sql.DB
	logger *slog.Logger
}

// Open opens (and initializes) the cache database at the specified path
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=5000", path)
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}

	// Single-writer, single-process by design
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(time.Hour)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize cache schema: %w", err)
	}

	return &Store{conn: conn, logger: slog.Default()}, nil
}

// Close closes the cache database
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// LoadHabits returns the cached habit definitions, or an empty list when
// nothing usable is stored.
func (s *Store) LoadHabits() []model.Habit {
	var habits []model.Habit
	if !s.loadJSON(metrics.CacheOpLoadHabits, keyHabits, &habits) {
		return nil
	}
	return habits
}

// SaveHabits persists the habit definitions. Best-effort.
func (s *Store) SaveHabits(habits []model.Habit) {
	if habits == nil {
		habits = []model.Habit{}
	}
	s.saveJSON(metrics.CacheOpSaveHabits, keyHabits, habits)
}

// LoadHistory returns the cached completion history, or an empty history
// when nothing usable is stored.
func (s *Store) LoadHistory() model.History {
	history := model.History{}
	if !s.loadJSON(metrics.CacheOpLoadHistory, keyHistory, &history) {
		return model.History{}
	}
	if history == nil {
		return model.History{}
	}
	return history
}

// SaveHistory persists the completion history. Best-effort.
func (s *Store) SaveHistory(history model.History) {
	if history == nil {
		history = model.History{}
	}
	s.saveJSON(metrics.CacheOpSaveHistory, keyHistory, history)
}

// HardcoreMode returns the commitment-mode preference flag. Defaults to
// false when unset or unreadable.
func (s *Store) HardcoreMode() bool {
	var enabled bool
	if !s.loadJSON(metrics.CacheOpPreference, keyHardcore, &enabled) {
		return false
	}
	return enabled
}

// SetHardcoreMode persists the commitment-mode preference flag.
func (s *Store) SetHardcoreMode(enabled bool) {
	s.saveJSON(metrics.CacheOpPreference, keyHardcore, enabled)
}

// Clear removes the habit and history blobs. Called after a successful
// local-to-remote migration so the next launch does not re-migrate. The
// preference flag survives.
func (s *Store) Clear() {
	start := time.Now()
	_, err := s.conn.Exec(`DELETE FROM cache_entries WHERE key IN (?, ?)`, keyHabits, keyHistory)
	metrics.CacheOperationDuration.WithLabelValues(metrics.CacheOpClear).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CacheOperationErrorsTotal.WithLabelValues(metrics.CacheOpClear).Inc()
		s.logger.Error("Failed to clear cache", "error", err)
	}
}

// loadJSON reads and unmarshals one blob. Returns false when the key is
// missing or the payload does not parse.
func (s *Store) loadJSON(op, key string, dest interface{}) bool {
	start := time.Now()
	var raw string
	err := s.conn.QueryRow(`SELECT value FROM cache_entries WHERE key = ?`, key).Scan(&raw)
	metrics.CacheOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		metrics.CacheOperationErrorsTotal.WithLabelValues(op).Inc()
		s.logger.Error("Failed to read cache entry", "key", key, "error", err)
		return false
	}

	if err := json.Unmarshal([]byte(raw), dest); err != nil {
		metrics.CacheOperationErrorsTotal.WithLabelValues(op).Inc()
		s.logger.Warn("Discarding corrupt cache entry", "key", key, "error", err)
		return false
	}
	return true
}

// saveJSON marshals and upserts one blob. Best-effort.
func (s *Store) saveJSON(op, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		metrics.CacheOperationErrorsTotal.WithLabelValues(op).Inc()
		s.logger.Error("Failed to serialize cache entry", "key", key, "error", err)
		return
	}

	start := time.Now()
	_, err = s.conn.Exec(`
		INSERT INTO cache_entries (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`, key, string(data), time.Now().Unix())
	metrics.CacheOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.CacheOperationErrorsTotal.WithLabelValues(op).Inc()
		s.logger.Error("Failed to write cache entry", "key", key, "error", err)
	}
}
