// Package cache provides an optional SQLite-backed read-through cache for
// upstream responses. Entries are keyed by endpoint plus argument and expire
// after a TTL; a hit short-circuits the outbound call entirely. The cache is
// a best-effort layer: storage errors degrade to a plain upstream call and
// are never surfaced to the tool caller.
package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS responses (
	key TEXT PRIMARY KEY,
	body BLOB NOT NULL,
	created_at INTEGER NOT NULL
);
`

// Store is a TTL key-value store over a SQLite database.
type Store struct {
	db  *sql.DB
	mu  sync.RWMutex
	ttl time.Duration

	now func() time.Time // test hook
}

// Open opens (or creates) a cache database at dbPath with the given TTL.
func Open(dbPath string, ttl time.Duration) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init cache schema: %w", err)
	}

	return &Store{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns the cached body for key, or ok=false when the entry is absent
// or older than the TTL. Expired entries are deleted on read.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	var body []byte
	var createdAt int64
	err := s.db.QueryRow(`SELECT body, created_at FROM responses WHERE key = ?`, key).
		Scan(&body, &createdAt)
	s.mu.RUnlock()
	if err != nil {
		return nil, false
	}

	if s.now().Unix()-createdAt > int64(s.ttl.Seconds()) {
		s.mu.Lock()
		_, _ = s.db.Exec(`DELETE FROM responses WHERE key = ?`, key)
		s.mu.Unlock()
		return nil, false
	}
	return body, true
}

// Put stores body under key, replacing any previous entry.
func (s *Store) Put(key string, body []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		`INSERT OR REPLACE INTO responses (key, body, created_at) VALUES (?, ?, ?)`,
		key, body, s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Purge deletes all expired entries and returns how many were removed.
func (s *Store) Purge() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Unix() - int64(s.ttl.Seconds())
	res, err := s.db.Exec(`DELETE FROM responses WHERE created_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cache purge: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
