// Package imagecache implements C6: a content-addressed disk cache with
// LRU eviction, SHA-256 keying, mutex-serialized operations, and
// SQLite-backed metadata persistence.
package imagecache

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// metaStore is the SQLite-backed metadata persistence layer for cache
// entries, patterned on the teacher's db.Store: WAL mode, a small bounded
// connection pool, and INSERT ... ON CONFLICT DO UPDATE upserts keyed by the natural key
// (url here, rather than a composite id).
type metaStore struct {
	db *sql.DB
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS cache_entries (
		url              TEXT PRIMARY KEY,
		file_path        TEXT NOT NULL,
		size_bytes       INTEGER NOT NULL,
		created_at       INTEGER NOT NULL,
		last_accessed_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS cache_entries_last_accessed ON cache_entries(last_accessed_at)`,
}

// openMetaStore opens (and migrates) a SQLite metadata database at path.
// An empty path collapses the cache to in-memory mode, per spec §4.6's "a
// missing database handle collapses the cache to in-memory mode" clause —
// here represented by a private, non-persistent SQLite database.
func openMetaStore(path string) (*metaStore, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("imagecache: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("imagecache: ping sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			return nil, fmt.Errorf("imagecache: pragma (%s): %w", pragma, err)
		}
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return nil, fmt.Errorf("imagecache: migration failed: %w\nSQL: %s", err, m)
		}
	}

	return &metaStore{db: db}, nil
}

func (m *metaStore) loadAll() (map[string]*Entry, error) {
	rows, err := m.db.Query(`SELECT url, file_path, size_bytes, created_at, last_accessed_at FROM cache_entries`)
	if err != nil {
		return nil, fmt.Errorf("imagecache: load all: %w", err)
	}
	defer rows.Close()

	entries := make(map[string]*Entry)
	for rows.Next() {
		var e Entry
		var createdAt, lastAccessedAt int64
		if err := rows.Scan(&e.URL, &e.FilePath, &e.SizeBytes, &createdAt, &lastAccessedAt); err != nil {
			return nil, fmt.Errorf("imagecache: scan entry: %w", err)
		}
		e.CreatedAt = createdAt
		e.LastAccessedAt = lastAccessedAt
		entries[e.URL] = &e
	}
	return entries, rows.Err()
}

func (m *metaStore) upsert(e *Entry) error {
	_, err := m.db.Exec(
		`INSERT INTO cache_entries (url, file_path, size_bytes, created_at, last_accessed_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(url) DO UPDATE SET
		   file_path = excluded.file_path,
		   size_bytes = excluded.size_bytes,
		   created_at = excluded.created_at,
		   last_accessed_at = excluded.last_accessed_at`,
		e.URL, e.FilePath, e.SizeBytes, e.CreatedAt, e.LastAccessedAt,
	)
	if err != nil {
		return fmt.Errorf("imagecache: upsert: %w", err)
	}
	return nil
}

func (m *metaStore) updateLastAccessed(url string, accessedAt int64) error {
	_, err := m.db.Exec(`UPDATE cache_entries SET last_accessed_at = ? WHERE url = ?`, accessedAt, url)
	if err != nil {
		return fmt.Errorf("imagecache: update last accessed: %w", err)
	}
	return nil
}

func (m *metaStore) delete(url string) error {
	_, err := m.db.Exec(`DELETE FROM cache_entries WHERE url = ?`, url)
	if err != nil {
		return fmt.Errorf("imagecache: delete: %w", err)
	}
	return nil
}

func (m *metaStore) close() error {
	return m.db.Close()
}
