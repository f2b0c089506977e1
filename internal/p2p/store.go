package p2p

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store persists P2P session records, patterned on the teacher's SQLite
// access layer: WAL mode, a small bounded connection pool, upsert-by-key
// writes.
type Store struct {
	db *sql.DB
}

var sessionMigrations = []string{
	`CREATE TABLE IF NOT EXISTS p2p_sessions (
		session_id          TEXT NOT NULL,
		identity_pubkey      TEXT NOT NULL,
		contact_pubkey       TEXT NOT NULL,
		role                 TEXT NOT NULL,
		status               TEXT NOT NULL,
		last_attempt_at      INTEGER NOT NULL DEFAULT 0,
		last_success_at      INTEGER NOT NULL DEFAULT 0,
		last_failure_reason  TEXT NOT NULL DEFAULT '',
		updated_at           INTEGER NOT NULL,
		PRIMARY KEY (session_id, identity_pubkey, contact_pubkey)
	)`,
	`CREATE INDEX IF NOT EXISTS p2p_sessions_status ON p2p_sessions(status)`,
}

// OpenStore opens (and migrates) the P2P session database at path. An
// empty path opens an in-memory database, useful for tests.
func OpenStore(path string) (*Store, error) {
	dsn := path
	if dsn == "" {
		dsn = ":memory:"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("p2p: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("p2p: ping sqlite: %w", err)
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
			return nil, fmt.Errorf("p2p: pragma (%s): %w", pragma, err)
		}
	}
	for _, m := range sessionMigrations {
		if _, err := db.Exec(m); err != nil {
			return nil, fmt.Errorf("p2p: migration failed: %w\nSQL: %s", err, m)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Upsert writes sess, replacing any existing record with the same key.
func (s *Store) Upsert(sess *Session) error {
	_, err := s.db.Exec(
		`INSERT INTO p2p_sessions
			(session_id, identity_pubkey, contact_pubkey, role, status,
			 last_attempt_at, last_success_at, last_failure_reason, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, identity_pubkey, contact_pubkey) DO UPDATE SET
		   role = excluded.role,
		   status = excluded.status,
		   last_attempt_at = excluded.last_attempt_at,
		   last_success_at = excluded.last_success_at,
		   last_failure_reason = excluded.last_failure_reason,
		   updated_at = excluded.updated_at`,
		sess.SessionID, sess.IdentityPubkey, sess.ContactPubkey, string(sess.Role), string(sess.Status),
		unixOrZero(sess.LastAttemptAt), unixOrZero(sess.LastSuccessAt), sess.LastFailureReason, unixOrZero(sess.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("p2p: upsert session: %w", err)
	}
	return nil
}

// Get returns the session identified by (sessionID, identityPubkey,
// contactPubkey), or ok=false if no such record exists.
func (s *Store) Get(sessionID, identityPubkey, contactPubkey string) (*Session, bool, error) {
	row := s.db.QueryRow(
		`SELECT session_id, identity_pubkey, contact_pubkey, role, status,
		        last_attempt_at, last_success_at, last_failure_reason, updated_at
		 FROM p2p_sessions WHERE session_id = ? AND identity_pubkey = ? AND contact_pubkey = ?`,
		sessionID, identityPubkey, contactPubkey,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("p2p: get session: %w", err)
	}
	return sess, true, nil
}

// FindBySessionID looks up a session by session id alone, for routing
// inbound signals that don't carry the local identity pubkey explicitly.
func (s *Store) FindBySessionID(sessionID string) (*Session, bool, error) {
	row := s.db.QueryRow(
		`SELECT session_id, identity_pubkey, contact_pubkey, role, status,
		        last_attempt_at, last_success_at, last_failure_reason, updated_at
		 FROM p2p_sessions WHERE session_id = ? LIMIT 1`,
		sessionID,
	)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("p2p: find session: %w", err)
	}
	return sess, true, nil
}

// ListSessions returns every persisted session, newest-updated first.
func (s *Store) ListSessions() ([]*Session, error) {
	rows, err := s.db.Query(
		`SELECT session_id, identity_pubkey, contact_pubkey, role, status,
		        last_attempt_at, last_success_at, last_failure_reason, updated_at
		 FROM p2p_sessions ORDER BY updated_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("p2p: scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	return sessions, rows.Err()
}

// PruneTerminal deletes every session whose status is connected or failed,
// the janitorial counterpart to ListSessions for long-running processes.
func (s *Store) PruneTerminal() (int64, error) {
	result, err := s.db.Exec(
		`DELETE FROM p2p_sessions WHERE status IN (?, ?)`,
		string(StatusConnected), string(StatusFailed),
	)
	if err != nil {
		return 0, fmt.Errorf("p2p: prune terminal: %w", err)
	}
	return result.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var sess Session
	var role, status string
	var lastAttempt, lastSuccess, updatedAt int64
	if err := row.Scan(
		&sess.SessionID, &sess.IdentityPubkey, &sess.ContactPubkey, &role, &status,
		&lastAttempt, &lastSuccess, &sess.LastFailureReason, &updatedAt,
	); err != nil {
		return nil, err
	}
	sess.Role = Role(role)
	sess.Status = Status(status)
	sess.LastAttemptAt = timeOrZero(lastAttempt)
	sess.LastSuccessAt = timeOrZero(lastSuccess)
	sess.UpdatedAt = timeOrZero(updatedAt)
	return &sess, nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func timeOrZero(unix int64) time.Time {
	if unix == 0 {
		return time.Time{}
	}
	return time.Unix(unix, 0)
}
