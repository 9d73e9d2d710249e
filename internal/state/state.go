package state

import (
	"database/sql"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS sessions (
    id         TEXT PRIMARY KEY,
    host       TEXT NOT NULL,
    hostname   TEXT NOT NULL DEFAULT '',
    user       TEXT NOT NULL DEFAULT '',
    port       INTEGER NOT NULL DEFAULT 0,
    opened_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    closed_at  TIMESTAMP
);
CREATE TABLE IF NOT EXISTS commands (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    command    TEXT NOT NULL,
    verdict    TEXT NOT NULL,
    reason     TEXT NOT NULL DEFAULT '',
    sent_at    TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
`

// Store is the sqlite-backed audit trail of sessions and commands. It is an
// append-mostly log; the live session registry never reads from it.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at $XDG_STATE_HOME/sshmux/state.db.
func Open() (*Store, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateHome := os.Getenv("XDG_STATE_HOME")
	if stateHome == "" {
		stateHome = filepath.Join(home, ".local", "state")
	}
	dir := filepath.Join(stateHome, "sshmux")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return OpenPath(filepath.Join(dir, "state.db"))
}

// OpenPath opens the store at an explicit path. Used by tests.
func OpenPath(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// WAL mode for safe concurrent access
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordOpen logs a newly opened session.
func (s *Store) RecordOpen(id, host, hostname, user string, port int) error {
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, host, hostname, user, port)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, id, host, hostname, user, port)
	return err
}

// RecordClose stamps a session closed.
func (s *Store) RecordClose(id string) error {
	_, err := s.db.Exec(`
		UPDATE sessions SET closed_at = CURRENT_TIMESTAMP WHERE id = ?
	`, id)
	return err
}

// RecordCommand logs one validated command and its verdict. Blocked commands
// are logged too; they never reached the terminal but the attempt matters.
func (s *Store) RecordCommand(sessionID, command, verdict, reason string) error {
	_, err := s.db.Exec(`
		INSERT INTO commands (session_id, command, verdict, reason)
		VALUES (?, ?, ?, ?)
	`, sessionID, command, verdict, reason)
	return err
}

// SessionRecord is one audited session.
type SessionRecord struct {
	ID       string
	Host     string
	Hostname string
	User     string
	Port     int
	OpenedAt time.Time
	ClosedAt time.Time // zero when still open
}

// CommandRecord is one audited command.
type CommandRecord struct {
	SessionID string
	Command   string
	Verdict   string
	Reason    string
	SentAt    time.Time
}

const sqliteTimeLayout = "2006-01-02 15:04:05"

// RecentSessions returns the most recently opened sessions, newest first.
func (s *Store) RecentSessions(limit int) ([]SessionRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, host, hostname, user, port, opened_at, COALESCE(closed_at, '')
		FROM sessions ORDER BY opened_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []SessionRecord
	for rows.Next() {
		var r SessionRecord
		var opened, closed string
		if err := rows.Scan(&r.ID, &r.Host, &r.Hostname, &r.User, &r.Port, &opened, &closed); err != nil {
			return nil, err
		}
		r.OpenedAt, _ = time.Parse(sqliteTimeLayout, opened)
		if closed != "" {
			r.ClosedAt, _ = time.Parse(sqliteTimeLayout, closed)
		}
		result = append(result, r)
	}
	return result, rows.Err()
}

// RecentCommands returns the most recent audited commands, newest first.
func (s *Store) RecentCommands(limit int) ([]CommandRecord, error) {
	rows, err := s.db.Query(`
		SELECT session_id, command, verdict, reason, sent_at
		FROM commands ORDER BY seq DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []CommandRecord
	for rows.Next() {
		var r CommandRecord
		var sent string
		if err := rows.Scan(&r.SessionID, &r.Command, &r.Verdict, &r.Reason, &sent); err != nil {
			return nil, err
		}
		r.SentAt, _ = time.Parse(sqliteTimeLayout, sent)
		result = append(result, r)
	}
	return result, rows.Err()
}
