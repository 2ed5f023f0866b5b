package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS kv (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updatedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS voice_sessions (
		id TEXT PRIMARY KEY,
		roomName TEXT NOT NULL,
		identity TEXT NOT NULL,
		startedAt REAL NOT NULL,
		expiresAt REAL NOT NULL,
		endedAt REAL,
		status TEXT NOT NULL DEFAULT 'active',
		pid INTEGER NOT NULL DEFAULT 0
	);
`

// migrations add columns missing from databases created by older versions.
var migrations = []struct{ table, column, ddl string }{
	{"voice_sessions", "pid", `ALTER TABLE voice_sessions ADD COLUMN pid INTEGER NOT NULL DEFAULT 0`},
}

// Store provides access to the debate SQLite database.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return newStore(db)
}

// OpenMemory opens a private in-memory database.
func OpenMemory() (*Store, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Each new connection to :memory: is a fresh database.
	db.SetMaxOpenConns(1)
	return newStore(db)
}

func newStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db, now: time.Now}, nil
}

func migrate(db *sql.DB) error {
	for _, m := range migrations {
		var n int
		err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, m.table, m.column).Scan(&n)
		if err != nil {
			return fmt.Errorf("inspect %s: %w", m.table, err)
		}
		if n > 0 {
			continue
		}
		if _, err := db.Exec(m.ddl); err != nil {
			return fmt.Errorf("add column %s.%s: %w", m.table, m.column, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key. ok is false when the key is absent.
func (s *Store) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %q: %w", key, err)
	}
	return value, true, nil
}

// Set stores value under key, replacing any previous value.
func (s *Store) Set(key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, value, updatedAt) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = excluded.updatedAt
	`, key, value, unixFromTime(s.now()))
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

// RecordVoiceSession inserts an active voice session.
func (s *Store) RecordVoiceSession(vs VoiceSession) error {
	_, err := s.db.Exec(`
		INSERT INTO voice_sessions (id, roomName, identity, startedAt, expiresAt, status, pid)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, vs.ID, vs.RoomName, vs.Identity, unixFromTime(vs.StartedAt), unixFromTime(vs.ExpiresAt), VoiceStatusActive, vs.PID)
	if err != nil {
		return fmt.Errorf("record voice session: %w", err)
	}
	return nil
}

// EndVoiceSession marks a voice session ended (or orphaned) at the current time.
func (s *Store) EndVoiceSession(id, status string) error {
	res, err := s.db.Exec(`
		UPDATE voice_sessions SET endedAt = ?, status = ? WHERE id = ?
	`, unixFromTime(s.now()), status, id)
	if err != nil {
		return fmt.Errorf("end voice session: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("end voice session: %s not found", id)
	}
	return nil
}

// ActiveVoiceSessions returns sessions never ended, e.g. after a crash.
func (s *Store) ActiveVoiceSessions() ([]VoiceSession, error) {
	rows, err := s.db.Query(`
		SELECT id, roomName, identity, startedAt, expiresAt, endedAt, status, pid
		FROM voice_sessions
		WHERE status = 'active'
		ORDER BY startedAt ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query voice sessions: %w", err)
	}
	defer rows.Close()

	var sessions []VoiceSession
	for rows.Next() {
		vs, err := scanVoiceSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, vs)
	}
	return sessions, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanVoiceSession(row scanner) (VoiceSession, error) {
	var vs VoiceSession
	var startedAt, expiresAt float64
	var endedAt sql.NullFloat64

	if err := row.Scan(&vs.ID, &vs.RoomName, &vs.Identity, &startedAt,
		&expiresAt, &endedAt, &vs.Status, &vs.PID); err != nil {
		return vs, fmt.Errorf("scan voice session: %w", err)
	}

	vs.StartedAt = timeFromUnix(startedAt)
	vs.ExpiresAt = timeFromUnix(expiresAt)
	if endedAt.Valid {
		t := timeFromUnix(endedAt.Float64)
		vs.EndedAt = &t
	}
	return vs, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
