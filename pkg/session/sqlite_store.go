package session

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/serviohq/servio/pkg/observability"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS sessions (
	id         TEXT PRIMARY KEY,
	expires_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS session_attributes (
	session_id TEXT NOT NULL,
	name       TEXT NOT NULL,
	value      BLOB NOT NULL,
	PRIMARY KEY (session_id, name),
	FOREIGN KEY (session_id) REFERENCES sessions(id) ON DELETE CASCADE
);`

// sqliteStore persists sessions in an embedded SQLite database so they
// survive server restarts. Attribute values are JSON-encoded, so anything
// stored through it must round-trip through encoding/json.
type sqliteStore struct {
	db  *sql.DB
	ttl time.Duration
}

// NewSQLiteStore opens (and if necessary initializes) a SQLite-backed session
// store at path. A ttl of zero disables expiry.
func NewSQLiteStore(path string, ttl time.Duration) (Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite store: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session: init sqlite schema: %w", err)
	}
	return &sqliteStore{db: db, ttl: ttl}, nil
}

// expiresAt returns the unix expiry for a session touched now; 0 = never.
func (s *sqliteStore) expiresAt() int64 {
	if s.ttl == 0 {
		return 0
	}
	return time.Now().Add(s.ttl).Unix()
}

// liveClause matches sessions that have not expired.
const liveClause = "(expires_at = 0 OR expires_at > ?)"

func (s *sqliteStore) Find(id string) bool {
	if id == "" {
		return false
	}
	var one int
	err := s.db.QueryRow(
		"SELECT 1 FROM sessions WHERE id = ? AND "+liveClause, id, time.Now().Unix(),
	).Scan(&one)
	return err == nil
}

func (s *sqliteStore) Create() (string, error) {
	id := uuid.New().String()
	if _, err := s.db.Exec(
		"INSERT INTO sessions (id, expires_at) VALUES (?, ?)", id, s.expiresAt(),
	); err != nil {
		return "", fmt.Errorf("session: create: %w", err)
	}
	observability.Get().SessionsActive.Inc()
	return id, nil
}

func (s *sqliteStore) Remove(id string) error {
	res, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("session: remove: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	observability.Get().SessionsActive.Dec()
	return nil
}

func (s *sqliteStore) SetAttribute(id, name string, value any) error {
	if !s.Find(id) {
		return ErrNotFound
	}
	encoded, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("session: encode attribute %q: %w", name, err)
	}
	_, err = s.db.Exec(
		`INSERT INTO session_attributes (session_id, name, value) VALUES (?, ?, ?)
		 ON CONFLICT (session_id, name) DO UPDATE SET value = excluded.value`,
		id, name, encoded,
	)
	if err != nil {
		return fmt.Errorf("session: set attribute %q: %w", name, err)
	}
	if s.ttl > 0 {
		_, _ = s.db.Exec("UPDATE sessions SET expires_at = ? WHERE id = ?", s.expiresAt(), id)
	}
	return nil
}

func (s *sqliteStore) GetAttribute(id, name string) (any, bool) {
	if !s.Find(id) {
		return nil, false
	}
	var encoded []byte
	err := s.db.QueryRow(
		"SELECT value FROM session_attributes WHERE session_id = ? AND name = ?", id, name,
	).Scan(&encoded)
	if err != nil {
		return nil, false
	}
	var value any
	if err := json.Unmarshal(encoded, &value); err != nil {
		return nil, false
	}
	return value, true
}

func (s *sqliteStore) AttributeNames(id string) []string {
	if !s.Find(id) {
		return nil
	}
	rows, err := s.db.Query(
		"SELECT name FROM session_attributes WHERE session_id = ?", id,
	)
	if err != nil {
		return nil
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return names
		}
		names = append(names, name)
	}
	return names
}

func (s *sqliteStore) RemoveAttribute(id, name string) error {
	if !s.Find(id) {
		return ErrNotFound
	}
	_, err := s.db.Exec(
		"DELETE FROM session_attributes WHERE session_id = ? AND name = ?", id, name,
	)
	if err != nil {
		return fmt.Errorf("session: remove attribute %q: %w", name, err)
	}
	return nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

// Compile-time interface assertion.
var _ Store = (*sqliteStore)(nil)
