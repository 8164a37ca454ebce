// Package assist – store_sqlite.go is the SQLite transcript store. It shares
// the database file with the WhatsApp session tables so a deployment needs a
// single data file.
package assist

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore implements Store on a SQLite database. Transcripts are stored
// as a JSON column keyed by sanitized sender; the availability flag lives in
// a one-row settings table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at path and runs the schema
// migration.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = "./data/standin.db"
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=ON", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database %q: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS transcripts (
		sender     TEXT PRIMARY KEY,
		turns      TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);
	CREATE TABLE IF NOT EXISTS settings (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Load returns the transcript for a sender, or (nil, nil) when no row
// exists. Rows with unparsable JSON are treated as absent.
func (s *SQLiteStore) Load(sender string) (*Transcript, error) {
	var turns string
	var updatedAt time.Time
	err := s.db.QueryRow(
		`SELECT turns, updated_at FROM transcripts WHERE sender = ?`,
		sanitizeSenderKey(sender),
	).Scan(&turns, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading transcript: %w", err)
	}

	var t Transcript
	if err := json.Unmarshal([]byte(turns), &t.Turns); err != nil || len(t.Turns) == 0 {
		return nil, nil
	}
	t.UpdatedAt = updatedAt
	return &t, nil
}

// Save upserts the transcript row.
func (s *SQLiteStore) Save(sender string, t *Transcript) error {
	turns, err := json.Marshal(t.Turns)
	if err != nil {
		return fmt.Errorf("encoding transcript: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO transcripts (sender, turns, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(sender) DO UPDATE SET turns = excluded.turns, updated_at = excluded.updated_at`,
		sanitizeSenderKey(sender), string(turns), t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving transcript: %w", err)
	}
	return nil
}

// Clear deletes the transcript row, reporting whether one existed.
func (s *SQLiteStore) Clear(sender string) (bool, error) {
	res, err := s.db.Exec(`DELETE FROM transcripts WHERE sender = ?`, sanitizeSenderKey(sender))
	if err != nil {
		return false, fmt.Errorf("clearing transcript: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("clearing transcript: %w", err)
	}
	return n > 0, nil
}

// List returns all sender keys with stored transcripts.
func (s *SQLiteStore) List() ([]string, error) {
	rows, err := s.db.Query(`SELECT sender FROM transcripts ORDER BY sender`)
	if err != nil {
		return nil, fmt.Errorf("listing transcripts: %w", err)
	}
	defer rows.Close()

	var senders []string
	for rows.Next() {
		var sender string
		if err := rows.Scan(&sender); err != nil {
			return nil, fmt.Errorf("listing transcripts: %w", err)
		}
		senders = append(senders, sender)
	}
	return senders, rows.Err()
}

// Available reads the availability flag; missing rows default to available.
func (s *SQLiteStore) Available() bool {
	var value string
	err := s.db.QueryRow(`SELECT value FROM settings WHERE key = 'availability'`).Scan(&value)
	if err != nil {
		return true
	}
	return value != StatusUnavailable
}

// SetAvailable upserts the availability flag.
func (s *SQLiteStore) SetAvailable(available bool) error {
	status := StatusUnavailable
	if available {
		status = StatusAvailable
	}
	_, err := s.db.Exec(`
		INSERT INTO settings (key, value) VALUES ('availability', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, status)
	if err != nil {
		return fmt.Errorf("writing availability: %w", err)
	}
	return nil
}

// PruneOlderThan removes transcripts not updated within the retention window.
func (s *SQLiteStore) PruneOlderThan(age time.Duration) (int, error) {
	res, err := s.db.Exec(`DELETE FROM transcripts WHERE updated_at < ?`, time.Now().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("pruning transcripts: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("pruning transcripts: %w", err)
	}
	return int(n), nil
}
