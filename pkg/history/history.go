// Package history persists REPL input lines to a SQLite database so
// sessions can recall what earlier ones typed.
package history

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite connection holding the history table.
type Store struct {
	db *sql.DB
}

// Open opens (and if needed creates) the history database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) createTables() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		input TEXT NOT NULL,
		created_at INTEGER NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create history table: %w", err)
	}
	return nil
}

// Append records one accepted input line.
func (s *Store) Append(sessionID, input string) error {
	_, err := s.db.Exec(
		`INSERT INTO history (session_id, input, created_at) VALUES (?, ?, ?)`,
		sessionID, input, time.Now().Unix())
	return err
}

// Recent returns the last n inputs across sessions, oldest first.
func (s *Store) Recent(n int) ([]string, error) {
	rows, err := s.db.Query(
		`SELECT input FROM (
			SELECT id, input FROM history ORDER BY id DESC LIMIT ?
		) ORDER BY id ASC`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var input string
		if err := rows.Scan(&input); err != nil {
			return nil, err
		}
		out = append(out, input)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }
