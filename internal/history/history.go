// Package history persists a log of capture and decode outcomes in a
// local SQLite database, so operators can audit what was scanned after
// the fact even when the network share was down.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome values recorded per scan.
const (
	OutcomeDecoded  = "decoded"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
)

// Scan is one recorded capture attempt.
type Scan struct {
	ID        int64
	Timestamp time.Time
	Filename  string
	Outcome   string
	Payload   string
	Score     float64
	Target    string // "network" or "local"
}

// Store wraps the scan history database.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp TEXT NOT NULL,
	filename  TEXT NOT NULL,
	outcome   TEXT NOT NULL,
	payload   TEXT NOT NULL DEFAULT '',
	score     REAL NOT NULL DEFAULT 0,
	target    TEXT NOT NULL DEFAULT 'local'
);
CREATE INDEX IF NOT EXISTS idx_scans_timestamp ON scans(timestamp DESC);
`

// Open opens (creating if necessary) the history database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	// The scanner writes serially; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply history schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one scan and returns its id.
func (s *Store) Record(ctx context.Context, scan Scan) (int64, error) {
	if scan.Timestamp.IsZero() {
		scan.Timestamp = time.Now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (timestamp, filename, outcome, payload, score, target)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		scan.Timestamp.UTC().Format(time.RFC3339Nano),
		scan.Filename, scan.Outcome, scan.Payload, scan.Score, scan.Target)
	if err != nil {
		return 0, fmt.Errorf("record scan: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the most recent scans, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, timestamp, filename, outcome, payload, score, target
		 FROM scans ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query scans: %w", err)
	}
	defer rows.Close()

	var out []Scan
	for rows.Next() {
		var sc Scan
		var ts string
		if err := rows.Scan(&sc.ID, &ts, &sc.Filename, &sc.Outcome, &sc.Payload, &sc.Score, &sc.Target); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		sc.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("parse scan timestamp %q: %w", ts, err)
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}
