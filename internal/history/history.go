// Package history provides a SQLite-backed log of cache lookup outcomes.
package history

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Lookup outcomes.
const (
	OutcomeHit     = "hit"
	OutcomeMiss    = "miss"
	OutcomeRefresh = "refresh"
	OutcomeEvicted = "evicted"
	OutcomeRemoved = "removed"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS lookups (
	video_id  TEXT NOT NULL,
	reference TEXT NOT NULL DEFAULT '',
	outcome   TEXT NOT NULL,
	at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_lookups_video_id ON lookups(video_id);
CREATE INDEX IF NOT EXISTS idx_lookups_at ON lookups(at);
`

// Log wraps a sql.DB with history-specific operations.
type Log struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*Log, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("history: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("history: apply schema: %w", err)
	}
	return &Log{conn: conn}, nil
}

// Close closes the underlying database connection.
func (l *Log) Close() error {
	return l.conn.Close()
}

// Record appends one lookup outcome.
func (l *Log) Record(videoID, reference, outcome string) error {
	_, err := l.conn.Exec(
		`INSERT INTO lookups (video_id, reference, outcome) VALUES (?, ?, ?)`,
		videoID, reference, outcome)
	if err != nil {
		return fmt.Errorf("history: record lookup: %w", err)
	}
	return nil
}
