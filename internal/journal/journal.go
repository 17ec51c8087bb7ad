// Package journal provides a SQLite-backed audit trail of coordinator
// events. It is a write-behind sink: the core engines never read it, so
// losing or disabling the journal never changes scheduling or decision
// behavior.
package journal

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hivegate/hivegate/internal/swarm"
)

// Journal wraps an SQLite database holding the event audit trail.
type Journal struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Record is one journaled event row.
type Record struct {
	Seq        int64
	Type       string
	AgentID    string
	TaskID     string
	DecisionID string
	Grade      string
	Status     string
	Reason     string
	Timestamp  time.Time
}

// Open opens the journal database at the given path, creating parent
// directories as needed. WAL mode is enabled for concurrent reads.
func Open(path string) (*Journal, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &Journal{conn: conn, path: path}, nil
}

// Close closes the journal database.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.conn.Close()
}

// Path returns the journal database file path.
func (j *Journal) Path() string {
	return j.path
}

// Migrate applies all pending schema migrations.
func (j *Journal) Migrate() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := j.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, migrationV1Events},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}

		tx, err := j.conn.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction: %w", err)
		}

		if _, err := tx.Exec(m.sql); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration v%d: %w", m.version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration v%d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration v%d: %w", m.version, err)
		}
	}

	return nil
}

const migrationV1Events = `
CREATE TABLE IF NOT EXISTS events (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	type TEXT NOT NULL,
	agent_id TEXT,
	task_id TEXT,
	decision_id TEXT,
	grade TEXT,
	status TEXT,
	reason TEXT,
	timestamp DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_events_type ON events(type);
CREATE INDEX IF NOT EXISTS idx_events_agent_id ON events(agent_id);
CREATE INDEX IF NOT EXISTS idx_events_timestamp ON events(timestamp);
`

// RecordEvent appends one coordinator event to the audit trail.
func (j *Journal) RecordEvent(event swarm.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.conn.Exec(`
		INSERT INTO events (type, agent_id, task_id, decision_id, grade, status, reason, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		string(event.Type),
		event.AgentID,
		event.TaskID,
		event.DecisionID,
		string(event.Grade),
		string(event.Status),
		event.Reason,
		formatTime(event.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (j *Journal) RecentEvents(limit int) ([]Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	rows, err := j.conn.Query(`
		SELECT seq, type, agent_id, task_id, decision_id, grade, status, reason, timestamp
		FROM events
		ORDER BY seq DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r  Record
			ts string
		)
		if err := rows.Scan(&r.Seq, &r.Type, &r.AgentID, &r.TaskID, &r.DecisionID, &r.Grade, &r.Status, &r.Reason, &ts); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		t, err := parseTime(ts)
		if err != nil {
			return nil, fmt.Errorf("parse event timestamp: %w", err)
		}
		r.Timestamp = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// EventCount returns the total number of journaled events.
func (j *Journal) EventCount() (int64, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var count int64
	row := j.conn.QueryRow("SELECT COUNT(*) FROM events")
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return count, nil
}

// PurgeBefore deletes events older than the cutoff. Returns the number
// of rows deleted.
func (j *Journal) PurgeBefore(cutoff time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	result, err := j.conn.Exec("DELETE FROM events WHERE timestamp < ?", formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("purge events: %w", err)
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return count, nil
}

// formatTime formats a time.Time for SQLite storage.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// parseTime parses a time string from SQLite.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
