// Package journal keeps a local SQLite record of every successful publish
// or schedule, so the operator can check what went out.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"auto_social_publisher/compose"
)

const schema = `
CREATE TABLE IF NOT EXISTS deliveries (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    flow_id     TEXT NOT NULL,
    kind        TEXT NOT NULL CHECK (kind IN ('post', 'email')),
    op          TEXT NOT NULL CHECK (op IN ('publish', 'schedule')),
    receipt_id  TEXT NOT NULL DEFAULT '',
    url         TEXT NOT NULL DEFAULT '',
    target_at   TEXT NOT NULL DEFAULT '',
    excerpt     TEXT NOT NULL DEFAULT '',
    created_at  TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_deliveries_created ON deliveries(created_at);
`

// Store is a compose.Recorder backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open creates the database file and its directory when missing. Use
// ":memory:" for a throwaway journal.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
		dsn += "?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}
	// a single connection keeps ":memory:" databases alive across calls
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("running journal schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends one delivery.
func (s *Store) Record(ctx context.Context, r compose.Record) error {
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO deliveries (flow_id, kind, op, receipt_id, url, target_at, excerpt, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.FlowID, r.Kind, r.Op, r.ReceiptID, r.URL, formatTime(r.When), r.Excerpt, formatTime(created),
	)
	if err != nil {
		return fmt.Errorf("recording delivery: %w", err)
	}
	return nil
}

// Recent returns the last deliveries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]compose.Record, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT flow_id, kind, op, receipt_id, url, target_at, excerpt, created_at
		 FROM deliveries ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing deliveries: %w", err)
	}
	defer rows.Close()

	var out []compose.Record
	for rows.Next() {
		var r compose.Record
		var when, created string
		if err := rows.Scan(&r.FlowID, &r.Kind, &r.Op, &r.ReceiptID, &r.URL, &when, &r.Excerpt, &created); err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}
		r.When = parseTime(when)
		r.CreatedAt = parseTime(created)
		out = append(out, r)
	}
	return out, rows.Err()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
