// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrClosed is returned after Close.
var ErrClosed = errors.New("audit log closed")

const schema = `
CREATE TABLE IF NOT EXISTS session_events (
	id         TEXT PRIMARY KEY,
	created_at INTEGER NOT NULL,
	kind       TEXT NOT NULL,
	username   TEXT NOT NULL DEFAULT '',
	detail     TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_session_events_created ON session_events(created_at);
`

// Log is a SQLite-backed audit trail. It is safe for concurrent use.
type Log struct {
	mu     sync.RWMutex
	db     *sql.DB
	path   string
	closed bool
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Log, error) {
	if path == "" {
		return nil, errors.New("audit path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create audit directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize audit schema: %w", err)
	}

	// Audit data is operator-private
	_ = os.Chmod(path, 0600)

	return &Log{db: db, path: path}, nil
}

// Path returns the database path.
func (l *Log) Path() string {
	return l.path
}

// Record stores ev.
func (l *Log) Record(ctx context.Context, ev Event) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return ErrClosed
	}
	if ev.ID == "" {
		ev = NewEvent(ev.Kind, ev.Username, ev.Detail)
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO session_events (id, created_at, kind, username, detail) VALUES (?, ?, ?, ?, ?)`,
		ev.ID, ev.Time.UnixMilli(), string(ev.Kind), ev.Username, truncate(ev.Detail, MaxDetailLength))
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// Recent returns up to limit events, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Event, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return nil, ErrClosed
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx,
		`SELECT id, created_at, kind, username, detail FROM session_events
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var (
			ev   Event
			ms   int64
			kind string
		)
		if err := rows.Scan(&ev.ID, &ms, &kind, &ev.Username, &ev.Detail); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Time = time.UnixMilli(ms).UTC()
		ev.Kind = Kind(kind)
		events = append(events, ev)
	}
	return events, rows.Err()
}

// Close closes the database. Further calls return ErrClosed.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.db.Close()
}
