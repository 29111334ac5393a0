// Package accesslog persists one row per served connection in SQLite.
package accesslog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/zeljkobekcic/webserver/internal/server"
)

const schema = `
CREATE TABLE IF NOT EXISTS access_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	conn_id     TEXT      NOT NULL,
	remote_addr TEXT      NOT NULL,
	method      TEXT      NOT NULL DEFAULT '',
	target      TEXT      NOT NULL DEFAULT '',
	user_agent  TEXT      NOT NULL DEFAULT '',
	status      INTEGER   NOT NULL DEFAULT 0,
	bytes       INTEGER   NOT NULL DEFAULT 0,
	started_at  TIMESTAMP NOT NULL,
	duration_us INTEGER   NOT NULL DEFAULT 0,
	error       TEXT      NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS access_log_started_at ON access_log(started_at);
`

// Entry is one stored row.
type Entry struct {
	ID         int64
	ConnID     string
	RemoteAddr string
	Method     string
	Target     string
	UserAgent  string
	Status     int
	Bytes      int64
	StartedAt  time.Time
	Duration   time.Duration
	Error      string
}

// Store writes access log entries to a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dataSourceName and applies
// the schema.
func Open(dataSourceName string) (*Store, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; handlers record concurrently.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("opening access log %s: %w", dataSourceName, err)
	}
	if _, err = db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying access log schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record inserts the outcome of one connection.
func (s *Store) Record(ctx context.Context, r server.Result) error {
	var errText string
	if r.Err != nil {
		errText = r.Err.Error()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_log(conn_id, remote_addr, method, target, user_agent, status, bytes, started_at, duration_us, error)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ConnID, r.RemoteAddr, r.Method, r.Target, r.UserAgent, r.Status, r.Bytes,
		r.Start.UTC(), r.Duration.Microseconds(), errText,
	)
	return err
}

// Recent returns up to n entries, newest first.
func (s *Store) Recent(ctx context.Context, n int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conn_id, remote_addr, method, target, user_agent, status, bytes, started_at, duration_us, error
		 FROM access_log ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var durationUS int64
		if err := rows.Scan(&e.ID, &e.ConnID, &e.RemoteAddr, &e.Method, &e.Target, &e.UserAgent,
			&e.Status, &e.Bytes, &e.StartedAt, &durationUS, &e.Error); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(durationUS) * time.Microsecond
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Observer returns a server.Config.OnResult callback that records every
// result. Failures are logged and otherwise ignored.
func (s *Store) Observer(logger *slog.Logger) func(server.Result) {
	if logger == nil {
		logger = slog.Default()
	}
	return func(r server.Result) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Record(ctx, r); err != nil {
			logger.Warn("recording access log entry", "conn_id", r.ConnID, "error", err)
		}
	}
}
