// Package store persists bookmarks, recently visited directories, small
// settings and the log of finished operations in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/justyntemme/strop/internal/debug"
	"github.com/justyntemme/strop/internal/logging"
)

// DefaultMaxRecent caps the recent-directories list.
const DefaultMaxRecent = 20

// ErrNotFound is returned when a bookmark or setting does not exist.
var ErrNotFound = errors.New("not found")

const schema = `
CREATE TABLE IF NOT EXISTS bookmarks (
	path       TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS recent (
	path       TEXT PRIMARY KEY,
	visited_at INTEGER NOT NULL,
	visits     INTEGER NOT NULL DEFAULT 1,
	seq        INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS operations (
	id          TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	status      TEXT NOT NULL,
	sources     TEXT NOT NULL,
	destination TEXT NOT NULL,
	items       INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	error       TEXT NOT NULL,
	started_at  INTEGER NOT NULL,
	finished_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS operations_finished ON operations(finished_at);
`

// Bookmark is a user-pinned directory.
type Bookmark struct {
	Path    string
	Name    string
	Created time.Time
}

// Recent is a directory the user visited.
type Recent struct {
	Path    string
	Visited time.Time
	Visits  int
}

// OperationRecord is the archived summary of a finished operation.
type OperationRecord struct {
	ID          string
	Kind        string
	Status      string
	Sources     []string
	Destination string
	Items       int
	Failed      int
	Bytes       int64
	Err         string
	Started     time.Time
	Finished    time.Time
}

// DB is the application database.
type DB struct {
	conn      *sql.DB
	maxRecent int
	log       *zap.Logger
}

// Open creates or opens the database at dbPath in WAL mode.
func Open(dbPath string, maxRecent int) (*DB, error) {
	if maxRecent <= 0 {
		maxRecent = DefaultMaxRecent
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}

	// Pragmas in the DSN apply to every pooled connection.
	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "busy_timeout(5000)")
	conn, err := sql.Open("sqlite", "file:"+dbPath+"?"+q.Encode())
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", dbPath, err)
	}
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("store: schema: %w", err)
	}

	log := logging.Named("store")
	log.Debug("database opened", zap.String("path", dbPath))
	return &DB{conn: conn, maxRecent: maxRecent, log: log}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	if d == nil || d.conn == nil {
		return nil
	}
	return d.conn.Close()
}

// Bookmarks returns bookmarks oldest first.
func (d *DB) Bookmarks(ctx context.Context) ([]Bookmark, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT path, name, created_at FROM bookmarks ORDER BY created_at ASC, path ASC")
	if err != nil {
		return nil, fmt.Errorf("store: bookmarks: %w", err)
	}
	defer rows.Close()

	var out []Bookmark
	for rows.Next() {
		var b Bookmark
		var created int64
		if err := rows.Scan(&b.Path, &b.Name, &created); err != nil {
			return nil, fmt.Errorf("store: bookmarks: %w", err)
		}
		b.Created = time.Unix(0, created)
		out = append(out, b)
	}
	return out, rows.Err()
}

// AddBookmark saves path. An empty name uses the base name. Adding an
// existing bookmark renames it.
func (d *DB) AddBookmark(ctx context.Context, path, name string) error {
	if name == "" {
		name = filepath.Base(path)
	}
	_, err := d.conn.ExecContext(ctx,
		`INSERT INTO bookmarks (path, name, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET name = excluded.name`,
		path, name, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: add bookmark %s: %w", path, err)
	}
	debug.Log(debug.STORE, "bookmark added: %s (%s)", path, name)
	return nil
}

// RemoveBookmark deletes path, or returns ErrNotFound.
func (d *DB) RemoveBookmark(ctx context.Context, path string) error {
	res, err := d.conn.ExecContext(ctx, "DELETE FROM bookmarks WHERE path = ?", path)
	if err != nil {
		return fmt.Errorf("store: remove bookmark %s: %w", path, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("store: bookmark %s: %w", path, ErrNotFound)
	}
	debug.Log(debug.STORE, "bookmark removed: %s", path)
	return nil
}

// TouchRecent records a visit to path and trims the list to its cap.
func (d *DB) TouchRecent(ctx context.Context, path string) error {
	tx, err := d.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: recent: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO recent (path, visited_at, visits, seq)
		 VALUES (?, ?, 1, (SELECT COALESCE(MAX(seq), 0) + 1 FROM recent))
		 ON CONFLICT(path) DO UPDATE SET
		   visited_at = excluded.visited_at,
		   visits = recent.visits + 1,
		   seq = excluded.seq`,
		path, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("store: recent %s: %w", path, err)
	}
	_, err = tx.ExecContext(ctx,
		`DELETE FROM recent WHERE path NOT IN (
		   SELECT path FROM recent ORDER BY seq DESC LIMIT ?)`, d.maxRecent)
	if err != nil {
		return fmt.Errorf("store: trim recent: %w", err)
	}
	return tx.Commit()
}

// Recent returns visited directories, most recent first.
func (d *DB) Recent(ctx context.Context) ([]Recent, error) {
	rows, err := d.conn.QueryContext(ctx, "SELECT path, visited_at, visits FROM recent ORDER BY seq DESC")
	if err != nil {
		return nil, fmt.Errorf("store: recent: %w", err)
	}
	defer rows.Close()

	var out []Recent
	for rows.Next() {
		var r Recent
		var visited int64
		if err := rows.Scan(&r.Path, &visited, &r.Visits); err != nil {
			return nil, fmt.Errorf("store: recent: %w", err)
		}
		r.Visited = time.Unix(0, visited)
		out = append(out, r)
	}
	return out, rows.Err()
}

// ForgetRecent drops path from the recent list.
func (d *DB) ForgetRecent(ctx context.Context, path string) error {
	if _, err := d.conn.ExecContext(ctx, "DELETE FROM recent WHERE path = ?", path); err != nil {
		return fmt.Errorf("store: forget recent %s: %w", path, err)
	}
	return nil
}

// Setting returns a saved value or ErrNotFound.
func (d *DB) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := d.conn.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("store: setting %s: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("store: setting %s: %w", key, err)
	}
	return value, nil
}

// SaveSetting upserts a value.
func (d *DB) SaveSetting(ctx context.Context, key, value string) error {
	_, err := d.conn.ExecContext(ctx, "INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)", key, value)
	if err != nil {
		return fmt.Errorf("store: save setting %s: %w", key, err)
	}
	return nil
}

// LogOperation archives a finished operation. Logging the same id twice
// keeps the latest record.
func (d *DB) LogOperation(ctx context.Context, rec OperationRecord) error {
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("store: log operation %s: %w", rec.ID, err)
	}
	_, err = d.conn.ExecContext(ctx,
		`INSERT OR REPLACE INTO operations
		 (id, kind, status, sources, destination, items, failed, bytes, error, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Kind, rec.Status, string(sources), rec.Destination,
		rec.Items, rec.Failed, rec.Bytes, rec.Err,
		unixNano(rec.Started), unixNano(rec.Finished))
	if err != nil {
		return fmt.Errorf("store: log operation %s: %w", rec.ID, err)
	}
	debug.Log(debug.STORE, "operation archived: %s %s %s", rec.ID, rec.Kind, rec.Status)
	return nil
}

// Operations returns up to limit archived operations, newest first. A
// limit of zero returns all of them.
func (d *DB) Operations(ctx context.Context, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.conn.QueryContext(ctx,
		`SELECT id, kind, status, sources, destination, items, failed, bytes, error, started_at, finished_at
		 FROM operations ORDER BY finished_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: operations: %w", err)
	}
	defer rows.Close()

	var out []OperationRecord
	for rows.Next() {
		var rec OperationRecord
		var sources string
		var started, finished int64
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Status, &sources, &rec.Destination,
			&rec.Items, &rec.Failed, &rec.Bytes, &rec.Err, &started, &finished); err != nil {
			return nil, fmt.Errorf("store: operations: %w", err)
		}
		if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
			d.log.Warn("bad sources column", zap.String("id", rec.ID), zap.Error(err))
		}
		rec.Started = fromUnixNano(started)
		rec.Finished = fromUnixNano(finished)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}
