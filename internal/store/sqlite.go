package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // sqlite driver

	"github.com/archivist-tools/forumharvest/internal/extract"
	"github.com/archivist-tools/forumharvest/internal/metrics"
)

// Pragmas applied to every opened database. WAL plus a generous busy
// timeout keeps many short writer transactions from failing outright under
// contention.
var sqlitePragmas = []string{
	"PRAGMA foreign_keys = ON",
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 10000",
	"PRAGMA synchronous = NORMAL",
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS threads (
	id INTEGER PRIMARY KEY,
	title TEXT,
	slug TEXT
);
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY,
	name TEXT
);
CREATE TABLE IF NOT EXISTS posts (
	id INTEGER PRIMARY KEY,
	user_id INTEGER,
	thread_id INTEGER,
	thread_order INTEGER,
	datetime TEXT,
	content TEXT,
	FOREIGN KEY (user_id) REFERENCES users (id),
	FOREIGN KEY (thread_id) REFERENCES threads (id)
);`

const (
	sqliteInsertThread = `INSERT OR IGNORE INTO threads (id, title, slug) VALUES (?, ?, ?)`
	sqliteInsertUser   = `INSERT OR IGNORE INTO users (id, name) VALUES (?, ?)`
	sqliteInsertPost   = `INSERT OR IGNORE INTO posts (id, user_id, thread_id, thread_order, datetime, content) VALUES (?, ?, ?, ?, ?, ?)`
)

const (
	busyMaxAttempts    = 5
	busyBackoffInitial = 50 * time.Millisecond
	busyBackoffMax     = 800 * time.Millisecond
)

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) the database at path and
// applies the production pragmas. Open or ping failures are reported as
// ErrStoreUnavailable.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, unavailable(err)
	}
	for _, pragma := range sqlitePragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck // already failing
			return nil, unavailable(fmt.Errorf("%s: %w", pragma, err))
		}
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck // already failing
		return nil, unavailable(err)
	}
	return &SQLiteStore{db: db}, nil
}

// NewSQLiteStoreWithDB wraps an existing handle (primarily for testing).
func NewSQLiteStoreWithDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Provision creates the three tables if they are absent.
func (s *SQLiteStore) Provision(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("provision sqlite schema: %w", err)
	}
	return nil
}

// MergeThread applies one record in one transaction, retrying
// busy/locked failures with capped exponential backoff. Anything still
// failing after the retry budget surfaces as a *MergeError.
func (s *SQLiteStore) MergeThread(ctx context.Context, rec extract.ThreadRecord) error {
	backoff := busyBackoffInitial
	var err error
	for attempt := 0; attempt < busyMaxAttempts; attempt++ {
		if attempt > 0 {
			metrics.RecordMergeRetry()
			select {
			case <-ctx.Done():
				return &MergeError{ThreadID: rec.ID, Err: ctx.Err()}
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > busyBackoffMax {
				backoff = busyBackoffMax
			}
		}
		err = s.mergeOnce(ctx, rec)
		if err == nil {
			return nil
		}
		if !isBusy(err) {
			break
		}
	}
	return &MergeError{ThreadID: rec.ID, Err: err}
}

func (s *SQLiteStore) mergeOnce(ctx context.Context, rec extract.ThreadRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, sqliteInsertThread, int64(rec.ID), rec.Title, rec.Slug); err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}

	seen := make(map[int]struct{}, len(rec.Posts))
	for _, post := range rec.Posts {
		if _, ok := seen[post.UserID]; !ok {
			seen[post.UserID] = struct{}{}
			if _, err := tx.ExecContext(ctx, sqliteInsertUser, post.UserID, post.Username); err != nil {
				return fmt.Errorf("insert user %d: %w", post.UserID, err)
			}
		}
		if _, err := tx.ExecContext(ctx, sqliteInsertPost,
			post.ID,
			post.UserID,
			int64(rec.ID),
			post.ThreadOrder,
			post.Datetime,
			strings.TrimSpace(post.Body),
		); err != nil {
			return fmt.Errorf("insert post %d: %w", post.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close shuts down the connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close sqlite store: %w", err)
	}
	return nil
}

// isBusy reports whether err is a transient SQLite lock/contention error
// worth retrying. The driver does not expose typed errors for these, so we
// match the canonical message fragments.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "SQLITE_LOCKED") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
