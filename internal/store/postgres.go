package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/archivist-tools/forumharvest/internal/extract"
)

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS threads (
		id BIGINT PRIMARY KEY,
		title TEXT,
		slug TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		name TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS posts (
		id INTEGER PRIMARY KEY,
		user_id INTEGER REFERENCES users (id),
		thread_id BIGINT REFERENCES threads (id),
		thread_order INTEGER,
		datetime TEXT,
		content TEXT
	)`,
}

const (
	pgInsertThread = `INSERT INTO threads (id, title, slug) VALUES ($1, $2, $3) ON CONFLICT (id) DO NOTHING`
	pgInsertUser   = `INSERT INTO users (id, name) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`
	pgInsertPost   = `INSERT INTO posts (id, user_id, thread_id, thread_order, datetime, content) VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT (id) DO NOTHING`
)

// pgPool is the subset of pgxpool.Pool the store needs. pgxmock satisfies
// it as well, which is how the tests drive transaction behavior.
type pgPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresStore implements Store over a pgx connection pool. Contention is
// left to server-side MVCC; unlike SQLite there is no client-side retry.
type PostgresStore struct {
	pool pgPool
}

// NewPostgresStore builds a pool from the DSN. The pool connects lazily;
// an unreachable server surfaces as ErrStoreUnavailable on Provision.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, unavailable(fmt.Errorf("parse postgres dsn: %w", err))
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, unavailable(err)
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreWithPool constructs a store from an existing pool
// (primarily for testing).
func NewPostgresStoreWithPool(pool pgPool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Provision creates the three tables if they are absent.
func (s *PostgresStore) Provision(ctx context.Context) error {
	for _, ddl := range postgresSchema {
		if _, err := s.pool.Exec(ctx, ddl); err != nil {
			return unavailable(fmt.Errorf("provision postgres schema: %w", err))
		}
	}
	return nil
}

// MergeThread applies one record in one transaction with
// insert-if-absent semantics.
func (s *PostgresStore) MergeThread(ctx context.Context, rec extract.ThreadRecord) error {
	if err := s.mergeOnce(ctx, rec); err != nil {
		return &MergeError{ThreadID: rec.ID, Err: err}
	}
	return nil
}

func (s *PostgresStore) mergeOnce(ctx context.Context, rec extract.ThreadRecord) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit

	if _, err := tx.Exec(ctx, pgInsertThread, int64(rec.ID), rec.Title, rec.Slug); err != nil {
		return fmt.Errorf("insert thread: %w", err)
	}

	seen := make(map[int]struct{}, len(rec.Posts))
	for _, post := range rec.Posts {
		if _, ok := seen[post.UserID]; !ok {
			seen[post.UserID] = struct{}{}
			if _, err := tx.Exec(ctx, pgInsertUser, post.UserID, post.Username); err != nil {
				return fmt.Errorf("insert user %d: %w", post.UserID, err)
			}
		}
		if _, err := tx.Exec(ctx, pgInsertPost,
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

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
