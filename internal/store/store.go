// Package store persists thread extraction records into a relational
// database. By using an interface, we decouple the pipeline from a specific
// backend, allowing for easier testing and flexibility in the future.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/archivist-tools/forumharvest/internal/extract"
)

// ErrStoreUnavailable marks a store that cannot be opened or reached at
// all. It is fatal to the whole run, not to a single file.
var ErrStoreUnavailable = errors.New("store unavailable")

// MergeError reports a failed merge of one thread extraction record. The
// record contributed nothing: the transaction was rolled back.
type MergeError struct {
	ThreadID uint64
	Err      error
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge thread %d: %v", e.ThreadID, e.Err)
}

// Unwrap exposes the underlying store error.
func (e *MergeError) Unwrap() error { return e.Err }

// Store defines the common interface for the persistence layer.
type Store interface {
	// Provision creates the schema if it does not exist yet. It is
	// invoked once before the pipeline runs.
	Provision(ctx context.Context) error

	// MergeThread applies one extraction record as a single transaction:
	// thread row, then user rows, then post rows, all insert-if-absent by
	// primary key. On failure nothing from the record is visible.
	MergeThread(ctx context.Context, rec extract.ThreadRecord) error

	// Close releases the underlying connections.
	Close() error
}

// Open selects a backend from the store path: a postgres:// or
// postgresql:// DSN opens the Postgres backend, anything else is treated
// as a SQLite file path.
func Open(ctx context.Context, path string) (Store, error) {
	if strings.HasPrefix(path, "postgres://") || strings.HasPrefix(path, "postgresql://") {
		return NewPostgresStore(ctx, path)
	}
	return NewSQLiteStore(path)
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}
