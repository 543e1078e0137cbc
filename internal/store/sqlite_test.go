package store

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/archivist-tools/forumharvest/internal/extract"
)

// openMemoryStore opens an in-memory database capped at one connection so
// every query hits the same database (each connection to ":memory:"
// creates a separate one).
func openMemoryStore(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	st.db.SetMaxOpenConns(1)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Provision(context.Background()))
	return st
}

func cookingThread() extract.ThreadRecord {
	return extract.ThreadRecord{
		Slug:  "how-to-cook",
		ID:    1234,
		Title: "How to cook",
		Posts: []extract.PostRecord{
			{ID: 9001, UserID: 55, Username: "Alice", ThreadOrder: 45, Datetime: "2023-01-01T10:00:00+0000", Body: "<p>first</p>"},
			{ID: 9002, UserID: 0, Username: "Guest", ThreadOrder: 46, Datetime: "2023-01-01T11:00:00+0000", Body: "  <p>second</p>\n"},
			{ID: 9003, UserID: 0, Username: "Guest", ThreadOrder: 47, Datetime: "2023-01-01T12:00:00+0000", Body: "<p>third</p>"},
		},
	}
}

func countRows(t *testing.T, db *sql.DB, table string) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM `+table).Scan(&n))
	return n
}

func TestSQLiteMergeIdempotent(t *testing.T) {
	t.Parallel()

	st := openMemoryStore(t)
	ctx := context.Background()
	rec := cookingThread()

	require.NoError(t, st.MergeThread(ctx, rec))
	require.NoError(t, st.MergeThread(ctx, rec))

	assert.Equal(t, 1, countRows(t, st.db, "threads"))
	assert.Equal(t, 2, countRows(t, st.db, "users"))
	assert.Equal(t, 3, countRows(t, st.db, "posts"))
}

func TestSQLiteFirstWriterWinsForThreadMetadata(t *testing.T) {
	t.Parallel()

	st := openMemoryStore(t)
	ctx := context.Background()

	first := cookingThread()
	require.NoError(t, st.MergeThread(ctx, first))

	// A later page of the same thread carries a re-rendered title; the
	// original row must not change.
	second := cookingThread()
	second.Title = "How to cook (edited)"
	second.Posts = []extract.PostRecord{
		{ID: 9004, UserID: 55, Username: "Alice", ThreadOrder: 60, Datetime: "2023-01-02T10:00:00+0000", Body: "more"},
	}
	require.NoError(t, st.MergeThread(ctx, second))

	var title string
	require.NoError(t, st.db.QueryRow(`SELECT title FROM threads WHERE id = 1234`).Scan(&title))
	assert.Equal(t, "How to cook", title)
	assert.Equal(t, 4, countRows(t, st.db, "posts"))
}

func TestSQLiteAnonymousAuthorsCollapse(t *testing.T) {
	t.Parallel()

	st := openMemoryStore(t)
	ctx := context.Background()

	rec := extract.ThreadRecord{
		Slug:  "guests",
		ID:    9,
		Title: "Guests",
		Posts: []extract.PostRecord{
			{ID: 1, UserID: 0, Username: "Guest One", ThreadOrder: 0, Datetime: "2023-01-01T00:00:00+0000", Body: "a"},
			{ID: 2, UserID: 0, Username: "Guest Two", ThreadOrder: 1, Datetime: "2023-01-01T01:00:00+0000", Body: "b"},
		},
	}
	require.NoError(t, st.MergeThread(ctx, rec))

	var count int
	require.NoError(t, st.db.QueryRow(`SELECT COUNT(*) FROM users WHERE id = 0`).Scan(&count))
	assert.Equal(t, 1, count)

	// Distinct guest display names are not preserved; the first one wins.
	var name string
	require.NoError(t, st.db.QueryRow(`SELECT name FROM users WHERE id = 0`).Scan(&name))
	assert.Equal(t, "Guest One", name)
}

func TestSQLiteContentTrimmedAtPersistence(t *testing.T) {
	t.Parallel()

	st := openMemoryStore(t)
	require.NoError(t, st.MergeThread(context.Background(), cookingThread()))

	var content string
	require.NoError(t, st.db.QueryRow(`SELECT content FROM posts WHERE id = 9002`).Scan(&content))
	assert.Equal(t, "<p>second</p>", content)
}

func TestSQLiteThreadOrderPersisted(t *testing.T) {
	t.Parallel()

	st := openMemoryStore(t)
	require.NoError(t, st.MergeThread(context.Background(), cookingThread()))

	rows, err := st.db.Query(`SELECT id, thread_order FROM posts ORDER BY thread_order`)
	require.NoError(t, err)
	defer rows.Close() //nolint:errcheck

	want := map[int]int{9001: 45, 9002: 46, 9003: 47}
	seen := 0
	for rows.Next() {
		var id, order int
		require.NoError(t, rows.Scan(&id, &order))
		assert.Equal(t, want[id], order)
		seen++
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, len(want), seen)
}

func TestIsBusy(t *testing.T) {
	t.Parallel()

	assert.True(t, isBusy(errors.New("database is locked (5) (SQLITE_BUSY)")))
	assert.True(t, isBusy(errors.New("database table is locked: posts (6) (SQLITE_LOCKED)")))
	assert.False(t, isBusy(errors.New("UNIQUE constraint failed")))
	assert.False(t, isBusy(nil))
}
