package cmd

import (
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func execute(t *testing.T, args ...string) error {
	t.Helper()
	root := newRootCmd()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	return root.Execute()
}

func TestRunRequiresInputDirectory(t *testing.T) {
	require.Error(t, execute(t, "run"))
}

func TestRunMissingInputDirectoryFails(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "out.db")
	err := execute(t, "run", filepath.Join(t.TempDir(), "absent"), "--store", dbPath)
	require.Error(t, err)
}

func TestRunEndToEnd(t *testing.T) {
	root := t.TempDir()
	page := `<html><head><meta property="og:url" content="https://forum.example.com/community/threads/smoke-test.31/" /></head><body>` +
		`<h1 class="p-title-value">Smoke test</h1>` +
		`<article class="message message--post" data-content="post-600">` +
		`<div class="message-header"><time datetime="2023-09-01T08:00:00+0000">Sep 1</time></div>` +
		`<a class="username" data-user-id="14">Hugo</a>` +
		`<article class="message-body"><p>works</p></article>` +
		`</article></body></html>`
	require.NoError(t, os.WriteFile(filepath.Join(root, "smoke.html"), []byte(page), 0o600))

	dbPath := filepath.Join(t.TempDir(), "out.db")
	require.NoError(t, execute(t, "run", root, "--store", dbPath, "--workers", "2"))

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	defer db.Close() //nolint:errcheck

	for table, want := range map[string]int{"threads": 1, "users": 1, "posts": 1} {
		var n int
		require.NoError(t, db.QueryRow(fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n))
		assert.Equal(t, want, n, "table %s", table)
	}
}

func TestRunAllFilesFailingIsAnError(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "junk.html"), []byte("<html></html>"), 0o600))

	dbPath := filepath.Join(t.TempDir(), "out.db")
	err := execute(t, "run", root, "--store", dbPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed")
}
