package extract

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewSelectors(t *testing.T) {
	t.Parallel()

	locs, err := NewSelectors()
	require.NoError(t, err)
	require.NotNil(t, locs)

	for name, sel := range map[string]any{
		"canonical URL": locs.CanonicalURL,
		"title":         locs.Title,
		"post":          locs.Post,
		"current page":  locs.CurrentPage,
		"timestamp":     locs.Timestamp,
		"author":        locs.Author,
		"avatar":        locs.Avatar,
		"body":          locs.Body,
	} {
		require.NotNil(t, sel, "selector %s should be compiled", name)
	}
}
