package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFeedURLs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "feed-urls.txt")
	require.NoError(t, os.WriteFile(path, []byte(`# my feeds
https://example.com/feed.xml

  https://other.example.org/atom.xml
# commented-out.example.com/rss
`), 0o644))

	urls, err := loadFeedURLs(path)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://example.com/feed.xml",
		"https://other.example.org/atom.xml",
	}, urls)
}

func TestLoadFeedURLsMissingFile(t *testing.T) {
	_, err := loadFeedURLs(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}
