package feed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCatalog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feeds.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
feeds:
  - name: city-alerts
    url: https://example.com/rss
    keywords: [watermain, burst]
  - url: " https://example.com/311.xml "
    source_type: "311"
`), 0o600))

	sources, err := LoadCatalog(path)
	require.NoError(t, err)
	require.Len(t, sources, 2)

	assert.Equal(t, "city-alerts", sources[0].Name)
	assert.Equal(t, "rss", sources[0].SourceType)
	assert.Equal(t, []string{"watermain", "burst"}, sources[0].Keywords)

	assert.Equal(t, "https://example.com/311.xml", sources[1].URL)
	assert.Equal(t, "https://example.com/311.xml", sources[1].Name)
	assert.Equal(t, "311", sources[1].SourceType)
}

func TestLoadCatalog_Errors(t *testing.T) {
	_, err := LoadCatalog(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)

	_, err = ParseCatalog([]byte("feeds: [{name: x}]"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no url")

	_, err = ParseCatalog([]byte("feeds: {"))
	require.Error(t, err)
}

func TestSourcesFromURLs(t *testing.T) {
	got := SourcesFromURLs([]string{"https://a.example/rss", " ", "https://b.example/rss"}, []string{"leak"})
	require.Len(t, got, 2)
	assert.Equal(t, "https://b.example/rss", got[1].Name)
	assert.Equal(t, []string{"leak"}, got[1].Keywords)
}
