package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	// Change to temp dir so no config.yaml is found
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, int32(10), cfg.Store.MaxConns)
	assert.Equal(t, int32(2), cfg.Store.MinConns)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"*"}, cfg.Server.CORSOrigins)
	assert.InDelta(t, 300, cfg.Cluster.DistanceMeters, 0.001)
	assert.Equal(t, 2*time.Hour, cfg.Cluster.Window())
	assert.Equal(t, "feeds.yaml", cfg.Ingest.FeedsFile)
	assert.Empty(t, cfg.Ingest.RSSURLs)
	assert.Equal(t, 4, cfg.Ingest.MaxConcurrentFeeds)
	assert.Equal(t, 15*time.Minute, cfg.Ingest.Interval())
	assert.InDelta(t, 43.6534, cfg.Ingest.DefaultPoint().Latitude, 1e-9)
	assert.InDelta(t, -79.3841, cfg.Ingest.DefaultPoint().Longitude, 1e-9)
	assert.Equal(t, "toronto", cfg.Ingest.RegionName)
	assert.False(t, cfg.Ingest.RegionFilter)
	assert.Equal(t, 3, cfg.Retry.MaxAttempts)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.Resilience().InitialBackoff)
	assert.Equal(t, 5*time.Minute, cfg.Circuit.Resilience().ResetTimeout)
	assert.Equal(t, "noop", cfg.Geocode.Provider)
	assert.Equal(t, 24, cfg.Geocode.CacheTTLHours)
	assert.Equal(t, "Toronto, ON", cfg.Geocode.RegionHint)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
  database_url: breakwatch.db
log:
  level: debug
  format: console
cluster:
  distance_meters: 150
  window_hours: 0.5
ingest:
  rss_urls:
    - https://example.com/a.xml
    - https://example.com/b.xml
  keyword_filters: [watermain, flooding]
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "breakwatch.db", cfg.Store.DatabaseURL)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format)
	assert.InDelta(t, 150, cfg.Cluster.DistanceMeters, 0.001)
	assert.Equal(t, 30*time.Minute, cfg.Cluster.Window())
	assert.Equal(t, []string{"https://example.com/a.xml", "https://example.com/b.xml"}, cfg.Ingest.RSSURLs)
	assert.Equal(t, []string{"watermain", "flooding"}, cfg.Ingest.KeywordFilters)
	// Defaults still apply for unset values
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("BREAKWATCH_STORE_DRIVER", "postgres")
	t.Setenv("BREAKWATCH_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	// Env overrides file
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadEnvOverridesDefaults(t *testing.T) {
	chdirTemp(t)

	t.Setenv("BREAKWATCH_SERVER_PORT", "3000")
	t.Setenv("BREAKWATCH_CLUSTER_DISTANCE_METERS", "500")
	t.Setenv("BREAKWATCH_INGEST_RSS_URLS", "https://example.com/a.xml, https://example.com/b.xml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
	assert.InDelta(t, 500, cfg.Cluster.DistanceMeters, 0.001)
	assert.Equal(t, []string{"https://example.com/a.xml", "https://example.com/b.xml"}, cfg.Ingest.RSSURLs)
}

func TestLoadMalformedFile(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("store: [unclosed"), 0644))

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "config: read file")
}

func TestSplitList(t *testing.T) {
	assert.Nil(t, splitList(nil))
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a, b", " ", "c"}))
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerJSON(t *testing.T) {
	err := InitLogger(LogConfig{Level: "info", Format: "json"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "postgres"
	cfg.Store.DatabaseURL = "postgres://localhost/breakwatch"
	cfg.Server.Port = 8080
	cfg.Cluster.DistanceMeters = 300
	cfg.Cluster.WindowHours = 2
	cfg.Ingest.MaxConcurrentFeeds = 4
	cfg.Ingest.DefaultLatitude = 43.6534
	cfg.Ingest.DefaultLongitude = -79.3841
	cfg.Geocode.Provider = "noop"
	return cfg
}

func TestValidate_AllModes(t *testing.T) {
	cfg := validDefaults()
	for _, mode := range []string{"serve", "ingest", "migrate", "rescore", "query"} {
		assert.NoError(t, cfg.Validate(mode), mode)
	}
}

func TestValidate_UnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}

func TestValidate_Store(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "mysql"
	cfg.Store.DatabaseURL = ""

	err := cfg.Validate("migrate")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), `store.driver must be postgres or sqlite, got "mysql"`)
	assert.Contains(t, err.Error(), "store.database_url is required")
}

func TestValidate_ClusterThresholds(t *testing.T) {
	cfg := validDefaults()
	cfg.Cluster.DistanceMeters = 0
	cfg.Cluster.WindowHours = -1

	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "cluster.distance_meters must be > 0")
	assert.Contains(t, err.Error(), "cluster.window_hours must be > 0")
}

func TestValidate_ServePort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")

	// Port only matters when serving.
	assert.NoError(t, cfg.Validate("ingest"))
}

func TestValidate_Ingest(t *testing.T) {
	cfg := validDefaults()
	cfg.Ingest.MaxConcurrentFeeds = 0
	err := cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "max_concurrent_feeds must be between 1 and 64")

	cfg = validDefaults()
	cfg.Ingest.DefaultLatitude = 91
	err = cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "default_latitude")

	cfg = validDefaults()
	cfg.Geocode.Provider = "google"
	err = cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.google_api_key is required")

	cfg.Geocode.GoogleAPIKey = "key"
	assert.NoError(t, cfg.Validate("ingest"))

	cfg.Geocode.Provider = "mapbox"
	err = cfg.Validate("ingest")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "geocode.provider must be noop or google")
}

func TestValidate_SQLiteNeedsNoURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "sqlite"
	cfg.Store.DatabaseURL = ""
	assert.NoError(t, cfg.Validate("query"))
}
