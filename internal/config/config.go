package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/resilience"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Cluster ClusterConfig `yaml:"cluster" mapstructure:"cluster"`
	Ingest  IngestConfig  `yaml:"ingest" mapstructure:"ingest"`
	Retry   RetryConfig   `yaml:"retry" mapstructure:"retry"`
	Circuit CircuitConfig `yaml:"circuit" mapstructure:"circuit"`
	Geocode GeocodeConfig `yaml:"geocode" mapstructure:"geocode"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ClusterConfig holds the incident matching thresholds.
type ClusterConfig struct {
	DistanceMeters float64 `yaml:"distance_meters" mapstructure:"distance_meters"`
	WindowHours    float64 `yaml:"window_hours" mapstructure:"window_hours"`
}

// Window returns the matching window as a duration.
func (c ClusterConfig) Window() time.Duration {
	return time.Duration(c.WindowHours * float64(time.Hour))
}

// IngestConfig configures feed polling.
type IngestConfig struct {
	FeedsFile          string   `yaml:"feeds_file" mapstructure:"feeds_file"`
	RSSURLs            []string `yaml:"rss_urls" mapstructure:"rss_urls"`
	KeywordFilters     []string `yaml:"keyword_filters" mapstructure:"keyword_filters"`
	MaxConcurrentFeeds int      `yaml:"max_concurrent_feeds" mapstructure:"max_concurrent_feeds"`
	IntervalMins       int      `yaml:"interval_mins" mapstructure:"interval_mins"`
	DefaultLatitude    float64  `yaml:"default_latitude" mapstructure:"default_latitude"`
	DefaultLongitude   float64  `yaml:"default_longitude" mapstructure:"default_longitude"`
	RegionName         string   `yaml:"region_name" mapstructure:"region_name"`
	RegionFilter       bool     `yaml:"region_filter" mapstructure:"region_filter"`
	UserAgent          string   `yaml:"user_agent" mapstructure:"user_agent"`
	HostRatePerSec     float64  `yaml:"host_rate_per_sec" mapstructure:"host_rate_per_sec"`
	TimeoutSecs        int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DefaultPoint returns the fallback location for entries that cannot be geocoded.
func (c IngestConfig) DefaultPoint() geo.Point {
	return geo.Point{Latitude: c.DefaultLatitude, Longitude: c.DefaultLongitude}
}

// Interval returns the polling interval.
func (c IngestConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMins) * time.Minute
}

// RetryConfig configures retries of feed fetches, geocoding calls and ingest
// transactions.
type RetryConfig struct {
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
}

// Resilience converts c to a resilience.RetryConfig.
func (c RetryConfig) Resilience() resilience.RetryConfig {
	return resilience.FromRetryConfig(c.MaxAttempts, c.InitialBackoffMs, c.MaxBackoffMs)
}

// CircuitConfig configures the per-feed circuit breakers.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// Resilience converts c to a resilience.CircuitBreakerConfig.
func (c CircuitConfig) Resilience() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(c.FailureThreshold, c.ResetTimeoutSecs)
}

// GeocodeConfig selects and tunes the geocoder.
type GeocodeConfig struct {
	Provider      string  `yaml:"provider" mapstructure:"provider"`
	GoogleAPIKey  string  `yaml:"google_api_key" mapstructure:"google_api_key"`
	RateLimit     float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	CacheTTLHours int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	RegionHint    string  `yaml:"region_hint" mapstructure:"region_hint"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("BREAKWATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("cluster.distance_meters", 300.0)
	v.SetDefault("cluster.window_hours", 2.0)
	v.SetDefault("ingest.feeds_file", "feeds.yaml")
	v.SetDefault("ingest.rss_urls", []string{})
	v.SetDefault("ingest.keyword_filters", []string{})
	v.SetDefault("ingest.max_concurrent_feeds", 4)
	v.SetDefault("ingest.interval_mins", 15)
	v.SetDefault("ingest.default_latitude", 43.6534)
	v.SetDefault("ingest.default_longitude", -79.3841)
	v.SetDefault("ingest.region_name", "toronto")
	v.SetDefault("ingest.region_filter", false)
	v.SetDefault("ingest.user_agent", "breakwatch/1.0 (+https://github.com/sells-group/breakwatch)")
	v.SetDefault("ingest.host_rate_per_sec", 2.0)
	v.SetDefault("ingest.timeout_secs", 30)
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 300)
	v.SetDefault("geocode.provider", "noop")
	v.SetDefault("geocode.google_api_key", "")
	v.SetDefault("geocode.rate_limit", 10.0)
	v.SetDefault("geocode.cache_ttl_hours", 24)
	v.SetDefault("geocode.region_hint", "Toronto, ON")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	cfg.Ingest.RSSURLs = splitList(cfg.Ingest.RSSURLs)
	cfg.Ingest.KeywordFilters = splitList(cfg.Ingest.KeywordFilters)

	return &cfg, nil
}

// splitList flattens comma-separated entries, so RSS_URLS-style env values
// and YAML lists both work.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if p := strings.TrimSpace(part); p != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// Validate checks the settings a command needs. mode is one of serve,
// ingest, migrate, rescore or query.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "serve", "ingest", "migrate", "rescore", "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.Driver != "sqlite" && c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	if c.Cluster.DistanceMeters <= 0 {
		errs = append(errs, "cluster.distance_meters must be > 0")
	}
	if c.Cluster.WindowHours <= 0 {
		errs = append(errs, "cluster.window_hours must be > 0")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, "server.port must be > 0 and <= 65535")
		}
	case "ingest":
		if c.Ingest.MaxConcurrentFeeds < 1 || c.Ingest.MaxConcurrentFeeds > 64 {
			errs = append(errs, "ingest.max_concurrent_feeds must be between 1 and 64")
		}
		if !c.Ingest.DefaultPoint().Valid() {
			errs = append(errs, "ingest.default_latitude/default_longitude out of range")
		}
		switch c.Geocode.Provider {
		case "noop", "":
		case "google":
			if c.Geocode.GoogleAPIKey == "" {
				errs = append(errs, "geocode.google_api_key is required for the google provider")
			}
		default:
			errs = append(errs, fmt.Sprintf("geocode.provider must be noop or google, got %q", c.Geocode.Provider))
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
