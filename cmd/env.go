package main

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/breakwatch/internal/cluster"
	"github.com/sells-group/breakwatch/internal/config"
	"github.com/sells-group/breakwatch/internal/correlate"
	"github.com/sells-group/breakwatch/internal/feed"
	"github.com/sells-group/breakwatch/internal/fetcher"
	"github.com/sells-group/breakwatch/internal/ingest"
	"github.com/sells-group/breakwatch/internal/resilience"
	"github.com/sells-group/breakwatch/internal/store"
	"github.com/sells-group/breakwatch/pkg/geocode"
)

const defaultSQLitePath = "breakwatch.db"

// initStore opens the configured store and applies pending migrations.
func initStore(ctx context.Context, mode string) (store.Store, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	dsn := cfg.Store.DatabaseURL
	if cfg.Store.Driver == store.DriverSQLite && dsn == "" {
		dsn = defaultSQLitePath
	}
	st, err := store.Open(ctx, store.Config{
		Driver:      cfg.Store.Driver,
		DatabaseURL: dsn,
		Pool:        &store.PoolConfig{MaxConns: cfg.Store.MaxConns, MinConns: cfg.Store.MinConns},
	})
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func clusterParams(c config.ClusterConfig) cluster.Params {
	return cluster.Params{DistanceMeters: c.DistanceMeters, Window: c.Window()}
}

// newGeocoder builds the configured geocoder behind a TTL cache.
func newGeocoder(c config.Config) (geocode.Geocoder, error) {
	var g geocode.Geocoder
	switch c.Geocode.Provider {
	case "google":
		google, err := geocode.NewGoogle(geocode.GoogleOptions{
			APIKey:     c.Geocode.GoogleAPIKey,
			RegionHint: c.Geocode.RegionHint,
			RateLimit:  c.Geocode.RateLimit,
			Retry:      c.Retry.Resilience(),
		})
		if err != nil {
			return nil, err
		}
		g = google
	case "noop", "":
		return geocode.Noop{}, nil
	default:
		return nil, eris.Errorf("unknown geocode provider %q", c.Geocode.Provider)
	}
	ttl := time.Duration(c.Geocode.CacheTTLHours) * time.Hour
	return geocode.NewCached(g, ttl), nil
}

// newRunner wires the fetcher, geocoder and correlation service into an
// ingest runner over st.
func newRunner(c config.Config, st store.Store) (*ingest.Runner, error) {
	g, err := newGeocoder(c)
	if err != nil {
		return nil, err
	}

	f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent: c.Ingest.UserAgent,
		Timeout:   time.Duration(c.Ingest.TimeoutSecs) * time.Second,
		Retry:     c.Retry.Resilience(),
		HostRate:  rate.Limit(c.Ingest.HostRatePerSec),
	})
	svc := correlate.NewService(st, clusterParams(c.Cluster))

	return ingest.NewRunner(f, st, svc, g, ingest.Options{
		DefaultPoint:       c.Ingest.DefaultPoint(),
		RegionName:         c.Ingest.RegionName,
		RegionFilter:       c.Ingest.RegionFilter,
		MaxConcurrentFeeds: c.Ingest.MaxConcurrentFeeds,
		Retry:              c.Retry.Resilience(),
		Breakers:           resilience.NewBreakers(c.Circuit.Resilience()),
	}), nil
}

// loadSources returns the feeds to poll: explicit URLs win, then the
// catalogue file, then ingest.rss_urls.
func loadSources(c config.IngestConfig, urls []string) ([]feed.Source, error) {
	if len(urls) > 0 {
		return feed.SourcesFromURLs(urls, c.KeywordFilters), nil
	}

	var sources []feed.Source
	if c.FeedsFile != "" {
		catalog, err := feed.LoadCatalog(c.FeedsFile)
		switch {
		case err == nil:
			sources = append(sources, catalog...)
		case errors.Is(err, os.ErrNotExist):
			zap.L().Debug("feed catalog not found", zap.String("path", c.FeedsFile))
		default:
			return nil, err
		}
	}
	sources = append(sources, feed.SourcesFromURLs(c.RSSURLs, c.KeywordFilters)...)

	if len(sources) == 0 {
		return nil, eris.New("no feeds configured (set ingest.feeds_file or BREAKWATCH_INGEST_RSS_URLS)")
	}
	return sources, nil
}
