// Package ingest polls feeds and turns their entries into correlated signals.
package ingest

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/breakwatch/internal/correlate"
	"github.com/sells-group/breakwatch/internal/dedup"
	"github.com/sells-group/breakwatch/internal/feed"
	"github.com/sells-group/breakwatch/internal/fetcher"
	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/metrics"
	"github.com/sells-group/breakwatch/internal/model"
	"github.com/sells-group/breakwatch/internal/resilience"
	"github.com/sells-group/breakwatch/internal/store"
	"github.com/sells-group/breakwatch/pkg/geocode"
)

// Store is the persistence the runner reads directly. Writes go through the
// Correlator.
type Store interface {
	dedup.Lookup
	RegionContains(ctx context.Context, name string, lat, lon float64) (bool, error)
}

// Correlator persists and correlates one signal.
type Correlator interface {
	Ingest(ctx context.Context, payload model.SignalPayload) (*correlate.Result, error)
}

// Stats counts what happened during a run.
type Stats struct {
	FeedsFetched      int `json:"feeds_fetched"`
	FeedsNotModified  int `json:"feeds_not_modified"`
	FeedsFailed       int `json:"feeds_failed"`
	Fetched           int `json:"fetched"`
	Ingested          int `json:"ingested"`
	Duplicates        int `json:"duplicates"`
	SkippedNoLink     int `json:"skipped_no_link"`
	SkippedFiltered   int `json:"skipped_filtered"`
	OutOfRegion       int `json:"out_of_region"`
	Failed            int `json:"failed"`
	IncidentsCreated  int `json:"incidents_created"`
	IncidentsAttached int `json:"incidents_attached"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.FeedsFetched += o.FeedsFetched
	s.FeedsNotModified += o.FeedsNotModified
	s.FeedsFailed += o.FeedsFailed
	s.Fetched += o.Fetched
	s.Ingested += o.Ingested
	s.Duplicates += o.Duplicates
	s.SkippedNoLink += o.SkippedNoLink
	s.SkippedFiltered += o.SkippedFiltered
	s.OutOfRegion += o.OutOfRegion
	s.Failed += o.Failed
	s.IncidentsCreated += o.IncidentsCreated
	s.IncidentsAttached += o.IncidentsAttached
}

// Options tunes a Runner.
type Options struct {
	// DefaultPoint is used for entries that cannot be geocoded.
	DefaultPoint geo.Point
	// RegionName names the boundary geocoded points must fall inside when
	// RegionFilter is set.
	RegionName   string
	RegionFilter bool
	// MaxConcurrentFeeds bounds parallel feed fetches. Default: 4.
	MaxConcurrentFeeds int
	// Retry applies to transient failures of the ingest transaction.
	Retry    resilience.RetryConfig
	Breakers *resilience.Breakers
	Now      func() time.Time
}

// Runner fetches feeds and ingests their entries.
type Runner struct {
	fetcher    fetcher.Fetcher
	store      Store
	correlator Correlator
	geocoder   geocode.Geocoder
	dedup      *dedup.Checker
	opts       Options

	regionWarn sync.Once
}

// NewRunner creates a Runner. A nil geocoder means no geocoding.
func NewRunner(f fetcher.Fetcher, st Store, c Correlator, g geocode.Geocoder, opts Options) *Runner {
	if g == nil {
		g = geocode.Noop{}
	}
	if opts.MaxConcurrentFeeds <= 0 {
		opts.MaxConcurrentFeeds = 4
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Runner{
		fetcher:    f,
		store:      st,
		correlator: c,
		geocoder:   g,
		dedup:      dedup.NewChecker(st),
		opts:       opts,
	}
}

// Run ingests every source concurrently. A failing feed is logged and
// counted, and does not stop the others. The error is non-nil only when ctx
// ends the run.
func (r *Runner) Run(ctx context.Context, sources []feed.Source) (Stats, error) {
	var (
		mu    sync.Mutex
		total Stats
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.MaxConcurrentFeeds)

	for _, src := range sources {
		g.Go(func() error {
			stats, err := r.RunFeed(gctx, src)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				zap.L().Warn("ingest: feed failed",
					zap.String("feed", src.Name),
					zap.String("url", src.URL),
					zap.Error(err),
				)
				stats.FeedsFailed++
			}
			mu.Lock()
			total.Add(stats)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return total, eris.Wrap(err, "ingest: run")
	}

	zap.L().Info("ingest: run complete",
		zap.Int("feeds", len(sources)),
		zap.Int("fetched", total.Fetched),
		zap.Int("ingested", total.Ingested),
		zap.Int("duplicates", total.Duplicates),
		zap.Int("failed", total.Failed),
		zap.Int("incidents_created", total.IncidentsCreated),
	)
	return total, nil
}

// RunFeed fetches one source and ingests its entries. Feed-level failures
// (circuit open, fetch, parse) are returned; entry-level failures are counted
// in Stats.
func (r *Runner) RunFeed(ctx context.Context, src feed.Source) (Stats, error) {
	var stats Stats
	breaker := r.opts.Breakers.Get(src.URL)
	if err := breaker.Allow(); err != nil {
		metrics.ObserveFetch(metrics.FetchCircuitOpen)
		return stats, err
	}

	fetchedAt := r.opts.Now().UTC()
	body, err := r.fetcher.Fetch(ctx, src.URL)
	if eris.Is(err, fetcher.ErrNotModified) {
		breaker.Record(nil)
		metrics.ObserveFetch(metrics.FetchNotModified)
		stats.FeedsNotModified++
		return stats, nil
	}
	if err == nil {
		var entries []feed.Entry
		entries, err = feed.Parse(bytes.NewReader(body))
		if err == nil {
			breaker.Record(nil)
			metrics.ObserveFetch(metrics.FetchOK)
			stats.FeedsFetched++
			stats.Add(r.IngestEntries(ctx, src, entries, fetchedAt))
			return stats, nil
		}
	}

	breaker.Record(err)
	metrics.ObserveFetch(metrics.FetchError)
	return stats, eris.Wrapf(err, "ingest: feed %s", src.Name)
}

// IngestEntries ingests already-parsed entries from src.
func (r *Runner) IngestEntries(ctx context.Context, src feed.Source, entries []feed.Entry, fetchedAt time.Time) Stats {
	log := zap.L().With(zap.String("component", "ingest"), zap.String("feed", src.Name))

	var stats Stats
	for _, e := range entries {
		if ctx.Err() != nil {
			break
		}
		stats.Fetched++

		outcome, res, err := r.ingestEntry(ctx, src, e, fetchedAt)
		switch outcome {
		case outcomeIngested:
			stats.Ingested++
			if res.Created {
				stats.IncidentsCreated++
			} else {
				stats.IncidentsAttached++
			}
		case outcomeNoLink:
			stats.SkippedNoLink++
			metrics.ObserveSkip(metrics.SkipNoLink)
		case outcomeFiltered:
			stats.SkippedFiltered++
			metrics.ObserveSkip(metrics.SkipFiltered)
		case outcomeDuplicate:
			stats.Duplicates++
			metrics.ObserveSkip(metrics.SkipDuplicate)
		case outcomeOutOfRegion:
			stats.OutOfRegion++
			metrics.ObserveSkip(metrics.SkipOutOfRegion)
		case outcomeFailed:
			stats.Failed++
			metrics.ObserveSkip(metrics.SkipFailed)
			log.Warn("ingest: entry failed", zap.String("link", e.Link), zap.Error(err))
		}
	}
	return stats
}

type outcome int

const (
	outcomeIngested outcome = iota
	outcomeNoLink
	outcomeFiltered
	outcomeDuplicate
	outcomeOutOfRegion
	outcomeFailed
)

func (r *Runner) ingestEntry(ctx context.Context, src feed.Source, e feed.Entry, fetchedAt time.Time) (outcome, *correlate.Result, error) {
	if e.Link == "" {
		return outcomeNoLink, nil, nil
	}

	matched := feed.MatchKeywords(e.Title, e.Summary, src.Keywords)
	if len(src.Keywords) > 0 && len(matched) == 0 {
		return outcomeFiltered, nil, nil
	}

	sourceID := dedup.SourceID(e.NativeID, e.Link)
	check, err := r.dedup.Check(ctx, e.Link, src.SourceType, sourceID)
	if err != nil {
		return outcomeFailed, nil, err
	}
	if check.Duplicate() {
		return outcomeDuplicate, nil, nil
	}

	features := map[string]any{"feed": src.Name, "geocoded": false}
	if len(matched) > 0 {
		features["matched_keywords"] = matched
	}

	locationText := feed.ExtractLocationText(e.Text())
	point := r.opts.DefaultPoint
	if locationText != "" {
		if gr := r.geocode(ctx, locationText); gr != nil {
			point = geo.Point{Latitude: gr.Latitude, Longitude: gr.Longitude}
			features["geocoded"] = true
			features["geocode_provider"] = gr.Provider
			if gr.Confidence != nil {
				features["geocode_confidence"] = *gr.Confidence
			}

			inRegion, err := r.inRegion(ctx, point)
			if err != nil {
				return outcomeFailed, nil, err
			}
			if !inRegion {
				return outcomeOutOfRegion, nil, nil
			}
		}
	}

	payload := model.SignalPayload{
		SourceType:   src.SourceType,
		SourceID:     sourceID,
		Title:        e.Title,
		Content:      e.Summary,
		URL:          e.Link,
		ObservedAt:   feed.ObservedAt(e, fetchedAt),
		Latitude:     point.Latitude,
		Longitude:    point.Longitude,
		FetchedAt:    &fetchedAt,
		LocationText: locationText,
		Features:     features,
	}

	retry := r.opts.Retry
	retry.ShouldRetry = func(err error) bool {
		return resilience.IsTransient(err) && !store.IsDuplicateKey(err)
	}
	start := time.Now()
	res, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*correlate.Result, error) {
		return r.correlator.Ingest(ctx, payload)
	})
	if err != nil {
		// Another worker stored the same signal after our dedup check.
		if store.IsDuplicateKey(err) {
			return outcomeDuplicate, nil, nil
		}
		return outcomeFailed, nil, err
	}
	metrics.ObserveIngest(src.SourceType, res.Created, time.Since(start))
	return outcomeIngested, res, nil
}

// geocode returns nil when the text cannot be resolved or the geocoder fails.
func (r *Runner) geocode(ctx context.Context, text string) *geocode.Result {
	res, err := r.geocoder.Geocode(ctx, text)
	if err != nil {
		zap.L().Warn("ingest: geocode failed, using default point",
			zap.String("location_text", text),
			zap.Error(err),
		)
		return nil
	}
	if res != nil && !(geo.Point{Latitude: res.Latitude, Longitude: res.Longitude}).Valid() {
		return nil
	}
	return res
}

// inRegion reports whether p is inside the configured region. A missing
// boundary disables the filter with a warning.
func (r *Runner) inRegion(ctx context.Context, p geo.Point) (bool, error) {
	if !r.opts.RegionFilter || r.opts.RegionName == "" {
		return true, nil
	}
	ok, err := r.store.RegionContains(ctx, r.opts.RegionName, p.Latitude, p.Longitude)
	if eris.Is(err, store.ErrNotFound) {
		r.regionWarn.Do(func() {
			zap.L().Warn("ingest: region boundary not loaded, region filter disabled",
				zap.String("region", r.opts.RegionName))
		})
		return true, nil
	}
	if err != nil {
		return false, eris.Wrap(err, "ingest: region check")
	}
	return ok, nil
}
