// Package store persists signals, incidents and feedback in Postgres+PostGIS
// or SQLite and implements the correlation engine's unit of work.
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rotisserie/eris"

	"github.com/sells-group/breakwatch/internal/correlate"
	"github.com/sells-group/breakwatch/internal/dedup"
	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
)

// ErrNotFound is returned when an incident or boundary does not exist.
var ErrNotFound = model.ErrNotFound

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// IncidentFilter narrows ListIncidents. Zero values mean no filter.
type IncidentFilter struct {
	Since         *time.Time
	MinConfidence *float64
	BBox          *geo.BBox
	Limit         int
}

// Store is the full persistence surface of the service.
type Store interface {
	correlate.Store
	dedup.Lookup

	ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error)
	GetIncidentDetail(ctx context.Context, id string) (*model.IncidentDetail, error)

	CreateFeedback(ctx context.Context, incidentID string, status model.FeedbackStatus, notes string) (*model.Feedback, error)
	ListFeedback(ctx context.Context, incidentID string) ([]model.Feedback, error)

	// UpsertBoundary stores a named region polygon, replacing any existing one.
	UpsertBoundary(ctx context.Context, name string, ring []geo.Point) error
	// RegionContains reports whether the named region contains the point.
	// It returns ErrNotFound when no such region exists.
	RegionContains(ctx context.Context, name string, lat, lon float64) (bool, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}

// Config selects and tunes the backing database.
type Config struct {
	Driver      string
	DatabaseURL string
	Pool        *PoolConfig
}

// Open connects to the configured driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case DriverSQLite:
		return NewSQLite(cfg.DatabaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", cfg.Driver)
	}
}

// IsDuplicateKey reports whether err is a unique-constraint violation, which
// the ingester treats as a duplicate that raced past the dedup check.
func IsDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func validateFeedback(status model.FeedbackStatus, notes string) error {
	if err := model.ValidateFeedback(status, notes); err != nil {
		return eris.Wrap(err, "store: validate feedback")
	}
	return nil
}

const defaultListLimit = 500

func listLimit(n int) int {
	if n <= 0 || n > defaultListLimit {
		return defaultListLimit
	}
	return n
}
