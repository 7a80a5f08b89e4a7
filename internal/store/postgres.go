package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/breakwatch/internal/cluster"
	"github.com/sells-group/breakwatch/internal/correlate"
	"github.com/sells-group/breakwatch/internal/db"
	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
)

// PostgresStore implements Store on Postgres with PostGIS.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. The caller keeps ownership of it.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying pool.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.pool.Ping(ctx), "postgres: ping")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// WithinTx runs fn in a single Postgres transaction.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx correlate.Tx) error) error {
	return db.InTx(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(&pgTx{tx: tx})
	})
}

func (s *PostgresStore) SignalURLExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM signals WHERE url = $1)`, url).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: signal url exists")
	}
	return exists, nil
}

func (s *PostgresStore) SignalSourceExists(ctx context.Context, sourceType, sourceID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM signals WHERE source_type = $1 AND source_id = $2)`,
		sourceType, sourceID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "postgres: signal source exists")
	}
	return exists, nil
}

// pgTx implements correlate.Tx over a pgx transaction.
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) LockBuckets(ctx context.Context, keys []string) error {
	return eris.Wrap(db.AdvisoryXactLocks(ctx, t.tx, keys), "postgres: advisory lock")
}

func (t *pgTx) InsertSignal(ctx context.Context, sig *model.Signal) error {
	features, err := marshalFeatures(sig.Features)
	if err != nil {
		return err
	}
	point, err := geo.EncodePoint(sig.Latitude, sig.Longitude)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO signals
			(id, source_type, source_id, title, content, extracted_location_text, features,
			 url, observed_at, fetched_at, latitude, longitude, geom, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, ST_GeomFromEWKB($13), $14)`,
		sig.ID, sig.SourceType, sig.SourceID, sig.Title, sig.Content, nullString(sig.LocationText), features,
		nullString(sig.URL), sig.ObservedAt, sig.FetchedAt, sig.Latitude, sig.Longitude, point, sig.CreatedAt,
	)
	return eris.Wrapf(err, "postgres: insert signal %s", sig.ID)
}

func (t *pgTx) ListCandidates(ctx context.Context, notBefore, notAfter time.Time) ([]cluster.Candidate, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT id, ST_Y(centroid), ST_X(centroid), last_seen
		FROM incidents
		WHERE last_seen >= $1 AND last_seen <= $2
		ORDER BY id`,
		notBefore, notAfter,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list candidates")
	}
	defer rows.Close()

	var out []cluster.Candidate
	for rows.Next() {
		var c cluster.Candidate
		if err := rows.Scan(&c.ID, &c.Latitude, &c.Longitude, &c.LastSeen); err != nil {
			return nil, eris.Wrap(err, "postgres: scan candidate")
		}
		c.LastSeen = c.LastSeen.UTC()
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate candidates")
}

func (t *pgTx) InsertIncident(ctx context.Context, inc *model.Incident) error {
	breakdown, err := json.Marshal(inc.ScoreBreakdown)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal breakdown")
	}
	centroid, err := geo.EncodePoint(inc.Latitude, inc.Longitude)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(ctx, `
		INSERT INTO incidents
			(id, first_seen, last_seen, confidence_score, score_breakdown, centroid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, ST_GeomFromEWKB($6), $7, $8)`,
		inc.ID, inc.FirstSeen, inc.LastSeen, inc.ConfidenceScore, breakdown, centroid, inc.CreatedAt, inc.UpdatedAt,
	)
	return eris.Wrapf(err, "postgres: insert incident %s", inc.ID)
}

func (t *pgTx) ExtendIncident(ctx context.Context, incidentID string, observedAt, now time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE incidents
		SET first_seen = LEAST(first_seen, $2), last_seen = GREATEST(last_seen, $2), updated_at = $3
		WHERE id = $1`,
		incidentID, observedAt, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: extend incident %s", incidentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: incident %s", incidentID)
	}
	return nil
}

func (t *pgTx) LinkSignal(ctx context.Context, link model.IncidentSignal) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO incident_signals (incident_id, signal_id, linked_at) VALUES ($1, $2, $3)`,
		link.IncidentID, link.SignalID, link.LinkedAt,
	)
	return eris.Wrapf(err, "postgres: link signal %s", link.SignalID)
}

func (t *pgTx) LinkedSignals(ctx context.Context, incidentID string) ([]model.LinkedSignal, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT s.source_type, s.title, s.content
		FROM incident_signals l
		JOIN signals s ON s.id = l.signal_id
		WHERE l.incident_id = $1
		ORDER BY s.observed_at, s.id`,
		incidentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: linked signals")
	}
	defer rows.Close()

	var out []model.LinkedSignal
	for rows.Next() {
		var ls model.LinkedSignal
		if err := rows.Scan(&ls.SourceType, &ls.Title, &ls.Content); err != nil {
			return nil, eris.Wrap(err, "postgres: scan linked signal")
		}
		out = append(out, ls)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate linked signals")
}

func (t *pgTx) UpdateScore(ctx context.Context, incidentID string, score float64, breakdown model.ScoreBreakdown, now time.Time) error {
	data, err := json.Marshal(breakdown)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal breakdown")
	}
	tag, err := t.tx.Exec(ctx,
		`UPDATE incidents SET confidence_score = $2, score_breakdown = $3, updated_at = $4 WHERE id = $1`,
		incidentID, score, data, now,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update score %s", incidentID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: incident %s", incidentID)
	}
	return nil
}

func (t *pgTx) IncidentIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.Query(ctx, `SELECT id FROM incidents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: incident ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan incident id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: iterate incident ids")
}

func marshalFeatures(f map[string]any) ([]byte, error) {
	if f == nil {
		return []byte("{}"), nil
	}
	data, err := json.Marshal(f)
	if err != nil {
		return nil, eris.Wrap(err, "store: marshal features")
	}
	return data, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
