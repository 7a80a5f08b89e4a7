package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/breakwatch/internal/cluster"
	"github.com/sells-group/breakwatch/internal/correlate"
	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
)

// sqliteTime is fixed width so text comparison orders chronologically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements Store using modernc.org/sqlite. It holds a single
// connection, so transactions are serialised and LockBuckets is a no-op.
// Regions are stored as bounding boxes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// WithinTx runs fn in a single SQLite transaction.
func (s *SQLiteStore) WithinTx(ctx context.Context, fn func(tx correlate.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin")
	}
	defer tx.Rollback() //nolint:errcheck

	if err := fn(&sqliteTx{tx: tx}); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

func (s *SQLiteStore) SignalURLExists(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM signals WHERE url = ?)`, url).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: signal url exists")
	}
	return exists, nil
}

func (s *SQLiteStore) SignalSourceExists(ctx context.Context, sourceType, sourceID string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM signals WHERE source_type = ? AND source_id = ?)`,
		sourceType, sourceID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: signal source exists")
	}
	return exists, nil
}

type sqliteTx struct {
	tx *sql.Tx
}

func (t *sqliteTx) LockBuckets(context.Context, []string) error {
	return nil
}

func (t *sqliteTx) InsertSignal(ctx context.Context, sig *model.Signal) error {
	features, err := marshalFeatures(sig.Features)
	if err != nil {
		return err
	}
	var fetched *string
	if sig.FetchedAt != nil {
		f := formatTime(*sig.FetchedAt)
		fetched = &f
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO signals
			(id, source_type, source_id, title, content, extracted_location_text, features,
			 url, observed_at, fetched_at, latitude, longitude, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sig.ID, sig.SourceType, sig.SourceID, sig.Title, sig.Content, nullString(sig.LocationText), string(features),
		nullString(sig.URL), formatTime(sig.ObservedAt), fetched, sig.Latitude, sig.Longitude, formatTime(sig.CreatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert signal %s", sig.ID)
}

func (t *sqliteTx) ListCandidates(ctx context.Context, notBefore, notAfter time.Time) ([]cluster.Candidate, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT id, latitude, longitude, last_seen
		FROM incidents
		WHERE last_seen >= ? AND last_seen <= ?
		ORDER BY id`,
		formatTime(notBefore), formatTime(notAfter),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []cluster.Candidate
	for rows.Next() {
		var c cluster.Candidate
		var lastSeen string
		if err := rows.Scan(&c.ID, &c.Latitude, &c.Longitude, &lastSeen); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		if c.LastSeen, err = parseTime(lastSeen); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate candidates")
}

func (t *sqliteTx) InsertIncident(ctx context.Context, inc *model.Incident) error {
	breakdown, err := json.Marshal(inc.ScoreBreakdown)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal breakdown")
	}
	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO incidents
			(id, first_seen, last_seen, confidence_score, score_breakdown, latitude, longitude, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		inc.ID, formatTime(inc.FirstSeen), formatTime(inc.LastSeen), inc.ConfidenceScore, string(breakdown),
		inc.Latitude, inc.Longitude, formatTime(inc.CreatedAt), formatTime(inc.UpdatedAt),
	)
	return eris.Wrapf(err, "sqlite: insert incident %s", inc.ID)
}

func (t *sqliteTx) ExtendIncident(ctx context.Context, incidentID string, observedAt, now time.Time) error {
	obs := formatTime(observedAt)
	res, err := t.tx.ExecContext(ctx, `
		UPDATE incidents
		SET first_seen = MIN(first_seen, ?), last_seen = MAX(last_seen, ?), updated_at = ?
		WHERE id = ?`,
		obs, obs, formatTime(now), incidentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: extend incident %s", incidentID)
	}
	return checkRowsAffected(res, "incident", incidentID)
}

func (t *sqliteTx) LinkSignal(ctx context.Context, link model.IncidentSignal) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO incident_signals (incident_id, signal_id, linked_at) VALUES (?, ?, ?)`,
		link.IncidentID, link.SignalID, formatTime(link.LinkedAt),
	)
	return eris.Wrapf(err, "sqlite: link signal %s", link.SignalID)
}

func (t *sqliteTx) LinkedSignals(ctx context.Context, incidentID string) ([]model.LinkedSignal, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT s.source_type, s.title, s.content
		FROM incident_signals l
		JOIN signals s ON s.id = l.signal_id
		WHERE l.incident_id = ?
		ORDER BY s.observed_at, s.id`,
		incidentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: linked signals")
	}
	defer rows.Close()

	var out []model.LinkedSignal
	for rows.Next() {
		var ls model.LinkedSignal
		if err := rows.Scan(&ls.SourceType, &ls.Title, &ls.Content); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan linked signal")
		}
		out = append(out, ls)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate linked signals")
}

func (t *sqliteTx) UpdateScore(ctx context.Context, incidentID string, score float64, breakdown model.ScoreBreakdown, now time.Time) error {
	data, err := json.Marshal(breakdown)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal breakdown")
	}
	res, err := t.tx.ExecContext(ctx,
		`UPDATE incidents SET confidence_score = ?, score_breakdown = ?, updated_at = ? WHERE id = ?`,
		score, string(data), formatTime(now), incidentID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update score %s", incidentID)
	}
	return checkRowsAffected(res, "incident", incidentID)
}

func (t *sqliteTx) IncidentIDs(ctx context.Context) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `SELECT id FROM incidents ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: incident ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan incident id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: iterate incident ids")
}

// ListIncidents returns incidents matching filter, most recently seen first.
func (s *SQLiteStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error) {
	var where []string
	var args []any
	if filter.Since != nil {
		where = append(where, "i.last_seen >= ?")
		args = append(args, formatTime(*filter.Since))
	}
	if filter.MinConfidence != nil {
		where = append(where, "i.confidence_score >= ?")
		args = append(args, *filter.MinConfidence)
	}
	if b := filter.BBox; b != nil {
		where = append(where, "i.longitude BETWEEN ? AND ? AND i.latitude BETWEEN ? AND ?")
		args = append(args, b.MinLon, b.MaxLon, b.MinLat, b.MaxLat)
	}

	query := "SELECT " + sqliteIncidentColumns + " FROM incidents i"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.last_seen DESC, i.id LIMIT ?"
	args = append(args, listLimit(filter.Limit))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list incidents")
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		inc, err := scanSQLiteIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate incidents")
}

// GetIncidentDetail returns an incident with its linked signals.
func (s *SQLiteStore) GetIncidentDetail(ctx context.Context, id string) (*model.IncidentDetail, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+sqliteIncidentColumns+" FROM incidents i WHERE i.id = ?", id)
	inc, err := scanSQLiteIncident(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: incident %s", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.source_type, s.source_id, s.title, s.content, s.url, s.observed_at,
		       s.fetched_at, s.latitude, s.longitude, s.extracted_location_text, s.features, s.created_at
		FROM incident_signals l
		JOIN signals s ON s.id = l.signal_id
		WHERE l.incident_id = ?
		ORDER BY s.observed_at, s.id`, id)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: incident signals")
	}
	defer rows.Close()

	detail := &model.IncidentDetail{Incident: *inc, Signals: []model.Signal{}}
	for rows.Next() {
		var sig model.Signal
		var url, location, fetched sql.NullString
		var observed, created, features string
		if err := rows.Scan(&sig.ID, &sig.SourceType, &sig.SourceID, &sig.Title, &sig.Content, &url,
			&observed, &fetched, &sig.Latitude, &sig.Longitude, &location, &features, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan signal")
		}
		sig.URL = url.String
		sig.LocationText = location.String
		if sig.ObservedAt, err = parseTime(observed); err != nil {
			return nil, err
		}
		if sig.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		if fetched.Valid {
			f, err := parseTime(fetched.String)
			if err != nil {
				return nil, err
			}
			sig.FetchedAt = &f
		}
		if err := json.Unmarshal([]byte(features), &sig.Features); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal features %s", sig.ID)
		}
		detail.Signals = append(detail.Signals, sig)
	}
	return detail, eris.Wrap(rows.Err(), "sqlite: iterate signals")
}

// CreateFeedback appends operator feedback to an existing incident.
func (s *SQLiteStore) CreateFeedback(ctx context.Context, incidentID string, status model.FeedbackStatus, notes string) (*model.Feedback, error) {
	if err := validateFeedback(status, notes); err != nil {
		return nil, err
	}

	fb := &model.Feedback{
		ID:         uuid.NewString(),
		IncidentID: incidentID,
		Status:     status,
		Notes:      notes,
		CreatedAt:  time.Now().UTC(),
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO incident_feedback (id, incident_id, status, notes, created_at)
		SELECT ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM incidents WHERE id = ?)`,
		fb.ID, fb.IncidentID, string(fb.Status), fb.Notes, formatTime(fb.CreatedAt), fb.IncidentID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert feedback")
	}
	if err := checkRowsAffected(res, "incident", incidentID); err != nil {
		return nil, err
	}
	return fb, nil
}

// ListFeedback returns an incident's feedback, oldest first.
func (s *SQLiteStore) ListFeedback(ctx context.Context, incidentID string) ([]model.Feedback, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, incident_id, status, notes, created_at
		FROM incident_feedback
		WHERE incident_id = ?
		ORDER BY created_at, id`, incidentID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list feedback")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		var status, created string
		if err := rows.Scan(&fb.ID, &fb.IncidentID, &status, &fb.Notes, &created); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan feedback")
		}
		fb.Status = model.FeedbackStatus(status)
		if fb.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate feedback")
}

// UpsertBoundary stores the bounding box of the ring under name.
func (s *SQLiteStore) UpsertBoundary(ctx context.Context, name string, ring []geo.Point) error {
	if len(ring) < 3 {
		return eris.New("sqlite: boundary needs at least 3 vertices")
	}
	b := geo.RingBounds(ring)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO boundaries (id, name, min_lat, min_lon, max_lat, max_lon, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			min_lat = excluded.min_lat, min_lon = excluded.min_lon,
			max_lat = excluded.max_lat, max_lon = excluded.max_lon`,
		uuid.NewString(), name, b.MinLat, b.MinLon, b.MaxLat, b.MaxLon, formatTime(time.Now()),
	)
	return eris.Wrapf(err, "sqlite: upsert boundary %s", name)
}

// RegionContains tests the point against the stored bounding box.
func (s *SQLiteStore) RegionContains(ctx context.Context, name string, lat, lon float64) (bool, error) {
	var b geo.BBox
	err := s.db.QueryRowContext(ctx,
		`SELECT min_lat, min_lon, max_lat, max_lon FROM boundaries WHERE name = ?`, name,
	).Scan(&b.MinLat, &b.MinLon, &b.MaxLat, &b.MaxLon)
	if errors.Is(err, sql.ErrNoRows) {
		return false, eris.Wrapf(ErrNotFound, "sqlite: boundary %s", name)
	}
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: region contains %s", name)
	}
	return b.Contains(lat, lon), nil
}

const sqliteIncidentColumns = `i.id, i.first_seen, i.last_seen, i.latitude, i.longitude,
	i.confidence_score, i.score_breakdown, i.created_at, i.updated_at,
	(SELECT COUNT(*) FROM incident_signals l WHERE l.incident_id = i.id)`

func scanSQLiteIncident(row scannable) (*model.Incident, error) {
	var inc model.Incident
	var first, last, created, updated, breakdown string
	err := row.Scan(&inc.ID, &first, &last, &inc.Latitude, &inc.Longitude,
		&inc.ConfidenceScore, &breakdown, &created, &updated, &inc.SignalCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan incident")
	}
	for _, f := range []struct {
		src string
		dst *time.Time
	}{{first, &inc.FirstSeen}, {last, &inc.LastSeen}, {created, &inc.CreatedAt}, {updated, &inc.UpdatedAt}} {
		if *f.dst, err = parseTime(f.src); err != nil {
			return nil, err
		}
	}
	if err := json.Unmarshal([]byte(breakdown), &inc.ScoreBreakdown); err != nil {
		return nil, eris.Wrapf(err, "sqlite: unmarshal breakdown %s", inc.ID)
	}
	return &inc, nil
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "sqlite: %s %s", entity, id)
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(sqliteTime, s)
	if err != nil {
		return time.Time{}, eris.Wrapf(err, "sqlite: parse time %q", s)
	}
	return t, nil
}
