package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
)

const pgIncidentColumns = `i.id, i.first_seen, i.last_seen, ST_Y(i.centroid), ST_X(i.centroid),
	i.confidence_score, i.score_breakdown, i.created_at, i.updated_at,
	(SELECT COUNT(*) FROM incident_signals l WHERE l.incident_id = i.id)`

// ListIncidents returns incidents matching filter, most recently seen first.
func (s *PostgresStore) ListIncidents(ctx context.Context, filter IncidentFilter) ([]model.Incident, error) {
	var where []string
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.Since != nil {
		where = append(where, "i.last_seen >= "+arg(*filter.Since))
	}
	if filter.MinConfidence != nil {
		where = append(where, "i.confidence_score >= "+arg(*filter.MinConfidence))
	}
	if b := filter.BBox; b != nil {
		where = append(where, fmt.Sprintf("i.centroid && ST_MakeEnvelope(%s, %s, %s, %s, 4326)",
			arg(b.MinLon), arg(b.MinLat), arg(b.MaxLon), arg(b.MaxLat)))
	}

	query := "SELECT " + pgIncidentColumns + " FROM incidents i"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY i.last_seen DESC, i.id LIMIT " + arg(listLimit(filter.Limit))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list incidents")
	}
	defer rows.Close()

	var out []model.Incident
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inc)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate incidents")
}

// GetIncidentDetail returns an incident with its linked signals.
func (s *PostgresStore) GetIncidentDetail(ctx context.Context, id string) (*model.IncidentDetail, error) {
	row := s.pool.QueryRow(ctx, "SELECT "+pgIncidentColumns+" FROM incidents i WHERE i.id = $1", id)
	inc, err := scanIncident(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: incident %s", id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT s.id, s.source_type, s.source_id, s.title, s.content, s.url, s.observed_at,
		       s.fetched_at, s.latitude, s.longitude, s.extracted_location_text, s.features, s.created_at
		FROM incident_signals l
		JOIN signals s ON s.id = l.signal_id
		WHERE l.incident_id = $1
		ORDER BY s.observed_at, s.id`, id)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: incident signals")
	}
	defer rows.Close()

	detail := &model.IncidentDetail{Incident: *inc, Signals: []model.Signal{}}
	for rows.Next() {
		var sig model.Signal
		var url, location *string
		var features []byte
		if err := rows.Scan(&sig.ID, &sig.SourceType, &sig.SourceID, &sig.Title, &sig.Content, &url,
			&sig.ObservedAt, &sig.FetchedAt, &sig.Latitude, &sig.Longitude, &location, &features, &sig.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan signal")
		}
		sig.URL = derefString(url)
		sig.LocationText = derefString(location)
		sig.ObservedAt = sig.ObservedAt.UTC()
		if len(features) > 0 {
			if err := json.Unmarshal(features, &sig.Features); err != nil {
				return nil, eris.Wrapf(err, "postgres: unmarshal features %s", sig.ID)
			}
		}
		detail.Signals = append(detail.Signals, sig)
	}
	return detail, eris.Wrap(rows.Err(), "postgres: iterate signals")
}

// CreateFeedback appends operator feedback to an existing incident.
func (s *PostgresStore) CreateFeedback(ctx context.Context, incidentID string, status model.FeedbackStatus, notes string) (*model.Feedback, error) {
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
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO incident_feedback (id, incident_id, status, notes, created_at)
		SELECT $1, $2, $3, $4, $5
		WHERE EXISTS (SELECT 1 FROM incidents WHERE id = $2)`,
		fb.ID, fb.IncidentID, string(fb.Status), fb.Notes, fb.CreatedAt,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert feedback")
	}
	if tag.RowsAffected() == 0 {
		return nil, eris.Wrapf(ErrNotFound, "postgres: incident %s", incidentID)
	}
	return fb, nil
}

// ListFeedback returns an incident's feedback, oldest first.
func (s *PostgresStore) ListFeedback(ctx context.Context, incidentID string) ([]model.Feedback, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, incident_id, status, notes, created_at
		FROM incident_feedback
		WHERE incident_id = $1
		ORDER BY created_at, id`, incidentID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list feedback")
	}
	defer rows.Close()

	var out []model.Feedback
	for rows.Next() {
		var fb model.Feedback
		var status string
		if err := rows.Scan(&fb.ID, &fb.IncidentID, &status, &fb.Notes, &fb.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan feedback")
		}
		fb.Status = model.FeedbackStatus(status)
		out = append(out, fb)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate feedback")
}

// UpsertBoundary stores the named region polygon.
func (s *PostgresStore) UpsertBoundary(ctx context.Context, name string, ring []geo.Point) error {
	poly, err := geo.EncodePolygon(ring)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO boundaries (id, name, geom)
		VALUES ($1, $2, ST_GeomFromEWKB($3))
		ON CONFLICT (name) DO UPDATE SET geom = EXCLUDED.geom`,
		uuid.NewString(), name, poly,
	)
	return eris.Wrapf(err, "postgres: upsert boundary %s", name)
}

// RegionContains tests the point against the stored polygon with ST_Contains.
func (s *PostgresStore) RegionContains(ctx context.Context, name string, lat, lon float64) (bool, error) {
	var contains bool
	err := s.pool.QueryRow(ctx, `
		SELECT ST_Contains(geom, ST_SetSRID(ST_MakePoint($2, $3), 4326))
		FROM boundaries
		WHERE name = $1`,
		name, lon, lat,
	).Scan(&contains)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, eris.Wrapf(ErrNotFound, "postgres: boundary %s", name)
	}
	if err != nil {
		return false, eris.Wrapf(err, "postgres: region contains %s", name)
	}
	return contains, nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanIncident(row scannable) (*model.Incident, error) {
	var inc model.Incident
	var breakdown []byte
	err := row.Scan(&inc.ID, &inc.FirstSeen, &inc.LastSeen, &inc.Latitude, &inc.Longitude,
		&inc.ConfidenceScore, &breakdown, &inc.CreatedAt, &inc.UpdatedAt, &inc.SignalCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan incident")
	}
	if len(breakdown) > 0 {
		if err := json.Unmarshal(breakdown, &inc.ScoreBreakdown); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal breakdown %s", inc.ID)
		}
	}
	inc.FirstSeen = inc.FirstSeen.UTC()
	inc.LastSeen = inc.LastSeen.UTC()
	return &inc, nil
}
