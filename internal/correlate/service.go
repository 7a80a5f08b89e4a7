// Package correlate turns deduplicated signals into scored incidents.
package correlate

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/breakwatch/internal/cluster"
	"github.com/sells-group/breakwatch/internal/geo"
	"github.com/sells-group/breakwatch/internal/model"
	"github.com/sells-group/breakwatch/internal/scoring"
)

// ErrInvalidPayload is returned for payloads missing required fields.
var ErrInvalidPayload = eris.New("correlate: invalid signal payload")

// Result describes what happened to one ingested signal.
type Result struct {
	Signal     *model.Signal
	IncidentID string
	Created    bool
	Score      float64
	Breakdown  model.ScoreBreakdown
}

// Service is the correlation engine. It persists each signal, attaches it to
// the nearest open incident or opens a new one, and rescores that incident,
// all in a single transaction.
type Service struct {
	store  Store
	params cluster.Params
	now    func() time.Time
	newID  func() string
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the clock used for created/updated/linked timestamps.
func WithClock(fn func() time.Time) Option {
	return func(s *Service) { s.now = fn }
}

// WithIDGenerator overrides how signal and incident ids are generated.
func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

// NewService creates a Service over store with the given clustering parameters.
func NewService(store Store, params cluster.Params, opts ...Option) *Service {
	s := &Service{
		store:  store,
		params: params,
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Params returns the clustering parameters in use.
func (s *Service) Params() cluster.Params {
	return s.params
}

// IngestSignal persists a signal and correlates it. Callers are expected to
// have run the dedup check. Nothing is committed when an error is returned.
func (s *Service) IngestSignal(ctx context.Context, payload model.SignalPayload) (*model.Signal, error) {
	res, err := s.Ingest(ctx, payload)
	if err != nil {
		return nil, err
	}
	return res.Signal, nil
}

// Ingest is IngestSignal with the incident outcome included.
func (s *Service) Ingest(ctx context.Context, payload model.SignalPayload) (*Result, error) {
	payload.Normalize()
	if err := validatePayload(payload); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sig := &model.Signal{
		ID:           s.newID(),
		SourceType:   payload.SourceType,
		SourceID:     payload.SourceID,
		Title:        payload.Title,
		Content:      payload.Content,
		URL:          payload.URL,
		ObservedAt:   payload.ObservedAt,
		Latitude:     payload.Latitude,
		Longitude:    payload.Longitude,
		CreatedAt:    now,
		FetchedAt:    payload.FetchedAt,
		LocationText: payload.LocationText,
		Features:     payload.Features,
	}

	res := &Result{Signal: sig}
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		keys := geo.NeighbourBuckets(sig.Latitude, sig.Longitude, s.params.DistanceMeters)
		if err := tx.LockBuckets(ctx, keys); err != nil {
			return eris.Wrap(err, "correlate: lock buckets")
		}

		if err := tx.InsertSignal(ctx, sig); err != nil {
			return eris.Wrap(err, "correlate: insert signal")
		}

		candidates, err := tx.ListCandidates(ctx, sig.ObservedAt.Add(-s.params.Window), sig.ObservedAt)
		if err != nil {
			return eris.Wrap(err, "correlate: list candidates")
		}

		match := cluster.PickIncident(candidates, sig.Latitude, sig.Longitude, sig.ObservedAt, s.params)
		if match != nil {
			res.IncidentID = match.ID
			if err := tx.ExtendIncident(ctx, match.ID, sig.ObservedAt, now); err != nil {
				return eris.Wrapf(err, "correlate: extend incident %s", match.ID)
			}
		} else {
			inc := &model.Incident{
				ID:        s.newID(),
				FirstSeen: sig.ObservedAt,
				LastSeen:  sig.ObservedAt,
				Latitude:  sig.Latitude,
				Longitude: sig.Longitude,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.InsertIncident(ctx, inc); err != nil {
				return eris.Wrap(err, "correlate: insert incident")
			}
			res.IncidentID = inc.ID
			res.Created = true
		}

		link := model.IncidentSignal{IncidentID: res.IncidentID, SignalID: sig.ID, LinkedAt: now}
		if err := tx.LinkSignal(ctx, link); err != nil {
			return eris.Wrap(err, "correlate: link signal")
		}

		res.Score, res.Breakdown, err = rescore(ctx, tx, res.IncidentID, now)
		return err
	})
	if err != nil {
		return nil, eris.Wrap(err, "correlate: ingest signal")
	}

	zap.L().Debug("correlate: signal ingested",
		zap.String("signal_id", sig.ID),
		zap.String("incident_id", res.IncidentID),
		zap.Bool("created", res.Created),
		zap.Float64("score", res.Score),
	)
	return res, nil
}

// Rescore recomputes one incident's score from its persisted signals.
func (s *Service) Rescore(ctx context.Context, incidentID string) (float64, error) {
	var score float64
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		score, _, err = rescore(ctx, tx, incidentID, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, eris.Wrapf(err, "correlate: rescore incident %s", incidentID)
	}
	return score, nil
}

// RescoreAll recomputes every incident's score, one transaction per incident,
// and returns how many were rescored.
func (s *Service) RescoreAll(ctx context.Context) (int, error) {
	var ids []string
	err := s.store.WithinTx(ctx, func(tx Tx) error {
		var err error
		ids, err = tx.IncidentIDs(ctx)
		return err
	})
	if err != nil {
		return 0, eris.Wrap(err, "correlate: list incidents")
	}

	for i, id := range ids {
		if err := ctx.Err(); err != nil {
			return i, eris.Wrap(err, "correlate: rescore all")
		}
		if _, err := s.Rescore(ctx, id); err != nil {
			return i, err
		}
	}

	zap.L().Info("correlate: rescored incidents", zap.Int("count", len(ids)))
	return len(ids), nil
}

func rescore(ctx context.Context, tx Tx, incidentID string, now time.Time) (float64, model.ScoreBreakdown, error) {
	linked, err := tx.LinkedSignals(ctx, incidentID)
	if err != nil {
		return 0, model.ScoreBreakdown{}, eris.Wrap(err, "correlate: load linked signals")
	}

	score, breakdown := scoring.ScoreSignals(linked)
	if err := tx.UpdateScore(ctx, incidentID, score, breakdown, now); err != nil {
		return 0, model.ScoreBreakdown{}, eris.Wrap(err, "correlate: update score")
	}
	return score, breakdown, nil
}

func validatePayload(p model.SignalPayload) error {
	var missing []string
	if p.SourceType == "" {
		missing = append(missing, "source_type")
	}
	if p.SourceID == "" {
		missing = append(missing, "source_id")
	}
	if p.ObservedAt.IsZero() {
		missing = append(missing, "observed_at")
	}
	if len(missing) > 0 {
		return eris.Wrapf(ErrInvalidPayload, "missing %s", strings.Join(missing, ", "))
	}
	if !(geo.Point{Latitude: p.Latitude, Longitude: p.Longitude}).Valid() {
		return eris.Wrapf(ErrInvalidPayload, "coordinates out of range (%f, %f)", p.Latitude, p.Longitude)
	}
	return nil
}
