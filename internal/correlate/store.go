package correlate

import (
	"context"
	"time"

	"github.com/sells-group/breakwatch/internal/cluster"
	"github.com/sells-group/breakwatch/internal/model"
)

// Store opens units of work against persistence.
type Store interface {
	// WithinTx runs fn in one transaction, committing when fn returns nil
	// and rolling back otherwise.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of operations the engine performs inside a unit of work.
type Tx interface {
	// LockBuckets serialises ingestion for the given spatial bucket keys
	// until the transaction ends. Keys arrive sorted.
	LockBuckets(ctx context.Context, keys []string) error

	InsertSignal(ctx context.Context, sig *model.Signal) error

	// ListCandidates returns incidents with notBefore <= last_seen <= notAfter.
	ListCandidates(ctx context.Context, notBefore, notAfter time.Time) ([]cluster.Candidate, error)

	InsertIncident(ctx context.Context, inc *model.Incident) error

	// ExtendIncident widens the incident's seen range to include observedAt.
	ExtendIncident(ctx context.Context, incidentID string, observedAt, now time.Time) error

	LinkSignal(ctx context.Context, link model.IncidentSignal) error

	// LinkedSignals returns every signal linked to the incident.
	LinkedSignals(ctx context.Context, incidentID string) ([]model.LinkedSignal, error)

	// UpdateScore stores a recomputed score. It returns model.ErrNotFound
	// when the incident does not exist.
	UpdateScore(ctx context.Context, incidentID string, score float64, breakdown model.ScoreBreakdown, now time.Time) error

	IncidentIDs(ctx context.Context) ([]string, error)
}
