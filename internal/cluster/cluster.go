// Package cluster picks the open incident a new signal belongs to.
package cluster

import (
	"time"

	"github.com/sells-group/breakwatch/internal/geo"
)

// Candidate is the slice of an incident the matcher reads.
type Candidate struct {
	ID        string
	Latitude  float64
	Longitude float64
	LastSeen  time.Time
}

// Params bound how far in space and time a signal may be from an incident.
type Params struct {
	DistanceMeters float64
	Window         time.Duration
}

// DefaultParams returns the 300 m / 2 h defaults.
func DefaultParams() Params {
	return Params{DistanceMeters: 300, Window: 2 * time.Hour}
}

// Match is a chosen candidate together with its distance to the signal.
type Match struct {
	Candidate
	DistanceMeters float64
}

// PickIncident returns the nearest candidate whose LastSeen is no earlier than
// observedAt minus the window and whose centroid lies within the distance
// threshold of the signal. Equal distances resolve to the lowest ID, so the
// result does not depend on candidate order. It returns nil when no candidate
// qualifies.
func PickIncident(candidates []Candidate, lat, lon float64, observedAt time.Time, p Params) *Match {
	cutoff := observedAt.Add(-p.Window)

	var best *Match
	for i := range candidates {
		c := candidates[i]
		if c.LastSeen.Before(cutoff) {
			continue
		}
		d := geo.DistanceMeters(c.Latitude, c.Longitude, lat, lon)
		if d > p.DistanceMeters {
			continue
		}
		if best == nil || d < best.DistanceMeters || (d == best.DistanceMeters && c.ID < best.ID) {
			best = &Match{Candidate: c, DistanceMeters: d}
		}
	}
	return best
}
