package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Incident is a cluster of signals believed to describe the same break.
type Incident struct {
	ID              string         `json:"id"`
	FirstSeen       time.Time      `json:"first_seen"`
	LastSeen        time.Time      `json:"last_seen"`
	Latitude        float64        `json:"latitude"`
	Longitude       float64        `json:"longitude"`
	ConfidenceScore float64        `json:"confidence_score"`
	ScoreBreakdown  ScoreBreakdown `json:"score_breakdown"`
	SignalCount     int            `json:"signal_count,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// ScoreBreakdown explains how a confidence score was derived.
type ScoreBreakdown struct {
	HighKeywordHits    int            `json:"high_keyword_hits"`
	MediumKeywordHits  int            `json:"medium_keyword_hits"`
	SourceDiversity    int            `json:"source_diversity"`
	SourceDistribution map[string]int `json:"source_distribution"`
	MatchedKeywords    []string       `json:"matched_keywords"`
	Formula            string         `json:"formula"`
}

// IncidentSignal links a signal to the incident it was clustered into.
type IncidentSignal struct {
	IncidentID string    `json:"incident_id"`
	SignalID   string    `json:"signal_id"`
	LinkedAt   time.Time `json:"linked_at"`
}

// IncidentDetail is an incident together with its linked signals.
type IncidentDetail struct {
	Incident
	Signals []Signal `json:"signals"`
}

// ErrNotFound is returned when a requested incident or signal does not exist.
var ErrNotFound = eris.New("not found")
