package model

import (
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
)

// FeedbackStatus is an operator verdict on an incident.
type FeedbackStatus string

const (
	FeedbackConfirmed     FeedbackStatus = "confirmed"
	FeedbackDismissed     FeedbackStatus = "dismissed"
	FeedbackInvestigating FeedbackStatus = "investigating"
)

// MaxFeedbackNotes is the longest accepted notes field, in characters.
const MaxFeedbackNotes = 2000

// Feedback is an append-only operator note on an incident.
type Feedback struct {
	ID         string         `json:"id"`
	IncidentID string         `json:"incident_id"`
	Status     FeedbackStatus `json:"status"`
	Notes      string         `json:"notes"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Valid reports whether s is one of the known statuses.
func (s FeedbackStatus) Valid() bool {
	switch s {
	case FeedbackConfirmed, FeedbackDismissed, FeedbackInvestigating:
		return true
	}
	return false
}

// ValidateFeedback checks status and notes before a feedback row is written.
func ValidateFeedback(status FeedbackStatus, notes string) error {
	if !status.Valid() {
		return eris.Errorf("model: invalid feedback status %q", status)
	}
	n := utf8.RuneCountInString(notes)
	if n < 1 || n > MaxFeedbackNotes {
		return eris.Errorf("model: feedback notes must be 1..%d characters, got %d", MaxFeedbackNotes, n)
	}
	return nil
}
