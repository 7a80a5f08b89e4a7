// Package model holds the persisted and wire types shared by the correlation
// engine, the stores and the API.
package model

import (
	"strings"
	"time"
)

// Known source types. Feeds may declare others; the scorer only counts distinct values.
const (
	SourceTypeRSS    = "rss"
	SourceTypeSocial = "social"
	SourceType311    = "311"
	SourceTypeNews   = "news"
)

// Signal is a single ingested report. A signal belongs to at most one
// incident and is never rewritten after ingestion.
type Signal struct {
	ID           string         `json:"id"`
	SourceType   string         `json:"source_type"`
	SourceID     string         `json:"source_id"`
	Title        string         `json:"title"`
	Content      string         `json:"content"`
	URL          string         `json:"url"`
	ObservedAt   time.Time      `json:"observed_at"`
	Latitude     float64        `json:"latitude"`
	Longitude    float64        `json:"longitude"`
	CreatedAt    time.Time      `json:"created_at"`
	FetchedAt    *time.Time     `json:"fetched_at,omitempty"`
	LocationText string         `json:"location_text,omitempty"`
	Features     map[string]any `json:"features,omitempty"`
}

// Text returns the scoring text of the signal: title and content joined by a space.
func (s *Signal) Text() string {
	return SignalText(s.Title, s.Content)
}

// SignalText joins a title and content the way the scorer reads them.
func SignalText(title, content string) string {
	return title + " " + content
}

// SignalPayload is the input to the correlation engine. Optional enrichment
// fields are stored on the signal as given.
type SignalPayload struct {
	SourceType   string
	SourceID     string
	Title        string
	Content      string
	URL          string
	ObservedAt   time.Time
	Latitude     float64
	Longitude    float64
	FetchedAt    *time.Time
	LocationText string
	Features     map[string]any
}

// Normalize trims string fields and converts ObservedAt to UTC.
func (p *SignalPayload) Normalize() {
	p.SourceType = strings.TrimSpace(p.SourceType)
	p.SourceID = strings.TrimSpace(p.SourceID)
	p.URL = strings.TrimSpace(p.URL)
	p.ObservedAt = p.ObservedAt.UTC()
	if p.FetchedAt != nil {
		t := p.FetchedAt.UTC()
		p.FetchedAt = &t
	}
}

// LinkedSignal is the slice of a signal the scorer needs.
type LinkedSignal struct {
	SourceType string
	Title      string
	Content    string
}
