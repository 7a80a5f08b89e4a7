// Package geocode maps free-text location strings to coordinates. The
// ingester depends on the Geocoder interface and falls back to a default
// point when no result is returned.
package geocode

import (
	"context"
	"strings"
)

// Result is a geocoded point.
type Result struct {
	Latitude   float64
	Longitude  float64
	Provider   string
	Confidence *float64
	// Address is the provider's formatted address, when it returns one.
	Address string
}

// Geocoder resolves location text. A nil result with a nil error means the
// text could not be resolved.
type Geocoder interface {
	Geocode(ctx context.Context, text string) (*Result, error)
}

// Noop never resolves anything. It is the default geocoder.
type Noop struct{}

// Geocode implements Geocoder.
func (Noop) Geocode(context.Context, string) (*Result, error) {
	return nil, nil
}

// normalize lowercases and collapses whitespace so equivalent strings share
// a cache entry.
func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
