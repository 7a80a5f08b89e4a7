// Package fetcher downloads feed documents over HTTP with per-host rate
// limiting, conditional requests and retry on transient failures.
package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
)

// ErrNotModified is returned when the server reports the document unchanged
// since the previous fetch.
var ErrNotModified = eris.New("fetcher: not modified")

// Fetcher downloads a feed document.
type Fetcher interface {
	// Fetch returns the body at url. It returns ErrNotModified when a
	// conditional request shows the document is unchanged.
	Fetch(ctx context.Context, url string) ([]byte, error)
}
