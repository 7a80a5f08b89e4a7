// Package dedup decides whether an incoming report has already been ingested.
package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/rotisserie/eris"
)

// IsDuplicate reports whether a signal is a duplicate given the results of
// the two exact-match lookups.
func IsDuplicate(urlMatch, sourceMatch bool) bool {
	return urlMatch || sourceMatch
}

// SourceID returns the stable source identifier of a feed entry: the native
// id when present, otherwise the hex SHA-256 of the canonical URL.
func SourceID(nativeID, canonicalURL string) string {
	if id := strings.TrimSpace(nativeID); id != "" {
		return id
	}
	sum := sha256.Sum256([]byte(canonicalURL))
	return hex.EncodeToString(sum[:])
}

// Lookup answers the exact-match questions the checker needs.
type Lookup interface {
	SignalURLExists(ctx context.Context, url string) (bool, error)
	SignalSourceExists(ctx context.Context, sourceType, sourceID string) (bool, error)
}

// Result records which lookups matched.
type Result struct {
	URLMatch    bool
	SourceMatch bool
}

// Duplicate reports whether either lookup matched.
func (r Result) Duplicate() bool {
	return IsDuplicate(r.URLMatch, r.SourceMatch)
}

// Checker runs both lookups against a store.
type Checker struct {
	lookup Lookup
}

// NewChecker creates a Checker over lookup.
func NewChecker(lookup Lookup) *Checker {
	return &Checker{lookup: lookup}
}

// Check looks up url and (sourceType, sourceID). The source lookup is skipped
// when the URL already matched.
func (c *Checker) Check(ctx context.Context, url, sourceType, sourceID string) (Result, error) {
	var res Result
	var err error

	if url != "" {
		res.URLMatch, err = c.lookup.SignalURLExists(ctx, url)
		if err != nil {
			return Result{}, eris.Wrap(err, "dedup: lookup url")
		}
		if res.URLMatch {
			return res, nil
		}
	}

	res.SourceMatch, err = c.lookup.SignalSourceExists(ctx, sourceType, sourceID)
	if err != nil {
		return Result{}, eris.Wrap(err, "dedup: lookup source")
	}
	return res, nil
}
