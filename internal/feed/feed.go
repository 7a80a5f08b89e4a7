// Package feed parses RSS and Atom documents into entries the ingester can
// turn into signals, and extracts location hints from their text.
package feed

import (
	"io"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"
)

// Entry is one item from a parsed feed.
type Entry struct {
	Title     string
	Summary   string
	Link      string
	NativeID  string // guid for RSS, id for Atom
	Published *time.Time
	Updated   *time.Time
}

// Text returns the title and summary joined the way location extraction reads them.
func (e Entry) Text() string {
	return e.Title + ". " + e.Summary
}

// Parse reads an RSS or Atom document.
func Parse(r io.Reader) ([]Entry, error) {
	f, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "feed: parse")
	}
	return entries(f), nil
}

// ParseString is Parse over an in-memory document.
func ParseString(doc string) ([]Entry, error) {
	return Parse(strings.NewReader(doc))
}

func entries(f *gofeed.Feed) []Entry {
	out := make([]Entry, 0, len(f.Items))
	for _, item := range f.Items {
		if item == nil {
			continue
		}
		summary := strings.TrimSpace(item.Description)
		if summary == "" {
			summary = strings.TrimSpace(item.Content)
		}
		link := strings.TrimSpace(item.Link)
		if link == "" && len(item.Links) > 0 {
			link = strings.TrimSpace(item.Links[0])
		}
		out = append(out, Entry{
			Title:     strings.TrimSpace(item.Title),
			Summary:   summary,
			Link:      link,
			NativeID:  strings.TrimSpace(item.GUID),
			Published: item.PublishedParsed,
			Updated:   item.UpdatedParsed,
		})
	}
	return out
}

// ObservedAt returns the entry's published time, then its updated time,
// then fallback. The result is always UTC.
func ObservedAt(e Entry, fallback time.Time) time.Time {
	for _, t := range []*time.Time{e.Published, e.Updated} {
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	}
	return fallback.UTC()
}

// MatchKeywords returns the filters found in the title or summary,
// case-insensitively, in filter order. Blank filters are ignored.
func MatchKeywords(title, summary string, filters []string) []string {
	if len(filters) == 0 {
		return nil
	}
	haystack := strings.ToLower(title + " " + summary)
	var matched []string
	for _, f := range filters {
		kw := strings.ToLower(strings.TrimSpace(f))
		if kw != "" && strings.Contains(haystack, kw) {
			matched = append(matched, kw)
		}
	}
	return matched
}
