package feed

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRSS = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
  <channel>
    <title>City Alerts</title>
    <item>
      <title>Watermain break near Queen &amp; Bathurst</title>
      <description>Crews responding near 200 Queen Street West in Toronto.</description>
      <link>https://example.com/alerts/1</link>
      <guid>alert-1</guid>
      <pubDate>Tue, 04 Jun 2024 14:30:00 GMT</pubDate>
    </item>
    <item>
      <title>General infrastructure update</title>
      <description>No service impact in the Annex today.</description>
      <link>https://example.com/alerts/2</link>
      <pubDate>Tue, 04 Jun 2024 16:30:00 GMT</pubDate>
    </item>
    <item>
      <title>Linkless notice</title>
      <description>Nothing to see.</description>
    </item>
  </channel>
</rss>`

const sampleAtom = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>Works</title>
  <id>urn:feed</id>
  <updated>2024-06-04T15:00:00Z</updated>
  <entry>
    <title>Burst pipe on Danforth Avenue</title>
    <id>urn:entry:7</id>
    <link href="https://example.com/works/7"/>
    <updated>2024-06-04T15:00:00-04:00</updated>
    <summary>Lane restrictions in effect.</summary>
  </entry>
</feed>`

func TestParseString_RSS(t *testing.T) {
	entries, err := ParseString(sampleRSS)
	require.NoError(t, err)
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Equal(t, "Watermain break near Queen & Bathurst", first.Title)
	assert.Equal(t, "Crews responding near 200 Queen Street West in Toronto.", first.Summary)
	assert.Equal(t, "https://example.com/alerts/1", first.Link)
	assert.Equal(t, "alert-1", first.NativeID)
	require.NotNil(t, first.Published)
	assert.Equal(t, time.Date(2024, 6, 4, 14, 30, 0, 0, time.UTC), first.Published.UTC())

	assert.Empty(t, entries[1].NativeID)
	assert.Empty(t, entries[2].Link)
}

func TestParseString_Atom(t *testing.T) {
	entries, err := ParseString(sampleAtom)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	assert.Equal(t, "urn:entry:7", e.NativeID)
	assert.Equal(t, "https://example.com/works/7", e.Link)
	assert.Equal(t, "Lane restrictions in effect.", e.Summary)
	require.NotNil(t, e.Updated)
	assert.Equal(t, time.Date(2024, 6, 4, 19, 0, 0, 0, time.UTC), ObservedAt(e, time.Time{}))
}

func TestParseString_Malformed(t *testing.T) {
	_, err := ParseString("this is not a feed")
	require.Error(t, err)
}

func TestObservedAt(t *testing.T) {
	fallback := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	pub := time.Date(2024, 6, 4, 10, 0, 0, 0, time.FixedZone("EDT", -4*3600))
	upd := time.Date(2024, 6, 5, 10, 0, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 6, 4, 14, 0, 0, 0, time.UTC), ObservedAt(Entry{Published: &pub, Updated: &upd}, fallback))
	assert.Equal(t, upd, ObservedAt(Entry{Updated: &upd}, fallback))
	assert.Equal(t, fallback, ObservedAt(Entry{}, fallback))
	assert.Equal(t, time.UTC, ObservedAt(Entry{Published: &pub}, fallback).Location())
}

func TestMatchKeywords(t *testing.T) {
	title := "Watermain break near Queen & Bathurst"
	summary := "Crews responding."

	assert.Equal(t, []string{"watermain"}, MatchKeywords(title, summary, []string{"Watermain", "burst"}))
	assert.Equal(t, []string{"watermain", "crews"}, MatchKeywords(title, summary, []string{"watermain", " ", "crews"}))
	assert.Nil(t, MatchKeywords(title, summary, nil))
	assert.Empty(t, MatchKeywords(title, summary, []string{"flood"}))
}

func TestExtractLocationText(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"Issue at King & Spadina intersection", "King & Spadina"},
		{"Watermain break near Queen & Bathurst. Crews at 200 Queen Street West", "Queen & Bathurst"},
		{"Repair at 1200 Danforth Avenue tonight", "1200 Danforth Avenue"},
		{"Residents in liberty village should expect delays", "Liberty Village"},
		{"Flooding reported in the Distillery District and the Annex", "Distillery District"},
		{"No Toronto location provided", ""},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractLocationText(tt.text))
		})
	}
}

func TestExtractLocationText_Concurrent(t *testing.T) {
	texts := map[string]string{
		"flooding reported near kensington market today": "Kensington Market",
		"crews working in leslieville overnight":         "Leslieville",
		"low pressure across the distillery district":    "Distillery District",
	}

	var wg sync.WaitGroup
	got := make(chan string, 16*len(texts))
	for g := 0; g < 16; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				for text, want := range texts {
					if loc := ExtractLocationText(text); loc != want {
						got <- loc
						return
					}
				}
			}
		}()
	}
	wg.Wait()
	close(got)

	for loc := range got {
		t.Errorf("unexpected location %q", loc)
	}
}

func TestEntryText(t *testing.T) {
	e := Entry{Title: "Main break", Summary: "Near High Park"}
	assert.Equal(t, "Main break. Near High Park", e.Text())
	assert.Equal(t, "High Park", ExtractLocationText(e.Text()))
}
