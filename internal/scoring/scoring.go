// Package scoring derives an incident confidence score from the text and
// source types of its linked signals.
package scoring

import (
	"sort"
	"strings"

	"github.com/sells-group/breakwatch/internal/model"
)

// Formula is recorded verbatim in every breakdown.
const Formula = "min(100, high*25 + medium*10 + unique_sources*15)"

// Weights and ceiling of the score.
const (
	HighWeight   = 25
	MediumWeight = 10
	SourceWeight = 15
	MaxScore     = 100
)

// HighKeywords are phrases that strongly indicate a water-main break.
var HighKeywords = []string{
	"water main break",
	"flood",
	"burst pipe",
	"road closed",
	"crews on scene",
}

// MediumKeywords are weaker indicators.
var MediumKeywords = []string{
	"water leak",
	"no water",
	"water outage",
	"sinkhole",
	"low pressure",
}

// Breakdown is the explanation persisted alongside a score.
type Breakdown = model.ScoreBreakdown

// ComputeConfidence scores a set of signal texts and their source types.
// Each keyword counts at most once across all texts, as a case-insensitive
// substring of the space-joined texts. It never fails; empty input scores 0.
func ComputeConfidence(texts, sourceTypes []string) (float64, Breakdown) {
	haystack := strings.ToLower(strings.Join(texts, " "))

	matched := make([]string, 0)
	high := countHits(haystack, HighKeywords, &matched)
	medium := countHits(haystack, MediumKeywords, &matched)
	sort.Strings(matched)

	distribution := make(map[string]int)
	for _, st := range sourceTypes {
		distribution[st]++
	}
	diversity := len(distribution)

	score := min(MaxScore, high*HighWeight+medium*MediumWeight+diversity*SourceWeight)

	return float64(score), Breakdown{
		HighKeywordHits:    high,
		MediumKeywordHits:  medium,
		SourceDiversity:    diversity,
		SourceDistribution: distribution,
		MatchedKeywords:    matched,
		Formula:            Formula,
	}
}

// ScoreSignals scores linked signals using their title+content text.
func ScoreSignals(signals []model.LinkedSignal) (float64, Breakdown) {
	texts := make([]string, len(signals))
	sources := make([]string, len(signals))
	for i, s := range signals {
		texts[i] = model.SignalText(s.Title, s.Content)
		sources[i] = s.SourceType
	}
	return ComputeConfidence(texts, sources)
}

func countHits(haystack string, keywords []string, matched *[]string) int {
	n := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			n++
			*matched = append(*matched, kw)
		}
	}
	return n
}
