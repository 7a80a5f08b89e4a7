package feed

import (
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Neighbourhoods are the Toronto area names recognised when no street or
// intersection is present.
var Neighbourhoods = []string{
	"annex",
	"beaches",
	"cabbagetown",
	"distillery district",
	"etobicoke",
	"forest hill",
	"high park",
	"kensington market",
	"leslieville",
	"liberty village",
	"north york",
	"parkdale",
	"riverdale",
	"scarborough",
	"the junction",
	"yorkville",
}

var streetSuffixes = []string{
	"Street", "St", "St.",
	"Avenue", "Ave", "Ave.",
	"Road", "Rd", "Rd.",
	"Boulevard", "Blvd", "Blvd.",
	"Drive", "Dr", "Dr.",
	"Crescent", "Cres", "Cres.",
	"Lane", "Ln", "Ln.",
	"Court", "Ct", "Ct.",
	"Way", "Trail",
	"Parkway", "Pkwy", "Pkwy.",
}

const capWord = `[A-Z][a-zA-Z'’-]*`

var (
	intersectionRe = regexp.MustCompile(
		`\b(` + capWord + `(?:\s+` + capWord + `){0,2})\s*&\s*(` + capWord + `(?:\s+` + capWord + `){0,2})\b`)
	streetRe = regexp.MustCompile(
		`\b(?:\d{1,5}\s+)?[A-Za-z][\w'’.-]*(?:\s+[A-Za-z][\w'’.-]*)*\s(?:` + suffixAlternation() + `)\b`)

	neighbourhoodsByLength = titledByLength(Neighbourhoods)
)

type neighbourhood struct {
	name  string
	title string
}

func suffixAlternation() string {
	quoted := make([]string, len(streetSuffixes))
	for i, s := range streetSuffixes {
		quoted[i] = regexp.QuoteMeta(s)
	}
	return strings.Join(quoted, "|")
}

// titledByLength title-cases names once, longest first. A cases.Caser holds
// state and is not safe for concurrent use, so none is kept past init.
func titledByLength(names []string) []neighbourhood {
	caser := cases.Title(language.English)
	out := make([]neighbourhood, len(names))
	for i, n := range names {
		out[i] = neighbourhood{name: n, title: caser.String(n)}
	}
	sort.SliceStable(out, func(i, j int) bool { return len(out[i].name) > len(out[j].name) })
	return out
}

// ExtractLocationText pulls a geocodable location out of free text. It tries
// an "A & B" intersection, then a street name with a known suffix (and an
// optional house number), then a known neighbourhood. It returns "" when
// nothing is found.
func ExtractLocationText(text string) string {
	if m := intersectionRe.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1]) + " & " + strings.TrimSpace(m[2])
	}
	if m := streetRe.FindString(text); m != "" {
		return strings.TrimSpace(m)
	}
	lowered := strings.ToLower(text)
	for _, n := range neighbourhoodsByLength {
		if strings.Contains(lowered, n.name) {
			return n.title
		}
	}
	return ""
}
