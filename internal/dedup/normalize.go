package dedup

import (
	"math"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Options are the normalization and near-match thresholds.
type Options struct {
	Location        *time.Location
	CoordPrecision  int
	DateTolerance   time.Duration
	DistanceKM      float64
	TitleSimilarity float64 // token Jaccard threshold; 1 means identical token sets

	// RejectRecurring routes candidates whose fingerprint was rejected before
	// straight to the rejected collection unless Exempt matches them.
	RejectRecurring bool
	Exempt          func(models.Event) bool
}

// DefaultOptions returns the defaults used when no configuration is given.
func DefaultOptions() Options {
	return Options{
		Location:        time.UTC,
		CoordPrecision:  5,
		DateTolerance:   24 * time.Hour,
		DistanceKM:      0.5,
		TitleSimilarity: 1.0,
		RejectRecurring: true,
	}
}

var (
	whitespacePattern  = regexp.MustCompile(`\s+`)
	punctuationPattern = regexp.MustCompile(`[\p{P}\p{S}]+`)
)

// NormalizeText trims and collapses whitespace.
func NormalizeText(s string) string {
	return strings.TrimSpace(whitespacePattern.ReplaceAllString(s, " "))
}

// NormalizeTitle collapses whitespace and repairs shouted or all-lowercase
// titles. Mixed-case titles are left alone.
func NormalizeTitle(s string) string {
	s = NormalizeText(s)

	var upper, lower int
	for _, r := range s {
		switch {
		case unicode.IsUpper(r):
			upper++
		case unicode.IsLower(r):
			lower++
		}
	}
	if upper+lower < 4 {
		return s
	}

	switch {
	case lower == 0:
		words := strings.Fields(strings.ToLower(s))
		for i, w := range words {
			words[i] = capitalize(w)
		}
		return strings.Join(words, " ")
	case upper == 0:
		return capitalize(s)
	}
	return s
}

func capitalize(s string) string {
	for i, r := range s {
		return string(unicode.ToUpper(r)) + s[i+len(string(r)):]
	}
	return s
}

// TitleKey is the comparison form of a title: lowercase, no punctuation,
// single spaces.
func TitleKey(title string) string {
	key := strings.ToLower(title)
	key = punctuationPattern.ReplaceAllString(key, " ")
	return NormalizeText(key)
}

// Normalize canonicalizes an event's free text, zone and coordinates.
func Normalize(e models.Event, opts Options) models.Event {
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}

	e.Title = NormalizeTitle(e.Title)
	e.Description = strings.TrimSpace(e.Description)
	e.Location.Name = NormalizeText(e.Location.Name)
	e.Start = e.Start.In(loc)
	if e.End != nil {
		end := e.End.In(loc)
		e.End = &end
	}
	if e.Location.HasCoordinates() {
		e.Location.Lat = models.Float64(roundTo(*e.Location.Lat, opts.CoordPrecision))
		e.Location.Lon = models.Float64(roundTo(*e.Location.Lon, opts.CoordPrecision))
	}
	if !e.Category.Valid() {
		e.Category = models.ParseCategory(string(e.Category))
	}
	return e
}

func roundTo(v float64, precision int) float64 {
	p := math.Pow(10, float64(precision))
	return math.Round(v*p) / p
}

// titleSimilarity computes the Jaccard coefficient over title tokens.
func titleSimilarity(a, b string) float64 {
	ta := strings.Fields(TitleKey(a))
	tb := strings.Fields(TitleKey(b))
	if len(ta) == 0 && len(tb) == 0 {
		return 1.0
	}
	if len(ta) == 0 || len(tb) == 0 {
		return 0.0
	}

	set := make(map[string]bool, len(ta))
	for _, t := range ta {
		set[t] = true
	}
	other := make(map[string]bool, len(tb))
	for _, t := range tb {
		other[t] = true
	}

	intersection := 0
	for t := range other {
		if set[t] {
			intersection++
		}
	}
	union := len(set) + len(other) - intersection
	return float64(intersection) / float64(union)
}

const earthRadiusKM = 6371.0

// distanceKM is the haversine distance between two points.
func distanceKM(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKM * math.Asin(math.Sqrt(a))
}
