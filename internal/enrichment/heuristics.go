package enrichment

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// HeuristicExtractor is the deterministic last resort: regex dates and
// times, first meaningful line as title, labelled location lines and
// keyword categories.
type HeuristicExtractor struct {
	location *time.Location
}

// NewHeuristicExtractor creates the fallback extractor.
func NewHeuristicExtractor(loc *time.Location) *HeuristicExtractor {
	return &HeuristicExtractor{location: loc}
}

func (h *HeuristicExtractor) Name() string              { return "heuristic" }
func (h *HeuristicExtractor) Kind() models.ProviderKind { return models.ProviderKindHeuristic }
func (h *HeuristicExtractor) Available() bool           { return true }
func (h *HeuristicExtractor) Limiter() *RateLimiter     { return nil }

var (
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	germanDatePattern = regexp.MustCompile(`\b(\d{1,2})\.\s?(\d{1,2})\.(\d{2,4})?`)
	monthNamePattern  = regexp.MustCompile(`(?i)\b(\d{1,2})\.?\s+(januar|jan|februar|feb|märz|maerz|mär|march|mar|april|apr|mai|may|juni|june|jun|juli|july|jul|august|aug|september|sept|sep|oktober|october|okt|oct|november|nov|dezember|december|dez|dec)\b\.?\s*(\d{4})?`)
	timePattern       = regexp.MustCompile(`(?i)\b(\d{1,2})[:.](\d{2})\s*(?:uhr|h)\b|(?:\b|T)(\d{1,2}):(\d{2})\b|\b(\d{1,2})\s*uhr\b`)
	locationPattern   = regexp.MustCompile(`(?im)^\s*(?:ort|wo|location|venue|where|adresse|treffpunkt)\s*[:\-]\s*(.+)$`)
	atPlacePattern    = regexp.MustCompile(`(?m)(?:^|\s)@\s*([^\n#@]{3,60})`)
	onlyDatePattern   = regexp.MustCompile(`^[\d\s.:/\-,]*(?:uhr|h)?$`)
)

var monthNumbers = map[string]time.Month{
	"januar": 1, "jan": 1, "februar": 2, "feb": 2, "märz": 3, "maerz": 3, "mär": 3, "march": 3, "mar": 3,
	"april": 4, "apr": 4, "mai": 5, "may": 5, "juni": 6, "june": 6, "jun": 6, "juli": 7, "july": 7, "jul": 7,
	"august": 8, "aug": 8, "september": 9, "sept": 9, "sep": 9, "oktober": 10, "october": 10, "okt": 10, "oct": 10,
	"november": 11, "nov": 11, "dezember": 12, "december": 12, "dez": 12, "dec": 12,
}

// Keyword lists in match order, specific to general.
var categoryKeywords = []struct {
	category models.Category
	keywords []string
}{
	{models.CategoryMarket, []string{"flohmarkt", "wochenmarkt", "weihnachtsmarkt", "markt", "market", "basar"}},
	{models.CategoryTheatre, []string{"theater", "theatre", "bühne", "kabarett", "musical"}},
	{models.CategoryNightlife, []string{"party", "club", " dj ", "disco", "tanznacht"}},
	{models.CategoryMusic, []string{"konzert", "concert", "jazz", "band", "live musik", "chor", "orchester"}},
	{models.CategorySports, []string{"lauf", "turnier", "spiel", "match", "sport", "marathon", "radtour"}},
	{models.CategoryFamily, []string{"kinder", "familie", "family", "kids"}},
	{models.CategoryEducation, []string{"vortrag", "workshop", "kurs", "lesung", "seminar"}},
	{models.CategoryCulture, []string{"ausstellung", "museum", "kunst", "galerie", "film", "kino"}},
	{models.CategoryCommunity, []string{"verein", "treffen", "stammtisch", "fest", "feier"}},
}

// Extract finds a date, optional time, title, location and category. Text
// without any recognizable date yields ErrNoEvent.
func (h *HeuristicExtractor) Extract(_ context.Context, text string, hint Hint) (*models.Candidate, error) {
	loc := h.location
	if hint.Location != nil {
		loc = hint.Location
	}
	ref := hint.Now
	if hint.TakenAt != nil {
		ref = *hint.TakenAt
	}
	if ref.IsZero() {
		ref = time.Now()
	}

	date, dateEnd, ok := findDate(text, ref.In(loc))
	if !ok {
		return nil, ErrNoEvent
	}
	start := date.Format("2006-01-02")
	if hh, mm, ok := findTime(text[dateEnd:]); ok {
		start = fmt.Sprintf("%sT%02d:%02d", start, hh, mm)
	} else if hh, mm, ok := findTime(text); ok {
		start = fmt.Sprintf("%sT%02d:%02d", start, hh, mm)
	}

	title := titleLine(text)
	if title == "" {
		return nil, ErrNoEvent
	}

	c := &models.Candidate{
		Title:        title,
		Start:        start,
		LocationName: findLocation(text),
		Category:     string(InferCategory(text)),
		Description:  strings.TrimSpace(text),
	}
	return c, nil
}

// findDate returns the first date in text and the offset right after it.
// Dates without a year take the next occurrence on or after ref.
func findDate(text string, ref time.Time) (time.Time, int, bool) {
	type match struct {
		at, end int
		t       time.Time
	}
	var best *match
	consider := func(at, end int, y int, m time.Month, d int, hasYear bool) {
		if m < 1 || m > 12 || d < 1 || d > 31 {
			return
		}
		if !hasYear {
			y = ref.Year()
			if time.Date(y, m, d, 0, 0, 0, 0, ref.Location()).Before(truncateDay(ref)) {
				y++
			}
		} else if y < 100 {
			y += 2000
		}
		t := time.Date(y, m, d, 0, 0, 0, 0, ref.Location())
		if t.Day() != d {
			return
		}
		if best == nil || at < best.at {
			best = &match{at: at, end: end, t: t}
		}
	}

	if m := isoDatePattern.FindStringSubmatchIndex(text); m != nil {
		y, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		d, _ := strconv.Atoi(text[m[6]:m[7]])
		consider(m[0], m[1], y, time.Month(mo), d, true)
	}
	if m := germanDatePattern.FindStringSubmatchIndex(text); m != nil {
		d, _ := strconv.Atoi(text[m[2]:m[3]])
		mo, _ := strconv.Atoi(text[m[4]:m[5]])
		y, hasYear := 0, m[6] >= 0
		if hasYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		consider(m[0], m[1], y, time.Month(mo), d, hasYear)
	}
	if m := monthNamePattern.FindStringSubmatchIndex(text); m != nil {
		d, _ := strconv.Atoi(text[m[2]:m[3]])
		mo := monthNumbers[strings.ToLower(text[m[4]:m[5]])]
		y, hasYear := 0, m[6] >= 0
		if hasYear {
			y, _ = strconv.Atoi(text[m[6]:m[7]])
		}
		consider(m[0], m[1], y, mo, d, hasYear)
	}

	if best == nil {
		return time.Time{}, 0, false
	}
	return best.t, best.end, true
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func findTime(text string) (int, int, bool) {
	m := timePattern.FindStringSubmatch(text)
	if m == nil {
		return 0, 0, false
	}
	var hh, mm int
	switch {
	case m[1] != "":
		hh, _ = strconv.Atoi(m[1])
		mm, _ = strconv.Atoi(m[2])
	case m[3] != "":
		hh, _ = strconv.Atoi(m[3])
		mm, _ = strconv.Atoi(m[4])
	default:
		hh, _ = strconv.Atoi(m[5])
	}
	if hh > 23 || mm > 59 {
		return 0, 0, false
	}
	return hh, mm, true
}

// titleLine returns the first line that is not just a date, a time or a
// label.
func titleLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.Join(strings.Fields(line), " ")
		if len([]rune(line)) < 3 || onlyDatePattern.MatchString(strings.ToLower(line)) {
			continue
		}
		if locationPattern.MatchString(line) {
			continue
		}
		if r := []rune(line); len(r) > 120 {
			line = strings.TrimSpace(string(r[:120]))
		}
		return line
	}
	return ""
}

func findLocation(text string) string {
	if m := locationPattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	if m := atPlacePattern.FindStringSubmatch(text); m != nil {
		return strings.TrimSpace(m[1])
	}
	return ""
}

// InferCategory maps text onto a category by keyword.
func InferCategory(text string) models.Category {
	lower := " " + strings.ToLower(text) + " "
	for _, ck := range categoryKeywords {
		for _, kw := range ck.keywords {
			if strings.Contains(lower, kw) {
				return ck.category
			}
		}
	}
	return models.CategoryOther
}
