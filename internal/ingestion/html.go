package ingestion

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/STRATINT/eventcurator/internal/models"
)

// HTMLSource scrapes an event listing page. With an item selector it reads
// fields through the configured selectors; without one it falls back to
// heuristic extraction over common event markup.
type HTMLSource struct {
	cfg     models.SourceConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewHTMLSource creates a page scraping source.
func NewHTMLSource(cfg models.SourceConfig, f *fetcher, logger *slog.Logger) *HTMLSource {
	return &HTMLSource{cfg: cfg, fetcher: f, logger: logger}
}

func (s *HTMLSource) Name() string                  { return s.cfg.Name }
func (s *HTMLSource) Kind() models.SourceKind       { return models.SourceKindHTML }
func (s *HTMLSource) Options() models.SourceOptions { return s.cfg.Options }

// Selectors tried, in order, when no item selector is configured.
var heuristicItemSelectors = []string{
	"[itemtype*='schema.org/Event']",
	".event, .events-item, .veranstaltung, .termin",
	"article",
	"li:has(time)",
}

var (
	// 01.03.2026 20:00, 1.3.2026, 2026-03-01 20:00, 2026-03-01T20:00
	dateTextPattern = regexp.MustCompile(`\b(\d{1,2}\.\d{1,2}\.\d{4}(?:,?\s+\d{1,2}:\d{2})?|\d{4}-\d{2}-\d{2}(?:[T ]\d{2}:\d{2})?)\b`)
	clockPattern    = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\s*(?:Uhr|h)?\b`)
)

// Fetch downloads the page and extracts one candidate per item.
func (s *HTMLSource) Fetch(ctx context.Context) (iter.Seq[models.Candidate], error) {
	b, err := s.fetcher.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.data))
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}
	base, _ := url.Parse(b.finalURL)

	items := s.items(doc)
	s.logger.Debug("parsed page", "source", s.cfg.Name, "items", len(items))

	fetchedAt := time.Now()
	return seqOf(items, s.cfg.Options.MaxItems, func(sel *goquery.Selection) (models.Candidate, bool) {
		return s.candidate(sel, base, fetchedAt)
	}), nil
}

func (s *HTMLSource) items(doc *goquery.Document) []*goquery.Selection {
	selectors := heuristicItemSelectors
	if s.cfg.Options.ItemSelector != "" {
		selectors = []string{s.cfg.Options.ItemSelector}
	}

	for _, selector := range selectors {
		var out []*goquery.Selection
		doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
			out = append(out, sel)
		})
		if len(out) > 0 {
			return out
		}
	}
	return nil
}

func (s *HTMLSource) candidate(sel *goquery.Selection, base *url.URL, fetchedAt time.Time) (models.Candidate, bool) {
	opts := s.cfg.Options
	text := blockText(sel)
	if text == "" {
		return models.Candidate{}, false
	}

	c := models.Candidate{
		Title:        pick(sel, opts.TitleSelector, "[itemprop='name'], h1, h2, h3, h4, .title, a"),
		Start:        dateOf(sel, opts.DateSelector),
		LocationName: pick(sel, opts.LocationSelector, "[itemprop='location'], .location, .ort, address"),
		Description:  pick(sel, "", "[itemprop='description'], .description, p"),
		URL:          resolve(base, attrOf(sel, opts.LinkSelector, "a[href]", "href")),
		ImageURL:     resolve(base, attrOf(sel, opts.ImageSelector, "img[src]", "src")),
		SourceName:   s.cfg.Name,
		SourceKind:   models.SourceKindHTML,
		FetchedAt:    fetchedAt,
	}
	if endAttr, ok := sel.Find("[itemprop='endDate']").Attr("content"); ok {
		c.End = endAttr
	}

	// Items that resist deterministic parsing are handed to the AI gateway.
	if c.Title == "" || c.Start == "" {
		c.Title = ""
		c.RawText = text
	}
	return c, true
}

// pick returns the trimmed text of the first match of the configured
// selector, or of the fallback selector when none is configured.
func pick(sel *goquery.Selection, configured, fallback string) string {
	selector := configured
	if selector == "" {
		selector = fallback
	}
	return cleanText(sel.Find(selector).First().Text())
}

func attrOf(sel *goquery.Selection, configured, fallback, attr string) string {
	selector := configured
	if selector == "" {
		selector = fallback
	}
	if v, ok := sel.Find(selector).First().Attr(attr); ok {
		return strings.TrimSpace(v)
	}
	if v, ok := sel.Attr(attr); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

// dateOf prefers machine readable datetime attributes, then the configured
// selector text, then the first date-looking string in the item.
func dateOf(sel *goquery.Selection, configured string) string {
	for _, q := range []string{"[itemprop='startDate']", "time[datetime]"} {
		node := sel.Find(q).First()
		if v, ok := node.Attr("content"); ok && v != "" {
			return v
		}
		if v, ok := node.Attr("datetime"); ok && v != "" {
			return v
		}
	}

	text := blockText(sel)
	if configured != "" {
		text = cleanText(sel.Find(configured).First().Text())
	}
	return findDate(text)
}

// findDate extracts the first date and, if present, a following clock time.
func findDate(text string) string {
	loc := dateTextPattern.FindStringIndex(text)
	if loc == nil {
		return ""
	}
	date := strings.ReplaceAll(text[loc[0]:loc[1]], ",", "")
	if strings.Contains(date, ":") {
		return date
	}
	if m := clockPattern.FindStringSubmatch(text[loc[1]:]); m != nil {
		return date + " " + zeroPad(m[1]) + ":" + m[2]
	}
	return date
}

func zeroPad(hour string) string {
	if len(hour) == 1 {
		return "0" + hour
	}
	return hour
}

// blockText joins the item's text nodes line by line, so that adjacent
// elements do not run together.
func blockText(sel *goquery.Selection) string {
	var parts []string
	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, child *goquery.Selection) {
			switch goquery.NodeName(child) {
			case "#text":
				if t := strings.TrimSpace(child.Text()); t != "" {
					parts = append(parts, t)
				}
			case "script", "style":
			default:
				walk(child)
			}
		})
	}
	walk(sel)
	return cleanText(strings.Join(parts, "\n"))
}

func resolve(base *url.URL, ref string) string {
	if ref == "" || base == nil {
		return ref
	}
	u, err := base.Parse(ref)
	if err != nil {
		return ref
	}
	return u.String()
}
