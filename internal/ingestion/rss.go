package ingestion

import (
	"context"
	"encoding/xml"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// RSSSource reads RSS 2.0 and Atom feeds. Items may carry the RSS event
// module (ev:startdate, ev:location) and GeoRSS points.
type RSSSource struct {
	cfg     models.SourceConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewRSSSource creates a feed source.
func NewRSSSource(cfg models.SourceConfig, f *fetcher, logger *slog.Logger) *RSSSource {
	return &RSSSource{cfg: cfg, fetcher: f, logger: logger}
}

func (s *RSSSource) Name() string                  { return s.cfg.Name }
func (s *RSSSource) Kind() models.SourceKind       { return models.SourceKindRSS }
func (s *RSSSource) Options() models.SourceOptions { return s.cfg.Options }

// RSS represents the RSS 2.0 feed structure.
type RSS struct {
	XMLName xml.Name `xml:"rss"`
	Channel struct {
		Title string    `xml:"title"`
		Items []RSSItem `xml:"item"`
	} `xml:"channel"`
}

// RSSItem represents a single RSS 2.0 item.
type RSSItem struct {
	Title       string `xml:"title"`
	Link        string `xml:"link"`
	Description string `xml:"description"`
	PubDate     string `xml:"pubDate"`
	GUID        string `xml:"guid"`
	Category    string `xml:"category"`
	Enclosure   struct {
		URL  string `xml:"url,attr"`
		Type string `xml:"type,attr"`
	} `xml:"enclosure"`
	EventStart    string `xml:"http://purl.org/rss/1.0/modules/event/ startdate"`
	EventEnd      string `xml:"http://purl.org/rss/1.0/modules/event/ enddate"`
	EventLocation string `xml:"http://purl.org/rss/1.0/modules/event/ location"`
	GeoPoint      string `xml:"http://www.georss.org/georss point"`
}

// AtomFeed represents the Atom feed structure.
type AtomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Title   string      `xml:"title"`
	Entries []AtomEntry `xml:"entry"`
}

// AtomEntry represents a single Atom entry.
type AtomEntry struct {
	Title     string      `xml:"title"`
	Link      AtomLink    `xml:"link"`
	Summary   string      `xml:"summary"`
	Content   AtomContent `xml:"content"`
	Published string      `xml:"published"`
	Updated   string      `xml:"updated"`
	ID        string      `xml:"id"`
	Category  struct {
		Term string `xml:"term,attr"`
	} `xml:"category"`
	GeoPoint string `xml:"http://www.georss.org/georss point"`
}

// AtomLink represents an Atom link element.
type AtomLink struct {
	Href string `xml:"href,attr"`
}

// AtomContent represents Atom content.
type AtomContent struct {
	Type  string `xml:"type,attr"`
	Value string `xml:",chardata"`
}

// Fetch downloads and parses the feed.
func (s *RSSSource) Fetch(ctx context.Context) (iter.Seq[models.Candidate], error) {
	b, err := s.fetcher.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}

	items, err := parseFeed(b.data)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}
	s.logger.Debug("parsed feed", "source", s.cfg.Name, "items", len(items))

	fetchedAt := time.Now()
	return seqOf(items, s.cfg.Options.MaxItems, func(item RSSItem) (models.Candidate, bool) {
		return s.candidate(item, fetchedAt)
	}), nil
}

func (s *RSSSource) candidate(item RSSItem, fetchedAt time.Time) (models.Candidate, bool) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		link = strings.TrimSpace(item.GUID)
	}

	title := cleanText(item.Title)
	if title == "" {
		s.logger.Debug("skipping feed item without title", "source", s.cfg.Name, "url", link)
		return models.Candidate{}, false
	}

	start := strings.TrimSpace(item.EventStart)
	if start == "" {
		start = strings.TrimSpace(item.PubDate)
	}

	c := models.Candidate{
		Title:        title,
		Description:  cleanText(item.Description),
		Start:        start,
		End:          strings.TrimSpace(item.EventEnd),
		LocationName: cleanText(item.EventLocation),
		Category:     item.Category,
		URL:          link,
		SourceName:   s.cfg.Name,
		SourceKind:   models.SourceKindRSS,
		FetchedAt:    fetchedAt,
	}
	if strings.HasPrefix(item.Enclosure.Type, "image/") {
		c.ImageURL = item.Enclosure.URL
	}
	c.Lat, c.Lon = parseGeoPoint(item.GeoPoint)
	return c, true
}

// parseFeed tries RSS 2.0 first and falls back to Atom, returning Atom
// entries converted to RSS items for unified processing.
func parseFeed(data []byte) ([]RSSItem, error) {
	var rss RSS
	rssErr := xml.Unmarshal(data, &rss)
	if rssErr == nil && len(rss.Channel.Items) > 0 {
		return rss.Channel.Items, nil
	}

	var atom AtomFeed
	atomErr := xml.Unmarshal(data, &atom)
	if atomErr == nil && len(atom.Entries) > 0 {
		items := make([]RSSItem, 0, len(atom.Entries))
		for _, entry := range atom.Entries {
			desc := entry.Summary
			if desc == "" {
				desc = entry.Content.Value
			}
			published := entry.Published
			if published == "" {
				published = entry.Updated
			}
			items = append(items, RSSItem{
				Title:       entry.Title,
				Link:        entry.Link.Href,
				Description: desc,
				PubDate:     published,
				GUID:        entry.ID,
				Category:    entry.Category.Term,
				GeoPoint:    entry.GeoPoint,
			})
		}
		return items, nil
	}

	if rssErr == nil || atomErr == nil {
		// A well-formed but empty feed is a valid answer.
		return nil, nil
	}
	return nil, fmt.Errorf("failed to parse as RSS (error: %v) or Atom (error: %v)", rssErr, atomErr)
}

// parseGeoPoint parses a GeoRSS "lat lon" pair.
func parseGeoPoint(raw string) (*float64, *float64) {
	parts := strings.Fields(raw)
	if len(parts) != 2 {
		return nil, nil
	}
	lat, err1 := strconv.ParseFloat(parts[0], 64)
	lon, err2 := strconv.ParseFloat(parts[1], 64)
	if err1 != nil || err2 != nil {
		return nil, nil
	}
	return &lat, &lon
}

var (
	tagPattern        = regexp.MustCompile(`<[^>]*>`)
	breakPattern      = regexp.MustCompile(`(?i)<(br\s*/?|/p|p)>`)
	blankLinesPattern = regexp.MustCompile(`\n{3,}`)
)

// cleanText removes HTML tags, decodes common entities and trims whitespace.
func cleanText(text string) string {
	text = breakPattern.ReplaceAllString(text, "\n")
	text = tagPattern.ReplaceAllString(text, "")
	text = entityReplacer.Replace(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.TrimSpace(strings.Join(lines, "\n"))
	return blankLinesPattern.ReplaceAllString(text, "\n\n")
}

var entityReplacer = strings.NewReplacer(
	"&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
)
