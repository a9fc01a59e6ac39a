package ingestion

import (
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// Marker phrases for promotional items mixed into event listings.
var adMarkers = []string{
	"anzeige", "werbung", "sponsored", "advertisement", "gesponsert",
	"gewinnspiel", "gutschein", "rabatt", "promo code", "jetzt kaufen", "% off",
}

// OptionFilter applies a source's options to its candidates.
type OptionFilter struct {
	opts models.SourceOptions
}

// NewOptionFilter creates a filter for the given options.
func NewOptionFilter(opts models.SourceOptions) OptionFilter {
	return OptionFilter{opts: opts}
}

// Prepare back-fills the default category and location. Default coordinates
// only apply when the candidate names no other place.
func (f OptionFilter) Prepare(c *models.Candidate) {
	if strings.TrimSpace(c.Category) == "" && f.opts.Category != "" {
		c.Category = f.opts.Category
	}

	def := f.opts.DefaultLocation
	if def == nil {
		return
	}
	name := strings.TrimSpace(c.LocationName)
	if name == "" {
		c.LocationName = def.Name
	}
	if c.Lat == nil && c.Lon == nil && (name == "" || strings.EqualFold(name, def.Name)) {
		lat, lon := def.Lat, def.Lon
		c.Lat, c.Lon = &lat, &lon
	}
}

// Screen returns the reason a candidate is dropped, or "" to keep it.
func (f OptionFilter) Screen(c models.Candidate) string {
	text := strings.ToLower(c.Title + "\n" + c.Description + "\n" + c.RawText)

	if f.opts.FilterAds {
		for _, marker := range adMarkers {
			if strings.Contains(text, marker) {
				return "advertisement: " + marker
			}
		}
	}
	for _, kw := range f.opts.ExcludeKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(text, kw) {
			return "excluded keyword: " + kw
		}
	}
	return ""
}

// Horizon returns a drop reason when the event starts later than
// max_days_ahead from now. Zero disables the check.
func (f OptionFilter) Horizon(e models.Event, now time.Time) string {
	if f.opts.MaxDaysAhead <= 0 {
		return ""
	}
	if e.Start.After(now.AddDate(0, 0, f.opts.MaxDaysAhead)) {
		return "beyond max_days_ahead"
	}
	return ""
}
