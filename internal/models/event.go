package models

import (
	"time"
)

// Event is a curated event record. Its Status decides which collection it
// lives in.
type Event struct {
	ID           string      `json:"id"`
	Title        string      `json:"title"`
	Description  string      `json:"description,omitempty"`
	Start        time.Time   `json:"start"`
	End          *time.Time  `json:"end,omitempty"`
	Location     Location    `json:"location"`
	Category     Category    `json:"category"`
	Source       SourceRef   `json:"source"`
	AltSources   []SourceRef `json:"alt_sources,omitempty"`
	ImageURL     string      `json:"image_url,omitempty"`
	Status       EventStatus `json:"status"`
	FirstSeen    time.Time   `json:"first_seen"`
	LastSeen     time.Time   `json:"last_seen"`
	Fingerprint  string      `json:"fingerprint"`
	ArchivedAt   *time.Time  `json:"archived_at,omitempty"`
	RejectReason string      `json:"reject_reason,omitempty"`
}

// EventStatus represents the editorial state of an event.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"   // Scraped, awaiting review
	EventStatusPublished EventStatus = "published" // Visible on the map
	EventStatusRejected  EventStatus = "rejected"  // Terminal, kept for audit and re-ingestion checks
	EventStatusArchived  EventStatus = "archived"  // Moved to a monthly partition
)

// Valid reports whether s is one of the known statuses.
func (s EventStatus) Valid() bool {
	switch s {
	case EventStatusPending, EventStatusPublished, EventStatusRejected, EventStatusArchived:
		return true
	}
	return false
}

// Category is the display tag of an event.
type Category string

const (
	CategoryMusic     Category = "music"
	CategorySports    Category = "sports"
	CategoryCommunity Category = "community"
	CategoryCulture   Category = "culture"
	CategoryTheatre   Category = "theatre"
	CategoryFamily    Category = "family"
	CategoryMarket    Category = "market"
	CategoryEducation Category = "education"
	CategoryNightlife Category = "nightlife"
	CategoryOther     Category = "other"
)

// Categories lists every known category.
var Categories = []Category{
	CategoryMusic, CategorySports, CategoryCommunity, CategoryCulture, CategoryTheatre,
	CategoryFamily, CategoryMarket, CategoryEducation, CategoryNightlife, CategoryOther,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCategory maps a free-form tag onto a known category, falling back to
// CategoryOther.
func ParseCategory(raw string) Category {
	c := Category(normalizeTag(raw))
	if c.Valid() {
		return c
	}
	if alias, ok := categoryAliases[string(c)]; ok {
		return alias
	}
	return CategoryOther
}

var categoryAliases = map[string]Category{
	"concert":   CategoryMusic,
	"konzert":   CategoryMusic,
	"musik":     CategoryMusic,
	"sport":     CategorySports,
	"theater":   CategoryTheatre,
	"kultur":    CategoryCulture,
	"art":       CategoryCulture,
	"kunst":     CategoryCulture,
	"kids":      CategoryFamily,
	"familie":   CategoryFamily,
	"markt":     CategoryMarket,
	"flohmarkt": CategoryMarket,
	"workshop":  CategoryEducation,
	"vortrag":   CategoryEducation,
	"party":     CategoryNightlife,
	"club":      CategoryNightlife,
	"verein":    CategoryCommunity,
}

// Location is a named place with optional coordinates.
type Location struct {
	Name string   `json:"name,omitempty"`
	Lat  *float64 `json:"lat,omitempty"`
	Lon  *float64 `json:"lon,omitempty"`
}

// HasCoordinates reports whether both coordinates are set.
func (l Location) HasCoordinates() bool {
	return l.Lat != nil && l.Lon != nil
}

// SourceRef records which configured source produced an event.
type SourceRef struct {
	Name string `json:"name"`
	URL  string `json:"url,omitempty"`
}

// ReferenceTime is the date used for archiving: Start, or FirstSeen when Start
// is unset.
func (e *Event) ReferenceTime() time.Time {
	if !e.Start.IsZero() {
		return e.Start
	}
	return e.FirstSeen
}

// ArchiveMonth returns the YYYY-MM partition an event belongs to, with the
// month taken in loc.
func (e *Event) ArchiveMonth(loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return e.ReferenceTime().In(loc).Format("2006-01")
}

// Float64 returns a pointer to v.
func Float64(v float64) *float64 {
	return &v
}
