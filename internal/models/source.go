package models

import (
	"strings"
	"time"
)

// SourceKind is the closed set of supported source implementations.
type SourceKind string

const (
	SourceKindRSS    SourceKind = "rss"    // RSS 2.0 or Atom feed
	SourceKindHTML   SourceKind = "html"   // HTML page scraped with selectors/heuristics
	SourceKindJSON   SourceKind = "json"   // JSON API polling
	SourceKindImage  SourceKind = "image"  // Flyer images routed through the image analyzer
	SourceKindSocial SourceKind = "social" // Social post feed routed through the AI gateway
)

// Valid reports whether k is a supported source kind.
func (k SourceKind) Valid() bool {
	switch k {
	case SourceKindRSS, SourceKindHTML, SourceKindJSON, SourceKindImage, SourceKindSocial:
		return true
	}
	return false
}

// Unstructured reports whether candidates of this kind need the image
// analyzer or AI gateway before validation.
func (k SourceKind) Unstructured() bool {
	return k == SourceKindImage || k == SourceKindSocial
}

// SourceConfig describes one configured event source.
type SourceConfig struct {
	Name    string        `yaml:"name" json:"name"`
	URL     string        `yaml:"url" json:"url"`
	Type    SourceKind    `yaml:"type" json:"type"`
	Enabled *bool         `yaml:"enabled" json:"enabled,omitempty"`
	Options SourceOptions `yaml:"options" json:"options"`
}

// IsEnabled treats a missing enabled flag as true.
func (c SourceConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// SourceOptions are the per-source filtering and fallback settings.
type SourceOptions struct {
	FilterAds       bool     `yaml:"filter_ads" json:"filter_ads"`
	ExcludeKeywords []string `yaml:"exclude_keywords" json:"exclude_keywords,omitempty"`
	MaxDaysAhead    int      `yaml:"max_days_ahead" json:"max_days_ahead,omitempty"`
	DefaultLocation *Place   `yaml:"default_location" json:"default_location,omitempty"`
	Category        string   `yaml:"category" json:"category,omitempty"`

	// HTML selectors; empty selectors fall back to heuristic extraction.
	ItemSelector     string `yaml:"item_selector" json:"item_selector,omitempty"`
	TitleSelector    string `yaml:"title_selector" json:"title_selector,omitempty"`
	DateSelector     string `yaml:"date_selector" json:"date_selector,omitempty"`
	LocationSelector string `yaml:"location_selector" json:"location_selector,omitempty"`
	LinkSelector     string `yaml:"link_selector" json:"link_selector,omitempty"`
	ImageSelector    string `yaml:"image_selector" json:"image_selector,omitempty"`

	// JSON API field mapping. ItemsPath is a dot separated path to the array.
	ItemsPath string            `yaml:"items_path" json:"items_path,omitempty"`
	Fields    map[string]string `yaml:"fields" json:"fields,omitempty"`

	MaxItems int `yaml:"max_items" json:"max_items,omitempty"`
}

// Place is a configured fallback location.
type Place struct {
	Name string  `yaml:"name" json:"name"`
	Lat  float64 `yaml:"lat" json:"lat"`
	Lon  float64 `yaml:"lon" json:"lon"`
}

// Candidate is a raw, unvalidated item produced by a source.
type Candidate struct {
	Title        string
	Description  string
	Start        string // unparsed, validated by the schema
	End          string
	LocationName string
	Lat          *float64
	Lon          *float64
	Category     string
	URL          string
	ImageURL     string

	// Unstructured payloads for the image analyzer / AI gateway.
	RawText string
	Image   []byte

	SourceName string
	SourceKind SourceKind
	FetchedAt  time.Time
}

// NeedsExtraction reports whether the candidate must be structured by the
// image analyzer or AI gateway first.
func (c *Candidate) NeedsExtraction() bool {
	if len(c.Image) > 0 {
		return true
	}
	return strings.TrimSpace(c.Title) == "" && strings.TrimSpace(c.RawText) != ""
}

func normalizeTag(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}
