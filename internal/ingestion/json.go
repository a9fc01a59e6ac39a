package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// JSONSource polls a JSON API. Options.ItemsPath locates the item array and
// Options.Fields maps candidate fields to item keys (dot paths allowed).
type JSONSource struct {
	cfg     models.SourceConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewJSONSource creates an API polling source.
func NewJSONSource(cfg models.SourceConfig, f *fetcher, logger *slog.Logger) *JSONSource {
	return &JSONSource{cfg: cfg, fetcher: f, logger: logger}
}

func (s *JSONSource) Name() string                  { return s.cfg.Name }
func (s *JSONSource) Kind() models.SourceKind       { return models.SourceKindJSON }
func (s *JSONSource) Options() models.SourceOptions { return s.cfg.Options }

// Candidate fields addressable through Options.Fields.
var jsonFields = []string{"title", "description", "start", "end", "location", "lat", "lon", "category", "url", "image"}

// Fetch downloads the document and yields one candidate per item.
func (s *JSONSource) Fetch(ctx context.Context) (iter.Seq[models.Candidate], error) {
	b, err := s.fetcher.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}

	items, err := jsonItems(b.data, s.cfg.Options.ItemsPath)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}
	s.logger.Debug("parsed api response", "source", s.cfg.Name, "items", len(items))

	fetchedAt := time.Now()
	return seqOf(items, s.cfg.Options.MaxItems, func(item map[string]any) (models.Candidate, bool) {
		return s.candidate(item, fetchedAt), true
	}), nil
}

func (s *JSONSource) candidate(item map[string]any, fetchedAt time.Time) models.Candidate {
	get := func(field string) any {
		key := field
		if mapped, ok := s.cfg.Options.Fields[field]; ok && mapped != "" {
			key = mapped
		}
		return lookup(item, key)
	}

	c := models.Candidate{
		Title:        stringValue(get("title")),
		Description:  cleanText(stringValue(get("description"))),
		Start:        stringValue(get("start")),
		End:          stringValue(get("end")),
		LocationName: stringValue(get("location")),
		Category:     stringValue(get("category")),
		URL:          stringValue(get("url")),
		ImageURL:     stringValue(get("image")),
		SourceName:   s.cfg.Name,
		SourceKind:   models.SourceKindJSON,
		FetchedAt:    fetchedAt,
	}
	lat, latOK := floatValue(get("lat"))
	lon, lonOK := floatValue(get("lon"))
	if latOK && lonOK {
		c.Lat, c.Lon = &lat, &lon
	}
	return c
}

// jsonItems decodes data and returns the objects found at path. An empty
// path expects a top-level array.
func jsonItems(data []byte, path string) ([]map[string]any, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decoding json: %w", err)
	}

	node := doc
	if path != "" {
		node = lookup(doc, path)
	}

	arr, ok := node.([]any)
	if !ok {
		return nil, fmt.Errorf("items path %q is not an array", path)
	}

	items := make([]map[string]any, 0, len(arr))
	for _, v := range arr {
		if m, ok := v.(map[string]any); ok {
			items = append(items, m)
		}
	}
	return items, nil
}

// lookup follows a dot separated path through nested objects.
func lookup(node any, path string) any {
	for _, key := range strings.Split(path, ".") {
		m, ok := node.(map[string]any)
		if !ok {
			return nil
		}
		node = m[key]
	}
	return node
}

func stringValue(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case map[string]any:
		// Nested location objects commonly carry a name.
		if name, ok := t["name"].(string); ok {
			return strings.TrimSpace(name)
		}
	}
	return ""
}

func floatValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}
