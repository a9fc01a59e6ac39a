package ingestion

import (
	"context"
	"iter"
	"log/slog"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// SocialSource reads a JSON feed of posts (text, optional image). Posts are
// unstructured and routed through the image analyzer or AI gateway.
// Field names follow Options.Fields with keys "text", "image", "url".
type SocialSource struct {
	cfg     models.SourceConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewSocialSource creates a social post source.
func NewSocialSource(cfg models.SourceConfig, f *fetcher, logger *slog.Logger) *SocialSource {
	return &SocialSource{cfg: cfg, fetcher: f, logger: logger}
}

func (s *SocialSource) Name() string                  { return s.cfg.Name }
func (s *SocialSource) Kind() models.SourceKind       { return models.SourceKindSocial }
func (s *SocialSource) Options() models.SourceOptions { return s.cfg.Options }

// Post fields addressable through Options.Fields.
var socialFields = []string{"text", "image", "url"}

// Fetch downloads the post list. Images attached to text-less posts are
// downloaded lazily.
func (s *SocialSource) Fetch(ctx context.Context) (iter.Seq[models.Candidate], error) {
	b, err := s.fetcher.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}

	path := s.cfg.Options.ItemsPath
	if path == "" {
		path = "posts"
	}
	posts, err := jsonItems(b.data, path)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}

	fetchedAt := time.Now()
	return seqOf(posts, s.cfg.Options.MaxItems, func(post map[string]any) (models.Candidate, bool) {
		field := func(name string) string {
			if mapped, ok := s.cfg.Options.Fields[name]; ok && mapped != "" {
				name = mapped
			}
			return stringValue(lookup(post, name))
		}

		c := models.Candidate{
			RawText:    cleanText(field("text")),
			ImageURL:   field("image"),
			URL:        field("url"),
			SourceName: s.cfg.Name,
			SourceKind: models.SourceKindSocial,
			FetchedAt:  fetchedAt,
		}
		if c.RawText == "" && c.ImageURL == "" {
			return models.Candidate{}, false
		}
		if c.RawText == "" {
			img, err := s.fetcher.get(ctx, c.ImageURL)
			if err != nil || !isImage(img.contentType) {
				s.logger.Warn("skipping post image", "source", s.cfg.Name, "url", c.ImageURL, "error", err)
				return models.Candidate{}, false
			}
			c.Image = img.data
		}
		return c, true
	}), nil
}
