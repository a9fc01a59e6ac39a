package ingestion

import (
	"bytes"
	"context"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/STRATINT/eventcurator/internal/models"
)

// ImageSource yields flyer images for the image analyzer. The URL is either
// a direct image or a page whose <img> elements (optionally narrowed by
// Options.ImageSelector) are downloaded one by one as the sequence is
// consumed.
type ImageSource struct {
	cfg     models.SourceConfig
	fetcher *fetcher
	logger  *slog.Logger
}

// NewImageSource creates a flyer image source.
func NewImageSource(cfg models.SourceConfig, f *fetcher, logger *slog.Logger) *ImageSource {
	return &ImageSource{cfg: cfg, fetcher: f, logger: logger}
}

func (s *ImageSource) Name() string                  { return s.cfg.Name }
func (s *ImageSource) Kind() models.SourceKind       { return models.SourceKindImage }
func (s *ImageSource) Options() models.SourceOptions { return s.cfg.Options }

// Fetch resolves the image list. Individual download failures are logged
// and skipped so one broken image does not fail the source.
func (s *ImageSource) Fetch(ctx context.Context) (iter.Seq[models.Candidate], error) {
	b, err := s.fetcher.get(ctx, s.cfg.URL)
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}

	fetchedAt := time.Now()
	if isImage(b.contentType) {
		c := s.candidate(b.finalURL, b.data, fetchedAt)
		return func(yield func(models.Candidate) bool) { yield(c) }, nil
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(b.data))
	if err != nil {
		return nil, &SourceUnavailableError{Source: s.cfg.Name, Err: err}
	}
	base, _ := url.Parse(b.finalURL)

	selector := s.cfg.Options.ImageSelector
	if selector == "" {
		selector = "img[src]"
	}

	seen := make(map[string]bool)
	var urls []string
	doc.Find(selector).Each(func(_ int, sel *goquery.Selection) {
		src, ok := sel.Attr("src")
		if !ok {
			src, ok = sel.Attr("href")
		}
		if !ok || strings.HasPrefix(src, "data:") {
			return
		}
		abs := resolve(base, strings.TrimSpace(src))
		if abs != "" && !seen[abs] {
			seen[abs] = true
			urls = append(urls, abs)
		}
	})
	s.logger.Debug("found images", "source", s.cfg.Name, "images", len(urls))

	return seqOf(urls, s.cfg.Options.MaxItems, func(imageURL string) (models.Candidate, bool) {
		img, err := s.fetcher.get(ctx, imageURL)
		if err != nil {
			s.logger.Warn("skipping image", "source", s.cfg.Name, "url", imageURL, "error", err)
			return models.Candidate{}, false
		}
		if !isImage(img.contentType) {
			s.logger.Debug("skipping non-image link", "source", s.cfg.Name, "url", imageURL, "content_type", img.contentType)
			return models.Candidate{}, false
		}
		return s.candidate(imageURL, img.data, fetchedAt), true
	}), nil
}

func (s *ImageSource) candidate(imageURL string, data []byte, fetchedAt time.Time) models.Candidate {
	return models.Candidate{
		URL:        s.cfg.URL,
		ImageURL:   imageURL,
		Image:      data,
		SourceName: s.cfg.Name,
		SourceKind: models.SourceKindImage,
		FetchedAt:  fetchedAt,
	}
}

func isImage(contentType string) bool {
	return strings.HasPrefix(strings.ToLower(contentType), "image/")
}
