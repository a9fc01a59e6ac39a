package imaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/STRATINT/eventcurator/internal/enrichment"
	"github.com/STRATINT/eventcurator/internal/models"
)

// ErrNoContent means an image yielded neither text nor coordinates.
var ErrNoContent = errors.New("image yielded neither text nor coordinates")

// TextExtractor structures OCR text. *enrichment.Gateway satisfies it.
type TextExtractor interface {
	Extract(ctx context.Context, text string, hint enrichment.Hint) (enrichment.Extraction, error)
}

// Analysis is what the analyzer learned from one image.
type Analysis struct {
	Lat      *float64   `json:"lat,omitempty"`
	Lon      *float64   `json:"lon,omitempty"`
	TakenAt  *time.Time `json:"taken_at,omitempty"`
	Text     string     `json:"text,omitempty"`
	OCR      bool       `json:"ocr"`
	Warnings []string   `json:"warnings,omitempty"`
}

// HasCoordinates reports whether EXIF GPS was found.
func (a Analysis) HasCoordinates() bool {
	return a.Lat != nil && a.Lon != nil
}

// Analyzer combines EXIF metadata and OCR text and hands the text to the
// AI gateway.
type Analyzer struct {
	exif     ExifReader
	ocr      OCRRunner
	text     TextExtractor
	location *time.Location
	logger   *slog.Logger
}

// NewAnalyzer creates an analyzer. ocr may be nil when OCR is disabled.
func NewAnalyzer(exif ExifReader, ocr OCRRunner, text TextExtractor, loc *time.Location, logger *slog.Logger) *Analyzer {
	if loc == nil {
		loc = time.UTC
	}
	return &Analyzer{exif: exif, ocr: ocr, text: text, location: loc, logger: logger}
}

// Analyze reads EXIF and runs OCR. Missing EXIF or OCR failures become
// warnings. When the image yields neither text nor coordinates it returns
// ErrOCRUnavailable if OCR could not run, ErrNoContent otherwise.
func (a *Analyzer) Analyze(ctx context.Context, image []byte) (Analysis, error) {
	var res Analysis
	if len(image) == 0 {
		return res, ErrNoContent
	}

	if a.exif != nil {
		md, err := a.exif.Read(image)
		if err != nil {
			res.Warnings = append(res.Warnings, "exif: "+err.Error())
		}
		res.Lat, res.Lon, res.TakenAt = md.Lat, md.Lon, md.TakenAt
	}

	ocrUnavailable := a.ocr == nil
	if a.ocr != nil {
		text, err := a.ocr.Recognize(ctx, image)
		switch {
		case err == nil:
			res.Text = strings.TrimSpace(text)
			res.OCR = true
		case errors.Is(err, ErrOCRUnavailable):
			ocrUnavailable = true
			res.Warnings = append(res.Warnings, err.Error())
		case ctx.Err() != nil:
			return res, ctx.Err()
		default:
			res.Warnings = append(res.Warnings, "ocr: "+err.Error())
		}
	} else {
		res.Warnings = append(res.Warnings, "ocr disabled")
	}

	if res.Text == "" && !res.HasCoordinates() {
		if ocrUnavailable {
			return res, ErrOCRUnavailable
		}
		return res, ErrNoContent
	}
	return res, nil
}

// Complete structures an analysis. Text already known about the image
// (post text, alt text) is combined with the OCR text, and EXIF coordinates
// win over coordinates guessed from text.
func (a *Analyzer) Complete(ctx context.Context, c models.Candidate, res Analysis) (models.Candidate, error) {
	text := strings.TrimSpace(strings.Join(nonEmpty(c.Title, c.Description, c.RawText, res.Text), "\n"))
	if text == "" {
		return c, fmt.Errorf("no text to extract an event from: %w", enrichment.ErrNoEvent)
	}
	if a.text == nil {
		return c, fmt.Errorf("no text extractor: %w", enrichment.ErrProviderUnavailable)
	}

	if c.Lat == nil && c.Lon == nil && res.HasCoordinates() {
		c.Lat, c.Lon = res.Lat, res.Lon
	}

	ex, err := a.text.Extract(ctx, text, enrichment.Hint{
		Source:   c.SourceName,
		Location: a.location,
		Place:    c.LocationName,
		TakenAt:  res.TakenAt,
	})
	if err != nil {
		return c, err
	}

	a.logger.Debug("structured image",
		"source", c.SourceName,
		"provider", ex.Provider,
		"ocr_chars", len(res.Text),
		"exif_gps", res.HasCoordinates())

	out := enrichment.Fill(c, *ex.Candidate)
	out.Image = nil
	return out, nil
}

// Structure analyzes the candidate's image and extracts an event from it.
func (a *Analyzer) Structure(ctx context.Context, c models.Candidate) (models.Candidate, error) {
	res, err := a.Analyze(ctx, c.Image)
	for _, w := range res.Warnings {
		a.logger.Debug("image analysis warning", "source", c.SourceName, "image_url", c.ImageURL, "warning", w)
	}
	if err != nil {
		// Post text may still describe the event.
		if strings.TrimSpace(c.Title+c.Description+c.RawText) == "" || ctx.Err() != nil {
			return c, err
		}
	}
	return a.Complete(ctx, c, res)
}

func nonEmpty(parts ...string) []string {
	out := parts[:0:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
