package imaging

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/STRATINT/eventcurator/internal/enrichment"
	"github.com/STRATINT/eventcurator/internal/models"
)

type stubExif struct {
	md  Metadata
	err error
}

func (s stubExif) Read([]byte) (Metadata, error) { return s.md, s.err }

type stubOCR struct {
	text string
	err  error
}

func (s stubOCR) Recognize(context.Context, []byte) (string, error) { return s.text, s.err }

type stubExtractor struct {
	candidate *models.Candidate
	err       error
	gotText   string
	gotHint   enrichment.Hint
}

func (s *stubExtractor) Extract(_ context.Context, text string, hint enrichment.Hint) (enrichment.Extraction, error) {
	s.gotText, s.gotHint = text, hint
	if s.err != nil {
		return enrichment.Extraction{}, s.err
	}
	return enrichment.Extraction{Candidate: s.candidate, Provider: "stub"}, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAnalyzer_Analyze(t *testing.T) {
	taken := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	gps := Metadata{Lat: models.Float64(50.31), Lon: models.Float64(11.92), TakenAt: &taken}

	tests := []struct {
		name         string
		exif         ExifReader
		ocr          OCRRunner
		wantErr      error
		wantText     string
		wantCoords   bool
		wantWarnings int
	}{
		{
			name:       "exif and text",
			exif:       stubExif{md: gps},
			ocr:        stubOCR{text: "JAZZ NIGHT"},
			wantText:   "JAZZ NIGHT",
			wantCoords: true,
		},
		{
			name:         "no exif but text",
			exif:         stubExif{err: ErrNoExif},
			ocr:          stubOCR{text: "Flohmarkt 4.4."},
			wantText:     "Flohmarkt 4.4.",
			wantWarnings: 1,
		},
		{
			name:         "ocr unavailable with gps",
			exif:         stubExif{md: gps},
			ocr:          stubOCR{err: ErrOCRUnavailable},
			wantCoords:   true,
			wantWarnings: 1,
		},
		{
			name:         "nothing usable without ocr",
			exif:         stubExif{err: ErrNoExif},
			ocr:          stubOCR{err: ErrOCRUnavailable},
			wantErr:      ErrOCRUnavailable,
			wantWarnings: 2,
		},
		{
			name:         "ocr ran but found nothing",
			exif:         stubExif{err: ErrNoExif},
			ocr:          stubOCR{text: "  "},
			wantErr:      ErrNoContent,
			wantWarnings: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewAnalyzer(tt.exif, tt.ocr, nil, time.UTC, discardLogger())
			res, err := a.Analyze(context.Background(), []byte("image"))
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Analyze() error = %v, want %v", err, tt.wantErr)
			}
			if res.Text != tt.wantText {
				t.Errorf("Text = %q, want %q", res.Text, tt.wantText)
			}
			if res.HasCoordinates() != tt.wantCoords {
				t.Errorf("HasCoordinates() = %v, want %v", res.HasCoordinates(), tt.wantCoords)
			}
			if len(res.Warnings) != tt.wantWarnings {
				t.Errorf("Warnings = %v, want %d", res.Warnings, tt.wantWarnings)
			}
		})
	}
}

func TestAnalyzer_StructureBackfillsExif(t *testing.T) {
	taken := time.Date(2026, 3, 1, 18, 30, 0, 0, time.UTC)
	extractor := &stubExtractor{candidate: &models.Candidate{
		Title:        "Jazz Night",
		Start:        "2026-03-14T20:00",
		LocationName: "Stadtpark",
		Lat:          models.Float64(1),
		Lon:          models.Float64(1),
		Category:     "music",
	}}
	a := NewAnalyzer(
		stubExif{md: Metadata{Lat: models.Float64(50.31), Lon: models.Float64(11.92), TakenAt: &taken}},
		stubOCR{text: "JAZZ NIGHT\n14.03. 20 Uhr"},
		extractor,
		time.UTC,
		discardLogger(),
	)

	out, err := a.Structure(context.Background(), models.Candidate{
		Image:      []byte("jpeg"),
		ImageURL:   "https://example.org/flyer.jpg",
		SourceName: "hof-flyers",
	})
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if out.Title != "Jazz Night" || out.Start != "2026-03-14T20:00" {
		t.Errorf("Structure() = %q/%q", out.Title, out.Start)
	}
	if *out.Lat != 50.31 || *out.Lon != 11.92 {
		t.Errorf("coords = %v,%v, want EXIF coords", *out.Lat, *out.Lon)
	}
	if out.Image != nil {
		t.Error("image payload kept after structuring")
	}
	if extractor.gotText != "JAZZ NIGHT\n14.03. 20 Uhr" {
		t.Errorf("extractor text = %q", extractor.gotText)
	}
	if extractor.gotHint.TakenAt == nil || !extractor.gotHint.TakenAt.Equal(taken) {
		t.Errorf("hint TakenAt = %v, want %v", extractor.gotHint.TakenAt, taken)
	}
	if extractor.gotHint.Source != "hof-flyers" {
		t.Errorf("hint Source = %q", extractor.gotHint.Source)
	}
}

func TestAnalyzer_StructureUsesPostTextWithoutOCR(t *testing.T) {
	extractor := &stubExtractor{candidate: &models.Candidate{Title: "Lauftreff", Start: "2026-04-02T18:00"}}
	a := NewAnalyzer(stubExif{err: ErrNoExif}, nil, extractor, time.UTC, discardLogger())

	out, err := a.Structure(context.Background(), models.Candidate{
		RawText: "Lauftreff am Donnerstag 18 Uhr",
		Image:   []byte("jpeg"),
	})
	if err != nil {
		t.Fatalf("Structure() error = %v", err)
	}
	if out.Title != "Lauftreff" {
		t.Errorf("Title = %q, want Lauftreff", out.Title)
	}
	if extractor.gotText != "Lauftreff am Donnerstag 18 Uhr" {
		t.Errorf("extractor text = %q", extractor.gotText)
	}
}

func TestAnalyzer_StructureNothingUsable(t *testing.T) {
	extractor := &stubExtractor{}
	a := NewAnalyzer(stubExif{err: ErrNoExif}, stubOCR{err: ErrOCRUnavailable}, extractor, time.UTC, discardLogger())

	_, err := a.Structure(context.Background(), models.Candidate{Image: []byte("jpeg")})
	if !errors.Is(err, ErrOCRUnavailable) {
		t.Errorf("Structure() error = %v, want ErrOCRUnavailable", err)
	}
	if extractor.gotText != "" {
		t.Error("extractor called for unusable image")
	}
}

func TestAnalyzer_StructureGPSOnly(t *testing.T) {
	extractor := &stubExtractor{}
	a := NewAnalyzer(
		stubExif{md: Metadata{Lat: models.Float64(50.31), Lon: models.Float64(11.92)}},
		stubOCR{err: ErrOCRUnavailable},
		extractor,
		time.UTC,
		discardLogger(),
	)

	_, err := a.Structure(context.Background(), models.Candidate{Image: []byte("jpeg")})
	if !errors.Is(err, enrichment.ErrNoEvent) {
		t.Errorf("Structure() error = %v, want ErrNoEvent", err)
	}
}
