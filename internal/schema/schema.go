package schema

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/STRATINT/eventcurator/internal/models"
)

// MaxTitleLength bounds the title in runes.
const MaxTitleLength = 300

// ValidationError reports the first field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

// Build turns a structured candidate into a pending event. Identity fields
// (ID, Fingerprint) are assigned later by the deduplicator.
func Build(c models.Candidate, now time.Time, loc *time.Location) (models.Event, error) {
	title := strings.TrimSpace(c.Title)
	if title == "" {
		return models.Event{}, ValidationError{Field: "title", Message: "title is required"}
	}
	if strings.TrimSpace(c.Start) == "" {
		return models.Event{}, ValidationError{Field: "start", Message: "start is required"}
	}

	start, err := ParseDate(c.Start, loc)
	if err != nil {
		return models.Event{}, ValidationError{Field: "start", Message: err.Error()}
	}

	e := models.Event{
		Title:       title,
		Description: strings.TrimSpace(c.Description),
		Start:       start,
		Location: models.Location{
			Name: strings.TrimSpace(c.LocationName),
			Lat:  c.Lat,
			Lon:  c.Lon,
		},
		Category:  models.ParseCategory(c.Category),
		Source:    models.SourceRef{Name: c.SourceName, URL: c.URL},
		ImageURL:  c.ImageURL,
		Status:    models.EventStatusPending,
		FirstSeen: now,
		LastSeen:  now,
	}

	if strings.TrimSpace(c.End) != "" {
		end, err := ParseDate(c.End, loc)
		if err != nil {
			return models.Event{}, ValidationError{Field: "end", Message: err.Error()}
		}
		// A bare end date on a single-day listing means "same day".
		if !HasClock(c.End) && end.Before(start) && sameDay(end, start) {
			end = start
		}
		e.End = &end
	}

	if err := validateContent(e); err != nil {
		return models.Event{}, err
	}
	return e, nil
}

// Validate checks a complete record. Every store calls it before writing.
func Validate(e models.Event) error {
	if strings.TrimSpace(e.ID) == "" {
		return ValidationError{Field: "id", Message: "id is required"}
	}
	if strings.TrimSpace(e.Fingerprint) == "" {
		return ValidationError{Field: "fingerprint", Message: "fingerprint is required"}
	}
	if !e.Status.Valid() {
		return ValidationError{Field: "status", Message: fmt.Sprintf("unknown status %q", e.Status)}
	}
	if e.FirstSeen.IsZero() || e.LastSeen.IsZero() {
		return ValidationError{Field: "first_seen", Message: "first_seen and last_seen are required"}
	}
	if e.LastSeen.Before(e.FirstSeen) {
		return ValidationError{Field: "last_seen", Message: "last_seen precedes first_seen"}
	}
	if e.Status == models.EventStatusArchived && e.ArchivedAt == nil {
		return ValidationError{Field: "archived_at", Message: "archived records need archived_at"}
	}
	return validateContent(e)
}

// ValidateAll validates every record and joins the failures.
func ValidateAll(events []models.Event) error {
	var errs []error
	for i := range events {
		if err := Validate(events[i]); err != nil {
			errs = append(errs, fmt.Errorf("event %q: %w", events[i].ID, err))
		}
	}
	return errors.Join(errs...)
}

func validateContent(e models.Event) error {
	if strings.TrimSpace(e.Title) == "" {
		return ValidationError{Field: "title", Message: "title is required"}
	}
	if utf8.RuneCountInString(e.Title) > MaxTitleLength {
		return ValidationError{Field: "title", Message: fmt.Sprintf("title exceeds %d characters", MaxTitleLength)}
	}
	if e.Start.IsZero() {
		return ValidationError{Field: "start", Message: "start is required"}
	}
	if e.End != nil && e.End.Before(e.Start) {
		return ValidationError{Field: "end", Message: "end precedes start"}
	}
	if (e.Location.Lat == nil) != (e.Location.Lon == nil) {
		return ValidationError{Field: "location", Message: "lat and lon must be set together"}
	}
	if e.Location.Lat != nil && (*e.Location.Lat < -90 || *e.Location.Lat > 90) {
		return ValidationError{Field: "location.lat", Message: "latitude out of range"}
	}
	if e.Location.Lon != nil && (*e.Location.Lon < -180 || *e.Location.Lon > 180) {
		return ValidationError{Field: "location.lon", Message: "longitude out of range"}
	}
	if !e.Category.Valid() {
		return ValidationError{Field: "category", Message: fmt.Sprintf("unknown category %q", e.Category)}
	}
	if strings.TrimSpace(e.Source.Name) == "" {
		return ValidationError{Field: "source", Message: "source name is required"}
	}
	return nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.In(a.Location()).Date()
	return ay == by && am == bm && ad == bd
}
