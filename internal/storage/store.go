package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
	"github.com/STRATINT/eventcurator/internal/schema"
)

// ErrInvalidMonth means an archive partition name is not YYYY-MM.
var ErrInvalidMonth = errors.New("invalid archive month")

// Store persists the status collections and the monthly archive
// partitions. Implementations validate every record before writing it.
type Store interface {
	// Load returns the pending, published and rejected collections.
	Load(ctx context.Context) (models.Collections, error)

	// Save replaces the pending, published and rejected collections.
	Save(ctx context.Context, cols models.Collections) error

	// AppendArchive appends events to the partition for month (YYYY-MM).
	// Events whose ID is already in the partition are skipped; the number
	// actually appended is returned.
	AppendArchive(ctx context.Context, month string, events []models.Event) (int, error)

	// LoadArchive returns the events of one partition.
	LoadArchive(ctx context.Context, month string) ([]models.Event, error)

	// ArchiveMonths lists the existing partitions in ascending order.
	ArchiveMonths(ctx context.Context) ([]string, error)
}

// ValidMonth checks a partition name.
func ValidMonth(month string) error {
	if _, err := time.Parse("2006-01", month); err != nil || len(month) != 7 {
		return fmt.Errorf("%w: %q", ErrInvalidMonth, month)
	}
	return nil
}

// ValidateCollections validates every record and checks that it sits in the
// collection matching its status and that IDs are unique per collection.
func ValidateCollections(cols models.Collections) error {
	var errs []error
	for _, status := range []models.EventStatus{models.EventStatusPending, models.EventStatusPublished, models.EventStatusRejected} {
		seen := make(map[string]bool)
		for _, e := range *cols.Of(status) {
			if seen[e.ID] {
				errs = append(errs, fmt.Errorf("event %q: duplicate id in %s", e.ID, status))
				continue
			}
			seen[e.ID] = true
			if e.Status != status {
				errs = append(errs, fmt.Errorf("event %q: status %s stored in %s", e.ID, e.Status, status))
				continue
			}
			if err := schema.Validate(e); err != nil {
				errs = append(errs, fmt.Errorf("event %q: %w", e.ID, err))
			}
		}
	}
	return errors.Join(errs...)
}

// ValidateArchive validates records bound for a partition.
func ValidateArchive(month string, events []models.Event) error {
	if err := ValidMonth(month); err != nil {
		return err
	}
	var errs []error
	for _, e := range events {
		if e.Status != models.EventStatusArchived {
			errs = append(errs, fmt.Errorf("event %q: status %s in archive", e.ID, e.Status))
			continue
		}
		if err := schema.Validate(e); err != nil {
			errs = append(errs, fmt.Errorf("event %q: %w", e.ID, err))
		}
	}
	return errors.Join(errs...)
}
