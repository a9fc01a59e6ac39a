package eventmanager

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/STRATINT/eventcurator/internal/models"
)

// PartitionResult reports one archive partition write.
type PartitionResult struct {
	Month    string `json:"month"`
	Eligible int    `json:"eligible"`
	Appended int    `json:"appended"`
	Err      error  `json:"-"`
	Error    string `json:"error,omitempty"`
}

// ArchiveSummary reports an archive run.
type ArchiveSummary struct {
	Eligible   int               `json:"eligible"`
	Archived   int               `json:"archived"`
	Failed     int               `json:"failed"`
	Partitions []PartitionResult `json:"partitions,omitempty"`
}

// Archive moves published events whose start (or first_seen) is at least
// the retention window before now into their monthly partition. A failed
// partition write leaves its events published for the next run.
func (m *Manager) Archive(ctx context.Context, now time.Time) (ArchiveSummary, error) {
	var summary ArchiveSummary

	cols, err := m.store.Load(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load collections: %w", err)
	}

	cutoff := now.Add(-m.config.Retention)
	byMonth := make(map[string][]models.Event)
	for _, e := range cols.Published {
		if e.ReferenceTime().After(cutoff) {
			continue
		}
		month := e.ArchiveMonth(m.config.Location)
		archived := e
		archived.Status = models.EventStatusArchived
		archivedAt := now
		archived.ArchivedAt = &archivedAt
		byMonth[month] = append(byMonth[month], archived)
		summary.Eligible++
	}

	if summary.Eligible == 0 {
		m.logger.Debug("nothing to archive", "cutoff", cutoff)
		return summary, nil
	}

	months := make([]string, 0, len(byMonth))
	for month := range byMonth {
		months = append(months, month)
	}
	slices.Sort(months)

	for _, month := range months {
		events := byMonth[month]
		part := PartitionResult{Month: month, Eligible: len(events)}

		added, err := m.store.AppendArchive(ctx, month, events)
		if err != nil {
			part.Err = err
			part.Error = err.Error()
			summary.Failed += len(events)
			summary.Partitions = append(summary.Partitions, part)
			m.logger.Error("archive partition failed", "month", month, "events", len(events), "error", err)
			continue
		}

		// Events already in the partition are still removed from published.
		part.Appended = added
		for _, e := range events {
			cols.Remove(e.ID, models.EventStatusPublished)
		}
		summary.Archived += len(events)
		summary.Partitions = append(summary.Partitions, part)
		m.logger.Info("archived partition", "month", month, "events", len(events), "appended", added)
	}

	if summary.Archived > 0 {
		if err := m.store.Save(ctx, cols); err != nil {
			return summary, fmt.Errorf("failed to save collections: %w", err)
		}
	}
	return summary, nil
}
