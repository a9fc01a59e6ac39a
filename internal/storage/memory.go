package storage

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/STRATINT/eventcurator/internal/models"
)

// MemoryStore keeps everything in memory. Archive writes for a month can be
// made to fail with FailArchive.
type MemoryStore struct {
	mu       sync.Mutex
	cols     models.Collections
	archive  map[string][]models.Event
	failures map[string]error
	saves    int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		archive:  make(map[string][]models.Event),
		failures: make(map[string]error),
	}
}

// FailArchive makes AppendArchive for month return err. A nil err clears
// the failure.
func (s *MemoryStore) FailArchive(month string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, month)
		return
	}
	s.failures[month] = err
}

// Saves returns how often Save succeeded.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Load(ctx context.Context) (models.Collections, error) {
	if err := ctx.Err(); err != nil {
		return models.Collections{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return models.Collections{
		Pending:   slices.Clone(s.cols.Pending),
		Published: slices.Clone(s.cols.Published),
		Rejected:  slices.Clone(s.cols.Rejected),
	}, nil
}

func (s *MemoryStore) Save(ctx context.Context, cols models.Collections) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := ValidateCollections(cols); err != nil {
		return fmt.Errorf("refusing to save invalid records: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cols = models.Collections{
		Pending:   slices.Clone(cols.Pending),
		Published: slices.Clone(cols.Published),
		Rejected:  slices.Clone(cols.Rejected),
	}
	s.saves++
	return nil
}

func (s *MemoryStore) AppendArchive(ctx context.Context, month string, events []models.Event) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := ValidateArchive(month, events); err != nil {
		return 0, fmt.Errorf("refusing to archive invalid records: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures[month]; err != nil {
		return 0, err
	}
	var added int
	s.archive[month], added = appendNew(s.archive[month], events)
	return added, nil
}

func (s *MemoryStore) LoadArchive(ctx context.Context, month string) ([]models.Event, error) {
	if err := ValidMonth(month); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.archive[month]), nil
}

func (s *MemoryStore) ArchiveMonths(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	months := make([]string, 0, len(s.archive))
	for m, events := range s.archive {
		if len(events) > 0 {
			months = append(months, m)
		}
	}
	sort.Strings(months)
	return months, nil
}
