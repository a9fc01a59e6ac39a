package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/STRATINT/eventcurator/internal/models"
)

const archiveDir = "archive"

// FileStore keeps each collection in a JSON document under a data
// directory: pending.json, published.json, rejected.json and
// archive/YYYY-MM.json. Every write goes to a temp file that is renamed
// into place.
type FileStore struct {
	dir    string
	mu     sync.Mutex
	logger *slog.Logger
}

// NewFileStore creates the data directory if needed.
func NewFileStore(dir string, logger *slog.Logger) (*FileStore, error) {
	if err := os.MkdirAll(filepath.Join(dir, archiveDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &FileStore{dir: dir, logger: logger}, nil
}

func (s *FileStore) collectionPath(status models.EventStatus) string {
	return filepath.Join(s.dir, string(status)+".json")
}

func (s *FileStore) archivePath(month string) string {
	return filepath.Join(s.dir, archiveDir, month+".json")
}

// Load reads the three collections. Missing files are empty collections.
func (s *FileStore) Load(ctx context.Context) (models.Collections, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var cols models.Collections
	for _, status := range []models.EventStatus{models.EventStatusPending, models.EventStatusPublished, models.EventStatusRejected} {
		if err := ctx.Err(); err != nil {
			return models.Collections{}, err
		}
		events, err := readEvents(s.collectionPath(status))
		if err != nil {
			return models.Collections{}, err
		}
		*cols.Of(status) = events
	}
	return cols, nil
}

// Save validates and writes the three collections. Nothing is written when
// any record is invalid.
func (s *FileStore) Save(ctx context.Context, cols models.Collections) error {
	if err := ValidateCollections(cols); err != nil {
		return fmt.Errorf("refusing to save invalid records: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, status := range []models.EventStatus{models.EventStatusPending, models.EventStatusPublished, models.EventStatusRejected} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeEvents(s.collectionPath(status), *cols.Of(status)); err != nil {
			return err
		}
	}
	s.logger.Debug("saved collections",
		"pending", len(cols.Pending),
		"published", len(cols.Published),
		"rejected", len(cols.Rejected))
	return nil
}

// AppendArchive adds events not yet present to the partition file.
func (s *FileStore) AppendArchive(ctx context.Context, month string, events []models.Event) (int, error) {
	if err := ValidateArchive(month, events); err != nil {
		return 0, fmt.Errorf("refusing to archive invalid records: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.archivePath(month)
	existing, err := readEvents(path)
	if err != nil {
		return 0, err
	}

	appended, added := appendNew(existing, events)
	if added == 0 {
		return 0, nil
	}
	if err := writeEvents(path, appended); err != nil {
		return 0, err
	}
	s.logger.Debug("appended to archive", "month", month, "added", added, "total", len(appended))
	return added, nil
}

// LoadArchive reads one partition.
func (s *FileStore) LoadArchive(ctx context.Context, month string) ([]models.Event, error) {
	if err := ValidMonth(month); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return readEvents(s.archivePath(month))
}

// ArchiveMonths lists the partition files.
func (s *FileStore) ArchiveMonths(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(filepath.Join(s.dir, archiveDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	var months []string
	for _, entry := range entries {
		month, ok := strings.CutSuffix(entry.Name(), ".json")
		if !ok || entry.IsDir() || ValidMonth(month) != nil {
			continue
		}
		months = append(months, month)
	}
	sort.Strings(months)
	return months, nil
}

// appendNew appends the events whose ID is not in existing.
func appendNew(existing, events []models.Event) ([]models.Event, int) {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.ID] = true
	}
	added := 0
	for _, e := range events {
		if seen[e.ID] {
			continue
		}
		seen[e.ID] = true
		existing = append(existing, e)
		added++
	}
	return existing, added
}

func readEvents(path string) ([]models.Event, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []models.Event{}, nil
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}

	var events []models.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", filepath.Base(path), err)
	}
	if events == nil {
		events = []models.Event{}
	}
	return events, nil
}

func writeEvents(path string, events []models.Event) error {
	if events == nil {
		events = []models.Event{}
	}
	data, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", filepath.Base(path), err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", filepath.Base(path), err)
	}
	return nil
}
