package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lib/pq"

	"github.com/STRATINT/eventcurator/internal/models"
	"github.com/STRATINT/eventcurator/internal/storage"
)

const archivePrefix = "archive:"

var statusCollections = []string{
	string(models.EventStatusPending),
	string(models.EventStatusPublished),
	string(models.EventStatusRejected),
}

// PostgresStore implements storage.Store on a single events table keyed by
// (collection, id). Payloads are stored as JSONB; archive partitions use
// the collection name "archive:YYYY-MM".
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

var _ storage.Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store on db. Run migrations first.
func NewPostgresStore(db *sql.DB, logger *slog.Logger) *PostgresStore {
	return &PostgresStore{db: db, logger: logger}
}

func archiveCollection(month string) string {
	return archivePrefix + month
}

// Load reads the three status collections.
func (s *PostgresStore) Load(ctx context.Context) (models.Collections, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT collection, payload
		FROM events
		WHERE collection = ANY($1)
		ORDER BY start_at, id
	`, pq.Array(statusCollections))
	if err != nil {
		return models.Collections{}, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var cols models.Collections
	for rows.Next() {
		var (
			collection string
			payload    []byte
		)
		if err := rows.Scan(&collection, &payload); err != nil {
			return models.Collections{}, fmt.Errorf("failed to scan event: %w", err)
		}
		var e models.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return models.Collections{}, fmt.Errorf("failed to decode event in %s: %w", collection, err)
		}
		list := cols.Of(models.EventStatus(collection))
		if list == nil {
			continue
		}
		*list = append(*list, e)
	}
	if err := rows.Err(); err != nil {
		return models.Collections{}, fmt.Errorf("failed to iterate events: %w", err)
	}
	return cols, nil
}

// Save replaces the three status collections in one transaction.
func (s *PostgresStore) Save(ctx context.Context, cols models.Collections) error {
	if err := storage.ValidateCollections(cols); err != nil {
		return fmt.Errorf("refusing to save invalid records: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM events WHERE collection = ANY($1)`, pq.Array(statusCollections)); err != nil {
		return fmt.Errorf("failed to clear collections: %w", err)
	}

	for _, collection := range statusCollections {
		for _, e := range *cols.Of(models.EventStatus(collection)) {
			if _, err := insertEvent(ctx, tx, collection, e, false); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit collections: %w", err)
	}
	s.logger.Debug("saved collections",
		"pending", len(cols.Pending),
		"published", len(cols.Published),
		"rejected", len(cols.Rejected))
	return nil
}

// AppendArchive inserts events into the partition, skipping IDs already
// archived there.
func (s *PostgresStore) AppendArchive(ctx context.Context, month string, events []models.Event) (int, error) {
	if err := storage.ValidateArchive(month, events); err != nil {
		return 0, fmt.Errorf("refusing to archive invalid records: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	added := 0
	for _, e := range events {
		inserted, err := insertEvent(ctx, tx, archiveCollection(month), e, true)
		if err != nil {
			return 0, err
		}
		if inserted {
			added++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit archive %s: %w", month, err)
	}
	return added, nil
}

func insertEvent(ctx context.Context, tx *sql.Tx, collection string, e models.Event, skipExisting bool) (bool, error) {
	payload, err := json.Marshal(e)
	if err != nil {
		return false, fmt.Errorf("failed to encode event %s: %w", e.ID, err)
	}

	query := `
		INSERT INTO events (collection, id, fingerprint, status, start_at, payload, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())`
	if skipExisting {
		query += ` ON CONFLICT (collection, id) DO NOTHING`
	}

	res, err := tx.ExecContext(ctx, query, collection, e.ID, e.Fingerprint, string(e.Status), e.Start, payload)
	if err != nil {
		return false, fmt.Errorf("failed to insert event %s into %s: %w", e.ID, collection, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n > 0, nil
}

// LoadArchive reads one partition.
func (s *PostgresStore) LoadArchive(ctx context.Context, month string) ([]models.Event, error) {
	if err := storage.ValidMonth(month); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload FROM events WHERE collection = $1 ORDER BY start_at, id
	`, archiveCollection(month))
	if err != nil {
		return nil, fmt.Errorf("failed to query archive %s: %w", month, err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan archived event: %w", err)
		}
		var e models.Event
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, fmt.Errorf("failed to decode archived event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ArchiveMonths lists partitions from the archive_months view.
func (s *PostgresStore) ArchiveMonths(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT month FROM archive_months ORDER BY month`)
	if err != nil {
		return nil, fmt.Errorf("failed to query archive months: %w", err)
	}
	defer rows.Close()

	var months []string
	for rows.Next() {
		var month string
		if err := rows.Scan(&month); err != nil {
			return nil, fmt.Errorf("failed to scan archive month: %w", err)
		}
		months = append(months, strings.TrimSpace(month))
	}
	return months, rows.Err()
}

// Health checks the connection.
func (s *PostgresStore) Health(ctx context.Context) error {
	return HealthCheck(ctx, s.db)
}

// PoolStats reports connection pool statistics.
func (s *PostgresStore) PoolStats() map[string]any {
	return Stats(s.db)
}
