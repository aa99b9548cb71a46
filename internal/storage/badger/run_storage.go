package badger

import (
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/ternarybob/jobscout/internal/interfaces"
	"github.com/ternarybob/jobscout/internal/models"
)

// RunStorage archives terminal scrape runs. The registry is the source
// of truth while a run is live; this store only ever sees finished
// runs, for post-hoc inspection and the retention sweep.
type RunStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewRunStorage creates a RunStorage backed by the given connection.
func NewRunStorage(db *BadgerDB, logger arbor.ILogger) *RunStorage {
	return &RunStorage{
		db:     db,
		logger: logger,
	}
}

var _ interfaces.RunArchive = (*RunStorage)(nil)

// SaveRun upserts a terminal run keyed by its run ID.
func (s *RunStorage) SaveRun(run *models.ScrapeRun) error {
	if run.RunID == "" {
		return fmt.Errorf("run ID is required")
	}
	if err := s.db.Store().Upsert(run.RunID, run); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}
	return nil
}

// GetRun loads an archived run.
func (s *RunStorage) GetRun(runID string) (*models.ScrapeRun, error) {
	var run models.ScrapeRun
	if err := s.db.Store().Get(runID, &run); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("run not found: %s", runID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns returns the owner's archived runs, newest first.
func (s *RunStorage) ListRuns(ownerID string, limit int) ([]*models.ScrapeRun, error) {
	query := badgerhold.Where("OwnerID").Eq(ownerID).SortBy("StartedAt").Reverse()
	if limit > 0 {
		query = query.Limit(limit)
	}

	var runs []*models.ScrapeRun
	if err := s.db.Store().Find(&runs, query); err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// PruneOlderThan deletes archived runs that started before the cutoff.
func (s *RunStorage) PruneOlderThan(maxAge time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-maxAge)

	var stale []*models.ScrapeRun
	if err := s.db.Store().Find(&stale, badgerhold.Where("StartedAt").Lt(cutoff)); err != nil {
		return 0, fmt.Errorf("failed to find stale runs: %w", err)
	}

	removed := 0
	for _, run := range stale {
		if err := s.db.Store().Delete(run.RunID, &models.ScrapeRun{}); err != nil {
			s.logger.Warn().Err(err).Str("run_id", run.RunID).Msg("Failed to prune archived run")
			continue
		}
		removed++
	}
	return removed, nil
}

// Close releases the underlying connection.
func (s *RunStorage) Close() error {
	return s.db.Close()
}
