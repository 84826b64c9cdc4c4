package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/cermatapp/cermat/internal/models"
)

// Store is the history store: a sqlite-backed ordered log plus a keyword
// index over title/abstract/keywords for the search filter. Every mutation
// is persisted before it returns.
type Store struct {
	storage Storage
	index   *Index
	logger  *zap.Logger

	mu     sync.Mutex
	lastID int64
}

// NewStore wires storage and index together. The id high-water mark is
// restored from storage so ids stay monotonic across restarts.
func NewStore(storage Storage, index *Index, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	last, err := storage.MaxID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to read id high-water mark: %w", err)
	}
	return &Store{storage: storage, index: index, logger: logger, lastID: last}, nil
}

// nextID allocates the record id: the creation timestamp in milliseconds,
// bumped past the previous id so two saves in the same millisecond cannot
// collide.
func (s *Store) nextID(now time.Time) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := now.UnixMilli()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	return id
}

// Append assigns the record its id and timestamp, persists it, and indexes
// its searchable fields. The record is never mutated after this.
func (s *Store) Append(ctx context.Context, rec *models.ClassificationRecord) error {
	now := time.Now()
	rec.ID = s.nextID(now)
	rec.Timestamp = now
	if err := s.storage.Append(ctx, rec); err != nil {
		return fmt.Errorf("failed to persist record: %w", err)
	}
	if err := s.index.Add(rec); err != nil {
		// The log is the source of truth; a failed index write only degrades
		// the search filter for this record.
		s.logger.Warn("failed to index history record", zap.Int64("id", rec.ID), zap.Error(err))
	}
	return nil
}

// Get returns a record by id.
func (s *Store) Get(ctx context.Context, id int64) (*models.ClassificationRecord, error) {
	return s.storage.Get(ctx, id)
}

// Remove deletes one record. Removing an absent id succeeds and changes
// nothing.
func (s *Store) Remove(ctx context.Context, id int64) error {
	if err := s.storage.Remove(ctx, id); err != nil {
		return err
	}
	if err := s.index.Delete(id); err != nil {
		s.logger.Warn("failed to unindex history record", zap.Int64("id", id), zap.Error(err))
	}
	return nil
}

// RemoveMany deletes a batch of records.
func (s *Store) RemoveMany(ctx context.Context, ids []int64) error {
	if err := s.storage.RemoveMany(ctx, ids); err != nil {
		return err
	}
	for _, id := range ids {
		if err := s.index.Delete(id); err != nil {
			s.logger.Warn("failed to unindex history record", zap.Int64("id", id), zap.Error(err))
		}
	}
	return nil
}

// List applies the full filter to the full sequence, then slices to limit.
// Records come back newest-first.
func (s *Store) List(ctx context.Context, filter models.HistoryFilter, limit int) ([]*models.ClassificationRecord, error) {
	var searchIDs map[int64]bool
	if filter.Search != "" {
		ids, err := s.index.Search(filter.Search)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, nil
		}
		searchIDs = ids
	}

	// Type and SDG constraints are pushed into SQL; search and date are
	// applied here, before the display slice is taken.
	recs, err := s.storage.List(ctx, filter, 0)
	if err != nil {
		return nil, err
	}
	out := make([]*models.ClassificationRecord, 0, len(recs))
	for _, rec := range recs {
		if searchIDs != nil && !searchIDs[rec.ID] {
			continue
		}
		if filter.Date != "" && rec.Timestamp.Local().Format("2006-01-02") != filter.Date {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// Stats counts over the full stored sequence.
func (s *Store) Stats(ctx context.Context) (models.HistoryStats, error) {
	return s.storage.Stats(ctx)
}

// Close closes the underlying storage and index.
func (s *Store) Close() error {
	storageErr := s.storage.Close()
	indexErr := s.index.Close()
	if storageErr != nil {
		return storageErr
	}
	return indexErr
}
