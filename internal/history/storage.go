// Package history is the durable ordered log of saved classifications.
package history

import (
	"context"

	"github.com/cermatapp/cermat/internal/models"
)

// Storage defines persistence for classification records. Records are
// append-only: created once, never updated, only removed.
type Storage interface {
	Append(ctx context.Context, rec *models.ClassificationRecord) error
	Get(ctx context.Context, id int64) (*models.ClassificationRecord, error)
	// Remove deletes by id; removing an absent id is not an error.
	Remove(ctx context.Context, id int64) error
	RemoveMany(ctx context.Context, ids []int64) error
	// List returns records newest-first. A zero filter returns everything;
	// limit <= 0 means no limit.
	List(ctx context.Context, filter models.HistoryFilter, limit int) ([]*models.ClassificationRecord, error)
	// Stats counts over the full sequence, never a display slice.
	Stats(ctx context.Context) (models.HistoryStats, error)
	MaxID(ctx context.Context) (int64, error)
	Close() error
}
