package ports

import (
	"context"

	"github.com/metacode/fiches-api/internal/core/domain"
)

// RecordRepository is the store of records. Every method fails with
// domain.ErrNotFound, domain.ErrValidation or domain.ErrStoreUnavailable.
type RecordRepository interface {
	// Create validates fields, applies defaults and inserts a record.
	Create(ctx context.Context, fields domain.RecordFields) (*domain.Record, error)
	FindByID(ctx context.Context, id string) (*domain.Record, error)
	FindAll(ctx context.Context) ([]*domain.Record, error)
	// Search matches query as a case-insensitive substring of the title.
	// An empty query matches every record.
	Search(ctx context.Context, query string) ([]*domain.Record, error)
	// UpdateField sets a single boolean flag and returns the updated record.
	UpdateField(ctx context.Context, id string, field domain.Field, value bool) (*domain.Record, error)
	// Replace applies fields to the record, preserving its id and creation time.
	Replace(ctx context.Context, id string, fields domain.RecordFields) (*domain.Record, error)
	// Delete removes the record and returns it as it was stored, so callers
	// see the canonical id whatever spelling of it they passed.
	Delete(ctx context.Context, id string) (*domain.Record, error)
	// BulkCreate inserts the complete entries of list, in order.
	BulkCreate(ctx context.Context, list []domain.RecordFields) ([]*domain.Record, error)
	// CountByPeriod counts records per creation bucket, most recent bucket first.
	CountByPeriod(ctx context.Context, period domain.Period) ([]domain.StatBucket, error)
}
