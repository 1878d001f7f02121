package ports

import (
	"context"

	"github.com/metacode/fiches-api/internal/core/auth"
	"github.com/metacode/fiches-api/internal/core/domain"
)

// RecordService is the use-case surface for records. Every method evaluates
// the access policy for its action against the caller before doing any work.
type RecordService interface {
	// Authorize runs the access policy alone, so transports can refuse a
	// caller before reading the request body.
	Authorize(caller domain.Caller, action auth.Action) error
	Create(ctx context.Context, caller domain.Caller, fields domain.RecordFields) (*domain.Record, error)
	Get(ctx context.Context, caller domain.Caller, id string) (*domain.Record, error)
	List(ctx context.Context, caller domain.Caller) ([]*domain.Record, error)
	Search(ctx context.Context, caller domain.Caller, query string) ([]*domain.Record, error)
	SetVisibility(ctx context.Context, caller domain.Caller, id string, visible bool) (*domain.Record, error)
	SetDownloadable(ctx context.Context, caller domain.Caller, id string, downloadable bool) (*domain.Record, error)
	Update(ctx context.Context, caller domain.Caller, id string, fields domain.RecordFields) (*domain.Record, error)
	Delete(ctx context.Context, caller domain.Caller, id string) error
	BulkCreate(ctx context.Context, caller domain.Caller, list []domain.RecordFields) ([]*domain.Record, error)
	Stats(ctx context.Context, caller domain.Caller, period string) ([]domain.StatBucket, error)
}
