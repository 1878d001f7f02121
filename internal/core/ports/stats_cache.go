package ports

import (
	"context"

	"github.com/metacode/fiches-api/internal/core/domain"
)

// StatsCache keeps computed creation statistics between mutations.
//
// Entries belong to a generation. Invalidate starts a new one, so a value
// computed before a mutation and stored after it is never read back.
// A miss is reported as (nil, false, nil).
type StatsCache interface {
	Generation(ctx context.Context) (int64, error)
	Get(ctx context.Context, gen int64, period domain.Period) ([]domain.StatBucket, bool, error)
	Set(ctx context.Context, gen int64, period domain.Period, buckets []domain.StatBucket) error
	Invalidate(ctx context.Context) error
}
