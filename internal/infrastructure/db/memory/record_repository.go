// Package memory provides process-local implementations of the repositories.
// They honour the same contracts as the Mongo implementations and back the
// "memory" store driver and the tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/metacode/fiches-api/internal/core/domain"
)

// RecordRepository keeps records in insertion order.
type RecordRepository struct {
	mu      sync.RWMutex
	records []*domain.Record
	now     func() time.Time
}

func NewRecordRepository() *RecordRepository {
	return &RecordRepository{now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the time source used for createdAt/updatedAt.
func (r *RecordRepository) WithClock(now func() time.Time) *RecordRepository {
	r.now = now
	return r
}

func clone(rec *domain.Record) *domain.Record {
	c := *rec
	return &c
}

func cloneAll(recs []*domain.Record) []*domain.Record {
	out := make([]*domain.Record, 0, len(recs))
	for _, rec := range recs {
		out = append(out, clone(rec))
	}
	return out
}

// indexOf accepts ids the way the Mongo store does: any hex spelling of an
// ObjectID.
func (r *RecordRepository) indexOf(id string) int {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return -1
	}
	canonical := oid.Hex()
	for i, rec := range r.records {
		if rec.ID == canonical {
			return i
		}
	}
	return -1
}

func (r *RecordRepository) Create(_ context.Context, fields domain.RecordFields) (*domain.Record, error) {
	rec, err := domain.NewRecord(fields, r.now())
	if err != nil {
		return nil, err
	}
	rec.ID = primitive.NewObjectID().Hex()

	r.mu.Lock()
	r.records = append(r.records, &rec)
	r.mu.Unlock()

	return clone(&rec), nil
}

func (r *RecordRepository) FindByID(_ context.Context, id string) (*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	return clone(r.records[i]), nil
}

func (r *RecordRepository) FindAll(_ context.Context) ([]*domain.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.records), nil
}

func (r *RecordRepository) Search(_ context.Context, query string) ([]*domain.Record, error) {
	needle := strings.ToLower(query)

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Record, 0)
	for _, rec := range r.records {
		if strings.Contains(strings.ToLower(rec.Title), needle) {
			out = append(out, clone(rec))
		}
	}
	return out, nil
}

func (r *RecordRepository) UpdateField(_ context.Context, id string, field domain.Field, value bool) (*domain.Record, error) {
	if !field.Valid() {
		return nil, fmt.Errorf("%w: unknown field %q", domain.ErrValidation, field)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	rec := r.records[i]
	switch field {
	case domain.FieldVisible:
		rec.Visible = value
	case domain.FieldDownloadable:
		rec.Downloadable = value
	}
	rec.UpdatedAt = r.now()
	return clone(rec), nil
}

func (r *RecordRepository) Replace(_ context.Context, id string, fields domain.RecordFields) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	updated := *r.records[i]
	if err := fields.Apply(&updated, r.now()); err != nil {
		return nil, err
	}
	r.records[i] = &updated
	return clone(&updated), nil
}

func (r *RecordRepository) Delete(_ context.Context, id string) (*domain.Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	i := r.indexOf(id)
	if i < 0 {
		return nil, domain.ErrNotFound
	}
	removed := r.records[i]
	r.records = append(r.records[:i], r.records[i+1:]...)
	return removed, nil
}

func (r *RecordRepository) BulkCreate(_ context.Context, list []domain.RecordFields) ([]*domain.Record, error) {
	valid, err := domain.FilterComplete(list)
	if err != nil {
		return nil, err
	}

	now := r.now()
	inserted := make([]*domain.Record, 0, len(valid))
	for _, f := range valid {
		rec, err := domain.NewRecord(f, now)
		if err != nil {
			return nil, err
		}
		rec.ID = primitive.NewObjectID().Hex()
		inserted = append(inserted, &rec)
	}

	r.mu.Lock()
	r.records = append(r.records, inserted...)
	r.mu.Unlock()

	return cloneAll(inserted), nil
}

func (r *RecordRepository) CountByPeriod(_ context.Context, period domain.Period) ([]domain.StatBucket, error) {
	if _, err := domain.ParsePeriod(string(period)); err != nil {
		return nil, err
	}

	r.mu.RLock()
	counts := make(map[string]int64)
	for _, rec := range r.records {
		counts[period.Bucket(rec.CreatedAt)]++
	}
	r.mu.RUnlock()

	out := make([]domain.StatBucket, 0, len(counts))
	for bucket, total := range counts {
		out = append(out, domain.StatBucket{Bucket: bucket, Total: total})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket > out[j].Bucket })
	return out, nil
}

// Insert stores a fully formed record as-is. Intended for seeding tests with
// explicit timestamps.
func (r *RecordRepository) Insert(rec domain.Record) *domain.Record {
	if rec.ID == "" {
		rec.ID = primitive.NewObjectID().Hex()
	}
	r.mu.Lock()
	r.records = append(r.records, &rec)
	r.mu.Unlock()
	return clone(&rec)
}
