package memory

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metacode/fiches-api/internal/core/domain"
)

func str(s string) *string { return &s }
func flag(b bool) *bool    { return &b }

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func TestRecordRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	repo := NewRecordRepository().WithClock(fixedClock(now))

	rec, err := repo.Create(ctx, domain.RecordFields{Title: str("T"), Content: str("C")})
	require.NoError(t, err)
	assert.Len(t, rec.ID, 24, "ids are hex object ids")
	assert.True(t, rec.Visible)
	assert.False(t, rec.Downloadable)
	assert.Equal(t, now, rec.CreatedAt)

	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = repo.FindByID(ctx, "not-an-id")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Create(ctx, domain.RecordFields{Content: str("no title")})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordRepository_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository()
	rec, err := repo.Create(ctx, domain.RecordFields{Title: str("T")})
	require.NoError(t, err)

	rec.Title = "mutated"
	got, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "T", got.Title)
}

func TestRecordRepository_Search(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository()
	for _, title := range []string{"Alpha", "beta", "ALPHABET", "a.b"} {
		_, err := repo.Create(ctx, domain.RecordFields{Title: str(title)})
		require.NoError(t, err)
	}

	hits, err := repo.Search(ctx, "alpha")
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	all, err := repo.Search(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 4)

	// The query is literal text, not a pattern.
	dots, err := repo.Search(ctx, ".")
	require.NoError(t, err)
	require.Len(t, dots, 1)
	assert.Equal(t, "a.b", dots[0].Title)

	none, err := repo.Search(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestRecordRepository_UpdateField(t *testing.T) {
	ctx := context.Background()
	created := time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC)
	clock := created
	repo := NewRecordRepository().WithClock(func() time.Time { return clock })

	rec, err := repo.Create(ctx, domain.RecordFields{Title: str("T")})
	require.NoError(t, err)

	clock = created.Add(time.Minute)
	got, err := repo.UpdateField(ctx, rec.ID, domain.FieldVisible, false)
	require.NoError(t, err)
	assert.False(t, got.Visible)
	assert.Equal(t, clock, got.UpdatedAt)
	assert.Equal(t, created, got.CreatedAt)

	got, err = repo.UpdateField(ctx, rec.ID, domain.FieldDownloadable, true)
	require.NoError(t, err)
	assert.True(t, got.Downloadable)

	_, err = repo.UpdateField(ctx, rec.ID, domain.Field("title"), true)
	assert.ErrorIs(t, err, domain.ErrValidation)

	_, err = repo.UpdateField(ctx, "missing", domain.FieldVisible, true)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordRepository_Replace(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository()
	rec, err := repo.Create(ctx, domain.RecordFields{Title: str("T"), Content: str("C")})
	require.NoError(t, err)

	got, err := repo.Replace(ctx, rec.ID, domain.RecordFields{Title: str("T2"), Downloadable: flag(true)})
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "T2", got.Title)
	assert.Equal(t, "C", got.Content, "absent fields are kept")
	assert.True(t, got.Downloadable)
	assert.Equal(t, rec.CreatedAt, got.CreatedAt)

	_, err = repo.Replace(ctx, rec.ID, domain.RecordFields{Title: str("")})
	assert.ErrorIs(t, err, domain.ErrValidation)

	stored, err := repo.FindByID(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "T2", stored.Title, "failed replace leaves the record untouched")

	_, err = repo.Replace(ctx, "missing", domain.RecordFields{Title: str("x")})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRecordRepository_Delete(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository()
	a, _ := repo.Create(ctx, domain.RecordFields{Title: str("A")})
	b, _ := repo.Create(ctx, domain.RecordFields{Title: str("B")})

	removed, err := repo.Delete(ctx, strings.ToUpper(a.ID))
	require.NoError(t, err)
	assert.Equal(t, a.ID, removed.ID, "deleted record carries the canonical id")
	_, err = repo.Delete(ctx, a.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, b.ID, all[0].ID)
}

func TestRecordRepository_BulkCreate(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository()

	inserted, err := repo.BulkCreate(ctx, []domain.RecordFields{
		{Title: str("A"), Content: str("a")},
		{Title: str("B")},
		{Title: str("C"), Content: str("c")},
	})
	require.NoError(t, err)
	require.Len(t, inserted, 2)
	assert.Equal(t, "A", inserted[0].Title)
	assert.Equal(t, "C", inserted[1].Title)
	assert.NotEqual(t, inserted[0].ID, inserted[1].ID)

	all, err := repo.FindAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = repo.BulkCreate(ctx, nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
	_, err = repo.BulkCreate(ctx, []domain.RecordFields{{Title: str("x")}})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestRecordRepository_CountByPeriod(t *testing.T) {
	ctx := context.Background()
	repo := NewRecordRepository()
	for _, at := range []time.Time{
		time.Date(2024, 12, 30, 9, 0, 0, 0, time.UTC),
		time.Date(2024, 12, 31, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 8, 9, 0, 0, 0, time.UTC),
	} {
		repo.Insert(domain.Record{Title: "t", CreatedAt: at, UpdatedAt: at})
	}

	weeks, err := repo.CountByPeriod(ctx, domain.PeriodWeek)
	require.NoError(t, err)
	assert.Equal(t, []domain.StatBucket{
		{Bucket: "2025-W02", Total: 1},
		{Bucket: "2025-W01", Total: 3},
	}, weeks)

	years, err := repo.CountByPeriod(ctx, domain.PeriodYear)
	require.NoError(t, err)
	assert.Equal(t, []domain.StatBucket{
		{Bucket: "2025", Total: 2},
		{Bucket: "2024", Total: 2},
	}, years)

	_, err = repo.CountByPeriod(ctx, domain.Period("hour"))
	assert.ErrorIs(t, err, domain.ErrValidation)
}
