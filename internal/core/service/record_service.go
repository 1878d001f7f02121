package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/metacode/fiches-api/internal/core/auth"
	"github.com/metacode/fiches-api/internal/core/domain"
	"github.com/metacode/fiches-api/internal/core/ports"
	"github.com/metacode/fiches-api/internal/pkg/metrics"
)

// RecordService runs every record operation through the same sequence:
// access policy, one repository call, then, for mutations, the change event
// built from the committed record.
type RecordService struct {
	repo      ports.RecordRepository
	publisher ports.EventPublisher
	cache     ports.StatsCache
	logger    zerolog.Logger
}

// NewRecordService wires the orchestrator. cache may be nil.
func NewRecordService(repo ports.RecordRepository, publisher ports.EventPublisher, cache ports.StatsCache, logger zerolog.Logger) *RecordService {
	return &RecordService{repo: repo, publisher: publisher, cache: cache, logger: logger}
}

// authorize evaluates the policy. An anonymous caller whose credential was
// rejected gets the verifier's reason rather than a generic one.
func (s *RecordService) authorize(caller domain.Caller, action auth.Action) error {
	d := auth.Authorize(caller.Identity, action)
	if d.Allowed {
		return nil
	}
	reason := d.Reason
	if caller.Identity == nil && caller.AuthErr != nil {
		reason = caller.AuthErr
	}
	metrics.AuthRejectionsTotal.WithLabelValues(auth.RejectionReason(reason)).Inc()
	s.logger.Debug().Str("action", string(action)).Err(reason).Msg("request refused")
	return reason
}

// Authorize reports whether caller may perform action.
func (s *RecordService) Authorize(caller domain.Caller, action auth.Action) error {
	return s.authorize(caller, action)
}

// committed publishes the events of a successful mutation and drops stale
// statistics. The request context may already be cancelled here.
func (s *RecordService) committed(ctx context.Context, caller domain.Caller, action auth.Action, events ...domain.ChangeEvent) {
	for _, ev := range events {
		s.publisher.Publish(ev)
	}
	metrics.RecordMutationsTotal.WithLabelValues(string(action)).Inc()

	if s.cache != nil {
		if err := s.cache.Invalidate(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn().Err(err).Msg("failed to invalidate stats cache")
		}
	}

	s.logger.Info().
		Str("action", string(action)).
		Str("user_id", caller.Identity.ID).
		Int("events", len(events)).
		Msg("record mutation committed")
}

func (s *RecordService) failed(action auth.Action, err error) error {
	reason := "other"
	switch {
	case errors.Is(err, domain.ErrValidation):
		reason = "validation"
	case errors.Is(err, domain.ErrNotFound):
		reason = "not_found"
	case errors.Is(err, domain.ErrStoreUnavailable):
		reason = "store_unavailable"
	}
	metrics.RecordMutationErrorsTotal.WithLabelValues(string(action), reason).Inc()
	if reason == "store_unavailable" || reason == "other" {
		s.logger.Error().Err(err).Str("action", string(action)).Msg("record mutation failed")
	}
	return err
}

// Create stores a new record and announces it. Like every mutation, the
// repository call runs detached from the request context so a client hanging
// up cannot abort a write whose event must still go out.
func (s *RecordService) Create(ctx context.Context, caller domain.Caller, fields domain.RecordFields) (*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionCreate); err != nil {
		return nil, err
	}
	rec, err := s.repo.Create(context.WithoutCancel(ctx), fields)
	if err != nil {
		return nil, s.failed(auth.ActionCreate, err)
	}
	s.committed(ctx, caller, auth.ActionCreate, domain.RecordCreated{Record: *rec})
	return rec, nil
}

// SetVisibility changes the visible flag of a record.
func (s *RecordService) SetVisibility(ctx context.Context, caller domain.Caller, id string, visible bool) (*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionUpdateVisibility); err != nil {
		return nil, err
	}
	rec, err := s.repo.UpdateField(context.WithoutCancel(ctx), id, domain.FieldVisible, visible)
	if err != nil {
		return nil, s.failed(auth.ActionUpdateVisibility, err)
	}
	s.committed(ctx, caller, auth.ActionUpdateVisibility, domain.VisibilityChanged{ID: rec.ID, Visible: rec.Visible})
	return rec, nil
}

// SetDownloadable changes the downloadable flag of a record.
func (s *RecordService) SetDownloadable(ctx context.Context, caller domain.Caller, id string, downloadable bool) (*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionUpdateDownloadable); err != nil {
		return nil, err
	}
	rec, err := s.repo.UpdateField(context.WithoutCancel(ctx), id, domain.FieldDownloadable, downloadable)
	if err != nil {
		return nil, s.failed(auth.ActionUpdateDownloadable, err)
	}
	s.committed(ctx, caller, auth.ActionUpdateDownloadable, domain.DownloadableChanged{ID: rec.ID, Downloadable: rec.Downloadable})
	return rec, nil
}

// Update applies the provided fields to a record.
func (s *RecordService) Update(ctx context.Context, caller domain.Caller, id string, fields domain.RecordFields) (*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionUpdate); err != nil {
		return nil, err
	}
	rec, err := s.repo.Replace(context.WithoutCancel(ctx), id, fields)
	if err != nil {
		return nil, s.failed(auth.ActionUpdate, err)
	}
	s.committed(ctx, caller, auth.ActionUpdate, domain.RecordUpdated{Record: *rec})
	return rec, nil
}

// Delete removes a record. Admin only. The event carries the stored id, not
// the spelling the caller used.
func (s *RecordService) Delete(ctx context.Context, caller domain.Caller, id string) error {
	if err := s.authorize(caller, auth.ActionDelete); err != nil {
		return err
	}
	rec, err := s.repo.Delete(context.WithoutCancel(ctx), id)
	if err != nil {
		return s.failed(auth.ActionDelete, err)
	}
	s.committed(ctx, caller, auth.ActionDelete, domain.RecordDeleted{ID: rec.ID})
	return nil
}

// BulkCreate publishes one creation event per inserted record, in insertion order.
func (s *RecordService) BulkCreate(ctx context.Context, caller domain.Caller, list []domain.RecordFields) ([]*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionBulkCreate); err != nil {
		return nil, err
	}
	inserted, err := s.repo.BulkCreate(context.WithoutCancel(ctx), list)
	if err != nil {
		return nil, s.failed(auth.ActionBulkCreate, err)
	}
	events := make([]domain.ChangeEvent, 0, len(inserted))
	for _, rec := range inserted {
		events = append(events, domain.RecordCreated{Record: *rec})
	}
	s.committed(ctx, caller, auth.ActionBulkCreate, events...)
	return inserted, nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

// Get returns a record by id. Public.
func (s *RecordService) Get(ctx context.Context, caller domain.Caller, id string) (*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionRead); err != nil {
		return nil, err
	}
	return s.repo.FindByID(ctx, id)
}

// List returns every record.
func (s *RecordService) List(ctx context.Context, caller domain.Caller) ([]*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionReadAll); err != nil {
		return nil, err
	}
	return s.repo.FindAll(ctx)
}

// Search returns the records whose title contains query. Public.
func (s *RecordService) Search(ctx context.Context, caller domain.Caller, query string) ([]*domain.Record, error) {
	if err := s.authorize(caller, auth.ActionSearch); err != nil {
		return nil, err
	}
	return s.repo.Search(ctx, query)
}

// Stats serves creation counts from the cache when possible. The cache
// generation is read before counting, so counts that a concurrent mutation
// made stale are stored under a generation nobody reads anymore.
func (s *RecordService) Stats(ctx context.Context, caller domain.Caller, period string) ([]domain.StatBucket, error) {
	if err := s.authorize(caller, auth.ActionStats); err != nil {
		return nil, err
	}
	p, err := domain.ParsePeriod(period)
	if err != nil {
		return nil, err
	}

	cache := s.cache
	var gen int64
	if cache != nil {
		if gen, err = cache.Generation(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("stats cache unavailable")
			cache = nil
		}
	}

	if cache != nil {
		buckets, ok, err := cache.Get(ctx, gen, p)
		switch {
		case err != nil:
			s.logger.Warn().Err(err).Str("period", period).Msg("stats cache read failed")
		case ok:
			metrics.StatsCacheTotal.WithLabelValues("hit").Inc()
			return buckets, nil
		}
		metrics.StatsCacheTotal.WithLabelValues("miss").Inc()
	}

	buckets, err := s.repo.CountByPeriod(ctx, p)
	if err != nil {
		return nil, err
	}

	if cache != nil {
		if err := cache.Set(ctx, gen, p, buckets); err != nil {
			s.logger.Warn().Err(err).Str("period", period).Msg("stats cache write failed")
		}
	}
	return buckets, nil
}
