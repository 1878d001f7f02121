package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/metacode/fiches-api/internal/core/domain"
	"github.com/metacode/fiches-api/internal/infrastructure/db/memory"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

// journal records the order of repository commits and publications.
type journal struct {
	mu      sync.Mutex
	entries []string
}

func (j *journal) add(s string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.entries = append(j.entries, s)
}

type recordingPublisher struct {
	journal *journal
	events  []domain.ChangeEvent
}

func (p *recordingPublisher) Publish(ev domain.ChangeEvent) {
	p.events = append(p.events, ev)
	if p.journal != nil {
		p.journal.add("publish:" + ev.EventName())
	}
}

// spyRepo wraps the in-memory repository, counting mutations and optionally
// failing them. It honours context cancellation the way a network store would.
type spyRepo struct {
	*memory.RecordRepository
	journal    *journal
	err        error
	calls      map[string]int
	afterCount func()
}

func newSpyRepo() *spyRepo {
	return &spyRepo{RecordRepository: memory.NewRecordRepository(), calls: make(map[string]int)}
}

func (r *spyRepo) enter(ctx context.Context, op string) error {
	r.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.err
}

func (r *spyRepo) commit(op string) {
	if r.journal != nil {
		r.journal.add("commit:" + op)
	}
}

func (r *spyRepo) Create(ctx context.Context, f domain.RecordFields) (*domain.Record, error) {
	if err := r.enter(ctx, "create"); err != nil {
		return nil, err
	}
	rec, err := r.RecordRepository.Create(ctx, f)
	if err == nil {
		r.commit("create")
	}
	return rec, err
}

func (r *spyRepo) UpdateField(ctx context.Context, id string, field domain.Field, v bool) (*domain.Record, error) {
	if err := r.enter(ctx, "update_field"); err != nil {
		return nil, err
	}
	rec, err := r.RecordRepository.UpdateField(ctx, id, field, v)
	if err == nil {
		r.commit("update_field")
	}
	return rec, err
}

func (r *spyRepo) Replace(ctx context.Context, id string, f domain.RecordFields) (*domain.Record, error) {
	if err := r.enter(ctx, "replace"); err != nil {
		return nil, err
	}
	return r.RecordRepository.Replace(ctx, id, f)
}

func (r *spyRepo) Delete(ctx context.Context, id string) (*domain.Record, error) {
	if err := r.enter(ctx, "delete"); err != nil {
		return nil, err
	}
	return r.RecordRepository.Delete(ctx, id)
}

func (r *spyRepo) BulkCreate(ctx context.Context, list []domain.RecordFields) ([]*domain.Record, error) {
	if err := r.enter(ctx, "bulk_create"); err != nil {
		return nil, err
	}
	return r.RecordRepository.BulkCreate(ctx, list)
}

// afterCount, when set, runs once the counts are computed and before they are
// returned, standing in for a mutation that lands mid-read.
func (r *spyRepo) CountByPeriod(ctx context.Context, p domain.Period) ([]domain.StatBucket, error) {
	r.calls["count"]++
	buckets, err := r.RecordRepository.CountByPeriod(ctx, p)
	if r.afterCount != nil {
		hook := r.afterCount
		r.afterCount = nil
		hook()
	}
	return buckets, err
}

type cacheKey struct {
	gen    int64
	period domain.Period
}

type stubCache struct {
	gen         int64
	data        map[cacheKey][]domain.StatBucket
	invalidated int
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[cacheKey][]domain.StatBucket)}
}

func (c *stubCache) Generation(context.Context) (int64, error) { return c.gen, nil }

func (c *stubCache) Get(_ context.Context, gen int64, p domain.Period) ([]domain.StatBucket, bool, error) {
	b, ok := c.data[cacheKey{gen, p}]
	return b, ok, nil
}

func (c *stubCache) Set(_ context.Context, gen int64, p domain.Period, b []domain.StatBucket) error {
	c.data[cacheKey{gen, p}] = b
	return nil
}

func (c *stubCache) Invalidate(context.Context) error {
	c.invalidated++
	c.gen++
	return nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

var (
	userCaller  = domain.Authenticated(domain.Identity{ID: "u1", Username: "alice", Role: domain.RoleUser})
	adminCaller = domain.Authenticated(domain.Identity{ID: "a1", Username: "root", Role: domain.RoleAdmin})
)

func strPtr(s string) *string { return &s }

func newRecordSvc(repo *spyRepo) (*RecordService, *recordingPublisher) {
	pub := &recordingPublisher{journal: repo.journal}
	return NewRecordService(repo, pub, nil, zerolog.Nop()), pub
}

func seed(t *testing.T, repo *spyRepo, title string) *domain.Record {
	t.Helper()
	rec, err := repo.RecordRepository.Create(context.Background(), domain.RecordFields{Title: strPtr(title), Content: strPtr("c")})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

// ---------------------------------------------------------------------------
// Gate
// ---------------------------------------------------------------------------

func TestRecordService_AnonymousMutationsRefused(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	rec := seed(t, repo, "T")
	ctx := context.Background()

	if _, err := svc.Create(ctx, domain.Anonymous, domain.RecordFields{Title: strPtr("x")}); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("create: expected ErrMissingCredential, got %v", err)
	}
	if _, err := svc.SetVisibility(ctx, domain.Anonymous, rec.ID, false); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("visibility: expected ErrMissingCredential, got %v", err)
	}
	if err := svc.Delete(ctx, domain.Anonymous, rec.ID); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("delete: expected ErrMissingCredential, got %v", err)
	}
	if _, err := svc.List(ctx, domain.Anonymous); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("list: expected ErrMissingCredential, got %v", err)
	}
	if _, err := svc.Stats(ctx, domain.Anonymous, "day"); !errors.Is(err, domain.ErrMissingCredential) {
		t.Fatalf("stats: expected ErrMissingCredential, got %v", err)
	}

	if len(repo.calls) != 0 {
		t.Fatalf("repository must not be touched, got %v", repo.calls)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected, got %d", len(pub.events))
	}
}

func TestRecordService_RejectedCredentialReasonSurfaces(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	caller := domain.Caller{AuthErr: domain.ErrExpiredCredential}

	_, err := svc.Create(context.Background(), caller, domain.RecordFields{Title: strPtr("x")})
	if !errors.Is(err, domain.ErrExpiredCredential) {
		t.Fatalf("expected ErrExpiredCredential, got %v", err)
	}
	if repo.calls["create"] != 0 || len(pub.events) != 0 {
		t.Fatalf("expected no side effects")
	}
}

func TestRecordService_PublicReadsIgnoreRejectedCredential(t *testing.T) {
	repo := newSpyRepo()
	svc, _ := newRecordSvc(repo)
	rec := seed(t, repo, "Hello")
	caller := domain.Caller{AuthErr: domain.ErrInvalidCredential}

	got, err := svc.Get(context.Background(), caller, rec.ID)
	if err != nil || got.ID != rec.ID {
		t.Fatalf("get: unexpected (%v, %v)", got, err)
	}
	found, err := svc.Search(context.Background(), caller, "hell")
	if err != nil || len(found) != 1 {
		t.Fatalf("search: unexpected (%d, %v)", len(found), err)
	}
}

func TestRecordService_DeleteByUserDeniedBeforeRepository(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	rec := seed(t, repo, "T")

	err := svc.Delete(context.Background(), userCaller, rec.ID)
	if !errors.Is(err, domain.ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}
	if repo.calls["delete"] != 0 {
		t.Fatalf("repository delete must never be invoked")
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected")
	}
	if _, err := repo.FindByID(context.Background(), rec.ID); err != nil {
		t.Fatalf("record should still exist: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Mutations
// ---------------------------------------------------------------------------

func TestRecordService_CreatePublishesCommittedRecord(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	rec, err := svc.Create(context.Background(), userCaller, domain.RecordFields{Title: strPtr("T"), Content: strPtr("C")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rec.Visible || rec.Downloadable {
		t.Fatalf("defaults not applied: %+v", rec)
	}

	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	created, ok := pub.events[0].(domain.RecordCreated)
	if !ok {
		t.Fatalf("expected RecordCreated, got %T", pub.events[0])
	}
	if created.Record.ID != rec.ID || created.Record.Title != "T" || created.Record.Content != "C" {
		t.Fatalf("event does not mirror the stored record: %+v", created.Record)
	}

	stored, err := svc.Get(context.Background(), domain.Anonymous, rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Title != "T" || stored.Content != "C" || !stored.Visible || stored.Downloadable {
		t.Fatalf("round trip mismatch: %+v", stored)
	}
}

func TestRecordService_CommitPrecedesPublish(t *testing.T) {
	repo := newSpyRepo()
	repo.journal = &journal{}
	svc, _ := newRecordSvc(repo)

	rec, err := svc.Create(context.Background(), userCaller, domain.RecordFields{Title: strPtr("T")})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.SetVisibility(context.Background(), userCaller, rec.ID, false); err != nil {
		t.Fatalf("visibility: %v", err)
	}

	want := []string{"commit:create", "publish:new-fiche", "commit:update_field", "publish:visibility-changed"}
	if len(repo.journal.entries) != len(want) {
		t.Fatalf("expected %v, got %v", want, repo.journal.entries)
	}
	for i := range want {
		if repo.journal.entries[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, repo.journal.entries)
		}
	}
}

func TestRecordService_RepositoryFailureSkipsBroadcast(t *testing.T) {
	repo := newSpyRepo()
	rec := seed(t, repo, "T")
	repo.err = domain.ErrStoreUnavailable
	svc, pub := newRecordSvc(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, userCaller, domain.RecordFields{Title: strPtr("x")}); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("create: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.SetDownloadable(ctx, userCaller, rec.ID, true); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("downloadable: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.Update(ctx, userCaller, rec.ID, domain.RecordFields{Title: strPtr("y")}); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("update: expected ErrStoreUnavailable, got %v", err)
	}
	if err := svc.Delete(ctx, adminCaller, rec.ID); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("delete: expected ErrStoreUnavailable, got %v", err)
	}
	if _, err := svc.BulkCreate(ctx, userCaller, []domain.RecordFields{{Title: strPtr("a"), Content: strPtr("b")}}); !errors.Is(err, domain.ErrStoreUnavailable) {
		t.Fatalf("bulk: expected ErrStoreUnavailable, got %v", err)
	}

	if len(pub.events) != 0 {
		t.Fatalf("failed mutations must not publish, got %d events", len(pub.events))
	}
}

func TestRecordService_ValidationFailureSkipsBroadcast(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	if _, err := svc.Create(context.Background(), userCaller, domain.RecordFields{Title: strPtr("")}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestRecordService_SetVisibility(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	rec := seed(t, repo, "T")

	got, err := svc.SetVisibility(context.Background(), userCaller, rec.ID, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Visible {
		t.Fatalf("expected visible=false")
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(pub.events))
	}
	if ev, ok := pub.events[0].(domain.VisibilityChanged); !ok || ev.ID != rec.ID || ev.Visible {
		t.Fatalf("unexpected event: %#v", pub.events[0])
	}
}

func TestRecordService_SetDownloadable(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	rec := seed(t, repo, "T")

	got, err := svc.SetDownloadable(context.Background(), userCaller, rec.ID, true)
	if err != nil || !got.Downloadable {
		t.Fatalf("unexpected (%+v, %v)", got, err)
	}
	if ev, ok := pub.events[0].(domain.DownloadableChanged); !ok || ev.ID != rec.ID || !ev.Downloadable {
		t.Fatalf("unexpected event: %#v", pub.events[0])
	}
}

func TestRecordService_UpdateMissingRecordIsNotFound(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	if _, err := svc.SetVisibility(context.Background(), userCaller, "missing", false); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := svc.Update(context.Background(), userCaller, "missing", domain.RecordFields{Title: strPtr("x")}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestRecordService_UpdatePublishesPostUpdateRecord(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	rec := seed(t, repo, "before")

	got, err := svc.Update(context.Background(), userCaller, rec.ID, domain.RecordFields{Title: strPtr("after")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != rec.ID || !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("identity or creation time changed: %+v", got)
	}
	ev, ok := pub.events[0].(domain.RecordUpdated)
	if !ok || ev.Record.Title != "after" {
		t.Fatalf("event should carry post-update values: %#v", pub.events[0])
	}
}

func TestRecordService_DeleteByAdmin(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)
	rec := seed(t, repo, "T")

	if err := svc.Delete(context.Background(), adminCaller, strings.ToUpper(rec.ID)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ev, ok := pub.events[0].(domain.RecordDeleted); !ok || ev.ID != rec.ID {
		t.Fatalf("unexpected event: %#v", pub.events[0])
	}
	if err := svc.Delete(context.Background(), adminCaller, rec.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("second delete: expected ErrNotFound, got %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(pub.events))
	}
}

func TestRecordService_BulkCreateFiltersAndPublishesEach(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	inserted, err := svc.BulkCreate(context.Background(), userCaller, []domain.RecordFields{
		{Title: strPtr("A"), Content: strPtr("x")},
		{Title: strPtr("")},
		{Content: strPtr("y")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(inserted) != 1 || inserted[0].Title != "A" {
		t.Fatalf("expected only A inserted, got %+v", inserted)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(pub.events))
	}
	if ev := pub.events[0].(domain.RecordCreated); ev.Record.ID != inserted[0].ID {
		t.Fatalf("event id mismatch")
	}
}

func TestRecordService_BulkCreateSkipsBlankTitle(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	inserted, err := svc.BulkCreate(context.Background(), userCaller, []domain.RecordFields{
		{Title: strPtr("A"), Content: strPtr("x")},
		{Title: strPtr("  "), Content: strPtr("y")},
	})
	if err != nil {
		t.Fatalf("a blank title should be skipped, not fail the batch: %v", err)
	}
	if len(inserted) != 1 || inserted[0].Title != "A" {
		t.Fatalf("expected only A inserted, got %+v", inserted)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected exactly 1 event, got %d", len(pub.events))
	}
}

func TestRecordService_BulkCreateKeepsInsertionOrder(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	titles := []string{"one", "two", "three", "four"}
	list := make([]domain.RecordFields, 0, len(titles))
	for _, title := range titles {
		list = append(list, domain.RecordFields{Title: strPtr(title), Content: strPtr("c")})
	}

	if _, err := svc.BulkCreate(context.Background(), userCaller, list); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, title := range titles {
		if got := pub.events[i].(domain.RecordCreated).Record.Title; got != title {
			t.Fatalf("event %d: expected %q, got %q", i, title, got)
		}
	}
}

func TestRecordService_BulkCreateNothingValid(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	_, err := svc.BulkCreate(context.Background(), userCaller, []domain.RecordFields{{Title: strPtr("only title")}})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, err := svc.BulkCreate(context.Background(), userCaller, nil); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("empty list: expected ErrValidation, got %v", err)
	}
	if len(pub.events) != 0 {
		t.Fatalf("no event expected")
	}
}

func TestRecordService_CancelledRequestStillCommitsAndPublishes(t *testing.T) {
	repo := newSpyRepo()
	svc, pub := newRecordSvc(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec, err := svc.Create(ctx, userCaller, domain.RecordFields{Title: strPtr("late")})
	if err != nil {
		t.Fatalf("mutation should complete despite cancellation: %v", err)
	}
	if len(pub.events) != 1 {
		t.Fatalf("expected the event to be published, got %d", len(pub.events))
	}
	if _, err := repo.FindByID(context.Background(), rec.ID); err != nil {
		t.Fatalf("record should be stored: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func TestRecordService_StatsUnknownPeriod(t *testing.T) {
	repo := newSpyRepo()
	svc, _ := newRecordSvc(repo)

	if _, err := svc.Stats(context.Background(), userCaller, "decade"); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestRecordService_StatsCachedUntilMutation(t *testing.T) {
	repo := newSpyRepo()
	seed(t, repo, "T")
	cache := newStubCache()
	svc := NewRecordService(repo, &recordingPublisher{}, cache, zerolog.Nop())
	ctx := context.Background()

	first, err := svc.Stats(ctx, userCaller, "year")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if _, err := svc.Stats(ctx, userCaller, "year"); err != nil {
		t.Fatalf("stats: %v", err)
	}
	if repo.calls["count"] != 1 {
		t.Fatalf("second call should be served from cache, store hit %d times", repo.calls["count"])
	}
	if len(first) != 1 || first[0].Total != 1 {
		t.Fatalf("unexpected buckets: %+v", first)
	}

	if _, err := svc.Create(ctx, userCaller, domain.RecordFields{Title: strPtr("new")}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if cache.invalidated != 1 {
		t.Fatalf("mutation should invalidate the cache")
	}

	after, err := svc.Stats(ctx, userCaller, "year")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if repo.calls["count"] != 2 || after[0].Total != 2 {
		t.Fatalf("expected fresh count of 2, got %+v (store hits %d)", after, repo.calls["count"])
	}
}

func TestRecordService_StatsComputedBeforeMutationAreNotServed(t *testing.T) {
	repo := newSpyRepo()
	seed(t, repo, "T")
	cache := newStubCache()
	svc := NewRecordService(repo, &recordingPublisher{}, cache, zerolog.Nop())
	ctx := context.Background()

	repo.afterCount = func() {
		if _, err := svc.Create(ctx, userCaller, domain.RecordFields{Title: strPtr("late")}); err != nil {
			t.Errorf("create: %v", err)
		}
	}

	stale, err := svc.Stats(ctx, userCaller, "year")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stale[0].Total != 1 {
		t.Fatalf("first read counted before the create, got %+v", stale)
	}

	fresh, err := svc.Stats(ctx, userCaller, "year")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if fresh[0].Total != 2 {
		t.Fatalf("expected the count to include the concurrent create, got %+v", fresh)
	}
	if repo.calls["count"] != 2 {
		t.Fatalf("second read should miss the cache, store hit %d times", repo.calls["count"])
	}
}
