package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/aaandroiddd/Waboku.gg-sub004/internal/auth"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/config"
	"github.com/aaandroiddd/Waboku.gg-sub004/internal/models"
)

var errInjected = errors.New("injected failure")

// fakeStore is an in-memory ILifecycleStore with the same write guards as the
// Mongo store. Commits are atomic.
type fakeStore struct {
	mu        sync.Mutex
	listings  map[string]models.Listing
	favorites map[string]models.Favorite

	pingErr        error
	favLookupErr   map[string]error
	failCommitNo   int // 1-based commit to fail, 0 never fails
	partialNo      int // 1-based commit that writes its listing ops, then fails on favorites
	commitAttempts int
	commits        [][]models.Operation
	reads          int
	inFlight       int
	maxInFlight    int
	lookupDelay    time.Duration
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		listings:     map[string]models.Listing{},
		favorites:    map[string]models.Favorite{},
		favLookupErr: map[string]error{},
	}
}

func (f *fakeStore) putListing(l models.Listing) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listings[l.ID] = l
}

func (f *fakeStore) putFavorite(userID, listingID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := models.FavoriteID(userID, listingID)
	f.favorites[id] = models.Favorite{ID: id, UserID: userID, ListingID: listingID}
}

func (f *fakeStore) listing(id string) (models.Listing, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.listings[id]
	return l, ok
}

func (f *fakeStore) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listings), len(f.favorites)
}

func (f *fakeStore) readCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

func (f *fakeStore) selectListings(match func(l *models.Listing) bool) []models.Listing {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := []models.Listing{}
	for _, l := range f.listings {
		l := l
		if match(&l) {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeStore) Ping(ctx context.Context) error {
	return f.pingErr
}

func (f *fakeStore) FindExpiredActive(ctx context.Context, now time.Time) ([]models.Listing, error) {
	return f.selectListings(func(l *models.Listing) bool {
		return l.Status == models.ListingStatusActive && l.ExpiresAt != nil && !l.ExpiresAt.After(now)
	}), nil
}

func (f *fakeStore) FindArchivedWithoutTTL(ctx context.Context) ([]models.Listing, error) {
	return f.selectListings(func(l *models.Listing) bool {
		return l.Status == models.ListingStatusArchived && l.TTL == nil
	}), nil
}

func (f *fakeStore) FindExpiredArchived(ctx context.Context, now time.Time) ([]models.Listing, error) {
	return f.selectListings(func(l *models.Listing) bool {
		return l.Status == models.ListingStatusArchived && l.TTL != nil && l.TTL.Before(now)
	}), nil
}

func (f *fakeStore) FindAllListings(ctx context.Context) ([]models.Listing, error) {
	return f.selectListings(func(*models.Listing) bool { return true }), nil
}

func (f *fakeStore) FindPublicListings(ctx context.Context, limit int) ([]models.Listing, error) {
	out := f.selectListings(func(l *models.Listing) bool { return l.Status == models.ListingStatusActive })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) FindFavoritesByListing(ctx context.Context, listingID string) ([]models.Favorite, error) {
	f.mu.Lock()
	f.reads++
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	delay := f.lookupDelay
	f.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inFlight--
	if err := f.favLookupErr[listingID]; err != nil {
		return nil, err
	}
	out := []models.Favorite{}
	for _, fav := range f.favorites {
		if fav.ListingID == listingID {
			out = append(out, fav)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeStore) FindOrphanedFavorites(ctx context.Context, limit int) ([]models.Favorite, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	out := []models.Favorite{}
	for _, fav := range f.favorites {
		if _, ok := f.listings[fav.ListingID]; !ok {
			out = append(out, fav)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) Commit(ctx context.Context, ops []models.Operation) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitAttempts++
	if f.failCommitNo > 0 && f.commitAttempts == f.failCommitNo {
		return errInjected
	}
	if len(ops) > config.MaxBatchCeiling {
		return fmt.Errorf("commit of %d operations exceeds the store limit", len(ops))
	}
	if f.partialNo > 0 && f.commitAttempts == f.partialNo {
		var applied []models.Operation
		for _, op := range ops {
			if op.Kind != models.OpDeleteFavorite {
				f.apply(op)
				applied = append(applied, op)
			}
		}
		return &models.PartialCommitError{Applied: applied, Err: errInjected}
	}
	for _, op := range ops {
		f.apply(op)
	}
	cp := make([]models.Operation, len(ops))
	copy(cp, ops)
	f.commits = append(f.commits, cp)
	return nil
}

func (f *fakeStore) apply(op models.Operation) {
	switch op.Kind {
	case models.OpArchiveListing:
		l, ok := f.listings[op.ListingID]
		if !ok || l.Status != models.ListingStatusActive {
			return
		}
		prev := l.TTL
		l.Status = models.ListingStatusArchived
		applyPatch(&l, op.Patch)
		if prev != nil && prev.After(*l.TTL) {
			l.TTL = prev
		}
		f.listings[l.ID] = l
	case models.OpAssignTTL:
		l, ok := f.listings[op.ListingID]
		if !ok || l.Status != models.ListingStatusArchived || l.TTL != nil {
			return
		}
		applyPatch(&l, op.Patch)
		f.listings[l.ID] = l
	case models.OpDeleteListing:
		delete(f.listings, op.ListingID)
	case models.OpDeleteFavorite:
		delete(f.favorites, models.FavoriteID(op.UserID, op.ListingID))
	}
}

func applyPatch(l *models.Listing, p *models.TTLPatch) {
	if p.ArchivedAt != nil {
		at := *p.ArchivedAt
		l.ArchivedAt = &at
	}
	ttl, setAt := p.TTL, p.TTLSetAt
	l.TTL = &ttl
	l.TTLSetAt = &setAt
	l.TTLReason = p.Reason
}

// memRecorder keeps run records in memory.
type memRecorder struct {
	mu      sync.Mutex
	records map[string]models.RunRecord
	err     error
}

func newMemRecorder() *memRecorder {
	return &memRecorder{records: map[string]models.RunRecord{}}
}

func (r *memRecorder) Record(ctx context.Context, rec models.RunRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.records[rec.Job] = rec
	return nil
}

func (r *memRecorder) LastRuns(ctx context.Context) ([]models.RunRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := []models.RunRecord{}
	for _, rec := range r.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Job < out[j].Job })
	return out, nil
}

// memImages records deleted image keys.
type memImages struct {
	mu      sync.Mutex
	deleted []string
	err     error
}

func (m *memImages) DeleteImages(ctx context.Context, keys []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	m.deleted = append(m.deleted, keys...)
	return len(keys), nil
}

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func testConfig() *config.Config {
	return &config.Config{
		FreeActiveWindow:          48 * time.Hour,
		PremiumActiveWindow:       30 * 24 * time.Hour,
		ArchiveDuration:           7 * 24 * time.Hour,
		GracePeriod:               24 * time.Hour,
		BatchCeiling:              config.MaxBatchCeiling,
		FavoriteLookupConcurrency: 10,
		ExpirationTolerance:       time.Hour,
		FavoriteSweepLimit:        2000,
	}
}

type testEnv struct {
	store    *fakeStore
	recorder *memRecorder
	images   *memImages
	now      time.Time
	svc      ILifecycleService
}

// setNow moves the clock used by subsequent runs.
func (e *testEnv) setNow(t time.Time) { e.now = t }

func newTestEnv(t *testing.T, cfg *config.Config) *testEnv {
	env := &testEnv{
		store:    newFakeStore(),
		recorder: newMemRecorder(),
		images:   &memImages{},
		now:      testNow,
	}
	env.svc = NewLifecycleService(cfg, LifecycleDeps{
		Store:    env.store,
		Images:   env.images,
		Recorder: env.recorder,
		Logger:   zaptest.NewLogger(t),
		Clock:    func() time.Time { return env.now },
	})
	return env
}

func scheduler() RunOptions { return RunOptions{Principal: auth.PrincipalScheduler} }

func ptr(t time.Time) *time.Time { return &t }

func activeListing(id string, tier models.AccountTier, expiresAt time.Time) models.Listing {
	return models.Listing{
		ID:                    id,
		Status:                models.ListingStatusActive,
		OwnerID:               "owner-" + id,
		AccountTierAtCreation: tier,
		CreatedAt:             expiresAt.Add(-48 * time.Hour),
		ExpiresAt:             ptr(expiresAt),
	}
}

func archivedListing(id string, archivedAt time.Time, ttl *time.Time) models.Listing {
	l := models.Listing{
		ID:                    id,
		Status:                models.ListingStatusArchived,
		OwnerID:               "owner-" + id,
		AccountTierAtCreation: models.AccountTierFree,
		CreatedAt:             archivedAt.Add(-48 * time.Hour),
		ExpiresAt:             ptr(archivedAt),
		ArchivedAt:            ptr(archivedAt),
	}
	if ttl != nil {
		l.TTL = ttl
		l.TTLSetAt = ptr(archivedAt)
		l.TTLReason = models.TTLReasonArchiverAssigned
	}
	return l
}
