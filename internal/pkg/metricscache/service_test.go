package metricscache

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/businessstore"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
)

type fakeGateway struct {
	reports     map[string]*gbp.PerformanceReport
	reviews     map[string][]models.Review
	perfErrs    map[string]error
	reviewErrs  map[string]error
	perfCalls   []string
	reviewCalls []string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		reports:    map[string]*gbp.PerformanceReport{},
		reviews:    map[string][]models.Review{},
		perfErrs:   map[string]error{},
		reviewErrs: map[string]error{},
	}
}

func (g *fakeGateway) FetchPerformance(_ context.Context, _ gbp.Grant, profileID string) (*gbp.PerformanceReport, error) {
	g.perfCalls = append(g.perfCalls, profileID)
	if err := g.perfErrs[profileID]; err != nil {
		return nil, err
	}
	if r, ok := g.reports[profileID]; ok {
		return r, nil
	}
	return &gbp.PerformanceReport{}, nil
}

func (g *fakeGateway) FetchReviews(_ context.Context, _ gbp.Grant, profileID string) ([]models.Review, error) {
	g.reviewCalls = append(g.reviewCalls, profileID)
	if err := g.reviewErrs[profileID]; err != nil {
		return nil, err
	}
	return g.reviews[profileID], nil
}

type fakeLocker struct {
	held     map[string]bool
	acquires int
	releases int
}

func newFakeLocker() *fakeLocker { return &fakeLocker{held: map[string]bool{}} }

func (l *fakeLocker) Acquire(_ context.Context, key string, _ time.Duration) (bool, error) {
	l.acquires++
	if l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Release(_ context.Context, key string) error {
	l.releases++
	delete(l.held, key)
	return nil
}

func seedLinked(t *testing.T, store *businessstore.MemoryStore, id, owner string) *models.Business {
	t.Helper()
	b := &models.Business{
		ID:                id,
		ExternalProfileID: id,
		Name:              "Negocio " + id,
		ConnectorUserID:   "user_connector",
		ConnectionStatus:  models.ConnectionUnlinked,
	}
	b.MarkLinked("at_"+id, "rt_"+id, time.Now().Add(time.Hour))
	if owner != "" {
		require.NoError(t, b.AssignOwner(owner))
	}
	require.NoError(t, store.Create(context.Background(), b))
	return b
}

func newService(store *businessstore.MemoryStore, gw *fakeGateway, locker Locker, now time.Time) *Service {
	svc := NewService(store, gw, locker)
	svc.now = func() time.Time { return now }
	return svc
}

func TestSyncAllCollectsFailures(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	gw := newFakeGateway()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seedLinked(t, store, "loc_ok_1", "user_1")
	seedLinked(t, store, "loc_ok_2", "user_2")
	seedLinked(t, store, "loc_bad", "user_3")
	gw.reports["loc_ok_1"] = &gbp.PerformanceReport{Impressions: 100, WebsiteClicks: 10}
	gw.reports["loc_ok_2"] = &gbp.PerformanceReport{Impressions: 200, CallClicks: 3}
	gw.reviews["loc_ok_1"] = []models.Review{{ReviewID: "r1", Stars: 5, CreateTime: now}}
	gw.perfErrs["loc_bad"] = errors.New("upstream 503")

	// An unlinked business must not be touched by the batch.
	unlinked := &models.Business{ID: "loc_off", ExternalProfileID: "loc_off", Name: "Cerrado", ConnectorUserID: "u", ConnectionStatus: models.ConnectionUnlinked}
	require.NoError(t, store.Create(ctx, unlinked))

	svc := newService(store, gw, nil, now)
	summary := svc.SyncAll(ctx)

	assert.Equal(t, 3, summary.TotalProcessed)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Errors, 1)
	assert.Equal(t, "loc_bad", summary.Errors[0].BusinessID)
	assert.Contains(t, summary.Errors[0].Error, "upstream 503")

	for _, id := range []string{"loc_ok_1", "loc_ok_2"} {
		b, err := store.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, b.MetricsUpdatedAt, "%s should be stamped", id)
		assert.True(t, b.MetricsUpdatedAt.Equal(now))
	}

	bad, err := store.Get(ctx, "loc_bad")
	require.NoError(t, err)
	assert.Nil(t, bad.MetricsUpdatedAt, "failed business keeps its stale cache")

	off, err := store.Get(ctx, "loc_off")
	require.NoError(t, err)
	assert.Nil(t, off.MetricsUpdatedAt)
	assert.NotContains(t, gw.perfCalls, "loc_off")
}

func TestRefreshOne(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	gw := newFakeGateway()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seedLinked(t, store, "loc_1", "user_1")
	gw.reports["loc_1"] = &gbp.PerformanceReport{Impressions: 1200, WebsiteClicks: 34, CallClicks: 5, DirectionRequests: 18}
	gw.reviews["loc_1"] = []models.Review{
		{ReviewID: "r1", Stars: 5, CreateTime: now.Add(-time.Hour)},
		{ReviewID: "r2", Stars: 3, CreateTime: now.Add(-2 * time.Hour)},
		{ReviewID: "r3", Stars: 4, CreateTime: now.Add(-3 * time.Hour)},
	}

	locker := newFakeLocker()
	svc := newService(store, gw, locker, now)

	res, err := svc.RefreshOne(ctx, "loc_1", "user_1")
	require.NoError(t, err)
	assert.Equal(t, int64(1200), res.Metrics.Impressions)
	assert.Equal(t, 3, res.Metrics.ReviewCount)
	assert.InDelta(t, 4.0, res.Metrics.AverageRating, 0.001)
	assert.False(t, res.Partial)
	assert.Equal(t, 1, locker.acquires)
	assert.Equal(t, 1, locker.releases)

	b, err := store.Get(ctx, "loc_1")
	require.NoError(t, err)
	require.NotNil(t, b.MetricsUpdatedAt)
	top, err := b.TopReviews()
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "r1", top[0].ReviewID)
	assert.Equal(t, "r3", top[1].ReviewID)
	assert.Equal(t, "r2", top[2].ReviewID)
}

func TestRefreshOneRateLimited(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	gw := newFakeGateway()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seedLinked(t, store, "loc_1", "user_1")
	svc := newService(store, gw, nil, now)

	_, err := svc.RefreshOne(ctx, "loc_1", "user_1")
	require.NoError(t, err)
	firstCalls := len(gw.perfCalls)

	// Second refresh inside the cooldown is rejected without touching the
	// external API or the stored record.
	before, err := store.Get(ctx, "loc_1")
	require.NoError(t, err)

	_, err = svc.RefreshOne(ctx, "loc_1", "user_1")
	var rlErr *faults.RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.True(t, rlErr.RetryAt.Equal(now.Add(RefreshCooldown)))
	assert.Equal(t, firstCalls, len(gw.perfCalls))

	after, err := store.Get(ctx, "loc_1")
	require.NoError(t, err)
	assert.Equal(t, before.Version, after.Version)

	// Once the cooldown has passed the refresh goes through again.
	svc.now = func() time.Time { return now.Add(RefreshCooldown + time.Minute) }
	_, err = svc.RefreshOne(ctx, "loc_1", "user_1")
	require.NoError(t, err)
}

func TestRefreshOneAuthorization(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seedLinked(t, store, "loc_1", "user_owner")
	svc := newService(store, newFakeGateway(), nil, now)

	_, err := svc.RefreshOne(ctx, "loc_1", "")
	assert.ErrorIs(t, err, faults.ErrUnauthenticated)

	_, err = svc.RefreshOne(ctx, "loc_1", "user_other")
	assert.ErrorIs(t, err, faults.ErrUnauthorized)

	_, err = svc.RefreshOne(ctx, "loc_missing", "user_owner")
	assert.ErrorIs(t, err, faults.ErrNotFound)
}

func TestRefreshOneCoalescesConcurrentCalls(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	gw := newFakeGateway()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seedLinked(t, store, "loc_1", "user_1")
	locker := newFakeLocker()
	locker.held[lockKey("loc_1")] = true // another refresh in flight

	svc := newService(store, gw, locker, now)
	_, err := svc.RefreshOne(ctx, "loc_1", "user_1")
	var rlErr *faults.RateLimitedError
	require.ErrorAs(t, err, &rlErr)
	assert.Empty(t, gw.perfCalls)
}

func TestRefreshOnePartialFailure(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	gw := newFakeGateway()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	seedLinked(t, store, "loc_1", "user_1")
	gw.reports["loc_1"] = &gbp.PerformanceReport{Impressions: 500}
	gw.reviewErrs["loc_1"] = fmt.Errorf("reviews api: %w", errors.New("502"))

	svc := newService(store, gw, nil, now)
	res, err := svc.RefreshOne(ctx, "loc_1", "user_1")
	require.Error(t, err)
	require.NotNil(t, res)
	assert.True(t, res.Partial)
	assert.Equal(t, int64(500), res.Metrics.Impressions)

	// A partial fetch never overwrites the stored cache.
	b, err := store.Get(ctx, "loc_1")
	require.NoError(t, err)
	assert.Nil(t, b.MetricsUpdatedAt)
}

func TestRefreshRequiresUsableGrant(t *testing.T) {
	ctx := context.Background()
	store := businessstore.NewMemoryStore()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	b := &models.Business{
		ID:                "loc_1",
		ExternalProfileID: "loc_1",
		Name:              "Sin Conexión",
		ConnectorUserID:   "user_connector",
		ConnectionStatus:  models.ConnectionUnlinked,
	}
	require.NoError(t, store.Create(ctx, b))

	svc := newService(store, newFakeGateway(), nil, now)
	summary := svc.SyncAll(ctx)
	assert.Zero(t, summary.TotalProcessed, "unlinked businesses are not batched")

	// A linked business whose token was wiped surfaces a stale-grant error.
	b.MarkLinked("at", "rt", now.Add(time.Hour))
	require.NoError(t, b.AssignOwner("user_1"))
	require.NoError(t, store.Save(ctx, b))
	stored, err := store.Get(ctx, "loc_1")
	require.NoError(t, err)
	stored.RefreshToken = ""
	stored.ConnectionStatus = models.ConnectionRevoked
	require.NoError(t, store.Save(ctx, stored))

	_, err = svc.RefreshOne(ctx, "loc_1", "user_1")
	var sErr *faults.StaleRefreshError
	require.ErrorAs(t, err, &sErr)
	assert.Equal(t, "loc_1", sErr.BusinessID)
}

func TestTopReviewsBounded(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	var reviews []models.Review
	for i := 0; i < 8; i++ {
		reviews = append(reviews, models.Review{
			ReviewID:   fmt.Sprintf("r%d", i),
			Stars:      (i % 5) + 1,
			CreateTime: now.Add(time.Duration(i) * time.Minute),
		})
	}

	top := topReviews(reviews)
	require.Len(t, top, TopReviewLimit)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].Stars, top[i].Stars)
	}
	// Input order is untouched.
	assert.Equal(t, "r0", reviews[0].ReviewID)
}
