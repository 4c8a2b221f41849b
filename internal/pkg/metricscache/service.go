// Package metricscache keeps the externally-sourced business metrics cache
// fresh: a batch job over all connected businesses and an owner-triggered
// single-business refresh.
package metricscache

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2/log"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/businessstore"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/gbp"
)

// RefreshCooldown is the minimum gap between refreshes of one business.
const RefreshCooldown = 24 * time.Hour

// TopReviewLimit bounds the cached review list.
const TopReviewLimit = 5

// Gateway fetches metrics and reviews for a connected business.
type Gateway interface {
	FetchPerformance(ctx context.Context, grant gbp.Grant, profileID string) (*gbp.PerformanceReport, error)
	FetchReviews(ctx context.Context, grant gbp.Grant, profileID string) ([]models.Review, error)
}

// Locker coalesces concurrent refreshes of the same business.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Service struct {
	store   businessstore.Store
	gateway Gateway
	locker  Locker

	now func() time.Time
}

func NewService(store businessstore.Store, gateway Gateway, locker Locker) *Service {
	return &Service{store: store, gateway: gateway, locker: locker, now: time.Now}
}

// Summary reports a batch run. Per-business failures are collected here and
// never abort the run.
type Summary struct {
	TotalProcessed int             `json:"total_processed"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	Errors         []BusinessError `json:"errors,omitempty"`
}

type BusinessError struct {
	BusinessID string `json:"business_id"`
	Error      string `json:"error"`
}

// SyncAll refreshes every linked business, strictly sequentially to bound
// external API load.
func (s *Service) SyncAll(ctx context.Context) Summary {
	summary := Summary{}

	businesses, err := s.store.ListConnected(ctx)
	if err != nil {
		log.Errorf("[metricscache] listing connected businesses failed: %v", err)
		summary.Errors = append(summary.Errors, BusinessError{Error: err.Error()})
		summary.Failed = 1
		return summary
	}

	for i := range businesses {
		b := businesses[i]
		summary.TotalProcessed++
		if err := s.refresh(ctx, &b); err != nil {
			summary.Failed++
			summary.Errors = append(summary.Errors, BusinessError{BusinessID: b.ID, Error: err.Error()})
			log.Errorf("[metricscache] business %s: %v", b.ID, err)
			continue
		}
		summary.Successful++
	}

	log.Infof("[metricscache] batch done: processed=%d ok=%d failed=%d",
		summary.TotalProcessed, summary.Successful, summary.Failed)
	return summary
}

// RefreshResult is the outcome of a manual refresh. On partial failure the
// raw data fetched so far is returned alongside the error so the caller can
// surface diagnostics.
type RefreshResult struct {
	Metrics models.MetricsSnapshot `json:"metrics"`
	Reviews []models.Review        `json:"reviews,omitempty"`
	Partial bool                   `json:"partial,omitempty"`
}

// RefreshOne refreshes a single business on request of its owner, at most
// once per RefreshCooldown.
func (s *Service) RefreshOne(ctx context.Context, businessID, callerID string) (*RefreshResult, error) {
	if callerID == "" {
		return nil, faults.ErrUnauthenticated
	}

	b, err := s.store.Get(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if b.OwnerUserID != callerID {
		return nil, faults.ErrUnauthorized
	}
	if b.MetricsUpdatedAt != nil {
		if next := b.MetricsUpdatedAt.Add(RefreshCooldown); s.now().Before(next) {
			return nil, &faults.RateLimitedError{RetryAt: next}
		}
	}

	if s.locker != nil {
		ok, err := s.locker.Acquire(ctx, lockKey(businessID), 2*time.Minute)
		if err != nil {
			log.Warnf("[metricscache] lock for %s unavailable: %v", businessID, err)
		} else if !ok {
			return nil, &faults.RateLimitedError{RetryAt: s.now().Add(2 * time.Minute)}
		} else {
			defer func() { _ = s.locker.Release(ctx, lockKey(businessID)) }()
		}
	}

	report, reviews, fetchErr := s.fetch(ctx, b)
	if fetchErr != nil {
		result := &RefreshResult{Partial: true}
		if report != nil {
			result.Metrics = snapshotFrom(report, reviews)
		}
		result.Reviews = reviews
		return result, fetchErr
	}

	snapshot := snapshotFrom(report, reviews)
	if err := b.SetMetrics(snapshot, topReviews(reviews), s.now()); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, b); err != nil {
		return nil, err
	}
	return &RefreshResult{Metrics: snapshot, Reviews: reviews}, nil
}

// refresh is the shared per-business path of the batch job.
func (s *Service) refresh(ctx context.Context, b *models.Business) error {
	report, reviews, err := s.fetch(ctx, b)
	if err != nil {
		return err
	}
	if err := b.SetMetrics(snapshotFrom(report, reviews), topReviews(reviews), s.now()); err != nil {
		return err
	}
	return s.store.Save(ctx, b)
}

func (s *Service) fetch(ctx context.Context, b *models.Business) (*gbp.PerformanceReport, []models.Review, error) {
	if b.RefreshToken == "" {
		return nil, nil, &faults.StaleRefreshError{BusinessID: b.ID, Reason: "no stored refresh token"}
	}
	if b.ExternalProfileID == "" {
		return nil, nil, &faults.StaleRefreshError{BusinessID: b.ID, Reason: "no external profile id"}
	}

	grant := gbp.Grant{AccessToken: b.AccessToken, RefreshToken: b.RefreshToken}
	if b.TokenExpiry != nil {
		grant.Expiry = *b.TokenExpiry
	}

	report, err := s.gateway.FetchPerformance(ctx, grant, b.ExternalProfileID)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch performance: %w", err)
	}
	reviews, err := s.gateway.FetchReviews(ctx, grant, b.ExternalProfileID)
	if err != nil {
		return report, nil, fmt.Errorf("fetch reviews: %w", err)
	}
	return report, reviews, nil
}

func snapshotFrom(report *gbp.PerformanceReport, reviews []models.Review) models.MetricsSnapshot {
	snapshot := models.MetricsSnapshot{
		ReviewCount: len(reviews),
	}
	if report != nil {
		snapshot.Impressions = report.Impressions
		snapshot.WebsiteClicks = report.WebsiteClicks
		snapshot.CallClicks = report.CallClicks
		snapshot.DirectionRequests = report.DirectionRequests
	}
	rated := 0
	sum := 0
	for _, r := range reviews {
		if r.Stars > 0 {
			rated++
			sum += r.Stars
		}
	}
	if rated > 0 {
		snapshot.AverageRating = float64(sum) / float64(rated)
	}
	return snapshot
}

// topReviews keeps the best-rated, most recent reviews, capped at
// TopReviewLimit.
func topReviews(reviews []models.Review) []models.Review {
	sorted := make([]models.Review, len(reviews))
	copy(sorted, reviews)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Stars != sorted[j].Stars {
			return sorted[i].Stars > sorted[j].Stars
		}
		return sorted[i].CreateTime.After(sorted[j].CreateTime)
	})
	if len(sorted) > TopReviewLimit {
		sorted = sorted[:TopReviewLimit]
	}
	return sorted
}

func lockKey(businessID string) string {
	return "metrics_refresh:" + businessID
}
