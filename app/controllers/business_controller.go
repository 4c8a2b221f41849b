package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/entitlements"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/usercontext"
)

// HandleListBusinesses returns the businesses owned by the caller.
func HandleListBusinesses(c *fiber.Ctx) error {
	callerID := usercontext.GetUserID(c)
	if callerID == "" {
		return jsonError(c, faults.ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	bs, err := getStore().GetByOwner(ctx, callerID)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(fiber.Map{"businesses": bs})
}

// HandleGetBusiness returns one business with its cached metrics, top reviews
// and the entitlements of its current plan. Visible to the owner and the
// connecting user.
func HandleGetBusiness(c *fiber.Ctx) error {
	callerID := usercontext.GetUserID(c)
	if callerID == "" {
		return jsonError(c, faults.ErrUnauthenticated)
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	b, err := getStore().Get(ctx, c.Params("id"))
	if err != nil {
		return jsonError(c, err)
	}
	if b.OwnerUserID != callerID && b.ConnectorUserID != callerID {
		return jsonError(c, faults.ErrUnauthorized)
	}

	metrics, err := b.Metrics()
	if err != nil {
		log.Errorf("[api] business %s: corrupt metrics cache: %v", b.ID, err)
	}
	reviews, err := b.TopReviews()
	if err != nil {
		log.Errorf("[api] business %s: corrupt reviews cache: %v", b.ID, err)
	}

	return c.JSON(fiber.Map{
		"business":     b,
		"metrics":      metrics,
		"top_reviews":  reviews,
		"entitlements": entitlements.ForPlan(b.SubscriptionPlan),
	})
}

// HandleExtendTrial extends the trial window of a business. Only the
// connecting user may call it.
func HandleExtendTrial(c *fiber.Ctx) error {
	var body struct {
		Days int `json:"days"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	b, err := getConnectService().ExtendTrial(ctx, c.Params("id"), usercontext.GetUserID(c), body.Days)
	if err != nil {
		return jsonError(c, err)
	}
	return c.JSON(b)
}

// HandleRefreshMetrics refreshes the metrics cache of one business on
// request of its owner, rate limited to once per 24h.
func HandleRefreshMetrics(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 30*time.Second)
	defer cancel()

	result, err := getMetricsService().RefreshOne(ctx, c.Params("id"), usercontext.GetUserID(c))
	if err != nil {
		var rl *faults.RateLimitedError
		if errors.As(err, &rl) {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":    "rate_limited",
				"retry_at": rl.RetryAt,
			})
		}
		if result != nil && result.Partial {
			// Surface the partially fetched data so the caller can diagnose.
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error":   "refresh_failed",
				"message": err.Error(),
				"partial": result,
			})
		}
		return jsonError(c, err)
	}
	return c.JSON(result)
}

// HandleMetricsSync runs the batch cache refresh over all connected
// businesses and reports the summary. Admin only.
func HandleMetricsSync(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	summary := getMetricsService().SyncAll(ctx)
	return c.JSON(summary)
}

func jsonError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, faults.ErrUnauthenticated):
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized"})
	case errors.Is(err, faults.ErrUnauthorized):
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	case errors.Is(err, faults.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "business_not_found"})
	case errors.Is(err, faults.ErrVersionConflict):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": "conflict_retry"})
	}
	var ve *faults.ValidationError
	if errors.As(err, &ve) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
	}
	var sr *faults.StaleRefreshError
	if errors.As(err, &sr) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": sr.Error()})
	}
	log.Errorf("[api] request failed: %v", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_error"})
}
