package controllers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// HandleBillingWebhook receives asynchronous billing events. Response codes
// drive the provider's redelivery: 400 on a bad signature, 500 when a
// recoverable step failed and the event must be redelivered, 200 otherwise
// (including unrecoverable events, which retrying cannot repair).
func HandleBillingWebhook(c *fiber.Ctx) error {
	payload := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))

	event, err := getBillingClient().VerifyEvent(payload, signature)
	if err != nil {
		log.Warnf("[webhook] signature verification failed: %v", err)
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
	defer cancel()

	if err := getConnectService().ProcessWebhookEvent(ctx, event, payload); err != nil {
		var mm *faults.MissingMetadataError
		var ue *faults.UnrecoverableError
		if errors.As(err, &mm) || errors.As(err, &ue) {
			// Acknowledge: no redelivery can repair this event.
			log.Errorf("[webhook] unrecoverable event %s: %v", event.ID, err)
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true, "unrecoverable": true})
		}
		log.Errorf("[webhook] event %s failed, requesting redelivery: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{"received": true})
}
