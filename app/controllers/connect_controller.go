package controllers

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/connect"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/constants"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/mail"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/token"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/usercontext"
)

// HandleOnboarding redeems a signed invitation link and forwards the caller
// into the consent flow for the invited business.
func HandleOnboarding(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect(constants.LoginRoute+"?next="+url.QueryEscape(c.OriginalURL()), fiber.StatusSeeOther)
	}

	payload, err := getConnectService().ResolveOnboarding(strings.TrimSpace(c.Query("token")))
	if err != nil {
		code := "invite_invalid"
		if errors.Is(err, token.ErrTokenExpired) {
			code = "invite_expired"
		}
		return c.Redirect(constants.BusinessListRoute+"?error="+code, fiber.StatusSeeOther)
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	consentURL, err := getConnectService().ConsentStart(ctx, userCtx.UserID, payload.BusinessID, payload.Plan)
	if err != nil {
		return redirectConsentError(c, err)
	}
	return c.Redirect(consentURL, fiber.StatusSeeOther)
}

// HandleConnect starts the consent flow for a business the caller picked.
func HandleConnect(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	}

	tier, err := billing.ParseTier(c.Query("plan", string(billing.TierFreemium)))
	if err != nil {
		return c.Redirect(constants.BusinessListRoute+"?error=unknown_plan", fiber.StatusSeeOther)
	}
	// Setup fees are agreed offline and travel only inside a signed
	// onboarding token; a query parameter cannot set one.
	plan := billing.Plan{Tier: tier}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	consentURL, err := getConnectService().ConsentStart(ctx, userCtx.UserID, c.Query("business_id"), plan)
	if err != nil {
		return redirectConsentError(c, err)
	}
	return c.Redirect(consentURL, fiber.StatusSeeOther)
}

// HandleOAuthCallback receives the identity provider's redirect. All
// outcomes, success or failure, resolve to a redirect; nothing from this
// flow surfaces as an HTTP error to the browser.
func HandleOAuthCallback(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), 20*time.Second)
	defer cancel()

	redirect := getConnectService().HandleCallback(ctx, connect.CallbackInput{
		Code:          strings.TrimSpace(c.Query("code")),
		State:         strings.TrimSpace(c.Query("state")),
		ProviderError: strings.TrimSpace(c.Query("error")),
	})
	return c.Redirect(redirect.Location, fiber.StatusSeeOther)
}

// HandleCreateOnboardingLink issues an invitation link for a business. When
// the request carries an email address the link is also mailed to it.
func HandleCreateOnboardingLink(c *fiber.Ctx) error {
	var body struct {
		Plan          string `json:"plan"`
		SetupFeeCents int64  `json:"setup_fee_cents"`
		Email         string `json:"email"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	tier, err := billing.ParseTier(body.Plan)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_plan"})
	}

	ctx, cancel := context.WithTimeout(c.Context(), 10*time.Second)
	defer cancel()

	tok, err := getConnectService().IssueOnboarding(ctx, c.Params("id"), billing.Plan{Tier: tier, SetupFeeCents: body.SetupFeeCents})
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "business_not_found"})
		}
		var ve *faults.ValidationError
		if errors.As(err, &ve) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
		}
		log.Errorf("[onboarding] issuing link failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "link_creation_failed"})
	}

	base := strings.TrimRight(c.BaseURL(), "/")
	link := base + constants.OnboardingRoute + "?token=" + url.QueryEscape(tok)

	emailSent := false
	if email := strings.TrimSpace(body.Email); email != "" {
		b, err := getStore().Get(ctx, c.Params("id"))
		if err == nil {
			if err := mail.SendInvitation(email, b.Name, link); err != nil {
				log.Errorf("[onboarding] invitation mail to %s failed: %v", email, err)
			} else {
				emailSent = true
			}
		}
	}

	return c.JSON(fiber.Map{"url": link, "email_sent": emailSent})
}

func redirectConsentError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, faults.ErrUnauthenticated):
		return c.Redirect(constants.LoginRoute, fiber.StatusSeeOther)
	case errors.Is(err, faults.ErrNotFound):
		return c.Redirect(constants.BusinessListRoute+"?error=business_not_found", fiber.StatusSeeOther)
	default:
		var ve *faults.ValidationError
		if errors.As(err, &ve) {
			return c.Redirect(constants.BusinessListRoute+"?error=unknown_plan", fiber.StatusSeeOther)
		}
		log.Errorf("[connect] consent start failed: %v", err)
		return c.Redirect(constants.BusinessListRoute+"?error=consent_failed", fiber.StatusSeeOther)
	}
}
