// Package token issues and verifies the short-lived signed tokens used by
// the onboarding and OAuth flows. Both token kinds share the signing
// mechanism but keep distinct typed payloads: an onboarding invitation and
// an OAuth state have different lifetimes and different failure handling.
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/billing"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

const (
	// OnboardingTTL bounds how long an invitation link stays redeemable.
	OnboardingTTL = 7 * 24 * time.Hour
	// StateTTL bounds the round trip through the provider consent screen.
	StateTTL = 15 * time.Minute

	useOnboarding = "onboarding"
	useState      = "oauth_state"
)

// OnboardingPayload is the signed content of an invitation link.
type OnboardingPayload struct {
	BusinessID string       `json:"business_id"`
	Plan       billing.Plan `json:"plan"`
}

// StatePayload is the signed content of the OAuth state parameter.
type StatePayload struct {
	BusinessID string       `json:"business_id"`
	UserID     string       `json:"user_id"`
	Plan       billing.Plan `json:"plan"`
}

type onboardingClaims struct {
	jwt.RegisteredClaims
	Use        string       `json:"use"`
	BusinessID string       `json:"business_id"`
	Plan       billing.Plan `json:"plan"`
}

type stateClaims struct {
	jwt.RegisteredClaims
	Use        string       `json:"use"`
	BusinessID string       `json:"business_id"`
	UserID     string       `json:"user_id"`
	Plan       billing.Plan `json:"plan"`
}

// Codec signs and verifies pipeline tokens with a server-held secret.
// Payloads are plain structured data and never contain credentials.
type Codec struct {
	secret []byte
	now    func() time.Time
}

func NewCodec(secret string) (*Codec, error) {
	if secret == "" {
		return nil, errors.New("token signing secret is required")
	}
	return &Codec{secret: []byte(secret), now: time.Now}, nil
}

func (c *Codec) IssueOnboarding(p OnboardingPayload, ttl time.Duration) (string, error) {
	if p.BusinessID == "" {
		return "", errors.New("business id is required")
	}
	now := c.now()
	claims := onboardingClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Use:        useOnboarding,
		BusinessID: p.BusinessID,
		Plan:       p.Plan,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *Codec) VerifyOnboarding(tokenString string) (*OnboardingPayload, error) {
	var claims onboardingClaims
	if err := c.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Use != useOnboarding || claims.BusinessID == "" {
		return nil, ErrTokenInvalid
	}
	return &OnboardingPayload{BusinessID: claims.BusinessID, Plan: claims.Plan}, nil
}

func (c *Codec) IssueState(p StatePayload) (string, error) {
	if p.BusinessID == "" || p.UserID == "" {
		return "", errors.New("business id and user id are required")
	}
	now := c.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
		},
		Use:        useState,
		BusinessID: p.BusinessID,
		UserID:     p.UserID,
		Plan:       p.Plan,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
}

func (c *Codec) VerifyState(tokenString string) (*StatePayload, error) {
	var claims stateClaims
	if err := c.parse(tokenString, &claims); err != nil {
		return nil, err
	}
	if claims.Use != useState || claims.BusinessID == "" || claims.UserID == "" {
		return nil, ErrTokenInvalid
	}
	return &StatePayload{BusinessID: claims.BusinessID, UserID: claims.UserID, Plan: claims.Plan}, nil
}

func (c *Codec) parse(tokenString string, claims jwt.Claims) error {
	tok, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return ErrTokenExpired
		}
		return ErrTokenInvalid
	}
	if !tok.Valid {
		return ErrTokenInvalid
	}
	return nil
}
