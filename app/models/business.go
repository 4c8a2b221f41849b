package models

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
)

// Connection status values for a business's identity-provider grant.
const (
	ConnectionUnlinked = "unlinked"
	ConnectionLinked   = "linked"
	ConnectionRevoked  = "revoked"
)

// Subscription status values mirrored from the billing provider.
const (
	SubscriptionTrialing = "trialing"
	SubscriptionActive   = "active"
	SubscriptionPastDue  = "past_due"
	SubscriptionCanceled = "canceled"
	SubscriptionUnpaid   = "unpaid"
)

// TrialDays is the freemium trial window granted at link time.
const TrialDays = 7

// Business is the aggregate root for a connected local business. Its ID is
// the external profile id, so provider callbacks can locate the record
// without an extra mapping table.
type Business struct {
	ID                string `gorm:"primaryKey;type:varchar(191)" json:"id"`
	ExternalProfileID string `gorm:"type:varchar(191);not null;index" json:"external_profile_id"`
	Name              string `gorm:"type:varchar(200);not null" json:"name" validate:"required,max=200"`
	Address           string `gorm:"type:varchar(255)" json:"address"`
	Phone             string `gorm:"type:varchar(50)" json:"phone"`
	Website           string `gorm:"type:varchar(255)" json:"website"`
	Rating            float64 `gorm:"default:0" json:"rating"`
	PhotoURLsJSON     string `gorm:"type:text" json:"-"`
	HoursJSON         string `gorm:"type:text" json:"-"`

	ConnectorUserID string `gorm:"type:varchar(191);not null;index" json:"connector_user_id"`
	OwnerUserID     string `gorm:"type:varchar(191);default:'';index" json:"owner_user_id"`

	ConnectionStatus string     `gorm:"type:varchar(20);not null;default:'unlinked';index" json:"connection_status" validate:"oneof=unlinked linked revoked"`
	AccessToken      string     `gorm:"type:text" json:"-"`
	RefreshToken     string     `gorm:"type:text" json:"-"`
	TokenExpiry      *time.Time `gorm:"type:timestamp;default:null" json:"-"`

	SubscriptionPlan      string     `gorm:"type:varchar(20);default:''" json:"subscription_plan"`
	SubscriptionStatus    string     `gorm:"type:varchar(20);default:'';index" json:"subscription_status"`
	BillingCustomerID     string     `gorm:"type:varchar(191);default:'';index" json:"billing_customer_id"`
	BillingSubscriptionID string     `gorm:"type:varchar(191);default:'';index" json:"billing_subscription_id"`
	TrialEndsAt           *time.Time `gorm:"type:timestamp;default:null" json:"trial_ends_at,omitempty"`

	MetricsJSON      string     `gorm:"type:longtext" json:"-"`
	TopReviewsJSON   string     `gorm:"type:longtext" json:"-"`
	MetricsUpdatedAt *time.Time `gorm:"type:timestamp;default:null" json:"metrics_updated_at,omitempty"`

	Version   uint      `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// MetricsSnapshot is the aggregated externally-sourced metrics cache stored
// on the business record.
type MetricsSnapshot struct {
	Impressions       int64   `json:"impressions"`
	WebsiteClicks     int64   `json:"website_clicks"`
	CallClicks        int64   `json:"call_clicks"`
	DirectionRequests int64   `json:"direction_requests"`
	ReviewCount       int     `json:"review_count"`
	AverageRating     float64 `json:"average_rating"`
}

// Review is one externally-sourced review kept in the bounded top-reviews
// cache. Stars are always on a 1-5 integer scale.
type Review struct {
	ReviewID   string    `json:"review_id"`
	Author     string    `json:"author"`
	Stars      int       `json:"stars"`
	Comment    string    `json:"comment"`
	CreateTime time.Time `json:"create_time"`
}

func (b *Business) Validate() error {
	v := validator.New()
	if err := v.Struct(b); err != nil {
		return err
	}
	return b.validateState()
}

// validateState enforces the cross-field invariants that GORM tags cannot
// express. Called on every write.
func (b *Business) validateState() error {
	if b.ConnectionStatus == ConnectionLinked && b.RefreshToken == "" {
		return errors.New("linked business requires a refresh token")
	}
	if b.OwnerUserID != "" && b.ConnectionStatus == ConnectionUnlinked {
		return errors.New("owned business cannot be unlinked")
	}
	if b.SubscriptionStatus == SubscriptionTrialing {
		if b.TrialEndsAt == nil {
			return errors.New("trialing business requires a trial end time")
		}
		if b.SubscriptionPlan != string(planFreemium) {
			return errors.New("only freemium businesses can be trialing")
		}
	}
	return nil
}

// planFreemium mirrors billing.TierFreemium without importing the billing
// package (models sits below it).
const planFreemium = "freemium"

// AssignOwner claims ownership for userID. Idempotent for the same user;
// rejects a second non-revoked owner.
func (b *Business) AssignOwner(userID string) error {
	if userID == "" {
		return errors.New("owner user id is required")
	}
	if b.OwnerUserID != "" && b.OwnerUserID != userID && b.ConnectionStatus != ConnectionRevoked {
		return errors.New("business already has an owner")
	}
	b.OwnerUserID = userID
	return nil
}

// MarkLinked stores a live grant and flips the connection status.
func (b *Business) MarkLinked(accessToken, refreshToken string, expiry time.Time) {
	b.AccessToken = accessToken
	b.RefreshToken = refreshToken
	if expiry.IsZero() {
		b.TokenExpiry = nil
	} else {
		e := expiry
		b.TokenExpiry = &e
	}
	b.ConnectionStatus = ConnectionLinked
}

// StartTrial puts the business on the freemium trial window.
func (b *Business) StartTrial(now time.Time) {
	ends := now.Add(TrialDays * 24 * time.Hour)
	b.SubscriptionPlan = planFreemium
	b.SubscriptionStatus = SubscriptionTrialing
	b.TrialEndsAt = &ends
}

// Metrics decodes the cached snapshot; a business that was never refreshed
// yields the zero snapshot.
func (b *Business) Metrics() (MetricsSnapshot, error) {
	var m MetricsSnapshot
	if b.MetricsJSON == "" {
		return m, nil
	}
	err := json.Unmarshal([]byte(b.MetricsJSON), &m)
	return m, err
}

// SetMetrics replaces the cached snapshot and top reviews and stamps the
// update time.
func (b *Business) SetMetrics(m MetricsSnapshot, topReviews []Review, now time.Time) error {
	mj, err := json.Marshal(m)
	if err != nil {
		return err
	}
	rj, err := json.Marshal(topReviews)
	if err != nil {
		return err
	}
	b.MetricsJSON = string(mj)
	b.TopReviewsJSON = string(rj)
	t := now
	b.MetricsUpdatedAt = &t
	return nil
}

// TopReviews decodes the bounded review cache.
func (b *Business) TopReviews() ([]Review, error) {
	if b.TopReviewsJSON == "" {
		return nil, nil
	}
	var rs []Review
	err := json.Unmarshal([]byte(b.TopReviewsJSON), &rs)
	return rs, err
}
