// Package businessstore is the single source of truth for business records
// across the connection and subscription lifecycle.
package businessstore

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// Store provides the persistence operations used by the pipeline services.
type Store interface {
	Get(ctx context.Context, id string) (*models.Business, error)
	GetByOwner(ctx context.Context, ownerUserID string) ([]models.Business, error)
	GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Business, error)
	GetByCustomerID(ctx context.Context, customerID string) (*models.Business, error)
	ListConnected(ctx context.Context) ([]models.Business, error)
	Create(ctx context.Context, b *models.Business) error
	Save(ctx context.Context, b *models.Business) error
	// SaveVersioned writes only when the stored row still carries
	// expectedVersion, so same-business races become detectable instead of
	// silently last-write-wins. Returns faults.ErrVersionConflict otherwise.
	SaveVersioned(ctx context.Context, b *models.Business, expectedVersion uint) error

	RecordEvent(ctx context.Context, e *models.WebhookEvent) (created bool, stored *models.WebhookEvent, err error)
	MarkEventProcessed(ctx context.Context, eventID uint, processingErr error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a store backed by GORM.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) Get(ctx context.Context, id string) (*models.Business, error) {
	var b models.Business
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&b).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &b, nil
}

func (s *gormStore) GetByOwner(ctx context.Context, ownerUserID string) ([]models.Business, error) {
	var bs []models.Business
	err := s.db.WithContext(ctx).Where("owner_user_id = ?", ownerUserID).Find(&bs).Error
	return bs, err
}

func (s *gormStore) GetBySubscriptionID(ctx context.Context, subscriptionID string) (*models.Business, error) {
	var b models.Business
	err := s.db.WithContext(ctx).Where("billing_subscription_id = ?", subscriptionID).First(&b).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &b, nil
}

func (s *gormStore) GetByCustomerID(ctx context.Context, customerID string) (*models.Business, error) {
	var b models.Business
	err := s.db.WithContext(ctx).Where("billing_customer_id = ?", customerID).First(&b).Error
	if err != nil {
		return nil, translateNotFound(err)
	}
	return &b, nil
}

func (s *gormStore) ListConnected(ctx context.Context) ([]models.Business, error) {
	var bs []models.Business
	err := s.db.WithContext(ctx).Where("connection_status = ?", models.ConnectionLinked).Find(&bs).Error
	return bs, err
}

func (s *gormStore) Create(ctx context.Context, b *models.Business) error {
	if err := b.Validate(); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Create(b).Error
}

func (s *gormStore) Save(ctx context.Context, b *models.Business) error {
	if err := b.Validate(); err != nil {
		return err
	}
	b.Version++
	return s.db.WithContext(ctx).Save(b).Error
}

func (s *gormStore) SaveVersioned(ctx context.Context, b *models.Business, expectedVersion uint) error {
	if err := b.Validate(); err != nil {
		return err
	}
	b.Version = expectedVersion + 1
	tx := s.db.WithContext(ctx).
		Model(&models.Business{}).
		Where("id = ? AND version = ?", b.ID, expectedVersion).
		Select("*").
		Omit("id", "created_at").
		Updates(b)
	if tx.Error != nil {
		return tx.Error
	}
	if tx.RowsAffected == 0 {
		return faults.ErrVersionConflict
	}
	return nil
}

func (s *gormStore) RecordEvent(ctx context.Context, e *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_event_id"},
		},
		DoNothing: true,
	}).Create(e)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := s.db.WithContext(ctx).
		Where("provider = ? AND provider_event_id = ?", e.Provider, e.ProviderEventID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (s *gormStore) MarkEventProcessed(ctx context.Context, eventID uint, processingErr error) error {
	now := time.Now()
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.db.WithContext(ctx).Model(&models.WebhookEvent{}).
		Where("id = ?", eventID).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": errMsg,
		}).Error
}

func translateNotFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return faults.ErrNotFound
	}
	return err
}
