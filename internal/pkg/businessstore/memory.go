package businessstore

import (
	"context"
	"sync"
	"time"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

// MemoryStore is a mutex-guarded in-memory Store. It backs service tests and
// local development without a database.
type MemoryStore struct {
	mu          sync.Mutex
	businesses  map[string]models.Business
	events      map[string]models.WebhookEvent // keyed provider|event id
	nextEventID uint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		businesses: make(map[string]models.Business),
		events:     make(map[string]models.WebhookEvent),
	}
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.businesses[id]
	if !ok {
		return nil, faults.ErrNotFound
	}
	return &b, nil
}

func (s *MemoryStore) GetByOwner(_ context.Context, ownerUserID string) ([]models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Business
	for _, b := range s.businesses {
		if b.OwnerUserID == ownerUserID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) GetBySubscriptionID(_ context.Context, subscriptionID string) (*models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.businesses {
		if b.BillingSubscriptionID == subscriptionID {
			cp := b
			return &cp, nil
		}
	}
	return nil, faults.ErrNotFound
}

func (s *MemoryStore) GetByCustomerID(_ context.Context, customerID string) (*models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.businesses {
		if b.BillingCustomerID == customerID {
			cp := b
			return &cp, nil
		}
	}
	return nil, faults.ErrNotFound
}

func (s *MemoryStore) ListConnected(_ context.Context) ([]models.Business, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Business
	for _, b := range s.businesses {
		if b.ConnectionStatus == models.ConnectionLinked {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, b *models.Business) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.businesses[b.ID] = *b
	return nil
}

func (s *MemoryStore) Save(_ context.Context, b *models.Business) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b.Version++
	s.businesses[b.ID] = *b
	return nil
}

func (s *MemoryStore) SaveVersioned(_ context.Context, b *models.Business, expectedVersion uint) error {
	if err := b.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.businesses[b.ID]
	if !ok {
		return faults.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return faults.ErrVersionConflict
	}
	b.Version = expectedVersion + 1
	s.businesses[b.ID] = *b
	return nil
}

func (s *MemoryStore) RecordEvent(_ context.Context, e *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.Provider + "|" + e.ProviderEventID
	if stored, ok := s.events[key]; ok {
		cp := stored
		return false, &cp, nil
	}
	s.nextEventID++
	e.ID = s.nextEventID
	e.CreatedAt = time.Now()
	s.events[key] = *e
	cp := *e
	return true, &cp, nil
}

func (s *MemoryStore) MarkEventProcessed(_ context.Context, eventID uint, processingErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.events {
		if e.ID != eventID {
			continue
		}
		now := time.Now()
		e.ProcessedAt = &now
		if processingErr != nil {
			e.ProcessingError = processingErr.Error()
		} else {
			e.ProcessingError = ""
		}
		s.events[key] = e
		return nil
	}
	return faults.ErrNotFound
}
