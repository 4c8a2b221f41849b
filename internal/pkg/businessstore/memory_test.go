package businessstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/caangogi/local-digital-eye-sub000/app/models"
	"github.com/caangogi/local-digital-eye-sub000/internal/pkg/faults"
)

func seedBusiness(t *testing.T, s *MemoryStore, id string) *models.Business {
	t.Helper()
	b := &models.Business{
		ID:                id,
		ExternalProfileID: id,
		Name:              "Panadería Central",
		ConnectorUserID:   "user_connector",
		ConnectionStatus:  models.ConnectionUnlinked,
	}
	if err := s.Create(context.Background(), b); err != nil {
		t.Fatalf("create: %v", err)
	}
	return b
}

func TestMemoryStoreLookups(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	b := seedBusiness(t, s, "loc_1")

	b.MarkLinked("at", "rt", time.Now().Add(time.Hour))
	if err := b.AssignOwner("user_1"); err != nil {
		t.Fatalf("assign owner: %v", err)
	}
	b.BillingCustomerID = "cus_1"
	b.BillingSubscriptionID = "sub_1"
	if err := s.Save(ctx, b); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, err := s.Get(ctx, "loc_missing"); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	got, err := s.GetBySubscriptionID(ctx, "sub_1")
	if err != nil || got.ID != "loc_1" {
		t.Fatalf("by subscription: %v / %v", got, err)
	}
	got, err = s.GetByCustomerID(ctx, "cus_1")
	if err != nil || got.ID != "loc_1" {
		t.Fatalf("by customer: %v / %v", got, err)
	}

	owned, err := s.GetByOwner(ctx, "user_1")
	if err != nil || len(owned) != 1 {
		t.Fatalf("by owner: %v / %v", owned, err)
	}

	connected, err := s.ListConnected(ctx)
	if err != nil || len(connected) != 1 {
		t.Fatalf("connected: %v / %v", connected, err)
	}
}

func TestMemoryStoreSaveVersioned(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	seedBusiness(t, s, "loc_1")

	first, err := s.Get(ctx, "loc_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	second, err := s.Get(ctx, "loc_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}

	first.Name = "Panadería Central Renovada"
	if err := s.SaveVersioned(ctx, first, first.Version); err != nil {
		t.Fatalf("first save: %v", err)
	}

	// The second copy still carries the old version and must lose.
	second.Name = "Otra Edición"
	err = s.SaveVersioned(ctx, second, second.Version)
	if !errors.Is(err, faults.ErrVersionConflict) {
		t.Fatalf("expected ErrVersionConflict, got %v", err)
	}

	stored, err := s.Get(ctx, "loc_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Name != "Panadería Central Renovada" {
		t.Fatalf("name = %q", stored.Name)
	}
	if stored.Version != first.Version {
		t.Fatalf("version = %d, want %d", stored.Version, first.Version)
	}

	if err := s.SaveVersioned(ctx, &models.Business{ID: "loc_ghost", Name: "x", ConnectorUserID: "u", ConnectionStatus: models.ConnectionUnlinked}, 0); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreEventDedup(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	e := &models.WebhookEvent{Provider: "stripe", ProviderEventID: "evt_1", EventType: "checkout.session.completed"}
	created, stored, err := s.RecordEvent(ctx, e)
	if err != nil || !created {
		t.Fatalf("first record: created=%v err=%v", created, err)
	}
	if stored.ID == 0 {
		t.Fatal("stored event has no id")
	}

	if err := s.MarkEventProcessed(ctx, stored.ID, nil); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	dup := &models.WebhookEvent{Provider: "stripe", ProviderEventID: "evt_1", EventType: "checkout.session.completed"}
	created, again, err := s.RecordEvent(ctx, dup)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if created {
		t.Fatal("redelivery created a second row")
	}
	if !again.Processed() {
		t.Fatal("redelivered row lost its processed mark")
	}

	if err := s.MarkEventProcessed(ctx, 9999, nil); !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
