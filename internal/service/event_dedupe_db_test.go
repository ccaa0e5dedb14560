package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/hector-minka/collections-bridge/internal/domain"
)

func TestDBEventDedupeStoreStates(t *testing.T) {
	store := NewDBEventDedupeStore(newServiceDBForTest(t))
	ctx := context.Background()

	state, err := store.Check(ctx, "anchor-created", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("expected new, got %s", state)
	}

	// Check is read-only: until processing completes the event stays new.
	state, err = store.Check(ctx, "anchor-created", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("second check: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("unprocessed event must stay new, got %s", state)
	}

	if err := store.MarkProcessed(ctx, "anchor-created", "evt-1", "fp-a", time.Hour); err != nil {
		t.Fatalf("mark processed: %v", err)
	}

	state, err = store.Check(ctx, "anchor-created", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("check after processing: %v", err)
	}
	if state != EventDedupeStateSeen {
		t.Fatalf("expected seen, got %s", state)
	}

	state, err = store.Check(ctx, "anchor-created", "evt-1", "fp-b")
	if err != nil {
		t.Fatalf("changed check: %v", err)
	}
	if state != EventDedupeStateChanged {
		t.Fatalf("expected changed, got %s", state)
	}

	// Same handle under a different signal is an independent delivery.
	state, err = store.Check(ctx, "intent-updated", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("other signal check: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("expected new for other signal, got %s", state)
	}
}

func TestDBEventDedupeStoreExpiredRowIsNewAgain(t *testing.T) {
	db := newServiceDBForTest(t)
	store := NewDBEventDedupeStore(db)
	ctx := context.Background()

	if err := store.MarkProcessed(ctx, "anchor-created", "evt-1", "fp-a", time.Hour); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := db.Model(&domain.ProcessedEvent{}).
		Where("signal = ? AND event_handle = ?", "anchor-created", "evt-1").
		Update("expires_at", time.Now().UTC().Add(-time.Minute)).Error; err != nil {
		t.Fatalf("expire row: %v", err)
	}

	state, err := store.Check(ctx, "anchor-created", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("check after expiry: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("expired delivery must be new again, got %s", state)
	}

	// Reprocessing refreshes the existing row in place.
	if err := store.MarkProcessed(ctx, "anchor-created", "evt-1", "fp-b", time.Hour); err != nil {
		t.Fatalf("remark: %v", err)
	}
	var refreshed domain.ProcessedEvent
	if err := db.Where("signal = ? AND event_handle = ?", "anchor-created", "evt-1").First(&refreshed).Error; err != nil {
		t.Fatalf("read refreshed row: %v", err)
	}
	if refreshed.Fingerprint != "fp-b" {
		t.Fatalf("expected refreshed fingerprint, got %s", refreshed.Fingerprint)
	}
	if !refreshed.ExpiresAt.After(time.Now().UTC()) {
		t.Fatal("expected refreshed expiry in the future")
	}
}

func TestDBEventDedupeStoreCleanupExpired(t *testing.T) {
	db := newServiceDBForTest(t)
	store := NewDBEventDedupeStore(db)
	now := time.Now().UTC()

	rows := []domain.ProcessedEvent{
		{Signal: "anchor-created", EventHandle: "old-1", Fingerprint: "f1", ExpiresAt: now.Add(-time.Hour)},
		{Signal: "anchor-created", EventHandle: "old-2", Fingerprint: "f2", ExpiresAt: now.Add(-time.Minute)},
		{Signal: "anchor-created", EventHandle: "fresh", Fingerprint: "f3", ExpiresAt: now.Add(time.Hour)},
	}
	for i := range rows {
		if err := db.Create(&rows[i]).Error; err != nil {
			t.Fatalf("create row %d: %v", i, err)
		}
	}

	deleted, err := store.CleanupExpired(context.Background(), now, 100)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 deleted, got %d", deleted)
	}

	var remaining []domain.ProcessedEvent
	if err := db.Find(&remaining).Error; err != nil {
		t.Fatalf("query remaining: %v", err)
	}
	if len(remaining) != 1 || remaining[0].EventHandle != "fresh" {
		t.Fatalf("expected only fresh row, got %+v", remaining)
	}
}

func TestDBEventDedupeStoreCleanupHonorsBatchSize(t *testing.T) {
	db := newServiceDBForTest(t)
	store := NewDBEventDedupeStore(db)
	now := time.Now().UTC()

	for i := 0; i < 3; i++ {
		row := domain.ProcessedEvent{
			Signal:      "anchor-created",
			EventHandle: fmt.Sprintf("old-%d", i),
			Fingerprint: fmt.Sprintf("f-%d", i),
			ExpiresAt:   now.Add(-time.Minute),
		}
		if err := db.Create(&row).Error; err != nil {
			t.Fatalf("create row %d: %v", i, err)
		}
	}

	deleted, err := store.CleanupExpired(context.Background(), now, 1)
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if deleted != 1 {
		t.Fatalf("expected 1 deleted with batch=1, got %d", deleted)
	}
}

func TestFingerprintPayloadIsStable(t *testing.T) {
	a := FingerprintPayload([]byte(`{"x":1}`))
	b := FingerprintPayload([]byte(`{"x":1}`))
	c := FingerprintPayload([]byte(`{"x":2}`))
	if a != b {
		t.Fatal("same payload must hash identically")
	}
	if a == c {
		t.Fatal("different payloads must hash differently")
	}
	if len(a) != 64 {
		t.Fatalf("expected hex sha-256, got %d chars", len(a))
	}
}
