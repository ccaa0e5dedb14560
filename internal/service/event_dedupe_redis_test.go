package service

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisDedupeStoreForTest(t *testing.T) (*miniredis.Miniredis, *RedisEventDedupeStore) {
	t.Helper()
	m := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: m.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		m.Close()
	})
	return m, NewRedisEventDedupeStore(client, "dedupe_test")
}

func TestRedisEventDedupeStoreStates(t *testing.T) {
	_, store := newRedisDedupeStoreForTest(t)
	ctx := context.Background()

	state, err := store.Check(ctx, "anchor-created", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("first check: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("expected new, got %s", state)
	}

	// Check never writes; an unprocessed event stays new.
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

	state, err = store.Check(ctx, "intent-updated", "evt-1", "fp-a")
	if err != nil {
		t.Fatalf("other signal check: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("expected new for other signal, got %s", state)
	}
}

func TestRedisEventDedupeStoreTTLExpiry(t *testing.T) {
	m, store := newRedisDedupeStoreForTest(t)
	ctx := context.Background()

	if err := store.MarkProcessed(ctx, "anchor-created", "evt-1", "fp-a", time.Minute); err != nil {
		t.Fatalf("seed: %v", err)
	}
	m.FastForward(2 * time.Minute)

	state, err := store.Check(ctx, "anchor-created", "evt-1", "fp-b")
	if err != nil {
		t.Fatalf("check after expiry: %v", err)
	}
	if state != EventDedupeStateNew {
		t.Fatalf("expired key must be new again, got %s", state)
	}
}
