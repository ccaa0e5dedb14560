package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Compares the stored fingerprint server-side so Check is one round trip.
var redisDedupeCheckScript = redis.NewScript(`
local existing = redis.call("GET", KEYS[1])
if not existing then
  return "new"
end
if existing == ARGV[1] then
  return "seen"
end
return "changed"
`)

// RedisEventDedupeStore keeps processed events in redis with a TTL, for
// deployments where webhook traffic should not touch the relational store on
// replays.
type RedisEventDedupeStore struct {
	client redis.UniversalClient
	prefix string
}

func NewRedisEventDedupeStore(client redis.UniversalClient, prefix string) *RedisEventDedupeStore {
	if prefix == "" {
		prefix = "event_dedupe"
	}
	return &RedisEventDedupeStore{client: client, prefix: prefix}
}

func (s *RedisEventDedupeStore) key(signal, eventHandle string) string {
	return fmt.Sprintf("%s:%s:%s", s.prefix, signal, eventHandle)
}

func (s *RedisEventDedupeStore) Check(ctx context.Context, signal, eventHandle, fingerprint string) (EventDedupeState, error) {
	raw, err := redisDedupeCheckScript.Run(ctx, s.client, []string{s.key(signal, eventHandle)}, fingerprint).Result()
	if err != nil {
		return "", err
	}
	state, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("unexpected redis dedupe result type %T", raw)
	}
	switch EventDedupeState(state) {
	case EventDedupeStateNew, EventDedupeStateSeen, EventDedupeStateChanged:
		return EventDedupeState(state), nil
	default:
		return "", fmt.Errorf("unexpected redis dedupe state %q", state)
	}
}

func (s *RedisEventDedupeStore) MarkProcessed(ctx context.Context, signal, eventHandle, fingerprint string, ttl time.Duration) error {
	return s.client.Set(ctx, s.key(signal, eventHandle), fingerprint, ttl).Err()
}
