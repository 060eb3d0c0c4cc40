package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// eventTTL bounds how long processed webhook event ids are remembered.
// Stripe retries deliveries for up to three days; a week of history is
// enough to absorb every redelivery window.
const eventTTL = 7 * 24 * time.Hour

// RedisGuard deduplicates at-least-once webhook deliveries per event id.
// It is an optimization in front of the ledger's conditional status update,
// not the correctness mechanism. An id is recorded only after its event has
// been applied, so a delivery that dies mid-processing stays eligible for
// the provider's redelivery.
type RedisGuard struct {
	client *redis.Client
}

func NewRedisGuard(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

// SeenEvent reports whether the event id was already fully processed.
func (g *RedisGuard) SeenEvent(ctx context.Context, eventID string) (bool, error) {
	n, err := g.client.Exists(ctx, "webhook:event:"+eventID).Result()
	return n > 0, err
}

// MarkEventProcessed records an applied event id.
func (g *RedisGuard) MarkEventProcessed(ctx context.Context, eventID string) error {
	return g.client.Set(ctx, "webhook:event:"+eventID, 1, eventTTL).Err()
}
