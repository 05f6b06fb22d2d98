package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	connSetPrefix = "presence:conns:"
	connSetTTL    = 24 * time.Hour
)

// ConnectionStore is the fast path of presence: the set of live connection
// ids per user. Add/Remove return the new cardinality so the caller can
// detect the 0->1 and 1->0 edges without a second round trip.
type ConnectionStore interface {
	Add(ctx context.Context, userID, connectionID string) (int64, error)
	Remove(ctx context.Context, userID, connectionID string) (int64, error)
	Members(ctx context.Context, userID string) ([]string, error)
}

type redisConnectionStore struct {
	rdb *redis.Client
}

func NewConnectionStore(rdb *redis.Client) ConnectionStore {
	return &redisConnectionStore{rdb: rdb}
}

func (s *redisConnectionStore) Add(ctx context.Context, userID, connectionID string) (int64, error) {
	key := connSetPrefix + userID

	pipe := s.rdb.TxPipeline()
	pipe.SAdd(ctx, key, connectionID)
	// TTL is a safety net against leaked entries from crashed instances.
	pipe.Expire(ctx, key, connSetTTL)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("record connection failed: %w", err)
	}
	return card.Val(), nil
}

func (s *redisConnectionStore) Remove(ctx context.Context, userID, connectionID string) (int64, error) {
	key := connSetPrefix + userID

	pipe := s.rdb.TxPipeline()
	pipe.SRem(ctx, key, connectionID)
	card := pipe.SCard(ctx, key)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("remove connection failed: %w", err)
	}
	return card.Val(), nil
}

func (s *redisConnectionStore) Members(ctx context.Context, userID string) ([]string, error) {
	return s.rdb.SMembers(ctx, connSetPrefix+userID).Result()
}
