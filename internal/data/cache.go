package data

import (
	"context"
	"fmt"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/pkg/redis"
)

// SignalCache keeps the latest recommendation of each strategy in redis.
// A disabled redis client turns every call into a no-op miss.
type SignalCache struct {
	cache *redis.Cache
}

// NewSignalCache creates a cache under the "aegis-etf" prefix.
func NewSignalCache(client *redis.Client) *SignalCache {
	return &SignalCache{cache: redis.NewCache(client, "aegis-etf")}
}

// Put stores rec as the latest and as the dated entry.
func (c *SignalCache) Put(ctx context.Context, rec *contracts.Recommendation) error {
	if err := c.cache.Set(ctx, redis.LatestSignalKey(rec.StrategyID), rec, redis.TTLWeek); err != nil {
		return fmt.Errorf("failed to cache latest signal: %w", err)
	}
	dated := redis.SignalKey(rec.StrategyID, contracts.DateKey(rec.SignalDate))
	if err := c.cache.Set(ctx, dated, rec, redis.TTLWeek); err != nil {
		return fmt.Errorf("failed to cache dated signal: %w", err)
	}
	return nil
}

// Latest returns the cached recommendation; ok is false on a miss.
func (c *SignalCache) Latest(ctx context.Context, strategyID string) (*contracts.Recommendation, bool, error) {
	var rec contracts.Recommendation
	ok, err := c.cache.Get(ctx, redis.LatestSignalKey(strategyID), &rec)
	if err != nil || !ok {
		return nil, false, err
	}
	return &rec, true, nil
}
