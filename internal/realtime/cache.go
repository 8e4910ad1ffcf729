package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/wonny/aegis-etf/internal/contracts"
	"github.com/wonny/aegis-etf/pkg/logger"
)

// MemoryCache is the in-process recommendation cache used when redis is off
// ⭐ SSOT: 프로세스 내 추천 캐싱은 이 구조체에서만
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]entry
	ttl     time.Duration
	now     func() time.Time
	logger  *logger.Logger
}

type entry struct {
	rec      *contracts.Recommendation
	storedAt time.Time
}

// NewMemoryCache creates a cache whose entries expire after ttl (0 = never)
func NewMemoryCache(ttl time.Duration, log *logger.Logger) *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]entry),
		ttl:     ttl,
		now:     time.Now,
		logger:  log.Component("realtime.cache"),
	}
}

// Put stores rec unless a newer signal date is already cached.
// Same signal date replaces (a recompute of the same day wins).
func (c *MemoryCache) Put(_ context.Context, rec *contracts.Recommendation) error {
	if rec == nil {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[rec.StrategyID]; ok && rec.SignalDate.Before(existing.rec.SignalDate) {
		c.logger.WithFields(map[string]interface{}{
			"strategy": rec.StrategyID,
			"new_date": contracts.DateKey(rec.SignalDate),
			"old_date": contracts.DateKey(existing.rec.SignalDate),
		}).Debug("Rejected older recommendation")
		return nil
	}

	c.entries[rec.StrategyID] = entry{rec: rec, storedAt: c.now()}
	return nil
}

// Latest returns the cached recommendation; expired entries are a miss.
func (c *MemoryCache) Latest(_ context.Context, strategyID string) (*contracts.Recommendation, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[strategyID]
	if !ok || c.expired(e) {
		return nil, false, nil
	}
	return e.rec, true, nil
}

// Len returns the number of cached strategies
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}

// CleanStale removes expired entries
func (c *MemoryCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for id, e := range c.entries {
		if c.expired(e) {
			delete(c.entries, id)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale recommendations")
	}
	return count
}

func (c *MemoryCache) expired(e entry) bool {
	return c.ttl > 0 && c.now().Sub(e.storedAt) > c.ttl
}
