package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/questline/eventhub/internal/services/eventhub/domain"
)

// DefaultTTL is how long a fetched catalog is served before the upstream
// provider is asked again.
const DefaultTTL = 2 * time.Minute

// Cached wraps a Provider with a time-based cache so hot paths do not hit
// the upstream source on every event.
type Cached struct {
	upstream Provider
	ttl      time.Duration
	clock    func() time.Time

	mu             sync.Mutex
	quests         []domain.Quest
	questsFetched  time.Time
	players        []domain.RosterPlayer
	playersFetched time.Time
}

// NewCached creates a caching provider with the given TTL. A non-positive
// ttl falls back to DefaultTTL.
func NewCached(upstream Provider, ttl time.Duration) *Cached {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cached{upstream: upstream, ttl: ttl, clock: time.Now}
}

// Quests returns the cached quest list, refreshing it when stale.
func (c *Cached) Quests(ctx context.Context) ([]domain.Quest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.quests != nil && now.Sub(c.questsFetched) < c.ttl {
		return c.quests, nil
	}
	quests, err := c.upstream.Quests(ctx)
	if err != nil {
		return nil, err
	}
	c.quests = quests
	c.questsFetched = now
	return quests, nil
}

// Players returns the cached roster, refreshing it when stale.
func (c *Cached) Players(ctx context.Context) ([]domain.RosterPlayer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock()
	if c.players != nil && now.Sub(c.playersFetched) < c.ttl {
		return c.players, nil
	}
	players, err := c.upstream.Players(ctx)
	if err != nil {
		return nil, err
	}
	c.players = players
	c.playersFetched = now
	return players, nil
}

var _ Provider = (*Cached)(nil)
