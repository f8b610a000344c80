package cache

import (
	"hash/fnv"
	"sync"
	"time"
)

type pricePoint struct {
	price float64
	at    time.Time
}

type shard struct {
	mu     sync.RWMutex
	points map[string]pricePoint
}

// PriceCache is a sharded symbol -> last-price map. Sharding keeps the
// write-heavy tick path from serializing behind one lock when many symbol
// streams update concurrently.
type PriceCache struct {
	shards []*shard
	now    func() time.Time
}

// NewPriceCache creates a cache with the given shard count (minimum 1).
func NewPriceCache(shards int) *PriceCache {
	if shards < 1 {
		shards = 1
	}
	c := &PriceCache{
		shards: make([]*shard, shards),
		now:    time.Now,
	}
	for i := range c.shards {
		c.shards[i] = &shard{points: make(map[string]pricePoint)}
	}
	return c
}

func (c *PriceCache) shardFor(symbol string) *shard {
	h := fnv.New32a()
	h.Write([]byte(symbol))
	return c.shards[h.Sum32()%uint32(len(c.shards))]
}

// Set records the latest price for symbol.
func (c *PriceCache) Set(symbol string, price float64) {
	s := c.shardFor(symbol)
	s.mu.Lock()
	s.points[symbol] = pricePoint{price: price, at: c.now()}
	s.mu.Unlock()
}

// Get returns the latest price for symbol.
func (c *PriceCache) Get(symbol string) (float64, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	p, ok := s.points[symbol]
	s.mu.RUnlock()
	return p.price, ok
}

// GetWithAge returns the latest price and how long ago it was recorded. The
// feed watchdog uses the age to detect a stalled stream.
func (c *PriceCache) GetWithAge(symbol string) (float64, time.Duration, bool) {
	s := c.shardFor(symbol)
	s.mu.RLock()
	p, ok := s.points[symbol]
	s.mu.RUnlock()
	if !ok {
		return 0, 0, false
	}
	return p.price, c.now().Sub(p.at), true
}

// Snapshot copies the whole cache, for status endpoints.
func (c *PriceCache) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	for _, s := range c.shards {
		s.mu.RLock()
		for sym, p := range s.points {
			out[sym] = p.price
		}
		s.mu.RUnlock()
	}
	return out
}
