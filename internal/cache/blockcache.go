// Package cache holds fetched blocks and the transaction index derived from them.
//
// BlockCache owns block storage. TxIndex only maps transaction ids to block
// numbers and is kept in step with the cache through the Observer hook, which
// the cache invokes while holding its lock. Every index entry therefore points
// at a block the cache currently holds.
package cache

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/decentium/decentium-go/internal/metrics"
	"github.com/decentium/decentium-go/internal/models"
)

// DefaultMaxBlocks is the capacity used when Config.MaxBlocks is zero.
const DefaultMaxBlocks = 10000

// Observer is notified synchronously of every change to the cached block set.
type Observer interface {
	// BlockStored is called after block has been added or refreshed.
	BlockStored(block *models.Block)
	// BlockEvicted is called when block leaves the cache, whatever the reason.
	BlockEvicted(block *models.Block)
}

// Config bounds the block cache.
type Config struct {
	// MaxBlocks is the number of blocks kept before the least recently used is evicted.
	MaxBlocks int
	// MaxAge evicts blocks stored longer ago than this. Zero disables the age bound.
	MaxAge time.Duration
}

type entry struct {
	block    *models.Block
	storedAt time.Time
}

// BlockCache is a bounded block-number to block map.
type BlockCache struct {
	mu       sync.Mutex
	lru      *lru.LRU[uint32, entry]
	maxAge   time.Duration
	observer Observer
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time

	// reason is the label for evictions triggered by the current locked operation.
	reason string
}

// NewBlockCache creates a block cache. observer may be nil.
func NewBlockCache(cfg Config, observer Observer, m *metrics.Metrics, logger *slog.Logger) (*BlockCache, error) {
	if cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = DefaultMaxBlocks
	}
	if cfg.MaxAge < 0 {
		return nil, fmt.Errorf("max age must not be negative: %s", cfg.MaxAge)
	}
	if m == nil {
		m = metrics.New(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &BlockCache{
		maxAge:   cfg.MaxAge,
		observer: observer,
		metrics:  m,
		logger:   logger.With("component", "block-cache"),
		now:      time.Now,
		reason:   metrics.ReasonCapacity,
	}
	l, err := lru.NewLRU[uint32, entry](cfg.MaxBlocks, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create block LRU: %w", err)
	}
	c.lru = l
	return c, nil
}

// onEvict runs under c.mu for every entry the LRU drops.
func (c *BlockCache) onEvict(number uint32, e entry) {
	c.metrics.CacheEvictions.WithLabelValues(c.reason).Inc()
	c.logger.Debug("Block evicted", "block", number, "reason", c.reason)
	if c.observer != nil {
		c.observer.BlockEvicted(e.block)
	}
}

// removeLocked evicts number for reason. Caller holds c.mu.
func (c *BlockCache) removeLocked(number uint32, reason string) {
	c.reason = reason
	c.lru.Remove(number)
	c.reason = metrics.ReasonCapacity
}

func (c *BlockCache) expired(e entry) bool {
	return c.maxAge > 0 && c.now().Sub(e.storedAt) > c.maxAge
}

// Get returns the cached block. It never touches the network. An entry older
// than MaxAge is evicted and reported as a miss.
func (c *BlockCache) Get(number uint32) (*models.Block, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.lru.Get(number)
	if ok && c.expired(e) {
		c.removeLocked(number, metrics.ReasonAge)
		ok = false
	}
	if !ok {
		c.metrics.CacheMisses.Inc()
		return nil, false
	}
	c.metrics.CacheHits.Inc()
	return e.block, true
}

// Put stores block, replacing any block cached under the same number.
func (c *BlockCache) Put(block *models.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.lru.Peek(block.Number); ok {
		c.removeLocked(block.Number, metrics.ReasonReplaced)
	}
	c.lru.Add(block.Number, entry{block: block, storedAt: c.now()})
	if c.observer != nil {
		c.observer.BlockStored(block)
	}
}

// Prune evicts every block older than MaxAge.
func (c *BlockCache) Prune() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.maxAge <= 0 {
		return 0
	}
	pruned := 0
	for _, number := range c.lru.Keys() {
		e, ok := c.lru.Peek(number)
		if ok && c.expired(e) {
			c.removeLocked(number, metrics.ReasonAge)
			pruned++
		}
	}
	if pruned > 0 {
		c.logger.Debug("Pruned expired blocks", "count", pruned)
	}
	return pruned
}

// SetMaxAge changes the age bound. Existing entries are judged against the new
// bound on their next lookup or on Prune.
func (c *BlockCache) SetMaxAge(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxAge = d
}

// Purge evicts every block.
func (c *BlockCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reason = metrics.ReasonPurge
	c.lru.Purge()
	c.reason = metrics.ReasonCapacity
}

// Len returns the number of cached blocks, expired or not.
func (c *BlockCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}
