package cache

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/workmesh/marketmirror/internal/logger"
	"github.com/workmesh/marketmirror/pkg/config"
)

// Key builders. Every read path and every invalidation uses these so the two
// can never disagree on naming.

// JobKey is the cache key for a single job.
func JobKey(jobID uint64) string {
	return fmt.Sprintf("job:%d", jobID)
}

// JobListKey is the cache key for a filtered job listing. Empty status or
// category means "any".
func JobListKey(status, category string, cursor uint64, limit int) string {
	return fmt.Sprintf("jobs:%s:%s:%d:%d", status, category, cursor, limit)
}

// jobListPrefix matches every job listing regardless of filter.
const jobListPrefix = "jobs:"

// EscrowByJobKey is the cache key for the escrow attached to a job.
func EscrowByJobKey(jobID uint64) string {
	return fmt.Sprintf("escrow:job:%d", jobID)
}

// ReputationKey is the cache key for a reputation aggregate.
func ReputationKey(accountHash common.Hash) string {
	return fmt.Sprintf("rep:%s", accountHash.Hex())
}

// Cache is a bounded in-process read cache over the state store. Entries
// expire after the configured TTL, but the reconciler invalidates affected
// keys synchronously on every commit, so the TTL only backstops bugs.
type Cache struct {
	lru *expirable.LRU[string, any]
	log *logger.Logger
}

// New creates a cache sized and aged per the configuration.
func New(cfg *config.CacheConfig, log *logger.Logger) *Cache {
	size := 4096
	ttl := 5 * time.Minute
	if cfg != nil {
		if cfg.Size > 0 {
			size = cfg.Size
		}
		if cfg.TTL.Duration > 0 {
			ttl = cfg.TTL.Duration
		}
	}

	return &Cache{
		lru: expirable.NewLRU[string, any](size, nil, ttl),
		log: log.WithComponent("cache"),
	}
}

// Get returns the cached value for key, if present and fresh.
func (c *Cache) Get(key string) (any, bool) {
	value, ok := c.lru.Get(key)
	if ok {
		HitsInc()
	} else {
		MissesInc()
	}
	return value, ok
}

// Set stores a value under key.
func (c *Cache) Set(key string, value any) {
	c.lru.Add(key, value)
}

// Invalidate drops the given keys. Called in the same goroutine that commits
// the corresponding state change, before the next event is applied.
func (c *Cache) Invalidate(keys ...string) {
	for _, key := range keys {
		c.lru.Remove(key)
	}
	InvalidationsAdd(len(keys))
}

// InvalidateJobLists drops every cached job listing. Listings are keyed by
// filter combination, so any job mutation may affect an unknown set of them.
func (c *Cache) InvalidateJobLists() {
	removed := 0
	for _, key := range c.lru.Keys() {
		if strings.HasPrefix(key, jobListPrefix) {
			c.lru.Remove(key)
			removed++
		}
	}
	InvalidationsAdd(removed)
}

// Purge drops everything.
func (c *Cache) Purge() {
	c.lru.Purge()
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}
