package dedup

import (
	"container/list"
	"fmt"
	"sync"
)

// Checker implements two-tier deduplication for at-least-once inbound
// events: an in-process LRU in front of the durable claims tables.
// The LRU only short-circuits redeliveries that this process has already
// settled; the database claim remains the authoritative safety net.
type Checker struct {
	mu  sync.Mutex
	lru *LRU

	dbChecker DBChecker
}

// DBChecker is the durable dedup lookup, backed by the processed-orders
// and affiliation-claims tables.
type DBChecker interface {
	IsDuplicate(kind string, key string) (bool, error)
}

func NewChecker(capacity int, dbChecker DBChecker) *Checker {
	return &Checker{
		lru:       NewLRU(capacity),
		dbChecker: dbChecker,
	}
}

// IsDuplicate checks whether an event was already settled (two-tier lookup).
func (c *Checker) IsDuplicate(kind, key string) bool {
	compositeKey := fmt.Sprintf("%s:%s", kind, key)

	// Tier 1: LRU check (hot path)
	c.mu.Lock()
	hit := c.lru.Contains(compositeKey)
	c.mu.Unlock()
	if hit {
		return true
	}

	// Tier 2: durable check (cold path)
	if c.dbChecker != nil {
		isDup, err := c.dbChecker.IsDuplicate(kind, key)
		if err != nil {
			// Conservative: assume not duplicate. The transactional claim
			// on the write path still blocks a double-apply; a DB blip here
			// must not stall event processing.
			return false
		}

		if isDup {
			// Add to LRU so we don't hit the DB again
			c.mu.Lock()
			c.lru.Add(compositeKey)
			c.mu.Unlock()
			return true
		}
	}

	return false
}

// MarkSettled adds the key to the LRU after successful processing.
func (c *Checker) MarkSettled(kind, key string) {
	c.mu.Lock()
	c.lru.Add(fmt.Sprintf("%s:%s", kind, key))
	c.mu.Unlock()
}

// --- LRU Implementation ---

// LRU is a fixed-capacity cache of settled event keys.
// Not thread-safe on its own — Checker serializes access; handlers are
// concurrently invokable.
type LRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

type lruEntry struct {
	key string
}

func NewLRU(capacity int) *LRU {
	return &LRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

// Contains checks if key exists (promotes to front)
func (lru *LRU) Contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

// Add inserts a key (or promotes if exists)
func (lru *LRU) Add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	entry := &lruEntry{key: key}
	elem := lru.lruList.PushFront(entry)
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		lru.evictOldest()
	}
}

func (lru *LRU) evictOldest() {
	elem := lru.lruList.Back()
	if elem != nil {
		lru.lruList.Remove(elem)
		entry := elem.Value.(*lruEntry)
		delete(lru.cache, entry.key)
		lru.evictions++
	}
}

// Size returns current number of entries
func (lru *LRU) Size() int {
	return lru.lruList.Len()
}

// Evictions returns total evictions (for metrics)
func (lru *LRU) Evictions() int64 {
	return lru.evictions
}
