// Package template implements the custom-template subsystem (component C):
// validating device-declared event layouts, applying them to decode a
// payload, and caching them in a bounded, expiring cache shared by all
// sessions.
//
// Cache is adapted from the teacher repository's pkg/lrucache: a doubly
// linked list for O(1) LRU touch plus a sync.Cond so that a Lookup racing a
// Define for the same key waits for the in-flight write rather than
// observing a half-built entry (spec.md §5: "the simplest correct strategy
// is per-triple write-through with last-writer-wins").
package template

import (
	"fmt"
	"sync"
	"time"

	"github.com/opendmtp/dmtp-backend/pkg/schema"
)

type cacheEntry struct {
	key        string
	tmpl       schema.Template
	expiration time.Time
	waiters    int

	next, prev *cacheEntry
}

// Cache holds negotiated templates keyed by "account/device/packetType". A
// zero value is not usable; use NewCache.
type Cache struct {
	mu         sync.Mutex
	cond       *sync.Cond
	maxEntries int
	ttl        time.Duration
	entries    map[string]*cacheEntry
	head, tail *cacheEntry
}

// NewCache returns a cache bounded to maxEntries triples, each entry valid
// for ttl before a Lookup falls through to the backing TemplateStore.
func NewCache(maxEntries int, ttl time.Duration) *Cache {
	c := &Cache{maxEntries: maxEntries, ttl: ttl, entries: map[string]*cacheEntry{}}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func cacheKey(accountID, deviceID string, packetType uint8) string {
	return fmt.Sprintf("%s/%s/%d", accountID, deviceID, packetType)
}

// Get returns the cached template for the triple, or ok=false if absent or
// expired. If another goroutine is mid-Put for the same key, Get waits for
// it rather than racing.
func (c *Cache) Get(accountID, deviceID string, packetType uint8) (schema.Template, bool) {
	key := cacheKey(accountID, deviceID, packetType)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return schema.Template{}, false
	}

	for entry.expiration.IsZero() {
		entry.waiters++
		c.cond.Wait()
		entry.waiters--
	}

	if now.After(entry.expiration) {
		c.evict(entry)
		return schema.Template{}, false
	}

	if entry != c.head {
		c.unlink(entry)
		c.insertFront(entry)
	}
	return entry.tmpl, true
}

// Put stores or replaces the template for its (AccountID, DeviceID,
// PacketType) triple, evicting the least-recently-used entry if the cache
// is at capacity.
func (c *Cache) Put(t schema.Template) {
	key := cacheKey(t.AccountID, t.DeviceID, t.PacketType)
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok {
		for entry.expiration.IsZero() {
			entry.waiters++
			c.cond.Wait()
			entry.waiters--
		}
		entry.tmpl = t
		entry.expiration = now.Add(c.ttl)
		c.unlink(entry)
		c.insertFront(entry)
		if entry.waiters > 0 {
			c.cond.Broadcast()
		}
		return
	}

	entry := &cacheEntry{key: key, tmpl: t, expiration: now.Add(c.ttl)}
	c.entries[key] = entry
	c.insertFront(entry)

	if c.maxEntries > 0 {
		for len(c.entries) > c.maxEntries && c.tail != nil {
			candidate := c.tail
			if candidate.waiters == 0 {
				c.evict(candidate)
			} else {
				break
			}
		}
	}
}

// PruneExpired drops every entry whose TTL has elapsed and that has no
// Get in flight, returning the number removed. Intended to be driven
// periodically by the scheduler rather than relying solely on
// opportunistic eviction from Get.
func (c *Cache) PruneExpired() int {
	now := time.Now()
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for e := c.tail; e != nil; {
		prev := e.prev
		if !e.expiration.IsZero() && now.After(e.expiration) && e.waiters == 0 {
			c.evict(e)
			n++
		}
		e = prev
	}
	return n
}

// Del removes the triple's entry, if any.
func (c *Cache) Del(accountID, deviceID string, packetType uint8) {
	key := cacheKey(accountID, deviceID, packetType)
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[key]; ok {
		c.evict(entry)
	}
}

func (c *Cache) insertFront(e *cacheEntry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *Cache) unlink(e *cacheEntry) {
	if e == c.head {
		c.head = e.next
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if e == c.tail {
		c.tail = e.prev
	}
}

func (c *Cache) evict(e *cacheEntry) {
	c.unlink(e)
	delete(c.entries, e.key)
}
