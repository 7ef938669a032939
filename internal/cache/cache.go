// Handles caching of GitHub API responses
package cache

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// GenericCache is the lookup surface used by the fetch wrapper and the proxy.
type GenericCache interface {
	// retrieves the payload stored for this request if it exists and is not expired
	Get(url string, headers Headers) (any, bool)
	// stores the payload, replacing whatever was stored for this request
	Set(url string, headers Headers, payload any)
}

// Stats counts cache activity since creation or the last Clear.
type Stats struct {
	Hits      uint64
	Misses    uint64
	Sets      uint64
	Evictions uint64
}

// ResponseCache memoizes decoded JSON responses in memory with per-URL TTLs.
// It is safe for concurrent use.
type ResponseCache struct {
	mu      sync.Mutex
	entries map[string]Entry
	stats   Stats

	now    func() time.Time
	policy *Policy
}

var _ GenericCache = (*ResponseCache)(nil)

// Option configures a ResponseCache
type Option func(*ResponseCache)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) {
		c.now = now
	}
}

// WithPolicy sets the TTL policy. A nil policy keeps the default.
func WithPolicy(p *Policy) Option {
	return func(c *ResponseCache) {
		if p != nil {
			c.policy = p
		}
	}
}

// New creates an empty cache using DefaultPolicy unless told otherwise.
func New(opts ...Option) *ResponseCache {
	c := &ResponseCache{
		entries: make(map[string]Entry),
		now:     time.Now,
		policy:  DefaultPolicy(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Policy returns the TTL policy in use.
func (c *ResponseCache) Policy() *Policy {
	return c.policy
}

// Get returns the payload stored for url and headers. An expired entry is deleted
// and reported as absent.
func (c *ResponseCache) Get(url string, headers Headers) (any, bool) {
	key := Key(url, headers)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	if entry.Expired(c.now()) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Evictions++
		logrus.Debugf("Cache entry expired for %s", url)
		return nil, false
	}

	c.stats.Hits++
	logrus.Debugf("Cache hit for %s", url)
	return entry.Payload, true
}

// Set stores payload for url and headers with the TTL the policy picks for url.
func (c *ResponseCache) Set(url string, headers Headers, payload any) {
	key := Key(url, headers)
	ttl := c.policy.TTLFor(url)

	c.mu.Lock()
	c.entries[key] = Entry{Payload: payload, StoredAt: c.now(), TTL: ttl}
	c.stats.Sets++
	c.mu.Unlock()

	logrus.Debugf("Cached response for %s (ttl %s)", url, ttl)
}

// Cleanup removes every expired entry and returns how many were removed.
func (c *ResponseCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, entry := range c.entries {
		if entry.Expired(now) {
			delete(c.entries, key)
			removed++
		}
	}
	c.stats.Evictions += uint64(removed)
	return removed
}

// Clear drops every entry and resets the counters.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	clear(c.entries)
	c.stats = Stats{}
	c.mu.Unlock()
}

// Len is the number of stored entries, including expired ones not yet evicted.
func (c *ResponseCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of the counters.
func (c *ResponseCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}
