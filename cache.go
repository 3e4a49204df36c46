package capsolver

import (
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	defaultCacheSize = 128
	defaultCacheTTL  = 30 * time.Minute
)

type clearanceEntry struct {
	solution Solution
	storedAt time.Time
}

// ClearanceCache keeps Cloudflare challenge solutions per host and proxy.
// cf_clearance is bound to the IP and User-Agent it was issued to, so the
// proxy is part of the key.
type ClearanceCache struct {
	mu    sync.Mutex
	cache *lru.Cache[string, clearanceEntry]
	ttl   time.Duration
	now   func() time.Time
}

// NewClearanceCache creates a cache holding at most size entries that expire after ttl.
// Non-positive values fall back to the defaults.
func NewClearanceCache(size int, ttl time.Duration) *ClearanceCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	cache, err := lru.New[string, clearanceEntry](size)
	if err != nil {
		// lru.New only errors on non-positive size which we guard above.
		panic(err)
	}
	return &ClearanceCache{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
	}
}

// clearanceKey generates a cache key from the lower-cased URL host and proxy.
func clearanceKey(websiteURL, proxy string) string {
	u, err := url.Parse(websiteURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	if proxy == "" {
		proxy = "direct"
	}
	return fmt.Sprintf("%s|%s", strings.ToLower(u.Hostname()), proxy)
}

// Get returns the cached solution for the URL's host and proxy if it has not expired.
func (c *ClearanceCache) Get(websiteURL, proxy string) (Solution, bool) {
	key := clearanceKey(websiteURL, proxy)
	if key == "" {
		return nil, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.cache.Remove(key)
		return nil, false
	}
	return entry.solution, true
}

// Put stores a solution. Solutions without a cf_clearance cookie are ignored.
func (c *ClearanceCache) Put(websiteURL, proxy string, solution Solution) {
	key := clearanceKey(websiteURL, proxy)
	if key == "" || solution.Clearance() == "" {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.cache.Add(key, clearanceEntry{solution: solution, storedAt: c.now()})
}

// Clear removes entries for host, or every entry when host is "".
func (c *ClearanceCache) Clear(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if host == "" {
		c.cache.Purge()
		return
	}
	prefix := strings.ToLower(host) + "|"
	for _, key := range c.cache.Keys() {
		if strings.HasPrefix(key, prefix) {
			c.cache.Remove(key)
		}
	}
}

// Len returns the number of cached entries, including expired ones not yet evicted.
func (c *ClearanceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cache.Len()
}
