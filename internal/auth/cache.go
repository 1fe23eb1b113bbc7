package auth

import (
	"sync"
	"sync/atomic"
	"time"
)

// maxStaleFactor bounds how many TTLs past expiry an entry may still be
// served stale. Older entries are misses and re-verify synchronously.
const maxStaleFactor = 4

// AuthCache is a TTL-based in-memory cache of verified callers keyed by a
// token digest. Uses sync.Map for lock-free reads on the hot path.
//
// Stale-while-revalidate: within maxStaleFactor TTLs of expiry Get still
// returns the stale caller and asks for one background re-verification.
type AuthCache struct {
	store sync.Map // map[string]*cacheEntry
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	caller     *Caller
	expiresAt  time.Time
	refreshing atomic.Bool // prevents duplicate background refreshes
}

// NewAuthCache creates a cache with the given TTL.
func NewAuthCache(ttl time.Duration) *AuthCache {
	return &AuthCache{ttl: ttl, now: time.Now}
}

// GetResult holds the result of a cache lookup.
type GetResult struct {
	Caller       *Caller
	Hit          bool // true if a value was found (fresh or stale)
	NeedsRefresh bool // true if the entry is expired and should be re-verified in the background
}

// Get looks up key in the cache.
//
// Returns:
//   - Fresh hit:  {Caller, Hit=true,  NeedsRefresh=false}
//   - Stale hit:  {Caller, Hit=true,  NeedsRefresh=true}  (serve stale, refresh in background)
//   - Miss:       {nil,    Hit=false, NeedsRefresh=false}, also for entries too stale to serve
//
// Only the first caller to see a stale entry gets NeedsRefresh.
func (c *AuthCache) Get(key string) GetResult {
	val, ok := c.store.Load(key)
	if !ok {
		return GetResult{}
	}

	entry := val.(*cacheEntry)
	now := c.now()
	if now.Before(entry.expiresAt) {
		return GetResult{Caller: entry.caller, Hit: true}
	}
	if now.After(entry.expiresAt.Add(maxStaleFactor * c.ttl)) {
		c.store.CompareAndDelete(key, entry)
		return GetResult{}
	}

	needsRefresh := entry.refreshing.CompareAndSwap(false, true)
	return GetResult{
		Caller:       entry.caller,
		Hit:          true,
		NeedsRefresh: needsRefresh,
	}
}

// Set stores a caller in the cache with the configured TTL.
func (c *AuthCache) Set(key string, caller *Caller) {
	c.store.Store(key, &cacheEntry{
		caller:    caller,
		expiresAt: c.now().Add(c.ttl),
	})
}

// Len counts the cached entries.
func (c *AuthCache) Len() int {
	n := 0
	c.store.Range(func(any, any) bool {
		n++
		return true
	})
	return n
}

// Delete removes an entry from the cache.
func (c *AuthCache) Delete(key string) {
	c.store.Delete(key)
}

// Clear drops every entry. Used when the accepted token changes.
func (c *AuthCache) Clear() {
	c.store.Clear()
}
