package matchcache

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// Entries
// =============================================================================

// Entry is the cached loader result of one match.
type Entry struct {
	Key     string
	RouteID string
	Data    any

	// UpdatedAt is when Data was produced. Put fills it in when zero.
	UpdatedAt time.Time

	// StaleTime is how long Data counts as fresh. A stale hit is served but
	// refetched in the background.
	StaleTime time.Duration

	// GCTime is how long an unreferenced entry survives Sweep.
	GCTime time.Duration

	// Generation is the navigation generation that produced Data. Put never
	// lets an entry replace one from a newer generation.
	Generation uint64

	// Invalid entries are treated as misses regardless of staleness.
	Invalid bool

	// Preload marks entries produced by a preload that no navigation has
	// used yet.
	Preload bool
}

// IsStale reports whether e should be refetched at now.
func (e Entry) IsStale(now time.Time) bool {
	return e.Invalid || now.Sub(e.UpdatedAt) >= e.StaleTime
}

// Age returns how long ago e was produced.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.UpdatedAt)
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits          uint64
	Misses        uint64
	Puts          uint64
	Rejected      uint64
	Evictions     uint64
	Collected     uint64
	Invalidations uint64
	Entries       int
}

// =============================================================================
// Cache
// =============================================================================

// Cache is a keyed store of resolved match data with stale-while-revalidate
// and garbage-collection policies. It is safe for concurrent use.
//
// Entries referenced by an active match (Retain) are never collected or
// evicted. Unreferenced entries are collected by Sweep once GCTime has passed
// since they were last released or written, and evicted least recently used
// first when the cache is bounded with WithMaxEntries.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List // LRU order (front = most recent)
	stats   Stats

	maxEntries int
	now        func() time.Time
	logger     *slog.Logger
}

// item holds an entry in the LRU list.
type item struct {
	entry Entry
	refs  int

	// idleSince is when the entry last became unreferenced.
	idleSince time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithMaxEntries bounds the number of entries. Zero means unbounded.
func WithMaxEntries(n int) Option {
	return func(c *Cache) { c.maxEntries = n }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for collection and eviction.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		now:     time.Now,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Now returns the cache clock's current time.
func (c *Cache) Now() time.Time { return c.now() }

// Get returns the entry stored under key. An invalid entry is returned but
// counted as a miss.
func (c *Cache) Get(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		return Entry{}, false
	}
	it := elem.Value.(*item)
	if it.entry.Invalid {
		c.stats.Misses++
	} else {
		c.stats.Hits++
	}
	c.order.MoveToFront(elem)
	return it.entry, true
}

// Put stores e under key and reports whether it was accepted. An entry from
// an older generation than the stored one is rejected.
func (c *Cache) Put(key string, e Entry) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	e.Key = key
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = now
	}

	if elem, ok := c.entries[key]; ok {
		it := elem.Value.(*item)
		if e.Generation < it.entry.Generation {
			c.stats.Rejected++
			return false
		}
		it.entry = e
		if it.refs == 0 {
			it.idleSince = now
		}
		c.order.MoveToFront(elem)
		c.stats.Puts++
		return true
	}

	c.entries[key] = c.order.PushFront(&item{entry: e, idleSince: now})
	c.stats.Puts++
	c.evictLocked()
	return true
}

// evictLocked drops unreferenced entries, least recently used first, until
// the cache fits maxEntries. The most recent entry is never evicted.
func (c *Cache) evictLocked() {
	if c.maxEntries <= 0 {
		return
	}
	front := c.order.Front()
	for elem := c.order.Back(); elem != nil && elem != front && c.order.Len() > c.maxEntries; {
		prev := elem.Prev()
		it := elem.Value.(*item)
		if it.refs == 0 {
			c.order.Remove(elem)
			delete(c.entries, it.entry.Key)
			c.stats.Evictions++
			c.logger.Debug("match cache evicted", "key", it.entry.Key)
		}
		elem = prev
	}
}

// Invalidate marks every entry matching pred invalid and returns how many
// were marked. A nil pred matches everything.
func (c *Cache) Invalidate(pred func(Entry) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, elem := range c.entries {
		it := elem.Value.(*item)
		if pred != nil && !pred(it.entry) {
			continue
		}
		if !it.entry.Invalid {
			it.entry.Invalid = true
			n++
		}
	}
	c.stats.Invalidations += uint64(n)
	return n
}

// InvalidateRoute invalidates every entry of a route.
func (c *Cache) InvalidateRoute(routeID string) int {
	return c.Invalidate(func(e Entry) bool { return e.RouteID == routeID })
}

// Retain records that an active match references key. It reports whether
// the key exists.
func (c *Cache) Retain(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	elem.Value.(*item).refs++
	return true
}

// Release drops a reference taken with Retain. The GC clock of the entry
// starts when its last reference is released.
func (c *Cache) Release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return
	}
	it := elem.Value.(*item)
	if it.refs == 0 {
		return
	}
	it.refs--
	if it.refs == 0 {
		it.idleSince = c.now()
		c.evictLocked()
	}
}

// Refs returns the number of references held on key.
func (c *Cache) Refs(key string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		return elem.Value.(*item).refs
	}
	return 0
}

// Sweep removes unreferenced entries idle for longer than their GCTime and
// returns how many were removed.
func (c *Cache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for key, elem := range c.entries {
		it := elem.Value.(*item)
		if it.refs > 0 || now.Sub(it.idleSince) < it.entry.GCTime {
			continue
		}
		c.order.Remove(elem)
		delete(c.entries, key)
		n++
	}
	c.stats.Collected += uint64(n)
	if n > 0 {
		c.logger.Debug("match cache swept", "collected", n, "remaining", len(c.entries))
	}
	return n
}

// Run sweeps the cache every interval until ctx is done.
func (c *Cache) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Delete removes a cached entry.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[key]; ok {
		c.order.Remove(elem)
		delete(c.entries, key)
	}
}

// Clear removes all cached entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order = list.New()
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Keys returns the cached keys, most recently used first.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := make([]string, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		keys = append(keys, elem.Value.(*item).entry.Key)
	}
	return keys
}

// Entries returns a snapshot of every entry, most recently used first.
func (c *Cache) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]Entry, 0, c.order.Len())
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*item).entry)
	}
	return out
}

// Stats returns a snapshot of the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.stats
	s.Entries = len(c.entries)
	return s
}
