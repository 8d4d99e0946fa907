package engine

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"

	"golang.org/x/sync/singleflight"
)

// LoadObserver is told about every load the cache performs.
type LoadObserver interface {
	ObserveLoad(stats LoadStats, err error)
}

// Cache memoises normalised Datasets by source. Each source is loaded at
// most once until it is invalidated; concurrent first requests share a
// single load. Cached Datasets are immutable and may be shared freely.
type Cache struct {
	mu       sync.RWMutex
	entries  map[Source]*Dataset
	gens     map[string]uint64 // path -> invalidation count
	group    singleflight.Group
	load     func(Source) (*Dataset, error)
	observer LoadObserver
}

type CacheOption func(*Cache)

// WithObserver reports each load to o.
func WithObserver(o LoadObserver) CacheOption {
	return func(c *Cache) { c.observer = o }
}

// WithLoader replaces Load, mostly for tests.
func WithLoader(fn func(Source) (*Dataset, error)) CacheOption {
	return func(c *Cache) { c.load = fn }
}

func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[Source]*Dataset),
		gens:    make(map[string]uint64),
		load:    Load,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func normalizeSource(src Source) Source {
	src.Path = filepath.Clean(src.Path)
	if src.Encoding == "" {
		src.Encoding = EncodingUTF8
	}
	return src
}

func (src Source) key() string {
	return string(src.Encoding) + "|" + src.Path
}

// Dataset returns the cached Dataset for src, loading it on first use.
// A failed load is not cached, and neither is a load that was invalidated
// while in flight.
func (c *Cache) Dataset(ctx context.Context, src Source) (*Dataset, error) {
	src = normalizeSource(src)
	c.mu.RLock()
	ds, ok := c.entries[src]
	gen := c.gens[src.Path]
	c.mu.RUnlock()
	if ok {
		return ds, nil
	}

	key := src.key() + "|" + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(key, func() (any, error) {
		if ds, ok := c.Peek(src); ok {
			return ds, nil
		}
		ds, err := c.load(src)
		if c.observer != nil {
			var stats LoadStats
			if ds != nil {
				stats = ds.Stats()
			}
			c.observer.ObserveLoad(stats, err)
		}
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		if c.gens[src.Path] == gen {
			c.entries[src] = ds
		}
		c.mu.Unlock()
		return ds, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Dataset), nil
	}
}

// Peek returns the cached Dataset for src without loading.
func (c *Cache) Peek(src Source) (*Dataset, bool) {
	src = normalizeSource(src)
	c.mu.RLock()
	defer c.mu.RUnlock()
	ds, ok := c.entries[src]
	return ds, ok
}

// Invalidate drops every entry for path, whatever its encoding, and
// returns how many were removed. Loads of path already in flight still
// answer their callers but are not cached.
func (c *Cache) Invalidate(path string) int {
	path = filepath.Clean(path)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[path]++
	n := 0
	for src := range c.entries {
		if src.Path == path {
			delete(c.entries, src)
			n++
		}
	}
	return n
}
