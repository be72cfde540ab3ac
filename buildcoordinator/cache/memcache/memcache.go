// Package memcache is an in-process, bounded LRU implementation of
// buildcoordinator.BinaryArchiveCache: a container/list-backed
// least-recently-used eviction cache keyed by BuildCacheKey.
package memcache

import (
	"container/list"
	"context"
	"sync"

	"github.com/distribution/wheelcore/buildcoordinator"
)

// Cache is a bounded, in-process LRU BinaryArchiveCache.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[string]*list.Element
}

type entry struct {
	key     string
	archive *buildcoordinator.BinaryArchive
}

// New constructs a Cache holding at most capacity archives.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	return &Cache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
	}
}

func (c *Cache) Get(ctx context.Context, key buildcoordinator.BuildCacheKey) (*buildcoordinator.BinaryArchive, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	el, ok := c.items[k]
	if !ok {
		return nil, false, nil
	}
	c.ll.MoveToFront(el)
	return el.Value.(*entry).archive, true, nil
}

func (c *Cache) Put(ctx context.Context, key buildcoordinator.BuildCacheKey, archive *buildcoordinator.BinaryArchive) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	k := key.String()
	if el, ok := c.items[k]; ok {
		c.ll.MoveToFront(el)
		el.Value.(*entry).archive = archive
		return nil
	}

	el := c.ll.PushFront(&entry{key: k, archive: archive})
	c.items[k] = el

	if c.ll.Len() > c.capacity {
		c.evictOldest()
	}
	return nil
}

func (c *Cache) evictOldest() {
	el := c.ll.Back()
	if el == nil {
		return
	}
	c.ll.Remove(el)
	delete(c.items, el.Value.(*entry).key)
}

// Len reports the number of archives currently cached.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
