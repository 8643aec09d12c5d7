package dma

import (
	"container/list"
	"sync"
)

const pageSize = 4096

// PageCache is an optional page-aligned LRU decorator over a ReadFunc. It
// is safe to omit entirely; nothing in this repo requires it.
//
// A read that spans multiple pages, or starts mid-page, falls through to
// the wrapped ReadFunc uncached — caching only ever serves whole-page reads
// that start on a page boundary, the access pattern the emulator's fault
// handler and the pattern/string range scanners actually use.
type PageCache struct {
	mu       sync.Mutex
	capacity int
	entries  map[uint64]*list.Element
	order    *list.List
}

type cacheEntry struct {
	page uint64
	data []byte
}

// NewPageCache creates a cache holding up to capacity pages.
func NewPageCache(capacity int) *PageCache {
	if capacity <= 0 {
		capacity = 1024
	}
	return &PageCache{
		capacity: capacity,
		entries:  make(map[uint64]*list.Element),
		order:    list.New(),
	}
}

// Wrap returns a ReadFunc that serves whole-page reads from the cache and
// falls through to next for everything else, populating the cache as it
// goes.
func (c *PageCache) Wrap(next ReadFunc) ReadFunc {
	return func(addr uint64, length int) []byte {
		if length != pageSize || addr%pageSize != 0 {
			return next(addr, length)
		}

		c.mu.Lock()
		if el, ok := c.entries[addr]; ok {
			c.order.MoveToFront(el)
			data := el.Value.(*cacheEntry).data
			c.mu.Unlock()
			out := make([]byte, len(data))
			copy(out, data)
			return out
		}
		c.mu.Unlock()

		data := next(addr, length)
		if len(data) != pageSize {
			return data
		}

		cached := make([]byte, pageSize)
		copy(cached, data)

		c.mu.Lock()
		el := c.order.PushFront(&cacheEntry{page: addr, data: cached})
		c.entries[addr] = el
		for c.order.Len() > c.capacity {
			oldest := c.order.Back()
			if oldest == nil {
				break
			}
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).page)
		}
		c.mu.Unlock()

		return data
	}
}

// Invalidate drops every cached page. Call this after the backing
// connection is reestablished so the cache never serves data observed
// before a reconnect.
func (c *PageCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[uint64]*list.Element)
	c.order.Init()
}
