package parser

import (
	"container/list"

	"pdflib/ir/raw"
)

// Cache stores loaded objects keyed by reference.
type Cache interface {
	Get(ref raw.ObjectRef) (raw.Object, bool)
	Put(ref raw.ObjectRef, obj raw.Object)
	Len() int
}

// lruCache is a strictly bounded MRU-front list with a map index. Get
// promotes, Put evicts from the tail when full. A Document is owned by a
// single goroutine, so there is no locking.
type lruCache struct {
	capacity int
	order    *list.List
	index    map[raw.ObjectRef]*list.Element
}

type cacheSlot struct {
	ref raw.ObjectRef
	obj raw.Object
}

// DefaultCacheSize matches the object cache bound the loader uses when the
// caller does not choose one.
const DefaultCacheSize = 200

func NewLRUCache(capacity int) Cache {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	return &lruCache{
		capacity: capacity,
		order:    list.New(),
		index:    make(map[raw.ObjectRef]*list.Element, capacity),
	}
}

func (c *lruCache) Get(ref raw.ObjectRef) (raw.Object, bool) {
	el, ok := c.index[ref]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(el)
	return el.Value.(*cacheSlot).obj, true
}

func (c *lruCache) Put(ref raw.ObjectRef, obj raw.Object) {
	if el, ok := c.index[ref]; ok {
		el.Value.(*cacheSlot).obj = obj
		c.order.MoveToFront(el)
		return
	}
	if c.order.Len() >= c.capacity {
		tail := c.order.Back()
		if tail != nil {
			// unindex before unlinking so a failed eviction cannot leave a
			// stale map entry behind
			delete(c.index, tail.Value.(*cacheSlot).ref)
			c.order.Remove(tail)
		}
	}
	c.index[ref] = c.order.PushFront(&cacheSlot{ref: ref, obj: obj})
}

func (c *lruCache) Len() int { return c.order.Len() }
