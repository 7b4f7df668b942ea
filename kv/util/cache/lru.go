package cache

import (
	"container/list"
	"sync"
)

// LRU is a bounded Cache that drops the least recently used item when it
// grows past its capacity. It is safe for concurrent use.
type LRU struct {
	sync.Mutex

	// maxCount is the maximum number of items.
	// 0 means no limit.
	maxCount int
	onEvict  EvictFunc

	ll    *list.List
	cache map[uint64]*list.Element
}

// NewLRU returns a new LRU cache holding at most maxCount items.
func NewLRU(maxCount int, onEvict EvictFunc) *LRU {
	return &LRU{
		maxCount: maxCount,
		onEvict:  onEvict,
		ll:       list.New(),
		cache:    make(map[uint64]*list.Element),
	}
}

// Put puts an item into cache.
func (c *LRU) Put(key uint64, value interface{}) {
	c.Lock()
	var evicted []*Item
	if ele, ok := c.cache[key]; ok {
		c.ll.MoveToFront(ele)
		ele.Value.(*Item).Value = value
	} else {
		kv := &Item{Key: key, Value: value}
		c.cache[key] = c.ll.PushFront(kv)
		for c.maxCount != 0 && c.ll.Len() > c.maxCount {
			evicted = append(evicted, c.removeOldest())
		}
	}
	c.Unlock()

	// The callback runs without the lock so it may use the cache.
	if c.onEvict != nil {
		for _, item := range evicted {
			c.onEvict(item.Key, item.Value)
		}
	}
}

// Get retrives an item from cache.
func (c *LRU) Get(key uint64) (interface{}, bool) {
	c.Lock()
	defer c.Unlock()

	if ele, ok := c.cache[key]; ok {
		c.ll.MoveToFront(ele)
		return ele.Value.(*Item).Value, true
	}
	return nil, false
}

// Remove eliminates an item from cache.
func (c *LRU) Remove(key uint64) {
	c.Lock()
	defer c.Unlock()

	if ele, ok := c.cache[key]; ok {
		c.removeElement(ele)
	}
}

func (c *LRU) removeOldest() *Item {
	ele := c.ll.Back()
	if ele == nil {
		return nil
	}
	c.removeElement(ele)
	return ele.Value.(*Item)
}

func (c *LRU) removeElement(ele *list.Element) {
	c.ll.Remove(ele)
	kv := ele.Value.(*Item)
	delete(c.cache, kv.Key)
}

// Len returns current cache size.
func (c *LRU) Len() int {
	c.Lock()
	defer c.Unlock()

	return c.ll.Len()
}
