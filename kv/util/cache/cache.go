// Package cache holds the bounded in-memory caches used by the datastore,
// keyed by numeric handles such as cursor ids.
package cache

// Item is one cached handle and its value.
type Item struct {
	Key   uint64
	Value interface{}
}

// Cache is implemented by LRU.
type Cache interface {
	Put(key uint64, value interface{})
	// Get returns the value of key and marks it as used.
	Get(key uint64) (interface{}, bool)
	Remove(key uint64)
	Len() int
}

// EvictFunc is called with every item the cache drops on its own.
type EvictFunc func(key uint64, value interface{})
