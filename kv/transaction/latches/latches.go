package latches

import "sync"

// Latches serialize the read-modify-write of the id counter cell of one
// (app, kind). A latch only guarantees that two holders of the same key
// never run concurrently.
//
// Every key set is taken as a whole: a caller either holds all of its keys
// or none of them.
type Latches struct {
	// held maps a latched key to the WaitGroup of its holder. Waiters block on
	// that group and retry once it is done.
	held map[string]*sync.WaitGroup
	mu   sync.Mutex
}

// NewLatches returns an empty latch table. Share one table per keyspace.
func NewLatches() *Latches {
	return &Latches{held: make(map[string]*sync.WaitGroup)}
}

// AcquireLatches takes every key in keys and returns nil, or takes nothing
// and returns the WaitGroup of a current holder of one of them.
func (l *Latches) AcquireLatches(keys [][]byte) *sync.WaitGroup {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, key := range keys {
		if holder, ok := l.held[string(key)]; ok {
			return holder
		}
	}
	wg := new(sync.WaitGroup)
	wg.Add(1)
	for _, key := range keys {
		l.held[string(key)] = wg
	}
	return nil
}

// ReleaseLatches drops keys and wakes their waiters. keys must be the set
// passed to the successful AcquireLatches call.
func (l *Latches) ReleaseLatches(keys [][]byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i, key := range keys {
		if wg, ok := l.held[string(key)]; ok && i == 0 {
			wg.Done()
		}
		delete(l.held, string(key))
	}
}

// WaitForLatches blocks until it holds every key in keys.
func (l *Latches) WaitForLatches(keys [][]byte) {
	for {
		holder := l.AcquireLatches(keys)
		if holder == nil {
			return
		}
		holder.Wait()
	}
}
