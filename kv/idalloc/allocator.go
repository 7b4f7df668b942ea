package idalloc

import (
	"math"
	"sync"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/transaction/latches"
	"github.com/pingcap-incubator/tinyds/kv/util/codec"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// DefaultBlockSize is the number of ids reserved from storage at a time.
const DefaultBlockSize = 1000

// MaxID is the largest id the allocator hands out. Key ids are int64 and
// must stay positive, so the counter cell never exceeds MaxID + 1.
const MaxID = uint64(math.MaxInt64)

// CounterStore persists the counter cell of every (app, kind). The cell
// holds the next id that has not been handed out yet; 0 means unset.
type CounterStore interface {
	GetCounter(app, kind string) (uint64, error)
	SetCounter(app, kind string, value uint64) error
}

// idBlock is the locally cached part of a reserved range: ids in
// [next, end) may be handed out without touching storage.
type idBlock struct {
	next uint64
	end  uint64
}

// Allocator hands out monotonically increasing numeric ids per (app, kind).
// Ids are reserved from the counter cell in blocks and then served from
// memory. Calls for the same kind are serialized; different kinds proceed
// in parallel.
type Allocator struct {
	store     CounterStore
	blockSize uint64
	latches   *latches.Latches

	mu     sync.Mutex
	blocks map[string]*idBlock
}

func NewAllocator(store CounterStore, blockSize uint64) *Allocator {
	if blockSize == 0 {
		blockSize = DefaultBlockSize
	}
	return &Allocator{
		store:     store,
		blockSize: blockSize,
		latches:   latches.NewLatches(),
		blocks:    make(map[string]*idBlock),
	}
}

func latchKey(app, kind string) []byte {
	return codec.EncodeString(codec.EncodeString(nil, app), kind)
}

func (a *Allocator) lock(app, kind string) func() {
	keys := [][]byte{latchKey(app, kind)}
	a.latches.WaitForLatches(keys)
	return func() { a.latches.ReleaseLatches(keys) }
}

// block returns the cached block of a kind. The caller must hold the latch
// of the kind.
func (a *Allocator) block(app, kind string) *idBlock {
	a.mu.Lock()
	defer a.mu.Unlock()
	key := string(latchKey(app, kind))
	b, ok := a.blocks[key]
	if !ok {
		b = &idBlock{}
		a.blocks[key] = b
	}
	return b
}

func (a *Allocator) loadCounter(app, kind string) (uint64, error) {
	next, err := a.store.GetCounter(app, kind)
	if err != nil {
		return 0, errors.Trace(err)
	}
	switch {
	case next == 0:
		next = 1
	case next > MaxID+1:
		next = MaxID + 1
	}
	return next, nil
}

// AllocateBlock reserves size consecutive ids and returns the first one.
func (a *Allocator) AllocateBlock(app, kind string, size uint64) (uint64, error) {
	if size == 0 {
		return 0, model.BadRequestf("id allocation size must be positive")
	}
	unlock := a.lock(app, kind)
	defer unlock()

	b := a.block(app, kind)
	if b.end-b.next >= size {
		start := b.next
		b.next += size
		return start, nil
	}

	next, err := a.loadCounter(app, kind)
	if err != nil {
		return 0, err
	}
	left := MaxID + 1 - next
	if size > left {
		return 0, model.InternalErrorf("id space of kind %s exhausted", kind)
	}
	reserve := (size/a.blockSize + 1) * a.blockSize
	if reserve > left {
		reserve = left
	}
	if err := a.store.SetCounter(app, kind, next+reserve); err != nil {
		return 0, errors.Trace(err)
	}
	blockCounter.WithLabelValues(kind).Inc()
	idGauge.WithLabelValues(kind).Set(float64(next + reserve))
	log.Debug("reserved id block",
		zap.String("app", app), zap.String("kind", kind),
		zap.Uint64("start", next), zap.Uint64("end", next+reserve))

	b.next, b.end = next+size, next+reserve
	return next, nil
}

// ReserveAtLeast makes sure no id up to and including max is ever handed out
// again. It returns the first id that the reservation covered, which is
// greater than max when nothing had to be reserved.
func (a *Allocator) ReserveAtLeast(app, kind string, max uint64) (uint64, error) {
	if max > MaxID {
		return 0, model.InternalErrorf("id space of kind %s exhausted", kind)
	}
	unlock := a.lock(app, kind)
	defer unlock()

	b := a.block(app, kind)
	if b.next > max {
		// The cached block already lies above max, and the counter cell is at
		// least at the end of the block.
		return b.next, nil
	}
	next, err := a.loadCounter(app, kind)
	if err != nil {
		return 0, err
	}
	if next <= max {
		if err := a.store.SetCounter(app, kind, max+1); err != nil {
			return 0, errors.Trace(err)
		}
		idGauge.WithLabelValues(kind).Set(float64(max + 1))
	}
	// Ids in the cached block at or below max are burnt.
	if b.end > max+1 {
		b.next = max + 1
	} else {
		b.next, b.end = 0, 0
	}
	return next, nil
}

// AllocateIDs serves an explicit allocation request. Exactly one of size and
// max must be set. The returned range is inclusive and empty when end <
// start.
func (a *Allocator) AllocateIDs(app, kind string, size, max uint64) (start, end uint64, err error) {
	switch {
	case size != 0 && max != 0:
		return 0, 0, model.BadRequestf("Both size and max cannot be set.")
	case size > MaxID:
		return 0, 0, model.BadRequestf("size %d is larger than the id space", size)
	case max > MaxID:
		return 0, 0, model.BadRequestf("max %d is larger than the id space", max)
	case size != 0:
		start, err = a.AllocateBlock(app, kind, size)
		if err != nil {
			return 0, 0, err
		}
		return start, start + size - 1, nil
	case max != 0:
		start, err = a.ReserveAtLeast(app, kind, max)
		if err != nil {
			return 0, 0, err
		}
		if start > max {
			return start, start - 1, nil
		}
		return start, max, nil
	}
	return 0, 0, model.BadRequestf("One of size or max must be set.")
}

// CompleteKey validates the key of e, assigns a fresh id when the last path
// element has neither id nor name, and otherwise keeps the allocator ahead of
// an explicit numeric id.
func (a *Allocator) CompleteKey(e *model.Entity) error {
	if e.Key == nil {
		return model.BadRequestf("entity has no key")
	}
	if err := e.Key.Validate(true); err != nil {
		return err
	}
	kind := e.Key.Kind()
	last := e.Key.Last()
	switch {
	case !last.HasIDOrName():
		id, err := a.AllocateBlock(e.Key.AppID, kind, 1)
		if err != nil {
			return err
		}
		e.Key.SetID(int64(id))
	case last.ID != 0:
		if _, err := a.ReserveAtLeast(e.Key.AppID, kind, uint64(last.ID)); err != nil {
			return err
		}
	}
	return nil
}
