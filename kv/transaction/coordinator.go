package transaction

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pingcap-incubator/tinyds/kv/idalloc"
	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Coordinator runs the transactions of a store.
type Coordinator interface {
	// Begin opens a transaction for app, blocking until it may start or
	// ctx is done.
	Begin(ctx context.Context, app string) (model.TxHandle, error)
	// Snapshot is the view reads inside the transaction see: the store as
	// of Begin, without the transaction's own writes.
	Snapshot(tx model.TxHandle) (storage.Reader, error)
	// Put stages entities, completing their keys first.
	Put(tx model.TxHandle, entities []*model.Entity) error
	Delete(tx model.TxHandle, keys []*model.Key) error
	AddActions(tx model.TxHandle, actions []*Action) error
	// Commit applies the staged writes and then delivers the actions.
	Commit(tx model.TxHandle) error
	Rollback(tx model.TxHandle) error
}

// txnState is the open transaction. writes and deletes are keyed by the
// encoded entity key and never share a key.
type txnState struct {
	handle   model.TxHandle
	snapshot storage.Snapshot
	writes   map[string]*model.Entity
	deletes  map[string]*model.Key
	actions  []*Action
}

// GlobalCoordinator serializes every transaction of the store behind one
// lock: Begin waits until the previous transaction commits or rolls back.
// With a single transaction open at a time there are no write conflicts to
// detect and nothing to retry.
type GlobalCoordinator struct {
	backend    storage.Backend
	allocator  *idalloc.Allocator
	dispatcher ActionDispatcher
	maxActions int

	// lock has room for one token, held by the open transaction.
	lock       chan struct{}
	nextHandle atomic.Uint64

	mu  sync.Mutex
	cur *txnState
}

var _ Coordinator = (*GlobalCoordinator)(nil)

func NewGlobalCoordinator(backend storage.Backend, allocator *idalloc.Allocator,
	dispatcher ActionDispatcher, maxActions int) *GlobalCoordinator {
	if maxActions <= 0 {
		maxActions = DefaultMaxActions
	}
	return &GlobalCoordinator{
		backend:    backend,
		allocator:  allocator,
		dispatcher: dispatcher,
		maxActions: maxActions,
		lock:       make(chan struct{}, 1),
	}
}

func (c *GlobalCoordinator) Begin(ctx context.Context, app string) (model.TxHandle, error) {
	start := time.Now()
	select {
	case c.lock <- struct{}{}:
	case <-ctx.Done():
		return model.TxHandle{}, errors.Annotate(ctx.Err(), "wait for transaction lock")
	}
	lockWaitHistogram.Observe(time.Since(start).Seconds())

	snapshot, err := c.backend.Snapshot()
	if err != nil {
		<-c.lock
		return model.TxHandle{}, errors.Trace(err)
	}
	state := &txnState{
		handle:   model.TxHandle{AppID: app, Handle: c.nextHandle.Inc()},
		snapshot: snapshot,
		writes:   make(map[string]*model.Entity),
		deletes:  make(map[string]*model.Key),
	}
	c.mu.Lock()
	c.cur = state
	c.mu.Unlock()
	log.Debug("transaction begin", zap.String("app", app), zap.Uint64("handle", state.handle.Handle))
	return state.handle, nil
}

// current returns the open transaction when tx names it. The caller must
// hold c.mu.
func (c *GlobalCoordinator) current(tx model.TxHandle) (*txnState, error) {
	if c.cur == nil || c.cur.handle != tx {
		return nil, model.TransactionNotFound(tx.Handle)
	}
	return c.cur, nil
}

// finish detaches the open transaction named by tx. Its lock token stays
// taken until the caller releases it.
func (c *GlobalCoordinator) finish(tx model.TxHandle) (*txnState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.current(tx)
	if err != nil {
		return nil, err
	}
	c.cur = nil
	return state, nil
}

func (c *GlobalCoordinator) Snapshot(tx model.TxHandle) (storage.Reader, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.current(tx)
	if err != nil {
		return nil, err
	}
	return state.snapshot, nil
}

func (c *GlobalCoordinator) Put(tx model.TxHandle, entities []*model.Entity) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.current(tx)
	if err != nil {
		return err
	}
	for _, e := range entities {
		if err := c.allocator.CompleteKey(e); err != nil {
			return err
		}
	}
	for _, e := range entities {
		k := string(e.Key.Encode())
		delete(state.deletes, k)
		state.writes[k] = e.Clone()
	}
	return nil
}

func (c *GlobalCoordinator) Delete(tx model.TxHandle, keys []*model.Key) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.current(tx)
	if err != nil {
		return err
	}
	for _, key := range keys {
		if err := key.Validate(false); err != nil {
			return err
		}
	}
	for _, key := range keys {
		k := string(key.Encode())
		delete(state.writes, k)
		state.deletes[k] = key.Clone()
	}
	return nil
}

func (c *GlobalCoordinator) AddActions(tx model.TxHandle, actions []*Action) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	state, err := c.current(tx)
	if err != nil {
		return err
	}
	if len(state.actions)+len(actions) > c.maxActions {
		return model.BadRequestf("Too many messages, maximum allowed %d", c.maxActions)
	}
	state.actions = append(state.actions, actions...)
	return nil
}

func (c *GlobalCoordinator) Commit(tx model.TxHandle) error {
	state, err := c.finish(tx)
	if err != nil {
		return err
	}
	defer c.release(state)

	// Staged mutations are flushed in key order.
	writeKeys := make([]string, 0, len(state.writes))
	for k := range state.writes {
		writeKeys = append(writeKeys, k)
	}
	sort.Strings(writeKeys)
	puts := make([]*model.Entity, 0, len(writeKeys))
	for _, k := range writeKeys {
		puts = append(puts, state.writes[k])
	}

	deleteKeys := make([]string, 0, len(state.deletes))
	for k := range state.deletes {
		deleteKeys = append(deleteKeys, k)
	}
	sort.Strings(deleteKeys)
	deletes := make([]*model.Key, 0, len(deleteKeys))
	for _, k := range deleteKeys {
		deletes = append(deletes, state.deletes[k])
	}

	if err := c.backend.Write(puts, deletes); err != nil {
		txnCounter.WithLabelValues("abort").Inc()
		return errors.Trace(err)
	}
	txnCounter.WithLabelValues("commit").Inc()
	log.Debug("transaction commit", zap.String("app", tx.AppID),
		zap.Uint64("handle", tx.Handle), zap.Int("puts", len(puts)),
		zap.Int("deletes", len(deletes)), zap.Strings("entity_groups", entityGroups(puts, deletes)))

	for _, action := range state.actions {
		c.deliver(tx.AppID, action)
	}
	return nil
}

// entityGroups lists the distinct entity groups a commit touches, sorted.
func entityGroups(puts []*model.Entity, deletes []*model.Key) []string {
	seen := make(map[string]struct{}, len(puts)+len(deletes))
	for _, e := range puts {
		seen[e.EntityGroup().String()] = struct{}{}
	}
	for _, k := range deletes {
		seen[k.Root().String()] = struct{}{}
	}
	groups := make([]string, 0, len(seen))
	for g := range seen {
		groups = append(groups, g)
	}
	sort.Strings(groups)
	return groups
}

// deliver hands one action to the dispatcher. Failures, panics included,
// drop the action.
func (c *GlobalCoordinator) deliver(app string, action *Action) {
	defer func() {
		if r := recover(); r != nil {
			droppedActionCounter.Inc()
			log.Warn("transactional action dropped",
				zap.String("app", app), zap.String("queue", action.Queue),
				zap.String("name", action.Name), zap.Reflect("panic", r))
		}
	}()
	if c.dispatcher == nil {
		droppedActionCounter.Inc()
		log.Warn("transactional action dropped, no dispatcher",
			zap.String("app", app), zap.String("queue", action.Queue), zap.String("name", action.Name))
		return
	}
	if err := c.dispatcher.Dispatch(app, action); err != nil {
		droppedActionCounter.Inc()
		log.Warn("transactional action dropped",
			zap.String("app", app), zap.String("queue", action.Queue),
			zap.String("name", action.Name), zap.Error(err))
	}
}

func (c *GlobalCoordinator) Rollback(tx model.TxHandle) error {
	state, err := c.finish(tx)
	if err != nil {
		return err
	}
	c.release(state)
	txnCounter.WithLabelValues("rollback").Inc()
	return nil
}

// release frees the snapshot of a finished transaction and lets the next
// one begin.
func (c *GlobalCoordinator) release(state *txnState) {
	state.snapshot.Release()
	<-c.lock
	log.Debug("transaction end", zap.String("app", state.handle.AppID),
		zap.Uint64("handle", state.handle.Handle))
}
