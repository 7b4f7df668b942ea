package datastore

import (
	"context"
	"time"

	"github.com/pingcap-incubator/tinyds/kv/config"
	"github.com/pingcap-incubator/tinyds/kv/cursor"
	"github.com/pingcap-incubator/tinyds/kv/idalloc"
	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/query"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap-incubator/tinyds/kv/transaction"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// Options configures a Store.
type Options struct {
	// AppID is the app the store serves. Unless Trusted is set, requests
	// for any other app are rejected.
	AppID   string
	Trusted bool
	// RequireIndexes makes queries fail when they need a composite index
	// that is not registered.
	RequireIndexes   bool
	IDBlockSize      uint64
	MaxLiveCursors   int
	MaxActionsPerTxn int
	ActionQueueSize  int
	// Dispatcher delivers transactional actions. When nil the store runs a
	// TaskQueue that logs them.
	Dispatcher transaction.ActionDispatcher
	// Indexes seeds the composite indexes of AppID.
	Indexes IndexSupplier
}

// OptionsFromConfig maps the server configuration to store options.
func OptionsFromConfig(conf *config.Config) Options {
	return Options{
		AppID:            conf.AppID,
		Trusted:          conf.Trusted,
		RequireIndexes:   conf.RequireIndexes,
		IDBlockSize:      conf.Datastore.IDBlockSize,
		MaxLiveCursors:   conf.Datastore.MaxLiveCursors,
		MaxActionsPerTxn: conf.Datastore.MaxActionsPerTxn,
		ActionQueueSize:  conf.Datastore.ActionQueueSize,
	}
}

// Store is the datastore API on top of a storage backend: entity reads and
// writes, queries with cursors, transactions, composite index management
// and id allocation.
type Store struct {
	appID          string
	trusted        bool
	requireIndexes bool

	backend   storage.Backend
	allocator *idalloc.Allocator
	cursors   *cursor.Manager
	txns      transaction.Coordinator
	indexes   *indexRegistry
	history   *queryHistory
	// queue is set when the store owns its action dispatcher.
	queue *transaction.TaskQueue
}

func NewStore(backend storage.Backend, opts Options) (*Store, error) {
	s := &Store{
		appID:          opts.AppID,
		trusted:        opts.Trusted,
		requireIndexes: opts.RequireIndexes,
		backend:        backend,
		allocator:      idalloc.NewAllocator(backend, opts.IDBlockSize),
		cursors:        cursor.NewManager(opts.MaxLiveCursors),
		indexes:        newIndexRegistry(),
		history:        newQueryHistory(),
	}
	dispatcher := opts.Dispatcher
	if dispatcher == nil {
		s.queue = transaction.NewTaskQueue(opts.ActionQueueSize, transaction.LogActionHandler)
		dispatcher = s.queue
	}
	s.txns = transaction.NewGlobalCoordinator(backend, s.allocator, dispatcher, opts.MaxActionsPerTxn)

	if opts.Indexes != nil {
		indexes, err := opts.Indexes.ListCompositeIndexes(s.appID)
		if err != nil {
			s.Close()
			return nil, errors.Annotate(err, "load composite indexes")
		}
		for _, index := range indexes {
			index = index.Clone()
			index.AppID = s.appID
			index.ID = 0
			if index.State == 0 {
				index.State = model.IndexReadWrite
			}
			if _, err := s.indexes.create(index); err != nil {
				log.Warn("skip composite index", zap.String("kind", index.Kind), zap.Error(err))
			}
		}
		log.Info("composite indexes loaded", zap.String("app", s.appID), zap.Int("count", len(indexes)))
	}
	return s, nil
}

// Close stops the action queue the store owns. The backend is left to its
// owner.
func (s *Store) Close() {
	if s.queue != nil {
		s.queue.Stop()
		s.queue = nil
	}
}

func (s *Store) AppID() string {
	return s.appID
}

func (s *Store) validateApp(app string) error {
	if app == "" {
		return model.BadRequestf("app id is required")
	}
	if !s.trusted && app != s.appID {
		return model.BadRequestf("app %s cannot access app %s's data", s.appID, app)
	}
	return nil
}

func (s *Store) validateTx(tx *model.TxHandle) error {
	if tx == nil {
		return nil
	}
	return s.validateApp(tx.AppID)
}

// reader returns the view reads run against: the transaction snapshot
// inside a transaction, a fresh snapshot otherwise. release must be called
// when done.
func (s *Store) reader(tx *model.TxHandle) (r storage.Reader, release func(), err error) {
	if tx != nil {
		r, err := s.txns.Snapshot(*tx)
		if err != nil {
			return nil, nil, err
		}
		return r, func() {}, nil
	}
	snap, err := s.backend.Snapshot()
	if err != nil {
		return nil, nil, errors.Trace(err)
	}
	return snap, snap.Release, nil
}

// Put writes entities and returns their keys, with incomplete keys
// completed by the id allocator. The caller's entities are not modified.
// Inside a transaction the writes are staged until commit.
func (s *Store) Put(tx *model.TxHandle, entities []*model.Entity) (keys []*model.Key, err error) {
	defer func(start time.Time) { observe("put", start, err) }(time.Now())
	if err := s.validateTx(tx); err != nil {
		return nil, err
	}
	clones := make([]*model.Entity, 0, len(entities))
	for _, e := range entities {
		if e.Key == nil {
			return nil, model.BadRequestf("entity has no key")
		}
		if err := s.validateApp(e.Key.AppID); err != nil {
			return nil, err
		}
		clones = append(clones, e.Clone())
	}

	if tx != nil {
		if err := s.txns.Put(*tx, clones); err != nil {
			return nil, err
		}
	} else {
		for _, e := range clones {
			if err := s.allocator.CompleteKey(e); err != nil {
				return nil, err
			}
		}
		if err := s.backend.Put(clones...); err != nil {
			return nil, errors.Trace(err)
		}
	}

	keys = make([]*model.Key, 0, len(clones))
	for _, e := range clones {
		keys = append(keys, e.Key.Clone())
	}
	return keys, nil
}

// Get returns one entry per key, nil for keys without an entity.
func (s *Store) Get(tx *model.TxHandle, keys []*model.Key) (entities []*model.Entity, err error) {
	defer func(start time.Time) { observe("get", start, err) }(time.Now())
	if err := s.validateTx(tx); err != nil {
		return nil, err
	}
	for _, key := range keys {
		if err := s.validateApp(key.AppID); err != nil {
			return nil, err
		}
		if err := key.Validate(false); err != nil {
			return nil, err
		}
	}
	r, release, err := s.reader(tx)
	if err != nil {
		return nil, err
	}
	defer release()

	entities = make([]*model.Entity, 0, len(keys))
	for _, key := range keys {
		e, err := r.Get(key)
		if err != nil {
			return nil, errors.Trace(err)
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// Delete removes entities. Missing keys are ignored.
func (s *Store) Delete(tx *model.TxHandle, keys []*model.Key) (err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())
	if err := s.validateTx(tx); err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.validateApp(key.AppID); err != nil {
			return err
		}
		if err := key.Validate(false); err != nil {
			return err
		}
	}
	if tx != nil {
		return s.txns.Delete(*tx, keys)
	}
	return errors.Trace(s.backend.Delete(keys...))
}

// openCursor evaluates q and registers a cursor over its results.
func (s *Store) openCursor(q *model.Query) (*cursor.Cursor, error) {
	if err := s.validateApp(q.AppID); err != nil {
		return nil, err
	}
	if err := s.validateTx(q.Transaction); err != nil {
		return nil, err
	}
	filters, orders := query.Normalize(q.Filters, q.Orders)
	if err := query.Validate(q, filters, orders); err != nil {
		return nil, err
	}

	pseudo, isPseudo := pseudoKinds[q.Kind]
	if isPseudo {
		if err := validatePseudoQuery(q, filters, orders); err != nil {
			return nil, err
		}
	} else if s.requireIndexes {
		if err := query.CheckIndexRequirement(q, filters, orders, s.indexes.list(q.AppID)); err != nil {
			return nil, err
		}
	}

	r, release, err := s.reader(q.Transaction)
	if err != nil {
		return nil, err
	}
	defer release()

	var candidates []*model.Entity
	if isPseudo {
		candidates, err = pseudo(r, q)
	} else {
		candidates, err = storage.CollectEntities(r.Scan(q.AppID, q.Namespace, q.Kind))
	}
	if err != nil {
		return nil, errors.Trace(err)
	}

	results, err := query.Evaluate(candidates, q, filters, orders)
	if err != nil {
		return nil, err
	}
	log.Debug("query evaluated",
		zap.String("app", q.AppID), zap.String("kind", q.Kind),
		zap.Int("candidates", len(candidates)), zap.Int("results", len(results)))
	c, err := s.cursors.Open(q, orders, results)
	if err != nil {
		return nil, err
	}
	s.history.record(q)
	return c, nil
}

// RunQuery evaluates q once and returns its first page. The page holds
// Count results, or Limit when Count is unset, or DefaultBatchSize.
func (s *Store) RunQuery(q *model.Query) (res *model.QueryResult, err error) {
	defer func(start time.Time) { observe("run_query", start, err) }(time.Now())
	c, err := s.openCursor(q)
	if err != nil {
		return nil, err
	}
	count := cursor.DefaultBatchSize
	switch {
	case q.Count > 0:
		count = q.Count
	case q.Limit > 0:
		count = q.Limit
	}
	return c.Populate(count, q.Offset, q.Compile), nil
}

// Next continues a cursor opened by RunQuery. A non-positive count uses
// DefaultBatchSize.
func (s *Store) Next(app string, id uint64, count, offset int, compile bool) (res *model.QueryResult, err error) {
	defer func(start time.Time) { observe("next", start, err) }(time.Now())
	if err := s.validateApp(app); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = cursor.DefaultBatchSize
	}
	if offset < 0 {
		return nil, model.BadRequestf("offset must not be negative")
	}
	return s.cursors.Next(app, id, count, offset, compile)
}

// Count returns the number of results of q, at most cursor.MaxResults. The
// offset is not subtracted: a limit covers limit + offset results.
func (s *Store) Count(q *model.Query) (n uint64, err error) {
	defer func(start time.Time) { observe("count", start, err) }(time.Now())
	c, err := s.openCursor(q)
	if err != nil {
		return 0, err
	}
	s.cursors.Delete(c.ID)
	n = uint64(c.Count())
	if n > cursor.MaxResults {
		n = cursor.MaxResults
	}
	return n, nil
}

// QueryHistory lists the distinct queries app ran, with Limit and Offset
// cleared, and how often each ran.
func (s *Store) QueryHistory(app string) ([]QueryHistoryEntry, error) {
	if err := s.validateApp(app); err != nil {
		return nil, err
	}
	return s.history.list(app), nil
}

// ClearQueryHistory forgets the query history of app.
func (s *Store) ClearQueryHistory(app string) error {
	if err := s.validateApp(app); err != nil {
		return err
	}
	s.history.clear(app)
	return nil
}

// GetSchema describes the kinds of a namespace like __kind__ queries do,
// restricted to kinds in [startKind, endKind]. An empty bound is open.
func (s *Store) GetSchema(app, namespace, startKind, endKind string) (kinds []*model.Entity, err error) {
	defer func(start time.Time) { observe("get_schema", start, err) }(time.Now())
	if err := s.validateApp(app); err != nil {
		return nil, err
	}
	if startKind != "" && endKind != "" && startKind > endKind {
		return nil, model.BadRequestf("start kind %s is after end kind %s", startKind, endKind)
	}
	snap, err := s.backend.Snapshot()
	if err != nil {
		return nil, errors.Trace(err)
	}
	defer snap.Release()
	return schemaEntities(snap, app, namespace, kindRange{start: startKind, end: endKind}, false)
}

// Drop deletes every entity of a kind in one namespace and returns how many
// were removed. The id counter of the kind is kept, so dropped ids are not
// handed out again.
func (s *Store) Drop(app, namespace, kind string) (n int, err error) {
	defer func(start time.Time) { observe("drop", start, err) }(time.Now())
	if err := s.validateApp(app); err != nil {
		return 0, err
	}
	if kind == "" {
		return 0, model.BadRequestf("drop needs a kind")
	}
	if _, ok := pseudoKinds[kind]; ok {
		return 0, model.BadRequestf("cannot drop %s", kind)
	}
	snap, err := s.backend.Snapshot()
	if err != nil {
		return 0, errors.Trace(err)
	}
	entities, err := storage.CollectEntities(snap.Scan(app, namespace, kind))
	snap.Release()
	if err != nil {
		return 0, errors.Trace(err)
	}
	keys := make([]*model.Key, 0, len(entities))
	for _, e := range entities {
		keys = append(keys, e.Key)
	}
	if err := s.backend.Write(nil, keys); err != nil {
		return 0, errors.Trace(err)
	}
	log.Info("kind dropped", zap.String("app", app), zap.String("namespace", namespace),
		zap.String("kind", kind), zap.Int("entities", len(keys)))
	return len(keys), nil
}

// BeginTransaction blocks until no other transaction of the store is open
// or ctx is done.
func (s *Store) BeginTransaction(ctx context.Context, app string) (tx model.TxHandle, err error) {
	defer func(start time.Time) { observe("begin_transaction", start, err) }(time.Now())
	if err := s.validateApp(app); err != nil {
		return model.TxHandle{}, err
	}
	return s.txns.Begin(ctx, app)
}

func (s *Store) Commit(tx model.TxHandle) (err error) {
	defer func(start time.Time) { observe("commit", start, err) }(time.Now())
	if err := s.validateApp(tx.AppID); err != nil {
		return err
	}
	return s.txns.Commit(tx)
}

func (s *Store) Rollback(tx model.TxHandle) (err error) {
	defer func(start time.Time) { observe("rollback", start, err) }(time.Now())
	if err := s.validateApp(tx.AppID); err != nil {
		return err
	}
	return s.txns.Rollback(tx)
}

// AddActions attaches actions to be delivered when tx commits.
func (s *Store) AddActions(tx model.TxHandle, actions []*transaction.Action) (err error) {
	defer func(start time.Time) { observe("add_actions", start, err) }(time.Now())
	if err := s.validateApp(tx.AppID); err != nil {
		return err
	}
	return s.txns.AddActions(tx, actions)
}

// CreateIndex registers a composite index and returns its id. The index
// must not carry an id yet and its definition must be new for the app.
func (s *Store) CreateIndex(index *model.CompositeIndex) (id int64, err error) {
	defer func(start time.Time) { observe("create_index", start, err) }(time.Now())
	if err := s.validateApp(index.AppID); err != nil {
		return 0, err
	}
	return s.indexes.create(index)
}

// UpdateIndex moves the registered index with the definition of index to
// index.State.
func (s *Store) UpdateIndex(index *model.CompositeIndex) (err error) {
	defer func(start time.Time) { observe("update_index", start, err) }(time.Now())
	if err := s.validateApp(index.AppID); err != nil {
		return err
	}
	return s.indexes.update(index)
}

func (s *Store) DeleteIndex(index *model.CompositeIndex) (err error) {
	defer func(start time.Time) { observe("delete_index", start, err) }(time.Now())
	if err := s.validateApp(index.AppID); err != nil {
		return err
	}
	return s.indexes.delete(index)
}

func (s *Store) GetIndices(app string) ([]*model.CompositeIndex, error) {
	if err := s.validateApp(app); err != nil {
		return nil, err
	}
	return s.indexes.list(app), nil
}

// AllocateIDs reserves ids for the kind of key. Exactly one of size and max
// must be set; the returned range is inclusive.
func (s *Store) AllocateIDs(key *model.Key, size, max uint64) (start, end uint64, err error) {
	defer func(start time.Time) { observe("allocate_ids", start, err) }(time.Now())
	if key == nil || len(key.Path) == 0 {
		return 0, 0, model.BadRequestf("allocate ids needs a model key")
	}
	if err := s.validateApp(key.AppID); err != nil {
		return 0, 0, err
	}
	return s.allocator.AllocateIDs(key.AppID, key.Kind(), size, max)
}
