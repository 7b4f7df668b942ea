package storage

import (
	"bytes"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/util/codec"
	"github.com/pingcap-incubator/tinyds/kv/util/engine_util"
	"github.com/pingcap/errors"
)

// Reader is a read view of the entity store.
type Reader interface {
	// Get returns nil when the entity does not exist.
	Get(key *model.Key) (*model.Entity, error)
	// Scan iterates the entities of one kind in key order. An empty kind
	// scans every kind of the namespace.
	Scan(app, namespace, kind string) EntityIterator
	// Kinds lists the kinds that have at least one entity.
	Kinds(app, namespace string) ([]string, error)
	// Namespaces lists the namespaces that have at least one entity.
	Namespaces(app string) ([]string, error)
}

// Snapshot is a consistent Reader that holds engine resources until
// Release.
type Snapshot interface {
	Reader
	Release()
}

// Backend is the entity level storage every engine is adapted to.
type Backend interface {
	Reader
	// Write applies all puts and then all deletes atomically.
	Write(puts []*model.Entity, deletes []*model.Key) error
	Put(entities ...*model.Entity) error
	Delete(keys ...*model.Key) error
	// GetCounter returns 0 for a counter that was never set.
	GetCounter(app, kind string) (uint64, error)
	SetCounter(app, kind string, value uint64) error
	Snapshot() (Snapshot, error)
	Close() error
}

// EntityIterator walks entities in storage order.
type EntityIterator interface {
	Valid() bool
	Next()
	// Entity decodes the current entity.
	Entity() (*model.Entity, error)
	// Err returns the error that stopped the iteration, if any.
	Err() error
	Close()
}

// KVBackend stores entities in the entity column family of a Storage,
// keyed by app, namespace, kind and key path, all in sortable encoding.
type KVBackend struct {
	engine Storage
}

func NewKVBackend(engine Storage) *KVBackend {
	return &KVBackend{engine: engine}
}

func namespacePrefix(app, namespace string) []byte {
	buf := codec.EncodeString(nil, app)
	return codec.EncodeString(buf, namespace)
}

func kindPrefix(app, namespace, kind string) []byte {
	return codec.EncodeString(namespacePrefix(app, namespace), kind)
}

// EntityKey is the storage key of an entity.
func EntityKey(key *model.Key) []byte {
	return model.AppendPath(kindPrefix(key.AppID, key.Namespace, key.Kind()), key.Path)
}

// CounterKey is the storage key of the id counter of (app, kind).
func CounterKey(app, kind string) []byte {
	buf := codec.EncodeString(nil, app)
	return codec.EncodeString(buf, kind)
}

func (b *KVBackend) Write(puts []*model.Entity, deletes []*model.Key) error {
	batch := make([]Modify, 0, len(puts)+len(deletes))
	for _, e := range puts {
		batch = append(batch, Modify{Data: Put{
			Key:   EntityKey(e.Key),
			Value: model.EncodeEntity(e),
			Cf:    engine_util.CfEntity,
		}})
	}
	for _, k := range deletes {
		batch = append(batch, Modify{Data: Delete{
			Key: EntityKey(k),
			Cf:  engine_util.CfEntity,
		}})
	}
	if len(batch) == 0 {
		return nil
	}
	return errors.Trace(b.engine.Write(batch))
}

func (b *KVBackend) Put(entities ...*model.Entity) error {
	return b.Write(entities, nil)
}

func (b *KVBackend) Delete(keys ...*model.Key) error {
	return b.Write(nil, keys)
}

func (b *KVBackend) GetCounter(app, kind string) (uint64, error) {
	r, err := b.engine.Reader()
	if err != nil {
		return 0, errors.Trace(err)
	}
	defer r.Close()
	val, err := r.GetCF(engine_util.CfCounter, CounterKey(app, kind))
	if err != nil {
		return 0, errors.Trace(err)
	}
	if val == nil {
		return 0, nil
	}
	_, v, err := codec.DecodeUint64(val)
	if err != nil {
		return 0, model.InternalErrorf("corrupt counter for %s/%s: %v", app, kind, err)
	}
	return v, nil
}

func (b *KVBackend) SetCounter(app, kind string, value uint64) error {
	return errors.Trace(b.engine.Write([]Modify{{Data: Put{
		Key:   CounterKey(app, kind),
		Value: codec.EncodeUint64(nil, value),
		Cf:    engine_util.CfCounter,
	}}}))
}

func (b *KVBackend) Snapshot() (Snapshot, error) {
	r, err := b.engine.Reader()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &readerView{r: r}, nil
}

func (b *KVBackend) Get(key *model.Key) (*model.Entity, error) {
	view, err := b.Snapshot()
	if err != nil {
		return nil, err
	}
	defer view.Release()
	return view.Get(key)
}

func (b *KVBackend) Scan(app, namespace, kind string) EntityIterator {
	r, err := b.engine.Reader()
	if err != nil {
		return &errIterator{err: errors.Trace(err)}
	}
	it := newEntityIter(r, app, namespace, kind)
	it.owned = true
	return it
}

func (b *KVBackend) Kinds(app, namespace string) ([]string, error) {
	view, err := b.Snapshot()
	if err != nil {
		return nil, err
	}
	defer view.Release()
	return view.Kinds(app, namespace)
}

func (b *KVBackend) Namespaces(app string) ([]string, error) {
	view, err := b.Snapshot()
	if err != nil {
		return nil, err
	}
	defer view.Release()
	return view.Namespaces(app)
}

func (b *KVBackend) Close() error {
	return errors.Trace(b.engine.Stop())
}

// readerView serves Reader on top of one StorageReader.
type readerView struct {
	r StorageReader
}

func (v *readerView) Release() {
	v.r.Close()
}

func (v *readerView) Get(key *model.Key) (*model.Entity, error) {
	val, err := v.r.GetCF(engine_util.CfEntity, EntityKey(key))
	if err != nil {
		return nil, errors.Trace(err)
	}
	if val == nil {
		return nil, nil
	}
	_, e, err := model.DecodeEntity(val)
	if err != nil {
		return nil, model.InternalErrorf("corrupt entity %s: %v", key, err)
	}
	return e, nil
}

func (v *readerView) Scan(app, namespace, kind string) EntityIterator {
	return newEntityIter(v.r, app, namespace, kind)
}

// distinctPrefixed decodes the string that follows prefix in every key and
// returns the distinct values in order, seeking past each one.
func distinctPrefixed(r StorageReader, prefix []byte) ([]string, error) {
	it := r.IterCF(engine_util.CfEntity)
	defer it.Close()
	var result []string
	for it.Seek(prefix); it.Valid(); {
		key := it.Item().Key()
		if !bytes.HasPrefix(key, prefix) {
			break
		}
		_, s, err := codec.DecodeString(key[len(prefix):])
		if err != nil {
			return nil, model.InternalErrorf("corrupt entity key %q: %v", key, err)
		}
		result = append(result, s)
		next := codec.PrefixNext(codec.EncodeString(append([]byte(nil), prefix...), s))
		if next == nil {
			break
		}
		it.Seek(next)
	}
	return result, nil
}

func (v *readerView) Kinds(app, namespace string) ([]string, error) {
	return distinctPrefixed(v.r, namespacePrefix(app, namespace))
}

func (v *readerView) Namespaces(app string) ([]string, error) {
	return distinctPrefixed(v.r, codec.EncodeString(nil, app))
}

type entityIter struct {
	reader StorageReader
	iter   engine_util.DBIterator
	prefix []byte
	owned  bool
}

func newEntityIter(r StorageReader, app, namespace, kind string) *entityIter {
	prefix := namespacePrefix(app, namespace)
	if kind != "" {
		prefix = codec.EncodeString(prefix, kind)
	}
	it := &entityIter{reader: r, iter: r.IterCF(engine_util.CfEntity), prefix: prefix}
	it.iter.Seek(prefix)
	return it
}

func (it *entityIter) Valid() bool {
	return it.iter.Valid() && bytes.HasPrefix(it.iter.Item().Key(), it.prefix)
}

func (it *entityIter) Next() {
	it.iter.Next()
}

func (it *entityIter) Entity() (*model.Entity, error) {
	item := it.iter.Item()
	val, err := item.Value()
	if err != nil {
		return nil, errors.Trace(err)
	}
	_, e, err := model.DecodeEntity(val)
	if err != nil {
		return nil, model.InternalErrorf("corrupt entity at %q: %v", item.Key(), err)
	}
	return e, nil
}

func (it *entityIter) Err() error {
	return nil
}

func (it *entityIter) Close() {
	it.iter.Close()
	if it.owned {
		it.reader.Close()
	}
}

type errIterator struct {
	err error
}

func (it *errIterator) Valid() bool                    { return false }
func (it *errIterator) Next()                          {}
func (it *errIterator) Entity() (*model.Entity, error) { return nil, it.err }
func (it *errIterator) Err() error                     { return it.err }
func (it *errIterator) Close()                         {}

// CollectEntities drains an iterator.
func CollectEntities(it EntityIterator) ([]*model.Entity, error) {
	defer it.Close()
	var result []*model.Entity
	for ; it.Valid(); it.Next() {
		e, err := it.Entity()
		if err != nil {
			return nil, err
		}
		result = append(result, e)
	}
	if err := it.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
