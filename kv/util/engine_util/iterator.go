package engine_util

import (
	"github.com/Connor1996/badger"
	"github.com/syndtr/goleveldb/leveldb/iterator"
)

// DBIterator walks the keys of one column family in order. Keys and values
// handed out by Item are only valid until the iterator moves.
type DBIterator interface {
	Item() DBItem
	Valid() bool
	Next()
	// Seek moves to the first key at or after key.
	Seek(key []byte)
	Close()
}

// DBItem is the key-value pair under an iterator, with the column family
// prefix already stripped from the key.
type DBItem interface {
	Key() []byte
	Value() ([]byte, error)
}

type badgerItem struct {
	item *badger.Item
	skip int
}

func (i badgerItem) Key() []byte {
	return i.item.Key()[i.skip:]
}

func (i badgerItem) Value() ([]byte, error) {
	return i.item.Value()
}

type badgerIterator struct {
	iter   *badger.Iterator
	prefix []byte
}

// NewBadgerIterator iterates cf inside txn.
func NewBadgerIterator(cf string, txn *badger.Txn) DBIterator {
	return &badgerIterator{
		iter:   txn.NewIterator(badger.DefaultIteratorOptions),
		prefix: cfPrefix(cf),
	}
}

func (it *badgerIterator) Item() DBItem {
	return badgerItem{item: it.iter.Item(), skip: len(it.prefix)}
}

func (it *badgerIterator) Valid() bool { return it.iter.ValidForPrefix(it.prefix) }

func (it *badgerIterator) Next() { it.iter.Next() }

func (it *badgerIterator) Seek(key []byte) {
	it.iter.Seek(append(append([]byte(nil), it.prefix...), key...))
}

func (it *badgerIterator) Close() { it.iter.Close() }

type plainItem struct {
	key   []byte
	value []byte
}

func (i plainItem) Key() []byte { return i.key }

func (i plainItem) Value() ([]byte, error) { return i.value, nil }

type levelDBIterator struct {
	iter   iterator.Iterator
	prefix []byte
}

// NewLevelDBIterator wraps a goleveldb iterator that is already restricted
// to the key range of cf, for example with util.BytesPrefix.
func NewLevelDBIterator(cf string, iter iterator.Iterator) DBIterator {
	return &levelDBIterator{iter: iter, prefix: cfPrefix(cf)}
}

func (it *levelDBIterator) Item() DBItem {
	return plainItem{key: it.iter.Key()[len(it.prefix):], value: it.iter.Value()}
}

func (it *levelDBIterator) Valid() bool { return it.iter.Valid() }

func (it *levelDBIterator) Next() { it.iter.Next() }

func (it *levelDBIterator) Seek(key []byte) {
	it.iter.Seek(append(append([]byte(nil), it.prefix...), key...))
}

func (it *levelDBIterator) Close() { it.iter.Release() }
