package storage

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/pingcap-incubator/tinyds/kv/util/engine_util"
)

const memBTreeDegree = 32

// MemStorage keeps every column family in an in-memory btree. Data is lost
// on Stop. Readers work on copy-on-write clones, so they never observe
// writes that happen after they were opened.
type MemStorage struct {
	mu  sync.Mutex
	cfs map[string]*btree.BTree
}

func NewMemStorage() *MemStorage {
	cfs := make(map[string]*btree.BTree, len(engine_util.CFs))
	for _, cf := range engine_util.CFs {
		cfs[cf] = btree.New(memBTreeDegree)
	}
	return &MemStorage{cfs: cfs}
}

func (s *MemStorage) Start() error {
	return nil
}

func (s *MemStorage) Stop() error {
	return nil
}

func (s *MemStorage) Reader() (StorageReader, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := make(map[string]*btree.BTree, len(s.cfs))
	for cf, tree := range s.cfs {
		snap[cf] = tree.Clone()
	}
	return &memReader{cfs: snap}, nil
}

func (s *MemStorage) Write(batch []Modify) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range batch {
		if _, ok := s.cfs[m.Cf()]; !ok {
			return fmt.Errorf("mem-storage: bad CF %s", m.Cf())
		}
	}
	for _, m := range batch {
		tree := s.cfs[m.Cf()]
		switch data := m.Data.(type) {
		case Put:
			tree.ReplaceOrInsert(memItem{key: data.Key, value: data.Value})
		case Delete:
			tree.Delete(memItem{key: data.Key})
		}
	}
	return nil
}

// memReader is a StorageReader over cloned btrees.
type memReader struct {
	cfs map[string]*btree.BTree
}

func (mr *memReader) GetCF(cf string, key []byte) ([]byte, error) {
	tree, ok := mr.cfs[cf]
	if !ok {
		return nil, fmt.Errorf("mem-storage: bad CF %s", cf)
	}
	result := tree.Get(memItem{key: key})
	if result == nil {
		return nil, nil
	}
	return result.(memItem).value, nil
}

func (mr *memReader) IterCF(cf string) engine_util.DBIterator {
	tree, ok := mr.cfs[cf]
	if !ok {
		tree = btree.New(memBTreeDegree)
	}
	it := &memIter{data: tree}
	it.Seek(nil)
	return it
}

func (mr *memReader) Close() {}

type memIter struct {
	data *btree.BTree
	item memItem
}

func (it *memIter) Item() engine_util.DBItem {
	return it.item
}

func (it *memIter) Valid() bool {
	return it.item.key != nil
}

func (it *memIter) Next() {
	cur := it.item
	it.item = memItem{}
	it.data.AscendGreaterOrEqual(cur, func(item btree.Item) bool {
		next := item.(memItem)
		if !bytes.Equal(next.key, cur.key) {
			it.item = next
			return false
		}
		return true
	})
}

func (it *memIter) Seek(key []byte) {
	it.item = memItem{}
	if key == nil {
		key = []byte{}
	}
	it.data.AscendGreaterOrEqual(memItem{key: key}, func(item btree.Item) bool {
		it.item = item.(memItem)
		return false
	})
}

func (it *memIter) Close() {}

type memItem struct {
	key   []byte
	value []byte
}

func (it memItem) Key() []byte { return it.key }

func (it memItem) Value() ([]byte, error) { return it.value, nil }

func (it memItem) Less(than btree.Item) bool {
	other := than.(memItem)
	return bytes.Compare(it.key, other.key) < 0
}
