package leveldb_storage

import (
	"os"

	"github.com/pingcap-incubator/tinyds/kv/config"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap-incubator/tinyds/kv/util/engine_util"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"go.uber.org/zap"
)

// LevelDBStorage is a `Storage` kept in a local leveldb directory.
type LevelDBStorage struct {
	path string
	sync bool
	db   *leveldb.DB
}

func NewLevelDBStorage(conf *config.Config) *LevelDBStorage {
	return &LevelDBStorage{path: conf.Engine.DBPath, sync: conf.Engine.SyncWrite}
}

func (s *LevelDBStorage) Start() error {
	if err := os.MkdirAll(s.path, os.ModePerm); err != nil {
		return errors.WithStack(err)
	}
	db, err := leveldb.OpenFile(s.path, nil)
	if err != nil {
		return errors.WithStack(err)
	}
	s.db = db
	log.Info("leveldb storage started", zap.String("path", s.path))
	return nil
}

func (s *LevelDBStorage) Stop() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	log.Info("leveldb storage stopped", zap.String("path", s.path))
	return errors.WithStack(err)
}

func (s *LevelDBStorage) Write(batch []storage.Modify) error {
	if s.db == nil {
		return errors.New("leveldb storage is not started")
	}
	wb := new(leveldb.Batch)
	for _, m := range batch {
		switch data := m.Data.(type) {
		case storage.Put:
			wb.Put(engine_util.KeyWithCF(data.Cf, data.Key), data.Value)
		case storage.Delete:
			wb.Delete(engine_util.KeyWithCF(data.Cf, data.Key))
		}
	}
	return errors.WithStack(s.db.Write(wb, &opt.WriteOptions{Sync: s.sync}))
}

func (s *LevelDBStorage) Reader() (storage.StorageReader, error) {
	if s.db == nil {
		return nil, errors.New("leveldb storage is not started")
	}
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return &ldbReader{snap: snap}, nil
}

// ldbReader reads from one leveldb snapshot.
type ldbReader struct {
	snap *leveldb.Snapshot
}

func (r *ldbReader) GetCF(cf string, key []byte) ([]byte, error) {
	val, err := r.snap.Get(engine_util.KeyWithCF(cf, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	return val, errors.WithStack(err)
}

func (r *ldbReader) IterCF(cf string) engine_util.DBIterator {
	iter := r.snap.NewIterator(util.BytesPrefix([]byte(cf+"_")), nil)
	return engine_util.NewLevelDBIterator(cf, iter)
}

func (r *ldbReader) Close() {
	r.snap.Release()
}
