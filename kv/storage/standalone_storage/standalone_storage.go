package standalone_storage

import (
	"os"

	"github.com/Connor1996/badger"
	"github.com/pingcap-incubator/tinyds/kv/config"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap-incubator/tinyds/kv/util/engine_util"
	"github.com/pingcap/errors"
	"github.com/pingcap/log"
	"go.uber.org/zap"
)

// StandAloneStorage is an implementation of `Storage` backed by a single local badger instance.
type StandAloneStorage struct {
	conf config.Engine
	db   *badger.DB
}

func NewStandAloneStorage(conf *config.Config) *StandAloneStorage {
	return &StandAloneStorage{conf: conf.Engine}
}

func (s *StandAloneStorage) Start() error {
	opts := badger.DefaultOptions
	opts.Dir = s.conf.DBPath
	opts.ValueDir = s.conf.DBPath
	opts.ValueThreshold = s.conf.ValueThreshold
	opts.SyncWrites = s.conf.SyncWrite
	if s.conf.VlogFileSize != "" {
		size, err := s.conf.VlogFileSizeBytes()
		if err != nil {
			return err
		}
		opts.ValueLogFileSize = size
	}
	if err := os.MkdirAll(opts.Dir, os.ModePerm); err != nil {
		return errors.WithStack(err)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return errors.WithStack(err)
	}
	s.db = db
	log.Info("badger storage started", zap.String("path", opts.Dir))
	return nil
}

func (s *StandAloneStorage) Stop() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	log.Info("badger storage stopped", zap.String("path", s.conf.DBPath))
	return errors.WithStack(err)
}

func (s *StandAloneStorage) Reader() (storage.StorageReader, error) {
	if s.db == nil {
		return nil, errors.New("badger storage is not started")
	}
	return &badgerReader{txn: s.db.NewTransaction(false)}, nil
}

func (s *StandAloneStorage) Write(batch []storage.Modify) error {
	if s.db == nil {
		return errors.New("badger storage is not started")
	}
	wb := new(engine_util.WriteBatch)
	for _, m := range batch {
		switch data := m.Data.(type) {
		case storage.Put:
			wb.SetCF(data.Cf, data.Key, data.Value)
		case storage.Delete:
			wb.DeleteCF(data.Cf, data.Key)
		}
	}
	return wb.WriteToDB(s.db)
}

// badgerReader reads from one read-only badger transaction.
type badgerReader struct {
	txn *badger.Txn
}

func (r *badgerReader) GetCF(cf string, key []byte) ([]byte, error) {
	return engine_util.GetCFFromTxn(r.txn, cf, key)
}

func (r *badgerReader) IterCF(cf string) engine_util.DBIterator {
	return engine_util.NewBadgerIterator(cf, r.txn)
}

func (r *badgerReader) Close() {
	r.txn.Discard()
}
