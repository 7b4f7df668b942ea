package engine_util

import (
	"github.com/Connor1996/badger"
	"github.com/pingcap/errors"
)

// GetCFFromTxn reads one key of cf. A missing key yields a nil value and no
// error.
func GetCFFromTxn(txn *badger.Txn, cf string, key []byte) ([]byte, error) {
	item, err := txn.Get(KeyWithCF(cf, key))
	if err == badger.ErrKeyNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, errors.WithStack(err)
	}
	val, err := item.ValueCopy(nil)
	return val, errors.WithStack(err)
}

type batchEntry struct {
	key    []byte
	value  []byte
	delete bool
}

// WriteBatch collects puts and deletes across column families and applies
// them to badger in one transaction.
type WriteBatch struct {
	entries []batchEntry
}

func (wb *WriteBatch) SetCF(cf string, key, val []byte) {
	wb.entries = append(wb.entries, batchEntry{key: KeyWithCF(cf, key), value: val})
}

func (wb *WriteBatch) DeleteCF(cf string, key []byte) {
	wb.entries = append(wb.entries, batchEntry{key: KeyWithCF(cf, key), delete: true})
}

func (wb *WriteBatch) Len() int {
	return len(wb.entries)
}

// WriteToDB applies the batch atomically. An empty batch is a no-op.
func (wb *WriteBatch) WriteToDB(db *badger.DB) error {
	if len(wb.entries) == 0 {
		return nil
	}
	err := db.Update(func(txn *badger.Txn) error {
		for _, e := range wb.entries {
			var err error
			if e.delete {
				err = txn.Delete(e.key)
			} else {
				err = txn.Set(e.key, e.value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return errors.WithStack(err)
}
