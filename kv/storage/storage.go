package storage

import (
	"github.com/pingcap-incubator/tinyds/kv/util/engine_util"
)

// Storage is a key/value engine with column families. Every implementation
// must apply a Write batch atomically and serve each Reader from a
// consistent point-in-time view.
type Storage interface {
	Start() error
	Stop() error
	Write(batch []Modify) error
	Reader() (StorageReader, error)
}

type StorageReader interface {
	// When the key doesn't exist, return nil for the value
	GetCF(cf string, key []byte) ([]byte, error)
	IterCF(cf string) engine_util.DBIterator
	Close()
}
