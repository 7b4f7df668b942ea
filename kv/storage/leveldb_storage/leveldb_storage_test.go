package leveldb_storage

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/pingcap-incubator/tinyds/kv/config"
	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap-incubator/tinyds/kv/util/engine_util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStorage(t *testing.T) (*LevelDBStorage, func()) {
	dir, err := ioutil.TempDir("", "tinyds-leveldb")
	require.Nil(t, err)
	conf := config.NewTestConfig()
	conf.Engine.Kind = config.EngineLevelDB
	conf.Engine.DBPath = dir
	s := NewLevelDBStorage(conf)
	require.Nil(t, s.Start())
	return s, func() {
		s.Stop()
		os.RemoveAll(dir)
	}
}

func TestSnapshotReader(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	cf := engine_util.CfEntity
	require.Nil(t, s.Write([]storage.Modify{
		{Data: storage.Put{Key: []byte("a"), Value: []byte("1"), Cf: cf}},
		{Data: storage.Put{Key: []byte("c"), Value: []byte("1"), Cf: engine_util.CfCounter}},
	}))
	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()
	require.Nil(t, s.Write([]storage.Modify{
		{Data: storage.Delete{Key: []byte("a"), Cf: cf}},
		{Data: storage.Put{Key: []byte("b"), Value: []byte("2"), Cf: cf}},
	}))

	val, err := r.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("1"), val)

	it := r.IterCF(cf)
	defer it.Close()
	var keys []string
	for it.Seek(nil); it.Valid(); it.Next() {
		keys = append(keys, string(it.Item().Key()))
	}
	assert.Equal(t, []string{"a"}, keys)

	r2, err := s.Reader()
	require.Nil(t, err)
	defer r2.Close()
	val, err = r2.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Nil(t, val)
}

func TestBackendOverLevelDB(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	backend := storage.NewKVBackend(s)

	for i := 1; i <= 3; i++ {
		e := model.NewEntity(model.NewKey("app", "ns", "Item", i)).Set("n", model.Int64Value(int64(i)))
		require.Nil(t, backend.Put(e))
	}
	require.Nil(t, backend.Put(model.NewEntity(model.NewKey("app", "", "Other", "x"))))

	entities, err := storage.CollectEntities(backend.Scan("app", "ns", "Item"))
	require.Nil(t, err)
	require.Len(t, entities, 3)
	assert.Equal(t, int64(3), entities[2].Values("n")[0].Int())

	kinds, err := backend.Kinds("app", "ns")
	require.Nil(t, err)
	assert.Equal(t, []string{"Item"}, kinds)
	namespaces, err := backend.Namespaces("app")
	require.Nil(t, err)
	assert.Equal(t, []string{"", "ns"}, namespaces)
}
