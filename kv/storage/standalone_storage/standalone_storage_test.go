package standalone_storage

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

func newTestStorage(t *testing.T) (*StandAloneStorage, func()) {
	dir, err := ioutil.TempDir("", "tinyds-badger")
	require.Nil(t, err)
	conf := config.NewTestConfig()
	conf.Engine.Kind = config.EngineBadger
	conf.Engine.DBPath = dir
	s := NewStandAloneStorage(conf)
	require.Nil(t, s.Start())
	return s, func() {
		s.Stop()
		os.RemoveAll(dir)
	}
}

func TestReader(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	cf := engine_util.CfEntity
	batch := []storage.Modify{
		{Data: storage.Put{Key: []byte("a"), Value: []byte("x"), Cf: cf}},
		{Data: storage.Put{Key: []byte("b"), Value: []byte("y"), Cf: cf}},
	}
	require.Nil(t, s.Write(batch))

	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()
	ret, err := r.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("x"), ret)
	ret, err = r.GetCF(cf, []byte("zzz"))
	require.Nil(t, err)
	assert.Nil(t, ret)
}

func TestReaderIsSnapshot(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()

	cf := engine_util.CfEntity
	require.Nil(t, s.Write([]storage.Modify{{Data: storage.Put{Key: []byte("a"), Value: []byte("1"), Cf: cf}}}))
	r, err := s.Reader()
	require.Nil(t, err)
	defer r.Close()
	require.Nil(t, s.Write([]storage.Modify{
		{Data: storage.Put{Key: []byte("a"), Value: []byte("2"), Cf: cf}},
		{Data: storage.Put{Key: []byte("b"), Value: []byte("3"), Cf: cf}},
	}))

	ret, err := r.GetCF(cf, []byte("a"))
	require.Nil(t, err)
	assert.Equal(t, []byte("1"), ret)
	it := r.IterCF(cf)
	defer it.Close()
	it.Seek([]byte("a"))
	require.True(t, it.Valid())
	it.Next()
	assert.False(t, it.Valid())
}

func TestBackendOverBadger(t *testing.T) {
	s, cleanup := newTestStorage(t)
	defer cleanup()
	backend := storage.NewKVBackend(s)

	e := model.NewEntity(model.NewKey("app", "", "Greeting", 1)).Set("content", model.StringValue("hi"))
	require.Nil(t, backend.Put(e))
	got, err := backend.Get(e.Key)
	require.Nil(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "hi", got.Values("content")[0].Str())

	require.Nil(t, backend.SetCounter("app", "Greeting", 1001))
	counter, err := backend.GetCounter("app", "Greeting")
	require.Nil(t, err)
	assert.Equal(t, uint64(1001), counter)

	require.Nil(t, backend.Delete(e.Key))
	got, err = backend.Get(e.Key)
	require.Nil(t, err)
	assert.Nil(t, got)
}
