package model

import (
	"bytes"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/pingcap/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyCompare(t *testing.T) {
	keys := []*Key{
		NewKey("a", "", "Child", 1),
		NewKey("a", "", "Parent", 1),
		NewKey("a", "", "Parent", 1, "Child", 2),
		NewKey("a", "", "Parent", 1, "Child", "x"),
		NewKey("a", "", "Parent", 2),
		NewKey("a", "", "Parent", 300),
		NewKey("a", "", "Parent", "a"),
		NewKey("a", "", "Parent", "b"),
		NewKey("a", "ns", "Parent", 1),
		NewKey("b", "", "Parent", 1),
	}
	for i := 1; i < len(keys); i++ {
		assert.Equal(t, -1, keys[i-1].Compare(keys[i]), "%s < %s", keys[i-1], keys[i])
		assert.Equal(t, 1, keys[i].Compare(keys[i-1]))
		assert.True(t, bytes.Compare(keys[i-1].Encode(), keys[i].Encode()) < 0,
			"encoding of %s should sort before %s", keys[i-1], keys[i])
	}
	assert.True(t, keys[1].Equal(NewKey("a", "", "Parent", 1)))
	assert.True(t, keys[1].IsAncestorOf(keys[2]))
	assert.True(t, keys[1].IsAncestorOf(keys[1]))
	assert.False(t, keys[2].IsAncestorOf(keys[1]))
	assert.False(t, keys[4].IsAncestorOf(keys[2]))
}

func TestKeyEncodeRoundTrip(t *testing.T) {
	k := NewKey("app", "ns\x00", "Kind\x01", 42, "Sub", "name\x00x")
	rest, got, err := DecodeKey(append(k.Encode(), 0xff))
	require.Nil(t, err)
	assert.True(t, k.Equal(got))
	assert.Equal(t, []byte{0xff}, rest)

	_, _, err = DecodeKey(k.Encode()[:5])
	assert.NotNil(t, err)
}

func TestKeyValidate(t *testing.T) {
	assert.Nil(t, NewKey("a", "", "K", 1).Validate(false))
	assert.Nil(t, NewKey("a", "", "P", "x", "K", 0).Validate(true))
	assert.True(t, IsBadRequest(NewKey("a", "", "K", 0).Validate(false)))
	assert.True(t, IsBadRequest(NewKey("a", "", "P", 0, "K", 1).Validate(true)))
	both := NewKey("a", "", "K", 1)
	both.Path[0].Name = "x"
	assert.True(t, IsBadRequest(both.Validate(true)))
	assert.True(t, IsBadRequest((&Key{AppID: "a"}).Validate(true)))

	k := NewKey("a", "", "P", "x", "K", 0)
	assert.True(t, k.Incomplete())
	k.SetID(7)
	assert.False(t, k.Incomplete())
	assert.Equal(t, "K", k.Kind())
	assert.Equal(t, PathElement{Kind: "P", Name: "x"}, k.Root())
	assert.True(t, k.Parent().Equal(NewKey("a", "", "P", "x")))
	assert.Nil(t, k.Parent().Parent())
}

func TestValueRanks(t *testing.T) {
	ordered := []Value{
		NullValue(),
		Int64Value(-5),
		TimestampMicros(0),
		RatingValue(3),
		Int64Value(10),
		BoolValue(false),
		BoolValue(true),
		BlobValue([]byte("a")),
		StringValue("b"),
		CategoryValue("c"),
		DoubleValue(-1.5),
		DoubleValue(2),
		GeoPointValue(GeoPoint{Lat: 1, Lon: 2}),
		GeoPointValue(GeoPoint{Lat: 1, Lon: 3}),
		UserValue(User{Email: "a@example.com"}),
		KeyValue(NewKey("a", "", "K", 1)),
	}
	for i := 1; i < len(ordered); i++ {
		assert.Equal(t, -1, CompareValues(ordered[i-1], ordered[i]), "%v < %v", ordered[i-1], ordered[i])
	}
	assert.True(t, SameRank(Int64Value(1), TimestampMicros(1)))
	assert.False(t, SameRank(Int64Value(1), DoubleValue(1)))
	assert.Equal(t, 0, CompareValues(Int64Value(1), TimestampMicros(1)))
	assert.False(t, Int64Value(1).Equal(TimestampMicros(1)))
	assert.True(t, TextValue("x").Type().Raw())
	assert.False(t, StringValue("x").Type().Raw())
	assert.Equal(t, "INT64", TypeTimestamp.Representation())

	vs := []Value{Int64Value(3), Int64Value(1), Int64Value(2)}
	assert.Equal(t, int64(1), MinValue(vs).Int())
	assert.Equal(t, int64(3), MaxValue(vs).Int())
}

func TestTimestampValue(t *testing.T) {
	ts := time.Date(2020, 3, 4, 5, 6, 7, 8000, time.UTC)
	v := TimestampValue(ts)
	assert.Equal(t, TypeTimestamp, v.Type())
	assert.True(t, ts.Equal(v.Time()))
}

func TestEntityCodec(t *testing.T) {
	e := NewEntity(NewKey("app", "", "Person", "bob"))
	e.Set("age", Int64Value(42)).
		Set("name", StringValue("Bob")).
		Set("bio", TextValue("long text")).
		SetMulti("tags", StringValue("a"), StringValue("b")).
		SetMulti("empty").
		Set("home", GeoPointValue(GeoPoint{Lat: 1.5, Lon: -2})).
		Set("owner", UserValue(User{Email: "x@y.z", AuthDomain: "y.z"})).
		Set("chat", IMValue(IM{Protocol: "xmpp", Address: "x@y.z"})).
		Set("ref", KeyValue(NewKey("app", "", "Person", 7))).
		Set("born", TimestampMicros(-12345)).
		Set("ok", BoolValue(true)).
		Set("score", DoubleValue(0.25)).
		Set("nothing", NullValue())
	e.SetUnindexed("bio", true)

	rest, got, err := DecodeEntity(EncodeEntity(e))
	require.Nil(t, err)
	assert.Empty(t, rest)
	assert.True(t, e.Key.Equal(got.Key))
	require.Equal(t, len(e.Properties()), len(got.Properties()))
	for i, p := range e.Properties() {
		gp := got.Properties()[i]
		assert.Equal(t, p.Name, gp.Name)
		assert.Equal(t, p.Multiple, gp.Multiple)
		require.Equal(t, len(p.Values), len(gp.Values), p.Name)
		for j := range p.Values {
			assert.True(t, p.Values[j].Equal(gp.Values[j]), "%s: %v != %v", p.Name, p.Values[j], gp.Values[j])
		}
	}
	assert.True(t, got.IsUnindexed("bio"))
	assert.False(t, got.IsUnindexed("name"))

	_, _, err = DecodeEntity(EncodeEntity(e)[:20])
	assert.NotNil(t, err)
}

func TestEntityProperties(t *testing.T) {
	e := NewEntity(NewKey("app", "", "K", 1))
	e.Set("b", Int64Value(1)).Set("a", Int64Value(2)).Set("b", Int64Value(3))
	names := []string{}
	for _, p := range e.Properties() {
		names = append(names, p.Name)
	}
	assert.Equal(t, []string{"b", "a"}, names)
	assert.Equal(t, int64(3), e.Values("b")[0].Int())
	e.Remove("b")
	assert.Nil(t, e.Values("b"))

	c := e.Clone()
	c.Set("a", Int64Value(9))
	assert.Equal(t, int64(2), e.Values("a")[0].Int())
	assert.Empty(t, e.KeyOnly().Properties())
}

func TestValueEncodingRandom(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	values := make([]Value, 0, 500)
	for i := 0; i < 500; i++ {
		switch r.Intn(3) {
		case 0:
			values = append(values, Int64Value(r.Int63n(2000)-1000))
		case 1:
			values = append(values, StringValue(string([]byte{byte(r.Intn(4)), byte(r.Intn(256))})))
		default:
			values = append(values, DoubleValue(r.NormFloat64()))
		}
	}
	sort.SliceStable(values, func(i, j int) bool { return CompareValues(values[i], values[j]) < 0 })
	for _, v := range values {
		_, got, err := DecodeValue(AppendValue(nil, v))
		require.Nil(t, err)
		assert.True(t, v.Equal(got))
	}
}

func TestIndexState(t *testing.T) {
	assert.True(t, IndexWriteOnly.CanTransition(IndexReadWrite))
	assert.True(t, IndexWriteOnly.CanTransition(IndexError))
	assert.True(t, IndexReadWrite.CanTransition(IndexDeleted))
	assert.True(t, IndexDeleted.CanTransition(IndexError))
	assert.False(t, IndexReadWrite.CanTransition(IndexWriteOnly))
	assert.False(t, IndexError.CanTransition(IndexReadWrite))
	assert.False(t, IndexDeleted.CanTransition(IndexReadWrite))
	state, ok := ParseIndexState("READ_WRITE")
	assert.True(t, ok)
	assert.Equal(t, IndexReadWrite, state)

	a := &CompositeIndex{Kind: "K", Properties: []IndexProperty{{"x", Ascending}, {"y", Descending}}}
	b := a.Clone()
	b.ID, b.State = 4, IndexError
	assert.True(t, a.SameDefinition(b))
	b.Properties[1].Direction = Ascending
	assert.False(t, a.SameDefinition(b))
}

func TestErrors(t *testing.T) {
	err := errors.Trace(BadRequestf("bad %s", "thing"))
	assert.True(t, IsBadRequest(err))
	assert.Equal(t, "bad request: bad thing", errors.Cause(err).Error())

	needIndex := &ErrNeedIndex{Index: &CompositeIndex{
		Kind: "Person", Ancestor: true,
		Properties: []IndexProperty{{"age", Ascending}, {"name", Descending}},
	}}
	assert.True(t, IsNeedIndex(errors.WithStack(needIndex)))
	assert.Contains(t, needIndex.Error(), "- kind: Person\n  ancestor: yes\n  properties:\n  - name: age\n  - name: name\n    direction: desc\n")
	assert.True(t, IsCursorNotFound(&ErrCursorNotFound{ID: 1}))
	assert.True(t, IsTransactionNotFound(&ErrTransactionNotFound{Handle: 1}))
}

func TestOperator(t *testing.T) {
	op, ok := ParseOperator("=")
	assert.True(t, ok)
	assert.Equal(t, Equal, op)
	op, ok = ParseOperator(">=")
	assert.True(t, ok)
	assert.True(t, op.IsInequality())
	assert.False(t, Equal.IsInequality())
	assert.True(t, GreaterThanOrEqual.Matches(0))
	assert.False(t, GreaterThan.Matches(0))
	assert.True(t, LessThan.Matches(-1))
}
