package codec

import (
	"bytes"
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var interestingInts = []int64{
	math.MinInt64, math.MinInt64 + 1, -1 << 40, -65536, -376, -375, -374,
	-121, -120, -119, -118, -1, 0, 1, 118, 119, 120, 121, 255, 256, 374,
	375, 376, 65536, 1 << 40, math.MaxInt64 - 1, math.MaxInt64,
}

func TestVarintRoundTrip(t *testing.T) {
	for _, v := range interestingInts {
		enc := EncodeVarint(nil, v)
		rest, got, err := DecodeVarint(enc)
		require.Nil(t, err, "value %d", v)
		assert.Equal(t, v, got)
		assert.Empty(t, rest)
		assert.NotEqual(t, NullMarker, enc[0])
	}
}

func TestVarintInlineRange(t *testing.T) {
	assert.Equal(t, []byte{9}, EncodeVarint(nil, -119))
	assert.Equal(t, []byte{128}, EncodeVarint(nil, 0))
	assert.Equal(t, []byte{247}, EncodeVarint(nil, 119))
	assert.Equal(t, []byte{248, 1}, EncodeVarint(nil, 120))
	assert.Equal(t, []byte{8, 0xfe}, EncodeVarint(nil, -120))
}

func TestVarintOrder(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	values := append([]int64{}, interestingInts...)
	for i := 0; i < 2000; i++ {
		v := r.Int63() >> uint(r.Intn(63))
		if r.Intn(2) == 0 {
			v = -v
		}
		values = append(values, v)
	}
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	for i := 1; i < len(values); i++ {
		a, b := EncodeVarint(nil, values[i-1]), EncodeVarint(nil, values[i])
		if values[i-1] == values[i] {
			assert.Equal(t, a, b)
			continue
		}
		assert.True(t, bytes.Compare(a, b) < 0, "%d should sort before %d", values[i-1], values[i])
	}
}

func TestUvarint(t *testing.T) {
	values := []uint64{0, 1, 119, 120, 255, 1 << 32, math.MaxInt64, math.MaxUint64 - 1, math.MaxUint64}
	var prev []byte
	for _, v := range values {
		enc := EncodeUvarint(nil, v)
		_, got, err := DecodeUvarint(enc)
		require.Nil(t, err)
		assert.Equal(t, v, got)
		if prev != nil {
			assert.True(t, bytes.Compare(prev, enc) < 0)
		}
		prev = enc
	}
	// Uvarint and varint agree on non-negative values.
	assert.Equal(t, EncodeVarint(nil, 1<<40), EncodeUvarint(nil, 1<<40))

	_, _, err := DecodeUvarint(EncodeVarint(nil, -5))
	assert.NotNil(t, err)
}

func TestVarintDecodeErrors(t *testing.T) {
	_, _, err := DecodeVarint(nil)
	assert.NotNil(t, err)
	_, _, err = DecodeVarint([]byte{NullMarker})
	assert.NotNil(t, err)
	// header announces two magnitude bytes, only one present
	_, _, err = DecodeVarint([]byte{249, 1})
	assert.NotNil(t, err)
}

func TestFixedWidth(t *testing.T) {
	b := EncodeUint16(nil, 0x0102)
	b = EncodeUint32(b, 0x03040506)
	b = EncodeUint64(b, 0x0708090a0b0c0d0e)
	assert.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14}, b)

	b, v16, err := DecodeUint16(b)
	require.Nil(t, err)
	b, v32, err := DecodeUint32(b)
	require.Nil(t, err)
	b, v64, err := DecodeUint64(b)
	require.Nil(t, err)
	assert.Equal(t, uint16(0x0102), v16)
	assert.Equal(t, uint32(0x03040506), v32)
	assert.Equal(t, uint64(0x0708090a0b0c0d0e), v64)
	assert.Empty(t, b)

	_, _, err = DecodeUint64([]byte{1, 2, 3})
	assert.NotNil(t, err)
}

func TestFloat(t *testing.T) {
	values := []float64{
		math.Inf(-1), -math.MaxFloat64, -1e10, -1.5, -math.SmallestNonzeroFloat64,
		0, math.SmallestNonzeroFloat64, 1.5, 1e10, math.MaxFloat64, math.Inf(1),
	}
	var prev []byte
	for _, v := range values {
		enc := EncodeFloat(nil, v)
		assert.Len(t, enc, 8)
		_, got, err := DecodeFloat(enc)
		require.Nil(t, err)
		assert.Equal(t, v, got)
		if prev != nil {
			assert.True(t, bytes.Compare(prev, enc) < 0, "order broken at %v", v)
		}
		prev = enc
	}

	negZero := math.Copysign(0, -1)
	assert.Equal(t, EncodeFloat(nil, 0), EncodeFloat(nil, negZero))
	_, got, err := DecodeFloat(EncodeFloat(nil, negZero))
	require.Nil(t, err)
	assert.True(t, got == negZero)
}

func TestFloatRandomOrder(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 2000; i++ {
		a := r.NormFloat64() * math.Pow(10, float64(r.Intn(40)-20))
		b := r.NormFloat64() * math.Pow(10, float64(r.Intn(40)-20))
		cmp := bytes.Compare(EncodeFloat(nil, a), EncodeFloat(nil, b))
		switch {
		case a < b:
			assert.Equal(t, -1, cmp)
		case a > b:
			assert.Equal(t, 1, cmp)
		default:
			assert.Equal(t, 0, cmp)
		}
	}
}

func TestBytes(t *testing.T) {
	cases := [][]byte{
		{},
		{0},
		{1},
		{0, 0},
		{0, 1, 2},
		{1, 1, 0},
		[]byte("abc"),
		[]byte("abc\x00def"),
		{0xff, 0x00, 0x01, 0xff},
	}
	for _, c := range cases {
		enc := EncodeBytes(nil, c)
		assert.Equal(t, byte(0), enc[len(enc)-1])
		assert.Equal(t, -1, bytes.IndexByte(enc[:len(enc)-1], 0))
		rest, got, err := DecodeBytes(append(enc, 0xaa))
		require.Nil(t, err)
		assert.Equal(t, c, got)
		assert.Equal(t, []byte{0xaa}, rest)
	}

	sorted := [][]byte{{}, {0}, {0, 0}, {0, 1}, {1}, {1, 0}, {2}, []byte("a"), []byte("a\x00"), []byte("ab"), {0xff}}
	for i := 1; i < len(sorted); i++ {
		a, b := EncodeBytes(nil, sorted[i-1]), EncodeBytes(nil, sorted[i])
		assert.True(t, bytes.Compare(a, b) < 0, "%q should sort before %q", sorted[i-1], sorted[i])
	}
}

func TestBytesDecodeErrors(t *testing.T) {
	_, _, err := DecodeBytes([]byte("abc"))
	assert.NotNil(t, err)
	_, _, err = DecodeBytes([]byte{'a', 0x01})
	assert.NotNil(t, err)
	_, _, err = DecodeBytes([]byte{0x01, 0x05, 0x00})
	assert.NotNil(t, err)
}

func TestString(t *testing.T) {
	b := EncodeString(nil, "hello\x00world")
	b = EncodeString(b, "")
	b, s1, err := DecodeString(b)
	require.Nil(t, err)
	b, s2, err := DecodeString(b)
	require.Nil(t, err)
	assert.Equal(t, "hello\x00world", s1)
	assert.Equal(t, "", s2)
	assert.Empty(t, b)
}

func TestPrefixNext(t *testing.T) {
	assert.Equal(t, []byte{1, 3}, PrefixNext([]byte{1, 2}))
	assert.Equal(t, []byte{2}, PrefixNext([]byte{1, 0xff}))
	assert.Nil(t, PrefixNext([]byte{0xff, 0xff}))
}
