package codec

import (
	"encoding/binary"
	"math"

	"github.com/pingcap/errors"
)

const (
	// Varints in [minInline, maxInline] take a single byte.
	maxInline = 119
	minInline = -119
	// offset is the header byte of minInline; headers below it carry negative
	// values, headers above posOffset carry positive ones.
	offset    = 9
	posOffset = offset + maxInline - minInline + 1

	// NullMarker is never produced by EncodeVarint and sorts before every
	// encoded varint.
	NullMarker = byte(0x00)

	escapeByte  = byte(0x01)
	escapedNull = byte(0x01)
	escapedOne  = byte(0x02)
	terminator  = byte(0x00)

	signMask uint64 = 0x8000000000000000
)

// EncodeVarint appends the order preserving encoding of v to b.
//
// Small values are stored inline in the header byte. Larger values store the
// distance from the inline range as a big-endian magnitude prefixed by its
// length; the magnitude of a negative value is complemented so that larger
// magnitudes sort first.
func EncodeVarint(b []byte, v int64) []byte {
	if v >= minInline && v <= maxInline {
		return append(b, byte(offset+(v-minInline)))
	}
	if v < 0 {
		// -119 - v is positive and fits in uint64 even for MinInt64.
		mag := uint64(-(v + maxInline + 1)) + 1
		n := magnitudeLen(mag)
		b = append(b, byte(offset-n))
		for i := n - 1; i >= 0; i-- {
			b = append(b, ^byte(mag>>(uint(i)*8)))
		}
		return b
	}
	return appendPositive(b, uint64(v)-maxInline)
}

// EncodeUvarint appends the order preserving encoding of v to b. It shares
// the layout of EncodeVarint for non-negative values.
func EncodeUvarint(b []byte, v uint64) []byte {
	if v <= maxInline {
		return append(b, byte(offset+(int64(v)-minInline)))
	}
	return appendPositive(b, v-maxInline)
}

func appendPositive(b []byte, mag uint64) []byte {
	n := magnitudeLen(mag)
	b = append(b, byte(posOffset+n-1))
	for i := n - 1; i >= 0; i-- {
		b = append(b, byte(mag>>(uint(i)*8)))
	}
	return b
}

func magnitudeLen(mag uint64) int {
	n := 0
	for mag > 0 {
		n++
		mag >>= 8
	}
	if n == 0 {
		n = 1
	}
	return n
}

func decodeHeader(b []byte) (head byte, n int, negative bool, err error) {
	if len(b) == 0 {
		return 0, 0, false, errors.New("insufficient bytes to decode varint")
	}
	head = b[0]
	switch {
	case head == NullMarker:
		return head, 0, false, errors.New("unexpected null marker in varint")
	case head < offset:
		n = int(offset - head)
		negative = true
	case head < posOffset:
		return head, 0, false, nil
	default:
		n = int(head) - posOffset + 1
	}
	if n > 8 {
		return head, 0, false, errors.Errorf("invalid varint header %#x", head)
	}
	if len(b) < n+1 {
		return head, 0, false, errors.Errorf("insufficient bytes to decode varint, need %d, have %d", n+1, len(b))
	}
	return head, n, negative, nil
}

func readMagnitude(b []byte, negative bool) uint64 {
	var mag uint64
	for _, c := range b {
		if negative {
			c = ^c
		}
		mag = mag<<8 | uint64(c)
	}
	return mag
}

// DecodeVarint decodes a value written by EncodeVarint and returns the
// leftover bytes.
func DecodeVarint(b []byte) ([]byte, int64, error) {
	head, n, negative, err := decodeHeader(b)
	if err != nil {
		return nil, 0, err
	}
	if n == 0 {
		return b[1:], int64(head) - offset + minInline, nil
	}
	mag := readMagnitude(b[1:n+1], negative)
	if negative {
		if mag == 0 || mag > math.MaxInt64-maxInline+1 {
			return nil, 0, errors.Errorf("varint magnitude %d overflows int64", mag)
		}
		return b[n+1:], -int64(mag-1) - maxInline - 1, nil
	}
	if mag > math.MaxInt64-maxInline {
		return nil, 0, errors.Errorf("varint magnitude %d overflows int64", mag)
	}
	return b[n+1:], int64(mag) + maxInline, nil
}

// DecodeUvarint decodes a value written by EncodeUvarint.
func DecodeUvarint(b []byte) ([]byte, uint64, error) {
	head, n, negative, err := decodeHeader(b)
	if err != nil {
		return nil, 0, err
	}
	if negative {
		return nil, 0, errors.Errorf("unexpected negative varint header %#x", head)
	}
	if n == 0 {
		v := int64(head) - offset + minInline
		if v < 0 {
			return nil, 0, errors.Errorf("unexpected negative inline varint %d", v)
		}
		return b[1:], uint64(v), nil
	}
	mag := readMagnitude(b[1:n+1], false)
	if mag > math.MaxUint64-maxInline {
		return nil, 0, errors.Errorf("uvarint magnitude %d overflows uint64", mag)
	}
	return b[n+1:], mag + maxInline, nil
}

// EncodeUint16 appends the big-endian form of v.
func EncodeUint16(b []byte, v uint16) []byte {
	var data [2]byte
	binary.BigEndian.PutUint16(data[:], v)
	return append(b, data[:]...)
}

// EncodeUint32 appends the big-endian form of v.
func EncodeUint32(b []byte, v uint32) []byte {
	var data [4]byte
	binary.BigEndian.PutUint32(data[:], v)
	return append(b, data[:]...)
}

// EncodeUint64 appends the big-endian form of v.
func EncodeUint64(b []byte, v uint64) []byte {
	var data [8]byte
	binary.BigEndian.PutUint64(data[:], v)
	return append(b, data[:]...)
}

func DecodeUint16(b []byte) ([]byte, uint16, error) {
	if len(b) < 2 {
		return nil, 0, errors.New("insufficient bytes to decode value")
	}
	return b[2:], binary.BigEndian.Uint16(b), nil
}

func DecodeUint32(b []byte) ([]byte, uint32, error) {
	if len(b) < 4 {
		return nil, 0, errors.New("insufficient bytes to decode value")
	}
	return b[4:], binary.BigEndian.Uint32(b), nil
}

func DecodeUint64(b []byte) ([]byte, uint64, error) {
	if len(b) < 8 {
		return nil, 0, errors.New("insufficient bytes to decode value")
	}
	return b[8:], binary.BigEndian.Uint64(b), nil
}

// EncodeFloat appends an 8-byte encoding of f whose byte order matches the
// numeric order. Negative zero is stored as positive zero.
func EncodeFloat(b []byte, f float64) []byte {
	if f == 0 {
		f = 0
	}
	u := math.Float64bits(f)
	if u&signMask != 0 {
		u = ^u
	} else {
		u |= signMask
	}
	return EncodeUint64(b, u)
}

// DecodeFloat decodes a value written by EncodeFloat.
func DecodeFloat(b []byte) ([]byte, float64, error) {
	b, u, err := DecodeUint64(b)
	if err != nil {
		return nil, 0, err
	}
	if u&signMask != 0 {
		u &^= signMask
	} else {
		u = ^u
	}
	return b, math.Float64frombits(u), nil
}

// EncodeBytes appends data escaped so that it contains no 0x00 byte and then
// terminated by 0x00. Comparing two encodings byte by byte gives the same
// result as comparing the raw values.
//  0x00 -> 0x01 0x01
//  0x01 -> 0x01 0x02
func EncodeBytes(b []byte, data []byte) []byte {
	for _, c := range data {
		switch c {
		case 0x00:
			b = append(b, escapeByte, escapedNull)
		case 0x01:
			b = append(b, escapeByte, escapedOne)
		default:
			b = append(b, c)
		}
	}
	return append(b, terminator)
}

// DecodeBytes decodes bytes which is encoded by EncodeBytes before,
// returns the leftover bytes and decoded value if no error.
func DecodeBytes(b []byte) ([]byte, []byte, error) {
	data := make([]byte, 0, len(b))
	for i := 0; i < len(b); i++ {
		switch c := b[i]; c {
		case terminator:
			return b[i+1:], data, nil
		case escapeByte:
			if i+1 >= len(b) {
				return nil, nil, errors.New("insufficient bytes to decode escaped byte")
			}
			i++
			switch b[i] {
			case escapedNull:
				data = append(data, 0x00)
			case escapedOne:
				data = append(data, 0x01)
			default:
				return nil, nil, errors.Errorf("invalid escape sequence 0x01 %#x", b[i])
			}
		default:
			data = append(data, c)
		}
	}
	return nil, nil, errors.New("missing terminator in encoded bytes")
}

// EncodeString is EncodeBytes for strings.
func EncodeString(b []byte, s string) []byte {
	return EncodeBytes(b, []byte(s))
}

func DecodeString(b []byte) ([]byte, string, error) {
	b, data, err := DecodeBytes(b)
	if err != nil {
		return nil, "", err
	}
	return b, string(data), nil
}

// PrefixNext returns the smallest key greater than every key prefixed by
// key. It returns nil when no such key exists.
func PrefixNext(key []byte) []byte {
	next := make([]byte, len(key))
	copy(next, key)
	for i := len(next) - 1; i >= 0; i-- {
		next[i]++
		if next[i] != 0 {
			return next[:i+1]
		}
	}
	return nil
}
