package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// ValueType tags the payload held by a Value.
type ValueType uint8

const (
	TypeNull ValueType = iota
	TypeBool
	TypeInt64
	TypeDouble
	TypeString
	TypeText
	TypeBlob
	TypeByteString
	TypeTimestamp
	TypeUser
	TypeKey
	TypeRating
	TypeCategory
	TypePhoneNumber
	TypePostalAddress
	TypeEmail
	TypeLink
	TypeGeoPoint
	TypeIM
)

var typeNames = [...]string{
	TypeNull:          "null",
	TypeBool:          "bool",
	TypeInt64:         "int64",
	TypeDouble:        "double",
	TypeString:        "string",
	TypeText:          "text",
	TypeBlob:          "blob",
	TypeByteString:    "bytestring",
	TypeTimestamp:     "timestamp",
	TypeUser:          "user",
	TypeKey:           "key",
	TypeRating:        "rating",
	TypeCategory:      "category",
	TypePhoneNumber:   "phone",
	TypePostalAddress: "postal",
	TypeEmail:         "email",
	TypeLink:          "link",
	TypeGeoPoint:      "geopt",
	TypeIM:            "im",
}

func (t ValueType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return fmt.Sprintf("ValueType(%d)", uint8(t))
}

// ParseValueType is the inverse of ValueType.String.
func ParseValueType(s string) (ValueType, bool) {
	for t, name := range typeNames {
		if name == s {
			return ValueType(t), true
		}
	}
	return TypeNull, false
}

// Rank is the cross-type precedence of the type. Values of different ranks
// compare by rank only; values of the same rank compare natively.
func (t ValueType) Rank() int {
	switch t {
	case TypeNull:
		return 0
	case TypeInt64, TypeTimestamp, TypeRating:
		return 1
	case TypeBool:
		return 2
	case TypeString, TypeText, TypeBlob, TypeByteString, TypeCategory, TypePhoneNumber,
		TypePostalAddress, TypeEmail, TypeLink, TypeIM:
		return 3
	case TypeDouble:
		return 4
	case TypeGeoPoint:
		return 5
	case TypeUser:
		return 8
	case TypeKey:
		return 12
	}
	return math.MaxInt32
}

// Raw reports whether values of the type are never indexed.
func (t ValueType) Raw() bool {
	return t == TypeText || t == TypeBlob
}

// Representation is the name reported for the type by the __kind__ pseudo
// kind.
func (t ValueType) Representation() string {
	switch t.Rank() {
	case 0:
		return "NULL"
	case 1:
		return "INT64"
	case 2:
		return "BOOLEAN"
	case 3:
		return "STRING"
	case 4:
		return "DOUBLE"
	case 5:
		return "POINT"
	case 8:
		return "USER"
	case 12:
		return "REFERENCE"
	}
	return "UNKNOWN"
}

type User struct {
	Email      string
	AuthDomain string
}

type GeoPoint struct {
	Lat float64
	Lon float64
}

type IM struct {
	Protocol string
	Address  string
}

// Value is a single typed property value. The zero Value is null.
type Value struct {
	typ ValueType
	i   int64
	f   float64
	s   string
	s2  string
	f2  float64
	key *Key
}

func NullValue() Value { return Value{} }

func BoolValue(b bool) Value {
	v := Value{typ: TypeBool}
	if b {
		v.i = 1
	}
	return v
}

func Int64Value(i int64) Value { return Value{typ: TypeInt64, i: i} }

func DoubleValue(f float64) Value { return Value{typ: TypeDouble, f: f} }

func StringValue(s string) Value { return Value{typ: TypeString, s: s} }

func TextValue(s string) Value { return Value{typ: TypeText, s: s} }

func BlobValue(b []byte) Value { return Value{typ: TypeBlob, s: string(b)} }

func ByteStringValue(b []byte) Value { return Value{typ: TypeByteString, s: string(b)} }

// TimestampValue stores t with microsecond precision.
func TimestampValue(t time.Time) Value {
	return Value{typ: TypeTimestamp, i: t.UnixNano() / int64(time.Microsecond)}
}

// TimestampMicros builds a timestamp from microseconds since the epoch.
func TimestampMicros(us int64) Value { return Value{typ: TypeTimestamp, i: us} }

func UserValue(u User) Value { return Value{typ: TypeUser, s: u.Email, s2: u.AuthDomain} }

func KeyValue(k *Key) Value { return Value{typ: TypeKey, key: k.Clone()} }

func RatingValue(r int64) Value { return Value{typ: TypeRating, i: r} }

func CategoryValue(s string) Value { return Value{typ: TypeCategory, s: s} }

func PhoneNumberValue(s string) Value { return Value{typ: TypePhoneNumber, s: s} }

func PostalAddressValue(s string) Value { return Value{typ: TypePostalAddress, s: s} }

func EmailValue(s string) Value { return Value{typ: TypeEmail, s: s} }

func LinkValue(s string) Value { return Value{typ: TypeLink, s: s} }

func GeoPointValue(p GeoPoint) Value { return Value{typ: TypeGeoPoint, f: p.Lat, f2: p.Lon} }

func IMValue(im IM) Value { return Value{typ: TypeIM, s: im.Protocol, s2: im.Address} }

func (v Value) Type() ValueType { return v.typ }

func (v Value) IsNull() bool { return v.typ == TypeNull }

func (v Value) Bool() bool { return v.i != 0 }

// Int returns the payload of Int64, Rating and Timestamp (microseconds)
// values.
func (v Value) Int() int64 { return v.i }

func (v Value) Double() float64 { return v.f }

// Str returns the payload of every string-like value, including Blob and
// ByteString.
func (v Value) Str() string { return v.s }

func (v Value) Bytes() []byte { return []byte(v.s) }

func (v Value) Time() time.Time {
	return time.Unix(0, v.i*int64(time.Microsecond)).UTC()
}

func (v Value) User() User { return User{Email: v.s, AuthDomain: v.s2} }

func (v Value) Key() *Key { return v.key }

func (v Value) GeoPoint() GeoPoint { return GeoPoint{Lat: v.f, Lon: v.f2} }

func (v Value) IM() IM { return IM{Protocol: v.s, Address: v.s2} }

// stringForm is the string compared for rank 3 values.
func (v Value) stringForm() string {
	if v.typ == TypeIM {
		return v.s + " " + v.s2
	}
	return v.s
}

// CompareValues orders a before b: by type rank first and natively within a
// rank. NaN sorts below every other double.
func CompareValues(a, b Value) int {
	ra, rb := a.typ.Rank(), b.typ.Rank()
	if ra != rb {
		return compareInt64(int64(ra), int64(rb))
	}
	return compareSameRank(a, b)
}

// SameRank reports whether a and b are natively comparable.
func SameRank(a, b Value) bool {
	return a.typ.Rank() == b.typ.Rank()
}

func compareSameRank(a, b Value) int {
	switch a.typ.Rank() {
	case 0:
		return 0
	case 1, 2:
		return compareInt64(a.i, b.i)
	case 3:
		return strings.Compare(a.stringForm(), b.stringForm())
	case 4:
		return compareFloat(a.f, b.f)
	case 5:
		if c := compareFloat(a.f, b.f); c != 0 {
			return c
		}
		return compareFloat(a.f2, b.f2)
	case 8:
		if c := strings.Compare(a.s, b.s); c != 0 {
			return c
		}
		return strings.Compare(a.s2, b.s2)
	case 12:
		return a.key.Compare(b.key)
	}
	return 0
}

func compareFloat(a, b float64) int {
	an, bn := math.IsNaN(a), math.IsNaN(b)
	switch {
	case an && bn:
		return 0
	case an:
		return -1
	case bn:
		return 1
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// Equal reports whether a and b have the same type and payload.
func (v Value) Equal(o Value) bool {
	if v.typ != o.typ {
		return false
	}
	switch v.typ {
	case TypeKey:
		return v.key.Equal(o.key)
	case TypeDouble, TypeGeoPoint:
		return compareSameRank(v, o) == 0
	}
	return v.i == o.i && v.s == o.s && v.s2 == o.s2
}

func (v Value) String() string {
	switch v.typ {
	case TypeNull:
		return "null"
	case TypeBool:
		return fmt.Sprintf("%t", v.Bool())
	case TypeInt64, TypeRating:
		return fmt.Sprintf("%d", v.i)
	case TypeTimestamp:
		return v.Time().Format(time.RFC3339Nano)
	case TypeDouble:
		return fmt.Sprintf("%g", v.f)
	case TypeBlob, TypeByteString:
		return fmt.Sprintf("%q", v.s)
	case TypeUser:
		return v.s
	case TypeKey:
		return v.key.String()
	case TypeGeoPoint:
		return fmt.Sprintf("%g,%g", v.f, v.f2)
	case TypeIM:
		return v.stringForm()
	}
	return v.s
}

// minMaxValue returns the smallest (or largest, when max is set) of values.
func minMaxValue(values []Value, max bool) Value {
	best := values[0]
	for _, v := range values[1:] {
		c := CompareValues(v, best)
		if (max && c > 0) || (!max && c < 0) {
			best = v
		}
	}
	return best
}

// MinValue returns the smallest element of a non-empty slice.
func MinValue(values []Value) Value { return minMaxValue(values, false) }

// MaxValue returns the largest element of a non-empty slice.
func MaxValue(values []Value) Value { return minMaxValue(values, true) }
