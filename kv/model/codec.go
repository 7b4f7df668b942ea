package model

import (
	"github.com/pingcap-incubator/tinyds/kv/util/codec"
	"github.com/pingcap/errors"
)

// AppendValue appends the type tag of v followed by its sortable payload.
func AppendValue(b []byte, v Value) []byte {
	b = append(b, byte(v.typ))
	switch v.typ {
	case TypeNull:
	case TypeBool, TypeInt64, TypeRating, TypeTimestamp:
		b = codec.EncodeVarint(b, v.i)
	case TypeDouble:
		b = codec.EncodeFloat(b, v.f)
	case TypeGeoPoint:
		b = codec.EncodeFloat(b, v.f)
		b = codec.EncodeFloat(b, v.f2)
	case TypeUser, TypeIM:
		b = codec.EncodeString(b, v.s)
		b = codec.EncodeString(b, v.s2)
	case TypeKey:
		b = AppendKey(b, v.key)
	default:
		b = codec.EncodeString(b, v.s)
	}
	return b
}

// DecodeValue decodes a value written by AppendValue.
func DecodeValue(b []byte) ([]byte, Value, error) {
	if len(b) == 0 {
		return nil, Value{}, errors.New("insufficient bytes to decode value")
	}
	v := Value{typ: ValueType(b[0])}
	if int(v.typ) >= len(typeNames) {
		return nil, Value{}, errors.Errorf("unknown value type %d", b[0])
	}
	b = b[1:]
	var err error
	switch v.typ {
	case TypeNull:
	case TypeBool, TypeInt64, TypeRating, TypeTimestamp:
		b, v.i, err = codec.DecodeVarint(b)
	case TypeDouble:
		b, v.f, err = codec.DecodeFloat(b)
	case TypeGeoPoint:
		if b, v.f, err = codec.DecodeFloat(b); err == nil {
			b, v.f2, err = codec.DecodeFloat(b)
		}
	case TypeUser, TypeIM:
		if b, v.s, err = codec.DecodeString(b); err == nil {
			b, v.s2, err = codec.DecodeString(b)
		}
	case TypeKey:
		b, v.key, err = DecodeKey(b)
	default:
		b, v.s, err = codec.DecodeString(b)
	}
	if err != nil {
		return nil, Value{}, err
	}
	return b, v, nil
}

const propMultiple = byte(0x01)

// AppendEntity appends the serialized entity: key, properties in insertion
// order and the unindexed names.
func AppendEntity(b []byte, e *Entity) []byte {
	b = AppendKey(b, e.Key)
	props := e.Properties()
	b = codec.EncodeUvarint(b, uint64(len(props)))
	for _, p := range props {
		b = codec.EncodeString(b, p.Name)
		var flags byte
		if p.Multiple {
			flags |= propMultiple
		}
		b = append(b, flags)
		b = codec.EncodeUvarint(b, uint64(len(p.Values)))
		for _, v := range p.Values {
			b = AppendValue(b, v)
		}
	}
	unindexed := e.UnindexedNames()
	b = codec.EncodeUvarint(b, uint64(len(unindexed)))
	for _, name := range unindexed {
		b = codec.EncodeString(b, name)
	}
	return b
}

// EncodeEntity serializes e.
func EncodeEntity(e *Entity) []byte {
	return AppendEntity(nil, e)
}

// DecodeEntity decodes an entity written by AppendEntity.
func DecodeEntity(b []byte) ([]byte, *Entity, error) {
	b, key, err := DecodeKey(b)
	if err != nil {
		return nil, nil, err
	}
	e := NewEntity(key)
	b, n, err := codec.DecodeUvarint(b)
	if err != nil {
		return nil, nil, err
	}
	for i := uint64(0); i < n; i++ {
		p := &Property{}
		if b, p.Name, err = codec.DecodeString(b); err != nil {
			return nil, nil, err
		}
		if len(b) == 0 {
			return nil, nil, errors.New("insufficient bytes to decode property flags")
		}
		p.Multiple = b[0]&propMultiple != 0
		b = b[1:]
		var count uint64
		if b, count, err = codec.DecodeUvarint(b); err != nil {
			return nil, nil, err
		}
		if count > uint64(len(b)) {
			return nil, nil, errors.Errorf("property %s claims %d values in %d bytes", p.Name, count, len(b))
		}
		p.Values = make([]Value, 0, count)
		for j := uint64(0); j < count; j++ {
			var v Value
			if b, v, err = DecodeValue(b); err != nil {
				return nil, nil, err
			}
			p.Values = append(p.Values, v)
		}
		e.put(p)
	}
	if b, n, err = codec.DecodeUvarint(b); err != nil {
		return nil, nil, err
	}
	for i := uint64(0); i < n; i++ {
		var name string
		if b, name, err = codec.DecodeString(b); err != nil {
			return nil, nil, err
		}
		e.SetUnindexed(name, true)
	}
	return b, e, nil
}
