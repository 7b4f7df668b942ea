package cursor

import (
	"bytes"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/query"
	"github.com/pingcap-incubator/tinyds/kv/util/codec"
	"github.com/pingcap/errors"
)

// separator joins the query descriptor and the entity descriptor of a
// compiled cursor.
var separator = []byte("!CURSOR!")

// queryInfo is the part of a query a compiled cursor must agree with.
type queryInfo struct {
	appID     string
	kind      string
	namespace string
	ancestor  *model.Key
	filters   []model.Filter
	orders    []model.Order
}

func minimalQueryInfo(q *model.Query) *queryInfo {
	return &queryInfo{
		appID:     q.AppID,
		kind:      q.Kind,
		namespace: q.Namespace,
		ancestor:  q.Ancestor,
		filters:   q.Filters,
		orders:    q.Orders,
	}
}

func appendQueryInfo(b []byte, info *queryInfo) []byte {
	b = codec.EncodeString(b, info.appID)
	b = codec.EncodeString(b, info.kind)
	b = codec.EncodeString(b, info.namespace)
	if info.ancestor != nil {
		b = append(b, 1)
		b = model.AppendKey(b, info.ancestor)
	} else {
		b = append(b, 0)
	}
	b = codec.EncodeUvarint(b, uint64(len(info.filters)))
	for _, f := range info.filters {
		b = codec.EncodeString(b, f.Property)
		b = codec.EncodeUvarint(b, uint64(f.Op))
		b = codec.EncodeUvarint(b, uint64(len(f.Values)))
		for _, v := range f.Values {
			b = model.AppendValue(b, v)
		}
	}
	b = codec.EncodeUvarint(b, uint64(len(info.orders)))
	for _, o := range info.orders {
		b = codec.EncodeString(b, o.Property)
		b = codec.EncodeUvarint(b, uint64(o.Direction))
	}
	return b
}

func decodeQueryInfo(b []byte) ([]byte, *queryInfo, error) {
	info := &queryInfo{}
	var err error
	if b, info.appID, err = codec.DecodeString(b); err != nil {
		return nil, nil, err
	}
	if b, info.kind, err = codec.DecodeString(b); err != nil {
		return nil, nil, err
	}
	if b, info.namespace, err = codec.DecodeString(b); err != nil {
		return nil, nil, err
	}
	if len(b) == 0 {
		return nil, nil, errors.New("missing ancestor flag")
	}
	hasAncestor := b[0] == 1
	b = b[1:]
	if hasAncestor {
		if b, info.ancestor, err = model.DecodeKey(b); err != nil {
			return nil, nil, err
		}
	}

	var n uint64
	if b, n, err = codec.DecodeUvarint(b); err != nil {
		return nil, nil, err
	}
	for i := uint64(0); i < n; i++ {
		var (
			f          model.Filter
			op, values uint64
		)
		if b, f.Property, err = codec.DecodeString(b); err != nil {
			return nil, nil, err
		}
		if b, op, err = codec.DecodeUvarint(b); err != nil {
			return nil, nil, err
		}
		f.Op = model.Operator(op)
		if b, values, err = codec.DecodeUvarint(b); err != nil {
			return nil, nil, err
		}
		for j := uint64(0); j < values; j++ {
			var v model.Value
			if b, v, err = model.DecodeValue(b); err != nil {
				return nil, nil, err
			}
			f.Values = append(f.Values, v)
		}
		info.filters = append(info.filters, f)
	}

	if b, n, err = codec.DecodeUvarint(b); err != nil {
		return nil, nil, err
	}
	for i := uint64(0); i < n; i++ {
		var (
			o   model.Order
			dir uint64
		)
		if b, o.Property, err = codec.DecodeString(b); err != nil {
			return nil, nil, err
		}
		if b, dir, err = codec.DecodeUvarint(b); err != nil {
			return nil, nil, err
		}
		o.Direction = model.Direction(dir)
		info.orders = append(info.orders, o)
	}
	return b, info, nil
}

func (info *queryInfo) validate(q *model.Query) error {
	const msg = "cursor does not match query: %s"
	if len(info.filters) != len(q.Filters) {
		return model.BadRequestf(msg, "filters do not match")
	}
	for i := range info.filters {
		if !info.filters[i].Equal(q.Filters[i]) {
			return model.BadRequestf(msg, "filters do not match")
		}
	}
	if len(info.orders) != len(q.Orders) {
		return model.BadRequestf(msg, "orders do not match")
	}
	for i := range info.orders {
		if info.orders[i] != q.Orders[i] {
			return model.BadRequestf(msg, "orders do not match")
		}
	}
	if !info.ancestor.Equal(q.Ancestor) {
		return model.BadRequestf(msg, "ancestor does not match")
	}
	if info.kind != q.Kind {
		return model.BadRequestf(msg, "kind does not match")
	}
	if info.namespace != q.Namespace {
		return model.BadRequestf(msg, "namespace does not match")
	}
	if info.appID != q.AppID {
		return model.BadRequestf(msg, "app does not match")
	}
	return nil
}

// minimalEntity keeps what decides the position of e in the results of q:
// the key and the visible values of the ordered properties.
func minimalEntity(e *model.Entity, q *model.Query) *model.Entity {
	m := model.NewEntity(e.Key.Clone())
	for _, o := range q.Orders {
		if o.Property == model.KeyProperty {
			continue
		}
		if _, ok := m.Property(o.Property); ok {
			continue
		}
		if values := query.IndexedValues(e, o.Property); len(values) > 0 {
			m.SetMulti(o.Property, values...)
		}
	}
	return m
}

// EncodeCompiledCursor builds a compiled cursor that resumes q right after
// last.
func EncodeCompiledCursor(q *model.Query, last *model.Entity) *model.CompiledCursor {
	b := appendQueryInfo(nil, minimalQueryInfo(q))
	b = append(b, separator...)
	b = model.AppendEntity(b, minimalEntity(last, q))
	return &model.CompiledCursor{Position: b, Inclusive: false}
}

// DecodeCompiledCursor checks that cc was compiled for q and returns the
// entity it points at together with its inclusive flag.
func DecodeCompiledCursor(q *model.Query, cc *model.CompiledCursor) (*model.Entity, bool, error) {
	rest, info, err := decodeQueryInfo(cc.Position)
	if err != nil {
		return nil, false, model.BadRequestf("invalid compiled cursor: %v", err)
	}
	if err := info.validate(q); err != nil {
		return nil, false, err
	}
	if !bytes.HasPrefix(rest, separator) {
		return nil, false, model.BadRequestf("invalid compiled cursor: missing separator")
	}
	rest, e, err := model.DecodeEntity(rest[len(separator):])
	if err != nil {
		return nil, false, model.BadRequestf("invalid compiled cursor: %v", err)
	}
	if len(rest) != 0 {
		return nil, false, model.BadRequestf("invalid compiled cursor: %d trailing bytes", len(rest))
	}
	return e, cc.Inclusive, nil
}

// QueryFingerprint identifies q by everything but its limit and offset, so
// reruns of one query with other page bounds share a fingerprint.
func QueryFingerprint(q *model.Query) []byte {
	b := appendQueryInfo(nil, minimalQueryInfo(q))
	b = codec.EncodeUvarint(b, uint64(q.Count))
	b = append(b, boolByte(q.KeysOnly), boolByte(q.Compile))
	for _, cc := range []*model.CompiledCursor{q.StartCursor, q.EndCursor} {
		if cc == nil {
			b = append(b, 0)
			continue
		}
		b = append(b, 1, boolByte(cc.Inclusive))
		b = codec.EncodeBytes(b, cc.Position)
	}
	return b
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
