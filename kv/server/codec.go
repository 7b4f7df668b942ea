package server

import (
	"encoding/base64"
	"encoding/json"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap/errors"
)

// The JSON shapes of the HTTP API. Values carry an explicit type so that
// ints, ratings and timestamps, or strings and texts, survive the round
// trip.

type jsonPathElement struct {
	Kind string `json:"kind"`
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

type jsonKey struct {
	App       string            `json:"app,omitempty"`
	Namespace string            `json:"namespace,omitempty"`
	Path      []jsonPathElement `json:"path"`
}

type jsonValue struct {
	Type  string          `json:"type"`
	Value json.RawMessage `json:"value,omitempty"`
}

type jsonProperty struct {
	Name      string      `json:"name"`
	Values    []jsonValue `json:"values"`
	Multiple  bool        `json:"multiple,omitempty"`
	Unindexed bool        `json:"unindexed,omitempty"`
}

type jsonEntity struct {
	Key        *jsonKey       `json:"key"`
	Properties []jsonProperty `json:"properties,omitempty"`
}

type jsonUser struct {
	Email      string `json:"email"`
	AuthDomain string `json:"auth_domain,omitempty"`
}

type jsonGeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type jsonIM struct {
	Protocol string `json:"protocol"`
	Address  string `json:"address"`
}

func encodeKey(k *model.Key) *jsonKey {
	if k == nil {
		return nil
	}
	jk := &jsonKey{App: k.AppID, Namespace: k.Namespace, Path: make([]jsonPathElement, 0, len(k.Path))}
	for _, e := range k.Path {
		jk.Path = append(jk.Path, jsonPathElement{Kind: e.Kind, ID: e.ID, Name: e.Name})
	}
	return jk
}

// decodeKey fills in app when the key does not name one.
func decodeKey(jk *jsonKey, app string) (*model.Key, error) {
	if jk == nil {
		return nil, model.BadRequestf("key is required")
	}
	k := &model.Key{AppID: jk.App, Namespace: jk.Namespace}
	if k.AppID == "" {
		k.AppID = app
	}
	for _, e := range jk.Path {
		k.Path = append(k.Path, model.PathElement{Kind: e.Kind, ID: e.ID, Name: e.Name})
	}
	return k, nil
}

func decodeKeys(jks []*jsonKey, app string) ([]*model.Key, error) {
	keys := make([]*model.Key, 0, len(jks))
	for _, jk := range jks {
		k, err := decodeKey(jk, app)
		if err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, nil
}

func encodeKeys(keys []*model.Key) []*jsonKey {
	jks := make([]*jsonKey, 0, len(keys))
	for _, k := range keys {
		jks = append(jks, encodeKey(k))
	}
	return jks
}

func encodeValue(v model.Value) (jsonValue, error) {
	var payload interface{}
	switch v.Type() {
	case model.TypeNull:
		return jsonValue{Type: v.Type().String()}, nil
	case model.TypeBool:
		payload = v.Bool()
	case model.TypeInt64, model.TypeRating, model.TypeTimestamp:
		payload = v.Int()
	case model.TypeDouble:
		payload = v.Double()
	case model.TypeBlob, model.TypeByteString:
		payload = v.Bytes()
	case model.TypeUser:
		u := v.User()
		payload = jsonUser{Email: u.Email, AuthDomain: u.AuthDomain}
	case model.TypeKey:
		payload = encodeKey(v.Key())
	case model.TypeGeoPoint:
		p := v.GeoPoint()
		payload = jsonGeoPoint{Lat: p.Lat, Lon: p.Lon}
	case model.TypeIM:
		im := v.IM()
		payload = jsonIM{Protocol: im.Protocol, Address: im.Address}
	default:
		payload = v.Str()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return jsonValue{}, errors.Trace(err)
	}
	return jsonValue{Type: v.Type().String(), Value: raw}, nil
}

func decodeValue(jv jsonValue, app string) (model.Value, error) {
	typ, ok := model.ParseValueType(jv.Type)
	if !ok {
		return model.Value{}, model.BadRequestf("unknown value type %q", jv.Type)
	}
	if typ == model.TypeNull {
		return model.NullValue(), nil
	}
	if len(jv.Value) == 0 {
		return model.Value{}, model.BadRequestf("%s value is missing", jv.Type)
	}
	bad := func(err error) (model.Value, error) {
		return model.Value{}, model.BadRequestf("invalid %s value: %v", jv.Type, err)
	}

	switch typ {
	case model.TypeBool:
		var b bool
		if err := json.Unmarshal(jv.Value, &b); err != nil {
			return bad(err)
		}
		return model.BoolValue(b), nil
	case model.TypeInt64, model.TypeRating, model.TypeTimestamp:
		var i int64
		if err := json.Unmarshal(jv.Value, &i); err != nil {
			return bad(err)
		}
		switch typ {
		case model.TypeRating:
			return model.RatingValue(i), nil
		case model.TypeTimestamp:
			return model.TimestampMicros(i), nil
		}
		return model.Int64Value(i), nil
	case model.TypeDouble:
		var f float64
		if err := json.Unmarshal(jv.Value, &f); err != nil {
			return bad(err)
		}
		return model.DoubleValue(f), nil
	case model.TypeBlob, model.TypeByteString:
		var b []byte
		if err := json.Unmarshal(jv.Value, &b); err != nil {
			return bad(err)
		}
		if typ == model.TypeBlob {
			return model.BlobValue(b), nil
		}
		return model.ByteStringValue(b), nil
	case model.TypeUser:
		var u jsonUser
		if err := json.Unmarshal(jv.Value, &u); err != nil {
			return bad(err)
		}
		return model.UserValue(model.User{Email: u.Email, AuthDomain: u.AuthDomain}), nil
	case model.TypeKey:
		var jk jsonKey
		if err := json.Unmarshal(jv.Value, &jk); err != nil {
			return bad(err)
		}
		k, err := decodeKey(&jk, app)
		if err != nil {
			return model.Value{}, err
		}
		return model.KeyValue(k), nil
	case model.TypeGeoPoint:
		var p jsonGeoPoint
		if err := json.Unmarshal(jv.Value, &p); err != nil {
			return bad(err)
		}
		return model.GeoPointValue(model.GeoPoint{Lat: p.Lat, Lon: p.Lon}), nil
	case model.TypeIM:
		var im jsonIM
		if err := json.Unmarshal(jv.Value, &im); err != nil {
			return bad(err)
		}
		return model.IMValue(model.IM{Protocol: im.Protocol, Address: im.Address}), nil
	}

	var s string
	if err := json.Unmarshal(jv.Value, &s); err != nil {
		return bad(err)
	}
	switch typ {
	case model.TypeText:
		return model.TextValue(s), nil
	case model.TypeCategory:
		return model.CategoryValue(s), nil
	case model.TypePhoneNumber:
		return model.PhoneNumberValue(s), nil
	case model.TypePostalAddress:
		return model.PostalAddressValue(s), nil
	case model.TypeEmail:
		return model.EmailValue(s), nil
	case model.TypeLink:
		return model.LinkValue(s), nil
	}
	return model.StringValue(s), nil
}

func encodeEntity(e *model.Entity) (*jsonEntity, error) {
	if e == nil {
		return nil, nil
	}
	je := &jsonEntity{Key: encodeKey(e.Key)}
	for _, p := range e.Properties() {
		jp := jsonProperty{Name: p.Name, Multiple: p.Multiple, Unindexed: e.IsUnindexed(p.Name)}
		jp.Values = make([]jsonValue, 0, len(p.Values))
		for _, v := range p.Values {
			jv, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			jp.Values = append(jp.Values, jv)
		}
		je.Properties = append(je.Properties, jp)
	}
	return je, nil
}

func encodeEntities(entities []*model.Entity) ([]*jsonEntity, error) {
	jes := make([]*jsonEntity, 0, len(entities))
	for _, e := range entities {
		je, err := encodeEntity(e)
		if err != nil {
			return nil, err
		}
		jes = append(jes, je)
	}
	return jes, nil
}

func decodeEntity(je *jsonEntity, app string) (*model.Entity, error) {
	if je == nil {
		return nil, model.BadRequestf("entity is required")
	}
	key, err := decodeKey(je.Key, app)
	if err != nil {
		return nil, err
	}
	e := model.NewEntity(key)
	for _, jp := range je.Properties {
		values := make([]model.Value, 0, len(jp.Values))
		for _, jv := range jp.Values {
			v, err := decodeValue(jv, app)
			if err != nil {
				return nil, errors.Annotatef(err, "property %s", jp.Name)
			}
			values = append(values, v)
		}
		if jp.Multiple || len(values) != 1 {
			e.SetMulti(jp.Name, values...)
		} else {
			e.Set(jp.Name, values[0])
		}
		if jp.Unindexed {
			e.SetUnindexed(jp.Name, true)
		}
	}
	return e, nil
}

type jsonFilter struct {
	Property string      `json:"property"`
	Op       string      `json:"op"`
	Values   []jsonValue `json:"values"`
}

type jsonOrder struct {
	Property  string `json:"property"`
	Direction string `json:"direction,omitempty"`
}

type jsonQuery struct {
	Namespace   string       `json:"namespace,omitempty"`
	Kind        string       `json:"kind,omitempty"`
	Ancestor    *jsonKey     `json:"ancestor,omitempty"`
	Filters     []jsonFilter `json:"filters,omitempty"`
	Orders      []jsonOrder  `json:"orders,omitempty"`
	Limit       int          `json:"limit,omitempty"`
	Offset      int          `json:"offset,omitempty"`
	Count       int          `json:"count,omitempty"`
	KeysOnly    bool         `json:"keys_only,omitempty"`
	Compile     bool         `json:"compile,omitempty"`
	StartCursor string       `json:"start_cursor,omitempty"`
	EndCursor   string       `json:"end_cursor,omitempty"`
	Transaction uint64       `json:"transaction,omitempty"`
}

func parseDirection(s string) (model.Direction, error) {
	switch s {
	case "", "asc":
		return model.Ascending, nil
	case "desc":
		return model.Descending, nil
	}
	return 0, model.BadRequestf("unknown sort direction %q", s)
}

func directionName(d model.Direction) string {
	if d == model.Descending {
		return "desc"
	}
	return "asc"
}

// Compiled cursors travel as unpadded URL-safe base64 of their position.
func encodeCursor(cc *model.CompiledCursor) string {
	if cc == nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(cc.Position)
}

func decodeCursor(s string) (*model.CompiledCursor, error) {
	if s == "" {
		return nil, nil
	}
	position, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, model.BadRequestf("invalid cursor: %v", err)
	}
	return &model.CompiledCursor{Position: position}, nil
}

func decodeQuery(jq *jsonQuery, app string) (*model.Query, error) {
	q := &model.Query{
		AppID:     app,
		Namespace: jq.Namespace,
		Kind:      jq.Kind,
		Limit:     jq.Limit,
		Offset:    jq.Offset,
		Count:     jq.Count,
		KeysOnly:  jq.KeysOnly,
		Compile:   jq.Compile,
	}
	if jq.Ancestor != nil {
		ancestor, err := decodeKey(jq.Ancestor, app)
		if err != nil {
			return nil, err
		}
		q.Ancestor = ancestor
	}
	for _, jf := range jq.Filters {
		op, ok := model.ParseOperator(jf.Op)
		if !ok {
			return nil, model.BadRequestf("unknown filter operator %q", jf.Op)
		}
		f := model.Filter{Property: jf.Property, Op: op}
		for _, jv := range jf.Values {
			v, err := decodeValue(jv, app)
			if err != nil {
				return nil, err
			}
			f.Values = append(f.Values, v)
		}
		q.Filters = append(q.Filters, f)
	}
	for _, jo := range jq.Orders {
		dir, err := parseDirection(jo.Direction)
		if err != nil {
			return nil, err
		}
		q.Orders = append(q.Orders, model.Order{Property: jo.Property, Direction: dir})
	}
	var err error
	if q.StartCursor, err = decodeCursor(jq.StartCursor); err != nil {
		return nil, err
	}
	if q.EndCursor, err = decodeCursor(jq.EndCursor); err != nil {
		return nil, err
	}
	if jq.Transaction != 0 {
		q.Transaction = &model.TxHandle{AppID: app, Handle: jq.Transaction}
	}
	return q, nil
}

// encodeQuery is the inverse of decodeQuery. The app is implied by the
// route.
func encodeQuery(q *model.Query) (*jsonQuery, error) {
	jq := &jsonQuery{
		Namespace:   q.Namespace,
		Kind:        q.Kind,
		Limit:       q.Limit,
		Offset:      q.Offset,
		Count:       q.Count,
		KeysOnly:    q.KeysOnly,
		Compile:     q.Compile,
		StartCursor: encodeCursor(q.StartCursor),
		EndCursor:   encodeCursor(q.EndCursor),
		Ancestor:    encodeKey(q.Ancestor),
	}
	for _, f := range q.Filters {
		jf := jsonFilter{Property: f.Property, Op: f.Op.String()}
		for _, v := range f.Values {
			jv, err := encodeValue(v)
			if err != nil {
				return nil, err
			}
			jf.Values = append(jf.Values, jv)
		}
		jq.Filters = append(jq.Filters, jf)
	}
	for _, o := range q.Orders {
		jq.Orders = append(jq.Orders, jsonOrder{Property: o.Property, Direction: directionName(o.Direction)})
	}
	if q.Transaction != nil {
		jq.Transaction = q.Transaction.Handle
	}
	return jq, nil
}

type jsonQueryResult struct {
	Cursor         uint64        `json:"cursor"`
	Results        []*jsonEntity `json:"results"`
	SkippedResults int           `json:"skipped_results,omitempty"`
	MoreResults    bool          `json:"more_results"`
	KeysOnly       bool          `json:"keys_only,omitempty"`
	CompiledCursor string        `json:"compiled_cursor,omitempty"`
}

func encodeQueryResult(res *model.QueryResult) (*jsonQueryResult, error) {
	results, err := encodeEntities(res.Results)
	if err != nil {
		return nil, err
	}
	return &jsonQueryResult{
		Cursor:         res.Cursor.ID,
		Results:        results,
		SkippedResults: res.SkippedResults,
		MoreResults:    res.MoreResults,
		KeysOnly:       res.KeysOnly,
		CompiledCursor: encodeCursor(res.CompiledCursor),
	}, nil
}

type jsonIndexProperty struct {
	Name      string `json:"name"`
	Direction string `json:"direction,omitempty"`
}

type jsonIndex struct {
	ID         int64               `json:"id,omitempty"`
	Kind       string              `json:"kind"`
	Ancestor   bool                `json:"ancestor,omitempty"`
	Properties []jsonIndexProperty `json:"properties"`
	State      string              `json:"state,omitempty"`
}

func encodeIndex(index *model.CompositeIndex) *jsonIndex {
	ji := &jsonIndex{ID: index.ID, Kind: index.Kind, Ancestor: index.Ancestor, State: index.State.String()}
	for _, p := range index.Properties {
		ji.Properties = append(ji.Properties, jsonIndexProperty{Name: p.Name, Direction: directionName(p.Direction)})
	}
	return ji
}

func decodeIndex(ji *jsonIndex, app string) (*model.CompositeIndex, error) {
	if ji == nil {
		return nil, model.BadRequestf("index is required")
	}
	index := &model.CompositeIndex{AppID: app, ID: ji.ID, Kind: ji.Kind, Ancestor: ji.Ancestor}
	if ji.State != "" {
		state, ok := model.ParseIndexState(ji.State)
		if !ok {
			return nil, model.BadRequestf("unknown index state %q", ji.State)
		}
		index.State = state
	}
	for _, jp := range ji.Properties {
		dir, err := parseDirection(jp.Direction)
		if err != nil {
			return nil, err
		}
		index.Properties = append(index.Properties, model.IndexProperty{Name: jp.Name, Direction: dir})
	}
	return index, nil
}
