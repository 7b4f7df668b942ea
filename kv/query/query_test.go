package query

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testApp = "test~app"

func key(pairs ...interface{}) *model.Key {
	return model.NewKey(testApp, "", pairs...)
}

func intEntity(id int, x int64) *model.Entity {
	return model.NewEntity(key("Foo", id)).Set("x", model.Int64Value(x))
}

func ids(entities []*model.Entity) []int64 {
	out := make([]int64, 0, len(entities))
	for _, e := range entities {
		out = append(out, e.Key.Last().ID)
	}
	return out
}

func run(t *testing.T, entities []*model.Entity, q *model.Query) []*model.Entity {
	filters, orders := Normalize(q.Filters, q.Orders)
	require.Nil(t, Validate(q, filters, orders))
	results, err := Evaluate(entities, q, filters, orders)
	require.Nil(t, err)
	return results
}

func TestNormalize(t *testing.T) {
	one := model.Int64Value(1)
	filters := []model.Filter{
		{Property: "a", Op: model.In, Values: []model.Value{one}},
		model.NewFilter("a", model.Equal, one),
		model.NewFilter("b", model.GreaterThan, one),
		model.NewFilter("b", model.GreaterThan, one),
	}
	orders := []model.Order{
		{Property: "a", Direction: model.Ascending},
		{Property: "b", Direction: model.Descending},
		{Property: "b", Direction: model.Ascending},
		{Property: model.KeyProperty, Direction: model.Ascending},
		{Property: "c", Direction: model.Ascending},
	}
	nf, no := Normalize(filters, orders)
	assert.Equal(t, []model.Filter{
		model.NewFilter("a", model.Equal, one),
		model.NewFilter("b", model.GreaterThan, one),
	}, nf)
	assert.Equal(t, []model.Order{
		{Property: "b", Direction: model.Descending},
		{Property: model.KeyProperty, Direction: model.Ascending},
	}, no)
	// Input untouched.
	assert.Equal(t, model.In, filters[0].Op)

	nf, no = Normalize([]model.Filter{
		model.NewFilter(model.KeyProperty, model.Equal, model.KeyValue(key("Foo", 1))),
	}, orders)
	assert.Len(t, nf, 1)
	assert.Nil(t, no)

	// A multi-valued IN stays as it is.
	in := model.Filter{Property: "a", Op: model.In, Values: []model.Value{one, model.Int64Value(2)}}
	nf, _ = Normalize([]model.Filter{in}, nil)
	assert.Equal(t, model.In, nf[0].Op)
}

func TestValidate(t *testing.T) {
	one := model.Int64Value(1)
	cases := []struct {
		q      *model.Query
		reason string
	}{
		{&model.Query{AppID: testApp, Kind: "Foo", Filters: []model.Filter{
			{Property: "a", Op: model.In, Values: []model.Value{one, model.Int64Value(2)}}}}, "IN filters"},
		{&model.Query{AppID: testApp, Kind: "Foo", Filters: []model.Filter{
			{Property: "a", Op: model.Equal}}}, "has no value"},
		{&model.Query{AppID: testApp, Kind: "Foo", Ancestor: model.NewKey("other", "", "Foo", 1)}, "ancestor app"},
		{&model.Query{AppID: testApp, Kind: "Foo", Ancestor: model.NewKey(testApp, "ns", "Foo", 1)}, "ancestor namespace"},
		{&model.Query{AppID: testApp, Filters: []model.Filter{model.NewFilter("a", model.Equal, one)}},
			"kind is required for non-__key__ filters"},
		{&model.Query{AppID: testApp, Orders: []model.Order{{Property: model.KeyProperty, Direction: model.Descending}}},
			"kind is required for all orders"},
		{&model.Query{AppID: testApp, Kind: "Foo", Filters: []model.Filter{
			model.NewFilter(model.KeyProperty, model.GreaterThan, one)}}, "must be a Key"},
		{&model.Query{AppID: testApp, Kind: "Foo", Filters: []model.Filter{
			model.NewFilter(model.KeyProperty, model.GreaterThan, model.KeyValue(model.NewKey("other", "", "Foo", 1)))}},
			"filter app"},
		{&model.Query{AppID: testApp, Kind: "Foo", Limit: -1}, "must not be negative"},
	}
	for _, c := range cases {
		filters, orders := Normalize(c.q.Filters, c.q.Orders)
		err := Validate(c.q, filters, orders)
		if assert.NotNil(t, err, c.reason) {
			assert.True(t, model.IsBadRequest(err))
			assert.Contains(t, err.Error(), c.reason)
		}
	}

	big := &model.Query{AppID: testApp, Kind: "Foo"}
	for i := 0; i <= MaxQueryComponents; i++ {
		big.Filters = append(big.Filters, model.NewFilter(fmt.Sprintf("p%d", i), model.Equal, one))
	}
	assert.True(t, model.IsBadRequest(Validate(big, big.Filters, nil)))

	ok := &model.Query{AppID: testApp, Filters: []model.Filter{
		model.NewFilter(model.KeyProperty, model.GreaterThan, model.KeyValue(key("Foo", 1)))},
		Orders: []model.Order{{Property: model.KeyProperty, Direction: model.Ascending}}}
	assert.Nil(t, Validate(ok, ok.Filters, ok.Orders))
}

func TestCompositeIndexForQuery(t *testing.T) {
	one := model.Int64Value(1)
	q := &model.Query{AppID: testApp, Kind: "Foo"}

	// Built-in indexes.
	for _, c := range []struct {
		filters []model.Filter
		orders  []model.Order
	}{
		{nil, nil},
		{[]model.Filter{model.NewFilter("a", model.Equal, one), model.NewFilter("b", model.Equal, one)}, nil},
		{[]model.Filter{model.NewFilter("x", model.GreaterThan, one)}, []model.Order{{Property: "x", Direction: model.Descending}}},
		{nil, []model.Order{{Property: "x", Direction: model.Descending}}},
		{nil, []model.Order{{Property: model.KeyProperty, Direction: model.Ascending}}},
	} {
		req := CompositeIndexForQuery(q, c.filters, c.orders)
		assert.False(t, req.Required, "%v %v", c.filters, c.orders)
	}

	req := CompositeIndexForQuery(q,
		[]model.Filter{model.NewFilter("b", model.Equal, one), model.NewFilter("a", model.Equal, one),
			model.NewFilter("c", model.LessThan, one)},
		[]model.Order{{Property: "d", Direction: model.Descending},
			{Property: model.KeyProperty, Direction: model.Ascending}})
	assert.True(t, req.Required)
	assert.Equal(t, 2, req.NumEqFilters)
	assert.Equal(t, []model.IndexProperty{
		{Name: "a", Direction: model.Ascending},
		{Name: "b", Direction: model.Ascending},
		{Name: "c", Direction: model.Ascending},
		{Name: "d", Direction: model.Descending},
	}, req.Index.Properties)

	// An ancestor turns a single sort into a composite.
	anc := &model.Query{AppID: testApp, Kind: "Foo", Ancestor: key("Parent", 1)}
	req = CompositeIndexForQuery(anc, nil, []model.Order{{Property: "x", Direction: model.Ascending}})
	assert.True(t, req.Required)
	assert.True(t, req.Index.Ancestor)
	req = CompositeIndexForQuery(anc, []model.Filter{model.NewFilter("a", model.Equal, one)}, nil)
	assert.False(t, req.Required)

	// Kindless queries never need one.
	req = CompositeIndexForQuery(&model.Query{AppID: testApp}, nil,
		[]model.Order{{Property: model.KeyProperty, Direction: model.Descending}})
	assert.False(t, req.Required)
}

func TestCheckIndexRequirement(t *testing.T) {
	one := model.Int64Value(1)
	q := &model.Query{AppID: testApp, Kind: "Foo"}
	filters := []model.Filter{
		model.NewFilter("a", model.Equal, one),
		model.NewFilter("b", model.Equal, one),
	}
	orders := []model.Order{{Property: "c", Direction: model.Ascending}}

	err := CheckIndexRequirement(q, filters, orders, nil)
	require.NotNil(t, err)
	assert.True(t, model.IsNeedIndex(err))
	assert.Contains(t, err.Error(), "none are defined")
	assert.Contains(t, err.Error(), "- kind: Foo")
	assert.Contains(t, err.Error(), "  - name: c")

	other := &model.CompositeIndex{Kind: "Foo", Properties: []model.IndexProperty{
		{Name: "z", Direction: model.Ascending}}}
	err = CheckIndexRequirement(q, filters, orders, []*model.CompositeIndex{other})
	require.NotNil(t, err)
	assert.Contains(t, err.Error(), "is not defined")

	exact := &model.CompositeIndex{Kind: "Foo", State: model.IndexWriteOnly, Properties: []model.IndexProperty{
		{Name: "a", Direction: model.Ascending},
		{Name: "b", Direction: model.Ascending},
		{Name: "c", Direction: model.Ascending},
	}}
	assert.Nil(t, CheckIndexRequirement(q, filters, orders, []*model.CompositeIndex{other, exact}))

	// The equality prefix may come in any order.
	swapped := exact.Clone()
	swapped.Properties[0], swapped.Properties[1] = swapped.Properties[1], swapped.Properties[0]
	assert.Nil(t, CheckIndexRequirement(q, filters, orders, []*model.CompositeIndex{swapped}))

	// But the rest must match exactly.
	wrongRest := exact.Clone()
	wrongRest.Properties[2].Direction = model.Descending
	assert.True(t, model.IsNeedIndex(CheckIndexRequirement(q, filters, orders, []*model.CompositeIndex{wrongRest})))

	withAncestor := exact.Clone()
	withAncestor.Ancestor = true
	assert.True(t, model.IsNeedIndex(CheckIndexRequirement(q, filters, orders, []*model.CompositeIndex{withAncestor})))
}

func TestEvaluateInequalityDescending(t *testing.T) {
	entities := []*model.Entity{intEntity(1, 1), intEntity(2, 2), intEntity(3, 3)}
	q := &model.Query{
		AppID:   testApp,
		Kind:    "Foo",
		Filters: []model.Filter{model.NewFilter("x", model.GreaterThan, model.Int64Value(1))},
		Orders:  []model.Order{{Property: "x", Direction: model.Descending}},
	}
	results := run(t, entities, q)
	if assert.Len(t, results, 2) {
		assert.Equal(t, int64(3), results[0].Values("x")[0].Int())
		assert.Equal(t, int64(2), results[1].Values("x")[0].Int())
	}
}

func TestEvaluateNotIndexedIsExcluded(t *testing.T) {
	absent := model.NewEntity(key("Foo", 1))
	unindexed := intEntity(2, 5).SetUnindexed("x", true)
	raw := model.NewEntity(key("Foo", 3)).Set("x", model.TextValue("long text"))
	visible := intEntity(4, 5)

	entities := []*model.Entity{absent, unindexed, raw, visible}
	q := &model.Query{AppID: testApp, Kind: "Foo",
		Filters: []model.Filter{model.NewFilter("x", model.GreaterThanOrEqual, model.NullValue())}}
	assert.Equal(t, []int64{4}, ids(run(t, entities, q)))

	q = &model.Query{AppID: testApp, Kind: "Foo",
		Orders: []model.Order{{Property: "x", Direction: model.Ascending}}}
	assert.Equal(t, []int64{4}, ids(run(t, entities, q)))

	// Without filters or orders nothing is dropped and keys decide.
	q = &model.Query{AppID: testApp, Kind: "Foo"}
	assert.Equal(t, []int64{1, 2, 3, 4}, ids(run(t, []*model.Entity{visible, raw, unindexed, absent}, q)))
}

func TestEvaluateMixedTypes(t *testing.T) {
	entities := []*model.Entity{
		intEntity(1, 7),
		model.NewEntity(key("Foo", 2)).Set("x", model.StringValue("7")),
		model.NewEntity(key("Foo", 3)).Set("x", model.DoubleValue(7)),
		model.NewEntity(key("Foo", 4)).Set("x", model.BoolValue(true)),
		model.NewEntity(key("Foo", 5)).Set("x", model.NullValue()),
	}
	q := &model.Query{AppID: testApp, Kind: "Foo",
		Filters: []model.Filter{model.NewFilter("x", model.Equal, model.Int64Value(7))}}
	assert.Equal(t, []int64{1}, ids(run(t, entities, q)))

	// Int64 has rank 1: bool, string and double rank above it, null below.
	q = &model.Query{AppID: testApp, Kind: "Foo",
		Filters: []model.Filter{model.NewFilter("x", model.GreaterThan, model.Int64Value(100))},
		Orders:  []model.Order{{Property: "x", Direction: model.Ascending}}}
	assert.Equal(t, []int64{4, 2, 3}, ids(run(t, entities, q)))

	q = &model.Query{AppID: testApp, Kind: "Foo",
		Orders: []model.Order{{Property: "x", Direction: model.Descending}}}
	assert.Equal(t, []int64{3, 2, 4, 1, 5}, ids(run(t, entities, q)))
}

func TestEvaluateMultiValued(t *testing.T) {
	a := model.NewEntity(key("Foo", 1)).SetMulti("tags",
		model.StringValue("b"), model.StringValue("x"))
	b := model.NewEntity(key("Foo", 2)).SetMulti("tags",
		model.StringValue("a"), model.StringValue("y"))
	empty := model.NewEntity(key("Foo", 3)).SetMulti("tags")
	entities := []*model.Entity{a, b, empty}

	q := &model.Query{AppID: testApp, Kind: "Foo",
		Filters: []model.Filter{model.NewFilter("tags", model.Equal, model.StringValue("x"))}}
	assert.Equal(t, []int64{1}, ids(run(t, entities, q)))

	q = &model.Query{AppID: testApp, Kind: "Foo",
		Orders: []model.Order{{Property: "tags", Direction: model.Ascending}}}
	assert.Equal(t, []int64{2, 1}, ids(run(t, entities, q)))

	q = &model.Query{AppID: testApp, Kind: "Foo",
		Orders: []model.Order{{Property: "tags", Direction: model.Descending}}}
	assert.Equal(t, []int64{2, 1}, ids(run(t, entities, q)))

	q = &model.Query{AppID: testApp, Kind: "Foo",
		Filters: []model.Filter{model.NewFilter("tags", model.GreaterThan, model.StringValue("c"))},
		Orders:  []model.Order{{Property: "tags", Direction: model.Descending}}}
	assert.Equal(t, []int64{2, 1}, ids(run(t, entities, q)))
}

func TestEvaluateAncestorAndKey(t *testing.T) {
	parent := model.NewEntity(key("Parent", 1))
	child1 := model.NewEntity(key("Parent", 1, "Foo", 1))
	child2 := model.NewEntity(key("Parent", 1, "Foo", "named"))
	stranger := model.NewEntity(key("Parent", 2, "Foo", 1))
	entities := []*model.Entity{stranger, child2, child1, parent}

	q := &model.Query{AppID: testApp, Ancestor: key("Parent", 1)}
	results := run(t, entities, q)
	if assert.Len(t, results, 3) {
		assert.True(t, results[0].Key.Equal(parent.Key))
		assert.True(t, results[1].Key.Equal(child1.Key))
		assert.True(t, results[2].Key.Equal(child2.Key))
	}

	q = &model.Query{AppID: testApp, Kind: "Foo",
		Filters: []model.Filter{model.NewFilter(model.KeyProperty, model.GreaterThan, model.KeyValue(child1.Key))},
		Orders:  []model.Order{{Property: model.KeyProperty, Direction: model.Descending}}}
	results = run(t, entities, q)
	if assert.Len(t, results, 2) {
		assert.True(t, results[0].Key.Equal(stranger.Key))
		assert.True(t, results[1].Key.Equal(child2.Key))
	}
}

func TestEvaluateRejectsIn(t *testing.T) {
	f := model.Filter{Property: "x", Op: model.In, Values: []model.Value{model.Int64Value(1), model.Int64Value(2)}}
	_, err := Evaluate(nil, &model.Query{AppID: testApp, Kind: "Foo"}, []model.Filter{f}, nil)
	assert.True(t, model.IsBadRequest(err))
}

func randomValue(r *rand.Rand) model.Value {
	switch r.Intn(6) {
	case 0:
		return model.StringValue(string([]byte{byte('a' + r.Intn(5))}))
	case 1:
		return model.DoubleValue(float64(r.Intn(10)) / 2)
	case 2:
		return model.TextValue("raw")
	}
	return model.Int64Value(int64(r.Intn(10)))
}

func randomEntity(r *rand.Rand, id int) *model.Entity {
	e := model.NewEntity(key("Foo", id))
	for _, name := range []string{"a", "b"} {
		switch r.Intn(5) {
		case 0:
			// absent
		case 1:
			e.SetMulti(name, randomValue(r), randomValue(r), randomValue(r))
		default:
			e.Set(name, randomValue(r))
		}
		if r.Intn(8) == 0 {
			e.SetUnindexed(name, true)
		}
	}
	return e
}

func randomFilter(r *rand.Rand) model.Filter {
	ops := []model.Operator{model.LessThan, model.LessThanOrEqual, model.GreaterThan,
		model.GreaterThanOrEqual, model.Equal}
	name := []string{"a", "b"}[r.Intn(2)]
	return model.NewFilter(name, ops[r.Intn(len(ops))], randomValue(r))
}

// satisfies is a direct restatement of the filter semantics.
func satisfies(e *model.Entity, f model.Filter) bool {
	if e.IsUnindexed(f.Property) {
		return false
	}
	for _, v := range e.Values(f.Property) {
		if v.Type() == model.TypeText {
			continue
		}
		fv := f.Values[0]
		if v.Type().Rank() != fv.Type().Rank() {
			if f.Op == model.Equal {
				continue
			}
		}
		c := model.CompareValues(v, fv)
		switch f.Op {
		case model.LessThan:
			if c < 0 {
				return true
			}
		case model.LessThanOrEqual:
			if c <= 0 {
				return true
			}
		case model.GreaterThan:
			if c > 0 {
				return true
			}
		case model.GreaterThanOrEqual:
			if c >= 0 {
				return true
			}
		case model.Equal:
			if c == 0 {
				return true
			}
		}
	}
	return false
}

func TestEvaluateRandom(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for round := 0; round < 200; round++ {
		var entities []*model.Entity
		for i := 1; i <= 30; i++ {
			entities = append(entities, randomEntity(r, i))
		}
		q := &model.Query{AppID: testApp, Kind: "Foo"}
		for i := r.Intn(3); i > 0; i-- {
			q.Filters = append(q.Filters, randomFilter(r))
		}
		for i := r.Intn(3); i > 0; i-- {
			dir := model.Ascending
			if r.Intn(2) == 0 {
				dir = model.Descending
			}
			q.Orders = append(q.Orders, model.Order{Property: []string{"a", "b"}[r.Intn(2)], Direction: dir})
		}
		filters, orders := Normalize(q.Filters, q.Orders)
		results, err := Evaluate(entities, q, filters, orders)
		require.Nil(t, err)

		inResults := make(map[int64]bool)
		for _, e := range results {
			inResults[e.Key.Last().ID] = true
			for _, f := range q.Filters {
				assert.True(t, satisfies(e, f), "round %d: %v fails %v", round, e.Key, f)
			}
		}
		// Everything left out fails a filter or lacks a sorted property.
		for _, e := range entities {
			if inResults[e.Key.Last().ID] {
				continue
			}
			excluded := false
			for _, f := range q.Filters {
				if !satisfies(e, f) {
					excluded = true
				}
			}
			for _, o := range orders {
				if len(IndexedValues(e, o.Property)) == 0 {
					excluded = true
				}
			}
			assert.True(t, excluded, "round %d: %v missing", round, e.Key)
		}
		compare := EntityComparator(orders)
		for i := 1; i < len(results); i++ {
			assert.True(t, compare(results[i-1], results[i]) < 0, "round %d: out of order at %d", round, i)
			if len(orders) > 0 {
				o := orders[0]
				c := model.CompareValues(sortValue(results[i-1], o), sortValue(results[i], o))
				if o.Direction == model.Descending {
					c = -c
				}
				assert.True(t, c <= 0)
			}
		}
	}
}
