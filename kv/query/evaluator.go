package query

import (
	"sort"

	"github.com/pingcap-incubator/tinyds/kv/model"
)

// Comparator orders two entities, returning a negative number, zero or a
// positive number.
type Comparator func(a, b *model.Entity) int

// IndexedValues returns the values of a property that filters and orders
// can see. __key__ always resolves to the entity key. A property that is
// absent or marked unindexed has no visible values, and neither do raw
// (Text and Blob) values.
func IndexedValues(e *model.Entity, name string) []model.Value {
	if name == model.KeyProperty {
		return []model.Value{model.KeyValue(e.Key)}
	}
	if e.IsUnindexed(name) {
		return nil
	}
	values := e.Values(name)
	var visible []model.Value
	for _, v := range values {
		if !v.Type().Raw() {
			visible = append(visible, v)
		}
	}
	return visible
}

// MatchFilter reports whether any visible value of the filtered property
// satisfies the filter. Values of different ranks are ordered by rank for
// inequalities and are never equal.
func MatchFilter(e *model.Entity, f model.Filter) bool {
	for _, ev := range IndexedValues(e, f.Property) {
		for _, fv := range f.Values {
			if !model.SameRank(ev, fv) && (f.Op == model.Equal || f.Op == model.In) {
				continue
			}
			if f.Op.Matches(model.CompareValues(ev, fv)) {
				return true
			}
		}
	}
	return false
}

// sortValue is the representative of a property for one order: the
// smallest visible value when ascending, the largest when descending, and
// Null when nothing is visible.
func sortValue(e *model.Entity, o model.Order) model.Value {
	values := IndexedValues(e, o.Property)
	if len(values) == 0 {
		return model.NullValue()
	}
	if o.Direction == model.Descending {
		return model.MaxValue(values)
	}
	return model.MinValue(values)
}

// EntityComparator orders entities by orders and breaks ties by ascending
// key.
func EntityComparator(orders []model.Order) Comparator {
	return func(a, b *model.Entity) int {
		for _, o := range orders {
			var c int
			if o.Property == model.KeyProperty {
				c = a.Key.Compare(b.Key)
			} else {
				c = model.CompareValues(sortValue(a, o), sortValue(b, o))
			}
			if o.Direction == model.Descending {
				c = -c
			}
			if c != 0 {
				return c
			}
		}
		return a.Key.Compare(b.Key)
	}
}

// Evaluate filters and sorts entities in memory. filters and orders are
// the normalized ones.
//
// Entities outside the ancestor are dropped. An entity is silently dropped
// when a filtered or sorted property is absent, marked unindexed or holds
// only raw values: not indexed means excluded, exactly like a query served
// from an index. A multi-valued property matches a filter when any of its
// values does, and sorts by its smallest value ascending or its largest
// value descending. The input slice is not modified.
func Evaluate(entities []*model.Entity, q *model.Query, filters []model.Filter,
	orders []model.Order) ([]*model.Entity, error) {
	for _, f := range filters {
		if f.Op == model.In {
			return nil, model.BadRequestf("IN filters are not supported, split the query on %s", f.Property)
		}
	}

	results := make([]*model.Entity, 0, len(entities))
outer:
	for _, e := range entities {
		if q.Ancestor != nil && !q.Ancestor.IsAncestorOf(e.Key) {
			continue
		}
		for _, f := range filters {
			if !MatchFilter(e, f) {
				continue outer
			}
		}
		for _, o := range orders {
			if len(IndexedValues(e, o.Property)) == 0 {
				continue outer
			}
		}
		results = append(results, e)
	}

	compare := EntityComparator(orders)
	sort.SliceStable(results, func(i, j int) bool {
		return compare(results[i], results[j]) < 0
	})
	return results, nil
}
