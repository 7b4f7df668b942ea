package query

import (
	"sort"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap/errors"
)

// IndexRequirement describes the composite index a query would be served
// from.
type IndexRequirement struct {
	// Required is false when built-in indexes serve the query.
	Required bool
	Index    *model.CompositeIndex
	// NumEqFilters is the length of the equality prefix of Index.Properties.
	// The order of the prefix does not matter when matching indexes.
	NumEqFilters int
}

// CompositeIndexForQuery computes the index shape of a query from its
// normalized filters and orders.
//
// The shape is the equality-filtered properties sorted by name, then the
// inequality-filtered properties that no order covers, then the orders. A
// trailing ascending __key__ order is implied by every index and left out.
func CompositeIndexForQuery(q *model.Query, filters []model.Filter, orders []model.Order) *IndexRequirement {
	var (
		eqProps   []string
		ineqProps []string
		seenEq    = make(map[string]bool)
		seenIneq  = make(map[string]bool)
	)
	for _, f := range filters {
		switch {
		case f.Op == model.Equal:
			if !seenEq[f.Property] {
				seenEq[f.Property] = true
				eqProps = append(eqProps, f.Property)
			}
		case f.Op.IsInequality():
			if !seenIneq[f.Property] {
				seenIneq[f.Property] = true
				ineqProps = append(ineqProps, f.Property)
			}
		}
	}
	sort.Strings(eqProps)

	ordered := make(map[string]bool, len(orders))
	for _, o := range orders {
		ordered[o.Property] = true
	}
	var rest []model.IndexProperty
	for _, p := range ineqProps {
		if !ordered[p] && !seenEq[p] {
			rest = append(rest, model.IndexProperty{Name: p, Direction: model.Ascending})
		}
	}
	for _, o := range orders {
		rest = append(rest, model.IndexProperty{Name: o.Property, Direction: o.Direction})
	}
	if n := len(rest); n > 0 && rest[n-1].Name == model.KeyProperty && rest[n-1].Direction == model.Ascending {
		rest = rest[:n-1]
	}

	props := make([]model.IndexProperty, 0, len(eqProps)+len(rest))
	for _, p := range eqProps {
		props = append(props, model.IndexProperty{Name: p, Direction: model.Ascending})
	}
	props = append(props, rest...)

	req := &IndexRequirement{
		Index: &model.CompositeIndex{
			AppID:      q.AppID,
			Kind:       q.Kind,
			Ancestor:   q.Ancestor != nil,
			Properties: props,
		},
		NumEqFilters: len(eqProps),
	}
	req.Required = needsComposite(q, eqProps, rest, props)
	return req
}

func needsComposite(q *model.Query, eqProps []string, rest, props []model.IndexProperty) bool {
	switch {
	case q.Kind == "":
		// Kindless queries only touch __key__.
		return false
	case len(rest) == 0:
		// Equality filters alone are answered by merging the built-in
		// single property indexes, with or without an ancestor.
		return false
	case onlyKey(props):
		return false
	case q.Ancestor == nil && len(props) <= 1:
		// Every property has built-in ascending and descending indexes.
		return false
	}
	return true
}

func onlyKey(props []model.IndexProperty) bool {
	for _, p := range props {
		if p.Name != model.KeyProperty {
			return false
		}
	}
	return true
}

// Matches reports whether a registered index can serve the requirement:
// either the same definition, or, with at least two equality filters, the
// same kind and ancestor flag, the same set of equality properties and the
// same remaining properties in order.
func (r *IndexRequirement) Matches(index *model.CompositeIndex) bool {
	if r.Index.SameDefinition(index) {
		return true
	}
	n := r.NumEqFilters
	if n <= 1 || index.Kind != r.Index.Kind || index.Ancestor != r.Index.Ancestor ||
		len(index.Properties) != len(r.Index.Properties) {
		return false
	}
	want := make(map[model.IndexProperty]int, n)
	for _, p := range r.Index.Properties[:n] {
		want[p]++
	}
	for _, p := range index.Properties[:n] {
		if want[p] == 0 {
			return false
		}
		want[p]--
	}
	for i := n; i < len(index.Properties); i++ {
		if index.Properties[i] != r.Index.Properties[i] {
			return false
		}
	}
	return true
}

// CheckIndexRequirement fails with model.ErrNeedIndex when the query needs a
// composite index and none of indexes serves it. Indexes count regardless of
// their state.
func CheckIndexRequirement(q *model.Query, filters []model.Filter, orders []model.Order,
	indexes []*model.CompositeIndex) error {
	req := CompositeIndexForQuery(q, filters, orders)
	if !req.Required {
		return nil
	}
	for _, index := range indexes {
		if req.Matches(index) {
			return nil
		}
	}
	return errors.WithStack(&model.ErrNeedIndex{Index: req.Index, NoneDefined: len(indexes) == 0})
}
