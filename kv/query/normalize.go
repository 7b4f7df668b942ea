package query

import "github.com/pingcap-incubator/tinyds/kv/model"

// Normalize canonicalizes the filters and orders of a query:
//
//  - an IN filter with a single value becomes an equality filter;
//  - duplicate filters are dropped;
//  - orders on equality-filtered properties and repeated orders are dropped,
//    they cannot change the result order;
//  - an equality filter on __key__ drops every order;
//  - orders after a __key__ order are dropped, the key never ties.
//
// The input slices are not modified.
func Normalize(filters []model.Filter, orders []model.Order) ([]model.Filter, []model.Order) {
	var (
		outFilters []model.Filter
		eqProps    = make(map[string]bool)
	)
	for _, f := range filters {
		if f.Op == model.In && len(f.Values) == 1 {
			f = model.Filter{Property: f.Property, Op: model.Equal, Values: f.Values}
		}
		if containsFilter(outFilters, f) {
			continue
		}
		outFilters = append(outFilters, f)
		if f.Op == model.Equal {
			eqProps[f.Property] = true
		}
	}
	if eqProps[model.KeyProperty] {
		return outFilters, nil
	}

	var (
		outOrders []model.Order
		seen      = make(map[string]bool)
	)
	for _, o := range orders {
		if eqProps[o.Property] || seen[o.Property] {
			continue
		}
		seen[o.Property] = true
		outOrders = append(outOrders, o)
		if o.Property == model.KeyProperty {
			break
		}
	}
	return outFilters, outOrders
}

func containsFilter(filters []model.Filter, f model.Filter) bool {
	for _, g := range filters {
		if g.Equal(f) {
			return true
		}
	}
	return false
}
