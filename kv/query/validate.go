package query

import "github.com/pingcap-incubator/tinyds/kv/model"

// MaxQueryComponents caps filters plus orders of one query.
const MaxQueryComponents = 100

// Validate rejects malformed queries. filters and orders are the normalized
// ones.
func Validate(q *model.Query, filters []model.Filter, orders []model.Order) error {
	if q.Limit < 0 || q.Offset < 0 || q.Count < 0 {
		return model.BadRequestf("query limit, offset and count must not be negative")
	}
	if len(filters)+len(orders) > MaxQueryComponents {
		return model.BadRequestf("query is too large. may not have more than %d filters + sort orders",
			MaxQueryComponents)
	}

	if q.Ancestor != nil {
		if err := q.Ancestor.Validate(false); err != nil {
			return err
		}
		if q.Ancestor.AppID != q.AppID {
			return model.BadRequestf("query app is %s but ancestor app is %s", q.AppID, q.Ancestor.AppID)
		}
		if q.Ancestor.Namespace != q.Namespace {
			return model.BadRequestf("query namespace is %q but ancestor namespace is %q",
				q.Namespace, q.Ancestor.Namespace)
		}
	}

	for _, f := range filters {
		switch {
		case f.Op == model.In:
			return model.BadRequestf("IN filters are not supported, split the query on %s", f.Property)
		case f.Op < model.LessThan || f.Op > model.In:
			return model.BadRequestf("unknown operator %s on %s", f.Op, f.Property)
		case len(f.Values) == 0:
			return model.BadRequestf("filter on %s has no value", f.Property)
		case len(f.Values) > 1:
			return model.BadRequestf("filter on %s has %d values, only IN takes more than one",
				f.Property, len(f.Values))
		}
		if q.Kind == "" && f.Property != model.KeyProperty {
			return model.BadRequestf("kind is required for non-__key__ filters")
		}
		if f.Property == model.KeyProperty {
			if err := validateKeyFilter(q, f); err != nil {
				return err
			}
		}
	}

	for _, o := range orders {
		if o.Direction != model.Ascending && o.Direction != model.Descending {
			return model.BadRequestf("unknown direction %d on %s", o.Direction, o.Property)
		}
		if q.Kind == "" && (o.Property != model.KeyProperty || o.Direction != model.Ascending) {
			return model.BadRequestf("kind is required for all orders except __key__ ascending")
		}
	}
	return nil
}

func validateKeyFilter(q *model.Query, f model.Filter) error {
	for _, v := range f.Values {
		if v.Type() != model.TypeKey {
			return model.BadRequestf("%s filter value must be a Key", model.KeyProperty)
		}
		k := v.Key()
		if k.AppID != q.AppID {
			return model.BadRequestf("%s filter app is %s but query app is %s", model.KeyProperty, k.AppID, q.AppID)
		}
		if k.Namespace != q.Namespace {
			return model.BadRequestf("%s filter namespace is %q but query namespace is %q",
				model.KeyProperty, k.Namespace, q.Namespace)
		}
	}
	return nil
}
