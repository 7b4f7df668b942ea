package datastore

import (
	"sort"

	"github.com/pingcap-incubator/tinyds/kv/model"
	"github.com/pingcap-incubator/tinyds/kv/storage"
	"github.com/pingcap/errors"
)

const (
	// KindKind lists the kinds of a namespace, with their property names
	// and representations.
	KindKind = "__kind__"
	// NamespaceKind lists the namespaces of an app.
	NamespaceKind = "__namespace__"

	// emptyNamespaceID names the default namespace in __namespace__
	// results.
	emptyNamespaceID = 1
)

// pseudoKind produces the entities of a schema query. __key__ filters and
// orders are applied afterwards like on any other kind.
type pseudoKind func(r storage.Reader, q *model.Query) ([]*model.Entity, error)

var pseudoKinds = map[string]pseudoKind{
	KindKind:      kindEntities,
	NamespaceKind: namespaceEntities,
}

func kindEntities(r storage.Reader, q *model.Query) ([]*model.Entity, error) {
	return schemaEntities(r, q.AppID, q.Namespace, kindRange{}, q.KeysOnly)
}

// kindRange bounds kind names inclusively. Empty bounds are open.
type kindRange struct {
	start, end string
}

func (kr kindRange) contains(kind string) bool {
	return (kr.start == "" || kind >= kr.start) && (kr.end == "" || kind <= kr.end)
}

// schemaEntities returns one __kind__ entity per kind of the namespace in kr.
func schemaEntities(r storage.Reader, app, namespace string, kr kindRange, keysOnly bool) ([]*model.Entity, error) {
	kinds, err := r.Kinds(app, namespace)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entities := make([]*model.Entity, 0, len(kinds))
	for _, kind := range kinds {
		if !kr.contains(kind) {
			continue
		}
		e := model.NewEntity(model.NewKey(app, namespace, KindKind, kind))
		if !keysOnly {
			if err := describeKind(r, app, namespace, kind, e); err != nil {
				return nil, err
			}
		}
		entities = append(entities, e)
	}
	return entities, nil
}

// describeKind sets the property and representation lists of a __kind__
// entity: one pair per distinct (property, representation), sorted.
func describeKind(r storage.Reader, app, namespace, kind string, e *model.Entity) error {
	props := make(map[string]map[string]struct{})
	it := r.Scan(app, namespace, kind)
	defer it.Close()
	for ; it.Valid(); it.Next() {
		entity, err := it.Entity()
		if err != nil {
			return err
		}
		for _, p := range entity.Properties() {
			reprs, ok := props[p.Name]
			if !ok {
				reprs = make(map[string]struct{})
				props[p.Name] = reprs
			}
			for _, v := range p.Values {
				reprs[v.Type().Representation()] = struct{}{}
			}
		}
	}
	if err := it.Err(); err != nil {
		return errors.Trace(err)
	}

	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, name)
	}
	sort.Strings(names)
	var properties, representations []model.Value
	for _, name := range names {
		reprs := make([]string, 0, len(props[name]))
		for repr := range props[name] {
			reprs = append(reprs, repr)
		}
		sort.Strings(reprs)
		for _, repr := range reprs {
			properties = append(properties, model.StringValue(name))
			representations = append(representations, model.StringValue(repr))
		}
	}
	if len(properties) > 0 {
		e.SetMulti("property", properties...)
		e.SetMulti("representation", representations...)
	}
	return nil
}

func namespaceEntities(r storage.Reader, q *model.Query) ([]*model.Entity, error) {
	namespaces, err := r.Namespaces(q.AppID)
	if err != nil {
		return nil, errors.Trace(err)
	}
	entities := make([]*model.Entity, 0, len(namespaces))
	for _, ns := range namespaces {
		var key *model.Key
		if ns == "" {
			key = model.NewKey(q.AppID, q.Namespace, NamespaceKind, emptyNamespaceID)
		} else {
			key = model.NewKey(q.AppID, q.Namespace, NamespaceKind, ns)
		}
		entities = append(entities, model.NewEntity(key))
	}
	return entities, nil
}

// validatePseudoQuery only admits __key__ filters and ascending __key__
// orders on schema queries.
func validatePseudoQuery(q *model.Query, filters []model.Filter, orders []model.Order) error {
	if q.Ancestor != nil {
		return model.BadRequestf("ancestor queries are not supported on %s", q.Kind)
	}
	for _, f := range filters {
		if f.Property != model.KeyProperty {
			return model.BadRequestf("only %s filters are supported on %s", model.KeyProperty, q.Kind)
		}
	}
	for _, o := range orders {
		if o.Property != model.KeyProperty || o.Direction != model.Ascending {
			return model.BadRequestf("only ascending %s orders are supported on %s", model.KeyProperty, q.Kind)
		}
	}
	return nil
}
