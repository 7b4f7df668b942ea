package model

import "sort"

// Property is one named property of an entity. A multi-valued property may
// hold any number of values, including none.
type Property struct {
	Name     string
	Values   []Value
	Multiple bool
}

// Entity is a key plus an ordered set of properties.
type Entity struct {
	Key *Key

	props     map[string]*Property
	order     []string
	unindexed map[string]struct{}
}

func NewEntity(key *Key) *Entity {
	return &Entity{Key: key}
}

// EntityGroup is the root path element of the entity's key.
func (e *Entity) EntityGroup() PathElement {
	return e.Key.Root()
}

func (e *Entity) put(p *Property) {
	if e.props == nil {
		e.props = make(map[string]*Property)
	}
	if _, ok := e.props[p.Name]; !ok {
		e.order = append(e.order, p.Name)
	}
	e.props[p.Name] = p
}

// Set stores a single-valued property.
func (e *Entity) Set(name string, v Value) *Entity {
	e.put(&Property{Name: name, Values: []Value{v}})
	return e
}

// SetMulti stores a multi-valued property.
func (e *Entity) SetMulti(name string, values ...Value) *Entity {
	e.put(&Property{Name: name, Values: append([]Value(nil), values...), Multiple: true})
	return e
}

// Remove deletes a property.
func (e *Entity) Remove(name string) {
	if _, ok := e.props[name]; !ok {
		return
	}
	delete(e.props, name)
	for i, n := range e.order {
		if n == name {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

// Property returns the named property.
func (e *Entity) Property(name string) (*Property, bool) {
	p, ok := e.props[name]
	return p, ok
}

// Values returns the values of the named property, nil if it is absent.
func (e *Entity) Values(name string) []Value {
	if p, ok := e.props[name]; ok {
		return p.Values
	}
	return nil
}

// Properties returns the properties in insertion order.
func (e *Entity) Properties() []*Property {
	props := make([]*Property, 0, len(e.order))
	for _, name := range e.order {
		props = append(props, e.props[name])
	}
	return props
}

// SetUnindexed marks or unmarks a property as excluded from indexes.
func (e *Entity) SetUnindexed(name string, unindexed bool) *Entity {
	if !unindexed {
		delete(e.unindexed, name)
		return e
	}
	if e.unindexed == nil {
		e.unindexed = make(map[string]struct{})
	}
	e.unindexed[name] = struct{}{}
	return e
}

func (e *Entity) IsUnindexed(name string) bool {
	_, ok := e.unindexed[name]
	return ok
}

// UnindexedNames returns the unindexed property names in sorted order.
func (e *Entity) UnindexedNames() []string {
	names := make([]string, 0, len(e.unindexed))
	for name := range e.unindexed {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy of the entity.
func (e *Entity) Clone() *Entity {
	c := NewEntity(e.Key.Clone())
	for _, p := range e.Properties() {
		c.put(&Property{Name: p.Name, Values: append([]Value(nil), p.Values...), Multiple: p.Multiple})
	}
	for name := range e.unindexed {
		c.SetUnindexed(name, true)
	}
	return c
}

// KeyOnly returns an entity holding a copy of the key and nothing else.
func (e *Entity) KeyOnly() *Entity {
	return NewEntity(e.Key.Clone())
}
