package model

import "fmt"

// IndexState is the lifecycle state of a composite index.
type IndexState int

const (
	IndexWriteOnly IndexState = iota + 1
	IndexReadWrite
	IndexDeleted
	IndexError
)

var indexStateNames = map[IndexState]string{
	IndexWriteOnly: "WRITE_ONLY",
	IndexReadWrite: "READ_WRITE",
	IndexDeleted:   "DELETED",
	IndexError:     "ERROR",
}

func (s IndexState) String() string {
	if name, ok := indexStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("IndexState(%d)", int(s))
}

// ParseIndexState is the inverse of IndexState.String.
func ParseIndexState(s string) (IndexState, bool) {
	for state, name := range indexStateNames {
		if name == s {
			return state, true
		}
	}
	return 0, false
}

var indexTransitions = map[IndexState][]IndexState{
	IndexWriteOnly: {IndexReadWrite, IndexDeleted, IndexError},
	IndexReadWrite: {IndexDeleted},
	IndexError:     {IndexDeleted},
	IndexDeleted:   {IndexError},
}

// CanTransition reports whether an index may move from s to next. Staying
// in the same state is always allowed.
func (s IndexState) CanTransition(next IndexState) bool {
	if s == next {
		return true
	}
	for _, allowed := range indexTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Direction is the sort direction of an order or index property.
type Direction int

const (
	Ascending Direction = iota + 1
	Descending
)

func (d Direction) String() string {
	if d == Descending {
		return "desc"
	}
	return "asc"
}

// IndexProperty is one (property, direction) column of a composite index.
type IndexProperty struct {
	Name      string
	Direction Direction
}

// CompositeIndex is a registered multi-property index definition.
type CompositeIndex struct {
	AppID      string
	ID         int64
	Kind       string
	Ancestor   bool
	Properties []IndexProperty
	State      IndexState
}

// SameDefinition reports whether two indexes describe the same shape,
// ignoring app, id and state.
func (ci *CompositeIndex) SameDefinition(o *CompositeIndex) bool {
	if ci.Kind != o.Kind || ci.Ancestor != o.Ancestor || len(ci.Properties) != len(o.Properties) {
		return false
	}
	for i := range ci.Properties {
		if ci.Properties[i] != o.Properties[i] {
			return false
		}
	}
	return true
}

func (ci *CompositeIndex) Clone() *CompositeIndex {
	c := *ci
	c.Properties = append([]IndexProperty(nil), ci.Properties...)
	return &c
}
