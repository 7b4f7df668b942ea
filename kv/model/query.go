package model

import "fmt"

// KeyProperty is the special property name addressing an entity's key in
// filters and orders.
const KeyProperty = "__key__"

// Operator is a filter comparison operator.
type Operator int

const (
	LessThan Operator = iota + 1
	LessThanOrEqual
	GreaterThan
	GreaterThanOrEqual
	Equal
	In
)

var operatorNames = map[Operator]string{
	LessThan:           "<",
	LessThanOrEqual:    "<=",
	GreaterThan:        ">",
	GreaterThanOrEqual: ">=",
	Equal:              "==",
	In:                 "IN",
}

func (op Operator) String() string {
	if name, ok := operatorNames[op]; ok {
		return name
	}
	return fmt.Sprintf("Operator(%d)", int(op))
}

// ParseOperator accepts the symbolic names returned by String, plus "=".
func ParseOperator(s string) (Operator, bool) {
	if s == "=" {
		return Equal, true
	}
	for op, name := range operatorNames {
		if name == s {
			return op, true
		}
	}
	return 0, false
}

// IsInequality reports whether op is one of <, <=, > and >=.
func (op Operator) IsInequality() bool {
	return op >= LessThan && op <= GreaterThanOrEqual
}

// Matches applies the operator to the result of comparing an entity value
// with a filter value.
func (op Operator) Matches(cmp int) bool {
	switch op {
	case LessThan:
		return cmp < 0
	case LessThanOrEqual:
		return cmp <= 0
	case GreaterThan:
		return cmp > 0
	case GreaterThanOrEqual:
		return cmp >= 0
	case Equal, In:
		return cmp == 0
	}
	return false
}

// Filter restricts a query to entities whose property satisfies the
// operator against any of Values.
type Filter struct {
	Property string
	Op       Operator
	Values   []Value
}

// NewFilter builds a single-valued filter.
func NewFilter(property string, op Operator, v Value) Filter {
	return Filter{Property: property, Op: op, Values: []Value{v}}
}

func (f Filter) Equal(o Filter) bool {
	if f.Property != o.Property || f.Op != o.Op || len(f.Values) != len(o.Values) {
		return false
	}
	for i := range f.Values {
		if !f.Values[i].Equal(o.Values[i]) {
			return false
		}
	}
	return true
}

func (f Filter) String() string {
	return fmt.Sprintf("%s %s %v", f.Property, f.Op, f.Values)
}

// Order sorts query results by one property.
type Order struct {
	Property  string
	Direction Direction
}

// Query is an ad-hoc datastore query.
type Query struct {
	AppID     string
	Namespace string
	// Kind is empty for kindless queries.
	Kind     string
	Ancestor *Key
	Filters  []Filter
	Orders   []Order

	// Limit caps the total number of results; 0 means unlimited.
	Limit int
	// Offset is the number of results skipped by the first page.
	Offset int
	// Count is the size of the first page; 0 falls back to Limit and then
	// to the default batch size.
	Count    int
	KeysOnly bool
	// Compile asks for a compiled cursor with every page.
	Compile     bool
	StartCursor *CompiledCursor
	EndCursor   *CompiledCursor
	Transaction *TxHandle
}

// CompiledCursor is a serialized resume position that survives the
// in-memory cursor table.
type CompiledCursor struct {
	Position  []byte
	Inclusive bool
}

// CursorHandle names a live cursor.
type CursorHandle struct {
	AppID string
	ID    uint64
}

// TxHandle names an open transaction.
type TxHandle struct {
	AppID  string
	Handle uint64
}

// QueryResult is one page of query results.
type QueryResult struct {
	Cursor         CursorHandle
	Results        []*Entity
	SkippedResults int
	MoreResults    bool
	KeysOnly       bool
	CompiledCursor *CompiledCursor
}
