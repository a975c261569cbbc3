// Package predicate defines the boolean filter tree the authorization engine
// emits. The engine stays storage-agnostic: a storage adapter compiles the
// tree to its native query form (SQL for the Postgres adapter), and tests
// evaluate it directly against in-memory rows.
package predicate

import "time"

// Node is one vertex of a filter tree.
type Node interface {
	isNode()
}

// Bool is a constant predicate: always true or always false.
type Bool struct {
	Value bool
}

// And is satisfied when every child is satisfied. An empty And is true.
type And struct {
	Nodes []Node
}

// Or is satisfied when any child is satisfied. An empty Or is false.
type Or struct {
	Nodes []Node
}

// Not inverts its child.
type Not struct {
	Node Node
}

// Op is a comparison operator.
type Op int

const (
	OpEq Op = iota
	OpNe
	OpGt
	OpIsNull
	OpNotNull
)

// Compare tests one column of the current scope's row. Value is unused for
// OpIsNull/OpNotNull; supported value types are string, bool and time.Time.
type Compare struct {
	Column string
	Op     Op
	Value  any
}

// InSet tests set membership of a column. An empty set is always false.
type InSet struct {
	Column string
	Values []string
}

// Link correlates a subquery column with a column of the enclosing scope.
type Link struct {
	Column      string // column on the subquery table
	OuterColumn string // column on the enclosing table
}

// Exists is satisfied when at least one row of Table matches: all Links
// against the enclosing row plus the Where conditions, which are scoped to
// the subquery table.
type Exists struct {
	Table string
	Links []Link
	Where []Node
}

func (Bool) isNode()    {}
func (And) isNode()     {}
func (Or) isNode()      {}
func (Not) isNode()     {}
func (Compare) isNode() {}
func (InSet) isNode()   {}
func (Exists) isNode()  {}

// True and False are the constant predicates.
func True() Node  { return Bool{Value: true} }
func False() Node { return Bool{Value: false} }

// Eq builds an equality comparison.
func Eq(column string, value any) Node {
	return Compare{Column: column, Op: OpEq, Value: value}
}

// IsNull tests a column for NULL.
func IsNull(column string) Node {
	return Compare{Column: column, Op: OpIsNull}
}

// NotExpired is the standard liveness test for rows carrying an optional
// expires_at column: NULL or strictly in the future.
func NotExpired(column string, now time.Time) Node {
	return Or{Nodes: []Node{
		Compare{Column: column, Op: OpIsNull},
		Compare{Column: column, Op: OpGt, Value: now},
	}}
}

// AnyOf flattens clauses into a single Or, collapsing trivial cases.
func AnyOf(nodes ...Node) Node {
	kept := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if b, ok := n.(Bool); ok {
			if b.Value {
				return Bool{Value: true}
			}
			continue
		}
		kept = append(kept, n)
	}
	switch len(kept) {
	case 0:
		return Bool{Value: false}
	case 1:
		return kept[0]
	}
	return Or{Nodes: kept}
}

// AllOf flattens clauses into a single And, collapsing trivial cases.
func AllOf(nodes ...Node) Node {
	kept := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if b, ok := n.(Bool); ok {
			if !b.Value {
				return Bool{Value: false}
			}
			continue
		}
		kept = append(kept, n)
	}
	switch len(kept) {
	case 0:
		return Bool{Value: true}
	case 1:
		return kept[0]
	}
	return And{Nodes: kept}
}
