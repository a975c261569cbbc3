package predicate

import (
	"fmt"
	"time"
)

// Row is an in-memory row: column name to value. Values are string, bool,
// time.Time or nil; absent columns read as nil.
type Row map[string]any

// Tables resolves a table name to its rows for Exists evaluation.
type Tables func(table string) []Row

// Eval interprets a predicate against one row. The Postgres adapter compiles
// trees to SQL instead; this interpreter backs in-memory stores and tests,
// and both must agree on semantics.
func Eval(n Node, row Row, tables Tables) (bool, error) {
	switch v := n.(type) {
	case Bool:
		return v.Value, nil
	case And:
		for _, child := range v.Nodes {
			ok, err := Eval(child, row, tables)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case Or:
		for _, child := range v.Nodes {
			ok, err := Eval(child, row, tables)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	case Not:
		ok, err := Eval(v.Node, row, tables)
		return !ok, err
	case Compare:
		return evalCompare(v, row)
	case InSet:
		value, _ := row[v.Column].(string)
		if value == "" {
			return false, nil
		}
		for _, candidate := range v.Values {
			if candidate == value {
				return true, nil
			}
		}
		return false, nil
	case Exists:
		if tables == nil {
			return false, fmt.Errorf("predicate: exists on %q without table resolver", v.Table)
		}
		for _, sub := range tables(v.Table) {
			if matchExists(v, row, sub, tables) {
				return true, nil
			}
		}
		return false, nil
	}
	return false, fmt.Errorf("predicate: unknown node %T", n)
}

func matchExists(v Exists, outer, sub Row, tables Tables) bool {
	for _, link := range v.Links {
		a, _ := sub[link.Column].(string)
		b, _ := outer[link.OuterColumn].(string)
		if a == "" || a != b {
			return false
		}
	}
	for _, cond := range v.Where {
		ok, err := Eval(cond, sub, tables)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

func evalCompare(c Compare, row Row) (bool, error) {
	value := row[c.Column]
	switch c.Op {
	case OpIsNull:
		return isNullValue(value), nil
	case OpNotNull:
		return !isNullValue(value), nil
	case OpEq, OpNe:
		eq := equalValues(value, c.Value)
		if c.Op == OpNe {
			return !eq, nil
		}
		return eq, nil
	case OpGt:
		lhs, lok := timeValue(value)
		rhs, rok := timeValue(c.Value)
		if !lok || !rok {
			return false, fmt.Errorf("predicate: %s > wants time operands", c.Column)
		}
		return lhs.After(rhs), nil
	}
	return false, fmt.Errorf("predicate: unknown op %d", c.Op)
}

func isNullValue(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case *time.Time:
		return t == nil
	}
	return false
}

func equalValues(a, b any) bool {
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	if ba, ok := a.(bool); ok {
		bb, ok := b.(bool)
		return ok && ba == bb
	}
	if ta, ok := timeValue(a); ok {
		tb, ok := timeValue(b)
		return ok && ta.Equal(tb)
	}
	return false
}

func timeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
	}
	return time.Time{}, false
}
