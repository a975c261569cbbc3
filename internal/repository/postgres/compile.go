package postgres

import (
	"fmt"
	"strings"

	"github.com/splax/gatehouse/internal/predicate"
)

// Compile translates a predicate tree into a parameterized SQL boolean
// expression over the given table alias, with placeholders starting at
// $argOffset+1. Column and table names come from the static descriptor
// registry, never from request input.
//
// Each EXISTS subquery receives a unique generated alias, so filters for
// several resource types compose inside one statement without collision.
func Compile(node predicate.Node, alias string, argOffset int) (string, []any, error) {
	c := &compiler{offset: argOffset}
	clause, err := c.compile(node, alias)
	if err != nil {
		return "", nil, err
	}
	return clause, c.args, nil
}

type compiler struct {
	args     []any
	offset   int
	aliasSeq int
}

func (c *compiler) placeholder(value any) string {
	c.args = append(c.args, value)
	return fmt.Sprintf("$%d", c.offset+len(c.args))
}

func (c *compiler) nextAlias() string {
	c.aliasSeq++
	return fmt.Sprintf("r%d", c.aliasSeq)
}

func (c *compiler) compile(node predicate.Node, alias string) (string, error) {
	switch v := node.(type) {
	case predicate.Bool:
		if v.Value {
			return "TRUE", nil
		}
		return "FALSE", nil
	case predicate.And:
		return c.join(v.Nodes, alias, " AND ", "TRUE")
	case predicate.Or:
		return c.join(v.Nodes, alias, " OR ", "FALSE")
	case predicate.Not:
		// Negation must map SQL UNKNOWN to FALSE: NOT (col = $n) is UNKNOWN
		// for a NULL col and would drop NULL-owner rows from every listing.
		if cmp, ok := v.Node.(predicate.Compare); ok && cmp.Op == predicate.OpEq {
			return fmt.Sprintf("%s.%s IS DISTINCT FROM %s", alias, cmp.Column, c.placeholder(cmp.Value)), nil
		}
		inner, err := c.compile(v.Node, alias)
		if err != nil {
			return "", err
		}
		return "NOT COALESCE((" + inner + "), FALSE)", nil
	case predicate.Compare:
		return c.compare(v, alias)
	case predicate.InSet:
		if len(v.Values) == 0 {
			return "FALSE", nil
		}
		return fmt.Sprintf("%s.%s = ANY(%s)", alias, v.Column, c.placeholder(v.Values)), nil
	case predicate.Exists:
		return c.exists(v, alias)
	}
	return "", fmt.Errorf("postgres: cannot compile predicate node %T", node)
}

func (c *compiler) join(nodes []predicate.Node, alias, sep, empty string) (string, error) {
	if len(nodes) == 0 {
		return empty, nil
	}
	parts := make([]string, 0, len(nodes))
	for _, n := range nodes {
		clause, err := c.compile(n, alias)
		if err != nil {
			return "", err
		}
		parts = append(parts, clause)
	}
	if len(parts) == 1 {
		return parts[0], nil
	}
	return "(" + strings.Join(parts, sep) + ")", nil
}

func (c *compiler) compare(v predicate.Compare, alias string) (string, error) {
	column := alias + "." + v.Column
	switch v.Op {
	case predicate.OpEq:
		return column + " = " + c.placeholder(v.Value), nil
	case predicate.OpNe:
		return column + " <> " + c.placeholder(v.Value), nil
	case predicate.OpGt:
		return column + " > " + c.placeholder(v.Value), nil
	case predicate.OpIsNull:
		return column + " IS NULL", nil
	case predicate.OpNotNull:
		return column + " IS NOT NULL", nil
	}
	return "", fmt.Errorf("postgres: cannot compile comparison op %d", v.Op)
}

func (c *compiler) exists(v predicate.Exists, alias string) (string, error) {
	sub := c.nextAlias()
	conditions := make([]string, 0, len(v.Links)+len(v.Where))
	for _, link := range v.Links {
		conditions = append(conditions, fmt.Sprintf("%s.%s = %s.%s", sub, link.Column, alias, link.OuterColumn))
	}
	for _, where := range v.Where {
		clause, err := c.compile(where, sub)
		if err != nil {
			return "", err
		}
		conditions = append(conditions, clause)
	}
	if len(conditions) == 0 {
		conditions = append(conditions, "TRUE")
	}
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s AS %s WHERE %s)", v.Table, sub, strings.Join(conditions, " AND ")), nil
}
