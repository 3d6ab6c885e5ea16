package query

import (
	"fmt"
	"slices"
	"strings"
)

type whereKind uint8

const (
	whereBasic whereKind = iota
	whereIn
	whereNotIn
	whereBetween
	whereNotBetween
	whereNull
	whereNotNull
	whereGroup
	whereNot
)

// where is one accumulated predicate of a WHERE or HAVING clause.
type where struct {
	kind   whereKind
	or     bool
	column string
	op     string
	values []any
	escape bool // LIKE pattern built with EscapeLike
	nested []where
}

// clone copies the predicate and its nested groups.
func (w where) clone() where {
	w.values = append([]any(nil), w.values...)
	if w.nested != nil {
		w.nested = cloneWheres(w.nested)
	}
	return w
}

func cloneWheres(ws []where) []where {
	if ws == nil {
		return nil
	}
	out := make([]where, len(ws))
	for i, w := range ws {
		out[i] = w.clone()
	}
	return out
}

// operators is the allow-list of comparison operators.
var operators = map[string]string{
	"=":    "=",
	"!=":   "!=",
	"<>":   "<>",
	"<":    "<",
	">":    ">",
	"<=":   "<=",
	">=":   ">=",
	"like": "LIKE",
}

// parseOperator validates the optional operator form of where and having.
func parseOperator(op string, args []any) (string, any, error) {
	switch len(args) {
	case 1:
		return "=", args[0], nil
	case 2:
		s, ok := args[0].(string)
		if !ok {
			return "", nil, fmt.Errorf("operator must be a string, got %T", args[0])
		}
		norm, ok := operators[strings.ToLower(strings.TrimSpace(s))]
		if !ok {
			return "", nil, fmt.Errorf("operator %q is not allowed", s)
		}
		return norm, args[1], nil
	default:
		return "", nil, fmt.Errorf("%s expects a value or an operator and a value, got %d arguments", op, len(args))
	}
}

// basic builds a comparison, turning equality with nil into a NULL check.
func basic(column, op string, value any, or bool) where {
	if value == nil {
		switch op {
		case "=":
			return where{kind: whereNull, column: column, or: or}
		case "!=", "<>":
			return where{kind: whereNotNull, column: column, or: or}
		}
	}
	return where{kind: whereBasic, column: column, op: op, values: []any{value}, or: or}
}

// conjunction returns ws as predicates that can be ANDed with others:
// grouped when they contain an OR, with the leading connector cleared.
func conjunction(ws []where) []where {
	if len(ws) == 0 {
		return nil
	}
	for _, w := range ws[1:] {
		if w.or {
			return []where{{kind: whereGroup, nested: ws}}
		}
	}
	out := slices.Clone(ws)
	out[0].or = false
	return out
}

// compileWheres renders predicates joined by their connectors.
func compileWheres(g Grammar, esc escaper, ws []where) (string, error) {
	var b strings.Builder
	for i, w := range ws {
		if i > 0 {
			if w.or {
				b.WriteString(" OR ")
			} else {
				b.WriteString(" AND ")
			}
		}
		s, err := compileWhere(g, esc, w)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

func compileWhere(g Grammar, esc escaper, w where) (string, error) {
	switch w.kind {
	case whereBasic:
		v, err := esc(w.values[0])
		if err != nil {
			return "", err
		}
		s := g.Wrap(w.column) + " " + w.op + " " + v
		if w.escape {
			s += g.LikeEscape()
		}
		return s, nil
	case whereIn, whereNotIn:
		if len(w.values) == 0 {
			// Nothing is in an empty set, everything is outside of it.
			if w.kind == whereIn {
				return "0 = 1", nil
			}
			return "1 = 1", nil
		}
		list, err := escapeList(esc, w.values)
		if err != nil {
			return "", err
		}
		op := " IN ("
		if w.kind == whereNotIn {
			op = " NOT IN ("
		}
		return g.Wrap(w.column) + op + list + ")", nil
	case whereBetween, whereNotBetween:
		lo, err := esc(w.values[0])
		if err != nil {
			return "", err
		}
		hi, err := esc(w.values[1])
		if err != nil {
			return "", err
		}
		op := " BETWEEN "
		if w.kind == whereNotBetween {
			op = " NOT BETWEEN "
		}
		return g.Wrap(w.column) + op + lo + " AND " + hi, nil
	case whereNull:
		return g.Wrap(w.column) + " IS NULL", nil
	case whereNotNull:
		return g.Wrap(w.column) + " IS NOT NULL", nil
	case whereGroup:
		s, err := compileWheres(g, esc, w.nested)
		if err != nil {
			return "", err
		}
		return "(" + s + ")", nil
	case whereNot:
		s, err := compileWheres(g, esc, w.nested)
		if err != nil {
			return "", err
		}
		return "NOT (" + s + ")", nil
	default:
		return "", fmt.Errorf("query: unknown predicate kind %d", w.kind)
	}
}

// escaper renders a value as an SQL literal.
type escaper func(any) (string, error)

func escapeList(esc escaper, values []any) (string, error) {
	parts := make([]string, len(values))
	for i, v := range values {
		s, err := esc(v)
		if err != nil {
			return "", err
		}
		parts[i] = s
	}
	return strings.Join(parts, ", "), nil
}
