package query

import (
	"slices"
	"strconv"
	"strings"

	"github.com/aguaragazu/mate-framework"
)

// excludedFromUpdate are never written by Update. A "#" prefixed key is
// emitted raw and bypasses the list.
var excludedFromUpdate = []string{"created_at", "updated_at", "deleted_at"}

func (b *Builder[T]) escape(v any) (string, error) {
	return b.driver.Escape(v, false)
}

// check validates the state shared by all terminal calls.
func (b *Builder[T]) check() error {
	if b.err != nil {
		return b.err
	}
	if b.table == "" {
		return mate.NewInvalidArgumentsError("table", "no table bound to the query")
	}
	return nil
}

func (b *Builder[T]) compileSelect() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("SELECT ")
	if b.distinct {
		sb.WriteString("DISTINCT ")
	}
	if len(b.columns) == 0 {
		sb.WriteString("*")
	} else {
		sb.WriteString(b.grammar.Columnize(b.columns))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(b.grammar.Wrap(b.table))
	if err := b.compileBody(&sb, true); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// compileBody renders joins, WHERE, and with full set the GROUP BY, HAVING,
// ORDER BY and LIMIT clauses, in that order.
func (b *Builder[T]) compileBody(sb *strings.Builder, full bool) error {
	for _, j := range b.joins {
		sb.WriteString(" " + j.kind + " " + b.grammar.Wrap(j.table) + " ON " +
			b.grammar.Wrap(j.first) + " " + j.op + " " + b.grammar.Wrap(j.second))
	}
	if err := b.compileWhere(sb, b.scoped(b.wheres)); err != nil {
		return err
	}
	if !full {
		return nil
	}
	if len(b.groups) > 0 {
		sb.WriteString(" GROUP BY " + b.grammar.Columnize(b.groups))
	}
	if len(b.havings) > 0 {
		s, err := compileWheres(b.grammar, b.escape, b.havings)
		if err != nil {
			return err
		}
		sb.WriteString(" HAVING " + s)
	}
	b.compileOrders(sb)
	if limit := b.grammar.Limit(b.limit, b.hasLimit, b.offset); limit != "" {
		sb.WriteString(" " + limit)
	}
	return nil
}

func (b *Builder[T]) compileWhere(sb *strings.Builder, ws []where) error {
	if len(ws) == 0 {
		return nil
	}
	s, err := compileWheres(b.grammar, b.escape, ws)
	if err != nil {
		return err
	}
	sb.WriteString(" WHERE " + s)
	return nil
}

func (b *Builder[T]) compileOrders(sb *strings.Builder) {
	if len(b.orders) == 0 {
		return
	}
	parts := make([]string, len(b.orders))
	for i, o := range b.orders {
		parts[i] = b.grammar.Wrap(o.column) + " " + o.direction
	}
	sb.WriteString(" ORDER BY " + strings.Join(parts, ", "))
}

// scoped prefixes ws with the global scopes.
func (b *Builder[T]) scoped(ws []where) []where {
	if len(b.scopes) == 0 {
		return ws
	}
	return append(slices.Clone(b.scopes), conjunction(ws)...)
}

// mutationWheres returns the predicates of UPDATE and DELETE: the explicit
// ones, or the bound identity when there are none, within the global scopes.
func (b *Builder[T]) mutationWheres() []where {
	if len(b.wheres) == 0 && b.identity != nil {
		return b.scoped([]where{basic(b.identity.column, "=", b.identity.value, false)})
	}
	return b.scoped(b.wheres)
}

// compileMutationTail renders WHERE and, where the dialect allows it,
// ORDER BY and LIMIT of UPDATE and DELETE.
func (b *Builder[T]) compileMutationTail(sb *strings.Builder) error {
	if err := b.compileWhere(sb, b.mutationWheres()); err != nil {
		return err
	}
	if b.grammar.limitsMutations() && b.hasLimit {
		b.compileOrders(sb)
		sb.WriteString(" LIMIT " + strconv.Itoa(b.limit))
	}
	return nil
}

func (b *Builder[T]) compileExists() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("SELECT EXISTS(SELECT 1 FROM " + b.grammar.Wrap(b.table))
	if err := b.compileBody(&sb, false); err != nil {
		return "", err
	}
	sb.WriteString(") AS " + b.grammar.Quote("exists"))
	return sb.String(), nil
}

func (b *Builder[T]) compileCount() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("SELECT COUNT(*) AS " + b.grammar.Quote("aggregate") + " FROM " + b.grammar.Wrap(b.table))
	if err := b.compileBody(&sb, false); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// compileInsert renders a multi row INSERT over the sorted union of the
// rows' columns. Columns a row lacks are inserted as NULL.
func (b *Builder[T]) compileInsert(records []map[string]any) (string, []string, error) {
	if err := b.check(); err != nil {
		return "", nil, err
	}
	var columns []string
	for _, r := range records {
		for c := range r {
			if !slices.Contains(columns, c) {
				columns = append(columns, c)
			}
		}
	}
	slices.Sort(columns)
	tuples := make([]string, len(records))
	for i, r := range records {
		values := make([]string, len(columns))
		for j, c := range columns {
			v, err := b.escape(r[c])
			if err != nil {
				return "", nil, err
			}
			values[j] = v
		}
		tuples[i] = "(" + strings.Join(values, ", ") + ")"
	}
	q := "INSERT INTO " + b.grammar.Wrap(b.table) + " (" + b.grammar.Columnize(columns) + ") VALUES " + strings.Join(tuples, ", ")
	return q, columns, nil
}

// compileUpdate renders an UPDATE. The primary key and timestamp columns
// are skipped; it reports false when nothing is left to set.
func (b *Builder[T]) compileUpdate(values map[string]any) (string, bool, error) {
	if err := b.check(); err != nil {
		return "", false, err
	}
	pk := b.binding.PrimaryKey()
	var sets []string
	for _, c := range sortedKeys(values) {
		if c == pk || slices.Contains(excludedFromUpdate, c) {
			continue
		}
		v, err := b.escape(values[c])
		if err != nil {
			return "", false, err
		}
		sets = append(sets, b.grammar.Wrap(c)+" = "+v)
	}
	if len(sets) == 0 {
		return "", false, nil
	}
	var sb strings.Builder
	sb.WriteString("UPDATE " + b.grammar.Wrap(b.table) + " SET " + strings.Join(sets, ", "))
	if err := b.compileMutationTail(&sb); err != nil {
		return "", false, err
	}
	return sb.String(), true, nil
}

func (b *Builder[T]) compileDelete() (string, error) {
	if err := b.check(); err != nil {
		return "", err
	}
	var sb strings.Builder
	sb.WriteString("DELETE FROM " + b.grammar.Wrap(b.table))
	if err := b.compileMutationTail(&sb); err != nil {
		return "", err
	}
	return sb.String(), nil
}
