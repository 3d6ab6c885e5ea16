package query

import (
	"context"
	"slices"
	"strings"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
)

// Binding connects a builder to the type its rows hydrate into.
type Binding[T any] interface {
	// Name is the model name reported by not-found errors.
	Name() string
	// Table is the default table of the builder.
	Table() string
	// PrimaryKey is the identity column used by Find and friends.
	PrimaryKey() string
	// Hydrate turns result rows into items.
	Hydrate(ctx context.Context, rows []dialect.Row) ([]T, error)
	// Key returns the primary key value of an item.
	Key(item T) any
	// EagerLoad resolves the named relations for a batch of items.
	EagerLoad(ctx context.Context, items []T, relations []string) error
}

// SoftDeleting is implemented by bindings whose rows are flagged rather
// than removed. SoftDelete returns the flag column, empty when rows are
// removed, and the value Delete sets it to.
type SoftDeleting interface {
	SoftDelete() (column string, value any)
}

// rows is the binding of raw builders: results stay column keyed maps.
type rows struct{}

func (rows) Name() string       { return "row" }
func (rows) Table() string      { return "" }
func (rows) PrimaryKey() string { return "id" }

func (rows) Hydrate(_ context.Context, rs []dialect.Row) ([]dialect.Row, error) { return rs, nil }

func (rows) Key(r dialect.Row) any { return r["id"] }

func (rows) EagerLoad(_ context.Context, _ []dialect.Row, relations []string) error {
	return mate.NewInvalidArgumentsError("with", "raw rows have no relations (%s)", strings.Join(relations, ", "))
}

// Part names a group of clause state, see CloneWithout.
type Part uint8

// Clause state parts.
const (
	PartColumns Part = iota
	PartDistinct
	PartJoins
	PartWheres
	PartGroups
	PartHavings
	PartOrders
	PartLimit
	PartOffset
	PartEager
)

type join struct {
	kind   string
	table  string
	first  string
	op     string
	second string
}

type order struct {
	column    string
	direction string
}

type identity struct {
	column string
	value  any
}

// Builder accumulates the clauses of one statement. Every terminal call
// (Get, First, Insert, Update, Delete, Exists ...) compiles the state and
// then clears it, keeping only the driver, table and binding. Use Clone or
// NewQuery to branch a query. A Builder must not be shared between
// goroutines.
//
// Invalid arguments given to a chained call are remembered and reported by
// the next terminal call.
type Builder[T any] struct {
	driver   dialect.Driver
	grammar  Grammar
	binding  Binding[T]
	table    string
	identity *identity
	scopes   []where

	columns  []string
	distinct bool
	joins    []join
	wheres   []where
	groups   []string
	havings  []where
	orders   []order
	limit    int
	hasLimit bool
	offset   int
	eager    []string
	err      error
}

// New returns a builder producing raw rows.
//
//	rows, err := query.New(drv).Table("users").Where("active", true).Get(ctx)
func New(drv dialect.Driver) *Builder[dialect.Row] {
	return NewBuilder[dialect.Row](drv, rows{})
}

// NewBuilder returns a builder hydrating rows through b, bound to the
// binding's table.
func NewBuilder[T any](drv dialect.Driver, b Binding[T]) *Builder[T] {
	return &Builder[T]{
		driver:  drv,
		grammar: NewGrammar(drv.Dialect()),
		binding: b,
		table:   b.Table(),
	}
}

// Driver returns the driver statements are sent to.
func (b *Builder[T]) Driver() dialect.Driver { return b.driver }

// Grammar returns the dialect grammar of the builder.
func (b *Builder[T]) Grammar() Grammar { return b.grammar }

// Binding returns the hydration binding of the builder.
func (b *Builder[T]) Binding() Binding[T] { return b.binding }

// TableName returns the bound table.
func (b *Builder[T]) TableName() string { return b.table }

// Err returns the first invalid argument recorded since the last terminal call.
func (b *Builder[T]) Err() error { return b.err }

func (b *Builder[T]) fail(op, format string, args ...any) *Builder[T] {
	if b.err == nil {
		b.err = mate.NewInvalidArgumentsError(op, format, args...)
	}
	return b
}

// Table binds the builder to a table. "posts as p" aliases it.
func (b *Builder[T]) Table(name string) *Builder[T] {
	if strings.TrimSpace(name) == "" {
		return b.fail("table", "empty table name")
	}
	b.table = name
	return b
}

// Identify binds the builder to a single row. Update and Delete without
// predicates are restricted to it.
func (b *Builder[T]) Identify(column string, value any) *Builder[T] {
	b.identity = &identity{column: column, value: value}
	return b
}

// Select sets the columns of the result.
func (b *Builder[T]) Select(columns ...string) *Builder[T] {
	b.columns = append([]string(nil), columns...)
	return b
}

// AddSelect appends columns to the result.
func (b *Builder[T]) AddSelect(columns ...string) *Builder[T] {
	b.columns = append(b.columns, columns...)
	return b
}

// Distinct makes the query return distinct rows.
func (b *Builder[T]) Distinct() *Builder[T] {
	b.distinct = true
	return b
}

// Where adds a predicate joined with AND. With a single argument the
// operator is "=", otherwise the first argument is the operator:
//
//	q.Where("name", "Ana").Where("age", ">", 18)
//
// Allowed operators are =, !=, <>, <, >, <=, >= and like. Comparing to
// nil with = or != checks for NULL.
func (b *Builder[T]) Where(column string, args ...any) *Builder[T] {
	return b.where("where", column, false, args)
}

// OrWhere adds a predicate joined with OR.
func (b *Builder[T]) OrWhere(column string, args ...any) *Builder[T] {
	return b.where("orWhere", column, true, args)
}

func (b *Builder[T]) where(op, column string, or bool, args []any) *Builder[T] {
	operator, value, err := parseOperator(op, args)
	if err != nil {
		return b.fail(op, "%s: %v", column, err)
	}
	b.wheres = append(b.wheres, basic(column, operator, value, or))
	return b
}

// WhereMap adds an equality predicate per entry, in column order.
func (b *Builder[T]) WhereMap(values map[string]any) *Builder[T] {
	for _, c := range sortedKeys(values) {
		b.wheres = append(b.wheres, basic(c, "=", values[c], false))
	}
	return b
}

// WhereIn adds "column IN (values)". An empty list matches nothing.
func (b *Builder[T]) WhereIn(column string, values ...any) *Builder[T] {
	return b.add(where{kind: whereIn, column: column, values: values})
}

// OrWhereIn is the OR form of WhereIn.
func (b *Builder[T]) OrWhereIn(column string, values ...any) *Builder[T] {
	return b.add(where{kind: whereIn, column: column, values: values, or: true})
}

// WhereNotIn adds "column NOT IN (values)". An empty list matches everything.
func (b *Builder[T]) WhereNotIn(column string, values ...any) *Builder[T] {
	return b.add(where{kind: whereNotIn, column: column, values: values})
}

// OrWhereNotIn is the OR form of WhereNotIn.
func (b *Builder[T]) OrWhereNotIn(column string, values ...any) *Builder[T] {
	return b.add(where{kind: whereNotIn, column: column, values: values, or: true})
}

// WhereBetween adds "column BETWEEN lo AND hi". It takes exactly two values.
func (b *Builder[T]) WhereBetween(column string, values ...any) *Builder[T] {
	return b.between("whereBetween", whereBetween, column, false, values)
}

// OrWhereBetween is the OR form of WhereBetween.
func (b *Builder[T]) OrWhereBetween(column string, values ...any) *Builder[T] {
	return b.between("orWhereBetween", whereBetween, column, true, values)
}

// WhereNotBetween adds "column NOT BETWEEN lo AND hi".
func (b *Builder[T]) WhereNotBetween(column string, values ...any) *Builder[T] {
	return b.between("whereNotBetween", whereNotBetween, column, false, values)
}

// OrWhereNotBetween is the OR form of WhereNotBetween.
func (b *Builder[T]) OrWhereNotBetween(column string, values ...any) *Builder[T] {
	return b.between("orWhereNotBetween", whereNotBetween, column, true, values)
}

func (b *Builder[T]) between(op string, kind whereKind, column string, or bool, values []any) *Builder[T] {
	if len(values) != 2 {
		return b.fail(op, "%s: expected 2 values, got %d", column, len(values))
	}
	return b.add(where{kind: kind, column: column, values: values, or: or})
}

// WhereNull adds "column IS NULL".
func (b *Builder[T]) WhereNull(column string) *Builder[T] {
	return b.add(where{kind: whereNull, column: column})
}

// OrWhereNull is the OR form of WhereNull.
func (b *Builder[T]) OrWhereNull(column string) *Builder[T] {
	return b.add(where{kind: whereNull, column: column, or: true})
}

// WhereNotNull adds "column IS NOT NULL".
func (b *Builder[T]) WhereNotNull(column string) *Builder[T] {
	return b.add(where{kind: whereNotNull, column: column})
}

// OrWhereNotNull is the OR form of WhereNotNull.
func (b *Builder[T]) OrWhereNotNull(column string) *Builder[T] {
	return b.add(where{kind: whereNotNull, column: column, or: true})
}

// Filter adds typed predicates joined with AND.
func (b *Builder[T]) Filter(preds ...Predicate) *Builder[T] {
	for _, p := range preds {
		if p.empty() {
			continue
		}
		w := p.w
		w.or = false
		b.wheres = append(b.wheres, w)
	}
	return b
}

// OrFilter adds typed predicates, the first one joined with OR.
func (b *Builder[T]) OrFilter(preds ...Predicate) *Builder[T] {
	if len(preds) == 0 {
		return b
	}
	p := And(preds...)
	if len(preds) == 1 {
		p = preds[0]
	}
	if p.empty() {
		return b
	}
	w := p.w
	w.or = true
	b.wheres = append(b.wheres, w)
	return b
}

func (b *Builder[T]) add(w where) *Builder[T] {
	b.wheres = append(b.wheres, w)
	return b
}

// Join adds an INNER JOIN. It takes the joined table and the two columns
// compared for equality:
//
//	q.Join("posts", "users.id", "posts.user_id")
func (b *Builder[T]) Join(table string, columns ...string) *Builder[T] {
	return b.join("join", "INNER JOIN", table, columns)
}

// LeftJoin adds a LEFT JOIN.
func (b *Builder[T]) LeftJoin(table string, columns ...string) *Builder[T] {
	return b.join("leftJoin", "LEFT JOIN", table, columns)
}

// RightJoin adds a RIGHT JOIN.
func (b *Builder[T]) RightJoin(table string, columns ...string) *Builder[T] {
	return b.join("rightJoin", "RIGHT JOIN", table, columns)
}

func (b *Builder[T]) join(op, kind, table string, columns []string) *Builder[T] {
	if table == "" || len(columns) != 2 {
		return b.fail(op, "expected a table and 2 columns, got %q and %d columns", table, len(columns))
	}
	b.joins = append(b.joins, join{kind: kind, table: table, first: columns[0], op: "=", second: columns[1]})
	return b
}

// GroupBy adds GROUP BY columns.
func (b *Builder[T]) GroupBy(columns ...string) *Builder[T] {
	b.groups = append(b.groups, columns...)
	return b
}

// Having adds a HAVING predicate, with the operator forms of Where.
func (b *Builder[T]) Having(column string, args ...any) *Builder[T] {
	return b.having("having", column, false, args)
}

// OrHaving adds a HAVING predicate joined with OR.
func (b *Builder[T]) OrHaving(column string, args ...any) *Builder[T] {
	return b.having("orHaving", column, true, args)
}

func (b *Builder[T]) having(op, column string, or bool, args []any) *Builder[T] {
	operator, value, err := parseOperator(op, args)
	if err != nil {
		return b.fail(op, "%s: %v", column, err)
	}
	b.havings = append(b.havings, basic(column, operator, value, or))
	return b
}

// OrderBy adds an ORDER BY column. The direction is "asc" (default) or "desc".
func (b *Builder[T]) OrderBy(column string, direction ...string) *Builder[T] {
	dir := "ASC"
	switch len(direction) {
	case 0:
	case 1:
		switch strings.ToUpper(strings.TrimSpace(direction[0])) {
		case "ASC":
		case "DESC":
			dir = "DESC"
		default:
			return b.fail("orderBy", "%s: direction must be asc or desc, got %q", column, direction[0])
		}
	default:
		return b.fail("orderBy", "%s: expected at most one direction", column)
	}
	b.orders = append(b.orders, order{column: column, direction: dir})
	return b
}

// OrderByDesc adds a descending ORDER BY column.
func (b *Builder[T]) OrderByDesc(column string) *Builder[T] {
	return b.OrderBy(column, "desc")
}

// Limit caps the number of rows.
func (b *Builder[T]) Limit(n int) *Builder[T] {
	if n < 0 {
		return b.fail("limit", "negative limit %d", n)
	}
	b.limit, b.hasLimit = n, true
	return b
}

// Offset skips rows.
func (b *Builder[T]) Offset(n int) *Builder[T] {
	if n < 0 {
		return b.fail("offset", "negative offset %d", n)
	}
	b.offset = n
	return b
}

// ForPage sets limit and offset for a 1-based page.
func (b *Builder[T]) ForPage(page, perPage int) *Builder[T] {
	if page < 1 || perPage < 1 {
		return b.fail("forPage", "page %d of size %d", page, perPage)
	}
	return b.Offset((page - 1) * perPage).Limit(perPage)
}

// With eager loads relations of the hydrated items. Nested relations are
// separated by dots:
//
//	users.With("posts.comments", "profile").Get(ctx)
func (b *Builder[T]) With(relations ...string) *Builder[T] {
	for _, r := range relations {
		if r = strings.TrimSpace(r); r != "" && !slices.Contains(b.eager, r) {
			b.eager = append(b.eager, r)
		}
	}
	return b
}

// Tap calls fn with the builder and returns the builder.
func (b *Builder[T]) Tap(fn func(*Builder[T])) *Builder[T] {
	fn(b)
	return b
}

// Scopes applies reusable query constraints.
//
//	active := func(q *query.Builder[*model.Record]) { q.Where("active", true) }
//	users.Query().Scopes(active).Get(ctx)
func (b *Builder[T]) Scopes(scopes ...func(*Builder[T])) *Builder[T] {
	for _, s := range scopes {
		s(b)
	}
	return b
}

// GlobalScope applies fn and keeps the predicates it adds apart from the
// query's own. They are ANDed with the rest of the WHERE clause as a whole,
// so an OrWhere cannot escape them. Global scopes survive terminal calls
// and are carried by Clone, CloneWithout and NewQuery.
//
//	q.GlobalScope(func(q *query.Builder[*model.Record]) { q.Where("tenant_id", 7) })
func (b *Builder[T]) GlobalScope(fn func(*Builder[T])) *Builder[T] {
	own := b.wheres
	b.wheres = nil
	fn(b)
	b.scopes = append(b.scopes, conjunction(b.wheres)...)
	b.wheres = own
	return b
}

// WithoutGlobalScopes drops the global scopes of the builder.
func (b *Builder[T]) WithoutGlobalScopes() *Builder[T] {
	b.scopes = nil
	return b
}

// When applies fn only if cond holds.
func (b *Builder[T]) When(cond bool, fn func(*Builder[T])) *Builder[T] {
	if cond {
		fn(b)
	}
	return b
}

// Clone returns an independent copy of the builder and its clause state.
func (b *Builder[T]) Clone() *Builder[T] {
	c := *b
	c.columns = slices.Clone(b.columns)
	c.joins = slices.Clone(b.joins)
	c.wheres = cloneWheres(b.wheres)
	c.scopes = cloneWheres(b.scopes)
	c.groups = slices.Clone(b.groups)
	c.havings = cloneWheres(b.havings)
	c.orders = slices.Clone(b.orders)
	c.eager = slices.Clone(b.eager)
	if b.identity != nil {
		id := *b.identity
		c.identity = &id
	}
	return &c
}

// CloneWithout returns a copy of the builder without the given parts.
//
//	count, err := q.CloneWithout(query.PartOrders, query.PartLimit, query.PartOffset).Count(ctx)
func (b *Builder[T]) CloneWithout(parts ...Part) *Builder[T] {
	c := b.Clone()
	for _, p := range parts {
		switch p {
		case PartColumns:
			c.columns = nil
		case PartDistinct:
			c.distinct = false
		case PartJoins:
			c.joins = nil
		case PartWheres:
			c.wheres = nil
		case PartGroups:
			c.groups = nil
		case PartHavings:
			c.havings = nil
		case PartOrders:
			c.orders = nil
		case PartLimit:
			c.limit, c.hasLimit = 0, false
		case PartOffset:
			c.offset = 0
		case PartEager:
			c.eager = nil
		}
	}
	return c
}

// NewQuery returns a fresh builder on the same driver, table and binding.
func (b *Builder[T]) NewQuery() *Builder[T] {
	return &Builder[T]{
		driver:  b.driver,
		grammar: b.grammar,
		binding: b.binding,
		table:   b.table,
		scopes:  cloneWheres(b.scopes),
	}
}

// reset clears the clause state after a terminal call.
func (b *Builder[T]) reset() {
	b.columns = nil
	b.distinct = false
	b.joins = nil
	b.wheres = nil
	b.groups = nil
	b.havings = nil
	b.orders = nil
	b.limit, b.hasLimit = 0, false
	b.offset = 0
	b.eager = nil
	b.err = nil
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
