package query

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/contrib/dataloader"
)

// ErrStopChunk stops Chunk without failing it.
var ErrStopChunk = errors.New("query: stop chunk")

// ToSQL compiles the SELECT statement of the current state without running
// or clearing it.
func (b *Builder[T]) ToSQL() (string, error) {
	return b.Clone().compileSelect()
}

// Get runs the query and hydrates every row. Given columns replace the
// selected ones.
func (b *Builder[T]) Get(ctx context.Context, columns ...string) ([]T, error) {
	defer b.reset()
	if len(columns) > 0 {
		b.columns = columns
	}
	q, err := b.compileSelect()
	if err != nil {
		return nil, err
	}
	rows, err := b.driver.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	items, err := b.binding.Hydrate(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(b.eager) > 0 && len(items) > 0 {
		if err := b.binding.EagerLoad(ctx, items, b.eager); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// First runs the query limited to one row. It returns the zero value of T
// when nothing matches.
func (b *Builder[T]) First(ctx context.Context, columns ...string) (T, error) {
	item, _, err := b.first(ctx, columns)
	return item, err
}

// FirstOrFail is like First but fails with a *mate.ModelNotFoundError when
// nothing matches.
func (b *Builder[T]) FirstOrFail(ctx context.Context, columns ...string) (T, error) {
	item, ok, err := b.first(ctx, columns)
	if err == nil && !ok {
		err = mate.NewModelNotFoundError(b.binding.Name())
	}
	return item, err
}

func (b *Builder[T]) first(ctx context.Context, columns []string) (T, bool, error) {
	var zero T
	items, err := b.Limit(1).Get(ctx, columns...)
	if err != nil || len(items) == 0 {
		return zero, false, err
	}
	return items[0], true, nil
}

// FirstWhere is a shorthand for Where(column, args...).First(ctx).
func (b *Builder[T]) FirstWhere(ctx context.Context, column string, args ...any) (T, error) {
	return b.Where(column, args...).First(ctx)
}

// Find returns the row with the given primary key, or the zero value of T.
func (b *Builder[T]) Find(ctx context.Context, id any, columns ...string) (T, error) {
	return b.Where(b.binding.PrimaryKey(), id).First(ctx, columns...)
}

// FindOrFail returns the row with the given primary key or a
// *mate.ModelNotFoundError carrying the id.
func (b *Builder[T]) FindOrFail(ctx context.Context, id any, columns ...string) (T, error) {
	item, ok, err := b.Where(b.binding.PrimaryKey(), id).first(ctx, columns)
	if err == nil && !ok {
		err = mate.NewModelNotFoundError(b.binding.Name(), id)
	}
	return item, err
}

// FindMany returns the rows with the given primary keys.
func (b *Builder[T]) FindMany(ctx context.Context, ids []any, columns ...string) ([]T, error) {
	if len(ids) == 0 {
		b.reset()
		return nil, nil
	}
	return b.WhereIn(b.binding.PrimaryKey(), ids...).Get(ctx, columns...)
}

// FindManyOrFail returns the rows with the given primary keys, or a
// *mate.ModelNotFoundError carrying exactly the ids that did not resolve.
func (b *Builder[T]) FindManyOrFail(ctx context.Context, ids []any, columns ...string) ([]T, error) {
	items, err := b.FindMany(ctx, ids, columns...)
	if err != nil {
		return nil, err
	}
	requested := make([]any, len(ids))
	for i, id := range ids {
		requested[i] = dataloader.Normalize(id)
	}
	missing := dataloader.MissingKeys(requested, items, dataloader.KeyOf(b.binding.Key))
	if len(missing) > 0 {
		return items, mate.NewModelNotFoundError(b.binding.Name(), originals(ids, missing)...)
	}
	return items, nil
}

// originals maps normalized missing keys back to the ids the caller gave.
func originals(ids, missing []any) []any {
	out := make([]any, 0, len(missing))
	for _, m := range missing {
		for _, id := range ids {
			if dataloader.Normalize(id) == m {
				out = append(out, id)
				break
			}
		}
	}
	return out
}

// Value returns a single column of the first row, or nil.
func (b *Builder[T]) Value(ctx context.Context, column string) (any, error) {
	defer b.reset()
	b.columns = []string{column}
	b.limit, b.hasLimit = 1, true
	q, err := b.compileSelect()
	if err != nil {
		return nil, err
	}
	row, err := b.driver.SelectOne(ctx, q)
	if err != nil || row == nil {
		return nil, err
	}
	return row[columnKey(column)], nil
}

// Pluck returns a single column of every row.
func (b *Builder[T]) Pluck(ctx context.Context, column string) ([]any, error) {
	defer b.reset()
	b.columns = []string{column}
	q, err := b.compileSelect()
	if err != nil {
		return nil, err
	}
	rows, err := b.driver.Select(ctx, q)
	if err != nil {
		return nil, err
	}
	key := columnKey(column)
	values := make([]any, len(rows))
	for i, r := range rows {
		values[i] = r[key]
	}
	return values, nil
}

// columnKey is the result key of a selected column.
func columnKey(column string) string {
	column = strings.TrimPrefix(column, "#")
	if i := aliasIndex(column); i >= 0 {
		return strings.TrimSpace(column[i+4:])
	}
	if i := strings.LastIndexByte(column, '.'); i >= 0 {
		return column[i+1:]
	}
	return column
}

// Count returns the number of matching rows.
func (b *Builder[T]) Count(ctx context.Context) (int64, error) {
	defer b.reset()
	q, err := b.compileCount()
	if err != nil {
		return 0, err
	}
	row, err := b.driver.SelectOne(ctx, q)
	if err != nil || row == nil {
		return 0, err
	}
	return toInt64(row["aggregate"])
}

// Exists reports whether any row matches. No match is not an error.
func (b *Builder[T]) Exists(ctx context.Context) (bool, error) {
	defer b.reset()
	q, err := b.compileExists()
	if err != nil {
		return false, err
	}
	row, err := b.driver.SelectOne(ctx, q)
	if err != nil || row == nil {
		return false, err
	}
	return truthy(row["exists"]), nil
}

// DoesntExist is the negation of Exists.
func (b *Builder[T]) DoesntExist(ctx context.Context) (bool, error) {
	ok, err := b.Exists(ctx)
	return !ok, err
}

// Chunk runs the query page by page and calls fn with every non-empty
// page. Returning ErrStopChunk from fn ends the iteration early. Without an
// explicit order the pages are ordered by primary key.
func (b *Builder[T]) Chunk(ctx context.Context, size int, fn func([]T) error) error {
	defer b.reset()
	if size < 1 {
		return mate.NewInvalidArgumentsError("chunk", "size must be positive, got %d", size)
	}
	if err := b.check(); err != nil {
		return err
	}
	base := b.CloneWithout(PartLimit, PartOffset)
	if len(base.orders) == 0 {
		base.OrderBy(b.binding.PrimaryKey())
	}
	for page := 1; ; page++ {
		items, err := base.Clone().ForPage(page, size).Get(ctx)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return nil
		}
		if err := fn(items); err != nil {
			if errors.Is(err, ErrStopChunk) {
				return nil
			}
			return err
		}
		if len(items) < size {
			return nil
		}
	}
}

// Insert inserts one row. An empty map issues no statement and succeeds.
func (b *Builder[T]) Insert(ctx context.Context, values map[string]any) (bool, error) {
	if len(values) == 0 {
		err := b.check()
		b.reset()
		return err == nil, err
	}
	return b.InsertMany(ctx, []map[string]any{values})
}

// InsertMany inserts rows in one statement over the union of their columns.
func (b *Builder[T]) InsertMany(ctx context.Context, records []map[string]any) (bool, error) {
	defer b.reset()
	records = nonEmpty(records)
	if len(records) == 0 {
		err := b.check()
		return err == nil, err
	}
	q, _, err := b.compileInsert(records)
	if err != nil {
		return false, err
	}
	if err := b.driver.Insert(ctx, q); err != nil {
		return false, err
	}
	return true, nil
}

// InsertGetID inserts one row and returns its generated primary key.
func (b *Builder[T]) InsertGetID(ctx context.Context, values map[string]any) (int64, error) {
	defer b.reset()
	if len(values) == 0 {
		return 0, mate.NewInvalidArgumentsError("insertGetId", "no values to insert")
	}
	q, _, err := b.compileInsert([]map[string]any{values})
	if err != nil {
		return 0, err
	}
	pk := b.binding.PrimaryKey()
	if returning, ok := b.grammar.Returning(pk); ok {
		row, err := b.driver.SelectOne(ctx, q+" "+returning)
		if err != nil {
			return 0, err
		}
		if row == nil {
			return 0, fmt.Errorf("query: insert into %s returned no %s", b.table, pk)
		}
		return toInt64(row[pk])
	}
	if err := b.driver.Insert(ctx, q); err != nil {
		return 0, err
	}
	return b.driver.LastInsertID(), nil
}

// Upsert inserts rows, updating the update columns of rows that collide on
// uniqueBy. A nil update list updates every inserted column but uniqueBy.
// MySQL resolves collisions on any unique index and ignores uniqueBy.
func (b *Builder[T]) Upsert(ctx context.Context, records []map[string]any, uniqueBy, update []string) (int64, error) {
	defer b.reset()
	records = nonEmpty(records)
	if len(records) == 0 {
		return 0, b.check()
	}
	if len(uniqueBy) == 0 && !b.grammar.mysql() {
		return 0, mate.NewInvalidArgumentsError("upsert", "no conflict columns")
	}
	q, columns, err := b.compileInsert(records)
	if err != nil {
		return 0, err
	}
	if update == nil {
		for _, c := range columns {
			if !slices.Contains(uniqueBy, c) {
				update = append(update, c)
			}
		}
	}
	if len(uniqueBy) == 0 {
		uniqueBy = columns[:1]
	}
	return b.driver.AffectingStatement(ctx, q+" "+b.grammar.Upsert(uniqueBy, update))
}

// Update updates the matching rows, or the identified row when no
// predicate is set, and returns the number of affected rows. The primary
// key and the created_at, updated_at and deleted_at columns are never set.
func (b *Builder[T]) Update(ctx context.Context, values map[string]any) (int64, error) {
	defer b.reset()
	q, ok, err := b.compileUpdate(values)
	if err != nil || !ok {
		return 0, err
	}
	return b.driver.Update(ctx, q)
}

// UpdateOrInsert updates the rows matching attributes with values, or
// inserts attributes merged with values when none match. The predicates
// already on the builder, global scopes included, restrict both the check
// and the update.
func (b *Builder[T]) UpdateOrInsert(ctx context.Context, attributes, values map[string]any) (bool, error) {
	defer b.reset()
	if err := b.check(); err != nil {
		return false, err
	}
	exists, err := b.matching(attributes).Exists(ctx)
	if err != nil {
		return false, err
	}
	if !exists {
		merged := maps.Clone(attributes)
		if merged == nil {
			merged = make(map[string]any, len(values))
		}
		maps.Copy(merged, values)
		return b.NewQuery().Insert(ctx, merged)
	}
	if len(values) == 0 {
		return true, nil
	}
	if _, err := b.matching(attributes).Limit(1).Update(ctx, values); err != nil {
		return false, err
	}
	return true, nil
}

// matching returns a copy of the builder further restricted to rows equal
// to attributes.
func (b *Builder[T]) matching(attributes map[string]any) *Builder[T] {
	c := b.Clone()
	c.wheres = conjunction(c.wheres)
	return c.WhereMap(attributes)
}

// Delete removes the matching rows, or the identified row when no
// predicate is set. An id restricts the delete to that primary key. When
// the binding soft deletes, the rows are flagged with an UPDATE instead.
func (b *Builder[T]) Delete(ctx context.Context, id ...any) (int64, error) {
	return b.delete(ctx, true, id)
}

// ForceDelete removes the matching rows even when the binding soft deletes.
func (b *Builder[T]) ForceDelete(ctx context.Context, id ...any) (int64, error) {
	return b.delete(ctx, false, id)
}

func (b *Builder[T]) delete(ctx context.Context, soft bool, id []any) (int64, error) {
	defer b.reset()
	switch len(id) {
	case 0:
	case 1:
		b.Where(b.binding.PrimaryKey(), id[0])
	default:
		b.fail("delete", "expected at most one id, got %d", len(id))
	}
	if sd, ok := b.binding.(SoftDeleting); ok && soft {
		if col, v := sd.SoftDelete(); col != "" {
			return b.Update(ctx, map[string]any{"#" + b.grammar.Wrap(col): v})
		}
	}
	q, err := b.compileDelete()
	if err != nil {
		return 0, err
	}
	return b.driver.Delete(ctx, q)
}

// Truncate removes every row of the table.
func (b *Builder[T]) Truncate(ctx context.Context) error {
	defer b.reset()
	if err := b.check(); err != nil {
		return err
	}
	return b.driver.Statement(ctx, b.grammar.Truncate(b.table))
}

// BeginTransaction starts a transaction on the driver.
func (b *Builder[T]) BeginTransaction(ctx context.Context) error {
	return b.driver.BeginTransaction(ctx)
}

// Commit commits the driver's transaction.
func (b *Builder[T]) Commit() error { return b.driver.Commit() }

// Rollback rolls back the driver's transaction.
func (b *Builder[T]) Rollback() error { return b.driver.Rollback() }

func nonEmpty(records []map[string]any) []map[string]any {
	out := records[:0:0]
	for _, r := range records {
		if len(r) > 0 {
			out = append(out, r)
		}
	}
	return out
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case uint64:
		if n > math.MaxInt64 {
			return 0, fmt.Errorf("query: integer %d overflows int64", n)
		}
		return int64(n), nil
	case float64:
		return int64(n), nil
	case string:
		return strconv.ParseInt(n, 10, 64)
	case []byte:
		return strconv.ParseInt(string(n), 10, 64)
	case nil:
		return 0, nil
	default:
		return 0, fmt.Errorf("query: unexpected integer %T", v)
	}
}

func truthy(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case nil:
		return false
	case string:
		return b == "1" || strings.EqualFold(b, "t") || strings.EqualFold(b, "true")
	default:
		n, err := toInt64(v)
		return err == nil && n != 0
	}
}
