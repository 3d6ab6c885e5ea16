package query

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
	dsql "github.com/aguaragazu/mate-framework/dialect/sql"
)

func newDriver(t *testing.T, name string) (*dsql.Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return dsql.OpenDB(name, db), mock
}

func TestBuilderSelect(t *testing.T) {
	drv, _ := newDriver(t, dialect.MySQL)
	var (
		Age  = Field[int]("age")
		Name = Field[string]("name")
	)
	tests := []struct {
		name  string
		build func(*Builder[dialect.Row]) *Builder[dialect.Row]
		want  string
	}{
		{
			name:  "all",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b },
			want:  "SELECT * FROM `users`",
		},
		{
			name: "where chain in call order",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Where("a", 1).Where("b", ">", 2)
			},
			want: "SELECT * FROM `users` WHERE `a` = 1 AND `b` > 2",
		},
		{
			name: "or where",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Where("name", "Ana").OrWhere("name", "like", "B%")
			},
			want: "SELECT * FROM `users` WHERE `name` = 'Ana' OR `name` LIKE 'B%'",
		},
		{
			name: "escaped value",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Where("name", "O'Reilly")
			},
			want: "SELECT * FROM `users` WHERE `name` = 'O''Reilly'",
		},
		{
			name: "raw column keeps escaped value",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Where("#LOWER(email)", "a'b@x.com")
			},
			want: "SELECT * FROM `users` WHERE LOWER(email) = 'a''b@x.com'",
		},
		{
			name: "nil compares as null",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Where("deleted_at", nil).Where("verified_at", "!=", nil)
			},
			want: "SELECT * FROM `users` WHERE `deleted_at` IS NULL AND `verified_at` IS NOT NULL",
		},
		{
			name: "in and not in",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.WhereIn("id", 1, 2, 3).OrWhereNotIn("role", "admin", "root")
			},
			want: "SELECT * FROM `users` WHERE `id` IN (1, 2, 3) OR `role` NOT IN ('admin', 'root')",
		},
		{
			name: "empty in lists",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.WhereIn("id").WhereNotIn("id")
			},
			want: "SELECT * FROM `users` WHERE 0 = 1 AND 1 = 1",
		},
		{
			name: "between and null checks",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.WhereBetween("age", 18, 65).
					OrWhereNotBetween("score", 1.5, 2.5).
					WhereNull("deleted_at").
					OrWhereNotNull("banned_at")
			},
			want: "SELECT * FROM `users` WHERE `age` BETWEEN 18 AND 65 OR `score` NOT BETWEEN 1.5 AND 2.5" +
				" AND `deleted_at` IS NULL OR `banned_at` IS NOT NULL",
		},
		{
			name: "where map",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.WhereMap(map[string]any{"name": "Ana", "active": true})
			},
			want: "SELECT * FROM `users` WHERE `active` = 1 AND `name` = 'Ana'",
		},
		{
			name: "full clause order",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Select("users.id", "posts.title as t").
					Distinct().
					Join("posts", "users.id", "posts.user_id").
					LeftJoin("profiles", "profiles.user_id", "users.id").
					Where("posts.published", true).
					GroupBy("users.id").
					Having("#COUNT(*)", ">", 2).
					OrderBy("users.id", "desc").
					Limit(10).
					Offset(20)
			},
			want: "SELECT DISTINCT `users`.`id`, `posts`.`title` AS `t` FROM `users`" +
				" INNER JOIN `posts` ON `users`.`id` = `posts`.`user_id`" +
				" LEFT JOIN `profiles` ON `profiles`.`user_id` = `users`.`id`" +
				" WHERE `posts`.`published` = 1 GROUP BY `users`.`id` HAVING COUNT(*) > 2" +
				" ORDER BY `users`.`id` DESC LIMIT 20, 10",
		},
		{
			name: "typed predicates",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Filter(
					Name.HasPrefix("A_"),
					Or(Age.LT(18), Age.GTE(65)),
					Not(Name.In("x", "y")),
				)
			},
			want: "SELECT * FROM `users` WHERE `name` LIKE 'A\\\\_%' AND (`age` < 18 OR `age` >= 65) AND NOT (`name` IN ('x', 'y'))",
		},
		{
			name: "or filter",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.Where("a", 1).OrFilter(Age.IsNull(), Name.NotNull())
			},
			want: "SELECT * FROM `users` WHERE `a` = 1 OR (`age` IS NULL AND `name` IS NOT NULL)",
		},
		{
			name: "dynamic where",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				return b.WhereDynamic("FirstNameOrEmail", "Ana", "ana@x.com")
			},
			want: "SELECT * FROM `users` WHERE `first_name` = 'Ana' OR `email` = 'ana@x.com'",
		},
		{
			name: "scopes and when",
			build: func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
				active := func(q *Builder[dialect.Row]) { q.Where("active", true) }
				return b.Scopes(active).
					When(false, func(q *Builder[dialect.Row]) { q.Where("never", 1) }).
					Tap(func(q *Builder[dialect.Row]) { q.ForPage(3, 15) })
			},
			want: "SELECT * FROM `users` WHERE `active` = 1 LIMIT 30, 15",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := tt.build(New(drv).Table("users")).ToSQL()
			require.NoError(t, err)
			assert.Equal(t, tt.want, q)
		})
	}
}

func TestBuilderSelectDialects(t *testing.T) {
	pg, _ := newDriver(t, dialect.Postgres)
	q, err := New(pg).Table("users").Where("name", `a\b`).Where("active", true).Limit(5).Offset(10).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "name" = 'a\b' AND "active" = TRUE LIMIT 5 OFFSET 10`, q)

	lite, _ := newDriver(t, dialect.SQLite)
	q, err = New(lite).Table("users").Filter(Field[string]("name").Contains("50%")).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT * FROM "users" WHERE "name" LIKE '%50\%%' ESCAPE '\'`, q)
}

func TestBuilderInvalidArguments(t *testing.T) {
	drv, _ := newDriver(t, dialect.MySQL)
	tests := []struct {
		name  string
		build func(*Builder[dialect.Row]) *Builder[dialect.Row]
	}{
		{"unknown operator", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Where("a", "~", 1) }},
		{"operator not a string", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Where("a", 1, 2) }},
		{"no value", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Where("a") }},
		{"too many values", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Where("a", "=", 1, 2) }},
		{"join with one column", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Join("posts", "id") }},
		{"join with three columns", func(b *Builder[dialect.Row]) *Builder[dialect.Row] {
			return b.RightJoin("posts", "a", "b", "c")
		}},
		{"between with one value", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.WhereBetween("a", 1) }},
		{"negative limit", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Limit(-1) }},
		{"negative offset", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Offset(-5) }},
		{"bad direction", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.OrderBy("a", "sideways") }},
		{"having operator", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Having("a", "in", 1) }},
		{"dynamic arity", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.WhereDynamic("NameAndEmail", "x") }},
		{"empty table", func(b *Builder[dialect.Row]) *Builder[dialect.Row] { return b.Table(" ") }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.build(New(drv).Table("users")).ToSQL()
			require.Error(t, err)
			assert.ErrorIs(t, err, mate.ErrInvalidArguments)
		})
	}

	t.Run("missing table", func(t *testing.T) {
		_, err := New(drv).Where("a", 1).ToSQL()
		assert.True(t, mate.IsInvalidArguments(err))
	})

	t.Run("first error wins", func(t *testing.T) {
		b := New(drv).Table("users").Limit(-1).Where("a", "~", 1)
		var ia *mate.InvalidArgumentsError
		require.ErrorAs(t, b.Err(), &ia)
		assert.Equal(t, "limit", ia.Op)
	})
}

func TestBuilderClone(t *testing.T) {
	drv, _ := newDriver(t, dialect.MySQL)
	base := New(drv).Table("users").Where("active", true).OrderBy("id")

	branch := base.Clone().Where("age", ">", 18)
	q, err := base.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users` WHERE `active` = 1 ORDER BY `id` ASC", q)
	q, err = branch.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users` WHERE `active` = 1 AND `age` > 18 ORDER BY `id` ASC", q)

	q, err = branch.CloneWithout(PartOrders, PartWheres).ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users`", q)

	fresh := base.NewQuery()
	assert.Equal(t, "users", fresh.TableName())
	q, err = fresh.ToSQL()
	require.NoError(t, err)
	assert.Equal(t, "SELECT * FROM `users`", q)
}

func TestParseDynamicWhere(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []Segment
	}{
		{"Name", []Segment{{Column: "name"}}},
		{"WhereNameAndEmail", []Segment{{Column: "name"}, {Column: "email"}}},
		{"FirstNameOrLastName", []Segment{{Column: "first_name"}, {Column: "last_name", Or: true}}},
		{"OrderIdAndBrand", []Segment{{Column: "order_id"}, {Column: "brand"}}},
		{"ColorOrSizeAndAndroidVersion", []Segment{{Column: "color"}, {Column: "size", Or: true}, {Column: "android_version"}}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDynamicWhere(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "Where"} {
		_, err := ParseDynamicWhere(bad)
		assert.ErrorIs(t, err, mate.ErrInvalidArguments)
	}
}
