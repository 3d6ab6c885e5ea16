package query

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aguaragazu/mate-framework/dialect"
)

func TestGrammarWrap(t *testing.T) {
	t.Parallel()
	mysql, pg := NewGrammar(dialect.MySQL), NewGrammar(dialect.Postgres)
	tests := []struct {
		column string
		mysql  string
		pg     string
	}{
		{"name", "`name`", `"name"`},
		{"users.id", "`users`.`id`", `"users"."id"`},
		{"users.*", "`users`.*", `"users".*`},
		{"*", "*", "*"},
		{"name as n", "`name` AS `n`", `"name" AS "n"`},
		{"posts AS p", "`posts` AS `p`", `"posts" AS "p"`},
		{"#COUNT(*)", "COUNT(*)", "COUNT(*)"},
		{"we`ird", "`we``ird`", `"we` + "`" + `ird"`},
		{`we"ird`, "`we\"ird`", `"we""ird"`},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.mysql, mysql.Wrap(tt.column))
			assert.Equal(t, tt.pg, pg.Wrap(tt.column))
		})
	}
}

func TestGrammarLimit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		dialect  string
		limit    int
		hasLimit bool
		offset   int
		want     string
	}{
		{"mysql none", dialect.MySQL, 0, false, 0, ""},
		{"mysql limit", dialect.MySQL, 1, true, 0, "LIMIT 0, 1"},
		{"mysql page", dialect.MySQL, 10, true, 20, "LIMIT 20, 10"},
		{"mysql offset only", dialect.MySQL, 0, false, 5, "LIMIT 5, 18446744073709551615"},
		{"postgres limit", dialect.Postgres, 10, true, 0, "LIMIT 10"},
		{"postgres page", dialect.Postgres, 10, true, 20, "LIMIT 10 OFFSET 20"},
		{"postgres offset only", dialect.Postgres, 0, false, 5, "OFFSET 5"},
		{"sqlite offset only", dialect.SQLite, 0, false, 5, "LIMIT -1 OFFSET 5"},
		{"sqlite zero limit", dialect.SQLite, 0, true, 0, "LIMIT 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NewGrammar(tt.dialect).Limit(tt.limit, tt.hasLimit, tt.offset))
		})
	}
}

func TestGrammarUpsert(t *testing.T) {
	t.Parallel()
	assert.Equal(t,
		"ON DUPLICATE KEY UPDATE `name` = VALUES(`name`), `age` = VALUES(`age`)",
		NewGrammar(dialect.MySQL).Upsert([]string{"email"}, []string{"name", "age"}))
	assert.Equal(t,
		"ON DUPLICATE KEY UPDATE `email` = `email`",
		NewGrammar(dialect.MySQL).Upsert([]string{"email"}, nil))
	assert.Equal(t,
		`ON CONFLICT ("email") DO UPDATE SET "name" = EXCLUDED."name"`,
		NewGrammar(dialect.Postgres).Upsert([]string{"email"}, []string{"name"}))
	assert.Equal(t,
		`ON CONFLICT ("email") DO NOTHING`,
		NewGrammar(dialect.SQLite).Upsert([]string{"email"}, nil))
}

func TestGrammarDialectSpecifics(t *testing.T) {
	t.Parallel()
	mysql, pg, lite := NewGrammar("mysql"), NewGrammar("postgres"), NewGrammar("sqlite3")
	assert.Equal(t, dialect.SQLite, lite.Dialect())

	assert.Equal(t, "TRUNCATE TABLE `users`", mysql.Truncate("users"))
	assert.Equal(t, `TRUNCATE TABLE "users"`, pg.Truncate("users"))
	assert.Equal(t, `DELETE FROM "users"`, lite.Truncate("users"))

	_, ok := mysql.Returning("id")
	assert.False(t, ok)
	ret, ok := pg.Returning("id")
	assert.True(t, ok)
	assert.Equal(t, `RETURNING "id"`, ret)

	assert.Empty(t, mysql.LikeEscape())
	assert.Equal(t, ` ESCAPE '\'`, lite.LikeEscape())
	assert.Equal(t, `50\% off\_now \\ ok`, EscapeLike(`50% off_now \ ok`))
}
