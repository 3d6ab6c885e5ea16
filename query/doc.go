// Package query implements a fluent SQL query builder.
//
// A Builder accumulates clauses through chained calls and compiles them into
// one statement per terminal call. Values are rendered as literals through
// the driver's Escape, so compiled statements carry no placeholders:
//
//	users := query.New(drv).Table("users")
//	rows, err := users.Where("name", "Ana").Where("age", ">", 18).OrderByDesc("id").Get(ctx)
//	// SELECT * FROM `users` WHERE `name` = 'Ana' AND `age` > 18 ORDER BY `id` DESC
//
// Compiling clears the clause state; the table and hydration binding stay.
// Branch a query with Clone before running it to reuse its clauses.
//
// Column names starting with "#" are emitted without quoting, for raw
// expressions. Their values are still escaped:
//
//	users.Where("#LOWER(email)", "ana@example.com")
//
// Typed predicates are built from a Field:
//
//	var Age = query.Field[int]("age")
//	users.Filter(query.Or(Age.LT(18), Age.GT(65)))
//
// Dialect differences (quoting, LIMIT syntax, upserts, truncation) live in
// Grammar.
package query
