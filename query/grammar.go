package query

import (
	"strconv"
	"strings"

	"github.com/aguaragazu/mate-framework/dialect"
)

// mysqlMaxLimit is the documented way to ask MySQL for an offset without an
// upper bound.
const mysqlMaxLimit = "18446744073709551615"

// Grammar holds the dialect specific parts of statement compilation:
// identifier quoting, LIMIT syntax, upserts and truncation.
type Grammar struct {
	dialect string
}

// NewGrammar returns the grammar of the given dialect. Unknown dialects
// compile like SQLite.
func NewGrammar(name string) Grammar {
	switch {
	case strings.HasPrefix(name, dialect.MySQL):
		return Grammar{dialect: dialect.MySQL}
	case strings.HasPrefix(name, dialect.Postgres):
		return Grammar{dialect: dialect.Postgres}
	default:
		return Grammar{dialect: dialect.SQLite}
	}
}

// Dialect returns the dialect name of the grammar.
func (g Grammar) Dialect() string { return g.dialect }

func (g Grammar) mysql() bool    { return g.dialect == dialect.MySQL }
func (g Grammar) postgres() bool { return g.dialect == dialect.Postgres }

// Quote quotes a single identifier.
func (g Grammar) Quote(ident string) string {
	if g.mysql() {
		return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

// Wrap quotes a column reference. It understands qualified names
// ("users.id"), aliases ("name as n") and the "*" wildcard. A leading "#"
// marks a raw expression that is emitted as is.
func (g Grammar) Wrap(column string) string {
	if raw, ok := strings.CutPrefix(column, "#"); ok {
		return raw
	}
	if i := aliasIndex(column); i >= 0 {
		return g.Wrap(strings.TrimSpace(column[:i])) + " AS " + g.Quote(strings.TrimSpace(column[i+4:]))
	}
	if column == "*" {
		return column
	}
	parts := strings.Split(column, ".")
	for i, p := range parts {
		if p != "*" {
			parts[i] = g.Quote(p)
		}
	}
	return strings.Join(parts, ".")
}

// Columnize wraps and joins a column list.
func (g Grammar) Columnize(columns []string) string {
	wrapped := make([]string, len(columns))
	for i, c := range columns {
		wrapped[i] = g.Wrap(c)
	}
	return strings.Join(wrapped, ", ")
}

// Limit renders the LIMIT clause, or an empty string when neither a limit
// nor an offset is set. MySQL uses the "LIMIT offset, count" form.
func (g Grammar) Limit(limit int, hasLimit bool, offset int) string {
	if !hasLimit && offset == 0 {
		return ""
	}
	if g.mysql() {
		count := strconv.Itoa(limit)
		if !hasLimit {
			count = mysqlMaxLimit
		}
		return "LIMIT " + strconv.Itoa(offset) + ", " + count
	}
	var b strings.Builder
	switch {
	case hasLimit:
		b.WriteString("LIMIT " + strconv.Itoa(limit))
	case !g.postgres():
		// SQLite accepts OFFSET only after a LIMIT.
		b.WriteString("LIMIT -1")
	}
	if offset > 0 {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString("OFFSET " + strconv.Itoa(offset))
	}
	return b.String()
}

// Upsert renders the conflict clause appended to an INSERT. uniqueBy must
// not be empty.
func (g Grammar) Upsert(uniqueBy, update []string) string {
	sets := make([]string, len(update))
	if g.mysql() {
		if len(update) == 0 {
			// No DO NOTHING in MySQL: a self assignment keeps the row.
			c := g.Wrap(uniqueBy[0])
			return "ON DUPLICATE KEY UPDATE " + c + " = " + c
		}
		for i, c := range update {
			sets[i] = g.Wrap(c) + " = VALUES(" + g.Wrap(c) + ")"
		}
		return "ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	}
	for i, c := range update {
		sets[i] = g.Wrap(c) + " = EXCLUDED." + g.Wrap(c)
	}
	if len(sets) == 0 {
		return "ON CONFLICT (" + g.Columnize(uniqueBy) + ") DO NOTHING"
	}
	return "ON CONFLICT (" + g.Columnize(uniqueBy) + ") DO UPDATE SET " + strings.Join(sets, ", ")
}

// Returning reports the RETURNING clause used to read back a generated key.
// Only Postgres needs one; the others report the id through the driver.
func (g Grammar) Returning(column string) (string, bool) {
	if !g.postgres() {
		return "", false
	}
	return "RETURNING " + g.Wrap(column), true
}

// Truncate renders a statement removing every row of table.
func (g Grammar) Truncate(table string) string {
	if g.dialect == dialect.SQLite {
		return "DELETE FROM " + g.Wrap(table)
	}
	return "TRUNCATE TABLE " + g.Wrap(table)
}

// LikeEscape returns the ESCAPE clause for patterns built with
// EscapeLike. MySQL and Postgres already default to a backslash.
func (g Grammar) LikeEscape() string {
	if g.dialect == dialect.SQLite {
		return ` ESCAPE '\'`
	}
	return ""
}

// limitsMutations reports whether UPDATE and DELETE accept ORDER BY and LIMIT.
func (g Grammar) limitsMutations() bool { return g.mysql() }

// EscapeLike escapes the LIKE wildcards of s with a backslash.
func EscapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func aliasIndex(column string) int {
	return strings.Index(strings.ToLower(column), " as ")
}
