package sql

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aguaragazu/mate-framework/dialect"
)

func TestStatsDriver(t *testing.T) {
	drv, mock := newMock(t, dialect.MySQL)
	ctx := context.Background()

	var slow []string
	stats := NewStatsDriver(drv,
		WithSlowThreshold(-1),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			slow = append(slow, query)
		}),
	)
	assert.Equal(t, time.Duration(-1), stats.SlowThreshold())

	mock.ExpectQuery("SELECT * FROM users").WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
	mock.ExpectExec("DELETE FROM users").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("DELETE FROM posts").WillReturnError(errors.New("locked"))

	_, err := stats.Select(ctx, "SELECT * FROM users")
	require.NoError(t, err)
	_, err = stats.Delete(ctx, "DELETE FROM users")
	require.NoError(t, err)
	_, err = stats.Delete(ctx, "DELETE FROM posts")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())

	s := stats.QueryStats().Stats()
	assert.Equal(t, int64(1), s.TotalQueries)
	assert.Equal(t, int64(2), s.TotalExecs)
	assert.Equal(t, int64(1), s.Errors)
	assert.Equal(t, int64(3), s.SlowQueries)
	assert.Equal(t, []string{"SELECT * FROM users", "DELETE FROM users", "DELETE FROM posts"}, slow)
	assert.Contains(t, s.String(), "queries=1 execs=2")

	stats.SetSlowThreshold(time.Hour)
	mock.ExpectExec("DELETE FROM tags").WillReturnResult(sqlmock.NewResult(0, 0))
	require.NoError(t, stats.Statement(ctx, "DELETE FROM tags"))
	assert.Equal(t, int64(3), stats.QueryStats().Stats().SlowQueries)

	stats.QueryStats().Reset()
	assert.Zero(t, stats.QueryStats().Stats().AvgQueryDuration())
}

func TestDebugDriver(t *testing.T) {
	drv, mock := newMock(t, dialect.SQLite)
	ctx := context.Background()

	var lines []string
	debug := NewDebugDriver(drv, DebugWithLog(func(_ context.Context, v ...any) {
		for _, s := range v {
			lines = append(lines, s.(string))
		}
	}))
	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO "users" ("name") VALUES ('a')`).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, debug.BeginTransaction(ctx))
	require.NoError(t, debug.Insert(ctx, `INSERT INTO "users" ("name") VALUES ('a')`))
	require.NoError(t, debug.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
	assert.Equal(t, []string{
		"begin transaction",
		`insert: INSERT INTO "users" ("name") VALUES ('a') args: []`,
		"commit transaction",
	}, lines)
	assert.Equal(t, dialect.SQLite, debug.Dialect())
}

func TestStatsCollector(t *testing.T) {
	stats := &QueryStats{}
	stats.TotalQueries.Add(4)
	stats.Errors.Add(1)

	c := NewStatsCollector("app", stats)
	assert.Equal(t, 5, testutil.CollectAndCount(c))

	expected := `
# HELP app_db_queries_total Number of row returning queries executed.
# TYPE app_db_queries_total counter
app_db_queries_total 4
# HELP app_db_query_errors_total Number of failed statements.
# TYPE app_db_query_errors_total counter
app_db_query_errors_total 1
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"app_db_queries_total", "app_db_query_errors_total"))
}
