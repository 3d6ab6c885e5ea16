// Package sql implements dialect.Driver on top of database/sql.
//
// # Connecting
//
// Connect builds the DSN for a protocol, opens the pool and pings it:
//
//	drv, err := sql.Connect(ctx, sql.ConnectOptions{
//	    Protocol: "mysql",
//	    Host:     "127.0.0.1",
//	    Port:     3306,
//	    Database: "app",
//	    Username: "root",
//	    Password: "secret",
//	})
//
// Supported protocols are mysql/mariadb (go-sql-driver/mysql), pgsql/postgres
// (lib/pq) and sqlite (modernc.org/sqlite). An unknown protocol fails with
// mate.ErrInvalidProtocol, a failed ping with mate.ErrConnectionFailure.
//
// Open and OpenDB wrap an existing DSN or *sql.DB:
//
//	drv := sql.OpenDB(dialect.MySQL, db)
//
// # Escaping
//
// The query builder embeds values as literals. Escape renders them per
// dialect:
//
//	drv.Escape("O'Reilly", false) // 'O''Reilly'
//	drv.Escape(nil, false)        // NULL
//	drv.Escape(true, false)       // 1 (TRUE on postgres)
//	drv.Escape([]byte{1}, true)   // X'01'
//
// Strings with NUL bytes or invalid UTF-8 are rejected.
//
// # Diagnostics
//
// Every failed statement is returned as a *mate.QueryError carrying the SQL
// and its bindings. Constraint violations are wrapped in a
// mate.ConstraintError and can be told apart with IsUniqueConstraintError,
// IsForeignKeyConstraintError and IsCheckConstraintError. Error, ErrorCode and
// ErrorMessage describe the last statement run through the driver.
//
// # Decorators
//
// StatsDriver counts statements and reports slow ones, DebugDriver logs every
// statement through log/slog, and StatsCollector exposes the counters to
// Prometheus:
//
//	stats := sql.NewStatsDriver(drv, sql.WithSlowQueryLog())
//	prometheus.MustRegister(sql.NewStatsCollector("app", stats.QueryStats()))
//
// CacheDriver answers repeated SELECTs from a mate.Cache until the next
// write through the same driver:
//
//	cached := sql.NewCacheDriver(stats, redisCache, sql.WithCacheTTL(time.Minute))
//
// # Query Log
//
//	drv.EnableQueryLog()
//	// ... run queries ...
//	for _, q := range drv.QueryLog() {
//	    fmt.Println(q.Query, q.Duration)
//	}
package sql
