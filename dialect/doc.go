// Package dialect defines the database driver contract consumed by the query
// builder and the record layer.
//
// # Supported Dialects
//
// Each dialect is identified by a constant string:
//
//	dialect.MySQL    = "mysql"
//	dialect.Postgres = "postgres"
//	dialect.SQLite   = "sqlite"
//
// The dialect decides identifier quoting, LIMIT syntax and the upsert form
// the query builder emits. The builder's public contract does not change
// between dialects.
//
// # Driver Interface
//
// Driver is the capability set a connection must offer:
//
//	type Driver interface {
//	    Dialect() string
//	    Escape(v any, binary bool) (string, error)
//	    Statement(ctx context.Context, query string, args ...any) error
//	    Select(ctx context.Context, query string, args ...any) ([]Row, error)
//	    ...
//	    BeginTransaction(ctx context.Context) error
//	    Commit() error
//	    Rollback() error
//	    LastInsertID() int64
//	    Error() string
//	    ErrorCode() int
//	    ErrorMessage() string
//	    Close() error
//	}
//
// Escape must return a complete SQL literal. Whatever the input, the output
// embedded in a value position can never terminate the surrounding literal.
// Strings holding a NUL byte or invalid UTF-8 are rejected.
//
// # Transactions
//
// A driver holds at most one open transaction. While it is open every
// statement issued through the driver belongs to it. A nested
// BeginTransaction fails with mate.ErrTxStarted.
//
// # Usage
//
// Opening a database connection:
//
//	import (
//	    "github.com/aguaragazu/mate-framework/dialect"
//	    "github.com/aguaragazu/mate-framework/dialect/sql"
//	)
//
//	drv, err := sql.Open(dialect.MySQL, "user:pass@tcp(localhost:3306)/app")
//	if err != nil {
//	    return err
//	}
//	defer drv.Close()
//
// Schema migrations run their DDL through the same Statement entry point used
// for every other statement.
package dialect
