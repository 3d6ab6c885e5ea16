package dialect

import "context"

// Dialect names.
const (
	MySQL    = "mysql"
	Postgres = "postgres"
	SQLite   = "sqlite"
)

// Row is one result row keyed by column name.
type Row = map[string]any

// Driver is the capability contract of a live database connection.
type Driver interface {
	// Dialect returns the dialect name of the connection.
	Dialect() string

	// Escape renders v as an SQL literal that is safe to embed in a value
	// position. With binary set, byte slices are rendered as binary literals.
	Escape(v any, binary bool) (string, error)

	// Statement executes a statement that returns no rows.
	Statement(ctx context.Context, query string, args ...any) error
	// Select runs a query and returns all its rows.
	Select(ctx context.Context, query string, args ...any) ([]Row, error)
	// SelectOne runs a query and returns its first row, or nil.
	SelectOne(ctx context.Context, query string, args ...any) (Row, error)
	// Insert executes an INSERT and records the last inserted id.
	Insert(ctx context.Context, query string, args ...any) error
	// Update executes an UPDATE and returns the number of affected rows.
	Update(ctx context.Context, query string, args ...any) (int64, error)
	// Delete executes a DELETE and returns the number of affected rows.
	Delete(ctx context.Context, query string, args ...any) (int64, error)
	// AffectingStatement executes a statement and returns the number of
	// affected rows.
	AffectingStatement(ctx context.Context, query string, args ...any) (int64, error)

	// LastInsertID reports the id generated by the last successful insert.
	LastInsertID() int64
	// AffectedRows reports the row count of the last affecting statement.
	AffectedRows() int64

	BeginTransaction(ctx context.Context) error
	Commit() error
	Rollback() error
	InTransaction() bool

	// Error returns "[code] message" for the last failed statement, or
	// an empty string.
	Error() string
	ErrorCode() int
	ErrorMessage() string

	Close() error
}
