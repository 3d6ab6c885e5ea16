package sql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aguaragazu/mate-framework"
	"github.com/aguaragazu/mate-framework/dialect"
)

// validIdentifierRe validates SQL identifiers (alphanumeric, underscores, dots for schema.name)
var validIdentifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*$`)

// isValidIdentifier checks if the string is a valid SQL identifier.
func isValidIdentifier(s string) bool {
	return s != "" && len(s) <= 128 && validIdentifierRe.MatchString(s)
}

// escapeStringValue escapes a string value for safe use in SQL.
// It escapes both single quotes (by doubling) and backslashes (for MySQL compatibility).
func escapeStringValue(s string) string {
	// Fast path: if no escaping needed, return as-is
	if !strings.ContainsAny(s, `'\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "'", "''")
	return s
}

// Errors returned by Escape.
var (
	ErrNullByte       = errors.New("dialect/sql: escape: string contains a NUL byte")
	ErrInvalidUTF8    = errors.New("dialect/sql: escape: string is not valid UTF-8")
	ErrUnsupportedArg = errors.New("dialect/sql: escape: unsupported value type")
)

// Reconnector opens a fresh pool when the current connection was lost.
type Reconnector func(ctx context.Context) (*sql.DB, error)

// Option configures a Driver.
type Option func(*Driver)

// WithLogger sets the logger used for connection lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) { d.logger = l }
}

// WithReconnector installs a hook that is called once when a statement
// outside a transaction fails because the connection was lost. The statement
// is retried on the new pool.
func WithReconnector(r Reconnector) Option {
	return func(d *Driver) { d.reconnector = r }
}

// WithDatabaseName records the database name of the connection.
func WithDatabaseName(name string) Option {
	return func(d *Driver) { d.database = name }
}

// LoggedQuery is one entry of the driver query log.
type LoggedQuery struct {
	Query    string
	Args     []any
	Duration time.Duration
}

// Driver is a dialect.Driver implementation for SQL based databases.
type Driver struct {
	mu          sync.Mutex
	db          *sql.DB
	tx          *sql.Tx
	dialect     string
	database    string
	logger      *slog.Logger
	reconnector Reconnector

	lastID   int64
	affected int64
	lastErr  error

	logging bool
	queries []LoggedQuery
}

// NewDriver creates a new Driver over the given pool and dialect.
func NewDriver(dialect string, db *sql.DB, opts ...Option) *Driver {
	d := &Driver{db: db, dialect: dialect, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open wraps the database/sql.Open method and returns a Driver for the dialect.
func Open(dialect, source string, opts ...Option) (*Driver, error) {
	db, err := sql.Open(driverName(dialect), source)
	if err != nil {
		return nil, &mate.ConnectionError{Kind: mate.InvalidDriver, Protocol: dialect, Err: err}
	}
	return NewDriver(dialect, db, opts...), nil
}

// OpenDB wraps the given database/sql.DB method with a Driver.
func OpenDB(dialect string, db *sql.DB, opts ...Option) *Driver {
	return NewDriver(dialect, db, opts...)
}

// DB returns the underlying *sql.DB instance.
func (d *Driver) DB() *sql.DB {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db
}

// DatabaseName returns the database name given at connect time.
func (d *Driver) DatabaseName() string { return d.database }

// Dialect implements the dialect.Driver interface.
func (d *Driver) Dialect() string {
	for _, name := range []string{dialect.MySQL, dialect.SQLite, dialect.Postgres} {
		if strings.HasPrefix(d.dialect, name) {
			return name
		}
	}
	return d.dialect
}

// Close closes the underlying connection pool.
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logger.Debug("closing database connection", "dialect", d.dialect, "database", d.database)
	if d.tx != nil {
		_ = d.tx.Rollback()
		d.tx = nil
	}
	return d.db.Close()
}

// Escape implements the dialect.Driver interface. The result is a complete
// literal: strings are quoted, NULL and numbers are bare.
func (d *Driver) Escape(v any, binary bool) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return d.escapeString(v)
	case []byte:
		if binary {
			return d.escapeBinary(v), nil
		}
		return d.escapeString(string(v))
	case bool:
		return d.escapeBool(v), nil
	case int:
		return strconv.FormatInt(int64(v), 10), nil
	case int8:
		return strconv.FormatInt(int64(v), 10), nil
	case int16:
		return strconv.FormatInt(int64(v), 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case uint:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint8:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint16:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint32:
		return strconv.FormatUint(uint64(v), 10), nil
	case uint64:
		return strconv.FormatUint(v, 10), nil
	case float32:
		return escapeFloat(float64(v))
	case float64:
		return escapeFloat(v)
	case time.Time:
		return "'" + v.Format("2006-01-02 15:04:05") + "'", nil
	case driver.Valuer:
		dv, err := v.Value()
		if err != nil {
			return "", fmt.Errorf("dialect/sql: escape: %w", err)
		}
		return d.Escape(dv, binary)
	case fmt.Stringer:
		return d.escapeString(v.String())
	}
	// Named types such as `type Status string` or `type ID int64`.
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return d.escapeString(rv.String())
	case reflect.Bool:
		return d.escapeBool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	case reflect.Float32, reflect.Float64:
		return escapeFloat(rv.Float())
	case reflect.Pointer:
		if rv.IsNil() {
			return "NULL", nil
		}
		return d.Escape(rv.Elem().Interface(), binary)
	}
	return "", fmt.Errorf("%w %T", ErrUnsupportedArg, v)
}

func (d *Driver) escapeString(s string) (string, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return "", ErrNullByte
	}
	if !utf8.ValidString(s) {
		return "", ErrInvalidUTF8
	}
	if d.Dialect() == dialect.MySQL {
		return "'" + escapeStringValue(s) + "'", nil
	}
	// Standard conforming strings: backslashes are literal.
	return "'" + strings.ReplaceAll(s, "'", "''") + "'", nil
}

func (d *Driver) escapeBool(b bool) string {
	switch {
	case d.Dialect() == dialect.Postgres && b:
		return "TRUE"
	case d.Dialect() == dialect.Postgres:
		return "FALSE"
	case b:
		return "1"
	default:
		return "0"
	}
}

func (d *Driver) escapeBinary(b []byte) string {
	if d.Dialect() == dialect.Postgres {
		return `'\x` + hex.EncodeToString(b) + "'"
	}
	return "X'" + hex.EncodeToString(b) + "'"
}

func escapeFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", fmt.Errorf("%w: non-finite float %v", ErrUnsupportedArg, f)
	}
	return strconv.FormatFloat(f, 'f', -1, 64), nil
}

// Statement implements the dialect.Driver interface.
func (d *Driver) Statement(ctx context.Context, query string, args ...any) error {
	return d.run(ctx, query, args, func(c Conn) error {
		_, err := c.exec(ctx, query, args)
		return err
	})
}

// Select implements the dialect.Driver interface.
func (d *Driver) Select(ctx context.Context, query string, args ...any) ([]dialect.Row, error) {
	var rows []dialect.Row
	err := d.run(ctx, query, args, func(c Conn) error {
		rs, err := c.query(ctx, query, args)
		if err != nil {
			return err
		}
		defer rs.Close()
		rows, err = ScanRows(rs)
		return err
	})
	return rows, err
}

// SelectOne implements the dialect.Driver interface.
func (d *Driver) SelectOne(ctx context.Context, query string, args ...any) (dialect.Row, error) {
	rows, err := d.Select(ctx, query, args...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return rows[0], nil
}

// Insert implements the dialect.Driver interface.
func (d *Driver) Insert(ctx context.Context, query string, args ...any) error {
	_, err := d.affecting(ctx, query, args, true)
	return err
}

// Update implements the dialect.Driver interface.
func (d *Driver) Update(ctx context.Context, query string, args ...any) (int64, error) {
	return d.affecting(ctx, query, args, false)
}

// Delete implements the dialect.Driver interface.
func (d *Driver) Delete(ctx context.Context, query string, args ...any) (int64, error) {
	return d.affecting(ctx, query, args, false)
}

// AffectingStatement implements the dialect.Driver interface.
func (d *Driver) AffectingStatement(ctx context.Context, query string, args ...any) (int64, error) {
	return d.affecting(ctx, query, args, false)
}

func (d *Driver) affecting(ctx context.Context, query string, args []any, insert bool) (int64, error) {
	var n int64
	err := d.run(ctx, query, args, func(c Conn) error {
		res, err := c.exec(ctx, query, args)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		if err != nil {
			n = 0
		}
		d.mu.Lock()
		d.affected = n
		if insert {
			// Postgres drivers do not support LastInsertId.
			if id, err := res.LastInsertId(); err == nil {
				d.lastID = id
			}
		}
		d.mu.Unlock()
		return nil
	})
	return n, err
}

// LastInsertID implements the dialect.Driver interface.
func (d *Driver) LastInsertID() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastID
}

// AffectedRows implements the dialect.Driver interface.
func (d *Driver) AffectedRows() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.affected
}

// BeginTransaction implements the dialect.Driver interface.
func (d *Driver) BeginTransaction(ctx context.Context) error {
	return d.BeginTx(ctx, nil)
}

// BeginTx starts a transaction with options.
func (d *Driver) BeginTx(ctx context.Context, opts *TxOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return mate.ErrTxStarted
	}
	tx, err := d.db.BeginTx(ctx, opts)
	if err != nil {
		d.lastErr = err
		return fmt.Errorf("dialect/sql: begin: %w", err)
	}
	d.tx = tx
	return nil
}

// Commit implements the dialect.Driver interface.
func (d *Driver) Commit() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return mate.ErrNoTransaction
	}
	err := d.tx.Commit()
	d.tx = nil
	if err != nil {
		d.lastErr = err
		return fmt.Errorf("dialect/sql: commit: %w", err)
	}
	return nil
}

// Rollback implements the dialect.Driver interface.
func (d *Driver) Rollback() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx == nil {
		return mate.ErrNoTransaction
	}
	err := d.tx.Rollback()
	d.tx = nil
	if err != nil {
		d.lastErr = err
		return fmt.Errorf("dialect/sql: rollback: %w", err)
	}
	return nil
}

// InTransaction implements the dialect.Driver interface.
func (d *Driver) InTransaction() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tx != nil
}

// Error implements the dialect.Driver interface.
func (d *Driver) Error() string {
	d.mu.Lock()
	err := d.lastErr
	d.mu.Unlock()
	if err == nil {
		return ""
	}
	return fmt.Sprintf("[%d] %s", errorCode(err), errorMessage(err))
}

// ErrorCode implements the dialect.Driver interface. It returns 0 when the
// last statement succeeded.
func (d *Driver) ErrorCode() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return errorCode(d.lastErr)
}

// ErrorMessage implements the dialect.Driver interface.
func (d *Driver) ErrorMessage() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lastErr == nil {
		return ""
	}
	return errorMessage(d.lastErr)
}

// EnableQueryLog starts recording every statement run through the driver.
func (d *Driver) EnableQueryLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logging = true
}

// DisableQueryLog stops recording statements. Recorded entries are kept.
func (d *Driver) DisableQueryLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logging = false
}

// QueryLog returns a copy of the recorded statements.
func (d *Driver) QueryLog() []LoggedQuery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]LoggedQuery(nil), d.queries...)
}

// FlushQueryLog drops the recorded statements.
func (d *Driver) FlushQueryLog() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queries = nil
}

// conn returns the connection statements currently run on.
func (d *Driver) conn() (Conn, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.tx != nil {
		return Conn{d.tx, d.dialect}, true
	}
	return Conn{d.db, d.dialect}, false
}

// run executes fn on the current connection, records diagnostics and the
// query log, and retries once through the reconnector on a lost connection.
func (d *Driver) run(ctx context.Context, query string, args []any, fn func(Conn) error) error {
	c, inTx := d.conn()
	start := time.Now()
	err := fn(c)
	if err != nil && !inTx && d.reconnector != nil && causedByLostConnection(err) {
		if rerr := d.reconnect(ctx); rerr != nil {
			err = errors.Join(err, rerr)
		} else {
			c, _ = d.conn()
			err = fn(c)
		}
	}
	d.mu.Lock()
	d.lastErr = err
	if d.logging {
		d.queries = append(d.queries, LoggedQuery{Query: query, Args: args, Duration: time.Since(start)})
	}
	d.mu.Unlock()
	if err != nil {
		return mate.NewQueryError(query, args, classify(err))
	}
	return nil
}

func (d *Driver) reconnect(ctx context.Context) error {
	d.logger.Warn("database connection lost, reconnecting", "dialect", d.dialect, "database", d.database)
	db, err := d.reconnector(ctx)
	if err != nil {
		return fmt.Errorf("dialect/sql: reconnect: %w", err)
	}
	d.mu.Lock()
	old := d.db
	d.db = db
	d.mu.Unlock()
	if old != nil && old != db {
		_ = old.Close()
	}
	return nil
}

// ScanRows reads all remaining rows into column keyed maps. Byte slices are
// copied into strings since drivers reuse their buffers.
func ScanRows(rows ColumnScanner) ([]dialect.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: scan: %w", err)
	}
	var result []dialect.Row
	for rows.Next() {
		values := make([]any, len(columns))
		dest := make([]any, len(columns))
		for i := range values {
			dest[i] = &values[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("dialect/sql: scan: %w", err)
		}
		row := make(dialect.Row, len(columns))
		for i, name := range columns {
			if b, ok := values[i].([]byte); ok {
				row[name] = string(b)
				continue
			}
			row[name] = values[i]
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dialect/sql: scan: %w", err)
	}
	return result, nil
}

// ctyVarsKey is the key used for attaching and reading the context variables.
type ctxVarsKey struct{}

// sessionVars holds sessions/transactions variables to set before every statement.
type sessionVars struct {
	vars []struct{ k, v string }
}

// WithVar returns a new context that holds the session variable to be executed before every query.
func WithVar(ctx context.Context, name, value string) context.Context {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	sv.vars = append(sv.vars, struct {
		k, v string
	}{
		k: name,
		v: value,
	})
	return context.WithValue(ctx, ctxVarsKey{}, sv)
}

// VarFromContext returns the session variable value from the context.
func VarFromContext(ctx context.Context, name string) (string, bool) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	for _, s := range sv.vars {
		if s.k == name {
			return s.v, true
		}
	}
	return "", false
}

// WithIntVar calls WithVar with the string representation of the value.
func WithIntVar(ctx context.Context, name string, value int) context.Context {
	return WithVar(ctx, name, strconv.Itoa(value))
}

// ExecQuerier wraps the standard Exec and Query methods.
type ExecQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Conn pairs an ExecQuerier (pool or transaction) with its dialect.
type Conn struct {
	ExecQuerier
	dialect string
}

func (c Conn) exec(ctx context.Context, query string, args []any) (res sql.Result, rerr error) {
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: set session vars: %w", err)
	}
	if cf != nil {
		defer func() { rerr = errors.Join(rerr, cf()) }()
	}
	res, err = ex.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: exec: %w", err)
	}
	return res, nil
}

func (c Conn) query(ctx context.Context, query string, args []any) (ColumnScanner, error) {
	ex, cf, err := c.maySetVars(ctx)
	if err != nil {
		return nil, fmt.Errorf("dialect/sql: query: set session vars: %w", err)
	}
	rows, err := ex.QueryContext(ctx, query, args...)
	if err != nil {
		if cf != nil {
			err = errors.Join(err, cf())
		}
		return nil, fmt.Errorf("dialect/sql: query: %w", err)
	}
	if cf != nil {
		return rowsWithCloser{rows, cf}, nil
	}
	return rows, nil
}

// maySetVars sets the session variables before executing a query.
func (c Conn) maySetVars(ctx context.Context) (ExecQuerier, func() error, error) {
	sv, _ := ctx.Value(ctxVarsKey{}).(sessionVars)
	if len(sv.vars) == 0 {
		return c, nil, nil
	}
	var (
		ex    ExecQuerier
		cf    func() error
		reset []string
		seen  = make(map[string]struct{}, len(sv.vars))
	)
	switch e := c.ExecQuerier.(type) {
	case *sql.Tx:
		ex = e
	case *sql.DB:
		conn, err := e.Conn(ctx)
		if err != nil {
			return nil, nil, err
		}
		ex, cf = conn, conn.Close
	default:
		return nil, nil, fmt.Errorf("unsupported ExecQuerier type: %T", c.ExecQuerier)
	}
	for _, s := range sv.vars {
		if !isValidIdentifier(s.k) {
			if cf != nil {
				_ = cf()
			}
			return nil, nil, fmt.Errorf("invalid session variable name: %q", s.k)
		}
		if _, ok := seen[s.k]; !ok {
			switch c.dialect {
			case dialect.Postgres:
				reset = append(reset, fmt.Sprintf("RESET %s", s.k))
			case dialect.MySQL:
				reset = append(reset, fmt.Sprintf("SET %s = NULL", s.k))
			}
			seen[s.k] = struct{}{}
		}
		if _, err := ex.ExecContext(ctx, fmt.Sprintf("SET %s = '%s'", s.k, escapeStringValue(s.v))); err != nil {
			if cf != nil {
				err = errors.Join(err, cf())
			}
			return nil, nil, err
		}
	}
	// Pooled connections go back with their variables reset, even when the
	// statement context was canceled.
	if cls := cf; cf != nil && len(reset) > 0 {
		cf = func() error {
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for _, q := range reset {
				if _, err := ex.ExecContext(cleanupCtx, q); err != nil {
					return errors.Join(err, cls())
				}
			}
			return cls()
		}
	}
	return ex, cf, nil
}

var _ dialect.Driver = (*Driver)(nil)

type (
	// Result is an alias to sql.Result.
	Result = sql.Result
	// TxOptions holds the transaction options to be used in DB.BeginTx.
	TxOptions = sql.TxOptions
)

// ColumnScanner is the interface that wraps the standard
// sql.Rows methods used for scanning database rows.
type ColumnScanner interface {
	Close() error
	Columns() ([]string, error)
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// rowsWithCloser wraps the ColumnScanner interface with a custom Close hook.
type rowsWithCloser struct {
	ColumnScanner
	closer func() error
}

// Close closes the underlying ColumnScanner and calls the custom closer.
func (r rowsWithCloser) Close() error {
	err := r.ColumnScanner.Close()
	return errors.Join(err, r.closer())
}
