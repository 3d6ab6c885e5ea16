package sql

import (
	"database/sql/driver"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/aguaragazu/mate-framework"
)

// sqlStateError is implemented by errors that carry a SQLSTATE code
// (pq.Error, pgx).
type sqlStateError interface {
	SQLState() string
}

// errorCoder is implemented by modernc.org/sqlite errors.
type errorCoder interface {
	Code() int
}

// PostgreSQL SQLSTATE codes for constraint violations (Class 23).
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers for constraint violations.
const (
	mysqlDuplicateEntry         = 1062
	mysqlForeignKeyParent       = 1451 // Cannot delete or update a parent row
	mysqlForeignKeyChild        = 1452 // Cannot add or update a child row
	mysqlCheckConstraintViolate = 3819
)

// IsConstraintError returns true if the error resulted from a database constraint violation.
func IsConstraintError(err error) bool {
	return mate.IsConstraintError(err) ||
		IsUniqueConstraintError(err) ||
		IsForeignKeyConstraintError(err) ||
		IsCheckConstraintError(err)
}

// IsUniqueConstraintError reports if the error resulted from a DB uniqueness constraint violation.
// e.g. duplicate value in unique index.
func IsUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if state, ok := sqlState(err); ok && state == pgUniqueViolation {
		return true
	}
	if num, ok := mysqlNumber(err); ok && num == mysqlDuplicateEntry {
		return true
	}
	return containsAny(err.Error(),
		"Error 1062",                 // MySQL (string fallback)
		"violates unique constraint", // Postgres (string fallback)
		"UNIQUE constraint failed",   // SQLite
	)
}

// IsForeignKeyConstraintError reports if the error resulted from a database foreign-key constraint violation.
// e.g. parent row does not exist.
func IsForeignKeyConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if state, ok := sqlState(err); ok && state == pgForeignKeyViolation {
		return true
	}
	if num, ok := mysqlNumber(err); ok && (num == mysqlForeignKeyParent || num == mysqlForeignKeyChild) {
		return true
	}
	return containsAny(err.Error(),
		"Error 1451",
		"Error 1452",
		"violates foreign key constraint",
		"FOREIGN KEY constraint failed",
	)
}

// IsCheckConstraintError reports if the error resulted from a database check constraint violation.
func IsCheckConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if state, ok := sqlState(err); ok && state == pgCheckViolation {
		return true
	}
	if num, ok := mysqlNumber(err); ok && num == mysqlCheckConstraintViolate {
		return true
	}
	return containsAny(err.Error(),
		"Error 3819",
		"violates check constraint",
		"CHECK constraint failed",
	)
}

// classify wraps constraint violations in a mate.ConstraintError.
func classify(err error) error {
	if err == nil || mate.IsConstraintError(err) {
		return err
	}
	if IsUniqueConstraintError(err) || IsForeignKeyConstraintError(err) || IsCheckConstraintError(err) {
		return mate.NewConstraintError(errorMessage(err), err)
	}
	return err
}

// errorCode extracts the engine specific numeric code of err. SQLSTATE codes
// holding letters report -1.
func errorCode(err error) int {
	if err == nil {
		return 0
	}
	if num, ok := mysqlNumber(err); ok {
		return int(num)
	}
	if state, ok := sqlState(err); ok {
		if n, err := strconv.Atoi(state); err == nil {
			return n
		}
		return -1
	}
	if e, ok := asError[errorCoder](err); ok {
		return e.Code()
	}
	return -1
}

// errorMessage returns the engine message of err without driver prefixes.
func errorMessage(err error) string {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Message
	}
	var pe *pq.Error
	if errors.As(err, &pe) {
		return pe.Message
	}
	var qe *mate.QueryError
	if errors.As(err, &qe) && qe.Err != nil {
		return qe.Err.Error()
	}
	return err.Error()
}

// causedByLostConnection reports whether err means the server connection is gone.
func causedByLostConnection(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	return containsAny(strings.ToLower(err.Error()),
		"server has gone away",
		"no connection to the server",
		"lost connection",
		"is dead or not enabled",
		"error while sending",
		"decryption failed or bad record mac",
		"server closed the connection unexpectedly",
		"ssl connection has been closed unexpectedly",
		"connection reset by peer",
		"broken pipe",
		"connection refused",
	)
}

func sqlState(err error) (string, bool) {
	var pe *pq.Error
	if errors.As(err, &pe) {
		return string(pe.Code), true
	}
	if e, ok := asError[sqlStateError](err); ok {
		return e.SQLState(), true
	}
	return "", false
}

func mysqlNumber(err error) (uint16, bool) {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number, true
	}
	return 0, false
}

// asError attempts to extract an error implementing interface T from the error chain.
func asError[T any](err error) (T, bool) {
	var target T
	for err != nil {
		if e, ok := err.(T); ok {
			return e, true
		}
		err = errors.Unwrap(err)
	}
	return target, false
}

// containsAny returns true if s contains any of the substrings.
func containsAny(s string, substrings ...string) bool {
	for _, sub := range substrings {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
