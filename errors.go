// Package mate holds the error taxonomy shared by the query builder, the
// record layer and the database drivers.
package mate

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Standard sentinel errors for common operations.
var (
	// ErrNotFound is returned when a requested model does not exist.
	ErrNotFound = errors.New("mate: model not found")

	// ErrInvalidArguments is returned for malformed builder calls: wrong
	// arity, a disallowed operator, a negative limit and the like.
	ErrInvalidArguments = errors.New("mate: invalid arguments")

	// ErrConnectionFailure is returned when a connection cannot be established.
	ErrConnectionFailure = errors.New("mate: connection failure")

	// ErrInvalidProtocol is returned when a connection names an unknown protocol.
	ErrInvalidProtocol = errors.New("mate: invalid protocol")

	// ErrInvalidDriver is returned when no usable driver is registered for a protocol.
	ErrInvalidDriver = errors.New("mate: invalid driver")

	// ErrMassAssignment is matched by every MassAssignmentError.
	ErrMassAssignment = errors.New("mate: mass assignment")

	// ErrMath is matched by every MathError.
	ErrMath = errors.New("mate: math error")

	// ErrJSONEncoding is matched by every JSONEncodingError.
	ErrJSONEncoding = errors.New("mate: json encoding")

	// ErrTxStarted is returned when attempting to start a new transaction
	// within an existing transaction.
	ErrTxStarted = errors.New("mate: cannot start a transaction within a transaction")

	// ErrNoTransaction is returned by Commit and Rollback when no
	// transaction is in progress.
	ErrNoTransaction = errors.New("mate: no transaction in progress")
)

// InvalidArgumentsError describes a malformed call to the query builder.
type InvalidArgumentsError struct {
	Op     string // Builder method, e.g. "where" or "join"
	Reason string
}

// Error returns the error string.
func (e *InvalidArgumentsError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("mate: invalid arguments: %s", e.Reason)
	}
	return fmt.Sprintf("mate: invalid arguments for %s: %s", e.Op, e.Reason)
}

// Is reports whether the target error matches ErrInvalidArguments.
func (e *InvalidArgumentsError) Is(err error) bool {
	return err == ErrInvalidArguments
}

// NewInvalidArgumentsError returns a new InvalidArgumentsError for the given
// builder operation.
func NewInvalidArgumentsError(op, format string, args ...any) *InvalidArgumentsError {
	return &InvalidArgumentsError{Op: op, Reason: fmt.Sprintf(format, args...)}
}

// IsInvalidArguments returns true if the error is an InvalidArgumentsError.
func IsInvalidArguments(err error) bool {
	return err != nil && errors.Is(err, ErrInvalidArguments)
}

// ConnectionErrorKind classifies connect-time failures.
type ConnectionErrorKind uint8

// Connection error kinds.
const (
	ConnectionFailure ConnectionErrorKind = iota
	InvalidProtocol
	InvalidDriver
)

// ConnectionError is raised at connect time. It is fatal to the current unit
// of work.
type ConnectionError struct {
	Kind     ConnectionErrorKind
	Protocol string
	Err      error
}

// Error returns the error string.
func (e *ConnectionError) Error() string {
	switch e.Kind {
	case InvalidProtocol:
		return fmt.Sprintf("mate: invalid protocol %q", e.Protocol)
	case InvalidDriver:
		if e.Err != nil {
			return fmt.Sprintf("mate: invalid driver for protocol %q: %v", e.Protocol, e.Err)
		}
		return fmt.Sprintf("mate: invalid driver for protocol %q", e.Protocol)
	default:
		return fmt.Sprintf("mate: connection failure (%s): %v", e.Protocol, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Is matches the sentinel of the error kind.
func (e *ConnectionError) Is(err error) bool {
	switch e.Kind {
	case InvalidProtocol:
		return err == ErrInvalidProtocol
	case InvalidDriver:
		return err == ErrInvalidDriver
	default:
		return err == ErrConnectionFailure
	}
}

// IsConnectionError returns true if the error is a ConnectionError of any kind.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var e *ConnectionError
	return errors.As(err, &e)
}

// ModelNotFoundError is returned by the find-or-fail family. For batch
// lookups IDs holds exactly the identifiers that were not found.
type ModelNotFoundError struct {
	Model string
	IDs   []any
}

// Error returns the error string.
func (e *ModelNotFoundError) Error() string {
	if len(e.IDs) == 0 {
		return fmt.Sprintf("mate: no query results for model %s", e.Model)
	}
	ids := make([]string, len(e.IDs))
	for i, id := range e.IDs {
		ids[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("mate: no query results for model %s (ids=%s)", e.Model, strings.Join(ids, ", "))
}

// Is reports whether the target error matches ErrNotFound.
func (e *ModelNotFoundError) Is(err error) bool {
	return err == ErrNotFound
}

// NewModelNotFoundError returns a new ModelNotFoundError.
func NewModelNotFoundError(model string, ids ...any) *ModelNotFoundError {
	return &ModelNotFoundError{Model: model, IDs: ids}
}

// IsNotFound returns true if the error is a ModelNotFoundError.
func IsNotFound(err error) bool {
	return err != nil && errors.Is(err, ErrNotFound)
}

// MassAssignmentError names the attributes rejected by a guarded fill.
type MassAssignmentError struct {
	Model string
	Keys  []string
}

// Error returns the error string.
func (e *MassAssignmentError) Error() string {
	return fmt.Sprintf("mate: add [%s] to fillable property to allow mass assignment on %s",
		strings.Join(e.Keys, ", "), e.Model)
}

// Is reports whether the target error matches ErrMassAssignment.
func (e *MassAssignmentError) Is(err error) bool {
	return err == ErrMassAssignment
}

// NewMassAssignmentError returns a new MassAssignmentError with its keys sorted.
func NewMassAssignmentError(model string, keys ...string) *MassAssignmentError {
	keys = append([]string(nil), keys...)
	sort.Strings(keys)
	return &MassAssignmentError{Model: model, Keys: keys}
}

// IsMassAssignment returns true if the error is a MassAssignmentError.
func IsMassAssignment(err error) bool {
	return err != nil && errors.Is(err, ErrMassAssignment)
}

// MathError is returned when a value cannot be cast to a numeric type.
type MathError struct {
	Value  string // Offending input
	Target string // Cast target, e.g. "decimal:2"
	Err    error
}

// Error returns the error string.
func (e *MathError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("mate: unable to cast %q to %s", e.Value, e.Target)
	}
	return fmt.Sprintf("mate: unable to cast %q to %s: %v", e.Value, e.Target, e.Err)
}

// Unwrap returns the underlying error.
func (e *MathError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrMath.
func (e *MathError) Is(err error) bool {
	return err == ErrMath
}

// IsMathError returns true if the error is a MathError.
func IsMathError(err error) bool {
	return err != nil && errors.Is(err, ErrMath)
}

// JSONEncodingError is returned when a record cannot be encoded to JSON.
type JSONEncodingError struct {
	Model string
	Err   error
}

// Error returns the error string.
func (e *JSONEncodingError) Error() string {
	return fmt.Sprintf("mate: error encoding model [%s] to JSON: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *JSONEncodingError) Unwrap() error {
	return e.Err
}

// Is reports whether the target error matches ErrJSONEncoding.
func (e *JSONEncodingError) Is(err error) bool {
	return err == ErrJSONEncoding
}

// IsJSONEncodingError returns true if the error is a JSONEncodingError.
func IsJSONEncodingError(err error) bool {
	return err != nil && errors.Is(err, ErrJSONEncoding)
}

// NotLoadedError represents an error when reading a relation that was
// neither eager-loaded nor lazily resolved.
type NotLoadedError struct {
	relation string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("mate: relation %q was not loaded", e.relation)
}

// NewNotLoadedError returns a new NotLoadedError for the given relation name.
func NewNotLoadedError(relation string) *NotLoadedError {
	return &NotLoadedError{relation: relation}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// ConstraintError represents a database constraint violation error.
type ConstraintError struct {
	msg  string
	wrap error
}

// Error returns the error string.
func (e ConstraintError) Error() string {
	return fmt.Sprintf("mate: constraint failed: %s", e.msg)
}

// Unwrap returns the underlying error.
func (e ConstraintError) Unwrap() error {
	return e.wrap
}

// NewConstraintError returns a new ConstraintError with the given message.
func NewConstraintError(msg string, wrap error) error {
	return ConstraintError{msg: msg, wrap: wrap}
}

// IsConstraintError returns true if the error is a ConstraintError.
func IsConstraintError(err error) bool {
	if err == nil {
		return false
	}
	var e ConstraintError
	return errors.As(err, &e)
}

// QueryError carries the statement that failed together with its bindings.
type QueryError struct {
	Query string
	Args  []any
	Err   error
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if len(e.Args) == 0 {
		return fmt.Sprintf("mate: %v (SQL: %s)", e.Err, e.Query)
	}
	return fmt.Sprintf("mate: %v (SQL: %s, bindings: %v)", e.Err, e.Query, e.Args)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(query string, args []any, err error) *QueryError {
	return &QueryError{Query: query, Args: args, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}

// MutationError wraps a failed save or delete of a record.
type MutationError struct {
	Model string // Model name
	Op    string // Operation (e.g., "insert", "update", "delete")
	Err   error  // Underlying error
}

// Error returns the error string.
func (e *MutationError) Error() string {
	return fmt.Sprintf("mate: %s %s: %v", e.Op, e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *MutationError) Unwrap() error {
	return e.Err
}

// NewMutationError returns a new MutationError.
func NewMutationError(model, op string, err error) *MutationError {
	return &MutationError{Model: model, Op: op, Err: err}
}

// IsMutationError returns true if the error is a MutationError.
func IsMutationError(err error) bool {
	if err == nil {
		return false
	}
	var e *MutationError
	return errors.As(err, &e)
}

// RollbackError wraps an error that occurred during a transaction rollback.
type RollbackError struct {
	Err error // Original error that triggered rollback
}

// Error returns the error string.
func (e *RollbackError) Error() string {
	return fmt.Sprintf("mate: rollback failed: %v", e.Err)
}

// Unwrap returns the underlying error.
func (e *RollbackError) Unwrap() error {
	return e.Err
}

// AggregateError represents multiple errors collected during an operation.
type AggregateError struct {
	Errors []error
}

// Error returns the error string.
func (e *AggregateError) Error() string {
	if len(e.Errors) == 0 {
		return "mate: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var sb strings.Builder
	sb.WriteString("mate: multiple errors:")
	for i, err := range e.Errors {
		fmt.Fprintf(&sb, "\n  [%d] %v", i+1, err)
	}
	return sb.String()
}

// Unwrap returns the collected errors so errors.Is and errors.As inspect
// every one of them.
func (e *AggregateError) Unwrap() []error {
	return e.Errors
}

// NewAggregateError returns a new AggregateError if there are errors,
// otherwise returns nil.
func NewAggregateError(errs ...error) error {
	var filtered []error
	for _, err := range errs {
		if err != nil {
			filtered = append(filtered, err)
		}
	}
	if len(filtered) == 0 {
		return nil
	}
	if len(filtered) == 1 {
		return filtered[0]
	}
	return &AggregateError{Errors: filtered}
}
