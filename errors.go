package vireo

import (
	"errors"
	"fmt"
)

// Standard sentinel errors for common operations.
var (
	// ErrInvalidCursor is returned when a pagination cursor cannot be
	// decoded for the current ordering.
	ErrInvalidCursor = errors.New("vireo: invalid cursor")

	// ErrPagination is returned when a pagination argument violates the
	// configured bounds.
	ErrPagination = errors.New("vireo: invalid pagination argument")

	// ErrFieldNotFound is returned when a model has no field with the
	// requested accessor name.
	ErrFieldNotFound = errors.New("vireo: field not found")

	// ErrUnsupportedKind is returned when a field exists but its kind
	// cannot be used for the attempted operation.
	ErrUnsupportedKind = errors.New("vireo: unsupported field kind")
)

// InvalidCursorError reports a cursor that failed validation: malformed
// encoding, wrong component count, a non-string component, or a component
// that does not round-trip through its descriptor's parse function.
// It is user-facing and never a crash.
type InvalidCursorError struct {
	Cursor string // The raw cursor as received.
	Reason string // Why decoding failed.
}

// Error returns the error string.
func (e *InvalidCursorError) Error() string {
	return fmt.Sprintf("vireo: invalid cursor %q: %s", e.Cursor, e.Reason)
}

// Is reports whether the target error matches InvalidCursorError.
// This allows errors.Is(err, ErrInvalidCursor) to return true.
func (e *InvalidCursorError) Is(err error) bool {
	return err == ErrInvalidCursor
}

// NewInvalidCursorError returns a new InvalidCursorError.
func NewInvalidCursorError(cursor, reason string) *InvalidCursorError {
	return &InvalidCursorError{Cursor: cursor, Reason: reason}
}

// IsInvalidCursor returns true if the error is an InvalidCursorError.
func IsInvalidCursor(err error) bool {
	if err == nil {
		return false
	}
	var e *InvalidCursorError
	return errors.As(err, &e) || errors.Is(err, ErrInvalidCursor)
}

// PaginationError reports a pagination argument that is negative or exceeds
// the configured maximum. The message names the offending argument and the
// bound it violated.
type PaginationError struct {
	Arg   string // Argument name, e.g. "first" or "last".
	Value int    // The value that was supplied.
	Limit int    // The bound that was violated. Ignored when Value is negative.
}

// Error returns the error string.
func (e *PaginationError) Error() string {
	if e.Value < 0 {
		return fmt.Sprintf("vireo: argument %q must be a non-negative integer, got %d", e.Arg, e.Value)
	}
	return fmt.Sprintf("vireo: argument %q cannot be higher than %d, got %d", e.Arg, e.Limit, e.Value)
}

// Is reports whether the target error matches PaginationError.
func (e *PaginationError) Is(err error) bool {
	return err == ErrPagination
}

// NewPaginationError returns a new PaginationError.
func NewPaginationError(arg string, value, limit int) *PaginationError {
	return &PaginationError{Arg: arg, Value: value, Limit: limit}
}

// IsPagination returns true if the error is a PaginationError.
func IsPagination(err error) bool {
	if err == nil {
		return false
	}
	var e *PaginationError
	return errors.As(err, &e) || errors.Is(err, ErrPagination)
}

// FieldNotFoundError reports that a model has no field with the requested
// accessor name. It is distinct from UnsupportedKindError: the former means
// no such field exists, the latter means the field exists but its kind
// cannot serve the attempted operation.
type FieldNotFoundError struct {
	Model string // Model name. May be empty for schemaless records.
	Field string
}

// Error returns the error string.
func (e *FieldNotFoundError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("vireo: model %s has no field %q", e.Model, e.Field)
	}
	return fmt.Sprintf("vireo: no field %q", e.Field)
}

// Is reports whether the target error matches FieldNotFoundError.
func (e *FieldNotFoundError) Is(err error) bool {
	return err == ErrFieldNotFound
}

// NewFieldNotFoundError returns a new FieldNotFoundError.
func NewFieldNotFoundError(model, field string) *FieldNotFoundError {
	return &FieldNotFoundError{Model: model, Field: field}
}

// IsFieldNotFound returns true if the error is a FieldNotFoundError.
func IsFieldNotFound(err error) bool {
	if err == nil {
		return false
	}
	var e *FieldNotFoundError
	return errors.As(err, &e) || errors.Is(err, ErrFieldNotFound)
}

// UnsupportedKindError reports a field whose kind cannot be used for the
// attempted operation, such as batch-fetching a scalar.
type UnsupportedKindError struct {
	Model string
	Field string
	Kind  string
}

// Error returns the error string.
func (e *UnsupportedKindError) Error() string {
	return fmt.Sprintf("vireo: field %s.%s has unsupported kind %s", e.Model, e.Field, e.Kind)
}

// Is reports whether the target error matches UnsupportedKindError.
func (e *UnsupportedKindError) Is(err error) bool {
	return err == ErrUnsupportedKind
}

// NewUnsupportedKindError returns a new UnsupportedKindError.
func NewUnsupportedKindError(model, field, kind string) *UnsupportedKindError {
	return &UnsupportedKindError{Model: model, Field: field, Kind: kind}
}

// IsUnsupportedKind returns true if the error is an UnsupportedKindError.
func IsUnsupportedKind(err error) bool {
	if err == nil {
		return false
	}
	var e *UnsupportedKindError
	return errors.As(err, &e) || errors.Is(err, ErrUnsupportedKind)
}

// NotLoadedError represents an error when accessing a relation that was
// neither eagerly loaded nor populated by a batched fetch.
type NotLoadedError struct {
	edge string
}

// Error returns the error string.
func (e *NotLoadedError) Error() string {
	return fmt.Sprintf("vireo: relation %q was not loaded", e.edge)
}

// Edge returns the relation name.
func (e *NotLoadedError) Edge() string {
	return e.edge
}

// NewNotLoadedError returns a new NotLoadedError for the given relation name.
func NewNotLoadedError(edge string) *NotLoadedError {
	return &NotLoadedError{edge: edge}
}

// IsNotLoaded returns true if the error is a NotLoadedError.
func IsNotLoaded(err error) bool {
	if err == nil {
		return false
	}
	var e *NotLoadedError
	return errors.As(err, &e)
}

// QueryError wraps a storage-layer error with the model and operation that
// produced it.
type QueryError struct {
	Model string // Model being queried.
	Op    string // Operation, e.g. "select", "count", "batch".
	Err   error  // Underlying error.
}

// Error returns the error string.
func (e *QueryError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("vireo: querying %s (%s): %v", e.Model, e.Op, e.Err)
	}
	return fmt.Sprintf("vireo: querying %s: %v", e.Model, e.Err)
}

// Unwrap returns the underlying error.
func (e *QueryError) Unwrap() error {
	return e.Err
}

// NewQueryError returns a new QueryError.
func NewQueryError(model, op string, err error) *QueryError {
	return &QueryError{Model: model, Op: op, Err: err}
}

// IsQueryError returns true if the error is a QueryError.
func IsQueryError(err error) bool {
	if err == nil {
		return false
	}
	var e *QueryError
	return errors.As(err, &e)
}
