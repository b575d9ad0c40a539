// Package apperr defines the error taxonomy shared by the services and the
// HTTP layer. Every error returned by a service matches exactly one sentinel
// through errors.Is.
package apperr

import (
	"errors"
	"fmt"

	"github.com/diewo77/go-workshop/internal/validation"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

// Sentinel kinds.
var (
	ErrValidation           = errors.New("validation failed")
	ErrReferentialIntegrity = errors.New("referenced by other records")
	ErrConflict             = errors.New("conflict")
	ErrNotFound             = errors.New("not found")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrStorage              = errors.New("storage failure")
)

// Error carries a kind, a human-readable message, optional field violations
// and the underlying cause.
type Error struct {
	Kind       error
	Msg        string
	Violations validation.Violations
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Err }

// Validation wraps field violations.
func Validation(v validation.Violations) error {
	return &Error{Kind: ErrValidation, Msg: "validation failed", Violations: v}
}

// Field is a shortcut for a single-field validation error.
func Field(field, code string) error {
	return Validation(validation.Violations{field: code})
}

func NotFound(entity string, id any) error {
	return &Error{Kind: ErrNotFound, Msg: fmt.Sprintf("%s %v not found", entity, id)}
}

func Conflict(format string, args ...any) error {
	return &Error{Kind: ErrConflict, Msg: fmt.Sprintf(format, args...)}
}

func AlreadyClosed(format string, args ...any) error {
	return &Error{Kind: ErrAlreadyClosed, Msg: fmt.Sprintf(format, args...)}
}

// Referenced reports that entity id cannot be removed while by still points at it.
func Referenced(entity string, id uint, by string) error {
	return &Error{Kind: ErrReferentialIntegrity, Msg: fmt.Sprintf("cannot delete %s %d: in use by %s", entity, id, by)}
}

// Storage classifies a persistence error. Errors that already belong to the
// taxonomy pass through untouched.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &Error{Kind: ErrNotFound, Msg: op, Err: err}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &Error{Kind: ErrConflict, Msg: op, Err: err}
	case isLockTimeout(err):
		return &Error{Kind: ErrConflict, Msg: op + ": lock wait timeout, retry", Err: err}
	}
	return &Error{Kind: ErrStorage, Msg: op, Err: err}
}

// postgres lock_not_available and query_canceled (statement/lock timeout).
func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "55P03" || pgErr.Code == "57014"
	}
	return false
}

// ViolationsOf extracts field violations from a validation error.
func ViolationsOf(err error) validation.Violations {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Violations
	}
	return nil
}
