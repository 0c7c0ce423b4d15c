// Package apperr defines the application error taxonomy. Every error
// that crosses the service boundary carries a stable machine-readable
// code and an HTTP status, so the single HTTP error handler can render
// a uniform envelope without inspecting error strings.
package apperr

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// Stable error codes exposed to clients.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeAuthentication = "AUTHENTICATION_ERROR"
	CodeAuthorization  = "AUTHORIZATION_ERROR"
	CodeNotFound       = "NOT_FOUND"
	CodeConflict       = "CONFLICT"
	CodeRateLimited    = "RATE_LIMIT_EXCEEDED"
	CodeInternal       = "INTERNAL_ERROR"
)

// Error is a classified application error.
type Error struct {
	Status  int    // HTTP status to respond with
	Code    string // stable machine-readable code
	Message string // human-readable message
	Details any    // optional structured details (validation issues etc.)
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// WithCause attaches an underlying error for logging. The cause is
// never rendered to clients.
func (e *Error) WithCause(err error) *Error {
	e.cause = err
	return e
}

// Validation signals a malformed or semantically invalid request (400).
func Validation(message string, details any) *Error {
	return &Error{Status: 400, Code: CodeValidation, Message: message, Details: details}
}

// Authentication signals failed or missing credentials (401). The
// message is intentionally generic so callers cannot distinguish an
// unknown account from a bad password.
func Authentication(message string) *Error {
	if message == "" {
		message = "Authentication failed"
	}
	return &Error{Status: 401, Code: CodeAuthentication, Message: message}
}

// Authorization signals a permission failure (403).
func Authorization(message string) *Error {
	if message == "" {
		message = "Permission denied"
	}
	return &Error{Status: 403, Code: CodeAuthorization, Message: message}
}

// NotFound signals a missing resource (404).
func NotFound(resource string) *Error {
	return &Error{Status: 404, Code: CodeNotFound, Message: resource + " not found"}
}

// Conflict signals a state conflict such as a duplicate unique key (409).
func Conflict(message string) *Error {
	return &Error{Status: 409, Code: CodeConflict, Message: message}
}

// RateLimited signals request throttling (429).
func RateLimited(message string) *Error {
	if message == "" {
		message = "Too many requests"
	}
	return &Error{Status: 429, Code: CodeRateLimited, Message: message}
}

// Internal wraps an unclassified error (500). Details stay server-side.
func Internal(err error) *Error {
	return &Error{Status: 500, Code: CodeInternal, Message: "An unexpected error occurred", cause: err}
}

// mysqlDuplicateEntry is the MySQL error number for a unique key violation.
const mysqlDuplicateEntry = 1062

// IsDuplicateEntry reports whether err is a MySQL unique constraint
// violation. The unique index is the authoritative guard for
// check-then-act sequences such as email uniqueness.
func IsDuplicateEntry(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// FromStore classifies a storage error: missing rows become NotFound,
// duplicate keys become Conflict, anything else is Internal.
func FromStore(err error, resource string) *Error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return NotFound(resource)
	case IsDuplicateEntry(err):
		return Conflict(resource + " already exists")
	default:
		return Internal(err)
	}
}

// As extracts an *Error from err if present.
func As(err error) (*Error, bool) {
	var ae *Error
	ok := errors.As(err, &ae)
	return ae, ok
}
