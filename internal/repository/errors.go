// Package repository implements MySQL persistence for users and audit
// logs. Sentinel errors let the service layer classify failures without
// string matching; anything else propagates as an internal error.
package repository

import "errors"

// ErrEmailExists is returned when an insert or email change hits the
// unique index on users.email. The index, not the application-level
// lookup, is the authoritative uniqueness guard.
var ErrEmailExists = errors.New("email already exists")

// ErrUnknownField is returned when query options reference a column
// that is not whitelisted for filtering, sorting or projection.
var ErrUnknownField = errors.New("unknown field")
