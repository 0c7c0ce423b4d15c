package model

import (
	"encoding/json"
	"time"
)

// Audit actions recorded for mutating operations.
const (
	AuditCreate = "CREATE"
	AuditUpdate = "UPDATE"
	AuditDelete = "DELETE"
)

// AuditLog is an immutable record of a mutation: who did what to which
// resource, with the prior and new values captured as JSON. Entries are
// written once per mutating operation and never updated or deleted by
// the application.
type AuditLog struct {
	ID         string          `json:"id"`                  // audit_logs.id (uuid)
	UserID     uint64          `json:"user_id"`             // acting user
	Action     string          `json:"action"`              // CREATE | UPDATE | DELETE
	Resource   string          `json:"resource"`            // resource type, e.g. "user"
	ResourceID string          `json:"resource_id"`         // identifier of the mutated resource
	OldValue   json.RawMessage `json:"old_value,omitempty"` // state before the mutation (null for CREATE)
	NewValue   json.RawMessage `json:"new_value,omitempty"` // state after the mutation (null for DELETE)
	Metadata   json.RawMessage `json:"metadata,omitempty"`  // optional request context
	CreatedAt  time.Time       `json:"created_at"`
}
