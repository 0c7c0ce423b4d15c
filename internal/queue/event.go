// Package queue publishes and consumes domain events over RabbitMQ.
// Events are fire-and-forget from the caller's point of view: a failed
// publish is logged and never rolls back the mutation that produced it.
package queue

import "time"

// UserEventsQueue is the durable queue carrying all user domain events.
const UserEventsQueue = "user.events"

// Event types emitted by the service layer.
const (
	EventUserCreated         = "user.created"
	EventUserUpdated         = "user.updated"
	EventUserDeleted         = "user.deleted"
	EventUserLogin           = "user.login"
	EventUserLogout          = "user.logout"
	EventUserPasswordChanged = "user.password_changed"
	EventUserEmailChanged    = "user.email_changed"
	EventUserStatusChanged   = "user.status_changed"
)

// UserEvent is the payload for every user domain event. It carries
// enough context for downstream consumers (welcome mail, security
// alerts, analytics) without querying the primary database.
type UserEvent struct {
	Type       string            `json:"type"`
	UserID     uint64            `json:"user_id"`
	ActorID    uint64            `json:"actor_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}
