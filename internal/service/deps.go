// Package service holds the business logic between the HTTP handlers
// and the persistence/cache layers. Services depend on small interfaces
// so tests can swap the MySQL and Redis implementations for in-memory
// fakes.
package service

import (
	"context"
	"time"

	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/token"
)

// UserStore is the persistence surface services need for users.
// *repository.UserRepo implements it.
type UserStore interface {
	Create(ctx context.Context, u model.User) (model.User, error)
	GetByID(ctx context.Context, id uint64) (model.User, error)
	GetByEmail(ctx context.Context, email string) (model.User, error)
	List(ctx context.Context, opts repository.QueryOptions) ([]model.User, error)
	Count(ctx context.Context, filter map[string]any) (int64, error)
	Update(ctx context.Context, id uint64, p repository.UserPatch) error
	UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error
	Delete(ctx context.Context, id uint64) error
}

// AuditStore records and reads audit entries. *repository.AuditRepo
// implements it.
type AuditStore interface {
	Insert(ctx context.Context, e model.AuditLog) (model.AuditLog, error)
	ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error)
}

// EventPublisher delivers domain events. *queue.Publisher implements it.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.UserEvent) error
}

// TokenIssuer is the token service surface the auth flows use.
// *token.Service implements it.
type TokenIssuer interface {
	GenerateTokens(ctx context.Context, user model.User) (token.Pair, error)
	IssueAccessToken(ctx context.Context, user model.User) (string, time.Time, error)
	Verify(ctx context.Context, raw string) (*token.Claims, error)
	Revoke(ctx context.Context, jti string, ttl time.Duration) error
	RevokeAllForUser(ctx context.Context, userID uint64) error
	RemainingTTL(claims *token.Claims) time.Duration
}
