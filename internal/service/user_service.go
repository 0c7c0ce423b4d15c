package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/cache"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
)

// resourceUser names the entity in cache keys and audit entries.
const resourceUser = "user"

// projectableFields are the JSON names clients may select with the
// fields parameter.
var projectableFields = map[string]bool{
	"id": true, "email": true, "username": true, "role": true,
	"status": true, "last_login_at": true, "created_at": true, "updated_at": true,
}

// UserService is the cache-aside CRUD service over the users resource.
// Every read goes through the cache; every mutation writes an audit
// entry, invalidates the affected keys and emits a domain event. Audit
// and event failures are logged and never fail the mutation: the store
// commit is authoritative.
type UserService struct {
	users      UserStore
	audit      AuditStore
	cache      *cache.Manager
	events     EventPublisher
	bcryptCost int
	entityTTL  time.Duration
	listTTL    time.Duration
	log        *slog.Logger
}

// NewUserService wires the user CRUD flows.
func NewUserService(users UserStore, audit AuditStore, c *cache.Manager, events EventPublisher,
	bcryptCost int, entityTTL, listTTL time.Duration, log *slog.Logger) *UserService {
	if log == nil {
		log = slog.Default()
	}
	if entityTTL <= 0 {
		entityTTL = time.Hour
	}
	if listTTL <= 0 {
		listTTL = 5 * time.Minute
	}
	return &UserService{
		users: users, audit: audit, cache: c, events: events,
		bcryptCost: bcryptCost, entityTTL: entityTTL, listTTL: listTTL, log: log,
	}
}

// GetByID returns the public projection of a user, serving from cache
// when possible and repopulating it on a miss.
func (s *UserService) GetByID(ctx context.Context, id uint64) (model.PublicUser, error) {
	key := cache.EntityKey(resourceUser, id)
	var cached model.PublicUser
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	u, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, apperr.FromStore(err, "User")
	}
	pub := u.Public()
	s.cache.Set(ctx, key, pub, s.entityTTL)
	return pub, nil
}

// ListResult is one cached page of users plus the filter-wide total.
type ListResult struct {
	Items []map[string]any `json:"items"`
	Total int64            `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

// List returns a page of users. The whole result (items plus total) is
// cached as a unit keyed by the serialized option set, and tagged so
// any user mutation drops every cached listing at once.
func (s *UserService) List(ctx context.Context, opts repository.QueryOptions) (ListResult, error) {
	opts.Normalize()
	for _, f := range opts.Fields {
		if !projectableFields[f] {
			return ListResult{}, apperr.Validation("Unknown field: "+f, nil)
		}
	}

	key := cache.ListKey(resourceUser, opts.CacheKey())
	var cached ListResult
	if s.cache.Get(ctx, key, &cached) {
		return cached, nil
	}

	items, err := s.users.List(ctx, opts)
	if err != nil {
		return ListResult{}, listError(err)
	}
	total, err := s.users.Count(ctx, opts.Filter)
	if err != nil {
		return ListResult{}, listError(err)
	}

	res := ListResult{Items: make([]map[string]any, 0, len(items)), Total: total, Page: opts.Page, Limit: opts.Limit}
	for _, u := range items {
		m, err := projectUser(u.Public(), opts.Fields)
		if err != nil {
			return ListResult{}, apperr.Internal(err)
		}
		res.Items = append(res.Items, m)
	}

	s.cache.Set(ctx, key, res, s.listTTL, cache.ListTag(resourceUser))
	return res, nil
}

// CreateUserInput is the payload for the admin create operation.
type CreateUserInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Status   string `json:"status"`
}

// Create inserts a user, audits the creation and primes the entity
// cache so an immediate read is served without a store round trip.
func (s *UserService) Create(ctx context.Context, in CreateUserInput, actorID uint64) (model.PublicUser, error) {
	reg := RegisterInput{Email: in.Email, Username: in.Username, Password: in.Password}
	if err := reg.validate(); err != nil {
		return model.PublicUser{}, err
	}
	if in.Role == "" {
		in.Role = model.RoleUser
	}
	if in.Status == "" {
		in.Status = model.StatusActive
	}
	if !model.ValidRole(in.Role) {
		return model.PublicUser{}, apperr.Validation("Unknown role: "+in.Role, nil)
	}
	if !model.ValidStatus(in.Status) {
		return model.PublicUser{}, apperr.Validation("Unknown status: "+in.Status, nil)
	}

	hash, err := hashPassword(reg.Password, s.bcryptCost)
	if err != nil {
		return model.PublicUser{}, apperr.Internal(err)
	}
	u, err := s.users.Create(ctx, model.User{
		Email:        reg.Email,
		Username:     reg.Username,
		PasswordHash: hash,
		Role:         in.Role,
		Status:       in.Status,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.PublicUser{}, apperr.Conflict("Email already exists")
		}
		return model.PublicUser{}, apperr.Internal(err)
	}

	pub := u.Public()
	s.writeAudit(ctx, actorID, model.AuditCreate, u.ID, nil, &pub, nil)
	s.cache.Set(ctx, cache.EntityKey(resourceUser, u.ID), pub, s.entityTTL)
	s.cache.InvalidateByTags(ctx, cache.ListTag(resourceUser))
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserCreated, UserID: u.ID, ActorID: actorID, Email: u.Email})
	return pub, nil
}

// UpdateUserInput is a partial update; nil fields are untouched.
type UpdateUserInput struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	Status   *string `json:"status"`
}

// Update patches a user, audits old/new values and refreshes the
// caches so a follow-up read never sees the stale entity.
func (s *UserService) Update(ctx context.Context, id uint64, in UpdateUserInput, actorID uint64) (model.PublicUser, error) {
	old, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, apperr.FromStore(err, "User")
	}

	patch := repository.UserPatch{Username: in.Username}
	if in.Email != nil {
		e := strings.ToLower(strings.TrimSpace(*in.Email))
		if e == "" || !strings.Contains(e, "@") {
			return model.PublicUser{}, apperr.Validation("email must be a valid address", nil)
		}
		patch.Email = &e
	}
	if in.Username != nil && (len(*in.Username) < 3 || len(*in.Username) > 50) {
		return model.PublicUser{}, apperr.Validation("username must be 3-50 characters", nil)
	}
	if in.Status != nil {
		if !model.ValidStatus(*in.Status) {
			return model.PublicUser{}, apperr.Validation("Unknown status: "+*in.Status, nil)
		}
		patch.Status = in.Status
	}

	if err := s.users.Update(ctx, id, patch); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.PublicUser{}, apperr.Conflict("Email already exists")
		}
		return model.PublicUser{}, apperr.Internal(err)
	}
	updated, err := s.users.GetByID(ctx, id)
	if err != nil {
		return model.PublicUser{}, apperr.FromStore(err, "User")
	}

	oldPub, newPub := old.Public(), updated.Public()
	s.writeAudit(ctx, actorID, model.AuditUpdate, id, &oldPub, &newPub, nil)
	s.refreshEntityCache(ctx, id, newPub)
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserUpdated, UserID: id, ActorID: actorID, Email: updated.Email})
	return newPub, nil
}

// Delete removes a user, audits the prior value and drops the caches.
func (s *UserService) Delete(ctx context.Context, id uint64, actorID uint64) error {
	old, err := s.users.GetByID(ctx, id)
	if err != nil {
		return apperr.FromStore(err, "User")
	}
	if err := s.users.Delete(ctx, id); err != nil {
		return apperr.FromStore(err, "User")
	}

	oldPub := old.Public()
	s.writeAudit(ctx, actorID, model.AuditDelete, id, &oldPub, nil, nil)
	s.cache.Invalidate(ctx, cache.EntityKey(resourceUser, id))
	s.cache.InvalidateByTags(ctx, cache.ListTag(resourceUser))
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserDeleted, UserID: id, ActorID: actorID, Email: old.Email})
	return nil
}

// ChangePassword verifies the current password before storing the new
// hash. Password values never appear in the audit entry.
func (s *UserService) ChangePassword(ctx context.Context, userID uint64, oldPassword, newPassword string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.FromStore(err, "User")
	}
	if !verifyPassword(u.PasswordHash, oldPassword) {
		return apperr.Validation("Current password is incorrect", nil)
	}
	if len(newPassword) < 8 || len(newPassword) > 100 {
		return apperr.Validation("password must be 8-100 characters", nil)
	}

	hash, err := hashPassword(newPassword, s.bcryptCost)
	if err != nil {
		return apperr.Internal(err)
	}
	if err := s.users.Update(ctx, userID, repository.UserPatch{PasswordHash: &hash}); err != nil {
		return apperr.Internal(err)
	}

	s.writeAudit(ctx, userID, model.AuditUpdate, userID, nil, nil,
		map[string]string{"fields": "password"})
	s.cache.Invalidate(ctx, cache.EntityKey(resourceUser, userID))
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserPasswordChanged, UserID: userID, ActorID: userID})
	return nil
}

// ChangeEmail verifies the password, enforces email uniqueness and
// updates the address.
func (s *UserService) ChangeEmail(ctx context.Context, userID uint64, newEmail, password string) error {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.FromStore(err, "User")
	}
	if !verifyPassword(u.PasswordHash, password) {
		return apperr.Validation("Password is incorrect", nil)
	}
	newEmail = strings.ToLower(strings.TrimSpace(newEmail))
	if newEmail == "" || !strings.Contains(newEmail, "@") {
		return apperr.Validation("email must be a valid address", nil)
	}
	if _, err := s.users.GetByEmail(ctx, newEmail); err == nil {
		return apperr.Validation("Email already exists", nil)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return apperr.Internal(err)
	}

	if err := s.users.Update(ctx, userID, repository.UserPatch{Email: &newEmail}); err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return apperr.Conflict("Email already exists")
		}
		return apperr.Internal(err)
	}

	s.writeAudit(ctx, userID, model.AuditUpdate, userID, nil, nil,
		map[string]string{"fields": "email", "old_email": u.Email, "new_email": newEmail})
	s.cache.Invalidate(ctx, cache.EntityKey(resourceUser, userID))
	s.cache.InvalidateByTags(ctx, cache.ListTag(resourceUser))
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserEmailChanged, UserID: userID, ActorID: userID,
		Email: newEmail, Metadata: map[string]string{"old_email": u.Email}})
	return nil
}

// ChangeStatus sets the account status. Admin-only at the HTTP layer;
// the acting admin is recorded in the audit trail.
func (s *UserService) ChangeStatus(ctx context.Context, userID uint64, status string, adminID uint64) error {
	if !model.ValidStatus(status) {
		return apperr.Validation("Unknown status: "+status, nil)
	}
	old, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return apperr.FromStore(err, "User")
	}
	if err := s.users.Update(ctx, userID, repository.UserPatch{Status: &status}); err != nil {
		return apperr.Internal(err)
	}

	s.writeAudit(ctx, adminID, model.AuditUpdate, userID, nil, nil,
		map[string]string{"fields": "status", "old_status": old.Status, "new_status": status})
	s.cache.Invalidate(ctx, cache.EntityKey(resourceUser, userID))
	s.cache.InvalidateByTags(ctx, cache.ListTag(resourceUser))
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserStatusChanged, UserID: userID, ActorID: adminID,
		Metadata: map[string]string{"old_status": old.Status, "new_status": status}})
	return nil
}

// AuditTrail returns the newest audit entries recorded for a user.
func (s *UserService) AuditTrail(ctx context.Context, userID uint64, limit int) ([]model.AuditLog, error) {
	entries, err := s.audit.ListByResource(ctx, resourceUser, strconv.FormatUint(userID, 10), limit)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return entries, nil
}

// refreshEntityCache replaces the entity key and drops the listings.
func (s *UserService) refreshEntityCache(ctx context.Context, id uint64, pub model.PublicUser) {
	s.cache.Invalidate(ctx, cache.EntityKey(resourceUser, id))
	s.cache.Set(ctx, cache.EntityKey(resourceUser, id), pub, s.entityTTL)
	s.cache.InvalidateByTags(ctx, cache.ListTag(resourceUser))
}

// writeAudit records a mutation. Failures are logged only; the store
// commit has already decided the operation's outcome.
func (s *UserService) writeAudit(ctx context.Context, actorID uint64, action string, resourceID uint64,
	oldVal, newVal *model.PublicUser, metadata map[string]string) {
	entry := model.AuditLog{
		UserID:     actorID,
		Action:     action,
		Resource:   resourceUser,
		ResourceID: strconv.FormatUint(resourceID, 10),
	}
	var err error
	if entry.OldValue, err = marshalOrNil(oldVal); err != nil {
		s.log.Error("audit marshal failed", "err", err)
		return
	}
	if entry.NewValue, err = marshalOrNil(newVal); err != nil {
		s.log.Error("audit marshal failed", "err", err)
		return
	}
	if metadata != nil {
		if entry.Metadata, err = json.Marshal(metadata); err != nil {
			s.log.Error("audit marshal failed", "err", err)
			return
		}
	}
	if _, err := s.audit.Insert(ctx, entry); err != nil {
		s.log.Error("audit write failed", "action", action, "resource_id", entry.ResourceID, "err", err)
	}
}

func (s *UserService) emit(ctx context.Context, ev queue.UserEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	_ = s.events.Publish(ctx, ev)
}

func marshalOrNil(u *model.PublicUser) ([]byte, error) {
	if u == nil {
		return nil, nil
	}
	return json.Marshal(u)
}

// projectUser narrows a public user to the requested fields. The id is
// always included so items stay addressable.
func projectUser(u model.PublicUser, fields []string) (map[string]any, error) {
	raw, err := json.Marshal(u)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return m, nil
	}
	keep := map[string]bool{"id": true}
	for _, f := range fields {
		keep[f] = true
	}
	for k := range m {
		if !keep[k] {
			delete(m, k)
		}
	}
	return m, nil
}

// listError distinguishes bad query options from real store failures.
func listError(err error) *apperr.Error {
	if errors.Is(err, repository.ErrUnknownField) {
		return apperr.Validation(err.Error(), nil)
	}
	return apperr.Internal(err)
}
