package service

import (
	"context"
	"database/sql"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
)

// asAppErr unwraps err to the classified error, or nil.
func asAppErr(err error) *apperr.Error {
	ae, _ := apperr.As(err)
	return ae
}

// fakeUserStore is an in-memory UserStore keyed by id.
type fakeUserStore struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]model.User

	// gets counts GetByID calls so cache tests can assert the store
	// was not consulted on a hit.
	gets int
	// failUpdate makes Update return this error when set.
	failUpdate error
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{nextID: 1, users: make(map[uint64]model.User)}
}

func (f *fakeUserStore) Create(ctx context.Context, u model.User) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.users {
		if existing.Email == u.Email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	u.ID = f.nextID
	f.nextID++
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	f.users[u.ID] = u
	return u, nil
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uint64) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	u, ok := f.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (f *fakeUserStore) GetByEmail(ctx context.Context, email string) (model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (f *fakeUserStore) List(ctx context.Context, opts repository.QueryOptions) ([]model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	all := f.matching(opts.Filter)
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := opts.Offset()
	if start >= len(all) {
		return nil, nil
	}
	end := start + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (f *fakeUserStore) Count(ctx context.Context, filter map[string]any) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.matching(filter))), nil
}

// matching applies equality filters on status and role, which is all
// the tests exercise.
func (f *fakeUserStore) matching(filter map[string]any) []model.User {
	var out []model.User
	for _, u := range f.users {
		if v, ok := filter["status"]; ok && u.Status != v {
			continue
		}
		if v, ok := filter["role"]; ok && u.Role != v {
			continue
		}
		out = append(out, u)
	}
	return out
}

func (f *fakeUserStore) Update(ctx context.Context, id uint64, p repository.UserPatch) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return f.failUpdate
	}
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	if p.Email != nil {
		for oid, other := range f.users {
			if oid != id && other.Email == *p.Email {
				return repository.ErrEmailExists
			}
		}
		u.Email = *p.Email
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	u.UpdatedAt = time.Now().UTC()
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.LastLoginAt = sql.NullTime{Time: at, Valid: true}
	f.users[id] = u
	return nil
}

func (f *fakeUserStore) Delete(ctx context.Context, id uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.users, id)
	return nil
}

func patchStatus(s *string) repository.UserPatch { return repository.UserPatch{Status: s} }

// fakeAuditStore records inserted entries.
type fakeAuditStore struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (f *fakeAuditStore) Insert(ctx context.Context, e model.AuditLog) (model.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return e, nil
}

func (f *fakeAuditStore) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.AuditLog
	for i := len(f.entries) - 1; i >= 0; i-- {
		e := f.entries[i]
		if e.Resource == resource && e.ResourceID == resourceID {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeAuditStore) all() []model.AuditLog {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.AuditLog(nil), f.entries...)
}

// fakeEvents records published domain events.
type fakeEvents struct {
	mu     sync.Mutex
	events []queue.UserEvent
}

func (f *fakeEvents) Publish(ctx context.Context, ev queue.UserEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeEvents) types() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Type)
	}
	return out
}
