package repository

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/model"
)

// userColumns whitelists the JSON field names clients may filter, sort
// or project by, mapped to their column names.
var userColumns = map[string]string{
	"id":            "id",
	"email":         "email",
	"username":      "username",
	"role":          "role",
	"status":        "status",
	"last_login_at": "last_login_at",
	"created_at":    "created_at",
	"updated_at":    "updated_at",
}

const userSelect = "SELECT id,email,username,password_hash,role,status,last_login_at,created_at,updated_at FROM users"

// UserRepo persists users in MySQL.
type UserRepo struct{ DB *sql.DB }

func NewUserRepo(db *sql.DB) *UserRepo { return &UserRepo{DB: db} }

// Create inserts a user and returns it with the assigned id. A unique
// index violation on email maps to ErrEmailExists so races between the
// application-level existence check and the insert stay correct.
func (r *UserRepo) Create(ctx context.Context, u model.User) (model.User, error) {
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	res, err := r.DB.ExecContext(ctx,
		"INSERT INTO users (email, username, password_hash, role, status) VALUES (?,?,?,?,?)",
		u.Email, u.Username, u.PasswordHash, u.Role, u.Status)
	if err != nil {
		if apperr.IsDuplicateEntry(err) {
			return model.User{}, ErrEmailExists
		}
		return model.User{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, err
	}
	return r.GetByID(ctx, uint64(id))
}

// GetByID fetches a user by id.
func (r *UserRepo) GetByID(ctx context.Context, id uint64) (model.User, error) {
	return r.scanOne(r.DB.QueryRowContext(ctx, userSelect+" WHERE id=? LIMIT 1", id))
}

// GetByEmail fetches a user by normalized email.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.scanOne(r.DB.QueryRowContext(ctx, userSelect+" WHERE email=? LIMIT 1", email))
}

// List returns one page of users for the given options.
func (r *UserRepo) List(ctx context.Context, opts QueryOptions) ([]model.User, error) {
	where, args, err := buildWhere(opts.Filter, userColumns)
	if err != nil {
		return nil, err
	}
	order, err := buildOrder(opts.Sort, userColumns)
	if err != nil {
		return nil, err
	}
	if order == "" {
		order = " ORDER BY id ASC" // stable pages need a deterministic order
	}
	args = append(args, opts.Limit, opts.Offset())

	rows, err := r.DB.QueryContext(ctx, userSelect+where+order+" LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]model.User, 0, opts.Limit)
	for rows.Next() {
		var u model.User
		if err := scanUser(rows, &u); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// Count returns the total number of users matching the filter,
// independent of pagination.
func (r *UserRepo) Count(ctx context.Context, filter map[string]any) (int64, error) {
	where, args, err := buildWhere(filter, userColumns)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM users"+where, args...).Scan(&n)
	return n, err
}

// UserPatch is a partial update; nil fields are left untouched.
type UserPatch struct {
	Email        *string
	Username     *string
	PasswordHash *string
	Role         *string
	Status       *string
}

// Update applies a patch. An email collision maps to ErrEmailExists;
// an empty patch is a no-op.
func (r *UserRepo) Update(ctx context.Context, id uint64, p UserPatch) error {
	var (
		sets []string
		args []any
	)
	if p.Email != nil {
		sets = append(sets, "email=?")
		args = append(args, strings.ToLower(strings.TrimSpace(*p.Email)))
	}
	if p.Username != nil {
		sets = append(sets, "username=?")
		args = append(args, *p.Username)
	}
	if p.PasswordHash != nil {
		sets = append(sets, "password_hash=?")
		args = append(args, *p.PasswordHash)
	}
	if p.Role != nil {
		sets = append(sets, "role=?")
		args = append(args, *p.Role)
	}
	if p.Status != nil {
		sets = append(sets, "status=?")
		args = append(args, *p.Status)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := r.DB.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+", updated_at=NOW() WHERE id=?", args...)
	if err != nil && apperr.IsDuplicateEntry(err) {
		return ErrEmailExists
	}
	return err
}

// UpdateLastLogin stamps a successful login.
func (r *UserRepo) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE users SET last_login_at=? WHERE id=?", at.UTC(), id)
	return err
}

// Delete removes a user. Missing rows surface as sql.ErrNoRows so the
// service can answer 404.
func (r *UserRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.DB.ExecContext(ctx, "DELETE FROM users WHERE id=?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

type rowScanner interface{ Scan(dest ...any) error }

func (r *UserRepo) scanOne(row rowScanner) (model.User, error) {
	var u model.User
	if err := scanUser(row, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

func scanUser(row rowScanner, u *model.User) error {
	return row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&u.Role, &u.Status, &u.LastLoginAt, &u.CreatedAt, &u.UpdatedAt)
}
