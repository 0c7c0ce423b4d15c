package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/iliyamo/account-service/internal/model"
)

// AuditRepo appends to the audit_logs table. Entries are write-once;
// there is deliberately no update or delete.
type AuditRepo struct{ DB *sql.DB }

func NewAuditRepo(db *sql.DB) *AuditRepo { return &AuditRepo{DB: db} }

// Insert stores an audit entry, assigning id and timestamp if unset.
func (r *AuditRepo) Insert(ctx context.Context, e model.AuditLog) (model.AuditLog, error) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_value, new_value, metadata, created_at) VALUES (?,?,?,?,?,?,?,?,?)",
		e.ID, e.UserID, e.Action, e.Resource, e.ResourceID,
		nullableJSON(e.OldValue), nullableJSON(e.NewValue), nullableJSON(e.Metadata), e.CreatedAt)
	if err != nil {
		return model.AuditLog{}, err
	}
	return e, nil
}

// ListByResource returns the newest entries for one resource instance.
func (r *AuditRepo) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error) {
	if limit < 1 || limit > MaxLimit {
		limit = DefaultLimit
	}
	rows, err := r.DB.QueryContext(ctx,
		"SELECT id, user_id, action, resource, resource_id, old_value, new_value, metadata, created_at FROM audit_logs WHERE resource=? AND resource_id=? ORDER BY created_at DESC LIMIT ?",
		resource, resourceID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.AuditLog
	for rows.Next() {
		var (
			e                 model.AuditLog
			oldV, newV, metaV sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.UserID, &e.Action, &e.Resource, &e.ResourceID,
			&oldV, &newV, &metaV, &e.CreatedAt); err != nil {
			return nil, err
		}
		if oldV.Valid {
			e.OldValue = []byte(oldV.String)
		}
		if newV.Valid {
			e.NewValue = []byte(newV.String)
		}
		if metaV.Valid {
			e.Metadata = []byte(metaV.String)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// nullableJSON maps empty JSON payloads to SQL NULL.
func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
