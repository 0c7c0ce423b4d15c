package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/service"
)

// UserHandler exposes the CRUD surface over users. Listing, creation
// and deletion are admin-only; reads and profile updates allow the
// owner as well. Route-level middleware enforces the admin gates, the
// owner checks happen here.
type UserHandler struct {
	users *service.UserService
}

// NewUserHandler wires the user endpoints.
func NewUserHandler(users *service.UserService) *UserHandler {
	return &UserHandler{users: users}
}

// List returns a paginated, filterable page of users.
func (h *UserHandler) List(c echo.Context) error {
	opts, err := parseQueryOptions(c)
	if err != nil {
		return err
	}
	res, err := h.users.List(c.Request().Context(), opts)
	if err != nil {
		return err
	}
	return respondList(c, res.Items, NewListMeta(res.Page, res.Limit, res.Total))
}

// Get returns one user. Non-admins may only read themselves.
func (h *UserHandler) Get(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.requireSelfOrAdmin(c, id); err != nil {
		return err
	}
	user, err := h.users.GetByID(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user)
}

// Create inserts a user with an explicit role and status (admin-only).
func (h *UserHandler) Create(c echo.Context) error {
	var req service.CreateUserInput
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	actor, err := currentUserID(c)
	if err != nil {
		return err
	}
	user, err := h.users.Create(c.Request().Context(), req, actor)
	if err != nil {
		return err
	}
	return respond(c, http.StatusCreated, user)
}

// Update patches profile fields. Owners may rename themselves and
// change their email; status changes require admin.
func (h *UserHandler) Update(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := h.requireSelfOrAdmin(c, id); err != nil {
		return err
	}
	var req service.UpdateUserInput
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	if req.Status != nil && !isAdmin(c) {
		return apperr.Authorization("Only admins may change account status")
	}
	actor, err := currentUserID(c)
	if err != nil {
		return err
	}
	user, err := h.users.Update(c.Request().Context(), id, req, actor)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user)
}

// Delete removes a user (admin-only).
func (h *UserHandler) Delete(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := currentUserID(c)
	if err != nil {
		return err
	}
	if err := h.users.Delete(c.Request().Context(), id, actor); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

type changePasswordReq struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword verifies the current password and stores a new one.
// Only the account owner may call it; admins reset via Update flows.
func (h *UserHandler) ChangePassword(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	if uid != id {
		return apperr.Authorization("You may only change your own password")
	}
	var req changePasswordReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	if err := h.users.ChangePassword(c.Request().Context(), id, req.OldPassword, req.NewPassword); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Password changed"})
}

type changeEmailReq struct {
	NewEmail string `json:"new_email"`
	Password string `json:"password"`
}

// ChangeEmail updates the account email after a password check.
func (h *UserHandler) ChangeEmail(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	if uid != id {
		return apperr.Authorization("You may only change your own email")
	}
	var req changeEmailReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	if err := h.users.ChangeEmail(c.Request().Context(), id, req.NewEmail, req.Password); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Email changed"})
}

type changeStatusReq struct {
	Status string `json:"status"`
}

// ChangeStatus sets the account status (admin-only).
func (h *UserHandler) ChangeStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	actor, err := currentUserID(c)
	if err != nil {
		return err
	}
	var req changeStatusReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	if err := h.users.ChangeStatus(c.Request().Context(), id, req.Status, actor); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Status changed"})
}

// AuditTrail returns the newest audit entries for a user (admin-only).
func (h *UserHandler) AuditTrail(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	limit := 0
	if raw := c.QueryParam("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return apperr.Validation("limit must be a positive integer", nil)
		}
	}
	entries, err := h.users.AuditTrail(c.Request().Context(), id, limit)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, entries)
}

func (h *UserHandler) requireSelfOrAdmin(c echo.Context, id uint64) error {
	if isAdmin(c) {
		return nil
	}
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	if uid != id {
		return apperr.Authorization("")
	}
	return nil
}

func pathID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, apperr.Validation("id must be a positive integer", nil)
	}
	return id, nil
}

// parseQueryOptions decodes page, limit, sort, filter and fields from
// the query string. sort takes "field:asc|desc" pairs separated by
// commas; filter is a JSON object; fields is a comma-separated list.
func parseQueryOptions(c echo.Context) (repository.QueryOptions, error) {
	var opts repository.QueryOptions

	if raw := c.QueryParam("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, apperr.Validation("page must be a positive integer", nil)
		}
		opts.Page = n
	}
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return opts, apperr.Validation("limit must be a positive integer", nil)
		}
		opts.Limit = n
	}

	if raw := c.QueryParam("sort"); raw != "" {
		field, order, _ := strings.Cut(raw, ":")
		field = strings.TrimSpace(field)
		if field == "" {
			return opts, apperr.Validation("sort must be field:asc|desc", nil)
		}
		switch strings.ToLower(strings.TrimSpace(order)) {
		case "", repository.OrderAsc:
			order = repository.OrderAsc
		case repository.OrderDesc:
			order = repository.OrderDesc
		default:
			return opts, apperr.Validation("sort order must be asc or desc", nil)
		}
		opts.Sort = &repository.SortOption{Field: field, Order: order}
	}

	if raw := c.QueryParam("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &opts.Filter); err != nil {
			return opts, apperr.Validation("filter must be a JSON object", nil)
		}
	}

	if raw := c.QueryParam("fields"); raw != "" {
		for _, f := range strings.Split(raw, ",") {
			if f = strings.TrimSpace(f); f != "" {
				opts.Fields = append(opts.Fields, f)
			}
		}
	}
	return opts, nil
}
