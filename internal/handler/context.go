package handler

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/token"
)

// Context keys populated by the authentication middleware.
const (
	CtxUserID      = "user_id"
	CtxRole        = "role"
	CtxPermissions = "permissions"
	CtxClaims      = "claims"
)

func currentUserID(c echo.Context) (uint64, error) {
	id, ok := c.Get(CtxUserID).(uint64)
	if !ok || id == 0 {
		return 0, apperr.Authentication("")
	}
	return id, nil
}

func currentRole(c echo.Context) string {
	role, _ := c.Get(CtxRole).(string)
	return role
}

func currentClaims(c echo.Context) (*token.Claims, error) {
	claims, ok := c.Get(CtxClaims).(*token.Claims)
	if !ok || claims == nil {
		return nil, apperr.Authentication("")
	}
	return claims, nil
}

func isAdmin(c echo.Context) bool {
	return currentRole(c) == model.RoleAdmin
}
