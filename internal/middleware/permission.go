package middleware

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/authz"
)

// RequirePermission rejects callers whose token does not carry every
// listed permission. The admin wildcard satisfies any requirement.
// Authenticate must run earlier in the chain.
func RequirePermission(required ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			held, ok := c.Get("permissions").([]string)
			if !ok {
				return apperr.Authentication("")
			}
			if !authz.Allows(held, required...) {
				return apperr.Authorization("")
			}
			return next(c)
		}
	}
}

// RequireRole restricts a route to the listed roles.
func RequireRole(roles ...string) echo.MiddlewareFunc {
	allowed := make(map[string]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			role, ok := c.Get("role").(string)
			if !ok || !allowed[role] {
				return apperr.Authorization("")
			}
			return next(c)
		}
	}
}
