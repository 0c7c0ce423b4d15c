// Package middleware provides the request processing chain: token
// authentication, permission checks, rate limiting and per-request
// metrics.
package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/token"
)

// TokenVerifier validates a raw bearer token. *token.Service
// implements it.
type TokenVerifier interface {
	Verify(ctx context.Context, raw string) (*token.Claims, error)
}

// Authenticate validates the Bearer access token and stores the
// caller's identity in the request context under "user_id", "role",
// "permissions" and "claims". Refresh tokens are rejected here; they
// are only accepted by the refresh endpoint body.
func Authenticate(tokens TokenVerifier) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			auth := c.Request().Header.Get(echo.HeaderAuthorization)
			if !strings.HasPrefix(auth, "Bearer ") {
				return apperr.Authentication("Missing bearer token")
			}
			raw := strings.TrimPrefix(auth, "Bearer ")

			claims, err := tokens.Verify(c.Request().Context(), raw)
			if err != nil {
				if errors.Is(err, token.ErrRevokedToken) {
					return apperr.Authentication("Token has been revoked")
				}
				return apperr.Authentication("Invalid token")
			}
			if claims.TokenType != token.TypeAccess {
				return apperr.Authentication("Invalid token type")
			}
			uid, err := claims.UserID()
			if err != nil {
				return apperr.Authentication("Invalid token")
			}

			c.Set("user_id", uid)
			c.Set("role", claims.Role)
			c.Set("permissions", claims.Permissions)
			c.Set("claims", claims)
			return next(c)
		}
	}
}
