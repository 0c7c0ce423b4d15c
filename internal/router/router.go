// Package router maps the HTTP surface onto the handlers and hangs
// the middleware chain in the right order.
package router

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/iliyamo/account-service/internal/authz"
	"github.com/iliyamo/account-service/internal/handler"
	"github.com/iliyamo/account-service/internal/metrics"
	"github.com/iliyamo/account-service/internal/middleware"
	"github.com/iliyamo/account-service/internal/model"
)

// Handlers bundles everything the route table needs.
type Handlers struct {
	Auth   *handler.AuthHandler
	Users  *handler.UserHandler
	Health *handler.HealthHandler
	Tokens middleware.TokenVerifier
	// Gatherer backs the /metrics scrape endpoint.
	Gatherer prometheus.Gatherer
}

// Register wires every route. Health and metrics live outside the API
// prefix so probes and scrapers do not pass the auth or rate limit
// chain.
func Register(e *echo.Echo, h Handlers) {
	e.GET("/health", h.Health.Health)
	e.GET("/liveness", h.Health.Liveness)
	e.GET("/readiness", h.Health.Readiness)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler(h.Gatherer)))

	api := e.Group("/api/v1")

	auth := api.Group("/auth")
	auth.POST("/register", h.Auth.Register)
	auth.POST("/login", h.Auth.Login)
	auth.POST("/refresh-token", h.Auth.Refresh)

	session := api.Group("/auth", middleware.Authenticate(h.Tokens))
	session.POST("/logout", h.Auth.Logout)
	session.POST("/logout-all", h.Auth.LogoutAll)
	session.GET("/me", h.Auth.Me)

	users := api.Group("/users", middleware.Authenticate(h.Tokens))
	users.GET("", h.Users.List, middleware.RequirePermission(authz.UserRead))
	users.POST("", h.Users.Create, middleware.RequireRole(model.RoleAdmin))
	users.GET("/:id", h.Users.Get)
	users.PATCH("/:id", h.Users.Update)
	users.DELETE("/:id", h.Users.Delete, middleware.RequireRole(model.RoleAdmin))
	users.POST("/:id/password", h.Users.ChangePassword)
	users.POST("/:id/email", h.Users.ChangeEmail)
	users.POST("/:id/status", h.Users.ChangeStatus, middleware.RequireRole(model.RoleAdmin))
	users.GET("/:id/audit", h.Users.AuditTrail, middleware.RequireRole(model.RoleAdmin))
}
