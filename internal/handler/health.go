package handler

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Health states reported by the aggregate endpoint.
const (
	statusHealthy   = "healthy"
	statusDegraded  = "degraded"
	statusUnhealthy = "unhealthy"
)

// HealthHandler reports liveness and dependency readiness. The
// database is a hard dependency; Redis is soft because the service
// runs degraded on the in-memory fallback without it.
type HealthHandler struct {
	db      *sql.DB
	redis   *redis.Client
	started time.Time
}

// NewHealthHandler wires the health endpoints. redis may be nil when
// the service started on the in-memory fallback.
func NewHealthHandler(db *sql.DB, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{db: db, redis: rdb, started: time.Now()}
}

// Health reports the aggregate state and per-dependency checks. A dead
// database yields 503; a dead Redis only degrades the report.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{}
	status := statusHealthy

	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "down"
		status = statusUnhealthy
	} else {
		checks["database"] = "up"
	}

	switch {
	case h.redis == nil:
		checks["redis"] = "disabled"
		if status == statusHealthy {
			status = statusDegraded
		}
	case h.redis.Ping(ctx).Err() != nil:
		checks["redis"] = "down"
		if status == statusHealthy {
			status = statusDegraded
		}
	default:
		checks["redis"] = "up"
	}

	code := http.StatusOK
	if status == statusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, echo.Map{
		"status":         status,
		"checks":         checks,
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	})
}

// Liveness only proves the process is serving requests.
func (h *HealthHandler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "alive"})
}

// Readiness gates load balancer traffic on the hard dependencies.
func (h *HealthHandler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := h.db.PingContext(ctx); err != nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "not ready"})
	}
	return c.JSON(http.StatusOK, echo.Map{"status": "ready"})
}
