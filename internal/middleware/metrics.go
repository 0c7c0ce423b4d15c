package middleware

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/metrics"
)

// Metrics observes every request: a counter by method, route template
// and status class, plus a latency histogram. The route template keeps
// cardinality bounded; raw paths with ids never reach the labels.
func Metrics(rec *metrics.Collector) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			// The error handler has not run yet, so classify returned
			// errors here to label the final status.
			status := c.Response().Status
			if err != nil {
				if ae, ok := apperr.As(err); ok {
					status = ae.Status
				} else if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else {
					status = 500
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			rec.RecordRequest(c.Request().Method, route, status, time.Since(start))
			return err
		}
	}
}
