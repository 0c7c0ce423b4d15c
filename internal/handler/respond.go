// Package handler contains the HTTP layer: request decoding, calls
// into the services and the uniform response envelope. Handlers never
// render errors themselves; they return classified errors and the
// central error handler shapes the envelope.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
)

// ListMeta is the pagination block attached to list responses.
type ListMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// NewListMeta derives the page count from the filtered total.
func NewListMeta(page, limit int, total int64) ListMeta {
	pages := 0
	if limit > 0 {
		pages = int((total + int64(limit) - 1) / int64(limit))
	}
	return ListMeta{Page: page, Limit: limit, Total: total, TotalPages: pages}
}

// respond writes a success envelope: {"data": ...}.
func respond(c echo.Context, status int, data any) error {
	return c.JSON(status, echo.Map{"data": data})
}

// respondList writes a success envelope with pagination meta.
func respondList(c echo.Context, data any, meta ListMeta) error {
	return c.JSON(http.StatusOK, echo.Map{"data": data, "meta": meta})
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type errorMeta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
	Path      string    `json:"path"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
	Meta  errorMeta `json:"meta"`
}

// NewHTTPErrorHandler renders every error through one envelope:
// {"error": {code, message, details?}, "meta": {timestamp, request_id,
// path}}. Unclassified errors and echo's own errors are mapped onto the
// taxonomy first. Causes of internal errors are logged, never rendered.
func NewHTTPErrorHandler(log *slog.Logger) echo.HTTPErrorHandler {
	if log == nil {
		log = slog.Default()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		ae, ok := apperr.As(err)
		if !ok {
			var he *echo.HTTPError
			if errors.As(err, &he) {
				ae = fromEchoError(he)
			} else {
				ae = apperr.Internal(err)
			}
		}

		reqID := c.Response().Header().Get(echo.HeaderXRequestID)
		if ae.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				"method", c.Request().Method,
				"path", c.Request().URL.Path,
				"request_id", reqID,
				"err", err,
			)
		}

		env := errorEnvelope{
			Error: errorBody{Code: ae.Code, Message: ae.Message, Details: ae.Details},
			Meta: errorMeta{
				Timestamp: time.Now().UTC(),
				RequestID: reqID,
				Path:      c.Request().URL.Path,
			},
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(ae.Status)
		} else {
			err = c.JSON(ae.Status, env)
		}
		if err != nil {
			log.Error("error response write failed", "err", err)
		}
	}
}

func fromEchoError(he *echo.HTTPError) *apperr.Error {
	msg, _ := he.Message.(string)
	switch he.Code {
	case http.StatusNotFound:
		return &apperr.Error{Status: he.Code, Code: apperr.CodeNotFound, Message: "Resource not found"}
	case http.StatusMethodNotAllowed:
		return &apperr.Error{Status: he.Code, Code: apperr.CodeValidation, Message: "Method not allowed"}
	case http.StatusUnauthorized:
		return apperr.Authentication(msg)
	case http.StatusTooManyRequests:
		return apperr.RateLimited(msg)
	default:
		if msg == "" {
			msg = http.StatusText(he.Code)
		}
		if he.Code >= 500 {
			return &apperr.Error{Status: he.Code, Code: apperr.CodeInternal, Message: "An unexpected error occurred"}
		}
		return &apperr.Error{Status: he.Code, Code: apperr.CodeValidation, Message: msg}
	}
}
