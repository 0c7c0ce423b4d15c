package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/metrics"
	"github.com/iliyamo/account-service/internal/service"
)

// AuthHandler exposes registration, login and the token lifecycle.
type AuthHandler struct {
	auth  *service.AuthService
	users *service.UserService
	rec   *metrics.Collector
}

// NewAuthHandler wires the auth endpoints. rec may be nil.
func NewAuthHandler(auth *service.AuthService, users *service.UserService, rec *metrics.Collector) *AuthHandler {
	return &AuthHandler{auth: auth, users: users, rec: rec}
}

type loginReq struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshReq struct {
	RefreshToken string `json:"refresh_token"`
}

// Register creates an account with the default role and returns its
// public projection.
func (h *AuthHandler) Register(c echo.Context) error {
	var req service.RegisterInput
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	user, err := h.auth.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	if h.rec != nil {
		h.rec.RecordRegistration()
	}
	return respond(c, http.StatusCreated, user)
}

// Login verifies credentials and returns the token pair plus the user.
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginReq
	if err := c.Bind(&req); err != nil {
		return apperr.Validation("Invalid request body", nil)
	}
	res, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		if h.rec != nil {
			h.rec.RecordLoginFailure()
		}
		return err
	}
	if h.rec != nil {
		h.rec.RecordLogin()
	}
	return respond(c, http.StatusOK, res)
}

// Refresh exchanges a refresh token for a fresh access token. The
// refresh token stays valid and is not rotated.
func (h *AuthHandler) Refresh(c echo.Context) error {
	var req refreshReq
	if err := c.Bind(&req); err != nil || req.RefreshToken == "" {
		return apperr.Validation("refresh_token is required", nil)
	}
	res, err := h.auth.Refresh(c.Request().Context(), req.RefreshToken)
	if err != nil {
		return err
	}
	if h.rec != nil {
		h.rec.RecordTokenRefresh()
	}
	return respond(c, http.StatusOK, res)
}

// Logout revokes the access token used on this request.
func (h *AuthHandler) Logout(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	claims, err := currentClaims(c)
	if err != nil {
		return err
	}
	if err := h.auth.Logout(c.Request().Context(), uid, claims); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Logged out"})
}

// LogoutAll revokes every live session of the caller.
func (h *AuthHandler) LogoutAll(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	if err := h.auth.LogoutAll(c.Request().Context(), uid); err != nil {
		return err
	}
	return respond(c, http.StatusOK, echo.Map{"message": "Logged out everywhere"})
}

// Me returns the caller's own profile.
func (h *AuthHandler) Me(c echo.Context) error {
	uid, err := currentUserID(c)
	if err != nil {
		return err
	}
	user, err := h.users.GetByID(c.Request().Context(), uid)
	if err != nil {
		return err
	}
	return respond(c, http.StatusOK, user)
}
