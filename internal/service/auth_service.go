package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/iliyamo/account-service/internal/apperr"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/queue"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/token"
)

// invalidCredentials is the single message for every login failure.
// Unknown email, wrong password and non-active accounts must be
// indistinguishable to prevent user enumeration.
const invalidCredentials = "Invalid credentials"

// AuthService implements registration, login and the token lifecycle.
type AuthService struct {
	users      UserStore
	tokens     TokenIssuer
	events     EventPublisher
	bcryptCost int
	log        *slog.Logger
}

// NewAuthService wires the auth flows.
func NewAuthService(users UserStore, tokens TokenIssuer, events EventPublisher, bcryptCost int, log *slog.Logger) *AuthService {
	if log == nil {
		log = slog.Default()
	}
	return &AuthService{users: users, tokens: tokens, events: events, bcryptCost: bcryptCost, log: log}
}

// RegisterInput is the payload for Register.
type RegisterInput struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

func (in *RegisterInput) validate() *apperr.Error {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	var issues []string
	if in.Email == "" || !strings.Contains(in.Email, "@") {
		issues = append(issues, "email must be a valid address")
	}
	if len(in.Username) < 3 || len(in.Username) > 50 {
		issues = append(issues, "username must be 3-50 characters")
	}
	if len(in.Password) < 8 || len(in.Password) > 100 {
		issues = append(issues, "password must be 8-100 characters")
	}
	if len(issues) > 0 {
		return apperr.Validation("Invalid request data", issues)
	}
	return nil
}

// Register creates a user with the default role and status. The email
// lookup only produces a friendlier error; the unique index catches the
// race and maps to a conflict.
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (model.PublicUser, error) {
	if err := in.validate(); err != nil {
		return model.PublicUser{}, err
	}
	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		return model.PublicUser{}, apperr.Validation("Email already exists", nil)
	} else if !errors.Is(err, sql.ErrNoRows) {
		return model.PublicUser{}, apperr.Internal(err)
	}

	hash, err := hashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return model.PublicUser{}, apperr.Internal(err)
	}
	u, err := s.users.Create(ctx, model.User{
		Email:        in.Email,
		Username:     in.Username,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Status:       model.StatusActive,
	})
	if err != nil {
		if errors.Is(err, repository.ErrEmailExists) {
			return model.PublicUser{}, apperr.Conflict("Email already exists")
		}
		return model.PublicUser{}, apperr.Internal(err)
	}

	s.emit(ctx, queue.UserEvent{Type: queue.EventUserCreated, UserID: u.ID, Email: u.Email})
	return u.Public(), nil
}

// LoginResult is what a successful login returns.
type LoginResult struct {
	Tokens token.Pair       `json:"tokens"`
	User   model.PublicUser `json:"user"`
}

// Login verifies credentials and account status, issues a token pair
// and stamps the last login. All failure modes share one error.
func (s *AuthService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	u, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return LoginResult{}, apperr.Authentication(invalidCredentials)
		}
		return LoginResult{}, apperr.Internal(err)
	}
	if u.Status != model.StatusActive {
		return LoginResult{}, apperr.Authentication(invalidCredentials)
	}
	if !verifyPassword(u.PasswordHash, password) {
		return LoginResult{}, apperr.Authentication(invalidCredentials)
	}

	pair, err := s.tokens.GenerateTokens(ctx, u)
	if err != nil {
		return LoginResult{}, apperr.Internal(err)
	}
	if err := s.users.UpdateLastLogin(ctx, u.ID, time.Now().UTC()); err != nil {
		// Login already succeeded; a missed timestamp is not worth a 500.
		s.log.Error("update last login failed", "user_id", u.ID, "err", err)
	}

	s.emit(ctx, queue.UserEvent{Type: queue.EventUserLogin, UserID: u.ID, Email: u.Email})
	return LoginResult{Tokens: pair, User: u.Public()}, nil
}

// AccessResult carries the fresh access token from a refresh call.
type AccessResult struct {
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

// Refresh exchanges a valid refresh token for a new access token. The
// refresh token itself is not rotated.
func (s *AuthService) Refresh(ctx context.Context, raw string) (AccessResult, error) {
	claims, err := s.tokens.Verify(ctx, raw)
	if err != nil {
		return AccessResult{}, authError(err)
	}
	if claims.TokenType != token.TypeRefresh {
		return AccessResult{}, apperr.Authentication("Invalid token type")
	}
	uid, err := claims.UserID()
	if err != nil {
		return AccessResult{}, apperr.Authentication("Invalid token")
	}

	u, err := s.users.GetByID(ctx, uid)
	if err != nil || u.Status != model.StatusActive {
		return AccessResult{}, apperr.Authentication("User not found or inactive")
	}

	access, exp, err := s.tokens.IssueAccessToken(ctx, u)
	if err != nil {
		return AccessResult{}, apperr.Internal(err)
	}
	return AccessResult{AccessToken: access, AccessExpiresAt: exp}, nil
}

// Logout revokes the presented token's identifier for the remainder of
// its validity window.
func (s *AuthService) Logout(ctx context.Context, userID uint64, claims *token.Claims) error {
	if err := s.tokens.Revoke(ctx, claims.ID, s.tokens.RemainingTTL(claims)); err != nil {
		return apperr.Internal(err)
	}
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserLogout, UserID: userID})
	return nil
}

// LogoutAll revokes every live session of the user.
func (s *AuthService) LogoutAll(ctx context.Context, userID uint64) error {
	if err := s.tokens.RevokeAllForUser(ctx, userID); err != nil {
		return apperr.Internal(err)
	}
	s.emit(ctx, queue.UserEvent{Type: queue.EventUserLogout, UserID: userID,
		Metadata: map[string]string{"scope": "all"}})
	return nil
}

// emit publishes fire-and-forget; the publisher logs its own failures.
func (s *AuthService) emit(ctx context.Context, ev queue.UserEvent) {
	if s.events == nil {
		return
	}
	ev.OccurredAt = time.Now().UTC()
	_ = s.events.Publish(ctx, ev)
}

// authError maps token verification failures onto the taxonomy.
func authError(err error) *apperr.Error {
	if errors.Is(err, token.ErrRevokedToken) {
		return apperr.Authentication("Token has been revoked")
	}
	return apperr.Authentication("Invalid token")
}
