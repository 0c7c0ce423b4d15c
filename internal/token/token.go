// Package token issues, verifies and revokes the signed session
// credentials. Tokens are stateless HS256 JWTs; revocation is tracked
// out-of-band in Redis, so absence of a blacklist entry means valid.
package token

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iliyamo/account-service/internal/authz"
	"github.com/iliyamo/account-service/internal/cache"
	"github.com/iliyamo/account-service/internal/model"
)

// Token types carried in the "type" claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrInvalidToken covers malformed, expired and badly signed tokens.
	ErrInvalidToken = errors.New("invalid token")
	// ErrRevokedToken marks a well-formed token whose id is blacklisted.
	ErrRevokedToken = errors.New("token has been revoked")
)

// Claims is the payload of every issued token. Subject holds the user
// id, ID the unique token identifier (jti).
type Claims struct {
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	TokenType   string   `json:"type"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim into the numeric user id.
func (c *Claims) UserID() (uint64, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad subject %q", ErrInvalidToken, c.Subject)
	}
	return id, nil
}

// Pair is an issued access/refresh token pair.
type Pair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// Service signs and validates tokens and keeps the revocation state in
// a fast-lookup store.
type Service struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	store      cache.Store
	log        *slog.Logger
}

// NewService builds a token Service. store holds the per-identifier
// tracking keys and the blacklist.
func NewService(secret string, accessTTL, refreshTTL time.Duration, store cache.Store, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		secret:     []byte(secret),
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		store:      store,
		log:        log,
	}
}

// GenerateTokens issues an access and a refresh token for user. Each
// identifier is recorded with a TTL matching the token's expiry and
// added to the user's session set, so revocation can find every live
// token a user holds.
func (s *Service) GenerateTokens(ctx context.Context, user model.User) (Pair, error) {
	now := time.Now().UTC()
	accessJTI := uuid.NewString()
	refreshJTI := uuid.NewString()

	access, err := s.sign(user, TypeAccess, accessJTI, authz.PermissionsFor(user.Role), now, s.accessTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign access token: %w", err)
	}
	// Refresh tokens carry no permissions; they can only mint new
	// access tokens.
	refresh, err := s.sign(user, TypeRefresh, refreshJTI, nil, now, s.refreshTTL)
	if err != nil {
		return Pair{}, fmt.Errorf("sign refresh token: %w", err)
	}

	owner := strconv.FormatUint(user.ID, 10)
	if err := s.store.SetEx(ctx, trackKey(TypeAccess, accessJTI), owner, s.accessTTL); err != nil {
		return Pair{}, fmt.Errorf("track access token: %w", err)
	}
	if err := s.store.SetEx(ctx, trackKey(TypeRefresh, refreshJTI), owner, s.refreshTTL); err != nil {
		return Pair{}, fmt.Errorf("track refresh token: %w", err)
	}
	if err := s.store.SAdd(ctx, sessionsKey(user.ID), accessJTI, refreshJTI); err != nil {
		return Pair{}, fmt.Errorf("record session: %w", err)
	}

	return Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  now.Add(s.accessTTL),
		RefreshExpiresAt: now.Add(s.refreshTTL),
	}, nil
}

// IssueAccessToken mints a single access token without touching the
// refresh token. Used by the refresh flow, which deliberately does not
// rotate the refresh credential.
func (s *Service) IssueAccessToken(ctx context.Context, user model.User) (string, time.Time, error) {
	now := time.Now().UTC()
	jti := uuid.NewString()
	raw, err := s.sign(user, TypeAccess, jti, authz.PermissionsFor(user.Role), now, s.accessTTL)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}
	owner := strconv.FormatUint(user.ID, 10)
	if err := s.store.SetEx(ctx, trackKey(TypeAccess, jti), owner, s.accessTTL); err != nil {
		return "", time.Time{}, fmt.Errorf("track access token: %w", err)
	}
	if err := s.store.SAdd(ctx, sessionsKey(user.ID), jti); err != nil {
		return "", time.Time{}, fmt.Errorf("record session: %w", err)
	}
	return raw, now.Add(s.accessTTL), nil
}

// Verify validates signature and expiry, then checks the identifier
// against the revocation blacklist. It returns the decoded claims.
func (s *Service) Verify(ctx context.Context, raw string) (*Claims, error) {
	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if _, revoked, err := s.store.Get(ctx, blacklistKey(claims.ID)); err != nil {
		// A store failure must not turn into a denied request; log and
		// treat the token as not revoked.
		s.log.Error("blacklist lookup failed", "jti", claims.ID, "err", err)
	} else if revoked {
		return nil, ErrRevokedToken
	}
	return claims, nil
}

// Revoke blacklists a token identifier. ttl should be the token's
// remaining validity window so the blacklist does not grow unboundedly;
// a non-positive ttl falls back to the refresh TTL (the longest any
// token can live).
func (s *Service) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	if jti == "" {
		return fmt.Errorf("%w: empty token id", ErrInvalidToken)
	}
	if ttl <= 0 {
		ttl = s.refreshTTL
	}
	return s.store.SetEx(ctx, blacklistKey(jti), "1", ttl)
}

// RevokeAllForUser blacklists every tracked identifier in the user's
// session set and drops the tracking keys (logout-everywhere).
func (s *Service) RevokeAllForUser(ctx context.Context, userID uint64) error {
	jtis, err := s.store.SMembers(ctx, sessionsKey(userID))
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	keys := []string{sessionsKey(userID)}
	for _, jti := range jtis {
		if err := s.Revoke(ctx, jti, s.refreshTTL); err != nil {
			return fmt.Errorf("revoke %s: %w", jti, err)
		}
		keys = append(keys, trackKey(TypeAccess, jti), trackKey(TypeRefresh, jti))
	}
	return s.store.Del(ctx, keys...)
}

// RemainingTTL returns the time until the claims expire. Used to size
// blacklist entries on logout.
func (s *Service) RemainingTTL(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return s.refreshTTL
	}
	return time.Until(claims.ExpiresAt.Time)
}

// AccessTTL exposes the configured access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.accessTTL }

func (s *Service) sign(user model.User, typ, jti string, perms []string, now time.Time, ttl time.Duration) (string, error) {
	claims := Claims{
		Role:        user.Role,
		Permissions: perms,
		TokenType:   typ,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(user.ID, 10),
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

func trackKey(typ, jti string) string { return "token:" + typ + ":" + jti }

func blacklistKey(jti string) string { return "token:blacklist:" + jti }

func sessionsKey(userID uint64) string {
	return "token:user:" + strconv.FormatUint(userID, 10)
}
