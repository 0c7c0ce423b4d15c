package handler_test

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/account-service/internal/cache"
	"github.com/iliyamo/account-service/internal/handler"
	"github.com/iliyamo/account-service/internal/metrics"
	"github.com/iliyamo/account-service/internal/model"
	"github.com/iliyamo/account-service/internal/repository"
	"github.com/iliyamo/account-service/internal/router"
	"github.com/iliyamo/account-service/internal/service"
	"github.com/iliyamo/account-service/internal/token"
)

// memUsers is an in-memory UserStore for exercising the HTTP surface
// without MySQL.
type memUsers struct {
	mu     sync.Mutex
	nextID uint64
	users  map[uint64]model.User
}

func newMemUsers() *memUsers {
	return &memUsers{nextID: 1, users: make(map[uint64]model.User)}
}

func (m *memUsers) Create(ctx context.Context, u model.User) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.users {
		if e.Email == u.Email {
			return model.User{}, repository.ErrEmailExists
		}
	}
	u.ID = m.nextID
	m.nextID++
	u.CreatedAt = time.Now().UTC()
	u.UpdatedAt = u.CreatedAt
	m.users[u.ID] = u
	return u, nil
}

func (m *memUsers) GetByID(ctx context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, sql.ErrNoRows
	}
	return u, nil
}

func (m *memUsers) GetByEmail(ctx context.Context, email string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return model.User{}, sql.ErrNoRows
}

func (m *memUsers) List(ctx context.Context, opts repository.QueryOptions) ([]model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var all []model.User
	for _, u := range m.users {
		all = append(all, u)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	start := opts.Offset()
	if start >= len(all) {
		return nil, nil
	}
	end := start + opts.Limit
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], nil
}

func (m *memUsers) Count(ctx context.Context, filter map[string]any) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.users)), nil
}

func (m *memUsers) Update(ctx context.Context, id uint64, p repository.UserPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	if p.Email != nil {
		u.Email = *p.Email
	}
	if p.Username != nil {
		u.Username = *p.Username
	}
	if p.PasswordHash != nil {
		u.PasswordHash = *p.PasswordHash
	}
	if p.Role != nil {
		u.Role = *p.Role
	}
	if p.Status != nil {
		u.Status = *p.Status
	}
	m.users[id] = u
	return nil
}

func (m *memUsers) UpdateLastLogin(ctx context.Context, id uint64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return sql.ErrNoRows
	}
	u.LastLoginAt = sql.NullTime{Time: at, Valid: true}
	m.users[id] = u
	return nil
}

func (m *memUsers) Delete(ctx context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.users, id)
	return nil
}

type memAudit struct {
	mu      sync.Mutex
	entries []model.AuditLog
}

func (m *memAudit) Insert(ctx context.Context, e model.AuditLog) (model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return e, nil
}

func (m *memAudit) ListByResource(ctx context.Context, resource, resourceID string, limit int) ([]model.AuditLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.AuditLog
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.Resource == resource && e.ResourceID == resourceID {
			out = append(out, e)
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

type testApp struct {
	e      *echo.Echo
	users  *memUsers
	tokens *token.Service
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	log := slog.Default()
	store := cache.NewMemoryStore()
	users := newMemUsers()
	audit := &memAudit{}
	reg := prometheus.NewRegistry()
	rec := metrics.NewCollector(reg)

	tokens := token.NewService("test-secret", 15*time.Minute, 24*time.Hour, store, log)
	manager := cache.NewManager(cache.NewMemoryStore(), time.Hour, log, rec)
	authSvc := service.NewAuthService(users, tokens, nil, bcrypt.MinCost, log)
	userSvc := service.NewUserService(users, audit, manager, nil, bcrypt.MinCost, time.Hour, time.Minute, log)

	e := echo.New()
	e.HTTPErrorHandler = handler.NewHTTPErrorHandler(log)
	router.Register(e, router.Handlers{
		Auth:     handler.NewAuthHandler(authSvc, userSvc, rec),
		Users:    handler.NewUserHandler(userSvc),
		Health:   handler.NewHealthHandler(nil, nil),
		Tokens:   tokens,
		Gatherer: reg,
	})
	return &testApp{e: e, users: users, tokens: tokens}
}

func (a *testApp) do(t *testing.T, method, path, bearer string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if bearer != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+bearer)
	}
	rr := httptest.NewRecorder()
	a.e.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &decoded)
	}
	return rr, decoded
}

// seedAdmin inserts an admin directly into the store and logs in.
func (a *testApp) seedAdmin(t *testing.T) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("admin-password"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	_, err = a.users.Create(context.Background(), model.User{
		Email: "admin@example.com", Username: "admin", PasswordHash: string(hash),
		Role: model.RoleAdmin, Status: model.StatusActive,
	})
	if err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	rr, body := a.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "admin@example.com", "password": "admin-password",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("admin login = %d: %v", rr.Code, body)
	}
	return extractAccessToken(t, body)
}

func extractAccessToken(t *testing.T, body map[string]any) string {
	t.Helper()
	data, _ := body["data"].(map[string]any)
	tokens, _ := data["tokens"].(map[string]any)
	raw, _ := tokens["access_token"].(string)
	if raw == "" {
		t.Fatalf("no access token in response: %v", body)
	}
	return raw
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestAccountLifecycle(t *testing.T) {
	app := newTestApp(t)

	// Register.
	rr, body := app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "alice@example.com", "username": "alice", "password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register = %d: %v", rr.Code, body)
	}
	data := body["data"].(map[string]any)
	if data["email"] != "alice@example.com" {
		t.Fatalf("register data = %v", data)
	}
	if _, leaked := data["password_hash"]; leaked {
		t.Fatal("password hash leaked in response")
	}
	userID := uint64(data["id"].(float64))

	// Login.
	rr, body = app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login = %d: %v", rr.Code, body)
	}
	access := extractAccessToken(t, body)

	// Me.
	rr, body = app.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me = %d: %v", rr.Code, body)
	}

	// Wrong current password is rejected.
	passURL := fmt.Sprintf("/api/v1/users/%d/password", userID)
	rr, body = app.do(t, http.MethodPost, passURL, access, map[string]string{
		"old_password": "wrong-password", "new_password": "newpassword1",
	})
	if rr.Code != http.StatusBadRequest || errorCode(body) != "VALIDATION_ERROR" {
		t.Fatalf("wrong old password = %d %v", rr.Code, body)
	}

	// Change it for real.
	rr, body = app.do(t, http.MethodPost, passURL, access, map[string]string{
		"old_password": "password123", "new_password": "newpassword1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("change password = %d: %v", rr.Code, body)
	}

	// Old password no longer logs in; new one does.
	rr, _ = app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "password123",
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("old password login = %d, want 401", rr.Code)
	}
	rr, body = app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "alice@example.com", "password": "newpassword1",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("new password login = %d: %v", rr.Code, body)
	}
	access = extractAccessToken(t, body)

	// Logout revokes the session.
	rr, _ = app.do(t, http.MethodPost, "/api/v1/auth/logout", access, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout = %d", rr.Code)
	}
	rr, body = app.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout = %d: %v", rr.Code, body)
	}
}

func TestErrorEnvelopeShape(t *testing.T) {
	app := newTestApp(t)

	rr, body := app.do(t, http.MethodGet, "/api/v1/auth/me", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rr.Code)
	}
	if errorCode(body) != "AUTHENTICATION_ERROR" {
		t.Fatalf("code = %q", errorCode(body))
	}
	meta, ok := body["meta"].(map[string]any)
	if !ok {
		t.Fatalf("missing meta: %v", body)
	}
	if meta["path"] != "/api/v1/auth/me" {
		t.Fatalf("meta.path = %v", meta["path"])
	}
	if _, ok := meta["timestamp"]; !ok {
		t.Fatal("missing meta.timestamp")
	}
}

func TestAuthorizationBoundaries(t *testing.T) {
	app := newTestApp(t)
	adminTok := app.seedAdmin(t)

	// A regular user.
	rr, body := app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "bob@example.com", "username": "bobby", "password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register = %d", rr.Code)
	}
	bobID := uint64(body["data"].(map[string]any)["id"].(float64))
	rr, body = app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "bob@example.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login = %d", rr.Code)
	}
	bobTok := extractAccessToken(t, body)

	// Bob cannot read the admin's record.
	rr, body = app.do(t, http.MethodGet, "/api/v1/users/1", bobTok, nil)
	if rr.Code != http.StatusForbidden || errorCode(body) != "AUTHORIZATION_ERROR" {
		t.Fatalf("cross read = %d %v", rr.Code, body)
	}

	// Bob cannot list the directory; his role holds only the own-record
	// permissions, not user.read.
	rr, body = app.do(t, http.MethodGet, "/api/v1/users", bobTok, nil)
	if rr.Code != http.StatusForbidden || errorCode(body) != "AUTHORIZATION_ERROR" {
		t.Fatalf("listing by user = %d %v, want 403", rr.Code, body)
	}
	rr, _ = app.do(t, http.MethodGet, "/api/v1/users", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("listing by admin = %d", rr.Code)
	}

	// Bob cannot delete or change status.
	rr, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", bobID), bobTok, nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("self delete by user = %d, want 403", rr.Code)
	}
	rr, _ = app.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/status", bobID), bobTok,
		map[string]string{"status": "suspended"})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status change by user = %d, want 403", rr.Code)
	}

	// The admin can do both.
	rr, _ = app.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/status", bobID), adminTok,
		map[string]string{"status": "suspended"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status change by admin = %d", rr.Code)
	}
	rr, _ = app.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/users/%d", bobID), adminTok, nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("delete by admin = %d", rr.Code)
	}
}

func TestAuditTrailEndpoint(t *testing.T) {
	app := newTestApp(t)
	adminTok := app.seedAdmin(t)

	rr, body := app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "carol@example.com", "username": "carol", "password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register = %d", rr.Code)
	}
	carolID := uint64(body["data"].(map[string]any)["id"].(float64))

	// Two audited mutations.
	rr, _ = app.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/status", carolID), adminTok,
		map[string]string{"status": "suspended"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status change = %d", rr.Code)
	}
	rr, _ = app.do(t, http.MethodPost, fmt.Sprintf("/api/v1/users/%d/status", carolID), adminTok,
		map[string]string{"status": "active"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status change = %d", rr.Code)
	}

	auditURL := fmt.Sprintf("/api/v1/users/%d/audit", carolID)

	rr, body = app.do(t, http.MethodGet, auditURL, adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("audit = %d: %v", rr.Code, body)
	}
	entries, ok := body["data"].([]any)
	if !ok || len(entries) != 2 {
		t.Fatalf("audit entries = %v, want one per status change", body["data"])
	}
	newest, ok := entries[0].(map[string]any)
	if !ok || newest["action"] != "UPDATE" {
		t.Fatalf("newest entry = %v, want latest status update first", entries[0])
	}

	rr, body = app.do(t, http.MethodGet, auditURL+"?limit=1", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("audit limit = %d", rr.Code)
	}
	if entries, ok = body["data"].([]any); !ok || len(entries) != 1 {
		t.Fatalf("limited audit entries = %v, want 1", body["data"])
	}

	// Admin-only surface.
	rr, body = app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "carol@example.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login = %d", rr.Code)
	}
	rr, _ = app.do(t, http.MethodGet, auditURL, extractAccessToken(t, body), nil)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("audit by owner = %d, want 403", rr.Code)
	}
}

func TestUserListing(t *testing.T) {
	app := newTestApp(t)
	adminTok := app.seedAdmin(t)

	for i := 0; i < 4; i++ {
		rr, _ := app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
			"email":    fmt.Sprintf("user%d@example.com", i),
			"username": fmt.Sprintf("user%04d", i),
			"password": "password123",
		})
		if rr.Code != http.StatusCreated {
			t.Fatalf("register %d = %d", i, rr.Code)
		}
	}

	rr, body := app.do(t, http.MethodGet, "/api/v1/users?page=1&limit=2", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("list = %d: %v", rr.Code, body)
	}
	items := body["data"].([]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	meta := body["meta"].(map[string]any)
	if meta["total"].(float64) != 5 || meta["total_pages"].(float64) != 3 {
		t.Fatalf("meta = %v", meta)
	}

	// Field projection keeps only the requested columns plus id.
	rr, body = app.do(t, http.MethodGet, "/api/v1/users?fields=email", adminTok, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("projected list = %d", rr.Code)
	}
	item := body["data"].([]any)[0].(map[string]any)
	if _, ok := item["email"]; !ok {
		t.Fatal("projection dropped email")
	}
	if _, ok := item["role"]; ok {
		t.Fatalf("projection leaked role: %v", item)
	}

	// Unknown projection fields are rejected.
	rr, body = app.do(t, http.MethodGet, "/api/v1/users?fields=password_hash", adminTok, nil)
	if rr.Code != http.StatusBadRequest || errorCode(body) != "VALIDATION_ERROR" {
		t.Fatalf("bad field = %d %v", rr.Code, body)
	}

	// Malformed pagination is rejected.
	rr, _ = app.do(t, http.MethodGet, "/api/v1/users?page=zero", adminTok, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("bad page = %d, want 400", rr.Code)
	}
}

func TestRefreshEndpoint(t *testing.T) {
	app := newTestApp(t)

	rr, _ := app.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"email": "carol@example.com", "username": "carol", "password": "password123",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("register = %d", rr.Code)
	}
	rr, body := app.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"email": "carol@example.com", "password": "password123",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("login = %d", rr.Code)
	}
	data := body["data"].(map[string]any)
	refresh := data["tokens"].(map[string]any)["refresh_token"].(string)

	rr, body = app.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refresh_token": refresh,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh = %d: %v", rr.Code, body)
	}
	access := body["data"].(map[string]any)["access_token"].(string)
	if access == "" {
		t.Fatal("no access token from refresh")
	}

	// The minted access token works.
	rr, _ = app.do(t, http.MethodGet, "/api/v1/auth/me", access, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("me with refreshed token = %d", rr.Code)
	}

	// An access token is not accepted as a refresh credential.
	rr, body = app.do(t, http.MethodPost, "/api/v1/auth/refresh-token", "", map[string]string{
		"refresh_token": access,
	})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("access-as-refresh = %d: %v", rr.Code, body)
	}
}
