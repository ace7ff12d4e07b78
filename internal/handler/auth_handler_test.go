package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"botops-console/internal/bucketing"
	"botops-console/internal/config"
	"botops-console/internal/hashing"
	"botops-console/internal/models"
	"botops-console/internal/repository/scylla"
	"botops-console/internal/service"
)

// --- in-memory backends ---

type stubUserStore struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func newStubUserStore() *stubUserStore {
	return &stubUserStore{users: make(map[string]*models.User)}
}

func (s *stubUserStore) Create(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[user.UserID] = user
	return nil
}

func (s *stubUserStore) GetByID(ctx context.Context, userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		copied := *u
		return &copied, nil
	}
	return nil, scylla.ErrUserNotFound
}

func (s *stubUserStore) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			copied := *u
			return &copied, nil
		}
	}
	return nil, scylla.ErrUserNotFound
}

func (s *stubUserStore) UpdatePasswordHash(ctx context.Context, userID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.PasswordHash = passwordHash
	}
	return nil
}

func (s *stubUserStore) UpdateIPAllowlist(ctx context.Context, userID string, allowlist []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[userID]; ok {
		u.IPAllowlist = allowlist
	}
	return nil
}

func (s *stubUserStore) UpdateLastLogin(ctx context.Context, userID, sourceAddress string, at time.Time) error {
	return nil
}

type stubSessionStore struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

func newStubSessionStore() *stubSessionStore {
	return &stubSessionStore{sessions: make(map[string]*models.Session)}
}

func (s *stubSessionStore) Create(ctx context.Context, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *session
	s.sessions[session.Token] = &copied
	return nil
}

func (s *stubSessionStore) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		copied := *sess
		return &copied, nil
	}
	return nil, scylla.ErrSessionNotFound
}

func (s *stubSessionStore) Deactivate(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[token]; ok {
		sess.IsActive = false
	}
	return nil
}

func (s *stubSessionStore) Delete(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

type stubNotifier struct {
	mu       sync.Mutex
	lastCode string
}

func (n *stubNotifier) SendLoginCode(ctx context.Context, name, code string, expiresIn time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastCode = code
	return nil
}

func (n *stubNotifier) code() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.lastCode
}

type stubRecorder struct{}

func (stubRecorder) Record(event models.SecurityEvent) {}

// --- fixture ---

type handlerFixture struct {
	router   chi.Router
	notifier *stubNotifier
	users    *stubUserStore
	cfg      *config.Config
	hasher   *hashing.Hasher
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	cfg := &config.Config{
		Environment: "test",
		Auth: config.AuthConfig{
			MaxLoginAttempts:  3,
			LockoutWindow:     15 * time.Minute,
			ThrottleRetention: time.Hour,
			CodeTTL:           5 * time.Minute,
			CodeMaxGuesses:    5,
			SessionTTL:        24 * time.Hour,
			SweepInterval:     time.Minute,
			CookieName:        "botops_session",
		},
		Notify: config.NotifyConfig{Timeout: 5 * time.Second},
		Hashing: config.HashingConfig{
			Argon2MemoryCost:  1024,
			Argon2TimeCost:    1,
			Argon2Parallelism: 1,
		},
	}

	users := newStubUserStore()
	notifier := &stubNotifier{}
	hasher := hashing.NewHasher(cfg)

	auth := service.NewAuthService(cfg, users, newStubSessionStore(), nil, hasher,
		notifier, stubRecorder{}, bucketing.NewBucketingManager(8, 8))
	t.Cleanup(auth.Close)

	sessionAuth := NewSessionAuth(auth, cfg.Auth.CookieName)
	authHandler := NewAuthHandler(auth, cfg)

	router := chi.NewRouter()
	router.Route("/api/v1", func(r chi.Router) {
		authHandler.RegisterRoutes(r, sessionAuth)
	})

	return &handlerFixture{
		router:   router,
		notifier: notifier,
		users:    users,
		cfg:      cfg,
		hasher:   hasher,
	}
}

func (f *handlerFixture) seedUser(t *testing.T, email, password, role string) *models.User {
	t.Helper()

	hash, err := f.hasher.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		UserID:       uuid.New().String(),
		Email:        email,
		Name:         "Test Operator",
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
		CreatedAt:    time.Now(),
	}
	require.NoError(t, f.users.Create(context.Background(), user))
	return user
}

func (f *handlerFixture) do(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// login runs the full two-phase flow and returns the session cookie.
func (f *handlerFixture) login(t *testing.T, email, password string) *http.Cookie {
	t.Helper()

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": email, "password": password,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeEnvelope(t, rec)
	data := resp.Data.(map[string]interface{})
	codeID := data["code_id"].(string)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{
		"code_id": codeID, "code": f.notifier.code(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == f.cfg.Auth.CookieName {
			return c
		}
	}
	t.Fatal("session cookie not set")
	return nil
}

// --- tests ---

func TestLoginIssuesChallenge(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "op@example.com", "password": "secret123",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.True(t, resp.Success)

	data := resp.Data.(map[string]interface{})
	assert.NotEmpty(t, data["code_id"])
	assert.Equal(t, float64(300), data["expires_in_seconds"])
}

func TestLoginInvalidCredentials(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "op@example.com", "password": "wrong",
	})

	require.Equal(t, http.StatusUnauthorized, rec.Code)
	resp := decodeEnvelope(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, "invalid credentials", resp.Error)

	// Unknown account gets the identical response
	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "whatever",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid credentials", decodeEnvelope(t, rec).Error)
}

func TestLoginMissingFields(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "op@example.com"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRateLimited(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	for i := 0; i < 3; i++ {
		rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"email": "op@example.com", "password": "wrong",
		})
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "op@example.com", "password": "secret123",
	})

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.False(t, decodeEnvelope(t, rec).Success)
}

func TestVerifySetsSessionCookie(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	cookie := f.login(t, "op@example.com", "secret123")

	assert.NotEmpty(t, cookie.Value)
	assert.Equal(t, "/", cookie.Path)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.True(t, cookie.Expires.After(time.Now().Add(23*time.Hour)))
}

func TestVerifyWrongCodeIsGeneric(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "op@example.com", "password": "secret123",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := decodeEnvelope(t, rec).Data.(map[string]interface{})
	codeID := data["code_id"].(string)

	wrong := "000000"
	if f.notifier.code() == wrong {
		wrong = "000001"
	}

	rec = f.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{
		"code_id": codeID, "code": wrong,
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid verification attempt", decodeEnvelope(t, rec).Error)

	// Unknown code id yields the same message
	rec = f.do(t, http.MethodPost, "/api/v1/auth/verify", map[string]string{
		"code_id": uuid.New().String(), "code": "123456",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "invalid verification attempt", decodeEnvelope(t, rec).Error)
}

func TestStatusReflectsSession(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/status", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	var status map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, false, status["authenticated"])

	cookie := f.login(t, "op@example.com", "secret123")

	rec = f.do(t, http.MethodGet, "/api/v1/auth/status", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, true, status["authenticated"])

	user := status["user"].(map[string]interface{})
	assert.Equal(t, "op@example.com", user["email"])
	assert.NotContains(t, rec.Body.String(), "password")
}

func TestLogoutRevokesSession(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)

	cookie := f.login(t, "op@example.com", "secret123")

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	var cleared *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == f.cfg.Auth.CookieName {
			cleared = c
		}
	}
	require.NotNil(t, cleared)
	assert.Less(t, cleared.MaxAge, 0)

	rec = f.do(t, http.MethodGet, "/api/v1/auth/status", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutWithoutSessionStillClearsCookie(t *testing.T) {
	f := newHandlerFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/auth/logout", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Result().Cookies())
}

func TestChangePasswordEndpoint(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)
	cookie := f.login(t, "op@example.com", "secret123")

	// Requires a session
	rec := f.do(t, http.MethodPost, "/api/v1/auth/password", map[string]string{
		"current_password": "secret123", "new_password": "newpassword1",
	})
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Wrong current password
	rec = f.do(t, http.MethodPost, "/api/v1/auth/password", map[string]string{
		"current_password": "wrong", "new_password": "newpassword1",
	}, cookie)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	// Too-short replacement
	rec = f.do(t, http.MethodPost, "/api/v1/auth/password", map[string]string{
		"current_password": "secret123", "new_password": "short",
	}, cookie)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/v1/auth/password", map[string]string{
		"current_password": "secret123", "new_password": "newpassword1",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// Old password no longer works for login
	rec = f.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"email": "op@example.com", "password": "secret123",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWhitelistIsAdminOnly(t *testing.T) {
	f := newHandlerFixture(t)
	f.seedUser(t, "op@example.com", "secret123", models.RoleOperator)
	admin := f.seedUser(t, "admin@example.com", "adminpass1", models.RoleAdmin)

	opCookie := f.login(t, "op@example.com", "secret123")
	rec := f.do(t, http.MethodPut, "/api/v1/auth/whitelist", whitelistRequest{
		Addresses: []string{"10.0.0.1"},
	}, opCookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminCookie := f.login(t, "admin@example.com", "adminpass1")
	rec = f.do(t, http.MethodPut, "/api/v1/auth/whitelist", whitelistRequest{
		Addresses: []string{"10.0.0.1"},
	}, adminCookie)
	require.Equal(t, http.StatusOK, rec.Code)

	stored, err := f.users.GetByID(context.Background(), admin.UserID)
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.1"}, stored.IPAllowlist)

	// Targeting a missing user
	rec = f.do(t, http.MethodPut, "/api/v1/auth/whitelist", whitelistRequest{
		UserID:    uuid.New().String(),
		Addresses: []string{"10.0.0.1"},
	}, adminCookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
