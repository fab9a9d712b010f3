package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"shelfmate/internal/shared/config"
	"shelfmate/pkg/cache"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubProvider struct {
	profile *OAuthProfile
	err     error
	codes   []string
}

func (p *stubProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (p *stubProvider) FetchProfile(_ context.Context, code string) (*OAuthProfile, error) {
	p.codes = append(p.codes, code)
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

type apiEnvelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Message    string          `json:"message"`
	Data       json.RawMessage `json:"data"`
	Errors     json.RawMessage `json:"errors"`
}

type testServer struct {
	*fixture
	engine   *gin.Engine
	provider *stubProvider
	states   *StateStore
}

func newTestServer(t *testing.T, withGoogle bool) *testServer {
	t.Helper()
	f := newFixture(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	states := NewStateStore(cache.NewService(client), 0)

	cfg := &config.Config{GinMode: "release", Google: config.GoogleConfig{FrontendURL: "http://localhost:5173/"}}

	var provider *stubProvider
	var google OAuthProvider
	if withGoogle {
		provider = &stubProvider{}
		google = provider
	}

	engine := gin.New()
	controller := NewController(f.svc, google, states, cfg)
	NewRouter(controller, f.tokens).SetupRoutes(engine.Group("/api"))

	return &testServer{fixture: f, engine: engine, provider: provider, states: states}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, accessToken string) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		req.Header.Set("Authorization", "Bearer "+accessToken)
	}

	w := httptest.NewRecorder()
	s.engine.ServeHTTP(w, req)

	var env apiEnvelope
	if w.Header().Get("Content-Type") != "" && w.Code != http.StatusFound {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	}
	return w, env
}

func decodeData(t *testing.T, env apiEnvelope, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(env.Data, dest))
}

func TestController_AliceScenario(t *testing.T) {
	s := newTestServer(t, false)

	w, env := s.do(t, http.MethodPost, "/api/auth/register",
		map[string]string{"username": "alice", "email": "a@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusCreated, w.Code)
	var registered AuthResponse
	decodeData(t, env, &registered)
	assert.NotEmpty(t, registered.AccessToken)
	assert.NotEmpty(t, registered.RefreshToken)
	assert.Equal(t, "alice", registered.User.Username)

	w, env = s.do(t, http.MethodPost, "/api/auth/login",
		map[string]string{"email": "a@x.com", "password": "secret1"}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var loggedIn AuthResponse
	decodeData(t, env, &loggedIn)
	assert.NotEqual(t, registered.AccessToken, loggedIn.AccessToken)

	w, env = s.do(t, http.MethodPost, "/api/auth/refresh",
		map[string]string{"refreshToken": loggedIn.RefreshToken}, "")
	require.Equal(t, http.StatusOK, w.Code)
	var refreshed RefreshResponse
	decodeData(t, env, &refreshed)
	assert.NotEmpty(t, refreshed.AccessToken)

	w, env = s.do(t, http.MethodPost, "/api/auth/refresh",
		map[string]string{"refreshToken": registered.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "error", env.Status)
	assert.Equal(t, "Invalid or expired refresh token", env.Message)

	w, env = s.do(t, http.MethodGet, "/api/auth/me", nil, refreshed.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var me UserResponse
	decodeData(t, env, &me)
	assert.Equal(t, "a@x.com", me.Email)
}

func TestController_RegisterValidation(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "taken", "taken@x.com", "secret1")

	tests := []struct {
		name        string
		body        map[string]string
		wantMessage string
	}{
		{"missing username", map[string]string{"email": "a@x.com", "password": "secret1"}, "Username is required"},
		{"short password", map[string]string{"username": "alice", "email": "a@x.com", "password": "12345"}, "Password must be at least 6 characters"},
		{"bad email", map[string]string{"username": "alice", "email": "not-an-email", "password": "secret1"}, "Invalid email format"},
		{"duplicate email", map[string]string{"username": "alice", "email": "taken@x.com", "password": "secret1"}, "Email already registered"},
		{"duplicate username", map[string]string{"username": "taken", "email": "a@x.com", "password": "secret1"}, "Username already taken"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := s.do(t, http.MethodPost, "/api/auth/register", tt.body, "")
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.wantMessage, env.Message)
		})
	}
}

func TestController_LoginFailures(t *testing.T) {
	s := newTestServer(t, false)
	s.register(t, "alice", "a@x.com", "secret1")

	w, env := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com"}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Password is required", env.Message)

	w, env = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "nope-nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", env.Message)

	// a malformed email is just an unknown account
	w, env = s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "not-an-email", "password": "secret1"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Invalid email or password", env.Message)

	w, _ = s.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestController_InternalErrorHidesDetail(t *testing.T) {
	s := newTestServer(t, false)
	s.repo.failWith = errors.New("pq: connection reset")

	w, env := s.do(t, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "secret1"}, "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal server error", env.Message)
	assert.NotContains(t, w.Body.String(), "pq: connection reset")
}

func TestController_LogoutAndSession(t *testing.T) {
	s := newTestServer(t, false)
	resp := s.register(t, "alice", "a@x.com", "secret1")

	w, _ := s.do(t, http.MethodPost, "/api/auth/logout", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env := s.do(t, http.MethodGet, "/api/auth/session", nil, resp.AccessToken)
	require.Equal(t, http.StatusOK, w.Code)
	var session SessionResponse
	decodeData(t, env, &session)
	assert.True(t, session.Authenticated)
	require.NotNil(t, session.User)
	assert.Equal(t, "alice", session.User.Username)

	for i := 0; i < 2; i++ {
		w, _ = s.do(t, http.MethodPost, "/api/auth/logout", nil, resp.AccessToken)
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w, _ = s.do(t, http.MethodPost, "/api/auth/refresh", map[string]string{"refreshToken": resp.RefreshToken}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, env = s.do(t, http.MethodGet, "/api/auth/session", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	session = SessionResponse{}
	decodeData(t, env, &session)
	assert.False(t, session.Authenticated)
	assert.Nil(t, session.User)
}

func TestController_ChangePassword(t *testing.T) {
	s := newTestServer(t, false)
	resp := s.register(t, "alice", "a@x.com", "secret1")

	w, env := s.do(t, http.MethodPut, "/api/auth/change-password",
		map[string]string{"currentPassword": "secret1", "newPassword": "123"}, resp.AccessToken)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "New password must be at least 6 characters", env.Message)

	w, _ = s.do(t, http.MethodPut, "/api/auth/change-password",
		map[string]string{"currentPassword": "secret1", "newPassword": "secret2"}, resp.AccessToken)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestController_GoogleNotConfigured(t *testing.T) {
	s := newTestServer(t, false)

	w, env := s.do(t, http.MethodGet, "/api/auth/google", nil, "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "Google OAuth is not configured", env.Message)
}

func TestController_GoogleFlow(t *testing.T) {
	s := newTestServer(t, true)
	s.provider.profile = &OAuthProfile{GoogleID: "google-42", Email: "gina@x.com", DisplayName: "Gina"}

	w, _ := s.do(t, http.MethodGet, "/api/auth/google", nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	consent, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	state := consent.Query().Get("state")
	require.NotEmpty(t, state)

	callback := "/api/auth/google/callback?code=abc&state=" + url.QueryEscape(state)
	w, _ = s.do(t, http.MethodGet, callback, nil, "")
	require.Equal(t, http.StatusFound, w.Code)

	location, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "localhost:5173", location.Host)
	assert.Equal(t, "/oauth/callback", location.Path)
	assert.Equal(t, []string{"abc"}, s.provider.codes)

	query := location.Query()
	payload, err := s.tokens.VerifyAccessToken(query.Get("accessToken"))
	require.NoError(t, err)
	assert.Equal(t, "gina@x.com", payload.Email)
	assert.NotEmpty(t, query.Get("refreshToken"))

	var user UserResponse
	require.NoError(t, json.Unmarshal([]byte(query.Get("user")), &user))
	assert.Equal(t, payload.UserID, user.ID)
	assert.Equal(t, "Gina", user.Username)

	// state values are single-use
	w, _ = s.do(t, http.MethodGet, callback, nil, "")
	require.Equal(t, http.StatusFound, w.Code)
	location, err = url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "invalid_state", location.Query().Get("error"))
	assert.Len(t, s.provider.codes, 1)
}

func TestController_GoogleCallbackErrors(t *testing.T) {
	s := newTestServer(t, true)
	s.provider.err = errors.New("exchange failed")

	errorOf := func(path string) string {
		w, _ := s.do(t, http.MethodGet, path, nil, "")
		require.Equal(t, http.StatusFound, w.Code)
		location, err := url.Parse(w.Header().Get("Location"))
		require.NoError(t, err)
		return location.Query().Get("error")
	}

	assert.Equal(t, "access_denied", errorOf("/api/auth/google/callback?error=access_denied"))
	assert.Equal(t, "invalid_state", errorOf("/api/auth/google/callback?code=abc&state=forged"))

	state, err := s.states.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "google_auth_failed", errorOf("/api/auth/google/callback?code=abc&state="+url.QueryEscape(state)))

	state, err = s.states.Issue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "missing_code", errorOf("/api/auth/google/callback?state="+url.QueryEscape(state)))
}
