package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
	"github.com/world-gallery/internal/metrics"
	"github.com/world-gallery/internal/service"
	"github.com/world-gallery/internal/storage"
	"github.com/world-gallery/internal/view"
	"github.com/world-gallery/internal/websocket"
)

type memoryStore struct {
	mu     sync.Mutex
	worlds []domain.World
	likes  map[string]map[string]bool
	err    error
}

func (s *memoryStore) exists(worldID string) bool {
	for _, w := range s.worlds {
		if w.ID == worldID {
			return true
		}
	}
	return false
}

func (s *memoryStore) ListWorlds(context.Context) ([]domain.World, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	out := make([]domain.World, len(s.worlds))
	copy(out, s.worlds)
	for i := range out {
		out[i].LikeCount = int64(len(s.likes[out[i].ID]))
	}
	return out, nil
}

func (s *memoryStore) GetWorld(_ context.Context, worldID string) (*domain.World, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.worlds {
		if w.ID == worldID {
			world := w
			return &world, nil
		}
	}
	return nil, domain.ErrWorldNotFound
}

func (s *memoryStore) InsertLike(_ context.Context, like domain.Like) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(like.WorldID) {
		return domain.ErrWorldNotFound
	}
	if s.likes[like.WorldID] == nil {
		s.likes[like.WorldID] = make(map[string]bool)
	}
	s.likes[like.WorldID][like.UserID] = true
	return nil
}

func (s *memoryStore) DeleteLike(_ context.Context, worldID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(worldID) {
		return domain.ErrWorldNotFound
	}
	delete(s.likes[worldID], userID)
	return nil
}

func (s *memoryStore) ToggleLike(_ context.Context, worldID, userID string) (*domain.ToggleResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(worldID) {
		return nil, domain.ErrWorldNotFound
	}
	if s.likes[worldID] == nil {
		s.likes[worldID] = make(map[string]bool)
	}
	liked := !s.likes[worldID][userID]
	if liked {
		s.likes[worldID][userID] = true
	} else {
		delete(s.likes[worldID], userID)
	}
	return &domain.ToggleResult{WorldID: worldID, Liked: liked, LikeCount: int64(len(s.likes[worldID]))}, nil
}

func (s *memoryStore) CountLikes(_ context.Context, worldID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.exists(worldID) {
		return 0, domain.ErrWorldNotFound
	}
	return int64(len(s.likes[worldID])), nil
}

type memoryAuth struct {
	mu         sync.Mutex
	sessions   map[string]*domain.Session
	signOutErr error
}

var alice = &domain.User{ID: "user-alice", Email: "alice@example.com", DisplayName: "Alice"}

func newMemoryAuth() *memoryAuth {
	return &memoryAuth{sessions: map[string]*domain.Session{
		"tok-alice": {ID: "s1", AccessToken: "tok-alice", User: alice, ExpiresAt: time.Now().Add(time.Hour)},
	}}
}

func (a *memoryAuth) OnAuthStateChange(func(domain.AuthEvent)) func() { return func() {} }

func (a *memoryAuth) GetSession(_ context.Context, token string) (*domain.Session, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	session, ok := a.sessions[token]
	if !ok {
		return nil, domain.ErrNotAuthenticated
	}
	return session, nil
}

func (a *memoryAuth) GetUser(ctx context.Context, token string) (*domain.User, error) {
	session, err := a.GetSession(ctx, token)
	if err != nil {
		return nil, err
	}
	return session.User, nil
}

func (a *memoryAuth) SignInWithPassword(_ context.Context, email, password string) (*domain.Session, error) {
	if email != alice.Email || password != "secret" {
		return nil, domain.ErrInvalidCredentials
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	session := &domain.Session{ID: "s2", AccessToken: "tok-new", User: alice, ExpiresAt: time.Now().Add(time.Hour)}
	a.sessions[session.AccessToken] = session
	return session, nil
}

func (a *memoryAuth) SignOut(_ context.Context, token string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.signOutErr != nil {
		return a.signOutErr
	}
	if _, ok := a.sessions[token]; !ok {
		return domain.ErrNotAuthenticated
	}
	delete(a.sessions, token)
	return nil
}

type testServer struct {
	handler http.Handler
	store   *memoryStore
	auth    *memoryAuth
	checks  map[string]ReadinessCheck
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	pages := &config.GalleryConfig{LandingPath: "/", LoginPath: "/login", PlaceholderImage: "https://img/none.png"}
	authCfg := &config.AuthConfig{CookieName: "gallery_session"}

	store := &memoryStore{
		worlds: []domain.World{
			{
				ID: "w2", Title: "Newer", UploadedByName: "bob",
				UploadedAt:   time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
				WorldFileURL: "https://files.example.com/w2.zip",
			},
			{
				ID: "w1", Title: "Older", UploadedByName: "alice",
				UploadedAt:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				WorldFileURL: "s3://worlds/w1.zip",
			},
		},
		likes: make(map[string]map[string]bool),
	}
	auth := newMemoryAuth()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg, reg)
	renderer := view.MustRenderer()
	gallery := service.NewGallery(store, auth, renderer, pages, m, logger)
	reflector := service.NewAuthReflector(auth, pages, logger)
	hub := websocket.NewHub(gallery, reflector, m, logger)

	presigner, err := storage.NewPresigner(&config.StorageConfig{}, logger)
	require.NoError(t, err)

	ts := &testServer{store: store, auth: auth, checks: map[string]ReadinessCheck{
		"postgres": func(context.Context) error { return nil },
	}}
	ts.handler = NewHandler(Dependencies{
		Gallery:   gallery,
		Reflector: reflector,
		Hub:       hub,
		Worlds:    store,
		Downloads: presigner,
		Renderer:  renderer,
		Metrics:   m,
		Auth:      authCfg,
		Pages:     pages,
		Checks:    ts.checks,
	}, logger).Router()
	return ts
}

func (ts *testServer) do(method, target string, body io.Reader, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, data any) APIResponse {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return APIResponse{Success: raw.Success, Error: raw.Error}
}

func TestGalleryPage_Anonymous(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	body := rec.Body.String()
	assert.Contains(t, body, `class="auth-only" hidden`)
	assert.Contains(t, body, `<div class="unauth-only">`)
	assert.Less(t, strings.Index(body, `data-world-id="w2"`), strings.Index(body, `data-world-id="w1"`))
	assert.Contains(t, body, `href="/worlds/w1/download"`)
}

func TestGalleryPage_SignedIn(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: "gallery_session", Value: "tok-alice"})
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `<div class="auth-only">`)
	assert.Contains(t, body, `class="unauth-only" hidden`)
	assert.Contains(t, body, "Alice")
}

func TestGalleryPage_LoadFailure(t *testing.T) {
	ts := newTestServer(t)
	ts.store.err = errors.New("db down")

	rec := ts.do(http.MethodGet, "/worlds", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Error loading worlds. Please refresh the page.")
}

func TestToggleLike_RequiresUser(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/worlds/w1/like", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, ts.store.likes["w1"])
}

func TestToggleLike_TwiceRestores(t *testing.T) {
	ts := newTestServer(t)

	var result domain.ToggleResult
	rec := ts.do(http.MethodPost, "/api/v1/worlds/w1/like", nil, bearer("tok-alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode(t, rec, &result)
	assert.True(t, resp.Success)
	assert.True(t, result.Liked)
	assert.Equal(t, int64(1), result.LikeCount)

	rec = ts.do(http.MethodPost, "/api/v1/worlds/w1/like", nil, bearer("tok-alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &result)
	assert.False(t, result.Liked)
	assert.Equal(t, int64(0), result.LikeCount)
}

func TestLikeUnlike_Idempotent(t *testing.T) {
	ts := newTestServer(t)

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodPut, "/api/v1/worlds/w2/like", nil, bearer("tok-alice"))
		require.Equal(t, http.StatusOK, rec.Code)
	}

	var count domain.LikeCount
	rec := ts.do(http.MethodGet, "/api/v1/worlds/w2/likes", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &count)
	assert.Equal(t, int64(1), count.Count)

	for i := 0; i < 2; i++ {
		rec := ts.do(http.MethodDelete, "/api/v1/worlds/w2/like", nil, bearer("tok-alice"))
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec = ts.do(http.MethodGet, "/api/v1/worlds/w2/likes", nil, nil)
	decode(t, rec, &count)
	assert.Equal(t, int64(0), count.Count)
}

func TestToggleLike_UnknownWorld(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/api/v1/worlds/missing/like", nil, bearer("tok-alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodDelete, "/api/v1/worlds/missing/like", nil, bearer("tok-alice"))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/worlds/missing/likes", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListWorlds(t *testing.T) {
	ts := newTestServer(t)

	var worlds []domain.World
	rec := ts.do(http.MethodGet, "/api/v1/worlds", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &worlds)
	require.Len(t, worlds, 2)
	assert.Equal(t, "w2", worlds[0].ID)
}

func TestTopLiked(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/api/v1/worlds/top", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(http.MethodGet, "/api/v1/worlds/top?limit=abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin(t *testing.T) {
	tests := []struct {
		name        string
		body        string
		contentType string
		wantStatus  int
		wantCookie  bool
	}{
		{
			name:        "json success",
			body:        `{"email":"alice@example.com","password":"secret"}`,
			contentType: "application/json",
			wantStatus:  http.StatusOK,
			wantCookie:  true,
		},
		{
			name:        "form success redirects",
			body:        url.Values{"email": {"alice@example.com"}, "password": {"secret"}}.Encode(),
			contentType: "application/x-www-form-urlencoded",
			wantStatus:  http.StatusSeeOther,
			wantCookie:  true,
		},
		{
			name:        "wrong password",
			body:        `{"email":"alice@example.com","password":"nope"}`,
			contentType: "application/json",
			wantStatus:  http.StatusUnauthorized,
		},
		{
			name:        "missing fields",
			body:        `{"email":""}`,
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
		{
			name:        "malformed",
			body:        `{`,
			contentType: "application/json",
			wantStatus:  http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			rec := ts.do(http.MethodPost, "/auth/login", strings.NewReader(tt.body), map[string]string{
				"Content-Type": tt.contentType,
			})
			assert.Equal(t, tt.wantStatus, rec.Code)

			cookies := rec.Result().Cookies()
			if !tt.wantCookie {
				assert.Empty(t, cookies)
				return
			}
			require.Len(t, cookies, 1)
			assert.Equal(t, "gallery_session", cookies[0].Name)
			assert.Equal(t, "tok-new", cookies[0].Value)
			assert.True(t, cookies[0].HttpOnly)
		})
	}
}

func TestLogout_NavigatesToLanding(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodPost, "/auth/logout", strings.NewReader(""), map[string]string{
		"Authorization": "Bearer tok-alice",
		"Content-Type":  "application/x-www-form-urlencoded",
	})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Empty(t, cookies[0].Value)

	rec = ts.do(http.MethodGet, "/auth/user", nil, bearer("tok-alice"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout_FailureStaysPut(t *testing.T) {
	ts := newTestServer(t)
	ts.auth.signOutErr = errors.New("provider unavailable")

	rec := ts.do(http.MethodPost, "/auth/logout", nil, bearer("tok-alice"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Empty(t, rec.Header().Get("Location"))
	assert.Empty(t, rec.Result().Cookies())

	rec = ts.do(http.MethodGet, "/auth/user", nil, bearer("tok-alice"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCurrentUser(t *testing.T) {
	ts := newTestServer(t)

	var user domain.User
	rec := ts.do(http.MethodGet, "/auth/user", nil, bearer("tok-alice"))
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &user)
	assert.Equal(t, "Alice", user.DisplayName)

	rec = ts.do(http.MethodGet, "/auth/user", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestDownloadWorld(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/worlds/w2/download", nil, nil)
	assert.Equal(t, http.StatusFound, rec.Code)
	assert.Equal(t, "https://files.example.com/w2.zip", rec.Header().Get("Location"))

	rec = ts.do(http.MethodGet, "/worlds/w1/download", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = ts.do(http.MethodGet, "/worlds/missing/download", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestReadyCheck(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.checks["redis"] = func(context.Context) error { return errors.New("connection refused") }
	rec = ts.do(http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"redis":"unavailable"`)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	ts.do(http.MethodGet, "/health", nil, nil)
	rec := ts.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "gallery_http_requests_total")
	assert.Contains(t, rec.Body.String(), `route="/health"`)
}

func TestWebSocketStats(t *testing.T) {
	ts := newTestServer(t)

	var stats map[string]int
	rec := ts.do(http.MethodGet, "/api/v1/ws/stats", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &stats)
	assert.Equal(t, 0, stats["total_connections"])
}
