package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/cache"
	"taskflow/common"
	"taskflow/config"
	"taskflow/storage/sqlite/sqlitetest"
	"taskflow/system"
	"taskflow/ws"
)

func newTestRouter(t *testing.T, accessLog io.Writer) http.Handler {
	t.Helper()
	cache.RedisClient = nil
	cfg := &config.Config{
		Server:    config.ServerConfig{CORSOrigins: []string{"http://localhost:3000"}},
		RateLimit: config.RateLimitConfig{Limit: 100, Window: time.Minute, AuthLimit: 5, AuthWindow: 15 * time.Minute},
	}
	h := system.NewHandler(sqlitetest.NewTestDB(t), nil, common.NewJWT("test-secret", time.Hour), zap.NewNop())
	router, err := NewRouter(h, ws.NewHub(zap.NewNop()), cfg, accessLog, zap.NewNop())
	require.NoError(t, err)
	return router
}

func do(router http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestRouter_ProtectedRoutesRequireToken(t *testing.T) {
	router := newTestRouter(t, nil)

	for _, path := range []string{"/tasks", "/users/me", "/notifications", "/categories", "/rate-limit"} {
		rec := do(router, "GET", path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	assert.Equal(t, http.StatusUnauthorized, do(router, "GET", "/tasks", "garbage", nil).Code)
}

func TestRouter_RegisterThenUseToken(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := do(router, "POST", "/register", "", map[string]string{
		"username": "alice", "email": "alice@example.com", "password": "password123",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var auth struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &auth))

	rec = do(router, "POST", "/tasks", auth.Token, map[string]interface{}{
		"title": "Write report", "due_date": time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = do(router, "GET", "/tasks/1", auth.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, "GET", "/notifications", auth.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(router, "GET", "/rate-limit", auth.Token, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"enabled":false`)
}

func TestRouter_PublicEndpoints(t *testing.T) {
	var access bytes.Buffer
	router := newTestRouter(t, &access)

	assert.Equal(t, http.StatusOK, do(router, "GET", "/health", "", nil).Code)

	rec := do(router, "GET", "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	assert.Contains(t, access.String(), `"GET /health HTTP/1.1" 200`)
}

func TestRouter_CORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)

	req := httptest.NewRequest("OPTIONS", "/tasks", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestNewRouter_RejectsInvalidTrustedProxy(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{TrustedProxies: []string{"proxy.local"}}}
	h := system.NewHandler(sqlitetest.NewTestDB(t), nil, common.NewJWT("test-secret", time.Hour), zap.NewNop())

	_, err := NewRouter(h, ws.NewHub(zap.NewNop()), cfg, nil, zap.NewNop())
	assert.Error(t, err)
}
