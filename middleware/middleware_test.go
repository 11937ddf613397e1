package middleware_test

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskflow/common"
	"taskflow/middleware"
)

var tokens = common.NewJWT("test-secret", time.Hour)

func okHandler(called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestJWTMiddleware_NoAuthorizationHeader(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	rec := httptest.NewRecorder()

	called := false
	middleware.JWTMiddleware(tokens)(okHandler(&called)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestJWTMiddleware_InvalidFormat(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Token abc123")
	rec := httptest.NewRecorder()

	called := false
	middleware.JWTMiddleware(tokens)(okHandler(&called)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestJWTMiddleware_InvalidToken(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer invalid.token.value")
	rec := httptest.NewRecorder()

	called := false
	middleware.JWTMiddleware(tokens)(okHandler(&called)).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called)
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	token, err := tokens.Generate(123, "alice")
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	var extractedUserID int64
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		extractedUserID, _ = common.UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	middleware.JWTMiddleware(tokens)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(123), extractedUserID)
}

func userRequest(userID int64) *http.Request {
	req := httptest.NewRequest("GET", "/tasks", nil)
	return req.WithContext(common.WithUserID(req.Context(), userID))
}

func TestRateLimit_FirstRequestStartsWindow(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	mock.ExpectIncr("ratelimit:user:123").SetVal(1)
	mock.ExpectExpire("ratelimit:user:123", time.Hour).SetVal(true)
	mock.ExpectTTL("ratelimit:user:123").SetVal(time.Hour)

	called := false
	limiter := middleware.NewRateLimiter(db, 100, time.Hour, middleware.ByUser)
	rec := httptest.NewRecorder()
	limiter.Middleware(okHandler(&called)).ServeHTTP(rec, userRequest(123))

	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "99", rec.Header().Get("X-Rate-Limit-Remaining"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRateLimit_OverLimit(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	mock.ExpectIncr("ratelimit:user:123").SetVal(101)
	mock.ExpectTTL("ratelimit:user:123").SetVal(30 * time.Minute)

	called := false
	limiter := middleware.NewRateLimiter(db, 100, time.Hour, middleware.ByUser)
	rec := httptest.NewRecorder()
	limiter.Middleware(okHandler(&called)).ServeHTTP(rec, userRequest(123))

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "0", rec.Header().Get("X-Rate-Limit-Remaining"))
	assert.Equal(t, "1800", rec.Header().Get("Retry-After"))
}

func TestRateLimit_ByIPForAuthRoutes(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	mock.ExpectIncr("ratelimit:ip:10.0.0.9").SetVal(6)
	mock.ExpectTTL("ratelimit:ip:10.0.0.9").SetVal(10 * time.Minute)

	called := false
	limiter := middleware.NewRateLimiter(db, 5, 15*time.Minute, middleware.ByIP)
	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = "10.0.0.9:51234"
	rec := httptest.NewRecorder()
	limiter.Middleware(okHandler(&called)).ServeHTTP(rec, req)

	assert.False(t, called)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func TestRateLimit_RequiresUser(t *testing.T) {
	db, _ := redismock.NewClientMock()
	defer db.Close()

	called := false
	limiter := middleware.NewRateLimiter(db, 100, time.Hour, middleware.ByUser)
	rec := httptest.NewRecorder()
	limiter.Middleware(okHandler(&called)).ServeHTTP(rec, httptest.NewRequest("GET", "/tasks", nil))

	assert.False(t, called)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRateLimit_RedisError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()
	mock.ExpectIncr("ratelimit:user:1").SetErr(errors.New("down"))

	called := false
	limiter := middleware.NewRateLimiter(db, 100, time.Hour, middleware.ByUser)
	rec := httptest.NewRecorder()
	limiter.Middleware(okHandler(&called)).ServeHTTP(rec, userRequest(1))

	assert.False(t, called)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestRateLimit_DisabledWithoutRedis(t *testing.T) {
	called := false
	limiter := middleware.NewRateLimiter(nil, 1, time.Hour, middleware.ByUser)
	rec := httptest.NewRecorder()
	limiter.Middleware(okHandler(&called)).ServeHTTP(rec, userRequest(1))

	assert.True(t, called)
}

func TestByIP_IgnoresForwardedFor(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "198.51.100.9:40000"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	key, ok := middleware.ByIP(req)
	assert.True(t, ok)
	assert.Equal(t, "ratelimit:ip:198.51.100.9", key)
}

func TestByClientIP_SpoofedHeadersShareOneBucket(t *testing.T) {
	key, err := middleware.ByClientIP(nil)
	require.NoError(t, err)

	buckets := map[string]struct{}{}
	for i := 0; i < 10; i++ {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "198.51.100.9:40000"
		req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
		k, ok := key(req)
		require.True(t, ok)
		buckets[k] = struct{}{}
	}

	assert.Len(t, buckets, 1)
	assert.Contains(t, buckets, "ratelimit:ip:198.51.100.9")
}

func TestByClientIP_TrustedProxy(t *testing.T) {
	key, err := middleware.ByClientIP([]string{"10.0.0.0/8", "192.0.2.1"})
	require.NoError(t, err)

	cases := []struct {
		remote, forwarded, want string
	}{
		{"10.1.2.3:5000", "203.0.113.7, 10.1.2.3", "ratelimit:ip:203.0.113.7"},
		{"192.0.2.1:5000", "203.0.113.8", "ratelimit:ip:203.0.113.8"},
		{"10.1.2.3:5000", "not-an-ip", "ratelimit:ip:10.1.2.3"},
		{"10.1.2.3:5000", "", "ratelimit:ip:10.1.2.3"},
		{"198.51.100.9:5000", "203.0.113.7", "ratelimit:ip:198.51.100.9"},
	}
	for _, tc := range cases {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = tc.remote
		if tc.forwarded != "" {
			req.Header.Set("X-Forwarded-For", tc.forwarded)
		}
		got, ok := key(req)
		assert.True(t, ok)
		assert.Equal(t, tc.want, got, tc.remote)
	}
}

func TestByClientIP_RejectsInvalidProxy(t *testing.T) {
	_, err := middleware.ByClientIP([]string{"proxy.local"})
	assert.Error(t, err)
}

func TestRateLimit_SpoofedForwardedForStillLimited(t *testing.T) {
	db, mock := redismock.NewClientMock()
	defer db.Close()

	mock.ExpectIncr("ratelimit:ip:198.51.100.9").SetVal(5)
	mock.ExpectTTL("ratelimit:ip:198.51.100.9").SetVal(10 * time.Minute)
	mock.ExpectIncr("ratelimit:ip:198.51.100.9").SetVal(6)
	mock.ExpectTTL("ratelimit:ip:198.51.100.9").SetVal(10 * time.Minute)

	key, err := middleware.ByClientIP(nil)
	require.NoError(t, err)
	limiter := middleware.NewRateLimiter(db, 5, 15*time.Minute, key)

	codes := []int{}
	for _, fwd := range []string{"203.0.113.1", "203.0.113.2"} {
		called := false
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "198.51.100.9:40000"
		req.Header.Set("X-Forwarded-For", fwd)
		rec := httptest.NewRecorder()
		limiter.Middleware(okHandler(&called)).ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)
	assert.NoError(t, mock.ExpectationsWereMet())
}
