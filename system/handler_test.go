package system

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"taskflow/cache"
	"taskflow/common"
	"taskflow/storage/sqlite/sqlitetest"
)

var testJWT = common.NewJWT("test-secret", time.Hour)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	cache.RedisClient = nil
	return NewHandler(sqlitetest.NewTestDB(t), nil, testJWT, zap.NewNop())
}

func newMockHandler(t *testing.T) (*Handler, sqlmock.Sqlmock) {
	t.Helper()
	cache.RedisClient = nil
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewHandler(sqlx.NewDb(db, "sqlite"), nil, testJWT, zap.NewNop()), mock
}

func jsonBody(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func asUser(req *http.Request, userID int64) *http.Request {
	return req.WithContext(common.WithUserID(req.Context(), userID))
}

func register(t *testing.T, h *Handler, username string) authResponse {
	t.Helper()
	req := httptest.NewRequest("POST", "/register", jsonBody(t, map[string]string{
		"username": username,
		"email":    username + "@example.com",
		"password": "password123",
	}))
	rec := httptest.NewRecorder()
	h.Register(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestRegister_Success(t *testing.T) {
	h := newTestHandler(t)

	resp := register(t, h, "testuser")

	assert.Equal(t, "Registration successful", resp.Message)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "testuser", resp.User.Username)
	assert.Empty(t, resp.User.Password)

	claims, err := testJWT.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, resp.User.ID, claims.UserID)
}

func TestRegister_InvalidBody(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest("POST", "/register", strings.NewReader("invalid")))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRegister_ValidationErrors(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest("POST", "/register", jsonBody(t, map[string]string{
		"username": "ab",
		"email":    "not-an-email",
	})))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	var resp struct {
		Errors []FieldError `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	fields := map[string]string{}
	for _, e := range resp.Errors {
		fields[e.Field] = e.Message
	}
	assert.Equal(t, "username must be at least 3 characters", fields["username"])
	assert.Equal(t, "email must be a valid email", fields["email"])
	assert.Equal(t, "password is required", fields["password"])
}

func TestRegister_Duplicate(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "testuser")

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest("POST", "/register", jsonBody(t, map[string]string{
		"username": "testuser",
		"email":    "other@example.com",
		"password": "password123",
	})))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_DBError(t *testing.T) {
	h, mock := newMockHandler(t)
	mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("disk I/O error"))

	rec := httptest.NewRecorder()
	h.Register(rec, httptest.NewRequest("POST", "/register", jsonBody(t, map[string]string{
		"username": "testuser",
		"email":    "testuser@example.com",
		"password": "password123",
	})))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "DB error")
	assert.NotContains(t, rec.Body.String(), "disk")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLogin_Success(t *testing.T) {
	h := newTestHandler(t)
	registered := register(t, h, "alice")

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest("POST", "/login", jsonBody(t, map[string]string{
		"username": "alice",
		"password": "password123",
	})))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp authResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Login successful", resp.Message)
	assert.Empty(t, resp.User.Password)
	require.NotNil(t, resp.User.LastLoginAt)

	claims, err := testJWT.ValidateToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, registered.User.ID, claims.UserID)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	h := newTestHandler(t)
	register(t, h, "alice")

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "wrong-password"},
		{"username": "nobody", "password": "password123"},
	} {
		rec := httptest.NewRecorder()
		h.Login(rec, httptest.NewRequest("POST", "/login", jsonBody(t, creds)))
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "Invalid username or password")
	}
}

func TestLogin_DBError(t *testing.T) {
	h, mock := newMockHandler(t)
	mock.ExpectQuery("SELECT \\* FROM users").WillReturnError(errors.New("DB error"))

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest("POST", "/login", jsonBody(t, map[string]string{
		"username": "alice",
		"password": "password123",
	})))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestMe(t *testing.T) {
	h := newTestHandler(t)
	registered := register(t, h, "alice")

	rec := httptest.NewRecorder()
	h.Me(rec, asUser(httptest.NewRequest("GET", "/users/me", nil), registered.User.ID))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = httptest.NewRecorder()
	h.Me(rec, httptest.NewRequest("GET", "/users/me", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestHealth_OK(t *testing.T) {
	h := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var status HealthStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, "up", status.Database)
	assert.Equal(t, "disabled", status.Redis)
}

func TestHealth_DatabaseDown(t *testing.T) {
	h, mock := newMockHandler(t)
	mock.ExpectPing().WillReturnError(errors.New("down"))

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest("GET", "/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), `"database":"down"`)
}
