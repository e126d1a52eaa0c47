package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"appforge/internal/config"
	"appforge/internal/database"
	"appforge/internal/models"
	"appforge/internal/repository"
	"appforge/internal/security"
	"appforge/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testCookie = "appforge_session"

type envelope struct {
	Code    int             `json:"code"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type testServer struct {
	app    *fiber.App
	db     *gorm.DB
	store  *session.StorageStore
	signer *session.Signer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithRedis(t, nil)
}

func newTestServerWithRedis(t *testing.T, redisClient *redis.Client) *testServer {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		Env:                 "test",
		SessionSecret:       "test-session-secret-with-32-chars!",
		SessionCookieName:   testCookie,
		SessionTTLMinutes:   60,
		DefaultUserPassword: "12345678",
		ChatRetentionDays:   180,
		AllowedOrigins:      "http://localhost:3000",
	}
	store := session.NewMemoryStore()
	srv, err := NewServerWithDeps(cfg, db, redisClient, store)
	require.NoError(t, err)
	signer, err := session.NewSigner(cfg.SessionSecret, time.Hour)
	require.NoError(t, err)
	return &testServer{app: srv.NewApp(), db: db, store: store, signer: signer}
}

// stored reports whether the session named by the cookie is in the store.
func (ts *testServer) stored(t *testing.T, ck *http.Cookie) bool {
	t.Helper()
	id, err := ts.signer.Parse(ck.Value)
	require.NoError(t, err)
	s, err := ts.store.Load(context.Background(), id)
	require.NoError(t, err)
	return s != nil
}

// call sends a request with an optional JSON body and session cookie.
func (ts *testServer) call(t *testing.T, method, path string, body any, cookie *http.Cookie) (*http.Response, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	resp, err := ts.app.Test(req, -1)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	}
	return resp, env
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == testCookie {
			return ck
		}
	}
	return nil
}

// seedAccount stores an account with password "password123".
func (ts *testServer) seedAccount(t *testing.T, account string, role models.UserRole) *models.User {
	t.Helper()
	verifier, err := security.BcryptHasher{Cost: bcrypt.MinCost}.Hash("password123")
	require.NoError(t, err)
	u := models.NewUser(models.User{UserAccount: account, UserPassword: verifier, UserName: account, UserRole: role})
	require.NoError(t, repository.NewUserRepository(ts.db).Create(context.Background(), u))
	return u
}

func (ts *testServer) login(t *testing.T, account string) *http.Cookie {
	t.Helper()
	resp, env := ts.call(t, http.MethodPost, "/api/user/login",
		map[string]string{"userAccount": account, "userPassword": "password123"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	ck := sessionCookie(resp)
	require.NotNil(t, ck)
	return ck
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "healthy", body["status"])
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "unavailable", checks["redis"])
}

func TestSwaggerDoc(t *testing.T) {
	ts := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/swagger/doc.json", nil)
	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var doc struct {
		Info struct {
			Title string `json:"title"`
		} `json:"info"`
		BasePath string                    `json:"basePath"`
		Paths    map[string]map[string]any `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "Appforge API", doc.Info.Title)
	assert.Equal(t, "/api", doc.BasePath)
	assert.Contains(t, doc.Paths["/user/login"], "post")
	assert.Contains(t, doc.Paths["/app/deployed/{deployKey}"], "get")
	assert.Contains(t, doc.Paths["/chat-history/app/{appId}/sync"], "get")
}

func TestUserFlow(t *testing.T) {
	ts := newTestServer(t)

	resp, env := ts.call(t, http.MethodPost, "/api/user/register", map[string]string{
		"userAccount": "alice01", "userPassword": "password123", "checkPassword": "password123",
	}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.Equal(t, 0, env.Code)
	assert.Nil(t, sessionCookie(resp), "anonymous sessions are not persisted")

	ck := ts.login(t, "alice01")
	assert.True(t, ck.HttpOnly)
	assert.True(t, ts.stored(t, ck))

	resp, env = ts.call(t, http.MethodGet, "/api/user/get/login", nil, ck)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.LoginUserView
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "alice01", me.UserAccount)
	assert.NotContains(t, string(env.Data), "userPassword")

	resp, _ = ts.call(t, http.MethodPost, "/api/user/logout", nil, ck)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.False(t, ts.stored(t, ck))

	resp, env = ts.call(t, http.MethodGet, "/api/user/get/login", nil, ck)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 40100, env.Code)
}

func TestLoginIssuesNewSessionID(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "mallory1", models.RoleUser)
	ts.seedAccount(t, "alice01", models.RoleUser)

	planted := ts.login(t, "mallory1")

	resp, env := ts.call(t, http.MethodPost, "/api/user/login",
		map[string]string{"userAccount": "alice01", "userPassword": "password123"}, planted)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	issued := sessionCookie(resp)
	require.NotNil(t, issued)
	assert.NotEqual(t, planted.Value, issued.Value)
	assert.False(t, ts.stored(t, planted))

	resp, env = ts.call(t, http.MethodGet, "/api/user/get/login", nil, planted)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, 40100, env.Code)

	resp, env = ts.call(t, http.MethodGet, "/api/user/get/login", nil, issued)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var me models.LoginUserView
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, "alice01", me.UserAccount)
}

func TestRateLimitUsesEnvelope(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	ts := newTestServerWithRedis(t, rdb)

	for i := 0; i < 3; i++ {
		resp, env := ts.call(t, http.MethodPost, "/api/user/register", map[string]string{
			"userAccount": fmt.Sprintf("burst%02d", i), "userPassword": "password123", "checkPassword": "password123",
		}, nil)
		require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	}

	resp, env := ts.call(t, http.MethodPost, "/api/user/register", map[string]string{
		"userAccount": "burst99", "userPassword": "password123", "checkPassword": "password123",
	}, nil)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, 42900, env.Code)
	assert.Equal(t, "too many requests", env.Message)
	assert.Contains(t, []string{"", "null"}, string(env.Data))
}

func TestErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "plain01", models.RoleUser)
	ck := ts.login(t, "plain01")

	tests := []struct {
		name   string
		method string
		path   string
		body   any
		cookie *http.Cookie
		status int
		code   int
	}{
		{"short account", http.MethodPost, "/api/user/register",
			map[string]string{"userAccount": "ab", "userPassword": "password123", "checkPassword": "password123"},
			nil, http.StatusBadRequest, 40000},
		{"not logged in", http.MethodPost, "/api/app/add", map[string]string{"initPrompt": "hello"},
			nil, http.StatusUnauthorized, 40100},
		{"not admin", http.MethodPost, "/api/user/list/page/vo", map[string]any{},
			ck, http.StatusForbidden, 40101},
		{"missing id", http.MethodGet, "/api/app/get/vo", nil, nil, http.StatusBadRequest, 40000},
		{"unknown app", http.MethodGet, "/api/app/get/vo?id=999", nil, nil, http.StatusNotFound, 40400},
		{"unknown route", http.MethodGet, "/api/nope", nil, nil, http.StatusNotFound, 40400},
		{"bad cursor", http.MethodGet, "/api/chat-history/app/1?lastCreateTime=yesterday", nil, ck,
			http.StatusBadRequest, 40000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, env := ts.call(t, tt.method, tt.path, tt.body, tt.cookie)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, env.Code)
			assert.NotEmpty(t, env.Message)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/api/user/login", bytes.NewReader([]byte("{")))
	req.Header.Set("Content-Type", "application/json")
	resp, err := ts.app.Test(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAppAndChatFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "owner01", models.RoleUser)
	ts.seedAccount(t, "other01", models.RoleUser)
	owner := ts.login(t, "owner01")
	other := ts.login(t, "other01")

	resp, env := ts.call(t, http.MethodPost, "/api/app/add", map[string]string{"initPrompt": "a landing page for bakeries"}, owner)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var appID uint
	require.NoError(t, json.Unmarshal(env.Data, &appID))

	resp, env = ts.call(t, http.MethodGet, fmt.Sprintf("/api/app/get/vo?id=%d", appID), nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var view models.AppView
	require.NoError(t, json.Unmarshal(env.Data, &view))
	assert.Equal(t, "a landing pa", view.AppName)
	assert.Equal(t, "owner01", view.User.UserAccount)

	for _, msg := range []map[string]any{
		{"appId": appID, "message": "make it pink", "messageType": "user"},
		{"appId": appID, "message": "done", "messageType": "ai"},
	} {
		resp, env = ts.call(t, http.MethodPost, "/api/chat-history/add", msg, owner)
		require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	}

	resp, _ = ts.call(t, http.MethodGet, fmt.Sprintf("/api/chat-history/app/%d", appID), nil, other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env = ts.call(t, http.MethodGet, fmt.Sprintf("/api/chat-history/app/%d?pageSize=1", appID), nil, owner)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page []models.ChatHistory
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page, 1)
	assert.Equal(t, "done", page[0].Message)

	resp, _ = ts.call(t, http.MethodPost, "/api/app/delete", map[string]uint{"id": appID}, other)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, env = ts.call(t, http.MethodPost, "/api/app/delete", map[string]uint{"id": appID}, owner)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)

	resp, _ = ts.call(t, http.MethodGet, fmt.Sprintf("/api/app/get/vo?id=%d", appID), nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var live int64
	require.NoError(t, ts.db.Model(&models.ChatHistory{}).
		Where("app_id = ? AND is_delete = ?", appID, models.NotDeleted).Count(&live).Error)
	assert.Zero(t, live)
}

func TestFeaturedAppsArePublic(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.seedAccount(t, "owner01", models.RoleUser)
	for i, priority := range []int{99, 0, 120} {
		a := models.NewApp(models.App{AppName: fmt.Sprintf("app %d", i), UserID: owner.ID, Priority: priority, CodeGenType: models.CodeGenHTML})
		require.NoError(t, ts.db.Create(a).Error)
	}

	resp, env := ts.call(t, http.MethodPost, "/api/app/good/list/page/vo", map[string]int{"current": 1, "pageSize": 10}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	var page models.Page[models.AppView]
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Equal(t, int64(2), page.Total)
	require.Len(t, page.Records, 2)
	assert.Equal(t, 120, page.Records[0].Priority)

	resp, _ = ts.call(t, http.MethodPost, "/api/app/good/list/page/vo", map[string]int{"pageSize": 21}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestCleanupRequiresAdmin(t *testing.T) {
	ts := newTestServer(t)
	ts.seedAccount(t, "admin01", models.RoleAdmin)
	ts.seedAccount(t, "plain01", models.RoleUser)
	admin := ts.login(t, "admin01")
	plain := ts.login(t, "plain01")

	resp, _ := ts.call(t, http.MethodPost, "/api/chat-history/admin/cleanup", nil, plain)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, env := ts.call(t, http.MethodPost, "/api/chat-history/admin/cleanup", map[string]int{"retentionDays": 30}, admin)
	require.Equal(t, http.StatusOK, resp.StatusCode, env.Message)
	assert.JSONEq(t, "0", string(env.Data))
}

func TestHumanizeParam(t *testing.T) {
	tests := []struct {
		param    string
		expected string
	}{
		{"id", "ID"},
		{"appId", "app ID"},
		{"lastCreateTime", "last create time"},
		{"after", "after"},
	}
	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			assert.Equal(t, tt.expected, humanizeParam(tt.param))
		})
	}
}
