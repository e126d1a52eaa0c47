package middleware

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"appforge/internal/observability"
	"appforge/internal/session"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	t.Run("bypassed outside production", func(t *testing.T) {
		t.Setenv("APP_ENV", "test")
		allowed, err := CheckRateLimit(context.Background(), nil, "login", "ip:1", 1, time.Minute)
		assert.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("nil client errors", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		allowed, err := CheckRateLimit(context.Background(), nil, "login", "ip:1", 1, time.Minute)
		assert.Error(t, err)
		assert.False(t, allowed)
	})

	t.Run("counts within the window", func(t *testing.T) {
		t.Setenv("APP_ENV", "production")
		for i := 0; i < 2; i++ {
			allowed, err := CheckRateLimit(context.Background(), rdb, "login", "ip:2", 2, time.Minute)
			require.NoError(t, err)
			assert.True(t, allowed)
		}
		allowed, err := CheckRateLimit(context.Background(), rdb, "login", "ip:2", 2, time.Minute)
		require.NoError(t, err)
		assert.False(t, allowed)
		assert.Equal(t, time.Minute, mr.TTL("rl:login:ip:2"))
	})
}

func TestRateLimit_FailPolicy(t *testing.T) {
	t.Setenv("APP_ENV", "production")

	open := fiber.New()
	open.Get("/", RateLimit(nil, 1, time.Minute, "x"), func(c *fiber.Ctx) error { return c.SendString("ok") })
	resp, err := open.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	closed := fiber.New()
	closed.Get("/", RateLimitWithPolicy(nil, 1, time.Minute, FailClosed, "x"), func(c *fiber.Ctx) error { return c.SendString("ok") })
	resp, err = closed.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusServiceUnavailable, resp.StatusCode)
}

func newSessionApp(t *testing.T) (*fiber.App, *session.StorageStore, *session.Signer) {
	t.Helper()
	store := session.NewMemoryStore()
	signer, err := session.NewSigner("test-secret-at-least-32-characters!!", time.Hour)
	require.NoError(t, err)
	manager := session.NewManager(store, signer, time.Hour)

	app := fiber.New()
	app.Use(Sessions(manager, SessionConfig{CookieName: "sid"}))
	app.Post("/login", func(c *fiber.Ctx) error {
		if err := SessionFrom(c).BindUser(11); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Post("/logout", func(c *fiber.Ctx) error {
		SessionFrom(c).ClearUser()
		return c.SendStatus(fiber.StatusNoContent)
	})
	app.Get("/me", func(c *fiber.Ctx) error {
		uid, ok := c.Locals("userID").(uint)
		if !ok {
			return c.SendStatus(fiber.StatusUnauthorized)
		}
		return c.JSON(fiber.Map{"id": uid})
	})
	return app, store, signer
}

// stored reports whether the session named by token is in store.
func stored(t *testing.T, store session.Store, signer *session.Signer, token string) bool {
	t.Helper()
	id, err := signer.Parse(token)
	require.NoError(t, err)
	s, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	return s != nil
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, ck := range resp.Cookies() {
		if ck.Name == "sid" {
			return ck
		}
	}
	return nil
}

func TestSessions_RoundTrip(t *testing.T) {
	app, store, signer := newSessionApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/me", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.Nil(t, sessionCookie(resp), "anonymous requests get no cookie")

	resp, err = app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	ck := sessionCookie(resp)
	require.NotNil(t, ck)
	assert.True(t, ck.HttpOnly)
	assert.True(t, stored(t, store, signer, ck.Value))

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: ck.Value})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"id":11}`, string(body))

	req = httptest.NewRequest(http.MethodPost, "/logout", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: ck.Value})
	resp, err = app.Test(req)
	require.NoError(t, err)
	cleared := sessionCookie(resp)
	require.NotNil(t, cleared)
	assert.Empty(t, cleared.Value)
	assert.False(t, stored(t, store, signer, ck.Value))
}

func TestSessions_TamperedCookieIsAnonymous(t *testing.T) {
	app, _, _ := newSessionApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodPost, "/login", nil))
	require.NoError(t, err)
	ck := sessionCookie(resp)
	require.NotNil(t, ck)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.AddCookie(&http.Cookie{Name: "sid", Value: ck.Value[:len(ck.Value)-4] + "AAAA"})
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestContextMiddleware_CorrelationID(t *testing.T) {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("requestid", "req-1")
		return c.Next()
	})
	app.Use(ContextMiddleware())
	app.Get("/", func(c *fiber.Ctx) error {
		return c.SendString(observability.ExtractCorrelationID(c.UserContext()))
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "req-1", string(body))
	assert.Equal(t, "req-1", resp.Header.Get(CorrelationHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(CorrelationHeader, "upstream-7")
	resp, err = app.Test(req)
	require.NoError(t, err)
	body, _ = io.ReadAll(resp.Body)
	assert.Equal(t, "upstream-7", string(body))
}
