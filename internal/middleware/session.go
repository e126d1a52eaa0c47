package middleware

import (
	"log/slog"
	"time"

	"appforge/internal/session"

	"github.com/gofiber/fiber/v2"
)

const sessionLocalsKey = "session"

// SessionConfig configures the session cookie.
type SessionConfig struct {
	CookieName string
	Secure     bool
}

// Sessions loads the caller's session from the signed cookie, exposes it to
// handlers and persists it once the handler chain returns. A session left
// empty is destroyed and its cookie cleared.
func Sessions(manager *session.Manager, cfg SessionConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		s, err := manager.Start(c.UserContext(), c.Cookies(cfg.CookieName))
		if err != nil {
			Logger.ErrorContext(c.UserContext(), "session store unavailable", slog.String("error", err.Error()))
			return fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
		}
		c.Locals(sessionLocalsKey, s)
		if uid, ok := s.UserID(); ok {
			c.Locals("userID", uid)
			c.SetUserContext(WithUserID(c.UserContext(), uid))
		}

		chainErr := c.Next()

		token, keep, err := manager.Commit(c.UserContext(), s)
		if err != nil {
			Logger.ErrorContext(c.UserContext(), "failed to persist session", slog.String("error", err.Error()))
			if chainErr == nil {
				chainErr = fiber.NewError(fiber.StatusServiceUnavailable, "session store unavailable")
			}
			return chainErr
		}
		switch {
		case keep:
			c.Cookie(&fiber.Cookie{
				Name:     cfg.CookieName,
				Value:    token,
				Path:     "/",
				Expires:  time.Now().Add(manager.TTL()),
				HTTPOnly: true,
				Secure:   cfg.Secure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		case c.Cookies(cfg.CookieName) != "":
			c.ClearCookie(cfg.CookieName)
		}
		return chainErr
	}
}

// SessionFrom returns the session attached by Sessions. Outside that
// middleware it returns a fresh session that is never persisted.
func SessionFrom(c *fiber.Ctx) *session.Session {
	if s, ok := c.Locals(sessionLocalsKey).(*session.Session); ok {
		return s
	}
	return session.New()
}
