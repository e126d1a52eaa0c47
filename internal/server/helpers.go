package server

import (
	"strings"
	"time"
	"unicode"

	"appforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// idRequest is the body of the delete endpoints.
type idRequest struct {
	ID uint `json:"id"`
}

// bind decodes the request body into a T. A malformed body is a caller error.
func bind[T any](c *fiber.Ctx) (T, error) {
	var in T
	if err := c.BodyParser(&in); err != nil {
		return in, models.NewParamsError("invalid request body")
	}
	return in, nil
}

// queryID reads a positive id from the query string.
func queryID(c *fiber.Ctx, name string) (uint, error) {
	id := c.QueryInt(name, 0)
	if id <= 0 {
		return 0, models.NewParamsError("invalid " + humanizeParam(name))
	}
	return uint(id), nil
}

// paramID reads a positive id from a route parameter.
func paramID(c *fiber.Ctx, name string) (uint, error) {
	id, err := c.ParamsInt(name)
	if err != nil || id <= 0 {
		return 0, models.NewParamsError("invalid " + humanizeParam(name))
	}
	return uint(id), nil
}

// queryTime reads an optional RFC 3339 timestamp from the query string.
func queryTime(c *fiber.Ctx, name string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil, models.NewParamsError("invalid " + humanizeParam(name))
	}
	return &t, nil
}

// humanizeParam converts a parameter name into a readable label:
// "id" -> "ID", "appId" -> "app ID", "lastCreateTime" -> "last create time".
func humanizeParam(param string) string {
	if param == "id" {
		return "ID"
	}
	if strings.HasSuffix(param, "Id") {
		words := splitCamel(param[:len(param)-2])
		return strings.ToLower(strings.Join(words, " ")) + " ID"
	}
	return strings.ToLower(strings.Join(splitCamel(param), " "))
}

func splitCamel(s string) []string {
	var words []string
	start := 0
	for i, r := range s {
		if i > 0 && unicode.IsUpper(r) {
			words = append(words, s[start:i])
			start = i
		}
	}
	return append(words, s[start:])
}
