package server

import (
	"errors"
	"log/slog"

	"appforge/internal/middleware"
	"appforge/internal/models"

	"github.com/gofiber/fiber/v2"
)

// Response is the envelope of every API response. Code 0 means success.
type Response struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

func ok(c *fiber.Ctx, data any) error {
	return c.JSON(Response{Code: 0, Data: data, Message: "ok"})
}

var statusByCode = map[string]int{
	models.CodeParams:   fiber.StatusBadRequest,
	models.CodeNotLogin: fiber.StatusUnauthorized,
	models.CodeNoAuth:   fiber.StatusForbidden,
	models.CodeNotFound: fiber.StatusNotFound,
}

// ErrorHandler writes err in the response envelope. AppErrors map to a status
// by kind; wrapped causes are logged and never sent to the client.
func ErrorHandler(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(Response{Code: fe.Code * 100, Message: fe.Message})
	}

	appErr := models.AsAppError(err)
	status, known := statusByCode[appErr.Code]
	if !known {
		status = fiber.StatusInternalServerError
		middleware.Logger.ErrorContext(c.UserContext(), "request failed",
			slog.String("code", appErr.Code),
			slog.String("path", c.Path()),
			slog.String("error", err.Error()),
		)
	}
	return c.Status(status).JSON(Response{Code: appErr.Numeric(), Message: appErr.Message})
}
