package server

import (
	"time"

	"appforge/internal/middleware"
	"appforge/internal/models"
	"appforge/internal/query"
	"appforge/internal/service"

	"github.com/gofiber/fiber/v2"
)

const defaultChatPageSize = 10

type cleanupRequest struct {
	RetentionDays int `json:"retentionDays"`
}

// AddMessage handles POST /api/chat-history/add
// @Summary Append a message
// @Tags chat-history
// @Accept json
// @Produce json
// @Param request body service.AddMessageInput true "Message"
// @Success 200 {object} server.Response{data=integer}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /chat-history/add [post]
func (s *Server) AddMessage(c *fiber.Ctx) error {
	in, err := bind[service.AddMessageInput](c)
	if err != nil {
		return err
	}
	id, err := s.chatService.AddMessage(c.UserContext(), middleware.SessionFrom(c), in)
	if err != nil {
		return err
	}
	return ok(c, id)
}

// ListAppChatHistory pages backwards through an app's conversation. The
// lastCreateTime query parameter is the cursor returned by the previous page.
// @Summary Page through a conversation
// @Tags chat-history
// @Produce json
// @Param appId path int true "App id"
// @Param pageSize query int false "Page size, at most 50"
// @Param lastCreateTime query string false "Cursor (RFC 3339)"
// @Success 200 {object} server.Response{data=[]models.ChatHistory}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /chat-history/app/{appId} [get]
func (s *Server) ListAppChatHistory(c *fiber.Ctx) error {
	appID, err := paramID(c, "appId")
	if err != nil {
		return err
	}
	before, err := queryTime(c, "lastCreateTime")
	if err != nil {
		return err
	}
	pageSize := c.QueryInt("pageSize", defaultChatPageSize)
	records, err := s.chatService.ListAppChatHistory(c.UserContext(), middleware.SessionFrom(c), appID, pageSize, before)
	if err != nil {
		return err
	}
	return ok(c, records)
}

// SyncChatHistory returns the messages created after the "after" timestamp.
// @Summary Messages after a timestamp
// @Tags chat-history
// @Produce json
// @Param appId path int true "App id"
// @Param after query string true "Lower bound (RFC 3339)"
// @Success 200 {object} server.Response{data=[]models.ChatHistory}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /chat-history/app/{appId}/sync [get]
func (s *Server) SyncChatHistory(c *fiber.Ctx) error {
	appID, err := paramID(c, "appId")
	if err != nil {
		return err
	}
	after, err := queryTime(c, "after")
	if err != nil {
		return err
	}
	if after == nil {
		return models.NewParamsError("after is required")
	}
	records, err := s.chatService.SyncAfter(c.UserContext(), middleware.SessionFrom(c), appID, *after, c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return ok(c, records)
}

// AdminListChatHistory handles POST /api/chat-history/admin/list/page/vo
// @Summary List messages (admin)
// @Tags chat-history
// @Accept json
// @Produce json
// @Param request body query.ChatHistoryQueryRequest true "Filter, sort and page"
// @Success 200 {object} server.Response{data=models.Page[models.ChatHistory]}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /chat-history/admin/list/page/vo [post]
func (s *Server) AdminListChatHistory(c *fiber.Ctx) error {
	req, err := bind[query.ChatHistoryQueryRequest](c)
	if err != nil {
		return err
	}
	page, err := s.chatService.AdminListChatHistory(c.UserContext(), middleware.SessionFrom(c), &req)
	if err != nil {
		return err
	}
	return ok(c, page)
}

// CleanupChatHistory soft-deletes messages past the retention window. A body
// without retentionDays uses the configured default.
// @Summary Apply chat retention (admin)
// @Tags chat-history
// @Accept json
// @Produce json
// @Param request body server.cleanupRequest false "Retention in days"
// @Success 200 {object} server.Response{data=integer}
// @Failure 400 {object} server.Response
// @Failure 401 {object} server.Response
// @Router /chat-history/admin/cleanup [post]
func (s *Server) CleanupChatHistory(c *fiber.Ctx) error {
	in := cleanupRequest{}
	if len(c.Body()) > 0 {
		var err error
		if in, err = bind[cleanupRequest](c); err != nil {
			return err
		}
	}
	days := in.RetentionDays
	if days == 0 {
		days = s.config.ChatRetentionDays
	}
	n, err := s.chatService.CleanupBefore(c.UserContext(), middleware.SessionFrom(c), time.Duration(days)*24*time.Hour)
	if err != nil {
		return err
	}
	return ok(c, n)
}
