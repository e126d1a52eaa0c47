package service

import (
	"context"
	"strings"
	"time"

	"appforge/internal/models"
	"appforge/internal/query"
	"appforge/internal/repository"
	"appforge/internal/session"
)

// MaxChatPageSize caps one page of chat history.
const MaxChatPageSize = 50

type ChatHistoryService struct {
	chats repository.ChatHistoryRepository
	apps  repository.AppRepository
	login LoginResolver
	now   func() time.Time
}

type AddMessageInput struct {
	AppID       uint               `json:"appId"`
	Message     string             `json:"message"`
	MessageType models.MessageType `json:"messageType"`
}

func NewChatHistoryService(chats repository.ChatHistoryRepository, apps repository.AppRepository, login LoginResolver) *ChatHistoryService {
	return &ChatHistoryService{chats: chats, apps: apps, login: login, now: time.Now}
}

// authorizeApp checks that the logged-in user owns appID or is an admin.
func (s *ChatHistoryService) authorizeApp(ctx context.Context, sess *session.Session, appID uint) (*models.User, error) {
	if appID == 0 {
		return nil, models.NewParamsError("app id is required")
	}
	user, err := s.login(ctx, sess)
	if err != nil {
		return nil, err
	}
	app, err := s.apps.GetByID(ctx, appID)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, models.NewNotFoundError("App", appID)
	}
	if app.UserID != user.ID && !user.IsAdmin() {
		return nil, models.NewNoAuthError()
	}
	return user, nil
}

// AddMessage appends a message to an app's conversation.
func (s *ChatHistoryService) AddMessage(ctx context.Context, sess *session.Session, in AddMessageInput) (uint, error) {
	if strings.TrimSpace(in.Message) == "" {
		return 0, models.NewParamsError("message must not be blank")
	}
	if !in.MessageType.Valid() {
		return 0, models.NewParamsError("unsupported message type")
	}
	user, err := s.authorizeApp(ctx, sess, in.AppID)
	if err != nil {
		return 0, err
	}
	h := models.NewChatHistory(models.ChatHistory{
		Message:     in.Message,
		MessageType: in.MessageType,
		AppID:       in.AppID,
		UserID:      user.ID,
	})
	if err := s.chats.Create(ctx, h); err != nil {
		if models.HasCode(err, models.CodeParams) {
			return 0, err
		}
		return 0, models.NewOperationError("failed to save message", err)
	}
	return h.ID, nil
}

// ListAppChatHistory returns up to pageSize messages older than lastCreateTime,
// newest first. A nil cursor starts from the newest message.
func (s *ChatHistoryService) ListAppChatHistory(ctx context.Context, sess *session.Session, appID uint, pageSize int, lastCreateTime *time.Time) ([]models.ChatHistory, error) {
	if pageSize < 1 || pageSize > MaxChatPageSize {
		return nil, models.NewParamsError("page size must be between 1 and 50")
	}
	if _, err := s.authorizeApp(ctx, sess, appID); err != nil {
		return nil, err
	}
	return s.chats.ListByAppBefore(ctx, appID, lastCreateTime, pageSize)
}

// SyncAfter returns messages created after the given time, oldest first.
func (s *ChatHistoryService) SyncAfter(ctx context.Context, sess *session.Session, appID uint, after time.Time, limit int) ([]models.ChatHistory, error) {
	if _, err := s.authorizeApp(ctx, sess, appID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > MaxChatPageSize {
		limit = MaxChatPageSize
	}
	return s.chats.ListByAppAfter(ctx, appID, after, limit)
}

// DeleteByApp soft-deletes every message of an app. Callers authorize.
func (s *ChatHistoryService) DeleteByApp(ctx context.Context, appID uint) (int64, error) {
	if appID == 0 {
		return 0, models.NewParamsError("app id is required")
	}
	n, err := s.chats.SoftDeleteByApp(ctx, appID)
	if err != nil {
		return 0, models.NewOperationError("failed to delete chat history", err)
	}
	return n, nil
}

// CleanupBefore soft-deletes messages older than retention. Admin only.
func (s *ChatHistoryService) CleanupBefore(ctx context.Context, sess *session.Session, retention time.Duration) (int64, error) {
	return traced(ctx, "ChatHistoryService", "CleanupBefore", func(ctx context.Context) (int64, error) {
		if _, err := requireAdmin(ctx, s.login, sess); err != nil {
			return 0, err
		}
		if retention <= 0 {
			return 0, models.NewParamsError("retention must be positive")
		}
		return s.chats.SoftDeleteBefore(ctx, s.now().Add(-retention))
	})
}

// AdminListChatHistory pages through every message matching req. Admin only.
func (s *ChatHistoryService) AdminListChatHistory(ctx context.Context, sess *session.Session, req *query.ChatHistoryQueryRequest) (models.Page[models.ChatHistory], error) {
	if _, err := requireAdmin(ctx, s.login, sess); err != nil {
		return models.Page[models.ChatHistory]{}, err
	}
	f, err := query.BuildChatHistoryFilter(req)
	if err != nil {
		return models.Page[models.ChatHistory]{}, err
	}
	sort, err := query.ResolveChatHistorySort(req)
	if err != nil {
		return models.Page[models.ChatHistory]{}, err
	}
	return s.chats.ListPage(ctx, f, sort, req.PageRequest)
}
