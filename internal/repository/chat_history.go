package repository

import (
	"context"
	"time"

	"appforge/internal/models"
	"appforge/internal/observability"
	"appforge/internal/query"

	"gorm.io/gorm"
)

const chatHistoryTable = "chat_history"

// ChatHistoryRepository defines persistence operations for chat messages.
type ChatHistoryRepository interface {
	Create(ctx context.Context, h *models.ChatHistory) error
	ListByApp(ctx context.Context, appID uint, page query.PageRequest) (models.Page[models.ChatHistory], error)
	ListByAppAndUser(ctx context.Context, appID, userID uint, page query.PageRequest) (models.Page[models.ChatHistory], error)
	ListByUser(ctx context.Context, userID uint, page query.PageRequest) (models.Page[models.ChatHistory], error)
	CountByApp(ctx context.Context, appID uint) (int64, error)
	CountByAppAndType(ctx context.Context, appID uint, messageType models.MessageType) (int64, error)
	ListLatestByApp(ctx context.Context, appID uint, limit int) ([]models.ChatHistory, error)
	ListByAppAfter(ctx context.Context, appID uint, after time.Time, limit int) ([]models.ChatHistory, error)
	ListByAppBefore(ctx context.Context, appID uint, before *time.Time, limit int) ([]models.ChatHistory, error)
	SoftDeleteByApp(ctx context.Context, appID uint) (int64, error)
	SoftDeleteBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Delete(ctx context.Context, id uint) (bool, error)
	ListPage(ctx context.Context, f query.Filter, sort query.Sort, page query.PageRequest) (models.Page[models.ChatHistory], error)
}

type chatHistoryRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewChatHistoryRepository returns a new ChatHistoryRepository implementation.
func NewChatHistoryRepository(db *gorm.DB) ChatHistoryRepository {
	return &chatHistoryRepository{
		db:      db,
		log:     observability.NewRepoLogger(chatHistoryTable),
		metrics: observability.NewDatabaseMetrics(chatHistoryTable),
	}
}

func (r *chatHistoryRepository) read(ctx context.Context) *gorm.DB {
	return readDB(r.db).WithContext(ctx)
}

func (r *chatHistoryRepository) Create(ctx context.Context, h *models.ChatHistory) error {
	if err := h.Validate(); err != nil {
		return err
	}
	defer r.metrics.TrackQuery("create")()
	if err := r.db.WithContext(ctx).Omit("App", "User").Create(h).Error; err != nil {
		return storageError(ctx, r.log, "create", err)
	}
	r.log.LogCreate(ctx, map[string]any{"id": h.ID, "app_id": h.AppID})
	return nil
}

func (r *chatHistoryRepository) page(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB, page query.PageRequest, order ...query.Sort) (models.Page[models.ChatHistory], error) {
	defer r.metrics.TrackQuery(operation)()
	p, err := findPage[models.ChatHistory](r.read(ctx), chatHistoryTable, scope, page.Normalize(query.MaxPageSize), order...)
	if err != nil {
		return models.Page[models.ChatHistory]{}, storageError(ctx, r.log, operation, err)
	}
	r.log.LogRead(ctx, map[string]any{"query": operation, "total": p.Total, "current": p.Current})
	return p, nil
}

func (r *chatHistoryRepository) list(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB, limit int, order query.Sort) ([]models.ChatHistory, error) {
	defer r.metrics.TrackQuery(operation)()
	records, err := findLatest[models.ChatHistory](r.read(ctx), chatHistoryTable, scope, limit, order)
	if err != nil {
		return nil, storageError(ctx, r.log, operation, err)
	}
	return records, nil
}

func (r *chatHistoryRepository) count(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	defer r.metrics.TrackQuery(operation)()
	var count int64
	err := r.read(ctx).Model(&models.ChatHistory{}).
		Scopes(notDeleted(chatHistoryTable), scope).
		Count(&count).Error
	if err != nil {
		return 0, storageError(ctx, r.log, operation, err)
	}
	return count, nil
}

func (r *chatHistoryRepository) ListByApp(ctx context.Context, appID uint, page query.PageRequest) (models.Page[models.ChatHistory], error) {
	return r.page(ctx, "list_by_app", ofApp(appID), page, newestFirst)
}

func (r *chatHistoryRepository) ListByAppAndUser(ctx context.Context, appID, userID uint, page query.PageRequest) (models.Page[models.ChatHistory], error) {
	scope := filtered(query.Filter{}.Eq("appId", appID).Eq("userId", userID), query.ChatHistoryFields)
	return r.page(ctx, "list_by_app_and_user", scope, page, newestFirst)
}

func (r *chatHistoryRepository) ListByUser(ctx context.Context, userID uint, page query.PageRequest) (models.Page[models.ChatHistory], error) {
	return r.page(ctx, "list_by_user", ownedBy(userID), page, newestFirst)
}

func (r *chatHistoryRepository) CountByApp(ctx context.Context, appID uint) (int64, error) {
	return r.count(ctx, "count_by_app", ofApp(appID))
}

func (r *chatHistoryRepository) CountByAppAndType(ctx context.Context, appID uint, messageType models.MessageType) (int64, error) {
	scope := filtered(query.Filter{}.Eq("appId", appID).Eq("messageType", messageType), query.ChatHistoryFields)
	return r.count(ctx, "count_by_app_and_type", scope)
}

func (r *chatHistoryRepository) ListLatestByApp(ctx context.Context, appID uint, limit int) ([]models.ChatHistory, error) {
	return r.list(ctx, "list_latest_by_app", ofApp(appID), limit, newestFirst)
}

// ListByAppAfter returns messages created strictly after the given time,
// oldest first, for incremental sync.
func (r *chatHistoryRepository) ListByAppAfter(ctx context.Context, appID uint, after time.Time, limit int) ([]models.ChatHistory, error) {
	scope := filtered(query.Filter{}.Eq("appId", appID).Gt("createTime", after), query.ChatHistoryFields)
	return r.list(ctx, "list_by_app_after", scope, limit, oldestFirst)
}

// ListByAppBefore returns messages created strictly before the cursor, newest
// first. A nil cursor starts from the newest message.
func (r *chatHistoryRepository) ListByAppBefore(ctx context.Context, appID uint, before *time.Time, limit int) ([]models.ChatHistory, error) {
	f, err := query.BuildChatHistoryFilter(&query.ChatHistoryQueryRequest{AppID: appID, LastCreateTime: before})
	if err != nil {
		return nil, err
	}
	return r.list(ctx, "list_by_app_before", filtered(f, query.ChatHistoryFields), limit, newestFirst)
}

// SoftDeleteByApp flags every live message of the app in one statement.
func (r *chatHistoryRepository) SoftDeleteByApp(ctx context.Context, appID uint) (int64, error) {
	defer r.metrics.TrackQuery("soft_delete_by_app")()
	n, err := softDelete(r.db.WithContext(ctx), &models.ChatHistory{}, chatHistoryTable, ofApp(appID))
	if err != nil {
		return 0, storageError(ctx, r.log, "soft_delete_by_app", err)
	}
	r.log.LogDelete(ctx, map[string]any{"app_id": appID, "rows": n})
	return n, nil
}

// SoftDeleteBefore flags every live message created before cutoff in one statement.
func (r *chatHistoryRepository) SoftDeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	defer r.metrics.TrackQuery("soft_delete_before")()
	n, err := softDelete(r.db.WithContext(ctx), &models.ChatHistory{}, chatHistoryTable, func(db *gorm.DB) *gorm.DB {
		return db.Where("create_time < ?", cutoff)
	})
	if err != nil {
		return 0, storageError(ctx, r.log, "soft_delete_before", err)
	}
	r.log.LogDelete(ctx, map[string]any{"cutoff": cutoff, "rows": n})
	return n, nil
}

func (r *chatHistoryRepository) Delete(ctx context.Context, id uint) (bool, error) {
	defer r.metrics.TrackQuery("delete")()
	n, err := softDelete(r.db.WithContext(ctx), &models.ChatHistory{}, chatHistoryTable, byID(id))
	if err != nil {
		return false, storageError(ctx, r.log, "delete", err)
	}
	r.log.LogDelete(ctx, map[string]any{"id": id, "rows": n})
	return n > 0, nil
}

func (r *chatHistoryRepository) ListPage(ctx context.Context, f query.Filter, sort query.Sort, page query.PageRequest) (models.Page[models.ChatHistory], error) {
	return r.page(ctx, "list_page", filtered(f, query.ChatHistoryFields), page, sort)
}

func ofApp(appID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("app_id = ?", appID)
	}
}
