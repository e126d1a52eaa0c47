package repository

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"appforge/internal/cache"
	"appforge/internal/models"
	"appforge/internal/observability"
	"appforge/internal/query"

	"gorm.io/gorm"
)

const appTable = "app"

// AppRepository defines persistence operations for apps.
type AppRepository interface {
	GetByID(ctx context.Context, id uint) (*models.App, error)
	GetByIDs(ctx context.Context, ids []uint) ([]models.App, error)
	FindByDeployKey(ctx context.Context, deployKey string) (*models.App, error)
	ExistsByDeployKey(ctx context.Context, deployKey string) (bool, error)
	ListByUser(ctx context.Context, userID uint, page query.PageRequest) (models.Page[models.App], error)
	CountByUser(ctx context.Context, userID uint) (int64, error)
	ListFeatured(ctx context.Context, minPriority int, page query.PageRequest) (models.Page[models.App], error)
	SearchByName(ctx context.Context, name string, page query.PageRequest) (models.Page[models.App], error)
	ListByCodeGenType(ctx context.Context, codeGenType models.CodeGenType, page query.PageRequest) (models.Page[models.App], error)
	ListDeployed(ctx context.Context, page query.PageRequest) (models.Page[models.App], error)
	ListLatestByUser(ctx context.Context, userID uint, limit int) ([]models.App, error)
	ListPage(ctx context.Context, f query.Filter, sort query.Sort, page query.PageRequest) (models.Page[models.App], error)
	Create(ctx context.Context, app *models.App) error
	Update(ctx context.Context, app *models.App) error
	SetDeployKey(ctx context.Context, id uint, deployKey string, deployedAt time.Time) error
	Delete(ctx context.Context, id uint) (bool, error)
}

type appRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewAppRepository returns a new AppRepository implementation.
func NewAppRepository(db *gorm.DB) AppRepository {
	return &appRepository{
		db:      db,
		log:     observability.NewRepoLogger(appTable),
		metrics: observability.NewDatabaseMetrics(appTable),
	}
}

func (r *appRepository) read(ctx context.Context) *gorm.DB {
	return readDB(r.db).WithContext(ctx)
}

func (r *appRepository) first(ctx context.Context, db *gorm.DB, operation string, scope func(*gorm.DB) *gorm.DB) (*models.App, error) {
	defer r.metrics.TrackQuery(operation)()
	var app models.App
	err := db.Scopes(notDeleted(appTable), scope).Take(&app).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageError(ctx, r.log, operation, err)
	}
	return &app, nil
}

func (r *appRepository) page(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB, page query.PageRequest, order ...query.Sort) (models.Page[models.App], error) {
	defer r.metrics.TrackQuery(operation)()
	p, err := findPage[models.App](r.read(ctx), appTable, scope, page.Normalize(query.MaxPageSize), order...)
	if err != nil {
		return models.Page[models.App]{}, storageError(ctx, r.log, operation, err)
	}
	r.log.LogRead(ctx, map[string]any{"query": operation, "total": p.Total, "current": p.Current})
	return p, nil
}

func (r *appRepository) GetByID(ctx context.Context, id uint) (*models.App, error) {
	return r.first(ctx, r.read(ctx), "get_by_id", byID(id))
}

// GetByIDs returns the live apps among ids, in no particular order.
func (r *appRepository) GetByIDs(ctx context.Context, ids []uint) ([]models.App, error) {
	if len(ids) == 0 {
		return []models.App{}, nil
	}
	defer r.metrics.TrackQuery("get_by_ids")()
	apps := make([]models.App, 0, len(ids))
	if err := r.read(ctx).Scopes(notDeleted(appTable)).Where("id IN ?", ids).Find(&apps).Error; err != nil {
		return nil, storageError(ctx, r.log, "get_by_ids", err)
	}
	return apps, nil
}

// FindByDeployKey resolves a published app. Lookups are cached per key.
func (r *appRepository) FindByDeployKey(ctx context.Context, deployKey string) (*models.App, error) {
	var app models.App
	err := cache.Aside(ctx, cache.AppDeployKey(deployKey), &app, cache.AppDeployTTL, func() error {
		found, err := r.first(ctx, r.read(ctx), "find_by_deploy_key", func(db *gorm.DB) *gorm.DB {
			return db.Where("deploy_key = ?", deployKey)
		})
		if err != nil {
			return err
		}
		if found == nil {
			return cache.ErrMiss
		}
		app = *found
		return nil
	})
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

func (r *appRepository) ExistsByDeployKey(ctx context.Context, deployKey string) (bool, error) {
	defer r.metrics.TrackQuery("exists_by_deploy_key")()
	var count int64
	err := r.read(ctx).Model(&models.App{}).
		Scopes(notDeleted(appTable)).
		Where("deploy_key = ?", deployKey).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, storageError(ctx, r.log, "exists_by_deploy_key", err)
	}
	return count > 0, nil
}

func (r *appRepository) ListByUser(ctx context.Context, userID uint, page query.PageRequest) (models.Page[models.App], error) {
	return r.page(ctx, "list_by_user", ownedBy(userID), page, newestFirst)
}

func (r *appRepository) CountByUser(ctx context.Context, userID uint) (int64, error) {
	defer r.metrics.TrackQuery("count_by_user")()
	var count int64
	err := r.read(ctx).Model(&models.App{}).
		Scopes(notDeleted(appTable), ownedBy(userID)).
		Count(&count).Error
	if err != nil {
		return 0, storageError(ctx, r.log, "count_by_user", err)
	}
	return count, nil
}

// ListFeatured lists apps with priority >= minPriority, highest priority
// first and newest first within a priority.
func (r *appRepository) ListFeatured(ctx context.Context, minPriority int, page query.PageRequest) (models.Page[models.App], error) {
	scope := filtered(query.Filter{}.Gte("priority", minPriority), query.AppFields)
	return r.page(ctx, "list_featured", scope, page,
		query.Sort{Column: "priority", Desc: true}, newestFirst)
}

func (r *appRepository) SearchByName(ctx context.Context, name string, page query.PageRequest) (models.Page[models.App], error) {
	scope := filtered(query.Filter{}.Contains("appName", name), query.AppFields)
	return r.page(ctx, "search_by_name", scope, page, newestFirst)
}

func (r *appRepository) ListByCodeGenType(ctx context.Context, codeGenType models.CodeGenType, page query.PageRequest) (models.Page[models.App], error) {
	scope := filtered(query.Filter{}.Eq("codeGenType", codeGenType), query.AppFields)
	return r.page(ctx, "list_by_code_gen_type", scope, page, newestFirst)
}

// ListDeployed lists apps that have been deployed, most recently deployed first.
func (r *appRepository) ListDeployed(ctx context.Context, page query.PageRequest) (models.Page[models.App], error) {
	scope := filtered(query.Filter{}.NotNull("deployedTime"), query.AppFields)
	return r.page(ctx, "list_deployed", scope, page, query.Sort{Column: "deployed_time", Desc: true})
}

func (r *appRepository) ListLatestByUser(ctx context.Context, userID uint, limit int) ([]models.App, error) {
	defer r.metrics.TrackQuery("list_latest_by_user")()
	apps, err := findLatest[models.App](r.read(ctx), appTable, ownedBy(userID), limit, newestFirst)
	if err != nil {
		return nil, storageError(ctx, r.log, "list_latest_by_user", err)
	}
	return apps, nil
}

func (r *appRepository) ListPage(ctx context.Context, f query.Filter, sort query.Sort, page query.PageRequest) (models.Page[models.App], error) {
	return r.page(ctx, "list_page", filtered(f, query.AppFields), page, sort)
}

func (r *appRepository) Create(ctx context.Context, app *models.App) error {
	if err := app.Validate(); err != nil {
		return err
	}
	defer r.metrics.TrackQuery("create")()
	if err := r.db.WithContext(ctx).Omit("User").Create(app).Error; err != nil {
		return storageError(ctx, r.log, "create", err)
	}
	r.log.LogCreate(ctx, map[string]any{"id": app.ID, "user_id": app.UserID})
	return nil
}

// Update writes the editable columns of a live app. Deployment columns are
// only changed through SetDeployKey.
func (r *appRepository) Update(ctx context.Context, app *models.App) error {
	if err := app.Validate(); err != nil {
		return err
	}
	return r.update(ctx, app.ID, map[string]any{
		"app_name":      app.AppName,
		"cover":         app.Cover,
		"init_prompt":   app.InitPrompt,
		"code_gen_type": app.CodeGenType,
		"priority":      app.Priority,
		"edit_time":     app.EditTime,
	})
}

// SetDeployKey records a deployment. A key held by another live app fails with ErrDuplicateKey.
func (r *appRepository) SetDeployKey(ctx context.Context, id uint, deployKey string, deployedAt time.Time) error {
	if strings.TrimSpace(deployKey) == "" {
		return models.NewParamsError("deploy key must not be blank")
	}
	if utf8.RuneCountInString(deployKey) > 64 {
		return models.NewParamsError("deploy key is too long")
	}

	previous, err := r.first(ctx, r.db.WithContext(ctx), "get_by_id", byID(id))
	if err != nil {
		return err
	}
	if previous == nil {
		return models.NewNotFoundError("App", id)
	}

	if err := r.update(ctx, id, map[string]any{
		"deploy_key":    deployKey,
		"deployed_time": deployedAt,
	}); err != nil {
		return err
	}
	cache.InvalidateAppDeployKey(ctx, previous.DeployKey)
	cache.InvalidateAppDeployKey(ctx, &deployKey)
	return nil
}

func (r *appRepository) update(ctx context.Context, id uint, values map[string]any) error {
	defer r.metrics.TrackQuery("update")()
	res := r.db.WithContext(ctx).Model(&models.App{}).
		Scopes(byID(id), notDeleted(appTable)).
		Updates(values)
	if res.Error != nil {
		return storageError(ctx, r.log, "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("App", id)
	}
	r.log.LogUpdate(ctx, map[string]any{"id": id})
	return nil
}

func (r *appRepository) Delete(ctx context.Context, id uint) (bool, error) {
	previous, err := r.first(ctx, r.db.WithContext(ctx), "get_by_id", byID(id))
	if err != nil {
		return false, err
	}
	if previous == nil {
		return false, nil
	}

	defer r.metrics.TrackQuery("delete")()
	n, err := softDelete(r.db.WithContext(ctx), &models.App{}, appTable, byID(id))
	if err != nil {
		return false, storageError(ctx, r.log, "delete", err)
	}
	cache.InvalidateAppDeployKey(ctx, previous.DeployKey)
	r.log.LogDelete(ctx, map[string]any{"id": id, "rows": n})
	return n > 0, nil
}

func ownedBy(userID uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("user_id = ?", userID)
	}
}
