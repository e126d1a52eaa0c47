package repository

import (
	"context"
	"errors"

	"appforge/internal/cache"
	"appforge/internal/models"
	"appforge/internal/observability"
	"appforge/internal/query"

	"gorm.io/gorm"
)

const userTable = "user"

// UserRepository defines persistence operations for users.
type UserRepository interface {
	// GetByID returns the live user or nil. Results are cached and carry no
	// password verifier; use FindByAccount when the verifier is needed.
	GetByID(ctx context.Context, id uint) (*models.User, error)
	FindByAccount(ctx context.Context, account string) (*models.User, error)
	ExistsByAccount(ctx context.Context, account string) (bool, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	UpdatePassword(ctx context.Context, id uint, verifier string) error
	Delete(ctx context.Context, id uint) (bool, error)
	CountByRole(ctx context.Context, role models.UserRole) (int64, error)
	SearchByName(ctx context.Context, name string, page query.PageRequest) (models.Page[models.User], error)
	ListPage(ctx context.Context, f query.Filter, sort query.Sort, page query.PageRequest) (models.Page[models.User], error)
}

type userRepository struct {
	db      *gorm.DB
	log     *observability.RepoLogger
	metrics *observability.DatabaseMetrics
}

// NewUserRepository returns a new UserRepository implementation.
func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{
		db:      db,
		log:     observability.NewRepoLogger(userTable),
		metrics: observability.NewDatabaseMetrics(userTable),
	}
}

func (r *userRepository) read(ctx context.Context) *gorm.DB {
	return readDB(r.db).WithContext(ctx)
}

func (r *userRepository) first(ctx context.Context, operation string, scope func(*gorm.DB) *gorm.DB) (*models.User, error) {
	defer r.metrics.TrackQuery(operation)()
	var user models.User
	err := r.read(ctx).Scopes(notDeleted(userTable), scope).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, storageError(ctx, r.log, operation, err)
	}
	return &user, nil
}

func (r *userRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := cache.Aside(ctx, cache.UserKey(id), &user, cache.UserTTL, func() error {
		found, err := r.first(ctx, "get_by_id", byID(id))
		if err != nil {
			return err
		}
		if found == nil {
			return cache.ErrMiss
		}
		user = *found
		return nil
	})
	if errors.Is(err, cache.ErrMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *userRepository) FindByAccount(ctx context.Context, account string) (*models.User, error) {
	return r.first(ctx, "find_by_account", func(db *gorm.DB) *gorm.DB {
		return db.Where("user_account = ?", account)
	})
}

func (r *userRepository) ExistsByAccount(ctx context.Context, account string) (bool, error) {
	defer r.metrics.TrackQuery("exists_by_account")()
	var count int64
	err := r.read(ctx).Model(&models.User{}).
		Scopes(notDeleted(userTable)).
		Where("user_account = ?", account).
		Limit(1).
		Count(&count).Error
	if err != nil {
		return false, storageError(ctx, r.log, "exists_by_account", err)
	}
	return count > 0, nil
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	if err := user.Validate(); err != nil {
		return err
	}
	defer r.metrics.TrackQuery("create")()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return storageError(ctx, r.log, "create", err)
	}
	r.log.LogCreate(ctx, map[string]any{"id": user.ID})
	return nil
}

// Update writes the mutable profile columns of a live user. The password
// column is only written when user carries a verifier.
func (r *userRepository) Update(ctx context.Context, user *models.User) error {
	validate := user.Validate
	if user.UserPassword == "" {
		validate = user.ValidateProfile
	}
	if err := validate(); err != nil {
		return err
	}
	values := map[string]any{
		"user_name":    user.UserName,
		"user_avatar":  user.UserAvatar,
		"user_profile": user.UserProfile,
		"user_role":    user.UserRole,
		"edit_time":    user.EditTime,
	}
	if user.UserPassword != "" {
		values["user_password"] = user.UserPassword
	}
	return r.update(ctx, user.ID, values)
}

func (r *userRepository) UpdatePassword(ctx context.Context, id uint, verifier string) error {
	if verifier == "" {
		return models.NewParamsError("password must not be blank")
	}
	return r.update(ctx, id, map[string]any{"user_password": verifier})
}

func (r *userRepository) update(ctx context.Context, id uint, values map[string]any) error {
	defer r.metrics.TrackQuery("update")()
	res := r.db.WithContext(ctx).Model(&models.User{}).
		Scopes(byID(id), notDeleted(userTable)).
		Updates(values)
	if res.Error != nil {
		return storageError(ctx, r.log, "update", res.Error)
	}
	if res.RowsAffected == 0 {
		return models.NewNotFoundError("User", id)
	}
	cache.InvalidateUser(ctx, id)
	r.log.LogUpdate(ctx, map[string]any{"id": id})
	return nil
}

func (r *userRepository) Delete(ctx context.Context, id uint) (bool, error) {
	defer r.metrics.TrackQuery("delete")()
	n, err := softDelete(r.db.WithContext(ctx), &models.User{}, userTable, byID(id))
	if err != nil {
		return false, storageError(ctx, r.log, "delete", err)
	}
	cache.InvalidateUser(ctx, id)
	r.log.LogDelete(ctx, map[string]any{"id": id, "rows": n})
	return n > 0, nil
}

func (r *userRepository) CountByRole(ctx context.Context, role models.UserRole) (int64, error) {
	defer r.metrics.TrackQuery("count_by_role")()
	var count int64
	err := r.read(ctx).Model(&models.User{}).
		Scopes(notDeleted(userTable)).
		Where("user_role = ?", role).
		Count(&count).Error
	if err != nil {
		return 0, storageError(ctx, r.log, "count_by_role", err)
	}
	return count, nil
}

func (r *userRepository) SearchByName(ctx context.Context, name string, page query.PageRequest) (models.Page[models.User], error) {
	return r.ListPage(ctx, query.Filter{}.Contains("userName", name), query.DefaultSort(), page)
}

func (r *userRepository) ListPage(ctx context.Context, f query.Filter, sort query.Sort, page query.PageRequest) (models.Page[models.User], error) {
	defer r.metrics.TrackQuery("list_page")()
	p, err := findPage[models.User](r.read(ctx), userTable, filtered(f, query.UserFields), page.Normalize(query.MaxPageSize), sort)
	if err != nil {
		return models.Page[models.User]{}, storageError(ctx, r.log, "list_page", err)
	}
	r.log.LogRead(ctx, map[string]any{"query": "list_page", "total": p.Total, "current": p.Current})
	return p, nil
}
