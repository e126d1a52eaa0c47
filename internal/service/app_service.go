package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"appforge/internal/models"
	"appforge/internal/query"
	"appforge/internal/repository"
	"appforge/internal/session"
	"appforge/internal/validation"
)

const (
	// FeaturedPriority is the priority at or above which an app is featured.
	FeaturedPriority = 99
	// PublicPageSize caps listings open to regular users.
	PublicPageSize = 20

	appNamePrefixLen = 12
	maxInitPromptLen = 10000
)

type AppService struct {
	apps  repository.AppRepository
	users repository.UserRepository
	chats *ChatHistoryService
	login LoginResolver
	now   func() time.Time
}

type CreateAppInput struct {
	InitPrompt  string             `json:"initPrompt"`
	CodeGenType models.CodeGenType `json:"codeGenType"`
}

type UpdateMyAppInput struct {
	ID      uint   `json:"id"`
	AppName string `json:"appName"`
}

type AdminUpdateAppInput struct {
	ID       uint   `json:"id"`
	AppName  string `json:"appName"`
	Cover    string `json:"cover"`
	Priority *int   `json:"priority"`
}

func NewAppService(apps repository.AppRepository, users repository.UserRepository, chats *ChatHistoryService, login LoginResolver) *AppService {
	return &AppService{apps: apps, users: users, chats: chats, login: login, now: time.Now}
}

// CreateApp creates an app for the logged-in user from its initial prompt.
func (s *AppService) CreateApp(ctx context.Context, sess *session.Session, in CreateAppInput) (uint, error) {
	return traced(ctx, "AppService", "CreateApp", func(ctx context.Context) (uint, error) {
		user, err := s.login(ctx, sess)
		if err != nil {
			return 0, err
		}
		prompt := strings.TrimSpace(in.InitPrompt)
		if prompt == "" {
			return 0, models.NewParamsError("initial prompt must not be blank")
		}
		if utf8.RuneCountInString(prompt) > maxInitPromptLen {
			return 0, models.NewParamsError("initial prompt is too long")
		}
		codeGenType := in.CodeGenType
		if codeGenType == "" {
			codeGenType = models.CodeGenHTML
		}

		app := models.NewApp(models.App{
			AppName:     nameFromPrompt(prompt),
			InitPrompt:  prompt,
			CodeGenType: codeGenType,
			UserID:      user.ID,
		})
		if err := s.apps.Create(ctx, app); err != nil {
			if models.HasCode(err, models.CodeParams) {
				return 0, err
			}
			return 0, models.NewOperationError("failed to create app", err)
		}
		return app.ID, nil
	})
}

func nameFromPrompt(prompt string) string {
	runes := []rune(prompt)
	if len(runes) > appNamePrefixLen {
		runes = runes[:appNamePrefixLen]
	}
	return string(runes)
}

// loadOwned returns the live app when the logged-in user owns it, or is an
// admin and adminAllowed is set.
func (s *AppService) loadOwned(ctx context.Context, sess *session.Session, id uint, adminAllowed bool) (*models.App, *models.User, error) {
	if id == 0 {
		return nil, nil, models.NewParamsError("app id is required")
	}
	user, err := s.login(ctx, sess)
	if err != nil {
		return nil, nil, err
	}
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if app == nil {
		return nil, nil, models.NewNotFoundError("App", id)
	}
	if app.UserID != user.ID && !(adminAllowed && user.IsAdmin()) {
		return nil, nil, models.NewNoAuthError()
	}
	return app, user, nil
}

// UpdateMyApp renames an app owned by the logged-in user.
func (s *AppService) UpdateMyApp(ctx context.Context, sess *session.Session, in UpdateMyAppInput) error {
	app, _, err := s.loadOwned(ctx, sess, in.ID, false)
	if err != nil {
		return err
	}
	if blank(in.AppName) {
		return models.NewParamsError("app name must not be blank")
	}
	app.AppName = in.AppName
	app.EditTime = s.now()
	return s.apps.Update(ctx, app)
}

// DeleteApp soft-deletes an app and its chat history. Owners and admins may delete.
func (s *AppService) DeleteApp(ctx context.Context, sess *session.Session, id uint) (bool, error) {
	return traced(ctx, "AppService", "DeleteApp", func(ctx context.Context) (bool, error) {
		if _, _, err := s.loadOwned(ctx, sess, id, true); err != nil {
			return false, err
		}
		if _, err := s.chats.DeleteByApp(ctx, id); err != nil {
			return false, err
		}
		return s.apps.Delete(ctx, id)
	})
}

// GetAppView returns a live app with its owner's public profile.
func (s *AppService) GetAppView(ctx context.Context, id uint) (*models.AppView, error) {
	if id == 0 {
		return nil, models.NewParamsError("app id is required")
	}
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, models.NewNotFoundError("App", id)
	}
	views, err := s.views(ctx, []models.App{*app})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// GetDeployedApp resolves a published app by its deploy key.
func (s *AppService) GetDeployedApp(ctx context.Context, deployKey string) (*models.AppView, error) {
	if blank(deployKey) {
		return nil, models.NewParamsError("deploy key must not be blank")
	}
	app, err := s.apps.FindByDeployKey(ctx, deployKey)
	if err != nil {
		return nil, err
	}
	if app == nil {
		return nil, models.NewNotFoundError("App", deployKey)
	}
	views, err := s.views(ctx, []models.App{*app})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// ListMyApps pages through the logged-in user's apps matching req.
func (s *AppService) ListMyApps(ctx context.Context, sess *session.Session, req *query.AppQueryRequest) (models.Page[models.AppView], error) {
	user, err := s.login(ctx, sess)
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	if req == nil {
		return models.Page[models.AppView]{}, models.NewParamsError("query request is required")
	}
	if req.PageSize > PublicPageSize {
		return models.Page[models.AppView]{}, models.NewParamsError("page size is too large")
	}
	mine := *req
	mine.UserID = user.ID
	return s.listPage(ctx, &mine, PublicPageSize)
}

// ListFeaturedApps pages through featured apps, highest priority first.
func (s *AppService) ListFeaturedApps(ctx context.Context, page query.PageRequest) (models.Page[models.AppView], error) {
	if page.PageSize > PublicPageSize {
		return models.Page[models.AppView]{}, models.NewParamsError("page size is too large")
	}
	apps, err := s.apps.ListFeatured(ctx, FeaturedPriority, page.Normalize(PublicPageSize))
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	return s.viewPage(ctx, apps)
}

// ListDeployedApps pages through published apps, most recently deployed first.
func (s *AppService) ListDeployedApps(ctx context.Context, page query.PageRequest) (models.Page[models.AppView], error) {
	if page.PageSize > PublicPageSize {
		return models.Page[models.AppView]{}, models.NewParamsError("page size is too large")
	}
	apps, err := s.apps.ListDeployed(ctx, page.Normalize(PublicPageSize))
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	return s.viewPage(ctx, apps)
}

// AdminUpdateApp changes the fields set in in on any app. Admin only.
func (s *AppService) AdminUpdateApp(ctx context.Context, sess *session.Session, in AdminUpdateAppInput) error {
	if _, err := requireAdmin(ctx, s.login, sess); err != nil {
		return err
	}
	if in.ID == 0 {
		return models.NewParamsError("app id is required")
	}
	app, err := s.apps.GetByID(ctx, in.ID)
	if err != nil {
		return err
	}
	if app == nil {
		return models.NewNotFoundError("App", in.ID)
	}
	if in.AppName != "" {
		app.AppName = in.AppName
	}
	if in.Cover != "" {
		app.Cover = in.Cover
	}
	if in.Priority != nil {
		app.Priority = *in.Priority
	}
	app.EditTime = s.now()
	return s.apps.Update(ctx, app)
}

// AdminListApps pages through every app matching req. Admin only.
func (s *AppService) AdminListApps(ctx context.Context, sess *session.Session, req *query.AppQueryRequest) (models.Page[models.AppView], error) {
	if _, err := requireAdmin(ctx, s.login, sess); err != nil {
		return models.Page[models.AppView]{}, err
	}
	return s.listPage(ctx, req, query.MaxPageSize)
}

// RecordDeployment publishes an app owned by the logged-in user under deployKey.
func (s *AppService) RecordDeployment(ctx context.Context, sess *session.Session, id uint, deployKey string) error {
	if _, _, err := s.loadOwned(ctx, sess, id, false); err != nil {
		return err
	}
	deployKey = strings.TrimSpace(deployKey)
	if err := validation.ValidateDeployKey(deployKey); err != nil {
		return models.NewParamsError(err.Error())
	}
	err := s.apps.SetDeployKey(ctx, id, deployKey, s.now())
	if errors.Is(err, repository.ErrDuplicateKey) {
		return models.NewOperationError("deploy key already in use", err)
	}
	return err
}

func (s *AppService) listPage(ctx context.Context, req *query.AppQueryRequest, maxSize int) (models.Page[models.AppView], error) {
	f, err := query.BuildAppFilter(req)
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	sort, err := query.ResolveAppSort(req)
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	apps, err := s.apps.ListPage(ctx, f, sort, req.PageRequest.Normalize(maxSize))
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	return s.viewPage(ctx, apps)
}

func (s *AppService) viewPage(ctx context.Context, apps models.Page[models.App]) (models.Page[models.AppView], error) {
	views, err := s.views(ctx, apps.Records)
	if err != nil {
		return models.Page[models.AppView]{}, err
	}
	return models.Page[models.AppView]{
		Records: views,
		Total:   apps.Total,
		Size:    apps.Size,
		Current: apps.Current,
		Pages:   apps.Pages,
	}, nil
}

// views attaches owner profiles, loading each owner once.
func (s *AppService) views(ctx context.Context, apps []models.App) ([]models.AppView, error) {
	owners := make(map[uint]*models.UserView)
	out := make([]models.AppView, 0, len(apps))
	for i := range apps {
		ownerID := apps[i].UserID
		owner, seen := owners[ownerID]
		if !seen {
			user, err := s.users.GetByID(ctx, ownerID)
			if err != nil {
				return nil, err
			}
			owner = user.ToView()
			owners[ownerID] = owner
		}
		out = append(out, *apps[i].ToView(owner))
	}
	return out, nil
}
