package service

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"appforge/internal/models"
	"appforge/internal/observability"
	"appforge/internal/query"
	"appforge/internal/repository"
	"appforge/internal/security"
	"appforge/internal/session"
)

const (
	minAccountLen  = 4
	minPasswordLen = 8

	// DefaultUserName is the display name given to self-registered accounts.
	DefaultUserName = "Anonymous"

	msgBadCredentials = "account does not exist or password is incorrect"
)

type UserService struct {
	users           repository.UserRepository
	creds           *security.Credentials
	defaultPassword string
}

type RegisterInput struct {
	UserAccount   string `json:"userAccount"`
	UserPassword  string `json:"userPassword"`
	CheckPassword string `json:"checkPassword"`
}

type LoginInput struct {
	UserAccount  string `json:"userAccount"`
	UserPassword string `json:"userPassword"`
}

type AddUserInput struct {
	UserAccount string          `json:"userAccount"`
	UserName    string          `json:"userName"`
	UserAvatar  string          `json:"userAvatar"`
	UserProfile string          `json:"userProfile"`
	UserRole    models.UserRole `json:"userRole"`
}

type UpdateUserInput struct {
	ID          uint            `json:"id"`
	UserName    string          `json:"userName"`
	UserAvatar  string          `json:"userAvatar"`
	UserProfile string          `json:"userProfile"`
	UserRole    models.UserRole `json:"userRole"`
}

// NewUserService wires a UserService. defaultPassword is given to accounts
// created by an admin.
func NewUserService(users repository.UserRepository, creds *security.Credentials, defaultPassword string) *UserService {
	return &UserService{users: users, creds: creds, defaultPassword: defaultPassword}
}

func blank(values ...string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

func short(value string, n int) bool {
	return utf8.RuneCountInString(value) < n
}

// Register creates a user account and returns its id.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (uint, error) {
	id, err := traced(ctx, "UserService", "Register", func(ctx context.Context) (uint, error) {
		return s.register(ctx, in)
	})
	observability.RegistrationsTotal.WithLabelValues(observability.Outcome(err)).Inc()
	return id, err
}

func (s *UserService) register(ctx context.Context, in RegisterInput) (uint, error) {
	switch {
	case blank(in.UserAccount, in.UserPassword, in.CheckPassword):
		return 0, models.NewParamsError("parameters must not be blank")
	case short(in.UserAccount, minAccountLen):
		return 0, models.NewParamsError("user account is too short")
	case short(in.UserPassword, minPasswordLen), short(in.CheckPassword, minPasswordLen):
		return 0, models.NewParamsError("password is too short")
	case in.UserPassword != in.CheckPassword:
		return 0, models.NewParamsError("passwords do not match")
	}

	exists, err := s.users.ExistsByAccount(ctx, in.UserAccount)
	if err != nil {
		return 0, err
	}
	if exists {
		return 0, models.NewParamsError("account already exists")
	}

	verifier, err := s.hash(in.UserPassword)
	if err != nil {
		return 0, err
	}
	user := models.NewUser(models.User{
		UserAccount:  in.UserAccount,
		UserPassword: verifier,
		UserName:     DefaultUserName,
		UserRole:     models.RoleUser,
	})
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return 0, models.NewOperationError("registration failed, duplicate account", err)
		}
		if models.HasCode(err, models.CodeParams) {
			return 0, err
		}
		return 0, models.NewOperationError("registration failed", err)
	}
	return user.ID, nil
}

func (s *UserService) hash(password string) (string, error) {
	verifier, err := s.creds.Hash(password)
	if errors.Is(err, security.ErrPasswordTooLong) {
		return "", models.NewParamsError("password is too long")
	}
	if err != nil {
		return "", models.NewOperationError("failed to hash password", err)
	}
	return verifier, nil
}

// Login verifies the credentials and binds sess to the user. Unknown accounts
// and wrong passwords fail with the same error.
func (s *UserService) Login(ctx context.Context, sess *session.Session, in LoginInput) (*models.LoginUserView, error) {
	view, err := traced(ctx, "UserService", "Login", func(ctx context.Context) (*models.LoginUserView, error) {
		return s.login(ctx, sess, in)
	})
	observability.LoginsTotal.WithLabelValues(observability.Outcome(err)).Inc()
	return view, err
}

func (s *UserService) login(ctx context.Context, sess *session.Session, in LoginInput) (*models.LoginUserView, error) {
	switch {
	case blank(in.UserAccount, in.UserPassword):
		return nil, models.NewParamsError("parameters must not be blank")
	case short(in.UserAccount, minAccountLen):
		return nil, models.NewParamsError("user account is too short")
	case short(in.UserPassword, minPasswordLen):
		return nil, models.NewParamsError("password is too short")
	}

	user, err := s.users.FindByAccount(ctx, in.UserAccount)
	if err != nil {
		return nil, models.NewOperationError("login failed", err)
	}
	if user == nil {
		s.creds.Burn(in.UserPassword)
		return nil, models.NewParamsError(msgBadCredentials)
	}
	ok, upgrade := s.creds.Verify(user.UserPassword, in.UserPassword)
	if !ok {
		return nil, models.NewParamsError(msgBadCredentials)
	}
	if upgrade {
		s.upgradeVerifier(ctx, user.ID, in.UserPassword)
	}

	// A new id on every login keeps a token planted before authentication useless.
	sess.Regenerate()
	if err := sess.BindUser(user.ID); err != nil {
		return nil, models.NewOperationError("login failed", err)
	}
	return user.ToLoginView(), nil
}

// upgradeVerifier replaces a legacy verifier. Failure leaves the legacy one in
// place and does not fail the login.
func (s *UserService) upgradeVerifier(ctx context.Context, id uint, password string) {
	verifier, err := s.creds.Hash(password)
	if err == nil {
		err = s.users.UpdatePassword(ctx, id, verifier)
	}
	if err != nil {
		serviceLog.LogServiceError(ctx, "UserService", "upgradeVerifier", err)
	}
}

// GetLoginUser returns the user bound to sess. A session whose user no longer
// exists is treated as logged out.
func (s *UserService) GetLoginUser(ctx context.Context, sess *session.Session) (*models.User, error) {
	id, ok := sess.UserID()
	if !ok {
		return nil, models.NewNotLoginError()
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		sess.ClearUser()
		return nil, models.NewNotLoginError()
	}
	return user, nil
}

// GetLoginUserView is GetLoginUser redacted for the caller.
func (s *UserService) GetLoginUserView(ctx context.Context, sess *session.Session) (*models.LoginUserView, error) {
	user, err := s.GetLoginUser(ctx, sess)
	if err != nil {
		return nil, err
	}
	return user.ToLoginView(), nil
}

// Logout unbinds sess. It fails when no user is bound.
func (s *UserService) Logout(ctx context.Context, sess *session.Session) error {
	_, err := traced(ctx, "UserService", "Logout", func(context.Context) (struct{}, error) {
		if !sess.ClearUser() {
			return struct{}{}, models.NewOperationError("not logged in", nil)
		}
		return struct{}{}, nil
	})
	return err
}

// AddUser creates an account with the default password. Admin only.
func (s *UserService) AddUser(ctx context.Context, sess *session.Session, in AddUserInput) (uint, error) {
	if _, err := requireAdmin(ctx, s.GetLoginUser, sess); err != nil {
		return 0, err
	}
	if blank(in.UserAccount) {
		return 0, models.NewParamsError("user account must not be blank")
	}
	if short(in.UserAccount, minAccountLen) {
		return 0, models.NewParamsError("user account is too short")
	}
	verifier, err := s.hash(s.defaultPassword)
	if err != nil {
		return 0, err
	}
	user := models.NewUser(models.User{
		UserAccount:  in.UserAccount,
		UserPassword: verifier,
		UserName:     in.UserName,
		UserAvatar:   in.UserAvatar,
		UserProfile:  in.UserProfile,
		UserRole:     in.UserRole,
	})
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return 0, models.NewOperationError("account already exists", err)
		}
		return 0, err
	}
	return user.ID, nil
}

// UpdateUser changes the profile fields set in in. Admin only.
func (s *UserService) UpdateUser(ctx context.Context, sess *session.Session, in UpdateUserInput) error {
	if _, err := requireAdmin(ctx, s.GetLoginUser, sess); err != nil {
		return err
	}
	if in.ID == 0 {
		return models.NewParamsError("user id is required")
	}
	user, err := s.users.GetByID(ctx, in.ID)
	if err != nil {
		return err
	}
	if user == nil {
		return models.NewNotFoundError("User", in.ID)
	}
	if in.UserName != "" {
		user.UserName = in.UserName
	}
	if in.UserAvatar != "" {
		user.UserAvatar = in.UserAvatar
	}
	if in.UserProfile != "" {
		user.UserProfile = in.UserProfile
	}
	if in.UserRole != "" {
		user.UserRole = in.UserRole
	}
	user.UserPassword = ""
	user.EditTime = time.Now()
	return s.users.Update(ctx, user)
}

// DeleteUser soft-deletes a user. Admin only.
func (s *UserService) DeleteUser(ctx context.Context, sess *session.Session, id uint) (bool, error) {
	if _, err := requireAdmin(ctx, s.GetLoginUser, sess); err != nil {
		return false, err
	}
	if id == 0 {
		return false, models.NewParamsError("user id is required")
	}
	return s.users.Delete(ctx, id)
}

// ListUserViews pages through users matching req. Admin only.
func (s *UserService) ListUserViews(ctx context.Context, sess *session.Session, req *query.UserQueryRequest) (models.Page[models.UserView], error) {
	if _, err := requireAdmin(ctx, s.GetLoginUser, sess); err != nil {
		return models.Page[models.UserView]{}, err
	}
	f, err := query.BuildUserFilter(req)
	if err != nil {
		return models.Page[models.UserView]{}, err
	}
	sort, err := query.ResolveUserSort(req)
	if err != nil {
		return models.Page[models.UserView]{}, err
	}
	page, err := s.users.ListPage(ctx, f, sort, req.PageRequest)
	if err != nil {
		return models.Page[models.UserView]{}, err
	}
	return models.MapPage(page, func(u models.User) models.UserView { return *u.ToView() }), nil
}

// GetUserView returns the public view of a live user.
func (s *UserService) GetUserView(ctx context.Context, id uint) (*models.UserView, error) {
	if id == 0 {
		return nil, models.NewParamsError("user id is required")
	}
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, models.NewNotFoundError("User", id)
	}
	return user.ToView(), nil
}
