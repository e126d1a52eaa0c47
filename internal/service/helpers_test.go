package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"appforge/internal/database"
	"appforge/internal/models"
	"appforge/internal/repository"
	"appforge/internal/security"
	"appforge/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const testLegacySalt = "yupi"

type fixture struct {
	db       *gorm.DB
	userRepo repository.UserRepository
	appRepo  repository.AppRepository
	chatRepo repository.ChatHistoryRepository
	creds    *security.Credentials
	users    *UserService
	apps     *AppService
	chats    *ChatHistoryService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.AutoMigrate(db))

	f := &fixture{
		db:       db,
		userRepo: repository.NewUserRepository(db),
		appRepo:  repository.NewAppRepository(db),
		chatRepo: repository.NewChatHistoryRepository(db),
		creds: security.NewCredentials(
			security.BcryptHasher{Cost: bcrypt.MinCost},
			security.LegacyDigestHasher{Salt: testLegacySalt},
		),
	}
	f.users = NewUserService(f.userRepo, f.creds, "12345678")
	f.chats = NewChatHistoryService(f.chatRepo, f.appRepo, f.users.GetLoginUser)
	f.apps = NewAppService(f.appRepo, f.userRepo, f.chats, f.users.GetLoginUser)
	return f
}

// seedUser stores a user with password "password123" and returns a session bound to it.
func (f *fixture) seedUser(t *testing.T, account string, role models.UserRole) (*models.User, *session.Session) {
	t.Helper()
	verifier, err := f.creds.Hash("password123")
	require.NoError(t, err)
	u := models.NewUser(models.User{UserAccount: account, UserPassword: verifier, UserName: "name-" + account, UserRole: role})
	require.NoError(t, f.userRepo.Create(context.Background(), u))
	sess := session.New()
	require.NoError(t, sess.BindUser(u.ID))
	return u, sess
}

func (f *fixture) seedApp(t *testing.T, owner uint, name string, priority int, created time.Time) *models.App {
	t.Helper()
	a := models.NewApp(models.App{AppName: name, UserID: owner, Priority: priority, CodeGenType: models.CodeGenHTML})
	a.CreateTime = created
	require.NoError(t, f.db.Create(a).Error)
	return a
}

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// assertCode asserts that err is an AppError of the given kind.
func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code, appErr.Message)
}
