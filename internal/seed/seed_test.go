package seed

import (
	"context"
	"testing"

	"appforge/internal/database"
	"appforge/internal/models"
	"appforge/internal/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), database.GormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.Exec("PRAGMA foreign_keys = ON").Error)
	require.NoError(t, database.AutoMigrate(db))
	return db
}

func testCreds() *security.Credentials {
	return security.NewCredentials(security.BcryptHasher{Cost: bcrypt.MinCost})
}

func TestSeed(t *testing.T) {
	db := openDB(t)
	s := NewSeeder(db, testCreds(), 42)

	res, err := s.Seed(context.Background(), Options{NumUsers: 3, AppsPerUser: 2, MessagesPerApp: 3, FeaturedEvery: 4})
	require.NoError(t, err)
	assert.Len(t, res.Users, 4)
	assert.Len(t, res.Apps, 8)
	assert.Equal(t, 24, res.Messages)

	var admin models.User
	require.NoError(t, db.Where("user_account = ?", AdminAccount).First(&admin).Error)
	assert.Equal(t, models.RoleAdmin, admin.UserRole)
	ok, upgrade := testCreds().Verify(admin.UserPassword, DefaultPassword)
	assert.True(t, ok)
	assert.False(t, upgrade)

	var featured int64
	require.NoError(t, db.Model(&models.App{}).Where("priority >= ?", 99).Count(&featured).Error)
	assert.Equal(t, int64(2), featured)

	var aiReplies int64
	require.NoError(t, db.Model(&models.ChatHistory{}).Where("message_type = ?", models.MessageAI).Count(&aiReplies).Error)
	assert.Equal(t, int64(8), aiReplies)

	for _, u := range res.Users {
		assert.GreaterOrEqual(t, len(u.UserAccount), 4)
	}
}

func TestClearAll(t *testing.T) {
	db := openDB(t)
	s := NewSeeder(db, testCreds(), 7)
	_, err := s.Seed(context.Background(), Options{NumUsers: 1, AppsPerUser: 1, MessagesPerApp: 2})
	require.NoError(t, err)

	require.NoError(t, s.ClearAll())
	for _, model := range []any{&models.ChatHistory{}, &models.App{}, &models.User{}} {
		var n int64
		require.NoError(t, db.Model(model).Count(&n).Error)
		assert.Zero(t, n)
	}

	_, err = s.Seed(context.Background(), Options{NumUsers: 1})
	require.NoError(t, err, "the admin account can be seeded again after a clear")
}

func TestAccountStem(t *testing.T) {
	assert.Equal(t, "johndoe", accountStem("John.Doe"))
	assert.Equal(t, "user", accountStem("-_-"))
	assert.Len(t, accountStem("averyveryverylongusernameindeed"), 16)
}
