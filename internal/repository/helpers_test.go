package repository

import (
	"fmt"
	"testing"
	"time"

	"appforge/internal/database"
	"appforge/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupMockDB creates a GORM *gorm.DB backed by sqlmock for SQL shape tests.
func setupMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: db}), &gorm.Config{})
	require.NoError(t, err)
	return gormDB, mock
}

// setupSQLiteDB returns a migrated in-memory database on a single connection.
func setupSQLiteDB(t *testing.T) *gorm.DB {
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

var baseTime = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func seedUser(t *testing.T, db *gorm.DB, account string) *models.User {
	t.Helper()
	u := models.NewUser(models.User{UserAccount: account, UserPassword: "verifier", UserName: "name-" + account})
	require.NoError(t, db.Create(u).Error)
	return u
}

func seedApp(t *testing.T, db *gorm.DB, owner uint, name string, priority int, created time.Time) *models.App {
	t.Helper()
	a := models.NewApp(models.App{AppName: name, UserID: owner, Priority: priority, CodeGenType: models.CodeGenHTML})
	a.CreateTime = created
	require.NoError(t, db.Create(a).Error)
	return a
}

func seedMessages(t *testing.T, db *gorm.DB, appID, userID uint, n int, start time.Time) []models.ChatHistory {
	t.Helper()
	out := make([]models.ChatHistory, 0, n)
	for i := 0; i < n; i++ {
		kind := models.MessageUser
		if i%2 == 1 {
			kind = models.MessageAI
		}
		h := models.NewChatHistory(models.ChatHistory{
			Message:     fmt.Sprintf("message %d", i),
			MessageType: kind,
			AppID:       appID,
			UserID:      userID,
		})
		h.CreateTime = start.Add(time.Duration(i) * time.Minute)
		require.NoError(t, db.Create(h).Error)
		out = append(out, *h)
	}
	return out
}

func ids[T any](records []T, id func(T) uint) []uint {
	out := make([]uint, 0, len(records))
	for _, r := range records {
		out = append(out, id(r))
	}
	return out
}

func appID(a models.App) uint           { return a.ID }
func chatID(h models.ChatHistory) uint { return h.ID }
