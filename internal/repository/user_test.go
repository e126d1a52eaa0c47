package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"appforge/internal/cache"
	"appforge/internal/models"
	"appforge/internal/query"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserRepository_FindByAccount_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "user" WHERE "user"."is_delete" = $1 AND user_account = $2 LIMIT $3`)).
		WithArgs(models.NotDeleted, "alice01", 1).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	user, err := repo.FindByAccount(context.Background(), "alice01")
	assert.NoError(t, err)
	assert.Nil(t, user)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_Delete_IsAnUpdate(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "user" SET "is_delete"=$1,"update_time"=$2 WHERE id = $3 AND "user"."is_delete" = $4`)).
		WithArgs(models.Deleted, sqlmock.AnyArg(), 5, models.NotDeleted).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := repo.Delete(context.Background(), 5)
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_CreateRejectsInvalidBeforeWrite(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewUserRepository(db)

	err := repo.Create(context.Background(), models.NewUser(models.User{UserAccount: "  ", UserPassword: "x"}))
	assert.True(t, models.HasCode(err, models.CodeParams))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_DuplicateAccountAmongLiveRows(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	first := models.NewUser(models.User{UserAccount: "alice01", UserPassword: "v1"})
	require.NoError(t, repo.Create(ctx, first))

	err := repo.Create(ctx, models.NewUser(models.User{UserAccount: "alice01", UserPassword: "v2"}))
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	exists, err := repo.ExistsByAccount(ctx, "alice01")
	require.NoError(t, err)
	assert.True(t, exists)

	deleted, err := repo.Delete(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, deleted)

	exists, err = repo.ExistsByAccount(ctx, "alice01")
	require.NoError(t, err)
	assert.False(t, exists)

	again := models.NewUser(models.User{UserAccount: "alice01", UserPassword: "v3"})
	require.NoError(t, repo.Create(ctx, again))
	assert.NotEqual(t, first.ID, again.ID)

	var total int64
	require.NoError(t, db.Model(&models.User{}).Where("user_account = ?", "alice01").Count(&total).Error)
	assert.Equal(t, int64(2), total, "the soft-deleted row is still stored")
}

func TestUserRepository_DeletedUserIsInvisible(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "bob_1")

	_, err := repo.Delete(ctx, u.ID)
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	got, err = repo.FindByAccount(ctx, "bob_1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = repo.Update(ctx, &models.User{ID: u.ID, UserAccount: "bob_1", UserRole: models.RoleUser})
	assert.True(t, models.HasCode(err, models.CodeNotFound))

	deleted, err := repo.Delete(ctx, u.ID)
	require.NoError(t, err)
	assert.False(t, deleted, "a second delete flags nothing")
}

func TestUserRepository_UpdateKeepsPasswordWhenBlank(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "dave01")

	err := repo.Update(ctx, &models.User{ID: u.ID, UserAccount: u.UserAccount, UserName: "Dave", UserRole: models.RoleAdmin})
	require.NoError(t, err)

	stored, err := repo.FindByAccount(ctx, "dave01")
	require.NoError(t, err)
	assert.Equal(t, "Dave", stored.UserName)
	assert.Equal(t, models.RoleAdmin, stored.UserRole)
	assert.Equal(t, "verifier", stored.UserPassword)
	assert.True(t, stored.UpdateTime.After(u.UpdateTime) || stored.UpdateTime.Equal(u.UpdateTime))

	require.NoError(t, repo.UpdatePassword(ctx, u.ID, "rehashed"))
	stored, err = repo.FindByAccount(ctx, "dave01")
	require.NoError(t, err)
	assert.Equal(t, "rehashed", stored.UserPassword)
	assert.Equal(t, u.CreateTime.Unix(), stored.CreateTime.Unix())
}

func TestUserRepository_ListPageAndCounts(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	for _, acct := range []string{"anna01", "annie02", "zack03"} {
		seedUser(t, db, acct)
	}
	admin := seedUser(t, db, "root01")
	require.NoError(t, db.Model(&models.User{}).Where("id = ?", admin.ID).Update("user_role", models.RoleAdmin).Error)
	gone := seedUser(t, db, "anne04")
	_, err := repo.Delete(ctx, gone.ID)
	require.NoError(t, err)

	admins, err := repo.CountByRole(ctx, models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, int64(1), admins)

	f, err := query.BuildUserFilter(&query.UserQueryRequest{UserAccount: "ann"})
	require.NoError(t, err)
	sort, err := query.ResolveSort("userAccount", "ascend", query.UserFields)
	require.NoError(t, err)

	page, err := repo.ListPage(ctx, f, sort, query.PageRequest{Current: 1, PageSize: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), page.Total)
	assert.Equal(t, 2, page.Pages)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "anna01", page.Records[0].UserAccount)

	all, err := repo.ListPage(ctx, nil, query.DefaultSort(), query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)

	byName, err := repo.SearchByName(ctx, "name-zack", query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), byName.Total)

	_, err = repo.ListPage(ctx, query.Filter{}.Eq("userPassword", "x"), query.DefaultSort(), query.PageRequest{})
	assert.True(t, models.HasCode(err, models.CodeParams))
}

func TestUserRepository_GetByIDCacheInvalidation(t *testing.T) {
	mr := miniredis.RunT(t)
	cache.SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { cache.SetClient(nil) })

	db := setupSQLiteDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()
	u := seedUser(t, db, "erin01")

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, mr.Exists(cache.UserKey(u.ID)))

	require.NoError(t, repo.Update(ctx, &models.User{ID: u.ID, UserAccount: "erin01", UserName: "Erin", UserRole: models.RoleUser}))
	assert.False(t, mr.Exists(cache.UserKey(u.ID)))

	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "Erin", got.UserName)

	_, err = repo.Delete(ctx, u.ID)
	require.NoError(t, err)
	got, err = repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got)
}
