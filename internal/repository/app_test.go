package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"appforge/internal/models"
	"appforge/internal/query"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppRepository_ListFeatured_SQL(t *testing.T) {
	db, mock := setupMockDB(t)
	repo := NewAppRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*) FROM "app" WHERE "app"."is_delete" = $1 AND "priority" >= $2`)).
		WithArgs(models.NotDeleted, 99).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "app" WHERE "app"."is_delete" = $1 AND "priority" >= $2 ORDER BY "priority" DESC,"create_time" DESC LIMIT $3`)).
		WithArgs(models.NotDeleted, 99, 20).
		WillReturnRows(sqlmock.NewRows([]string{"id", "app_name", "priority"}).AddRow(3, "landing", 99))

	page, err := repo.ListFeatured(context.Background(), 99, query.PageRequest{Current: 1, PageSize: 20})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "landing", page.Records[0].AppName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAppRepository_ListFeatured_Ordering(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewAppRepository(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice01")
	bob := seedUser(t, db, "bob_02")

	five := seedApp(t, db, alice.ID, "five", 5, baseTime)
	seedApp(t, db, bob.ID, "two", 2, baseTime.Add(time.Hour))
	seven := seedApp(t, db, bob.ID, "seven", 7, baseTime.Add(-time.Hour))
	newerFive := seedApp(t, db, bob.ID, "newer five", 5, baseTime.Add(2*time.Hour))
	hidden := seedApp(t, db, alice.ID, "deleted nine", 9, baseTime)
	_, err := repo.Delete(ctx, hidden.ID)
	require.NoError(t, err)

	page, err := repo.ListFeatured(ctx, 3, query.PageRequest{Current: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, []uint{seven.ID, newerFive.ID, five.ID}, ids(page.Records, appID))
}

func TestAppRepository_DeployKeyUniqueAmongLiveRows(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewAppRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner01")
	first := seedApp(t, db, owner.ID, "first", 0, baseTime)
	second := seedApp(t, db, owner.ID, "second", 0, baseTime.Add(time.Minute))

	deployedAt := baseTime.Add(time.Hour)
	require.NoError(t, repo.SetDeployKey(ctx, first.ID, "abc123", deployedAt))

	err := repo.SetDeployKey(ctx, second.ID, "abc123", deployedAt)
	assert.True(t, errors.Is(err, ErrDuplicateKey))

	found, err := repo.FindByDeployKey(ctx, "abc123")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, first.ID, found.ID)
	assert.True(t, found.IsDeployed())

	_, err = repo.Delete(ctx, first.ID)
	require.NoError(t, err)

	exists, err := repo.ExistsByDeployKey(ctx, "abc123")
	require.NoError(t, err)
	assert.False(t, exists)
	require.NoError(t, repo.SetDeployKey(ctx, second.ID, "abc123", deployedAt))

	missing, err := repo.FindByDeployKey(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)

	err = repo.SetDeployKey(ctx, first.ID, "other", deployedAt)
	assert.True(t, models.HasCode(err, models.CodeNotFound))
	assert.True(t, models.HasCode(repo.SetDeployKey(ctx, second.ID, " ", deployedAt), models.CodeParams))
}

func TestAppRepository_ListDeployed(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewAppRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner01")
	early := seedApp(t, db, owner.ID, "early", 0, baseTime)
	late := seedApp(t, db, owner.ID, "late", 0, baseTime)
	seedApp(t, db, owner.ID, "draft", 0, baseTime)

	require.NoError(t, repo.SetDeployKey(ctx, early.ID, "k-early", baseTime.Add(time.Hour)))
	require.NoError(t, repo.SetDeployKey(ctx, late.ID, "k-late", baseTime.Add(2*time.Hour)))

	page, err := repo.ListDeployed(ctx, query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []uint{late.ID, early.ID}, ids(page.Records, appID))
}

func TestAppRepository_OwnerListings(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewAppRepository(db)
	ctx := context.Background()
	alice := seedUser(t, db, "alice01")
	bob := seedUser(t, db, "bob_02")

	var mine []uint
	for i := 0; i < 4; i++ {
		a := seedApp(t, db, alice.ID, "todo app", 0, baseTime.Add(time.Duration(i)*time.Minute))
		mine = append(mine, a.ID)
	}
	seedApp(t, db, bob.ID, "Todo board", 0, baseTime)
	vue := models.NewApp(models.App{AppName: "vue", UserID: bob.ID, CodeGenType: models.CodeGenVueProject})
	require.NoError(t, repo.Create(ctx, vue))

	count, err := repo.CountByUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)

	page, err := repo.ListByUser(ctx, alice.ID, query.PageRequest{Current: 2, PageSize: 3})
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, []uint{mine[0]}, ids(page.Records, appID))

	latest, err := repo.ListLatestByUser(ctx, alice.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, []uint{mine[3], mine[2]}, ids(latest, appID))

	byName, err := repo.SearchByName(ctx, "todo", query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, int64(4), byName.Total, "name search is case-sensitive")

	byType, err := repo.ListByCodeGenType(ctx, models.CodeGenVueProject, query.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, []uint{vue.ID}, ids(byType.Records, appID))

	got, err := repo.GetByIDs(ctx, []uint{mine[0], vue.ID, 9999})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestAppRepository_UpdateAndValidation(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewAppRepository(db)
	ctx := context.Background()
	owner := seedUser(t, db, "owner01")
	a := seedApp(t, db, owner.ID, "before", 0, baseTime)

	a.AppName = "after"
	a.Priority = 99
	require.NoError(t, repo.Update(ctx, a))

	got, err := repo.GetByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "after", got.AppName)
	assert.Equal(t, 99, got.Priority)

	err = repo.Create(ctx, models.NewApp(models.App{AppName: "no owner"}))
	assert.True(t, models.HasCode(err, models.CodeParams))

	f, err := query.BuildAppFilter(&query.AppQueryRequest{AppName: "aft"})
	require.NoError(t, err)
	_, err = repo.ListPage(ctx, f, query.Sort{Column: "priority", Desc: true}, query.PageRequest{})
	require.NoError(t, err)
}
