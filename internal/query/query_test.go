package query

import (
	"testing"
	"time"

	"appforge/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// dryRunDB returns a postgres-dialect GORM handle that only renders SQL.
func dryRunDB(t *testing.T) *gorm.DB {
	t.Helper()
	sqlDB, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{DryRun: true})
	require.NoError(t, err)
	return db
}

func render(t *testing.T, db *gorm.DB, f Filter, fields Fields) (string, []any) {
	t.Helper()
	q, err := Compile(db.Model(&models.User{}), f, fields)
	require.NoError(t, err)
	stmt := q.Find(&[]models.User{}).Statement
	return stmt.SQL.String(), stmt.Vars
}

func TestBuildUserFilter_NilRequest(t *testing.T) {
	f, err := BuildUserFilter(nil)
	require.Error(t, err)
	assert.Nil(t, f)
	assert.True(t, models.HasCode(err, models.CodeParams))
}

func TestBuildUserFilter_RoleOnly(t *testing.T) {
	f, err := BuildUserFilter(&UserQueryRequest{UserRole: "admin", UserName: "   "})
	require.NoError(t, err)
	require.Len(t, f, 1)
	assert.Equal(t, Condition{Field: "userRole", Op: OpEq, Value: "admin"}, f[0])

	sql, vars := render(t, dryRunDB(t), f, UserFields)
	assert.Equal(t, `SELECT * FROM "user" WHERE "user_role" = $1`, sql)
	assert.Equal(t, []any{"admin"}, vars)
}

func TestBuildUserFilter_EmptyRequestAddsNoClause(t *testing.T) {
	f, err := BuildUserFilter(&UserQueryRequest{})
	require.NoError(t, err)
	assert.Empty(t, f)

	sql, vars := render(t, dryRunDB(t), f, UserFields)
	assert.Equal(t, `SELECT * FROM "user"`, sql)
	assert.Empty(t, vars)
}

func TestBuildUserFilter_ExactAndContains(t *testing.T) {
	f, err := BuildUserFilter(&UserQueryRequest{ID: 7, UserAccount: "ali", UserProfile: "50%_off"})
	require.NoError(t, err)

	sql, vars := render(t, dryRunDB(t), f, UserFields)
	assert.Contains(t, sql, `"id" = $1`)
	assert.Contains(t, sql, `"user_account" LIKE $2 ESCAPE '\'`)
	assert.Contains(t, sql, `"user_profile" LIKE $3 ESCAPE '\'`)
	assert.Equal(t, []any{uint(7), "%ali%", `%50\%\_off%`}, vars)
}

func TestBuildAppFilter(t *testing.T) {
	zero := 0
	f, err := BuildAppFilter(&AppQueryRequest{AppName: "todo", CodeGenType: "html", Priority: &zero, UserID: 3})
	require.NoError(t, err)
	assert.Equal(t, Filter{
		{Field: "appName", Op: OpContains, Value: "todo"},
		{Field: "codeGenType", Op: OpEq, Value: "html"},
		{Field: "priority", Op: OpEq, Value: 0},
		{Field: "userId", Op: OpEq, Value: uint(3)},
	}, f)

	_, err = BuildAppFilter(nil)
	assert.True(t, models.HasCode(err, models.CodeParams))
}

func TestBuildChatHistoryFilter_Cursor(t *testing.T) {
	cursor := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
	f, err := BuildChatHistoryFilter(&ChatHistoryQueryRequest{AppID: 9, LastCreateTime: &cursor})
	require.NoError(t, err)
	assert.Equal(t, Filter{
		{Field: "appId", Op: OpEq, Value: uint(9)},
		{Field: "createTime", Op: OpLt, Value: cursor},
	}, f)

	var zero time.Time
	f, err = BuildChatHistoryFilter(&ChatHistoryQueryRequest{LastCreateTime: &zero})
	require.NoError(t, err)
	assert.Empty(t, f)
}

func TestCompile_RejectsUnknownField(t *testing.T) {
	db := dryRunDB(t)
	_, err := Compile(db, Filter{}.Eq("user_password", "x"), UserFields)
	require.Error(t, err)
	assert.True(t, models.HasCode(err, models.CodeParams))

	_, err = Compile(db, Filter{{Field: "id", Op: "regex", Value: ".*"}}, UserFields)
	assert.True(t, models.HasCode(err, models.CodeParams))

	_, err = Compile(db, Filter{{Field: "userName", Op: OpContains, Value: 5}}, UserFields)
	assert.True(t, models.HasCode(err, models.CodeParams))
}

func TestCompile_NotNullAndRange(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	f := Filter{}.NotNull("deployedTime").Gte("priority", 99).Gt("createTime", at)
	q, err := Compile(dryRunDB(t).Model(&models.App{}), f, AppFields)
	require.NoError(t, err)
	stmt := q.Find(&[]models.App{}).Statement
	sql := stmt.SQL.String()
	assert.Contains(t, sql, `"deployed_time" IS NOT NULL`)
	assert.Contains(t, sql, `"priority" >= $1`)
	assert.Contains(t, sql, `"create_time" > $2`)
	assert.Equal(t, []any{99, at}, stmt.Vars)
}

func TestCompile_ContainsIsCaseSensitiveOnSQLite(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}))

	for _, acct := range []string{"Alice01", "alice02", "bob_50%"} {
		require.NoError(t, db.Create(models.NewUser(models.User{UserAccount: acct, UserPassword: "x"})).Error)
	}

	find := func(f Filter) []string {
		q, err := Compile(db.Model(&models.User{}), f, UserFields)
		require.NoError(t, err)
		var accounts []string
		require.NoError(t, q.Order("id").Pluck("user_account", &accounts).Error)
		return accounts
	}

	assert.Equal(t, []string{"alice02"}, find(Filter{}.Contains("userAccount", "alice")))
	assert.Equal(t, []string{"bob_50%"}, find(Filter{}.Contains("userAccount", "_50%")))
	assert.Len(t, find(nil), 3)
}

func TestResolveSort(t *testing.T) {
	tests := []struct {
		name    string
		field   string
		order   string
		want    Sort
		wantErr bool
	}{
		{"defaults", "", "", Sort{Column: "create_time", Desc: true}, false},
		{"ascend", "userName", "ascend", Sort{Column: "user_name", Desc: false}, false},
		{"descend", "userName", "descend", Sort{Column: "user_name", Desc: true}, false},
		{"unknown order is descending", "updateTime", "ASC", Sort{Column: "update_time", Desc: true}, false},
		{"unlisted field", "user_password", "ascend", Sort{}, true},
		{"injection attempt", "id; DROP TABLE user", "", Sort{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveSort(tt.field, tt.order, UserFields)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, models.HasCode(err, models.CodeParams))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSort_Apply(t *testing.T) {
	s, err := ResolveAppSort(&AppQueryRequest{PageRequest: PageRequest{SortField: "priority", SortOrder: "ascend"}})
	require.NoError(t, err)
	stmt := s.Apply(dryRunDB(t).Model(&models.App{})).Find(&[]models.App{}).Statement
	assert.Equal(t, `SELECT * FROM "app" ORDER BY "priority"`, stmt.SQL.String())

	def, err := ResolveChatHistorySort(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultSort(), def)
}

func TestPageRequest_Normalize(t *testing.T) {
	p := PageRequest{Current: 0, PageSize: 0}.Normalize(20)
	assert.Equal(t, 1, p.Current)
	assert.Equal(t, DefaultPageSize, p.PageSize)
	assert.Equal(t, 0, p.Offset())

	p = PageRequest{Current: 3, PageSize: 50}.Normalize(20)
	assert.Equal(t, 20, p.Limit())
	assert.Equal(t, 40, p.Offset())

	p = PageRequest{Current: 2, PageSize: 500}.Normalize(0)
	assert.Equal(t, MaxPageSize, p.PageSize)
}
