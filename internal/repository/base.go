// Package repository implements the data access layer for the application.
//
// Every read composes the live-row clause through notDeleted and every delete
// goes through softDelete; nothing in this package issues a physical DELETE.
package repository

import (
	"context"
	"errors"
	"strings"

	"appforge/internal/database"
	"appforge/internal/models"
	"appforge/internal/observability"
	"appforge/internal/query"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrDuplicateKey reports a write rejected by a unique index.
var ErrDuplicateKey = errors.New("duplicate key")

func readDB(primary *gorm.DB) *gorm.DB {
	if db := database.GetReadDB(); db != nil {
		return db
	}
	return primary
}

// notDeleted restricts a query to live rows of table. The column is qualified
// so the clause stays unambiguous when the query joins other tables.
func notDeleted(table string) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where(clause.Eq{
			Column: clause.Column{Table: table, Name: "is_delete"},
			Value:  models.NotDeleted,
		})
	}
}

// softDelete flags the live rows of model matched by scope as deleted in a
// single UPDATE and returns the number of rows flagged.
func softDelete(db *gorm.DB, model any, table string, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	res := db.Model(model).
		Scopes(scope, notDeleted(table)).
		Update("is_delete", models.Deleted)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected > 0 {
		observability.SoftDeletedRows.WithLabelValues(table).Add(float64(res.RowsAffected))
	}
	return res.RowsAffected, nil
}

func byID(id uint) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Where("id = ?", id)
	}
}

// filtered compiles f into a scope; compile errors surface from the query that uses it.
func filtered(f query.Filter, fields query.Fields) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		q, err := query.Compile(db, f, fields)
		if err != nil {
			_ = db.AddError(err)
			return db
		}
		return q
	}
}

// findPage counts the live rows of T matched by scope and loads one page of them.
func findPage[T any](db *gorm.DB, table string, scope func(*gorm.DB) *gorm.DB, page query.PageRequest, order ...query.Sort) (models.Page[T], error) {
	var model T
	var total int64
	if err := db.Model(&model).Scopes(notDeleted(table), scope).Count(&total).Error; err != nil {
		return models.Page[T]{}, err
	}

	records := make([]T, 0)
	if total > int64(page.Offset()) {
		q := db.Model(&model).Scopes(notDeleted(table), scope)
		for _, s := range order {
			q = s.Apply(q)
		}
		if err := q.Offset(page.Offset()).Limit(page.Limit()).Find(&records).Error; err != nil {
			return models.Page[T]{}, err
		}
	}
	return models.NewPage(records, total, page.Current, page.Limit()), nil
}

// findLatest loads at most limit live rows of T matched by scope in the given order.
func findLatest[T any](db *gorm.DB, table string, scope func(*gorm.DB) *gorm.DB, limit int, order ...query.Sort) ([]T, error) {
	if limit <= 0 {
		limit = query.DefaultPageSize
	}
	if limit > query.MaxPageSize {
		limit = query.MaxPageSize
	}
	q := db.Model(new(T)).Scopes(notDeleted(table), scope)
	for _, s := range order {
		q = s.Apply(q)
	}
	records := make([]T, 0, limit)
	if err := q.Limit(limit).Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

// isUniqueConstraintError checks if a DB error is a unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate key") ||
		strings.Contains(msg, "unique constraint")
}

// storageError passes caller errors through, maps unique violations to
// ErrDuplicateKey and wraps everything else as an internal error.
func storageError(ctx context.Context, log *observability.RepoLogger, operation string, err error) error {
	var appErr *models.AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	if isUniqueConstraintError(err) {
		log.LogError(ctx, err, operation)
		return ErrDuplicateKey
	}
	log.LogError(ctx, err, operation)
	return models.NewInternalError(err)
}

func identity(db *gorm.DB) *gorm.DB {
	return db
}

var (
	newestFirst = query.Sort{Column: "create_time", Desc: true}
	oldestFirst = query.Sort{Column: "create_time", Desc: false}
)
