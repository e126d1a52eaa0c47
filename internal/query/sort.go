package query

import (
	"fmt"
	"strings"

	"appforge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	// DefaultSortField is used when the caller names no sort field.
	DefaultSortField = "createTime"
	// SortAscend is the only order token that selects ascending order.
	SortAscend = "ascend"
)

// Sort is a resolved, allow-listed ordering.
type Sort struct {
	Column string
	Desc   bool
}

// ResolveSort validates field against fields and resolves the direction. A blank
// field means creation time; any order other than "ascend" means descending.
func ResolveSort(field, order string, fields Fields) (Sort, error) {
	field = strings.TrimSpace(field)
	if field == "" {
		field = DefaultSortField
	}
	col, ok := fields.Column(field)
	if !ok {
		return Sort{}, models.NewParamsError(fmt.Sprintf("unsupported sort field %q", field))
	}
	return Sort{Column: col, Desc: order != SortAscend}, nil
}

// DefaultSort orders by creation time, newest first.
func DefaultSort() Sort {
	return Sort{Column: "create_time", Desc: true}
}

// Apply adds the ordering to db.
func (s Sort) Apply(db *gorm.DB) *gorm.DB {
	return db.Order(clause.OrderByColumn{Column: clause.Column{Name: s.Column}, Desc: s.Desc})
}
