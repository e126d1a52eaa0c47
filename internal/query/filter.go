// Package query turns sparse filter requests into data-driven filter descriptors
// and compiles them against a GORM query.
package query

import (
	"fmt"
	"strings"
	"time"

	"appforge/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Op is a comparison operator understood by Compile.
type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "contains"
	OpGte      Op = "gte"
	OpGt       Op = "gt"
	OpLt       Op = "lt"
	OpNotNull  Op = "not_null"
)

// Condition is one {field, operator, value} tuple of a filter.
type Condition struct {
	Field string
	Op    Op
	Value any
}

// Filter is an ordered conjunction of conditions. The zero value matches every row.
type Filter []Condition

// Eq appends an equality condition.
func (f Filter) Eq(field string, value any) Filter {
	return append(f, Condition{Field: field, Op: OpEq, Value: value})
}

// Contains appends a case-sensitive substring condition.
func (f Filter) Contains(field, value string) Filter {
	return append(f, Condition{Field: field, Op: OpContains, Value: value})
}

// Gte appends a lower bound, inclusive.
func (f Filter) Gte(field string, value any) Filter {
	return append(f, Condition{Field: field, Op: OpGte, Value: value})
}

// Gt appends a lower bound, exclusive.
func (f Filter) Gt(field string, value any) Filter {
	return append(f, Condition{Field: field, Op: OpGt, Value: value})
}

// Lt appends an upper bound, exclusive.
func (f Filter) Lt(field string, value any) Filter {
	return append(f, Condition{Field: field, Op: OpLt, Value: value})
}

// NotNull appends a presence condition.
func (f Filter) NotNull(field string) Filter {
	return append(f, Condition{Field: field, Op: OpNotNull})
}

// Fields maps request field names to column names. It doubles as the allow-list
// for filtering and sorting: a name absent from the map is rejected.
type Fields map[string]string

// Column resolves a request field name.
func (fs Fields) Column(field string) (string, bool) {
	col, ok := fs[field]
	return col, ok
}

// Compile applies the filter to db. Unknown fields and operators fail with a
// parameter error; nothing caller-supplied is ever spliced into SQL text.
func Compile(db *gorm.DB, f Filter, fields Fields) (*gorm.DB, error) {
	if len(f) == 0 {
		return db, nil
	}
	exprs := make([]clause.Expression, 0, len(f))
	for _, c := range f {
		col, ok := fields.Column(c.Field)
		if !ok {
			return nil, models.NewParamsError(fmt.Sprintf("unknown filter field %q", c.Field))
		}
		expr, err := compileCondition(db.Dialector.Name(), col, c)
		if err != nil {
			return nil, err
		}
		exprs = append(exprs, expr)
	}
	return db.Where(clause.And(exprs...)), nil
}

func compileCondition(dialect, col string, c Condition) (clause.Expression, error) {
	column := clause.Column{Name: col}
	switch c.Op {
	case OpEq:
		return clause.Eq{Column: column, Value: c.Value}, nil
	case OpGte:
		return clause.Gte{Column: column, Value: c.Value}, nil
	case OpGt:
		return clause.Gt{Column: column, Value: c.Value}, nil
	case OpLt:
		return clause.Lt{Column: column, Value: c.Value}, nil
	case OpNotNull:
		return clause.Expr{SQL: "? IS NOT NULL", Vars: []any{column}}, nil
	case OpContains:
		s, ok := c.Value.(string)
		if !ok {
			return nil, models.NewParamsError(fmt.Sprintf("field %q requires a text value", c.Field))
		}
		return containsExpr(dialect, column, s), nil
	default:
		return nil, models.NewParamsError(fmt.Sprintf("unsupported operator %q", c.Op))
	}
}

// containsExpr matches substrings case-sensitively. SQLite's LIKE folds ASCII
// case, so it gets instr instead.
func containsExpr(dialect string, column clause.Column, value string) clause.Expression {
	if dialect == "sqlite" {
		return clause.Expr{SQL: "instr(?, ?) > 0", Vars: []any{column, value}}
	}
	return clause.Expr{SQL: `? LIKE ? ESCAPE '\'`, Vars: []any{column, "%" + EscapeLike(value) + "%"}}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// EscapeLike neutralizes LIKE wildcards in value.
func EscapeLike(value string) string {
	return likeEscaper.Replace(value)
}

// timeValue keeps zero times out of cursor predicates.
func timeValue(t *time.Time) (time.Time, bool) {
	if t == nil || t.IsZero() {
		return time.Time{}, false
	}
	return *t, true
}
