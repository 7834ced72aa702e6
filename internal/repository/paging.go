package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// pageWindow turns a 1-based page and size into LIMIT and OFFSET. Sizes
// outside (0, maxPageSize] use defaultPageSize.
func pageWindow(page, size int) (limit, offset int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 || size > maxPageSize {
		size = defaultPageSize
	}
	return size, (page - 1) * size
}

// orderBy resolves a sort key against an allow-list, falling back to def.
func orderBy(allowed map[string]string, sortBy, sortOrder, def, defOrder string) string {
	column, ok := allowed[sortBy]
	if !ok {
		column = def
	}
	switch dir := strings.ToUpper(sortOrder); dir {
	case "ASC", "DESC":
		return column + " " + dir
	}
	return column + " " + defOrder
}

// predicates collects AND-ed WHERE conditions with numbered placeholders.
type predicates struct {
	conds []string
	args  []interface{}
}

// add appends cond bound to arg. Every "?" in cond refers to arg.
func (p *predicates) add(cond string, arg interface{}) {
	p.args = append(p.args, arg)
	p.conds = append(p.conds, strings.ReplaceAll(cond, "?", fmt.Sprintf("$%d", len(p.args))))
}

// contains matches term case-insensitively anywhere in each expression.
func (p *predicates) contains(term string, exprs ...string) {
	parts := make([]string, len(exprs))
	for i, e := range exprs {
		parts[i] = "LOWER(" + e + ") LIKE ?"
	}
	cond := strings.Join(parts, " OR ")
	if len(parts) > 1 {
		cond = "(" + cond + ")"
	}
	p.add(cond, "%"+strings.ToLower(term)+"%")
}

func (p *predicates) clause() string {
	if len(p.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(p.conds, " AND ")
}

// listPage loads one page of `SELECT cols FROM from` into dest and returns
// how many rows match without paging.
func listPage(ctx context.Context, db *sqlx.DB, dest interface{}, cols, from string, where predicates, order string, page, size int) (int, error) {
	filtered := from + where.clause()
	limit, offset := pageWindow(page, size)
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY %s LIMIT %d OFFSET %d", cols, filtered, order, limit, offset)
	if err := db.SelectContext(ctx, dest, query, where.args...); err != nil {
		return 0, err
	}
	var total int
	if err := db.GetContext(ctx, &total, "SELECT COUNT(*) FROM "+filtered, where.args...); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return total, nil
}
