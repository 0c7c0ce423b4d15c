package repository

import (
	"fmt"
	"sort"
	"strings"
)

// Pagination bounds. Limit is capped so a single listing cannot drag
// the whole table through the cache.
const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Sort orders.
const (
	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// SortOption is a single-field sort.
type SortOption struct {
	Field string
	Order string // asc | desc
}

// QueryOptions captures pagination, sorting, filtering and projection
// for list queries. Filter values are either a scalar (equality) or a
// []any (IN).
type QueryOptions struct {
	Page   int
	Limit  int
	Sort   *SortOption
	Filter map[string]any
	Fields []string
}

// Normalize applies defaults and clamps out-of-range values.
func (o *QueryOptions) Normalize() {
	if o.Page < 1 {
		o.Page = DefaultPage
	}
	if o.Limit < 1 {
		o.Limit = DefaultLimit
	}
	if o.Limit > MaxLimit {
		o.Limit = MaxLimit
	}
	if o.Sort != nil && o.Sort.Order != OrderDesc {
		o.Sort.Order = OrderAsc
	}
}

// Offset returns the row offset for the current page.
func (o QueryOptions) Offset() int {
	return (o.Page - 1) * o.Limit
}

// CacheKey serializes the full option set into a stable string. Filter
// keys are sorted so equal options always produce equal keys, and any
// change to paging, sort, filter or projection yields a distinct key.
func (o QueryOptions) CacheKey() string {
	var b strings.Builder
	fmt.Fprintf(&b, "p=%d,l=%d", o.Page, o.Limit)
	if o.Sort != nil {
		fmt.Fprintf(&b, ",s=%s:%s", o.Sort.Field, o.Sort.Order)
	}
	if len(o.Filter) > 0 {
		keys := make([]string, 0, len(o.Filter))
		for k := range o.Filter {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(",f=")
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(';')
			}
			fmt.Fprintf(&b, "%s:%v", k, o.Filter[k])
		}
	}
	if len(o.Fields) > 0 {
		b.WriteString(",c=" + strings.Join(o.Fields, ";"))
	}
	return b.String()
}

// buildWhere turns a filter map into a WHERE clause and its arguments.
// Column names come from the whitelist, never from the caller.
func buildWhere(filter map[string]any, columns map[string]string) (string, []any, error) {
	if len(filter) == 0 {
		return "", nil, nil
	}
	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var (
		conds []string
		args  []any
	)
	for _, k := range keys {
		col, ok := columns[k]
		if !ok {
			return "", nil, fmt.Errorf("%w: %q", ErrUnknownField, k)
		}
		switch v := filter[k].(type) {
		case []any:
			if len(v) == 0 {
				return "", nil, fmt.Errorf("%w: empty IN list for %q", ErrUnknownField, k)
			}
			conds = append(conds, col+" IN ("+placeholders(len(v))+")")
			args = append(args, v...)
		default:
			conds = append(conds, col+"=?")
			args = append(args, v)
		}
	}
	return " WHERE " + strings.Join(conds, " AND "), args, nil
}

// buildOrder turns a sort option into an ORDER BY clause.
func buildOrder(s *SortOption, columns map[string]string) (string, error) {
	if s == nil {
		return "", nil
	}
	col, ok := columns[s.Field]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownField, s.Field)
	}
	dir := "ASC"
	if s.Order == OrderDesc {
		dir = "DESC"
	}
	return " ORDER BY " + col + " " + dir, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}
