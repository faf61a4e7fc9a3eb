package store

import (
	"strconv"
	"strings"
)

func metadataParam(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func imagesParam(v []string) []string {
	if v == nil {
		return []string{}
	}
	return v
}

func lowerAddr(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func pageParams(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// where accumulates SQL predicates with positional args.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(clause string, arg any) {
	w.args = append(w.args, arg)
	w.clauses = append(w.clauses, strings.ReplaceAll(clause, "?", placeholder(len(w.args))))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}
