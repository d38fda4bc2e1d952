package store

import (
	"database/sql"
	"strings"

	"github.com/jward/scopegraph/internal/scope"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// int64sToArgs converts []int64 to []any for use with database/sql.
func int64sToArgs(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// rangeArgs flattens r into the six start/end column values.
func rangeArgs(r scope.TextRange) []any {
	return []any{r.Start.Byte, r.Start.Line, r.Start.Column, r.End.Byte, r.End.Line, r.End.Column}
}

// rangeDest returns scan destinations matching rangeArgs.
func rangeDest(r *scope.TextRange) []any {
	return []any{&r.Start.Byte, &r.Start.Line, &r.Start.Column, &r.End.Byte, &r.End.Line, &r.End.Column}
}

// nullableByte returns a NULL-able column value for an optional offset.
func nullableByte(r *scope.TextRange, end bool) sql.NullInt64 {
	if r == nil {
		return sql.NullInt64{}
	}
	if end {
		return sql.NullInt64{Int64: int64(r.End.Byte), Valid: true}
	}
	return sql.NullInt64{Int64: int64(r.Start.Byte), Valid: true}
}
