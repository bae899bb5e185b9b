package database

import (
	"context"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// Query runs a SurrealQL statement and decodes the result set of the first
// statement into T.
//
//	query := "SELECT * FROM message WHERE room = $room ORDER BY createdAt"
//	msgs, err := Query[messageRecord](ctx, db, query, map[string]any{"room": roomID})
func Query[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, queryError(query, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[0].Result, nil
}

// QueryLast is Query for multi-statement queries: it decodes the result set
// of the final statement.
func QueryLast[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) ([]T, error) {
	results, err := surrealdb.Query[[]T](ctx, db, query, params)
	if err != nil {
		return nil, queryError(query, err)
	}
	if results == nil || len(*results) == 0 {
		return nil, nil
	}
	return (*results)[len(*results)-1].Result, nil
}

// QueryOne returns the first row of query, or nil, nil when there is none.
// SELECT statements without a LIMIT get LIMIT 1.
func QueryOne[T any](ctx context.Context, db *surrealdb.DB, query string, params map[string]any) (*T, error) {
	if statementKind(query) == "SELECT" && !hasLimitClause(query) {
		query += " LIMIT 1"
	}
	rows, err := Query[T](ctx, db, query, params)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// Execute runs statements whose results are discarded, such as schema
// definitions and upserts.
func Execute(ctx context.Context, db *surrealdb.DB, query string, params map[string]any) error {
	if _, err := surrealdb.Query[any](ctx, db, query, params); err != nil {
		return queryError(query, err)
	}
	return nil
}

// queryError names the failing statement kind so store errors read as
// "surreal CREATE: ..." rather than quoting the whole query.
func queryError(query string, err error) error {
	return fmt.Errorf("surreal %s: %w", statementKind(query), err)
}

// statementKind returns the leading keyword of query, upper-cased.
func statementKind(query string) string {
	fields := strings.Fields(query)
	if len(fields) == 0 {
		return "QUERY"
	}
	return strings.ToUpper(fields[0])
}

func hasLimitClause(query string) bool {
	for _, f := range strings.Fields(query) {
		if strings.EqualFold(f, "LIMIT") {
			return true
		}
	}
	return false
}
