// Package store persists parties, items, requests, matches and missions in SQLite.
//
// Items and requests carry a version column. Every state change is a
// conditional UPDATE on the version the caller observed; a write that affects
// no rows is reported as a *model.ConflictError and leaves nothing behind.
package store

import (
	"context"
	"database/sql"
	"time"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Clock supplies timestamps for writes. It is replaced in tests.
var Clock = func() time.Time { return time.Now().UTC() }

func nullInt(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
