// Package sqlite is the local rehearsal backend: restores into a SQLite file
// (or :memory:) through modernc.org/sqlite.
package sqlite

import (
	"context"

	_ "modernc.org/sqlite"

	"boosterdb/internal/schema"
	"boosterdb/internal/storage"
	"boosterdb/internal/storage/sqldb"
)

// SQLite has type affinity rather than strict types, so everything that is
// not a number maps to TEXT.
var dialect = storage.SQLDialect{
	Quote:         storage.DoubleQuote,
	Placeholder:   storage.QuestionPlaceholder,
	ColumnType:    columnType,
	ListTablesSQL: `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`,
	FoldCase:      true,
}

func init() {
	storage.Register("sqlite", storage.Backend{Open: New, Dialect: dialect})
}

// New opens a SQLite database. cfg.DSN is a file path or a modernc DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	// One writer at a time; more connections only produce SQLITE_BUSY.
	return sqldb.Open(ctx, cfg, sqldb.Options{Driver: "sqlite", Dialect: dialect, MaxOpenConns: 1})
}

func columnType(c schema.Column) string {
	if c.Array {
		return "TEXT"
	}
	switch c.Type {
	case schema.Boolean, schema.Integer:
		return "INTEGER"
	case schema.Decimal:
		return "REAL"
	default:
		return "TEXT"
	}
}
