// Package mssql restores into Microsoft SQL Server.
//
// The "sqlserver" driver is registered by storage/all, not here.
package mssql

import (
	"context"

	"boosterdb/internal/schema"
	"boosterdb/internal/storage"
	"boosterdb/internal/storage/sqldb"
)

var dialect = storage.SQLDialect{
	Quote:         storage.BracketQuote,
	Placeholder:   storage.AtPlaceholder,
	ColumnType:    columnType,
	CountExpr:     "COUNT_BIG(*)",
	ListTablesSQL: `SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME`,
	FoldCase:      true,
}

func init() {
	storage.Register("mssql", storage.Backend{Open: New, Dialect: dialect})
}

// New opens SQL Server via database/sql and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	return sqldb.Open(ctx, cfg, sqldb.Options{Driver: "sqlserver", Dialect: dialect, MaxOpenConns: 4})
}

func columnType(c schema.Column) string {
	if c.Array || c.Long {
		return "NVARCHAR(MAX)"
	}
	switch c.Type {
	case schema.Boolean:
		return "BIT"
	case schema.Integer:
		return "BIGINT"
	case schema.Decimal:
		return "DECIMAL(38,10)"
	case schema.UUID:
		return "UNIQUEIDENTIFIER"
	case schema.Timestamp:
		return "DATETIME2"
	case schema.Date:
		return "DATE"
	case schema.JSON:
		return "NVARCHAR(MAX)"
	default:
		return "NVARCHAR(255)"
	}
}
