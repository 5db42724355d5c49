// Package mysql restores into MySQL / MariaDB through go-sql-driver/mysql.
package mysql

import (
	"context"
	"fmt"

	driver "github.com/go-sql-driver/mysql"

	"boosterdb/internal/schema"
	"boosterdb/internal/storage"
	"boosterdb/internal/storage/sqldb"
)

var dialect = storage.SQLDialect{
	Quote:         storage.BacktickQuote,
	Placeholder:   storage.QuestionPlaceholder,
	ColumnType:    columnType,
	ListTablesSQL: `SELECT table_name FROM information_schema.tables WHERE table_schema = DATABASE() AND table_type = 'BASE TABLE' ORDER BY table_name`,
	FoldCase:      true,
}

func init() {
	storage.Register("mysql", storage.Backend{Open: New, Dialect: dialect})
}

// New opens MySQL. The DSN is in go-sql-driver form (user:pass@tcp(host:3306)/db);
// parseTime is forced on so DATE and DATETIME columns scan as time.Time.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	dsn, err := normalizeDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	cfg.DSN = dsn
	return sqldb.Open(ctx, cfg, sqldb.Options{Driver: "mysql", Dialect: dialect, MaxOpenConns: 4})
}

func normalizeDSN(dsn string) (string, error) {
	c, err := driver.ParseDSN(dsn)
	if err != nil {
		return "", fmt.Errorf("mysql: parse dsn: %w", err)
	}
	c.ParseTime = true
	return c.FormatDSN(), nil
}

func columnType(c schema.Column) string {
	if c.Array {
		return "JSON"
	}
	if c.Long {
		return "TEXT"
	}
	switch c.Type {
	case schema.Boolean:
		return "BOOLEAN"
	case schema.Integer:
		return "BIGINT"
	case schema.Decimal:
		return "DECIMAL(38,10)"
	case schema.UUID:
		return "CHAR(36)"
	case schema.Timestamp:
		return "DATETIME(6)"
	case schema.Date:
		return "DATE"
	case schema.JSON:
		return "JSON"
	default:
		return "VARCHAR(255)"
	}
}
