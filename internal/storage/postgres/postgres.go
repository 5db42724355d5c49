// Package postgres is the primary restore target, backed by a pgx pool.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"boosterdb/internal/schema"
	"boosterdb/internal/storage"
	"boosterdb/pkg/records"
)

var dialect = storage.SQLDialect{
	Quote:       storage.DoubleQuote,
	Placeholder: storage.DollarPlaceholder,
	ColumnType:  columnType,
	DropSuffix:  " CASCADE",
	ListTablesSQL: `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() AND table_type = 'BASE TABLE'
ORDER BY table_name`,
}

func init() {
	storage.Register("postgres", storage.Backend{Open: New, Dialect: dialect})
}

// Repo implements storage.Repository for Postgres.
//
// One pool is opened per run and shared by every table; each statement runs
// in its own implicit transaction.
type Repo struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

// New creates a pool from a postgres:// URL and pings it.
func New(ctx context.Context, cfg storage.Config) (storage.Repository, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Repo{pool: pool, timeout: cfg.StatementTimeout}, nil
}

// Close closes the connection pool.
func (r *Repo) Close() {
	r.pool.Close()
}

func (r *Repo) stmtCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repo) exec(ctx context.Context, sql string, args ...any) error {
	ctx, cancel := r.stmtCtx(ctx)
	defer cancel()
	_, err := r.pool.Exec(ctx, sql, args...)
	return err
}

func (r *Repo) DropTable(ctx context.Context, table string) error {
	sql, err := dialect.DropTableSQL(table)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, sql); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return nil
}

func (r *Repo) CreateTable(ctx context.Context, ts schema.TableSchema) error {
	sql, err := dialect.CreateTableSQL(ts)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, sql); err != nil {
		return fmt.Errorf("create %s: %w", ts.Name, err)
	}
	return nil
}

// InsertRecord binds arrays natively (TEXT[]); everything else goes through
// storage.BindValue.
func (r *Repo) InsertRecord(ctx context.Context, table string, cols []schema.Column, values []any) error {
	sql, args, err := buildInsertSQL(table, cols, values)
	if err != nil {
		return err
	}
	return r.exec(ctx, sql, args...)
}

// buildInsertSQL is pure so placeholder numbering and binding are testable
// without a database.
func buildInsertSQL(table string, cols []schema.Column, values []any) (string, []any, error) {
	if len(cols) != len(values) {
		return "", nil, fmt.Errorf("insert %s: %d columns but %d values", table, len(cols), len(values))
	}
	args := make([]any, len(values))
	for i, v := range values {
		b, err := storage.BindValue(cols[i], v, true)
		if err != nil {
			return "", nil, fmt.Errorf("column %s: %w", cols[i].Name, err)
		}
		args[i] = b
	}
	return dialect.InsertSQL(table, cols), args, nil
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	ctx, cancel := r.stmtCtx(ctx)
	defer cancel()

	var n int64
	if err := r.pool.QueryRow(ctx, dialect.CountSQL(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, dialect.ListTablesSQL)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

func (r *Repo) ExportTable(ctx context.Context, table string, fn func(*records.Record) error) error {
	rows, err := r.pool.Query(ctx, dialect.SelectAllSQL(table))
	if err != nil {
		return fmt.Errorf("export %s: %w", table, err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return fmt.Errorf("export %s: %w", table, err)
		}
		rec := records.New(len(fields))
		for i, f := range fields {
			rec.Set(f.Name, exportValue(vals[i]))
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// exportValue maps pgx's decoded values onto JSON-friendly ones.
func exportValue(v any) any {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case pgtype.Numeric:
		if !t.Valid {
			return nil
		}
		f, err := t.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	default:
		return storage.ExportValue(v)
	}
}

func columnType(c schema.Column) string {
	if c.Array {
		return "TEXT[]"
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
		return "DECIMAL"
	case schema.UUID:
		return "UUID"
	case schema.Timestamp:
		return "TIMESTAMP"
	case schema.Date:
		return "DATE"
	case schema.JSON:
		return "JSONB"
	default:
		return "VARCHAR(255)"
	}
}
