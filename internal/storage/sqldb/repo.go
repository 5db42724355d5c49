// Package sqldb implements storage.Repository over database/sql. The sqlite,
// mssql and mysql backends differ only in driver name and SQL dialect.
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"boosterdb/internal/schema"
	"boosterdb/internal/storage"
	"boosterdb/pkg/records"
)

// dbConn is the narrow slice of *sql.DB this package needs.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	Close() error
}

var _ dbConn = (*sql.DB)(nil)

// Repo is a database/sql backed storage.Repository.
type Repo struct {
	db      dbConn
	dialect storage.SQLDialect
	timeout time.Duration
}

// Options configure Open.
type Options struct {
	Driver  string
	Dialect storage.SQLDialect

	// MaxOpenConns of zero leaves the driver default.
	MaxOpenConns int
}

// Open opens the driver and verifies connectivity via PingContext.
//
// The driver must already be registered with database/sql (storage/all
// imports every driver used here).
func Open(ctx context.Context, cfg storage.Config, opts Options) (*Repo, error) {
	db, err := sql.Open(opts.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
		db.SetMaxIdleConns(opts.MaxOpenConns)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Repo{db: db, dialect: opts.Dialect, timeout: cfg.StatementTimeout}, nil
}

// Close releases the underlying handle.
func (r *Repo) Close() {
	if r == nil || r.db == nil {
		return
	}
	_ = r.db.Close()
}

func (r *Repo) stmtCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Repo) exec(ctx context.Context, query string, args ...any) error {
	ctx, cancel := r.stmtCtx(ctx)
	defer cancel()
	_, err := r.db.ExecContext(ctx, query, args...)
	return err
}

func (r *Repo) DropTable(ctx context.Context, table string) error {
	q, err := r.dialect.DropTableSQL(table)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("drop %s: %w", table, err)
	}
	return nil
}

func (r *Repo) CreateTable(ctx context.Context, ts schema.TableSchema) error {
	q, err := r.dialect.CreateTableSQL(ts)
	if err != nil {
		return err
	}
	if err := r.exec(ctx, q); err != nil {
		return fmt.Errorf("create %s: %w", ts.Name, err)
	}
	return nil
}

func (r *Repo) InsertRecord(ctx context.Context, table string, cols []schema.Column, values []any) error {
	if len(cols) != len(values) {
		return fmt.Errorf("insert %s: %d columns but %d values", table, len(cols), len(values))
	}

	args := make([]any, len(values))
	for i, v := range values {
		b, err := storage.BindValue(cols[i], v, false)
		if err != nil {
			return fmt.Errorf("column %s: %w", cols[i].Name, err)
		}
		args[i] = b
	}
	return r.exec(ctx, r.dialect.InsertSQL(table, cols), args...)
}

func (r *Repo) CountRows(ctx context.Context, table string) (int64, error) {
	ctx, cancel := r.stmtCtx(ctx)
	defer cancel()

	var n int64
	if err := r.db.QueryRowContext(ctx, r.dialect.CountSQL(table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (r *Repo) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, r.dialect.ListTablesSQL)
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

// ExportTable streams every row; it is not bounded by the statement timeout.
func (r *Repo) ExportTable(ctx context.Context, table string, fn func(*records.Record) error) error {
	rows, err := r.db.QueryContext(ctx, r.dialect.SelectAllSQL(table))
	if err != nil {
		return fmt.Errorf("export %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return err
	}

	vals := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range vals {
		ptrs[i] = &vals[i]
	}

	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return fmt.Errorf("export %s: %w", table, err)
		}
		rec := records.New(len(cols))
		for i, c := range cols {
			rec.Set(c, storage.ExportValue(vals[i]))
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}
