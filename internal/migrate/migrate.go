// Package migrate applies the hand-written site schema (clubs, officers,
// payment links, analytics events) with goose.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

const migrationsDir = "migrations"

// goose keeps its base FS, dialect and logger in package globals.
var gooseMu sync.Mutex

// target maps a storage kind onto a database/sql driver and goose dialect.
type target struct {
	driver  string
	dialect string
}

var targets = map[string]target{
	"postgres": {driver: "pgx", dialect: "postgres"},
	"sqlite":   {driver: "sqlite", dialect: "sqlite3"},
}

// Status is one migration and whether it has been applied.
type Status struct {
	Version int64
	Source  string
	Applied bool
}

// Migrator runs the embedded migrations against one database.
type Migrator struct {
	db      *sql.DB
	dialect string
	logger  *slog.Logger
}

// Open connects to dsn for kind (postgres or sqlite).
func Open(ctx context.Context, kind, dsn string, logger *slog.Logger) (*Migrator, error) {
	t, ok := targets[kind]
	if !ok {
		return nil, fmt.Errorf("migrate: unsupported database kind %q (want postgres or sqlite)", kind)
	}
	db, err := sql.Open(t.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: connect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{db: db, dialect: t.dialect, logger: logger}, nil
}

func (m *Migrator) Close() error { return m.db.Close() }

// Up applies every pending migration and returns the resulting version.
func (m *Migrator) Up(ctx context.Context) (int64, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := m.setup(); err != nil {
		return 0, err
	}
	if err := goose.UpContext(ctx, m.db, migrationsDir); err != nil {
		return 0, fmt.Errorf("goose up: %w", err)
	}
	v, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return 0, fmt.Errorf("goose version: %w", err)
	}
	m.logger.Info("migrations applied", "stage", "migrate", "version", v)
	return v, nil
}

// Status lists the embedded migrations in version order.
func (m *Migrator) Status(ctx context.Context) ([]Status, error) {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	if err := m.setup(); err != nil {
		return nil, err
	}
	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	if err != nil {
		return nil, fmt.Errorf("goose collect: %w", err)
	}
	current, err := goose.GetDBVersionContext(ctx, m.db)
	if err != nil {
		return nil, fmt.Errorf("goose version: %w", err)
	}

	out := make([]Status, 0, len(migrations))
	for _, mig := range migrations {
		out = append(out, Status{Version: mig.Version, Source: mig.Source, Applied: mig.Version <= current})
	}
	return out, nil
}

func (m *Migrator) setup() error {
	goose.SetBaseFS(embedMigrations)
	goose.SetLogger(gooseLogger{m.logger})
	if err := goose.SetDialect(m.dialect); err != nil {
		return fmt.Errorf("goose set dialect: %w", err)
	}
	return nil
}

// gooseLogger routes goose output through slog.
type gooseLogger struct {
	l *slog.Logger
}

func (g gooseLogger) Printf(format string, v ...any) {
	g.l.Info(fmt.Sprintf(format, v...), "stage", "migrate")
}

func (g gooseLogger) Fatalf(format string, v ...any) {
	g.l.Error(fmt.Sprintf(format, v...), "stage", "migrate")
}
