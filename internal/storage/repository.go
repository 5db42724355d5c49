package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"boosterdb/internal/schema"
	"boosterdb/pkg/records"
)

// Config is the minimal configuration needed to open a Repository.
//
// Edge cases:
//   - Kind must be non-empty and must match a registered backend kind.
//   - DSN is passed through to the backend factory; validation is backend-specific.
//   - StatementTimeout of zero means no per-statement deadline.
type Config struct {
	Kind             string
	DSN              string
	StatementTimeout time.Duration
}

// Repository is the backend-agnostic surface used by restore, verify and backup.
//
// Each backend renders DDL in its own dialect but keeps the same semantics:
// DropTable is a no-op when the table is missing, CreateTable creates exactly the
// columns of the schema (all nullable unless the schema is fixed), and
// InsertRecord writes one row in its own implicit transaction.
type Repository interface {
	// Close releases backend resources. Treat it as "call once".
	Close()

	DropTable(ctx context.Context, table string) error
	CreateTable(ctx context.Context, ts schema.TableSchema) error

	// InsertRecord inserts one row. cols and values are parallel; values are
	// raw snapshot values and are bound by the backend per column type.
	InsertRecord(ctx context.Context, table string, cols []schema.Column, values []any) error

	CountRows(ctx context.Context, table string) (int64, error)
	ListTables(ctx context.Context) ([]string, error)

	// ExportTable calls fn for every row of table with columns in table order.
	ExportTable(ctx context.Context, table string, fn func(*records.Record) error) error
}

// Dialect renders DDL without a connection. The infer command and dry runs use
// it to print what restore would execute.
type Dialect interface {
	CreateTableSQL(ts schema.TableSchema) (string, error)
	DropTableSQL(table string) (string, error)
}

// Factory opens a Repository for cfg.
type Factory func(ctx context.Context, cfg Config) (Repository, error)

// Backend is what a backend package registers.
type Backend struct {
	Open    Factory
	Dialect Dialect
}

var (
	mu       sync.RWMutex
	backends = map[string]Backend{}
)

// Register registers a backend under a kind (e.g. "postgres", "sqlite").
//
// Call Register from an init() function in the backend package. The kind string
// becomes the lookup key used by New and DialectFor.
//
// Panics:
//   - If kind is empty.
//   - If b.Open or b.Dialect is nil.
//   - If kind is already registered.
func Register(kind string, b Backend) {
	mu.Lock()
	defer mu.Unlock()

	if kind == "" {
		panic("storage: Register called with empty kind")
	}
	if b.Open == nil || b.Dialect == nil {
		panic(fmt.Sprintf("storage: incomplete backend for kind=%q", kind))
	}
	if _, exists := backends[kind]; exists {
		panic(fmt.Sprintf("storage: backend already registered for kind=%q", kind))
	}
	backends[kind] = b
}

// New opens a Repository using the registered backend factory.
//
// Errors:
//   - Returns an error if cfg.Kind is empty or unsupported.
//   - Returns whatever error the registered factory returns (wrapped).
func New(ctx context.Context, cfg Config) (Repository, error) {
	b, err := lookup(cfg.Kind)
	if err != nil {
		return nil, err
	}
	repo, err := b.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: open %s: %w", cfg.Kind, err)
	}
	return repo, nil
}

// DialectFor returns the DDL renderer of a registered backend.
func DialectFor(kind string) (Dialect, error) {
	b, err := lookup(kind)
	if err != nil {
		return nil, err
	}
	return b.Dialect, nil
}

// Kinds lists registered backend kinds in sorted order.
func Kinds() []string {
	mu.RLock()
	defer mu.RUnlock()

	out := make([]string, 0, len(backends))
	for k := range backends {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func lookup(kind string) (Backend, error) {
	if kind == "" {
		return Backend{}, fmt.Errorf("storage: missing kind")
	}

	mu.RLock()
	b, ok := backends[kind]
	mu.RUnlock()

	if !ok {
		return Backend{}, fmt.Errorf("storage: unsupported kind=%s (registered: %v)", kind, Kinds())
	}
	return b, nil
}
