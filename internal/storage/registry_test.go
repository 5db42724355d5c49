package storage

import (
	"context"
	"strings"
	"testing"

	"boosterdb/internal/schema"
	"boosterdb/pkg/records"
)

type stubRepo struct{ cfg Config }

func (stubRepo) Close() {}
func (stubRepo) DropTable(context.Context, string) error { return nil }
func (stubRepo) CreateTable(context.Context, schema.TableSchema) error { return nil }
func (stubRepo) InsertRecord(context.Context, string, []schema.Column, []any) error {
	return nil
}
func (stubRepo) CountRows(context.Context, string) (int64, error) { return 0, nil }
func (stubRepo) ListTables(context.Context) ([]string, error) { return nil, nil }
func (stubRepo) ExportTable(context.Context, string, func(*records.Record) error) error {
	return nil
}

func TestRegisterAndNew(t *testing.T) {
	kind := "stub-" + t.Name()
	Register(kind, Backend{
		Open: func(_ context.Context, cfg Config) (Repository, error) {
			return stubRepo{cfg: cfg}, nil
		},
		Dialect: testDialect(),
	})

	repo, err := New(context.Background(), Config{Kind: kind, DSN: "x"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if repo.(stubRepo).cfg.DSN != "x" {
		t.Fatalf("config not passed through")
	}

	if _, err := DialectFor(kind); err != nil {
		t.Fatalf("DialectFor: %v", err)
	}

	found := false
	for _, k := range Kinds() {
		if k == kind {
			found = true
		}
	}
	if !found {
		t.Fatalf("kind %q missing from Kinds()", kind)
	}
}

func TestNew_Errors(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil || !strings.Contains(err.Error(), "missing kind") {
		t.Fatalf("expected missing kind error, got %v", err)
	}
	if _, err := New(context.Background(), Config{Kind: "nope"}); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestRegister_PanicsOnDuplicate(t *testing.T) {
	kind := "dup-" + t.Name()
	b := Backend{
		Open:    func(context.Context, Config) (Repository, error) { return stubRepo{}, nil },
		Dialect: testDialect(),
	}
	Register(kind, b)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic on duplicate registration")
		}
	}()
	Register(kind, b)
}
