package storage

import (
	"strings"
	"testing"

	"boosterdb/internal/schema"
)

func testDialect() SQLDialect {
	return SQLDialect{
		Quote:       DoubleQuote,
		Placeholder: DollarPlaceholder,
		ColumnType: func(c schema.Column) string {
			if c.Type == schema.Integer {
				return "BIGINT"
			}
			return "TEXT"
		},
		DropSuffix: " CASCADE",
	}
}

func TestSQLDialect_CreateTableSQL_FixedSchema(t *testing.T) {
	t.Parallel()

	ts := schema.TableSchema{
		Name:  "clubs",
		Fixed: true,
		Columns: []schema.Column{
			{Name: "id", SQLType: "SERIAL", PrimaryKey: true},
			{Name: "name", Type: schema.Text, NotNull: true},
			{Name: "Member Count", Type: schema.Integer},
		},
	}

	got, err := testDialect().CreateTableSQL(ts)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	want := `CREATE TABLE clubs (id SERIAL, name TEXT NOT NULL, "Member Count" BIGINT, PRIMARY KEY (id))`
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestSQLDialect_CreateTableSQL_Errors(t *testing.T) {
	t.Parallel()

	d := testDialect()
	tests := []struct {
		name    string
		ts      schema.TableSchema
		wantErr string
	}{
		{name: "no columns", ts: schema.TableSchema{Name: "t"}, wantErr: "no columns"},
		{name: "bad table", ts: schema.TableSchema{Name: "t;x", Columns: []schema.Column{{Name: "a"}}}, wantErr: "must match"},
		{name: "empty column", ts: schema.TableSchema{Name: "t", Columns: []schema.Column{{Name: " "}}}, wantErr: "empty name"},
		{name: "duplicate column", ts: schema.TableSchema{Name: "t", Columns: []schema.Column{{Name: "a"}, {Name: "a"}}}, wantErr: "duplicate column"},
		{name: "bad sql type", ts: schema.TableSchema{Name: "t", Columns: []schema.Column{{Name: "a", SQLType: "INT; DROP"}}}, wantErr: "invalid characters"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := d.CreateTableSQL(tt.ts)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSQLDialect_CreateTableSQL_CaseOnlyDuplicates(t *testing.T) {
	t.Parallel()

	ts := schema.TableSchema{
		Name:    "t",
		Columns: []schema.Column{{Name: "Name", Type: schema.Text}, {Name: "name", Type: schema.Text}},
	}

	got, err := testDialect().CreateTableSQL(ts)
	if err != nil {
		t.Fatalf("case-sensitive dialect: unexpected err: %v", err)
	}
	if want := `CREATE TABLE t ("Name" TEXT, name TEXT)`; got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}

	folding := testDialect()
	folding.FoldCase = true
	if _, err := folding.CreateTableSQL(ts); err == nil || !strings.Contains(err.Error(), "duplicate column") {
		t.Fatalf("case-folding dialect: expected duplicate column error, got %v", err)
	}
}

func TestSQLDialect_DropInsertCount(t *testing.T) {
	t.Parallel()

	d := testDialect()

	drop, err := d.DropTableSQL("officers")
	if err != nil || drop != "DROP TABLE IF EXISTS officers CASCADE" {
		t.Fatalf("DropTableSQL = %q, %v", drop, err)
	}

	cols := []schema.Column{{Name: "name"}, {Name: "user"}}
	if got := d.InsertSQL("officers", cols); got != `INSERT INTO officers (name, "user") VALUES ($1, $2)` {
		t.Fatalf("InsertSQL = %q", got)
	}

	if got := d.InsertSQL("officers", nil); got != "INSERT INTO officers DEFAULT VALUES" {
		t.Fatalf("InsertSQL (empty) = %q", got)
	}

	if got := d.CountSQL("officers"); got != "SELECT COUNT(*) FROM officers" {
		t.Fatalf("CountSQL = %q", got)
	}

	q := d
	q.Placeholder = QuestionPlaceholder
	q.Quote = BacktickQuote
	if got := q.InsertSQL("t", cols); got != "INSERT INTO t (name, `user`) VALUES (?, ?)" {
		t.Fatalf("InsertSQL (mysql style) = %q", got)
	}
	if got := AtPlaceholder(3); got != "@p3" {
		t.Fatalf("AtPlaceholder = %q", got)
	}
}
