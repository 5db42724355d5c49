package mssql

import (
	"testing"

	"boosterdb/internal/schema"
)

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	ts := schema.TableSchema{Name: "dbo.payment_links", Columns: []schema.Column{
		{Name: "id", Type: schema.UUID},
		{Name: "url", Type: schema.Text},
		{Name: "notes", Type: schema.Text, Long: true},
		{Name: "active", Type: schema.Boolean},
		{Name: "amount", Type: schema.Decimal},
		{Name: "created_at", Type: schema.Timestamp},
		{Name: "user", Type: schema.Text},
	}}

	got, err := dialect.CreateTableSQL(ts)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := "CREATE TABLE dbo.payment_links (id UNIQUEIDENTIFIER, url NVARCHAR(255), notes NVARCHAR(MAX), " +
		"active BIT, amount DECIMAL(38,10), created_at DATETIME2, [user] NVARCHAR(255))"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestInsertAndCountSQL(t *testing.T) {
	t.Parallel()

	cols := []schema.Column{{Name: "name"}, {Name: "club"}}
	if got := dialect.InsertSQL("officers", cols); got != "INSERT INTO officers (name, club) VALUES (@p1, @p2)" {
		t.Fatalf("InsertSQL = %q", got)
	}
	if got := dialect.CountSQL("officers"); got != "SELECT COUNT_BIG(*) FROM officers" {
		t.Fatalf("CountSQL = %q", got)
	}
	drop, err := dialect.DropTableSQL("Officers")
	if err != nil || drop != "DROP TABLE IF EXISTS [Officers]" {
		t.Fatalf("DropTableSQL = %q, %v", drop, err)
	}
}
