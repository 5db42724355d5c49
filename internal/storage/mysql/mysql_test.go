package mysql

import (
	"strings"
	"testing"

	"boosterdb/internal/schema"
)

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	ts := schema.TableSchema{Name: "analytics_events", Columns: []schema.Column{
		{Name: "id", Type: schema.UUID},
		{Name: "payload", Type: schema.JSON},
		{Name: "tags", Type: schema.Text, Array: true},
		{Name: "at", Type: schema.Timestamp},
		{Name: "order", Type: schema.Integer},
	}}

	got, err := dialect.CreateTableSQL(ts)
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	want := "CREATE TABLE analytics_events (id CHAR(36), payload JSON, tags JSON, at DATETIME(6), `order` BIGINT)"
	if got != want {
		t.Fatalf("got  %s\nwant %s", got, want)
	}
}

func TestNormalizeDSN_ForcesParseTime(t *testing.T) {
	t.Parallel()

	got, err := normalizeDSN("booster:secret@tcp(localhost:3306)/boosters")
	if err != nil {
		t.Fatalf("normalizeDSN: %v", err)
	}
	if !strings.Contains(got, "parseTime=true") {
		t.Fatalf("expected parseTime=true in %q", got)
	}

	if _, err := normalizeDSN("not a dsn"); err == nil {
		t.Fatalf("expected error for malformed dsn")
	}
}
