package storage

import (
	"fmt"
	"strings"

	"boosterdb/internal/schema"
)

// SQLDialect renders the statements restore issues for one SQL backend. Every
// builder is pure so the output can be unit tested without a database.
type SQLDialect struct {
	Quote Quoter

	// Placeholder returns the n-th (1-based) bind parameter.
	Placeholder func(n int) string

	// ColumnType maps an inferred column to the backend's type name.
	ColumnType func(c schema.Column) string

	// DropSuffix is appended to DROP TABLE (e.g. " CASCADE").
	DropSuffix string

	// CountExpr defaults to COUNT(*).
	CountExpr string

	// ListTablesSQL returns one table name per row.
	ListTablesSQL string

	// FoldCase treats column names that differ only in case as duplicates.
	// Set it where quoted identifiers are still case-insensitive.
	FoldCase bool
}

// CreateTableSQL renders one column definition per schema column, in order.
// Inferred columns are nullable and carry no keys; fixed schemas may add NOT
// NULL and a primary key.
func (d SQLDialect) CreateTableSQL(ts schema.TableSchema) (string, error) {
	if err := ValidateTableName(ts.Name); err != nil {
		return "", err
	}
	if len(ts.Columns) == 0 {
		return "", fmt.Errorf("table %s: no columns", ts.Name)
	}

	var b strings.Builder
	b.WriteString("CREATE TABLE ")
	b.WriteString(TableIdent(ts.Name, d.Quote))
	b.WriteString(" (")

	seen := make(map[string]bool, len(ts.Columns))
	var pk []string
	for i, c := range ts.Columns {
		if strings.TrimSpace(c.Name) == "" {
			return "", fmt.Errorf("table %s: column %d has an empty name", ts.Name, i+1)
		}
		key := c.Name
		if d.FoldCase {
			key = strings.ToLower(key)
		}
		if seen[key] {
			return "", fmt.Errorf("table %s: duplicate column %q", ts.Name, c.Name)
		}
		seen[key] = true

		typ := c.SQLType
		if typ != "" {
			if err := ValidateColumnType(typ); err != nil {
				return "", fmt.Errorf("table %s column %s: %w", ts.Name, c.Name, err)
			}
		} else {
			typ = d.ColumnType(c)
		}

		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Ident(c.Name, d.Quote))
		b.WriteByte(' ')
		b.WriteString(typ)
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		if c.PrimaryKey {
			pk = append(pk, Ident(c.Name, d.Quote))
		}
	}
	if len(pk) > 0 {
		b.WriteString(", PRIMARY KEY (")
		b.WriteString(strings.Join(pk, ", "))
		b.WriteByte(')')
	}
	b.WriteByte(')')
	return b.String(), nil
}

// DropTableSQL renders an idempotent DROP TABLE.
func (d SQLDialect) DropTableSQL(table string) (string, error) {
	if err := ValidateTableName(table); err != nil {
		return "", err
	}
	return "DROP TABLE IF EXISTS " + TableIdent(table, d.Quote) + d.DropSuffix, nil
}

// InsertSQL renders a single-row INSERT naming only cols. An empty record
// inserts a row of defaults.
func (d SQLDialect) InsertSQL(table string, cols []schema.Column) string {
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(TableIdent(table, d.Quote))
	if len(cols) == 0 {
		b.WriteString(" DEFAULT VALUES")
		return b.String()
	}
	b.WriteString(" (")
	for i, c := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(Ident(c.Name, d.Quote))
	}
	b.WriteString(") VALUES (")
	for i := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(d.Placeholder(i + 1))
	}
	b.WriteByte(')')
	return b.String()
}

// CountSQL renders the verification count query.
func (d SQLDialect) CountSQL(table string) string {
	expr := d.CountExpr
	if expr == "" {
		expr = "COUNT(*)"
	}
	return "SELECT " + expr + " FROM " + TableIdent(table, d.Quote)
}

// SelectAllSQL renders the export query.
func (d SQLDialect) SelectAllSQL(table string) string {
	return "SELECT * FROM " + TableIdent(table, d.Quote)
}

// DollarPlaceholder renders $1, $2, ...
func DollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

// QuestionPlaceholder renders ? for every parameter.
func QuestionPlaceholder(int) string { return "?" }

// AtPlaceholder renders @p1, @p2, ...
func AtPlaceholder(n int) string { return fmt.Sprintf("@p%d", n) }
