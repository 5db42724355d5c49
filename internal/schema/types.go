// Package schema infers table shapes from snapshot records and describes the
// tables that restore creates.
package schema

import (
	"fmt"
	"strings"
)

// Type is a backend-independent column type.
type Type string

const (
	Boolean   Type = "boolean"
	Integer   Type = "integer"
	Decimal   Type = "decimal"
	UUID      Type = "uuid"
	Timestamp Type = "timestamp"
	Date      Type = "date"
	JSON      Type = "json"
	Text      Type = "text"
)

// MaxBoundedText is the longest string that still infers a bounded text column.
const MaxBoundedText = 255

var allTypes = []Type{Boolean, Integer, Decimal, UUID, Timestamp, Date, JSON, Text}

// ParseColumnType maps a config string to a Type. "text[]" and "long_text" are
// accepted as the array and unbounded variants.
func ParseColumnType(s string) (Column, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "text[]", "text_array":
		return Column{Type: Text, Array: true}, nil
	case "long_text", "longtext":
		return Column{Type: Text, Long: true}, nil
	case "bool":
		return Column{Type: Boolean}, nil
	case "int", "bigint":
		return Column{Type: Integer}, nil
	case "numeric", "float":
		return Column{Type: Decimal}, nil
	case "jsonb":
		return Column{Type: JSON}, nil
	}
	for _, t := range allTypes {
		if s == string(t) {
			return Column{Type: t}, nil
		}
	}
	return Column{}, fmt.Errorf("schema: unknown column type %q", s)
}

// Column is one column of a table. Source is the snapshot field it is read
// from; it differs from Name only when names are normalized.
type Column struct {
	Name   string
	Source string
	Type   Type

	// Long marks unbounded text; Array marks a text array.
	Long  bool
	Array bool

	// Set only by fixed (hand-written) table schemas.
	NotNull    bool
	PrimaryKey bool
	SQLType    string
}

// Label renders the column type for logs and the infer command.
func (c Column) Label() string {
	switch {
	case c.SQLType != "":
		return c.SQLType
	case c.Array:
		return "text[]"
	case c.Long:
		return "long_text"
	default:
		return string(c.Type)
	}
}

// TableSchema is the ordered column list of one table.
type TableSchema struct {
	Name    string
	Columns []Column

	// Fixed is true for hand-written schemas that bypass inference.
	Fixed bool
}

// ColumnFor returns the column fed by the snapshot field.
func (s TableSchema) ColumnFor(field string) (Column, bool) {
	for _, c := range s.Columns {
		if c.Source == field || (c.Source == "" && c.Name == field) {
			return c, true
		}
	}
	return Column{}, false
}

// ColumnNames returns column names in order.
func (s TableSchema) ColumnNames() []string {
	out := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		out[i] = c.Name
	}
	return out
}
