package storage

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	plainIdentRe = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)
	identRe      = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_ \-]*$`)
	columnTypeRe = regexp.MustCompile(`(?i)^[A-Z][A-Z0-9_ ]*(?:\(\s*(?:\d+|MAX)\s*(?:,\s*\d+\s*)?\))?(?:\[\])?$`)
)

const (
	maxIdentifierLen = 128
	maxColumnTypeLen = 64
)

// reservedWords are keywords reserved in at least one supported dialect. A
// name on this list is always quoted.
var reservedWords = map[string]bool{
	"all": true, "alter": true, "and": true, "any": true, "as": true, "asc": true,
	"between": true, "both": true, "by": true, "case": true, "check": true,
	"column": true, "constraint": true, "create": true, "cross": true,
	"current_date": true, "current_time": true, "current_timestamp": true,
	"current_user": true, "default": true, "delete": true, "desc": true,
	"distinct": true, "drop": true, "else": true, "end": true, "except": true,
	"exists": true, "false": true, "fetch": true, "for": true, "foreign": true,
	"from": true, "full": true, "grant": true, "group": true, "having": true,
	"in": true, "index": true, "inner": true, "insert": true, "intersect": true,
	"into": true, "is": true, "join": true, "key": true, "leading": true,
	"left": true, "like": true, "limit": true, "not": true, "null": true,
	"offset": true, "on": true, "or": true, "order": true, "outer": true,
	"primary": true, "references": true, "right": true, "select": true,
	"session_user": true, "set": true, "table": true, "then": true, "to": true,
	"trailing": true, "true": true, "union": true, "unique": true, "update": true,
	"user": true, "using": true, "values": true, "when": true, "where": true,
	"window": true, "with": true,
}

// IsPlainIdent reports whether name can be written unquoted in every dialect.
func IsPlainIdent(name string) bool {
	return plainIdentRe.MatchString(name) && !reservedWords[name]
}

// Quoter quotes one identifier part unconditionally.
type Quoter func(name string) string

// DoubleQuote is the standard SQL quoter (Postgres, SQLite).
func DoubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// BracketQuote is the SQL Server quoter.
func BracketQuote(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// BacktickQuote is the MySQL quoter.
func BacktickQuote(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// Ident renders name bare when it is a plain identifier and with q otherwise.
func Ident(name string, q Quoter) string {
	if IsPlainIdent(name) {
		return name
	}
	return q(name)
}

// TableIdent renders a possibly schema-qualified table name part by part.
//
// Example:
//
//	"public.Officers" -> public."Officers"
func TableIdent(name string, q Quoter) string {
	parts := strings.Split(name, ".")
	for i := range parts {
		parts[i] = Ident(strings.TrimSpace(parts[i]), q)
	}
	return strings.Join(parts, ".")
}

// ValidateTableName checks that a snapshot-derived table name is safe to
// interpolate (after quoting). Schema-qualified names are checked per part.
func ValidateTableName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("table name is required")
	}
	for _, part := range strings.Split(name, ".") {
		if err := validateIdentPart(part); err != nil {
			return fmt.Errorf("table name %q: %w", name, err)
		}
	}
	return nil
}

func validateIdentPart(part string) error {
	if part == "" {
		return fmt.Errorf("empty name part")
	}
	if len(part) > maxIdentifierLen {
		return fmt.Errorf("name must be at most %d characters", maxIdentifierLen)
	}
	if !identRe.MatchString(part) {
		return fmt.Errorf("name must match [A-Za-z_][A-Za-z0-9_ -]*")
	}
	return nil
}

// ValidateColumnType checks a hand-written SQL type from a fixed table schema:
// a word, optionally with precision/scale or MAX, optionally an array.
func ValidateColumnType(typeName string) error {
	if typeName == "" {
		return fmt.Errorf("column type is required")
	}
	if len(typeName) > maxColumnTypeLen {
		return fmt.Errorf("column type must be at most %d characters", maxColumnTypeLen)
	}
	if strings.ContainsAny(typeName, ";-'\"\\") {
		return fmt.Errorf("column type contains invalid characters")
	}
	if !columnTypeRe.MatchString(typeName) {
		return fmt.Errorf("column type %q is not a recognized type pattern", typeName)
	}
	return nil
}
