package schema

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"boosterdb/pkg/records"
)

var datePrefix = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}`)

// InferType picks a column type for one sample value. It is total: every
// input yields a column, falling back to bounded text.
//
// Rules apply in priority order: null, bool, number, uuid-shaped string,
// date-prefixed string, JSON-looking string, plain string, object, array.
func InferType(name string, v any) Column {
	c := Column{Name: name, Source: name, Type: Text}

	switch t := v.(type) {
	case nil:
		return c
	case bool:
		c.Type = Boolean
	case json.Number:
		c.Type = numberType(string(t))
	case float64:
		c.Type = floatType(t)
	case float32:
		c.Type = floatType(float64(t))
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		c.Type = Integer
	case string:
		return inferString(c, t)
	case *records.Record, map[string]any:
		c.Type = JSON
	case []any, []string:
		c.Array = true
	}
	return c
}

func inferString(c Column, s string) Column {
	if len(s) == 36 {
		if _, err := uuid.Parse(s); err == nil {
			c.Type = UUID
			return c
		}
	}

	if datePrefix.MatchString(s) {
		if strings.ContainsAny(s, "TZ") {
			c.Type = Timestamp
			return c
		}
		if len(s) == 10 {
			c.Type = Date
			return c
		}
	}

	if (strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")) && json.Valid([]byte(s)) {
		c.Type = JSON
		return c
	}

	if len([]rune(s)) > MaxBoundedText {
		c.Long = true
	}
	return c
}

func numberType(s string) Type {
	if _, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Integer
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Decimal
	}
	return floatType(f)
}

func floatType(f float64) Type {
	if math.IsInf(f, 0) || math.IsNaN(f) {
		return Decimal
	}
	if f == math.Trunc(f) {
		return Integer
	}
	return Decimal
}

// Options tune InferSchema.
type Options struct {
	// Overrides replace inferred columns by snapshot field name.
	Overrides map[string]Column
	// NormalizeNames maps field names to safe lower-case identifiers.
	NormalizeNames bool
}

// InferSchema builds a table schema from a single sample record, one column
// per field in the sample's field order.
func InferSchema(table string, sample *records.Record, opts Options) TableSchema {
	ts := TableSchema{Name: table, Columns: make([]Column, 0, sample.Len())}

	seen := make(map[string]int, sample.Len())
	for _, field := range sample.Keys() {
		v, _ := sample.Get(field)

		col := InferType(field, v)
		if o, ok := opts.Overrides[field]; ok {
			col.Type, col.Long, col.Array = o.Type, o.Long, o.Array
		}

		if opts.NormalizeNames {
			col.Name = uniqueName(NormalizeName(field), seen)
		}
		ts.Columns = append(ts.Columns, col)
	}
	return ts
}

// uniqueName suffixes name until it is unused; normalization can fold two
// fields onto the same identifier.
func uniqueName(name string, seen map[string]int) string {
	if name == "" {
		name = "col"
	}
	n := seen[name]
	seen[name] = n + 1
	if n == 0 {
		return name
	}
	return truncateName(name+"_"+strconv.Itoa(n+1), maxIdentLen)
}
