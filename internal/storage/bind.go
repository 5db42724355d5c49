package storage

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"boosterdb/internal/schema"
	"boosterdb/pkg/records"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
}

// BindValue converts a raw snapshot value into a driver argument for column c.
//
// Conversions:
//   - json.Number -> int64 / float64 by column type, string for text columns.
//   - nested objects -> JSON text.
//   - arrays -> []string or []*string when nativeArrays, JSON text otherwise.
//   - date/timestamp strings -> time.Time; unparseable strings pass through so
//     the database reports the error for that one record.
func BindValue(c schema.Column, v any, nativeArrays bool) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil

	case json.Number:
		return bindNumber(c, t), nil

	case bool:
		if c.Type == schema.Text || c.Type == schema.JSON {
			return strconv.FormatBool(t), nil
		}
		return t, nil

	case string:
		return bindString(c, t), nil

	case *records.Record, map[string]any:
		return jsonText(v)

	case []string:
		if c.Array && nativeArrays {
			return t, nil
		}
		return jsonText(t)

	case []any:
		if c.Array && nativeArrays {
			return textArray(t)
		}
		return jsonText(t)

	default:
		return v, nil
	}
}

func bindNumber(c schema.Column, n json.Number) any {
	switch c.Type {
	case schema.Integer:
		if i, err := n.Int64(); err == nil {
			return i
		}
		if f, err := n.Float64(); err == nil && f == math.Trunc(f) &&
			f >= math.MinInt64 && f < math.MaxInt64 {
			return int64(f)
		}
		return string(n)
	case schema.Decimal:
		if f, err := n.Float64(); err == nil {
			return f
		}
		return string(n)
	case schema.Boolean:
		return n != "0"
	default:
		return string(n)
	}
}

func bindString(c schema.Column, s string) any {
	switch c.Type {
	case schema.Timestamp:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, s); err == nil {
				return ts
			}
		}
	case schema.Date:
		if len(s) >= 10 {
			if d, err := time.Parse(time.DateOnly, s[:10]); err == nil {
				return d
			}
		}
	}
	return s
}

// textArray keeps NULL elements as nil pointers; other scalars are rendered
// as text and nested values as JSON.
func textArray(in []any) (any, error) {
	out := make([]*string, len(in))
	for i, el := range in {
		switch t := el.(type) {
		case nil:
		case string:
			s := t
			out[i] = &s
		case json.Number:
			s := string(t)
			out[i] = &s
		case bool:
			s := strconv.FormatBool(t)
			out[i] = &s
		default:
			b, err := json.Marshal(t)
			if err != nil {
				return nil, fmt.Errorf("bind array element %d: %w", i, err)
			}
			s := string(b)
			out[i] = &s
		}
	}
	return out, nil
}

func jsonText(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("bind json: %w", err)
	}
	return string(b), nil
}

// ExportValue normalizes a scanned database value for JSON export.
func ExportValue(v any) any {
	switch t := v.(type) {
	case []byte:
		if json.Valid(t) && len(t) > 0 && (t[0] == '{' || t[0] == '[') {
			return json.RawMessage(append([]byte(nil), t...))
		}
		return string(t)
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
