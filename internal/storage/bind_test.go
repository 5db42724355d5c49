package storage

import (
	"encoding/json"
	"reflect"
	"testing"
	"time"

	"boosterdb/internal/schema"
	"boosterdb/pkg/records"
)

func TestBindValue(t *testing.T) {
	t.Parallel()

	nested := records.New(2)
	nested.Set("b", json.Number("2"))
	nested.Set("a", "x")

	str := func(s string) *string { return &s }

	tests := []struct {
		name   string
		col    schema.Column
		in     any
		native bool
		want   any
	}{
		{name: "nil", col: schema.Column{Type: schema.Text}, in: nil, want: nil},
		{name: "integer", col: schema.Column{Type: schema.Integer}, in: json.Number("42"), want: int64(42)},
		{name: "integral float", col: schema.Column{Type: schema.Integer}, in: json.Number("42.0"), want: int64(42)},
		{name: "decimal", col: schema.Column{Type: schema.Decimal}, in: json.Number("3.5"), want: 3.5},
		{name: "number into text", col: schema.Column{Type: schema.Text}, in: json.Number("7"), want: "7"},
		{name: "bool", col: schema.Column{Type: schema.Boolean}, in: true, want: true},
		{name: "bool into text", col: schema.Column{Type: schema.Text}, in: false, want: "false"},
		{name: "timestamp", col: schema.Column{Type: schema.Timestamp}, in: "2024-03-01T10:00:00Z",
			want: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)},
		{name: "timestamp no zone", col: schema.Column{Type: schema.Timestamp}, in: "2024-03-01T10:00:00.5",
			want: time.Date(2024, 3, 1, 10, 0, 0, 500000000, time.UTC)},
		{name: "bad timestamp passes through", col: schema.Column{Type: schema.Timestamp}, in: "soon", want: "soon"},
		{name: "date", col: schema.Column{Type: schema.Date}, in: "2024-03-01",
			want: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)},
		{name: "object", col: schema.Column{Type: schema.JSON}, in: nested, want: `{"b":2,"a":"x"}`},
		{name: "array as json", col: schema.Column{Type: schema.Text, Array: true}, in: []any{"a", json.Number("1")}, want: `["a",1]`},
		{name: "native array", col: schema.Column{Type: schema.Text, Array: true}, in: []any{"a", nil, json.Number("1")},
			native: true, want: []*string{str("a"), nil, str("1")}},
		{name: "string", col: schema.Column{Type: schema.Text}, in: "Alice", want: "Alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := BindValue(tt.col, tt.in, tt.native)
			if err != nil {
				t.Fatalf("unexpected err: %v", err)
			}
			if ts, ok := got.(time.Time); ok {
				if !ts.Equal(tt.want.(time.Time)) {
					t.Fatalf("got %v, want %v", ts, tt.want)
				}
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("got %#v (%T), want %#v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestExportValue(t *testing.T) {
	t.Parallel()

	if got := ExportValue([]byte("abc")); got != "abc" {
		t.Fatalf("bytes: got %#v", got)
	}
	if got, ok := ExportValue([]byte(`{"a":1}`)).(json.RawMessage); !ok || string(got) != `{"a":1}` {
		t.Fatalf("json bytes: got %#v", got)
	}
	ts := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	if got := ExportValue(ts); got != "2024-03-01T10:00:00Z" {
		t.Fatalf("time: got %#v", got)
	}
	if got := ExportValue(int64(3)); got != int64(3) {
		t.Fatalf("int: got %#v", got)
	}
}
