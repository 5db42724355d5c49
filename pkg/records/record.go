// Package records holds the in-memory shape of one exported table row.
package records

import (
	"bytes"
	"encoding/json"
)

// Record is one flat object read from a table snapshot.
//
// Field order is the order the fields appeared in the source document. It
// drives both the inferred column order and the column list of the INSERT
// built for the record, so it must survive decoding and re-encoding.
//
// Nested objects are themselves *Record values; arrays are []any.
type Record struct {
	keys   []string
	values map[string]any

	err error
}

// New returns an empty Record with room for n fields.
func New(n int) *Record {
	if n < 0 {
		n = 0
	}
	return &Record{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Malformed returns an empty placeholder for a snapshot element that could
// not be read as an object. It keeps the element's position in the snapshot.
func Malformed(err error) *Record {
	r := New(0)
	r.err = err
	return r
}

// Err reports why the element behind a Malformed record was rejected.
func (r *Record) Err() error {
	if r == nil {
		return nil
	}
	return r.err
}

// Set assigns v to key. A new key is appended to the field order; an existing
// key keeps its position (the last value wins, matching JSON.parse).
func (r *Record) Set(key string, v any) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.values[key] = v
}

// Get returns the value stored under key.
func (r *Record) Get(key string) (any, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.values[key]
	return v, ok
}

// Keys returns the field names in source order. Callers must not modify the
// returned slice.
func (r *Record) Keys() []string {
	if r == nil {
		return nil
	}
	return r.keys
}

// Len returns the number of fields.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Values returns the field values in source order.
func (r *Record) Values() []any {
	out := make([]any, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.values[k]
	}
	return out
}

// Map returns a shallow, unordered copy of the record.
func (r *Record) Map() map[string]any {
	out := make(map[string]any, len(r.keys))
	for k, v := range r.values {
		out[k] = v
	}
	return out
}

// MarshalJSON encodes the record as a JSON object with fields in source order.
func (r *Record) MarshalJSON() ([]byte, error) {
	if r == nil {
		return []byte("null"), nil
	}

	var b bytes.Buffer
	b.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			b.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		b.Write(kb)
		b.WriteByte(':')

		vb, err := json.Marshal(r.values[k])
		if err != nil {
			return nil, err
		}
		b.Write(vb)
	}
	b.WriteByte('}')
	return b.Bytes(), nil
}
