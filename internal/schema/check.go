package schema

import (
	"errors"
	"fmt"
	"strings"

	"boosterdb/pkg/records"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("record does not match table schema")

// ValidationError lists the record fields that have no column in the table,
// or carries the reason a snapshot element was not a record at all.
type ValidationError struct {
	Table  string
	Fields []string
	Cause  error
}

func (e *ValidationError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("table %s: malformed record: %v", e.Table, e.Cause)
	}
	return fmt.Sprintf("table %s has no column for field(s) %s", e.Table, strings.Join(e.Fields, ", "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// Check reports a *ValidationError when rec is malformed or carries fields
// the schema has no column for. Missing fields are fine; those columns load
// as NULL.
func (s TableSchema) Check(rec *records.Record) error {
	if err := rec.Err(); err != nil {
		return &ValidationError{Table: s.Name, Cause: err}
	}
	var extra []string
	for _, k := range rec.Keys() {
		if _, ok := s.ColumnFor(k); !ok {
			extra = append(extra, k)
		}
	}
	if len(extra) > 0 {
		return &ValidationError{Table: s.Name, Fields: extra}
	}
	return nil
}
