package restore

import (
	"context"
	"fmt"
)

// Counter is the slice of storage.Repository the verifier needs.
type Counter interface {
	CountRows(ctx context.Context, table string) (int64, error)
}

// Verification compares the row count of a table with the number of records
// in its snapshot.
type Verification struct {
	Table    string
	Expected int64
	Actual   int64
	Match    bool
	Warning  string
	// Err holds a failed count query. A mismatch is never an error.
	Err error
}

// Verify counts the rows of table and compares them with expected.
func Verify(ctx context.Context, c Counter, table string, expected int64) Verification {
	v := Verification{Table: table, Expected: expected}
	n, err := c.CountRows(ctx, table)
	if err != nil {
		v.Err = err
		v.Warning = fmt.Sprintf("%s: count failed: %v", table, err)
		return v
	}
	v.Actual = n
	v.Match = n == expected
	if !v.Match {
		v.Warning = fmt.Sprintf("%s: count mismatch: expected %d rows, found %d", table, expected, n)
	}
	return v
}
