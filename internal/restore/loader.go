package restore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"boosterdb/internal/metrics"
	"boosterdb/internal/schema"
	"boosterdb/pkg/records"
)

// Inserter is the slice of storage.Repository the loader needs.
type Inserter interface {
	InsertRecord(ctx context.Context, table string, cols []schema.Column, values []any) error
}

// identityFields are tried in order to name a failed record in logs.
var identityFields = []string{"id", "uuid", "name", "email"}

// RecordFailure describes one record that was not inserted.
type RecordFailure struct {
	// Position is the 1-based index of the record in the snapshot.
	Position int    `json:"position"`
	Identity string `json:"identity,omitempty"`
	Error    string `json:"error"`
	// Validation is true when the record was rejected before reaching the database.
	Validation bool `json:"validation"`
}

// LoadResult is the outcome of loading one table.
type LoadResult struct {
	Table     string
	Attempted int
	Succeeded int
	Failed    int
	// Retried counts extra insert attempts, not records.
	Retried  int
	Aborted  bool
	Failures []RecordFailure

	// Err is set when loading stopped early: abort policy or cancellation.
	Err error
}

// Loader inserts records one statement at a time. No transaction spans
// records, so a failure never rolls back rows that were already written.
type Loader struct {
	Store  Inserter
	Policy Policy
	Logger *slog.Logger

	// sleep waits between retries; tests replace it.
	sleep func(ctx context.Context, d time.Duration) error
}

// Load inserts recs into ts.Name. It never returns early under the Skip
// policy; per-record errors are counted and reported in the result.
func (l *Loader) Load(ctx context.Context, ts schema.TableSchema, recs []*records.Record) LoadResult {
	res := LoadResult{Table: ts.Name}
	log := l.logger().With("stage", "load", "table", ts.Name)

	for i, rec := range recs {
		if err := ctx.Err(); err != nil {
			res.Aborted = true
			res.Err = err
			break
		}
		pos := i + 1
		res.Attempted++

		if err := ts.Check(rec); err != nil {
			res.fail(log, pos, rec, err, true)
			if l.Policy.OnRecordError == Abort {
				res.Aborted = true
				res.Err = fmt.Errorf("restore: %s record %d: %w", ts.Name, pos, err)
				break
			}
			continue
		}

		cols, values := bindColumns(ts, rec)
		retried, err := l.insert(ctx, ts.Name, cols, values)
		res.Retried += retried
		if err == nil {
			res.Succeeded++
			metrics.IncCounter(metrics.RestoreRecordsTotal, 1, metrics.Labels{"table": ts.Name, "status": "ok"})
			continue
		}

		res.fail(log, pos, rec, err, false)
		if ctx.Err() != nil {
			res.Aborted = true
			res.Err = err
			break
		}
		if l.Policy.OnRecordError == Abort {
			res.Aborted = true
			res.Err = fmt.Errorf("restore: %s record %d: %w", ts.Name, pos, err)
			break
		}
	}

	log.Info("load done",
		"attempted", res.Attempted,
		"succeeded", res.Succeeded,
		"failed", res.Failed,
		"retried", res.Retried,
		"aborted", res.Aborted,
	)
	return res
}

func (res *LoadResult) fail(log *slog.Logger, pos int, rec *records.Record, err error, validation bool) {
	res.Failed++
	f := RecordFailure{
		Position:   pos,
		Identity:   Identity(rec),
		Error:      err.Error(),
		Validation: validation,
	}
	res.Failures = append(res.Failures, f)

	status := "failed"
	if validation {
		status = "invalid"
	}
	metrics.IncCounter(metrics.RestoreRecordsTotal, 1, metrics.Labels{"table": res.Table, "status": status})
	log.Warn("record failed", "position", pos, "record", f.Identity, "validation", validation, "err", err)
}

// insert runs one insert under the retry policy and returns the number of
// retries it used.
func (l *Loader) insert(ctx context.Context, table string, cols []schema.Column, values []any) (int, error) {
	attempts := l.Policy.attempts()
	var err error
	for n := 0; n < attempts; n++ {
		if n > 0 {
			if serr := l.wait(ctx, l.Policy.delay(n)); serr != nil {
				return n - 1, serr
			}
		}
		if err = l.Store.InsertRecord(ctx, table, cols, values); err == nil {
			return n, nil
		}
		if ctx.Err() != nil {
			return n, err
		}
	}
	return attempts - 1, err
}

func (l *Loader) wait(ctx context.Context, d time.Duration) error {
	if l.sleep != nil {
		return l.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// bindColumns pairs the record's own keys, in record order, with their
// columns. Check must have passed, so every key has a column.
func bindColumns(ts schema.TableSchema, rec *records.Record) ([]schema.Column, []any) {
	keys := rec.Keys()
	cols := make([]schema.Column, 0, len(keys))
	values := make([]any, 0, len(keys))
	for _, k := range keys {
		c, ok := ts.ColumnFor(k)
		if !ok {
			continue
		}
		v, _ := rec.Get(k)
		cols = append(cols, c)
		values = append(values, v)
	}
	return cols, values
}

// Identity names a record for logs: the first of id, uuid, name or email
// that is present, else the first field.
func Identity(rec *records.Record) string {
	if rec.Len() == 0 {
		return ""
	}
	for _, k := range identityFields {
		if v, ok := rec.Get(k); ok && v != nil {
			return fmt.Sprintf("%s=%v", k, v)
		}
	}
	k := rec.Keys()[0]
	v, _ := rec.Get(k)
	return fmt.Sprintf("%s=%v", k, v)
}
