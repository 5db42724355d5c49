// Package restore recreates database tables from JSON snapshots: infer (or
// look up) a schema, drop and create the table, insert every record, then
// compare the row count with the snapshot.
package restore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"boosterdb/internal/metrics"
	jsonparser "boosterdb/internal/parser/json"
	"boosterdb/internal/schema"
	"boosterdb/internal/snapshot"
	"boosterdb/internal/storage"
	"boosterdb/pkg/records"
)

// State is how far a table got in one run. Transitions only move forward.
type State string

const (
	NotCreated State = "not_created"
	Created    State = "created"
	Loading    State = "loading"
	Verified   State = "verified"
)

// Store is the slice of storage.Repository a restore run needs.
type Store interface {
	Inserter
	Counter
	DropTable(ctx context.Context, table string) error
	CreateTable(ctx context.Context, ts schema.TableSchema) error
}

// ErrEmptySnapshot is reported for a snapshot with no well-formed records and
// no fixed schema: there is nothing to infer a schema from.
var ErrEmptySnapshot = errors.New("snapshot has no records")

// TablePlan is what restore would do for one table.
type TablePlan struct {
	Table   string
	Schema  schema.TableSchema
	DDL     string
	Records []*records.Record
}

// TableRun is the outcome for one table.
type TableRun struct {
	Table        string
	State        State
	DDL          string
	Load         LoadResult
	Verification Verification
	Skipped      bool
	Error        error
	Duration     time.Duration
}

// Runner drives the per-table flow. Tables run one at a time.
type Runner struct {
	Store   Store
	Source  snapshot.Source
	Dialect storage.Dialect
	Policy  Policy

	// SchemaOptions returns inference options per table; nil means defaults.
	SchemaOptions func(table string) (schema.Options, error)
	// Fixed holds hand-written schemas that replace inference.
	Fixed map[string]schema.TableSchema

	// DryRun plans every table without touching the database.
	DryRun bool
	Logger *slog.Logger
}

// Run restores tables in the given order, or every snapshot table in name
// order when tables is empty. Per-table failures are reported in the result;
// the error is non-nil only when the run could not proceed at all.
func (r *Runner) Run(ctx context.Context, tables []string) ([]TableRun, error) {
	if !r.DryRun && r.Store == nil {
		return nil, errors.New("restore: Store is required")
	}
	if r.Source == nil {
		return nil, errors.New("restore: Source is required")
	}
	if len(tables) == 0 {
		var err error
		if tables, err = r.Source.Tables(ctx); err != nil {
			return nil, fmt.Errorf("restore: list snapshots: %w", err)
		}
	}

	log := r.logger()
	log.Info("restore start", "stage", "run", "tables", len(tables), "policy", r.Policy.OnRecordError.String(), "dry_run", r.DryRun)

	runs := make([]TableRun, 0, len(tables))
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return runs, err
		}
		runs = append(runs, r.RunTable(ctx, table))
	}
	return runs, ctx.Err()
}

// RunTable runs drop, create, load and verify for one table.
func (r *Runner) RunTable(ctx context.Context, table string) TableRun {
	start := time.Now()
	tr := TableRun{Table: table, State: NotCreated}
	log := r.logger().With("table", table)

	defer func() {
		tr.Duration = time.Since(start)
		metrics.IncCounter(metrics.RestoreTablesTotal, 1, metrics.Labels{"state": string(tr.State)})
	}()

	plan, err := r.Plan(ctx, table)
	if err != nil {
		log.Error("table skipped", "stage", "plan", "err", err)
		tr.Skipped = true
		tr.Error = err
		return tr
	}
	tr.DDL = plan.DDL
	expected := int64(len(plan.Records))

	if r.DryRun {
		log.Info("dry run", "stage", "plan", "records", expected, "ddl", plan.DDL)
		tr.Load = LoadResult{Table: table}
		tr.Verification = Verification{Table: table, Expected: expected}
		return tr
	}

	ddlStart := time.Now()
	err = r.recreate(ctx, plan.Schema)
	metrics.ObserveStep("ddl", ddlStart, err)
	if err != nil {
		log.Error("table skipped", "stage", "ddl", "err", err)
		tr.Skipped = true
		tr.Error = err
		return tr
	}
	tr.State = Created
	log.Info("table created", "stage", "ddl", "columns", len(plan.Schema.Columns), "duration", time.Since(ddlStart).Truncate(time.Millisecond))

	tr.State = Loading
	loadStart := time.Now()
	loader := &Loader{Store: r.Store, Policy: r.Policy, Logger: r.Logger}
	tr.Load = loader.Load(ctx, plan.Schema, plan.Records)
	metrics.ObserveStep("load", loadStart, tr.Load.Err)
	if tr.Load.Err != nil && ctx.Err() != nil {
		tr.Error = tr.Load.Err
		return tr
	}

	verifyStart := time.Now()
	tr.Verification = Verify(ctx, r.Store, table, expected)
	metrics.ObserveStep("verify", verifyStart, tr.Verification.Err)
	if tr.Verification.Err != nil {
		log.Error("verify failed", "stage", "verify", "err", tr.Verification.Err)
		tr.Error = tr.Verification.Err
		return tr
	}
	tr.State = Verified
	if tr.Load.Err != nil {
		tr.Error = tr.Load.Err
	}
	if !tr.Verification.Match {
		log.Warn(tr.Verification.Warning, "stage", "verify", "expected", expected, "actual", tr.Verification.Actual)
	} else {
		log.Info("verified", "stage", "verify", "rows", tr.Verification.Actual)
	}
	return tr
}

// Plan reads the snapshot for table and works out its schema and DDL.
func (r *Runner) Plan(ctx context.Context, table string) (TablePlan, error) {
	plan := TablePlan{Table: table}

	recs, err := r.readSnapshot(ctx, table)
	if err != nil {
		return plan, err
	}
	plan.Records = recs

	ts, err := r.schemaFor(table, recs)
	if err != nil {
		return plan, err
	}
	plan.Schema = ts

	if r.Dialect != nil {
		ddl, err := r.Dialect.CreateTableSQL(ts)
		if err != nil {
			return plan, fmt.Errorf("restore: %s: %w", table, err)
		}
		plan.DDL = ddl
	}
	return plan, nil
}

// VerifyAll compares row counts with snapshot record counts without loading.
func (r *Runner) VerifyAll(ctx context.Context, tables []string) ([]Verification, error) {
	if r.Store == nil || r.Source == nil {
		return nil, errors.New("restore: Store and Source are required")
	}
	if len(tables) == 0 {
		var err error
		if tables, err = r.Source.Tables(ctx); err != nil {
			return nil, fmt.Errorf("restore: list snapshots: %w", err)
		}
	}
	out := make([]Verification, 0, len(tables))
	for _, table := range tables {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		recs, err := r.readSnapshot(ctx, table)
		if err != nil {
			out = append(out, Verification{Table: table, Err: err, Warning: err.Error()})
			continue
		}
		v := Verify(ctx, r.Store, table, int64(len(recs)))
		if v.Warning != "" {
			r.logger().Warn(v.Warning, "stage", "verify", "table", table)
		}
		out = append(out, v)
	}
	return out, nil
}

func (r *Runner) recreate(ctx context.Context, ts schema.TableSchema) error {
	if err := r.Store.DropTable(ctx, ts.Name); err != nil {
		return fmt.Errorf("restore: drop %s: %w", ts.Name, err)
	}
	if err := r.Store.CreateTable(ctx, ts); err != nil {
		return fmt.Errorf("restore: create %s: %w", ts.Name, err)
	}
	return nil
}

func (r *Runner) readSnapshot(ctx context.Context, table string) ([]*records.Record, error) {
	rc, err := r.Source.Open(ctx, table)
	if err != nil {
		return nil, fmt.Errorf("restore: open %s: %w", r.Source.Location(table), err)
	}
	defer rc.Close()

	recs, err := jsonparser.ReadAll(ctx, rc)
	if err != nil {
		return nil, fmt.Errorf("restore: parse %s: %w", r.Source.Location(table), err)
	}
	return recs, nil
}

// schemaFor prefers a fixed schema; otherwise the first well-formed record is
// the sample.
func (r *Runner) schemaFor(table string, recs []*records.Record) (schema.TableSchema, error) {
	if ts, ok := r.Fixed[table]; ok {
		return ts, nil
	}
	sample := firstWellFormed(recs)
	if sample == nil {
		return schema.TableSchema{}, fmt.Errorf("restore: %s: %w", table, ErrEmptySnapshot)
	}
	var opts schema.Options
	if r.SchemaOptions != nil {
		var err error
		if opts, err = r.SchemaOptions(table); err != nil {
			return schema.TableSchema{}, fmt.Errorf("restore: %s options: %w", table, err)
		}
	}
	return schema.InferSchema(table, sample, opts), nil
}

func firstWellFormed(recs []*records.Record) *records.Record {
	for _, rec := range recs {
		if rec.Err() == nil {
			return rec
		}
	}
	return nil
}

func (r *Runner) logger() *slog.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return slog.Default()
}
