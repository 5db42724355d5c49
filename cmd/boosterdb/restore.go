package main

import (
	"time"

	"github.com/spf13/cobra"

	"boosterdb/internal/report"
	"boosterdb/internal/restore"
	"boosterdb/internal/storage"
)

type restoreFlags struct {
	tables     []string
	reportPath string
	policy     string
	retries    int
	backoff    time.Duration
	dryRun     bool
	normalize  bool
}

func newRestoreCmd(a *app) *cobra.Command {
	var f restoreFlags
	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Drop, recreate and reload tables from their JSON snapshots",
		Long: `Restore every <table>.json snapshot (or the --tables subset) into the
configured database. Each table is dropped, recreated from a schema inferred
from its first record, loaded one record at a time and then row-counted.

Per-record failures and count mismatches are reported but do not change the
exit code.`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.runRestore(cmd, f)
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&f.tables, "tables", nil, "comma-separated tables to restore, in order")
	fl.StringVar(&f.reportPath, "report", "", "write a JSON run report to this file")
	fl.StringVar(&f.policy, "policy", "", "per-record error policy: skip, abort or retry (default skip)")
	fl.IntVar(&f.retries, "retries", 0, "extra attempts per record under --policy retry")
	fl.DurationVar(&f.backoff, "backoff", 0, "delay before the first retry; doubles per attempt")
	fl.BoolVar(&f.dryRun, "dry-run", false, "plan every table and print its DDL without touching the database")
	fl.BoolVar(&f.normalize, "normalize-names", false, "map field names to lower_snake_case column names")
	return cmd
}

// policy merges the run file policy with flags; flags win when set.
func (a *app) policy(cmd *cobra.Command, f restoreFlags) (restore.Policy, error) {
	spec := a.runFile.Policy
	if cmd.Flags().Changed("policy") {
		spec.OnRecordError = f.policy
	}
	if cmd.Flags().Changed("retries") {
		spec.Retries = f.retries
	}
	if cmd.Flags().Changed("backoff") {
		spec.Backoff = f.backoff
	}
	if spec.Retries < 0 {
		return restore.Policy{}, usageErrorf("--retries must not be negative")
	}

	on, err := restore.ParseOnError(spec.OnRecordError)
	if err != nil {
		return restore.Policy{}, usageError{err: err}
	}
	return restore.Policy{OnRecordError: on, Retries: spec.Retries, Backoff: spec.Backoff}, nil
}

// newRunner builds a runner without a store; callers attach one.
func (a *app) newRunner(cmd *cobra.Command, f restoreFlags) (*restore.Runner, error) {
	pol, err := a.policy(cmd, f)
	if err != nil {
		return nil, err
	}
	dialect, err := storage.DialectFor(a.env.DatabaseKind)
	if err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	if f.normalize {
		a.runFile.NormalizeNames = true
	}
	fixed, err := a.runFile.FixedSchemaMap()
	if err != nil {
		return nil, err
	}
	return &restore.Runner{
		Source:        src,
		Dialect:       dialect,
		Policy:        pol,
		SchemaOptions: a.runFile.SchemaOptions,
		Fixed:         fixed,
		DryRun:        f.dryRun,
		Logger:        a.logger,
	}, nil
}

func (a *app) runRestore(cmd *cobra.Command, f restoreFlags) error {
	ctx := cmd.Context()
	runner, err := a.newRunner(cmd, f)
	if err != nil {
		return err
	}

	if !f.dryRun {
		repo, err := a.openRepo(ctx)
		if err != nil {
			return err
		}
		defer repo.Close()
		runner.Store = repo
	}

	start := time.Now()
	runs, runErr := runner.Run(ctx, a.tables(f.tables))

	rep := report.FromRuns(runs, f.dryRun, time.Now())
	if err := report.Summary(a.stdout, rep); err != nil {
		return err
	}
	if f.reportPath != "" {
		if err := report.Write(f.reportPath, rep); err != nil {
			return err
		}
		a.logger.Info("report written", "stage", "report", "path", f.reportPath)
	}
	a.logger.Info("restore done", "stage", "run", "tables", rep.TotalTables, "successful", rep.Successful, "failed", rep.Failed, "duration", time.Since(start).Truncate(time.Millisecond))

	return runErr
}
