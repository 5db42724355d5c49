package main

import (
	"errors"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"boosterdb/internal/backup"
	"boosterdb/internal/linkcheck"
	"boosterdb/internal/migrate"
	jsonparser "boosterdb/internal/parser/json"
	"boosterdb/internal/report"
	"boosterdb/internal/restore"
	"boosterdb/internal/snapshot"
)

func newVerifyCmd(a *app) *cobra.Command {
	var tables []string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare table row counts with snapshot record counts",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			src, err := a.source()
			if err != nil {
				return err
			}
			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			r := &restore.Runner{Store: repo, Source: src, Logger: a.logger}
			vs, err := r.VerifyAll(ctx, a.tables(tables))
			if perr := report.VerifySummary(a.stdout, vs); perr != nil && err == nil {
				err = perr
			}
			return err
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "comma-separated tables to check")
	return cmd
}

func newInferCmd(a *app) *cobra.Command {
	var (
		tables    []string
		normalize bool
	)
	cmd := &cobra.Command{
		Use:   "infer",
		Short: "Print the CREATE TABLE statements restore would run",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			runner, err := a.newRunner(cmd, restoreFlags{dryRun: true, normalize: normalize})
			if err != nil {
				return err
			}
			list := a.tables(tables)
			if len(list) == 0 {
				if list, err = runner.Source.Tables(ctx); err != nil {
					return err
				}
			}
			for _, table := range list {
				plan, err := runner.Plan(ctx, table)
				if err != nil {
					fmt.Fprintf(a.stdout, "-- %s: skipped: %v\n\n", table, err)
					continue
				}
				fmt.Fprintf(a.stdout, "-- %s (%d records)\n%s;\n\n", table, len(plan.Records), plan.DDL)
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&tables, "tables", nil, "comma-separated tables to plan")
	cmd.Flags().BoolVar(&normalize, "normalize-names", false, "map field names to lower_snake_case column names")
	return cmd
}

func newBackupCmd(a *app) *cobra.Command {
	var (
		tables  []string
		out     string
		workers int
	)
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Export tables to <table>.json snapshots",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			if workers < 0 {
				return usageErrorf("--workers must not be negative")
			}

			var sink snapshot.Sink
			switch {
			case out != "":
				sink = snapshot.Dir{Path: out}
			case a.env.UsesS3():
				s3, err := a.s3()
				if err != nil {
					return err
				}
				sink = s3
			default:
				sink = snapshot.Dir{Path: a.env.SnapshotDir}
			}

			repo, err := a.openRepo(ctx)
			if err != nil {
				return err
			}
			defer repo.Close()

			b := &backup.Backup{Repo: repo, Sink: sink, Workers: workers, Logger: a.logger}
			results, runErr := b.Run(ctx, a.tables(tables))

			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TABLE\tROWS\tLOCATION\tSTATUS")
			for _, r := range results {
				status := "ok"
				if r.Err != nil {
					status = r.Err.Error()
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", r.Table, r.Rows, r.Location, status)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			return runErr
		},
	}
	fl := cmd.Flags()
	fl.StringSliceVar(&tables, "tables", nil, "comma-separated tables to export (default all)")
	fl.StringVar(&out, "out", "", "output directory (default SNAPSHOT_DIR, or the S3 bucket when S3_BUCKET is set)")
	fl.IntVar(&workers, "workers", 4, "tables exported concurrently")
	return cmd
}

func newMigrateCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or inspect the fixed site schema migrations",
		Args:  noArgs,
		RunE: func(*cobra.Command, []string) error {
			return usageErrorf("migrate needs a subcommand: up or status")
		},
	}

	open := func(cmd *cobra.Command) (*migrate.Migrator, error) {
		if err := a.env.RequireDatabase(); err != nil {
			return nil, err
		}
		return migrate.Open(cmd.Context(), a.env.DatabaseKind, a.env.DatabaseURL, a.logger)
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			v, err := m.Up(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "schema at version %d\n", v)
			return nil
		},
	}
	status := &cobra.Command{
		Use:   "status",
		Short: "List migrations and whether they are applied",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			m, err := open(cmd)
			if err != nil {
				return err
			}
			defer m.Close()
			st, err := m.Status(cmd.Context())
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "VERSION\tAPPLIED\tSOURCE")
			for _, s := range st {
				fmt.Fprintf(tw, "%d\t%t\t%s\n", s.Version, s.Applied, s.Source)
			}
			return tw.Flush()
		},
	}
	cmd.AddCommand(up, status)
	return cmd
}

func newLinkcheckCmd(a *app) *cobra.Command {
	var (
		table      string
		field      string
		labelField string
		perSecond  float64
		reportPath string
	)
	cmd := &cobra.Command{
		Use:   "linkcheck",
		Short: "Fetch every payment link in a snapshot and report which still resolve",
		Args:  noArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			spec := a.runFile.Linkcheck
			if !cmd.Flags().Changed("table") && spec.Table != "" {
				table = spec.Table
			}
			if !cmd.Flags().Changed("field") && spec.URLField != "" {
				field = spec.URLField
			}
			if !cmd.Flags().Changed("label-field") && spec.LabelField != "" {
				labelField = spec.LabelField
			}
			if !cmd.Flags().Changed("rate") && spec.PerSecond > 0 {
				perSecond = spec.PerSecond
			}
			if perSecond < 0 {
				return usageErrorf("--rate must not be negative")
			}

			src, err := a.source()
			if err != nil {
				return err
			}
			rc, err := src.Open(ctx, table)
			if err != nil {
				if errors.Is(err, snapshot.ErrNotFound) {
					return fmt.Errorf("linkcheck: no snapshot for table %q at %s", table, src.Location(table))
				}
				return err
			}
			recs, err := jsonparser.ReadAll(ctx, rc)
			rc.Close()
			if err != nil {
				return fmt.Errorf("linkcheck: parse %s: %w", src.Location(table), err)
			}

			links, skipped := linkcheck.LinksFromRecords(recs, field, labelField)
			if len(skipped) > 0 {
				a.logger.Warn("records without a url", "stage", "linkcheck", "field", field, "positions", skipped)
			}

			checker := linkcheck.NewChecker(perSecond, a.logger)
			rep, checkErr := checker.Check(ctx, links)

			for _, r := range rep.Results {
				mark := "ok  "
				if !r.OK {
					mark = "FAIL"
				}
				fmt.Fprintf(a.stdout, "%s %-6s %s", mark, r.Provider, r.URL)
				if r.Title != "" {
					fmt.Fprintf(a.stdout, " (%s)", r.Title)
				}
				if r.Error != "" {
					fmt.Fprintf(a.stdout, " %s", r.Error)
				}
				fmt.Fprintln(a.stdout)
			}
			fmt.Fprintf(a.stdout, "\n%d urls: %d successful, %d failed\n", rep.TotalURLs, rep.Successful, rep.Failed)

			if reportPath != "" {
				if err := report.Write(reportPath, rep); err != nil {
					return err
				}
			}
			return checkErr
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&table, "table", "payment_links", "snapshot table holding the links")
	fl.StringVar(&field, "field", "url", "record field holding the URL")
	fl.StringVar(&labelField, "label-field", "label", "record field used as the link label")
	fl.Float64Var(&perSecond, "rate", 2, "maximum requests per second (0 disables the limit)")
	fl.StringVar(&reportPath, "report", "", "write the JSON report to this file")
	return cmd
}
