package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"boosterdb/internal/config"
	"boosterdb/internal/metrics"
	"boosterdb/internal/metrics/datadog"
	"boosterdb/internal/snapshot"
	"boosterdb/internal/storage"
	_ "boosterdb/internal/storage/all"
)

// app carries process-wide state shared by every subcommand.
type app struct {
	stdout io.Writer
	stderr io.Writer

	envFile    string
	configPath string
	dir        string

	env     *config.Env
	runFile *config.RunFile
	logger  *slog.Logger

	closers []func()
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:           "boosterdb",
		Short:         "Restore, verify and back up the booster-club database from JSON snapshots",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd.Context())
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err: err}
	})

	pf := root.PersistentFlags()
	pf.StringVar(&a.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&a.configPath, "config", "", "optional YAML run file")
	pf.StringVar(&a.dir, "dir", "", "snapshot directory (default SNAPSHOT_DIR, or the S3 bucket when S3_BUCKET is set)")

	root.AddCommand(
		newRestoreCmd(a),
		newVerifyCmd(a),
		newInferCmd(a),
		newBackupCmd(a),
		newMigrateCmd(a),
		newLinkcheckCmd(a),
	)
	return root
}

// noArgs rejects positional arguments as a usage error.
func noArgs(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return usageErrorf("%s takes no arguments, got %q", cmd.CommandPath(), args)
	}
	return nil
}

func (a *app) setup(ctx context.Context) error {
	env, err := config.LoadEnv(a.envFile)
	if err != nil {
		return err
	}
	a.env = env
	a.logger = env.NewLogger(a.stderr)
	slog.SetDefault(a.logger)

	a.runFile = &config.RunFile{}
	if a.configPath != "" {
		rf, err := config.LoadRunFile(a.configPath)
		if err != nil {
			return err
		}
		issues := rf.Validate()
		for _, is := range issues {
			if is.Severity == config.SeverityWarn {
				a.logger.Warn("run file", "path", is.Path, "msg", is.Message)
			}
		}
		if config.HasErrors(issues) {
			return fmt.Errorf("config: invalid run file %s: %s", a.configPath, config.FormatIssues(issues))
		}
		a.runFile = rf
	}

	a.setupMetrics(ctx)
	return nil
}

func (a *app) setupMetrics(ctx context.Context) {
	switch a.env.MetricsBackend {
	case "datadog":
		tags := datadog.ParseTagsCSV(a.env.MetricsTags)
		// The final flush runs after a signal has canceled ctx.
		b, err := datadog.NewBackend(context.WithoutCancel(ctx), datadog.Options{
			JobName:    "boosterdb",
			Tags:       tags,
			FlushEvery: 60 * time.Second,
		})
		if err != nil {
			a.logger.Warn("metrics: datadog backend unavailable; using nop", "err", err)
			return
		}
		a.logger.Debug("metrics enabled", "backend", "datadog", "tags", tags)
		metrics.SetBackend(b)
		a.closers = append(a.closers, func() {
			// Close performs the final flush.
			if err := b.Close(); err != nil {
				a.logger.Warn("metrics: datadog close", "err", err)
			}
			metrics.SetBackend(nil)
		})
	default:
		a.logger.Debug("metrics disabled", "backend", a.env.MetricsBackend)
	}
}

func (a *app) shutdown() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// openRepo opens the configured database. The caller closes it.
func (a *app) openRepo(ctx context.Context) (storage.Repository, error) {
	if err := a.env.RequireDatabase(); err != nil {
		return nil, err
	}
	repo, err := storage.New(ctx, storage.Config{
		Kind:             a.env.DatabaseKind,
		DSN:              a.env.DatabaseURL,
		StatementTimeout: a.env.StatementTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", a.env.DatabaseKind, err)
	}
	return repo, nil
}

// source picks the snapshot location: --dir, else S3 when configured, else
// SNAPSHOT_DIR.
func (a *app) source() (snapshot.Source, error) {
	if a.dir != "" {
		return snapshot.Dir{Path: a.dir}, nil
	}
	if a.env.UsesS3() {
		s3, err := a.s3()
		if err != nil {
			return nil, err
		}
		return s3, nil
	}
	return snapshot.Dir{Path: a.env.SnapshotDir}, nil
}

func (a *app) s3() (*snapshot.S3, error) {
	keyID, secret, err := a.env.BlobCredentials()
	if err != nil {
		return nil, err
	}
	return snapshot.NewS3(snapshot.S3Options{
		Bucket:   a.env.S3Bucket,
		Prefix:   a.env.S3Prefix,
		Endpoint: a.env.S3Endpoint,
		Region:   a.env.S3Region,
		KeyID:    keyID,
		Secret:   secret,
	})
}

// tables returns the --tables flag, else the run file's table order.
func (a *app) tables(flag []string) []string {
	if len(flag) > 0 {
		return flag
	}
	return a.runFile.Tables
}
