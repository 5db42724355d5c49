// Package backup exports database tables into snapshot files that restore
// can read back: one JSON array of column-ordered objects per table.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"boosterdb/internal/metrics"
	"boosterdb/internal/snapshot"
	"boosterdb/pkg/records"
)

const defaultWorkers = 4

// Exporter is the slice of storage.Repository a backup needs.
type Exporter interface {
	ListTables(ctx context.Context) ([]string, error)
	ExportTable(ctx context.Context, table string, fn func(*records.Record) error) error
}

// Result is the outcome for one table.
type Result struct {
	Table    string
	Location string
	Rows     int64
	Duration time.Duration
	Err      error
}

// Backup exports tables concurrently, at most Workers at a time.
type Backup struct {
	Repo    Exporter
	Sink    snapshot.Sink
	Workers int
	Logger  *slog.Logger
}

// Run exports tables, or every table when tables is empty. Results are in
// input order. A failed table does not stop the others; the returned error
// joins every table error.
func (b *Backup) Run(ctx context.Context, tables []string) ([]Result, error) {
	if b.Repo == nil || b.Sink == nil {
		return nil, errors.New("backup: Repo and Sink are required")
	}
	if len(tables) == 0 {
		var err error
		if tables, err = b.Repo.ListTables(ctx); err != nil {
			return nil, fmt.Errorf("backup: list tables: %w", err)
		}
	}

	workers := b.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	log := b.logger()
	log.Info("backup start", "stage", "backup", "tables", len(tables), "workers", workers)

	results := make([]Result, len(tables))
	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, table := range tables {
		g.Go(func() error {
			res := b.exportOne(gctx, table)
			results[i] = res

			status := "ok"
			if res.Err != nil {
				status = "error"
				log.Error("table export failed", "stage", "backup", "table", table, "err", res.Err)
				mu.Lock()
				errs = append(errs, res.Err)
				mu.Unlock()
			} else {
				log.Info("table exported", "stage", "backup", "table", table, "rows", res.Rows, "location", res.Location, "duration", res.Duration.Truncate(time.Millisecond))
			}
			metrics.IncCounter(metrics.BackupTablesTotal, 1, metrics.Labels{"status": status})
			metrics.IncCounter(metrics.BackupRowsTotal, float64(res.Rows), metrics.Labels{"table": table})

			// Only cancellation stops siblings.
			if errors.Is(res.Err, context.Canceled) {
				return res.Err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, errors.Join(errs...)
}

func (b *Backup) exportOne(ctx context.Context, table string) Result {
	start := time.Now()
	res := Result{Table: table, Location: b.Sink.Location(table)}

	w, err := b.Sink.Create(ctx, table)
	if err != nil {
		res.Err = fmt.Errorf("backup: %s: %w", table, err)
		return res
	}

	rows, err := writeArray(ctx, w, func(fn func(*records.Record) error) error {
		return b.Repo.ExportTable(ctx, table, fn)
	})
	res.Rows = rows
	if err != nil {
		if a, ok := w.(snapshot.Aborter); ok {
			_ = a.Abort()
		} else {
			_ = w.Close()
		}
		res.Err = fmt.Errorf("backup: %s: %w", table, err)
		res.Duration = time.Since(start)
		return res
	}
	if err := w.Close(); err != nil {
		res.Err = fmt.Errorf("backup: %s: %w", table, err)
	}
	res.Duration = time.Since(start)
	return res
}

// writeArray writes every record produced by each as one element of a JSON
// array, one record per line.
func writeArray(ctx context.Context, w io.Writer, each func(fn func(*records.Record) error) error) (int64, error) {
	var n int64
	if _, err := io.WriteString(w, "["); err != nil {
		return 0, err
	}
	err := each(func(rec *records.Record) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", n+1, err)
		}
		sep := ",\n  "
		if n == 0 {
			sep = "\n  "
		}
		if _, err := io.WriteString(w, sep); err != nil {
			return err
		}
		if _, err := w.Write(data); err != nil {
			return err
		}
		n++
		return nil
	})
	if err != nil {
		return n, err
	}
	tail := "\n]\n"
	if n == 0 {
		tail = "]\n"
	}
	_, err = io.WriteString(w, tail)
	return n, err
}

func (b *Backup) logger() *slog.Logger {
	if b.Logger != nil {
		return b.Logger
	}
	return slog.Default()
}
