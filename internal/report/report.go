// Package report renders restore results as a JSON document and as a console
// summary.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"
	"time"

	"boosterdb/internal/restore"
)

// Report is the machine-readable run report written with --report.
type Report struct {
	Timestamp   time.Time     `json:"timestamp"`
	DryRun      bool          `json:"dryRun,omitempty"`
	TotalTables int           `json:"totalTables"`
	Successful  int           `json:"successful"`
	Failed      int           `json:"failed"`
	Results     []TableResult `json:"results"`
}

type TableResult struct {
	Table      string                  `json:"table"`
	State      restore.State           `json:"state"`
	Skipped    bool                    `json:"skipped,omitempty"`
	Attempted  int                     `json:"attempted"`
	Succeeded  int                     `json:"succeeded"`
	Failed     int                     `json:"failed"`
	Retried    int                     `json:"retried,omitempty"`
	Expected   int64                   `json:"expected"`
	Actual     int64                   `json:"actual"`
	Verified   bool                    `json:"verified"`
	Warning    string                  `json:"warning,omitempty"`
	Error      string                  `json:"error,omitempty"`
	DurationMS int64                   `json:"durationMs"`
	DDL        string                  `json:"ddl,omitempty"`
	Failures   []restore.RecordFailure `json:"failures,omitempty"`
}

// Successful is true when the table reached verified without a run error.
// Record failures and count mismatches still count as successful tables.
func (r TableResult) Successful() bool {
	return r.State == restore.Verified && r.Error == ""
}

// FromRuns builds a report stamped with now.
func FromRuns(runs []restore.TableRun, dryRun bool, now time.Time) Report {
	rep := Report{
		Timestamp:   now.UTC(),
		DryRun:      dryRun,
		TotalTables: len(runs),
		Results:     make([]TableResult, 0, len(runs)),
	}
	for _, tr := range runs {
		res := TableResult{
			Table:      tr.Table,
			State:      tr.State,
			Skipped:    tr.Skipped,
			Attempted:  tr.Load.Attempted,
			Succeeded:  tr.Load.Succeeded,
			Failed:     tr.Load.Failed,
			Retried:    tr.Load.Retried,
			Expected:   tr.Verification.Expected,
			Actual:     tr.Verification.Actual,
			Verified:   tr.State == restore.Verified && tr.Verification.Match,
			Warning:    tr.Verification.Warning,
			DurationMS: tr.Duration.Milliseconds(),
			DDL:        tr.DDL,
			Failures:   tr.Load.Failures,
		}
		if tr.Error != nil {
			res.Error = tr.Error.Error()
		}
		if res.Successful() || (dryRun && !tr.Skipped) {
			rep.Successful++
		} else {
			rep.Failed++
		}
		rep.Results = append(rep.Results, res)
	}
	return rep
}

// Write stores rep as indented JSON at path, creating parent directories.
func Write(path string, rep any) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("report: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("report: create dir: %w", err)
		}
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("report: write %s: %w", path, err)
	}
	return nil
}

// Summary prints one line per table followed by totals.
func Summary(w io.Writer, rep Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tSTATE\tATTEMPTED\tSUCCEEDED\tFAILED\tROWS\tNOTE")
	for _, r := range rep.Results {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.Table, r.State, r.Attempted, r.Succeeded, r.Failed, rows(r), note(r))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d tables: %d successful, %d failed\n", rep.TotalTables, rep.Successful, rep.Failed)
	return err
}

// VerifySummary prints the outcome of a count-only check.
func VerifySummary(w io.Writer, vs []restore.Verification) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tEXPECTED\tACTUAL\tSTATUS")
	mismatched := 0
	for _, v := range vs {
		status := "ok"
		switch {
		case v.Err != nil:
			status = "error: " + v.Err.Error()
			mismatched++
		case !v.Match:
			status = "mismatch"
			mismatched++
		}
		fmt.Fprintf(tw, "%s\t%d\t%d\t%s\n", v.Table, v.Expected, v.Actual, status)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\n%d tables checked, %d mismatched\n", len(vs), mismatched)
	return err
}

func rows(r TableResult) string {
	if r.State != restore.Verified {
		return "-"
	}
	return fmt.Sprintf("%d/%d", r.Actual, r.Expected)
}

func note(r TableResult) string {
	switch {
	case r.Error != "":
		return r.Error
	case r.Warning != "":
		return r.Warning
	}
	return ""
}
