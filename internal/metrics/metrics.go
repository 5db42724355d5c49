// Package metrics is the instrumentation facade used by restore, backup and
// linkcheck. The default backend discards everything; cmd wires a real one.
package metrics

import (
	"sync"
	"time"
)

// Labels are low-cardinality dimensions attached to a sample.
type Labels map[string]string

// Backend receives counter increments and histogram observations.
// Implementations must be safe for concurrent use.
type Backend interface {
	IncCounter(name string, delta float64, labels Labels)
	ObserveHistogram(name string, value float64, labels Labels)
}

// Flusher is implemented by buffering backends.
type Flusher interface {
	Flush() error
}

// Metric names emitted by this module.
const (
	RestoreRecordsTotal      = "restore_records_total"
	RestoreTablesTotal       = "restore_tables_total"
	RestoreStepDuration      = "restore_step_duration_seconds"
	BackupTablesTotal        = "backup_tables_total"
	BackupRowsTotal          = "backup_rows_total"
	LinkcheckRequestsTotal   = "linkcheck_requests_total"
	LinkcheckErrorsTotal     = "linkcheck_errors_total"
	LinkcheckRequestDuration = "linkcheck_request_duration_seconds"
)

type nopBackend struct{}

func (nopBackend) IncCounter(string, float64, Labels)       {}
func (nopBackend) ObserveHistogram(string, float64, Labels) {}

var (
	mu      sync.RWMutex
	backend Backend = nopBackend{}
)

// SetBackend installs b process-wide. A nil b restores the no-op backend.
func SetBackend(b Backend) {
	mu.Lock()
	defer mu.Unlock()
	if b == nil {
		b = nopBackend{}
	}
	backend = b
}

func current() Backend {
	mu.RLock()
	defer mu.RUnlock()
	return backend
}

func IncCounter(name string, delta float64, labels Labels) {
	current().IncCounter(name, delta, labels)
}

func ObserveHistogram(name string, value float64, labels Labels) {
	current().ObserveHistogram(name, value, labels)
}

// ObserveStep records how long a restore step took and whether it succeeded.
func ObserveStep(step string, start time.Time, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	ObserveHistogram(RestoreStepDuration, time.Since(start).Seconds(), Labels{"step": step, "status": status})
}

// Flush flushes the installed backend when it buffers.
func Flush() error {
	if f, ok := current().(Flusher); ok {
		return f.Flush()
	}
	return nil
}
