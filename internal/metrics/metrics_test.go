package metrics

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type recorder struct {
	mu       sync.Mutex
	counters map[string]float64
	hists    map[string][]float64
	labels   []Labels
	flushed  int
}

func newRecorder() *recorder {
	return &recorder{counters: map[string]float64{}, hists: map[string][]float64{}}
}

func (r *recorder) IncCounter(name string, delta float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counters[name] += delta
	r.labels = append(r.labels, l)
}

func (r *recorder) ObserveHistogram(name string, v float64, l Labels) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hists[name] = append(r.hists[name], v)
	r.labels = append(r.labels, l)
}

func (r *recorder) Flush() error {
	r.flushed++
	return nil
}

// Not parallel: the backend is process-wide.
func TestSetBackendAndHelpers(t *testing.T) {
	rec := newRecorder()
	SetBackend(rec)
	t.Cleanup(func() { SetBackend(nil) })

	IncCounter(RestoreRecordsTotal, 2, Labels{"status": "succeeded"})
	ObserveStep("load", time.Now().Add(-time.Second), nil)
	ObserveStep("ddl", time.Now(), errors.New("boom"))

	if rec.counters[RestoreRecordsTotal] != 2 {
		t.Fatalf("unexpected counter: %v", rec.counters)
	}
	if got := rec.hists[RestoreStepDuration]; len(got) != 2 || got[0] < 1 {
		t.Fatalf("unexpected durations: %v", got)
	}
	if rec.labels[2]["status"] != "error" || rec.labels[2]["step"] != "ddl" {
		t.Fatalf("unexpected step labels: %v", rec.labels[2])
	}

	if err := Flush(); err != nil || rec.flushed != 1 {
		t.Fatalf("Flush: err=%v flushed=%d", err, rec.flushed)
	}

	SetBackend(nil)
	IncCounter(RestoreRecordsTotal, 1, nil)
	if rec.counters[RestoreRecordsTotal] != 2 {
		t.Fatalf("nil backend should discard")
	}
	if err := Flush(); err != nil {
		t.Fatalf("Flush on nop backend: %v", err)
	}
}
