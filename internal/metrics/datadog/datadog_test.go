package datadog

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"boosterdb/internal/metrics"
)

// fakeSubmitter captures payloads submitted by Backend.Flush().
type fakeSubmitter struct {
	mu       sync.Mutex
	payloads []datadogV2.MetricPayload
	err      error
}

func (f *fakeSubmitter) SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payloads = append(f.payloads, body)
	return datadogV2.IntakePayloadAccepted{}, nil, f.err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.payloads)
}

func (f *fakeSubmitter) last() datadogV2.MetricPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.payloads[len(f.payloads)-1]
}

func newTestBackend(t *testing.T, fs *fakeSubmitter) *Backend {
	t.Helper()
	b, err := NewBackend(context.Background(), Options{
		JobName:   "restore",
		Tags:      []string{"service:boosterdb"},
		submitter: fs,
		now:       func() time.Time { return time.Unix(1000, 0) },
		newTicker: func(time.Duration) *time.Ticker { return time.NewTicker(24 * time.Hour) },
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	return b
}

func TestResolveEnvTag(t *testing.T) {
	tests := []struct {
		name  string
		env   string
		ddEnv string
		node  string
		want  string
	}{
		{name: "ENV wins", env: "prod", ddEnv: "stage", node: "development", want: "env:prod"},
		{name: "DD_ENV next", ddEnv: "stage", node: "development", want: "env:stage"},
		{name: "NODE_ENV last", node: "production", want: "env:production"},
		{name: "whitespace ignored", env: "  ", want: "env:unknown"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv("ENV", tc.env)
			t.Setenv("DD_ENV", tc.ddEnv)
			t.Setenv("NODE_ENV", tc.node)
			if got := resolveEnvTag(); got != tc.want {
				t.Fatalf("resolveEnvTag()=%q, want %q", got, tc.want)
			}
		})
	}
}

func TestFlush_SubmitsAndResets(t *testing.T) {
	t.Setenv("ENV", "test")

	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)
	defer func() { _ = b.Close() }()

	b.IncCounter(metrics.RestoreRecordsTotal, 9, metrics.Labels{"table": "officers", "status": "succeeded"})
	b.IncCounter(metrics.RestoreRecordsTotal, 1, metrics.Labels{"table": "officers", "status": "failed"})
	b.IncCounter(metrics.RestoreTablesTotal, 1, metrics.Labels{"state": "verified", "ignored": "x"})
	b.ObserveHistogram(metrics.RestoreStepDuration, 0.5, metrics.Labels{"step": "load", "status": "ok"})
	b.ObserveHistogram(metrics.RestoreStepDuration, 1.5, metrics.Labels{"step": "load", "status": "ok"})

	if err := b.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("expected 1 submission, got %d", fs.count())
	}

	got := map[string][]string{}
	values := map[string]float64{}
	for _, s := range fs.last().Series {
		key := s.Metric + "|" + s.Tags[len(s.Tags)-1]
		got[key] = s.Tags
		values[key] = *s.Points[0].Value
		if *s.Points[0].Timestamp != 1000 {
			t.Fatalf("unexpected timestamp on %s", s.Metric)
		}
	}

	wantSucceeded := []string{"env:test", "job:restore", "service:boosterdb", "table:officers", "status:succeeded"}
	if tags := got["boosterdb.restore.records.total|status:succeeded"]; !reflect.DeepEqual(tags, wantSucceeded) {
		t.Fatalf("unexpected tags: %v", tags)
	}
	if values["boosterdb.restore.records.total|status:succeeded"] != 9 ||
		values["boosterdb.restore.records.total|status:failed"] != 1 {
		t.Fatalf("unexpected record counts: %v", values)
	}
	if _, ok := got["boosterdb.restore.tables.total|state:verified"]; !ok {
		t.Fatalf("missing tables series: %v", got)
	}
	if values["boosterdb.restore.step.duration_seconds.max|status:ok"] != 1.5 ||
		values["boosterdb.restore.step.duration_seconds.samples|status:ok"] != 2 {
		t.Fatalf("unexpected percentiles: %v", values)
	}

	// Buffers were reset.
	if err := b.Flush(); err != nil || fs.count() != 1 {
		t.Fatalf("second flush should be a no-op: err=%v count=%d", err, fs.count())
	}
}

func TestFlush_SubmitErrorStillResets(t *testing.T) {
	fs := &fakeSubmitter{err: errors.New("boom")}
	b := newTestBackend(t, fs)

	b.IncCounter(metrics.LinkcheckRequestsTotal, 1, metrics.Labels{"provider": "stripe", "status": "200"})
	if err := b.Flush(); err == nil {
		t.Fatalf("expected submit error")
	}
	fs.err = nil
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() != 1 {
		t.Fatalf("expected buffers reset after failed flush, got %d submissions", fs.count())
	}
}

func TestIgnoresUnknownAndInvalidSamples(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	b.IncCounter("unknown_total", 1, nil)
	b.IncCounter(metrics.RestoreRecordsTotal, 0, nil)
	b.IncCounter(metrics.RestoreRecordsTotal, -1, nil)
	b.ObserveHistogram(metrics.RestoreStepDuration, -1, nil)
	b.ObserveHistogram("unknown_seconds", 1, nil)

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() != 0 {
		t.Fatalf("expected no submissions, got %d", fs.count())
	}
}

func TestRenderTags_MissingLabelsUnknown(t *testing.T) {
	t.Parallel()

	got := splitTags(renderTags([]string{"table", "status"}, metrics.Labels{"status": "failed"}))
	if !reflect.DeepEqual(got, []string{"table:unknown", "status:failed"}) {
		t.Fatalf("unexpected tags: %v", got)
	}
}

func TestLoopAndClose(t *testing.T) {
	fs := &fakeSubmitter{}
	b, err := NewBackend(context.Background(), Options{
		FlushEvery: 5 * time.Millisecond,
		submitter:  fs,
	})
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}

	b.IncCounter(metrics.BackupTablesTotal, 1, metrics.Labels{"status": "ok"})
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) && fs.count() < 1 {
		time.Sleep(2 * time.Millisecond)
	}
	if fs.count() < 1 {
		_ = b.Close()
		t.Fatalf("expected a background flush")
	}

	b.IncCounter(metrics.BackupTablesTotal, 1, metrics.Labels{"status": "ok"})
	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if fs.count() < 2 {
		t.Fatalf("expected final flush on Close, got %d submissions", fs.count())
	}
}

func TestBackend_ConcurrentAccess(t *testing.T) {
	fs := &fakeSubmitter{}
	b := newTestBackend(t, fs)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				b.IncCounter(metrics.RestoreRecordsTotal, 1, metrics.Labels{"table": "t", "status": "succeeded"})
				b.ObserveHistogram(metrics.LinkcheckRequestDuration, 0.1, metrics.Labels{"provider": "zelle"})
			}
		}()
	}
	wg.Wait()

	if err := b.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	var total float64
	for _, s := range fs.last().Series {
		if s.Metric == "boosterdb.restore.records.total" {
			total += *s.Points[0].Value
		}
	}
	if total != 800 {
		t.Fatalf("expected 800 counted records, got %v", total)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	t.Parallel()

	s := []float64{1, 2, 3, 4, 5}
	if got := percentileNearestRank(s, 0.5); got != 3 {
		t.Fatalf("p50=%v", got)
	}
	if got := percentileNearestRank(s, 0); got != 1 {
		t.Fatalf("p0=%v", got)
	}
	if got := percentileNearestRank(s, 1); got != 5 {
		t.Fatalf("p100=%v", got)
	}
	if got := percentileNearestRank(nil, 0.5); got != 0 {
		t.Fatalf("empty=%v", got)
	}
}

func TestParseTagsCSV(t *testing.T) {
	t.Parallel()

	if got := ParseTagsCSV(" env:prod, ,service:boosterdb "); !reflect.DeepEqual(got, []string{"env:prod", "service:boosterdb"}) {
		t.Fatalf("ParseTagsCSV=%v", got)
	}
	if got := ParseTagsCSV(""); got != nil {
		t.Fatalf("ParseTagsCSV(\"\")=%v", got)
	}
}
