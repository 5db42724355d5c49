// Package datadog implements a Datadog backend for the internal/metrics package.
//
// Metrics are buffered in memory and submitted on a ticker (default once per
// minute) plus one final flush on Close, so a long restore shows up as a time
// series and a short one still reports its tail. A SIGKILL loses the buffer.
package datadog

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	dd "github.com/DataDog/datadog-api-client-go/v2/api/datadog"
	"github.com/DataDog/datadog-api-client-go/v2/api/datadogV2"

	"boosterdb/internal/metrics"
)

// Options controls Datadog backend configuration.
type Options struct {
	// JobName becomes tag "job:<name>" on every metric. Defaults to "boosterdb".
	JobName string

	// Tags are extra Datadog tags (e.g. "service:boosterdb").
	Tags []string

	// FlushEvery defaults to 60 seconds.
	FlushEvery time.Duration

	// Unexported test seams.
	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker
	submitter metricsSubmitter
}

// metricsSubmitter is the slice of *datadogV2.MetricsApi the backend uses.
type metricsSubmitter interface {
	SubmitMetrics(ctx context.Context, body datadogV2.MetricPayload, params ...datadogV2.SubmitMetricsOptionalParameters) (datadogV2.IntakePayloadAccepted, *http.Response, error)
}

// seriesSpec maps an internal metric name onto a Datadog metric and the label
// keys kept as tags. Labels outside tagKeys are dropped.
type seriesSpec struct {
	metric  string
	tagKeys []string
}

var counterSpecs = map[string]seriesSpec{
	metrics.RestoreRecordsTotal:    {"boosterdb.restore.records.total", []string{"table", "status"}},
	metrics.RestoreTablesTotal:     {"boosterdb.restore.tables.total", []string{"state"}},
	metrics.BackupTablesTotal:      {"boosterdb.backup.tables.total", []string{"status"}},
	metrics.BackupRowsTotal:        {"boosterdb.backup.rows.total", []string{"table"}},
	metrics.LinkcheckRequestsTotal: {"boosterdb.linkcheck.requests.total", []string{"provider", "status"}},
	metrics.LinkcheckErrorsTotal:   {"boosterdb.linkcheck.errors.total", []string{"provider"}},
}

var histogramSpecs = map[string]seriesSpec{
	metrics.RestoreStepDuration:      {"boosterdb.restore.step.duration_seconds", []string{"step", "status"}},
	metrics.LinkcheckRequestDuration: {"boosterdb.linkcheck.request.duration_seconds", []string{"provider"}},
}

// bufferKey identifies one output series: Datadog metric plus rendered tags.
type bufferKey struct {
	metric string
	tags   string
}

// Backend implements metrics.Backend for Datadog.
type Backend struct {
	api metricsSubmitter
	ctx context.Context

	flushEvery time.Duration
	stopCh     chan struct{}
	doneCh     chan struct{}

	baseTags []string

	now       func() time.Time
	newTicker func(d time.Duration) *time.Ticker

	mu      sync.Mutex
	counts  map[bufferKey]float64
	samples map[bufferKey][]float64
}

func resolveEnvTag() string {
	for _, k := range []string{"ENV", "DD_ENV", "NODE_ENV"} {
		if v := strings.TrimSpace(os.Getenv(k)); v != "" {
			return "env:" + v
		}
	}
	return "env:unknown"
}

// NewBackend constructs a Datadog backend using the official client. The API
// key and site come from DD_API_KEY / DD_SITE via dd.NewDefaultContext.
//
// Network errors surface from Flush, not from construction.
func NewBackend(parent context.Context, opts Options) (*Backend, error) {
	job := opts.JobName
	if job == "" {
		job = "boosterdb"
	}
	flushEvery := opts.FlushEvery
	if flushEvery <= 0 {
		flushEvery = 60 * time.Second
	}

	baseTags := make([]string, 0, 2+len(opts.Tags))
	baseTags = append(baseTags, resolveEnvTag(), "job:"+job)
	baseTags = append(baseTags, opts.Tags...)

	nowFn := opts.now
	if nowFn == nil {
		nowFn = time.Now
	}
	newTicker := opts.newTicker
	if newTicker == nil {
		newTicker = time.NewTicker
	}

	submitter := opts.submitter
	if submitter == nil {
		submitter = datadogV2.NewMetricsApi(dd.NewAPIClient(dd.NewConfiguration()))
	}

	b := &Backend{
		api:        submitter,
		ctx:        dd.NewDefaultContext(parent),
		flushEvery: flushEvery,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
		baseTags:   baseTags,
		now:        nowFn,
		newTicker:  newTicker,
		counts:     make(map[bufferKey]float64),
		samples:    make(map[bufferKey][]float64),
	}

	go b.loop()
	return b, nil
}

func (b *Backend) loop() {
	defer close(b.doneCh)

	t := b.newTicker(b.flushEvery)
	defer t.Stop()

	for {
		select {
		case <-t.C:
			_ = b.Flush()
		case <-b.stopCh:
			return
		}
	}
}

// Close stops the flush loop and performs one final Flush. Call it once.
func (b *Backend) Close() error {
	close(b.stopCh)
	<-b.doneCh
	return b.Flush()
}

// IncCounter implements metrics.Backend. Unknown names are ignored.
func (b *Backend) IncCounter(name string, delta float64, labels metrics.Labels) {
	if delta <= 0 {
		return
	}
	spec, ok := counterSpecs[name]
	if !ok {
		return
	}
	k := bufferKey{metric: spec.metric, tags: renderTags(spec.tagKeys, labels)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.counts[k] += delta
}

// ObserveHistogram implements metrics.Backend. Unknown names are ignored.
func (b *Backend) ObserveHistogram(name string, value float64, labels metrics.Labels) {
	if value < 0 {
		return
	}
	spec, ok := histogramSpecs[name]
	if !ok {
		return
	}
	k := bufferKey{metric: spec.metric, tags: renderTags(spec.tagKeys, labels)}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.samples[k] = append(b.samples[k], value)
}

// renderTags joins "key:value" pairs in tagKeys order; missing labels become
// "unknown".
func renderTags(keys []string, labels metrics.Labels) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		v := strings.TrimSpace(labels[k])
		if v == "" {
			v = "unknown"
		}
		parts[i] = k + ":" + v
	}
	return strings.Join(parts, "\x00")
}

func splitTags(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\x00")
}

type snapshot struct {
	counts  map[bufferKey]float64
	samples map[bufferKey][]float64
}

func (s snapshot) isEmpty() bool { return len(s.counts) == 0 && len(s.samples) == 0 }

func (b *Backend) snapshotAndReset() snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := snapshot{counts: b.counts, samples: b.samples}
	b.counts = make(map[bufferKey]float64)
	b.samples = make(map[bufferKey][]float64)
	return s
}

// Flush submits buffered metrics and resets the buffers, even when the
// submission fails. It returns nil when there is nothing to submit.
func (b *Backend) Flush() error {
	snap := b.snapshotAndReset()
	if snap.isEmpty() {
		return nil
	}

	payload := datadogV2.MetricPayload{Series: b.buildSeries(snap, b.now().Unix())}
	_, _, err := b.api.SubmitMetrics(b.ctx, payload, *datadogV2.NewSubmitMetricsOptionalParameters())
	if err != nil {
		return fmt.Errorf("datadog submit: %w", err)
	}
	return nil
}

// buildSeries is pure: counters become COUNT series, histograms become a
// fixed set of percentile gauges. Output is sorted for stable payloads.
func (b *Backend) buildSeries(s snapshot, nowUnix int64) []datadogV2.MetricSeries {
	series := make([]datadogV2.MetricSeries, 0, len(s.counts)+6*len(s.samples))

	for _, k := range sortedKeys(s.counts) {
		v := s.counts[k]
		if v == 0 {
			continue
		}
		series = append(series, newSeries(datadogV2.METRICINTAKETYPE_COUNT, k.metric, v,
			withTags(b.baseTags, splitTags(k.tags)...), nowUnix))
	}

	for _, k := range sortedKeys(s.samples) {
		addPercentiles(&series, withTags(b.baseTags, splitTags(k.tags)...), k.metric, s.samples[k], nowUnix)
	}
	return series
}

func sortedKeys[V any](m map[bufferKey]V) []bufferKey {
	keys := make([]bufferKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].metric != keys[j].metric {
			return keys[i].metric < keys[j].metric
		}
		return keys[i].tags < keys[j].tags
	})
	return keys
}

// addPercentiles appends p50/p90/p95/p99/max/samples gauges. samples is not
// mutated.
func addPercentiles(series *[]datadogV2.MetricSeries, tags []string, metricPrefix string, samples []float64, nowUnix int64) {
	if len(samples) == 0 {
		return
	}
	cp := append([]float64(nil), samples...)
	sort.Float64s(cp)

	gauge := func(suffix string, v float64) {
		*series = append(*series, newSeries(datadogV2.METRICINTAKETYPE_GAUGE, metricPrefix+suffix, v, tags, nowUnix))
	}
	gauge(".p50", percentileNearestRank(cp, 0.50))
	gauge(".p90", percentileNearestRank(cp, 0.90))
	gauge(".p95", percentileNearestRank(cp, 0.95))
	gauge(".p99", percentileNearestRank(cp, 0.99))
	gauge(".max", cp[len(cp)-1])
	gauge(".samples", float64(len(cp)))
}

func newSeries(typ datadogV2.MetricIntakeType, metric string, value float64, tags []string, nowUnix int64) datadogV2.MetricSeries {
	return datadogV2.MetricSeries{
		Metric: metric,
		Type:   typ.Ptr(),
		Points: []datadogV2.MetricPoint{
			{Timestamp: dd.PtrInt64(nowUnix), Value: dd.PtrFloat64(value)},
		},
		Tags: tags,
	}
}

func withTags(base []string, extras ...string) []string {
	out := make([]string, 0, len(base)+len(extras))
	out = append(out, base...)
	out = append(out, extras...)
	return out
}

func percentileNearestRank(s []float64, p float64) float64 {
	n := len(s)
	if n == 0 {
		return 0
	}
	if p <= 0 {
		return s[0]
	}
	if p >= 1 {
		return s[n-1]
	}
	idx := int(p*float64(n-1) + 0.5)
	if idx >= n {
		idx = n - 1
	}
	return s[idx]
}

var (
	_ metrics.Backend = (*Backend)(nil)
	_ metrics.Flusher = (*Backend)(nil)
)

// ParseTagsCSV parses comma-separated tags like "env:prod,service:boosterdb".
func ParseTagsCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
