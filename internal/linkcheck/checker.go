// Package linkcheck fetches the payment links stored in a snapshot and
// reports which ones still resolve, and to which provider.
package linkcheck

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"boosterdb/internal/metrics"
	"boosterdb/pkg/records"
)

const (
	defaultTimeout     = 15 * time.Second
	defaultMaxAttempts = 3
	defaultBackoff     = 500 * time.Millisecond
	maxBackoff         = 10 * time.Second
	maxBodyBytes       = 2 << 20
	userAgent          = "boosterdb-linkcheck/1.0"
)

// Link is one URL to check.
type Link struct {
	URL   string
	Label string
}

// Result is the outcome for one link.
type Result struct {
	URL        string   `json:"url"`
	Label      string   `json:"label,omitempty"`
	Provider   Provider `json:"provider"`
	OK         bool     `json:"ok"`
	StatusCode int      `json:"statusCode,omitempty"`
	Attempts   int      `json:"attempts"`
	Title      string   `json:"title,omitempty"`
	SiteName   string   `json:"siteName,omitempty"`
	FinalURL   string   `json:"finalUrl,omitempty"`
	Error      string   `json:"error,omitempty"`
	DurationMS int64    `json:"durationMs"`
}

// Report is the JSON document written by the linkcheck command.
type Report struct {
	Timestamp  time.Time `json:"timestamp"`
	TotalURLs  int       `json:"totalUrls"`
	Successful int       `json:"successful"`
	Failed     int       `json:"failed"`
	Results    []Result  `json:"results"`
}

// Checker fetches links one at a time under a shared rate limit.
type Checker struct {
	Client  *http.Client
	Limiter *rate.Limiter

	Timeout     time.Duration
	MaxAttempts int
	Backoff     time.Duration
	Mappings    []Mapping
	Logger      *slog.Logger

	now func() time.Time
}

// NewChecker returns a Checker that issues at most perSecond requests per
// second. perSecond <= 0 disables the limit.
func NewChecker(perSecond float64, logger *slog.Logger) *Checker {
	lim := rate.NewLimiter(rate.Inf, 1)
	if perSecond > 0 {
		lim = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
	return &Checker{
		Client:   &http.Client{Timeout: defaultTimeout},
		Limiter:  lim,
		Mappings: DefaultMappings,
		Logger:   logger,
	}
}

// LinksFromRecords pulls urlField (and optionally labelField) out of
// snapshot records. Records without a usable URL are returned as skipped
// positions (1-based).
func LinksFromRecords(recs []*records.Record, urlField, labelField string) (links []Link, skipped []int) {
	for i, rec := range recs {
		raw, _ := rec.Get(urlField)
		s, ok := raw.(string)
		if !ok || strings.TrimSpace(s) == "" {
			skipped = append(skipped, i+1)
			continue
		}
		l := Link{URL: strings.TrimSpace(s)}
		if labelField != "" {
			if v, ok := rec.Get(labelField); ok && v != nil {
				l.Label = fmt.Sprint(v)
			}
		}
		links = append(links, l)
	}
	return links, skipped
}

// Check fetches every link in order. It stops early only when ctx is done.
func (c *Checker) Check(ctx context.Context, links []Link) (Report, error) {
	rep := Report{Timestamp: c.clock().UTC(), TotalURLs: len(links), Results: make([]Result, 0, len(links))}
	log := c.logger()

	for _, l := range links {
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return rep, err
			}
		}
		res := c.checkOne(ctx, l)
		if res.OK {
			rep.Successful++
			log.Info("link ok", "stage", "linkcheck", "url", res.URL, "provider", res.Provider, "status", res.StatusCode, "title", res.Title)
		} else {
			rep.Failed++
			log.Warn("link failed", "stage", "linkcheck", "url", res.URL, "provider", res.Provider, "status", res.StatusCode, "err", res.Error)
		}
		rep.Results = append(rep.Results, res)
		if err := ctx.Err(); err != nil {
			return rep, err
		}
	}
	return rep, nil
}

// attempt is the outcome of a single GET.
type attempt struct {
	status     int
	finalURL   string
	details    map[string]string
	retryAfter time.Duration
	err        error
}

func (c *Checker) checkOne(ctx context.Context, l Link) Result {
	start := time.Now()
	provider := Classify(l.URL)
	res := Result{URL: l.URL, Label: l.Label, Provider: provider}

	if err := validateURL(l.URL); err != nil {
		res.Error = err.Error()
		metrics.IncCounter(metrics.LinkcheckErrorsTotal, 1, metrics.Labels{"provider": string(provider)})
		return res
	}

	maxAttempts := c.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	var a attempt
	for n := 1; n <= maxAttempts; n++ {
		res.Attempts = n
		reqStart := time.Now()
		a = c.fetch(ctx, l.URL)
		metrics.ObserveHistogram(metrics.LinkcheckRequestDuration, time.Since(reqStart).Seconds(), metrics.Labels{"provider": string(provider)})
		metrics.IncCounter(metrics.LinkcheckRequestsTotal, 1, metrics.Labels{"provider": string(provider), "status": statusLabel(a)})

		if !retryable(a) || n == maxAttempts {
			break
		}
		if !sleepContext(ctx, c.retryDelay(a, n)) {
			break
		}
	}

	res.StatusCode = a.status
	res.FinalURL = a.finalURL
	res.Title = a.details["title"]
	if res.Title == "" {
		res.Title = a.details["og_title"]
	}
	res.SiteName = a.details["site_name"]
	res.DurationMS = time.Since(start).Milliseconds()

	switch {
	case a.err != nil:
		res.Error = a.err.Error()
	case a.status < 200 || a.status >= 300:
		res.Error = fmt.Sprintf("http status %d", a.status)
	default:
		res.OK = true
	}
	if !res.OK {
		metrics.IncCounter(metrics.LinkcheckErrorsTotal, 1, metrics.Labels{"provider": string(provider)})
	}
	return res
}

func (c *Checker) fetch(ctx context.Context, rawURL string) attempt {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return attempt{err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return attempt{err: fmt.Errorf("http get: %w", err)}
	}
	defer resp.Body.Close()

	a := attempt{status: resp.StatusCode, finalURL: resp.Request.URL.String()}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		if resp.StatusCode == http.StatusTooManyRequests {
			a.retryAfter = parseRetryAfter(resp.Header)
		}
		return a
	}

	mappings := c.Mappings
	if mappings == nil {
		mappings = DefaultMappings
	}
	details, err := ExtractDetails(io.LimitReader(resp.Body, maxBodyBytes), mappings)
	if err != nil {
		// The link resolved; an unparseable page only loses the details.
		c.logger().Debug("page details unavailable", "stage", "linkcheck", "url", rawURL, "err", err)
	}
	a.details = details
	return a
}

func (c *Checker) retryDelay(a attempt, n int) time.Duration {
	if a.retryAfter > 0 {
		return min(a.retryAfter, maxBackoff)
	}
	base := c.Backoff
	if base <= 0 {
		base = defaultBackoff
	}
	d := base << uint(n-1)
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (c *Checker) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Checker) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// retryable is true for network errors, 429 and 5xx.
func retryable(a attempt) bool {
	if a.err != nil {
		return !errors.Is(a.err, context.Canceled)
	}
	return a.status == http.StatusTooManyRequests || a.status >= 500
}

func statusLabel(a attempt) string {
	if a.err != nil {
		return "error"
	}
	return strconv.Itoa(a.status/100) + "xx"
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid url %q: scheme must be http or https", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid url %q: missing host", raw)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func parseRetryAfter(h http.Header) time.Duration {
	ra := strings.TrimSpace(h.Get("Retry-After"))
	if ra == "" {
		return 0
	}
	if secs, err := strconv.Atoi(ra); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(ra); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
