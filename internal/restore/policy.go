package restore

import (
	"fmt"
	"strings"
	"time"
)

// OnError selects what the loader does when a record fails to insert.
type OnError int

const (
	// Skip logs the failure and continues with the next record.
	Skip OnError = iota
	// Abort stops loading the table at the first failure.
	Abort
	// Retry re-executes a failed insert before classifying it as failed.
	Retry
)

func (o OnError) String() string {
	switch o {
	case Skip:
		return "skip"
	case Abort:
		return "abort"
	case Retry:
		return "retry"
	}
	return fmt.Sprintf("OnError(%d)", int(o))
}

// ParseOnError accepts skip, abort or retry (case-insensitive). Empty means skip.
func ParseOnError(s string) (OnError, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "skip":
		return Skip, nil
	case "abort":
		return Abort, nil
	case "retry":
		return Retry, nil
	}
	return Skip, fmt.Errorf("restore: unknown record error policy %q (want skip, abort or retry)", s)
}

const (
	defaultRetries    = 3
	defaultBackoff    = 100 * time.Millisecond
	defaultMaxBackoff = 5 * time.Second
)

// Policy is the per-record failure policy. The zero value skips failures.
type Policy struct {
	OnRecordError OnError

	// Retries is the number of extra attempts under Retry. Zero means 3.
	Retries int
	// Backoff is the delay before the first retry; it doubles per attempt
	// up to MaxBackoff.
	Backoff    time.Duration
	MaxBackoff time.Duration
}

// attempts is the total number of insert attempts allowed per record.
func (p Policy) attempts() int {
	if p.OnRecordError != Retry {
		return 1
	}
	if p.Retries <= 0 {
		return 1 + defaultRetries
	}
	return 1 + p.Retries
}

// delay returns the wait before retry number n (1-based).
func (p Policy) delay(n int) time.Duration {
	base := p.Backoff
	if base <= 0 {
		base = defaultBackoff
	}
	limit := p.MaxBackoff
	if limit <= 0 {
		limit = defaultMaxBackoff
	}
	d := base
	for i := 1; i < n; i++ {
		d *= 2
		if d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}
