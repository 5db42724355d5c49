package restore

import (
	"testing"
	"time"
)

func TestParseOnError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    OnError
		wantErr bool
	}{
		{"", Skip, false},
		{"skip", Skip, false},
		{" ABORT ", Abort, false},
		{"Retry", Retry, false},
		{"ignore", Skip, true},
	}
	for _, tt := range tests {
		got, err := ParseOnError(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseOnError(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseOnError(%q)=%v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestPolicy_Attempts(t *testing.T) {
	t.Parallel()

	if got := (Policy{}).attempts(); got != 1 {
		t.Fatalf("skip attempts=%d, want 1", got)
	}
	if got := (Policy{OnRecordError: Abort, Retries: 5}).attempts(); got != 1 {
		t.Fatalf("abort attempts=%d, want 1", got)
	}
	if got := (Policy{OnRecordError: Retry}).attempts(); got != 4 {
		t.Fatalf("retry default attempts=%d, want 4", got)
	}
	if got := (Policy{OnRecordError: Retry, Retries: 2}).attempts(); got != 3 {
		t.Fatalf("retry attempts=%d, want 3", got)
	}
}

func TestPolicy_DelayDoublesAndCaps(t *testing.T) {
	t.Parallel()

	p := Policy{OnRecordError: Retry, Backoff: 10 * time.Millisecond, MaxBackoff: 50 * time.Millisecond}
	want := []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond, 50 * time.Millisecond, 50 * time.Millisecond}
	for i, w := range want {
		if got := p.delay(i + 1); got != w {
			t.Fatalf("delay(%d)=%s, want %s", i+1, got, w)
		}
	}

	if got := (Policy{}).delay(1); got != defaultBackoff {
		t.Fatalf("default delay=%s, want %s", got, defaultBackoff)
	}
}
