package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"boosterdb/internal/restore"
)

func sampleRuns() []restore.TableRun {
	return []restore.TableRun{
		{
			Table: "officers",
			State: restore.Verified,
			Load:  restore.LoadResult{Table: "officers", Attempted: 2, Succeeded: 2},
			Verification: restore.Verification{
				Table: "officers", Expected: 2, Actual: 2, Match: true,
			},
			Duration: 1500 * time.Millisecond,
		},
		{
			Table: "users",
			State: restore.Verified,
			Load: restore.LoadResult{
				Table: "users", Attempted: 10, Succeeded: 9, Failed: 1,
				Failures: []restore.RecordFailure{{Position: 6, Identity: "id=6", Error: "extra field", Validation: true}},
			},
			Verification: restore.Verification{
				Table: "users", Expected: 10, Actual: 9, Warning: "users: count mismatch: expected 10 rows, found 9",
			},
		},
		{
			Table:   "clubs",
			State:   restore.NotCreated,
			Skipped: true,
			Error:   errors.New("restore: create clubs: syntax error"),
		},
	}
}

func TestFromRuns(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))
	rep := FromRuns(sampleRuns(), false, now)

	assert.Equal(t, now.UTC(), rep.Timestamp)
	assert.Equal(t, 3, rep.TotalTables)
	assert.Equal(t, 2, rep.Successful)
	assert.Equal(t, 1, rep.Failed)
	require.Len(t, rep.Results, 3)

	assert.True(t, rep.Results[0].Verified)
	assert.Equal(t, int64(1500), rep.Results[0].DurationMS)
	assert.False(t, rep.Results[1].Verified)
	assert.Len(t, rep.Results[1].Failures, 1)
	assert.Equal(t, "restore: create clubs: syntax error", rep.Results[2].Error)
}

func TestWrite(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "reports", "restore.json")
	rep := FromRuns(sampleRuns(), false, time.Unix(0, 0))
	require.NoError(t, Write(path, rep))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, float64(3), got["totalTables"])
	assert.Equal(t, float64(2), got["successful"])
	assert.Equal(t, float64(1), got["failed"])

	results, ok := got["results"].([]any)
	require.True(t, ok)
	first := results[0].(map[string]any)
	assert.Equal(t, "officers", first["table"])
	assert.Equal(t, "verified", first["state"])
}

func TestSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, FromRuns(sampleRuns(), false, time.Now())))

	out := buf.String()
	assert.Contains(t, out, "officers")
	assert.Contains(t, out, "2/2")
	assert.Contains(t, out, "count mismatch")
	assert.Contains(t, out, "syntax error")
	assert.Contains(t, out, "3 tables: 2 successful, 1 failed")
}

func TestVerifySummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := VerifySummary(&buf, []restore.Verification{
		{Table: "officers", Expected: 2, Actual: 2, Match: true},
		{Table: "users", Expected: 10, Actual: 9},
		{Table: "clubs", Err: errors.New("no such table")},
	})
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "mismatch")
	assert.Contains(t, buf.String(), "3 tables checked, 2 mismatched")
}
