// Package snapshot locates per-table JSON snapshot files: one <table>.json
// per table, in a local directory or an S3-compatible bucket.
package snapshot

import (
	"context"
	"errors"
	"io"
	"strings"
)

// Ext is the snapshot file extension.
const Ext = ".json"

// ErrNotFound is returned by Source.Open when a table has no snapshot.
var ErrNotFound = errors.New("snapshot not found")

// Source reads table snapshots.
type Source interface {
	// Tables lists the tables that have a snapshot, sorted by name.
	Tables(ctx context.Context) ([]string, error)
	Open(ctx context.Context, table string) (io.ReadCloser, error)
	Location(table string) string
}

// Sink writes table snapshots. The snapshot becomes visible on Close.
type Sink interface {
	Create(ctx context.Context, table string) (io.WriteCloser, error)
	Location(table string) string
}

// Aborter is implemented by writers returned from Sink.Create. Abort drops
// the snapshot instead of publishing it; Close must not be called afterwards.
type Aborter interface {
	Abort() error
}

// tableFromName returns the table for a snapshot file name, or "" when the
// name is not a snapshot.
func tableFromName(name string) string {
	if !strings.HasSuffix(name, Ext) || strings.HasPrefix(name, ".") {
		return ""
	}
	return strings.TrimSuffix(name, Ext)
}
