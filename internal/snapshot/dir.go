package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
)

// Dir is a local directory of <table>.json files.
type Dir struct {
	Path string
}

func (d Dir) Location(table string) string {
	return filepath.Join(d.Path, table+Ext)
}

func (d Dir) Tables(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, fmt.Errorf("snapshot: read dir %s: %w", d.Path, err)
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if t := tableFromName(e.Name()); t != "" {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (d Dir) Open(_ context.Context, table string) (io.ReadCloser, error) {
	f, err := os.Open(d.Location(table))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, d.Location(table))
		}
		return nil, fmt.Errorf("snapshot: open %s: %w", table, err)
	}
	return f, nil
}

// Create writes to a temp file in the same directory and renames it into
// place on Close, so readers never see a half-written snapshot.
func (d Dir) Create(_ context.Context, table string) (io.WriteCloser, error) {
	if err := os.MkdirAll(d.Path, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: create dir %s: %w", d.Path, err)
	}
	tmp, err := os.CreateTemp(d.Path, "."+table+"-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("snapshot: create %s: %w", table, err)
	}
	return &atomicFile{f: tmp, dest: d.Location(table)}, nil
}

type atomicFile struct {
	f    *os.File
	dest string
}

func (a *atomicFile) Write(p []byte) (int, error) { return a.f.Write(p) }

func (a *atomicFile) Close() error {
	if err := a.f.Close(); err != nil {
		_ = os.Remove(a.f.Name())
		return err
	}
	if err := os.Rename(a.f.Name(), a.dest); err != nil {
		_ = os.Remove(a.f.Name())
		return fmt.Errorf("snapshot: rename into %s: %w", a.dest, err)
	}
	return nil
}

func (a *atomicFile) Abort() error {
	_ = a.f.Close()
	return os.Remove(a.f.Name())
}

var (
	_ Source  = Dir{}
	_ Sink    = Dir{}
	_ Aborter = (*atomicFile)(nil)
)
