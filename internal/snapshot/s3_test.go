package snapshot

import (
	"bytes"
	"context"
	"errors"
	"io"
	"reflect"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// fakeS3 is an in-memory bucket.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := &s3.ListObjectsV2Output{}
	for k := range f.objects {
		if strings.HasPrefix(k, aws.ToString(in.Prefix)) {
			out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
		}
	}
	return out, nil
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	b, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func TestS3_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fake := &fakeS3{objects: map[string][]byte{
		"backups/officers.json":     []byte(`[]`),
		"backups/old/officers.json": []byte(`[]`),
		"backups/readme.md":         []byte(`x`),
		"other/clubs.json":          []byte(`[]`),
	}}
	s := newS3(fake, "boosters", "backups")

	if got := s.Location("clubs"); got != "s3://boosters/backups/clubs.json" {
		t.Fatalf("Location = %q", got)
	}

	w, err := s.Create(ctx, "clubs")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	_, _ = w.Write([]byte(`[{"name":"Band"}]`))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	tables, err := s.Tables(ctx)
	if err != nil {
		t.Fatalf("Tables: %v", err)
	}
	if !reflect.DeepEqual(tables, []string{"clubs", "officers"}) {
		t.Fatalf("unexpected tables: %v", tables)
	}

	rc, err := s.Open(ctx, "clubs")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, _ := io.ReadAll(rc)
	if string(b) != `[{"name":"Band"}]` {
		t.Fatalf("unexpected body %s", b)
	}

	if _, err := s.Open(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestNewS3_RequiresBucket(t *testing.T) {
	t.Parallel()

	if _, err := NewS3(S3Options{}); err == nil {
		t.Fatalf("expected error without bucket")
	}
	s, err := NewS3(S3Options{Bucket: "b", Endpoint: "example.r2.cloudflarestorage.com", KeyID: "id", Secret: "secret"})
	if err != nil {
		t.Fatalf("NewS3: %v", err)
	}
	if s.prefix != "" || s.bucket != "b" {
		t.Fatalf("unexpected store: %+v", s)
	}
}
