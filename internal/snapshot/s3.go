package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// s3API is the subset of *s3.Client used here.
type s3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Options configure an S3-compatible snapshot store.
type S3Options struct {
	Bucket   string
	Prefix   string
	Endpoint string
	Region   string
	KeyID    string
	Secret   string
}

// S3 stores snapshots as <prefix><table>.json objects.
type S3 struct {
	client s3API
	bucket string
	prefix string
}

// NewS3 builds a client with static credentials. Path-style addressing is
// used whenever a custom endpoint is set (R2, MinIO, Hetzner).
func NewS3(opts S3Options) (*S3, error) {
	if opts.Bucket == "" {
		return nil, fmt.Errorf("snapshot: S3 bucket is required")
	}
	region := opts.Region
	if region == "" {
		region = "auto"
	}

	s3opts := s3.Options{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(opts.KeyID, opts.Secret, ""),
	}
	if opts.Endpoint != "" {
		endpoint := opts.Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3opts.BaseEndpoint = aws.String(endpoint)
		s3opts.UsePathStyle = true
	}

	return newS3(s3.New(s3opts), opts.Bucket, opts.Prefix), nil
}

func newS3(client s3API, bucket, prefix string) *S3 {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3) key(table string) string { return s.prefix + table + Ext }

func (s *S3) Location(table string) string {
	return "s3://" + s.bucket + "/" + s.key(table)
}

// Tables lists <prefix>*.json objects directly under the prefix.
func (s *S3) Tables(ctx context.Context) ([]string, error) {
	p := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(s.prefix),
	})

	var out []string
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("snapshot: list s3://%s/%s: %w", s.bucket, s.prefix, err)
		}
		for _, obj := range page.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if strings.Contains(rel, "/") {
				continue
			}
			if t := tableFromName(path.Base(rel)); t != "" {
				out = append(out, t)
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *S3) Open(ctx context.Context, table string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(table)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.Location(table))
		}
		return nil, fmt.Errorf("snapshot: get %s: %w", s.Location(table), err)
	}
	return out.Body, nil
}

// Create buffers the snapshot in memory and uploads it on Close.
func (s *S3) Create(ctx context.Context, table string) (io.WriteCloser, error) {
	return &s3Upload{ctx: ctx, s: s, table: table}, nil
}

type s3Upload struct {
	ctx   context.Context
	s     *S3
	table string
	buf   bytes.Buffer
}

func (u *s3Upload) Write(p []byte) (int, error) { return u.buf.Write(p) }

func (u *s3Upload) Close() error {
	_, err := u.s.client.PutObject(u.ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.s.bucket),
		Key:         aws.String(u.s.key(u.table)),
		Body:        bytes.NewReader(u.buf.Bytes()),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("snapshot: put %s: %w", u.s.Location(u.table), err)
	}
	return nil
}

func (u *s3Upload) Abort() error {
	u.buf.Reset()
	return nil
}

var (
	_ Source  = (*S3)(nil)
	_ Sink    = (*S3)(nil)
	_ Aborter = (*s3Upload)(nil)
)
