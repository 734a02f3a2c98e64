package manifest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/cenkalti/backoff/v5"
)

// Document is a raw manifest and where it came from.
type Document struct {
	Name   string
	Format Format
	Data   []byte
}

// Source reads a manifest document.
type Source interface {
	Read(ctx context.Context) (*Document, error)
}

// Load reads and parses the manifest of src.
func Load(ctx context.Context, src Source) (*Manifest, error) {
	doc, err := src.Read(ctx)
	if err != nil {
		return nil, err
	}
	m, err := Parse(doc.Data, doc.Format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", doc.Name, err)
	}
	m.Source = doc.Name
	return m, nil
}

// SourceFor returns the source a manifest location names: an
// s3://bucket/key URL or a file path.
func SourceFor(location string, client S3GetObjectAPI) (Source, error) {
	if !strings.HasPrefix(location, "s3://") {
		return &FileSource{Path: location}, nil
	}
	bucket, key, err := ParseS3URL(location)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, fmt.Errorf("manifest %s: no S3 client", location)
	}
	return NewS3Source(client, bucket, key), nil
}

// =============================================================================
// File Source
// =============================================================================

// FileSource reads a manifest from disk. Format defaults to the one the
// extension names.
type FileSource struct {
	Path   string
	Format Format
}

// Read implements Source.
func (s *FileSource) Read(ctx context.Context) (*Document, error) {
	format := s.Format
	if format == "" {
		f, err := FormatOf(s.Path)
		if err != nil {
			return nil, err
		}
		format = f
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, err
	}
	return &Document{Name: s.Path, Format: format, Data: data}, nil
}

// =============================================================================
// S3 Source
// =============================================================================

// S3GetObjectAPI is the subset of *s3.Client the S3 source uses.
type S3GetObjectAPI interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads a manifest object, retrying transient failures with
// exponential backoff.
type S3Source struct {
	Client S3GetObjectAPI
	Bucket string
	Key    string

	// Format defaults to the one the key's extension names.
	Format Format

	// MaxElapsed bounds the total time spent retrying. Default: 30s.
	MaxElapsed time.Duration

	// MaxTries bounds the attempts. Zero means unbounded.
	MaxTries uint

	// BackOff overrides the retry schedule.
	BackOff backoff.BackOff

	Logger *slog.Logger
}

// NewS3Source creates a source for s3://bucket/key.
func NewS3Source(client S3GetObjectAPI, bucket, key string) *S3Source {
	return &S3Source{
		Client:     client,
		Bucket:     bucket,
		Key:        key,
		MaxElapsed: 30 * time.Second,
		Logger:     slog.Default(),
	}
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", err
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Scheme != "s3" || u.Host == "" || key == "" {
		return "", "", fmt.Errorf("invalid S3 URL %q: want s3://bucket/key", raw)
	}
	return u.Host, key, nil
}

func (s *S3Source) name() string { return "s3://" + s.Bucket + "/" + s.Key }

// Read implements Source.
func (s *S3Source) Read(ctx context.Context) (*Document, error) {
	format := s.Format
	if format == "" {
		f, err := FormatOf(s.Key)
		if err != nil {
			return nil, err
		}
		format = f
	}
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}

	attempt := 0
	fetch := func() ([]byte, error) {
		attempt++
		out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.Bucket),
			Key:    aws.String(s.Key),
		})
		if err != nil {
			var noKey *types.NoSuchKey
			var noBucket *types.NoSuchBucket
			if errors.As(err, &noKey) || errors.As(err, &noBucket) || ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			logger.Warn("manifest fetch failed", "source", s.name(), "attempt", attempt, "error", err)
			return nil, err
		}
		defer out.Body.Close()
		return io.ReadAll(out.Body)
	}

	b := s.BackOff
	if b == nil {
		b = backoff.NewExponentialBackOff()
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if s.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(s.MaxElapsed))
	}
	if s.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(s.MaxTries))
	}

	data, err := backoff.Retry(ctx, fetch, opts...)
	if err != nil {
		return nil, fmt.Errorf("fetch manifest %s: %w", s.name(), err)
	}
	logger.Debug("manifest fetched", "source", s.name(), "bytes", len(data), "attempts", attempt)
	return &Document{Name: s.name(), Format: format, Data: data}, nil
}

// S3ClientOptions configures NewS3Client.
type S3ClientOptions struct {
	// Region defaults to $AWS_REGION, then us-east-1.
	Region string

	// Endpoint overrides the S3 endpoint, e.g. for MinIO.
	Endpoint     string
	UsePathStyle bool
}

// NewS3Client creates an S3 client. Credentials come from
// $AWS_ACCESS_KEY_ID, $AWS_SECRET_ACCESS_KEY and $AWS_SESSION_TOKEN;
// without them requests are anonymous.
func NewS3Client(opts S3ClientOptions) *s3.Client {
	region := opts.Region
	if region == "" {
		region = os.Getenv("AWS_REGION")
	}
	if region == "" {
		region = "us-east-1"
	}

	o := s3.Options{
		Region:       region,
		UsePathStyle: opts.UsePathStyle,
		Credentials:  aws.AnonymousCredentials{},
	}
	if opts.Endpoint != "" {
		o.BaseEndpoint = aws.String(opts.Endpoint)
	}
	if id, secret := os.Getenv("AWS_ACCESS_KEY_ID"), os.Getenv("AWS_SECRET_ACCESS_KEY"); id != "" && secret != "" {
		creds := aws.Credentials{
			AccessKeyID:     id,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
			Source:          "Environment",
		}
		o.Credentials = aws.NewCredentialsCache(aws.CredentialsProviderFunc(func(context.Context) (aws.Credentials, error) {
			return creds, nil
		}))
	}
	return s3.New(o)
}
