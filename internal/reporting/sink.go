package reporting

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"github.com/FairForge/loginramp/internal/loadtest"
)

// Sink stores one rendered report.
type Sink interface {
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// DirSink writes reports into a local directory.
type DirSink struct {
	Dir string
}

// Put writes data to Dir/name and returns the file path.
func (s DirSink) Put(_ context.Context, name string, data []byte, _ string) (string, error) {
	if err := os.MkdirAll(s.Dir, 0750); err != nil {
		return "", fmt.Errorf("report: create dir: %w", err)
	}
	p := filepath.Join(s.Dir, name)
	if err := os.WriteFile(p, data, 0600); err != nil {
		return "", fmt.Errorf("report: write %s: %w", p, err)
	}
	return p, nil
}

// S3API is the part of the S3 client the sink needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 sink.
type S3Config struct {
	Bucket    string
	Prefix    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// S3Sink uploads reports to an S3-compatible bucket.
type S3Sink struct {
	client S3API
	bucket string
	prefix string
}

// NewS3Sink wraps an existing client.
func NewS3Sink(client S3API, bucket, prefix string) *S3Sink {
	return &S3Sink{client: client, bucket: bucket, prefix: strings.Trim(prefix, "/")}
}

// NewS3SinkFromConfig builds an S3 client from cfg. Static keys are used when
// given, otherwise the default AWS credential chain applies.
func NewS3SinkFromConfig(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("report: s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("report: load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return NewS3Sink(client, cfg.Bucket, cfg.Prefix), nil
}

func (s *S3Sink) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Put uploads data and returns its s3:// location.
func (s *S3Sink) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	key := s.key(name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("report: put object %s: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", s.bucket, key), nil
}

// Publisher renders a run in every configured format and stores each
// rendering in every sink.
type Publisher struct {
	generator *Generator
	formats   []string
	sinks     []Sink
	logger    *zap.Logger
}

// NewPublisher creates a publisher. Files are always rendered without color.
func NewPublisher(formats []string, logger *zap.Logger, sinks ...Sink) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{
		generator: NewGenerator(false),
		formats:   formats,
		sinks:     sinks,
		logger:    logger,
	}
}

// FileName is the base name of the report for run in format.
func FileName(run *loadtest.TestRun, format string) string {
	stamp := run.StartTime.UTC().Format("20060102T150405Z")
	return fmt.Sprintf("loginramp-%s-%s.%s", stamp, shortID(run.ID), Extension(format))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// Publish stores every rendering and returns the locations written. A
// failing sink does not stop the others; all errors are joined.
func (p *Publisher) Publish(ctx context.Context, run *loadtest.TestRun) ([]string, error) {
	var (
		locations []string
		errs      []error
	)
	for _, format := range p.formats {
		data, err := p.generator.Export(run, format)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		name := FileName(run, format)
		for _, sink := range p.sinks {
			loc, err := sink.Put(ctx, name, data, ContentType(format))
			if err != nil {
				p.logger.Error("failed to store report", zap.String("name", name), zap.Error(err))
				errs = append(errs, err)
				continue
			}
			p.logger.Info("report written", zap.String("location", loc))
			locations = append(locations, loc)
		}
	}
	return locations, errors.Join(errs...)
}
