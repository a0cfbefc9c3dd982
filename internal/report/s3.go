package report

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"
)

const s3Scheme = "s3://"

// S3Options configures the S3 client. Empty fields fall back to the
// standard AWS environment and shared config.
type S3Options struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

// PutObjectAPI is the subset of the S3 client the sink needs.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the artifact as a single object.
type S3Sink struct {
	client   PutObjectAPI
	bucket   string
	key      string
	encoding Encoding
	logger   *zap.Logger
}

// ParseS3URL splits s3://bucket/key.
func ParseS3URL(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil || u.Scheme != "s3" {
		return "", "", fmt.Errorf("report: invalid s3 location %q", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return "", "", fmt.Errorf("report: s3 location %q needs a bucket and a key", location)
	}
	return u.Host, key, nil
}

// NewS3Sink builds an S3 client from opts and returns a sink for location.
func NewS3Sink(ctx context.Context, location string, opts S3Options, logger *zap.Logger) (*S3Sink, error) {
	bucket, key, err := ParseS3URL(location)
	if err != nil {
		return nil, err
	}

	var loadOpts []func(*config.LoadOptions) error
	if opts.Region != "" {
		loadOpts = append(loadOpts, config.WithRegion(opts.Region))
	}
	if opts.AccessKey != "" && opts.SecretKey != "" {
		creds := credentials.NewStaticCredentialsProvider(opts.AccessKey, opts.SecretKey, "")
		loadOpts = append(loadOpts, config.WithCredentialsProvider(creds))
	}

	cfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("report: load aws config: %w", err)
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.UsePathStyle = opts.PathStyle
	})

	return newS3Sink(client, bucket, key, logger), nil
}

func newS3Sink(client PutObjectAPI, bucket, key string, logger *zap.Logger) *S3Sink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &S3Sink{
		client:   client,
		bucket:   bucket,
		key:      key,
		encoding: EncodingFor(key),
		logger:   logger,
	}
}

// Location returns the s3:// URL.
func (s *S3Sink) Location() string { return s3Scheme + s.bucket + "/" + s.key }

// Write uploads the encoded artifact.
func (s *S3Sink) Write(ctx context.Context, a *Artifact) error {
	data, err := a.Marshal()
	if err != nil {
		return err
	}
	body, err := Encode(s.encoding, data)
	if err != nil {
		return err
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String("application/json"),
	}
	if ce := s.encoding.ContentEncoding(); ce != "" {
		input.ContentEncoding = aws.String(ce)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		s.logger.Error("artifact upload failed",
			zap.String("bucket", s.bucket),
			zap.String("key", s.key),
			zap.Error(err))
		return fmt.Errorf("report: put s3://%s/%s: %w", s.bucket, s.key, err)
	}

	s.logger.Info("artifact uploaded",
		zap.String("bucket", s.bucket),
		zap.String("key", s.key),
		zap.Int("bytes", len(body)),
		zap.String("run_id", a.RunID.String()),
	)
	return nil
}
