// Package s3 provides an archive backend that uploads published files to an
// S3-compatible bucket (AWS, MinIO, Ceph RGW).
//
//	archive "s3" {
//	  bucket     = "battle-reports"
//	  endpoint   = "http://127.0.0.1:9000"
//	  path_style = true
//	  access_key = env.S3_ACCESS_KEY
//	  secret_key = env.S3_SECRET_KEY
//	}
//
// Without access_key the standard AWS credential chain is used (environment,
// shared profiles, instance roles). Set anonymous = true for public buckets.
package s3

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/specialistvlad/dungeonjob/internal/archive"
	"github.com/specialistvlad/dungeonjob/internal/ctxlog"
	"github.com/specialistvlad/dungeonjob/internal/registry"
)

// DefaultRegion is used when the block does not name one.
const DefaultRegion = "us-east-1"

// Module implements the registry.Module interface for this package.
type Module struct{}

// Input defines the body of an `archive "s3"` block.
type Input struct {
	Bucket    string `hcl:"bucket"`
	Region    string `hcl:"region,optional"`
	Endpoint  string `hcl:"endpoint,optional"`
	PathStyle bool   `hcl:"path_style,optional"`
	AccessKey string `hcl:"access_key,optional"`
	SecretKey string `hcl:"secret_key,optional"`
	// Anonymous sends unsigned requests. It cannot be combined with keys.
	Anonymous bool `hcl:"anonymous,optional"`
	// Prefix is prepended to every object key.
	Prefix string `hcl:"prefix,optional"`
	// PartSizeMB switches large objects to multipart uploads of this size.
	PartSizeMB int64 `hcl:"part_size_mb,optional"`
}

// Store uploads objects with the S3 transfer manager.
type Store struct {
	bucket   string
	prefix   string
	uploader *manager.Uploader
}

var _ archive.Store = (*Store)(nil)

// NewClient builds an S3 client from the block settings on top of the default
// AWS configuration. Static keys override the credential chain.
func NewClient(ctx context.Context, in *Input) (*s3.Client, error) {
	if in.Anonymous && in.AccessKey != "" {
		return nil, fmt.Errorf("s3 archive: anonymous cannot be combined with access_key")
	}
	var opts []func(*config.LoadOptions) error
	if in.Region != "" {
		opts = append(opts, config.WithRegion(in.Region))
	}
	if in.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(in.AccessKey, in.SecretKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}
	if cfg.Region == "" {
		cfg.Region = DefaultRegion
	}
	return s3.NewFromConfig(cfg, func(o *s3.Options) {
		if in.Endpoint != "" {
			o.BaseEndpoint = aws.String(in.Endpoint)
		}
		o.UsePathStyle = in.PathStyle
		if in.Anonymous {
			o.Credentials = aws.AnonymousCredentials{}
		}
	}), nil
}

// New builds a Store over an existing client.
func New(client manager.UploadAPIClient, bucket, prefix string, partSizeMB int64) (*Store, error) {
	if bucket == "" {
		return nil, fmt.Errorf("s3 archive: bucket must not be empty")
	}
	uploader := manager.NewUploader(client, func(u *manager.Uploader) {
		if partSizeMB > 0 {
			u.PartSize = partSizeMB * 1024 * 1024
		}
	})
	return &Store{bucket: bucket, prefix: prefix, uploader: uploader}, nil
}

// Put implements archive.Store.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) error {
	objectKey := key
	if s.prefix != "" {
		objectKey = path.Join(s.prefix, key)
	}
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey),
		Body:   bytes.NewReader(data),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := s.uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("failed to upload 's3://%s/%s': %w", s.bucket, objectKey, err)
	}
	ctxlog.FromContext(ctx).Debug("Uploaded object to S3.", "bucket", s.bucket, "key", objectKey, "size", len(data))
	return nil
}

// Register registers the backend with the registry.
func (m *Module) Register(r *registry.Registry) {
	r.RegisterArchive("s3", &registry.ArchiveFactory{
		NewInput: func() any { return new(Input) },
		Create: func(ctx context.Context, input any) (archive.Store, error) {
			in := input.(*Input)
			ctxlog.FromContext(ctx).Debug("S3 archive configured.", "bucket", in.Bucket, "endpoint", in.Endpoint, "path_style", in.PathStyle, "anonymous", in.Anonymous)
			client, err := NewClient(ctx, in)
			if err != nil {
				return nil, err
			}
			return New(client, in.Bucket, in.Prefix, in.PartSizeMB)
		},
	})
}
