package archive

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("github.com/platinummonkey/plughost/pkg/archive")

// Backup keeps a copy of every raw archive installed on the host
type Backup interface {
	// Save stores the archive for a plugin id, replacing any previous copy
	Save(ctx context.Context, id string, data []byte) error

	// Remove deletes the archive of a plugin id. Missing copies are not an error.
	Remove(ctx context.Context, id string) error
}

// FilesystemBackup stores archives as {dir}/{id}.zip
type FilesystemBackup struct {
	dir string
}

// NewFilesystemBackup creates the backup directory if needed
func NewFilesystemBackup(dir string) (*FilesystemBackup, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}
	return &FilesystemBackup{dir: dir}, nil
}

// Save implements Backup
func (b *FilesystemBackup) Save(ctx context.Context, id string, data []byte) error {
	target, err := b.path(id)
	if err != nil {
		return err
	}

	tmp := target + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if err := os.Rename(tmp, target); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write backup: %w", err)
	}
	return nil
}

// Remove implements Backup
func (b *FilesystemBackup) Remove(ctx context.Context, id string) error {
	target, err := b.path(id)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to remove backup: %w", err)
	}
	return nil
}

func (b *FilesystemBackup) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.HasPrefix(id, ".") {
		return "", fmt.Errorf("invalid backup id %q", id)
	}
	return filepath.Join(b.dir, id+".zip"), nil
}

// S3Config configures the S3 backup
type S3Config struct {
	Bucket       string
	Region       string
	Prefix       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

// s3API is the subset of the S3 client used for backups
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// S3Backup stores archives as objects {prefix}/{id}.zip
type S3Backup struct {
	client s3API
	bucket string
	prefix string
}

// NewS3Backup creates an S3 backup.
// Static credentials are used when both keys are set, the default AWS chain otherwise.
func NewS3Backup(ctx context.Context, cfg S3Config) (*S3Backup, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	return newS3Backup(client, cfg.Bucket, cfg.Prefix), nil
}

func newS3Backup(client s3API, bucket, prefix string) *S3Backup {
	return &S3Backup{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

// Save implements Backup
func (b *S3Backup) Save(ctx context.Context, id string, data []byte) error {
	key := b.key(id)
	ctx, span := tracer.Start(ctx, "S3Backup.Save",
		trace.WithAttributes(
			attribute.String("s3.bucket", b.bucket),
			attribute.String("s3.key", key),
			attribute.Int("content.size", len(data)),
		),
	)
	defer span.End()

	hash := sha256.Sum256(data)
	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/zip"),
		Metadata: map[string]string{
			"checksum-sha256": hex.EncodeToString(hash[:]),
			"plugin-id":       id,
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to upload archive")
		return fmt.Errorf("failed to upload archive to s3: %w", err)
	}

	span.SetStatus(codes.Ok, "archive uploaded")
	return nil
}

// Remove implements Backup
func (b *S3Backup) Remove(ctx context.Context, id string) error {
	key := b.key(id)
	ctx, span := tracer.Start(ctx, "S3Backup.Remove",
		trace.WithAttributes(
			attribute.String("s3.bucket", b.bucket),
			attribute.String("s3.key", key),
		),
	)
	defer span.End()

	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to delete archive")
		return fmt.Errorf("failed to delete archive from s3: %w", err)
	}
	return nil
}

func (b *S3Backup) key(id string) string {
	if b.prefix == "" {
		return id + ".zip"
	}
	return path.Join(b.prefix, id+".zip")
}
