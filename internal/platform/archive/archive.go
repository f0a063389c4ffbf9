// Package archive stores audit entries outside the database before retention deletes them.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/SscSPs/fin_model_app/internal/core/domain"
)

// Archiver persists a batch of audit entries.
type Archiver interface {
	ArchiveAuditEntries(ctx context.Context, entries []domain.AuditLogEntry) (string, error)
}

// S3Config holds the archive bucket settings.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional, for S3 compatible stores such as MinIO
	PathStyle bool
}

// S3Archiver writes each batch as one JSON object.
type S3Archiver struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

// NewS3Archiver creates an archiver using the default AWS credential chain.
func NewS3Archiver(ctx context.Context, cfg S3Config) (*S3Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}
	return newS3Archiver(awsCfg, cfg), nil
}

func newS3Archiver(awsCfg aws.Config, cfg S3Config) *S3Archiver {
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.PathStyle {
			o.UsePathStyle = true
		}
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	})
	return &S3Archiver{client: client, bucket: cfg.Bucket, now: time.Now}
}

// ArchiveAuditEntries uploads entries and returns the object key.
func (a *S3Archiver) ArchiveAuditEntries(ctx context.Context, entries []domain.AuditLogEntry) (string, error) {
	if len(entries) == 0 {
		return "", nil
	}
	body, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("failed to encode audit archive: %w", err)
	}
	key := ObjectKey(a.now(), entries)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload audit archive %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey names a batch by archive date and its id range.
func ObjectKey(at time.Time, entries []domain.AuditLogEntry) string {
	first, last := entries[0].ID, entries[0].ID
	for _, e := range entries[1:] {
		first = min(first, e.ID)
		last = max(last, e.ID)
	}
	return fmt.Sprintf("audit/%s/%d-%d.json", at.UTC().Format("2006/01/02"), first, last)
}

// Noop discards entries. Used when no bucket is configured.
type Noop struct{}

func (Noop) ArchiveAuditEntries(context.Context, []domain.AuditLogEntry) (string, error) {
	return "", nil
}
