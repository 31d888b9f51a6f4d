package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/teetime/backend/internal/config"
	"github.com/teetime/backend/internal/models"
)

// ArchivedRequest is the JSON document written for every purged request row.
type ArchivedRequest struct {
	Request    models.ConnectionRequest `json:"request"`
	Reason     string                   `json:"reason"`
	ArchivedAt time.Time                `json:"archivedAt"`
}

// Uploader is the part of manager.Uploader the archive needs.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Archive keeps a copy of connection request rows before they are purged
// from the database.
type S3Archive struct {
	uploader Uploader
	bucket   string
	prefix   string
	now      func() time.Time
}

// NewS3Archive configures an uploader targeting the provided object store.
func NewS3Archive(ctx context.Context, cfg config.ArchiveConfig) (*S3Archive, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 archive: bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = true
		if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})

	return NewS3ArchiveWithUploader(manager.NewUploader(client), cfg.Bucket, cfg.Prefix), nil
}

// NewS3ArchiveWithUploader builds an archive around an existing uploader.
func NewS3ArchiveWithUploader(uploader Uploader, bucket, prefix string) *S3Archive {
	if prefix == "" {
		prefix = "connection-requests"
	}
	return &S3Archive{
		uploader: uploader,
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Archive uploads the row under <prefix>/<yyyy>/<mm>/<request id>.json.
func (a *S3Archive) Archive(ctx context.Context, request models.ConnectionRequest, reason string) error {
	now := a.now()
	body, err := json.Marshal(ArchivedRequest{Request: request, Reason: reason, ArchivedAt: now})
	if err != nil {
		return fmt.Errorf("s3 archive: marshal %s: %w", request.ID, err)
	}

	key := path.Join(a.prefix, now.Format("2006/01"), request.ID+".json")
	_, err = a.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("s3 archive upload %s: %w", key, err)
	}
	return nil
}
