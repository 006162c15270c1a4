package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"

	"github.com/world-gallery/internal/config"
	"github.com/world-gallery/internal/domain"
)

// Presigner turns stored world file locations into short-lived download links
type Presigner struct {
	svc    *s3.S3
	config *config.StorageConfig
	logger *slog.Logger
}

// NewPresigner creates an S3 client from the default credential chain.
// When storage is disabled the returned Presigner reports ErrStorageNotAvailable.
func NewPresigner(cfg *config.StorageConfig, logger *slog.Logger) (*Presigner, error) {
	if !cfg.Enabled {
		return &Presigner{config: cfg, logger: logger}, nil
	}

	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.ForcePathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("creating AWS session: %w", err)
	}
	return NewPresignerWithSession(sess, cfg, logger), nil
}

// NewPresignerWithSession wraps an existing AWS session
func NewPresignerWithSession(sess *session.Session, cfg *config.StorageConfig, logger *slog.Logger) *Presigner {
	return &Presigner{
		svc:    s3.New(sess),
		config: cfg,
		logger: logger,
	}
}

// Enabled reports whether downloads can be presigned
func (p *Presigner) Enabled() bool {
	return p != nil && p.svc != nil
}

// ParseObjectURL splits an s3://bucket/key location
func ParseObjectURL(raw string) (bucket, key string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("parsing object url: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("%w: not an s3 location", domain.ErrInvalidRequest)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("%w: missing object key", domain.ErrInvalidRequest)
	}
	return u.Host, key, nil
}

// IsObjectURL reports whether the location points into object storage
func IsObjectURL(raw string) bool {
	return strings.HasPrefix(raw, "s3://")
}

// PresignURL returns a download link for a world file. Plain http(s)
// locations are returned unchanged.
func (p *Presigner) PresignURL(ctx context.Context, fileURL string) (string, error) {
	if !IsObjectURL(fileURL) {
		return fileURL, nil
	}
	if !p.Enabled() {
		return "", domain.ErrStorageNotAvailable
	}

	bucket, key, err := ParseObjectURL(fileURL)
	if err != nil {
		return "", err
	}
	bucket = p.config.BucketPrefix + bucket

	req, _ := p.svc.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	req.SetContext(ctx)

	signed, err := req.Presign(p.config.PresignTTL)
	if err != nil {
		return "", fmt.Errorf("presigning %s/%s: %w", bucket, key, err)
	}

	p.logger.Debug("presigned world download", "bucket", bucket, "key", key)
	return signed, nil
}
