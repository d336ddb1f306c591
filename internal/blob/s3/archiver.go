// Package s3blob archives trade-ledger snapshots to an S3-compatible
// object store (AWS S3, MinIO, R2). Archival is cold storage for
// reporting history; the engine never reads it back.
package s3blob

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dkovacs/screenerbot/internal/domain"
)

// minPartSize is the S3 multipart minimum (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// ClientConfig holds object-store connection parameters. Endpoint may be
// left empty for standard AWS S3; S3-compatible providers set it plus
// ForcePathStyle.
type ClientConfig struct {
	Endpoint       string
	Region         string
	Bucket         string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	ForcePathStyle bool
}

// Archiver uploads ledger snapshots to one bucket.
type Archiver struct {
	s3c    *s3.Client
	bucket string
	logger *slog.Logger
}

// NewArchiver creates an Archiver from the given configuration.
func NewArchiver(ctx context.Context, cfg ClientConfig, logger *slog.Logger) (*Archiver, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3blob: bucket name is required")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("s3blob: region is required")
	}

	creds := credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithRegion(cfg.Region),
		config.WithCredentialsProvider(creds),
	)
	if err != nil {
		return nil, fmt.Errorf("s3blob: load aws config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		endpoint := normaliseEndpoint(cfg.Endpoint, cfg.UseSSL)
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
		})
	}
	if cfg.ForcePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Archiver{
		s3c:    s3.NewFromConfig(awsCfg, s3Opts...),
		bucket: cfg.Bucket,
		logger: logger.With(slog.String("component", "ledger_archiver")),
	}, nil
}

// Health performs a HeadBucket call to verify connectivity and permissions.
func (a *Archiver) Health(ctx context.Context) error {
	_, err := a.s3c.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(a.bucket)})
	if err != nil {
		return fmt.Errorf("s3blob: health check failed for bucket %s: %w", a.bucket, err)
	}
	return nil
}

// ArchiveLedger uploads the records as a dated CSV snapshot under
// ledger/<portfolio>/ and returns the object key. Large snapshots go
// through the multipart upload manager.
func (a *Archiver) ArchiveLedger(ctx context.Context, portfolio string, records []domain.TradeRecord) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write([]string{
		"id", "symbol", "strategy", "side", "quantity",
		"entry_date", "entry_price", "exit_date", "exit_price",
		"return_pct", "exit_reason", "holding_days",
	})
	for _, rec := range records {
		_ = w.Write([]string{
			rec.ID, rec.Symbol, rec.Strategy, string(rec.Side),
			strconv.FormatFloat(rec.Quantity, 'f', -1, 64),
			rec.EntryDate.UTC().Format(time.RFC3339),
			strconv.FormatFloat(rec.EntryPrice, 'f', -1, 64),
			rec.ExitDate.UTC().Format(time.RFC3339),
			strconv.FormatFloat(rec.ExitPrice, 'f', -1, 64),
			strconv.FormatFloat(rec.ReturnPct, 'f', -1, 64),
			rec.ExitReason, strconv.Itoa(rec.HoldingDays),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return "", fmt.Errorf("s3blob: encode ledger snapshot: %w", err)
	}

	key := fmt.Sprintf("ledger/%s/trades-%s.csv", portfolio, time.Now().UTC().Format("20060102T150405Z"))

	if int64(buf.Len()) >= minPartSize {
		uploader := manager.NewUploader(a.s3c, func(u *manager.Uploader) {
			u.PartSize = minPartSize
		})
		if _, err := uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket: aws.String(a.bucket),
			Key:    aws.String(key),
			Body:   &buf,
		}); err != nil {
			return "", fmt.Errorf("s3blob: multipart upload %s: %w", key, err)
		}
	} else {
		if _, err := a.s3c.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(a.bucket),
			Key:         aws.String(key),
			Body:        &buf,
			ContentType: aws.String("text/csv"),
		}); err != nil {
			return "", fmt.Errorf("s3blob: put object %s: %w", key, err)
		}
	}

	a.logger.Info("ledger snapshot archived",
		slog.String("portfolio", portfolio),
		slog.String("key", key),
		slog.Int("records", len(records)),
	)
	return key, nil
}

// normaliseEndpoint ensures the endpoint has a scheme.
func normaliseEndpoint(endpoint string, useSSL bool) string {
	parsed, err := url.Parse(endpoint)
	if err == nil && parsed.Scheme != "" {
		return endpoint
	}
	scheme := "http"
	if useSSL {
		scheme = "https"
	}
	return scheme + "://" + endpoint
}

// Compile-time interface check.
var _ domain.LedgerArchiver = (*Archiver)(nil)
