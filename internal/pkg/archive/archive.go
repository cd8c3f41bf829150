package archive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/MemoWindow/internal/pkg/config"
	"github.com/ManuelReschke/MemoWindow/internal/pkg/payment"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gofiber/fiber/v2/log"
)

// ErrDisabled is returned by New when archiving is switched off.
var ErrDisabled = errors.New("event archive is disabled")

type objectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archive stores verified webhook payloads in an S3 compatible bucket.
type Archive struct {
	client objectPutter
	bucket string
}

// New creates the S3 client for the configured bucket.
func New(ctx context.Context, cfg config.ArchiveConfig) (*Archive, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	awsConfig, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"",
		)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsConfig, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			// B2, MinIO and friends want path-style URLs
			o.UsePathStyle = true
		}
	})

	log.Infof("[Archive] Archiving webhook events to bucket %s", cfg.BucketName)
	return &Archive{client: client, bucket: cfg.BucketName}, nil
}

// ObjectKey is events/YYYY/MM/DD/<event id>.json, dated by the signing time.
func ObjectKey(ev *payment.VerifiedEvent) string {
	at := ev.SignedAt
	if at.IsZero() && ev.Created > 0 {
		at = time.Unix(ev.Created, 0)
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC()
	return fmt.Sprintf("events/%04d/%02d/%02d/%s.json", at.Year(), int(at.Month()), at.Day(), ev.ID)
}

// Archive uploads the raw payload. Redeliveries overwrite the same key.
func (a *Archive) Archive(ctx context.Context, ev *payment.VerifiedEvent) error {
	if ev == nil || ev.ID == "" {
		return errors.New("event without id cannot be archived")
	}
	key := ObjectKey(ev)
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(a.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(ev.Payload),
		ContentType:   aws.String("application/json"),
		ContentLength: aws.Int64(int64(len(ev.Payload))),
		Metadata: map[string]string{
			"event-type":    ev.Type,
			"upload-source": "memowindow-webhook",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to archive event %s: %w", ev.ID, err)
	}
	log.Debugf("[Archive] Stored s3://%s/%s", a.bucket, key)
	return nil
}
