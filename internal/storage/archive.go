package storage

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3API is the subset of the S3 client the archiver uses.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver copies analytics exports to an S3 bucket.
type Archiver struct {
	client S3API
	bucket string
	now    func() time.Time
}

// NewArchiver creates an archiver on an existing client.
func NewArchiver(client S3API, bucket string) *Archiver {
	return &Archiver{client: client, bucket: bucket, now: time.Now}
}

// NewArchiverFromConfig creates an archiver with a client built from cfg.
func NewArchiverFromConfig(cfg aws.Config, bucket string) *Archiver {
	return NewArchiver(s3.NewFromConfig(cfg), bucket)
}

// Archive uploads an export and returns its object key,
// exports/<instance>/<timestamp>.<format>.
func (a *Archiver) Archive(ctx context.Context, instance, format string, body []byte) (string, error) {
	key := fmt.Sprintf("exports/%s/%s.%s", instance, a.now().UTC().Format("20060102T150405Z"), format)
	contentType := "application/json"
	if format == "csv" {
		contentType = "text/csv"
	}
	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("putting object to S3: %w", err)
	}
	return key, nil
}
