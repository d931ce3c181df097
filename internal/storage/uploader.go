// Package storage ships admitted vehicle crops to S3.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// jpegQuality keeps plate detail readable for downstream OCR.
const jpegQuality = 95

// ObjectPutter is the slice of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Uploader encodes crops as JPEG and writes them under a per-camera
// key prefix.
type S3Uploader struct {
	client   ObjectPutter
	bucket   string
	prefix   string
	cameraID string
}

// NewS3Uploader creates an uploader for the given bucket. prefix may be
// empty; a trailing slash is added when missing.
func NewS3Uploader(client ObjectPutter, bucket, prefix, cameraID string) *S3Uploader {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Uploader{
		client:   client,
		bucket:   bucket,
		prefix:   prefix,
		cameraID: cameraID,
	}
}

// Forward encodes img and uploads it keyed by capture time. Returns the
// object key on success.
func (u *S3Uploader) Forward(ctx context.Context, img image.Image, when time.Time) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return "", fmt.Errorf("failed to encode capture: %w", err)
	}

	key := u.ObjectKey(when)
	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(buf.Bytes()),
		ContentType: aws.String("image/jpeg"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return key, nil
}

// ObjectKey builds the storage key for a capture at time t:
// <prefix><cameraID>/<cameraID>_<UTC timestamp to the millisecond>.jpg.
// Colons are avoided so the key stays filesystem-safe when synced.
func (u *S3Uploader) ObjectKey(t time.Time) string {
	utc := t.UTC()
	ts := fmt.Sprintf("%s-%03d", utc.Format("2006-01-02T15-04-05"), utc.Nanosecond()/1e6)
	return fmt.Sprintf("%s%s/%s_%s.jpg", u.prefix, u.cameraID, u.cameraID, ts)
}
