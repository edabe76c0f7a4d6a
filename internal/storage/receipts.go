// Package storage keeps payment receipts in an S3 compatible bucket.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	"github.com/iliyamo/course-enrollment/internal/config"
)

// ErrUnsupportedMediaType is returned for receipts that are not a PDF or
// one of the accepted image formats.
var ErrUnsupportedMediaType = errors.New("unsupported media type")

// extensions maps the accepted receipt media types to the object suffix.
var extensions = map[string]string{
	"application/pdf": "pdf",
	"image/jpeg":      "jpg",
	"image/jpg":       "jpg",
	"image/png":       "png",
	"image/webp":      "webp",
}

// Ext returns the object suffix for mediaType.  Parameters such as
// "; charset=binary" are ignored.
func Ext(mediaType string) (string, bool) {
	mt := strings.ToLower(strings.TrimSpace(mediaType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	ext, ok := extensions[mt]
	return ext, ok
}

// Key builds the object key of one upload attempt.  Attempts never share a
// key, so deleting the object of a failed attempt cannot remove the receipt
// a concurrent attempt for the same reservation committed.
func Key(prefix, reservationID, attempt, mediaType string) (string, error) {
	ext, ok := Ext(mediaType)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMediaType, mediaType)
	}
	if attempt == "" {
		return "", errors.New("empty upload attempt id")
	}
	return path.Join(prefix, reservationID, "receipt-"+attempt+"."+ext), nil
}

// ObjectAPI is the subset of *s3.Client used by the store.
type ObjectAPI interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Presigner is the subset of *s3.PresignClient used by the store.
type Presigner interface {
	PresignGetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// S3ReceiptStore stores receipts under
// {prefix}/{reservationID}/receipt-{attempt}.{ext}.
type S3ReceiptStore struct {
	api        ObjectAPI
	presign    Presigner
	bucket     string
	prefix     string
	urlTTL     time.Duration
	newAttempt func() string
}

// NewS3ReceiptStore wires a store around already built clients.
func NewS3ReceiptStore(api ObjectAPI, presign Presigner, bucket, prefix string, urlTTL time.Duration) *S3ReceiptStore {
	if urlTTL <= 0 {
		urlTTL = time.Hour
	}
	return &S3ReceiptStore{
		api:        api,
		presign:    presign,
		bucket:     bucket,
		prefix:     prefix,
		urlTTL:     urlTTL,
		newAttempt: uuid.NewString,
	}
}

// NewFromConfig loads AWS credentials from the default chain and builds
// the S3 clients.  A custom endpoint enables MinIO and similar stores.
func NewFromConfig(ctx context.Context, cfg config.StorageConfig) (*S3ReceiptStore, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})
	return NewS3ReceiptStore(client, s3.NewPresignClient(client), cfg.Bucket, cfg.Prefix, cfg.URLTTL), nil
}

// Put uploads body for reservationID under a fresh key and returns it; the
// reservation stores that key as its receipt reference.
func (s *S3ReceiptStore) Put(ctx context.Context, reservationID, mediaType string, body io.Reader, size int64) (string, error) {
	key, err := Key(s.prefix, reservationID, s.newAttempt(), mediaType)
	if err != nil {
		return "", err
	}
	in := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(mediaType),
	}
	if size > 0 {
		in.ContentLength = aws.Int64(size)
	}
	if _, err := s.api.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put %s: %w", key, err)
	}
	return key, nil
}

// Delete removes the object behind ref.  Deleting a missing key succeeds.
func (s *S3ReceiptStore) Delete(ctx context.Context, ref string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", ref, err)
	}
	return nil
}

// SignedURL issues a short lived GET URL for ref and reports when it expires.
func (s *S3ReceiptStore) SignedURL(ctx context.Context, ref string) (string, time.Time, error) {
	expires := time.Now().Add(s.urlTTL)
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	}, func(po *s3.PresignOptions) {
		po.Expires = s.urlTTL
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("presign %s: %w", ref, err)
	}
	return req.URL, expires, nil
}
