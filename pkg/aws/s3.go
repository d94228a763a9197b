package aws

import (
	"bytes"
	"context"
	"fmt"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ObjectUploader stores a blob and returns its location.
type ObjectUploader interface {
	Upload(ctx context.Context, key, contentType string, body []byte) (string, error)
}

// S3Uploader writes objects to a single bucket using the multipart-aware
// upload manager.
type S3Uploader struct {
	uploader *manager.Uploader
	bucket   string
}

func NewS3Uploader(cfg sdkaws.Config, bucket string) *S3Uploader {
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		// LocalStack does not serve virtual-host style buckets.
		o.UsePathStyle = endpointOverride() != ""
	})
	return &S3Uploader{uploader: manager.NewUploader(client), bucket: bucket}
}

func (u *S3Uploader) Upload(ctx context.Context, key, contentType string, body []byte) (string, error) {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      sdkaws.String(u.bucket),
		Key:         sdkaws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: sdkaws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", u.bucket, key, err)
	}
	return fmt.Sprintf("s3://%s/%s", u.bucket, key), nil
}
