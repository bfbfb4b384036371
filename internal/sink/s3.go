package sink

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strconv"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"

	"github.com/dudu/biokiosk/internal/capture"
	"github.com/dudu/biokiosk/internal/logging"
)

type uploader interface {
	UploadWithContext(ctx aws.Context, input *s3manager.UploadInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Config locates the capture bucket. Empty credentials fall back to the
// SDK's default chain.
type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Prefix          string
}

// S3Sink uploads captures to a bucket
type S3Sink struct {
	uploader uploader
	bucket   string
	prefix   string
}

// NewS3Sink opens an AWS session for the bucket
func NewS3Sink(cfg S3Config) (*S3Sink, error) {
	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKeyID != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}
	return newS3Sink(s3manager.NewUploader(sess), cfg.Bucket, cfg.Prefix), nil
}

func newS3Sink(u uploader, bucket, prefix string) *S3Sink {
	return &S3Sink{uploader: u, bucket: bucket, prefix: prefix}
}

// Key returns the object key for an artifact
func (s *S3Sink) Key(a *capture.Artifact) string {
	return path.Join(s.prefix, BaseName(a)+".png")
}

// Consume implements capture.Consumer
func (s *S3Sink) Consume(ctx context.Context, a *capture.Artifact) error {
	key := s.Key(a)
	out, err := s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(a.PNG()),
		ContentType: aws.String("image/png"),
		Metadata: map[string]*string{
			"Artifact-Id": aws.String(a.ID().String()),
			"Style":       aws.String(a.Style().String()),
			"Masked":      aws.String(strconv.FormatBool(a.Masked())),
			"Fallback":    aws.String(strconv.FormatBool(a.Fallback())),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	logging.Info(logging.Fields{"artifact": a.ID().String(), "location": out.Location}, "[sink.S3Sink] uploaded")
	return nil
}
