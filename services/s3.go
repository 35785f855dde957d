package services

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path"

	"documentgenerator/config"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3Service fetches s3:// sources and keeps an archive copy of every
// converted PDF.
type S3Service struct {
	session    *session.Session
	bucket     string
	prefix     string
	downloader *s3manager.Downloader
	uploader   *s3manager.Uploader
}

// NewS3Service returns nil when no bucket is configured. Every S3 request is
// bounded by REQUEST_TIMEOUT, like the worker's other outbound calls.
func NewS3Service(cfg *config.Config) (*S3Service, error) {
	if cfg.S3Bucket == "" {
		return nil, nil
	}

	awsCfg := &aws.Config{
		Region:     aws.String(cfg.S3Region),
		HTTPClient: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if cfg.AWSS3AccessKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(
			cfg.AWSS3AccessKey,
			cfg.AWSS3SecretKey,
			"",
		)
	}

	if cfg.S3Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.S3Endpoint)
	}

	if cfg.S3UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create aws session: %w", err)
	}

	return &S3Service{
		session:    sess,
		bucket:     cfg.S3Bucket,
		prefix:     cfg.S3Prefix,
		downloader: s3manager.NewDownloader(sess),
		uploader:   s3manager.NewUploader(sess),
	}, nil
}

// Fetch downloads bucket/key into dst.
func (s *S3Service) Fetch(ctx context.Context, bucket, key string, dst *os.File) (int64, error) {
	n, err := s.downloader.DownloadWithContext(ctx, dst, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return n, fmt.Errorf("failed to download from S3: %w", err)
	}
	return n, nil
}

// Archive uploads the PDF under <prefix>/<jobID>/<filename> and returns the
// object key.
func (s *S3Service) Archive(ctx context.Context, jobID, localPath, filename string) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := ArchiveKey(s.prefix, jobID, filename)
	_, err = s.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String("application/pdf"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	return key, nil
}

// ArchiveKey joins the archive prefix, job ID and filename into an object key.
func ArchiveKey(prefix, jobID, filename string) string {
	return path.Join(prefix, jobID, filename)
}
