package gateways

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/ochairo/prgate/internal/domain/interfaces"
	"github.com/ochairo/prgate/internal/domain/interfaces/gateways"
)

// S3PutObjectAPI is the part of the S3 client the uploader needs
type S3PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3UploaderConfig configures where run artifacts are copied
type S3UploaderConfig struct {
	Bucket string
	Prefix string
	Region string

	// Client overrides the client built from the default AWS config chain (tests)
	Client S3PutObjectAPI
	FS     gateways.FileSystem
	Logger interfaces.Logger
}

// s3ArtifactUploader copies summary artifacts to an S3 bucket
type s3ArtifactUploader struct {
	client S3PutObjectAPI
	bucket string
	prefix string
	fs     gateways.FileSystem
	logger interfaces.Logger
}

// NewS3ArtifactUploader creates an uploader. Credentials and region come from
// the standard AWS environment unless cfg.Region is set.
func NewS3ArtifactUploader(ctx context.Context, cfg S3UploaderConfig) (gateways.ArtifactUploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("artifact bucket is required")
	}

	client := cfg.Client
	if client == nil {
		var opts []func(*config.LoadOptions) error
		if cfg.Region != "" {
			opts = append(opts, config.WithRegion(cfg.Region))
		}
		awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to load AWS config: %w", err)
		}
		client = s3.NewFromConfig(awsCfg)
	}

	fs := cfg.FS
	if fs == nil {
		fs = NewOSFileSystem()
	}

	return &s3ArtifactUploader{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		fs:     fs,
		logger: interfaces.OrNoOp(cfg.Logger),
	}, nil
}

// Upload stores localPath under <prefix>/<runID>/<file name> and returns its s3:// URL
func (u *s3ArtifactUploader) Upload(ctx context.Context, localPath, runID string) (string, error) {
	data, err := u.fs.ReadFile(localPath)
	if err != nil {
		return "", err
	}

	key := path.Join(u.prefix, runID, filepath.Base(localPath))
	_, err = u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, u.bucket, key, err)
	}

	url := fmt.Sprintf("s3://%s/%s", u.bucket, key)
	u.logger.Info("Uploaded summary artifact", interfaces.F("url", url))
	return url, nil
}
