// Package archive copies accepted report files to S3 for long-term storage.
// Uploads run off the ingest path and are best-effort.
package archive

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog/log"

	appconfig "benchboard/internal/config"
)

type Archiver interface {
	// ArchiveReport uploads one persisted report under <prefix>/<teamID>/<fileName>.
	ArchiveReport(ctx context.Context, teamID, fileName string, data []byte) (string, error)
	TestConnection(ctx context.Context) error
}

type s3Archiver struct {
	s3     *s3.Client
	bucket string
	region string
	prefix string
}

// NewS3Archiver builds an S3-backed report archive from static credentials.
func NewS3Archiver(cfg appconfig.S3Config) (Archiver, error) {
	credProvider := aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
		return aws.Credentials{
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
		}, nil
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credProvider),
	)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg)

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "reports"
	}

	return &s3Archiver{
		s3:     client,
		bucket: cfg.Bucket,
		region: cfg.Region,
		prefix: prefix,
	}, nil
}

func (a *s3Archiver) ArchiveReport(ctx context.Context, teamID, fileName string, data []byte) (string, error) {
	key := path.Join(a.prefix, teamID, fileName)

	uploader := manager.NewUploader(a.s3)
	_, err := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return "", err
	}

	objectURL := fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", a.bucket, a.region, key)
	return objectURL, nil
}

func (a *s3Archiver) TestConnection(ctx context.Context) error {
	// List a single object to verify credentials and bucket access.
	_, err := a.s3.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
		Bucket:  aws.String(a.bucket),
		MaxKeys: aws.Int32(1),
	})
	log.Err(err).Msg("S3 archive connection test")

	return err
}
