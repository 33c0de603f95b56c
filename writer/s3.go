package writer

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"

	appconfig "epicflow/config"
	"epicflow/logger"
)

// ProductArchiver uploads per-source output directories to S3 so results
// survive the scratch space the pipeline runs on. Each archiver instance
// tags its uploads with a unique run id.
type ProductArchiver struct {
	client *s3.Client
	bucket string
	prefix string
	runID  string
	log    *logger.Log
}

// NewProductArchiver configures the AWS SDK and validates credentials.
func NewProductArchiver(ctx context.Context, cfg appconfig.S3Config) (*ProductArchiver, error) {
	loadOpts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load AWS configuration: %w", err)
	}
	creds, err := awsCfg.Credentials.Retrieve(ctx)
	if err != nil || !creds.HasKeys() {
		return nil, fmt.Errorf("aws credentials not found")
	}

	return &ProductArchiver{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		runID:  uuid.New().String(),
		log:    logger.GetLogger(),
	}, nil
}

// ArchiveDir uploads every regular file under localDir, preserving the
// relative layout beneath <prefix>/<observation>/<run-id>/.
func (a *ProductArchiver) ArchiveDir(ctx context.Context, localDir, obsID string) error {
	log := a.log.WithComponent("product_archiver").WithFields(logger.Fields{
		"observation": obsID,
		"dir":         localDir,
	})

	var uploaded int
	err := filepath.WalkDir(localDir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		key := path.Join(a.prefix, obsID, a.runID, filepath.Base(localDir), filepath.ToSlash(rel))
		if err := a.putFile(ctx, p, key); err != nil {
			return err
		}
		uploaded++
		return nil
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", localDir, err)
	}

	log.WithFields(logger.Fields{"files": uploaded, "run_id": a.runID}).Info("products archived")
	return nil
}

func (a *ProductArchiver) putFile(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", key, err)
	}
	return nil
}
