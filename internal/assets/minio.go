// Package assets stores project binary assets in S3-compatible object
// storage. Each project has exactly one object, <projectId>.sb3, seeded
// from the platform's default project on creation.
package assets

import (
	"context"
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type Service struct {
	client        *minio.Client
	bucket        string
	defaultObject string
}

type Config struct {
	Endpoint       string
	AccessKey      string
	SecretKey      string
	UseSSL         bool
	Bucket         string
	DefaultProject string
}

func New(cfg Config) (*Service, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("minio client: %w", err)
	}
	return &Service{
		client:        client,
		bucket:        cfg.Bucket,
		defaultObject: cfg.DefaultProject,
	}, nil
}

// EnsureBucket creates the asset bucket if it does not exist.
func (s *Service) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("make bucket: %w", err)
	}
	return nil
}

// ObjectName returns the storage key for a project's asset.
func ObjectName(projectID string) string {
	return projectID + ".sb3"
}

// ScaffoldProject copies the default project asset to the new project's
// object. The copy happens server-side; the asset never transits this
// process.
func (s *Service) ScaffoldProject(ctx context.Context, projectID string) error {
	src := minio.CopySrcOptions{
		Bucket: s.bucket,
		Object: s.defaultObject,
	}
	dst := minio.CopyDestOptions{
		Bucket: s.bucket,
		Object: ObjectName(projectID),
	}
	if _, err := s.client.CopyObject(ctx, dst, src); err != nil {
		return fmt.Errorf("scaffold project %s: %w", projectID, err)
	}
	return nil
}

// Ping verifies object storage is reachable and the bucket exists.
func (s *Service) Ping(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ping object storage: %w", err)
	}
	if !exists {
		return fmt.Errorf("bucket %s missing", s.bucket)
	}
	return nil
}
